package server

import (
	"net/http"
	"testing"

	"github.com/unbreakk1/Questify/internal/boss"
	"github.com/unbreakk1/Questify/internal/config"
	"github.com/unbreakk1/Questify/internal/engine"
)

// attackBody mirrors the flattened attack response.
type attackBody struct {
	ID            string              `json:"id"`
	CurrentHealth int                 `json:"currentHealth"`
	MaxHealth     int                 `json:"maxHealth"`
	Defeated      bool                `json:"defeated"`
	Damage        int                 `json:"damage"`
	Rewards       *engine.RewardDelta `json:"rewards"`
	TimesDefeated int                 `json:"timesDefeated"`
}

func TestBossFlow(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.register(t, "alice")

	expectError(t, e.do(http.MethodGet, "/api/boss/active", token, nil), http.StatusConflict, "NO_ACTIVE_BOSS")
	expectError(t, e.do(http.MethodPut, "/api/boss/attack", token, map[string]int{"damage": 5}), http.StatusConflict, "NO_ACTIVE_BOSS")

	rec := e.do(http.MethodGet, "/api/boss/selection", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("selection status = %d", rec.Code)
	}
	if candidates := decode[[]boss.Definition](t, rec); len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %+v", candidates)
	}

	expectError(t, e.do(http.MethodPost, "/api/boss/select/dragon", token, nil), http.StatusBadRequest, "INVALID_SELECTION")

	rec = e.do(http.MethodPost, "/api/boss/select/slime", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("select status = %d: %s", rec.Code, rec.Body.String())
	}
	selected := decode[selectResponse](t, rec)
	if selected.Boss == nil || selected.Boss.ID != "slime" || selected.Boss.CurrentHealth != 100 || selected.Message == "" {
		t.Fatalf("unexpected select response: %+v", selected)
	}

	// The slot is occupied until the boss is defeated
	expectError(t, e.do(http.MethodPost, "/api/boss/select/ogre", token, nil), http.StatusBadRequest, "INVALID_SELECTION")

	rec = e.do(http.MethodPut, "/api/boss/attack", token, map[string]int{"damage": 40})
	if rec.Code != http.StatusOK {
		t.Fatalf("attack status = %d: %s", rec.Code, rec.Body.String())
	}
	hit := decode[attackBody](t, rec)
	if hit.ID != "slime" || hit.CurrentHealth != 60 || hit.Defeated || hit.Rewards != nil || hit.Damage != 40 {
		t.Fatalf("unexpected attack response: %+v", hit)
	}

	expectError(t, e.do(http.MethodPut, "/api/boss/attack", token, map[string]int{"damage": -1}), http.StatusBadRequest, "INVALID_DAMAGE")
	expectError(t, e.do(http.MethodPut, "/api/boss/attack", token, map[string]string{}), http.StatusBadRequest, "VALIDATION_FAILED")

	active := decode[engine.BossView](t, e.do(http.MethodGet, "/api/boss/active", token, nil))
	if active.CurrentHealth != 60 {
		t.Errorf("active health = %d, want 60", active.CurrentHealth)
	}

	// Overkill clamps to zero and pays out once
	hit = decode[attackBody](t, e.do(http.MethodPut, "/api/boss/attack", token, map[string]int{"damage": 500}))
	if !hit.Defeated || hit.CurrentHealth != 0 || hit.Rewards == nil {
		t.Fatalf("expected defeat with rewards, got %+v", hit)
	}
	if hit.Rewards.Gold != 50 || hit.Rewards.XP != 30 || hit.Rewards.HasCausedLevelUp {
		t.Errorf("unexpected rewards: %+v", hit.Rewards)
	}
	if hit.TimesDefeated != 1 {
		t.Errorf("timesDefeated = %d, want 1", hit.TimesDefeated)
	}

	expectError(t, e.do(http.MethodGet, "/api/boss/active", token, nil), http.StatusConflict, "NO_ACTIVE_BOSS")

	history := decode[[]engine.DefeatRecord](t, e.do(http.MethodGet, "/api/boss/history", token, nil))
	if len(history) != 1 || history[0].BossID != "slime" || history[0].BossName != "Procrastination Slime" {
		t.Errorf("unexpected history: %+v", history)
	}
	expectError(t, e.do(http.MethodGet, "/api/boss/history?limit=abc", token, nil), http.StatusBadRequest, "VALIDATION_FAILED")

	profile := decode[engine.Profile](t, e.do(http.MethodGet, "/api/users/me", token, nil))
	if profile.Gold != 50 || profile.Experience != 30 || profile.ActiveBossID != "" {
		t.Errorf("unexpected profile: %+v", profile)
	}
	if len(profile.Badges) != 2 {
		t.Errorf("badges = %v, want Newbie and Slime Slayer", profile.Badges)
	}
}

func TestAttack_DefeatCausesLevelUp(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.register(t, "alice")

	if rec := e.do(http.MethodPost, "/api/boss/select/ogre", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("select status = %d: %s", rec.Code, rec.Body.String())
	}
	hit := decode[attackBody](t, e.do(http.MethodPut, "/api/boss/attack", token, map[string]int{"damage": 20}))
	if hit.Rewards == nil || !hit.Rewards.HasCausedLevelUp || hit.Rewards.Level != 2 || hit.Rewards.Experience != 20 {
		t.Fatalf("expected a level up to 2 with 20 xp, got %+v", hit.Rewards)
	}
	if hit.Rewards.Badge != "Ogre Breaker" || !hit.Rewards.BadgeAdded {
		t.Errorf("badge not granted: %+v", hit.Rewards)
	}

	profile := decode[engine.Profile](t, e.do(http.MethodGet, "/api/users/me", token, nil))
	if profile.Level != 2 || profile.Experience != 20 || profile.Gold != 10 || profile.XPForNextLevel != 200 {
		t.Errorf("unexpected profile: %+v", profile)
	}
}

func TestTaskFlow(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.register(t, "alice")
	e.do(http.MethodPost, "/api/boss/select/slime", token, nil)

	expectError(t, e.do(http.MethodPost, "/api/tasks", token, map[string]string{}), http.StatusBadRequest, "VALIDATION_FAILED")
	expectError(t, e.do(http.MethodPost, "/api/tasks", token,
		map[string]string{"title": "Write report", "dueDate": "tomorrow"}), http.StatusBadRequest, "VALIDATION_FAILED")

	rec := e.do(http.MethodPost, "/api/tasks", token, map[string]string{"title": "Write report", "dueDate": "2030-01-15"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	task := decode[engine.TaskView](t, rec)
	if task.ID == "" || task.Title != "Write report" || task.Completed {
		t.Fatalf("unexpected task: %+v", task)
	}

	tasks := decode[[]engine.TaskView](t, e.do(http.MethodGet, "/api/tasks", token, nil))
	if len(tasks) != 1 || tasks[0].ID != task.ID {
		t.Fatalf("unexpected task list: %+v", tasks)
	}

	rec = e.do(http.MethodPut, "/api/tasks/"+task.ID+"/complete", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d: %s", rec.Code, rec.Body.String())
	}
	done := decode[engine.CompletionResult](t, rec)
	if done.Task == nil || !done.Task.Completed {
		t.Errorf("task not marked completed: %+v", done.Task)
	}
	if done.Reward == nil || done.Reward.Gold != 10 || done.Reward.XP != 20 {
		t.Errorf("unexpected reward: %+v", done.Reward)
	}
	if done.Boss == nil || done.Boss.Boss.CurrentHealth != 90 || done.Boss.Damage != 10 {
		t.Errorf("completion should hit the boss for 10: %+v", done.Boss)
	}

	expectError(t, e.do(http.MethodPut, "/api/tasks/"+task.ID+"/complete", token, nil), http.StatusConflict, "ALREADY_COMPLETED")

	if rec := e.do(http.MethodDelete, "/api/tasks/"+task.ID, token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body.String())
	}
	expectError(t, e.do(http.MethodPut, "/api/tasks/"+task.ID+"/complete", token, nil), http.StatusNotFound, "TASK_NOT_FOUND")
	expectError(t, e.do(http.MethodDelete, "/api/tasks/"+task.ID, token, nil), http.StatusNotFound, "TASK_NOT_FOUND")
}

func TestHabitFlow(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.register(t, "alice")

	expectError(t, e.do(http.MethodPost, "/api/habits", token,
		map[string]string{"title": "Stretch", "frequency": "MONTHLY"}), http.StatusBadRequest, "VALIDATION_FAILED")
	expectError(t, e.do(http.MethodPost, "/api/habits", token,
		map[string]string{"title": "Stretch", "difficulty": "EPIC"}), http.StatusBadRequest, "VALIDATION_FAILED")

	rec := e.do(http.MethodPost, "/api/habits", token,
		map[string]string{"title": "Stretch", "frequency": "weekly", "difficulty": "hard"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	habit := decode[engine.HabitView](t, rec)
	if habit.Frequency != "WEEKLY" || habit.Difficulty != "HARD" || habit.Streak != 0 {
		t.Fatalf("unexpected habit: %+v", habit)
	}

	// No active boss: the completion still succeeds
	done := decode[engine.CompletionResult](t, e.do(http.MethodPut, "/api/habits/"+habit.ID+"/complete", token, nil))
	if done.Habit == nil || done.Habit.Streak != 1 || !done.Habit.Completed || done.Habit.LastCompletedDate == "" {
		t.Fatalf("unexpected completed habit: %+v", done.Habit)
	}
	if done.Reward == nil || done.Reward.Gold != 20 || done.Reward.XP != 40 {
		t.Errorf("unexpected reward: %+v", done.Reward)
	}
	if done.Boss != nil {
		t.Errorf("no boss was active, got %+v", done.Boss)
	}

	expectError(t, e.do(http.MethodPut, "/api/habits/"+habit.ID+"/complete", token, nil), http.StatusConflict, "ALREADY_COMPLETED")

	reset := decode[engine.HabitView](t, e.do(http.MethodPut, "/api/habits/"+habit.ID+"/reset", token, nil))
	if reset.Streak != 0 || reset.Completed || reset.LastCompletedDate != "" {
		t.Errorf("unexpected reset habit: %+v", reset)
	}

	habits := decode[[]engine.HabitView](t, e.do(http.MethodGet, "/api/habits", token, nil))
	if len(habits) != 1 {
		t.Fatalf("expected 1 habit, got %d", len(habits))
	}

	if rec := e.do(http.MethodDelete, "/api/habits/"+habit.ID, token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	expectError(t, e.do(http.MethodPut, "/api/habits/"+habit.ID+"/reset", token, nil), http.StatusNotFound, "HABIT_NOT_FOUND")
}

func TestUsersAreIsolated(t *testing.T) {
	e := newTestEnv(t, nil)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")

	task := decode[engine.TaskView](t, e.do(http.MethodPost, "/api/tasks", alice, map[string]string{"title": "Alice's task"}))
	habit := decode[engine.HabitView](t, e.do(http.MethodPost, "/api/habits", alice, map[string]string{"title": "Alice's habit"}))

	expectError(t, e.do(http.MethodPut, "/api/tasks/"+task.ID+"/complete", bob, nil), http.StatusNotFound, "TASK_NOT_FOUND")
	expectError(t, e.do(http.MethodDelete, "/api/tasks/"+task.ID, bob, nil), http.StatusNotFound, "TASK_NOT_FOUND")
	expectError(t, e.do(http.MethodPut, "/api/habits/"+habit.ID+"/complete", bob, nil), http.StatusNotFound, "HABIT_NOT_FOUND")

	if tasks := decode[[]engine.TaskView](t, e.do(http.MethodGet, "/api/tasks", bob, nil)); len(tasks) != 0 {
		t.Errorf("bob sees %d tasks", len(tasks))
	}

	// Alice's boss is not Bob's boss
	e.do(http.MethodPost, "/api/boss/select/slime", alice, nil)
	expectError(t, e.do(http.MethodGet, "/api/boss/active", bob, nil), http.StatusConflict, "NO_ACTIVE_BOSS")
}

func TestThrottle(t *testing.T) {
	e := newTestEnv(t, func(cfg *config.ServerConfig) {
		cfg.Antispam.MaxActions = 2
		cfg.Antispam.TimeWindowSeconds = 60
	})
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")

	for i := 0; i < 2; i++ {
		rec := e.do(http.MethodPost, "/api/tasks", alice, map[string]string{"title": "Chore"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %d: status %d", i, rec.Code)
		}
	}
	body := expectError(t, e.do(http.MethodPost, "/api/tasks", alice, map[string]string{"title": "Chore"}),
		http.StatusTooManyRequests, "RATE_LIMITED")
	if got := body.Error.Metadata["retryAfterSeconds"]; got != "60" && got != "61" {
		t.Errorf("retryAfterSeconds = %q", got)
	}

	// Reads and other users are unaffected
	if rec := e.do(http.MethodGet, "/api/tasks", alice, nil); rec.Code != http.StatusOK {
		t.Errorf("GET while throttled: status %d", rec.Code)
	}
	if rec := e.do(http.MethodPost, "/api/tasks", bob, map[string]string{"title": "Chore"}); rec.Code != http.StatusCreated {
		t.Errorf("bob throttled by alice: status %d", rec.Code)
	}
}
