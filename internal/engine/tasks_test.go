package engine

import (
	"context"
	"testing"
	"time"

	"github.com/unbreakk1/Questify/internal/apperrors"
	"github.com/unbreakk1/Questify/internal/titlefilter"
)

func TestCreateTask_Validation(t *testing.T) {
	f := setup(t)
	f.createUser(t, "alice")
	ctx := context.Background()

	long := make([]byte, MaxTitleLength+1)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		title, due string
	}{
		{"", ""},
		{"   ", ""},
		{string(long), ""},
		{"pay rent", "03/10/2025"},
	}
	for _, tt := range tests {
		_, err := f.engine.CreateTask(ctx, "alice", tt.title, tt.due)
		wantCode(t, err, apperrors.CodeValidation)
	}

	task, err := f.engine.CreateTask(ctx, "alice", "  pay rent  ", "2025-03-31")
	if err != nil {
		t.Fatal(err)
	}
	if task.Title != "pay rent" || task.DueDate != "2025-03-31" || task.Completed || task.ID == "" {
		t.Errorf("unexpected task: %+v", task)
	}
}

func TestCreateTask_TitleFilter(t *testing.T) {
	opts := testOptions()
	opts.Titles = titlefilter.New(&titlefilter.Config{
		Enabled: true, Mode: titlefilter.ModeReplace, BannedWords: []string{"crap"},
	})
	f := setupWithOptions(t, opts)
	f.createUser(t, "alice")
	ctx := context.Background()

	task, err := f.engine.CreateTask(ctx, "alice", "clean the crap out", "")
	if err != nil {
		t.Fatal(err)
	}
	if task.Title != "clean the **** out" {
		t.Errorf("title = %q", task.Title)
	}

	opts.Titles = titlefilter.New(&titlefilter.Config{
		Enabled: true, Mode: titlefilter.ModeBlock, BannedWords: []string{"crap"},
	})
	f.engine.opts = opts
	_, err = f.engine.CreateHabit(ctx, "alice", "no crap today", "DAILY", "EASY")
	wantCode(t, err, apperrors.CodeValidation)
}

func TestTasks_ListAndDelete(t *testing.T) {
	f := setup(t)
	f.createUser(t, "alice")
	f.createUser(t, "bob")
	ctx := context.Background()

	a, _ := f.engine.CreateTask(ctx, "alice", "first", "")
	if _, err := f.engine.CreateTask(ctx, "alice", "second", ""); err != nil {
		t.Fatal(err)
	}

	tasks, err := f.engine.ListTasks(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 || tasks[0].Title != "first" {
		t.Errorf("tasks = %+v", tasks)
	}

	// Bob cannot delete or complete Alice's task
	wantCode(t, f.engine.DeleteTask(ctx, "bob", a.ID), apperrors.CodeTaskNotFound)
	_, err = f.engine.CompleteTask(ctx, "bob", a.ID)
	wantCode(t, err, apperrors.CodeTaskNotFound)

	if err := f.engine.DeleteTask(ctx, "alice", a.ID); err != nil {
		t.Fatal(err)
	}
	tasks, _ = f.engine.ListTasks(ctx, "alice")
	if len(tasks) != 1 {
		t.Errorf("expected 1 task after delete, got %d", len(tasks))
	}
	wantCode(t, f.engine.DeleteTask(ctx, "alice", a.ID), apperrors.CodeTaskNotFound)
}

func TestCompleteTask_OncePerDay(t *testing.T) {
	f := setup(t)
	f.createUser(t, "alice")
	ctx := context.Background()
	task, _ := f.engine.CreateTask(ctx, "alice", "write report", "")

	res, err := f.engine.CompleteTask(ctx, "alice", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Task.Completed || res.Task.LastCompletedDate != "2025-03-10" {
		t.Errorf("unexpected task after completion: %+v", res.Task)
	}
	if res.Reward.Gold != 10 || res.Reward.XP != 20 {
		t.Errorf("unexpected reward: %+v", res.Reward)
	}
	if res.Boss != nil {
		t.Error("no boss is active, so no attack should be reported")
	}

	_, err = f.engine.CompleteTask(ctx, "alice", task.ID)
	wantCode(t, err, apperrors.CodeAlreadyCompleted)

	f.clock.Advance(24 * time.Hour)
	tasks, _ := f.engine.ListTasks(ctx, "alice")
	if tasks[0].Completed {
		t.Error("task should not read as completed on the next day")
	}
	if _, err := f.engine.CompleteTask(ctx, "alice", task.ID); err != nil {
		t.Fatalf("completing on the next day should succeed: %v", err)
	}

	if user := f.user(t, "alice"); user.Gold != 20 || user.Experience != 40 {
		t.Errorf("gold=%d xp=%d, want 20 and 40", user.Gold, user.Experience)
	}
}

func TestCompleteTask_AttacksActiveBoss(t *testing.T) {
	f := setup(t)
	f.createUser(t, "alice")
	f.startFight(t, "alice", "slime")
	ctx := context.Background()
	task, _ := f.engine.CreateTask(ctx, "alice", "write report", "")

	res, err := f.engine.CompleteTask(ctx, "alice", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Boss == nil || res.Boss.Damage != 10 || res.Boss.Boss.CurrentHealth != 90 {
		t.Errorf("unexpected attack: %+v", res.Boss)
	}

	// One credit and one notification per completion
	if updates := f.notes.all(); len(updates) != 1 || updates[0].Gold != 10 {
		t.Errorf("updates = %+v", updates)
	}
}

func TestCompleteTask_DefeatingHit(t *testing.T) {
	f := setup(t)
	f.createUser(t, "alice")
	f.startFight(t, "alice", "slime")
	ctx := context.Background()

	if _, err := f.engine.Attack(ctx, "alice", 95); err != nil {
		t.Fatal(err)
	}
	task, _ := f.engine.CreateTask(ctx, "alice", "write report", "")
	res, err := f.engine.CompleteTask(ctx, "alice", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Boss == nil || !res.Boss.Boss.Defeated || res.Boss.Rewards == nil {
		t.Fatalf("expected a defeating hit: %+v", res.Boss)
	}

	// Task reward (10 gold, 20 xp) plus slime reward (50 gold, 30 xp)
	if user := f.user(t, "alice"); user.Gold != 60 || user.Experience != 50 {
		t.Errorf("gold=%d xp=%d, want 60 and 50", user.Gold, user.Experience)
	}
	_, err = f.engine.ActiveBoss(ctx, "alice")
	wantCode(t, err, apperrors.CodeNoActiveBoss)
}

func TestCompleteTask_AttackDisabled(t *testing.T) {
	opts := testOptions()
	opts.AttackOnCompletion = false
	f := setupWithOptions(t, opts)
	f.createUser(t, "alice")
	f.startFight(t, "alice", "slime")
	ctx := context.Background()
	task, _ := f.engine.CreateTask(ctx, "alice", "write report", "")

	res, err := f.engine.CompleteTask(ctx, "alice", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Boss != nil {
		t.Error("attack should be skipped when disabled")
	}
	active, _ := f.engine.ActiveBoss(ctx, "alice")
	if active.CurrentHealth != 100 {
		t.Errorf("boss health = %d, want 100", active.CurrentHealth)
	}
}

func TestCreateHabit_Validation(t *testing.T) {
	f := setup(t)
	f.createUser(t, "alice")
	ctx := context.Background()

	_, err := f.engine.CreateHabit(ctx, "alice", "stretch", "MONTHLY", "EASY")
	wantCode(t, err, apperrors.CodeValidation)
	_, err = f.engine.CreateHabit(ctx, "alice", "stretch", "DAILY", "LEGENDARY")
	wantCode(t, err, apperrors.CodeValidation)

	h, err := f.engine.CreateHabit(ctx, "alice", "stretch", "weekly", "")
	if err != nil {
		t.Fatal(err)
	}
	if h.Frequency != FrequencyWeekly || h.Difficulty != DifficultyEasy || h.Streak != 0 || h.Completed {
		t.Errorf("unexpected habit: %+v", h)
	}
}

func TestCompleteHabit_DailyStreak(t *testing.T) {
	f := setup(t)
	f.createUser(t, "alice")
	ctx := context.Background()
	h, _ := f.engine.CreateHabit(ctx, "alice", "meditate", "DAILY", "HARD")

	res, err := f.engine.CompleteHabit(ctx, "alice", h.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Habit.Streak != 1 || !res.Habit.Completed || res.Reward.Gold != 20 || res.Reward.XP != 40 {
		t.Errorf("unexpected first completion: habit=%+v reward=%+v", res.Habit, res.Reward)
	}

	_, err = f.engine.CompleteHabit(ctx, "alice", h.ID)
	wantCode(t, err, apperrors.CodeAlreadyCompleted)

	f.clock.Advance(24 * time.Hour)
	res, err = f.engine.CompleteHabit(ctx, "alice", h.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Habit.Streak != 2 {
		t.Errorf("streak = %d, want 2", res.Habit.Streak)
	}

	// Skipping a day restarts the streak
	f.clock.Advance(48 * time.Hour)
	res, err = f.engine.CompleteHabit(ctx, "alice", h.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Habit.Streak != 1 {
		t.Errorf("streak = %d after a gap, want 1", res.Habit.Streak)
	}
}

func TestCompleteHabit_AttacksWithHabitDamage(t *testing.T) {
	f := setup(t)
	f.createUser(t, "alice")
	f.startFight(t, "alice", "slime")
	ctx := context.Background()
	h, _ := f.engine.CreateHabit(ctx, "alice", "meditate", "DAILY", "MEDIUM")

	res, err := f.engine.CompleteHabit(ctx, "alice", h.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Boss == nil || res.Boss.Damage != 5 || res.Boss.Boss.CurrentHealth != 95 {
		t.Errorf("unexpected attack: %+v", res.Boss)
	}
	if res.Reward.Gold != 10 || res.Reward.XP != 20 {
		t.Errorf("medium reward = %+v", res.Reward)
	}
}

func TestResetHabit(t *testing.T) {
	f := setup(t)
	f.createUser(t, "alice")
	ctx := context.Background()
	h, _ := f.engine.CreateHabit(ctx, "alice", "meditate", "DAILY", "EASY")

	if _, err := f.engine.CompleteHabit(ctx, "alice", h.ID); err != nil {
		t.Fatal(err)
	}
	view, err := f.engine.ResetHabit(ctx, "alice", h.ID)
	if err != nil {
		t.Fatal(err)
	}
	if view.Streak != 0 || view.LastCompletedDate != "" || view.Completed {
		t.Errorf("unexpected habit after reset: %+v", view)
	}

	// A reset habit can be completed again the same day
	res, err := f.engine.CompleteHabit(ctx, "alice", h.ID)
	if err != nil {
		t.Fatalf("complete after reset: %v", err)
	}
	if res.Habit.Streak != 1 {
		t.Errorf("streak = %d, want 1", res.Habit.Streak)
	}

	_, err = f.engine.ResetHabit(ctx, "alice", "missing")
	wantCode(t, err, apperrors.CodeHabitNotFound)
}

func TestHabits_ListAndDelete(t *testing.T) {
	f := setup(t)
	f.createUser(t, "alice")
	f.createUser(t, "bob")
	ctx := context.Background()
	h, _ := f.engine.CreateHabit(ctx, "alice", "meditate", "DAILY", "EASY")

	habits, err := f.engine.ListHabits(ctx, "alice")
	if err != nil || len(habits) != 1 {
		t.Fatalf("ListHabits = %v, %v", habits, err)
	}
	if other, _ := f.engine.ListHabits(ctx, "bob"); len(other) != 0 {
		t.Errorf("bob sees %d habits", len(other))
	}

	_, err = f.engine.CompleteHabit(ctx, "bob", h.ID)
	wantCode(t, err, apperrors.CodeHabitNotFound)
	wantCode(t, f.engine.DeleteHabit(ctx, "bob", h.ID), apperrors.CodeHabitNotFound)

	if err := f.engine.DeleteHabit(ctx, "alice", h.ID); err != nil {
		t.Fatal(err)
	}
	if habits, _ := f.engine.ListHabits(ctx, "alice"); len(habits) != 0 {
		t.Errorf("expected no habits after delete, got %d", len(habits))
	}
}

func TestNextStreak(t *testing.T) {
	tests := []struct {
		name      string
		frequency string
		streak    int
		last      string
		today     string
		want      int
		wantOK    bool
	}{
		{"never completed", FrequencyDaily, 0, "", "2025-03-10", 1, true},
		{"daily same day", FrequencyDaily, 3, "2025-03-10", "2025-03-10", 3, false},
		{"daily next day", FrequencyDaily, 3, "2025-03-09", "2025-03-10", 4, true},
		{"daily gap", FrequencyDaily, 3, "2025-03-07", "2025-03-10", 1, true},
		{"weekly within window", FrequencyWeekly, 2, "2025-03-05", "2025-03-10", 2, false},
		{"weekly next window", FrequencyWeekly, 2, "2025-03-03", "2025-03-10", 3, true},
		{"weekly end of next window", FrequencyWeekly, 2, "2025-02-25", "2025-03-10", 3, true},
		{"weekly gap", FrequencyWeekly, 2, "2025-02-20", "2025-03-10", 1, true},
		{"across month boundary", FrequencyDaily, 5, "2025-02-28", "2025-03-01", 6, true},
		{"corrupt stamp", FrequencyDaily, 5, "yesterday", "2025-03-10", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := nextStreak(tt.frequency, tt.streak, tt.last, tt.today)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("nextStreak() = %d, %v, want %d, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
