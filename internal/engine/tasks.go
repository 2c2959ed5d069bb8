package engine

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/unbreakk1/Questify/internal/apperrors"
	"github.com/unbreakk1/Questify/internal/config"
	"github.com/unbreakk1/Questify/internal/database"
)

// MaxTitleLength bounds task and habit titles, in characters.
const MaxTitleLength = 120

// Habit frequencies.
const (
	FrequencyDaily  = "DAILY"
	FrequencyWeekly = "WEEKLY"
)

// Habit difficulties.
const (
	DifficultyEasy   = "EASY"
	DifficultyMedium = "MEDIUM"
	DifficultyHard   = "HARD"
)

// TaskView is a task as returned to clients. Completed means completed today.
type TaskView struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	DueDate           string    `json:"dueDate,omitempty"`
	Completed         bool      `json:"completed"`
	LastCompletedDate string    `json:"lastCompletedDate,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// HabitView is a habit as returned to clients. Completed means completed in
// the current period.
type HabitView struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Frequency         string    `json:"frequency"`
	Difficulty        string    `json:"difficulty"`
	Streak            int       `json:"streak"`
	Completed         bool      `json:"completed"`
	LastCompletedDate string    `json:"lastCompletedDate,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// CompletionResult is what a task or habit completion produced. Boss is nil
// when no attack happened.
type CompletionResult struct {
	Task   *TaskView     `json:"task,omitempty"`
	Habit  *HabitView    `json:"habit,omitempty"`
	Reward *RewardDelta  `json:"reward"`
	Boss   *AttackResult `json:"boss,omitempty"`
}

// CreateTask adds a task for the user.
func (e *Engine) CreateTask(ctx context.Context, username, title, dueDate string) (*TaskView, error) {
	title, err := e.cleanTitle(title)
	if err != nil {
		return nil, err
	}
	dueDate = strings.TrimSpace(dueDate)
	if dueDate != "" {
		if _, err := time.Parse(database.DateLayout, dueDate); err != nil {
			return nil, apperrors.New(apperrors.CodeValidation, "due date must be formatted YYYY-MM-DD")
		}
	}

	user, err := e.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}
	task, err := e.db.Queries().CreateTask(ctx, user.ID, title, dueDate)
	if err != nil {
		return nil, translate(err)
	}
	return e.taskView(task), nil
}

// ListTasks returns the user's tasks.
func (e *Engine) ListTasks(ctx context.Context, username string) ([]TaskView, error) {
	user, err := e.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}
	tasks, err := e.db.Queries().ListTasks(ctx, user.ID)
	if err != nil {
		return nil, translate(err)
	}
	views := make([]TaskView, len(tasks))
	for i := range tasks {
		views[i] = *e.taskView(&tasks[i])
	}
	return views, nil
}

// DeleteTask removes one of the user's tasks.
func (e *Engine) DeleteTask(ctx context.Context, username, taskID string) error {
	return e.mutate(ctx, username, func(tx *userTx) error {
		return tx.q.DeleteTask(ctx, tx.user.ID, taskID)
	})
}

// CompleteTask marks a task done for today, credits the task reward and,
// when enabled, strikes the active boss with the task damage. A task can be
// completed once per day.
func (e *Engine) CompleteTask(ctx context.Context, username, taskID string) (*CompletionResult, error) {
	var result *CompletionResult
	err := e.mutate(ctx, username, func(tx *userTx) error {
		task, err := tx.q.GetTask(ctx, tx.user.ID, taskID)
		if err != nil {
			return err
		}
		today := e.today()
		if task.LastCompletedDate == today {
			return apperrors.WithMetadata(apperrors.CodeAlreadyCompleted,
				"task already completed today", map[string]string{"taskId": taskID})
		}
		if err := tx.q.MarkTaskCompleted(ctx, tx.user.ID, taskID, today); err != nil {
			return err
		}
		task.LastCompletedDate = today

		result, err = e.completion(ctx, tx, e.opts.Rewards.Task, e.opts.TaskDamage)
		if err != nil {
			return err
		}
		result.Task = e.taskView(task)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateHabit adds a habit for the user.
func (e *Engine) CreateHabit(ctx context.Context, username, title, frequency, difficulty string) (*HabitView, error) {
	title, err := e.cleanTitle(title)
	if err != nil {
		return nil, err
	}
	frequency = strings.ToUpper(strings.TrimSpace(frequency))
	if frequency == "" {
		frequency = FrequencyDaily
	}
	if frequency != FrequencyDaily && frequency != FrequencyWeekly {
		return nil, apperrors.New(apperrors.CodeValidation, "frequency must be DAILY or WEEKLY")
	}
	difficulty = strings.ToUpper(strings.TrimSpace(difficulty))
	if difficulty == "" {
		difficulty = DifficultyEasy
	}
	switch difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return nil, apperrors.New(apperrors.CodeValidation, "difficulty must be EASY, MEDIUM or HARD")
	}

	user, err := e.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}
	habit, err := e.db.Queries().CreateHabit(ctx, user.ID, title, frequency, difficulty)
	if err != nil {
		return nil, translate(err)
	}
	return e.habitView(habit), nil
}

// ListHabits returns the user's habits.
func (e *Engine) ListHabits(ctx context.Context, username string) ([]HabitView, error) {
	user, err := e.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}
	habits, err := e.db.Queries().ListHabits(ctx, user.ID)
	if err != nil {
		return nil, translate(err)
	}
	views := make([]HabitView, len(habits))
	for i := range habits {
		views[i] = *e.habitView(&habits[i])
	}
	return views, nil
}

// DeleteHabit removes one of the user's habits.
func (e *Engine) DeleteHabit(ctx context.Context, username, habitID string) error {
	return e.mutate(ctx, username, func(tx *userTx) error {
		return tx.q.DeleteHabit(ctx, tx.user.ID, habitID)
	})
}

// CompleteHabit stamps today's completion and advances the streak, then
// credits the reward for the habit's difficulty and, when enabled, strikes
// the active boss with the habit damage.
func (e *Engine) CompleteHabit(ctx context.Context, username, habitID string) (*CompletionResult, error) {
	var result *CompletionResult
	err := e.mutate(ctx, username, func(tx *userTx) error {
		habit, err := tx.q.GetHabit(ctx, tx.user.ID, habitID)
		if err != nil {
			return err
		}
		today := e.today()
		streak, ok := nextStreak(habit.Frequency, habit.Streak, habit.LastCompletedDate, today)
		if !ok {
			return apperrors.WithMetadata(apperrors.CodeAlreadyCompleted,
				"habit already completed this period", map[string]string{"habitId": habitID})
		}

		previous := habit.LastCompletedDate
		habit.Streak = streak
		habit.LastCompletedDate = today
		if err := tx.q.UpdateHabitProgress(ctx, habit, previous); err != nil {
			return err
		}

		result, err = e.completion(ctx, tx, e.opts.Rewards.ForHabit(habit.Difficulty), e.opts.HabitDamage)
		if err != nil {
			return err
		}
		result.Habit = e.habitView(habit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ResetHabit zeroes the streak and clears the completion stamp.
func (e *Engine) ResetHabit(ctx context.Context, username, habitID string) (*HabitView, error) {
	var view *HabitView
	err := e.mutate(ctx, username, func(tx *userTx) error {
		habit, err := tx.q.GetHabit(ctx, tx.user.ID, habitID)
		if err != nil {
			return err
		}
		previous := habit.LastCompletedDate
		habit.Streak = 0
		habit.LastCompletedDate = ""
		if err := tx.q.UpdateHabitProgress(ctx, habit, previous); err != nil {
			return err
		}
		view = e.habitView(habit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// completion applies the reward and the optional attack for one completion
// event. A missing active boss does not fail the completion.
func (e *Engine) completion(ctx context.Context, tx *userTx, grant config.Grant, damage int) (*CompletionResult, error) {
	reward, err := e.credit(ctx, tx, grant.Gold, grant.XP)
	if err != nil {
		return nil, err
	}
	result := &CompletionResult{Reward: reward}
	if !e.opts.AttackOnCompletion {
		return result, nil
	}

	attack, err := e.attack(ctx, tx, damage)
	switch {
	case err == nil:
		result.Boss = attack
	case errors.Is(err, database.ErrNoSession):
	default:
		return nil, err
	}
	return result, nil
}

// nextStreak returns the streak after completing a habit on today, or false
// when the habit was already completed in the current period. A completion
// in the previous period extends the streak; any longer gap restarts it.
func nextStreak(frequency string, streak int, lastCompleted, today string) (int, bool) {
	if lastCompleted == "" {
		return 1, true
	}
	last, err := time.Parse(database.DateLayout, lastCompleted)
	if err != nil {
		return 1, true
	}
	now, err := time.Parse(database.DateLayout, today)
	if err != nil {
		return 1, true
	}

	period := 1
	if frequency == FrequencyWeekly {
		period = 7
	}
	days := int(now.Sub(last).Hours() / 24)
	switch {
	case days < period:
		return streak, false
	case days < 2*period:
		return streak + 1, true
	default:
		return 1, true
	}
}

// cleanTitle trims and screens a title.
func (e *Engine) cleanTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperrors.New(apperrors.CodeValidation, "title cannot be empty")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", apperrors.New(apperrors.CodeValidation, "title is too long")
	}
	if e.opts.Titles == nil {
		return title, nil
	}
	res := e.opts.Titles.Check(title)
	if res.Blocked {
		return "", apperrors.New(apperrors.CodeValidation, "title contains words that are not allowed")
	}
	return res.Filtered, nil
}

func (e *Engine) taskView(t *database.Task) *TaskView {
	return &TaskView{
		ID:                t.ID,
		Title:             t.Title,
		DueDate:           t.DueDate,
		Completed:         t.LastCompletedDate == e.today(),
		LastCompletedDate: t.LastCompletedDate,
		CreatedAt:         t.CreatedAt,
	}
}

func (e *Engine) habitView(h *database.Habit) *HabitView {
	_, available := nextStreak(h.Frequency, h.Streak, h.LastCompletedDate, e.today())
	return &HabitView{
		ID:                h.ID,
		Title:             h.Title,
		Frequency:         h.Frequency,
		Difficulty:        h.Difficulty,
		Streak:            h.Streak,
		Completed:         !available,
		LastCompletedDate: h.LastCompletedDate,
		CreatedAt:         h.CreatedAt,
	}
}
