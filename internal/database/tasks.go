package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrTaskNotFound is returned when a task does not exist or belongs to another user.
var ErrTaskNotFound = errors.New("task not found")

// ErrHabitNotFound is returned when a habit does not exist or belongs to another user.
var ErrHabitNotFound = errors.New("habit not found")

// DateLayout is the format of stored calendar dates.
const DateLayout = "2006-01-02"

// Task is a one-off to-do that may be completed once per day.
type Task struct {
	ID                string
	UserID            int64
	Title             string
	DueDate           string
	LastCompletedDate string
	CreatedAt         time.Time
}

// Habit is a recurring activity with a streak.
type Habit struct {
	ID                string
	UserID            int64
	Title             string
	Frequency         string
	Difficulty        string
	Streak            int
	LastCompletedDate string
	CreatedAt         time.Time
}

// CreateTask stores a new task with a generated id.
func (q *Queries) CreateTask(ctx context.Context, userID int64, title, dueDate string) (*Task, error) {
	t := &Task{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		DueDate:   dueDate,
		CreatedAt: time.Now(),
	}
	_, err := q.exec(ctx,
		`INSERT INTO tasks (id, user_id, title, due_date, last_completed_date, created_at)
		 VALUES (?, ?, ?, ?, '', ?)`,
		t.ID, t.UserID, t.Title, t.DueDate, t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return t, nil
}

// ListTasks returns the user's tasks, oldest first.
func (q *Queries) ListTasks(ctx context.Context, userID int64) ([]Task, error) {
	rows, err := q.query(ctx,
		`SELECT id, user_id, title, due_date, last_completed_date, created_at
		 FROM tasks WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		var t Task
		var createdAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.DueDate, &t.LastCompletedDate, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt = createdAt.Time
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetTask returns a task owned by the user.
func (q *Queries) GetTask(ctx context.Context, userID int64, taskID string) (*Task, error) {
	var t Task
	var createdAt sql.NullTime
	err := q.queryRow(ctx,
		`SELECT id, user_id, title, due_date, last_completed_date, created_at
		 FROM tasks WHERE id = ? AND user_id = ?`, taskID, userID,
	).Scan(&t.ID, &t.UserID, &t.Title, &t.DueDate, &t.LastCompletedDate, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	t.CreatedAt = createdAt.Time
	return &t, nil
}

// MarkTaskCompleted stamps the completion date. It returns ErrConflict if the
// task was already stamped with that date.
func (q *Queries) MarkTaskCompleted(ctx context.Context, userID int64, taskID, date string) error {
	result, err := q.exec(ctx,
		`UPDATE tasks SET last_completed_date = ?
		 WHERE id = ? AND user_id = ? AND last_completed_date <> ?`,
		date, taskID, userID, date,
	)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// DeleteTask removes a task owned by the user.
func (q *Queries) DeleteTask(ctx context.Context, userID int64, taskID string) error {
	result, err := q.exec(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, taskID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// CreateHabit stores a new habit with a zero streak.
func (q *Queries) CreateHabit(ctx context.Context, userID int64, title, frequency, difficulty string) (*Habit, error) {
	h := &Habit{
		ID:         uuid.NewString(),
		UserID:     userID,
		Title:      title,
		Frequency:  frequency,
		Difficulty: difficulty,
		CreatedAt:  time.Now(),
	}
	_, err := q.exec(ctx,
		`INSERT INTO habits (id, user_id, title, frequency, difficulty, streak, last_completed_date, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, '', ?)`,
		h.ID, h.UserID, h.Title, h.Frequency, h.Difficulty, h.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create habit: %w", err)
	}
	return h, nil
}

const habitColumns = `id, user_id, title, frequency, difficulty, streak, last_completed_date, created_at`

func scanHabit(row interface{ Scan(...any) error }) (*Habit, error) {
	var h Habit
	var createdAt sql.NullTime
	if err := row.Scan(&h.ID, &h.UserID, &h.Title, &h.Frequency, &h.Difficulty, &h.Streak, &h.LastCompletedDate, &createdAt); err != nil {
		return nil, err
	}
	h.CreatedAt = createdAt.Time
	return &h, nil
}

// ListHabits returns the user's habits, oldest first.
func (q *Queries) ListHabits(ctx context.Context, userID int64) ([]Habit, error) {
	rows, err := q.query(ctx,
		`SELECT `+habitColumns+` FROM habits WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	defer rows.Close()

	habits := []Habit{}
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, *h)
	}
	return habits, rows.Err()
}

// GetHabit returns a habit owned by the user.
func (q *Queries) GetHabit(ctx context.Context, userID int64, habitID string) (*Habit, error) {
	h, err := scanHabit(q.queryRow(ctx,
		`SELECT `+habitColumns+` FROM habits WHERE id = ? AND user_id = ?`, habitID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("failed to get habit: %w", err)
	}
	return h, nil
}

// UpdateHabitProgress writes streak and completion date if the stored date
// still matches previousDate.
func (q *Queries) UpdateHabitProgress(ctx context.Context, h *Habit, previousDate string) error {
	result, err := q.exec(ctx,
		`UPDATE habits SET streak = ?, last_completed_date = ?
		 WHERE id = ? AND user_id = ? AND last_completed_date = ?`,
		h.Streak, h.LastCompletedDate, h.ID, h.UserID, previousDate,
	)
	if err != nil {
		return fmt.Errorf("failed to update habit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update habit: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// DeleteHabit removes a habit owned by the user.
func (q *Queries) DeleteHabit(ctx context.Context, userID int64, habitID string) error {
	result, err := q.exec(ctx, `DELETE FROM habits WHERE id = ? AND user_id = ?`, habitID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	if n == 0 {
		return ErrHabitNotFound
	}
	return nil
}
