package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the bcrypt work factor. Tests lower it to bcrypt.MinCost.
var BcryptCost = 12

// StarterBadge is granted to every new user.
const StarterBadge = "Newbie"

// ErrUserNotFound is returned when a user lookup fails.
var ErrUserNotFound = errors.New("user not found")

// ErrUserExists is returned when trying to register a taken username.
var ErrUserExists = errors.New("username already taken")

// ErrInvalidCredentials is returned when login credentials are incorrect.
var ErrInvalidCredentials = errors.New("invalid username or password")

// User is a registered player and their progression.
type User struct {
	ID           int64
	PublicID     string
	Username     string
	Email        string
	PasswordHash string
	Level        int
	Experience   int
	Gold         int
	Version      int64
	CreatedAt    time.Time
	LastLogin    *time.Time
}

const userColumns = `id, public_id, username, email, password_hash, level, experience, gold, version, created_at, last_login`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var lastLogin sql.NullTime
	var createdAt sql.NullTime
	err := row.Scan(&u.ID, &u.PublicID, &u.Username, &u.Email, &u.PasswordHash,
		&u.Level, &u.Experience, &u.Gold, &u.Version, &createdAt, &lastLogin)
	if err != nil {
		return nil, err
	}
	if createdAt.Valid {
		u.CreatedAt = createdAt.Time
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return &u, nil
}

// CreateUser registers a user at level 1 with the starter badge.
// The password is hashed with bcrypt before storage.
func (q *Queries) CreateUser(ctx context.Context, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username cannot be empty")
	}
	if password == "" {
		return nil, errors.New("password cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	publicID := uuid.NewString()
	now := time.Now()
	id, err := q.insertReturningID(ctx,
		`INSERT INTO users (public_id, username, email, password_hash, level, experience, gold, version, created_at)
		 VALUES (?, ?, ?, ?, 1, 0, 0, 1, ?)`,
		publicID, username, strings.TrimSpace(email), string(hash), now,
	)
	if err != nil {
		if q.dialect.IsDuplicateKeyError(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if _, err := q.AddBadge(ctx, id, StarterBadge); err != nil {
		return nil, err
	}

	return &User{
		ID:           id,
		PublicID:     publicID,
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: string(hash),
		Level:        1,
		Version:      1,
		CreatedAt:    now,
	}, nil
}

// ValidateLogin checks if the username and password are correct and stamps
// the login time and address.
func (q *Queries) ValidateLogin(ctx context.Context, username, password, ipAddress string) (*User, error) {
	user, err := q.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	if _, err := q.exec(ctx, `UPDATE users SET last_login = ?, last_ip = ? WHERE id = ?`, now, ipAddress, user.ID); err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}
	user.LastLogin = &now

	return user, nil
}

// GetUserByUsername retrieves a user by username (case-insensitive).
func (q *Queries) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	user, err := scanUser(q.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateUserStats writes level, experience and gold if the row still has the
// version the caller read. On success u.Version is advanced.
func (q *Queries) UpdateUserStats(ctx context.Context, u *User) error {
	result, err := q.exec(ctx,
		`UPDATE users SET level = ?, experience = ?, gold = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		u.Level, u.Experience, u.Gold, u.ID, u.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update user stats: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update user stats: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	u.Version++
	return nil
}

// AddBadge grants a badge. It reports false when the user already had it.
func (q *Queries) AddBadge(ctx context.Context, userID int64, badge string) (bool, error) {
	result, err := q.exec(ctx,
		`INSERT INTO user_badges (user_id, badge, earned_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, badge) DO NOTHING`,
		userID, badge, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to add badge: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to add badge: %w", err)
	}
	return n > 0, nil
}

// ListBadges returns a user's badges in the order they were earned.
func (q *Queries) ListBadges(ctx context.Context, userID int64) ([]string, error) {
	rows, err := q.query(ctx,
		`SELECT badge FROM user_badges WHERE user_id = ? ORDER BY earned_at ASC, badge ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	defer rows.Close()

	badges := []string{}
	for rows.Next() {
		var badge string
		if err := rows.Scan(&badge); err != nil {
			return nil, err
		}
		badges = append(badges, badge)
	}
	return badges, rows.Err()
}
