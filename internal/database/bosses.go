package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoSession is returned when the user has no active boss session.
var ErrNoSession = errors.New("no active boss session")

// ErrSessionExists is returned when creating a session for a user who already has one.
var ErrSessionExists = errors.New("boss session already exists")

// BossRecord is the stored mirror of a catalog definition.
type BossRecord struct {
	ID               string
	Name             string
	MaxHealth        int
	LevelRequirement int
	Rare             bool
	RewardGold       int
	RewardXP         int
	RewardBadge      string
}

// BossSession is a user's active fight.
type BossSession struct {
	UserID        int64
	BossID        string
	CurrentHealth int
	MaxHealth     int
	Version       int64
	StartedAt     time.Time
	UpdatedAt     time.Time
}

// BossDefeat is one row of a user's defeat history.
type BossDefeat struct {
	ID         int64
	UserID     int64
	BossID     string
	Gold       int
	XP         int
	Badge      string
	LevelAfter int
	DefeatedAt time.Time
}

// UpsertBoss inserts or refreshes a catalog row.
func (q *Queries) UpsertBoss(ctx context.Context, b BossRecord) error {
	rare := 0
	if b.Rare {
		rare = 1
	}
	_, err := q.exec(ctx,
		`INSERT INTO bosses (id, name, max_health, level_requirement, rare, reward_gold, reward_xp, reward_badge)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			max_health = excluded.max_health,
			level_requirement = excluded.level_requirement,
			rare = excluded.rare,
			reward_gold = excluded.reward_gold,
			reward_xp = excluded.reward_xp,
			reward_badge = excluded.reward_badge`,
		b.ID, b.Name, b.MaxHealth, b.LevelRequirement, rare, b.RewardGold, b.RewardXP, b.RewardBadge,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert boss %s: %w", b.ID, err)
	}
	return nil
}

// ListBosses returns every stored catalog row.
func (q *Queries) ListBosses(ctx context.Context) ([]BossRecord, error) {
	rows, err := q.query(ctx,
		`SELECT id, name, max_health, level_requirement, rare, reward_gold, reward_xp, reward_badge
		 FROM bosses ORDER BY level_requirement ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bosses: %w", err)
	}
	defer rows.Close()

	var bosses []BossRecord
	for rows.Next() {
		var b BossRecord
		var rare int
		if err := rows.Scan(&b.ID, &b.Name, &b.MaxHealth, &b.LevelRequirement, &rare, &b.RewardGold, &b.RewardXP, &b.RewardBadge); err != nil {
			return nil, err
		}
		b.Rare = rare != 0
		bosses = append(bosses, b)
	}
	return bosses, rows.Err()
}

// GetBossSession returns the user's active session or ErrNoSession.
func (q *Queries) GetBossSession(ctx context.Context, userID int64) (*BossSession, error) {
	var s BossSession
	var startedAt, updatedAt sql.NullTime
	err := q.queryRow(ctx,
		`SELECT user_id, boss_id, current_health, max_health, version, started_at, updated_at
		 FROM boss_sessions WHERE user_id = ?`, userID,
	).Scan(&s.UserID, &s.BossID, &s.CurrentHealth, &s.MaxHealth, &s.Version, &startedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to get boss session: %w", err)
	}
	s.StartedAt = startedAt.Time
	s.UpdatedAt = updatedAt.Time
	return &s, nil
}

// CreateBossSession starts a fight. Fails with ErrSessionExists if the user
// already holds one.
func (q *Queries) CreateBossSession(ctx context.Context, s *BossSession) error {
	now := time.Now()
	_, err := q.exec(ctx,
		`INSERT INTO boss_sessions (user_id, boss_id, current_health, max_health, version, started_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)`,
		s.UserID, s.BossID, s.CurrentHealth, s.MaxHealth, now, now,
	)
	if err != nil {
		if q.dialect.IsDuplicateKeyError(err) {
			return ErrSessionExists
		}
		return fmt.Errorf("failed to create boss session: %w", err)
	}
	s.Version = 1
	s.StartedAt = now
	s.UpdatedAt = now
	return nil
}

// UpdateBossSessionHealth writes the new health under an optimistic version check.
func (q *Queries) UpdateBossSessionHealth(ctx context.Context, s *BossSession) error {
	now := time.Now()
	result, err := q.exec(ctx,
		`UPDATE boss_sessions SET current_health = ?, version = version + 1, updated_at = ?
		 WHERE user_id = ? AND version = ?`,
		s.CurrentHealth, now, s.UserID, s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update boss session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update boss session: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	s.Version++
	s.UpdatedAt = now
	return nil
}

// DeleteBossSession clears the user's slot under an optimistic version check.
func (q *Queries) DeleteBossSession(ctx context.Context, userID, version int64) error {
	result, err := q.exec(ctx,
		`DELETE FROM boss_sessions WHERE user_id = ? AND version = ?`, userID, version)
	if err != nil {
		return fmt.Errorf("failed to delete boss session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete boss session: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// ReplaceBossOffers stores the ids most recently offered to the user.
func (q *Queries) ReplaceBossOffers(ctx context.Context, userID int64, bossIDs []string) error {
	if _, err := q.exec(ctx, `DELETE FROM boss_offers WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear boss offers: %w", err)
	}
	for i, id := range bossIDs {
		if _, err := q.exec(ctx,
			`INSERT INTO boss_offers (user_id, boss_id, position) VALUES (?, ?, ?)`,
			userID, id, i,
		); err != nil {
			return fmt.Errorf("failed to store boss offer: %w", err)
		}
	}
	return nil
}

// GetBossOffers returns the ids most recently offered to the user, in order.
// An empty slice means no selection was ever fetched.
func (q *Queries) GetBossOffers(ctx context.Context, userID int64) ([]string, error) {
	rows, err := q.query(ctx,
		`SELECT boss_id FROM boss_offers WHERE user_id = ? ORDER BY position ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get boss offers: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordBossDefeat appends to the user's defeat history.
func (q *Queries) RecordBossDefeat(ctx context.Context, d *BossDefeat) error {
	if d.DefeatedAt.IsZero() {
		d.DefeatedAt = time.Now()
	}
	id, err := q.insertReturningID(ctx,
		`INSERT INTO boss_defeats (user_id, boss_id, gold, xp, badge, level_after, defeated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.UserID, d.BossID, d.Gold, d.XP, d.Badge, d.LevelAfter, d.DefeatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record boss defeat: %w", err)
	}
	d.ID = id
	return nil
}

// ListBossDefeats returns a user's defeats, newest first.
func (q *Queries) ListBossDefeats(ctx context.Context, userID int64, limit int) ([]BossDefeat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.query(ctx,
		`SELECT id, user_id, boss_id, gold, xp, badge, level_after, defeated_at
		 FROM boss_defeats WHERE user_id = ?
		 ORDER BY defeated_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list boss defeats: %w", err)
	}
	defer rows.Close()

	defeats := []BossDefeat{}
	for rows.Next() {
		var d BossDefeat
		if err := rows.Scan(&d.ID, &d.UserID, &d.BossID, &d.Gold, &d.XP, &d.Badge, &d.LevelAfter, &d.DefeatedAt); err != nil {
			return nil, err
		}
		defeats = append(defeats, d)
	}
	return defeats, rows.Err()
}

// CountBossDefeats returns how many times the user has defeated the given boss.
func (q *Queries) CountBossDefeats(ctx context.Context, userID int64, bossID string) (int, error) {
	var count int
	err := q.queryRow(ctx,
		`SELECT COUNT(*) FROM boss_defeats WHERE user_id = ? AND boss_id = ?`, userID, bossID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count boss defeats: %w", err)
	}
	return count, nil
}
