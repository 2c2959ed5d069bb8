package engine

import (
	"context"
	"errors"

	"github.com/unbreakk1/Questify/internal/apperrors"
	"github.com/unbreakk1/Questify/internal/boss"
	"github.com/unbreakk1/Questify/internal/config"
	"github.com/unbreakk1/Questify/internal/database"
	"github.com/unbreakk1/Questify/internal/leveling"
)

// RewardDelta describes one credit to a user's stats and the totals after it.
type RewardDelta struct {
	Gold             int    `json:"gold"`
	XP               int    `json:"xp"`
	Badge            string `json:"badge,omitempty"`
	BadgeAdded       bool   `json:"badgeAdded"`
	HasCausedLevelUp bool   `json:"hasCausedLevelUp"`
	LevelsGained     int    `json:"levelsGained"`
	Level            int    `json:"level"`
	Experience       int    `json:"experience"`
	TotalGold        int    `json:"totalGold"`
}

// Profile is the full view of a user's progression.
type Profile struct {
	Username       string    `json:"username"`
	PublicID       string    `json:"id"`
	Email          string    `json:"email,omitempty"`
	Level          int       `json:"level"`
	Experience     int       `json:"experience"`
	XPForNextLevel int       `json:"xpForNextLevel"`
	Gold           int       `json:"gold"`
	Badges         []string  `json:"badges"`
	ActiveBossID   string    `json:"activeBossId,omitempty"`
	ActiveBoss     *BossView `json:"activeBoss,omitempty"`
}

// ApplyCompletionReward credits a completion grant to the user and evaluates
// level-ups. HTTP callers reach the same ledger path through CompleteTask and
// CompleteHabit, which share credit with this method inside their own tx.
func (e *Engine) ApplyCompletionReward(ctx context.Context, username string, grant config.Grant) (*RewardDelta, error) {
	if grant.Gold < 0 || grant.XP < 0 {
		return nil, apperrors.New(apperrors.CodeInvalidDelta, "reward deltas cannot be negative")
	}
	var delta *RewardDelta
	err := e.mutate(ctx, username, func(tx *userTx) error {
		var err error
		delta, err = e.credit(ctx, tx, grant.Gold, grant.XP)
		return err
	})
	if err != nil {
		return nil, err
	}
	return delta, nil
}

// ApplyDefeatReward credits a boss's fixed rewards. Gold and experience
// always accrue; the badge is added only if the user lacks it. HTTP callers
// reach it through Attack, whose defeating hit runs defeatReward in the same
// tx as the health update.
func (e *Engine) ApplyDefeatReward(ctx context.Context, username, bossID string) (*RewardDelta, error) {
	def, ok := e.catalog.Get(bossID)
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeInvalidSelection, "unknown boss",
			map[string]string{"bossId": bossID})
	}
	var delta *RewardDelta
	err := e.mutate(ctx, username, func(tx *userTx) error {
		var err error
		delta, err = e.defeatReward(ctx, tx, def)
		return err
	})
	if err != nil {
		return nil, err
	}
	return delta, nil
}

// credit adds gold and experience to tx.user, cascades level-ups and writes
// the row under its version check.
func (e *Engine) credit(ctx context.Context, tx *userTx, gold, xp int) (*RewardDelta, error) {
	u := tx.user
	info := leveling.Apply(u.Level, u.Experience, xp)
	u.Level = info.NewLevel
	u.Experience = info.Experience
	u.Gold += gold

	if err := tx.q.UpdateUserStats(ctx, u); err != nil {
		return nil, err
	}
	tx.statsChanged = true

	return &RewardDelta{
		Gold:             gold,
		XP:               xp,
		HasCausedLevelUp: info.LeveledUp(),
		LevelsGained:     info.LevelsGained(),
		Level:            u.Level,
		Experience:       u.Experience,
		TotalGold:        u.Gold,
	}, nil
}

func (e *Engine) defeatReward(ctx context.Context, tx *userTx, def boss.Definition) (*RewardDelta, error) {
	delta, err := e.credit(ctx, tx, def.Rewards.Gold, def.Rewards.XP)
	if err != nil {
		return nil, err
	}
	added, err := tx.q.AddBadge(ctx, tx.user.ID, def.Rewards.Badge)
	if err != nil {
		return nil, err
	}
	delta.Badge = def.Rewards.Badge
	delta.BadgeAdded = added
	return delta, nil
}

// Profile returns the user's stats, badges and active boss.
func (e *Engine) Profile(ctx context.Context, username string) (*Profile, error) {
	user, err := e.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}
	q := e.db.Queries()
	badges, err := q.ListBadges(ctx, user.ID)
	if err != nil {
		return nil, translate(err)
	}

	p := &Profile{
		Username:       user.Username,
		PublicID:       user.PublicID,
		Email:          user.Email,
		Level:          user.Level,
		Experience:     user.Experience,
		XPForNextLevel: leveling.XPToNextLevel(user.Level),
		Gold:           user.Gold,
		Badges:         badges,
	}

	session, err := q.GetBossSession(ctx, user.ID)
	switch {
	case err == nil:
		inst, err := e.instanceFor(session)
		if err != nil {
			return nil, err
		}
		p.ActiveBossID = session.BossID
		p.ActiveBoss = newBossView(inst, session.MaxHealth)
	case errors.Is(err, database.ErrNoSession):
	default:
		return nil, translate(err)
	}
	return p, nil
}
