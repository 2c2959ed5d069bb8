package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unbreakk1/Questify/internal/apperrors"
	"github.com/unbreakk1/Questify/internal/boss"
	"github.com/unbreakk1/Questify/internal/database"
	"github.com/unbreakk1/Questify/internal/logger"
)

// BossView is a boss instance as clients see it: the definition fields plus
// the fight state.
type BossView struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	MaxHealth        int          `json:"maxHealth"`
	CurrentHealth    int          `json:"currentHealth"`
	LevelRequirement int          `json:"levelRequirement"`
	Rare             bool         `json:"rare"`
	Defeated         bool         `json:"defeated"`
	Rewards          boss.Rewards `json:"rewards"`
}

func newBossView(inst *boss.Instance, maxHealth int) *BossView {
	return &BossView{
		ID:               inst.Definition.ID,
		Name:             inst.Definition.Name,
		MaxHealth:        maxHealth,
		CurrentHealth:    inst.CurrentHealth,
		LevelRequirement: inst.Definition.LevelRequirement,
		Rare:             inst.Definition.Rare,
		Defeated:         inst.Defeated,
		Rewards:          inst.Definition.Rewards,
	}
}

// AttackResult is the outcome of one attack. Rewards is set only on the
// defeating hit.
type AttackResult struct {
	Boss    *BossView    `json:"boss"`
	Damage  int          `json:"damage"`
	Rewards *RewardDelta `json:"rewards,omitempty"`
	// TimesDefeated counts this user's defeats of the boss, including this
	// one. Zero unless the attack defeated it.
	TimesDefeated int `json:"timesDefeated,omitempty"`
}

// DefeatRecord is one entry of a user's defeat history.
type DefeatRecord struct {
	BossID     string    `json:"bossId"`
	BossName   string    `json:"bossName"`
	Gold       int       `json:"gold"`
	XP         int       `json:"xp"`
	Badge      string    `json:"badge"`
	LevelAfter int       `json:"levelAfter"`
	DefeatedAt time.Time `json:"defeatedAt"`
}

// ActiveBoss returns the user's current fight, or NO_ACTIVE_BOSS when the slot
// is empty.
func (e *Engine) ActiveBoss(ctx context.Context, username string) (*BossView, error) {
	user, err := e.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}
	session, err := e.db.Queries().GetBossSession(ctx, user.ID)
	if err != nil {
		return nil, translate(err)
	}
	inst, err := e.instanceFor(session)
	if err != nil {
		return nil, err
	}
	return newBossView(inst, session.MaxHealth), nil
}

// SelectionCandidates returns the bosses the user may pick next and remembers
// them as the user's current offer.
func (e *Engine) SelectionCandidates(ctx context.Context, username string) ([]boss.Definition, error) {
	var candidates []boss.Definition
	err := e.mutate(ctx, username, func(tx *userTx) error {
		candidates = e.catalog.Candidates(tx.user.Level, e.opts.SelectionSize)
		ids := make([]string, len(candidates))
		for i, def := range candidates {
			ids[i] = def.ID
		}
		return tx.q.ReplaceBossOffers(ctx, tx.user.ID, ids)
	})
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// SelectBoss installs a fresh instance of bossID as the user's active boss.
// The id must be part of the most recent offer, or of the current candidates
// when the user never fetched one, and the slot must be empty.
func (e *Engine) SelectBoss(ctx context.Context, username, bossID string) (*BossView, error) {
	var view *BossView
	err := e.mutate(ctx, username, func(tx *userTx) error {
		_, err := tx.q.GetBossSession(ctx, tx.user.ID)
		if err == nil {
			return apperrors.New(apperrors.CodeInvalidSelection, "a boss is already active")
		}
		if !errors.Is(err, database.ErrNoSession) {
			return err
		}

		offered, err := tx.q.GetBossOffers(ctx, tx.user.ID)
		if err != nil {
			return err
		}
		if len(offered) == 0 {
			for _, def := range e.catalog.Candidates(tx.user.Level, e.opts.SelectionSize) {
				offered = append(offered, def.ID)
			}
		}
		if !containsID(offered, bossID) {
			return apperrors.WithMetadata(apperrors.CodeInvalidSelection,
				"boss is not among the offered candidates", map[string]string{"bossId": bossID})
		}

		def, ok := e.catalog.Get(bossID)
		if !ok {
			return apperrors.WithMetadata(apperrors.CodeInvalidSelection,
				"unknown boss", map[string]string{"bossId": bossID})
		}

		inst := boss.NewInstance(def)
		err = tx.q.CreateBossSession(ctx, &database.BossSession{
			UserID:        tx.user.ID,
			BossID:        def.ID,
			CurrentHealth: inst.CurrentHealth,
			MaxHealth:     def.MaxHealth,
		})
		if errors.Is(err, database.ErrSessionExists) {
			return apperrors.New(apperrors.CodeInvalidSelection, "a boss is already active")
		}
		if err != nil {
			return err
		}
		view = newBossView(inst, def.MaxHealth)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Boss selected", "user", username, "boss", bossID)
	return view, nil
}

// Attack deals damage to the user's active boss. The defeating hit also
// applies the defeat reward, records the defeat and clears the slot in the
// same transaction.
func (e *Engine) Attack(ctx context.Context, username string, damage int) (*AttackResult, error) {
	if damage < 0 {
		return nil, apperrors.New(apperrors.CodeInvalidDamage, "damage cannot be negative")
	}
	var result *AttackResult
	err := e.mutate(ctx, username, func(tx *userTx) error {
		var err error
		result, err = e.attack(ctx, tx, damage)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// attack resolves one hit inside tx.
func (e *Engine) attack(ctx context.Context, tx *userTx, damage int) (*AttackResult, error) {
	session, err := tx.q.GetBossSession(ctx, tx.user.ID)
	if err != nil {
		return nil, err
	}
	inst, err := e.instanceFor(session)
	if err != nil {
		return nil, err
	}

	defeated := inst.ApplyDamage(damage)
	result := &AttackResult{
		Boss:   newBossView(inst, session.MaxHealth),
		Damage: damage,
	}

	if !defeated {
		if damage == 0 {
			return result, nil
		}
		session.CurrentHealth = inst.CurrentHealth
		if err := tx.q.UpdateBossSessionHealth(ctx, session); err != nil {
			return nil, err
		}
		return result, nil
	}

	reward, err := e.defeatReward(ctx, tx, inst.Definition)
	if err != nil {
		return nil, err
	}
	if err := tx.q.RecordBossDefeat(ctx, &database.BossDefeat{
		UserID:     tx.user.ID,
		BossID:     inst.Definition.ID,
		Gold:       reward.Gold,
		XP:         reward.XP,
		Badge:      reward.Badge,
		LevelAfter: tx.user.Level,
	}); err != nil {
		return nil, err
	}
	times, err := tx.q.CountBossDefeats(ctx, tx.user.ID, inst.Definition.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.q.DeleteBossSession(ctx, tx.user.ID, session.Version); err != nil {
		return nil, err
	}
	result.Rewards = reward
	result.TimesDefeated = times

	username, level := tx.user.Username, tx.user.Level
	tx.onCommit(func() {
		logger.Audit(ctx, "Boss defeated", "user", username, "boss", inst.Definition.ID,
			"level", level, "times", times, "badge_added", reward.BadgeAdded)
	})
	return result, nil
}

// DefeatHistory returns the user's most recent defeats, newest first.
func (e *Engine) DefeatHistory(ctx context.Context, username string, limit int) ([]DefeatRecord, error) {
	user, err := e.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}
	defeats, err := e.db.Queries().ListBossDefeats(ctx, user.ID, limit)
	if err != nil {
		return nil, translate(err)
	}
	records := make([]DefeatRecord, len(defeats))
	for i, d := range defeats {
		name := d.BossID
		if def, ok := e.catalog.Get(d.BossID); ok {
			name = def.Name
		}
		records[i] = DefeatRecord{
			BossID:     d.BossID,
			BossName:   name,
			Gold:       d.Gold,
			XP:         d.XP,
			Badge:      d.Badge,
			LevelAfter: d.LevelAfter,
			DefeatedAt: d.DefeatedAt,
		}
	}
	return records, nil
}

// instanceFor rebuilds the in-memory instance for a stored session.
func (e *Engine) instanceFor(session *database.BossSession) (*boss.Instance, error) {
	def, ok := e.catalog.Get(session.BossID)
	if !ok {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "active boss missing from catalog",
			fmt.Errorf("boss %s", session.BossID))
	}
	return &boss.Instance{
		Definition:    def,
		CurrentHealth: session.CurrentHealth,
		Defeated:      session.CurrentHealth == 0,
	}, nil
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
