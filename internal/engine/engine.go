// Package engine runs the boss combat and reward rules for each user: the
// active boss slot, damage resolution, the reward ledger and the task and
// habit completions that feed them.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/unbreakk1/Questify/internal/apperrors"
	"github.com/unbreakk1/Questify/internal/boss"
	"github.com/unbreakk1/Questify/internal/config"
	"github.com/unbreakk1/Questify/internal/database"
	"github.com/unbreakk1/Questify/internal/logger"
	"github.com/unbreakk1/Questify/internal/titlefilter"
)

// UserStatsUpdate is pushed to a user's live subscribers after their gold or
// level changes. Experience is not part of the payload.
type UserStatsUpdate struct {
	UserID string `json:"userId"`
	Gold   int    `json:"gold"`
	Level  int    `json:"level"`
}

// Notifier delivers stat updates. Implementations must not block.
type Notifier interface {
	PublishUserStats(update UserStatsUpdate)
}

type nopNotifier struct{}

func (nopNotifier) PublishUserStats(UserStatsUpdate) {}

// Options configures an Engine.
type Options struct {
	SelectionSize      int
	MaxConflictRetries int
	AttackOnCompletion bool
	TaskDamage         int
	HabitDamage        int
	Rewards            config.RewardsConfig

	// Titles screens task and habit titles. Nil disables screening.
	Titles *titlefilter.TitleFilter
}

// OptionsFromConfig builds engine options from the server configuration.
func OptionsFromConfig(cfg *config.ServerConfig) Options {
	return Options{
		SelectionSize:      cfg.Engine.SelectionSize,
		MaxConflictRetries: cfg.Engine.MaxConflictRetries,
		AttackOnCompletion: cfg.Engine.AttackOnCompletion,
		TaskDamage:         cfg.Combat.TaskDamage,
		HabitDamage:        cfg.Combat.HabitDamage,
		Rewards:            cfg.Rewards,
	}
}

// Engine serializes every mutation per user and runs each one in a single
// transaction.
type Engine struct {
	db       *database.Database
	catalog  *boss.Catalog
	notifier Notifier
	opts     Options
	locks    *userLocks
	now      func() time.Time
}

// New creates an engine over the given store and catalog.
func New(db *database.Database, catalog *boss.Catalog, notifier Notifier, opts Options) *Engine {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if opts.SelectionSize <= 0 {
		opts.SelectionSize = 4
	}
	if opts.MaxConflictRetries < 0 {
		opts.MaxConflictRetries = 0
	}
	return &Engine{
		db:       db,
		catalog:  catalog,
		notifier: notifier,
		opts:     opts,
		locks:    newUserLocks(),
		now:      time.Now,
	}
}

// Catalog returns the boss catalog the engine serves.
func (e *Engine) Catalog() *boss.Catalog {
	return e.catalog
}

// SyncCatalog mirrors every catalog definition into the bosses table so
// sessions can reference them.
func (e *Engine) SyncCatalog(ctx context.Context) error {
	err := e.db.WithTx(ctx, func(q *database.Queries) error {
		for _, def := range e.catalog.All() {
			if err := q.UpsertBoss(ctx, database.BossRecord{
				ID:               def.ID,
				Name:             def.Name,
				MaxHealth:        def.MaxHealth,
				LevelRequirement: def.LevelRequirement,
				Rare:             def.Rare,
				RewardGold:       def.Rewards.Gold,
				RewardXP:         def.Rewards.XP,
				RewardBadge:      def.Rewards.Badge,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "Boss catalog synced", "bosses", e.catalog.Count())

	retired, err := e.retiredBosses(ctx)
	if err != nil {
		return err
	}
	if len(retired) > 0 {
		logger.WarningContext(ctx, "Stored bosses missing from catalog, existing sessions cannot continue",
			"bosses", retired)
	}
	return nil
}

// retiredBosses lists stored boss ids that the loaded catalog no longer
// defines. Their rows stay because defeat history references them.
func (e *Engine) retiredBosses(ctx context.Context) ([]string, error) {
	records, err := e.db.Queries().ListBosses(ctx)
	if err != nil {
		return nil, err
	}
	var retired []string
	for _, r := range records {
		if _, ok := e.catalog.Get(r.ID); !ok {
			retired = append(retired, r.ID)
		}
	}
	return retired, nil
}

// userTx is the state one mutation works on: the transaction's queries and
// the acting user as read inside it.
type userTx struct {
	q            *database.Queries
	user         *database.User
	levelBefore  int
	statsChanged bool
	afterCommit  []func()
}

// onCommit defers fn until the transaction has committed. Nothing runs for
// attempts that roll back.
func (tx *userTx) onCommit(fn func()) {
	tx.afterCommit = append(tx.afterCommit, fn)
}

// mutate runs fn for username under the user's lock, inside one transaction.
// A version conflict rolls everything back and the whole attempt is retried;
// after MaxConflictRetries retries CONFLICT is returned. Subscribers are
// notified only after a commit that changed gold or level.
func (e *Engine) mutate(ctx context.Context, username string, fn func(tx *userTx) error) error {
	unlock := e.locks.lock(username)
	defer unlock()

	var lastErr error
	for attempt := 0; attempt <= e.opts.MaxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return apperrors.Wrap(apperrors.CodeInternal, "request cancelled", err)
		}

		var tx *userTx
		err := e.db.WithTx(ctx, func(q *database.Queries) error {
			user, err := q.GetUserByUsername(ctx, username)
			if err != nil {
				return err
			}
			tx = &userTx{q: q, user: user, levelBefore: user.Level}
			return fn(tx)
		})
		if err == nil {
			for _, after := range tx.afterCommit {
				after()
			}
			if tx.user.Level > tx.levelBefore {
				logger.Audit(ctx, "Level up", "user", tx.user.Username,
					"from", tx.levelBefore, "to", tx.user.Level)
			}
			if tx.statsChanged {
				e.notifier.PublishUserStats(UserStatsUpdate{
					UserID: tx.user.Username,
					Gold:   tx.user.Gold,
					Level:  tx.user.Level,
				})
			}
			return nil
		}
		if !errors.Is(err, database.ErrConflict) {
			return translate(err)
		}
		lastErr = err
		logger.DebugContext(ctx, "Retrying after concurrent modification", "user", username, "attempt", attempt+1)
	}

	logger.WarningContext(ctx, "Giving up after repeated conflicts", "user", username, "retries", e.opts.MaxConflictRetries)
	return apperrors.Wrap(apperrors.CodeConflict, "the request conflicted with a concurrent update, try again", lastErr)
}

// loadUser reads a user outside any transaction.
func (e *Engine) loadUser(ctx context.Context, username string) (*database.User, error) {
	user, err := e.db.Queries().GetUserByUsername(ctx, username)
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}

// today is the server-local calendar date used for completion stamps.
func (e *Engine) today() string {
	return e.now().Format(database.DateLayout)
}

// translate maps store errors onto the domain taxonomy.
func translate(err error) error {
	var appErr *apperrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, database.ErrUserNotFound):
		return apperrors.New(apperrors.CodeUserNotFound, "user not found")
	case errors.Is(err, database.ErrNoSession):
		return apperrors.New(apperrors.CodeNoActiveBoss, "no active boss")
	case errors.Is(err, database.ErrTaskNotFound):
		return apperrors.New(apperrors.CodeTaskNotFound, "task not found")
	case errors.Is(err, database.ErrHabitNotFound):
		return apperrors.New(apperrors.CodeHabitNotFound, "habit not found")
	case errors.Is(err, database.ErrUserExists):
		return apperrors.New(apperrors.CodeUsernameTaken, "username already taken")
	case errors.Is(err, database.ErrInvalidCredentials):
		return apperrors.New(apperrors.CodeInvalidCredentials, "invalid username or password")
	default:
		return apperrors.Wrap(apperrors.CodeInternal, "internal error", err)
	}
}

// lockKey folds usernames so differently-cased logins share one lock.
func lockKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
