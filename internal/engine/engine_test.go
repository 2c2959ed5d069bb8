package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/unbreakk1/Questify/internal/apperrors"
	"github.com/unbreakk1/Questify/internal/boss"
	"github.com/unbreakk1/Questify/internal/config"
	"github.com/unbreakk1/Questify/internal/database"
)

func TestMain(m *testing.M) {
	database.BcryptCost = bcrypt.MinCost
	os.Exit(m.Run())
}

// recorder collects published stat updates.
type recorder struct {
	mu      sync.Mutex
	updates []UserStatsUpdate
}

func (r *recorder) PublishUserStats(u UserStatsUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) all() []UserStatsUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]UserStatsUpdate, len(r.updates))
	copy(out, r.updates)
	return out
}

func testCatalog(t *testing.T) *boss.Catalog {
	t.Helper()
	catalog, err := boss.NewCatalog([]boss.Definition{
		{ID: "slime", Name: "Procrastination Slime", MaxHealth: 100, LevelRequirement: 1,
			Rewards: boss.Rewards{Gold: 50, XP: 30, Badge: "Slime Slayer"}},
		{ID: "goblin", Name: "Distraction Goblin", MaxHealth: 50, LevelRequirement: 3,
			Rewards: boss.Rewards{Gold: 20, XP: 250, Badge: "Goblin Bane"}},
		{ID: "golem", Name: "Backlog Golem", MaxHealth: 300, LevelRequirement: 5,
			Rewards: boss.Rewards{Gold: 100, XP: 200, Badge: "Golem Crusher"}},
		{ID: "dragon", Name: "Chaos Dragon", MaxHealth: 1000, LevelRequirement: 10, Rare: true,
			Rewards: boss.Rewards{Gold: 500, XP: 1000, Badge: "Dragon Tamer"}},
	})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return catalog
}

func testOptions() Options {
	return Options{
		SelectionSize:      4,
		MaxConflictRetries: 3,
		AttackOnCompletion: true,
		TaskDamage:         10,
		HabitDamage:        5,
		Rewards: config.RewardsConfig{
			Task: config.Grant{Gold: 10, XP: 20},
			Habit: config.HabitRewards{
				Easy:   config.Grant{Gold: 5, XP: 10},
				Medium: config.Grant{Gold: 10, XP: 20},
				Hard:   config.Grant{Gold: 20, XP: 40},
			},
		},
	}
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	db     *database.Database
	engine *Engine
	notes  *recorder
	clock  *testClock
}

func setup(t *testing.T) *fixture {
	t.Helper()
	return setupWithOptions(t, testOptions())
}

func setupWithOptions(t *testing.T, opts Options) *fixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	notes := &recorder{}
	clock := &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)}
	e := New(db, testCatalog(t), notes, opts)
	e.now = clock.Now

	if err := e.SyncCatalog(context.Background()); err != nil {
		t.Fatalf("SyncCatalog: %v", err)
	}
	return &fixture{db: db, engine: e, notes: notes, clock: clock}
}

func (f *fixture) createUser(t *testing.T, username string) *database.User {
	t.Helper()
	var user *database.User
	err := f.db.WithTx(context.Background(), func(q *database.Queries) error {
		var err error
		user, err = q.CreateUser(context.Background(), username, "", "Password123")
		return err
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return user
}

func (f *fixture) setStats(t *testing.T, username string, level, xp, gold int) {
	t.Helper()
	ctx := context.Background()
	q := f.db.Queries()
	user, err := q.GetUserByUsername(ctx, username)
	if err != nil {
		t.Fatal(err)
	}
	user.Level, user.Experience, user.Gold = level, xp, gold
	if err := q.UpdateUserStats(ctx, user); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) user(t *testing.T, username string) *database.User {
	t.Helper()
	user, err := f.db.Queries().GetUserByUsername(context.Background(), username)
	if err != nil {
		t.Fatal(err)
	}
	return user
}

func wantCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := apperrors.CodeOf(err); got != code {
		t.Fatalf("expected %s, got %s (%v)", code, got, err)
	}
}

func TestSyncCatalog_MirrorsDefinitions(t *testing.T) {
	f := setup(t)
	records, err := f.db.Queries().ListBosses(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 stored bosses, got %d", len(records))
	}
	if records[0].ID != "slime" || records[3].ID != "dragon" || !records[3].Rare {
		t.Errorf("unexpected stored catalog: %+v", records)
	}

	// Syncing twice is harmless
	if err := f.engine.SyncCatalog(context.Background()); err != nil {
		t.Fatalf("second SyncCatalog: %v", err)
	}
}

func TestSyncCatalog_ReportsRetiredBosses(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	retired, err := f.engine.retiredBosses(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(retired) != 0 {
		t.Errorf("fresh sync should have no retired bosses, got %v", retired)
	}

	err = f.db.Queries().UpsertBoss(ctx, database.BossRecord{
		ID: "hydra", Name: "Inbox Hydra", MaxHealth: 80, LevelRequirement: 2,
		RewardGold: 5, RewardXP: 5, RewardBadge: "Hydra Hunter",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.engine.SyncCatalog(ctx); err != nil {
		t.Fatalf("SyncCatalog with a retired row: %v", err)
	}
	retired, err = f.engine.retiredBosses(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(retired) != 1 || retired[0] != "hydra" {
		t.Errorf("retired = %v, want [hydra]", retired)
	}
}

func TestNew_Defaults(t *testing.T) {
	e := New(nil, testCatalog(t), nil, Options{MaxConflictRetries: -2})
	if e.opts.SelectionSize != 4 {
		t.Errorf("SelectionSize = %d, want 4", e.opts.SelectionSize)
	}
	if e.opts.MaxConflictRetries != 0 {
		t.Errorf("MaxConflictRetries = %d, want 0", e.opts.MaxConflictRetries)
	}
	if _, ok := e.notifier.(nopNotifier); !ok {
		t.Error("nil notifier should be replaced with a no-op")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	opts := OptionsFromConfig(cfg)
	if opts.SelectionSize != 4 || opts.MaxConflictRetries != 3 || !opts.AttackOnCompletion {
		t.Errorf("unexpected engine options: %+v", opts)
	}
	if opts.TaskDamage != 10 || opts.HabitDamage != 5 {
		t.Errorf("unexpected damage: task=%d habit=%d", opts.TaskDamage, opts.HabitDamage)
	}
}

func TestMutate_RetriesConflicts(t *testing.T) {
	f := setup(t)
	f.createUser(t, "alice")
	ctx := context.Background()

	attempts := 0
	err := f.engine.mutate(ctx, "alice", func(tx *userTx) error {
		attempts++
		if attempts < 3 {
			return database.ErrConflict
		}
		return nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestMutate_GivesUpAfterRetries(t *testing.T) {
	f := setup(t)
	f.createUser(t, "alice")

	attempts := 0
	err := f.engine.mutate(context.Background(), "alice", func(tx *userTx) error {
		attempts++
		return database.ErrConflict
	})
	wantCode(t, err, apperrors.CodeConflict)
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4 (1 + 3 retries)", attempts)
	}
}

func TestMutate_RollsBackConflictedAttempt(t *testing.T) {
	f := setup(t)
	f.createUser(t, "alice")
	ctx := context.Background()

	attempts := 0
	err := f.engine.mutate(ctx, "alice", func(tx *userTx) error {
		attempts++
		if _, err := f.engine.credit(ctx, tx, 10, 0); err != nil {
			return err
		}
		if attempts == 1 {
			return database.ErrConflict
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if gold := f.user(t, "alice").Gold; gold != 10 {
		t.Errorf("gold = %d, want 10 (first attempt rolled back)", gold)
	}
	if n := len(f.notes.all()); n != 1 {
		t.Errorf("expected exactly 1 notification, got %d", n)
	}
}

func TestMutate_UnknownUser(t *testing.T) {
	f := setup(t)
	err := f.engine.mutate(context.Background(), "ghost", func(tx *userTx) error {
		t.Error("fn should not run for an unknown user")
		return nil
	})
	wantCode(t, err, apperrors.CodeUserNotFound)
}

func TestMutate_CancelledContext(t *testing.T) {
	f := setup(t)
	f.createUser(t, "alice")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.engine.mutate(ctx, "alice", func(tx *userTx) error { return nil })
	wantCode(t, err, apperrors.CodeInternal)
}

func TestUserLocks(t *testing.T) {
	l := newUserLocks()

	unlock := l.lock("Alice")
	if l.size() != 1 {
		t.Fatalf("size = %d, want 1", l.size())
	}

	acquired := make(chan struct{})
	go func() {
		u := l.lock("alice")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("differently-cased username should share the lock")
	case <-time.After(50 * time.Millisecond):
	}

	// Another user is independent
	other := l.lock("bob")
	other()

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}

	// Entries are dropped once released
	deadline := time.Now().Add(time.Second)
	for l.size() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if l.size() != 0 {
		t.Errorf("size = %d after all unlocks, want 0", l.size())
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		err  error
		want apperrors.Code
	}{
		{database.ErrUserNotFound, apperrors.CodeUserNotFound},
		{database.ErrNoSession, apperrors.CodeNoActiveBoss},
		{database.ErrTaskNotFound, apperrors.CodeTaskNotFound},
		{database.ErrHabitNotFound, apperrors.CodeHabitNotFound},
		{database.ErrUserExists, apperrors.CodeUsernameTaken},
		{database.ErrInvalidCredentials, apperrors.CodeInvalidCredentials},
		{apperrors.New(apperrors.CodeInvalidDamage, "x"), apperrors.CodeInvalidDamage},
		{os.ErrClosed, apperrors.CodeInternal},
	}
	for _, tt := range tests {
		if got := apperrors.CodeOf(translate(tt.err)); got != tt.want {
			t.Errorf("translate(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
	if translate(nil) != nil {
		t.Error("translate(nil) should be nil")
	}
}
