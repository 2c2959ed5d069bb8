// Package database provides SQLite and PostgreSQL persistence for users,
// boss sessions, rewards, tasks and habits.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrConflict is returned when an optimistic version check fails because a
// concurrent writer updated the row first.
var ErrConflict = errors.New("concurrent modification")

// Database wraps the SQL connection pool and the dialect used to talk to it.
type Database struct {
	db      *sql.DB
	dialect Dialect
	qb      *QueryBuilder
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*Database, error) {
	return OpenWithConfig(DefaultConfig(path))
}

// OpenWithConfig opens the database described by cfg and runs migrations.
func OpenWithConfig(cfg Config) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	dialect := NewDialect(DialectType(cfg.Driver))

	var dsn string
	switch dialect.(type) {
	case *PostgresDialect:
		dsn = cfg.Postgres.DSN()
	default:
		dir := filepath.Dir(cfg.SQLitePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = cfg.SQLitePath
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	switch dialect.(type) {
	case *PostgresDialect:
		if cfg.Postgres.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		}
		if cfg.Postgres.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		}
		if cfg.Postgres.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	default:
		// PRAGMAs are per connection and SQLite allows a single writer, so
		// every statement shares one connection.
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range dialect.InitStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run %q: %w", stmt, err)
		}
	}

	d := &Database{
		db:      db,
		dialect: dialect,
		qb:      NewQueryBuilder(dialect),
	}

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return d, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// DB returns the underlying sql.DB for advanced operations.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Dialect returns the active dialect.
func (d *Database) Dialect() Dialect {
	return d.dialect
}

// Queries returns a non-transactional query set bound to the pool.
func (d *Database) Queries() *Queries {
	return &Queries{q: d.db, qb: d.qb, dialect: d.dialect}
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (d *Database) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&Queries{q: tx, qb: d.qb, dialect: d.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds every read and write the service performs. A Queries value
// obtained from WithTx must not be used after the callback returns.
type Queries struct {
	q       querier
	qb      *QueryBuilder
	dialect Dialect
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.q.ExecContext(ctx, q.qb.Build(query), args...)
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.q.QueryContext(ctx, q.qb.Build(query), args...)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.q.QueryRowContext(ctx, q.qb.Build(query), args...)
}

// insertReturningID runs an INSERT and returns the generated id column.
func (q *Queries) insertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	if q.dialect.SupportsLastInsertID() {
		result, err := q.q.ExecContext(ctx, q.qb.Build(query), args...)
		if err != nil {
			return 0, err
		}
		return result.LastInsertId()
	}
	var id int64
	err := q.q.QueryRowContext(ctx, q.qb.BuildWithReturning(query, "id"), args...).Scan(&id)
	return id, err
}

// migrate creates the database schema if it doesn't exist.
func (d *Database) migrate() error {
	pk := d.dialect.AutoIncrementPrimaryKey()
	ci := d.dialect.CaseInsensitiveText()

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id ` + pk + `,
			public_id TEXT UNIQUE NOT NULL,
			username ` + ci + ` UNIQUE NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			level INTEGER NOT NULL DEFAULT 1,
			experience INTEGER NOT NULL DEFAULT 0,
			gold INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_login TIMESTAMP,
			last_ip TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS user_badges (
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			badge TEXT NOT NULL,
			earned_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, badge)
		)`,

		// Mirror of the YAML catalog
		`CREATE TABLE IF NOT EXISTS bosses (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			max_health INTEGER NOT NULL,
			level_requirement INTEGER NOT NULL,
			rare INTEGER NOT NULL DEFAULT 0,
			reward_gold INTEGER NOT NULL DEFAULT 0,
			reward_xp INTEGER NOT NULL DEFAULT 0,
			reward_badge TEXT NOT NULL
		)`,

		// One row per user with an active fight
		`CREATE TABLE IF NOT EXISTS boss_sessions (
			user_id INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			boss_id TEXT NOT NULL REFERENCES bosses(id),
			current_health INTEGER NOT NULL,
			max_health INTEGER NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// Most recent selection offered to each user
		`CREATE TABLE IF NOT EXISTS boss_offers (
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			boss_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (user_id, boss_id)
		)`,

		`CREATE TABLE IF NOT EXISTS boss_defeats (
			id ` + pk + `,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			boss_id TEXT NOT NULL,
			gold INTEGER NOT NULL,
			xp INTEGER NOT NULL,
			badge TEXT NOT NULL,
			level_after INTEGER NOT NULL,
			defeated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			due_date TEXT NOT NULL DEFAULT '',
			last_completed_date TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS habits (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			frequency TEXT NOT NULL,
			difficulty TEXT NOT NULL,
			streak INTEGER NOT NULL DEFAULT 0,
			last_completed_date TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_boss_defeats_user_id ON boss_defeats(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_habits_user_id ON habits(user_id)`,
	}

	// Columns added after the first release; errors mean the column already exists
	safeMigrations := []string{
		`ALTER TABLE users ADD COLUMN email TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE tasks ADD COLUMN due_date TEXT NOT NULL DEFAULT ''`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, strings.TrimSpace(m))
		}
	}

	for _, m := range safeMigrations {
		_, _ = d.db.Exec(m)
	}

	return nil
}
