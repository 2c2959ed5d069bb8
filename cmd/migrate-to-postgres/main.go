// migrate-to-postgres copies a Questify SQLite database into PostgreSQL.
//
// Usage:
//
//	go run ./cmd/migrate-to-postgres \
//	    -sqlite data/questify.db \
//	    -pg-host localhost \
//	    -pg-port 5435 \
//	    -pg-user questify \
//	    -pg-password questify \
//	    -pg-database questify
//
// The target schema is created by the server's own migrations. Rows that
// already exist in the target are skipped, so the tool can be re-run.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/unbreakk1/Questify/internal/database"
)

// table describes one copied table. Order matters: parents before children.
type table struct {
	name     string
	columns  []string
	sequence string // serial sequence to advance after copying, if any
}

var tables = []table{
	{name: "users", sequence: "users_id_seq", columns: []string{
		"id", "public_id", "username", "email", "password_hash", "level", "experience", "gold",
		"version", "created_at", "last_login", "last_ip"}},
	{name: "user_badges", columns: []string{"user_id", "badge", "earned_at"}},
	{name: "bosses", columns: []string{
		"id", "name", "max_health", "level_requirement", "rare", "reward_gold", "reward_xp", "reward_badge"}},
	{name: "boss_sessions", columns: []string{
		"user_id", "boss_id", "current_health", "max_health", "version", "started_at", "updated_at"}},
	{name: "boss_offers", columns: []string{"user_id", "boss_id", "position"}},
	{name: "boss_defeats", sequence: "boss_defeats_id_seq", columns: []string{
		"id", "user_id", "boss_id", "gold", "xp", "badge", "level_after", "defeated_at"}},
	{name: "tasks", columns: []string{
		"id", "user_id", "title", "due_date", "last_completed_date", "created_at"}},
	{name: "habits", columns: []string{
		"id", "user_id", "title", "frequency", "difficulty", "streak", "last_completed_date", "created_at"}},
}

func main() {
	sqlitePath := flag.String("sqlite", "data/questify.db", "Path to SQLite database")
	pgHost := flag.String("pg-host", "localhost", "PostgreSQL host")
	pgPort := flag.Int("pg-port", 5435, "PostgreSQL port")
	pgUser := flag.String("pg-user", "questify", "PostgreSQL user")
	pgPassword := flag.String("pg-password", "questify", "PostgreSQL password")
	pgDatabase := flag.String("pg-database", "questify", "PostgreSQL database name")
	pgSSLMode := flag.String("pg-sslmode", "disable", "PostgreSQL SSL mode")
	dryRun := flag.Bool("dry-run", false, "Count rows without connecting to PostgreSQL")
	flag.Parse()

	log.Println("SQLite to PostgreSQL Migration Tool")
	log.Println("====================================")

	log.Printf("Opening SQLite database: %s", *sqlitePath)
	src, err := database.Open(*sqlitePath)
	if err != nil {
		log.Fatalf("Failed to open SQLite database: %v", err)
	}
	defer src.Close()

	if *dryRun {
		log.Println("DRY RUN MODE - No changes will be made")
		var total int64
		for _, t := range tables {
			n, err := countRows(src.DB(), t.name)
			if err != nil {
				log.Fatalf("Failed to count %s: %v", t.name, err)
			}
			log.Printf("  %s: %d rows", t.name, n)
			total += n
		}
		log.Printf("Would migrate %d rows", total)
		return
	}

	pg := database.DefaultPostgresConfig()
	pg.Host = *pgHost
	pg.Port = *pgPort
	pg.User = *pgUser
	pg.Password = *pgPassword
	pg.Database = *pgDatabase
	pg.SSLMode = *pgSSLMode

	log.Printf("Opening PostgreSQL database: %s", pg)
	dst, err := database.OpenWithConfig(database.Config{Driver: "postgres", Postgres: pg})
	if err != nil {
		log.Fatalf("Failed to open PostgreSQL database: %v", err)
	}
	defer dst.Close()

	total, err := migrateAll(src, dst)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("====================================")
	log.Printf("Migration complete! Total rows migrated: %d", total)
}

// migrateAll copies every table and returns the number of inserted rows.
func migrateAll(src, dst *database.Database) (int64, error) {
	var total int64
	for _, t := range tables {
		log.Printf("Migrating table: %s", t.name)
		n, err := copyTable(src, dst, t)
		if err != nil {
			return total, fmt.Errorf("%s: %w", t.name, err)
		}
		log.Printf("  Migrated %d rows", n)
		total += n
	}
	return total, nil
}

// copyTable streams one table into dst inside a single transaction.
func copyTable(src, dst *database.Database, t table) (int64, error) {
	cols := strings.Join(t.columns, ", ")
	rows, err := src.DB().Query(`SELECT ` + cols + ` FROM ` + t.name)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")
	insert := database.NewQueryBuilder(dst.Dialect()).Build(
		`INSERT INTO ` + t.name + ` (` + cols + `) VALUES (` + marks + `) ON CONFLICT DO NOTHING`)

	tx, err := dst.DB().Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insert)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	values := make([]any, len(t.columns))
	ptrs := make([]any, len(t.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	var count int64
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return count, err
		}
		res, err := stmt.Exec(values...)
		if err != nil {
			return count, err
		}
		if n, err := res.RowsAffected(); err == nil {
			count += n
		}
	}
	if err := rows.Err(); err != nil {
		return count, err
	}

	if t.sequence != "" && dst.Dialect().DriverName() == "postgres" {
		// Keep new ids past the copied ones
		q := fmt.Sprintf(`SELECT setval('%s', COALESCE((SELECT MAX(id) FROM %s), 0) + 1, false)`, t.sequence, t.name)
		if _, err := tx.Exec(q); err != nil {
			return count, err
		}
	}

	return count, tx.Commit()
}

func countRows(db *sql.DB, name string) (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM ` + name).Scan(&n)
	return n, err
}
