package database

import (
	"fmt"
	"net/url"
	"time"
)

// Config selects the store backend. Driver is "sqlite" (the default) or
// "postgres"; only the matching section is read.
type Config struct {
	Driver     string
	SQLitePath string
	Postgres   PostgresConfig
}

// PostgresConfig describes a lib/pq connection and its pool limits.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the lib/pq connection string. Values are single-quoted so
// passwords with spaces survive.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quoteDSN(c.Host), c.Port, quoteDSN(c.User), quoteDSN(c.Password), quoteDSN(c.Database), sslMode)
}

// String identifies the server without the password, for logs.
func (c PostgresConfig) String() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.User(c.User),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	return u.String()
}

// Validate reports settings that would only fail later at connect time.
func (c Config) Validate() error {
	switch c.Driver {
	case "", "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path is empty")
		}
	case "postgres":
		if c.Postgres.Host == "" || c.Postgres.Database == "" {
			return fmt.Errorf("postgres host and database are required")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			return fmt.Errorf("postgres port %d out of range", c.Postgres.Port)
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Driver)
	}
	return nil
}

// DefaultConfig returns a SQLite config stored at sqlitePath.
func DefaultConfig(sqlitePath string) Config {
	return Config{Driver: "sqlite", SQLitePath: sqlitePath}
}

// DefaultPostgresConfig returns a local server with modest pool limits.
// Reward writes are short transactions, so a small pool is enough.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		SSLMode:         "disable",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func quoteDSN(v string) string {
	if v == "" {
		return "''"
	}
	out := make([]byte, 0, len(v)+2)
	out = append(out, '\'')
	for i := 0; i < len(v); i++ {
		if v[i] == '\'' || v[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, v[i])
	}
	return string(append(out, '\''))
}
