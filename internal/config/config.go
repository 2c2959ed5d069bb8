package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds server-wide configuration settings.
type ServerConfig struct {
	HTTP        HTTPConfig        `yaml:"http"`
	CORS        CORSConfig        `yaml:"cors"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Password    PasswordConfig    `yaml:"password"`
	Connections ConnectionsConfig `yaml:"connections"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Antispam    AntispamConfig    `yaml:"antispam"`
	Auth        AuthConfig        `yaml:"auth"`
	Database    DatabaseConfig    `yaml:"database"`
	Engine      EngineConfig      `yaml:"engine"`
	Combat      CombatConfig      `yaml:"combat"`
	Rewards     RewardsConfig     `yaml:"rewards"`
}

// HTTPConfig holds the REST listener settings.
type HTTPConfig struct {
	Address                string `yaml:"address" env:"QUESTIFY_HTTP_ADDRESS"`
	ReadTimeoutSeconds     int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// CORSConfig holds the origins allowed to call the REST API from a browser.
type CORSConfig struct {
	// AllowedOrigins works like WebSocketConfig.AllowedOrigins.
	AllowedOrigins []string `yaml:"allowed_origins" env:"QUESTIFY_CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// RateLimitConfig holds rate limiting settings for login attempts.
type RateLimitConfig struct {
	// MaxAttempts is the maximum login attempts before lockout.
	MaxAttempts int `yaml:"max_attempts"`

	// LockoutSeconds is the initial lockout duration in seconds.
	LockoutSeconds int `yaml:"lockout_seconds"`

	// MaxLockoutSeconds is the maximum lockout duration (for exponential backoff).
	MaxLockoutSeconds int `yaml:"max_lockout_seconds"`
}

// AntispamConfig throttles state-changing API calls per user.
type AntispamConfig struct {
	Enabled           bool `yaml:"enabled"`
	MaxActions        int  `yaml:"max_actions"`
	TimeWindowSeconds int  `yaml:"time_window_seconds"`
}

// ConnectionsConfig holds push connection limit settings.
type ConnectionsConfig struct {
	// MaxPerIP is the maximum concurrent push connections allowed from a single IP address.
	// 0 means unlimited (not recommended).
	MaxPerIP int `yaml:"max_per_ip"`

	// MaxTotal is the maximum total concurrent push connections to the server.
	// 0 means unlimited.
	MaxTotal int `yaml:"max_total"`
}

// PasswordConfig holds password validation settings.
type PasswordConfig struct {
	// MinLength is the minimum password length (default: 8)
	MinLength int `yaml:"min_length"`

	// RequireUppercase requires at least one uppercase letter
	RequireUppercase bool `yaml:"require_uppercase"`

	// RequireLowercase requires at least one lowercase letter
	RequireLowercase bool `yaml:"require_lowercase"`

	// RequireDigit requires at least one digit
	RequireDigit bool `yaml:"require_digit"`

	// RequireSpecial requires at least one special character
	RequireSpecial bool `yaml:"require_special"`
}

// WebSocketConfig holds WebSocket-specific settings.
type WebSocketConfig struct {
	// AllowedOrigins is a list of origins allowed to connect via WebSocket.
	// Empty list enforces same-origin policy.
	// Use "*" to allow all origins (not recommended for production).
	AllowedOrigins []string `yaml:"allowed_origins" env:"QUESTIFY_WS_ALLOWED_ORIGINS" envSeparator:","`

	// MaxMessageSize is the maximum inbound WebSocket message size in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`
}

// AuthConfig holds bearer token settings. The secret is never read from YAML.
type AuthConfig struct {
	Secret        string `yaml:"-" env:"QUESTIFY_JWT_SECRET"`
	Issuer        string `yaml:"issuer" env:"QUESTIFY_JWT_ISSUER"`
	TokenTTLHours int    `yaml:"token_ttl_hours" env:"QUESTIFY_JWT_TTL_HOURS"`
}

// TokenTTL returns the token lifetime.
func (a AuthConfig) TokenTTL() time.Duration {
	if a.TokenTTLHours <= 0 {
		return 10 * time.Hour
	}
	return time.Duration(a.TokenTTLHours) * time.Hour
}

// DatabaseConfig selects and locates the store.
type DatabaseConfig struct {
	Driver     string `yaml:"driver" env:"QUESTIFY_DB_DRIVER"`
	SQLitePath string `yaml:"sqlite_path" env:"QUESTIFY_DB_PATH"`

	PostgresHost     string `yaml:"postgres_host" env:"QUESTIFY_PG_HOST"`
	PostgresPort     int    `yaml:"postgres_port" env:"QUESTIFY_PG_PORT"`
	PostgresUser     string `yaml:"postgres_user" env:"QUESTIFY_PG_USER"`
	PostgresPassword string `yaml:"-" env:"QUESTIFY_PG_PASSWORD"`
	PostgresDatabase string `yaml:"postgres_database" env:"QUESTIFY_PG_DATABASE"`
	PostgresSSLMode  string `yaml:"postgres_sslmode" env:"QUESTIFY_PG_SSLMODE"`
}

// EngineConfig tunes the boss session manager.
type EngineConfig struct {
	CatalogPath string `yaml:"catalog_path" env:"QUESTIFY_CATALOG_PATH"`

	// SelectionSize is how many bosses a selection offers.
	SelectionSize int `yaml:"selection_size"`

	// MaxConflictRetries bounds retries after a concurrent writer won.
	MaxConflictRetries int `yaml:"max_conflict_retries"`

	// AttackOnCompletion makes task and habit completions strike the active boss.
	AttackOnCompletion bool `yaml:"attack_on_completion"`
}

// CombatConfig holds the damage each completion deals.
type CombatConfig struct {
	TaskDamage  int `yaml:"task_damage"`
	HabitDamage int `yaml:"habit_damage"`
}

// Grant is a gold and experience payout.
type Grant struct {
	Gold int `yaml:"gold"`
	XP   int `yaml:"xp"`
}

// HabitRewards holds the payout per habit difficulty.
type HabitRewards struct {
	Easy   Grant `yaml:"easy"`
	Medium Grant `yaml:"medium"`
	Hard   Grant `yaml:"hard"`
}

// RewardsConfig is the completion reward policy table.
type RewardsConfig struct {
	Task  Grant        `yaml:"task"`
	Habit HabitRewards `yaml:"habit"`
}

// ForHabit returns the grant for a habit difficulty ("EASY", "MEDIUM", "HARD").
func (r RewardsConfig) ForHabit(difficulty string) Grant {
	switch strings.ToUpper(difficulty) {
	case "HARD":
		return r.Habit.Hard
	case "MEDIUM":
		return r.Habit.Medium
	default:
		return r.Habit.Easy
	}
}

// DefaultConfig returns a ServerConfig with secure defaults.
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		HTTP: HTTPConfig{
			Address:                ":8080",
			ReadTimeoutSeconds:     15,
			WriteTimeoutSeconds:    15,
			ShutdownTimeoutSeconds: 10,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{},
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: []string{}, // Same-origin only by default
			MaxMessageSize: 4096,
		},
		Password: PasswordConfig{
			MinLength:        8,
			RequireUppercase: true,
			RequireLowercase: true,
			RequireDigit:     true,
			RequireSpecial:   false, // Not required by default for usability
		},
		Connections: ConnectionsConfig{
			MaxPerIP: 3,
			MaxTotal: 500,
		},
		RateLimit: RateLimitConfig{
			MaxAttempts:       5,   // Default: 5 attempts before lockout
			LockoutSeconds:    30,  // Default: 30 second initial lockout
			MaxLockoutSeconds: 300, // Default: 5 minute max lockout
		},
		Antispam: AntispamConfig{
			Enabled:           true,
			MaxActions:        30,
			TimeWindowSeconds: 10,
		},
		Auth: AuthConfig{
			Issuer:        "questify",
			TokenTTLHours: 10,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			SQLitePath:      "data/questify.db",
			PostgresHost:    "localhost",
			PostgresPort:    5432,
			PostgresSSLMode: "disable",
		},
		Engine: EngineConfig{
			CatalogPath:        "data/bosses.yaml",
			SelectionSize:      4,
			MaxConflictRetries: 3,
			AttackOnCompletion: true,
		},
		Combat: CombatConfig{
			TaskDamage:  10,
			HabitDamage: 5,
		},
		Rewards: RewardsConfig{
			Task: Grant{Gold: 10, XP: 20},
			Habit: HabitRewards{
				Easy:   Grant{Gold: 5, XP: 10},
				Medium: Grant{Gold: 10, XP: 20},
				Hard:   Grant{Gold: 20, XP: 40},
			},
		},
	}
}

// LoadConfig loads server configuration from a YAML file and applies
// environment overrides. If the file doesn't exist, defaults are used.
func LoadConfig(path string) (*ServerConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return config, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return DefaultConfig(), err
		}
	}

	if err := ApplyEnv(config); err != nil {
		return config, err
	}
	return config, config.Validate()
}

// ApplyEnv overlays QUESTIFY_* environment variables onto the config.
func ApplyEnv(cfg *ServerConfig) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c *ServerConfig) Validate() error {
	if c.Engine.SelectionSize <= 0 {
		return fmt.Errorf("engine.selection_size must be positive, got %d", c.Engine.SelectionSize)
	}
	if c.Engine.MaxConflictRetries < 0 {
		return fmt.Errorf("engine.max_conflict_retries cannot be negative")
	}
	if c.Combat.TaskDamage < 0 || c.Combat.HabitDamage < 0 {
		return fmt.Errorf("combat damage cannot be negative")
	}
	grants := []Grant{c.Rewards.Task, c.Rewards.Habit.Easy, c.Rewards.Habit.Medium, c.Rewards.Habit.Hard}
	for _, g := range grants {
		if g.Gold < 0 || g.XP < 0 {
			return fmt.Errorf("reward grants cannot be negative")
		}
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	return nil
}

// IsOriginAllowed checks if the given origin is allowed based on the config.
// Returns true if:
// - AllowedOrigins contains "*" (allow all)
// - AllowedOrigins contains the exact origin
// - AllowedOrigins is empty and origin matches the request host (same-origin)
func (c *WebSocketConfig) IsOriginAllowed(origin, requestHost string) bool {
	return originAllowed(c.AllowedOrigins, origin, requestHost)
}

// IsOriginAllowed applies the same policy as WebSocketConfig.IsOriginAllowed.
func (c *CORSConfig) IsOriginAllowed(origin, requestHost string) bool {
	return originAllowed(c.AllowedOrigins, origin, requestHost)
}

func originAllowed(allowedOrigins []string, origin, requestHost string) bool {
	// If no origins configured, enforce same-origin policy
	if len(allowedOrigins) == 0 {
		return isSameOrigin(origin, requestHost)
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	return false
}

// isSameOrigin checks if the origin matches the request host (same-origin policy).
func isSameOrigin(origin, requestHost string) bool {
	if origin == "" {
		return true // No origin header means same-origin (e.g., non-browser client)
	}

	// Extract host from origin URL (e.g., "http://localhost:3000" -> "localhost:3000")
	originHost := origin
	if idx := strings.Index(origin, "://"); idx != -1 {
		originHost = origin[idx+3:]
	}
	originHost = strings.TrimSuffix(originHost, "/")

	return originHost == requestHost
}

// ValidatePassword checks if a password meets the configured requirements.
// Returns an error message describing what's wrong, or empty string if valid.
func (c *PasswordConfig) ValidatePassword(password string) string {
	minLen := c.MinLength
	if minLen == 0 {
		minLen = 8 // Default if not set
	}
	if len(password) < minLen {
		return fmt.Sprintf("Password must be at least %d characters.", minLen)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if c.RequireUppercase && !hasUpper {
		return "Password must contain at least one uppercase letter."
	}
	if c.RequireLowercase && !hasLower {
		return "Password must contain at least one lowercase letter."
	}
	if c.RequireDigit && !hasDigit {
		return "Password must contain at least one digit."
	}
	if c.RequireSpecial && !hasSpecial {
		return "Password must contain at least one special character."
	}

	return ""
}

// GetRequirementsText returns a human-readable description of password requirements.
func (c *PasswordConfig) GetRequirementsText() string {
	minLen := c.MinLength
	if minLen == 0 {
		minLen = 8
	}

	parts := []string{fmt.Sprintf("min %d chars", minLen)}
	if c.RequireUppercase {
		parts = append(parts, "uppercase")
	}
	if c.RequireLowercase {
		parts = append(parts, "lowercase")
	}
	if c.RequireDigit {
		parts = append(parts, "digit")
	}
	if c.RequireSpecial {
		parts = append(parts, "special char")
	}

	return strings.Join(parts, ", ")
}
