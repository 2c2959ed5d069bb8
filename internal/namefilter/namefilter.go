// Package namefilter screens usernames at registration.
package namefilter

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the name filter configuration
type Config struct {
	Enabled     bool     `yaml:"enabled"`
	BannedWords []string `yaml:"banned_words"` // Rejected anywhere in a name
	BannedNames []string `yaml:"banned_names"` // Rejected as the whole name
}

// Result contains the outcome of checking a name
type Result struct {
	Allowed bool   // Whether the name is allowed
	Reason  string // Reason for rejection (if not allowed)
	Match   string // The configured entry that matched
}

// NameFilter rejects usernames that are reserved or contain banned words.
// Matching ignores case, underscores and common digit-for-letter swaps, so
// "Adm1n_" and "admin" are the same name.
type NameFilter struct {
	enabled     bool
	bannedWords []string
	bannedNames map[string]string // canonical form -> configured entry
}

// leet undoes the digit substitutions people use to dodge filters.
var leet = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"3", "e",
	"4", "a",
	"5", "s",
	"7", "t",
	"_", "",
)

// canonical lowercases s and strips the substitutions above.
func canonical(s string) string {
	return leet.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// New creates a NameFilter. A nil config yields a disabled filter.
func New(cfg *Config) *NameFilter {
	if cfg == nil {
		return &NameFilter{enabled: false}
	}

	nf := &NameFilter{
		enabled:     cfg.Enabled,
		bannedNames: make(map[string]string, len(cfg.BannedNames)),
	}
	for _, word := range cfg.BannedWords {
		if c := canonical(word); c != "" {
			nf.bannedWords = append(nf.bannedWords, c)
		}
	}
	for _, name := range cfg.BannedNames {
		if c := canonical(name); c != "" {
			nf.bannedNames[c] = name
		}
	}
	return nf
}

// LoadConfig loads name filter configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Check screens a username.
func (nf *NameFilter) Check(name string) Result {
	if nf == nil || !nf.enabled {
		return Result{Allowed: true}
	}

	c := canonical(name)
	if entry, ok := nf.bannedNames[c]; ok {
		return Result{Reason: "That name is reserved.", Match: entry}
	}
	for _, word := range nf.bannedWords {
		if strings.Contains(c, word) {
			return Result{Reason: "That name contains a word that is not allowed.", Match: word}
		}
	}
	return Result{Allowed: true}
}

// IsEnabled returns whether the filter is enabled
func (nf *NameFilter) IsEnabled() bool {
	return nf != nil && nf.enabled
}
