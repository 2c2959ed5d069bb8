// Package titlefilter screens user-supplied task and habit titles for banned
// words.
package titlefilter

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode determines what happens to a title containing a banned word.
type Mode string

const (
	ModeReplace Mode = "REPLACE" // Mask banned words with asterisks
	ModeBlock   Mode = "BLOCK"   // Reject the whole title
)

// Config holds the title filter configuration
type Config struct {
	Enabled     bool     `yaml:"enabled"`
	Mode        Mode     `yaml:"mode"`
	BannedWords []string `yaml:"banned_words"`
}

// Result contains the outcome of screening a title
type Result struct {
	Filtered     string   // Title after masking (unchanged in BLOCK mode)
	Blocked      bool     // True when the title must be rejected
	MatchedWords []string // Banned words that were found
}

// Violated reports whether any banned word matched.
func (r Result) Violated() bool {
	return len(r.MatchedWords) > 0
}

// TitleFilter matches whole banned words case-insensitively.
type TitleFilter struct {
	enabled  bool
	mode     Mode
	words    []string
	patterns []*regexp.Regexp
}

// New creates a TitleFilter from a Config. A nil config yields a disabled filter.
func New(cfg *Config) *TitleFilter {
	if cfg == nil {
		return &TitleFilter{mode: ModeReplace}
	}

	mode := Mode(strings.ToUpper(string(cfg.Mode)))
	if mode != ModeBlock {
		mode = ModeReplace
	}

	tf := &TitleFilter{enabled: cfg.Enabled, mode: mode}
	for _, word := range cfg.BannedWords {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		// \b keeps "bad" from matching inside "badger"
		tf.words = append(tf.words, word)
		tf.patterns = append(tf.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(word)+`\b`))
	}
	return tf
}

// LoadConfig loads title filter configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse title filter YAML: %w", err)
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeReplace
	}
	return &cfg, nil
}

// Check screens a title.
func (tf *TitleFilter) Check(title string) Result {
	result := Result{Filtered: title, MatchedWords: []string{}}
	if !tf.enabled {
		return result
	}

	for i, pattern := range tf.patterns {
		if !pattern.MatchString(title) {
			continue
		}
		result.MatchedWords = append(result.MatchedWords, tf.words[i])
		if tf.mode == ModeReplace {
			result.Filtered = pattern.ReplaceAllStringFunc(result.Filtered, func(match string) string {
				return strings.Repeat("*", len(match))
			})
		}
	}

	result.Blocked = tf.mode == ModeBlock && result.Violated()
	return result
}

// IsEnabled returns whether the filter is enabled
func (tf *TitleFilter) IsEnabled() bool {
	return tf.enabled
}

// Mode returns the current filter mode
func (tf *TitleFilter) Mode() Mode {
	return tf.mode
}
