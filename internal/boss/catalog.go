// Package boss holds the boss catalog and the per-user combat instance model.
package boss

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rewards is the payout granted when a boss is defeated.
type Rewards struct {
	Gold  int    `yaml:"gold" json:"gold"`
	XP    int    `yaml:"xp" json:"xp"`
	Badge string `yaml:"badge" json:"badge"`
}

// Definition is an immutable catalog entry.
type Definition struct {
	ID               string  `yaml:"id" json:"id"`
	Name             string  `yaml:"name" json:"name"`
	MaxHealth        int     `yaml:"max_health" json:"maxHealth"`
	LevelRequirement int     `yaml:"level_requirement" json:"levelRequirement"`
	Rare             bool    `yaml:"rare" json:"rare"`
	Rewards          Rewards `yaml:"rewards" json:"rewards"`
}

// Validate checks the definition invariants.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return errors.New("boss id cannot be empty")
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("boss %s: name cannot be empty", d.ID)
	}
	if d.MaxHealth <= 0 {
		return fmt.Errorf("boss %s: max_health must be positive", d.ID)
	}
	if d.LevelRequirement < 1 {
		return fmt.Errorf("boss %s: level_requirement must be at least 1", d.ID)
	}
	if d.Rewards.Gold < 0 || d.Rewards.XP < 0 {
		return fmt.Errorf("boss %s: rewards cannot be negative", d.ID)
	}
	if strings.TrimSpace(d.Rewards.Badge) == "" {
		return fmt.Errorf("boss %s: reward badge cannot be empty", d.ID)
	}
	return nil
}

// CatalogConfig represents the structure of the bosses.yaml file
type CatalogConfig struct {
	Bosses []Definition `yaml:"bosses"`
}

// Catalog is the read-only set of boss definitions, kept in a stable order.
type Catalog struct {
	ordered []Definition
	byID    map[string]Definition
}

// NewCatalog validates the definitions and builds a catalog.
func NewCatalog(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		ordered: make([]Definition, 0, len(defs)),
		byID:    make(map[string]Definition, len(defs)),
	}
	for i := range defs {
		def := defs[i]
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.byID[def.ID]; exists {
			return nil, fmt.Errorf("duplicate boss id: %s", def.ID)
		}
		c.byID[def.ID] = def
		c.ordered = append(c.ordered, def)
	}

	sort.SliceStable(c.ordered, func(i, j int) bool {
		return less(c.ordered[i], c.ordered[j])
	})
	return c, nil
}

// LoadCatalogFromYAML loads boss definitions from a YAML file
func LoadCatalogFromYAML(filename string) (*Catalog, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read bosses file: %w", err)
	}

	var config CatalogConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse bosses YAML: %w", err)
	}

	return NewCatalog(config.Bosses)
}

// Get returns the definition with the given id.
func (c *Catalog) Get(id string) (Definition, bool) {
	def, ok := c.byID[id]
	return def, ok
}

// All returns every definition in catalog order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Count returns the number of definitions.
func (c *Catalog) Count() int {
	return len(c.ordered)
}

// Candidates returns up to n definitions a user at the given level may fight.
// Eligible bosses are those with LevelRequirement <= level. When more than n
// are eligible, the n with the highest requirement are kept. The result is
// always in catalog order so repeated calls for the same level agree.
func (c *Catalog) Candidates(level, n int) []Definition {
	if n <= 0 {
		return []Definition{}
	}
	eligible := make([]Definition, 0, len(c.ordered))
	for _, def := range c.ordered {
		if def.LevelRequirement <= level {
			eligible = append(eligible, def)
		}
	}
	if len(eligible) > n {
		eligible = eligible[len(eligible)-n:]
	}
	return eligible
}

// less orders by level requirement, then common before rare, then name, then id.
func less(a, b Definition) bool {
	if a.LevelRequirement != b.LevelRequirement {
		return a.LevelRequirement < b.LevelRequirement
	}
	if a.Rare != b.Rare {
		return !a.Rare
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}
