// Package progression maps lifetime XP to levels and named rank tiers.
package progression

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Tier is one row of the rank table.
type Tier struct {
	Level int    `yaml:"level" json:"level"`
	Name  string `yaml:"name" json:"name"`
	MinXP int64  `yaml:"min_xp" json:"min_xp"`
}

// RankTable is an immutable, ordered list of tiers. The first tier starts at 0 XP,
// so every non-negative XP value maps to exactly one tier.
type RankTable struct {
	version int
	tiers   []Tier
}

// rankFile is the on-disk layout of a rank table.
type rankFile struct {
	Version int    `yaml:"version"`
	Tiers   []Tier `yaml:"tiers"`
}

var defaultTiers = []Tier{
	{Level: 1, Name: "Newcomer", MinXP: 0},
	{Level: 2, Name: "Apprentice", MinXP: 500},
	{Level: 3, Name: "Practitioner", MinXP: 1500},
	{Level: 4, Name: "Specialist", MinXP: 4000},
	{Level: 5, Name: "Expert", MinXP: 8000},
	{Level: 6, Name: "Master", MinXP: 15000},
	{Level: 7, Name: "Legend", MinXP: 30000},
}

// NewRankTable validates tiers and returns an immutable table.
func NewRankTable(version int, tiers []Tier) (*RankTable, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("rank table must contain at least one tier")
	}
	if tiers[0].MinXP != 0 {
		return nil, fmt.Errorf("first rank tier must start at 0 xp, got %d", tiers[0].MinXP)
	}

	for i, tier := range tiers {
		if tier.Name == "" {
			return nil, fmt.Errorf("rank tier %d has no name", i)
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if tier.MinXP <= prev.MinXP {
			return nil, fmt.Errorf("rank tier %q min_xp %d must exceed %q min_xp %d", tier.Name, tier.MinXP, prev.Name, prev.MinXP)
		}
		if tier.Level <= prev.Level {
			return nil, fmt.Errorf("rank tier %q level %d must exceed %q level %d", tier.Name, tier.Level, prev.Name, prev.Level)
		}
	}

	copied := make([]Tier, len(tiers))
	copy(copied, tiers)

	return &RankTable{version: version, tiers: copied}, nil
}

// DefaultRankTable returns the built-in table used when no file is configured.
func DefaultRankTable() *RankTable {
	table, err := NewRankTable(1, defaultTiers)
	if err != nil {
		panic(fmt.Sprintf("built-in rank table is invalid: %v", err))
	}
	return table
}

// LoadRankTable reads a YAML rank table from path. An empty path yields the default table.
func LoadRankTable(path string) (*RankTable, error) {
	if path == "" {
		return DefaultRankTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rank table %s: %w", path, err)
	}

	var file rankFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rank table %s: %w", path, err)
	}

	table, err := NewRankTable(file.Version, file.Tiers)
	if err != nil {
		return nil, fmt.Errorf("invalid rank table %s: %w", path, err)
	}
	return table, nil
}

// Version returns the configured table version.
func (t *RankTable) Version() int {
	return t.version
}

// Tiers returns a copy of the tiers in ascending order.
func (t *RankTable) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// index returns the position of the highest tier whose MinXP <= xp.
func (t *RankTable) index(xp int64) int {
	if xp < 0 {
		xp = 0
	}
	// First tier with MinXP > xp, minus one.
	i := sort.Search(len(t.tiers), func(i int) bool {
		return t.tiers[i].MinXP > xp
	})
	return i - 1
}

// TierFor returns the tier xp resolves to.
func (t *RankTable) TierFor(xp int64) Tier {
	return t.tiers[t.index(xp)]
}

// NextTier returns the tier after the one xp resolves to, if any.
func (t *RankTable) NextTier(xp int64) (Tier, bool) {
	i := t.index(xp) + 1
	if i >= len(t.tiers) {
		return Tier{}, false
	}
	return t.tiers[i], true
}
