package progression

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(DefaultRankTable(), 100, 50)
	require.NoError(t, err)
	return r
}

func TestResolver_Level(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		xp   int64
		want int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{250, 3},
		{4899, 49},
		{4900, 50},
		{1_000_000, 50},
		{-20, 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Level(tt.xp), "xp=%d", tt.xp)
	}
}

func TestResolver_LevelIsMonotonicAndCapped(t *testing.T) {
	r := newTestResolver(t)

	prev := 0
	for xp := int64(0); xp <= 10_000; xp += 7 {
		level := r.Level(xp)
		assert.GreaterOrEqual(t, level, prev, "level decreased at xp=%d", xp)
		assert.LessOrEqual(t, level, r.MaxLevel())
		prev = level
	}
}

func TestRankTable_EveryXPHasExactlyOneTier(t *testing.T) {
	table := DefaultRankTable()
	tiers := table.Tiers()

	for _, xp := range []int64{0, 1, 499, 500, 501, 1499, 1500, 29_999, 30_000, 9_999_999} {
		matches := 0
		var best Tier
		for _, tier := range tiers {
			if tier.MinXP <= xp {
				matches++
				best = tier
			}
		}
		require.Positive(t, matches, "xp=%d matched no tier", xp)
		assert.Equal(t, best, table.TierFor(xp), "xp=%d", xp)
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := newTestResolver(t)

	p := r.Resolve(520)
	assert.Equal(t, 6, p.Level)
	assert.Equal(t, "Apprentice", p.RankName)
	assert.Equal(t, "Practitioner", p.NextRankName)
	assert.Equal(t, int64(980), p.XPToNextRank)
	assert.Equal(t, int64(80), p.XPToNextLevel)

	top := r.Resolve(50_000)
	assert.Equal(t, "Legend", top.RankName)
	assert.Empty(t, top.NextRankName)
	assert.Zero(t, top.XPToNextRank)
	assert.Zero(t, top.XPToNextLevel)
}

func TestNewRankTable_Validation(t *testing.T) {
	tests := []struct {
		name  string
		tiers []Tier
	}{
		{"empty", nil},
		{"first tier above zero", []Tier{{Level: 1, Name: "A", MinXP: 10}}},
		{"duplicate min xp", []Tier{{Level: 1, Name: "A", MinXP: 0}, {Level: 2, Name: "B", MinXP: 0}}},
		{"decreasing level", []Tier{{Level: 2, Name: "A", MinXP: 0}, {Level: 1, Name: "B", MinXP: 10}}},
		{"missing name", []Tier{{Level: 1, MinXP: 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRankTable(1, tt.tiers)
			assert.Error(t, err)
		})
	}
}

func TestNewRankTable_CopiesInput(t *testing.T) {
	tiers := []Tier{{Level: 1, Name: "Rookie", MinXP: 0}, {Level: 2, Name: "Pro", MinXP: 100}}
	table, err := NewRankTable(3, tiers)
	require.NoError(t, err)

	tiers[1].Name = "mutated"
	assert.Equal(t, "Pro", table.TierFor(150).Name)
	assert.Equal(t, 3, table.Version())
}

func TestLoadRankTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ranks.yaml")
	content := `version: 2
tiers:
  - level: 1
    name: Bronze
    min_xp: 0
  - level: 2
    name: Silver
    min_xp: 1000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	table, err := LoadRankTable(path)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Version())
	assert.Equal(t, "Bronze", table.TierFor(999).Name)
	assert.Equal(t, "Silver", table.TierFor(1000).Name)

	def, err := LoadRankTable("")
	require.NoError(t, err)
	assert.Equal(t, "Newcomer", def.TierFor(0).Name)

	_, err = LoadRankTable(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestNewResolver_Validation(t *testing.T) {
	_, err := NewResolver(nil, 100, 10)
	assert.Error(t, err)
	_, err = NewResolver(DefaultRankTable(), 0, 10)
	assert.Error(t, err)
	_, err = NewResolver(DefaultRankTable(), 100, 0)
	assert.Error(t, err)
}
