package progression

import (
	"fmt"
)

// Progress is the derived view of a user's lifetime XP.
type Progress struct {
	XP            int64  `json:"xp"`
	Level         int    `json:"level"`
	RankName      string `json:"rank_name"`
	NextRankName  string `json:"next_rank_name,omitempty"`
	XPToNextRank  int64  `json:"xp_to_next_rank"`
	XPToNextLevel int64  `json:"xp_to_next_level"`
}

// Resolver converts XP into levels and rank names. It is safe for concurrent use.
type Resolver struct {
	table      *RankTable
	xpPerLevel int64
	maxLevel   int
}

// NewResolver creates a resolver over table.
func NewResolver(table *RankTable, xpPerLevel int64, maxLevel int) (*Resolver, error) {
	if table == nil {
		return nil, fmt.Errorf("rank table is required")
	}
	if xpPerLevel <= 0 {
		return nil, fmt.Errorf("xp per level must be positive, got %d", xpPerLevel)
	}
	if maxLevel < 1 {
		return nil, fmt.Errorf("max level must be at least 1, got %d", maxLevel)
	}
	return &Resolver{table: table, xpPerLevel: xpPerLevel, maxLevel: maxLevel}, nil
}

// MaxLevel returns the level ceiling.
func (r *Resolver) MaxLevel() int {
	return r.maxLevel
}

// Level returns min(maxLevel, floor(xp/xpPerLevel)+1).
func (r *Resolver) Level(xp int64) int {
	if xp < 0 {
		xp = 0
	}
	steps := xp / r.xpPerLevel
	if steps >= int64(r.maxLevel-1) {
		return r.maxLevel
	}
	return int(steps) + 1
}

// RankName returns the name of the highest tier reached by xp.
func (r *Resolver) RankName(xp int64) string {
	return r.table.TierFor(xp).Name
}

// Resolve computes the full progress view for xp.
func (r *Resolver) Resolve(xp int64) Progress {
	if xp < 0 {
		xp = 0
	}

	level := r.Level(xp)
	p := Progress{
		XP:       xp,
		Level:    level,
		RankName: r.RankName(xp),
	}

	if level < r.maxLevel {
		p.XPToNextLevel = int64(level)*r.xpPerLevel - xp
	}
	if next, ok := r.table.NextTier(xp); ok {
		p.NextRankName = next.Name
		p.XPToNextRank = next.MinXP - xp
	}

	return p
}
