package leaderboard

import (
	"sort"
)

// Entry represents a single entry in a leaderboard.
type Entry struct {
	UserID   uint   `json:"user_id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Rank     int    `json:"rank"`
	XP       int64  `json:"xp"`
	XPEarned int64  `json:"xp_earned"`
	Level    int    `json:"level"`
	RankName string `json:"rank_name"`
	Streak   int    `json:"streak"`
	Diamonds int64  `json:"diamonds"`
}

// before reports whether a ranks strictly ahead of b: period XP descending, then
// lifetime XP descending, then user ID ascending. Distinct users are never tied.
func before(a, b *Entry) bool {
	if a.XPEarned != b.XPEarned {
		return a.XPEarned > b.XPEarned
	}
	if a.XP != b.XP {
		return a.XP > b.XP
	}
	return a.UserID < b.UserID
}

// rankEntries sorts entries and assigns 1-based ranks.
func rankEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return before(&entries[i], &entries[j])
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

// rankOf returns 1 + the number of entries ordered strictly before userID's entry,
// together with that entry. It returns 0, nil when the user is not a candidate.
func rankOf(entries []Entry, userID uint) (int, *Entry) {
	var target *Entry
	for i := range entries {
		if entries[i].UserID == userID {
			target = &entries[i]
			break
		}
	}
	if target == nil {
		return 0, nil
	}

	ahead := 0
	for i := range entries {
		if before(&entries[i], target) {
			ahead++
		}
	}

	entry := *target
	entry.Rank = ahead + 1
	return entry.Rank, &entry
}

// Pagination describes the page window of a leaderboard result.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// paginate returns the requested 1-based page. Pages past the end are empty.
func paginate(entries []Entry, page, pageSize int) ([]Entry, Pagination) {
	total := len(entries)
	p := Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}

	start := (page - 1) * pageSize
	if start >= total {
		return []Entry{}, p
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	out := make([]Entry, end-start)
	copy(out, entries[start:end])
	return out, p
}
