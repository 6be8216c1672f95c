package models

import (
	"time"
)

// XPSource identifies the kind of activity that produced an XP event.
type XPSource string

// Known XP sources.
const (
	SourceTask       XPSource = "task"
	SourceLesson     XPSource = "lesson"
	SourceModule     XPSource = "module"
	SourceCourse     XPSource = "course"
	SourceQuiz       XPSource = "quiz"
	SourceDailyLogin XPSource = "daily-login"
)

// ParseXPSource validates a raw source name.
func ParseXPSource(raw string) (XPSource, bool) {
	switch s := XPSource(raw); s {
	case SourceTask, SourceLesson, SourceModule, SourceCourse, SourceQuiz, SourceDailyLogin:
		return s, true
	default:
		return "", false
	}
}

// Repeatable reports whether the source may credit the same user more than once.
// Repeatable sources carry the calendar date in their source id.
func (s XPSource) Repeatable() bool {
	return s == SourceDailyLogin
}

// XPEvent is an immutable ledger row. At most one row exists per (user, source, source id).
type XPEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_xp_events_idempotency,priority:1;index:idx_xp_events_user_time,priority:1" json:"user_id"`
	Source     XPSource  `gorm:"size:32;not null;uniqueIndex:idx_xp_events_idempotency,priority:2" json:"source"`
	SourceID   string    `gorm:"size:255;not null;uniqueIndex:idx_xp_events_idempotency,priority:3" json:"source_id"`
	Amount     int64     `gorm:"not null" json:"amount"`
	OccurredAt time.Time `gorm:"not null;index;index:idx_xp_events_user_time,priority:2" json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for XPEvent model.
func (XPEvent) TableName() string {
	return "xp_events"
}
