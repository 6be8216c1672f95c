// Package models defines domain models for the gamification engine.
package models

import (
	"time"
)

// User roles recognised by the API layer.
const (
	RoleLearner = "learner"
	RoleManager = "manager"
	RoleAdmin   = "admin"
	RoleSystem  = "system"
)

// User represents a learner account together with its cached gamification counters.
// The account itself is owned by the identity subsystem; this service only reads the
// profile and organisational fields and increments XP, Diamonds and the streak pair.
type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"size:255;not null" json:"name"`
	Email    string `gorm:"size:255" json:"email"`
	Avatar   string `gorm:"size:512" json:"avatar"`
	Role     string `gorm:"size:50;not null;default:learner" json:"role"`
	BranchID *uint  `gorm:"index" json:"branch_id,omitempty"`
	AreaID   *uint  `gorm:"index" json:"area_id,omitempty"`
	RegionID *uint  `gorm:"index" json:"region_id,omitempty"`

	XP         int64 `gorm:"column:xp;not null;default:0" json:"xp"`
	Diamonds   int64 `gorm:"not null;default:0" json:"diamonds"`
	StreakDays int   `gorm:"not null;default:0" json:"streak_days"`
	// LastActiveDay holds the civil date of the last qualifying activity at midnight UTC.
	LastActiveDay *time.Time `json:"last_active_day,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// IsPrivileged reports whether the user may act on behalf of other users.
func (u *User) IsPrivileged() bool {
	return u.Role == RoleAdmin || u.Role == RoleSystem
}
