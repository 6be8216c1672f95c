package scoring

import (
	"context"

	"github.com/aimd54/lms-gamification/internal/models"
	"github.com/aimd54/lms-gamification/internal/service/progression"
	"github.com/aimd54/lms-gamification/internal/service/streak"
)

// UserProgress is a user's derived gamification state.
type UserProgress struct {
	UserID uint `json:"user_id"`
	progression.Progress
	Diamonds   int64 `json:"diamonds"`
	StreakDays int   `json:"streak_days"`
	// EffectiveStreak is StreakDays as of today: 0 when the streak lapsed but has not
	// yet been reset by a new activity.
	EffectiveStreak int `json:"effective_streak"`
}

// GetProgress returns level, rank and counters for a user.
func (s *Service) GetProgress(ctx context.Context, userID uint) (*UserProgress, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := streak.Day(s.now(), s.rules.location())
	state := streak.State{LastActiveDay: user.LastActiveDay, Days: user.StreakDays}

	return &UserProgress{
		UserID:          user.ID,
		Progress:        s.resolver.Resolve(user.XP),
		Diamonds:        user.Diamonds,
		StreakDays:      user.StreakDays,
		EffectiveStreak: streak.Effective(state, today),
	}, nil
}

// History returns the user's most recent XP events.
func (s *Service) History(ctx context.Context, userID uint, limit int) ([]models.XPEvent, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.ledger.ListByUser(ctx, userID, limit)
}
