package scoring

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/aimd54/lms-gamification/internal/apperrors"
	"github.com/aimd54/lms-gamification/internal/models"
)

// QuizCompletion is a graded quiz attempt handed over by the quiz subsystem.
type QuizCompletion struct {
	UserID      uint
	QuizID      string
	Score       float64
	MaxScore    float64
	CompletedAt time.Time
}

// AwardQuizCompletion credits XP scaled by the quiz score. A zero score earns nothing.
// Retakes earn nothing unless retake credit is enabled, in which case every attempt
// is keyed by its completion time.
func (s *Service) AwardQuizCompletion(ctx context.Context, c QuizCompletion) (*AwardResult, error) {
	quizID := strings.TrimSpace(c.QuizID)
	if quizID == "" {
		return nil, apperrors.InvalidArgument("quiz id is required")
	}
	if c.MaxScore <= 0 {
		return nil, apperrors.InvalidArgument("max_score must be positive")
	}
	if c.Score < 0 || c.Score > c.MaxScore {
		return nil, apperrors.InvalidArgument("score %.2f is outside [0, %.2f]", c.Score, c.MaxScore)
	}
	if c.CompletedAt.IsZero() {
		c.CompletedAt = s.now()
	}

	base := int64(math.Round(float64(s.rules.QuizXP) * c.Score / c.MaxScore))
	if base <= 0 {
		s.log.Debug().Uint("user_id", c.UserID).Str("quiz_id", quizID).Msg("Quiz score earns no XP")
		return &AwardResult{}, nil
	}

	sourceID := quizID
	if s.rules.AllowQuizRetakeCredit {
		sourceID = quizID + "@" + c.CompletedAt.UTC().Format(time.RFC3339Nano)
	}

	return s.AwardXP(ctx, AwardRequest{
		UserID:     c.UserID,
		Source:     models.SourceQuiz,
		SourceID:   sourceID,
		BaseAmount: base,
		OccurredAt: c.CompletedAt,
	})
}

// AwardContentCompletion credits the fixed reward configured for a task, lesson,
// module or course.
func (s *Service) AwardContentCompletion(ctx context.Context, userID uint, source models.XPSource, contentID string, completedAt time.Time) (*AwardResult, error) {
	base, ok := s.rules.XPRewards[source]
	if !ok {
		return nil, apperrors.InvalidArgument("no fixed reward configured for source %q", source)
	}

	return s.AwardXP(ctx, AwardRequest{
		UserID:     userID,
		Source:     source,
		SourceID:   contentID,
		BaseAmount: base,
		OccurredAt: completedAt,
	})
}

// RecordDailyLogin credits the daily login reward at most once per calendar day.
func (s *Service) RecordDailyLogin(ctx context.Context, userID uint, at time.Time) (*AwardResult, error) {
	return s.AwardXP(ctx, AwardRequest{
		UserID:     userID,
		Source:     models.SourceDailyLogin,
		BaseAmount: s.rules.DailyLoginXP,
		OccurredAt: at,
	})
}
