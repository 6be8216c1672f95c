// Package scoring converts learning activity into XP ledger entries.
package scoring

import (
	"context"
	"strings"
	"time"

	"github.com/aimd54/lms-gamification/internal/apperrors"
	prommetrics "github.com/aimd54/lms-gamification/internal/metrics"
	"github.com/aimd54/lms-gamification/internal/models"
	"github.com/aimd54/lms-gamification/internal/repository"
	"github.com/aimd54/lms-gamification/internal/service/progression"
	"github.com/aimd54/lms-gamification/internal/service/streak"
	"github.com/aimd54/lms-gamification/pkg/logger"
)

// Ledger interface for XP ledger operations.
type Ledger interface {
	ApplyAward(ctx context.Context, userID uint, plan repository.PlanFunc) (bool, *models.User, error)
	ListByUser(ctx context.Context, userID uint, limit int) ([]models.XPEvent, error)
}

// UserRepository interface for user operations.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// AwardRequest is one XP-granting activity.
type AwardRequest struct {
	UserID     uint
	Source     models.XPSource
	SourceID   string
	BaseAmount int64
	OccurredAt time.Time
}

// AwardResult reports what an award did.
type AwardResult struct {
	Accepted       bool   `json:"accepted"`
	AmountCredited int64  `json:"amount_credited"`
	BonusApplied   bool   `json:"bonus_applied"`
	XP             int64  `json:"xp"`
	Level          int    `json:"level"`
	RankName       string `json:"rank_name"`
	LeveledUp      bool   `json:"leveled_up"`
	StreakDays     int    `json:"streak_days"`
	Diamonds       int64  `json:"diamonds"`
}

// Service handles XP awards and progress lookups.
type Service struct {
	ledger   Ledger
	users    UserRepository
	resolver *progression.Resolver
	rules    Rules
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates a new scoring service with concrete repository types.
func NewService(
	ledger *repository.XPRepository,
	users *repository.UserRepository,
	resolver *progression.Resolver,
	rules Rules,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(ledger, users, resolver, rules, log)
}

// NewServiceWithInterfaces creates a new scoring service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	ledger Ledger,
	users UserRepository,
	resolver *progression.Resolver,
	rules Rules,
	log *logger.Logger,
) *Service {
	return &Service{
		ledger:   ledger,
		users:    users,
		resolver: resolver,
		rules:    rules,
		log:      log,
		now:      time.Now,
	}
}

// normalize validates req and fills derived fields.
func (s *Service) normalize(req AwardRequest) (AwardRequest, error) {
	if req.UserID == 0 {
		return req, apperrors.InvalidArgument("user_id is required")
	}
	if req.BaseAmount <= 0 {
		return req, apperrors.InvalidArgument("base_amount must be positive, got %d", req.BaseAmount)
	}
	if s.rules.MaxAwardXP > 0 && req.BaseAmount > s.rules.MaxAwardXP {
		return req, apperrors.InvalidArgument("base_amount %d exceeds the limit of %d", req.BaseAmount, s.rules.MaxAwardXP)
	}
	if _, ok := models.ParseXPSource(string(req.Source)); !ok {
		return req, apperrors.InvalidArgument("unknown xp source %q", req.Source)
	}
	if req.OccurredAt.IsZero() {
		req.OccurredAt = s.now()
	}
	req.OccurredAt = req.OccurredAt.UTC()

	if req.Source.Repeatable() {
		// One credit per calendar day: the date is the idempotency key.
		req.SourceID = streak.Day(req.OccurredAt, s.rules.location()).Format(time.DateOnly)
		return req, nil
	}

	req.SourceID = strings.TrimSpace(req.SourceID)
	if req.SourceID == "" {
		return req, apperrors.InvalidArgument("source_id is required for source %q", req.Source)
	}
	return req, nil
}

// AwardXP credits XP for one activity. A repeated idempotency key is not an error:
// it yields Accepted=false and AmountCredited=0.
func (s *Service) AwardXP(ctx context.Context, req AwardRequest) (*AwardResult, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}

	var (
		credited   int64
		bonus      bool
		transition streak.Transition
		prevLevel  int
	)

	plan := func(user *models.User) (*repository.AwardPlan, error) {
		day := streak.Day(req.OccurredAt, s.rules.location())
		next, tr := streak.Advance(
			streak.State{LastActiveDay: user.LastActiveDay, Days: user.StreakDays},
			day,
			s.rules.MaxStreakDays,
		)

		var err error
		credited, bonus, err = s.rules.creditFor(req.BaseAmount, next.Days)
		if err != nil {
			return nil, err
		}
		transition = tr
		prevLevel = s.resolver.Level(user.XP)

		return &repository.AwardPlan{
			Event: models.XPEvent{
				Source:     req.Source,
				SourceID:   req.SourceID,
				Amount:     credited,
				OccurredAt: req.OccurredAt,
			},
			Diamonds:      s.rules.diamondsFor(credited),
			UpdateStreak:  tr != streak.Ignored,
			StreakDays:    next.Days,
			LastActiveDay: next.LastActiveDay,
		}, nil
	}

	accepted, user, err := s.ledger.ApplyAward(ctx, req.UserID, plan)
	if err != nil {
		prommetrics.RecordAward(string(req.Source), "error")
		s.log.Error().Err(err).
			Uint("user_id", req.UserID).
			Str("source", string(req.Source)).
			Str("source_id", req.SourceID).
			Msg("Failed to award XP")
		return nil, err
	}

	progress := s.resolver.Resolve(user.XP)
	result := &AwardResult{
		Accepted:   accepted,
		XP:         user.XP,
		Level:      progress.Level,
		RankName:   progress.RankName,
		StreakDays: user.StreakDays,
		Diamonds:   user.Diamonds,
	}

	if !accepted {
		prommetrics.RecordAward(string(req.Source), "duplicate")
		s.log.Debug().
			Uint("user_id", req.UserID).
			Str("source", string(req.Source)).
			Str("source_id", req.SourceID).
			Msg("XP already awarded for this activity")
		return result, nil
	}

	result.AmountCredited = credited
	result.BonusApplied = bonus
	result.LeveledUp = progress.Level > prevLevel

	prommetrics.RecordAward(string(req.Source), "accepted")
	prommetrics.AddCreditedXP(string(req.Source), credited)
	prommetrics.RecordStreakTransition(string(transition))
	if bonus {
		prommetrics.RecordStreakBonus()
	}
	if result.LeveledUp {
		prommetrics.RecordLevelUp()
	}

	s.log.Info().
		Uint("user_id", req.UserID).
		Str("source", string(req.Source)).
		Str("source_id", req.SourceID).
		Int64("base_amount", req.BaseAmount).
		Int64("credited", credited).
		Bool("streak_bonus", bonus).
		Int("streak_days", user.StreakDays).
		Int("level", progress.Level).
		Msg("XP awarded")

	return result, nil
}
