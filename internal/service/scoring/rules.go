package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/aimd54/lms-gamification/internal/apperrors"
	"github.com/aimd54/lms-gamification/internal/config"
	"github.com/aimd54/lms-gamification/internal/models"
)

// Rules holds the XP crediting policy.
type Rules struct {
	StreakBonusThreshold  int
	StreakBonusMultiplier float64
	RewardCrystalsPerXP   float64
	MaxStreakDays         int
	DailyLoginXP          int64
	QuizXP                int64
	MaxAwardXP            int64 // zero disables the ceiling
	AllowQuizRetakeCredit bool
	XPRewards             map[models.XPSource]int64
	Location              *time.Location
}

// RulesFromConfig builds Rules from the gamification configuration section.
func RulesFromConfig(cfg *config.GamificationConfig) (Rules, error) {
	loc, err := cfg.GetLocation()
	if err != nil {
		return Rules{}, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	if cfg.MaxAwardXP > 0 && (cfg.QuizXP > cfg.MaxAwardXP || cfg.DailyLoginXP > cfg.MaxAwardXP) {
		return Rules{}, fmt.Errorf("quiz_xp and daily_login_xp must not exceed max_award_xp %d", cfg.MaxAwardXP)
	}

	rewards := make(map[models.XPSource]int64, len(cfg.XPRewards))
	for name, amount := range cfg.XPRewards {
		source, ok := models.ParseXPSource(name)
		if !ok || source.Repeatable() || source == models.SourceQuiz {
			return Rules{}, fmt.Errorf("xp_rewards: %q is not a fixed-reward source", name)
		}
		if amount <= 0 {
			return Rules{}, fmt.Errorf("xp_rewards: %q must be positive", name)
		}
		if cfg.MaxAwardXP > 0 && amount > cfg.MaxAwardXP {
			return Rules{}, fmt.Errorf("xp_rewards: %q exceeds max_award_xp %d", name, cfg.MaxAwardXP)
		}
		rewards[source] = amount
	}

	return Rules{
		StreakBonusThreshold:  cfg.StreakBonusThreshold,
		StreakBonusMultiplier: cfg.StreakBonusMultiplier,
		RewardCrystalsPerXP:   cfg.RewardCrystalsPerXP,
		MaxStreakDays:         cfg.MaxStreakDays,
		DailyLoginXP:          cfg.DailyLoginXP,
		QuizXP:                cfg.QuizXP,
		MaxAwardXP:            cfg.MaxAwardXP,
		AllowQuizRetakeCredit: cfg.AllowQuizRetakeCredit,
		XPRewards:             rewards,
		Location:              loc,
	}, nil
}

// creditFor applies the streak multiplier once to base when streakDays qualifies.
// It fails when the multiplied amount does not fit in an int64.
func (r Rules) creditFor(base int64, streakDays int) (int64, bool, error) {
	if r.StreakBonusThreshold <= 0 || streakDays < r.StreakBonusThreshold || r.StreakBonusMultiplier == 1 {
		return base, false, nil
	}
	scaled := math.Round(float64(base) * r.StreakBonusMultiplier)
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
	if scaled >= float64(math.MaxInt64) {
		return 0, false, apperrors.InvalidArgument("base_amount %d overflows with streak bonus", base)
	}
	return int64(scaled), true, nil
}

// diamondsFor converts credited XP into reward crystals, rounding down.
func (r Rules) diamondsFor(credited int64) int64 {
	// The epsilon absorbs binary representation error, e.g. 0.29*100.
	return int64(math.Floor(float64(credited)*r.RewardCrystalsPerXP + 1e-9))
}

func (r Rules) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}
