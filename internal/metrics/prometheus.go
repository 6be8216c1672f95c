// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the gamification engine.
var (
	// Counters.
	XPAwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_awards_total",
			Help: "Total XP award attempts by source and outcome (accepted, duplicate, error)",
		},
		[]string{"source", "outcome"},
	)

	XPCreditedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_credited_total",
			Help: "Total XP credited to users by source",
		},
		[]string{"source"},
	)

	StreakBonusAppliedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xp_streak_bonus_applied_total",
			Help: "Number of awards that received the streak multiplier",
		},
	)

	StreakTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streak_transitions_total",
			Help: "Streak state transitions observed on accepted awards",
		},
		[]string{"transition"},
	)

	LevelUpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "level_ups_total",
			Help: "Number of awards that moved a user to a higher level",
		},
	)

	LeaderboardRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_requests_total",
			Help: "Leaderboard queries by scope, period and cache result (hit, miss, stale)",
		},
		[]string{"scope", "period", "cache"},
	)

	LeaderboardRecomputeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_recompute_failures_total",
			Help: "Leaderboard recomputations that failed",
		},
		[]string{"scope", "period"},
	)

	// Gauges.
	LeaderboardSnapshotAgeSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "leaderboard_snapshot_age_seconds",
			Help: "Age of the most recently served leaderboard snapshot",
		},
		[]string{"scope", "period"},
	)

	// Histograms.
	LeaderboardComputeDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leaderboard_compute_duration_seconds",
			Help:    "Time taken to recompute a leaderboard snapshot",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"scope", "period"},
	)

	LeaderboardPopulationSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leaderboard_population_size",
			Help:    "Number of candidates ranked per recomputation",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8), // 10 to ~160k users
		},
		[]string{"scope"},
	)

	// Scheduler metrics.
	CacheWarmRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_cache_warm_runs_total",
			Help: "Total leaderboard cache warming runs",
		},
		[]string{"status"},
	)
)

// RecordAward records the outcome of an award attempt.
func RecordAward(source, outcome string) {
	XPAwardsTotal.WithLabelValues(source, outcome).Inc()
}

// AddCreditedXP adds credited XP for a source.
func AddCreditedXP(source string, amount int64) {
	XPCreditedTotal.WithLabelValues(source).Add(float64(amount))
}

// RecordStreakBonus records an award that received the streak multiplier.
func RecordStreakBonus() {
	StreakBonusAppliedTotal.Inc()
}

// RecordStreakTransition records a streak transition.
func RecordStreakTransition(transition string) {
	StreakTransitionsTotal.WithLabelValues(transition).Inc()
}

// RecordLevelUp records a level increase.
func RecordLevelUp() {
	LevelUpsTotal.Inc()
}

// RecordLeaderboardRequest records a leaderboard query and how the cache served it.
func RecordLeaderboardRequest(scope, period, cacheResult string) {
	LeaderboardRequestsTotal.WithLabelValues(scope, period, cacheResult).Inc()
}

// RecordRecomputeFailure records a failed leaderboard recomputation.
func RecordRecomputeFailure(scope, period string) {
	LeaderboardRecomputeFailuresTotal.WithLabelValues(scope, period).Inc()
}

// SetSnapshotAge sets the age of the served snapshot.
func SetSnapshotAge(scope, period string, seconds float64) {
	LeaderboardSnapshotAgeSeconds.WithLabelValues(scope, period).Set(seconds)
}

// ObserveComputeDuration observes the duration of a leaderboard recomputation.
func ObserveComputeDuration(scope, period string, seconds float64) {
	LeaderboardComputeDurationSeconds.WithLabelValues(scope, period).Observe(seconds)
}

// ObservePopulation observes the candidate population size.
func ObservePopulation(scope string, size int) {
	LeaderboardPopulationSize.WithLabelValues(scope).Observe(float64(size))
}

// RecordCacheWarmRun records a cache warming run.
func RecordCacheWarmRun(status string) {
	CacheWarmRunsTotal.WithLabelValues(status).Inc()
}
