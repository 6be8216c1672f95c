// Package leaderboard provides leaderboard and ranking services.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aimd54/lms-gamification/internal/apperrors"
	"github.com/aimd54/lms-gamification/internal/cache"
	"github.com/aimd54/lms-gamification/internal/config"
	prommetrics "github.com/aimd54/lms-gamification/internal/metrics"
	"github.com/aimd54/lms-gamification/internal/models"
	"github.com/aimd54/lms-gamification/internal/repository"
	"github.com/aimd54/lms-gamification/internal/service/progression"
	"github.com/aimd54/lms-gamification/pkg/logger"
)

// UserRepository interface for user operations.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	ListByOrg(ctx context.Context, filter repository.OrgFilter) ([]models.User, error)
}

// XPRepository interface for XP ledger queries.
type XPRepository interface {
	SumByUser(ctx context.Context, filter repository.OrgFilter, from, to time.Time) (map[uint]int64, error)
}

// Options configures pagination, caching and period boundaries.
type Options struct {
	TTL             time.Duration
	DefaultPageSize int
	MaxPageSize     int
	Location        *time.Location
}

// OptionsFromConfig builds Options from configuration.
func OptionsFromConfig(lb *config.LeaderboardConfig, g *config.GamificationConfig) (Options, error) {
	loc, err := g.GetLocation()
	if err != nil {
		return Options{}, fmt.Errorf("invalid timezone %q: %w", g.Timezone, err)
	}
	return Options{
		TTL:             lb.UpdateInterval,
		DefaultPageSize: lb.DefaultPageSize,
		MaxPageSize:     lb.MaxPageSize,
		Location:        loc,
	}, nil
}

// Query selects one page of a leaderboard for a requesting user.
type Query struct {
	Scope            Scope
	Period           Period
	Page             int
	PageSize         int
	RequestingUserID uint
}

// Result is one page of a leaderboard plus the requesting user's position.
type Result struct {
	Entries          []Entry    `json:"top_users"`
	CurrentUserRank  int        `json:"current_user_rank"`
	CurrentUserEntry *Entry     `json:"current_user_entry"`
	Pagination       Pagination `json:"pagination"`
	TotalUsers       int        `json:"total_users"`
	Scope            Scope      `json:"scope"`
	Period           Period     `json:"period"`
	WindowStart      time.Time  `json:"window_start"`
	WindowEnd        time.Time  `json:"window_end"`
	GeneratedAt      time.Time  `json:"generated_at"`
	Stale            bool       `json:"stale"`
	AgeSeconds       float64    `json:"age_seconds"`
}

// Service handles leaderboard generation.
type Service struct {
	userRepo UserRepository
	xpRepo   XPRepository
	resolver *progression.Resolver
	store    *snapshotStore
	group    singleflight.Group
	opts     Options
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates a new leaderboard service with concrete repository types.
func NewService(
	userRepo *repository.UserRepository,
	xpRepo *repository.XPRepository,
	resolver *progression.Resolver,
	c cache.Cache,
	opts Options,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(userRepo, xpRepo, resolver, c, opts, log)
}

// NewServiceWithInterfaces creates a new leaderboard service with interface dependencies (useful for testing).
// c may be nil, in which case snapshots are cached in process memory for the TTL.
func NewServiceWithInterfaces(
	userRepo UserRepository,
	xpRepo XPRepository,
	resolver *progression.Resolver,
	c cache.Cache,
	opts Options,
	log *logger.Logger,
) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DefaultPageSize < 1 {
		opts.DefaultPageSize = 20
	}
	if opts.MaxPageSize < opts.DefaultPageSize {
		opts.MaxPageSize = opts.DefaultPageSize
	}
	return &Service{
		userRepo: userRepo,
		xpRepo:   xpRepo,
		resolver: resolver,
		store:    newSnapshotStore(c, log),
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

// GetLeaderboard returns one page of the scope/period leaderboard and the requesting
// user's rank, which is exact even when it falls outside the returned page.
func (s *Service) GetLeaderboard(ctx context.Context, q Query) (*Result, error) {
	scope, ok := ParseScope(string(q.Scope))
	if !ok {
		return nil, apperrors.InvalidArgument("invalid scope %q", q.Scope)
	}
	period, ok := ParsePeriod(string(q.Period))
	if !ok {
		return nil, apperrors.InvalidArgument("invalid period %q", q.Period)
	}
	q.Scope, q.Period = scope, period
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Page < 1 {
		return nil, apperrors.InvalidArgument("page must be >= 1, got %d", q.Page)
	}
	if q.PageSize == 0 {
		q.PageSize = s.opts.DefaultPageSize
	}
	if q.PageSize < 1 || q.PageSize > s.opts.MaxPageSize {
		return nil, apperrors.InvalidArgument("page_size must be between 1 and %d, got %d", s.opts.MaxPageSize, q.PageSize)
	}

	requester, err := s.userRepo.GetByID(ctx, q.RequestingUserID)
	if err != nil {
		return nil, err
	}

	filter, unitID, err := scopeFilter(q.Scope, requester)
	if err != nil {
		return nil, err
	}

	snap, cacheResult, err := s.snapshot(ctx, q.Scope, unitID, filter, q.Period, false)
	if err != nil {
		return nil, err
	}

	now := s.now()
	age := now.Sub(snap.ComputedAt).Seconds()
	if age < 0 {
		age = 0
	}
	prommetrics.RecordLeaderboardRequest(string(q.Scope), string(q.Period), cacheResult)
	prommetrics.SetSnapshotAge(string(q.Scope), string(q.Period), age)

	page, pagination := paginate(snap.Entries, q.Page, q.PageSize)
	rank, entry := rankOf(snap.Entries, requester.ID)

	s.log.Debug().
		Str("scope", string(q.Scope)).
		Str("period", string(q.Period)).
		Uint("unit_id", unitID).
		Int("page", q.Page).
		Int("entries", len(page)).
		Int("current_user_rank", rank).
		Str("cache", cacheResult).
		Msg("Retrieved leaderboard")

	return &Result{
		Entries:          page,
		CurrentUserRank:  rank,
		CurrentUserEntry: entry,
		Pagination:       pagination,
		TotalUsers:       pagination.Total,
		Scope:            q.Scope,
		Period:           q.Period,
		WindowStart:      snap.WindowStart,
		WindowEnd:        snap.WindowEnd,
		GeneratedAt:      snap.ComputedAt,
		Stale:            cacheResult == cacheStale,
		AgeSeconds:       age,
	}, nil
}

// scopeFilter derives the candidate population from the requester's organisational unit.
func scopeFilter(scope Scope, requester *models.User) (repository.OrgFilter, uint, error) {
	var unit *uint
	var filter repository.OrgFilter

	switch scope {
	case ScopeIndividual:
		return filter, 0, nil
	case ScopeBranch:
		unit = requester.BranchID
		filter.BranchID = unit
	case ScopeArea:
		unit = requester.AreaID
		filter.AreaID = unit
	case ScopeRegional:
		unit = requester.RegionID
		filter.RegionID = unit
	}

	if unit == nil {
		return filter, 0, apperrors.Forbidden("user %d has no %s unit", requester.ID, scope)
	}
	return filter, *unit, nil
}

// Cache results reported in metrics and logs.
const (
	cacheHit   = "hit"
	cacheMiss  = "miss"
	cacheStale = "stale"
)

// snapshot returns the ranked population for a scope unit and period, from cache when
// fresh, recomputing otherwise. A failed recompute falls back to the last good
// snapshot of the same window.
func (s *Service) snapshot(ctx context.Context, scope Scope, unitID uint, filter repository.OrgFilter, period Period, force bool) (*Snapshot, string, error) {
	start, end := period.Window(s.now(), s.opts.Location)
	key := snapshotKey{Scope: scope, UnitID: unitID, Period: period, WindowStart: start}

	if !force {
		if snap := s.store.fresh(ctx, key, s.opts.TTL, s.now()); snap != nil {
			return snap, cacheHit, nil
		}
	}

	// Waiters share the result, so one caller going away must not cancel it.
	computeCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(key.String(), func() (interface{}, error) {
		return s.compute(computeCtx, scope, unitID, filter, period, start, end)
	})
	if err == nil {
		snap := v.(*Snapshot)
		s.store.save(ctx, key, snap, s.opts.TTL, end.Sub(s.now()))
		return snap, cacheMiss, nil
	}

	prommetrics.RecordRecomputeFailure(string(scope), string(period))
	if last := s.store.lastGood(ctx, key); last != nil {
		s.log.Warn().Err(err).
			Str("scope", string(scope)).
			Str("period", string(period)).
			Uint("unit_id", unitID).
			Time("computed_at", last.ComputedAt).
			Msg("Leaderboard recompute failed, serving last good snapshot")
		return last, cacheStale, nil
	}

	return nil, "", apperrors.Storage("compute leaderboard", err)
}

// compute ranks every candidate in the population by XP earned in [start, end).
func (s *Service) compute(ctx context.Context, scope Scope, unitID uint, filter repository.OrgFilter, period Period, start, end time.Time) (*Snapshot, error) {
	began := time.Now()

	users, err := s.userRepo.ListByOrg(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}

	earned, err := s.xpRepo.SumByUser(ctx, filter, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to sum period xp: %w", err)
	}

	entries := make([]Entry, 0, len(users))
	for _, u := range users {
		progress := s.resolver.Resolve(u.XP)
		entries = append(entries, Entry{
			UserID:   u.ID,
			Name:     u.Name,
			Avatar:   u.Avatar,
			XP:       u.XP,
			XPEarned: earned[u.ID],
			Level:    progress.Level,
			RankName: progress.RankName,
			Streak:   u.StreakDays,
			Diamonds: u.Diamonds,
		})
	}
	rankEntries(entries)

	prommetrics.ObserveComputeDuration(string(scope), string(period), time.Since(began).Seconds())
	prommetrics.ObservePopulation(string(scope), len(entries))

	return &Snapshot{
		Scope:       scope,
		UnitID:      unitID,
		Period:      period,
		WindowStart: start,
		WindowEnd:   end,
		ComputedAt:  s.now(),
		Entries:     entries,
	}, nil
}

// Refresh recomputes and caches the INDIVIDUAL leaderboard for every period.
// It is used by the cache warmer; failures of individual periods are collected.
func (s *Service) Refresh(ctx context.Context) error {
	var failed []Period
	for _, period := range Periods {
		_, result, err := s.snapshot(ctx, ScopeIndividual, 0, repository.OrgFilter{}, period, true)
		if err != nil {
			s.log.Error().Err(err).Str("period", string(period)).Msg("Failed to refresh leaderboard")
		}
		if err != nil || result == cacheStale {
			failed = append(failed, period)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to refresh leaderboard periods %v", failed)
	}
	return nil
}

// Invalidate makes every cached snapshot stale so the next read recomputes.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.store.invalidate(ctx)
}
