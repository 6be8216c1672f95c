// Package gamification provides REST API handlers for XP awards, progress and leaderboards.
package gamification

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/lms-gamification/internal/apperrors"
	"github.com/aimd54/lms-gamification/internal/models"
	"github.com/aimd54/lms-gamification/internal/repository"
	"github.com/aimd54/lms-gamification/internal/service/leaderboard"
	"github.com/aimd54/lms-gamification/internal/service/progression"
	"github.com/aimd54/lms-gamification/internal/service/scoring"
	"github.com/aimd54/lms-gamification/pkg/logger"
)

// ScoringService interface for XP operations.
type ScoringService interface {
	AwardXP(ctx context.Context, req scoring.AwardRequest) (*scoring.AwardResult, error)
	AwardQuizCompletion(ctx context.Context, c scoring.QuizCompletion) (*scoring.AwardResult, error)
	AwardContentCompletion(ctx context.Context, userID uint, source models.XPSource, contentID string, completedAt time.Time) (*scoring.AwardResult, error)
	RecordDailyLogin(ctx context.Context, userID uint, at time.Time) (*scoring.AwardResult, error)
	GetProgress(ctx context.Context, userID uint) (*scoring.UserProgress, error)
	History(ctx context.Context, userID uint, limit int) ([]models.XPEvent, error)
}

// LeaderboardService interface for leaderboard operations.
type LeaderboardService interface {
	GetLeaderboard(ctx context.Context, q leaderboard.Query) (*leaderboard.Result, error)
	Invalidate(ctx context.Context) error
}

// Handler handles gamification API requests.
type Handler struct {
	scoring     ScoringService
	leaderboard LeaderboardService
	users       UserLookup
	ranks       *progression.RankTable
	userHeader  string
	log         *logger.Logger
}

// NewHandler creates a new gamification handler.
func NewHandler(
	scoringService *scoring.Service,
	leaderboardService *leaderboard.Service,
	users *repository.UserRepository,
	ranks *progression.RankTable,
	userHeader string,
	log *logger.Logger,
) *Handler {
	return NewHandlerWithInterfaces(scoringService, leaderboardService, users, ranks, userHeader, log)
}

// NewHandlerWithInterfaces creates a new gamification handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(
	scoringService ScoringService,
	leaderboardService LeaderboardService,
	users UserLookup,
	ranks *progression.RankTable,
	userHeader string,
	log *logger.Logger,
) *Handler {
	if userHeader == "" {
		userHeader = DefaultUserHeader
	}
	return &Handler{
		scoring:     scoringService,
		leaderboard: leaderboardService,
		users:       users,
		ranks:       ranks,
		userHeader:  userHeader,
		log:         log,
	}
}

type awardRequest struct {
	UserID     uint       `json:"user_id"`
	Source     string     `json:"source" binding:"required"`
	SourceID   string     `json:"source_id"`
	BaseAmount *int64     `json:"base_amount"`
	OccurredAt *time.Time `json:"occurred_at"`
}

// AwardXP credits XP for a learning activity. Without base_amount the configured
// fixed reward for the source applies. Only admin and system callers may set
// base_amount explicitly.
// POST /api/v1/xp/award.
func (h *Handler) AwardXP(c *gin.Context) {
	current := getCurrentUser(c)

	var body awardRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	source, ok := models.ParseXPSource(body.Source)
	if !ok {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid source: %s", body.Source))
		return
	}

	userID := body.UserID
	if userID == 0 {
		userID = current.ID
	}
	if userID != current.ID && !current.IsPrivileged() {
		h.handleError(c, apperrors.Forbidden("user %d may not award XP to user %d", current.ID, userID))
		return
	}
	if body.BaseAmount != nil {
		if !current.IsPrivileged() {
			h.handleError(c, apperrors.Forbidden("user %d may not set base_amount", current.ID))
			return
		}
		if *body.BaseAmount <= 0 {
			h.errorResponse(c, http.StatusBadRequest, "base_amount must be positive")
			return
		}
	}

	req := scoring.AwardRequest{
		UserID:   userID,
		Source:   source,
		SourceID: body.SourceID,
	}
	if body.OccurredAt != nil {
		req.OccurredAt = *body.OccurredAt
	}

	var result *scoring.AwardResult
	var err error
	if body.BaseAmount == nil {
		// No explicit amount: use the configured fixed reward for the source.
		result, err = h.scoring.AwardContentCompletion(c.Request.Context(), req.UserID, req.Source, req.SourceID, req.OccurredAt)
	} else {
		req.BaseAmount = *body.BaseAmount
		result, err = h.scoring.AwardXP(c.Request.Context(), req)
	}
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.awardResponse(c, userID, result)
}

type quizCompletionRequest struct {
	Score       float64    `json:"score"`
	MaxScore    float64    `json:"max_score" binding:"required"`
	CompletedAt *time.Time `json:"completed_at"`
}

// CompleteQuiz credits the session user for a graded quiz attempt.
// POST /api/v1/quizzes/:id/complete.
func (h *Handler) CompleteQuiz(c *gin.Context) {
	current := getCurrentUser(c)

	var body quizCompletionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	completion := scoring.QuizCompletion{
		UserID:   current.ID,
		QuizID:   c.Param("id"),
		Score:    body.Score,
		MaxScore: body.MaxScore,
	}
	if body.CompletedAt != nil {
		completion.CompletedAt = *body.CompletedAt
	}

	result, err := h.scoring.AwardQuizCompletion(c.Request.Context(), completion)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.awardResponse(c, current.ID, result)
}

// DailyLogin records the session user's daily login.
// POST /api/v1/daily-login.
func (h *Handler) DailyLogin(c *gin.Context) {
	current := getCurrentUser(c)

	result, err := h.scoring.RecordDailyLogin(c.Request.Context(), current.ID, time.Now())
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.awardResponse(c, current.ID, result)
}

func (h *Handler) awardResponse(c *gin.Context, userID uint, result *scoring.AwardResult) {
	h.log.Info().
		Uint("user_id", userID).
		Bool("accepted", result.Accepted).
		Int64("amount_credited", result.AmountCredited).
		Msg("Processed XP award")

	c.JSON(http.StatusOK, gin.H{
		"user_id":         userID,
		"accepted":        result.Accepted,
		"amount_credited": result.AmountCredited,
		"bonus_applied":   result.BonusApplied,
		"xp":              result.XP,
		"level":           result.Level,
		"rank_name":       result.RankName,
		"leveled_up":      result.LeveledUp,
		"streak_days":     result.StreakDays,
		"diamonds":        result.Diamonds,
		"generated_at":    time.Now().UTC(),
	})
}

// GetLeaderboard returns one page of a leaderboard with the session user's rank.
// GET /api/v1/leaderboard?scope=BRANCH&period=WEEKLY&page=1&page_size=20.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	current := getCurrentUser(c)

	scope, ok := leaderboard.ParseScope(c.DefaultQuery("scope", string(leaderboard.ScopeIndividual)))
	if !ok {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid scope: %s (valid: %s)", c.Query("scope"), joinNames(leaderboard.Scopes)))
		return
	}
	period, ok := leaderboard.ParsePeriod(c.DefaultQuery("period", string(leaderboard.PeriodWeekly)))
	if !ok {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid period: %s (valid: %s)", c.Query("period"), joinNames(leaderboard.Periods)))
		return
	}

	page, err := h.parseIntQuery(c, "page")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	pageSize, err := h.parseIntQuery(c, "page_size", "pageSize")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.leaderboard.GetLeaderboard(c.Request.Context(), leaderboard.Query{
		Scope:            scope,
		Period:           period,
		Page:             page,
		PageSize:         pageSize,
		RequestingUserID: current.ID,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"top_users":          result.Entries,
		"current_user_rank":  result.CurrentUserRank,
		"current_user_entry": result.CurrentUserEntry,
		"pagination":         result.Pagination,
		"total_users":        result.TotalUsers,
		"scope":              result.Scope,
		"period":             result.Period,
		"window_start":       result.WindowStart,
		"window_end":         result.WindowEnd,
		"stale":              result.Stale,
		"age_seconds":        result.AgeSeconds,
		"generated_at":       result.GeneratedAt.UTC(),
	})
}

// InvalidateLeaderboards forces the next leaderboard reads to recompute.
// POST /api/v1/leaderboard/invalidate.
func (h *Handler) InvalidateLeaderboards(c *gin.Context) {
	current := getCurrentUser(c)
	if current.Role != models.RoleAdmin {
		h.handleError(c, apperrors.Forbidden("leaderboard invalidation requires the admin role"))
		return
	}

	if err := h.leaderboard.Invalidate(c.Request.Context()); err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().Uint("user_id", current.ID).Msg("Invalidated leaderboard cache")
	c.Status(http.StatusNoContent)
}

// GetRankLevel returns a user's level, rank and XP.
// GET /api/v1/users/:id/rank-level.
func (h *Handler) GetRankLevel(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	progress, err := h.scoring.GetProgress(c.Request.Context(), userID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":          progress.UserID,
		"level":            progress.Level,
		"rank_name":        progress.RankName,
		"xp":               progress.XP,
		"next_rank_name":   progress.NextRankName,
		"xp_to_next_rank":  progress.XPToNextRank,
		"xp_to_next_level": progress.XPToNextLevel,
		"diamonds":         progress.Diamonds,
		"streak_days":      progress.StreakDays,
		"effective_streak": progress.EffectiveStreak,
		"generated_at":     time.Now().UTC(),
	})
}

// GetXPHistory returns a user's most recent XP events. Users may only read their
// own history unless privileged.
// GET /api/v1/users/:id/xp-history?limit=50.
func (h *Handler) GetXPHistory(c *gin.Context) {
	current := getCurrentUser(c)

	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if userID != current.ID && !current.IsPrivileged() {
		h.handleError(c, apperrors.Forbidden("user %d may not read the history of user %d", current.ID, userID))
		return
	}

	limit, err := h.parseLimit(c, 50)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.scoring.History(c.Request.Context(), userID, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"events":       events,
		"total_events": len(events),
		"generated_at": time.Now().UTC(),
	})
}

// GetRanks returns the configured rank table.
// GET /api/v1/ranks.
func (h *Handler) GetRanks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":      h.ranks.Version(),
		"ranks":        h.ranks.Tiers(),
		"generated_at": time.Now().UTC(),
	})
}

// Helper functions

// parseUserID extracts and validates the user ID from the URL parameter.
func (h *Handler) parseUserID(c *gin.Context) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid user ID: %s", idStr)
	}
	return uint(id), nil
}

// parseIntQuery reads the first present of names as an integer. Absent yields 0.
func (h *Handler) parseIntQuery(c *gin.Context, names ...string) (int, error) {
	for _, name := range names {
		raw := strings.TrimSpace(c.Query(name))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s parameter: %s", name, raw)
		}
		return v, nil
	}
	return 0, nil
}

// parseLimit extracts and validates the limit query parameter.
func (h *Handler) parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}

	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}

	if limit > 500 {
		return 0, fmt.Errorf("limit cannot exceed 500")
	}

	return limit, nil
}

// handleError maps a service error to its HTTP status and logs server-side failures.
func (h *Handler) handleError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	h.errorResponse(c, status, message)
}

func (h *Handler) abortWithError(c *gin.Context, err error) {
	h.handleError(c, err)
	c.Abort()
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}

func joinNames[T ~string](names []T) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}
