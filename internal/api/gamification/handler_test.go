//nolint:noctx // Test file uses http.NewRequest for simplicity
package gamification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/lms-gamification/internal/apperrors"
	"github.com/aimd54/lms-gamification/internal/models"
	"github.com/aimd54/lms-gamification/internal/service/leaderboard"
	"github.com/aimd54/lms-gamification/internal/service/progression"
	"github.com/aimd54/lms-gamification/internal/service/scoring"
	"github.com/aimd54/lms-gamification/pkg/logger"
	"github.com/aimd54/lms-gamification/test/mocks"
)

// Mock Scoring Service
type mockScoringService struct {
	lastAward   *scoring.AwardRequest
	lastContent *scoring.AwardRequest
	lastQuiz    *scoring.QuizCompletion
	logins      []uint
	result      *scoring.AwardResult
	progress    map[uint]*scoring.UserProgress
	history     map[uint][]models.XPEvent
	err         error
}

func newMockScoringService() *mockScoringService {
	return &mockScoringService{
		result:   &scoring.AwardResult{Accepted: true, AmountCredited: 50, XP: 550, Level: 6, RankName: "Apprentice", StreakDays: 2},
		progress: make(map[uint]*scoring.UserProgress),
		history:  make(map[uint][]models.XPEvent),
	}
}

func (m *mockScoringService) AwardXP(ctx context.Context, req scoring.AwardRequest) (*scoring.AwardResult, error) {
	m.lastAward = &req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockScoringService) AwardQuizCompletion(ctx context.Context, c scoring.QuizCompletion) (*scoring.AwardResult, error) {
	m.lastQuiz = &c
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockScoringService) AwardContentCompletion(ctx context.Context, userID uint, source models.XPSource, contentID string, completedAt time.Time) (*scoring.AwardResult, error) {
	m.lastContent = &scoring.AwardRequest{UserID: userID, Source: source, SourceID: contentID, OccurredAt: completedAt}
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockScoringService) RecordDailyLogin(ctx context.Context, userID uint, at time.Time) (*scoring.AwardResult, error) {
	m.logins = append(m.logins, userID)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockScoringService) GetProgress(ctx context.Context, userID uint) (*scoring.UserProgress, error) {
	p, ok := m.progress[userID]
	if !ok {
		return nil, apperrors.NotFound("user %d not found", userID)
	}
	return p, nil
}

func (m *mockScoringService) History(ctx context.Context, userID uint, limit int) ([]models.XPEvent, error) {
	events := m.history[userID]
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// Mock Leaderboard Service
type mockLeaderboardService struct {
	lastQuery   *leaderboard.Query
	result      *leaderboard.Result
	err         error
	invalidated int
}

func (m *mockLeaderboardService) GetLeaderboard(ctx context.Context, q leaderboard.Query) (*leaderboard.Result, error) {
	m.lastQuery = &q
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockLeaderboardService) Invalidate(ctx context.Context) error {
	m.invalidated++
	return m.err
}

type fakeCheck struct{ err error }

func (f fakeCheck) Health(context.Context) error { return f.err }

func setupTestHandler() (*Handler, *mockScoringService, *mockLeaderboardService) {
	scoringService := newMockScoringService()
	leaderboardService := &mockLeaderboardService{
		result: &leaderboard.Result{
			Entries:         []leaderboard.Entry{{UserID: 2, Rank: 1, XPEarned: 300}},
			CurrentUserRank: 53,
			Pagination:      leaderboard.Pagination{Page: 1, PageSize: 20, Total: 60, TotalPages: 3},
			TotalUsers:      60,
			Scope:           leaderboard.ScopeIndividual,
			Period:          leaderboard.PeriodWeekly,
			GeneratedAt:     time.Now(),
		},
	}
	users := &mocks.MockUserRepository{Users: []models.User{
		{ID: 1, Name: "learner", Role: models.RoleLearner},
		{ID: 2, Name: "admin", Role: models.RoleAdmin},
		{ID: 3, Name: "system", Role: models.RoleSystem},
		{ID: 4, Name: "manager", Role: models.RoleManager},
	}}

	handler := NewHandlerWithInterfaces(scoringService, leaderboardService, users, progression.DefaultRankTable(), "", logger.Nop())

	return handler, scoringService, leaderboardService
}

func setupRouter(handler *Handler, checks map[string]HealthChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return handler.NewRouter(RouterOptions{Checks: checks, MetricsPath: "/metrics"})
}

func doRequest(router *gin.Engine, method, path, userID string, body string) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(DefaultUserHeader, userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

// Tests

func TestSession_RejectsMissingOrUnknownUser(t *testing.T) {
	handler, _, _ := setupTestHandler()
	router := setupRouter(handler, nil)

	for _, userID := range []string{"", "abc", "0", "99"} {
		w := doRequest(router, "GET", "/api/v1/ranks", userID, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, "user header %q", userID)
		assert.Contains(t, decode(t, w), "error")
	}
}

func TestAwardXP_Self(t *testing.T) {
	handler, scoringService, _ := setupTestHandler()
	router := setupRouter(handler, nil)

	w := doRequest(router, "POST", "/api/v1/xp/award", "2",
		`{"source":"lesson","source_id":"lesson-7","base_amount":50,"occurred_at":"2025-03-12T10:00:00Z"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, scoringService.lastAward)
	assert.Equal(t, uint(2), scoringService.lastAward.UserID)
	assert.Equal(t, models.SourceLesson, scoringService.lastAward.Source)
	assert.Equal(t, "lesson-7", scoringService.lastAward.SourceID)
	assert.Equal(t, int64(50), scoringService.lastAward.BaseAmount)
	assert.True(t, scoringService.lastAward.OccurredAt.Equal(time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)))

	response := decode(t, w)
	assert.Equal(t, true, response["accepted"])
	assert.Equal(t, float64(50), response["amount_credited"])
	assert.Equal(t, float64(6), response["level"])
	assert.Equal(t, "Apprentice", response["rank_name"])
	assert.Equal(t, float64(2), response["streak_days"])
}

func TestAwardXP_FixedRewardWithoutAmount(t *testing.T) {
	handler, scoringService, _ := setupTestHandler()
	router := setupRouter(handler, nil)

	w := doRequest(router, "POST", "/api/v1/xp/award", "1", `{"source":"module","source_id":"mod-3"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, scoringService.lastAward)
	require.NotNil(t, scoringService.lastContent)
	assert.Equal(t, models.SourceModule, scoringService.lastContent.Source)
	assert.Equal(t, "mod-3", scoringService.lastContent.SourceID)
	assert.Equal(t, uint(1), scoringService.lastContent.UserID)
}

func TestAwardXP_ExplicitAmountRequiresPrivilege(t *testing.T) {
	tests := []struct {
		name     string
		caller   string
		wantCode int
	}{
		{"learner", "1", http.StatusForbidden},
		{"manager", "4", http.StatusForbidden},
		{"admin", "2", http.StatusOK},
		{"system", "3", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, scoringService, _ := setupTestHandler()
			router := setupRouter(handler, nil)

			w := doRequest(router, "POST", "/api/v1/xp/award", tt.caller,
				`{"source":"task","source_id":"anything-1","base_amount":1000000000}`)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Nil(t, scoringService.lastContent)
			if tt.wantCode == http.StatusOK {
				require.NotNil(t, scoringService.lastAward)
				assert.Equal(t, int64(1000000000), scoringService.lastAward.BaseAmount)
			} else {
				assert.Nil(t, scoringService.lastAward)
				assert.Contains(t, decode(t, w)["error"], "base_amount")
			}
		})
	}
}

func TestAwardXP_ExplicitNonPositiveAmount(t *testing.T) {
	for _, amount := range []string{"0", "-5"} {
		t.Run(amount, func(t *testing.T) {
			handler, scoringService, _ := setupTestHandler()
			router := setupRouter(handler, nil)

			w := doRequest(router, "POST", "/api/v1/xp/award", "2",
				`{"source":"lesson","source_id":"L1","base_amount":`+amount+`}`)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Nil(t, scoringService.lastAward)
			assert.Nil(t, scoringService.lastContent)
		})
	}
}

func TestAwardXP_ForAnotherUser(t *testing.T) {
	tests := []struct {
		name     string
		caller   string
		wantCode int
	}{
		{"learner", "1", http.StatusForbidden},
		{"manager", "4", http.StatusForbidden},
		{"admin", "2", http.StatusOK},
		{"system", "3", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, scoringService, _ := setupTestHandler()
			router := setupRouter(handler, nil)

			w := doRequest(router, "POST", "/api/v1/xp/award", tt.caller,
				`{"user_id":5,"source":"course","source_id":"c-1","base_amount":500}`)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				require.NotNil(t, scoringService.lastAward)
				assert.Equal(t, uint(5), scoringService.lastAward.UserID)
			} else {
				assert.Nil(t, scoringService.lastAward)
			}
		})
	}
}

func TestAwardXP_BadRequests(t *testing.T) {
	handler, scoringService, _ := setupTestHandler()
	router := setupRouter(handler, nil)

	for _, body := range []string{
		`not json`,
		`{"source_id":"x","base_amount":5}`,
		`{"source":"webinar","source_id":"x","base_amount":5}`,
	} {
		w := doRequest(router, "POST", "/api/v1/xp/award", "1", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Nil(t, scoringService.lastAward)
}

func TestAwardXP_ServiceErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"invalid argument", apperrors.InvalidArgument("base amount must be positive"), http.StatusBadRequest},
		{"unknown user", apperrors.NotFound("user 1 not found"), http.StatusNotFound},
		{"storage down", apperrors.Storage("apply award", errors.New("connection refused")), http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, scoringService, _ := setupTestHandler()
			scoringService.err = tt.err
			router := setupRouter(handler, nil)

			w := doRequest(router, "POST", "/api/v1/xp/award", "2", `{"source":"task","source_id":"t-1","base_amount":10}`)
			assert.Equal(t, tt.wantCode, w.Code)

			response := decode(t, w)
			assert.Contains(t, response, "error")
			assert.Contains(t, response, "timestamp")
		})
	}
}

func TestCompleteQuiz(t *testing.T) {
	handler, scoringService, _ := setupTestHandler()
	router := setupRouter(handler, nil)

	w := doRequest(router, "POST", "/api/v1/quizzes/quiz-42/complete", "1", `{"score":8,"max_score":10}`)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, scoringService.lastQuiz)
	assert.Equal(t, "quiz-42", scoringService.lastQuiz.QuizID)
	assert.Equal(t, uint(1), scoringService.lastQuiz.UserID)
	assert.Equal(t, 8.0, scoringService.lastQuiz.Score)
	assert.Equal(t, 10.0, scoringService.lastQuiz.MaxScore)

	w = doRequest(router, "POST", "/api/v1/quizzes/quiz-42/complete", "1", `{"score":8}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDailyLogin(t *testing.T) {
	handler, scoringService, _ := setupTestHandler()
	router := setupRouter(handler, nil)

	w := doRequest(router, "POST", "/api/v1/daily-login", "4", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uint{4}, scoringService.logins)
	assert.Equal(t, float64(4), decode(t, w)["user_id"])
}

func TestGetLeaderboard_Defaults(t *testing.T) {
	handler, _, leaderboardService := setupTestHandler()
	router := setupRouter(handler, nil)

	w := doRequest(router, "GET", "/api/v1/leaderboard", "1", "")

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, leaderboardService.lastQuery)
	assert.Equal(t, leaderboard.Query{
		Scope:            leaderboard.ScopeIndividual,
		Period:           leaderboard.PeriodWeekly,
		RequestingUserID: 1,
	}, *leaderboardService.lastQuery)

	response := decode(t, w)
	assert.Equal(t, float64(53), response["current_user_rank"])
	assert.Equal(t, float64(60), response["total_users"])
	assert.Len(t, response["top_users"], 1)
	assert.Equal(t, false, response["stale"])
}

func TestGetLeaderboard_Parameters(t *testing.T) {
	handler, _, leaderboardService := setupTestHandler()
	router := setupRouter(handler, nil)

	w := doRequest(router, "GET", "/api/v1/leaderboard?scope=branch&period=MONTHLY&page=3&page_size=10", "1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, leaderboard.ScopeBranch, leaderboardService.lastQuery.Scope)
	assert.Equal(t, leaderboard.PeriodMonthly, leaderboardService.lastQuery.Period)
	assert.Equal(t, 3, leaderboardService.lastQuery.Page)
	assert.Equal(t, 10, leaderboardService.lastQuery.PageSize)

	w = doRequest(router, "GET", "/api/v1/leaderboard?pageSize=25", "1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 25, leaderboardService.lastQuery.PageSize)
}

func TestGetLeaderboard_InvalidParameters(t *testing.T) {
	handler, _, leaderboardService := setupTestHandler()
	router := setupRouter(handler, nil)

	for _, query := range []string{"scope=team", "period=hourly", "page=first", "page_size=big"} {
		w := doRequest(router, "GET", "/api/v1/leaderboard?"+query, "1", "")
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
	assert.Nil(t, leaderboardService.lastQuery)

	w := doRequest(router, "GET", "/api/v1/leaderboard?scope=team", "1", "")
	assert.Equal(t, "invalid scope: team (valid: INDIVIDUAL, BRANCH, AREA, REGIONAL)", decode(t, w)["error"])
	w = doRequest(router, "GET", "/api/v1/leaderboard?period=hourly", "1", "")
	assert.Equal(t, "invalid period: hourly (valid: DAILY, WEEKLY, MONTHLY, YEARLY)", decode(t, w)["error"])
}

func TestGetLeaderboard_ServiceErrors(t *testing.T) {
	handler, _, leaderboardService := setupTestHandler()
	router := setupRouter(handler, nil)

	leaderboardService.err = apperrors.Forbidden("user 1 has no BRANCH unit")
	w := doRequest(router, "GET", "/api/v1/leaderboard?scope=BRANCH", "1", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	leaderboardService.err = apperrors.InvalidArgument("page_size must be between 1 and 100, got 500")
	w = doRequest(router, "GET", "/api/v1/leaderboard?page_size=500", "1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvalidateLeaderboards(t *testing.T) {
	handler, _, leaderboardService := setupTestHandler()
	router := setupRouter(handler, nil)

	w := doRequest(router, "POST", "/api/v1/leaderboard/invalidate", "1", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, leaderboardService.invalidated)

	w = doRequest(router, "POST", "/api/v1/leaderboard/invalidate", "2", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, leaderboardService.invalidated)
}

func TestGetRankLevel(t *testing.T) {
	handler, scoringService, _ := setupTestHandler()
	router := setupRouter(handler, nil)

	scoringService.progress[7] = &scoring.UserProgress{
		UserID: 7,
		Progress: progression.Progress{
			XP: 1600, Level: 17, RankName: "Practitioner",
			NextRankName: "Specialist", XPToNextRank: 2400, XPToNextLevel: 100,
		},
		StreakDays: 3,
	}

	w := doRequest(router, "GET", "/api/v1/users/7/rank-level", "1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	assert.Equal(t, float64(17), response["level"])
	assert.Equal(t, "Practitioner", response["rank_name"])
	assert.Equal(t, float64(1600), response["xp"])
	assert.Equal(t, "Specialist", response["next_rank_name"])

	w = doRequest(router, "GET", "/api/v1/users/abc/rank-level", "1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, "GET", "/api/v1/users/8/rank-level", "1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetXPHistory(t *testing.T) {
	handler, scoringService, _ := setupTestHandler()
	router := setupRouter(handler, nil)

	scoringService.history[1] = []models.XPEvent{
		{ID: 2, UserID: 1, Source: models.SourceTask, SourceID: "t-2", Amount: 10},
		{ID: 1, UserID: 1, Source: models.SourceTask, SourceID: "t-1", Amount: 10},
	}

	w := doRequest(router, "GET", "/api/v1/users/1/xp-history?limit=1", "1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total_events"])

	w = doRequest(router, "GET", "/api/v1/users/1/xp-history", "4", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(router, "GET", "/api/v1/users/1/xp-history", "2", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["total_events"])

	w = doRequest(router, "GET", "/api/v1/users/1/xp-history?limit=0", "1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRanks(t *testing.T) {
	handler, _, _ := setupTestHandler()
	router := setupRouter(handler, nil)

	w := doRequest(router, "GET", "/api/v1/ranks", "1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	ranks, ok := response["ranks"].([]interface{})
	require.True(t, ok)
	assert.Len(t, ranks, len(progression.DefaultRankTable().Tiers()))
}

func TestHealth(t *testing.T) {
	handler, _, _ := setupTestHandler()

	router := setupRouter(handler, map[string]HealthChecker{"postgres": fakeCheck{}, "redis": fakeCheck{}})
	w := doRequest(router, "GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	router = setupRouter(handler, map[string]HealthChecker{"postgres": fakeCheck{}, "redis": fakeCheck{err: errors.New("down")}})
	w = doRequest(router, "GET", "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	response := decode(t, w)
	assert.Equal(t, "unhealthy", response["status"])
	assert.Equal(t, map[string]interface{}{"postgres": "healthy", "redis": "unhealthy"}, response["dependencies"])
}

func TestMetricsEndpoint(t *testing.T) {
	handler, _, _ := setupTestHandler()
	router := setupRouter(handler, nil)

	w := doRequest(router, "GET", "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
