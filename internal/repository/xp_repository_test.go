package repository

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/lms-gamification/internal/apperrors"
	"github.com/aimd54/lms-gamification/internal/models"
)

func fixedPlan(source models.XPSource, sourceID string, amount, diamonds int64, at time.Time) PlanFunc {
	return func(user *models.User) (*AwardPlan, error) {
		day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
		return &AwardPlan{
			Event: models.XPEvent{
				Source:     source,
				SourceID:   sourceID,
				Amount:     amount,
				OccurredAt: at,
			},
			Diamonds:      diamonds,
			UpdateStreak:  true,
			StreakDays:    user.StreakDays + 1,
			LastActiveDay: &day,
		}, nil
	}
}

func TestXPRepository_ApplyAward(t *testing.T) {
	db := setupTestDB(t)
	repo := NewXPRepository(db)
	user := createTestUser(t, db, "alice", 1, 10, 100)
	at := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	accepted, updated, err := repo.ApplyAward(ctx, user.ID, fixedPlan(models.SourceLesson, "L7", 50, 5, at))
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, int64(50), updated.XP)
	assert.Equal(t, int64(5), updated.Diamonds)
	assert.Equal(t, 1, updated.StreakDays)
	require.NotNil(t, updated.LastActiveDay)

	events, err := repo.ListByUser(ctx, user.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "L7", events[0].SourceID)
}

func TestXPRepository_ApplyAward_DuplicateKeyIsRejected(t *testing.T) {
	db := setupTestDB(t)
	repo := NewXPRepository(db)
	user := createTestUser(t, db, "alice", 1, 10, 100)
	at := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	accepted, _, err := repo.ApplyAward(ctx, user.ID, fixedPlan(models.SourceLesson, "L7", 50, 5, at))
	require.NoError(t, err)
	require.True(t, accepted)

	accepted, unchanged, err := repo.ApplyAward(ctx, user.ID, fixedPlan(models.SourceLesson, "L7", 50, 5, at.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Equal(t, int64(50), unchanged.XP)
	assert.Equal(t, 1, unchanged.StreakDays)

	events, err := repo.ListByUser(ctx, user.ID, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestXPRepository_ApplyAward_UnknownUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewXPRepository(db)

	_, _, err := repo.ApplyAward(context.Background(), 999, fixedPlan(models.SourceTask, "T1", 10, 1, time.Now()))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestXPRepository_ApplyAward_PlanErrorRollsBack(t *testing.T) {
	db := setupTestDB(t)
	repo := NewXPRepository(db)
	user := createTestUser(t, db, "alice", 1, 10, 100)
	planErr := errors.New("rejected")

	_, _, err := repo.ApplyAward(context.Background(), user.ID, func(*models.User) (*AwardPlan, error) {
		return nil, planErr
	})
	assert.ErrorIs(t, err, planErr)

	events, err := repo.ListByUser(context.Background(), user.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestXPRepository_ApplyAward_RejectsOverflowingIncrement(t *testing.T) {
	db := setupTestDB(t)
	repo := NewXPRepository(db)
	user := createTestUser(t, db, "alice", 1, 10, 100)
	ctx := context.Background()
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).Update("xp", int64(math.MaxInt64-10)).Error)

	_, _, err := repo.ApplyAward(ctx, user.ID, fixedPlan(models.SourceTask, "T1", 11, 0, time.Now()))
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, _, err = repo.ApplyAward(ctx, user.ID, fixedPlan(models.SourceTask, "T2", -1, 0, time.Now()))
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	events, err := repo.ListByUser(ctx, user.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	accepted, updated, err := repo.ApplyAward(ctx, user.ID, fixedPlan(models.SourceTask, "T3", 10, 0, time.Now()))
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, int64(math.MaxInt64), updated.XP)
}

func TestXPRepository_SumByUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewXPRepository(db)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice", 1, 10, 100)
	bob := createTestUser(t, db, "bob", 2, 10, 100)
	carol := createTestUser(t, db, "carol", 3, 20, 100)

	march := func(day, hour int) time.Time { return time.Date(2026, time.March, day, hour, 0, 0, 0, time.UTC) }

	for i, award := range []struct {
		user   uint
		amount int64
		at     time.Time
	}{
		{alice.ID, 30, march(2, 8)},
		{alice.ID, 20, march(3, 8)},
		{alice.ID, 99, march(10, 8)}, // outside window
		{bob.ID, 40, march(2, 23)},
		{carol.ID, 70, march(4, 1)},
	} {
		sourceID := string(rune('A' + i))
		_, _, err := repo.ApplyAward(ctx, award.user, fixedPlan(models.SourceTask, sourceID, award.amount, 0, award.at))
		require.NoError(t, err)
	}

	from, to := march(2, 0), march(9, 0)

	all, err := repo.SumByUser(ctx, OrgFilter{}, from, to)
	require.NoError(t, err)
	assert.Equal(t, map[uint]int64{alice.ID: 50, bob.ID: 40, carol.ID: 70}, all)

	area, err := repo.SumByUser(ctx, OrgFilter{AreaID: uintPtr(10)}, from, to)
	require.NoError(t, err)
	assert.Equal(t, map[uint]int64{alice.ID: 50, bob.ID: 40}, area)

	branch, err := repo.SumByUser(ctx, OrgFilter{BranchID: uintPtr(3)}, from, to)
	require.NoError(t, err)
	assert.Equal(t, map[uint]int64{carol.ID: 70}, branch)
}

func TestXPRepository_ListByUser_NewestFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewXPRepository(db)
	user := createTestUser(t, db, "alice", 1, 10, 100)
	ctx := context.Background()

	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"T1", "T2", "T3"} {
		_, _, err := repo.ApplyAward(ctx, user.ID, fixedPlan(models.SourceTask, id, 10, 0, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	events, err := repo.ListByUser(ctx, user.ID, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "T3", events[0].SourceID)
	assert.Equal(t, "T2", events[1].SourceID)
}

func TestUserRepository_ListByOrg(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	createTestUser(t, db, "alice", 1, 10, 100)
	createTestUser(t, db, "bob", 2, 10, 100)
	createTestUser(t, db, "carol", 3, 20, 200)

	all, err := repo.ListByOrg(ctx, OrgFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	region, err := repo.ListByOrg(ctx, OrgFilter{RegionID: uintPtr(100)})
	require.NoError(t, err)
	require.Len(t, region, 2)
	assert.Equal(t, "alice", region[0].Name)
	assert.Equal(t, "bob", region[1].Name)

	_, err = repo.GetByID(ctx, 12345)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
