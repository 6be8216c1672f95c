package mocks

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/aimd54/lms-gamification/internal/apperrors"
	"github.com/aimd54/lms-gamification/internal/models"
	"github.com/aimd54/lms-gamification/internal/repository"
)

// MockUserRepository is a simple mock for user repository.
// Without overrides it serves Users, applying org filters like the real repository.
type MockUserRepository struct {
	Users []models.User

	GetByIDFunc   func(ctx context.Context, id uint) (*models.User, error)
	ListByOrgFunc func(ctx context.Context, filter repository.OrgFilter) ([]models.User, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	for i := range m.Users {
		if m.Users[i].ID == id {
			u := m.Users[i]
			return &u, nil
		}
	}
	return nil, apperrors.NotFound("user %d not found", id)
}

func (m *MockUserRepository) ListByOrg(ctx context.Context, filter repository.OrgFilter) ([]models.User, error) {
	if m.ListByOrgFunc != nil {
		return m.ListByOrgFunc(ctx, filter)
	}
	var out []models.User
	for _, u := range m.Users {
		if matches(filter, &u) {
			out = append(out, u)
		}
	}
	return out, nil
}

func matches(filter repository.OrgFilter, u *models.User) bool {
	eq := func(want, got *uint) bool {
		return want == nil || (got != nil && *got == *want)
	}
	return eq(filter.BranchID, u.BranchID) && eq(filter.AreaID, u.AreaID) && eq(filter.RegionID, u.RegionID)
}

// MockXPRepository is a simple mock for the XP ledger aggregate query.
type MockXPRepository struct {
	// Earned is returned for every window unless SumByUserFunc is set.
	Earned map[uint]int64
	// Err, when set, is returned by SumByUser.
	Err error

	SumByUserFunc func(ctx context.Context, filter repository.OrgFilter, from, to time.Time) (map[uint]int64, error)

	calls atomic.Int64
}

func (m *MockXPRepository) SumByUser(ctx context.Context, filter repository.OrgFilter, from, to time.Time) (map[uint]int64, error) {
	m.calls.Add(1)
	if m.SumByUserFunc != nil {
		return m.SumByUserFunc(ctx, filter, from, to)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[uint]int64, len(m.Earned))
	for k, v := range m.Earned {
		out[k] = v
	}
	return out, nil
}

// Calls returns the number of SumByUser invocations.
func (m *MockXPRepository) Calls() int64 {
	return m.calls.Load()
}
