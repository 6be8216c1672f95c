package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/aimd54/lms-gamification/internal/apperrors"
	"github.com/aimd54/lms-gamification/internal/models"
)

// OrgFilter narrows a user population to one organisational unit.
// A zero OrgFilter selects every user.
type OrgFilter struct {
	BranchID *uint
	AreaID   *uint
	RegionID *uint
}

// apply adds the filter's conditions to a query over the users table.
func (f OrgFilter) apply(q *gorm.DB, table string) *gorm.DB {
	prefix := ""
	if table != "" {
		prefix = table + "."
	}
	if f.BranchID != nil {
		q = q.Where(prefix+"branch_id = ?", *f.BranchID)
	}
	if f.AreaID != nil {
		q = q.Where(prefix+"area_id = ?", *f.AreaID)
	}
	if f.RegionID != nil {
		q = q.Where(prefix+"region_id = ?", *f.RegionID)
	}
	return q
}

// UserRepository handles user-related database operations.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return apperrors.Storage("create user", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("user %d", id)
		}
		return nil, apperrors.Storage("get user", err)
	}
	return &user, nil
}

// ListByOrg retrieves every user matching filter, ordered by ID.
func (r *UserRepository) ListByOrg(ctx context.Context, filter OrgFilter) ([]models.User, error) {
	query := filter.apply(r.db.WithContext(ctx).Model(&models.User{}), "")

	var users []models.User
	if err := query.Order("id ASC").Find(&users).Error; err != nil {
		return nil, apperrors.Storage("list users", err)
	}
	return users, nil
}
