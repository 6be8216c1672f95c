package repository

import (
	"context"
	"errors"
	"math"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/lms-gamification/internal/apperrors"
	"github.com/aimd54/lms-gamification/internal/models"
)

// AwardPlan describes the ledger row and counter changes for one award.
// It is computed from the locked user row and applied only if the event is new.
type AwardPlan struct {
	Event         models.XPEvent
	Diamonds      int64
	UpdateStreak  bool
	StreakDays    int
	LastActiveDay *time.Time
}

// PlanFunc builds an AwardPlan from the current user row.
type PlanFunc func(user *models.User) (*AwardPlan, error)

// XPRepository handles the XP ledger.
type XPRepository struct {
	db *DB
}

// NewXPRepository creates a new XP ledger repository.
func NewXPRepository(db *DB) *XPRepository {
	return &XPRepository{db: db}
}

// ApplyAward runs plan against the locked user row and, in the same transaction,
// inserts the planned event if its idempotency key is unused and increments the
// user's counters. It returns false with the unchanged user when the key already exists.
func (r *XPRepository) ApplyAward(ctx context.Context, userID uint, plan PlanFunc) (bool, *models.User, error) {
	var (
		accepted bool
		result   models.User
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("user %d", userID)
			}
			return apperrors.Storage("lock user", err)
		}

		p, err := plan(&user)
		if err != nil {
			return err
		}

		if p.Event.Amount <= 0 || p.Diamonds < 0 {
			return apperrors.InvalidArgument("award amounts must be positive, got xp=%d diamonds=%d", p.Event.Amount, p.Diamonds)
		}
		if p.Event.Amount > math.MaxInt64-user.XP || p.Diamonds > math.MaxInt64-user.Diamonds {
			return apperrors.InvalidArgument("award of %d xp overflows the balance of user %d", p.Event.Amount, userID)
		}

		p.Event.UserID = userID
		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "source"}, {Name: "source_id"}},
			DoNothing: true,
		}).Create(&p.Event)
		if insert.Error != nil {
			return apperrors.Storage("insert xp event", insert.Error)
		}
		if insert.RowsAffected == 0 {
			result = user
			return nil
		}

		updates := map[string]interface{}{
			"xp":         gorm.Expr("xp + ?", p.Event.Amount),
			"diamonds":   gorm.Expr("diamonds + ?", p.Diamonds),
			"updated_at": time.Now().UTC(),
		}
		if p.UpdateStreak {
			updates["streak_days"] = p.StreakDays
			updates["last_active_day"] = p.LastActiveDay
		}

		if err := tx.Model(&models.User{}).Where("id = ?", userID).UpdateColumns(updates).Error; err != nil {
			return apperrors.Storage("increment user counters", err)
		}
		if err := tx.First(&result, userID).Error; err != nil {
			return apperrors.Storage("reload user", err)
		}

		accepted = true
		return nil
	})
	if err != nil {
		return false, nil, err
	}

	return accepted, &result, nil
}

// userSum is the scan target for SumByUser.
type userSum struct {
	UserID uint
	Total  int64
}

// SumByUser returns XP earned per user for events with from <= occurred_at < to,
// restricted to users matching filter. Users with no events are absent from the map.
func (r *XPRepository) SumByUser(ctx context.Context, filter OrgFilter, from, to time.Time) (map[uint]int64, error) {
	query := r.db.WithContext(ctx).
		Table("xp_events").
		Select("xp_events.user_id AS user_id, SUM(xp_events.amount) AS total").
		Joins("JOIN users ON users.id = xp_events.user_id").
		Where("xp_events.occurred_at >= ? AND xp_events.occurred_at < ?", from.UTC(), to.UTC())
	query = filter.apply(query, "users")

	var rows []userSum
	if err := query.Group("xp_events.user_id").Scan(&rows).Error; err != nil {
		return nil, apperrors.Storage("sum xp by user", err)
	}

	sums := make(map[uint]int64, len(rows))
	for _, row := range rows {
		sums[row.UserID] = row.Total
	}
	return sums, nil
}

// ListByUser returns the most recent events for a user, newest first.
func (r *XPRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]models.XPEvent, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("occurred_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var events []models.XPEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, apperrors.Storage("list xp events", err)
	}
	return events, nil
}
