package repository

import (
	"context"
	"time"

	"github.com/yukikurage/checkin-bot/internal/database"
	"github.com/yukikurage/checkin-bot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const dueCondition = "(next_due_at IS NULL OR next_due_at <= ?)"

// GormUserRepository is a GORM implementation of UserRepository
type GormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &GormUserRepository{db: db}
}

// FindByID finds a user by ID
func (r *GormUserRepository) FindByID(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByExternalID finds a user by the chat platform identifier
func (r *GormUserRepository) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateIfAbsent inserts the user with ON CONFLICT (external_id) DO NOTHING
func (r *GormUserRepository) CreateIfAbsent(ctx context.Context, user *models.User) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).
		Create(user)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Upsert inserts the user or overwrites the given columns, then reloads the stored row into user
func (r *GormUserRepository) Upsert(ctx context.Context, user *models.User, columns []string) error {
	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: len(columns) == 0,
	}
	if len(columns) > 0 {
		assigned := append(append([]string{}, columns...), "updated_at")
		conflict.DoUpdates = clause.AssignmentColumns(assigned)
	}

	if err := r.db.WithContext(ctx).Clauses(conflict).Create(user).Error; err != nil {
		return err
	}

	stored, err := r.FindByExternalID(ctx, user.ExternalID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// SetActive flips the is_active flag
func (r *GormUserRepository) SetActive(ctx context.Context, id uint64, active bool) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("is_active", active).Error
}

// List retrieves users with filtering and pagination
func (r *GormUserRepository) List(ctx context.Context, filter UserFilter) ([]models.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.User{})
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []models.User
	if err := query.
		Order("display_name ASC, id ASC").
		Scopes(database.Paginate(filter.Pagination)).
		Find(&users).Error; err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

// ListDueIDs returns IDs of active users eligible for a prompt at now
func (r *GormUserRepository) ListDueIDs(ctx context.Context, now time.Time) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("is_active = ?", true).
		Where(dueCondition, now).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// LockForPrompt loads an active user with SELECT ... FOR UPDATE
func (r *GormUserRepository) LockForPrompt(ctx context.Context, id uint64, now time.Time, requireDue bool) (*models.User, error) {
	query := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND is_active = ?", id, true)
	if requireDue {
		query = query.Where(dueCondition, now)
	}

	var user models.User
	if err := query.First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// MarkPrompted sets last_prompted_at and next_due_at in one statement
func (r *GormUserRepository) MarkPrompted(ctx context.Context, id uint64, promptedAt, nextDueAt time.Time, dueAt *time.Time) error {
	query := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id)
	if dueAt != nil {
		query = query.Where(dueCondition, *dueAt)
	}

	result := query.Updates(map[string]interface{}{
		"last_prompted_at": promptedAt,
		"next_due_at":      nextDueAt,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotDue
	}
	return nil
}
