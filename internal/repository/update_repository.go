package repository

import (
	"context"

	"github.com/yukikurage/checkin-bot/internal/database"
	"github.com/yukikurage/checkin-bot/internal/models"
	"github.com/yukikurage/checkin-bot/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Responses first, pending prompts last, newest insert breaks ties.
const latestOrder = "CASE WHEN responded_at IS NULL THEN 1 ELSE 0 END, responded_at DESC, id DESC"

// GormUpdateRepository is a GORM implementation of UpdateRepository
type GormUpdateRepository struct {
	db *gorm.DB
}

// NewUpdateRepository creates a new UpdateRepository
func NewUpdateRepository(db *gorm.DB) UpdateRepository {
	return &GormUpdateRepository{db: db}
}

// Create inserts one update row
func (r *GormUpdateRepository) Create(ctx context.Context, update *models.Update) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(update).Error
}

// CreateIfAbsent inserts with ON CONFLICT (user_id, event_key) DO NOTHING
func (r *GormUpdateRepository) CreateIfAbsent(ctx context.Context, update *models.Update) (bool, error) {
	result := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "event_key"}},
			DoNothing: true,
		}).
		Create(update)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ExistsByEventKey reports whether the user already has a row for the event key
func (r *GormUpdateRepository) ExistsByEventKey(ctx context.Context, userID uint64, eventKey string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Update{}).
		Where("user_id = ? AND event_key = ?", userID, eventKey).
		Count(&count).Error
	return count > 0, err
}

// Latest returns the most recent update by the latest-response ordering
func (r *GormUpdateRepository) Latest(ctx context.Context, userID uint64) (*models.Update, error) {
	var update models.Update
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(latestOrder).
		First(&update).Error; err != nil {
		return nil, err
	}
	return &update, nil
}

// History lists a user's updates newest first
func (r *GormUpdateRepository) History(ctx context.Context, userID uint64, params utils.PaginationParams) ([]models.Update, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Update{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var updates []models.Update
	if err := query.
		Order(latestOrder).
		Scopes(database.Paginate(params)).
		Find(&updates).Error; err != nil {
		return nil, 0, err
	}

	return updates, total, nil
}
