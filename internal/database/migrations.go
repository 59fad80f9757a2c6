package database

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/yukikurage/checkin-bot/internal/models"
	"gorm.io/gorm"
)

// AddIndexes adds the indexes the scheduler and history queries rely on.
func AddIndexes(db *gorm.DB) error {
	indexes := []struct {
		model   interface{}
		table   string
		name    string
		columns string
	}{
		// Eligibility scan: active users whose due date has passed
		{&models.User{}, "users", "idx_users_active_next_due", "is_active, next_due_at"},

		// Latest/history lookups per user
		{&models.Update{}, "updates", "idx_updates_user_responded", "user_id, responded_at"},
	}

	for _, idx := range indexes {
		if db.Migrator().HasIndex(idx.model, idx.name) {
			log.WithField("index", idx.name).Debug("index already exists, skipping")
			continue
		}

		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, idx.columns)
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}

		log.WithField("index", idx.name).Infof("created index on %s(%s)", idx.table, idx.columns)
	}

	return nil
}
