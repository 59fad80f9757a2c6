package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/checkin-bot/internal/database"
	"github.com/yukikurage/checkin-bot/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func TestUserRepository_CreateIfAbsent(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))
	ctx := context.Background()

	first := &models.User{ExternalID: "U1", DisplayName: "first", Timezone: "UTC", CadenceDays: 7, IsActive: true}
	created, err := repo.CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	second := &models.User{ExternalID: "U1", DisplayName: "second", Timezone: "UTC", CadenceDays: 7, IsActive: true}
	created, err = repo.CreateIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	stored, err := repo.FindByExternalID(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "first", stored.DisplayName)
}

func TestUserRepository_MarkPromptedIsConditional(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	user := &models.User{ExternalID: "U2", DisplayName: "u2", Timezone: "UTC", CadenceDays: 7, IsActive: true}
	require.NoError(t, db.Create(user).Error)

	next := now.Add(7 * 24 * time.Hour)
	require.NoError(t, repo.MarkPrompted(ctx, user.ID, now, next, &now))

	// A second advance in the same window finds the user no longer due.
	err := repo.MarkPrompted(ctx, user.ID, now, next, &now)
	assert.True(t, errors.Is(err, ErrNotDue))

	// Without a due check the advance always applies.
	require.NoError(t, repo.MarkPrompted(ctx, user.ID, now, next, nil))

	_, err = repo.LockForPrompt(ctx, user.ID, now, true)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	locked, err := repo.LockForPrompt(ctx, user.ID, now, false)
	require.NoError(t, err)
	assert.Equal(t, user.ID, locked.ID)
}

func TestUserRepository_ListDueIDs(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	due := &models.User{ExternalID: "due", DisplayName: "due", Timezone: "UTC", CadenceDays: 7, IsActive: true}
	notDue := &models.User{ExternalID: "later", DisplayName: "later", Timezone: "UTC", CadenceDays: 7, IsActive: true, NextDueAt: &later}
	inactive := &models.User{ExternalID: "off", DisplayName: "off", Timezone: "UTC", CadenceDays: 7, IsActive: true}
	require.NoError(t, db.Create(due).Error)
	require.NoError(t, db.Create(notDue).Error)
	require.NoError(t, db.Create(inactive).Error)
	require.NoError(t, repo.SetActive(context.Background(), inactive.ID, false))

	ids, err := repo.ListDueIDs(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []uint64{due.ID}, ids)
}
