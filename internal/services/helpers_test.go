package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/checkin-bot/internal/database"
	"github.com/yukikurage/checkin-bot/internal/models"
	"github.com/yukikurage/checkin-bot/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeNotifier records calls and can be told to fail or block.
type fakeNotifier struct {
	mu       sync.Mutex
	prompts  []string
	acks     []string
	tokens   []string
	failWith error
	delay    time.Duration
}

func (n *fakeNotifier) SendPrompt(ctx context.Context, externalID string) error {
	if n.delay > 0 {
		select {
		case <-time.After(n.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failWith != nil {
		return n.failWith
	}
	n.prompts = append(n.prompts, externalID)
	return nil
}

func (n *fakeNotifier) Acknowledge(ctx context.Context, externalID, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failWith != nil {
		return n.failWith
	}
	n.acks = append(n.acks, externalID)
	n.tokens = append(n.tokens, token)
	return nil
}

func (n *fakeNotifier) promptCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.prompts)
}

func (n *fakeNotifier) ackCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.acks)
}

// memoryCache is an in-process DeliveryCache.
type memoryCache struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{keys: map[string]bool{}}
}

func (c *memoryCache) Seen(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	return c.keys[key], nil
}

func (c *memoryCache) Remember(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.keys[key] = true
	return nil
}

var errNotifierDown = errors.New("notifier unavailable")

// storeSuite provides a fresh in-memory database per test.
type storeSuite struct {
	suite.Suite
	db    *gorm.DB
	store repository.Store
	ctx   context.Context
}

func (s *storeSuite) SetupTest() {
	var err error
	s.db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	s.Require().NoError(err)

	// One connection keeps the in-memory database shared and serializes transactions.
	sqlDB, err := s.db.DB()
	s.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)

	s.Require().NoError(database.Migrate(s.db))

	s.store = repository.NewStore(s.db)
	s.ctx = context.Background()
}

func (s *storeSuite) TearDownTest() {
	sqlDB, err := s.db.DB()
	s.Require().NoError(err)
	sqlDB.Close()
}

func (s *storeSuite) createUser(externalID string, active bool, nextDue *time.Time) *models.User {
	user := &models.User{
		ExternalID:  externalID,
		DisplayName: externalID,
		Timezone:    "Europe/London",
		CadenceDays: 7,
		IsActive:    true,
		NextDueAt:   nextDue,
	}
	s.Require().NoError(s.db.Create(user).Error)
	if !active {
		s.Require().NoError(s.db.Model(user).Update("is_active", false).Error)
		user.IsActive = false
	}
	return user
}

func (s *storeSuite) reloadUser(id uint64) *models.User {
	var user models.User
	s.Require().NoError(s.db.First(&user, id).Error)
	return &user
}

func (s *storeSuite) countUpdates(userID uint64, source models.UpdateSource) int64 {
	var count int64
	s.Require().NoError(s.db.Model(&models.Update{}).
		Where("user_id = ? AND source = ?", userID, source).
		Count(&count).Error)
	return count
}

func ptr[T any](v T) *T {
	return &v
}
