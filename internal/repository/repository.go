package repository

import (
	"context"
	"errors"
	"time"

	"github.com/yukikurage/checkin-bot/internal/models"
	"github.com/yukikurage/checkin-bot/internal/utils"
	"gorm.io/gorm"
)

// ErrNotDue is returned when a conditional due-date advance matched no row.
var ErrNotDue = errors.New("user repository: user is not due")

// Store groups the repositories and scopes them to a transaction when needed.
type Store interface {
	Users() UserRepository
	Updates() UpdateRepository

	// Transaction runs fn with repositories bound to a single transaction.
	// Returning an error from fn rolls the transaction back.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	// FindByID finds a user by ID
	FindByID(ctx context.Context, id uint64) (*models.User, error)

	// FindByExternalID finds a user by the chat platform identifier
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)

	// CreateIfAbsent inserts the user unless the external ID already exists.
	// It reports whether a row was inserted and never fails on a uniqueness conflict.
	CreateIfAbsent(ctx context.Context, user *models.User) (bool, error)

	// Upsert inserts the user or overwrites the given columns on the existing row
	Upsert(ctx context.Context, user *models.User, columns []string) error

	// SetActive flips the is_active flag
	SetActive(ctx context.Context, id uint64, active bool) error

	// List retrieves users with filtering and pagination
	List(ctx context.Context, filter UserFilter) ([]models.User, int64, error)

	// ListDueIDs returns IDs of active users whose next due date is absent or not after now
	ListDueIDs(ctx context.Context, now time.Time) ([]uint64, error)

	// LockForPrompt loads an active user with a row lock. When requireDue is set
	// the user must also be due at now, otherwise gorm.ErrRecordNotFound is returned.
	LockForPrompt(ctx context.Context, id uint64, now time.Time, requireDue bool) (*models.User, error)

	// MarkPrompted records a prompt and advances the due date. When dueAt is
	// non-nil the row is only advanced if still due at that instant (ErrNotDue otherwise).
	MarkPrompted(ctx context.Context, id uint64, promptedAt, nextDueAt time.Time, dueAt *time.Time) error
}

// UserFilter holds filtering options for listing users
type UserFilter struct {
	ActiveOnly bool
	Pagination utils.PaginationParams
}

// UpdateRepository defines the interface for the append-only update log
type UpdateRepository interface {
	// Create inserts one update row
	Create(ctx context.Context, update *models.Update) error

	// CreateIfAbsent inserts the update unless (user_id, event_key) already exists
	CreateIfAbsent(ctx context.Context, update *models.Update) (bool, error)

	// ExistsByEventKey reports whether the user already has a row for the event key
	ExistsByEventKey(ctx context.Context, userID uint64, eventKey string) (bool, error)

	// Latest returns the most recent response, falling back to pending prompts
	Latest(ctx context.Context, userID uint64) (*models.Update, error)

	// History lists a user's updates newest first
	History(ctx context.Context, userID uint64, params utils.PaginationParams) ([]models.Update, int64, error)
}

// GormStore is a GORM implementation of Store
type GormStore struct {
	db *gorm.DB
}

// NewStore creates a new Store
func NewStore(db *gorm.DB) Store {
	return &GormStore{db: db}
}

func (s *GormStore) Users() UserRepository {
	return NewUserRepository(s.db)
}

func (s *GormStore) Updates() UpdateRepository {
	return NewUpdateRepository(s.db)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
