package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/yukikurage/checkin-bot/internal/constants"
	"github.com/yukikurage/checkin-bot/internal/models"
	"github.com/yukikurage/checkin-bot/internal/repository"
	"github.com/yukikurage/checkin-bot/internal/utils"
	"gorm.io/gorm"
)

var (
	ErrInvalidCadence  = errors.New("cadence must be between 1 and 365 days")
	ErrInvalidTimezone = errors.New("unknown timezone")
)

// UpsertUserInput holds the descriptive fields an operator may set.
// Nil fields keep their stored value on existing users.
type UpsertUserInput struct {
	ExternalID  string
	DisplayName *string
	Email       *string
	Timezone    *string
	CadenceDays *int
	IsActive    *bool
}

// RosterService manages roster membership and descriptive user fields.
type RosterService struct {
	userRepo repository.UserRepository
	defaults UserDefaults
}

// NewRosterService creates a new RosterService.
func NewRosterService(userRepo repository.UserRepository, defaults UserDefaults) *RosterService {
	if defaults.CadenceDays <= 0 {
		defaults.CadenceDays = constants.DefaultCadenceDays
	}
	if defaults.Timezone == "" {
		defaults.Timezone = constants.DefaultTimezone
	}
	return &RosterService{
		userRepo: userRepo,
		defaults: defaults,
	}
}

// UpsertUser creates the user or overwrites only the provided fields.
// Scheduling state (last prompt, next due) is never touched here.
func (s *RosterService) UpsertUser(ctx context.Context, input UpsertUserInput) (*models.User, error) {
	externalID := strings.TrimSpace(input.ExternalID)
	if externalID == "" {
		return nil, ErrMissingExternalID
	}

	user := &models.User{
		ExternalID:  externalID,
		DisplayName: externalID,
		Timezone:    s.defaults.Timezone,
		CadenceDays: s.defaults.CadenceDays,
		IsActive:    true,
	}
	var columns []string

	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if name != "" {
			user.DisplayName = name
			columns = append(columns, "display_name")
		}
	}
	if input.Email != nil {
		email := strings.TrimSpace(*input.Email)
		if email == "" {
			user.Email = nil
		} else {
			user.Email = &email
		}
		columns = append(columns, "email")
	}
	if input.Timezone != nil {
		tz := strings.TrimSpace(*input.Timezone)
		if _, err := time.LoadLocation(tz); err != nil || tz == "" {
			return nil, ErrInvalidTimezone
		}
		user.Timezone = tz
		columns = append(columns, "timezone")
	}
	if input.CadenceDays != nil {
		if *input.CadenceDays < 1 || *input.CadenceDays > constants.MaxCadenceDays {
			return nil, ErrInvalidCadence
		}
		user.CadenceDays = *input.CadenceDays
		columns = append(columns, "cadence_days")
	}

	if err := s.userRepo.Upsert(ctx, user, columns); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	if input.IsActive != nil && user.IsActive != *input.IsActive {
		if err := s.userRepo.SetActive(ctx, user.ID, *input.IsActive); err != nil {
			return nil, fmt.Errorf("failed to update active flag: %w", err)
		}
		user.IsActive = *input.IsActive
	}

	log.WithFields(log.Fields{
		"user_id":     user.ID,
		"external_id": user.ExternalID,
	}).Info("roster user upserted")

	return user, nil
}

// SetActive enables or disables prompting for a user. History is kept either way.
func (s *RosterService) SetActive(ctx context.Context, userID uint64, active bool) (*models.User, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.userRepo.SetActive(ctx, userID, active); err != nil {
		return nil, fmt.Errorf("failed to update active flag: %w", err)
	}
	return s.GetUser(ctx, userID)
}

// GetUser retrieves a user by ID.
func (s *RosterService) GetUser(ctx context.Context, userID uint64) (*models.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// ListUsers lists the roster ordered by display name.
func (s *RosterService) ListUsers(ctx context.Context, activeOnly bool, params utils.PaginationParams) ([]models.User, int64, error) {
	users, total, err := s.userRepo.List(ctx, repository.UserFilter{
		ActiveOnly: activeOnly,
		Pagination: params,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}
