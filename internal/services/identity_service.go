package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/yukikurage/checkin-bot/internal/constants"
	"github.com/yukikurage/checkin-bot/internal/models"
	"github.com/yukikurage/checkin-bot/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrMissingExternalID = errors.New("external id is required")
	ErrUserNotFound      = errors.New("user not found")
)

// IdentityService maps chat platform identities to internal users.
type IdentityService struct {
	userRepo repository.UserRepository
	defaults UserDefaults
}

// NewIdentityService creates a new IdentityService.
func NewIdentityService(userRepo repository.UserRepository, defaults UserDefaults) *IdentityService {
	if defaults.CadenceDays <= 0 {
		defaults.CadenceDays = constants.DefaultCadenceDays
	}
	if defaults.Timezone == "" {
		defaults.Timezone = constants.DefaultTimezone
	}
	return &IdentityService{
		userRepo: userRepo,
		defaults: defaults,
	}
}

// ResolveOrCreate returns the internal ID for externalID, creating the user on
// first contact. Existing rows are never modified, and concurrent first
// contacts for the same identity converge on a single row.
func (s *IdentityService) ResolveOrCreate(ctx context.Context, externalID, fallbackDisplayName string) (uint64, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return 0, ErrMissingExternalID
	}

	user, err := s.userRepo.FindByExternalID(ctx, externalID)
	if err == nil {
		return user.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("failed to look up user: %w", err)
	}

	displayName := strings.TrimSpace(fallbackDisplayName)
	if displayName == "" {
		displayName = externalID
	}

	candidate := &models.User{
		ExternalID:  externalID,
		DisplayName: displayName,
		Timezone:    s.defaults.Timezone,
		CadenceDays: s.defaults.CadenceDays,
		IsActive:    true,
	}

	created, err := s.userRepo.CreateIfAbsent(ctx, candidate)
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	if created && candidate.ID != 0 {
		log.WithFields(log.Fields{
			"user_id":     candidate.ID,
			"external_id": externalID,
		}).Info("registered user on first contact")
		return candidate.ID, nil
	}

	// Another request inserted the row first, or the driver did not return the key.
	user, err = s.userRepo.FindByExternalID(ctx, externalID)
	if err != nil {
		return 0, fmt.Errorf("failed to reload user: %w", err)
	}
	return user.ID, nil
}

// Lookup finds a user by external ID without creating one.
func (s *IdentityService) Lookup(ctx context.Context, externalID string) (*models.User, error) {
	user, err := s.userRepo.FindByExternalID(ctx, strings.TrimSpace(externalID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}
