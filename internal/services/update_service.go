package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yukikurage/checkin-bot/internal/models"
	"github.com/yukikurage/checkin-bot/internal/repository"
	"github.com/yukikurage/checkin-bot/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrDuplicateEvent  = errors.New("update already recorded for this event")
	ErrUpdateNotFound  = errors.New("no updates recorded for user")
	ErrInvalidProgress = errors.New("progress must be between 0 and 100")
	ErrMissingSource   = errors.New("update source is required")
)

// RecordInput holds the fields of a new update. Nil fields are stored absent.
type RecordInput struct {
	Source      models.UpdateSource
	EventKey    string
	PromptedAt  *time.Time
	RespondedAt *time.Time
	ProgressPct *int
	Summary     *string
	Blockers    *string
	ETA         *time.Time
	RAG         *models.RAG
	RawPayload  []byte
}

// UpdateService is the append-only log of prompts and responses.
type UpdateService struct {
	store repository.Store
}

// NewUpdateService creates a new UpdateService.
func NewUpdateService(store repository.Store) *UpdateService {
	return &UpdateService{store: store}
}

// Record appends one update for an existing user. When input.EventKey is set
// a second record for the same user and key returns ErrDuplicateEvent.
func (s *UpdateService) Record(ctx context.Context, userID uint64, input RecordInput) (uint64, error) {
	if input.Source == "" {
		return 0, ErrMissingSource
	}
	if input.ProgressPct != nil && (*input.ProgressPct < 0 || *input.ProgressPct > 100) {
		return 0, ErrInvalidProgress
	}

	if _, err := s.store.Users().FindByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to find user: %w", err)
	}

	update := &models.Update{
		UserID:      userID,
		PromptedAt:  input.PromptedAt,
		RespondedAt: input.RespondedAt,
		ProgressPct: input.ProgressPct,
		Summary:     input.Summary,
		Blockers:    input.Blockers,
		RAG:         input.RAG,
		RawPayload:  rawJSON(input.RawPayload),
		Source:      input.Source,
	}
	if input.ETA != nil {
		eta := datatypes.Date(*input.ETA)
		update.ETADate = &eta
	}

	key := strings.TrimSpace(input.EventKey)
	if key == "" {
		if err := s.store.Updates().Create(ctx, update); err != nil {
			return 0, fmt.Errorf("failed to record update: %w", err)
		}
		return update.ID, nil
	}

	update.EventKey = &key
	created, err := s.store.Updates().CreateIfAbsent(ctx, update)
	if err != nil {
		return 0, fmt.Errorf("failed to record update: %w", err)
	}
	if !created {
		return 0, ErrDuplicateEvent
	}
	return update.ID, nil
}

// HasEvent reports whether an update for the event key is already recorded.
func (s *UpdateService) HasEvent(ctx context.Context, userID uint64, eventKey string) (bool, error) {
	exists, err := s.store.Updates().ExistsByEventKey(ctx, userID, eventKey)
	if err != nil {
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return exists, nil
}

// Last returns the user's latest update. Responses rank ahead of pending prompts.
func (s *UpdateService) Last(ctx context.Context, userID uint64) (*models.Update, error) {
	update, err := s.store.Updates().Latest(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUpdateNotFound
		}
		return nil, fmt.Errorf("failed to find latest update: %w", err)
	}
	return update, nil
}

// History lists the user's updates newest first.
func (s *UpdateService) History(ctx context.Context, userID uint64, params utils.PaginationParams) ([]models.Update, int64, error) {
	updates, total, err := s.store.Updates().History(ctx, userID, params)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list updates: %w", err)
	}
	return updates, total, nil
}

// rawJSON keeps valid JSON as-is and wraps anything else as a JSON string.
func rawJSON(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return datatypes.JSON(raw)
	}
	quoted, err := json.Marshal(string(raw))
	if err != nil {
		return nil
	}
	return datatypes.JSON(quoted)
}
