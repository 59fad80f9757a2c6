package dto

import (
	"time"

	"github.com/yukikurage/checkin-bot/internal/models"
)

// UpdateDTO represents one prompt or response in API responses.
// The raw payload is left out; it is kept for audit only.
type UpdateDTO struct {
	ID          uint64              `json:"id"`
	UserID      uint64              `json:"user_id"`
	Source      models.UpdateSource `json:"source"`
	PromptedAt  *time.Time          `json:"prompted_at"`
	RespondedAt *time.Time          `json:"responded_at"`
	ProgressPct *int                `json:"progress_pct"`
	Summary     *string             `json:"summary"`
	Blockers    *string             `json:"blockers"`
	ETADate     *string             `json:"eta_date"`
	RAG         *models.RAG         `json:"rag"`
	CreatedAt   time.Time           `json:"created_at"`
}

// UpdateListResponse represents a paginated update history
type UpdateListResponse struct {
	Updates    []UpdateDTO `json:"updates"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalCount int64       `json:"total_count"`
	TotalPages int         `json:"total_pages"`
}

// ToUpdateDTO converts an Update model to UpdateDTO
func ToUpdateDTO(update models.Update) UpdateDTO {
	dto := UpdateDTO{
		ID:          update.ID,
		UserID:      update.UserID,
		Source:      update.Source,
		PromptedAt:  update.PromptedAt,
		RespondedAt: update.RespondedAt,
		ProgressPct: update.ProgressPct,
		Summary:     update.Summary,
		Blockers:    update.Blockers,
		RAG:         update.RAG,
		CreatedAt:   update.CreatedAt,
	}
	if update.ETADate != nil {
		eta := time.Time(*update.ETADate).Format("2006-01-02")
		dto.ETADate = &eta
	}
	return dto
}

// ToUpdateListResponse converts a slice of updates to UpdateListResponse
func ToUpdateListResponse(updates []models.Update, page, pageSize int, totalCount int64) UpdateListResponse {
	items := make([]UpdateDTO, len(updates))
	for i, update := range updates {
		items[i] = ToUpdateDTO(update)
	}

	return UpdateListResponse{
		Updates:    items,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: totalPages(totalCount, pageSize),
	}
}
