package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// UpdateSource identifies how an update row came to exist.
type UpdateSource string

const (
	SourceStructuredForm UpdateSource = "structured-form"
	SourceFreeTextDM     UpdateSource = "free-text-dm"
	SourcePrompt         UpdateSource = "prompt"
)

// RAG is the red/amber/green status attached to an update.
type RAG string

const (
	RAGGreen RAG = "Green"
	RAGAmber RAG = "Amber"
	RAGRed   RAG = "Red"
)

// ParseRAG normalizes free-form input into a RAG value.
func ParseRAG(s string) (RAG, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "green", "g":
		return RAGGreen, true
	case "amber", "a", "yellow":
		return RAGAmber, true
	case "red", "r":
		return RAGRed, true
	}
	return "", false
}

// Update is one prompt or response in a user's check-in log.
// Rows are write-once; corrections are appended as new rows.
type Update struct {
	ID          uint64          `gorm:"primarykey" json:"id"`
	UserID      uint64          `gorm:"not null;uniqueIndex:idx_updates_user_event,priority:1" json:"user_id"`
	EventKey    *string         `gorm:"type:varchar(191);uniqueIndex:idx_updates_user_event,priority:2" json:"event_key,omitempty"`
	PromptedAt  *time.Time      `json:"prompted_at"`
	RespondedAt *time.Time      `json:"responded_at"`
	ProgressPct *int            `json:"progress_pct"`
	Summary     *string         `gorm:"type:text" json:"summary"`
	Blockers    *string         `gorm:"type:text" json:"blockers"`
	ETADate     *datatypes.Date `json:"eta_date"`
	RAG         *RAG            `gorm:"type:varchar(8)" json:"rag"`
	RawPayload  datatypes.JSON  `json:"raw_payload,omitempty"`
	Source      UpdateSource    `gorm:"type:varchar(32);not null" json:"source"`
	CreatedAt   time.Time       `json:"created_at"`

	// Relations
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}
