package models

import (
	"time"
)

// User is a roster member who receives check-in prompts.
// ExternalID is the chat platform's user identifier and the natural key for upserts.
type User struct {
	ID             uint64     `gorm:"primarykey" json:"id"`
	ExternalID     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"external_id"`
	DisplayName    string     `gorm:"type:varchar(255);not null" json:"display_name"`
	Email          *string    `gorm:"type:varchar(255)" json:"email"`
	Timezone       string     `gorm:"type:varchar(64);not null;default:'Europe/London'" json:"timezone"`
	CadenceDays    int        `gorm:"not null;default:7" json:"cadence_days"`
	LastPromptedAt *time.Time `json:"last_prompted_at"`
	NextDueAt      *time.Time `json:"next_due_at"`
	IsActive       bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsDue reports whether the user is eligible for a prompt at now.
func (u *User) IsDue(now time.Time) bool {
	if !u.IsActive {
		return false
	}
	return u.NextDueAt == nil || !u.NextDueAt.After(now)
}
