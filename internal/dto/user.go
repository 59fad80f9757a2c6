package dto

import (
	"time"

	"github.com/yukikurage/checkin-bot/internal/models"
)

// UserDTO represents a roster member in API responses
type UserDTO struct {
	ID             uint64     `json:"id"`
	ExternalID     string     `json:"external_id"`
	DisplayName    string     `json:"display_name"`
	Email          *string    `json:"email"`
	Timezone       string     `json:"timezone"`
	CadenceDays    int        `json:"cadence_days"`
	LastPromptedAt *time.Time `json:"last_prompted_at"`
	NextDueAt      *time.Time `json:"next_due_at"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// UserDetailDTO is a user with their latest update and recent history
type UserDetailDTO struct {
	UserDTO
	LatestUpdate *UpdateDTO         `json:"latest_update"`
	History      UpdateListResponse `json:"history"`
}

// UserListResponse represents a paginated roster
type UserListResponse struct {
	Users      []UserDTO `json:"users"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalCount int64     `json:"total_count"`
	TotalPages int       `json:"total_pages"`
}

// UpsertUserRequest is the body of the roster upsert endpoint
type UpsertUserRequest struct {
	ExternalID  string  `json:"external_id" binding:"required"`
	DisplayName *string `json:"display_name"`
	Email       *string `json:"email"`
	Timezone    *string `json:"timezone"`
	CadenceDays *int    `json:"cadence_days"`
	IsActive    *bool   `json:"is_active"`
}

// SetActiveRequest toggles prompting for a user
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// ToUserDTO converts a User model to UserDTO
func ToUserDTO(user models.User) UserDTO {
	return UserDTO{
		ID:             user.ID,
		ExternalID:     user.ExternalID,
		DisplayName:    user.DisplayName,
		Email:          user.Email,
		Timezone:       user.Timezone,
		CadenceDays:    user.CadenceDays,
		LastPromptedAt: user.LastPromptedAt,
		NextDueAt:      user.NextDueAt,
		IsActive:       user.IsActive,
		CreatedAt:      user.CreatedAt,
		UpdatedAt:      user.UpdatedAt,
	}
}

// ToUserListResponse converts a slice of users to UserListResponse
func ToUserListResponse(users []models.User, page, pageSize int, totalCount int64) UserListResponse {
	items := make([]UserDTO, len(users))
	for i, user := range users {
		items[i] = ToUserDTO(user)
	}

	return UserListResponse{
		Users:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: totalPages(totalCount, pageSize),
	}
}

func totalPages(totalCount int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	pages := int(totalCount) / pageSize
	if int(totalCount)%pageSize > 0 {
		pages++
	}
	return pages
}
