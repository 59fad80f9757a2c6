package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/yukikurage/checkin-bot/internal/dto"
	apierrors "github.com/yukikurage/checkin-bot/internal/errors"
	"github.com/yukikurage/checkin-bot/internal/services"
	"github.com/yukikurage/checkin-bot/internal/utils"
)

type UserHandler struct {
	roster  *services.RosterService
	updates *services.UpdateService
}

func NewUserHandler(roster *services.RosterService, updates *services.UpdateService) *UserHandler {
	return &UserHandler{
		roster:  roster,
		updates: updates,
	}
}

// ListUsers returns the roster. Pass active=true to hide deactivated users.
func (h *UserHandler) ListUsers(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active", "false"))

	users, total, err := h.roster.ListUsers(c.Request.Context(), activeOnly, params)
	if err != nil {
		respondUserError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToUserListResponse(users, params.Page, params.Limit, total))
}

// UpsertUser creates a roster member or updates the provided fields
func (h *UserHandler) UpsertUser(c *gin.Context) {
	var req dto.UpsertUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	user, err := h.roster.UpsertUser(c.Request.Context(), services.UpsertUserInput{
		ExternalID:  req.ExternalID,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Timezone:    req.Timezone,
		CadenceDays: req.CadenceDays,
		IsActive:    req.IsActive,
	})
	if err != nil {
		respondUserError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToUserDTO(*user))
}

// GetUser returns a user with the latest update and the first page of history
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	user, err := h.roster.GetUser(ctx, userID)
	if err != nil {
		respondUserError(c, err)
		return
	}

	detail := dto.UserDetailDTO{UserDTO: dto.ToUserDTO(*user)}

	latest, err := h.updates.Last(ctx, userID)
	switch {
	case err == nil:
		latestDTO := dto.ToUpdateDTO(*latest)
		detail.LatestUpdate = &latestDTO
	case !errors.Is(err, services.ErrUpdateNotFound):
		respondUserError(c, err)
		return
	}

	params := utils.GetPaginationParams(c)
	history, total, err := h.updates.History(ctx, userID, params)
	if err != nil {
		respondUserError(c, err)
		return
	}
	detail.History = dto.ToUpdateListResponse(history, params.Page, params.Limit, total)

	c.JSON(http.StatusOK, detail)
}

// SetActive enables or disables prompting for a user
func (h *UserHandler) SetActive(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		apierrors.BadRequest(c, "is_active is required")
		return
	}

	user, err := h.roster.SetActive(c.Request.Context(), userID, *req.IsActive)
	if err != nil {
		respondUserError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToUserDTO(*user))
}

// ListUpdates returns a user's update history, newest response first
func (h *UserHandler) ListUpdates(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.roster.GetUser(ctx, userID); err != nil {
		respondUserError(c, err)
		return
	}

	params := utils.GetPaginationParams(c)
	updates, total, err := h.updates.History(ctx, userID, params)
	if err != nil {
		respondUserError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToUpdateListResponse(updates, params.Page, params.Limit, total))
}

// LatestUpdate returns the user's most recent response
func (h *UserHandler) LatestUpdate(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.roster.GetUser(ctx, userID); err != nil {
		respondUserError(c, err)
		return
	}

	latest, err := h.updates.Last(ctx, userID)
	if err != nil {
		respondUserError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToUpdateDTO(*latest))
}

func respondUserError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrMissingExternalID),
		errors.Is(err, services.ErrInvalidCadence),
		errors.Is(err, services.ErrInvalidTimezone):
		apierrors.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrUpdateNotFound):
		apierrors.NotFound(c, err.Error())
	default:
		log.WithError(err).Error("roster request failed")
		apierrors.InternalError(c, "Internal server error")
	}
}

// parseIDParam reads a numeric path parameter, answering 400 when it is malformed
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		apierrors.BadRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}
