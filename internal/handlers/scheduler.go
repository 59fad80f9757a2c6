package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	apierrors "github.com/yukikurage/checkin-bot/internal/errors"
	"github.com/yukikurage/checkin-bot/internal/services"
)

type SchedulerHandler struct {
	scheduler *services.SchedulerService
}

func NewSchedulerHandler(scheduler *services.SchedulerService) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler}
}

// RunDueCycle prompts every due user and reports the counts
func (h *SchedulerHandler) RunDueCycle(c *gin.Context) {
	result, err := h.scheduler.RunDueCycle(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("scheduler cycle failed")
		apierrors.ServiceUnavailable(c, "Scheduler cycle failed")
		return
	}

	c.JSON(http.StatusOK, result)
}

// ChaseUser prompts one user immediately
func (h *SchedulerHandler) ChaseUser(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.scheduler.ChaseNow(c.Request.Context(), userID); err != nil {
		respondSchedulerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"chased":  true,
	})
}

func respondSchedulerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		apierrors.NotFound(c, err.Error())
	case errors.Is(err, services.ErrUserInactive):
		apierrors.Conflict(c, err.Error())
	case errors.Is(err, services.ErrDispatchFailed):
		apierrors.BadGateway(c, "Failed to deliver prompt")
	default:
		log.WithError(err).Error("chase failed")
		apierrors.InternalError(c, "Internal server error")
	}
}
