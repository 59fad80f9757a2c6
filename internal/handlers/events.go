package handlers

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/yukikurage/checkin-bot/internal/constants"
	apierrors "github.com/yukikurage/checkin-bot/internal/errors"
	"github.com/yukikurage/checkin-bot/internal/services"
	"github.com/yukikurage/checkin-bot/internal/slack"
)

type EventsHandler struct {
	gateway *services.Gateway
}

func NewEventsHandler(gateway *services.Gateway) *EventsHandler {
	return &EventsHandler{gateway: gateway}
}

// Ping answers the platform's reachability check
func (h *EventsHandler) Ping(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Receive handles one inbound event delivery. Every handled delivery gets a
// 200, duplicates included; only a store failure asks the platform to retry.
func (h *EventsHandler) Receive(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		apierrors.BadRequest(c, "Failed to read request body")
		return
	}

	if isFormEncoded(c.GetHeader("Content-Type")) {
		body, err = wrapFormPayload(body)
		if err != nil {
			apierrors.BadRequest(c, "Invalid form payload")
			return
		}
	}

	retryNum, _ := strconv.Atoi(c.GetHeader(constants.HeaderSlackRetryNum))
	delivery := services.Delivery{
		Body:        body,
		RetryNum:    retryNum,
		RetryReason: c.GetHeader(constants.HeaderSlackRetryReason),
	}

	result, err := h.gateway.Handle(c.Request.Context(), delivery)
	if err != nil {
		log.WithError(err).WithField("retry_num", retryNum).Error("failed to handle event delivery")
		apierrors.InternalError(c, "Failed to record event")
		return
	}

	if result.Outcome == services.OutcomeHandshake {
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(result.Challenge))
		return
	}

	response := gin.H{
		"ok":      true,
		"outcome": result.Outcome,
	}
	if result.Reason != "" {
		response["reason"] = result.Reason
	}
	if result.UpdateID != 0 {
		response["update_id"] = result.UpdateID
	}
	c.JSON(http.StatusOK, response)
}

func isFormEncoded(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}

// wrapFormPayload turns a form post carrying a payload field into an
// interactive envelope. The payload stays a JSON string and is decoded later.
func wrapFormPayload(body []byte) ([]byte, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Type    string `json:"type"`
		Payload string `json:"payload"`
	}{
		Type:    slack.EnvelopeInteractive,
		Payload: values.Get("payload"),
	})
}
