package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	promptText = "Hi! Time for your status update. Reply here with how things are going, " +
		"e.g. progress, blockers and an ETA, or use the check-in form."
	ackTextFormat = "Thanks, your update has been recorded (ref %s)."
)

// Client sends prompts and acknowledgments through the Slack Web API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	stubMode   bool
}

// NewClient creates a Slack client. In stub mode nothing is sent and every call succeeds.
func NewClient(baseURL, token string, timeout time.Duration, stubMode bool) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		stubMode:   stubMode,
	}
}

// SendPrompt asks the user for a status update via direct message.
func (c *Client) SendPrompt(ctx context.Context, externalID string) error {
	return c.postMessage(ctx, externalID, promptText)
}

// Acknowledge tells the user their reply was recorded.
func (c *Client) Acknowledge(ctx context.Context, externalID, correlationToken string) error {
	return c.postMessage(ctx, externalID, fmt.Sprintf(ackTextFormat, correlationToken))
}

func (c *Client) postMessage(ctx context.Context, channel, text string) error {
	if c.stubMode {
		log.WithFields(log.Fields{"channel": channel, "text": text}).Info("slack stub: message not sent")
		return nil
	}

	jsonData, err := json.Marshal(postMessageRequest{Channel: channel, Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat.postMessage", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !apiResp.OK {
		return fmt.Errorf("slack api error: %s", apiResp.Error)
	}

	return nil
}
