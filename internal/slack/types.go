package slack

import (
	"bytes"
	"encoding/json"

	"github.com/yukikurage/checkin-bot/internal/forms"
)

// Envelope types accepted on the events endpoint.
const (
	EnvelopeHandshake       = "handshake"
	EnvelopeURLVerification = "url_verification"
	EnvelopeEventCallback   = "event_callback"
	EnvelopeInteractive     = "interactive"
)

// Interactive payload types.
const (
	InteractionViewSubmission = "view_submission"
	InteractionBlockActions   = "block_actions"
)

// Channel types for message events.
const (
	ChannelTypeIM = "im"
)

// Envelope is the outer JSON object of an inbound delivery.
type Envelope struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge,omitempty"`
	TeamID    string          `json:"team_id,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
	EventTime int64           `json:"event_time,omitempty"`
	Event     *MessageEvent   `json:"event,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// IsHandshake reports whether the envelope is a verification handshake.
func (e *Envelope) IsHandshake() bool {
	return e.Type == EnvelopeHandshake || e.Type == EnvelopeURLVerification
}

// MessageEvent is the inner event of an event_callback envelope.
type MessageEvent struct {
	Type        string `json:"type"`
	Subtype     string `json:"subtype,omitempty"`
	BotID       string `json:"bot_id,omitempty"`
	User        string `json:"user"`
	Text        string `json:"text"`
	Channel     string `json:"channel"`
	ChannelType string `json:"channel_type"`
	TS          string `json:"ts"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
}

// Message subtypes a person produces directly. Every other subtype
// (bot_message, message_changed, message_deleted, channel_join, ...) is
// platform bookkeeping.
var humanSubtypes = map[string]bool{
	"":                 true,
	"file_share":       true,
	"thread_broadcast": true,
	"me_message":       true,
}

// IsBot reports whether the event was produced by a bot or the platform itself.
func (m *MessageEvent) IsBot() bool {
	return m.BotID != "" || !humanSubtypes[m.Subtype]
}

// IsDirect reports whether the event arrived in a one-to-one channel.
func (m *MessageEvent) IsDirect() bool {
	if m.ChannelType != "" {
		return m.ChannelType == ChannelTypeIM
	}
	// Direct message channel IDs start with D.
	return len(m.Channel) > 0 && m.Channel[0] == 'D'
}

// InteractiveUser identifies the submitter of an interactive payload.
type InteractiveUser struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

// DisplayName returns the best available human-readable name.
func (u InteractiveUser) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.Username != "" {
		return u.Username
	}
	return u.ID
}

// State carries widget values of a view or message.
type State struct {
	Values forms.BlockMap `json:"values"`
}

// View is a modal view in a view_submission payload.
type View struct {
	ID         string `json:"id"`
	CallbackID string `json:"callback_id,omitempty"`
	Hash       string `json:"hash,omitempty"`
	State      State  `json:"state"`
}

// InteractivePayload is the body of an interactive action submission.
type InteractivePayload struct {
	Type      string          `json:"type"`
	TriggerID string          `json:"trigger_id,omitempty"`
	User      InteractiveUser `json:"user"`
	View      *View           `json:"view,omitempty"`
	State     *State          `json:"state,omitempty"`
}

// Blocks returns the submitted widget values wherever the payload carries them.
func (p *InteractivePayload) Blocks() forms.BlockMap {
	if p.View != nil && len(p.View.State.Values) > 0 {
		return p.View.State.Values
	}
	if p.State != nil {
		return p.State.Values
	}
	return nil
}

// DecodeInteractivePayload accepts the payload either as a JSON object or as
// a JSON string containing the object, which is how form-encoded posts arrive.
func DecodeInteractivePayload(raw json.RawMessage) (*InteractivePayload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, err
		}
		raw = json.RawMessage(inner)
	}

	var payload InteractivePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// apiResponse is the common envelope of Slack Web API responses.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// postMessageRequest is the chat.postMessage request body.
type postMessageRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}
