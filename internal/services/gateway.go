package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/yukikurage/checkin-bot/internal/forms"
	"github.com/yukikurage/checkin-bot/internal/metrics"
	"github.com/yukikurage/checkin-bot/internal/models"
	"github.com/yukikurage/checkin-bot/internal/slack"
)

// Outcome is the terminal state of one inbound delivery.
type Outcome string

const (
	OutcomeHandshake Outcome = "handshake"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRecorded  Outcome = "recorded"
)

// Delivery is one inbound call on the events endpoint.
type Delivery struct {
	Body        []byte
	RetryNum    int
	RetryReason string
}

// IsRetry reports whether the platform flagged the delivery as a redelivery.
func (d Delivery) IsRetry() bool {
	return d.RetryNum > 0
}

// GatewayResult describes how a delivery was handled.
type GatewayResult struct {
	Outcome          Outcome
	Challenge        string
	Reason           string
	UpdateID         uint64
	CorrelationToken string
}

// GatewayOptions configures optional gateway behaviour.
type GatewayOptions struct {
	AckReplies bool
	AckTimeout time.Duration
	Cache      DeliveryCache
}

// Gateway classifies inbound deliveries and records replies exactly once.
// It keeps no state between deliveries; redelivery detection lives in the store.
type Gateway struct {
	identity   *IdentityService
	updates    *UpdateService
	notifier   Notifier
	cache      DeliveryCache
	ackReplies bool
	ackTimeout time.Duration
	now        func() time.Time

	acks sync.WaitGroup
}

// NewGateway creates a new Gateway.
func NewGateway(identity *IdentityService, updates *UpdateService, notifier Notifier, opts GatewayOptions) *Gateway {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 5 * time.Second
	}
	return &Gateway{
		identity:   identity,
		updates:    updates,
		notifier:   notifier,
		cache:      opts.Cache,
		ackReplies: opts.AckReplies,
		ackTimeout: opts.AckTimeout,
		now:        utcNow,
	}
}

// Handle runs one delivery through the gateway. An error is returned only
// when the store failed, in which case the caller should ask for a retry.
func (g *Gateway) Handle(ctx context.Context, d Delivery) (GatewayResult, error) {
	result, err := g.handle(ctx, d)
	if err != nil {
		metrics.EventsTotal.WithLabelValues("error").Inc()
		return result, err
	}
	metrics.EventsTotal.WithLabelValues(string(result.Outcome)).Inc()
	return result, nil
}

// Wait blocks until in-flight acknowledgments finish.
func (g *Gateway) Wait() {
	g.acks.Wait()
}

func (g *Gateway) handle(ctx context.Context, d Delivery) (GatewayResult, error) {
	var env slack.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		return ignored("malformed envelope"), nil
	}

	if env.IsHandshake() {
		return GatewayResult{Outcome: OutcomeHandshake, Challenge: env.Challenge}, nil
	}

	switch env.Type {
	case slack.EnvelopeEventCallback:
		return g.handleMessage(ctx, &env, d)
	case slack.EnvelopeInteractive:
		return g.handleInteractive(ctx, env.Payload, d)
	default:
		return ignored("unsupported envelope type"), nil
	}
}

func (g *Gateway) handleMessage(ctx context.Context, env *slack.Envelope, d Delivery) (GatewayResult, error) {
	ev := env.Event
	switch {
	case ev == nil:
		return ignored("missing event"), nil
	case ev.Type != "message":
		return ignored("unsupported event type"), nil
	case ev.IsBot():
		return ignored("bot or system message"), nil
	case !ev.IsDirect():
		return ignored("not a direct message"), nil
	case ev.User == "":
		return ignored("missing user"), nil
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return ignored("empty text"), nil
	}

	return g.ingest(ctx, ingestion{
		externalID:   ev.User,
		fallbackName: ev.User,
		eventKey:     messageKey(env),
		retryNum:     d.RetryNum,
		retryReason:  d.RetryReason,
		input: RecordInput{
			Source:     models.SourceFreeTextDM,
			Summary:    &text,
			RawPayload: d.Body,
		},
	})
}

func (g *Gateway) handleInteractive(ctx context.Context, raw json.RawMessage, d Delivery) (GatewayResult, error) {
	payload, err := slack.DecodeInteractivePayload(raw)
	if err != nil {
		return ignored("malformed interactive payload"), nil
	}
	if payload.Type != slack.InteractionViewSubmission {
		return ignored("interaction is not a submission"), nil
	}
	if payload.User.ID == "" {
		return ignored("missing user"), nil
	}

	fields := forms.Extract(payload.Blocks())

	return g.ingest(ctx, ingestion{
		externalID:   payload.User.ID,
		fallbackName: payload.User.DisplayName(),
		eventKey:     interactionKey(payload),
		retryNum:     d.RetryNum,
		retryReason:  d.RetryReason,
		input: RecordInput{
			Source:      models.SourceStructuredForm,
			Summary:     fields.Summary,
			Blockers:    fields.Blockers,
			ProgressPct: fields.ProgressPct,
			ETA:         fields.ETA,
			RAG:         fields.RAG,
			RawPayload:  d.Body,
		},
	})
}

type ingestion struct {
	externalID   string
	fallbackName string
	eventKey     string
	retryNum     int
	retryReason  string
	input        RecordInput
}

func (g *Gateway) ingest(ctx context.Context, in ingestion) (GatewayResult, error) {
	logger := log.WithFields(log.Fields{
		"external_id": in.externalID,
		"event_key":   in.eventKey,
		"source":      in.input.Source,
	})
	if in.retryNum > 0 {
		logger = logger.WithFields(log.Fields{
			"retry_num":    in.retryNum,
			"retry_reason": in.retryReason,
		})
	}

	cacheKey := ""
	if in.eventKey != "" {
		cacheKey = in.externalID + ":" + in.eventKey
	}
	if g.seen(ctx, cacheKey) {
		logger.Debug("delivery already handled (cache)")
		return duplicate("delivery already recorded"), nil
	}

	if in.retryNum > 0 && in.eventKey != "" {
		recorded, err := g.alreadyRecorded(ctx, in.externalID, in.eventKey)
		if err != nil {
			return GatewayResult{}, err
		}
		if recorded {
			g.remember(ctx, cacheKey)
			logger.Info("dropping redelivery of recorded event")
			return duplicate("redelivery of recorded event"), nil
		}
	}

	userID, err := g.identity.ResolveOrCreate(ctx, in.externalID, in.fallbackName)
	if err != nil {
		return GatewayResult{}, err
	}

	now := g.now()
	in.input.RespondedAt = &now
	in.input.EventKey = in.eventKey

	updateID, err := g.updates.Record(ctx, userID, in.input)
	if errors.Is(err, ErrDuplicateEvent) {
		g.remember(ctx, cacheKey)
		logger.Info("dropping duplicate delivery")
		return duplicate("event already recorded"), nil
	}
	if err != nil {
		return GatewayResult{}, err
	}
	g.remember(ctx, cacheKey)

	token := g.acknowledge(ctx, in.externalID)
	logger.WithFields(log.Fields{
		"user_id":   userID,
		"update_id": updateID,
	}).Info("recorded update")

	return GatewayResult{
		Outcome:          OutcomeRecorded,
		UpdateID:         updateID,
		CorrelationToken: token,
	}, nil
}

func (g *Gateway) alreadyRecorded(ctx context.Context, externalID, eventKey string) (bool, error) {
	user, err := g.identity.Lookup(ctx, externalID)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return g.updates.HasEvent(ctx, user.ID, eventKey)
}

func (g *Gateway) seen(ctx context.Context, key string) bool {
	if g.cache == nil || key == "" {
		return false
	}
	seen, err := g.cache.Seen(ctx, key)
	if err != nil {
		log.WithError(err).Warn("delivery cache lookup failed")
		return false
	}
	return seen
}

func (g *Gateway) remember(ctx context.Context, key string) {
	if g.cache == nil || key == "" {
		return
	}
	if err := g.cache.Remember(ctx, key); err != nil {
		log.WithError(err).Warn("delivery cache write failed")
	}
}

// acknowledge notifies the sender in the background. The update is already
// committed, so failures are only logged.
func (g *Gateway) acknowledge(ctx context.Context, externalID string) string {
	if !g.ackReplies || g.notifier == nil {
		return ""
	}

	token := uuid.NewString()
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.ackTimeout)

	g.acks.Add(1)
	go func() {
		defer g.acks.Done()
		defer cancel()

		if err := g.notifier.Acknowledge(ackCtx, externalID, token); err != nil {
			metrics.AcknowledgmentsTotal.WithLabelValues("failed").Inc()
			log.WithError(err).WithField("external_id", externalID).Warn("failed to acknowledge reply")
			return
		}
		metrics.AcknowledgmentsTotal.WithLabelValues("sent").Inc()
	}()

	return token
}

// messageKey derives the idempotency key of a message event.
func messageKey(env *slack.Envelope) string {
	switch {
	case env.EventID != "":
		return "evt:" + env.EventID
	case env.Event != nil && env.Event.ClientMsgID != "":
		return "msg:" + env.Event.ClientMsgID
	case env.Event != nil && env.Event.TS != "":
		return "ts:" + env.Event.Channel + ":" + env.Event.TS
	default:
		return ""
	}
}

// interactionKey derives the idempotency key of a form submission.
func interactionKey(p *slack.InteractivePayload) string {
	switch {
	case p.View != nil && p.View.ID != "":
		return "view:" + p.View.ID
	case p.TriggerID != "":
		return "trigger:" + p.TriggerID
	default:
		return ""
	}
}

func ignored(reason string) GatewayResult {
	return GatewayResult{Outcome: OutcomeIgnored, Reason: reason}
}

func duplicate(reason string) GatewayResult {
	return GatewayResult{Outcome: OutcomeDuplicate, Reason: reason}
}
