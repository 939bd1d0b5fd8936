// Package audit publishes security-relevant account events (logins, API key
// lifecycle, credential changes) to Kafka. Emission is fire-and-forget: a
// broker outage must never block or fail the request that triggered it.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openexch/exauth/libs/kafka"
)

const (
	EventLogin           = "auth.login"
	EventLoginDenied     = "auth.login_denied"
	EventAPIKeyCreated   = "auth.api_key_created"
	EventAPIKeyRevoked   = "auth.api_key_revoked"
	EventOTPEnabled      = "auth.otp_enabled"
	EventPasswordChanged = "auth.password_changed"
	EventPasswordReset   = "auth.password_reset"
)

type Event struct {
	kafka.Envelope
	ActorID string         `json:"actor_id,omitempty"`
	IP      string         `json:"ip,omitempty"`
	Detail  map[string]any `json:"detail,omitempty"`
}

type Emitter struct {
	publisher kafka.Publisher
	topic     string
	logger    *slog.Logger
	timeout   time.Duration
}

// New returns an Emitter, or nil when no publisher is configured. A nil
// Emitter is safe to use; all emits become no-ops.
func New(publisher kafka.Publisher, topic string, logger *slog.Logger) *Emitter {
	if publisher == nil || topic == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
		timeout:   5 * time.Second,
	}
}

func (e *Emitter) Emit(eventType string, actorID uuid.UUID, ip string, detail map[string]any) {
	if e == nil {
		return
	}

	env, err := kafka.NewEnvelope(eventType, 1, "")
	if err != nil {
		e.logger.Error("audit envelope rejected", "event_type", eventType, "error", err)
		return
	}

	evt := Event{
		Envelope: env,
		IP:       ip,
		Detail:   detail,
	}
	if actorID != uuid.Nil {
		evt.ActorID = actorID.String()
	}

	key := evt.ActorID
	if key == "" {
		key = env.EventID
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		if _, _, err := e.publisher.PublishJSON(ctx, e.topic, key, evt); err != nil {
			e.logger.Error("audit publish failed", "event_type", eventType, "error", err)
		}
	}()
}
