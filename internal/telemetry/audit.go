package telemetry

import (
	"context"
	"time"

	"rtchat-service/internal/log"
)

// Publisher is the subset of rabbitmq.Publisher the emitter needs.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *int64       `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

// Type reports the envelope's event type.
func (e AuditEnvelope) Type() string { return e.EventType }

type AuditPayload struct {
	Level    string `json:"level"`
	Text     string `json:"text"`
	RoomSlug string `json:"room_slug,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

// Emit publishes an audit_log envelope. Failures are logged and swallowed.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *int64, roomSlug string) {
	if e == nil || e.publisher == nil {
		return
	}

	logger := log.Ctx(ctx)
	logger.Debug().Str("level", level).Str(log.FieldRequestID, requestID).Str(log.FieldRoomSlug, roomSlug).Str("text", text).Msg("audit emit")
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:    level,
			Text:     text,
			RoomSlug: roomSlug,
		},
	}

	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, headers); err != nil {
		logger.Warn().Err(err).Msg("audit publish failed")
	}
}
