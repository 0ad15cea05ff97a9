package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"rtchat-service/internal/rabbitmq"
)

// Routing keys for domain events.
const (
	RoutingRoomCreated   = "rtchat.room.created"
	RoutingRoomDeleted   = "rtchat.room.deleted"
	RoutingMemberJoined  = "rtchat.member.joined"
	RoutingMemberRemoved = "rtchat.member.removed"
	RoutingWSConnect     = "rtchat.ws.connect"
	RoutingWSDisconnect  = "rtchat.ws.disconnect"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// Type reports the envelope's event type.
func (e EventEnvelope) Type() string { return e.EventType }

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// TraceID returns the hex trace id of the span in ctx, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// EventSink publishes domain events. Errors are counted, never returned to callers
// of the domain operation.
type EventSink struct {
	publisher rabbitmq.Publisher
}

func NewEventSink(publisher rabbitmq.Publisher) *EventSink {
	return &EventSink{publisher: publisher}
}

// Publish sends payload under routingKey wrapped in an EventEnvelope.
func (s *EventSink) Publish(ctx context.Context, routingKey, eventName, requestID string, payload interface{}) {
	if s == nil || s.publisher == nil {
		return
	}
	envelope := EventEnvelope{EventType: "domain_event", EventName: eventName, Payload: payload}
	if err := s.publisher.Publish(ctx, routingKey, envelope, BuildHeaders(requestID, TraceID(ctx))); err != nil {
		IncAMQPPublishError()
	}
}
