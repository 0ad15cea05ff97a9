package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	routingKey string
	event      any
	headers    map[string]string
	err        error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, event any, headers map[string]string) error {
	p.routingKey = routingKey
	p.event = event
	p.headers = headers
	return p.err
}

func TestAuditEmitterBuildsEnvelope(t *testing.T) {
	pub := &recordingPublisher{}
	emitter := NewAuditEmitter(pub, "audit.rtchat", "rtchat-service", "test")
	emitter.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	userID := int64(7)
	emitter.Emit(context.Background(), "info", "room created", "req-1", &userID, "general")

	require.Equal(t, "audit.rtchat", pub.routingKey)
	require.Equal(t, map[string]string{"x-request-id": "req-1"}, pub.headers)
	envelope, ok := pub.event.(AuditEnvelope)
	require.True(t, ok)
	require.Equal(t, "audit_log", envelope.Type())
	require.Equal(t, 1, envelope.SchemaVersion)
	require.Equal(t, "2024-05-01T12:00:00Z", envelope.OccurredAt)
	require.Equal(t, int64(7), *envelope.UserID)
	require.Equal(t, "general", envelope.Payload.RoomSlug)
}

func TestAuditEmitterSwallowsPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("down")}
	emitter := NewAuditEmitter(pub, "audit.rtchat", "rtchat-service", "test")

	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), "warn", "x", "", nil, "")
	})
	require.Empty(t, pub.headers)
}

func TestNilAuditEmitterIsSafe(t *testing.T) {
	var emitter *AuditEmitter
	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), "info", "x", "", nil, "")
	})
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
