package rabbitmq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type typedEvent struct{}

func (typedEvent) Type() string { return "room_created" }

func TestNewPublisherWithoutURLIsNoop(t *testing.T) {
	p := NewPublisher("", "rtchat.events")

	require.Equal(t, "noop", PublisherMode(p))
	require.Equal(t, "empty amqp url", PublisherNoopReason(p))
	require.NoError(t, p.Publish(context.Background(), "rtchat.room.created", typedEvent{}, map[string]string{"x-request-id": "r1"}))
	require.NoError(t, p.Publish(context.Background(), "rtchat.room.created", map[string]string{"k": "v"}, nil))
	require.NoError(t, p.Close())
}

func TestToTable(t *testing.T) {
	require.Nil(t, toTable(nil))

	table := toTable(map[string]string{"trace_id": "abc"})
	require.Equal(t, "abc", table["trace_id"])
}

func TestPublisherModeUnknown(t *testing.T) {
	require.Equal(t, "unknown", PublisherMode(nil))
	require.Equal(t, "", PublisherNoopReason(&amqpPublisher{}))
}
