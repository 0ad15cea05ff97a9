package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rtchat-service/internal/mocks"
	"rtchat-service/internal/models"
	"rtchat-service/internal/naming"
	"rtchat-service/internal/presence"
	"rtchat-service/internal/repositories"
	"rtchat-service/internal/ws"
)

type env struct {
	store    *repositories.MemoryStore
	hub      *ws.Hub
	identity *mocks.IdentityMock
	rooms    *RoomService
	messages *MessageService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := repositories.NewMemoryStore()
	hub := ws.NewHub(presence.NewTracker(nil))
	identity := &mocks.IdentityMock{}
	t.Cleanup(func() { identity.AssertExpectations(t) })
	return &env{
		store:    store,
		hub:      hub,
		identity: identity,
		rooms:    NewRoomService(store, identity, hub, naming.NewGenerator(naming.DefaultMaxAttempts), nil),
		messages: NewMessageService(store, store, hub, DefaultRecentLimit, MaxRecentLimit),
	}
}

// connect joins a transport-less connection for userID to room.
func (e *env) connect(t *testing.T, connID string, userID int64, room models.Room) *ws.Client {
	t.Helper()
	opts := ws.DefaultOptions()
	opts.SendBuffer = 256
	c := ws.NewClient(e.hub, nil, ws.ConnInfo{ConnID: connID, UserID: userID, ConnectedAt: time.Now()}, room.ID, room.Slug, opts)
	require.NoError(t, e.hub.Join(c, nil))
	return c
}

// frames returns the events queued on c without blocking.
func frames(t *testing.T, c *ws.Client) []models.RoomEvent {
	t.Helper()
	var out []models.RoomEvent
	for {
		select {
		case frame, ok := <-c.Outbound():
			if !ok {
				return out
			}
			var evt models.RoomEvent
			require.NoError(t, json.Unmarshal(frame, &evt))
			out = append(out, evt)
		default:
			return out
		}
	}
}

func bodies(events []models.RoomEvent) []string {
	out := []string{}
	for _, evt := range events {
		if evt.Type == models.EventMessage {
			out = append(out, evt.Message.Body)
		}
	}
	return out
}
