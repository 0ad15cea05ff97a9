package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rtchat-service/internal/apperr"
	"rtchat-service/internal/models"
	"rtchat-service/internal/ws"
)

// join opens a transport-less connection through the same admission check the
// websocket handler uses.
func (e *env) join(connID string, userID int64, room models.Room) (*ws.Client, error) {
	opts := ws.DefaultOptions()
	opts.SendBuffer = 256
	c := ws.NewClient(e.hub, nil, ws.ConnInfo{ConnID: connID, UserID: userID, ConnectedAt: time.Now()}, room.ID, room.Slug, opts)
	err := e.hub.Join(c, func() error {
		_, err := e.rooms.ConnectRoom(context.Background(), userID, room.Slug)
		return err
	})
	return c, err
}

func TestRemovedBeforeJoinGetsNoMessages(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	room, err := e.rooms.CreateGroupRoom(ctx, 1, "General")
	require.NoError(t, err)
	require.NoError(t, e.store.AddMember(ctx, room.ID, 2))

	_, err = e.rooms.ConnectRoom(ctx, 2, room.Slug)
	require.NoError(t, err)
	require.NoError(t, e.rooms.RemoveMember(ctx, 1, room.Slug, 2))

	c, err := e.join("c2", 2, room)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = e.messages.Append(ctx, 1, room.Slug, "secret")
	require.NoError(t, err)
	require.Empty(t, frames(t, c))
	require.Empty(t, e.rooms.fanout.OnlineUsers(room.ID))
}

func TestLeftBeforeJoinIsRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	room, err := e.rooms.CreateGroupRoom(ctx, 1, "General")
	require.NoError(t, err)
	require.NoError(t, e.store.AddMember(ctx, room.ID, 2))

	_, err = e.rooms.ConnectRoom(ctx, 2, room.Slug)
	require.NoError(t, err)
	require.NoError(t, e.rooms.LeaveRoom(ctx, 2, room.Slug))

	_, err = e.join("c2", 2, room)
	require.ErrorIs(t, err, apperr.ErrForbidden)
	require.Zero(t, e.hub.Connections(room.ID))
}

// removalFirst runs removal right before delegating to the hub, after Append has
// resolved the room but before its commit runs.
type removalFirst struct {
	*ws.Hub
	removal func()
}

func (f removalFirst) Sequence(roomID int64, roomSlug string, commit func() (models.Message, error)) (models.Message, error) {
	f.removal()
	return f.Hub.Sequence(roomID, roomSlug, commit)
}

func TestAppendRacingRemovalIsForbidden(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	room, err := e.rooms.CreateGroupRoom(ctx, 1, "General")
	require.NoError(t, err)
	require.NoError(t, e.store.AddMember(ctx, room.ID, 2))
	watcher := e.connect(t, "c1", 1, room)
	frames(t, watcher)

	racing := NewMessageService(e.store, e.store, removalFirst{Hub: e.hub, removal: func() {
		require.NoError(t, e.rooms.RemoveMember(ctx, 1, room.Slug, 2))
	}}, DefaultRecentLimit, MaxRecentLimit)

	_, err = racing.Append(ctx, 2, room.Slug, "too late")
	require.ErrorIs(t, err, apperr.ErrForbidden)
	require.Empty(t, bodies(frames(t, watcher)))

	msgs, err := e.store.ListRecent(ctx, room.ID, 30)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestDeleteRoomForgetsTimestamps(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.rooms.OnDelete(e.messages.Forget)
	room, err := e.rooms.CreateGroupRoom(ctx, 1, "General")
	require.NoError(t, err)
	_, err = e.messages.Append(ctx, 1, room.Slug, "hello")
	require.NoError(t, err)

	e.messages.mu.Lock()
	_, tracked := e.messages.last[room.ID]
	e.messages.mu.Unlock()
	require.True(t, tracked)

	require.NoError(t, e.rooms.DeleteRoom(ctx, 1, room.Slug))

	e.messages.mu.Lock()
	_, tracked = e.messages.last[room.ID]
	e.messages.mu.Unlock()
	require.False(t, tracked)
}
