package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtchat-service/internal/apperr"
)

func TestMemoryPrivateRoomPairIsUnordered(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, created, err := store.CreatePrivateRoom(ctx, "dm-a", 1, 2)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, []int64{1, 2}, first.MemberIDs)

	second, created, err := store.CreatePrivateRoom(ctx, "dm-b", 2, 1)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "dm-a", second.Slug)
}

func TestMemoryPrivateRoomConcurrentBothDirections(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan int64, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := int64(1), int64(2)
			if i%2 == 1 {
				a, b = b, a
			}
			room, _, err := store.CreatePrivateRoom(ctx, "dm-"+string(rune('a'+i)), a, b)
			assert.NoError(t, err)
			ids <- room.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	var first int64
	for id := range ids {
		if first == 0 {
			first = id
		}
		require.Equal(t, first, id)
	}
	rooms, err := store.ListRoomsForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
}

func TestMemorySelfPrivateRoomRejected(t *testing.T) {
	_, _, err := NewMemoryStore().CreatePrivateRoom(context.Background(), "dm", 3, 3)
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestMemoryGroupUniqueness(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.CreateGroupRoom(ctx, "team", "Team", 1)
	require.NoError(t, err)

	_, err = store.CreateGroupRoom(ctx, "team-1", "Team", 2)
	require.ErrorIs(t, err, apperr.ErrDuplicateName)

	_, err = store.CreateGroupRoom(ctx, "team", "team", 2)
	require.ErrorIs(t, err, apperr.ErrSlugTaken)
}

func TestMemoryRenameKeepsSlugAndFreesOldName(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	room, err := store.CreateGroupRoom(ctx, "alpha", "Alpha", 1)
	require.NoError(t, err)
	_, err = store.CreateGroupRoom(ctx, "beta", "Beta", 1)
	require.NoError(t, err)

	require.ErrorIs(t, store.RenameGroupRoom(ctx, room.ID, "Beta"), apperr.ErrDuplicateName)
	require.NoError(t, store.RenameGroupRoom(ctx, room.ID, "Gamma"))

	got, err := store.GetRoomBySlug(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, "Gamma", got.Name())

	_, err = store.CreateGroupRoom(ctx, "alpha-1", "Alpha", 2)
	require.NoError(t, err)
}

func TestMemoryMembership(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	room, err := store.CreateGroupRoom(ctx, "g", "G", 1)
	require.NoError(t, err)

	require.NoError(t, store.AddMember(ctx, room.ID, 5))
	require.NoError(t, store.AddMember(ctx, room.ID, 5))
	ok, err := store.IsMember(ctx, room.ID, 5)
	require.NoError(t, err)
	require.True(t, ok)

	removed, err := store.RemoveMember(ctx, room.ID, 5)
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = store.RemoveMember(ctx, room.ID, 5)
	require.NoError(t, err)
	require.False(t, removed)

	require.ErrorIs(t, store.AddMember(ctx, 999, 5), apperr.ErrNotFound)
}

func TestMemoryListRecentOrdering(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	room, err := store.CreateGroupRoom(ctx, "g", "G", 1)
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = store.CreateMessage(ctx, room.ID, 1, "first", base)
	require.NoError(t, err)
	_, err = store.CreateMessage(ctx, room.ID, 1, "tie-a", base.Add(time.Second))
	require.NoError(t, err)
	_, err = store.CreateMessage(ctx, room.ID, 1, "tie-b", base.Add(time.Second))
	require.NoError(t, err)

	msgs, err := store.ListRecent(ctx, room.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "tie-b", msgs[0].Body)
	require.Equal(t, "tie-a", msgs[1].Body)
	require.Equal(t, "first", msgs[2].Body)

	msgs, err = store.ListRecent(ctx, room.ID, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestMemoryDeleteRoomCascades(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	room, err := store.CreateGroupRoom(ctx, "g", "G", 1)
	require.NoError(t, err)
	_, err = store.CreateMessage(ctx, room.ID, 1, "hi", time.Now())
	require.NoError(t, err)

	require.NoError(t, store.DeleteRoom(ctx, room.ID))

	_, err = store.GetRoomBySlug(ctx, "g")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	msgs, err := store.ListRecent(ctx, room.ID, 10)
	require.NoError(t, err)
	require.Empty(t, msgs)
	_, err = store.CreateMessage(ctx, room.ID, 1, "late", time.Now())
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = store.CreateGroupRoom(ctx, "g", "G", 2)
	require.NoError(t, err)
}
