package presence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMirror struct {
	mu     sync.Mutex
	events []string
	resets int
}

func (m *fakeMirror) SetOnline(_ context.Context, roomID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, fmt.Sprintf("on:%d:%d", roomID, userID))
	return nil
}

func (m *fakeMirror) SetOffline(_ context.Context, roomID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, fmt.Sprintf("off:%d:%d", roomID, userID))
	return nil
}

func (m *fakeMirror) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	return nil
}

func (m *fakeMirror) Refresh(_ context.Context, rooms map[int64][]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for roomID, users := range rooms {
		for _, userID := range users {
			m.events = append(m.events, fmt.Sprintf("refresh:%d:%d", roomID, userID))
		}
	}
	return nil
}

func (m *fakeMirror) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func TestTrackerRefcountsConnections(t *testing.T) {
	tr := NewTracker(nil)

	require.True(t, tr.MarkOnline(1, 10, "c1"))
	require.False(t, tr.MarkOnline(1, 10, "c2"))
	require.False(t, tr.MarkOnline(1, 10, "c2"))
	require.True(t, tr.IsOnline(1, 10))

	userID, roomID, wentOffline, ok := tr.MarkOffline("c1")
	require.True(t, ok)
	require.Equal(t, int64(10), userID)
	require.Equal(t, int64(1), roomID)
	require.False(t, wentOffline)
	require.True(t, tr.IsOnline(1, 10))

	_, _, wentOffline, ok = tr.MarkOffline("c2")
	require.True(t, ok)
	require.True(t, wentOffline)
	require.False(t, tr.IsOnline(1, 10))
	require.Empty(t, tr.OnlineUsers(1))

	_, _, _, ok = tr.MarkOffline("c2")
	require.False(t, ok)
}

func TestTrackerRoomsAreIndependent(t *testing.T) {
	tr := NewTracker(nil)
	tr.MarkOnline(1, 10, "a")
	tr.MarkOnline(2, 10, "b")
	tr.MarkOnline(1, 11, "c")

	require.Equal(t, []int64{10, 11}, tr.OnlineUsers(1))
	require.Equal(t, []int64{10}, tr.OnlineUsers(2))
	require.Equal(t, 3, tr.Pairs())

	tr.MarkOffline("a")
	require.Equal(t, []int64{11}, tr.OnlineUsers(1))
	require.True(t, tr.IsOnline(2, 10))
	require.Equal(t, map[int64][]int64{1: {11}, 2: {10}}, tr.Snapshot())
}

func TestTrackerConcurrentOpenClose(t *testing.T) {
	tr := NewTracker(nil)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", i)
			tr.MarkOnline(1, int64(i%5), id)
			_, _, _, ok := tr.MarkOffline(id)
			assert.True(t, ok)
		}(i)
	}
	wg.Wait()
	require.Empty(t, tr.OnlineUsers(1))
	require.Equal(t, 0, tr.Pairs())
}

func TestTrackerForwardsTransitionsToMirror(t *testing.T) {
	mirror := &fakeMirror{}
	tr := NewTracker(mirror)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = tr.Run(ctx)
		close(done)
	}()

	tr.MarkOnline(1, 10, "a")
	tr.MarkOnline(1, 10, "b")
	tr.MarkOffline("a")
	tr.MarkOffline("b")

	require.Eventually(t, func() bool { return len(mirror.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"on:1:10", "off:1:10"}, mirror.snapshot())

	cancel()
	<-done
	require.Equal(t, 1, mirror.resets)
}

func TestRunWithoutMirrorReturns(t *testing.T) {
	require.NoError(t, NewTracker(nil).Run(context.Background()))
}

func TestRunRefreshesLongLivedPresence(t *testing.T) {
	mirror := &fakeMirror{}
	tr := NewTracker(mirror, WithRefreshInterval(10*time.Millisecond))
	require.True(t, tr.MarkOnline(1, 10, "c1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	require.Eventually(t, func() bool {
		n := 0
		for _, evt := range mirror.snapshot() {
			if evt == "refresh:1:10" {
				n++
			}
		}
		return n >= 2
	}, 2*time.Second, 5*time.Millisecond)

	tr.MarkOffline("c1")
	cancel()
	require.NoError(t, <-done)
}
