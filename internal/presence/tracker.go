// Package presence tracks which users hold live connections in which rooms.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"rtchat-service/internal/log"
)

// Mirror receives online/offline transitions so other processes can observe them.
// Calls are made from a single goroutine in transition order.
type Mirror interface {
	SetOnline(ctx context.Context, roomID, userID int64) error
	SetOffline(ctx context.Context, roomID, userID int64) error
	Reset(ctx context.Context) error
	// Refresh re-asserts the full online table so mirrored entries with an expiry
	// outlive long connections.
	Refresh(ctx context.Context, rooms map[int64][]int64) error
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithRefreshInterval makes Run refresh the mirror every d. Zero disables it.
func WithRefreshInterval(d time.Duration) Option {
	return func(t *Tracker) {
		t.refreshEvery = d
	}
}

type entry struct {
	userID int64
	roomID int64
}

type transition struct {
	entry
	online bool
}

// Tracker is the authoritative in-memory presence table. A user is online in a room
// while at least one of their connections is registered there.
type Tracker struct {
	mu    sync.Mutex
	conns map[string]entry
	rooms map[int64]map[int64]int

	mirror       Mirror
	queue        chan transition
	refreshEvery time.Duration
}

// NewTracker builds a tracker. mirror may be nil.
func NewTracker(mirror Mirror, opts ...Option) *Tracker {
	t := &Tracker{
		conns:  make(map[string]entry),
		rooms:  make(map[int64]map[int64]int),
		mirror: mirror,
	}
	for _, opt := range opts {
		opt(t)
	}
	if mirror != nil {
		t.queue = make(chan transition, 1024)
	}
	return t
}

// MarkOnline records connID as a live connection of userID in roomID. It reports
// whether this was the user's first connection in the room. Registering the same
// connID twice is a no-op.
func (t *Tracker) MarkOnline(roomID, userID int64, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.conns[connID]; ok {
		return false
	}
	t.conns[connID] = entry{userID: userID, roomID: roomID}
	users, ok := t.rooms[roomID]
	if !ok {
		users = make(map[int64]int)
		t.rooms[roomID] = users
	}
	users[userID]++
	became := users[userID] == 1
	if became {
		t.enqueue(transition{entry: entry{userID: userID, roomID: roomID}, online: true})
	}
	return became
}

// MarkOffline drops connID. It returns the user and room it belonged to and whether
// that was the user's last connection in the room. ok is false for unknown ids.
func (t *Tracker) MarkOffline(connID string) (userID, roomID int64, wentOffline, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.conns[connID]
	if !ok {
		return 0, 0, false, false
	}
	delete(t.conns, connID)
	users := t.rooms[e.roomID]
	users[e.userID]--
	if users[e.userID] > 0 {
		return e.userID, e.roomID, false, true
	}
	delete(users, e.userID)
	if len(users) == 0 {
		delete(t.rooms, e.roomID)
	}
	t.enqueue(transition{entry: e, online: false})
	return e.userID, e.roomID, true, true
}

// OnlineUsers returns the ids of users online in roomID in ascending order.
func (t *Tracker) OnlineUsers(roomID int64) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]int64, 0, len(t.rooms[roomID]))
	for id := range t.rooms[roomID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IsOnline reports whether userID has a live connection in roomID.
func (t *Tracker) IsOnline(roomID, userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rooms[roomID][userID] > 0
}

// Pairs returns the number of online (user, room) pairs.
func (t *Tracker) Pairs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, users := range t.rooms {
		n += len(users)
	}
	return n
}

// Snapshot copies the whole table, room id to online user ids.
func (t *Tracker) Snapshot() map[int64][]int64 {
	t.mu.Lock()
	rooms := make([]int64, 0, len(t.rooms))
	for id := range t.rooms {
		rooms = append(rooms, id)
	}
	t.mu.Unlock()

	out := make(map[int64][]int64, len(rooms))
	for _, id := range rooms {
		if users := t.OnlineUsers(id); len(users) > 0 {
			out[id] = users
		}
	}
	return out
}

func (t *Tracker) enqueue(tr transition) {
	if t.queue == nil {
		return
	}
	select {
	case t.queue <- tr:
	default:
		log.L().Warn().Int64(log.FieldRoomID, tr.roomID).Int64(log.FieldUserID, tr.userID).Msg("presence mirror queue full, dropping transition")
	}
}

// Run resets the mirror and then forwards transitions until ctx is done, refreshing
// the whole table on the configured interval. It returns immediately when the
// tracker has no mirror.
func (t *Tracker) Run(ctx context.Context) error {
	if t.mirror == nil {
		return nil
	}
	if err := t.mirror.Reset(ctx); err != nil {
		log.L().Warn().Err(err).Msg("presence mirror reset failed")
	}

	var refresh <-chan time.Time
	if t.refreshEvery > 0 {
		ticker := time.NewTicker(t.refreshEvery)
		defer ticker.Stop()
		refresh = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-refresh:
			if err := t.mirror.Refresh(ctx, t.Snapshot()); err != nil {
				log.L().Warn().Err(err).Msg("presence mirror refresh failed")
			}
		case tr := <-t.queue:
			var err error
			if tr.online {
				err = t.mirror.SetOnline(ctx, tr.roomID, tr.userID)
			} else {
				err = t.mirror.SetOffline(ctx, tr.roomID, tr.userID)
			}
			if err != nil {
				log.L().Warn().Err(err).Int64(log.FieldRoomID, tr.roomID).Int64(log.FieldUserID, tr.userID).Bool("online", tr.online).Msg("presence mirror update failed")
			}
		}
	}
}
