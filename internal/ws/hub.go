package ws

import (
	"encoding/json"
	"errors"
	"sync"

	"rtchat-service/internal/log"
	"rtchat-service/internal/models"
	"rtchat-service/internal/observability"
	"rtchat-service/internal/presence"
)

// ErrRoomClosed is returned by Join when the room was deleted.
var ErrRoomClosed = errors.New("room closed")

// ErrNotConnecting is returned by Join for a client that already joined or closed.
var ErrNotConnecting = errors.New("connection is not in connecting state")

// maxClosedRooms bounds how many deleted room ids the hub remembers.
const maxClosedRooms = 1024

// Hub is the connection registry. It owns the per-room broadcast groups and keeps the
// presence tracker in step with them.
//
// Lock order: room sequencer, then mu, then the tracker's own lock.
type Hub struct {
	mu          sync.Mutex
	rooms       map[int64]map[string]*Client
	closed      map[int64]struct{}
	closedOrder []int64

	seqMu sync.Mutex
	seq   map[int64]*sync.Mutex

	presence *presence.Tracker
}

// NewHub creates an empty hub backed by tracker.
func NewHub(tracker *presence.Tracker) *Hub {
	if tracker == nil {
		tracker = presence.NewTracker(nil)
	}
	return &Hub{
		rooms:    make(map[int64]map[string]*Client),
		closed:   make(map[int64]struct{}),
		seq:      make(map[int64]*sync.Mutex),
		presence: tracker,
	}
}

func (h *Hub) sequencer(roomID int64) *sync.Mutex {
	h.seqMu.Lock()
	defer h.seqMu.Unlock()
	m, ok := h.seq[roomID]
	if !ok {
		m = &sync.Mutex{}
		h.seq[roomID] = m
	}
	return m
}

// Join moves c from Connecting to Joined, registers it in its room and marks the
// user online. The first connection of a user in a room broadcasts an online
// presence event to the room, the joining connection included.
//
// admit, when non-nil, runs under the room's sequencer before c is registered and
// its error aborts the join. Membership changes made through Evict are serialized
// with it.
func (h *Hub) Join(c *Client, admit func() error) error {
	seq := h.sequencer(c.roomID)
	seq.Lock()
	defer seq.Unlock()

	if admit != nil {
		if err := admit(); err != nil {
			return err
		}
	}

	h.mu.Lock()
	if _, gone := h.closed[c.roomID]; gone {
		h.mu.Unlock()
		return ErrRoomClosed
	}
	if c.State() != StateConnecting {
		h.mu.Unlock()
		return ErrNotConnecting
	}
	group, ok := h.rooms[c.roomID]
	if !ok {
		group = make(map[string]*Client)
		h.rooms[c.roomID] = group
	}
	group[c.info.ConnID] = c
	c.setState(StateJoined)

	var overflow []*Client
	if h.presence.MarkOnline(c.roomID, c.info.UserID, c.info.ConnID) {
		overflow = h.deliverLocked(c.roomID, presenceFrame(c.info.UserID, c.roomSlug, true))
	}
	observability.SetOnlinePairs(h.presence.Pairs())
	h.mu.Unlock()

	h.drop(overflow)
	return nil
}

// Sequence runs commit while holding the room's sequencer and, when commit
// succeeds, fans the message out to every connection joined at that moment. Joins
// and appends to the same room are therefore totally ordered.
func (h *Hub) Sequence(roomID int64, roomSlug string, commit func() (models.Message, error)) (models.Message, error) {
	seq := h.sequencer(roomID)
	seq.Lock()
	defer seq.Unlock()

	msg, err := commit()
	if err != nil {
		return msg, err
	}

	frame := encodeEvent(models.RoomEvent{Type: models.EventMessage, Message: &msg, RoomSlug: roomSlug})
	h.mu.Lock()
	overflow := h.deliverLocked(roomID, frame)
	h.mu.Unlock()

	h.drop(overflow)
	return msg, nil
}

// deliverLocked queues frame on every connection in the room without blocking and
// returns the connections whose buffers were full.
func (h *Hub) deliverLocked(roomID int64, frame []byte) []*Client {
	var overflow []*Client
	for _, c := range h.rooms[roomID] {
		select {
		case c.send <- frame:
		default:
			overflow = append(overflow, c)
		}
	}
	return overflow
}

func (h *Hub) drop(clients []*Client) {
	for _, c := range clients {
		observability.IncFanoutDropped()
		log.L().Warn().Str(log.FieldConnID, c.info.ConnID).Int64(log.FieldRoomID, c.roomID).Msg("send buffer full, closing connection")
		c.abort("send buffer overflow")
	}
}

// leave unregisters c, closes its send channel and updates presence. It is safe to
// call more than once.
func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	if c.State() == StateClosed {
		h.mu.Unlock()
		return
	}
	joined := c.State() == StateJoined
	c.setState(StateClosed)
	close(c.send)

	var overflow []*Client
	if joined {
		if group, ok := h.rooms[c.roomID]; ok {
			delete(group, c.info.ConnID)
			if len(group) == 0 {
				delete(h.rooms, c.roomID)
			}
		}
		if userID, _, wentOffline, ok := h.presence.MarkOffline(c.info.ConnID); ok && wentOffline {
			overflow = h.deliverLocked(c.roomID, presenceFrame(userID, c.roomSlug, false))
		}
		observability.SetOnlinePairs(h.presence.Pairs())
	}
	h.mu.Unlock()

	h.drop(overflow)
}

// Send queues frame for a single connection. It reports false when the connection
// is gone or its buffer is full.
func (h *Hub) Send(c *Client, event models.RoomEvent) bool {
	frame := encodeEvent(event)
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.State() == StateClosed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// CloseRoom sends a room_deleted frame to every connection in the room and closes
// them. Later joins fail with ErrRoomClosed.
func (h *Hub) CloseRoom(roomID int64, roomSlug string) {
	seq := h.sequencer(roomID)
	seq.Lock()
	h.mu.Lock()
	h.markClosedLocked(roomID)
	overflow := h.deliverLocked(roomID, encodeEvent(models.RoomEvent{Type: models.EventRoomDeleted, RoomSlug: roomSlug}))
	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	seq.Unlock()

	h.seqMu.Lock()
	delete(h.seq, roomID)
	h.seqMu.Unlock()

	h.drop(overflow)
	for _, c := range clients {
		c.Close("room deleted")
	}
}

// Evict runs commit under the room's sequencer and, when it succeeds, closes every
// connection userID holds in the room before any later join or append to the room
// can run.
func (h *Hub) Evict(roomID, userID int64, reason string, commit func() error) error {
	seq := h.sequencer(roomID)
	seq.Lock()
	defer seq.Unlock()

	if err := commit(); err != nil {
		return err
	}
	h.DisconnectUser(roomID, userID, reason)
	return nil
}

// DisconnectUser closes every connection userID holds in the room, telling each one
// why first.
func (h *Hub) DisconnectUser(roomID, userID int64, reason string) int {
	h.mu.Lock()
	var clients []*Client
	for _, c := range h.rooms[roomID] {
		if c.info.UserID == userID {
			clients = append(clients, c)
		}
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.Send(c, models.RoomEvent{Type: models.EventError, Error: reason, Code: "forbidden"})
		c.Close(reason)
	}
	return len(clients)
}

// markClosedLocked remembers roomID as deleted, forgetting the oldest entry once
// maxClosedRooms are held. Joins passing an admit check do not depend on it.
func (h *Hub) markClosedLocked(roomID int64) {
	if _, ok := h.closed[roomID]; ok {
		return
	}
	h.closed[roomID] = struct{}{}
	h.closedOrder = append(h.closedOrder, roomID)
	if len(h.closedOrder) > maxClosedRooms {
		delete(h.closed, h.closedOrder[0])
		h.closedOrder = h.closedOrder[1:]
	}
}

// OnlineUsers returns the users with a live connection in the room.
func (h *Hub) OnlineUsers(roomID int64) []int64 {
	return h.presence.OnlineUsers(roomID)
}

// Connections returns the number of joined connections in the room.
func (h *Hub) Connections(roomID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomID])
}

// Presence exposes the tracker for diagnostics.
func (h *Hub) Presence() *presence.Tracker {
	return h.presence
}

func presenceFrame(userID int64, roomSlug string, online bool) []byte {
	return encodeEvent(models.RoomEvent{
		Type:     models.EventPresence,
		Presence: &models.PresenceChange{UserID: userID, RoomSlug: roomSlug, Online: online},
	})
}

func encodeEvent(event models.RoomEvent) []byte {
	payload, err := json.Marshal(event)
	if err != nil {
		log.L().Error().Err(err).Str("type", event.Type).Msg("encode room event")
		return nil
	}
	return payload
}
