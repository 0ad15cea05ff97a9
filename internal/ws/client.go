package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"rtchat-service/internal/apperr"
	"rtchat-service/internal/log"
	"rtchat-service/internal/models"
)

// State is the lifecycle stage of a connection.
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	default:
		return "closed"
	}
}

// Options tunes the per-connection pumps.
type Options struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// DefaultOptions returns the intervals used when none are configured.
func DefaultOptions() Options {
	return Options{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     64,
	}
}

// SubmitFunc persists an inbound message body on behalf of the connection's user.
type SubmitFunc func(ctx context.Context, body string) error

// Client is one live connection joined to exactly one room.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	info     ConnInfo
	roomID   int64
	roomSlug string
	opts     Options

	send  chan []byte
	state atomic.Int32

	closeOnce sync.Once
	done      chan struct{}
	reasonMu  sync.Mutex
	reason    string
}

// NewClient wraps conn for roomID. conn may be nil for connections driven without a
// transport.
func NewClient(hub *Hub, conn *websocket.Conn, info ConnInfo, roomID int64, roomSlug string, opts Options) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultOptions().SendBuffer
	}
	return &Client{
		hub:      hub,
		conn:     conn,
		info:     info,
		roomID:   roomID,
		roomSlug: roomSlug,
		opts:     opts,
		send:     make(chan []byte, opts.SendBuffer),
		done:     make(chan struct{}),
	}
}

// State returns the current lifecycle stage.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// Info returns the connection metadata.
func (c *Client) Info() ConnInfo {
	return c.info
}

// Outbound exposes queued frames for transport-less clients.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Done is closed once the connection has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Reason returns why the connection closed.
func (c *Client) Reason() string {
	c.reasonMu.Lock()
	defer c.reasonMu.Unlock()
	return c.reason
}

// Close transitions the connection to Closed. Queued frames are still flushed by the
// write pump before the socket is closed.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.reasonMu.Lock()
		c.reason = reason
		c.reasonMu.Unlock()
		c.hub.leave(c)
		close(c.done)
	})
}

// abort closes the connection and the socket immediately.
func (c *Client) abort(reason string) {
	c.Close(reason)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// readPump reads inbound frames until the peer goes away. Each frame is submitted
// through submit; failures are reported to this connection only.
func (c *Client) readPump(ctx context.Context, submit SubmitFunc) {
	defer c.abort("read closed")

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	logger := log.Ctx(ctx)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Str(log.FieldConnID, c.info.ConnID).Msg("ws read error")
			}
			c.Close(err.Error())
			return
		}
		c.handleFrame(ctx, data, submit)
	}
}

func (c *Client) handleFrame(ctx context.Context, data []byte, submit SubmitFunc) {
	var frame models.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.hub.Send(c, models.RoomEvent{Type: models.EventError, Error: "malformed frame", Code: apperr.Code(apperr.ErrInvalidInput)})
		return
	}
	if err := submit(ctx, frame.Body); err != nil {
		c.hub.Send(c, models.RoomEvent{Type: models.EventError, Error: apperr.Message(err), Code: apperr.Code(err)})
	}
}

// writePump drains the send channel to the socket and keeps the peer alive with
// pings. Every write is bounded by WriteWait.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.Reason()))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close(err.Error())
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close(err.Error())
				return
			}
		}
	}
}
