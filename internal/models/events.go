package models

// Outbound websocket frame types.
const (
	EventMessage     = "message"
	EventPresence    = "presence"
	EventError       = "error"
	EventRoomDeleted = "room_deleted"
)

// PresenceChange is emitted when a user's first connection in a room opens or the
// last one closes.
type PresenceChange struct {
	UserID   int64  `json:"user_id"`
	RoomSlug string `json:"room_slug"`
	Online   bool   `json:"online"`
}

// RoomEvent is broadcast through websockets.
type RoomEvent struct {
	Type     string          `json:"type"`
	Message  *Message        `json:"message,omitempty"`
	Presence *PresenceChange `json:"presence,omitempty"`
	RoomSlug string          `json:"room_slug,omitempty"`
	Error    string          `json:"error,omitempty"`
	Code     string          `json:"code,omitempty"`
}

// InboundFrame is a message-submit event sent by a client.
type InboundFrame struct {
	Body string `json:"body"`
}
