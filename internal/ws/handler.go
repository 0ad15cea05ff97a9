package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"rtchat-service/internal/apperr"
	"rtchat-service/internal/log"
	"rtchat-service/internal/models"
	"rtchat-service/internal/observability"
)

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (int64, error)
}

// RoomGate authorizes a user to open a live connection to a room.
type RoomGate interface {
	ConnectRoom(ctx context.Context, userID int64, slug string) (models.Room, error)
}

// MessageAppender is the single write path for messages.
type MessageAppender interface {
	Append(ctx context.Context, userID int64, slug, body string) (models.Message, error)
}

// Handler upgrades room connections and runs their pumps.
type Handler struct {
	hub      *Hub
	auth     Authenticator
	rooms    RoomGate
	messages MessageAppender
	events   *observability.EventSink
	opts     Options
	upgrader websocket.Upgrader
}

// NewHandler constructs a websocket Handler.
func NewHandler(hub *Hub, auth Authenticator, rooms RoomGate, messages MessageAppender, events *observability.EventSink, opts Options) *Handler {
	return &Handler{
		hub:      hub,
		auth:     auth,
		rooms:    rooms,
		messages: messages,
		events:   events,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle serves GET /ws/rooms/:slug.
func (h *Handler) Handle(c *gin.Context) {
	slug := c.Param("slug")

	ctx, span := otel.Tracer("rtchat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	span.SetAttributes(attribute.String("room.slug", slug))

	userID, err := h.auth.Authenticate(ctx, observability.BearerToken(c.Request))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthenticated"})
		return
	}

	room, err := h.rooms.ConnectRoom(ctx, userID, slug)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.Message(err), "code": apperr.Code(err)})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	requestID := c.GetString(log.RequestIDKey)
	if requestID == "" {
		requestID = observability.RequestIDFromRequest(c.Request)
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	// Membership may have changed since the handshake check; admit repeats it under
	// the room's ordering lock.
	admit := func() error {
		_, err := h.rooms.ConnectRoom(ctx, userID, slug)
		return err
	}
	client := NewClient(h.hub, conn, info, room.ID, room.Slug, h.opts)
	if err := h.hub.Join(client, admit); err != nil {
		reason := apperr.Message(err)
		if errors.Is(err, ErrRoomClosed) {
			reason = err.Error()
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
		_ = conn.Close()
		return
	}

	logger := log.Ctx(ctx).With().
		Str(log.FieldConnID, info.ConnID).
		Int64(log.FieldUserID, userID).
		Str(log.FieldRoomSlug, room.Slug).
		Logger()
	logger.Info().Msg("ws connected")

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publish(ctx, observability.RoutingWSConnect, "ws_connect", room, info, "")

	// The pumps outlive the request, so they get a context detached from it.
	connCtx := log.WithLogger(context.WithoutCancel(ctx), logger)
	submit := func(ctx context.Context, body string) error {
		_, err := h.messages.Append(ctx, userID, room.Slug, body)
		return err
	}

	go client.writePump()
	go func() {
		client.readPump(connCtx, submit)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		logger.Info().Str("reason", client.Reason()).Msg("ws disconnected")
		h.publish(connCtx, observability.RoutingWSDisconnect, "ws_disconnect", room, info, client.Reason())
	}()
}

func (h *Handler) publish(ctx context.Context, routingKey, event string, room models.Room, info ConnInfo, reason string) {
	h.events.Publish(ctx, routingKey, event, info.RequestID, map[string]interface{}{
		"ws": map[string]interface{}{
			"room_id":     room.ID,
			"room_slug":   room.Slug,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	})
}
