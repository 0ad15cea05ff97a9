package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"rtchat-service/internal/models"
	"rtchat-service/internal/telemetry"
)

// RoomService is the room lifecycle the handlers expose.
type RoomService interface {
	CreatePrivateRoomByUsername(ctx context.Context, userID int64, otherUsername string) (models.Room, error)
	CreateGroupRoom(ctx context.Context, adminID int64, displayName string) (models.Room, error)
	ViewRoom(ctx context.Context, userID int64, slug string) (models.Room, error)
	JoinGroupRoom(ctx context.Context, userID int64, slug string) (models.Room, error)
	RemoveMember(ctx context.Context, adminID int64, slug string, memberID int64) error
	LeaveRoom(ctx context.Context, userID int64, slug string) error
	DeleteRoom(ctx context.Context, adminID int64, slug string) error
	RenameGroupRoom(ctx context.Context, adminID int64, slug, displayName string) (models.Room, error)
	ListRooms(ctx context.Context, userID int64) (models.RoomListing, error)
	OnlineUsers(ctx context.Context, userID int64, slug string) ([]int64, error)
}

// RoomHandler manages room endpoints.
type RoomHandler struct {
	rooms RoomService
	audit *telemetry.AuditEmitter
}

// NewRoomHandler constructs a RoomHandler.
func NewRoomHandler(rooms RoomService, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{rooms: rooms, audit: audit}
}

// ListRooms handles GET /rooms.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	listing, err := h.rooms.ListRooms(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// CreatePrivateRoom handles POST /rooms/private.
func (h *RoomHandler) CreatePrivateRoom(c *gin.Context) {
	var req struct {
		OtherUsername string `json:"other_username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.audit, err.Error())
		return
	}

	room, err := h.rooms.CreatePrivateRoomByUsername(c.Request.Context(), currentUser(c), req.OtherUsername)
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	emitAudit(c, h.audit, "INFO", "Private room opened")
	c.JSON(http.StatusOK, gin.H{"slug": room.Slug, "room": room})
}

// CreateGroupRoom handles POST /rooms.
func (h *RoomHandler) CreateGroupRoom(c *gin.Context) {
	var req struct {
		DisplayName string `json:"display_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.audit, err.Error())
		return
	}

	room, err := h.rooms.CreateGroupRoom(c.Request.Context(), currentUser(c), req.DisplayName)
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	emitAudit(c, h.audit, "INFO", "Group room created")
	c.JSON(http.StatusCreated, gin.H{"slug": room.Slug, "room": room})
}

// GetRoom handles GET /rooms/:slug.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.rooms.ViewRoom(c.Request.Context(), currentUser(c), c.Param("slug"))
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// RenameRoom handles PATCH /rooms/:slug.
func (h *RoomHandler) RenameRoom(c *gin.Context) {
	var req struct {
		DisplayName string `json:"display_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.audit, err.Error())
		return
	}

	room, err := h.rooms.RenameGroupRoom(c.Request.Context(), currentUser(c), c.Param("slug"), req.DisplayName)
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	emitAudit(c, h.audit, "INFO", "Group room renamed")
	c.JSON(http.StatusOK, room)
}

// DeleteRoom handles DELETE /rooms/:slug.
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	if err := h.rooms.DeleteRoom(c.Request.Context(), currentUser(c), c.Param("slug")); err != nil {
		respondError(c, h.audit, err)
		return
	}
	emitAudit(c, h.audit, "INFO", "Room deleted")
	c.Status(http.StatusNoContent)
}

// JoinRoom handles POST /rooms/:slug/join.
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	room, err := h.rooms.JoinGroupRoom(c.Request.Context(), currentUser(c), c.Param("slug"))
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	emitAudit(c, h.audit, "INFO", "Joined group room")
	c.JSON(http.StatusOK, room)
}

// LeaveRoom handles POST /rooms/:slug/leave.
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	if err := h.rooms.LeaveRoom(c.Request.Context(), currentUser(c), c.Param("slug")); err != nil {
		respondError(c, h.audit, err)
		return
	}
	emitAudit(c, h.audit, "INFO", "Left room")
	c.Status(http.StatusNoContent)
}

// RemoveMember handles DELETE /rooms/:slug/members/:user_id.
func (h *RoomHandler) RemoveMember(c *gin.Context) {
	memberID, err := parseUserID(c.Param("user_id"))
	if err != nil {
		badRequest(c, h.audit, err.Error())
		return
	}

	if err := h.rooms.RemoveMember(c.Request.Context(), currentUser(c), c.Param("slug"), memberID); err != nil {
		respondError(c, h.audit, err)
		return
	}
	emitAudit(c, h.audit, "INFO", "Member removed")
	c.Status(http.StatusNoContent)
}

// OnlineUsers handles GET /rooms/:slug/online.
func (h *RoomHandler) OnlineUsers(c *gin.Context) {
	ids, err := h.rooms.OnlineUsers(c.Request.Context(), currentUser(c), c.Param("slug"))
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_slug": c.Param("slug"), "online_user_ids": ids})
}
