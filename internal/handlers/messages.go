package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rtchat-service/internal/models"
	"rtchat-service/internal/telemetry"
)

// MessageService is the message log the handlers expose.
type MessageService interface {
	Append(ctx context.Context, userID int64, slug, body string) (models.Message, error)
	Recent(ctx context.Context, userID int64, slug string, limit int) ([]models.Message, error)
}

// MessageHandler serves room history and the HTTP submit path.
type MessageHandler struct {
	messages MessageService
	audit    *telemetry.AuditEmitter
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(messages MessageService, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{messages: messages, audit: audit}
}

// Recent handles GET /rooms/:slug/messages?limit=N.
func (h *MessageHandler) Recent(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, h.audit, "invalid limit")
			return
		}
		limit = parsed
	}

	msgs, err := h.messages.Recent(c.Request.Context(), currentUser(c), c.Param("slug"), limit)
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// Post handles POST /rooms/:slug/messages. It shares the write path with websocket
// frames, so connected members receive the message live.
func (h *MessageHandler) Post(c *gin.Context) {
	var req models.InboundFrame
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.audit, err.Error())
		return
	}

	msg, err := h.messages.Append(c.Request.Context(), currentUser(c), c.Param("slug"), req.Body)
	if err != nil {
		respondError(c, h.audit, err)
		return
	}
	emitAudit(c, h.audit, "INFO", "Message sent")
	c.JSON(http.StatusCreated, msg)
}
