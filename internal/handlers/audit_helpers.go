package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rtchat-service/internal/apperr"
	"rtchat-service/internal/log"
	"rtchat-service/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(log.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader(log.HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(log.RequestIDKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *int64 {
	if val, ok := c.Get("userID"); ok {
		if userID, ok := val.(int64); ok && userID != 0 {
			return &userID
		}
	}

	if header := c.GetHeader("X-User-ID"); header != "" {
		if parsed, err := strconv.ParseInt(header, 10, 64); err == nil {
			return &parsed
		}
	}

	return nil
}

// currentUser returns the authenticated user id set by the auth middleware.
func currentUser(c *gin.Context) int64 {
	return c.GetInt64("userID")
}

func emitAudit(c *gin.Context, audit *telemetry.AuditEmitter, level, text string) {
	if audit == nil {
		return
	}
	audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c), c.Param("slug"))
}

// respondError writes the error envelope for err and audits it.
func respondError(c *gin.Context, audit *telemetry.AuditEmitter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
		emitAudit(c, audit, "ERROR", "internal error")
	} else {
		emitAudit(c, audit, "WARN", apperr.Code(err))
	}
	c.JSON(status, gin.H{"error": apperr.Message(err), "code": apperr.Code(err)})
}

func badRequest(c *gin.Context, audit *telemetry.AuditEmitter, msg string) {
	emitAudit(c, audit, "ERROR", "invalid request payload")
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": apperr.Code(apperr.ErrInvalidInput)})
}

var errInvalidID = errors.New("invalid user id")

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}
