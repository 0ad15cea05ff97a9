package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rtchat-service/internal/apperr"
	"rtchat-service/internal/mocks"
	"rtchat-service/internal/models"
	"rtchat-service/internal/telemetry"
)

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(1))
		c.Next()
	})
	r.GET("/rooms/:slug/messages", handler.Recent)
	r.POST("/rooms/:slug/messages", handler.Post)
	return r
}

func TestRecentMessages(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(messages, nil))

	messages.On("Recent", mock.Anything, int64(1), "general", 0).Return([]models.Message{{ID: 2, Body: "b"}, {ID: 1, Body: "a"}}, nil).Once()
	messages.On("Recent", mock.Anything, int64(1), "general", 5).Return([]models.Message{}, nil).Once()
	messages.On("Recent", mock.Anything, int64(1), "gone", 0).Return(nil, apperr.ErrNotFound).Once()

	rec := serve(router, http.MethodGet, "/rooms/general/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"body":"b"`)

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/rooms/general/messages?limit=5", "").Code)
	require.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/rooms/general/messages?limit=x", "").Code)
	require.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/rooms/gone/messages", "").Code)
	messages.AssertExpectations(t)
}

func TestPostMessage(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	router := setupMessageRouter(NewMessageHandler(messages, nil))

	messages.On("Append", mock.Anything, int64(1), "general", "hello").Return(models.Message{ID: 7, Body: "hello"}, nil).Once()
	messages.On("Append", mock.Anything, int64(1), "general", "").Return(nil, apperr.ErrInvalidInput).Once()
	messages.On("Append", mock.Anything, int64(1), "secret", "hi").Return(nil, apperr.ErrForbidden).Once()

	require.Equal(t, http.StatusCreated, serve(router, http.MethodPost, "/rooms/general/messages", `{"body":"hello"}`).Code)
	require.Equal(t, http.StatusBadRequest, serve(router, http.MethodPost, "/rooms/general/messages", `{"body":""}`).Code)
	require.Equal(t, http.StatusForbidden, serve(router, http.MethodPost, "/rooms/secret/messages", `{"body":"hi"}`).Code)
	messages.AssertExpectations(t)
}

func TestInternalErrorsAreHiddenAndAudited(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	publisher := new(mocks.PublisherMock)
	audit := telemetry.NewAuditEmitter(publisher, "audit.rtchat", "rtchat-service", "test")
	router := setupMessageRouter(NewMessageHandler(messages, audit))

	messages.On("Append", mock.Anything, int64(1), "general", "hello").Return(nil, errors.New("pq: connection reset")).Once()
	publisher.On("Publish", mock.Anything, "audit.rtchat", mock.MatchedBy(func(e telemetry.AuditEnvelope) bool {
		return e.Payload.Level == "ERROR" && e.Payload.RoomSlug == "general" && *e.UserID == 1
	}), mock.Anything).Return(nil).Once()

	rec := serve(router, http.MethodPost, "/rooms/general/messages", `{"body":"hello"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	msg, code := decodeError(t, rec)
	require.Equal(t, "internal error", msg)
	require.Equal(t, "internal", code)
	publisher.AssertExpectations(t)
}

type staticPresence map[int64][]int64

func (p staticPresence) Snapshot() map[int64][]int64 { return p }

func TestDebugRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "audit.rtchat", mock.AnythingOfType("telemetry.AuditEnvelope"), mock.Anything).Return(nil).Once()
	audit := telemetry.NewAuditEmitter(publisher, "audit.rtchat", "rtchat-service", "test")

	r := gin.New()
	RegisterDebugRoutes(r, audit, staticPresence{3: {1, 2}}, true)

	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/debug/audit-test", "").Code)
	rec := serve(r, http.MethodGet, "/debug/presence", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"rooms":{"3":[1,2]}}`, rec.Body.String())
	publisher.AssertExpectations(t)

	disabled := gin.New()
	RegisterDebugRoutes(disabled, nil, nil, false)
	require.Equal(t, http.StatusNotFound, serve(disabled, http.MethodGet, "/debug/presence", "").Code)
}
