package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"rtchat-service/internal/apperr"
	"rtchat-service/internal/log"
	"rtchat-service/internal/models"
	"rtchat-service/internal/observability"
	"rtchat-service/internal/repositories"
)

// MaxBodyLength bounds message bodies, in characters.
const MaxBodyLength = 400

// History limits used when none are configured.
const (
	DefaultRecentLimit = 30
	MaxRecentLimit     = 200
)

// MessageService is the single write path for messages and serves room history.
type MessageService struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	fanout   Fanout

	defaultLimit int
	maxLimit     int
	now          func() time.Time

	mu   sync.Mutex
	last map[int64]time.Time
}

// NewMessageService constructs a MessageService. Non-positive limits fall back to
// DefaultRecentLimit and MaxRecentLimit.
func NewMessageService(rooms repositories.RoomRepository, messages repositories.MessageRepository, fanout Fanout, defaultLimit, maxLimit int) *MessageService {
	if defaultLimit <= 0 {
		defaultLimit = DefaultRecentLimit
	}
	if maxLimit < defaultLimit {
		maxLimit = MaxRecentLimit
		if maxLimit < defaultLimit {
			maxLimit = defaultLimit
		}
	}
	return &MessageService{
		rooms:        rooms,
		messages:     messages,
		fanout:       fanout,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		now:          time.Now,
		last:         make(map[int64]time.Time),
	}
}

// ValidateBody trims body and checks its length.
func ValidateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	n := utf8.RuneCountInString(body)
	if n == 0 {
		return "", fmt.Errorf("%w: message body is empty", apperr.ErrInvalidInput)
	}
	if n > MaxBodyLength {
		return "", fmt.Errorf("%w: message body must be at most %d characters", apperr.ErrInvalidInput, MaxBodyLength)
	}
	return body, nil
}

// stamp returns a creation time strictly after every earlier stamp in the room, at
// the microsecond precision the store keeps.
func (s *MessageService) stamp(roomID int64) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now().UTC().Truncate(time.Microsecond)
	if last, ok := s.last[roomID]; ok && !t.After(last) {
		t = last.Add(time.Microsecond)
	}
	s.last[roomID] = t
	return t
}

// Forget drops the room's timestamp state. It is called once a room is deleted.
func (s *MessageService) Forget(roomID int64) {
	s.mu.Lock()
	delete(s.last, roomID)
	s.mu.Unlock()
}

// Append validates and persists body from userID in the room, then fans it out to
// the room's live connections. Persisting and broadcasting happen under the room's
// ordering lock, so live order matches history order.
func (s *MessageService) Append(ctx context.Context, userID int64, slug, body string) (models.Message, error) {
	body, err := ValidateBody(body)
	if err != nil {
		return models.Message{}, err
	}

	ctx, span := otel.Tracer("rtchat-service/messages").Start(ctx, "message.append")
	defer span.End()
	span.SetAttributes(attribute.String("room.slug", slug), attribute.Int64("user.id", userID))

	room, err := s.rooms.GetRoomBySlug(ctx, slug)
	if err != nil {
		return models.Message{}, err
	}

	// Membership is checked under the room's ordering lock, which removals also take.
	msg, err := s.fanout.Sequence(room.ID, room.Slug, func() (models.Message, error) {
		member, err := s.rooms.IsMember(ctx, room.ID, userID)
		if err != nil {
			return models.Message{}, err
		}
		if !member {
			return models.Message{}, fmt.Errorf("%w: not a member of %q", apperr.ErrForbidden, slug)
		}
		return s.messages.CreateMessage(ctx, room.ID, userID, body, s.stamp(room.ID))
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if apperr.Code(err) == "not_found" {
			s.Forget(room.ID)
		}
		return models.Message{}, err
	}

	observability.IncMessageAppended()
	log.Ctx(ctx).Debug().Int64(log.FieldRoomID, room.ID).Int64("message_id", msg.ID).Msg("message appended")
	return msg, nil
}

// Recent returns up to limit of the room's newest messages, newest first. A
// non-positive limit uses the default; larger limits are capped.
func (s *MessageService) Recent(ctx context.Context, userID int64, slug string, limit int) ([]models.Message, error) {
	room, err := s.rooms.GetRoomBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !room.HasMember(userID) {
		return nil, fmt.Errorf("%w: not a member of %q", apperr.ErrForbidden, slug)
	}
	return s.messages.ListRecent(ctx, room.ID, s.clampLimit(limit))
}

func (s *MessageService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}
