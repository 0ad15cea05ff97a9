package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"

	"rtchat-service/internal/apperr"
	"rtchat-service/internal/models"
)

// RoomRepository abstracts room and membership persistence. Every uniqueness rule
// is decided by the insert itself, never by a prior lookup.
type RoomRepository interface {
	// CreatePrivateRoom inserts a private room for the pair under slug, or returns the
	// existing one. created is false when the pair already had a room. A slug
	// collision returns apperr.ErrSlugTaken.
	CreatePrivateRoom(ctx context.Context, slug string, userA, userB int64) (room models.Room, created bool, err error)
	// CreateGroupRoom inserts a group room with admin as sole member. It returns
	// apperr.ErrSlugTaken or apperr.ErrDuplicateName on the matching collision.
	CreateGroupRoom(ctx context.Context, slug, displayName string, adminID int64) (models.Room, error)
	FindPrivateRoom(ctx context.Context, userA, userB int64) (models.Room, error)
	GetRoomBySlug(ctx context.Context, slug string) (models.Room, error)
	RenameGroupRoom(ctx context.Context, roomID int64, displayName string) error
	AddMember(ctx context.Context, roomID, userID int64) error
	RemoveMember(ctx context.Context, roomID, userID int64) (bool, error)
	IsMember(ctx context.Context, roomID, userID int64) (bool, error)
	ListRoomsForUser(ctx context.Context, userID int64) ([]models.Room, error)
	// DeleteRoom removes the room, its members and its messages.
	DeleteRoom(ctx context.Context, roomID int64) error
}

// MessageRepository is the append-only per-room message log.
type MessageRepository interface {
	// CreateMessage persists a message stamped with createdAt. A missing room
	// returns apperr.ErrNotFound.
	CreateMessage(ctx context.Context, roomID, authorID int64, body string, createdAt time.Time) (models.Message, error)
	// ListRecent returns up to limit messages, newest first, ties broken by id.
	ListRecent(ctx context.Context, roomID int64, limit int) ([]models.Message, error)
}

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// classify turns postgres constraint violations into taxonomy errors.
func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case pqUniqueViolation:
		switch pqErr.Constraint {
		case "rooms_slug_key":
			return apperr.ErrSlugTaken
		case "rooms_display_name_key":
			return apperr.ErrDuplicateName
		}
	case pqForeignKeyViolation:
		return apperr.ErrNotFound
	}
	return err
}
