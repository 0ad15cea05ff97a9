// Package services implements room lifecycle, membership and the message write path
// on top of the repositories and the live connection registry.
package services

import (
	"context"

	"rtchat-service/internal/models"
)

// Identity is the part of the identity gateway the services consult.
type Identity interface {
	IsEmailVerified(ctx context.Context, userID int64) (bool, error)
	ResolveUsername(ctx context.Context, username string) (int64, error)
}

// Fanout is the live connection registry.
type Fanout interface {
	// Sequence runs commit under the room's ordering lock and broadcasts the
	// resulting message to every joined connection.
	Sequence(roomID int64, roomSlug string, commit func() (models.Message, error)) (models.Message, error)
	// Evict runs commit under the room's ordering lock and then closes userID's
	// connections to the room.
	Evict(roomID, userID int64, reason string, commit func() error) error
	CloseRoom(roomID int64, roomSlug string)
	OnlineUsers(roomID int64) []int64
}
