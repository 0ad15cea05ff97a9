package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"rtchat-service/internal/apperr"
	"rtchat-service/internal/log"
	"rtchat-service/internal/models"
	"rtchat-service/internal/naming"
	"rtchat-service/internal/observability"
	"rtchat-service/internal/repositories"
)

// MaxDisplayNameLength bounds group room display names, in characters.
const MaxDisplayNameLength = 150

// RoomService owns room creation, lookup and membership changes.
type RoomService struct {
	rooms    repositories.RoomRepository
	identity Identity
	fanout   Fanout
	names    *naming.Generator
	events   *observability.EventSink
	onDelete []func(roomID int64)
}

// NewRoomService constructs a RoomService. events may be nil.
func NewRoomService(rooms repositories.RoomRepository, identity Identity, fanout Fanout, names *naming.Generator, events *observability.EventSink) *RoomService {
	if names == nil {
		names = naming.NewGenerator(naming.DefaultMaxAttempts)
	}
	return &RoomService{rooms: rooms, identity: identity, fanout: fanout, names: names, events: events}
}

// OnDelete registers fn to run after a room is deleted.
func (s *RoomService) OnDelete(fn func(roomID int64)) {
	s.onDelete = append(s.onDelete, fn)
}

// ValidateDisplayName trims name and checks its length.
func ValidateDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return "", fmt.Errorf("%w: display name is required", apperr.ErrInvalidInput)
	}
	if n > MaxDisplayNameLength {
		return "", fmt.Errorf("%w: display name must be at most %d characters", apperr.ErrInvalidInput, MaxDisplayNameLength)
	}
	return name, nil
}

func countRetries(claim naming.ClaimFunc) naming.ClaimFunc {
	return func(ctx context.Context, slug string) error {
		err := claim(ctx, slug)
		if errors.Is(err, apperr.ErrSlugTaken) {
			observability.IncSlugRetry()
		}
		return err
	}
}

// CreatePrivateRoomByUsername resolves otherUsername and opens the private room
// between the two users.
func (s *RoomService) CreatePrivateRoomByUsername(ctx context.Context, userID int64, otherUsername string) (models.Room, error) {
	otherID, err := s.identity.ResolveUsername(ctx, otherUsername)
	if err != nil {
		return models.Room{}, err
	}
	return s.CreatePrivateRoom(ctx, userID, otherID)
}

// CreatePrivateRoom returns the private room between userA and userB, creating it
// with a fresh opaque slug when the pair has none. Concurrent calls for the same
// pair in either direction resolve to one room.
func (s *RoomService) CreatePrivateRoom(ctx context.Context, userA, userB int64) (models.Room, error) {
	if userA == userB {
		return models.Room{}, fmt.Errorf("%w: cannot open a private room with yourself", apperr.ErrInvalidInput)
	}

	var (
		room    models.Room
		created bool
	)
	_, err := s.names.Random(ctx, countRetries(func(ctx context.Context, slug string) error {
		var err error
		room, created, err = s.rooms.CreatePrivateRoom(ctx, slug, userA, userB)
		return err
	}))
	if err != nil {
		return models.Room{}, err
	}

	if created {
		observability.IncRoomCreated("private")
		log.Ctx(ctx).Info().Str(log.FieldRoomSlug, room.Slug).Int64(log.FieldRoomID, room.ID).Msg("private room created")
		s.events.Publish(ctx, observability.RoutingRoomCreated, "room_created", log.RequestID(ctx), map[string]interface{}{
			"room_id":    room.ID,
			"room_slug":  room.Slug,
			"is_private": true,
			"member_ids": room.MemberIDs,
		})
	}
	return room, nil
}

// CreateGroupRoom creates a group room with adminID as its only member. The slug is
// derived from displayName and suffixed -1, -2, ... on collision.
func (s *RoomService) CreateGroupRoom(ctx context.Context, adminID int64, displayName string) (models.Room, error) {
	name, err := ValidateDisplayName(displayName)
	if err != nil {
		return models.Room{}, err
	}

	var room models.Room
	_, err = s.names.Unique(ctx, naming.Slugify(name), countRetries(func(ctx context.Context, slug string) error {
		var err error
		room, err = s.rooms.CreateGroupRoom(ctx, slug, name, adminID)
		return err
	}))
	if err != nil {
		if errors.Is(err, apperr.ErrDuplicateName) {
			return models.Room{}, fmt.Errorf("%w: a group room named %q already exists", apperr.ErrDuplicateName, name)
		}
		return models.Room{}, err
	}

	observability.IncRoomCreated("group")
	log.Ctx(ctx).Info().Str(log.FieldRoomSlug, room.Slug).Int64(log.FieldRoomID, room.ID).Msg("group room created")
	s.events.Publish(ctx, observability.RoutingRoomCreated, "room_created", log.RequestID(ctx), map[string]interface{}{
		"room_id":      room.ID,
		"room_slug":    room.Slug,
		"display_name": name,
		"admin_id":     adminID,
		"is_private":   false,
	})
	return room, nil
}

// GetRoom looks a room up by slug.
func (s *RoomService) GetRoom(ctx context.Context, slug string) (models.Room, error) {
	return s.rooms.GetRoomBySlug(ctx, slug)
}

// ViewRoom returns the room as seen by userID. Group rooms are visible to everyone;
// private rooms only to their two members.
func (s *RoomService) ViewRoom(ctx context.Context, userID int64, slug string) (models.Room, error) {
	room, err := s.rooms.GetRoomBySlug(ctx, slug)
	if err != nil {
		return models.Room{}, err
	}
	if room.IsPrivate && !room.HasMember(userID) {
		return models.Room{}, fmt.Errorf("%w: not a member of %q", apperr.ErrForbidden, slug)
	}
	return room, nil
}

// MemberRoom returns the room when userID belongs to it, Forbidden otherwise.
func (s *RoomService) MemberRoom(ctx context.Context, userID int64, slug string) (models.Room, error) {
	room, err := s.rooms.GetRoomBySlug(ctx, slug)
	if err != nil {
		return models.Room{}, err
	}
	if !room.HasMember(userID) {
		return models.Room{}, fmt.Errorf("%w: not a member of %q", apperr.ErrForbidden, slug)
	}
	return room, nil
}

// ConnectRoom authorizes a live connection. Only members may connect.
func (s *RoomService) ConnectRoom(ctx context.Context, userID int64, slug string) (models.Room, error) {
	return s.MemberRoom(ctx, userID, slug)
}

// JoinGroupRoom adds userID to the group room. Existing members are returned as is;
// new members must have a verified email.
func (s *RoomService) JoinGroupRoom(ctx context.Context, userID int64, slug string) (models.Room, error) {
	room, err := s.rooms.GetRoomBySlug(ctx, slug)
	if err != nil {
		return models.Room{}, err
	}
	if room.HasMember(userID) {
		return room, nil
	}
	if room.IsPrivate {
		return models.Room{}, fmt.Errorf("%w: private rooms cannot be joined", apperr.ErrForbidden)
	}

	verified, err := s.identity.IsEmailVerified(ctx, userID)
	if err != nil {
		return models.Room{}, err
	}
	if !verified {
		return models.Room{}, fmt.Errorf("%w: verify your email to join group rooms", apperr.ErrVerificationRequired)
	}

	if err := s.rooms.AddMember(ctx, room.ID, userID); err != nil {
		return models.Room{}, err
	}
	room.MemberIDs = append(room.MemberIDs, userID)

	s.events.Publish(ctx, observability.RoutingMemberJoined, "member_joined", log.RequestID(ctx), map[string]interface{}{
		"room_id":   room.ID,
		"room_slug": room.Slug,
		"user_id":   userID,
	})
	return room, nil
}

// RemoveMember lets the admin drop memberID from the room. The member's live
// connections to the room are closed.
func (s *RoomService) RemoveMember(ctx context.Context, adminID int64, slug string, memberID int64) error {
	room, err := s.adminRoom(ctx, adminID, slug)
	if err != nil {
		return err
	}
	if memberID == adminID {
		return fmt.Errorf("%w: the admin cannot be removed; delete the room instead", apperr.ErrForbidden)
	}

	err = s.fanout.Evict(room.ID, memberID, "removed from room", func() error {
		removed, err := s.rooms.RemoveMember(ctx, room.ID, memberID)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%w: user %d is not a member", apperr.ErrNotFound, memberID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.events.Publish(ctx, observability.RoutingMemberRemoved, "member_removed", log.RequestID(ctx), map[string]interface{}{
		"room_id":    room.ID,
		"room_slug":  room.Slug,
		"user_id":    memberID,
		"removed_by": adminID,
	})
	return nil
}

// LeaveRoom removes userID from the group room. Leaving a room one is not in is a
// no-op. Admins must delete the room instead, and private rooms cannot be left.
func (s *RoomService) LeaveRoom(ctx context.Context, userID int64, slug string) error {
	room, err := s.rooms.GetRoomBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if room.IsAdmin(userID) {
		return fmt.Errorf("%w: the admin cannot leave; delete the room instead", apperr.ErrForbidden)
	}
	if room.IsPrivate {
		if room.HasMember(userID) {
			return fmt.Errorf("%w: private rooms cannot be left", apperr.ErrForbidden)
		}
		return nil
	}

	var removed bool
	err = s.fanout.Evict(room.ID, userID, "left room", func() error {
		var err error
		removed, err = s.rooms.RemoveMember(ctx, room.ID, userID)
		return err
	})
	if err != nil {
		return err
	}
	if removed {
		s.events.Publish(ctx, observability.RoutingMemberRemoved, "member_left", log.RequestID(ctx), map[string]interface{}{
			"room_id":   room.ID,
			"room_slug": room.Slug,
			"user_id":   userID,
		})
	}
	return nil
}

// DeleteRoom removes the room with its members and history, then closes every live
// connection to it.
func (s *RoomService) DeleteRoom(ctx context.Context, adminID int64, slug string) error {
	room, err := s.adminRoom(ctx, adminID, slug)
	if err != nil {
		return err
	}
	if err := s.rooms.DeleteRoom(ctx, room.ID); err != nil {
		return err
	}
	s.fanout.CloseRoom(room.ID, room.Slug)
	for _, fn := range s.onDelete {
		fn(room.ID)
	}

	log.Ctx(ctx).Info().Str(log.FieldRoomSlug, room.Slug).Int64(log.FieldRoomID, room.ID).Msg("room deleted")
	s.events.Publish(ctx, observability.RoutingRoomDeleted, "room_deleted", log.RequestID(ctx), map[string]interface{}{
		"room_id":    room.ID,
		"room_slug":  room.Slug,
		"deleted_by": adminID,
	})
	return nil
}

// RenameGroupRoom changes the display name. The slug never changes.
func (s *RoomService) RenameGroupRoom(ctx context.Context, adminID int64, slug, displayName string) (models.Room, error) {
	name, err := ValidateDisplayName(displayName)
	if err != nil {
		return models.Room{}, err
	}
	room, err := s.adminRoom(ctx, adminID, slug)
	if err != nil {
		return models.Room{}, err
	}
	if room.Name() == name {
		return room, nil
	}
	if err := s.rooms.RenameGroupRoom(ctx, room.ID, name); err != nil {
		if errors.Is(err, apperr.ErrDuplicateName) {
			return models.Room{}, fmt.Errorf("%w: a group room named %q already exists", apperr.ErrDuplicateName, name)
		}
		return models.Room{}, err
	}
	room.DisplayName = &name
	return room, nil
}

// ListRooms returns the caller's private rooms, annotated with the other member,
// and their group rooms.
func (s *RoomService) ListRooms(ctx context.Context, userID int64) (models.RoomListing, error) {
	rooms, err := s.rooms.ListRoomsForUser(ctx, userID)
	if err != nil {
		return models.RoomListing{}, err
	}
	listing := models.RoomListing{Private: []models.PrivateRoomSummary{}, Groups: []models.Room{}}
	for _, room := range rooms {
		if !room.IsPrivate {
			listing.Groups = append(listing.Groups, room)
			continue
		}
		summary := models.PrivateRoomSummary{Slug: room.Slug, Created: room.CreatedAt}
		for _, id := range room.MemberIDs {
			if id != userID {
				summary.OtherID = id
			}
		}
		listing.Private = append(listing.Private, summary)
	}
	return listing, nil
}

// OnlineUsers returns the members currently connected to the room.
func (s *RoomService) OnlineUsers(ctx context.Context, userID int64, slug string) ([]int64, error) {
	room, err := s.MemberRoom(ctx, userID, slug)
	if err != nil {
		return nil, err
	}
	return s.fanout.OnlineUsers(room.ID), nil
}

func (s *RoomService) adminRoom(ctx context.Context, adminID int64, slug string) (models.Room, error) {
	room, err := s.rooms.GetRoomBySlug(ctx, slug)
	if err != nil {
		return models.Room{}, err
	}
	if !room.IsAdmin(adminID) {
		return models.Room{}, fmt.Errorf("%w: only the room admin can do that", apperr.ErrForbidden)
	}
	return room, nil
}
