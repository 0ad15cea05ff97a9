package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"rtchat-service/internal/apperr"
	"rtchat-service/internal/models"
)

const roomColumns = `id, slug, display_name, is_private, admin_id, created_at`

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// CreatePrivateRoom relies on rooms_private_pair_key: a concurrent insert for the
// same pair blocks until the winner commits and then becomes a no-op.
func (r *RoomRepo) CreatePrivateRoom(ctx context.Context, slug string, userA, userB int64) (models.Room, bool, error) {
	if userA == userB {
		return models.Room{}, false, fmt.Errorf("%w: cannot create private room with self", apperr.ErrInvalidInput)
	}
	low, high := models.OrderedPair(userA, userB)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, false, err
	}
	defer tx.Rollback()

	var room models.Room
	err = tx.GetContext(ctx, &room, `INSERT INTO rooms (slug, is_private, pair_low, pair_high) VALUES ($1, TRUE, $2, $3)
        ON CONFLICT ON CONSTRAINT rooms_private_pair_key DO NOTHING
        RETURNING `+roomColumns, slug, low, high)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		existing, err := r.FindPrivateRoom(ctx, low, high)
		return existing, false, err
	}
	if err != nil {
		return models.Room{}, false, classify(err)
	}

	for _, id := range []int64{low, high} {
		if _, err = tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)`, room.ID, id); err != nil {
			return models.Room{}, false, err
		}
	}
	if err = tx.Commit(); err != nil {
		return models.Room{}, false, classify(err)
	}
	room.MemberIDs = []int64{low, high}
	return room, true, nil
}

// CreateGroupRoom creates the room and its admin membership atomically.
func (r *RoomRepo) CreateGroupRoom(ctx context.Context, slug, displayName string, adminID int64) (models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer tx.Rollback()

	var room models.Room
	if err = tx.GetContext(ctx, &room, `INSERT INTO rooms (slug, display_name, is_private, admin_id) VALUES ($1, $2, FALSE, $3)
        RETURNING `+roomColumns, slug, displayName, adminID); err != nil {
		return models.Room{}, classify(err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)`, room.ID, adminID); err != nil {
		return models.Room{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Room{}, classify(err)
	}
	room.MemberIDs = []int64{adminID}
	return room, nil
}

// FindPrivateRoom fetches the private room of an unordered pair.
func (r *RoomRepo) FindPrivateRoom(ctx context.Context, userA, userB int64) (models.Room, error) {
	low, high := models.OrderedPair(userA, userB)
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM rooms WHERE pair_low=$1 AND pair_high=$2`, low, high)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, fmt.Errorf("%w: private room", apperr.ErrNotFound)
	}
	if err != nil {
		return models.Room{}, err
	}
	room.MemberIDs = []int64{low, high}
	return room, nil
}

// GetRoomBySlug fetches a room and its members.
func (r *RoomRepo) GetRoomBySlug(ctx context.Context, slug string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM rooms WHERE slug=$1`, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, fmt.Errorf("%w: room %q", apperr.ErrNotFound, slug)
	}
	if err != nil {
		return models.Room{}, err
	}
	room.MemberIDs = []int64{}
	if err := r.db.SelectContext(ctx, &room.MemberIDs, `SELECT user_id FROM room_members WHERE room_id=$1 ORDER BY user_id`, room.ID); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// RenameGroupRoom changes the display name; the slug is immutable.
func (r *RoomRepo) RenameGroupRoom(ctx context.Context, roomID int64, displayName string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE rooms SET display_name=$2 WHERE id=$1 AND is_private = FALSE`, roomID, displayName)
	if err != nil {
		return classify(err)
	}
	return requireAffected(res, "room")
}

// AddMember is idempotent.
func (r *RoomRepo) AddMember(ctx context.Context, roomID, userID int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, roomID, userID)
	return classify(err)
}

// RemoveMember reports whether a membership row was deleted.
func (r *RoomRepo) RemoveMember(ctx context.Context, roomID, userID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM room_members WHERE room_id=$1 AND user_id=$2`, roomID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}

// IsMember checks membership.
func (r *RoomRepo) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2)`, roomID, userID)
	return exists, err
}

// ListRoomsForUser returns every room that includes the user, members loaded.
func (r *RoomRepo) ListRoomsForUser(ctx context.Context, userID int64) ([]models.Room, error) {
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, `SELECT r.id, r.slug, r.display_name, r.is_private, r.admin_id, r.created_at
        FROM rooms r INNER JOIN room_members rm ON rm.room_id = r.id
        WHERE rm.user_id=$1 ORDER BY r.created_at DESC, r.id DESC`, userID); err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return rooms, nil
	}

	ids := make([]int64, len(rooms))
	index := make(map[int64]int, len(rooms))
	for i, room := range rooms {
		ids[i] = room.ID
		index[room.ID] = i
	}
	query, args, err := sqlx.In(`SELECT room_id, user_id FROM room_members WHERE room_id IN (?) ORDER BY room_id, user_id`, ids)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var roomID, memberID int64
		if err := rows.Scan(&roomID, &memberID); err != nil {
			return nil, err
		}
		i := index[roomID]
		rooms[i].MemberIDs = append(rooms[i].MemberIDs, memberID)
	}
	return rooms, rows.Err()
}

// DeleteRoom cascades to room_members and messages through foreign keys.
func (r *RoomRepo) DeleteRoom(ctx context.Context, roomID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id=$1`, roomID)
	if err != nil {
		return err
	}
	return requireAffected(res, "room")
}

func requireAffected(res sql.Result, what string) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, what)
	}
	return nil
}
