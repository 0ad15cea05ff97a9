package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"rtchat-service/internal/models"
)

// MessageRepo is a sqlx-backed message log.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage appends a message. The BIGSERIAL id is the tie-break sequence.
func (r *MessageRepo) CreateMessage(ctx context.Context, roomID, authorID int64, body string, createdAt time.Time) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `INSERT INTO messages (room_id, author_id, body, created_at) VALUES ($1, $2, $3, $4)
        RETURNING id, room_id, author_id, body, created_at`, roomID, authorID, body, createdAt)
	if err != nil {
		return models.Message{}, classify(err)
	}
	return msg, nil
}

// ListRecent returns the newest messages first.
func (r *MessageRepo) ListRecent(ctx context.Context, roomID int64, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT id, room_id, author_id, body, created_at FROM messages
        WHERE room_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, roomID, limit)
	return msgs, err
}
