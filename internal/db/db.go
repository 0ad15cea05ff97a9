package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"rtchat-service/internal/log"
)

// Connect opens the postgres pool and applies migrations.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// migrations are idempotent. Uniqueness of slugs, group display names and private
// member pairs is enforced here so that concurrent inserts are decided by the database.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
            id BIGSERIAL PRIMARY KEY,
            slug TEXT NOT NULL,
            display_name TEXT NULL,
            is_private BOOLEAN NOT NULL DEFAULT FALSE,
            admin_id BIGINT NULL,
            pair_low BIGINT NULL,
            pair_high BIGINT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CONSTRAINT rooms_slug_key UNIQUE (slug),
            CONSTRAINT rooms_display_name_key UNIQUE (display_name),
            CONSTRAINT rooms_private_pair_key UNIQUE (pair_low, pair_high),
            CONSTRAINT rooms_kind_check CHECK (
                (is_private AND display_name IS NULL AND admin_id IS NULL AND pair_low IS NOT NULL AND pair_high IS NOT NULL)
                OR (NOT is_private AND display_name IS NOT NULL AND admin_id IS NOT NULL AND pair_low IS NULL AND pair_high IS NULL)
            )
        );`,
	`CREATE TABLE IF NOT EXISTS room_members (
            room_id BIGINT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (room_id, user_id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_room_members_user ON room_members (user_id);`,
	`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            room_id BIGINT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            author_id BIGINT NOT NULL,
            body VARCHAR(400) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS idx_messages_room_recent ON messages (room_id, created_at DESC, id DESC);`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	l := log.Ctx(ctx)
	l.Info().Int("statements", len(migrations)).Msg("database migrations applied")
	return nil
}
