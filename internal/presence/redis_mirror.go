package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis presence mirror.
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
	Channel   string
}

// RedisMirror mirrors online sets into Redis and publishes each transition.
//
// Keys:
//
//	{prefix}:room:{room_id}   SET<user_id>  online users in room
//	{prefix}:rooms            SET<room_id>  rooms with at least one online user
type RedisMirror struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	channel string
}

// NewRedisMirror connects to Redis and verifies the connection with PING.
func NewRedisMirror(ctx context.Context, cfg RedisConfig) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "rtchat:presence"
	}
	return &RedisMirror{client: client, prefix: prefix, ttl: cfg.TTL, channel: cfg.Channel}, nil
}

func (m *RedisMirror) roomKey(roomID int64) string {
	return fmt.Sprintf("%s:room:%d", m.prefix, roomID)
}

func (m *RedisMirror) roomsKey() string {
	return m.prefix + ":rooms"
}

// Update is the payload published on the presence channel.
type Update struct {
	RoomID int64 `json:"room_id"`
	UserID int64 `json:"user_id"`
	Online bool  `json:"online"`
	At     int64 `json:"at"`
}

func (m *RedisMirror) SetOnline(ctx context.Context, roomID, userID int64) error {
	key := m.roomKey(roomID)
	pipe := m.client.TxPipeline()
	pipe.SAdd(ctx, key, strconv.FormatInt(userID, 10))
	pipe.SAdd(ctx, m.roomsKey(), strconv.FormatInt(roomID, 10))
	if m.ttl > 0 {
		pipe.Expire(ctx, key, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return m.publish(ctx, Update{RoomID: roomID, UserID: userID, Online: true})
}

func (m *RedisMirror) SetOffline(ctx context.Context, roomID, userID int64) error {
	key := m.roomKey(roomID)
	if err := m.client.SRem(ctx, key, strconv.FormatInt(userID, 10)).Err(); err != nil {
		return err
	}
	n, err := m.client.SCard(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		if err := m.client.SRem(ctx, m.roomsKey(), strconv.FormatInt(roomID, 10)).Err(); err != nil {
			return err
		}
	}
	return m.publish(ctx, Update{RoomID: roomID, UserID: userID, Online: false})
}

// Reset clears every mirrored set. Presence is not durable, so a restarted process
// starts from empty.
func (m *RedisMirror) Reset(ctx context.Context) error {
	rooms, err := m.client.SMembers(ctx, m.roomsKey()).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(rooms)+1)
	for _, id := range rooms {
		keys = append(keys, m.prefix+":room:"+id)
	}
	keys = append(keys, m.roomsKey())
	return m.client.Del(ctx, keys...).Err()
}

// Refresh re-adds every online user and extends the expiry of their room sets.
func (m *RedisMirror) Refresh(ctx context.Context, rooms map[int64][]int64) error {
	if len(rooms) == 0 {
		return nil
	}
	pipe := m.client.TxPipeline()
	for roomID, users := range rooms {
		key := m.roomKey(roomID)
		members := make([]interface{}, 0, len(users))
		for _, id := range users {
			members = append(members, strconv.FormatInt(id, 10))
		}
		pipe.SAdd(ctx, key, members...)
		pipe.SAdd(ctx, m.roomsKey(), strconv.FormatInt(roomID, 10))
		if m.ttl > 0 {
			pipe.Expire(ctx, key, m.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (m *RedisMirror) publish(ctx context.Context, u Update) error {
	if m.channel == "" {
		return nil
	}
	u.At = time.Now().Unix()
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return m.client.Publish(ctx, m.channel, data).Err()
}

// Close releases the Redis client.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
