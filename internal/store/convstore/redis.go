package convstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisStore persists each session's messages as a Redis list keyed
// "campusqa:conv:<sessionID>", pushed with RPUSH and read with LRANGE so
// ordering is strictly FIFO.
type redisStore struct {
	client *redis.Client
}

// NewRedis connects to dsn (a redis:// URL) and returns a conversation store.
func NewRedis(dsn string) (Store, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("convstore: parse redis dsn: %w", err)
	}
	return &redisStore{client: redis.NewClient(opts)}, nil
}

func key(sessionID string) string {
	return "campusqa:conv:" + sessionID
}

func (r *redisStore) Get(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	start := int64(0)
	if limit > 0 {
		if n, err := r.client.LLen(ctx, key(sessionID)).Result(); err == nil && n > int64(limit) {
			start = n - int64(limit)
		}
	}
	raw, err := r.client.LRange(ctx, key(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("convstore: lrange: %w", err)
	}
	out := make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *redisStore) Append(ctx context.Context, sessionID string, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("convstore: marshal message: %w", err)
	}
	if err := r.client.RPush(ctx, key(sessionID), b).Err(); err != nil {
		return fmt.Errorf("convstore: rpush: %w", err)
	}
	return nil
}
