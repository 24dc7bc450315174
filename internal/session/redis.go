package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// Redis stores sessions as JSON documents with a sliding TTL.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// DialRedis parses url, connects and pings the server.
func DialRedis(ctx context.Context, url, prefix string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("session: failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: failed to connect to redis: %w", err)
	}
	return NewRedis(client, prefix, ttl), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(userID int64) string {
	return r.prefix + strconv.FormatInt(userID, 10)
}

// Get loads the session and refreshes its TTL.
func (r *Redis) Get(ctx context.Context, userID int64) (*Session, error) {
	var (
		raw []byte
		err error
	)
	if r.ttl > 0 {
		raw, err = r.client.GetEx(ctx, r.key(userID), r.ttl).Bytes()
	} else {
		raw, err = r.client.Get(ctx, r.key(userID)).Bytes()
	}
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: redis get: %w", err)
	}
	var s Session
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("session: decode %d: %w", userID, err)
	}
	return &s, nil
}

// Save writes the session with the configured TTL.
func (r *Redis) Save(ctx context.Context, s *Session) error {
	if s == nil {
		return errors.New("session: nil session")
	}
	cp := clone(s)
	cp.UpdatedAt = time.Now()
	raw, err := sonic.Marshal(cp)
	if err != nil {
		return fmt.Errorf("session: encode %d: %w", s.UserID, err)
	}
	if err := r.client.Set(ctx, r.key(s.UserID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

// Clear deletes the session key.
func (r *Redis) Clear(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
