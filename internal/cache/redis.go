package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Redis keeps entries as JSON under prefix+videoID. Expiry is left to Redis.
type Redis struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedis dials and pings the server.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(rdb, cfg.Prefix, cfg.TTL), nil
}

func NewRedisWithClient(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(videoID string) string { return r.prefix + videoID }

func (r *Redis) Get(ctx context.Context, videoID string) (Entry, bool, error) {
	raw, err := r.rdb.Get(ctx, r.key(videoID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("redis get %s: %w", videoID, err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode cached plan %s: %w", videoID, err)
	}
	return entry, true, nil
}

func (r *Redis) Put(ctx context.Context, videoID string, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	// a zero TTL means no expiry
	if err := r.rdb.Set(ctx, r.key(videoID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", videoID, err)
	}
	return nil
}

func (r *Redis) Evict(ctx context.Context, videoID string) error {
	if err := r.rdb.Del(ctx, r.key(videoID)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", videoID, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
