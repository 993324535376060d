package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
)

var releaseScript = redis.NewScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements Locker with SET NX PX leases.
type Redis struct {
	pool   *redis.Pool
	logger *slog.Logger
}

// NewRedis creates a locker connected to rawURL (redis://host:port/db).
func NewRedis(rawURL string, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		pool: &redis.Pool{
			MaxIdle:     2,
			IdleTimeout: 5 * time.Minute,
			DialContext: func(ctx context.Context) (redis.Conn, error) {
				return redis.DialURLContext(ctx, rawURL)
			},
		},
		logger: logger,
	}
}

// Acquire takes the lease on key or returns ErrLocked.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	defer conn.Close()

	token := uuid.New().String()
	_, err = redis.String(conn.Do("SET", key, token, "NX", "PX", ttl.Milliseconds()))
	if errors.Is(err, redis.ErrNil) {
		return nil, fmt.Errorf("%s: %w", key, ErrLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("redis set %s: %w", key, err)
	}

	release := func() {
		c := r.pool.Get()
		defer c.Close()
		if _, err := releaseScript.Do(c, key, token); err != nil {
			r.logger.Warn("failed to release lock", "key", key, "error", err)
		}
	}
	return release, nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.pool.Close()
}
