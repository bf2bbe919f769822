package redis

import (
	"context"
	"errors"
	"time"

	"github.com/gatherly/lifecycle-service/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	Client *redis.Client
	ttl    time.Duration
}

func New(addr, pass string, db int, ttl time.Duration) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	return &Cache{Client: rdb, ttl: ttl}
}

func statusKey(eventID uuid.UUID) string { return "event:status:" + eventID.String() }

// GetEventStatus returns the cached stored status; used only to fast-fail
// joins against terminal events before touching the database.
func (c *Cache) GetEventStatus(ctx context.Context, eventID uuid.UUID) (domain.EventStatus, error) {
	val, err := c.Client.Get(ctx, statusKey(eventID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrCacheMiss
		}
		return "", err
	}
	return domain.EventStatus(val), nil
}

func (c *Cache) SetEventStatus(ctx context.Context, eventID uuid.UUID, status domain.EventStatus) error {
	return c.Client.Set(ctx, statusKey(eventID), string(status), c.ttl).Err()
}

func (c *Cache) InvalidateEventStatus(ctx context.Context, eventID uuid.UUID) error {
	return c.Client.Del(ctx, statusKey(eventID)).Err()
}

// AllowRequest: Simple Fixed Window Rate Limit
func (c *Cache) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	key := "ratelimit:" + ip
	count, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return true, nil // fail open
	}
	if count == 1 {
		_ = c.Client.Expire(ctx, key, window).Err()
	}
	return count <= int64(limit), nil
}
