package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/domain"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// GetAvailability returns a cached availability snapshot, or nil on miss.
// The snapshot is advisory; holds and conversions always go through the
// conditional updates in the system of record.
func (c *Cache) GetAvailability(ctx context.Context, eventID uuid.UUID) ([]domain.SeatCategory, error) {
	val, err := c.client.Get(ctx, "avail:"+eventID.String()).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var categories []domain.SeatCategory
	if err := json.Unmarshal(val, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (c *Cache) SetAvailability(ctx context.Context, eventID uuid.UUID, categories []domain.SeatCategory, ttl time.Duration) error {
	data, err := json.Marshal(categories)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "avail:"+eventID.String(), data, ttl).Err()
}

func (c *Cache) InvalidateAvailability(ctx context.Context, eventID uuid.UUID) error {
	return c.client.Del(ctx, "avail:"+eventID.String()).Err()
}
