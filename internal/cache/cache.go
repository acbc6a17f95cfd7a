// Package cache stores dated values (momentum tables, history series) in
// memory or Redis. Every value carries the date it was generated for so each
// read site can check it belongs to the current cycle.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"alphahunter/internal/config"
	"alphahunter/internal/errors"
	"alphahunter/internal/models"
)

// Cache is a byte cache with TTL. Get returns errors.ErrCacheMiss on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Dated pairs a value with the day it was generated for.
type Dated[T any] struct {
	Value         T         `json:"value"`
	GeneratedDate time.Time `json:"generated_date"`
}

// IsFor reports whether the value belongs to the calendar day of d.
func (d Dated[T]) IsFor(day time.Time) bool {
	return models.SameDay(d.GeneratedDate, day)
}

// GetDated loads and decodes a dated value.
func GetDated[T any](ctx context.Context, c Cache, key string) (Dated[T], error) {
	var out Dated[T]
	raw, err := c.Get(ctx, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, errors.Wrapf(err, "decoding cache entry %s", key)
	}
	return out, nil
}

// PutDated encodes and stores a dated value.
func PutDated[T any](ctx context.Context, c Cache, key string, value Dated[T], ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encoding cache entry %s", key)
	}
	return c.Set(ctx, key, raw, ttl)
}

// DayKey builds a per-day key such as "history:600519:2024-06-14".
func DayKey(prefix, id string, day time.Time) string {
	return fmt.Sprintf("%s:%s:%s", prefix, id, day.Format("2006-01-02"))
}

// New builds the configured backend.
func New(cfg config.CacheConfig) Cache {
	if cfg.Backend == "redis" {
		return NewRedisCache(redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		}), "hunter:")
	}
	return NewMemoryCache()
}
