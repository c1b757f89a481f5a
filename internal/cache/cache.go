// Package cache holds the redis-backed pieces of the scheduler: a short-lived
// cache of computed slot lists and a lock shared by sweeper instances.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/events"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const slotKeyPrefix = "slots"

// SlotCache caches available-slot answers per doctor and date.
type SlotCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

// NewSlotCache returns a cache whose entries live at most ttl.
func NewSlotCache(rdb *redis.Client, ttl time.Duration, logger *zerolog.Logger) *SlotCache {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SlotCache{redis: rdb, ttl: ttl, logger: logger}
}

func slotKey(doctorID, date string) string {
	return fmt.Sprintf("%s:%s:%s", slotKeyPrefix, doctorID, date)
}

// Get decodes the cached value into out and reports whether it was found.
func (c *SlotCache) Get(ctx context.Context, doctorID, date string, out any) bool {
	if c == nil || c.redis == nil || c.ttl <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, slotKey(doctorID, date)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("doctor_id", doctorID).Msg("slot cache read failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

// Set stores val. A positive maxAge shortens the entry's lifetime below the
// cache TTL, e.g. to the moment the earliest slot hold lapses.
func (c *SlotCache) Set(ctx context.Context, doctorID, date string, val any, maxAge time.Duration) {
	if c == nil || c.redis == nil || c.ttl <= 0 {
		return
	}
	ttl := c.ttl
	if maxAge > 0 && maxAge < ttl {
		ttl = maxAge
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, slotKey(doctorID, date), data, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("doctor_id", doctorID).Msg("slot cache write failed")
	}
}

// Invalidate drops every cached date of a doctor.
func (c *SlotCache) Invalidate(ctx context.Context, doctorID string) error {
	if c == nil || c.redis == nil {
		return nil
	}
	pattern := fmt.Sprintf("%s:%s:*", slotKeyPrefix, doctorID)
	iter := c.redis.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan slot cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete slot cache: %w", err)
	}
	return nil
}

// HandleEvent drops the cached slot lists of the event's doctor.
func (c *SlotCache) HandleEvent(e events.Event) error {
	if e.DoctorID == "" {
		return nil
	}
	return c.Invalidate(context.Background(), e.DoctorID)
}
