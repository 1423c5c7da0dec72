package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// SharedCooldowns mirrors the strategy engine's cooldown semantics in Redis
// so multiple instances back off failed candidates together. The backoff
// duration is the key's value; the window is the key's TTL.
type SharedCooldowns struct {
	rdb    *redis.Client
	base   time.Duration
	max    time.Duration
	logger *slog.Logger
}

func NewSharedCooldowns(c *Client, base, max time.Duration, logger *slog.Logger) *SharedCooldowns {
	if base <= 0 {
		base = 30 * time.Second
	}
	if max < base {
		max = base
	}
	return &SharedCooldowns{
		rdb:    c.Underlying(),
		base:   base,
		max:    max,
		logger: logger.With("component", "redis_cooldowns"),
	}
}

func cooldownKey(candidate string) string {
	return "arbbot:cooldown:" + candidate
}

// Blocked reports whether the candidate is inside its cooldown window.
// Redis errors fail open: a coordination outage must not halt trading.
func (s *SharedCooldowns) Blocked(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := s.rdb.Exists(ctx, cooldownKey(key)).Result()
	if err != nil {
		s.logger.Warn("cooldown lookup failed", "candidate", key, "error", err)
		return false
	}
	return n > 0
}

// Fail doubles the candidate's backoff (starting at base, capped at max)
// and restarts its window.
func (s *SharedCooldowns) Fail(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ck := cooldownKey(key)
	backoff := s.base
	prev, err := s.rdb.Get(ctx, ck).Result()
	switch {
	case err == nil:
		if d, perr := time.ParseDuration(prev); perr == nil {
			backoff = d * 2
			if backoff > s.max {
				backoff = s.max
			}
		}
	case err != redis.Nil:
		s.logger.Warn("cooldown read failed", "candidate", key, "error", err)
	}

	if err := s.rdb.Set(ctx, ck, backoff.String(), backoff).Err(); err != nil {
		s.logger.Warn("cooldown write failed", "candidate", key, "error", err)
	}
}

// Clear removes the candidate's cooldown after a committed execution.
func (s *SharedCooldowns) Clear(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.rdb.Del(ctx, cooldownKey(key)).Err(); err != nil {
		s.logger.Warn("cooldown clear failed", "candidate", key, "error", err)
	}
}
