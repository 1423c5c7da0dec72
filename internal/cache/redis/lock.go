package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flashpath/arbbot/internal/domain"
)

// releaseLua deletes the lock key only when it still holds the caller's
// token, so an expired-and-reacquired lock is never released by the old
// holder.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// SubmissionLock serializes execution submission across bot instances:
// at most one signed request per asset is in flight at a time.
type SubmissionLock struct {
	rdb     *redis.Client
	release *redis.Script
	ttl     time.Duration
}

func NewSubmissionLock(c *Client, ttl time.Duration) *SubmissionLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SubmissionLock{
		rdb:     c.Underlying(),
		release: redis.NewScript(releaseLua),
		ttl:     ttl,
	}
}

func submitKey(asset string) string {
	return "arbbot:submit:" + asset
}

// Acquire takes the per-asset submission lock, returning domain.ErrLockHeld
// when another instance holds it. The returned release function is safe to
// call more than once.
func (l *SubmissionLock) Acquire(ctx context.Context, asset string) (func(), error) {
	token := uuid.NewString()
	key := submitKey(asset)

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquiring submission lock for %s: %w", asset, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// Background context so release works even after the trading
		// cycle's context is cancelled.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.release.Run(rctx, l.rdb, []string{key}, token).Err()
	}, nil
}
