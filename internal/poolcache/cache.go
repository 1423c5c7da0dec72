package poolcache

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/flashpath/arbbot/internal/domain"
)

// ReserveReader reads pool state from the ledger. Implemented by the chain
// client; tests substitute a fake.
type ReserveReader interface {
	// Reserves returns the current reserves of a constant-product pool,
	// ordered token0/token1, plus the block they were read at.
	Reserves(ctx context.Context, pool common.Address) (r0, r1 *big.Int, block uint64, err error)
	// BestRate quotes a stable-swap venue's router for the output of
	// amountIn of `from`, returning the pool it would route through.
	BestRate(ctx context.Context, router, from, to common.Address, amountIn *big.Int) (pool common.Address, out *big.Int, err error)
}

// TrackedPool is one (venue, pair) entry the cache refreshes.
type TrackedPool struct {
	Venue domain.Venue
	Pool  common.Address
	Pair  domain.Pair
}

// Cache owns all mutable pool state. Refreshes are the sole mutation path
// and are serialized; Snapshot hands out the latest completed view without
// ever blocking on an in-flight refresh.
type Cache struct {
	reader   ReserveReader
	universe *domain.Universe
	tracked  []TrackedPool
	limiter  *rate.Limiter
	lookback time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	snap      *Snapshot
	latest    map[string]domain.PoolState // key: venue + pool hex
	refreshMu sync.Mutex                  // serializes RefreshAll
}

// New creates a Cache tracking the given pools. rps/burst bound the RPC read
// rate during refresh; lookback is the staleness window snapshots tolerate.
func New(reader ReserveReader, universe *domain.Universe, tracked []TrackedPool, rps float64, burst int, lookback time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		reader:   reader,
		universe: universe,
		tracked:  tracked,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		lookback: lookback,
		logger:   logger.With(slog.String("component", "poolcache")),
		snap:     newSnapshot(nil, nil, 0),
		latest:   make(map[string]domain.PoolState),
	}
}

func entryKey(venue string, pool common.Address) string {
	return venue + ":" + pool.Hex()
}

// Refresh re-reads one tracked (venue, pair) entry. On failure the prior
// entry stays in place and ErrStaleData is returned; the caller decides
// whether to degrade the pair's source count.
func (c *Cache) Refresh(ctx context.Context, tp TrackedPool) (domain.PoolState, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.PoolState{}, fmt.Errorf("poolcache: rate limit wait: %w", err)
	}

	state := domain.PoolState{
		Venue:     tp.Venue.Name,
		Pool:      tp.Pool,
		Pair:      tp.Pair,
		FeeBps:    tp.Venue.FeeBps,
		UpdatedAt: time.Now().UTC(),
	}

	switch tp.Venue.Model {
	case domain.ConstantProduct:
		r0, r1, block, err := c.reader.Reserves(ctx, tp.Pool)
		if err != nil {
			c.logger.Warn("reserve read failed",
				slog.String("venue", tp.Venue.Name),
				slog.String("pool", tp.Pool.Hex()),
				slog.String("error", err.Error()),
			)
			return domain.PoolState{}, domain.ErrStaleData
		}
		state.Reserve0, state.Reserve1 = r0, r1
		state.Block = block

	case domain.StableSwap:
		tok0, ok := c.universe.TokenByAddress(tp.Pair.Token0)
		if !ok {
			return domain.PoolState{}, fmt.Errorf("poolcache: unknown token %s", tp.Pair.Token0.Hex())
		}
		pool, out, err := c.reader.BestRate(ctx, tp.Venue.Router, tp.Pair.Token0, tp.Pair.Token1, tok0.Unit())
		if err != nil {
			c.logger.Warn("rate quote failed",
				slog.String("venue", tp.Venue.Name),
				slog.String("error", err.Error()),
			)
			return domain.PoolState{}, domain.ErrStaleData
		}
		state.Rate = out
		state.RatePool = pool
	}

	c.mu.Lock()
	c.latest[entryKey(tp.Venue.Name, tp.Pool)] = state
	c.mu.Unlock()

	return state, nil
}

// RefreshAll refreshes every tracked entry and swaps in a new snapshot.
// Entries whose refresh fails keep their previous state but are counted as
// degraded sources for their pair. RefreshAll never leaves the cache without
// a usable snapshot.
func (c *Cache) RefreshAll(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	degraded := make(map[domain.Pair][]string)
	var maxBlock uint64
	failures := 0

	for _, tp := range c.tracked {
		state, err := c.Refresh(ctx, tp)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			degraded[tp.Pair] = append(degraded[tp.Pair], tp.Venue.Name)
			failures++
			continue
		}
		if state.Block > maxBlock {
			maxBlock = state.Block
		}
	}

	c.mu.Lock()
	pools := make([]domain.PoolState, 0, len(c.latest))
	cutoff := time.Now().Add(-c.lookback)
	for _, st := range c.latest {
		if st.UpdatedAt.Before(cutoff) {
			continue
		}
		pools = append(pools, st)
	}
	c.snap = newSnapshot(pools, degraded, maxBlock)
	c.mu.Unlock()

	if failures > 0 {
		c.logger.Warn("refresh completed with degraded sources",
			slog.Int("failed", failures),
			slog.Int("tracked", len(c.tracked)),
		)
	}
	return nil
}

// Snapshot returns the latest completed snapshot. Never blocks on refresh.
func (c *Cache) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}
