// Package poolcache maintains the latest known reserve and rate data for
// every tracked pool on every enabled venue. Refreshes are serialized inside
// the cache; readers always work from an immutable snapshot, so evaluation
// never races a refresh and never blocks one.
package poolcache

import (
	"time"

	"github.com/flashpath/arbbot/internal/domain"
)

// Snapshot is an immutable view of all known pool state at a point in time.
// A snapshot, once returned, is never mutated; a refresh builds and swaps in
// a new one.
type Snapshot struct {
	pools  []domain.PoolState
	byPair map[domain.Pair][]int
	block  uint64
	taken  time.Time

	// degraded names the venues whose refresh failed this round, per pair.
	// A failed source keeps serving its previous entry but no longer counts
	// toward the validator's independent-source total.
	degraded map[domain.Pair][]string
}

// NewSnapshot assembles an immutable snapshot from pool states. The cache
// builds snapshots through it after every refresh round; the simulation path
// and tests build them directly.
func NewSnapshot(pools []domain.PoolState, degraded map[domain.Pair][]string, block uint64) *Snapshot {
	return newSnapshot(pools, degraded, block)
}

func newSnapshot(pools []domain.PoolState, degraded map[domain.Pair][]string, block uint64) *Snapshot {
	s := &Snapshot{
		pools:    pools,
		byPair:   make(map[domain.Pair][]int),
		degraded: degraded,
		block:    block,
		taken:    time.Now().UTC(),
	}
	for i, p := range pools {
		s.byPair[p.Pair] = append(s.byPair[p.Pair], i)
	}
	return s
}

// Pools returns every pool entry in the snapshot.
func (s *Snapshot) Pools() []domain.PoolState { return s.pools }

// Block returns the block height the snapshot was refreshed against.
func (s *Snapshot) Block() uint64 { return s.block }

// Taken returns when the snapshot was assembled.
func (s *Snapshot) Taken() time.Time { return s.taken }

// PoolsForPair returns all entries quoting the given pair, across venues.
func (s *Snapshot) PoolsForPair(pair domain.Pair) []domain.PoolState {
	idx := s.byPair[pair]
	out := make([]domain.PoolState, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.pools[i])
	}
	return out
}

// Best returns the pool for (venue, pair), if tracked.
func (s *Snapshot) Best(venue string, pair domain.Pair) (domain.PoolState, bool) {
	for _, i := range s.byPair[pair] {
		if s.pools[i].Venue == venue {
			return s.pools[i], true
		}
	}
	return domain.PoolState{}, false
}

// PriceSources counts the independent venues with a live, non-degraded quote
// for the pair, no older than lookback. This feeds the security validator's
// source-count check.
func (s *Snapshot) PriceSources(pair domain.Pair, lookback time.Duration) int {
	cutoff := time.Now().Add(-lookback)
	seen := make(map[string]bool)
	for _, i := range s.byPair[pair] {
		p := s.pools[i]
		if !p.HasLiquidity() || p.UpdatedAt.Before(cutoff) {
			continue
		}
		seen[p.Venue] = true
	}
	// A degraded venue only discounts the total if its stale entry actually
	// made it into seen; an entry already aged out was never counted.
	for _, venue := range s.degraded[pair] {
		delete(seen, venue)
	}
	return len(seen)
}
