package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Pair is an unordered token pair. NewPair normalizes the order so that the
// same two tokens always produce the same key regardless of direction.
type Pair struct {
	Token0 common.Address
	Token1 common.Address
}

// NewPair returns the canonical (sorted) pair for two tokens.
func NewPair(a, b common.Address) Pair {
	if a.Cmp(b) > 0 {
		a, b = b, a
	}
	return Pair{Token0: a, Token1: b}
}

// Contains reports whether the pair includes the given token.
func (p Pair) Contains(t common.Address) bool {
	return p.Token0 == t || p.Token1 == t
}

// Other returns the counterpart of t within the pair.
func (p Pair) Other(t common.Address) common.Address {
	if p.Token0 == t {
		return p.Token1
	}
	return p.Token0
}

// PoolState is the latest known reserve or rate snapshot for one (venue, pair)
// entry. It is owned by the pool state cache; evaluators only ever see copies
// inside an immutable snapshot.
type PoolState struct {
	Venue string
	Pool  common.Address
	Pair  Pair

	// Reserve0 and Reserve1 are set for constant-product venues, ordered to
	// match Pair.Token0 / Pair.Token1.
	Reserve0 *big.Int
	Reserve1 *big.Int

	// Rate is set for stable-swap venues: the quoted output in Token1 base
	// units for one whole unit of Token0, as returned by the venue's
	// best-rate call. RatePool is the pool the rate was quoted against.
	Rate     *big.Int
	RatePool common.Address

	FeeBps    int64
	Block     uint64
	UpdatedAt time.Time
}

// HasLiquidity reports whether the entry can serve as a graph edge. Pools
// with zero or missing reserves (or a zero stable-swap rate) are excluded.
func (ps PoolState) HasLiquidity() bool {
	if ps.Rate != nil {
		return ps.Rate.Sign() > 0
	}
	return ps.Reserve0 != nil && ps.Reserve1 != nil &&
		ps.Reserve0.Sign() > 0 && ps.Reserve1.Sign() > 0
}

// ReservesFor returns the (in, out) reserves oriented for a swap from
// tokenIn. The second return is false for stable-swap entries, which carry a
// rate rather than reserves.
func (ps PoolState) ReservesFor(tokenIn common.Address) (rIn, rOut *big.Int, ok bool) {
	if ps.Reserve0 == nil || ps.Reserve1 == nil {
		return nil, nil, false
	}
	if tokenIn == ps.Pair.Token0 {
		return ps.Reserve0, ps.Reserve1, true
	}
	return ps.Reserve1, ps.Reserve0, true
}
