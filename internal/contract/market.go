package contract

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashpath/arbbot/internal/domain"
	"github.com/flashpath/arbbot/internal/poolcache"
	"github.com/flashpath/arbbot/internal/strategy"
)

// errUnknownVenue is mapped by the executor to an unsupported-venue revert.
var errUnknownVenue = errors.New("contract: unknown venue")

// Venues is the executor's view of the AMMs it can route hops through.
// Quote prices a hop without effect; Swap executes it and applies the price
// impact. Implemented by Market; tests substitute stubs.
type Venues interface {
	Quote(venue string, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)
	Swap(venue string, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)
}

// Market is a mutable copy of one snapshot's pools, keyed by venue and pair.
// A fresh Market is built per simulation so swaps never touch the cache.
type Market struct {
	universe *domain.Universe
	pools    map[string]map[domain.Pair]*domain.PoolState
}

// NewMarket copies the best pool per (venue, pair) out of the snapshot.
func NewMarket(universe *domain.Universe, snap *poolcache.Snapshot) *Market {
	m := &Market{
		universe: universe,
		pools:    make(map[string]map[domain.Pair]*domain.PoolState),
	}
	for _, p := range snap.Pools() {
		byPair, ok := m.pools[p.Venue]
		if !ok {
			byPair = make(map[domain.Pair]*domain.PoolState)
			m.pools[p.Venue] = byPair
		}
		cp := p
		if p.Reserve0 != nil {
			cp.Reserve0 = new(big.Int).Set(p.Reserve0)
		}
		if p.Reserve1 != nil {
			cp.Reserve1 = new(big.Int).Set(p.Reserve1)
		}
		byPair[p.Pair] = &cp
	}
	return m
}

func (m *Market) pool(venue string, tokenIn, tokenOut common.Address) (*domain.PoolState, error) {
	byPair, ok := m.pools[venue]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownVenue, venue)
	}
	if tokenIn == tokenOut {
		return nil, fmt.Errorf("contract: venue %s hop trades a token against itself", venue)
	}
	p, ok := byPair[domain.NewPair(tokenIn, tokenOut)]
	if !ok {
		return nil, fmt.Errorf("contract: venue %s has no pool for %s/%s",
			venue, tokenIn.Hex(), tokenOut.Hex())
	}
	return p, nil
}

// Quote prices a hop on the venue's current (possibly already swapped
// against) reserves.
func (m *Market) Quote(venue string, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	p, err := m.pool(venue, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return strategy.HopOut(m.universe, *p, tokenIn, amountIn)
}

// Swap executes a hop, moving the venue's reserves by the traded amounts.
func (m *Market) Swap(venue string, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	p, err := m.pool(venue, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	out, err := strategy.HopOut(m.universe, *p, tokenIn, amountIn)
	if err != nil {
		return nil, err
	}
	if out.Sign() <= 0 {
		return nil, fmt.Errorf("contract: venue %s hop yields nothing", venue)
	}
	// Stable-swap venues quote against external liquidity; only
	// constant-product reserves move.
	if p.Reserve0 != nil && p.Reserve1 != nil {
		if tokenIn == p.Pair.Token0 {
			p.Reserve0.Add(p.Reserve0, amountIn)
			p.Reserve1.Sub(p.Reserve1, out)
		} else {
			p.Reserve1.Add(p.Reserve1, amountIn)
			p.Reserve0.Sub(p.Reserve0, out)
		}
	}
	return out, nil
}
