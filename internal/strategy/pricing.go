// Package strategy evaluates candidate cycles against a pool snapshot,
// ranks them by net profit, and selects at most one evaluation per scan
// cycle under a bounded-concurrency, bounded-time policy.
package strategy

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashpath/arbbot/internal/domain"
	"github.com/flashpath/arbbot/internal/poolcache"
)

var bpsDenom = big.NewInt(10_000)

// ConstantProductOut computes the output of a constant-product swap with a
// proportional fee:
//
//	out = in * (1 - fee) * reserveOut / (reserveIn + in * (1 - fee))
//
// carried out in integer basis-point arithmetic to avoid rounding drift.
func ConstantProductOut(amountIn, reserveIn, reserveOut *big.Int, feeBps int64) *big.Int {
	if amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int)
	}
	inAfterFee := new(big.Int).Mul(amountIn, big.NewInt(10_000-feeBps))
	num := new(big.Int).Mul(inAfterFee, reserveOut)
	den := new(big.Int).Mul(reserveIn, bpsDenom)
	den.Add(den, inAfterFee)
	return num.Div(num, den)
}

// StableSwapOut scales a venue's quoted rate (output per one whole unit of
// the input token) to the actual input amount.
func StableSwapOut(amountIn, rate, unitIn *big.Int) *big.Int {
	if amountIn.Sign() <= 0 || rate == nil || rate.Sign() <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amountIn, rate)
	return out.Div(out, unitIn)
}

// HopOut prices a single hop on the given pool entry, dispatching on the
// venue's pricing model.
func HopOut(universe *domain.Universe, pool domain.PoolState, tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	venue, ok := universe.VenueByName(pool.Venue)
	if !ok {
		return nil, fmt.Errorf("strategy: unknown venue %q", pool.Venue)
	}
	switch venue.Model {
	case domain.ConstantProduct:
		rIn, rOut, ok := pool.ReservesFor(tokenIn)
		if !ok {
			return nil, fmt.Errorf("strategy: pool %s has no reserves", pool.Pool.Hex())
		}
		return ConstantProductOut(amountIn, rIn, rOut, pool.FeeBps), nil
	case domain.StableSwap:
		tok, ok := universe.TokenByAddress(tokenIn)
		if !ok {
			return nil, fmt.Errorf("strategy: unknown token %s", tokenIn.Hex())
		}
		rate := pool.Rate
		// The quoted rate is oriented Token0 -> Token1; invert for the
		// reverse direction.
		if tokenIn != pool.Pair.Token0 {
			outTok, ok := universe.TokenByAddress(pool.Pair.Other(tokenIn))
			if !ok {
				return nil, fmt.Errorf("strategy: unknown token %s", pool.Pair.Other(tokenIn).Hex())
			}
			if rate == nil || rate.Sign() <= 0 {
				return new(big.Int), nil
			}
			inv := new(big.Int).Mul(tok.Unit(), outTok.Unit())
			rate = inv.Div(inv, rate)
		}
		return StableSwapOut(amountIn, rate, tok.Unit()), nil
	}
	return nil, fmt.Errorf("strategy: venue %q has unknown pricing model", pool.Venue)
}

// UnitPrice returns one venue's quote for a whole unit of tokenIn against
// the pair's counterpart, as a float for deviation comparison only.
func UnitPrice(universe *domain.Universe, pool domain.PoolState, tokenIn common.Address) (float64, bool) {
	tokIn, ok := universe.TokenByAddress(tokenIn)
	if !ok {
		return 0, false
	}
	tokOut, ok := universe.TokenByAddress(pool.Pair.Other(tokenIn))
	if !ok {
		return 0, false
	}
	out, err := HopOut(universe, pool, tokenIn, tokIn.Unit())
	if err != nil || out.Sign() <= 0 {
		return 0, false
	}
	return tokOut.FromBaseUnits(out), true
}

// evaluate prices every hop of a candidate against the snapshot and returns
// a completed Evaluation. It is pure over the immutable snapshot.
func evaluate(universe *domain.Universe, snap *poolcache.Snapshot, cand domain.Candidate, principal *big.Int, loanFeeBps, slippageBps int64) (*domain.Evaluation, error) {
	if err := cand.Validate(); err != nil {
		return nil, err
	}

	amount := new(big.Int).Set(principal)
	hopOutputs := make([]*big.Int, 0, cand.Hops())

	for i := 0; i < cand.Hops(); i++ {
		tokenIn := cand.TokenPath[i]
		pair := domain.NewPair(tokenIn, cand.TokenPath[i+1])
		pool, ok := snap.Best(cand.VenuePath[i], pair)
		if !ok {
			return nil, fmt.Errorf("strategy: no pool for hop %d on %s: %w", i, cand.VenuePath[i], domain.ErrStaleData)
		}
		out, err := HopOut(universe, pool, tokenIn, amount)
		if err != nil {
			return nil, err
		}
		if out.Sign() <= 0 {
			return nil, fmt.Errorf("strategy: hop %d on %s yields nothing", i, cand.VenuePath[i])
		}
		hopOutputs = append(hopOutputs, out)
		amount = out
	}

	loanFee := new(big.Int).Mul(principal, big.NewInt(loanFeeBps))
	loanFee.Div(loanFee, bpsDenom)

	minOut := new(big.Int).Mul(amount, big.NewInt(10_000-slippageBps))
	minOut.Div(minOut, bpsDenom)

	net := new(big.Int).Sub(amount, principal)
	net.Sub(net, loanFee)

	return &domain.Evaluation{
		Candidate:  cand,
		Principal:  new(big.Int).Set(principal),
		LoanFee:    loanFee,
		HopOutputs: hopOutputs,
		Output:     amount,
		MinOutput:  minOut,
		NetProfit:  net,
	}, nil
}
