// Package gas quotes EIP-1559 fee parameters for execution requests and
// enforces the configured fee ceiling.
package gas

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/flashpath/arbbot/internal/domain"
)

// headStaleAfter is how old a cached head may be before a fee quote forces
// a refresh.
const headStaleAfter = 15 * time.Second

var gweiWei = big.NewInt(1_000_000_000)

// Head is the subset of a block header the optimizer consumes.
type Head struct {
	Number   uint64
	BaseFee  *big.Int
	GasRatio float64 // gasUsed / gasLimit of the head block
	Seen     time.Time
}

// HeadSource supplies the latest head and recent priority-fee observations.
// Implemented by the chain client.
type HeadSource interface {
	Head(ctx context.Context) (Head, error)
	// SuggestTip returns the node's current priority-fee suggestion in wei.
	SuggestTip(ctx context.Context) (*big.Int, error)
}

// Strategy selects how the fee cap is derived.
type Strategy string

const (
	// StrategyFixed always quotes the configured ceiling.
	StrategyFixed Strategy = "fixed"
	// StrategyBaseFeeMultiplied scales the head base fee by a multiplier.
	StrategyBaseFeeMultiplied Strategy = "base_fee_multiplied"
	// StrategyDynamic widens the multiplier with block congestion and takes
	// the node's tip suggestion.
	StrategyDynamic Strategy = "dynamic"
)

// ParseStrategy maps a config string to a Strategy.
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(s) {
	case StrategyFixed, StrategyBaseFeeMultiplied, StrategyDynamic:
		return Strategy(s), true
	}
	return "", false
}

// Params are the optimizer's configuration, fixed at construction.
type Params struct {
	Strategy          Strategy
	MaxFeeGwei        float64
	BaseFeeMultiplier float64
	PriorityFeeGwei   float64
	GasLimit          uint64
}

// Optimizer quotes fee parameters from cached head data, refreshing when the
// cache goes stale.
type Optimizer struct {
	source HeadSource
	params Params
	logger *slog.Logger

	mu   sync.Mutex
	head Head
}

func NewOptimizer(source HeadSource, params Params, logger *slog.Logger) *Optimizer {
	return &Optimizer{
		source: source,
		params: params,
		logger: logger.With("component", "gas"),
	}
}

// Quote returns fee parameters for one execution request. It returns
// domain.ErrFeeCeilingExceeded when the minimum viable fee for timely
// inclusion is above the configured ceiling.
func (o *Optimizer) Quote(ctx context.Context) (domain.FeeParams, error) {
	ceiling := GweiToWei(o.params.MaxFeeGwei)
	tip := GweiToWei(o.params.PriorityFeeGwei)

	var maxFee *big.Int
	switch o.params.Strategy {
	case StrategyFixed:
		maxFee = ceiling

	case StrategyBaseFeeMultiplied:
		head, err := o.currentHead(ctx)
		if err != nil {
			return domain.FeeParams{}, err
		}
		maxFee = mulFloat(head.BaseFee, o.params.BaseFeeMultiplier)
		maxFee.Add(maxFee, tip)

	case StrategyDynamic:
		head, err := o.currentHead(ctx)
		if err != nil {
			return domain.FeeParams{}, err
		}
		// Widen the base-fee headroom as blocks fill up: a full head block
		// raises the next base fee by 12.5%, so congestion needs margin.
		multiplier := o.params.BaseFeeMultiplier * (1 + head.GasRatio/2)
		maxFee = mulFloat(head.BaseFee, multiplier)
		suggested, err := o.source.SuggestTip(ctx)
		if err == nil && suggested != nil && suggested.Cmp(tip) > 0 {
			tip = suggested
		}
		maxFee.Add(maxFee, tip)

	default:
		return domain.FeeParams{}, fmt.Errorf("gas: unknown strategy %q", o.params.Strategy)
	}

	if maxFee.Cmp(ceiling) > 0 {
		o.logger.Warn("fee above ceiling, abandoning request",
			"needed_wei", maxFee.String(), "ceiling_wei", ceiling.String())
		return domain.FeeParams{}, fmt.Errorf("gas: need %s wei, ceiling %s wei: %w",
			maxFee, ceiling, domain.ErrFeeCeilingExceeded)
	}
	if tip.Cmp(maxFee) > 0 {
		tip = new(big.Int).Set(maxFee)
	}
	return domain.FeeParams{
		MaxFeePerGas: maxFee,
		PriorityFee:  tip,
		GasLimit:     o.params.GasLimit,
	}, nil
}

// currentHead serves the cached head, refreshing from the source when the
// cache is older than headStaleAfter.
func (o *Optimizer) currentHead(ctx context.Context) (Head, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.head.BaseFee != nil && time.Since(o.head.Seen) < headStaleAfter {
		return o.head, nil
	}
	head, err := o.source.Head(ctx)
	if err != nil {
		if o.head.BaseFee != nil {
			o.logger.Warn("head refresh failed, using stale head",
				"head_age", time.Since(o.head.Seen), "error", err)
			return o.head, nil
		}
		return Head{}, fmt.Errorf("gas: fetching head: %w", err)
	}
	if head.Seen.IsZero() {
		head.Seen = time.Now()
	}
	o.head = head
	return o.head, nil
}

// Observe lets the new-head listener push fresh heads so quotes rarely pay
// for a synchronous fetch.
func (o *Optimizer) Observe(head Head) {
	if head.Seen.IsZero() {
		head.Seen = time.Now()
	}
	o.mu.Lock()
	o.head = head
	o.mu.Unlock()
}

// GweiToWei converts a fractional gwei amount to wei.
func GweiToWei(gwei float64) *big.Int {
	f := new(big.Float).SetFloat64(gwei)
	f.Mul(f, new(big.Float).SetInt(gweiWei))
	wei, _ := f.Int(nil)
	return wei
}

func mulFloat(x *big.Int, m float64) *big.Int {
	f := new(big.Float).SetInt(x)
	f.Mul(f, new(big.Float).SetFloat64(m))
	out, _ := f.Int(nil)
	return out
}
