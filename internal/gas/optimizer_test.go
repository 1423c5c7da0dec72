package gas

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashpath/arbbot/internal/domain"
)

type stubHeadSource struct {
	head    Head
	headErr error
	tip     *big.Int
	tipErr  error

	headCalls int
}

func (s *stubHeadSource) Head(context.Context) (Head, error) {
	s.headCalls++
	return s.head, s.headErr
}

func (s *stubHeadSource) SuggestTip(context.Context) (*big.Int, error) {
	return s.tip, s.tipErr
}

func newOptimizer(source HeadSource, params Params) *Optimizer {
	return NewOptimizer(source, params, slog.New(slog.DiscardHandler))
}

func TestQuote_Fixed(t *testing.T) {
	o := newOptimizer(nil, Params{
		Strategy:        StrategyFixed,
		MaxFeeGwei:      100,
		PriorityFeeGwei: 2,
		GasLimit:        900_000,
	})

	fee, err := o.Quote(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GweiToWei(100), fee.MaxFeePerGas)
	assert.Equal(t, GweiToWei(2), fee.PriorityFee)
	assert.Equal(t, uint64(900_000), fee.GasLimit)
}

func TestQuote_BaseFeeMultiplied(t *testing.T) {
	src := &stubHeadSource{head: Head{Number: 1, BaseFee: GweiToWei(20), Seen: time.Now()}}
	o := newOptimizer(src, Params{
		Strategy:          StrategyBaseFeeMultiplied,
		MaxFeeGwei:        100,
		BaseFeeMultiplier: 2,
		PriorityFeeGwei:   2,
		GasLimit:          900_000,
	})

	fee, err := o.Quote(context.Background())
	require.NoError(t, err)
	// 20 gwei * 2 + 2 gwei tip.
	assert.Equal(t, GweiToWei(42), fee.MaxFeePerGas)
	assert.Equal(t, GweiToWei(2), fee.PriorityFee)
}

func TestQuote_DynamicWidensWithCongestion(t *testing.T) {
	src := &stubHeadSource{
		head: Head{Number: 1, BaseFee: GweiToWei(20), GasRatio: 1.0, Seen: time.Now()},
		tip:  GweiToWei(3),
	}
	o := newOptimizer(src, Params{
		Strategy:          StrategyDynamic,
		MaxFeeGwei:        100,
		BaseFeeMultiplier: 2,
		PriorityFeeGwei:   2,
		GasLimit:          900_000,
	})

	fee, err := o.Quote(context.Background())
	require.NoError(t, err)
	// Full block widens the multiplier to 3: 20*3 + suggested 3 gwei tip.
	assert.Equal(t, GweiToWei(63), fee.MaxFeePerGas)
	assert.Equal(t, GweiToWei(3), fee.PriorityFee, "node suggestion above the floor wins")
}

func TestQuote_DynamicKeepsConfiguredTipWhenSuggestionLower(t *testing.T) {
	src := &stubHeadSource{
		head: Head{Number: 1, BaseFee: GweiToWei(20), Seen: time.Now()},
		tip:  GweiToWei(1),
	}
	o := newOptimizer(src, Params{
		Strategy:          StrategyDynamic,
		MaxFeeGwei:        100,
		BaseFeeMultiplier: 2,
		PriorityFeeGwei:   2,
		GasLimit:          900_000,
	})

	fee, err := o.Quote(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GweiToWei(2), fee.PriorityFee)
}

func TestQuote_FeeCeilingExceeded(t *testing.T) {
	src := &stubHeadSource{head: Head{Number: 1, BaseFee: GweiToWei(80), Seen: time.Now()}}
	o := newOptimizer(src, Params{
		Strategy:          StrategyBaseFeeMultiplied,
		MaxFeeGwei:        100,
		BaseFeeMultiplier: 2,
		PriorityFeeGwei:   2,
		GasLimit:          900_000,
	})

	_, err := o.Quote(context.Background())
	assert.ErrorIs(t, err, domain.ErrFeeCeilingExceeded)
}

func TestQuote_UnknownStrategy(t *testing.T) {
	o := newOptimizer(nil, Params{Strategy: "aggressive", MaxFeeGwei: 100})
	_, err := o.Quote(context.Background())
	assert.Error(t, err)
}

func TestQuote_UsesObservedHeadWithoutFetching(t *testing.T) {
	src := &stubHeadSource{headErr: errors.New("node down")}
	o := newOptimizer(src, Params{
		Strategy:          StrategyBaseFeeMultiplied,
		MaxFeeGwei:        100,
		BaseFeeMultiplier: 2,
		PriorityFeeGwei:   2,
		GasLimit:          900_000,
	})
	o.Observe(Head{Number: 5, BaseFee: GweiToWei(10)})

	fee, err := o.Quote(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GweiToWei(22), fee.MaxFeePerGas)
	assert.Zero(t, src.headCalls, "fresh observed head must not trigger a fetch")
}

func TestQuote_StaleHeadFallsBackWhenRefreshFails(t *testing.T) {
	src := &stubHeadSource{headErr: errors.New("node down")}
	o := newOptimizer(src, Params{
		Strategy:          StrategyBaseFeeMultiplied,
		MaxFeeGwei:        100,
		BaseFeeMultiplier: 2,
		PriorityFeeGwei:   2,
		GasLimit:          900_000,
	})
	o.Observe(Head{Number: 5, BaseFee: GweiToWei(10), Seen: time.Now().Add(-time.Minute)})

	fee, err := o.Quote(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GweiToWei(22), fee.MaxFeePerGas)
	assert.Equal(t, 1, src.headCalls, "stale head must attempt a refresh first")
}

func TestQuote_NoHeadAtAll(t *testing.T) {
	src := &stubHeadSource{headErr: errors.New("node down")}
	o := newOptimizer(src, Params{
		Strategy:          StrategyBaseFeeMultiplied,
		MaxFeeGwei:        100,
		BaseFeeMultiplier: 2,
		GasLimit:          900_000,
	})
	_, err := o.Quote(context.Background())
	assert.Error(t, err)
}

func TestGweiToWei(t *testing.T) {
	assert.Equal(t, big.NewInt(1_000_000_000), GweiToWei(1))
	assert.Equal(t, big.NewInt(1_500_000_000), GweiToWei(1.5))
	assert.Zero(t, GweiToWei(0).Sign())
}
