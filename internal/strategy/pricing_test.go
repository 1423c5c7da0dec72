package strategy

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashpath/arbbot/internal/domain"
	"github.com/flashpath/arbbot/internal/poolcache"
)

var (
	wethAddr = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	daiAddr  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

func testUniverse(t *testing.T) *domain.Universe {
	t.Helper()
	u, err := domain.NewUniverse(
		[]domain.Token{
			{Symbol: "WETH", Address: wethAddr, Decimals: 18},
			{Symbol: "USDC", Address: usdcAddr, Decimals: 6},
			{Symbol: "DAI", Address: daiAddr, Decimals: 18},
		},
		[]domain.Venue{
			{Name: "uniswap", Model: domain.ConstantProduct, FeeBps: 30, Enabled: true},
			{Name: "sushiswap", Model: domain.ConstantProduct, FeeBps: 30, Enabled: true},
			{Name: "curve", Model: domain.StableSwap, FeeBps: 4, Enabled: true},
		},
		[]string{"WETH"},
	)
	require.NoError(t, err)
	return u
}

// wethReserve scales whole WETH units to base units; usdcReserve likewise.
func wethReserve(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), big.NewInt(1e18))
}

func usdcReserve(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), big.NewInt(1e6))
}

func reservePool(venue string, a, b common.Address, rA, rB *big.Int) domain.PoolState {
	pair := domain.NewPair(a, b)
	r0, r1 := rA, rB
	if pair.Token0 != a {
		r0, r1 = r1, r0
	}
	return domain.PoolState{
		Venue:    venue,
		Pair:     pair,
		Reserve0: r0,
		Reserve1: r1,
		FeeBps:   30,
	}
}

func TestConstantProductOut(t *testing.T) {
	// in=1000 against 10000/10000 reserves at 30bps:
	// 1000*9970*10000 / (10000*10000 + 1000*9970) = 906 (floored).
	out := ConstantProductOut(big.NewInt(1000), big.NewInt(10_000), big.NewInt(10_000), 30)
	assert.Equal(t, big.NewInt(906), out)

	// Zero fee, tiny input: out ~= in * rOut/rIn.
	out = ConstantProductOut(big.NewInt(1), big.NewInt(1_000_000), big.NewInt(2_000_000), 0)
	assert.Equal(t, big.NewInt(1), out)

	assert.Zero(t, ConstantProductOut(big.NewInt(0), big.NewInt(100), big.NewInt(100), 30).Sign())
	assert.Zero(t, ConstantProductOut(big.NewInt(100), big.NewInt(0), big.NewInt(100), 30).Sign())
}

func TestConstantProductOut_NeverDrainsReserve(t *testing.T) {
	rOut := big.NewInt(1000)
	out := ConstantProductOut(big.NewInt(1_000_000_000), big.NewInt(1000), rOut, 30)
	assert.Negative(t, out.Cmp(rOut), "output must stay below the out-reserve")
}

func TestStableSwapOut(t *testing.T) {
	// 5 WETH at 2000 USDC per whole WETH.
	out := StableSwapOut(wethReserve(5), usdcReserve(2000), big.NewInt(1e18))
	assert.Equal(t, usdcReserve(10_000), out)

	assert.Zero(t, StableSwapOut(big.NewInt(0), big.NewInt(100), big.NewInt(1)).Sign())
	assert.Zero(t, StableSwapOut(big.NewInt(100), nil, big.NewInt(1)).Sign())
}

func TestHopOut_StableSwapInvertsRate(t *testing.T) {
	u := testUniverse(t)
	// Pair (DAI, WETH) sorts DAI first, so the quoted rate is DAI -> WETH:
	// 5e14 base WETH per whole DAI, i.e. 2000 DAI per WETH.
	pool := domain.PoolState{
		Venue:  "curve",
		Pair:   domain.NewPair(daiAddr, wethAddr),
		Rate:   big.NewInt(5e14),
		FeeBps: 4,
	}
	require.Equal(t, daiAddr, pool.Pair.Token0)

	forward, err := HopOut(u, pool, daiAddr, wethReserve(2000))
	require.NoError(t, err)
	assert.Equal(t, wethReserve(1), forward)

	reverse, err := HopOut(u, pool, wethAddr, wethReserve(1))
	require.NoError(t, err)
	assert.Equal(t, wethReserve(2000), reverse)
}

func TestHopOut_UnknownVenue(t *testing.T) {
	u := testUniverse(t)
	pool := reservePool("balancer", wethAddr, usdcAddr, wethReserve(10), usdcReserve(20_000))
	_, err := HopOut(u, pool, wethAddr, wethReserve(1))
	assert.Error(t, err)
}

func TestUnitPrice(t *testing.T) {
	u := testUniverse(t)
	pool := reservePool("uniswap", wethAddr, usdcAddr, wethReserve(1000), usdcReserve(2_000_000))

	price, ok := UnitPrice(u, pool, wethAddr)
	require.True(t, ok)
	// ~2000 USDC per WETH, shaved by the 30bps fee and the price impact of
	// the one-unit quote.
	assert.InDelta(t, 2000, price, 10)

	inverse, ok := UnitPrice(u, pool, usdcAddr)
	require.True(t, ok)
	assert.InDelta(t, 1.0/2000, inverse, 0.0001)
}

func TestEvaluate_MultiHopArithmetic(t *testing.T) {
	u := testUniverse(t)
	snap := poolcache.NewSnapshot([]domain.PoolState{
		reservePool("uniswap", wethAddr, usdcAddr, wethReserve(1000), usdcReserve(2_000_000)),
		reservePool("sushiswap", wethAddr, usdcAddr, wethReserve(1000), usdcReserve(2_020_000)),
	}, nil, 50)

	cand := domain.Candidate{
		TokenPath: []common.Address{wethAddr, usdcAddr, wethAddr},
		VenuePath: []string{"sushiswap", "uniswap"},
	}
	principal := wethReserve(1)

	ev, err := evaluate(u, snap, cand, principal, 9, 10)
	require.NoError(t, err)

	require.Len(t, ev.HopOutputs, 2)
	assert.Equal(t, ev.HopOutputs[1], ev.Output)
	// Sell at 2020, buy back at 2000: the round trip must come out ahead of
	// the principal even after both 30bps pool fees.
	assert.Positive(t, ev.Output.Cmp(principal))
	assert.Positive(t, ev.NetProfit.Sign())

	// LoanFee = principal * 9 / 10000.
	wantFee := new(big.Int).Div(new(big.Int).Mul(principal, big.NewInt(9)), big.NewInt(10_000))
	assert.Equal(t, wantFee, ev.LoanFee)

	// MinOutput = Output * (10000-10)/10000.
	wantMin := new(big.Int).Div(new(big.Int).Mul(ev.Output, big.NewInt(9990)), big.NewInt(10_000))
	assert.Equal(t, wantMin, ev.MinOutput)

	assert.Negative(t, ev.NetProfitAfterSlippage().Cmp(ev.NetProfit))
}

func TestEvaluate_MissingPoolIsStaleData(t *testing.T) {
	u := testUniverse(t)
	snap := poolcache.NewSnapshot([]domain.PoolState{
		reservePool("uniswap", wethAddr, usdcAddr, wethReserve(1000), usdcReserve(2_000_000)),
	}, nil, 50)

	cand := domain.Candidate{
		TokenPath: []common.Address{wethAddr, usdcAddr, wethAddr},
		VenuePath: []string{"sushiswap", "uniswap"},
	}
	_, err := evaluate(u, snap, cand, wethReserve(1), 9, 10)
	assert.ErrorIs(t, err, domain.ErrStaleData)
}

func TestEvaluate_RejectsInvalidCandidate(t *testing.T) {
	u := testUniverse(t)
	snap := poolcache.NewSnapshot(nil, nil, 1)
	cand := domain.Candidate{
		TokenPath: []common.Address{wethAddr, usdcAddr},
		VenuePath: []string{"uniswap"},
	}
	_, err := evaluate(u, snap, cand, wethReserve(1), 9, 10)
	assert.Error(t, err)
}
