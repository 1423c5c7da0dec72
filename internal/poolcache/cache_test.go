package poolcache

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashpath/arbbot/internal/domain"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

	uniPool   = common.HexToAddress("0x1111000000000000000000000000000000000001")
	sushiPool = common.HexToAddress("0x1111000000000000000000000000000000000002")
	curvePool = common.HexToAddress("0x1111000000000000000000000000000000000003")
	router    = common.HexToAddress("0x2222000000000000000000000000000000000001")
)

// fakeReader serves scripted reserves and rates, with per-pool failure
// switches.
type fakeReader struct {
	reserves map[common.Address][2]*big.Int
	block    uint64
	fail     map[common.Address]bool

	rate     *big.Int
	rateErr  error
	ratePool common.Address

	reserveCalls int
}

func (f *fakeReader) Reserves(_ context.Context, pool common.Address) (*big.Int, *big.Int, uint64, error) {
	f.reserveCalls++
	if f.fail[pool] {
		return nil, nil, 0, errors.New("rpc: connection refused")
	}
	r, ok := f.reserves[pool]
	if !ok {
		return nil, nil, 0, errors.New("no such pool")
	}
	return new(big.Int).Set(r[0]), new(big.Int).Set(r[1]), f.block, nil
}

func (f *fakeReader) BestRate(_ context.Context, _, _, _ common.Address, _ *big.Int) (common.Address, *big.Int, error) {
	if f.rateErr != nil {
		return common.Address{}, nil, f.rateErr
	}
	return f.ratePool, new(big.Int).Set(f.rate), nil
}

func testUniverse(t *testing.T) *domain.Universe {
	t.Helper()
	u, err := domain.NewUniverse(
		[]domain.Token{
			{Symbol: "WETH", Address: weth, Decimals: 18},
			{Symbol: "USDC", Address: usdc, Decimals: 6},
		},
		[]domain.Venue{
			{Name: "uniswap", Model: domain.ConstantProduct, FeeBps: 30, Enabled: true},
			{Name: "sushiswap", Model: domain.ConstantProduct, FeeBps: 30, Enabled: true},
			{Name: "curve", Router: router, Model: domain.StableSwap, FeeBps: 4, Enabled: true},
		},
		[]string{"WETH"},
	)
	require.NoError(t, err)
	return u
}

func trackedPools(u *domain.Universe) []TrackedPool {
	pair := domain.NewPair(weth, usdc)
	uni, _ := u.VenueByName("uniswap")
	sushi, _ := u.VenueByName("sushiswap")
	curve, _ := u.VenueByName("curve")
	return []TrackedPool{
		{Venue: uni, Pool: uniPool, Pair: pair},
		{Venue: sushi, Pool: sushiPool, Pair: pair},
		{Venue: curve, Pool: curvePool, Pair: pair},
	}
}

func newTestCache(t *testing.T, reader ReserveReader) *Cache {
	t.Helper()
	u := testUniverse(t)
	return New(reader, u, trackedPools(u), 1000, 10, time.Minute, slog.New(slog.DiscardHandler))
}

func healthyReader() *fakeReader {
	return &fakeReader{
		reserves: map[common.Address][2]*big.Int{
			uniPool:   {big.NewInt(1_000), big.NewInt(2_000_000)},
			sushiPool: {big.NewInt(1_000), big.NewInt(2_020_000)},
		},
		block:    42,
		fail:     map[common.Address]bool{},
		rate:     big.NewInt(2_000_000_000), // 2000 USDC per WETH in base units
		ratePool: curvePool,
	}
}

func TestRefreshAll(t *testing.T) {
	reader := healthyReader()
	c := newTestCache(t, reader)

	require.NoError(t, c.RefreshAll(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, uint64(42), snap.Block())
	assert.Len(t, snap.Pools(), 3)

	pair := domain.NewPair(weth, usdc)
	assert.Equal(t, 3, snap.PriceSources(pair, time.Minute))

	uni, ok := snap.Best("uniswap", pair)
	require.True(t, ok)
	assert.True(t, uni.HasLiquidity())
	assert.Equal(t, int64(30), uni.FeeBps)

	curve, ok := snap.Best("curve", pair)
	require.True(t, ok)
	assert.Equal(t, big.NewInt(2_000_000_000), curve.Rate)
	assert.Equal(t, curvePool, curve.RatePool)
}

func TestRefreshAll_FailedSourceKeepsPriorEntryButDegrades(t *testing.T) {
	reader := healthyReader()
	c := newTestCache(t, reader)
	require.NoError(t, c.RefreshAll(context.Background()))

	// The sushiswap read starts failing; its last good entry must survive
	// into the next snapshot with the pair degraded by one source.
	reader.fail[sushiPool] = true
	require.NoError(t, c.RefreshAll(context.Background()))

	snap := c.Snapshot()
	pair := domain.NewPair(weth, usdc)

	sushi, ok := snap.Best("sushiswap", pair)
	require.True(t, ok, "prior entry must remain visible")
	assert.True(t, sushi.HasLiquidity())

	assert.Equal(t, 2, snap.PriceSources(pair, time.Minute))
}

func TestPriceSources_AgedOutDegradedVenueDoesNotDiscountOthers(t *testing.T) {
	pair := domain.NewPair(weth, usdc)
	fresh := domain.PoolState{
		Venue: "uniswap", Pair: pair, Pool: uniPool,
		Reserve0: big.NewInt(2_000_000), Reserve1: big.NewInt(1_000),
		FeeBps: 30, UpdatedAt: time.Now(),
	}
	stale := fresh
	stale.Venue = "sushiswap"
	stale.Pool = sushiPool
	stale.UpdatedAt = time.Now().Add(-2 * time.Minute)

	snap := NewSnapshot([]domain.PoolState{fresh, stale},
		map[domain.Pair][]string{pair: {"sushiswap"}}, 42)

	// The sushiswap entry aged past the lookback and was never counted; its
	// degraded mark must not also discount the live uniswap source.
	assert.Equal(t, 1, snap.PriceSources(pair, time.Minute))
}

func TestRefreshAll_NeverServesHalfRefreshedSnapshot(t *testing.T) {
	reader := healthyReader()
	c := newTestCache(t, reader)

	before := c.Snapshot()
	require.NotNil(t, before)
	assert.Empty(t, before.Pools(), "pre-refresh snapshot is empty, not nil")

	require.NoError(t, c.RefreshAll(context.Background()))
	after := c.Snapshot()
	assert.NotSame(t, before, after, "refresh swaps in a new snapshot")
	assert.Empty(t, before.Pools(), "the old snapshot is immutable")
}

func TestRefresh_StaleDataError(t *testing.T) {
	reader := healthyReader()
	reader.fail[uniPool] = true
	c := newTestCache(t, reader)
	u := testUniverse(t)

	_, err := c.Refresh(context.Background(), trackedPools(u)[0])
	assert.ErrorIs(t, err, domain.ErrStaleData)
}

func TestRefresh_StableSwapRate(t *testing.T) {
	reader := healthyReader()
	c := newTestCache(t, reader)
	u := testUniverse(t)

	state, err := c.Refresh(context.Background(), trackedPools(u)[2])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2_000_000_000), state.Rate)
	assert.Nil(t, state.Reserve0)
	assert.Equal(t, int64(4), state.FeeBps)
}

func TestRefreshAll_ContextCanceled(t *testing.T) {
	reader := healthyReader()
	c := newTestCache(t, reader)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.RefreshAll(ctx))
}

func TestRefreshAll_DropsEntriesPastLookback(t *testing.T) {
	reader := healthyReader()
	u := testUniverse(t)
	// A 0-lookback cache considers everything stale the moment the round
	// after it completes.
	c := New(reader, u, trackedPools(u), 1000, 10, -time.Second, slog.New(slog.DiscardHandler))

	require.NoError(t, c.RefreshAll(context.Background()))
	assert.Empty(t, c.Snapshot().Pools())
}
