package contract

import (
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashpath/arbbot/internal/domain"
	"github.com/flashpath/arbbot/internal/poolcache"
	"github.com/flashpath/arbbot/internal/txbuilder"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")

	poolAddr     = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	executorAddr = common.HexToAddress("0xbbbb000000000000000000000000000000000002")
	ownerAddr    = common.HexToAddress("0xcccc000000000000000000000000000000000003")
	strangerAddr = common.HexToAddress("0xdddd000000000000000000000000000000000004")
)

func wethUnits(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), big.NewInt(1e18))
}

func testUniverse(t *testing.T) *domain.Universe {
	t.Helper()
	u, err := domain.NewUniverse(
		[]domain.Token{
			{Symbol: "WETH", Address: weth, Decimals: 18},
			{Symbol: "USDC", Address: usdc, Decimals: 6},
			{Symbol: "DAI", Address: dai, Decimals: 18},
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

func poolState(venue string, usdcPerWeth int64) domain.PoolState {
	pair := domain.NewPair(weth, usdc)
	wethRes := new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))
	usdcRes := new(big.Int).Mul(big.NewInt(1000*usdcPerWeth), big.NewInt(1e6))
	r0, r1 := wethRes, usdcRes
	if pair.Token0 != weth {
		r0, r1 = r1, r0
	}
	return domain.PoolState{
		Venue: venue, Pair: pair, Reserve0: r0, Reserve1: r1,
		FeeBps: 30, UpdatedAt: time.Now(),
	}
}

func daiWethPool(venue string, daiPerWeth int64) domain.PoolState {
	pair := domain.NewPair(weth, dai)
	wethRes := new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))
	daiRes := new(big.Int).Mul(big.NewInt(1000*daiPerWeth), big.NewInt(1e18))
	r0, r1 := wethRes, daiRes
	if pair.Token0 != weth {
		r0, r1 = r1, r0
	}
	return domain.PoolState{
		Venue: venue, Pair: pair, Reserve0: r0, Reserve1: r1,
		FeeBps: 30, UpdatedAt: time.Now(),
	}
}

// usdcDaiStable quotes USDC/DAI at parity. The rate is oriented Token0 ->
// Token1 in Token1 base units per whole unit of Token0.
func usdcDaiStable() domain.PoolState {
	return domain.PoolState{
		Venue: "curve", Pair: domain.NewPair(usdc, dai),
		Rate:     big.NewInt(1_000_000),
		RatePool: common.HexToAddress("0xeeee000000000000000000000000000000000005"),
		FeeBps:   4, UpdatedAt: time.Now(),
	}
}

// skewedMarket prices WETH at 2000 on uniswap and 2020 on sushiswap.
func skewedMarket(t *testing.T) *Market {
	t.Helper()
	snap := poolcache.NewSnapshot([]domain.PoolState{
		poolState("uniswap", 2000),
		poolState("sushiswap", 2020),
	}, nil, 42)
	return NewMarket(testUniverse(t), snap)
}

func calldata(t *testing.T, slippageBps int64, venues ...string) []byte {
	t.Helper()
	if len(venues) == 0 {
		venues = []string{"sushiswap", "uniswap"}
	}
	data, err := txbuilder.EncodeExecute(txbuilder.ExecuteParams{
		Assets:      []common.Address{weth},
		Amounts:     []*big.Int{wethUnits(1)},
		Modes:       []*big.Int{big.NewInt(0)},
		TokenPath:   []common.Address{weth, usdc, weth},
		DexPath:     venues,
		SlippageBps: big.NewInt(slippageBps),
	})
	require.NoError(t, err)
	return data
}

// newRig builds a funded lending pool and executor over a fresh ledger.
func newRig(t *testing.T) (*Ledger, *Executor) {
	t.Helper()
	ledger := NewLedger()
	ledger.Credit(poolAddr, weth, wethUnits(100))
	pool := NewLendingPool(poolAddr, 9, ledger)
	return ledger, NewExecutor(executorAddr, ownerAddr, pool, slog.New(slog.DiscardHandler))
}

func TestExecuteArbitrage_CommitsProfit(t *testing.T) {
	ledger, exec := newRig(t)
	poolBefore := ledger.Balance(poolAddr, weth)

	receipt, err := exec.ExecuteArbitrage(ownerAddr, calldata(t, 100), skewedMarket(t))
	require.NoError(t, err)

	assert.Equal(t, weth, receipt.Event.Asset)
	assert.Positive(t, receipt.Event.Profit.Sign())
	assert.Equal(t, receipt.Event.Profit, ledger.Balance(executorAddr, weth))

	// The pool earned its 9bps fee on the principal.
	fee := new(big.Int).Mul(big.NewInt(9), new(big.Int).Div(wethUnits(1), big.NewInt(10_000)))
	assert.Equal(t, new(big.Int).Add(poolBefore, fee), ledger.Balance(poolAddr, weth))
}

func TestExecuteArbitrage_RevertLeavesLedgerUntouched(t *testing.T) {
	ledger, exec := newRig(t)
	before := ledger.Balance(poolAddr, weth)

	// The losing direction cannot repay principal plus fee.
	_, err := exec.ExecuteArbitrage(ownerAddr, calldata(t, 100, "uniswap", "sushiswap"), skewedMarket(t))
	require.Error(t, err)

	var revert *domain.RevertError
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, domain.RevertInsufficientRepayment, revert.Reason)

	assert.Equal(t, before, ledger.Balance(poolAddr, weth))
	assert.Zero(t, ledger.Balance(executorAddr, weth).Sign())
	assert.Zero(t, ledger.Balance(executorAddr, usdc).Sign())
}

func TestExecuteArbitrage_UnauthorizedCaller(t *testing.T) {
	_, exec := newRig(t)

	_, err := exec.ExecuteArbitrage(strangerAddr, calldata(t, 100), skewedMarket(t))
	var revert *domain.RevertError
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, domain.RevertUnauthorizedCaller, revert.Reason)

	// Authorization opens the door; revocation closes it again.
	require.NoError(t, exec.Authorize(ownerAddr, strangerAddr))
	_, err = exec.ExecuteArbitrage(strangerAddr, calldata(t, 100), skewedMarket(t))
	assert.NoError(t, err)

	require.NoError(t, exec.Unauthorize(ownerAddr, strangerAddr))
	_, err = exec.ExecuteArbitrage(strangerAddr, calldata(t, 100), skewedMarket(t))
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, domain.RevertUnauthorizedCaller, revert.Reason)
}

func TestExecuteArbitrage_EmergencyStop(t *testing.T) {
	_, exec := newRig(t)

	assert.Error(t, exec.SetEmergencyStop(strangerAddr, true), "only the owner may toggle")
	require.NoError(t, exec.SetEmergencyStop(ownerAddr, true))
	assert.True(t, exec.Stopped())

	_, err := exec.ExecuteArbitrage(ownerAddr, calldata(t, 100), skewedMarket(t))
	assert.ErrorIs(t, err, domain.ErrEmergencyStopped)

	require.NoError(t, exec.SetEmergencyStop(ownerAddr, false))
	_, err = exec.ExecuteArbitrage(ownerAddr, calldata(t, 100), skewedMarket(t))
	assert.NoError(t, err)
}

func TestExecuteArbitrage_UnsupportedVenue(t *testing.T) {
	_, exec := newRig(t)

	_, err := exec.ExecuteArbitrage(ownerAddr, calldata(t, 100, "balancer", "uniswap"), skewedMarket(t))
	var revert *domain.RevertError
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, domain.RevertUnsupportedVenue, revert.Reason)
}

func TestExecuteArbitrage_StructuralRejections(t *testing.T) {
	_, exec := newRig(t)
	market := skewedMarket(t)

	// Not a cycle.
	data, err := txbuilder.EncodeExecute(txbuilder.ExecuteParams{
		Assets:      []common.Address{weth},
		Amounts:     []*big.Int{wethUnits(1)},
		Modes:       []*big.Int{big.NewInt(0)},
		TokenPath:   []common.Address{weth, usdc},
		DexPath:     []string{"uniswap"},
		SlippageBps: big.NewInt(100),
	})
	require.NoError(t, err)
	_, err = exec.ExecuteArbitrage(ownerAddr, data, market)
	assert.Error(t, err)

	// Loan asset differs from the funding token.
	data, err = txbuilder.EncodeExecute(txbuilder.ExecuteParams{
		Assets:      []common.Address{usdc},
		Amounts:     []*big.Int{wethUnits(1)},
		Modes:       []*big.Int{big.NewInt(0)},
		TokenPath:   []common.Address{weth, usdc, weth},
		DexPath:     []string{"sushiswap", "uniswap"},
		SlippageBps: big.NewInt(100),
	})
	require.NoError(t, err)
	_, err = exec.ExecuteArbitrage(ownerAddr, data, market)
	assert.Error(t, err)

	// Foreign selector.
	foreign, err := txbuilder.SetEmergencyStop(true)
	require.NoError(t, err)
	_, err = exec.ExecuteArbitrage(ownerAddr, foreign, market)
	assert.Error(t, err)
}

// divergingVenues quotes one amount but executes a worse one, the on-chain
// shape of getting front-run between quote and execution.
type divergingVenues struct {
	market  *Market
	haircut int64 // bps shaved off every executed swap
}

func (d *divergingVenues) Quote(venue string, in, out common.Address, amt *big.Int) (*big.Int, error) {
	return d.market.Quote(venue, in, out, amt)
}

func (d *divergingVenues) Swap(venue string, in, out common.Address, amt *big.Int) (*big.Int, error) {
	got, err := d.market.Swap(venue, in, out, amt)
	if err != nil {
		return nil, err
	}
	got.Mul(got, big.NewInt(10_000-d.haircut))
	return got.Div(got, big.NewInt(10_000)), nil
}

func TestExecuteArbitrage_SlippageExceeded(t *testing.T) {
	ledger, exec := newRig(t)
	before := ledger.Balance(poolAddr, weth)

	venues := &divergingVenues{market: skewedMarket(t), haircut: 300}
	_, err := exec.ExecuteArbitrage(ownerAddr, calldata(t, 100), venues)

	var revert *domain.RevertError
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, domain.RevertSlippageExceeded, revert.Reason)
	assert.Equal(t, before, ledger.Balance(poolAddr, weth), "revert must roll the loan back")
}

func TestExecuteArbitrage_SlippageWithinTolerance(t *testing.T) {
	_, exec := newRig(t)

	// A 5bps haircut stays inside a 100bps floor; the trade is still
	// profitable enough to repay.
	venues := &divergingVenues{market: skewedMarket(t), haircut: 5}
	_, err := exec.ExecuteArbitrage(ownerAddr, calldata(t, 100), venues)
	assert.NoError(t, err)
}

// triMarket routes WETH -> USDC on the skewed sushiswap price, USDC -> DAI
// at parity on curve, and DAI -> WETH back on uniswap.
func triMarket(t *testing.T) *Market {
	t.Helper()
	snap := poolcache.NewSnapshot([]domain.PoolState{
		poolState("sushiswap", 2020),
		usdcDaiStable(),
		daiWethPool("uniswap", 2000),
	}, nil, 42)
	return NewMarket(testUniverse(t), snap)
}

func TestExecuteArbitrage_StableSwapHop(t *testing.T) {
	ledger, exec := newRig(t)
	poolBefore := ledger.Balance(poolAddr, weth)

	data, err := txbuilder.EncodeExecute(txbuilder.ExecuteParams{
		Assets:      []common.Address{weth},
		Amounts:     []*big.Int{wethUnits(1)},
		Modes:       []*big.Int{big.NewInt(0)},
		TokenPath:   []common.Address{weth, usdc, dai, weth},
		DexPath:     []string{"sushiswap", "curve", "uniswap"},
		SlippageBps: big.NewInt(100),
	})
	require.NoError(t, err)

	receipt, err := exec.ExecuteArbitrage(ownerAddr, data, triMarket(t))
	require.NoError(t, err)

	assert.Equal(t, weth, receipt.Event.Asset)
	assert.Positive(t, receipt.Event.Profit.Sign())
	assert.Equal(t, receipt.Event.Profit, ledger.Balance(executorAddr, weth))

	fee := new(big.Int).Mul(big.NewInt(9), new(big.Int).Div(wethUnits(1), big.NewInt(10_000)))
	assert.Equal(t, new(big.Int).Add(poolBefore, fee), ledger.Balance(poolAddr, weth))

	// No intermediate tokens stick to the executor.
	assert.Zero(t, ledger.Balance(executorAddr, usdc).Sign())
	assert.Zero(t, ledger.Balance(executorAddr, dai).Sign())
}

func TestMarket_StableSwapDoesNotMoveRate(t *testing.T) {
	m := triMarket(t)
	in := new(big.Int).Mul(big.NewInt(2000), big.NewInt(1e6))

	q1, err := m.Quote("curve", usdc, dai, in)
	require.NoError(t, err)

	out, err := m.Swap("curve", usdc, dai, in)
	require.NoError(t, err)
	assert.Equal(t, q1, out)
	// Parity rate, 6 -> 18 decimals.
	assert.Equal(t, new(big.Int).Mul(big.NewInt(2000), big.NewInt(1e18)), out)

	// Stable-swap liquidity is external; the quote does not drift after a
	// swap the way constant-product reserves do.
	q2, err := m.Quote("curve", usdc, dai, in)
	require.NoError(t, err)
	assert.Equal(t, q1, q2)
}

func TestOnLoan_CallerAndInitiatorGuards(t *testing.T) {
	ledger, exec := newRig(t)
	fork := ledger.Fork()

	err := exec.OnLoan(fork, strangerAddr, executorAddr, weth, wethUnits(1), big.NewInt(0))
	var revert *domain.RevertError
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, domain.RevertUnauthorizedCaller, revert.Reason)

	err = exec.OnLoan(fork, poolAddr, strangerAddr, weth, wethUnits(1), big.NewInt(0))
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, domain.RevertInitiatorMismatch, revert.Reason)
}

// reentrantVenues tries to re-enter ExecuteArbitrage from inside a hop.
type reentrantVenues struct {
	market   *Market
	exec     *Executor
	calldata []byte
	inner    error
}

func (r *reentrantVenues) Quote(venue string, in, out common.Address, amt *big.Int) (*big.Int, error) {
	if r.inner == nil {
		_, r.inner = r.exec.ExecuteArbitrage(ownerAddr, r.calldata, r.market)
	}
	return r.market.Quote(venue, in, out, amt)
}

func (r *reentrantVenues) Swap(venue string, in, out common.Address, amt *big.Int) (*big.Int, error) {
	return r.market.Swap(venue, in, out, amt)
}

func TestExecuteArbitrage_Reentrancy(t *testing.T) {
	_, exec := newRig(t)
	venues := &reentrantVenues{market: skewedMarket(t), exec: exec, calldata: calldata(t, 100)}

	_, err := exec.ExecuteArbitrage(ownerAddr, calldata(t, 100), venues)
	require.NoError(t, err, "outer execution still commits")

	var revert *domain.RevertError
	require.ErrorAs(t, venues.inner, &revert)
	assert.Equal(t, domain.RevertReentrancy, revert.Reason)
}

func TestRecoverERC20(t *testing.T) {
	ledger, exec := newRig(t)
	ledger.Credit(executorAddr, usdc, big.NewInt(500))

	assert.Error(t, exec.RecoverERC20(strangerAddr, ledger, usdc, big.NewInt(500)))

	require.NoError(t, exec.RecoverERC20(ownerAddr, ledger, usdc, big.NewInt(500)))
	assert.Equal(t, big.NewInt(500), ledger.Balance(ownerAddr, usdc))
	assert.Zero(t, ledger.Balance(executorAddr, usdc).Sign())
}

func TestLedger_ForkIsolation(t *testing.T) {
	ledger := NewLedger()
	ledger.Credit(poolAddr, weth, wethUnits(10))

	fork := ledger.Fork()
	require.NoError(t, fork.Transfer(poolAddr, executorAddr, weth, wethUnits(4)))
	assert.Equal(t, wethUnits(10), ledger.Balance(poolAddr, weth), "parent unchanged before commit")

	ledger.Commit(fork)
	assert.Equal(t, wethUnits(6), ledger.Balance(poolAddr, weth))
	assert.Equal(t, wethUnits(4), ledger.Balance(executorAddr, weth))
}

func TestLedger_DebitInsufficient(t *testing.T) {
	ledger := NewLedger()
	ledger.Credit(poolAddr, weth, big.NewInt(5))

	err := ledger.Debit(poolAddr, weth, big.NewInt(6))
	require.Error(t, err)
	assert.Equal(t, big.NewInt(5), ledger.Balance(poolAddr, weth), "failed debit has no effect")
}

func TestLendingPool_CallbackErrorAbandonsFork(t *testing.T) {
	ledger := NewLedger()
	ledger.Credit(poolAddr, weth, wethUnits(10))
	pool := NewLendingPool(poolAddr, 9, ledger)

	err := pool.FlashLoan(failingBorrower{}, executorAddr, weth, wethUnits(1))
	assert.Error(t, err)
	assert.Equal(t, wethUnits(10), ledger.Balance(poolAddr, weth))
}

type failingBorrower struct{}

func (failingBorrower) Address() common.Address { return executorAddr }

func (failingBorrower) OnLoan(*Ledger, common.Address, common.Address, common.Address, *big.Int, *big.Int) error {
	return errors.New("borrower bailed")
}

func TestMarket_SwapMovesReserves(t *testing.T) {
	m := skewedMarket(t)

	q1, err := m.Quote("uniswap", weth, usdc, wethUnits(1))
	require.NoError(t, err)

	out, err := m.Swap("uniswap", weth, usdc, wethUnits(1))
	require.NoError(t, err)
	assert.Equal(t, q1, out)

	// The swap moved the price; the same quote now yields less.
	q2, err := m.Quote("uniswap", weth, usdc, wethUnits(1))
	require.NoError(t, err)
	assert.Negative(t, q2.Cmp(q1))
}
