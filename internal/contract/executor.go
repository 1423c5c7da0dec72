package contract

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashpath/arbbot/internal/domain"
	"github.com/flashpath/arbbot/internal/txbuilder"
)

// ProfitEvent is emitted once per committed execution.
type ProfitEvent struct {
	Asset  common.Address
	Profit *big.Int
}

// Receipt summarizes a committed execution.
type Receipt struct {
	Event ProfitEvent
}

// Executor is the execution contract's state machine. One call to
// ExecuteArbitrage runs authorization, the flash loan, the hop walk, the
// slippage bound, and repayment; failure at any step reverts the whole unit.
type Executor struct {
	addr  common.Address
	owner common.Address
	pool  *LendingPool

	mu         sync.Mutex
	authorized map[common.Address]bool
	stopped    bool
	entered    bool

	// pending fields are valid only between ExecuteArbitrage and OnLoan;
	// the reentrancy flag makes the window single-flight.
	pendingParams txbuilder.ExecuteParams
	pendingVenues Venues

	logger *slog.Logger
}

func NewExecutor(addr, owner common.Address, pool *LendingPool, logger *slog.Logger) *Executor {
	return &Executor{
		addr:       addr,
		owner:      owner,
		pool:       pool,
		authorized: make(map[common.Address]bool),
		logger:     logger.With("component", "contract"),
	}
}

// Address returns the contract address.
func (e *Executor) Address() common.Address { return e.addr }

// Authorize grants an account the right to call ExecuteArbitrage. Owner-only.
func (e *Executor) Authorize(owner, caller common.Address) error {
	if owner != e.owner {
		return domain.Revert(domain.RevertUnauthorizedCaller, "only owner may authorize")
	}
	e.mu.Lock()
	e.authorized[caller] = true
	e.mu.Unlock()
	return nil
}

// Unauthorize revokes a previously granted caller. Owner-only.
func (e *Executor) Unauthorize(owner, caller common.Address) error {
	if owner != e.owner {
		return domain.Revert(domain.RevertUnauthorizedCaller, "only owner may unauthorize")
	}
	e.mu.Lock()
	delete(e.authorized, caller)
	e.mu.Unlock()
	return nil
}

// SetEmergencyStop toggles the circuit breaker. Owner-only.
func (e *Executor) SetEmergencyStop(owner common.Address, stopped bool) error {
	if owner != e.owner {
		return domain.Revert(domain.RevertUnauthorizedCaller, "only owner may toggle emergency stop")
	}
	e.mu.Lock()
	e.stopped = stopped
	e.mu.Unlock()
	e.logger.Warn("emergency stop toggled", "stopped", stopped)
	return nil
}

// Stopped reports whether the circuit breaker is active.
func (e *Executor) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// RecoverERC20 moves stranded tokens from the contract to the owner.
func (e *Executor) RecoverERC20(owner common.Address, ledger *Ledger, token common.Address, amount *big.Int) error {
	if owner != e.owner {
		return domain.Revert(domain.RevertUnauthorizedCaller, "only owner may recover tokens")
	}
	return ledger.Transfer(e.addr, e.owner, token, amount)
}

// ExecuteArbitrage is the contract entrypoint. calldata must be an
// executeArbitrage call; venues supplies hop execution. On success, the
// ledger reflects the committed trade and the receipt carries the profit
// event. On failure the ledger is untouched and the error is a
// *domain.RevertError (or ErrEmergencyStopped).
func (e *Executor) ExecuteArbitrage(caller common.Address, calldata []byte, venues Venues) (*Receipt, error) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil, domain.ErrEmergencyStopped
	}
	if caller != e.owner && !e.authorized[caller] {
		e.mu.Unlock()
		return nil, domain.Revert(domain.RevertUnauthorizedCaller, "caller %s", caller.Hex())
	}
	if e.entered {
		e.mu.Unlock()
		return nil, domain.Revert(domain.RevertReentrancy, "execution already in progress")
	}
	e.entered = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.entered = false
		e.mu.Unlock()
	}()

	params, err := txbuilder.DecodeExecute(calldata)
	if err != nil {
		return nil, err
	}
	if len(params.Assets) != 1 || len(params.Amounts) != 1 {
		return nil, fmt.Errorf("contract: exactly one asset per execution, got %d", len(params.Assets))
	}
	if len(params.TokenPath) < 2 || params.TokenPath[0] != params.TokenPath[len(params.TokenPath)-1] {
		return nil, fmt.Errorf("contract: token path must be a cycle")
	}
	if len(params.DexPath) != len(params.TokenPath)-1 {
		return nil, fmt.Errorf("contract: %d venues for %d hops",
			len(params.DexPath), len(params.TokenPath)-1)
	}
	if params.Assets[0] != params.TokenPath[0] {
		return nil, fmt.Errorf("contract: loan asset is not the funding token")
	}

	asset := params.Assets[0]
	amount := params.Amounts[0]
	e.pendingParams = params
	e.pendingVenues = venues

	ledger := e.pool.ledger
	before := ledger.Balance(e.addr, asset)

	if err := e.pool.FlashLoan(e, e.addr, asset, amount); err != nil {
		return nil, err
	}

	profit := new(big.Int).Sub(ledger.Balance(e.addr, asset), before)
	e.logger.Info("execution committed",
		"asset", asset.Hex(), "principal", amount.String(), "profit", profit.String())
	return &Receipt{Event: ProfitEvent{Asset: asset, Profit: profit}}, nil
}

// OnLoan is the lending pool's callback: quote the full path, derive the
// slippage floor, walk the hops, and leave the repayment in place.
func (e *Executor) OnLoan(fork *Ledger, caller, initiator common.Address, asset common.Address, amount, fee *big.Int) error {
	if caller != e.pool.Address() {
		return domain.Revert(domain.RevertUnauthorizedCaller,
			"loan callback from %s, expected pool %s", caller.Hex(), e.pool.Address().Hex())
	}
	if initiator != e.addr {
		return domain.Revert(domain.RevertInitiatorMismatch,
			"loan initiated by %s", initiator.Hex())
	}

	params := e.pendingParams
	venues := e.pendingVenues

	// Quote phase: expected final output at current reserves sets the
	// minimum this execution may settle at.
	quoted := new(big.Int).Set(amount)
	for i := range params.DexPath {
		out, err := venues.Quote(params.DexPath[i], params.TokenPath[i], params.TokenPath[i+1], quoted)
		if err != nil {
			return e.mapVenueErr(err)
		}
		quoted = out
	}
	minOut := new(big.Int).Mul(quoted, new(big.Int).Sub(big.NewInt(10_000), params.SlippageBps))
	minOut.Div(minOut, big.NewInt(10_000))

	// Execute phase: swap hop by hop against the fork.
	current := new(big.Int).Set(amount)
	for i := range params.DexPath {
		venue := params.DexPath[i]
		tokenIn, tokenOut := params.TokenPath[i], params.TokenPath[i+1]
		out, err := venues.Swap(venue, tokenIn, tokenOut, current)
		if err != nil {
			return e.mapVenueErr(err)
		}
		if err := fork.Debit(e.addr, tokenIn, current); err != nil {
			return fmt.Errorf("contract: hop %d: %w", i, err)
		}
		fork.Credit(e.addr, tokenOut, out)
		current = out
	}

	if current.Cmp(minOut) < 0 {
		return domain.Revert(domain.RevertSlippageExceeded,
			"output %s below floor %s", current, minOut)
	}
	return nil
}

func (e *Executor) mapVenueErr(err error) error {
	if errors.Is(err, errUnknownVenue) {
		return domain.Revert(domain.RevertUnsupportedVenue, "%v", err)
	}
	return err
}
