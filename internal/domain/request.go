package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// FeeParams is the gas fee attached to an execution request.
type FeeParams struct {
	// MaxFeePerGas is the EIP-1559 fee cap in wei.
	MaxFeePerGas *big.Int
	// PriorityFee is the tip per gas in wei.
	PriorityFee *big.Int
	// GasLimit is the execution gas allowance.
	GasLimit uint64
}

// ExecutionRequest is the fully-specified borrow request: asset, principal,
// path, per-hop venues, slippage bound and deadline, plus the encoded and
// signed transaction. It is built once per accepted evaluation and never
// mutated after signing.
type ExecutionRequest struct {
	ID string

	Asset       common.Address
	Principal   *big.Int
	TokenPath   []common.Address
	VenuePath   []string
	SlippageBps int64
	Deadline    time.Time

	Fee      FeeParams
	Calldata []byte
	Contract common.Address

	// SignedTx is the ready-to-broadcast transaction.
	SignedTx *types.Transaction

	// Private requests are routed through the protected relay instead of the
	// public transaction pool.
	Private bool
}

// OutcomeStatus classifies how an execution request resolved.
type OutcomeStatus string

const (
	// OutcomeCommitted means the execution unit was included and the
	// borrow-swap-repay sequence completed.
	OutcomeCommitted OutcomeStatus = "committed"
	// OutcomeReverted means the unit was included but rolled back entirely;
	// gas was spent, no funds moved.
	OutcomeReverted OutcomeStatus = "reverted"
	// OutcomeNotSubmitted means validation or fee quoting rejected the
	// request before any funds moved.
	OutcomeNotSubmitted OutcomeStatus = "not_submitted"
	// OutcomeTimedOut means no inclusion or revert was observed before the
	// request's deadline.
	OutcomeTimedOut OutcomeStatus = "timed_out"
)

// ExecutionOutcome is the terminal record of one pipeline cycle's request (or
// of its rejection). Outcomes feed the strategy engine's cooldown state and
// the operator journal.
type ExecutionOutcome struct {
	ID           string
	RequestID    string
	CandidateKey string
	Status       OutcomeStatus

	// RealizedProfit is set for committed outcomes, in funding-token base
	// units as reported by the execution contract's profit event.
	RealizedProfit *big.Int

	// Reason holds the revert reason or rejection kind for non-committed
	// outcomes.
	Reason string

	TxHash     common.Hash
	Block      uint64
	ResolvedAt time.Time
}

// OutcomeStore persists execution outcomes for operators. Implemented by the
// postgres store; a nil store disables journaling.
type OutcomeStore interface {
	Record(ctx context.Context, outcome ExecutionOutcome) error
	ListSince(ctx context.Context, since time.Time) ([]ExecutionOutcome, error)
}
