package txbuilder

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/flashpath/arbbot/internal/domain"
	"github.com/flashpath/arbbot/internal/security"
)

// NonceSource supplies the next pending nonce for the signing account.
// Implemented by the chain client.
type NonceSource interface {
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
}

// TxSigner signs an assembled transaction. Implemented by crypto.Signer.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// Options are the builder's fixed parameters.
type Options struct {
	// Contract is the deployed execution contract address.
	Contract common.Address
	// ChainID is included in the signed transaction.
	ChainID int64
	// SlippageBps is the tolerance forwarded to the contract.
	SlippageBps int64
	// Deadline is how long a built request stays submittable.
	Deadline time.Duration
	// Private routes the request through the protected relay.
	Private bool
}

// Builder turns approved evaluations into signed execution requests.
type Builder struct {
	signer TxSigner
	nonces NonceSource
	opts   Options
	logger *slog.Logger
}

func NewBuilder(signer TxSigner, nonces NonceSource, opts Options, logger *slog.Logger) *Builder {
	return &Builder{
		signer: signer,
		nonces: nonces,
		opts:   opts,
		logger: logger.With("component", "txbuilder"),
	}
}

// Build encodes and signs one execution request from a validated evaluation.
// Accepting only security.Approved means a request cannot exist without the
// evaluation having passed validation.
func (b *Builder) Build(ctx context.Context, approved security.Approved, fee domain.FeeParams) (*domain.ExecutionRequest, error) {
	eval := approved.Evaluation()
	asset := eval.Candidate.FundingToken()

	calldata, err := EncodeExecute(ExecuteParams{
		Assets:  []common.Address{asset},
		Amounts: []*big.Int{new(big.Int).Set(eval.Principal)},
		// Mode 0: no debt is left open, the full amount is repaid in-unit.
		Modes:       []*big.Int{big.NewInt(0)},
		TokenPath:   eval.Candidate.TokenPath,
		DexPath:     eval.Candidate.VenuePath,
		SlippageBps: big.NewInt(b.opts.SlippageBps),
	})
	if err != nil {
		return nil, err
	}

	nonce, err := b.nonces.PendingNonce(ctx, b.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("txbuilder: fetching nonce: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(b.opts.ChainID),
		Nonce:     nonce,
		GasTipCap: fee.PriorityFee,
		GasFeeCap: fee.MaxFeePerGas,
		Gas:       fee.GasLimit,
		To:        &b.opts.Contract,
		Value:     new(big.Int),
		Data:      calldata,
	})
	signed, err := b.signer.SignTx(tx)
	if err != nil {
		return nil, err
	}

	req := &domain.ExecutionRequest{
		ID:          uuid.NewString(),
		Asset:       asset,
		Principal:   new(big.Int).Set(eval.Principal),
		TokenPath:   eval.Candidate.TokenPath,
		VenuePath:   eval.Candidate.VenuePath,
		SlippageBps: b.opts.SlippageBps,
		Deadline:    time.Now().Add(b.opts.Deadline),
		Fee:         fee,
		Calldata:    calldata,
		Contract:    b.opts.Contract,
		SignedTx:    signed,
		Private:     b.opts.Private,
	}
	b.logger.Debug("request built",
		"request_id", req.ID,
		"evaluation_id", eval.ID,
		"tx_hash", signed.Hash(),
		"nonce", nonce,
		"private", req.Private)
	return req, nil
}
