package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/flashpath/arbbot/internal/domain"
)

// Broadcaster sends a signed transaction to the public pool. Implemented by
// the chain client.
type Broadcaster interface {
	Broadcast(ctx context.Context, tx *types.Transaction) error
}

// ReceiptSource looks up inclusion receipts. Implemented by the chain client.
type ReceiptSource interface {
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// receiptPollInterval is how often a pending submission is checked.
const receiptPollInterval = 2 * time.Second

// profitTopic is the execution contract's ArbitrageProfit(address,uint256)
// event signature.
var profitTopic = crypto.Keccak256Hash([]byte("ArbitrageProfit(address,uint256)"))

// Submitter broadcasts execution requests and tracks each one to a terminal
// outcome: committed, reverted, or timed out.
type Submitter struct {
	public   Broadcaster
	relay    *Relay
	receipts ReceiptSource
	timeout  time.Duration
	logger   *slog.Logger
}

func NewSubmitter(public Broadcaster, relay *Relay, receipts ReceiptSource, timeout time.Duration, logger *slog.Logger) *Submitter {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Submitter{
		public:   public,
		relay:    relay,
		receipts: receipts,
		timeout:  timeout,
		logger:   logger.With("component", "submit"),
	}
}

// Submit broadcasts the request on its configured path and blocks until it
// resolves. The returned outcome is always terminal; the error mirrors the
// broadcast failure when nothing was sent.
func (s *Submitter) Submit(ctx context.Context, req *domain.ExecutionRequest, candidateKey string) (domain.ExecutionOutcome, error) {
	outcome := domain.ExecutionOutcome{
		ID:           uuid.NewString(),
		RequestID:    req.ID,
		CandidateKey: candidateKey,
		TxHash:       req.SignedTx.Hash(),
	}

	if err := s.broadcast(ctx, req); err != nil {
		outcome.Status = domain.OutcomeNotSubmitted
		outcome.Reason = err.Error()
		outcome.ResolvedAt = time.Now()
		return outcome, fmt.Errorf("%w: %v", domain.ErrSubmissionRejected, err)
	}
	s.logger.Info("request submitted",
		"request_id", req.ID,
		"tx_hash", outcome.TxHash,
		"private", req.Private)

	return s.resolve(ctx, req, outcome)
}

func (s *Submitter) broadcast(ctx context.Context, req *domain.ExecutionRequest) error {
	if req.Private {
		if s.relay == nil {
			return errors.New("submit: private request but no relay configured")
		}
		return s.relay.Send(ctx, req.SignedTx)
	}
	return s.public.Broadcast(ctx, req.SignedTx)
}

// resolve polls for the receipt until inclusion, the request deadline, or
// the tracking timeout.
func (s *Submitter) resolve(ctx context.Context, req *domain.ExecutionRequest, outcome domain.ExecutionOutcome) (domain.ExecutionOutcome, error) {
	deadline := time.Now().Add(s.timeout)
	if !req.Deadline.IsZero() && req.Deadline.Before(deadline) {
		deadline = req.Deadline
	}
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.receipts.Receipt(ctx, outcome.TxHash)
		switch {
		case err == nil && receipt != nil:
			outcome.Block = receipt.BlockNumber.Uint64()
			outcome.ResolvedAt = time.Now()
			if receipt.Status == types.ReceiptStatusSuccessful {
				outcome.Status = domain.OutcomeCommitted
				outcome.RealizedProfit = profitFromReceipt(receipt, req)
			} else {
				outcome.Status = domain.OutcomeReverted
				outcome.Reason = "execution reverted on-chain"
			}
			s.logger.Info("request resolved",
				"request_id", req.ID,
				"status", outcome.Status,
				"block", outcome.Block)
			return outcome, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			s.logger.Warn("receipt lookup failed", "tx_hash", outcome.TxHash, "error", err)
		}

		if time.Now().After(deadline) {
			outcome.Status = domain.OutcomeTimedOut
			outcome.Reason = fmt.Sprintf("no inclusion within %s", s.timeout)
			outcome.ResolvedAt = time.Now()
			s.logger.Warn("request timed out", "request_id", req.ID, "tx_hash", outcome.TxHash)
			return outcome, nil
		}
		select {
		case <-ctx.Done():
			outcome.Status = domain.OutcomeTimedOut
			outcome.Reason = ctx.Err().Error()
			outcome.ResolvedAt = time.Now()
			return outcome, ctx.Err()
		case <-ticker.C:
		}
	}
}

// profitFromReceipt extracts the realized profit from the contract's profit
// event. Falls back to nil when the log is absent.
func profitFromReceipt(receipt *types.Receipt, req *domain.ExecutionRequest) *big.Int {
	for _, lg := range receipt.Logs {
		if lg.Address != req.Contract || len(lg.Topics) == 0 || lg.Topics[0] != profitTopic {
			continue
		}
		if len(lg.Data) >= 32 {
			return new(big.Int).SetBytes(lg.Data[len(lg.Data)-32:])
		}
	}
	return nil
}
