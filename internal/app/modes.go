package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/flashpath/arbbot/internal/chain"
	"github.com/flashpath/arbbot/internal/contract"
	"github.com/flashpath/arbbot/internal/domain"
	"github.com/flashpath/arbbot/internal/gas"
	"github.com/flashpath/arbbot/internal/notify"
	"github.com/flashpath/arbbot/internal/security"
	"github.com/flashpath/arbbot/internal/txbuilder"
	"github.com/google/uuid"
)

// MonitorMode runs the full decision pipeline but stops short of building
// transactions: selected opportunities are logged and notified only.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	return a.runPipeline(ctx, deps, false)
}

// TradeMode runs the complete pipeline including signing and submission.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	return a.runPipeline(ctx, deps, true)
}

func (a *App) runPipeline(ctx context.Context, deps *Dependencies, trade bool) error {
	g, gctx := errgroup.WithContext(ctx)

	// New-head notifications collapse into a single pending trigger; a slow
	// cycle skips intermediate blocks rather than queueing them.
	trigger := make(chan struct{}, 1)

	if a.cfg.Ethereum.WSURL != "" {
		listener := chain.NewHeadListener(a.cfg.Ethereum.WSURL,
			a.cfg.Ethereum.WSHandshakeTimout.Duration,
			func(_ context.Context, head gas.Head) {
				deps.Chain.ObserveBlock(head.Number)
				deps.Gas.Observe(head)
				select {
				case trigger <- struct{}{}:
				default:
				}
			}, a.logger)
		g.Go(func() error { return listener.Run(gctx) })
		a.closers = append(a.closers, listener.Close)
	}

	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(gctx) })
	}

	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Arbitrage.ScanInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-trigger:
			case <-ticker.C:
			}
			a.runCycle(gctx, deps, trade)
		}
	})

	return g.Wait()
}

// runCycle is one pass through the pipeline: refresh, scan, evaluate,
// validate, and in trade mode simulate, price, build, and submit. Every
// failure is absorbed; the loop always reaches the next trigger.
func (a *App) runCycle(ctx context.Context, deps *Dependencies, trade bool) {
	defer deps.Engine.Reset()

	if err := deps.Cache.RefreshAll(ctx); err != nil {
		if errors.Is(err, domain.ErrStaleData) {
			a.logger.Warn("refresh incomplete, continuing on prior data", "error", err)
		} else {
			a.logger.Error("refresh failed", "error", err)
			return
		}
	}
	snap := deps.Cache.Snapshot()
	if snap == nil || len(snap.Pools()) == 0 {
		a.logger.Warn("no pool data yet, skipping cycle")
		return
	}

	candidates := deps.Scanner.Scan(snap, a.cfg.Arbitrage.MaxHops)
	eval, err := deps.Engine.EvaluateAll(ctx, snap, candidates)
	if err != nil {
		if !errors.Is(err, domain.ErrNoViableCandidate) {
			a.logger.Error("evaluation failed", "error", err)
		}
		return
	}

	approved, err := deps.Guard.Validate(eval, snap)
	if err != nil {
		a.recordRejection(ctx, deps, eval, err)
		return
	}

	if !trade {
		a.logger.Info("opportunity (monitor mode, not trading)",
			"candidate", eval.Candidate.String(),
			"net_profit", eval.NetProfit.String(),
			"net_after_slippage", eval.NetProfitAfterSlippage().String())
		deps.Notifier.Notify(ctx, notify.Message{
			Event: notify.EventOpportunity,
			Title: "Opportunity detected",
			Body: fmt.Sprintf("candidate: %s\nnet profit: %s base units",
				eval.Candidate.Key(), eval.NetProfit.String()),
		})
		return
	}

	a.executeTrade(ctx, deps, approved)
}

// executeTrade carries an approved evaluation through simulation, fee
// quoting, building, locking, and submission.
func (a *App) executeTrade(ctx context.Context, deps *Dependencies, approved security.Approved) {
	eval := approved.Evaluation()

	if a.cfg.Security.SimulateTransactions {
		if err := a.simulate(deps, approved); err != nil {
			a.recordRejection(ctx, deps, eval, fmt.Errorf("simulation: %w", err))
			return
		}
	}

	fee, err := deps.Gas.Quote(ctx)
	if err != nil {
		a.recordRejection(ctx, deps, eval, err)
		return
	}

	req, err := deps.Builder.Build(ctx, approved, fee)
	if err != nil {
		a.recordRejection(ctx, deps, eval, err)
		return
	}

	if deps.SubmitLock != nil {
		release, err := deps.SubmitLock.Acquire(ctx, req.Asset.Hex())
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				a.logger.Info("submission lock held elsewhere, skipping",
					"candidate", eval.Candidate.Key())
				return
			}
			a.recordRejection(ctx, deps, eval, err)
			return
		}
		defer release()
	}

	outcome, err := deps.Submitter.Submit(ctx, req, eval.Candidate.Key())
	if err != nil && outcome.Status == "" {
		a.recordRejection(ctx, deps, eval, err)
		return
	}
	a.recordOutcome(ctx, deps, outcome)
}

// simulate runs the execution contract state machine against the validated
// snapshot. The builder has not run yet, so the calldata is encoded the same
// way it will be on the real path.
func (a *App) simulate(deps *Dependencies, approved security.Approved) error {
	eval := approved.Evaluation()

	lendingPool := common.HexToAddress(a.cfg.FlashLoan.LendingPool)
	contractAddr := common.HexToAddress(a.cfg.FlashLoan.Contract)
	owner := deps.Signer.Address()

	ledger := contract.NewLedger()
	// Seed enough pool liquidity to cover principal plus fee.
	seed := new(big.Int).Lsh(eval.Principal, 1)
	ledger.Credit(lendingPool, eval.Candidate.FundingToken(), seed)

	pool := contract.NewLendingPool(lendingPool, a.cfg.FlashLoan.FeeBps, ledger)
	exec := contract.NewExecutor(contractAddr, owner, pool, a.logger)
	market := contract.NewMarket(deps.Universe, approved.Snapshot())

	calldata, err := buildSimCalldata(eval, a.cfg.Arbitrage.SlippageBps)
	if err != nil {
		return err
	}
	receipt, err := exec.ExecuteArbitrage(owner, calldata, market)
	if err != nil {
		return err
	}
	a.logger.Debug("simulation passed",
		"candidate", eval.Candidate.Key(),
		"simulated_profit", receipt.Event.Profit.String())
	return nil
}

func buildSimCalldata(eval *domain.Evaluation, slippageBps int64) ([]byte, error) {
	return txbuilder.EncodeExecute(txbuilder.ExecuteParams{
		Assets:      []common.Address{eval.Candidate.FundingToken()},
		Amounts:     []*big.Int{new(big.Int).Set(eval.Principal)},
		Modes:       []*big.Int{big.NewInt(0)},
		TokenPath:   eval.Candidate.TokenPath,
		DexPath:     eval.Candidate.VenuePath,
		SlippageBps: big.NewInt(slippageBps),
	})
}

// recordRejection journals a pre-submission failure so the cooldown and the
// operator trail see it.
func (a *App) recordRejection(ctx context.Context, deps *Dependencies, eval *domain.Evaluation, cause error) {
	a.logger.Warn("request abandoned before submission",
		"candidate", eval.Candidate.Key(), "error", cause)
	a.recordOutcome(ctx, deps, domain.ExecutionOutcome{
		ID:           uuid.NewString(),
		CandidateKey: eval.Candidate.Key(),
		Status:       domain.OutcomeNotSubmitted,
		Reason:       cause.Error(),
		ResolvedAt:   time.Now(),
	})
}

func (a *App) recordOutcome(ctx context.Context, deps *Dependencies, outcome domain.ExecutionOutcome) {
	deps.Engine.ReportOutcome(outcome)
	deps.Notifier.NotifyOutcome(ctx, outcome)
	if deps.Outcomes != nil {
		if err := deps.Outcomes.Record(ctx, outcome); err != nil {
			a.logger.Error("journaling outcome failed",
				"outcome_id", outcome.ID, "error", err)
		}
	}
}
