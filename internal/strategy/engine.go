package strategy

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/flashpath/arbbot/internal/domain"
	"github.com/flashpath/arbbot/internal/poolcache"
)

// State describes what the engine is doing right now. Transitions are
// Idle -> Evaluating -> (Selected | NoOpportunity) -> Idle; the terminal
// value of each cycle stays visible until the next cycle begins.
type State uint32

const (
	StateIdle State = iota
	StateEvaluating
	StateSelected
	StateNoOpportunity
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEvaluating:
		return "evaluating"
	case StateSelected:
		return "selected"
	case StateNoOpportunity:
		return "no_opportunity"
	}
	return fmt.Sprintf("state(%d)", uint32(s))
}

// Params are the evaluation-cycle knobs, fixed at construction.
type Params struct {
	// MinProfit is the selection threshold in whole units of the funding
	// token, compared against slippage-adjusted net profit.
	MinProfit float64
	// Principal is the borrow size in whole units of the funding token.
	Principal float64
	// LoanFeeBps is the flash-loan fee in basis points.
	LoanFeeBps int64
	// SlippageBps is the tolerance folded into each evaluation's MinOutput.
	SlippageBps int64
	// EvaluationTimeout bounds a single candidate's pricing.
	EvaluationTimeout time.Duration
	// CycleDeadline bounds the whole evaluation cycle.
	CycleDeadline time.Duration
	// MaxConcurrent bounds the evaluation worker pool.
	MaxConcurrent int
}

// Engine prices candidates against snapshots and selects the single best
// viable evaluation per cycle.
type Engine struct {
	universe *domain.Universe
	params   Params
	cooldown Cooldowns
	logger   *slog.Logger

	state atomic.Uint32

	// evalGate, when non-nil, runs at the start of each evaluation worker.
	// Tests use it to observe pool occupancy.
	evalGate func()
}

func NewEngine(universe *domain.Universe, params Params, cooldown Cooldowns, logger *slog.Logger) *Engine {
	if params.MaxConcurrent <= 0 {
		params.MaxConcurrent = 1
	}
	return &Engine{
		universe: universe,
		params:   params,
		cooldown: cooldown,
		logger:   logger.With("component", "strategy"),
	}
}

// State returns the engine's current cycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(uint32(s))
}

// EvaluateAll prices every candidate in the sequence concurrently and
// returns the best evaluation whose slippage-adjusted net profit clears the
// threshold. Candidates in cooldown are skipped, single evaluations that
// exceed their timeout are discarded, and the whole cycle is abandoned at
// the cycle deadline with whatever has completed so far. It returns
// domain.ErrNoViableCandidate when nothing clears the threshold.
func (e *Engine) EvaluateAll(ctx context.Context, snap *poolcache.Snapshot, candidates iter.Seq[domain.Candidate]) (*domain.Evaluation, error) {
	e.setState(StateEvaluating)
	started := time.Now()

	cycleCtx, cancel := context.WithTimeout(ctx, e.params.CycleDeadline)
	defer cancel()

	var (
		mu        sync.Mutex
		best      *domain.Evaluation
		total     int
		skipped   int
		timedOut  int
		discarded int
	)

	g, gctx := errgroup.WithContext(cycleCtx)
	g.SetLimit(e.params.MaxConcurrent)

	for cand := range candidates {
		if gctx.Err() != nil {
			break
		}
		total++
		if e.cooldown != nil && e.cooldown.Blocked(cand.Key()) {
			skipped++
			continue
		}
		g.Go(func() error {
			if e.evalGate != nil {
				e.evalGate()
			}
			ev, err := e.evaluateOne(gctx, snap, cand)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				if best == nil || ev.Better(best) {
					best = ev
				}
			case errors.Is(err, domain.ErrEvaluationTimeout):
				timedOut++
			default:
				discarded++
				e.logger.Debug("candidate discarded",
					"candidate", cand.Key(), "error", err)
			}
			// Evaluation failures never abort the cycle.
			return nil
		})
	}
	_ = g.Wait()

	logAttrs := []any{
		"candidates", total,
		"cooldown_skipped", skipped,
		"timed_out", timedOut,
		"discarded", discarded,
		"elapsed", time.Since(started),
		"block", snap.Block(),
	}

	if best == nil || !e.viable(best) {
		e.setState(StateNoOpportunity)
		e.logger.Debug("no viable candidate", logAttrs...)
		return nil, domain.ErrNoViableCandidate
	}

	best.ID = uuid.NewString()
	best.EvaluatedAt = time.Now()
	e.setState(StateSelected)
	e.logger.Info("opportunity selected",
		append(logAttrs,
			"evaluation_id", best.ID,
			"candidate", best.Candidate.String(),
			"net_profit", best.NetProfit.String(),
			"net_after_slippage", best.NetProfitAfterSlippage().String(),
		)...)
	return best, nil
}

// Reset returns the engine to idle between cycles.
func (e *Engine) Reset() {
	e.setState(StateIdle)
}

func (e *Engine) evaluateOne(ctx context.Context, snap *poolcache.Snapshot, cand domain.Candidate) (*domain.Evaluation, error) {
	evalCtx, cancel := context.WithTimeout(ctx, e.params.EvaluationTimeout)
	defer cancel()

	type result struct {
		ev  *domain.Evaluation
		err error
	}
	done := make(chan result, 1)
	go func() {
		principal, err := e.principalFor(cand)
		if err != nil {
			done <- result{nil, err}
			return
		}
		ev, err := evaluate(e.universe, snap, cand, principal, e.params.LoanFeeBps, e.params.SlippageBps)
		done <- result{ev, err}
	}()

	select {
	case r := <-done:
		return r.ev, r.err
	case <-evalCtx.Done():
		return nil, fmt.Errorf("strategy: evaluating %s: %w", cand.Key(), domain.ErrEvaluationTimeout)
	}
}

// principalFor converts the configured borrow size into base units of the
// candidate's funding token.
func (e *Engine) principalFor(cand domain.Candidate) (*big.Int, error) {
	tok, ok := e.universe.TokenByAddress(cand.FundingToken())
	if !ok {
		return nil, fmt.Errorf("strategy: funding token %s not in universe", cand.FundingToken().Hex())
	}
	return tok.ToBaseUnits(e.params.Principal), nil
}

// viable applies the profit threshold in the funding token's base units.
func (e *Engine) viable(ev *domain.Evaluation) bool {
	tok, ok := e.universe.TokenByAddress(ev.Candidate.FundingToken())
	if !ok {
		return false
	}
	threshold := tok.ToBaseUnits(e.params.MinProfit)
	return ev.NetProfitAfterSlippage().Cmp(threshold) >= 0
}

// ReportOutcome feeds an execution result back into selection: committed
// executions clear the candidate's cooldown, everything else backs it off.
func (e *Engine) ReportOutcome(out domain.ExecutionOutcome) {
	if e.cooldown == nil {
		return
	}
	key := out.CandidateKey
	switch out.Status {
	case domain.OutcomeCommitted:
		e.cooldown.Clear(key)
	case domain.OutcomeReverted, domain.OutcomeTimedOut, domain.OutcomeNotSubmitted:
		e.cooldown.Fail(key)
		e.logger.Debug("candidate placed in cooldown",
			"candidate", key, "status", out.Status, "reason", out.Reason)
	}
}
