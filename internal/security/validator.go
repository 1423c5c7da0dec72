// Package security gates every selected evaluation before any funds can
// move. The transaction builder only accepts evaluations wrapped in an
// Approved, so a request cannot be built without passing validation.
package security

import (
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/flashpath/arbbot/internal/domain"
	"github.com/flashpath/arbbot/internal/poolcache"
	"github.com/flashpath/arbbot/internal/strategy"
)

// Thresholds are the validator's configuration, fixed at construction.
type Thresholds struct {
	// MinPriceSources is how many live venues must quote every pair on the
	// candidate's path.
	MinPriceSources int
	// MaxPriceDeviation is the largest tolerated pairwise relative deviation
	// between venue quotes for the same pair, as a fraction.
	MaxPriceDeviation float64
	// MaxExecutionSlippage is the largest tolerated implied slippage
	// (Output - MinOutput) / Output, as a fraction.
	MaxExecutionSlippage float64
	// StaleLookback is how old a pool entry may be and still count as a
	// live price source.
	StaleLookback time.Duration
}

// Approved wraps an evaluation that passed every check against a specific
// snapshot. Only this package can mint one.
type Approved struct {
	eval *domain.Evaluation
	snap *poolcache.Snapshot
}

// Evaluation returns the validated evaluation.
func (a Approved) Evaluation() *domain.Evaluation { return a.eval }

// Snapshot returns the pool snapshot the evaluation was validated against.
func (a Approved) Snapshot() *poolcache.Snapshot { return a.snap }

// Validator runs the ordered pre-submission checks.
type Validator struct {
	universe   *domain.Universe
	thresholds Thresholds
	logger     *slog.Logger
}

func NewValidator(universe *domain.Universe, thresholds Thresholds, logger *slog.Logger) *Validator {
	return &Validator{
		universe:   universe,
		thresholds: thresholds,
		logger:     logger.With("component", "security"),
	}
}

// Validate checks the evaluation against the snapshot it was priced on.
// Checks run in a fixed order and the first failure wins: price-source
// count, then cross-venue deviation, then implied slippage. The returned
// error is always a *domain.ValidationError on failure.
func (v *Validator) Validate(eval *domain.Evaluation, snap *poolcache.Snapshot) (Approved, error) {
	for i := 0; i < eval.Candidate.Hops(); i++ {
		pair := domain.NewPair(eval.Candidate.TokenPath[i], eval.Candidate.TokenPath[i+1])

		if err := v.checkSources(pair, snap); err != nil {
			v.reject(eval, err)
			return Approved{}, err
		}
		if err := v.checkDeviation(pair, snap); err != nil {
			v.reject(eval, err)
			return Approved{}, err
		}
	}
	if err := v.checkSlippage(eval); err != nil {
		v.reject(eval, err)
		return Approved{}, err
	}
	return Approved{eval: eval, snap: snap}, nil
}

func (v *Validator) reject(eval *domain.Evaluation, err error) {
	v.logger.Warn("evaluation rejected",
		"evaluation_id", eval.ID,
		"candidate", eval.Candidate.Key(),
		"error", err)
}

// checkSources counts live venues quoting the pair; degraded venues are
// excluded even when their last good entry is still in the snapshot.
func (v *Validator) checkSources(pair domain.Pair, snap *poolcache.Snapshot) error {
	sources := snap.PriceSources(pair, v.thresholds.StaleLookback)
	if sources < v.thresholds.MinPriceSources {
		return domain.NewValidationError(domain.ValidationInsufficientSources,
			"pair %s/%s has %d live price sources (need %d)",
			pair.Token0.Hex(), pair.Token1.Hex(), sources, v.thresholds.MinPriceSources)
	}
	return nil
}

func (v *Validator) checkDeviation(pair domain.Pair, snap *poolcache.Snapshot) error {
	quotes := make([]float64, 0, 4)
	for _, pool := range snap.PoolsForPair(pair) {
		if q, ok := strategy.UnitPrice(v.universe, pool, pair.Token0); ok {
			quotes = append(quotes, q)
		}
	}
	for i := 0; i < len(quotes); i++ {
		for j := i + 1; j < len(quotes); j++ {
			mid := (quotes[i] + quotes[j]) / 2
			if mid == 0 {
				continue
			}
			dev := math.Abs(quotes[i]-quotes[j]) / mid
			if dev > v.thresholds.MaxPriceDeviation {
				return domain.NewValidationError(domain.ValidationPriceDeviation,
					"pair %s/%s deviates %.4f across venues (max %.4f)",
					pair.Token0.Hex(), pair.Token1.Hex(), dev, v.thresholds.MaxPriceDeviation)
			}
		}
	}
	return nil
}

func (v *Validator) checkSlippage(eval *domain.Evaluation) error {
	if eval.Output.Sign() <= 0 {
		return domain.NewValidationError(domain.ValidationSlippage, "evaluation has no output")
	}
	delta := new(big.Float).SetInt(eval.SlippageDelta())
	out := new(big.Float).SetInt(eval.Output)
	implied, _ := new(big.Float).Quo(delta, out).Float64()
	if implied > v.thresholds.MaxExecutionSlippage {
		return domain.NewValidationError(domain.ValidationSlippage,
			"implied slippage %.4f exceeds maximum %.4f",
			implied, v.thresholds.MaxExecutionSlippage)
	}
	return nil
}
