package domain

import (
	"math/big"
	"time"
)

// Evaluation is the priced form of a candidate: expected output per hop, net
// profit over principal and loan fee, and the slippage-adjusted minimum
// output. It is owned by the evaluating task and published to the ranking
// structure only once complete.
type Evaluation struct {
	ID        string
	Candidate Candidate

	// Principal is the flash-loan amount in funding-token base units.
	Principal *big.Int
	// LoanFee is the lending protocol's fee on the principal.
	LoanFee *big.Int

	// HopOutputs[i] is the expected output of hop i.
	HopOutputs []*big.Int
	// Output is the expected final amount of the funding token.
	Output *big.Int
	// MinOutput is Output reduced by the configured slippage tolerance; the
	// execution contract will revert below it.
	MinOutput *big.Int

	// NetProfit = Output - Principal - LoanFee.
	NetProfit *big.Int

	EvaluatedAt time.Time
}

// NetProfitAfterSlippage is the worst-case profit the trade can realize
// without reverting: MinOutput - Principal - LoanFee. Selection and
// validation use this figure, never the optimistic NetProfit.
func (e *Evaluation) NetProfitAfterSlippage() *big.Int {
	p := new(big.Int).Sub(e.MinOutput, e.Principal)
	return p.Sub(p, e.LoanFee)
}

// SlippageDelta is the absolute amount the slippage tolerance concedes
// (Output - MinOutput). Used as the final ranking tie-breaker.
func (e *Evaluation) SlippageDelta() *big.Int {
	return new(big.Int).Sub(e.Output, e.MinOutput)
}

// Better reports whether e ranks ahead of other: highest net profit first,
// ties broken by fewest hops, then by smallest slippage delta.
func (e *Evaluation) Better(other *Evaluation) bool {
	if other == nil {
		return true
	}
	if c := e.NetProfit.Cmp(other.NetProfit); c != 0 {
		return c > 0
	}
	if e.Candidate.Hops() != other.Candidate.Hops() {
		return e.Candidate.Hops() < other.Candidate.Hops()
	}
	return e.SlippageDelta().Cmp(other.SlippageDelta()) < 0
}
