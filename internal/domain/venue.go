package domain

import "github.com/ethereum/go-ethereum/common"

// PricingModel identifies how a venue quotes swaps. The two models are
// dispatched exhaustively wherever a hop is priced or executed; an unknown
// model is rejected at config validation, not at trade time.
type PricingModel uint8

const (
	// ConstantProduct is the x*y=k model with a proportional fee
	// (Uniswap V2 and its forks).
	ConstantProduct PricingModel = iota
	// StableSwap quotes via the venue's own best-rate oracle
	// (Curve-style pools).
	StableSwap
)

// String returns the config-file spelling of the model.
func (m PricingModel) String() string {
	switch m {
	case ConstantProduct:
		return "constant_product"
	case StableSwap:
		return "stable_swap"
	}
	return "unknown"
}

// ParsePricingModel maps a config string to a PricingModel.
func ParsePricingModel(s string) (PricingModel, bool) {
	switch s {
	case "constant_product":
		return ConstantProduct, true
	case "stable_swap":
		return StableSwap, true
	}
	return 0, false
}

// Venue is one AMM protocol instance. Venues are enabled or disabled as a
// unit; a disabled venue contributes neither edges to the scanner nor price
// sources to the validator.
type Venue struct {
	Name    string
	Router  common.Address
	Factory common.Address
	Model   PricingModel
	FeeBps  int64
	Enabled bool
}
