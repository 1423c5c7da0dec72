// Package domain defines the shared data model for the arbitrage pipeline:
// tokens, venues, pool state, candidates, evaluations, execution requests and
// outcomes, and the error taxonomy used across all components.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Token describes an ERC-20 asset the bot trades. Tokens are loaded once from
// configuration and shared by reference; they are never mutated afterwards.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
}

// Unit returns 10^decimals, one whole unit of the token in base units.
func (t Token) Unit() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(t.Decimals)), nil)
}

// ToBaseUnits converts a human-readable amount to base units, truncating any
// precision beyond the token's decimals.
func (t Token) ToBaseUnits(amount float64) *big.Int {
	f := new(big.Float).SetFloat64(amount)
	f.Mul(f, new(big.Float).SetInt(t.Unit()))
	out, _ := f.Int(nil)
	return out
}

// FromBaseUnits converts base units to a float for logging and reporting.
// Not suitable for arithmetic on amounts.
func (t Token) FromBaseUnits(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	f.Quo(f, new(big.Float).SetInt(t.Unit()))
	out, _ := f.Float64()
	return out
}
