package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Candidate is one cyclic trade path: an ordered token path whose first and
// last entries are the same funding token, with one venue choice per hop.
// Candidates are produced fresh by each scan and never mutated or persisted.
type Candidate struct {
	TokenPath []common.Address
	VenuePath []string
}

// Hops returns the number of swaps in the candidate.
func (c Candidate) Hops() int {
	return len(c.VenuePath)
}

// FundingToken returns the token the cycle borrows and repays.
func (c Candidate) FundingToken() common.Address {
	return c.TokenPath[0]
}

// Validate enforces the structural invariants every candidate must satisfy:
// the venue path is exactly one shorter than the token path, the path is a
// cycle returning to its funding token, and no intermediate token repeats.
func (c Candidate) Validate() error {
	if len(c.TokenPath) < 2 {
		return fmt.Errorf("candidate: token path too short (%d)", len(c.TokenPath))
	}
	if len(c.VenuePath) != len(c.TokenPath)-1 {
		return fmt.Errorf("candidate: venue path length %d does not match %d hops",
			len(c.VenuePath), len(c.TokenPath)-1)
	}
	if c.TokenPath[0] != c.TokenPath[len(c.TokenPath)-1] {
		return fmt.Errorf("candidate: path does not return to funding token")
	}
	seen := make(map[common.Address]bool, len(c.TokenPath))
	for _, t := range c.TokenPath[:len(c.TokenPath)-1] {
		if seen[t] {
			return fmt.Errorf("candidate: token %s repeats in path", t.Hex())
		}
		seen[t] = true
	}
	return nil
}

// Key returns a stable identifier for the candidate, used for cooldown
// tracking and deduplication. Two candidates with the same path and venues
// share a key across scan cycles.
func (c Candidate) Key() string {
	var sb strings.Builder
	for i, t := range c.TokenPath {
		if i > 0 {
			sb.WriteByte('>')
		}
		sb.WriteString(t.Hex())
		if i < len(c.VenuePath) {
			sb.WriteByte('@')
			sb.WriteString(c.VenuePath[i])
		}
	}
	return sb.String()
}

// String renders the candidate for logs, e.g. "0xC02a..@uniswap>0xA0b8..@curve>0xC02a..".
func (c Candidate) String() string {
	return c.Key()
}
