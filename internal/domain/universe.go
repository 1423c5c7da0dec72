package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Universe is the immutable set of tokens and venues the bot trades,
// resolved once from configuration at startup and shared by reference.
type Universe struct {
	tokens    []Token
	bySymbol  map[string]int
	byAddress map[common.Address]int

	venues []Venue
	byName map[string]int

	baseTokens []common.Address
}

// NewUniverse builds a Universe from resolved tokens and venues. baseSymbols
// names the funding tokens cycles are rooted at.
func NewUniverse(tokens []Token, venues []Venue, baseSymbols []string) (*Universe, error) {
	u := &Universe{
		tokens:    tokens,
		bySymbol:  make(map[string]int, len(tokens)),
		byAddress: make(map[common.Address]int, len(tokens)),
		venues:    venues,
		byName:    make(map[string]int, len(venues)),
	}
	for i, t := range tokens {
		if _, dup := u.bySymbol[t.Symbol]; dup {
			return nil, fmt.Errorf("universe: duplicate token symbol %q", t.Symbol)
		}
		u.bySymbol[t.Symbol] = i
		u.byAddress[t.Address] = i
	}
	for i, v := range venues {
		if _, dup := u.byName[v.Name]; dup {
			return nil, fmt.Errorf("universe: duplicate venue %q", v.Name)
		}
		u.byName[v.Name] = i
	}
	for _, sym := range baseSymbols {
		i, ok := u.bySymbol[sym]
		if !ok {
			return nil, fmt.Errorf("universe: base token %q not in token list", sym)
		}
		u.baseTokens = append(u.baseTokens, u.tokens[i].Address)
	}
	if len(u.baseTokens) == 0 {
		return nil, fmt.Errorf("universe: no base tokens")
	}
	return u, nil
}

// Tokens returns all tokens.
func (u *Universe) Tokens() []Token { return u.tokens }

// Venues returns all venues, enabled or not.
func (u *Universe) Venues() []Venue { return u.venues }

// BaseTokens returns the funding-token addresses.
func (u *Universe) BaseTokens() []common.Address { return u.baseTokens }

// TokenByAddress resolves a token by address.
func (u *Universe) TokenByAddress(a common.Address) (Token, bool) {
	i, ok := u.byAddress[a]
	if !ok {
		return Token{}, false
	}
	return u.tokens[i], true
}

// TokenBySymbol resolves a token by symbol.
func (u *Universe) TokenBySymbol(s string) (Token, bool) {
	i, ok := u.bySymbol[s]
	if !ok {
		return Token{}, false
	}
	return u.tokens[i], true
}

// VenueByName resolves a venue by name.
func (u *Universe) VenueByName(n string) (Venue, bool) {
	i, ok := u.byName[n]
	if !ok {
		return Venue{}, false
	}
	return u.venues[i], true
}

// EnabledVenues returns only the venues enabled in configuration.
func (u *Universe) EnabledVenues() []Venue {
	out := make([]Venue, 0, len(u.venues))
	for _, v := range u.venues {
		if v.Enabled {
			out = append(out, v)
		}
	}
	return out
}
