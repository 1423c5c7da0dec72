// Package contract models the deployed execution contract as a local state
// machine: authorization, the flash-loan callback, the hop walk, and the
// all-or-nothing settlement. The pipeline runs it against the current
// snapshot before submitting, so requests that would revert on-chain are
// rejected for free.
package contract

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger tracks token balances per account. Mutations during a flash loan
// happen on a fork; the fork is committed only if the whole unit succeeds,
// which is what makes execution atomic.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]map[common.Address]*big.Int // account -> token -> balance
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

// Balance returns the account's balance of token, zero if absent.
func (l *Ledger) Balance(account, token common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[account][token]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Credit adds amount to the account's balance of token.
func (l *Ledger) Credit(account, token common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(account, token, amount)
}

func (l *Ledger) credit(account, token common.Address, amount *big.Int) {
	tokens, ok := l.balances[account]
	if !ok {
		tokens = make(map[common.Address]*big.Int)
		l.balances[account] = tokens
	}
	if b, ok := tokens[token]; ok {
		b.Add(b, amount)
	} else {
		tokens[token] = new(big.Int).Set(amount)
	}
}

// Debit removes amount of token from the account, failing without effect
// when the balance is insufficient.
func (l *Ledger) Debit(account, token common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.balances[account][token]
	if !ok || b.Cmp(amount) < 0 {
		have := new(big.Int)
		if ok {
			have = b
		}
		return fmt.Errorf("contract: %s holds %s of %s, needs %s",
			account.Hex(), have, token.Hex(), amount)
	}
	b.Sub(b, amount)
	return nil
}

// Transfer moves amount of token between accounts, failing without effect
// when the source balance is insufficient.
func (l *Ledger) Transfer(from, to, token common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.balances[from][token]
	if !ok || b.Cmp(amount) < 0 {
		have := new(big.Int)
		if ok {
			have = b
		}
		return fmt.Errorf("contract: %s holds %s of %s, needs %s",
			from.Hex(), have, token.Hex(), amount)
	}
	b.Sub(b, amount)
	l.credit(to, token, amount)
	return nil
}

// Fork returns an independent copy of the ledger. Changes to the fork do not
// affect the parent until Commit.
func (l *Ledger) Fork() *Ledger {
	l.mu.Lock()
	defer l.mu.Unlock()
	fork := NewLedger()
	for acct, tokens := range l.balances {
		ft := make(map[common.Address]*big.Int, len(tokens))
		for tok, bal := range tokens {
			ft[tok] = new(big.Int).Set(bal)
		}
		fork.balances[acct] = ft
	}
	return fork
}

// Commit replaces the ledger's state with the fork's. The abandoned case is
// simply not calling Commit.
func (l *Ledger) Commit(fork *Ledger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = fork.balances
}
