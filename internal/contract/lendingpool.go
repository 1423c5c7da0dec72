package contract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashpath/arbbot/internal/domain"
)

// Borrower is the flash-loan callback surface the lending pool invokes after
// transferring the principal. Implemented by the Executor.
type Borrower interface {
	Address() common.Address
	// OnLoan runs the borrower's logic against the forked ledger. Returning
	// an error abandons the fork, rolling back the whole unit.
	OnLoan(fork *Ledger, caller, initiator common.Address, asset common.Address, amount, fee *big.Int) error
}

// LendingPool issues flash loans with an all-or-nothing settlement: the
// principal plus fee must be pulled back from the borrower in the same unit
// or nothing happened at all.
type LendingPool struct {
	addr   common.Address
	feeBps int64
	ledger *Ledger
}

func NewLendingPool(addr common.Address, feeBps int64, ledger *Ledger) *LendingPool {
	return &LendingPool{addr: addr, feeBps: feeBps, ledger: ledger}
}

// Address returns the pool's contract address.
func (p *LendingPool) Address() common.Address { return p.addr }

// Fee returns the loan fee on the given principal.
func (p *LendingPool) Fee(principal *big.Int) *big.Int {
	fee := new(big.Int).Mul(principal, big.NewInt(p.feeBps))
	return fee.Div(fee, big.NewInt(10_000))
}

// FlashLoan forks the ledger, lends the principal, runs the borrower's
// callback, and pulls back principal plus fee. The fork is committed only
// when every step succeeds; any failure discards it, so a reverted loan
// leaves no trace beyond gas.
func (p *LendingPool) FlashLoan(borrower Borrower, initiator common.Address, asset common.Address, amount *big.Int) error {
	fork := p.ledger.Fork()

	if err := fork.Transfer(p.addr, borrower.Address(), asset, amount); err != nil {
		return domain.Revert(domain.RevertInsufficientRepayment,
			"pool cannot fund loan: %v", err)
	}

	fee := p.Fee(amount)
	if err := borrower.OnLoan(fork, p.addr, initiator, asset, amount, fee); err != nil {
		return err
	}

	owed := new(big.Int).Add(amount, fee)
	if err := fork.Transfer(borrower.Address(), p.addr, asset, owed); err != nil {
		return domain.Revert(domain.RevertInsufficientRepayment,
			"owed %s of %s: %v", owed, asset.Hex(), err)
	}

	p.ledger.Commit(fork)
	return nil
}
