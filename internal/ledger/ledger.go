// Package ledger tracks confirmed balances derived from applied transactions.
package ledger

import (
	"sync"

	"github.com/pkg/errors"
)

// Balances is a concrete confirmed-balance table consumed by
// collaborators.Transactions.
type Balances struct {
	mu       sync.Mutex
	balances map[string]uint64
	height   uint64
}

// New builds an empty balance table.
func New() *Balances {
	return &Balances{balances: make(map[string]uint64)}
}

// Get returns the confirmed balance for addr.
func (l *Balances) Get(addr string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[addr]
}

// Credit adds amount to addr's confirmed balance (genesis/mint/reward paths).
func (l *Balances) Credit(addr string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] += amount
}

// Height returns the number of blocks applied so far.
func (l *Balances) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height
}

// ApplyConfirmedTx applies a confirmed tx: subtract amount from sender, add
// (amount - fee) to recipient. The fee is not credited to any account.
func (l *Balances) ApplyConfirmedTx(from, to string, amount, fee uint64) error {
	if from == "" || to == "" {
		return errors.New("from/to required")
	}
	if amount == 0 {
		return errors.New("amount must be > 0")
	}
	if fee > amount {
		return errors.New("fee must be <= amount")
	}

	receive := amount - fee

	l.mu.Lock()
	defer l.mu.Unlock()

	fromBal := l.balances[from]
	if fromBal < amount {
		return errors.New("insufficient confirmed balance")
	}

	l.balances[from] = fromBal - amount
	l.balances[to] += receive
	return nil
}

// AdvanceHeight records that a block has been applied.
func (l *Balances) AdvanceHeight() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.height++
}
