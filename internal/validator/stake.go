package validator

import (
	"sync"

	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// StaticStakeLedger is a simple, externally-populated StakeLedger. Stake is
// treated abstractly by spec.md — there is no staking transaction type or
// UTXO-locking mechanism defined — so this is a placeholder registry rather
// than a derivation from chain state; it is seeded at startup (typically
// from genesis allocations) and can be replaced wholesale by a concrete
// on-chain staking mechanism without touching the validator.
type StaticStakeLedger struct {
	mu    sync.RWMutex
	stake map[types.Address]uint64
	total uint64
}

// NewStaticStakeLedger creates a ledger from an initial address -> stake map.
func NewStaticStakeLedger(initial map[types.Address]uint64) *StaticStakeLedger {
	l := &StaticStakeLedger{stake: make(map[types.Address]uint64, len(initial))}
	for addr, amount := range initial {
		l.stake[addr] = amount
		l.total += amount
	}
	return l
}

// StakeOf returns addr's stake, or 0 if untracked.
func (l *StaticStakeLedger) StakeOf(addr types.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stake[addr]
}

// TotalStake returns the sum of all tracked stake.
func (l *StaticStakeLedger) TotalStake() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// SetStake overwrites addr's stake, adjusting the running total.
func (l *StaticStakeLedger) SetStake(addr types.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total -= l.stake[addr]
	l.stake[addr] = amount
	l.total += amount
}
