// Package mempool holds unconfirmed transactions awaiting block inclusion.
package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klingnet-labs/klingnet-node/pkg/tx"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// Mempool errors.
var (
	ErrAlreadyExists = errors.New("transaction already in mempool")
	ErrConflict      = errors.New("transaction conflicts with existing mempool entry")
	ErrPoolFull      = errors.New("mempool is full")
	ErrValidation    = errors.New("transaction failed validation")
)

// entry wraps a transaction with its computed fee.
type entry struct {
	tx     *tx.Transaction
	txHash types.Hash
	fee    uint64
}

// Validator is the chain-side admission check a transaction must pass
// before entering the pool — satisfied by *chain.Chain's AddToMempool.
type Validator interface {
	AddToMempool(t *tx.Transaction) (uint64, error)
}

// Pool holds unconfirmed transactions, capped at a capacity derived from
// max_mempool_mb / max_tx_size. Full means reject: the pool never evicts to
// make room for an incoming transaction.
type Pool struct {
	mu sync.RWMutex

	txs    map[types.Hash]*entry         // txHash -> entry
	order  []types.Hash                  // insertion order, for FIFO selection
	spends map[types.Outpoint]types.Hash // outpoint -> txHash (conflict index)

	capacity  int
	policy    *Policy
	validator Validator
}

// Capacity computes the mempool's bounded entry count:
// max_mempool_mb * 2^20 / max_tx_size.
func Capacity(maxMempoolMB uint64, maxTxSize uint64) int {
	if maxTxSize == 0 {
		return 0
	}
	return int((maxMempoolMB << 20) / maxTxSize)
}

// New creates a mempool bounded at capacity entries, validating admissions
// against validator and policy.
func New(validator Validator, policy *Policy, capacity int) *Pool {
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool{
		txs:       make(map[types.Hash]*entry),
		spends:    make(map[types.Outpoint]types.Hash),
		capacity:  capacity,
		policy:    policy,
		validator: validator,
	}
}

// Add validates and admits a transaction. Returns the computed fee.
// Rejects duplicates, conflicting spends, and anything that doesn't pass
// policy + chain validation. Rejects (does not evict) when the pool is full.
func (p *Pool) Add(transaction *tx.Transaction) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	txHash := transaction.ID()

	if _, exists := p.txs[txHash]; exists {
		return 0, ErrAlreadyExists
	}

	for _, in := range transaction.Inputs {
		if conflictHash, exists := p.spends[in.PrevOut]; exists {
			return 0, fmt.Errorf("%w: input %s already spent by %s", ErrConflict, in.PrevOut, conflictHash)
		}
	}

	if p.policy != nil {
		if err := p.policy.Check(transaction); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	fee, err := p.validator.AddToMempool(transaction)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if len(p.txs) >= p.capacity {
		return 0, ErrPoolFull
	}

	e := &entry{tx: transaction, txHash: txHash, fee: fee}
	p.txs[txHash] = e
	p.order = append(p.order, txHash)
	for _, in := range transaction.Inputs {
		p.spends[in.PrevOut] = txHash
	}

	return fee, nil
}

// Remove removes a transaction from the pool by id, if present.
func (p *Pool) Remove(txHash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(txHash)
}

// RemoveAll removes every listed transaction id. Satisfies
// chain.MempoolRemover so the chain engine can evict applied transactions
// from the pool without this package importing internal/chain.
func (p *Pool) RemoveAll(txids []types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range txids {
		p.removeLocked(id)
	}
}

func (p *Pool) removeLocked(txHash types.Hash) {
	e, exists := p.txs[txHash]
	if !exists {
		return
	}
	for _, in := range e.tx.Inputs {
		delete(p.spends, in.PrevOut)
	}
	delete(p.txs, txHash)
	for i, h := range p.order {
		if h == txHash {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Has reports whether a transaction is currently in the pool.
func (p *Pool) Has(txHash types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.txs[txHash]
	return exists
}

// Get retrieves a transaction by id, or nil if absent.
func (p *Pool) Get(txHash types.Hash) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[txHash]
	if !exists {
		return nil
	}
	return e.tx
}

// GetFee returns the admission-time fee for a pooled transaction (0 if absent).
func (p *Pool) GetFee(txHash types.Hash) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[txHash]
	if !exists {
		return 0
	}
	return e.fee
}

// Count returns the number of pooled transactions.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// Hashes returns every pooled transaction id, in insertion order.
func (p *Pool) Hashes() []types.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]types.Hash, len(p.order))
	copy(out, p.order)
	return out
}

// SelectForBlock returns pooled transactions in insertion (FIFO) order,
// stopping once their cumulative size would exceed maxBodyBytes.
func (p *Pool) SelectForBlock(maxBodyBytes uint64) []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var result []*tx.Transaction
	var size uint64
	for _, h := range p.order {
		e := p.txs[h]
		txSize := uint64(e.tx.Size())
		if size+txSize > maxBodyBytes {
			break
		}
		result = append(result, e.tx)
		size += txSize
	}
	return result
}
