package block

import (
	"errors"
	"fmt"

	"github.com/klingnet-labs/klingnet-node/config"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// Validation errors. These cover the structure-only ("does this block make
// internal sense") tier; consensus context (previous-hash, height, VRF,
// lottery threshold) is checked by the internal validator package against
// the chain tip, not here.
var (
	ErrNilHeader           = errors.New("block has nil header")
	ErrNoTransactions      = errors.New("block has no transactions")
	ErrBadMerkleRoot       = errors.New("merkle root mismatch")
	ErrNoCoinbase          = errors.New("first transaction must be coinbase")
	ErrTooManyTxs          = errors.New("too many transactions in block")
	ErrBlockTooLarge       = errors.New("block too large")
	ErrDuplicateBlockInput = errors.New("duplicate input across transactions in block")
	ErrMultipleCoinbase    = errors.New("multiple coinbase transactions in block")
)

// Validate checks block structure and internal consistency: merkle root
// correctness, exactly one leading coinbase, size bounds, and no UTXO
// double-spent across the block's transactions. Does NOT verify the VRF
// proof, the lottery threshold, or chain context — see the validator
// package for the full pure `validate(block, chain)` function.
func (b *Block) Validate() error {
	if b.Header == nil {
		return ErrNilHeader
	}

	if len(b.Body) == 0 {
		return ErrNoTransactions
	}

	if len(b.Body) > config.MaxBlockTxs {
		return fmt.Errorf("%w: %d txs, max %d", ErrTooManyTxs, len(b.Body), config.MaxBlockTxs)
	}

	// Check total block size (header signing bytes + all tx wire sizes).
	blockSize := len(b.Header.SigningBytes())
	for _, t := range b.Body {
		blockSize += t.Size()
	}
	if blockSize > config.MaxBlockSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrBlockTooLarge, blockSize, config.MaxBlockSize)
	}

	// Exactly one coinbase: the first transaction, and no others.
	if !b.Body[0].IsCoinbase() {
		return ErrNoCoinbase
	}
	for i, t := range b.Body[1:] {
		if t.IsCoinbase() {
			return fmt.Errorf("tx %d: %w", i+1, ErrMultipleCoinbase)
		}
	}

	// Verify merkle root over transaction ids.
	txIDs := make([]types.Hash, len(b.Body))
	for i, t := range b.Body {
		txIDs[i] = t.ID()
	}
	expectedRoot := ComputeMerkleRoot(txIDs)
	if b.Header.MerkleRoot != expectedRoot {
		return fmt.Errorf("%w: header=%s computed=%s", ErrBadMerkleRoot, b.Header.MerkleRoot, expectedRoot)
	}

	// Validate each transaction structurally.
	for i, t := range b.Body {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}

	// No two transactions in the block may spend the same UTXO.
	allInputs := make(map[types.Outpoint]int) // outpoint -> tx index
	for i, t := range b.Body {
		for _, in := range t.Inputs {
			if prevTx, exists := allInputs[in.PrevOut]; exists {
				return fmt.Errorf("tx %d: %w: outpoint %s also spent in tx %d",
					i, ErrDuplicateBlockInput, in.PrevOut, prevTx)
			}
			allInputs[in.PrevOut] = i
		}
	}

	return nil
}

// Hash returns the block header hash.
func (b *Block) Hash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	return b.Header.Hash()
}
