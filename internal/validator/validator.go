// Package validator implements the pure block-validity check: given a
// candidate block and a view onto chain state, decide Valid or
// Invalid(reason) without mutating anything.
package validator

import (
	"errors"
	"fmt"

	"github.com/klingnet-labs/klingnet-node/config"
	"github.com/klingnet-labs/klingnet-node/internal/consensus"
	"github.com/klingnet-labs/klingnet-node/pkg/block"
	"github.com/klingnet-labs/klingnet-node/pkg/tx"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// Reason classifies why a block was rejected.
type Reason string

const (
	WrongContext           Reason = "wrong_context"
	InvalidHash            Reason = "invalid_hash"
	InvalidMerkle          Reason = "invalid_merkle"
	InvalidHeight          Reason = "invalid_height"
	InvalidVRF             Reason = "invalid_vrf"
	InvalidCoinbase        Reason = "invalid_coinbase"
	DoubleSpendWithinBlock Reason = "double_spend_within_block"
	InvalidTransaction     Reason = "invalid_transaction"
	TooLarge               Reason = "too_large"
)

// ValidationError carries the Reason enum named in spec.md §4.2.
// InvalidTransaction additionally sets TxID and wraps the sub-reason.
type ValidationError struct {
	Reason Reason
	TxID   *types.Hash
	Err    error
}

func (e *ValidationError) Error() string {
	if e.TxID != nil {
		return fmt.Sprintf("%s: tx %s: %v", e.Reason, e.TxID, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return string(e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func reject(reason Reason, err error) *ValidationError {
	return &ValidationError{Reason: reason, Err: err}
}

func rejectTx(txID types.Hash, err error) *ValidationError {
	return &ValidationError{Reason: InvalidTransaction, TxID: &txID, Err: err}
}

// ChainView is the slice of chain state the validator needs: the tip to
// validate against, and a live UTXO lookup for contextual transaction
// checks. *chain.Chain satisfies this structurally.
type ChainView interface {
	Height() uint64
	TipHash() types.Hash
	UTXOProvider() tx.UTXOProvider
}

// StakeLedger resolves a forger's stake and the total active stake for a
// lottery verification. Stake is handled abstractly per spec.md — there is
// no UTXO-locking or script-based staking mechanism, so this interface is
// the seam a concrete stake-accounting component plugs into.
type StakeLedger interface {
	StakeOf(addr types.Address) uint64
	TotalStake() uint64
}

// Validate is the pure `validate(block, chain) -> Valid | Invalid(reason)`
// function from spec.md §4.2. claimedHash, when non-nil, is the hash a
// peer declared for this block in a gossip envelope; it is checked against
// the locally recomputed header hash (InvalidHash on mismatch). Pass nil
// when validating a block with no separately-declared hash (e.g. one just
// read back from local storage, or one this node forged itself).
func Validate(blk *block.Block, claimedHash *types.Hash, chain ChainView, stake StakeLedger, lottery *consensus.Lottery, epochAnchor [32]byte, params config.Parameters) error {
	if blk == nil || blk.Header == nil {
		return reject(InvalidHash, errors.New("nil block or header"))
	}

	if claimedHash != nil {
		if got := blk.Hash(); got != *claimedHash {
			return reject(InvalidHash, fmt.Errorf("declared %s, computed %s", claimedHash, got))
		}
	}

	if err := blk.Validate(); err != nil {
		return reject(mapStructuralReason(err), err)
	}

	if blk.Header.Height != chain.Height()+1 {
		return reject(InvalidHeight, fmt.Errorf("height %d does not follow tip height %d", blk.Header.Height, chain.Height()))
	}
	if blk.Header.PrevHash != chain.TipHash() {
		return reject(WrongContext, fmt.Errorf("prev_hash %s does not match tip %s", blk.Header.PrevHash, chain.TipHash()))
	}

	if lottery != nil {
		forgerStake := stake.StakeOf(blk.Header.ForgerAddress)
		totalStake := stake.TotalStake()
		err := lottery.Verify(blk.Header.ForgerVRFPubKey, blk.Header.Slot, epochAnchor,
			blk.Header.VRFValue, blk.Header.VRFProof, forgerStake, totalStake, params.ActiveSlotCoefficient)
		if err != nil {
			return reject(InvalidVRF, err)
		}
	}

	provider := chain.UTXOProvider()
	for _, t := range blk.Body {
		if t.IsCoinbase() {
			continue
		}
		if _, err := t.ValidateWithUTXOs(provider, params.FeePerByte); err != nil {
			return rejectTx(t.ID(), err)
		}
	}

	return nil
}

// mapStructuralReason classifies the structural errors block.Validate can
// return into the spec's Reason enum.
func mapStructuralReason(err error) Reason {
	switch {
	case errors.Is(err, block.ErrNilHeader):
		return InvalidHash
	case errors.Is(err, block.ErrNoTransactions), errors.Is(err, block.ErrNoCoinbase), errors.Is(err, block.ErrMultipleCoinbase):
		return InvalidCoinbase
	case errors.Is(err, block.ErrTooManyTxs), errors.Is(err, block.ErrBlockTooLarge):
		return TooLarge
	case errors.Is(err, block.ErrBadMerkleRoot):
		return InvalidMerkle
	case errors.Is(err, block.ErrDuplicateBlockInput):
		return DoubleSpendWithinBlock
	default:
		return InvalidTransaction
	}
}
