package tx

import (
	"errors"
	"fmt"

	"github.com/klingnet-labs/klingnet-node/config"
	"github.com/klingnet-labs/klingnet-node/pkg/crypto"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// Validation errors.
var (
	ErrNoOutputs      = errors.New("transaction has no outputs")
	ErrDuplicateInput = errors.New("duplicate input")
	ErrOutputOverflow = errors.New("output values overflow")
	ErrZeroOutput     = errors.New("output amount is zero")
	ErrMissingPubKey  = errors.New("input missing public key")
	ErrMissingSig     = errors.New("input missing signature")
	ErrInvalidSig     = errors.New("invalid signature")
	ErrTooManyInputs  = errors.New("too many inputs")
	ErrTooManyOutputs = errors.New("too many outputs")
)

// Validate checks transaction structure and basic, context-free rules: the
// "Heuristic" validation tier (size bounds, signature well-formedness,
// duplicate-input detection). It does NOT check UTXO existence or economic
// balance — that requires the UTXO set (see ValidateWithUTXOs).
func (t *Transaction) Validate() error {
	if len(t.Outputs) == 0 {
		return ErrNoOutputs
	}
	if len(t.Inputs) > config.MaxTxInputs {
		return fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(t.Inputs), config.MaxTxInputs)
	}
	if len(t.Outputs) > config.MaxTxOutputs {
		return fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, len(t.Outputs), config.MaxTxOutputs)
	}

	// Inputs must be unique by outpoint (coinbase has none, so this is a no-op there).
	seen := make(map[types.Outpoint]bool, len(t.Inputs))
	for i, in := range t.Inputs {
		if seen[in.PrevOut] {
			return fmt.Errorf("input %d: %w", i, ErrDuplicateInput)
		}
		seen[in.PrevOut] = true
	}

	// Every non-coinbase input must carry a public key and signature.
	for i, in := range t.Inputs {
		if len(in.PubKey) == 0 {
			return fmt.Errorf("input %d: %w", i, ErrMissingPubKey)
		}
		if len(in.Signature) == 0 {
			return fmt.Errorf("input %d: %w", i, ErrMissingSig)
		}
	}

	var totalOutput uint64
	for i, out := range t.Outputs {
		if out.Amount == 0 && !t.IsCoinbase() {
			return fmt.Errorf("output %d: %w", i, ErrZeroOutput)
		}
		if totalOutput > ^uint64(0)-out.Amount {
			return fmt.Errorf("output %d: %w", i, ErrOutputOverflow)
		}
		totalOutput += out.Amount
	}

	return nil
}

// VerifySignatures checks that each input's signature opens to this
// transaction's id under its declared public key. Coinbase transactions
// (no inputs) trivially pass.
func (t *Transaction) VerifySignatures() error {
	id := t.ID()
	for i, in := range t.Inputs {
		if !crypto.VerifySignature(id[:], in.Signature, in.PubKey) {
			return fmt.Errorf("input %d: %w", i, ErrInvalidSig)
		}
	}
	return nil
}
