package tx

import (
	"errors"
	"fmt"
	"math"

	"github.com/klingnet-labs/klingnet-node/pkg/crypto"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// UTXO-aware validation errors — the "Contextual" validation tier.
var (
	ErrInputNotFound   = errors.New("input UTXO not found")
	ErrInsufficientFee = errors.New("insufficient fee")
	ErrInputOverflow   = errors.New("input values overflow")
	ErrRecipientMismatch = errors.New("pubkey does not derive the UTXO recipient address")
)

// UTXOProvider provides read-only access to the UTXO set for validation.
type UTXOProvider interface {
	GetUTXO(outpoint types.Outpoint) (amount uint64, recipient types.Address, err error)
	HasUTXO(outpoint types.Outpoint) bool
}

// ValidateWithUTXOs performs full validation of a transaction against the
// UTXO set: every input must reference an existing UTXO, the input's public
// key must derive the UTXO's recipient address, signatures must verify, and
// Σ inputs must equal Σ outputs + fee, with fee ≥ minFeeRate * size.
// Returns the fee (inputs - outputs). Coinbase transactions (no inputs)
// are not validated here — see the validator's coinbase handling.
func (t *Transaction) ValidateWithUTXOs(provider UTXOProvider, minFeeRate uint64) (uint64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}

	var totalInput uint64
	for i, in := range t.Inputs {
		if !provider.HasUTXO(in.PrevOut) {
			return 0, fmt.Errorf("input %d (%s): %w", i, in.PrevOut, ErrInputNotFound)
		}

		amount, recipient, err := provider.GetUTXO(in.PrevOut)
		if err != nil {
			return 0, fmt.Errorf("input %d: %w", i, err)
		}

		if err := verifyRecipient(in.PubKey, recipient); err != nil {
			return 0, fmt.Errorf("input %d: %w", i, err)
		}

		if totalInput > math.MaxUint64-amount {
			return 0, fmt.Errorf("input %d: %w", i, ErrInputOverflow)
		}
		totalInput += amount
	}

	if err := t.VerifySignatures(); err != nil {
		return 0, err
	}

	totalOutput, err := t.TotalOutputValue()
	if err != nil {
		return 0, fmt.Errorf("output overflow: %w", err)
	}
	if totalInput < totalOutput {
		return 0, fmt.Errorf("%w: inputs=%d outputs=%d", ErrInsufficientFee, totalInput, totalOutput)
	}

	fee := totalInput - totalOutput
	if floor := RequiredFee(t, minFeeRate); fee < floor {
		return 0, fmt.Errorf("%w: fee=%d floor=%d", ErrInsufficientFee, fee, floor)
	}

	return fee, nil
}

// verifyRecipient checks that a public key derives the expected address.
// Address = BLAKE3(compressed_pubkey).
func verifyRecipient(pubKey []byte, recipient types.Address) error {
	if len(pubKey) == 0 {
		return ErrMissingPubKey
	}
	derived := crypto.AddressFromPubKey(pubKey)
	if derived != recipient {
		return fmt.Errorf("%w: expected %s, got %s", ErrRecipientMismatch, recipient, derived)
	}
	return nil
}
