package tx

import (
	"fmt"

	"github.com/klingnet-labs/klingnet-node/pkg/crypto"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{tx: &Transaction{}}
}

// AddInput adds an input referencing a previous output.
func (b *Builder) AddInput(prevOut types.Outpoint) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, Input{PrevOut: prevOut})
	return b
}

// AddOutput adds an output paying amount to recipient.
func (b *Builder) AddOutput(amount uint64, recipient types.Address) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, Output{Amount: amount, Recipient: recipient})
	return b
}

// SetTimestamp sets the transaction's timestamp.
func (b *Builder) SetTimestamp(ts uint64) *Builder {
	b.tx.Timestamp = ts
	return b
}

// Sign signs all inputs with the provided private key.
// Each input gets the same signature (single-key spending).
func (b *Builder) Sign(key *crypto.PrivateKey) error {
	id := b.tx.ID()
	sig, err := key.Sign(id[:])
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	pubKey := key.PublicKey()
	for i := range b.tx.Inputs {
		b.tx.Inputs[i].Signature = sig
		b.tx.Inputs[i].PubKey = pubKey
	}
	return nil
}

// SignMulti signs each input with the key that owns its outpoint.
// outpointKey maps each input's outpoint to the private key that can spend it.
func (b *Builder) SignMulti(outpointKey map[types.Outpoint]*crypto.PrivateKey) error {
	id := b.tx.ID()

	type sigPub struct {
		sig    []byte
		pubKey []byte
	}
	cache := make(map[types.Outpoint]*sigPub)

	for i := range b.tx.Inputs {
		op := b.tx.Inputs[i].PrevOut
		key, ok := outpointKey[op]
		if !ok {
			return fmt.Errorf("no signer for input %d outpoint %s", i, op)
		}

		sp, cached := cache[op]
		if !cached {
			sig, err := key.Sign(id[:])
			if err != nil {
				return fmt.Errorf("sign input %d: %w", i, err)
			}
			sp = &sigPub{sig: sig, pubKey: key.PublicKey()}
			cache[op] = sp
		}
		b.tx.Inputs[i].Signature = sp.sig
		b.tx.Inputs[i].PubKey = sp.pubKey
	}
	return nil
}

// Build returns the constructed transaction.
// Does NOT validate — call tx.Validate() separately.
func (b *Builder) Build() *Transaction {
	return b.tx
}
