// Package tx defines transaction types and validation.
package tx

import (
	"encoding/hex"
	"encoding/json"

	"github.com/klingnet-labs/klingnet-node/pkg/crypto"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// Transaction represents a single value-transfer in the ledger.
type Transaction struct {
	Inputs    []Input  `json:"inputs"`
	Outputs   []Output `json:"outputs"`
	Timestamp uint64   `json:"timestamp"`
}

// Input references a UTXO being spent.
type Input struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature []byte         `json:"signature"`
	PubKey    []byte         `json:"pubkey"`
}

// inputJSON is the JSON representation of Input with hex-encoded byte fields.
type inputJSON struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature *string        `json:"signature"`
	PubKey    *string        `json:"pubkey"`
}

// MarshalJSON encodes the input with hex-encoded signature and pubkey.
func (in Input) MarshalJSON() ([]byte, error) {
	j := inputJSON{PrevOut: in.PrevOut}
	if in.Signature != nil {
		s := hex.EncodeToString(in.Signature)
		j.Signature = &s
	}
	if in.PubKey != nil {
		p := hex.EncodeToString(in.PubKey)
		j.PubKey = &p
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes an input with hex-encoded signature and pubkey.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PrevOut = j.PrevOut
	if j.Signature != nil {
		b, err := hex.DecodeString(*j.Signature)
		if err != nil {
			return err
		}
		in.Signature = b
	}
	if j.PubKey != nil {
		b, err := hex.DecodeString(*j.PubKey)
		if err != nil {
			return err
		}
		in.PubKey = b
	}
	return nil
}

// hash returns the BLAKE3 hash of an input's prevout, used only as a leaf
// for the transaction-id merkle tree (signature and pubkey are excluded so
// the id is stable while the transaction is being signed).
func (in Input) hash() types.Hash {
	var buf [36]byte
	copy(buf[:32], in.PrevOut.TxID[:])
	buf[32] = byte(in.PrevOut.Index)
	buf[33] = byte(in.PrevOut.Index >> 8)
	buf[34] = byte(in.PrevOut.Index >> 16)
	buf[35] = byte(in.PrevOut.Index >> 24)
	return crypto.Hash(buf[:])
}

// Output defines a new UTXO.
type Output struct {
	Amount    uint64        `json:"amount"`
	Recipient types.Address `json:"recipient"`
}

// hash returns the BLAKE3 hash of an output, used as a leaf for the
// transaction-id merkle tree.
func (out Output) hash() types.Hash {
	buf := make([]byte, 8+types.AddressSize)
	for i := 0; i < 8; i++ {
		buf[i] = byte(out.Amount >> (8 * i))
	}
	copy(buf[8:], out.Recipient[:])
	return crypto.Hash(buf)
}

// merkleRoot computes the same pairwise-hash merkle tree used for block
// bodies (duplicate the last leaf on an odd count), over an arbitrary list
// of leaf hashes. Kept local to this package (rather than imported from
// pkg/block) to avoid a pkg/block -> pkg/tx -> pkg/block import cycle.
func merkleRoot(leaves []types.Hash) types.Hash {
	if len(leaves) == 0 {
		return types.Hash{}
	}
	if len(leaves) == 1 {
		return leaves[0]
	}
	level := make([]types.Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = crypto.HashConcat(level[i], level[i+1])
		}
		level = next
	}
	return level[0]
}

// ID computes the transaction id: H(merkle(inputs) || merkle(outputs)).
func (t *Transaction) ID() types.Hash {
	inHashes := make([]types.Hash, len(t.Inputs))
	for i, in := range t.Inputs {
		inHashes[i] = in.hash()
	}
	outHashes := make([]types.Hash, len(t.Outputs))
	for i, out := range t.Outputs {
		outHashes[i] = out.hash()
	}
	inRoot := merkleRoot(inHashes)
	outRoot := merkleRoot(outHashes)
	return crypto.HashConcat(inRoot, outRoot)
}

// Hash is an alias for ID, kept for symmetry with block.Header.Hash.
func (t *Transaction) Hash() types.Hash {
	return t.ID()
}

// Size returns the approximate wire size in bytes, used for fee-rate and
// block-size accounting: input count + inputs(prevout 36 + sig 64 + pubkey 33)
// + output count + outputs(amount 8 + recipient 32) + timestamp.
func (t *Transaction) Size() int {
	size := 4 + 4 + 8
	for _, in := range t.Inputs {
		size += 36 + len(in.Signature) + len(in.PubKey)
	}
	size += len(t.Outputs) * (8 + types.AddressSize)
	return size
}

// IsCoinbase returns true if the transaction has no inputs: the
// inputless, single-output transaction minted by the forger each block.
func (t *Transaction) IsCoinbase() bool {
	return len(t.Inputs) == 0
}

// TotalOutputValue returns the sum of all output amounts.
// Returns an error if the sum overflows uint64.
func (t *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range t.Outputs {
		if total > ^uint64(0)-out.Amount {
			return 0, ErrOutputOverflow
		}
		total += out.Amount
	}
	return total, nil
}
