package chain

import (
	"fmt"

	"github.com/klingnet-labs/klingnet-node/config"
	"github.com/klingnet-labs/klingnet-node/pkg/block"
	"github.com/klingnet-labs/klingnet-node/pkg/crypto"
	"github.com/klingnet-labs/klingnet-node/pkg/tx"
)

// CreateGenesisBlock builds the fixed genesis block: height 0, an empty
// body, and a previous-hash derived from the genesis config's extra-entropy
// string rather than a real predecessor block. It has no coinbase
// transaction, so its header's CoinbaseID is the zero hash.
func CreateGenesisBlock(gen *config.Genesis) (*block.Block, error) {
	if gen == nil {
		return nil, fmt.Errorf("genesis config is nil")
	}

	prevHash := crypto.Hash([]byte(gen.ExtraData))

	header := &block.Header{
		PrevHash:   prevHash,
		Height:     0,
		Slot:       0,
		MerkleRoot: block.ComputeMerkleRoot(nil),
	}

	return block.NewBlock(header, []*tx.Transaction{}), nil
}
