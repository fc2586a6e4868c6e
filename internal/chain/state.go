package chain

import "github.com/klingnet-labs/klingnet-node/pkg/types"

// State holds the current chain tip state, recovered from BlockStore
// metadata on startup.
type State struct {
	Height  uint64
	TipHash types.Hash
	Supply  uint64 // Sum of block rewards applied by this Chain; genesis allocations are not counted, and the value is not stored, so it starts at 0 when an existing chain is reopened.
}

// IsGenesis returns true if no blocks have been applied yet.
func (s *State) IsGenesis() bool {
	return s.Height == 0 && s.TipHash.IsZero()
}

// Metadata is the small JSON document persisted alongside the ordered
// key-value stores, rewritten on every apply_block/undo_block commit.
type Metadata struct {
	Length    uint64     `json:"length"`
	BestBlock types.Hash `json:"best_block"`
}
