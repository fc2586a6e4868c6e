package chain

import (
	"github.com/klingnet-labs/klingnet-node/internal/utxo"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// UndoTransaction records, for one transaction in an applied block, the
// UTXOs its inputs consumed — enough information to recreate them on undo.
type UndoTransaction struct {
	TxID     types.Hash  `json:"tx_id"`
	Consumed []utxo.UTXO `json:"consumed"`
}

// UndoBlock is the journal entry written alongside an applied block. It
// lets undo_block restore every UTXO the block's transactions consumed
// and delete every UTXO the block's transactions created.
type UndoBlock struct {
	Height      uint64            `json:"height"`
	BlockHash   types.Hash        `json:"block_hash"`
	Entries     []UndoTransaction `json:"entries"`
	BlockReward uint64            `json:"block_reward"`
}
