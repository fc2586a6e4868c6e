// Package utxo manages the UTXO set.
package utxo

import "github.com/klingnet-labs/klingnet-node/pkg/types"

// UTXO represents an unspent transaction output.
type UTXO struct {
	TxID      types.Hash    `json:"tx_id"`
	Index     uint32        `json:"index"`
	Amount    uint64        `json:"amount"`
	Recipient types.Address `json:"recipient"`
	Height    uint64        `json:"height"`
	Coinbase  bool          `json:"coinbase"`
}

// Outpoint returns the outpoint this UTXO is addressed by.
func (u *UTXO) Outpoint() types.Outpoint {
	return types.Outpoint{TxID: u.TxID, Index: u.Index}
}

// Set is the interface for UTXO storage.
type Set interface {
	Get(outpoint types.Outpoint) (*UTXO, error)
	Put(utxo *UTXO) error
	Delete(outpoint types.Outpoint) error
	Has(outpoint types.Outpoint) (bool, error)
}
