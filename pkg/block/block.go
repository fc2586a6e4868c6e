// Package block defines block types and validation.
package block

import "github.com/klingnet-labs/klingnet-node/pkg/tx"

// Block represents a block in the chain: a header and its ordered body
// of transactions. The first transaction in Body is always the coinbase.
type Block struct {
	Header *Header           `json:"header"`
	Body   []*tx.Transaction `json:"body"`
}

// NewBlock creates a new block with the given header and transaction body.
func NewBlock(header *Header, body []*tx.Transaction) *Block {
	return &Block{
		Header: header,
		Body:   body,
	}
}

// Coinbase returns the block's coinbase transaction (the first entry of
// Body), or nil if the body is empty.
func (b *Block) Coinbase() *tx.Transaction {
	if len(b.Body) == 0 {
		return nil
	}
	return b.Body[0]
}
