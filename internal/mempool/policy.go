package mempool

import (
	"fmt"

	"github.com/klingnet-labs/klingnet-node/config"
	"github.com/klingnet-labs/klingnet-node/pkg/tx"
)

// Policy defines transaction acceptance rules applied before the heavier
// UTXO-aware validation tier — reject oversized transactions cheaply rather
// than paying for a signature check first.
type Policy struct {
	MaxTxSize int // Maximum transaction size in bytes, per Transaction.Size().
}

// DefaultPolicy returns a policy sized from protocol parameters.
func DefaultPolicy(params config.Parameters) *Policy {
	return &Policy{MaxTxSize: int(params.MaxTxSize)}
}

// Check validates a transaction against policy rules. Separate from
// consensus validation: policy can vary per node, consensus cannot.
func (p *Policy) Check(transaction *tx.Transaction) error {
	size := transaction.Size()
	if p.MaxTxSize > 0 && size > p.MaxTxSize {
		return fmt.Errorf("transaction too large: %d bytes, max %d", size, p.MaxTxSize)
	}
	if len(transaction.Inputs) > config.MaxTxInputs {
		return fmt.Errorf("too many inputs: %d, max %d", len(transaction.Inputs), config.MaxTxInputs)
	}
	if len(transaction.Outputs) > config.MaxTxOutputs {
		return fmt.Errorf("too many outputs: %d, max %d", len(transaction.Outputs), config.MaxTxOutputs)
	}
	return nil
}
