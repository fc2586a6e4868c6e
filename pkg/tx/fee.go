package tx

// EstimateTxFee returns the minimum fee for a transaction with the given
// number of inputs and outputs at the given fee rate (base units per byte),
// using the Size() layout: overhead + inputs(36 prevout, signature/pubkey
// assumed 64+33 bytes once signed) + outputs(8 amount + 32 recipient).
func EstimateTxFee(numInputs, numOutputs int, feeRate uint64) uint64 {
	const overhead = 4 + 4 + 8
	const perInput = 36 + 64 + 33
	const perOutput = 8 + 32

	size := overhead + perInput*numInputs + perOutput*numOutputs
	return uint64(size) * feeRate
}

// RequiredFee returns the exact minimum fee for a built transaction
// at the given fee rate (base units per byte of Size()).
func RequiredFee(t *Transaction, feeRate uint64) uint64 {
	return uint64(t.Size()) * feeRate
}
