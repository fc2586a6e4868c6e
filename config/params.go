package config

// Parameters holds the chain-lifetime-immutable protocol parameters named
// in the genesis configuration: slot timing, epoch structure, the active
// slot coefficient for the VRF lottery, size/fee limits, and the block
// reward schedule. Unlike Genesis (which also carries allocations),
// Parameters is the pure numeric contract every
// node must agree on bit-for-bit.
type Parameters struct {
	SlotDurationMS        uint64
	EpochSlots            uint64
	ActiveSlotCoefficient float64
	MaxBlockBodySize      uint64
	MaxTxSize             uint64
	FeePerByte            uint64

	// RewardSchedule returns the coinbase subsidy (excluding fees) for a
	// block at the given height. Not serialized; derived from genesis at
	// startup (see ConstantReward).
	RewardSchedule func(height uint64) uint64
}

// ConstantReward returns a RewardSchedule that pays a fixed subsidy at
// every height, per the resolved reward-schedule question (no halving).
func ConstantReward(amount uint64) func(uint64) uint64 {
	return func(uint64) uint64 { return amount }
}

// ParametersFromGenesis derives runtime Parameters from a Genesis config.
func ParametersFromGenesis(gen *Genesis) Parameters {
	return Parameters{
		SlotDurationMS:        uint64(gen.Protocol.Consensus.BlockTime) * 1000,
		EpochSlots:            DefaultEpochSlots,
		ActiveSlotCoefficient: DefaultActiveSlotCoefficient,
		MaxBlockBodySize:      MaxBlockSize,
		MaxTxSize:             DefaultMaxTxSize,
		FeePerByte:            gen.Protocol.Consensus.MinFeeRate,
		RewardSchedule:        ConstantReward(gen.Protocol.Consensus.BlockReward),
	}
}

// Defaults for parameters not yet surfaced as genesis fields.
const (
	DefaultEpochSlots            = 4320 // ~1 epoch per 6h at 5s slots.
	DefaultActiveSlotCoefficient = 0.05
	DefaultMaxTxSize             = 64 * 1024
)
