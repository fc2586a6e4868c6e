// Package forger assembles, seals, and submits new blocks each time this
// node wins the per-slot VRF lottery.
package forger

import (
	"context"
	"fmt"
	"time"

	"github.com/klingnet-labs/klingnet-node/config"
	"github.com/klingnet-labs/klingnet-node/internal/consensus"
	"github.com/klingnet-labs/klingnet-node/internal/validator"
	"github.com/klingnet-labs/klingnet-node/pkg/block"
	"github.com/klingnet-labs/klingnet-node/pkg/tx"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// ChainView is the slice of the chain engine the forger needs: reading the
// tip to build a successor against, and applying the block it assembles.
type ChainView interface {
	Height() uint64
	TipHash() types.Hash
	ApplyBlock(blk *block.Block) error
}

// MempoolSelector selects pending transactions for inclusion and reports
// their admission-time fee.
type MempoolSelector interface {
	SelectForBlock(maxBodyBytes uint64) []*tx.Transaction
	GetFee(txHash types.Hash) uint64
}

// Broadcaster publishes a freshly forged block to the network.
type Broadcaster interface {
	BroadcastBlock(blk *block.Block)
}

// coinbaseSizeReserve is bytes withheld from the mempool-selection budget
// to leave room for the coinbase transaction itself once prepended.
const coinbaseSizeReserve = 512

// Forger holds one node's forging identity (VRF keypair, payout address)
// and assembles a block whenever TryForge wins a slot's lottery.
type Forger struct {
	chain       ChainView
	pool        MempoolSelector
	lottery     *consensus.Lottery
	stake       validator.StakeLedger
	broadcaster Broadcaster
	tracker     *consensus.ForgerTracker

	vrfSK, vrfPK [consensus.VRFPubKeySize]byte
	forgerAddr   types.Address
	epochAnchor  [32]byte
	params       config.Parameters
}

// New creates a forger for the given identity and stake view. tracker and
// broadcaster may be nil.
func New(chain ChainView, pool MempoolSelector, lottery *consensus.Lottery, stake validator.StakeLedger,
	broadcaster Broadcaster, tracker *consensus.ForgerTracker,
	vrfSK, vrfPK [consensus.VRFPubKeySize]byte, forgerAddr types.Address,
	epochAnchor [32]byte, params config.Parameters) *Forger {
	return &Forger{
		chain:       chain,
		pool:        pool,
		lottery:     lottery,
		stake:       stake,
		broadcaster: broadcaster,
		tracker:     tracker,
		vrfSK:       vrfSK,
		vrfPK:       vrfPK,
		forgerAddr:  forgerAddr,
		epochAnchor: epochAnchor,
		params:      params,
	}
}

// TryForge runs a single lottery draw for slot and, on a win, assembles,
// applies, and broadcasts a block built from the chain's current tip and
// mempool contents. Returns (nil, nil) when the slot is lost.
func (f *Forger) TryForge(slot uint64) (*block.Block, error) {
	myStake := f.stake.StakeOf(f.forgerAddr)
	totalStake := f.stake.TotalStake()

	value, proof, won, err := f.lottery.Run(f.vrfSK, slot, f.epochAnchor, myStake, totalStake, f.params.ActiveSlotCoefficient)
	if err != nil {
		return nil, fmt.Errorf("lottery draw: %w", err)
	}
	if !won {
		return nil, nil
	}

	blk := f.assembleBlock(slot, value, proof)
	if err := f.chain.ApplyBlock(blk); err != nil {
		return nil, fmt.Errorf("apply forged block: %w", err)
	}

	if f.tracker != nil {
		f.tracker.RecordForgedBlock(f.vrfPK[:], slot)
	}
	if f.broadcaster != nil {
		f.broadcaster.BroadcastBlock(blk)
	}
	return blk, nil
}

// assembleBlock snapshots the tip and mempool and builds a sealed
// successor block: transactions are selected in mempool insertion (FIFO)
// order up to the body-size budget, and the coinbase pays the configured
// reward for the new height plus the sum of included transactions' fees.
func (f *Forger) assembleBlock(slot uint64, vrfValue [consensus.VRFValueSize]byte, vrfProof [consensus.VRFProofSize]byte) *block.Block {
	budget := f.params.MaxBlockBodySize
	if budget > coinbaseSizeReserve {
		budget -= coinbaseSizeReserve
	}
	selected := f.pool.SelectForBlock(budget)
	if len(selected) > config.MaxBlockTxs-1 {
		selected = selected[:config.MaxBlockTxs-1]
	}

	var totalFees uint64
	for _, t := range selected {
		totalFees += f.pool.GetFee(t.ID())
	}

	height := f.chain.Height() + 1
	reward := f.params.RewardSchedule(height) + totalFees
	coinbase := tx.NewBuilder().AddOutput(reward, f.forgerAddr).Build()

	body := make([]*tx.Transaction, 0, 1+len(selected))
	body = append(body, coinbase)
	body = append(body, selected...)

	txIDs := make([]types.Hash, len(body))
	for i, t := range body {
		txIDs[i] = t.ID()
	}

	header := &block.Header{
		PrevHash:        f.chain.TipHash(),
		Height:          height,
		Slot:            slot,
		MerkleRoot:      block.ComputeMerkleRoot(txIDs),
		CoinbaseID:      coinbase.ID(),
		VRFValue:        vrfValue,
		VRFProof:        vrfProof,
		ForgerVRFPubKey: f.vrfPK,
		ForgerAddress:   f.forgerAddr,
	}
	return block.NewBlock(header, body)
}

// Run polls the slot clock and attempts one lottery draw per newly-entered
// slot, stopping cooperatively when ctx is cancelled. onResult, if
// non-nil, is called after every won-or-failed attempt (not on a plain
// slot loss, where TryForge returns (nil, nil)).
func (f *Forger) Run(ctx context.Context, clock *consensus.SlotClock, onResult func(blk *block.Block, err error)) {
	const pollInterval = 50 * time.Millisecond

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastSlot := clock.Slot()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slot := clock.Slot()
			if slot == lastSlot {
				continue
			}
			lastSlot = slot

			blk, err := f.TryForge(slot)
			if onResult != nil && (blk != nil || err != nil) {
				onResult(blk, err)
			}
		}
	}
}
