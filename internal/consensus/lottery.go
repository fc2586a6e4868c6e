package consensus

import (
	"encoding/binary"
	"errors"
	"math"
	"math/big"
)

// ZeroEpochAnchor is the fixed epoch anchor η used by every lottery draw.
// A hook for per-epoch derivation (NextEpochAnchor) is left unwired below;
// today every slot's draw is seeded against this same all-zero anchor.
var ZeroEpochAnchor [32]byte

var (
	// ErrLotteryNoStake indicates a lottery draw was verified for a node
	// with zero total active stake, which can never win.
	ErrLotteryNoStake = errors.New("lottery: no active stake")
	// ErrLotteryBelowThreshold indicates a claimed win's VRF output did
	// not actually fall under its threshold.
	ErrLotteryBelowThreshold = errors.New("lottery: vrf output above winning threshold")
)

// NextEpochAnchor would derive the anchor for the epoch following one
// ending in lastBlockOfEpoch — e.g. from that block's hash or VRF output.
// Unwired: every caller uses ZeroEpochAnchor instead.
func NextEpochAnchor(lastBlockOfEpoch [32]byte) [32]byte {
	return ZeroEpochAnchor
}

// Lottery runs the per-slot VRF-based stake-weighted draw: a node wins
// slot s iff its VRF output for (η ‖ BE64(s)) falls under a threshold
// scaled by its share of total stake.
type Lottery struct {
	vrf VRF
}

// NewLottery creates a lottery over the given VRF implementation.
func NewLottery(vrf VRF) *Lottery {
	return &Lottery{vrf: vrf}
}

// DrawInput builds the VRF input for a slot: η ‖ BE64(slot).
func DrawInput(anchor [32]byte, slot uint64) []byte {
	buf := make([]byte, 0, 40)
	buf = append(buf, anchor[:]...)
	buf = binary.BigEndian.AppendUint64(buf, slot)
	return buf
}

// Run attempts to win the lottery for a slot. sk is the node's VRF secret
// key; stake/totalStake give its share of the active stake distribution;
// activeSlotCoefficient is the protocol-wide target fraction of active
// slots. Returns ok=false if the draw did not win.
func (l *Lottery) Run(sk [VRFPubKeySize]byte, slot uint64, anchor [32]byte, stake, totalStake uint64, activeSlotCoefficient float64) (value [VRFValueSize]byte, proof [VRFProofSize]byte, ok bool, err error) {
	value, proof, err = l.vrf.Prove(sk, DrawInput(anchor, slot))
	if err != nil {
		return value, proof, false, err
	}
	if totalStake == 0 {
		return value, proof, false, nil
	}
	stakeShare := float64(stake) / float64(totalStake)
	return value, proof, IsWin(value, stakeShare, activeSlotCoefficient), nil
}

// Verify checks a claimed lottery win: the VRF proof must verify against
// pk and the slot's input, and the output must fall under the threshold
// implied by the claimed stake share.
func (l *Lottery) Verify(pk [VRFPubKeySize]byte, slot uint64, anchor [32]byte, value [VRFValueSize]byte, proof [VRFProofSize]byte, stake, totalStake uint64, activeSlotCoefficient float64) error {
	if err := l.vrf.Verify(pk, DrawInput(anchor, slot), value, proof); err != nil {
		return err
	}
	if totalStake == 0 {
		return ErrLotteryNoStake
	}
	stakeShare := float64(stake) / float64(totalStake)
	if !IsWin(value, stakeShare, activeSlotCoefficient) {
		return ErrLotteryBelowThreshold
	}
	return nil
}

// IsWin reports whether a VRF output wins the lottery for a given stake
// share and active-slot coefficient: true iff the output, read as a
// 256-bit big-endian integer, is less than Threshold(stakeShare, f).
func IsWin(value [VRFValueSize]byte, stakeShare float64, activeSlotCoefficient float64) bool {
	threshold := Threshold(stakeShare, activeSlotCoefficient)
	n := new(big.Int).SetBytes(value[:])
	return n.Cmp(threshold) < 0
}

// maxUint256Plus1 is 2^256, used as the domain size for Threshold.
var maxUint256Plus1 = new(big.Int).Lsh(big.NewInt(1), 256)

// Threshold computes T = floor(2^256 * (1 - (1-f)^stakeShare)), the
// winning-probability cutoff for a single-slot VRF draw: f is the
// protocol's active-slot coefficient (clamped to (0,1) to avoid a
// degenerate all-win or all-lose threshold), stakeShare is a node's
// fraction of total active stake (0 for no stake, 1 for sole staker).
func Threshold(stakeShare float64, activeSlotCoefficient float64) *big.Int {
	f := activeSlotCoefficient
	if f < 0.0001 {
		f = 0.0001
	}
	if f > 0.9999 {
		f = 0.9999
	}
	if stakeShare <= 0 {
		return big.NewInt(0)
	}
	if stakeShare > 1 {
		stakeShare = 1
	}

	probability := 1.0 - math.Pow(1.0-f, stakeShare)

	threshold := new(big.Float).Mul(new(big.Float).SetInt(maxUint256Plus1), big.NewFloat(probability))
	result, _ := threshold.Int(nil)
	return result
}
