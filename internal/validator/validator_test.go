package validator

import (
	"errors"
	"testing"

	"github.com/klingnet-labs/klingnet-node/config"
	"github.com/klingnet-labs/klingnet-node/internal/consensus"
	"github.com/klingnet-labs/klingnet-node/pkg/block"
	"github.com/klingnet-labs/klingnet-node/pkg/crypto"
	"github.com/klingnet-labs/klingnet-node/pkg/tx"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// fakeChainView is a minimal ChainView for validator tests, standing in
// for *chain.Chain.
type fakeChainView struct {
	height   uint64
	tipHash  types.Hash
	provider tx.UTXOProvider
}

func (f *fakeChainView) Height() uint64               { return f.height }
func (f *fakeChainView) TipHash() types.Hash           { return f.tipHash }
func (f *fakeChainView) UTXOProvider() tx.UTXOProvider { return f.provider }

// emptyUTXOProvider has no UTXOs; sufficient for blocks with only a coinbase.
type emptyUTXOProvider struct{}

func (emptyUTXOProvider) GetUTXO(types.Outpoint) (uint64, types.Address, error) {
	return 0, types.Address{}, errors.New("not found")
}
func (emptyUTXOProvider) HasUTXO(types.Outpoint) bool { return false }

func testParams() config.Parameters {
	return config.Parameters{
		SlotDurationMS:        1000,
		MaxBlockBodySize:      config.MaxBlockSize,
		MaxTxSize:             64 * 1024,
		FeePerByte:            1,
		ActiveSlotCoefficient: 0.9999,
		RewardSchedule:        config.ConstantReward(5000),
	}
}

func signedCoinbase(reward uint64, recipient types.Address) *tx.Transaction {
	return tx.NewBuilder().AddOutput(reward, recipient).Build()
}

// sealedBlock builds a successor block at height 1 over tipHash whose
// header is otherwise well formed; callers pass the VRF fields in.
func sealedBlock(tipHash types.Hash, slot uint64, forgerAddr types.Address, vrfValue [consensus.VRFValueSize]byte, vrfProof [consensus.VRFProofSize]byte, vrfPK [consensus.VRFPubKeySize]byte) *block.Block {
	coinbase := signedCoinbase(5000, forgerAddr)
	header := &block.Header{
		PrevHash:        tipHash,
		Height:          1,
		Slot:            slot,
		MerkleRoot:      block.ComputeMerkleRoot([]types.Hash{coinbase.ID()}),
		CoinbaseID:      coinbase.ID(),
		VRFValue:        vrfValue,
		VRFProof:        vrfProof,
		ForgerVRFPubKey: vrfPK,
		ForgerAddress:   forgerAddr,
	}
	return block.NewBlock(header, []*tx.Transaction{coinbase})
}

func TestValidate_AcceptsWinningBlock(t *testing.T) {
	params := testParams()
	vrf := consensus.NewStubVRF()
	lottery := consensus.NewLottery(vrf)

	vrfSK, vrfPK, err := vrf.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	signingKey, _ := crypto.GenerateKey()
	forgerAddr := crypto.AddressFromPubKey(signingKey.PublicKey())

	const slot = uint64(1)
	value, proof, ok, err := lottery.Run(vrfSK, slot, consensus.ZeroEpochAnchor, 100, 100, params.ActiveSlotCoefficient)
	if err != nil || !ok {
		t.Fatalf("lottery.Run: ok=%v err=%v", ok, err)
	}

	tipHash := types.Hash{0xAA}
	blk := sealedBlock(tipHash, slot, forgerAddr, value, proof, vrfPK)

	chainView := &fakeChainView{height: 0, tipHash: tipHash, provider: emptyUTXOProvider{}}
	stake := NewStaticStakeLedger(map[types.Address]uint64{forgerAddr: 100})

	if err := Validate(blk, nil, chainView, stake, lottery, consensus.ZeroEpochAnchor, params); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_RejectsWrongHeight(t *testing.T) {
	params := testParams()
	vrf := consensus.NewStubVRF()
	lottery := consensus.NewLottery(vrf)
	vrfSK, vrfPK, _ := vrf.GenerateKey()

	signingKey, _ := crypto.GenerateKey()
	forgerAddr := crypto.AddressFromPubKey(signingKey.PublicKey())

	value, proof, ok, err := lottery.Run(vrfSK, 1, consensus.ZeroEpochAnchor, 100, 100, params.ActiveSlotCoefficient)
	if err != nil || !ok {
		t.Fatalf("lottery.Run: ok=%v err=%v", ok, err)
	}

	tipHash := types.Hash{0xAA}
	blk := sealedBlock(tipHash, 1, forgerAddr, value, proof, vrfPK)
	blk.Header.Height = 5 // wrong

	chainView := &fakeChainView{height: 0, tipHash: tipHash, provider: emptyUTXOProvider{}}
	stake := NewStaticStakeLedger(map[types.Address]uint64{forgerAddr: 100})

	err = Validate(blk, nil, chainView, stake, lottery, consensus.ZeroEpochAnchor, params)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Reason != InvalidHeight {
		t.Fatalf("Validate error = %v, want InvalidHeight", err)
	}
}

func TestValidate_RejectsWrongPrevHash(t *testing.T) {
	params := testParams()
	vrf := consensus.NewStubVRF()
	lottery := consensus.NewLottery(vrf)
	vrfSK, vrfPK, _ := vrf.GenerateKey()

	signingKey, _ := crypto.GenerateKey()
	forgerAddr := crypto.AddressFromPubKey(signingKey.PublicKey())

	value, proof, ok, _ := lottery.Run(vrfSK, 1, consensus.ZeroEpochAnchor, 100, 100, params.ActiveSlotCoefficient)
	if !ok {
		t.Fatal("expected a win")
	}

	blk := sealedBlock(types.Hash{0xAA}, 1, forgerAddr, value, proof, vrfPK)

	chainView := &fakeChainView{height: 0, tipHash: types.Hash{0xBB}, provider: emptyUTXOProvider{}}
	stake := NewStaticStakeLedger(map[types.Address]uint64{forgerAddr: 100})

	err := Validate(blk, nil, chainView, stake, lottery, consensus.ZeroEpochAnchor, params)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Reason != WrongContext {
		t.Fatalf("Validate error = %v, want WrongContext", err)
	}
}

func TestValidate_RejectsBadVRF(t *testing.T) {
	params := testParams()
	vrf := consensus.NewStubVRF()
	lottery := consensus.NewLottery(vrf)
	vrfSK, vrfPK, _ := vrf.GenerateKey()

	signingKey, _ := crypto.GenerateKey()
	forgerAddr := crypto.AddressFromPubKey(signingKey.PublicKey())

	value, proof, ok, _ := lottery.Run(vrfSK, 1, consensus.ZeroEpochAnchor, 100, 100, params.ActiveSlotCoefficient)
	if !ok {
		t.Fatal("expected a win")
	}
	value[0] ^= 0xFF // tamper

	tipHash := types.Hash{0xAA}
	blk := sealedBlock(tipHash, 1, forgerAddr, value, proof, vrfPK)

	chainView := &fakeChainView{height: 0, tipHash: tipHash, provider: emptyUTXOProvider{}}
	stake := NewStaticStakeLedger(map[types.Address]uint64{forgerAddr: 100})

	err := Validate(blk, nil, chainView, stake, lottery, consensus.ZeroEpochAnchor, params)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Reason != InvalidVRF {
		t.Fatalf("Validate error = %v, want InvalidVRF", err)
	}
}

func TestValidate_RejectsBelowThresholdStakeClaim(t *testing.T) {
	params := testParams()
	vrf := consensus.NewStubVRF()
	// Low coefficient: a win at f=0.9999 is very unlikely to also win at f=0.0001.
	lowCoefficientParams := params
	lowCoefficientParams.ActiveSlotCoefficient = 0.0001
	lottery := consensus.NewLottery(vrf)
	vrfSK, vrfPK, _ := vrf.GenerateKey()

	signingKey, _ := crypto.GenerateKey()
	forgerAddr := crypto.AddressFromPubKey(signingKey.PublicKey())

	value, proof, ok, _ := lottery.Run(vrfSK, 1, consensus.ZeroEpochAnchor, 100, 100, params.ActiveSlotCoefficient)
	if !ok {
		t.Fatal("expected a win at the high coefficient")
	}

	tipHash := types.Hash{0xAA}
	blk := sealedBlock(tipHash, 1, forgerAddr, value, proof, vrfPK)

	chainView := &fakeChainView{height: 0, tipHash: tipHash, provider: emptyUTXOProvider{}}
	// A tiny stake share makes the low-coefficient threshold unreachable.
	stake := NewStaticStakeLedger(map[types.Address]uint64{forgerAddr: 1})
	stake.SetStake(types.Address{0xFF}, 999_999)

	err := Validate(blk, nil, chainView, stake, lottery, consensus.ZeroEpochAnchor, lowCoefficientParams)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Reason != InvalidVRF {
		t.Fatalf("Validate error = %v, want InvalidVRF", err)
	}
}

func TestValidationError_Unwrap(t *testing.T) {
	base := errors.New("boom")
	err := reject(TooLarge, base)
	if !errors.Is(err, base) {
		t.Fatal("expected ValidationError to unwrap to its underlying error")
	}
}
