package chain

import (
	"testing"

	"github.com/klingnet-labs/klingnet-node/config"
	"github.com/klingnet-labs/klingnet-node/internal/storage"
	"github.com/klingnet-labs/klingnet-node/internal/utxo"
	"github.com/klingnet-labs/klingnet-node/pkg/block"
	"github.com/klingnet-labs/klingnet-node/pkg/crypto"
	"github.com/klingnet-labs/klingnet-node/pkg/tx"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

func testParams() config.Parameters {
	return config.Parameters{
		SlotDurationMS:   1000,
		MaxBlockBodySize: config.MaxBlockSize,
		MaxTxSize:        64 * 1024,
		FeePerByte:       1,
		RewardSchedule:   config.ConstantReward(5000),
	}
}

func testGenesis() *config.Genesis {
	return &config.Genesis{ExtraData: "test genesis"}
}

// testChain builds a fresh chain past genesis, with no data directory so
// metadata lives only in memory for the duration of the test.
func testChain(t *testing.T) *Chain {
	t.Helper()
	db := storage.NewMemory()
	store := utxo.NewStore(db)
	c, err := New(db, "", store, testParams())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.InitFromGenesis(testGenesis()); err != nil {
		t.Fatalf("InitFromGenesis: %v", err)
	}
	return c
}

func signedCoinbase(reward uint64, recipient types.Address) *tx.Transaction {
	return tx.NewBuilder().AddOutput(reward, recipient).Build()
}

// buildBlock constructs and seals a valid successor block to tip containing
// the given non-coinbase transactions (a coinbase paying forgerAddr the
// configured reward is prepended automatically).
func buildBlock(tip *block.Block, height uint64, forgerAddr types.Address, reward uint64, txs ...*tx.Transaction) *block.Block {
	body := append([]*tx.Transaction{signedCoinbase(reward, forgerAddr)}, txs...)

	txIDs := make([]types.Hash, len(body))
	for i, t := range body {
		txIDs[i] = t.ID()
	}

	header := &block.Header{
		PrevHash:   tip.Hash(),
		Height:     height,
		Slot:       height,
		MerkleRoot: block.ComputeMerkleRoot(txIDs),
		CoinbaseID: body[0].ID(),
	}
	return block.NewBlock(header, body)
}

func TestInitFromGenesis(t *testing.T) {
	c := testChain(t)

	if got := c.Height(); got != 0 {
		t.Fatalf("Height() = %d, want 0", got)
	}

	gen, err := c.BlockByHeight(0)
	if err != nil {
		t.Fatalf("BlockByHeight(0): %v", err)
	}
	if len(gen.Body) != 0 {
		t.Fatalf("genesis body = %d txs, want 0", len(gen.Body))
	}
	if gen.Hash() != c.TipHash() {
		t.Fatalf("tip hash mismatch: genesis=%s tip=%s", gen.Hash(), c.TipHash())
	}
}

func TestInitFromGenesis_Twice(t *testing.T) {
	c := testChain(t)
	if err := c.InitFromGenesis(testGenesis()); err == nil {
		t.Fatal("expected error re-initializing an already-genesis chain")
	}
}

func TestApplyBlock_Coinbase(t *testing.T) {
	c := testChain(t)
	gen, _ := c.BlockByHeight(0)

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	forger := crypto.AddressFromPubKey(key.PublicKey())

	blk := buildBlock(gen, 1, forger, 5000)
	if err := c.ApplyBlock(blk); err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}

	if got := c.Height(); got != 1 {
		t.Fatalf("Height() = %d, want 1", got)
	}
	if got := c.TipHash(); got != blk.Hash() {
		t.Fatalf("TipHash() = %s, want %s", got, blk.Hash())
	}
	if got := c.Supply(); got != 5000 {
		t.Fatalf("Supply() = %d, want 5000", got)
	}

	bal, err := c.Balance(forger)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != 5000 {
		t.Fatalf("Balance(forger) = %d, want 5000", bal)
	}
}

func TestApplyBlock_WrongHeight(t *testing.T) {
	c := testChain(t)
	gen, _ := c.BlockByHeight(0)

	key, _ := crypto.GenerateKey()
	forger := crypto.AddressFromPubKey(key.PublicKey())

	blk := buildBlock(gen, 2, forger, 5000) // should be height 1
	if err := c.ApplyBlock(blk); err == nil {
		t.Fatal("expected error applying block at wrong height")
	}
}

func TestApplyBlock_WrongPrevHash(t *testing.T) {
	c := testChain(t)
	gen, _ := c.BlockByHeight(0)

	key, _ := crypto.GenerateKey()
	forger := crypto.AddressFromPubKey(key.PublicKey())

	blk := buildBlock(gen, 1, forger, 5000)
	blk.Header.PrevHash = types.Hash{0xff}
	blk.Header.MerkleRoot = block.ComputeMerkleRoot([]types.Hash{blk.Body[0].ID()})

	if err := c.ApplyBlock(blk); err == nil {
		t.Fatal("expected error applying block with wrong prev_hash")
	}
}

func TestApplyBlock_SpendAndUndo(t *testing.T) {
	c := testChain(t)
	gen, _ := c.BlockByHeight(0)

	forgerKey, _ := crypto.GenerateKey()
	forgerAddr := crypto.AddressFromPubKey(forgerKey.PublicKey())

	blk1 := buildBlock(gen, 1, forgerAddr, 5000)
	if err := c.ApplyBlock(blk1); err != nil {
		t.Fatalf("ApplyBlock(1): %v", err)
	}

	coinbaseID := blk1.Body[0].ID()
	spendOutpoint := types.Outpoint{TxID: coinbaseID, Index: 0}

	recipientKey, _ := crypto.GenerateKey()
	recipientAddr := crypto.AddressFromPubKey(recipientKey.PublicKey())

	builder := tx.NewBuilder().
		AddInput(spendOutpoint).
		AddOutput(4000, recipientAddr).
		AddOutput(700, forgerAddr)
	if err := builder.Sign(forgerKey); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	spendFinal := builder.Build()

	blk2 := buildBlock(blk1, 2, forgerAddr, 5000, spendFinal)
	if err := c.ApplyBlock(blk2); err != nil {
		t.Fatalf("ApplyBlock(2): %v", err)
	}

	if has, _ := c.utxos.Has(spendOutpoint); has {
		t.Fatal("spent coinbase output still present after apply")
	}

	recipientBal, err := c.Balance(recipientAddr)
	if err != nil {
		t.Fatalf("Balance(recipient): %v", err)
	}
	if recipientBal != 4000 {
		t.Fatalf("Balance(recipient) = %d, want 4000", recipientBal)
	}

	if err := c.UndoBlockAt(blk2.Hash()); err != nil {
		t.Fatalf("UndoBlockAt(blk2): %v", err)
	}

	if got := c.Height(); got != 1 {
		t.Fatalf("Height() after undo = %d, want 1", got)
	}
	if got := c.TipHash(); got != blk1.Hash() {
		t.Fatalf("TipHash() after undo = %s, want %s", got, blk1.Hash())
	}

	if has, _ := c.utxos.Has(spendOutpoint); !has {
		t.Fatal("spent coinbase output not restored after undo")
	}
	if has, _ := c.utxos.Has(types.Outpoint{TxID: spendFinal.ID(), Index: 0}); has {
		t.Fatal("spend tx output still present after undo")
	}
}

func TestUndoBlockAt_RejectsNonTip(t *testing.T) {
	c := testChain(t)
	gen, _ := c.BlockByHeight(0)

	forgerKey, _ := crypto.GenerateKey()
	forgerAddr := crypto.AddressFromPubKey(forgerKey.PublicKey())

	blk1 := buildBlock(gen, 1, forgerAddr, 5000)
	if err := c.ApplyBlock(blk1); err != nil {
		t.Fatalf("ApplyBlock(1): %v", err)
	}
	blk2 := buildBlock(blk1, 2, forgerAddr, 5000)
	if err := c.ApplyBlock(blk2); err != nil {
		t.Fatalf("ApplyBlock(2): %v", err)
	}

	if err := c.UndoBlockAt(blk1.Hash()); err != ErrUndoNotTip {
		t.Fatalf("UndoBlockAt(non-tip) = %v, want %v", err, ErrUndoNotTip)
	}
}

func TestApplyBlock_DuplicateInputRejected(t *testing.T) {
	c := testChain(t)
	gen, _ := c.BlockByHeight(0)

	forgerKey, _ := crypto.GenerateKey()
	forgerAddr := crypto.AddressFromPubKey(forgerKey.PublicKey())

	blk1 := buildBlock(gen, 1, forgerAddr, 5000)
	if err := c.ApplyBlock(blk1); err != nil {
		t.Fatalf("ApplyBlock(1): %v", err)
	}

	coinbaseOutpoint := types.Outpoint{TxID: blk1.Body[0].ID(), Index: 0}

	other, _ := crypto.GenerateKey()
	otherAddr := crypto.AddressFromPubKey(other.PublicKey())

	b1 := tx.NewBuilder().AddInput(coinbaseOutpoint).AddOutput(100, otherAddr)
	b1.Sign(forgerKey)
	t1 := b1.Build()

	b2 := tx.NewBuilder().AddInput(coinbaseOutpoint).AddOutput(200, otherAddr)
	b2.Sign(forgerKey)
	t2 := b2.Build()

	blk2 := buildBlock(blk1, 2, forgerAddr, 5000, t1, t2)
	if err := c.ApplyBlock(blk2); err == nil {
		t.Fatal("expected error applying block with duplicate spent input")
	}
}

func TestLocatorFindCommon(t *testing.T) {
	c := testChain(t)
	gen, _ := c.BlockByHeight(0)

	forgerKey, _ := crypto.GenerateKey()
	forgerAddr := crypto.AddressFromPubKey(forgerKey.PublicKey())

	blk1 := buildBlock(gen, 1, forgerAddr, 5000)
	if err := c.ApplyBlock(blk1); err != nil {
		t.Fatalf("ApplyBlock(1): %v", err)
	}

	locator := []types.Hash{{0xab}, blk1.Hash(), gen.Hash()}
	common, ok := c.LocatorFindCommon(locator)
	if !ok {
		t.Fatal("expected common ancestor")
	}
	if common != blk1.Hash() {
		t.Fatalf("common = %s, want %s", common, blk1.Hash())
	}
}

func TestBlocksAfter(t *testing.T) {
	c := testChain(t)
	gen, _ := c.BlockByHeight(0)

	forgerKey, _ := crypto.GenerateKey()
	forgerAddr := crypto.AddressFromPubKey(forgerKey.PublicKey())

	tip := gen
	var hashes []types.Hash
	for h := uint64(1); h <= 3; h++ {
		blk := buildBlock(tip, h, forgerAddr, 5000)
		if err := c.ApplyBlock(blk); err != nil {
			t.Fatalf("ApplyBlock(%d): %v", h, err)
		}
		hashes = append(hashes, blk.Hash())
		tip = blk
	}

	got, err := c.BlocksAfter(gen.Hash())
	if err != nil {
		t.Fatalf("BlocksAfter: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("BlocksAfter returned %d hashes, want 3", len(got))
	}
	for i, h := range hashes {
		if got[i] != h {
			t.Fatalf("BlocksAfter[%d] = %s, want %s", i, got[i], h)
		}
	}
}
