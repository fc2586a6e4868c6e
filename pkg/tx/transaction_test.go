package tx

import (
	"math"
	"testing"

	"github.com/klingnet-labs/klingnet-node/pkg/crypto"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

func TestTransaction_ID_Deterministic(t *testing.T) {
	txn := &Transaction{
		Inputs:  []Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x01}, Index: 0}}},
		Outputs: []Output{{Amount: 1000, Recipient: testAddress()}},
	}

	h1 := txn.ID()
	h2 := txn.ID()
	if h1 != h2 {
		t.Error("ID() should be deterministic")
	}
	if h1.IsZero() {
		t.Error("ID() should not be zero")
	}
}

func TestTransaction_ID_ChangesWithContent(t *testing.T) {
	addr := testAddress()
	tx1 := &Transaction{
		Inputs:  []Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x01}, Index: 0}}},
		Outputs: []Output{{Amount: 1000, Recipient: addr}},
	}
	tx2 := &Transaction{
		Inputs:  []Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x01}, Index: 0}}},
		Outputs: []Output{{Amount: 2000, Recipient: addr}},
	}

	if tx1.ID() == tx2.ID() {
		t.Error("different transactions should have different ids")
	}
}

func TestTransaction_ID_IgnoresSignature(t *testing.T) {
	txn := &Transaction{
		Inputs:  []Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x01}, Index: 0}}},
		Outputs: []Output{{Amount: 1000, Recipient: testAddress()}},
	}

	h1 := txn.ID()

	txn.Inputs[0].Signature = []byte("some signature")
	txn.Inputs[0].PubKey = []byte("some key")

	h2 := txn.ID()

	if h1 != h2 {
		t.Error("ID() should not change when signatures are added")
	}
}

func TestTransaction_Hash_AliasesID(t *testing.T) {
	txn := &Transaction{Outputs: []Output{{Amount: 1, Recipient: testAddress()}}}
	if txn.Hash() != txn.ID() {
		t.Error("Hash() should alias ID()")
	}
}

func TestTransaction_IsCoinbase(t *testing.T) {
	coinbase := &Transaction{Outputs: []Output{{Amount: 5000, Recipient: testAddress()}}}
	if !coinbase.IsCoinbase() {
		t.Error("zero-input transaction should be coinbase")
	}

	spend := &Transaction{
		Inputs:  []Input{{PrevOut: zeroOutpoint()}},
		Outputs: []Output{{Amount: 5000, Recipient: testAddress()}},
	}
	if spend.IsCoinbase() {
		t.Error("transaction with inputs should not be coinbase")
	}
}

func TestTransaction_TotalOutputValue(t *testing.T) {
	txn := &Transaction{
		Outputs: []Output{
			{Amount: 1000},
			{Amount: 2000},
			{Amount: 3000},
		},
	}
	got, err := txn.TotalOutputValue()
	if err != nil {
		t.Fatalf("TotalOutputValue() error: %v", err)
	}
	if got != 6000 {
		t.Errorf("TotalOutputValue() = %d, want 6000", got)
	}
}

func TestTransaction_TotalOutputValue_Empty(t *testing.T) {
	txn := &Transaction{}
	got, err := txn.TotalOutputValue()
	if err != nil {
		t.Fatalf("TotalOutputValue() error: %v", err)
	}
	if got != 0 {
		t.Errorf("TotalOutputValue() empty = %d, want 0", got)
	}
}

func TestTransaction_TotalOutputValue_Overflow(t *testing.T) {
	txn := &Transaction{
		Outputs: []Output{
			{Amount: math.MaxUint64},
			{Amount: 1},
		},
	}
	_, err := txn.TotalOutputValue()
	if err == nil {
		t.Error("TotalOutputValue() should return error on overflow")
	}
}

func TestTransaction_Size_GrowsWithInputsAndOutputs(t *testing.T) {
	base := &Transaction{Outputs: []Output{{Amount: 1, Recipient: testAddress()}}}
	withInput := &Transaction{
		Inputs:  []Input{{PrevOut: zeroOutpoint(), Signature: make([]byte, 64), PubKey: make([]byte, 33)}},
		Outputs: base.Outputs,
	}
	if withInput.Size() <= base.Size() {
		t.Errorf("Size() with an input (%d) should exceed Size() without (%d)", withInput.Size(), base.Size())
	}
}

func TestBuilder_BuildAndSign(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := testAddress()

	prevOut := types.Outpoint{TxID: crypto.Hash([]byte("prev tx")), Index: 0}

	b := NewBuilder().
		AddInput(prevOut).
		AddOutput(5000, addr)

	err := b.Sign(key)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	transaction := b.Build()

	if len(transaction.Inputs) != 1 {
		t.Fatalf("expected 1 input, got %d", len(transaction.Inputs))
	}
	if len(transaction.Outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(transaction.Outputs))
	}

	// Should validate.
	if err := transaction.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}

	// Signatures should verify.
	if err := transaction.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error: %v", err)
	}
}

func TestBuilder_MultipleInputsOutputs(t *testing.T) {
	key, _ := crypto.GenerateKey()

	b := NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}).
		AddInput(types.Outpoint{TxID: types.Hash{0x02}, Index: 1}).
		AddOutput(3000, testAddress()).
		AddOutput(2000, testAddress()).
		SetTimestamp(100)

	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	transaction := b.Build()

	if len(transaction.Inputs) != 2 {
		t.Errorf("input count = %d, want 2", len(transaction.Inputs))
	}
	if len(transaction.Outputs) != 2 {
		t.Errorf("output count = %d, want 2", len(transaction.Outputs))
	}
	if transaction.Timestamp != 100 {
		t.Errorf("timestamp = %d, want 100", transaction.Timestamp)
	}
	if err := transaction.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
	if err := transaction.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error: %v", err)
	}
}

func TestBuilder_SignMulti(t *testing.T) {
	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()

	out1 := types.Outpoint{TxID: crypto.Hash([]byte("tx1")), Index: 0}
	out2 := types.Outpoint{TxID: crypto.Hash([]byte("tx2")), Index: 1}

	b := NewBuilder().
		AddInput(out1).
		AddInput(out2).
		AddOutput(3000, testAddress())

	outpointKey := map[types.Outpoint]*crypto.PrivateKey{
		out1: key1,
		out2: key2,
	}

	if err := b.SignMulti(outpointKey); err != nil {
		t.Fatalf("SignMulti() error: %v", err)
	}

	transaction := b.Build()

	if err := transaction.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
	if err := transaction.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error: %v", err)
	}

	if string(transaction.Inputs[0].PubKey) == string(transaction.Inputs[1].PubKey) {
		t.Error("inputs should have different pubkeys")
	}
}

func TestBuilder_SignMulti_SameKeyTwoInputs(t *testing.T) {
	key, _ := crypto.GenerateKey()

	out1 := types.Outpoint{TxID: crypto.Hash([]byte("tx1")), Index: 0}
	out2 := types.Outpoint{TxID: crypto.Hash([]byte("tx2")), Index: 0}

	b := NewBuilder().
		AddInput(out1).
		AddInput(out2).
		AddOutput(5000, testAddress())

	outpointKey := map[types.Outpoint]*crypto.PrivateKey{
		out1: key,
		out2: key,
	}

	if err := b.SignMulti(outpointKey); err != nil {
		t.Fatalf("SignMulti() error: %v", err)
	}

	transaction := b.Build()
	if err := transaction.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error: %v", err)
	}

	// Same key over the same tx id → same signature (signing is deterministic).
	if string(transaction.Inputs[0].Signature) != string(transaction.Inputs[1].Signature) {
		t.Error("same key should produce same signature (deterministic signing)")
	}
}

func TestBuilder_SignMulti_MissingSigner(t *testing.T) {
	out1 := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}

	b := NewBuilder().
		AddInput(out1).
		AddOutput(1000, testAddress())

	// No entry for out1 in the map.
	outpointKey := map[types.Outpoint]*crypto.PrivateKey{}

	err := b.SignMulti(outpointKey)
	if err == nil {
		t.Fatal("expected error for missing signer")
	}
}
