package tx

import (
	"github.com/klingnet-labs/klingnet-node/pkg/crypto"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// testKey returns a deterministic-enough key for test fixtures.
func testKey() (*crypto.PrivateKey, error) {
	return crypto.GenerateKey()
}

func testAddress() types.Address {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return crypto.AddressFromPubKey(key.PublicKey())
}

func zeroOutpoint() types.Outpoint {
	return types.Outpoint{TxID: types.Hash{}, Index: 0}
}

// fakeUTXOProvider is an in-memory UTXOProvider for tests.
type fakeUTXOProvider struct {
	utxos map[types.Outpoint]fakeUTXO
}

type fakeUTXO struct {
	amount    uint64
	recipient types.Address
}

func newFakeUTXOProvider() *fakeUTXOProvider {
	return &fakeUTXOProvider{utxos: make(map[types.Outpoint]fakeUTXO)}
}

func (p *fakeUTXOProvider) add(op types.Outpoint, amount uint64, recipient types.Address) {
	p.utxos[op] = fakeUTXO{amount: amount, recipient: recipient}
}

func (p *fakeUTXOProvider) GetUTXO(op types.Outpoint) (uint64, types.Address, error) {
	u, ok := p.utxos[op]
	if !ok {
		return 0, types.Address{}, ErrInputNotFound
	}
	return u.amount, u.recipient, nil
}

func (p *fakeUTXOProvider) HasUTXO(op types.Outpoint) bool {
	_, ok := p.utxos[op]
	return ok
}
