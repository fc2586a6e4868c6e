package utxo

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/klingnet-labs/klingnet-node/internal/storage"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// Key prefixes for the UTXO store.
var (
	prefixUTXO = []byte("u/") // u/<txid> -> JSON list of UTXO, ordered by index
	prefixAddr = []byte("a/") // a/<address><txid><index> -> empty (index)
)

// CoinbaseGroupKey is the sentinel transaction-id key under which every
// coinbase UTXO across the chain's entire history is grouped, per
// spec.md §4.1 ("append the coinbase UTXO under sentinel key [0;32]"):
// unlike an ordinary transaction's outputs, coinbase outputs don't share
// a single producing txid to group by, so they all accumulate under this
// one all-zero key instead of under their own (rotating) txid.
var CoinbaseGroupKey = types.Hash{}

// Store implements Set backed by a storage.DB. UTXOs are grouped by the
// transaction that created them: a single key holds every output of that
// transaction still unspent, ordered by output index.
type Store struct {
	db storage.DB
}

// NewStore creates a new UTXO store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// txKey builds the storage key for a transaction's UTXO group: "u/" + txid(32).
func txKey(txid types.Hash) []byte {
	key := make([]byte, len(prefixUTXO)+types.HashSize)
	copy(key, prefixUTXO)
	copy(key[len(prefixUTXO):], txid[:])
	return key
}

// addrKey builds an address index key: "a/" + addr(32) + txid(32) + index(4).
func addrKey(addr types.Address, op types.Outpoint) []byte {
	key := make([]byte, len(prefixAddr)+types.AddressSize+types.HashSize+4)
	copy(key, prefixAddr)
	copy(key[len(prefixAddr):], addr[:])
	off := len(prefixAddr) + types.AddressSize
	copy(key[off:], op.TxID[:])
	binary.BigEndian.PutUint32(key[off+types.HashSize:], op.Index)
	return key
}

// loadGroup reads the UTXO list for a transaction, returning an empty slice
// (not an error) if the transaction has no unspent outputs on record.
func (s *Store) loadGroup(txid types.Hash) ([]*UTXO, error) {
	data, err := s.db.Get(txKey(txid))
	if err != nil {
		return nil, nil
	}
	var group []*UTXO
	if err := json.Unmarshal(data, &group); err != nil {
		return nil, fmt.Errorf("utxo group unmarshal: %w", err)
	}
	return group, nil
}

// saveGroup persists the UTXO list for a transaction, sorted by output
// index, or deletes the key entirely when the group is empty.
func (s *Store) saveGroup(txid types.Hash, group []*UTXO) error {
	if len(group) == 0 {
		return s.db.Delete(txKey(txid))
	}
	sort.Slice(group, func(i, j int) bool { return group[i].Index < group[j].Index })
	data, err := json.Marshal(group)
	if err != nil {
		return fmt.Errorf("utxo group marshal: %w", err)
	}
	return s.db.Put(txKey(txid), data)
}

// groupKeyFor returns the key a UTXO's group lives under: the sentinel
// CoinbaseGroupKey for coinbase outputs (shared across every coinbase in
// the chain's history), or the UTXO's own txid otherwise.
func groupKeyFor(u *UTXO) types.Hash {
	if u.Coinbase {
		return CoinbaseGroupKey
	}
	return u.TxID
}

// findInGroup loads the group at groupKey and returns the entry matching
// (txid, index), or nil if absent. Matching on both fields (rather than
// index alone) is required for the coinbase group, which holds entries
// from many different txids under one key.
func (s *Store) findInGroup(groupKey, txid types.Hash, index uint32) (*UTXO, error) {
	group, err := s.loadGroup(groupKey)
	if err != nil {
		return nil, err
	}
	for _, u := range group {
		if u.TxID == txid && u.Index == index {
			return u, nil
		}
	}
	return nil, nil
}

// Get retrieves a UTXO by its outpoint, checking the outpoint's own txid
// group first and falling back to the coinbase sentinel group (coinbase
// outputs are never stored under their own txid).
func (s *Store) Get(outpoint types.Outpoint) (*UTXO, error) {
	if u, err := s.findInGroup(outpoint.TxID, outpoint.TxID, outpoint.Index); err != nil {
		return nil, err
	} else if u != nil {
		return u, nil
	}
	if u, err := s.findInGroup(CoinbaseGroupKey, outpoint.TxID, outpoint.Index); err != nil {
		return nil, err
	} else if u != nil {
		return u, nil
	}
	return nil, fmt.Errorf("utxo get: outpoint %s: not found", outpoint)
}

// Put stores a UTXO and updates the address index. Coinbase outputs are
// stored under the shared CoinbaseGroupKey instead of their own txid.
func (s *Store) Put(u *UTXO) error {
	groupKey := groupKeyFor(u)
	group, err := s.loadGroup(groupKey)
	if err != nil {
		return err
	}

	replaced := false
	for i, existing := range group {
		if existing.TxID == u.TxID && existing.Index == u.Index {
			group[i] = u
			replaced = true
			break
		}
	}
	if !replaced {
		group = append(group, u)
	}

	if err := s.saveGroup(groupKey, group); err != nil {
		return fmt.Errorf("utxo put: %w", err)
	}

	if err := s.db.Put(addrKey(u.Recipient, u.Outpoint()), []byte{}); err != nil {
		return fmt.Errorf("utxo index put: %w", err)
	}
	return nil
}

// Delete removes a UTXO and its address index entry, checking the
// outpoint's own txid group first and falling back to the coinbase
// sentinel group, mirroring Get.
func (s *Store) Delete(outpoint types.Outpoint) error {
	groupKey := outpoint.TxID
	group, err := s.loadGroup(groupKey)
	if err != nil {
		return err
	}
	if !containsOutpoint(group, outpoint) {
		groupKey = CoinbaseGroupKey
		group, err = s.loadGroup(groupKey)
		if err != nil {
			return err
		}
	}

	remaining := group[:0]
	var removed *UTXO
	for _, u := range group {
		if u.TxID == outpoint.TxID && u.Index == outpoint.Index {
			removed = u
			continue
		}
		remaining = append(remaining, u)
	}

	if err := s.saveGroup(groupKey, remaining); err != nil {
		return fmt.Errorf("utxo delete: %w", err)
	}

	if removed != nil {
		s.db.Delete(addrKey(removed.Recipient, outpoint))
	}
	return nil
}

// containsOutpoint reports whether group holds an entry matching outpoint.
func containsOutpoint(group []*UTXO, outpoint types.Outpoint) bool {
	for _, u := range group {
		if u.TxID == outpoint.TxID && u.Index == outpoint.Index {
			return true
		}
	}
	return false
}

// Has checks if a UTXO exists for the given outpoint, in either its own
// txid group or the coinbase sentinel group.
func (s *Store) Has(outpoint types.Outpoint) (bool, error) {
	if u, err := s.findInGroup(outpoint.TxID, outpoint.TxID, outpoint.Index); err != nil {
		return false, err
	} else if u != nil {
		return true, nil
	}
	if u, err := s.findInGroup(CoinbaseGroupKey, outpoint.TxID, outpoint.Index); err != nil {
		return false, err
	} else if u != nil {
		return true, nil
	}
	return false, nil
}

// ForEach iterates over all UTXOs in the store.
func (s *Store) ForEach(fn func(*UTXO) error) error {
	return s.db.ForEach(prefixUTXO, func(_, value []byte) error {
		var group []*UTXO
		if err := json.Unmarshal(value, &group); err != nil {
			return fmt.Errorf("utxo group unmarshal: %w", err)
		}
		for _, u := range group {
			if err := fn(u); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearAll removes all UTXOs and their address index entries. Used during
// UTXO set recovery after a crash mid-apply.
func (s *Store) ClearAll() error {
	var keys [][]byte
	for _, prefix := range [][]byte{prefixUTXO, prefixAddr} {
		if err := s.db.ForEach(prefix, func(key, _ []byte) error {
			k := make([]byte, len(key))
			copy(k, key)
			keys = append(keys, k)
			return nil
		}); err != nil {
			return fmt.Errorf("scan prefix %s: %w", prefix, err)
		}
	}
	for _, key := range keys {
		if err := s.db.Delete(key); err != nil {
			return fmt.Errorf("delete utxo key: %w", err)
		}
	}
	return nil
}

// GetByAddress returns all UTXOs belonging to the given address.
// It scans the address index and loads each referenced UTXO.
func (s *Store) GetByAddress(addr types.Address) ([]*UTXO, error) {
	// Build the prefix: "a/" + addr(32).
	prefix := make([]byte, len(prefixAddr)+types.AddressSize)
	copy(prefix, prefixAddr)
	copy(prefix[len(prefixAddr):], addr[:])

	var utxos []*UTXO
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		// Key layout: "a/" + addr(32) + txid(32) + index(4).
		off := len(prefixAddr) + types.AddressSize
		if len(key) < off+types.HashSize+4 {
			return nil // Malformed key, skip.
		}
		var op types.Outpoint
		copy(op.TxID[:], key[off:off+types.HashSize])
		op.Index = binary.BigEndian.Uint32(key[off+types.HashSize:])

		u, err := s.Get(op)
		if err != nil {
			return nil // UTXO may have been spent, skip.
		}
		utxos = append(utxos, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan address index: %w", err)
	}
	return utxos, nil
}
