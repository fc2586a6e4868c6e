package chain

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klingnet-labs/klingnet-node/internal/storage"
	"github.com/klingnet-labs/klingnet-node/pkg/block"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// Key prefixes for the block store, named per the persisted-state layout:
// chain/, index/, undo/, undo_index/. metadata.json is a separate small
// file rewritten on every commit rather than a KV entry, per that layout.
var (
	prefixChain     = []byte("chain/")
	prefixIndex     = []byte("index/")
	prefixUndo      = []byte("undo/")
	prefixUndoIndex = []byte("undo_index/")
)

// BlockStore persists blocks, the height index, and the undo journal to a
// storage.DB, plus the length/best-block metadata to a JSON file.
type BlockStore struct {
	db           storage.DB
	metadataPath string
}

// NewBlockStore creates a block store backed by the given database. dataDir
// is where metadata.json is written; pass "" to keep metadata in-memory
// only (used by tests that don't need it to survive process restart).
func NewBlockStore(db storage.DB, dataDir string) *BlockStore {
	bs := &BlockStore{db: db}
	if dataDir != "" {
		bs.metadataPath = filepath.Join(dataDir, "metadata.json")
	}
	return bs
}

func chainKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixChain)+types.HashSize)
	copy(key, prefixChain)
	copy(key[len(prefixChain):], hash[:])
	return key
}

func indexKey(height uint64) []byte {
	key := make([]byte, len(prefixIndex)+8)
	copy(key, prefixIndex)
	binary.BigEndian.PutUint64(key[len(prefixIndex):], height)
	return key
}

func undoKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixUndo)+types.HashSize)
	copy(key, prefixUndo)
	copy(key[len(prefixUndo):], hash[:])
	return key
}

func undoIndexKey(height uint64) []byte {
	key := make([]byte, len(prefixUndoIndex)+8)
	copy(key, prefixUndoIndex)
	binary.BigEndian.PutUint64(key[len(prefixUndoIndex):], height)
	return key
}

// PutBlock stores a block and indexes it by hash and height.
func (bs *BlockStore) PutBlock(blk *block.Block) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("block marshal: %w", err)
	}

	hash := blk.Hash()
	if err := bs.db.Put(chainKey(hash), data); err != nil {
		return fmt.Errorf("chain put: %w", err)
	}
	if err := bs.db.Put(indexKey(blk.Header.Height), hash[:]); err != nil {
		return fmt.Errorf("index put: %w", err)
	}
	return nil
}

// GetBlock retrieves a block by its hash.
func (bs *BlockStore) GetBlock(hash types.Hash) (*block.Block, error) {
	data, err := bs.db.Get(chainKey(hash))
	if err != nil {
		return nil, fmt.Errorf("chain get: %w", err)
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("block unmarshal: %w", err)
	}
	return &blk, nil
}

// GetBlockByHeight retrieves a block by its height.
func (bs *BlockStore) GetBlockByHeight(height uint64) (*block.Block, error) {
	hashBytes, err := bs.db.Get(indexKey(height))
	if err != nil {
		return nil, fmt.Errorf("index get: %w", err)
	}
	if len(hashBytes) != types.HashSize {
		return nil, fmt.Errorf("corrupt height index: got %d bytes, want %d", len(hashBytes), types.HashSize)
	}
	var hash types.Hash
	copy(hash[:], hashBytes)
	return bs.GetBlock(hash)
}

// HasBlock checks if a block exists by hash.
func (bs *BlockStore) HasBlock(hash types.Hash) (bool, error) {
	return bs.db.Has(chainKey(hash))
}

// DeleteBlock removes a block's chain/ and index/ entries. Used by
// undo_block, which always operates on the tip.
func (bs *BlockStore) DeleteBlock(hash types.Hash, height uint64) error {
	if err := bs.db.Delete(chainKey(hash)); err != nil {
		return fmt.Errorf("chain delete: %w", err)
	}
	if err := bs.db.Delete(indexKey(height)); err != nil {
		return fmt.Errorf("index delete: %w", err)
	}
	return nil
}

// PutUndo stores the undo journal entry for a block.
func (bs *BlockStore) PutUndo(undo *UndoBlock) error {
	data, err := json.Marshal(undo)
	if err != nil {
		return fmt.Errorf("undo marshal: %w", err)
	}
	if err := bs.db.Put(undoKey(undo.BlockHash), data); err != nil {
		return fmt.Errorf("undo put: %w", err)
	}
	if err := bs.db.Put(undoIndexKey(undo.Height), undo.BlockHash[:]); err != nil {
		return fmt.Errorf("undo index put: %w", err)
	}
	return nil
}

// GetUndo retrieves the undo journal entry for a block by hash.
func (bs *BlockStore) GetUndo(hash types.Hash) (*UndoBlock, error) {
	data, err := bs.db.Get(undoKey(hash))
	if err != nil {
		return nil, fmt.Errorf("undo get: %w", err)
	}
	var undo UndoBlock
	if err := json.Unmarshal(data, &undo); err != nil {
		return nil, fmt.Errorf("undo unmarshal: %w", err)
	}
	return &undo, nil
}

// DeleteUndo removes the undo journal entry for a block.
func (bs *BlockStore) DeleteUndo(hash types.Hash, height uint64) error {
	if err := bs.db.Delete(undoKey(hash)); err != nil {
		return fmt.Errorf("undo delete: %w", err)
	}
	if err := bs.db.Delete(undoIndexKey(height)); err != nil {
		return fmt.Errorf("undo index delete: %w", err)
	}
	return nil
}

// WriteMetadata rewrites metadata.json with the current length and best
// block hash. A no-op if the store was constructed without a data directory.
func (bs *BlockStore) WriteMetadata(m Metadata) error {
	if bs.metadataPath == "" {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("metadata marshal: %w", err)
	}
	if err := os.WriteFile(bs.metadataPath, data, 0644); err != nil {
		return fmt.Errorf("metadata write: %w", err)
	}
	return nil
}

// ReadMetadata loads metadata.json, returning a zero Metadata if the store
// has no data directory configured or the file does not yet exist (fresh chain).
func (bs *BlockStore) ReadMetadata() (Metadata, error) {
	if bs.metadataPath == "" {
		return Metadata{}, nil
	}
	data, err := os.ReadFile(bs.metadataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, nil
		}
		return Metadata{}, fmt.Errorf("metadata read: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("metadata unmarshal: %w", err)
	}
	return m, nil
}
