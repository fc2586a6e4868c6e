// Package chain implements the blockchain state machine: block/undo
// journal persistence, UTXO set maintenance, and the apply/undo cycle.
package chain

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/klingnet-labs/klingnet-node/config"
	"github.com/klingnet-labs/klingnet-node/internal/storage"
	"github.com/klingnet-labs/klingnet-node/internal/utxo"
	"github.com/klingnet-labs/klingnet-node/pkg/block"
	"github.com/klingnet-labs/klingnet-node/pkg/tx"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// Chain engine errors.
var (
	ErrNilBlock       = errors.New("nil block or header")
	ErrBlockKnown     = errors.New("block already known")
	ErrBadPrevHash    = errors.New("prev_hash does not match current tip")
	ErrBadHeight      = errors.New("block height does not follow tip")
	ErrUndoNotTip     = errors.New("can only undo the current tip")
	ErrNoBlocksToUndo = errors.New("chain has no blocks to undo")
)

// MempoolRemover lets the chain engine evict applied transactions from the
// mempool without importing the mempool package directly.
type MempoolRemover interface {
	RemoveAll(txids []types.Hash)
}

// Chain owns the block store, undo journal, and UTXO set, and exposes the
// apply/undo/query operations named in the chain engine component.
type Chain struct {
	mu sync.Mutex

	blocks *BlockStore
	utxos  utxo.Set
	params config.Parameters

	state       State
	genesisHash types.Hash

	mempool MempoolRemover
}

// New creates a chain engine, recovering tip state from the block store's
// metadata if one already exists.
func New(db storage.DB, dataDir string, utxoSet utxo.Set, params config.Parameters) (*Chain, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	if utxoSet == nil {
		return nil, fmt.Errorf("utxo set is nil")
	}

	blocks := NewBlockStore(db, dataDir)

	meta, err := blocks.ReadMetadata()
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	c := &Chain{
		blocks: blocks,
		utxos:  utxoSet,
		params: params,
		state:  State{Height: meta.Length, TipHash: meta.BestBlock},
	}

	if genBlk, err := blocks.GetBlockByHeight(0); err == nil {
		c.genesisHash = genBlk.Hash()
	}

	return c, nil
}

// SetMempool registers the mempool to evict from on apply_block. Optional —
// a chain used only for replay/testing can leave this unset.
func (c *Chain) SetMempool(m MempoolRemover) {
	c.mempool = m
}

// InitFromGenesis initializes a fresh chain with the fixed genesis block.
// Returns an error if the chain already has blocks.
func (c *Chain) InitFromGenesis(gen *config.Genesis) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.IsGenesis() {
		return fmt.Errorf("chain already initialized at height %d", c.state.Height)
	}

	blk, err := CreateGenesisBlock(gen)
	if err != nil {
		return fmt.Errorf("create genesis: %w", err)
	}

	hash := blk.Hash()
	if err := c.blocks.PutBlock(blk); err != nil {
		return fmt.Errorf("store genesis: %w", err)
	}

	c.state = State{Height: 0, TipHash: hash, Supply: 0}
	c.genesisHash = hash

	return c.blocks.WriteMetadata(Metadata{Length: 0, BestBlock: hash})
}

// State returns a copy of the current chain state.
func (c *Chain) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Height returns the current chain height.
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Height
}

// TipHash returns the hash of the current chain tip.
func (c *Chain) TipHash() types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.TipHash
}

// Supply returns the total coins in circulation.
func (c *Chain) Supply() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Supply
}

// BlockByHash retrieves a block by its hash.
func (c *Chain) BlockByHash(hash types.Hash) (*block.Block, error) {
	return c.blocks.GetBlock(hash)
}

// BlockByHeight retrieves a block by its height.
func (c *Chain) BlockByHeight(height uint64) (*block.Block, error) {
	return c.blocks.GetBlockByHeight(height)
}

// LastBlock returns the current tip block.
func (c *Chain) LastBlock() (*block.Block, error) {
	c.mu.Lock()
	tip := c.state.TipHash
	c.mu.Unlock()
	if tip.IsZero() {
		return nil, fmt.Errorf("chain has no blocks")
	}
	return c.blocks.GetBlock(tip)
}

// UTXOsByAddress returns every unspent output owned by addr.
func (c *Chain) UTXOsByAddress(addr types.Address) ([]*utxo.UTXO, error) {
	store, ok := c.utxos.(*utxo.Store)
	if !ok {
		return nil, fmt.Errorf("utxo set does not support address scans")
	}
	return store.GetByAddress(addr)
}

// Balance sums every UTXO owned by addr.
func (c *Chain) Balance(addr types.Address) (uint64, error) {
	utxos, err := c.UTXOsByAddress(addr)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, u := range utxos {
		total += u.Amount
	}
	return total, nil
}

// UTXOsByTxID returns the still-unspent outputs created by txid.
func (c *Chain) UTXOsByTxID(txid types.Hash) ([]*utxo.UTXO, error) {
	var found []*utxo.UTXO
	for i := uint32(0); ; i++ {
		u, err := c.utxos.Get(types.Outpoint{TxID: txid, Index: i})
		if err != nil {
			break
		}
		found = append(found, u)
	}
	return found, nil
}

// chainUTXOProvider adapts utxo.Set to tx.UTXOProvider.
type chainUTXOProvider struct {
	set utxo.Set
}

func (p *chainUTXOProvider) GetUTXO(op types.Outpoint) (uint64, types.Address, error) {
	u, err := p.set.Get(op)
	if err != nil {
		return 0, types.Address{}, err
	}
	return u.Amount, u.Recipient, nil
}

func (p *chainUTXOProvider) HasUTXO(op types.Outpoint) bool {
	ok, err := p.set.Has(op)
	return err == nil && ok
}

// UTXOProvider exposes the chain's live UTXO set as a tx.UTXOProvider, for
// callers (the validator package) that need contextual transaction checks
// without depending on internal/utxo directly.
func (c *Chain) UTXOProvider() tx.UTXOProvider {
	return &chainUTXOProvider{set: c.utxos}
}

// ApplyBlock applies a block to the tip. It checks that the block extends
// the current tip (height and previous hash) and performs the structural
// and UTXO-contextual validation tiers itself (pkg/block.Validate +
// tx.ValidateWithUTXOs); the consensus tier (VRF proof, lottery threshold)
// is the caller's responsibility via internal/validator, which takes a
// read-only view of this chain without this package importing it back. Side effects, in
// order: evict the block's transactions from the mempool, record consumed
// UTXOs in a fresh UndoBlock and delete them, insert created UTXOs (the
// coinbase's output grouped under internal/utxo.CoinbaseGroupKey rather
// than its own txid — see Store.Put), persist the block and undo
// journal, rewrite metadata.
func (c *Chain) ApplyBlock(blk *block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if blk == nil || blk.Header == nil {
		return ErrNilBlock
	}

	hash := blk.Hash()

	known, err := c.blocks.HasBlock(hash)
	if err != nil {
		return fmt.Errorf("check block: %w", err)
	}
	if known {
		return ErrBlockKnown
	}

	if blk.Header.Height != c.state.Height+1 {
		return fmt.Errorf("%w: want %d, got %d", ErrBadHeight, c.state.Height+1, blk.Header.Height)
	}
	if blk.Header.PrevHash != c.state.TipHash {
		return ErrBadPrevHash
	}

	if err := blk.Validate(); err != nil {
		return fmt.Errorf("structural validation: %w", err)
	}

	minFeeRate := c.params.FeePerByte
	provider := &chainUTXOProvider{set: c.utxos}
	var totalFees uint64
	for i, t := range blk.Body {
		if t.IsCoinbase() {
			continue
		}
		fee, err := t.ValidateWithUTXOs(provider, minFeeRate)
		if err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
		if totalFees > math.MaxUint64-fee {
			return fmt.Errorf("tx %d: fee overflow", i)
		}
		totalFees += fee
	}

	undo := &UndoBlock{Height: blk.Header.Height, BlockHash: hash}

	appliedTxIDs := make([]types.Hash, len(blk.Body))
	for i, t := range blk.Body {
		appliedTxIDs[i] = t.ID()
	}
	if c.mempool != nil {
		c.mempool.RemoveAll(appliedTxIDs)
	}

	for i, t := range blk.Body {
		txID := appliedTxIDs[i]

		var consumed []utxo.UTXO
		for _, in := range t.Inputs {
			spent, err := c.utxos.Get(in.PrevOut)
			if err != nil {
				return fmt.Errorf("tx %d: spend %s: %w", i, in.PrevOut, err)
			}
			consumed = append(consumed, *spent)
			if err := c.utxos.Delete(in.PrevOut); err != nil {
				return fmt.Errorf("tx %d: delete %s: %w", i, in.PrevOut, err)
			}
		}
		undo.Entries = append(undo.Entries, UndoTransaction{TxID: txID, Consumed: consumed})

		for idx, out := range t.Outputs {
			u := &utxo.UTXO{
				TxID:      txID,
				Index:     uint32(idx),
				Amount:    out.Amount,
				Recipient: out.Recipient,
				Height:    blk.Header.Height,
				Coinbase:  t.IsCoinbase(),
			}
			if err := c.utxos.Put(u); err != nil {
				return fmt.Errorf("tx %d: create output %d: %w", i, idx, err)
			}
		}
	}

	coinbaseReward := c.params.RewardSchedule(blk.Header.Height)
	undo.BlockReward = coinbaseReward

	if err := c.blocks.PutBlock(blk); err != nil {
		return fmt.Errorf("store block: %w", err)
	}
	if err := c.blocks.PutUndo(undo); err != nil {
		return fmt.Errorf("store undo: %w", err)
	}

	c.state.Height = blk.Header.Height
	c.state.TipHash = hash
	c.state.Supply += coinbaseReward

	if err := c.blocks.WriteMetadata(Metadata{Length: c.state.Height, BestBlock: hash}); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	return nil
}

// UndoBlockAt reverts the current tip, restoring every UTXO its
// transactions consumed and deleting every UTXO they created. Only
// permitted when hash equals the current tip's hash.
func (c *Chain) UndoBlockAt(hash types.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.TipHash.IsZero() {
		return ErrNoBlocksToUndo
	}
	if hash != c.state.TipHash {
		return ErrUndoNotTip
	}

	blk, err := c.blocks.GetBlock(hash)
	if err != nil {
		return fmt.Errorf("load tip block: %w", err)
	}
	undo, err := c.blocks.GetUndo(hash)
	if err != nil {
		return fmt.Errorf("load undo journal: %w", err)
	}

	for _, entry := range undo.Entries {
		// Delete everything this transaction created.
		for i := 0; ; i++ {
			op := types.Outpoint{TxID: entry.TxID, Index: uint32(i)}
			has, err := c.utxos.Has(op)
			if err != nil || !has {
				break
			}
			if err := c.utxos.Delete(op); err != nil {
				return fmt.Errorf("undo: delete created output %s: %w", op, err)
			}
		}
		// Restore everything this transaction consumed.
		for i := range entry.Consumed {
			restored := entry.Consumed[i]
			if err := c.utxos.Put(&restored); err != nil {
				return fmt.Errorf("undo: restore %s:%d: %w", restored.TxID, restored.Index, err)
			}
		}
	}

	if err := c.blocks.DeleteBlock(hash, blk.Header.Height); err != nil {
		return fmt.Errorf("undo: delete block: %w", err)
	}
	if err := c.blocks.DeleteUndo(hash, blk.Header.Height); err != nil {
		return fmt.Errorf("undo: delete undo entry: %w", err)
	}

	var newHeight uint64
	var newTip types.Hash
	if blk.Header.Height > 0 {
		newHeight = blk.Header.Height - 1
		if parent, err := c.blocks.GetBlock(blk.Header.PrevHash); err == nil {
			newTip = parent.Hash()
		}
	}

	c.state.Height = newHeight
	c.state.TipHash = newTip
	if c.state.Supply >= undo.BlockReward {
		c.state.Supply -= undo.BlockReward
	}

	return c.blocks.WriteMetadata(Metadata{Length: c.state.Height, BestBlock: c.state.TipHash})
}

// AddToMempool validates a transaction against current chain state. It does
// not itself enforce mempool capacity — see internal/mempool, which calls
// this as its admission check.
func (c *Chain) AddToMempool(t *tx.Transaction) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	provider := &chainUTXOProvider{set: c.utxos}
	return t.ValidateWithUTXOs(provider, c.params.FeePerByte)
}

// LocatorFindCommon returns the first hash in locator (a peer-supplied,
// descending list of block hashes) that exists locally. Returns the zero
// hash and false if none match (the peer has no common ancestor on record,
// other than perhaps genesis which callers should always include last).
func (c *Chain) LocatorFindCommon(locator []types.Hash) (types.Hash, bool) {
	for _, h := range locator {
		if ok, err := c.blocks.HasBlock(h); err == nil && ok {
			return h, true
		}
	}
	return types.Hash{}, false
}

const (
	// MaxBlocksPerGetBlocks bounds a single get-blocks response.
	MaxBlocksPerGetBlocks = 512
	// MaxHeadersPerGetHeaders bounds a single get-headers response.
	MaxHeadersPerGetHeaders = 2048
)

// BlocksAfter returns up to MaxBlocksPerGetBlocks block hashes for the
// heights immediately following the common block's height.
func (c *Chain) BlocksAfter(common types.Hash) ([]types.Hash, error) {
	commonBlk, err := c.blocks.GetBlock(common)
	if err != nil {
		return nil, fmt.Errorf("load common block: %w", err)
	}

	var hashes []types.Hash
	for h := commonBlk.Header.Height + 1; len(hashes) < MaxBlocksPerGetBlocks; h++ {
		blk, err := c.blocks.GetBlockByHeight(h)
		if err != nil {
			break
		}
		hashes = append(hashes, blk.Hash())
	}
	return hashes, nil
}

// HeadersAfter returns up to MaxHeadersPerGetHeaders headers for the
// heights immediately following the common block's height.
func (c *Chain) HeadersAfter(common types.Hash) ([]*block.Header, error) {
	commonBlk, err := c.blocks.GetBlock(common)
	if err != nil {
		return nil, fmt.Errorf("load common block: %w", err)
	}

	var headers []*block.Header
	for h := commonBlk.Header.Height + 1; len(headers) < MaxHeadersPerGetHeaders; h++ {
		blk, err := c.blocks.GetBlockByHeight(h)
		if err != nil {
			break
		}
		headers = append(headers, blk.Header)
	}
	return headers, nil
}
