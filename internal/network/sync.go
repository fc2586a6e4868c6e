package network

import (
	"context"
	"fmt"

	klog "github.com/klingnet-labs/klingnet-node/internal/log"
	"github.com/klingnet-labs/klingnet-node/pkg/block"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// headersBatchSize bounds a single /get-headers fetch during catch-up,
// matching internal/chain.MaxHeadersPerGetHeaders.
const headersBatchSize = 2048

// BuildLocator returns a descending list of block hashes at height, height-1,
// height-3, height-7, height-15, ... (the step back doubles after each hash)
// plus genesis (height 0), per spec.md §4.6's "descending powers-of-two heights
// of local tips plus genesis". hashAt resolves a height to its block hash;
// a height the caller doesn't have is skipped.
func BuildLocator(height uint64, hashAt func(h uint64) (types.Hash, bool)) []types.Hash {
	var locator []types.Hash
	seen := make(map[uint64]bool)

	step := uint64(1)
	h := height
	for {
		if !seen[h] {
			seen[h] = true
			if hash, ok := hashAt(h); ok {
				locator = append(locator, hash)
			}
		}
		if h == 0 {
			break
		}
		if h < step {
			h = 0
			continue
		}
		h -= step
		step *= 2
	}

	if !seen[0] {
		if hash, ok := hashAt(0); ok {
			locator = append(locator, hash)
		}
	}
	return locator
}

// ApplyFunc performs full (consensus-tier included) validation and
// application of a block received from a peer. Kept as an injected
// function rather than a direct internal/validator dependency so this
// package doesn't import validator (which would otherwise need a network
// view of the chain, inverting the dependency).
type ApplyFunc func(blk *block.Block) error

// Syncer drives the locator-walk chain-catch-up algorithm of spec.md
// §4.6 against a single peer.
type Syncer struct {
	chain ChainView
	apply ApplyFunc
}

// NewSyncer creates a syncer applying fetched blocks via apply.
func NewSyncer(chain ChainView, apply ApplyFunc) *Syncer {
	return &Syncer{chain: chain, apply: apply}
}

// CatchUpFrom pulls every block this node is missing from peerURL: it builds
// a locator and sends it straight to /get-headers (no /get-blocks Inv round
// is made), fetches the bodies of each returned header batch via /get-data,
// and applies them in order, continuing from the last fetched hash until a
// batch comes back shorter than headersBatchSize. Returns the number of
// blocks applied.
func (s *Syncer) CatchUpFrom(ctx context.Context, peerURL string) (int, error) {
	locator := BuildLocator(s.chain.Height(), func(h uint64) (types.Hash, bool) {
		blk, err := s.chain.BlockByHeight(h)
		if err != nil {
			return types.Hash{}, false
		}
		return blk.Hash(), true
	})

	applied := 0
	for {
		var headersResp HeadersResponse
		req := LocatorRequest{Version: ProtocolVersion, Locator: locator}
		if err := fetchHeaders(ctx, peerURL, req, &headersResp); err != nil {
			return applied, fmt.Errorf("fetch headers: %w", err)
		}
		if len(headersResp.Headers) == 0 {
			return applied, nil
		}

		hashes := make([]types.Hash, len(headersResp.Headers))
		for i, h := range headersResp.Headers {
			hashes[i] = h.Hash()
		}

		var dataResp []DataItem
		dataReq := GetDataRequest{Version: ProtocolVersion, Kind: InvBlock, Hashes: hashes}
		if err := fetchData(ctx, peerURL, dataReq, &dataResp); err != nil {
			return applied, fmt.Errorf("fetch data: %w", err)
		}

		for i, item := range dataResp {
			if !item.Found || item.Block == nil {
				klog.Network.Warn().Str("peer", peerURL).Str("hash", hashes[i].String()).
					Msg("peer advertised a header it cannot supply the body for")
				return applied, fmt.Errorf("peer %s missing body for %s", peerURL, hashes[i])
			}
			if err := s.apply(item.Block); err != nil {
				return applied, fmt.Errorf("apply block %s: %w", hashes[i], err)
			}
			applied++
		}

		locator = []types.Hash{hashes[len(hashes)-1]}
		if len(headersResp.Headers) < headersBatchSize {
			return applied, nil
		}
	}
}

func fetchHeaders(ctx context.Context, peerURL string, req LocatorRequest, out *HeadersResponse) error {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	return getJSONBody(ctx, peerURL+"/get-headers", req, out)
}

func fetchData(ctx context.Context, peerURL string, req GetDataRequest, out *[]DataItem) error {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	return getJSONBody(ctx, peerURL+"/get-data", req, out)
}
