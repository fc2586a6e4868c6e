// Package network implements the HTTP-style request/response transport:
// versioned handshake, peer-set management, gossip broadcast, and the
// locator-based chain-catch-up controller.
package network

import (
	"github.com/klingnet-labs/klingnet-node/pkg/block"
	"github.com/klingnet-labs/klingnet-node/pkg/tx"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// ProtocolVersion is compared for exact equality on every version-carrying
// request; the request body is decoded first, and a mismatch is then
// rejected with WrongVersion before the request is acted on.
const ProtocolVersion uint64 = 1

// ErrorKind enumerates the wire-protocol error kinds a peer can receive.
type ErrorKind string

const (
	KindWrongVersion       ErrorKind = "WrongVersion"
	KindInvalidTransaction ErrorKind = "InvalidTransaction"
	KindInvalidBlock       ErrorKind = "InvalidBlock"
	KindInvalidURL         ErrorKind = "InvalidUrl"

	// KindPeerSetFull and KindMempoolFull cover spec.md §7's "resource
	// exhaustion" error class, which names the behavior (surfaced,
	// retryable) but not a wire kind — the four kinds spec.md §6 lists
	// are protocol/validation errors only.
	KindPeerSetFull ErrorKind = "PeerSetFull"
	KindMempoolFull ErrorKind = "MempoolFull"
)

// WireError is the structured body returned on any rejected request.
type WireError struct {
	Error   ErrorKind      `json:"error"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// BlockchainInfo answers /get-blockchain-info.
type BlockchainInfo struct {
	Version      uint64      `json:"version"`
	Height       uint64      `json:"height"`
	BestHeader   *block.Header `json:"best_header"`
	MempoolSize  int         `json:"mempool_size"`
}

// PairRequest is the body of /pair_up and /unpair.
type PairRequest struct {
	Version uint64 `json:"version"`
	Scheme  string `json:"scheme"`
	Port    uint16 `json:"port"`
}

// PeerListResponse answers /get-peers: every peer URL currently known.
type PeerListResponse struct {
	Peers []string `json:"peers"`
}

// LocatorRequest is the body of /get-blocks and /get-headers: a
// caller-supplied descending list of known block hashes.
type LocatorRequest struct {
	Version uint64       `json:"version"`
	Locator []types.Hash `json:"locator"`
}

// InvKind distinguishes the item kind carried by an Inv or get-data request.
type InvKind string

const (
	InvBlock InvKind = "Block"
	InvTx    InvKind = "Tx"
)

// Inv answers /get-blocks: up to 512 hashes following the first locator
// entry known locally.
type Inv struct {
	Kind   InvKind      `json:"kind"`
	Hashes []types.Hash `json:"hashes"`
}

// HeadersResponse answers /get-headers: up to 2048 headers.
type HeadersResponse struct {
	Headers []*block.Header `json:"headers"`
}

// GetDataRequest is the body of /get-data: fetch full bodies for a list of
// previously-advertised hashes.
type GetDataRequest struct {
	Version uint64       `json:"version"`
	Kind    InvKind      `json:"kind"`
	Hashes  []types.Hash `json:"hashes"`
}

// DataItem is one element of /get-data's ordered response. Exactly one of
// Block/Tx is set; a hash the node no longer has yields Found == false.
type DataItem struct {
	Found bool             `json:"found"`
	Block *block.Block     `json:"block,omitempty"`
	Tx    *tx.Transaction  `json:"tx,omitempty"`
}

// TxRequest is the body of /tx.
type TxRequest struct {
	Version     uint64          `json:"version"`
	Transaction *tx.Transaction `json:"transaction"`
}

// BlockRequest is the body of /block.
type BlockRequest struct {
	Version uint64       `json:"version"`
	Block   *block.Block `json:"block"`
}

// VersionResponse answers plain GET /version.
type VersionResponse struct {
	Version uint64 `json:"version"`
}
