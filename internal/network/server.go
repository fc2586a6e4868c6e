package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	klog "github.com/klingnet-labs/klingnet-node/internal/log"
	"github.com/klingnet-labs/klingnet-node/internal/mempool"
	"github.com/klingnet-labs/klingnet-node/pkg/block"
	"github.com/klingnet-labs/klingnet-node/pkg/tx"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
	"github.com/rs/zerolog"
)

// ChainView is the slice of the chain engine the network layer needs:
// read queries for the status/sync endpoints and the single mutator,
// apply_block, for /block.
type ChainView interface {
	Height() uint64
	TipHash() types.Hash
	LastBlock() (*block.Block, error)
	BlockByHash(hash types.Hash) (*block.Block, error)
	BlockByHeight(height uint64) (*block.Block, error)
	LocatorFindCommon(locator []types.Hash) (types.Hash, bool)
	BlocksAfter(common types.Hash) ([]types.Hash, error)
	HeadersAfter(common types.Hash) ([]*block.Header, error)
	ApplyBlock(blk *block.Block) error
}

// MempoolView is the slice of internal/mempool.Pool the network layer
// needs for /tx and /get-data(Tx).
type MempoolView interface {
	Add(t *tx.Transaction) (uint64, error)
	Get(h types.Hash) *tx.Transaction
	Count() int
	Hashes() []types.Hash
}

// Rebroadcaster is notified whenever /tx or /block admits a new item, so
// the server can hand it to the gossip broadcaster through a narrow
// interface (*Broadcaster satisfies it; tests pass a fake or nil).
type Rebroadcaster interface {
	BroadcastBlock(blk *block.Block)
	BroadcastTx(t *tx.Transaction)
}

// maxBodySize caps a single request body, mirroring the teacher's
// rpc.maxBodySize guard against unbounded reads.
const maxBodySize = 4 << 20

// Server is the node's inbound HTTP endpoint, implementing every path in
// spec.md §4.6's table. Grounded on the teacher's internal/rpc.Server for
// its Start/Stop/Addr lifecycle, but dispatches by distinct REST-like
// paths instead of a single JSON-RPC method field.
type Server struct {
	selfURL string
	chain   ChainView
	pool    MempoolView
	peers   *PeerSet
	bcast   Rebroadcaster

	server *http.Server
	ln     net.Listener
	logger zerolog.Logger
}

// NewServer creates a network server bound to addr once Start is called.
// selfURL is this node's own externally-reachable URL, used to reject
// /pair_up attempts from a peer that is already this node. bcast may be
// nil (no rebroadcast on admission, e.g. in tests).
func NewServer(addr string, selfURL string, chain ChainView, pool MempoolView, peers *PeerSet, bcast Rebroadcaster) *Server {
	s := &Server{
		selfURL: selfURL,
		chain:   chain,
		pool:    pool,
		peers:   peers,
		bcast:   bcast,
		logger:  klog.Network,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/version", s.handleVersion)
	mux.HandleFunc("/get-blockchain-info", s.handleBlockchainInfo)
	mux.HandleFunc("/pair_up", s.handlePairUp)
	mux.HandleFunc("/unpair", s.handleUnpair)
	mux.HandleFunc("/get-peers", s.handleGetPeers)
	mux.HandleFunc("/get-blocks", s.handleGetBlocks)
	mux.HandleFunc("/get-headers", s.handleGetHeaders)
	mux.HandleFunc("/get-data", s.handleGetData)
	mux.HandleFunc("/tx", s.handleTx)
	mux.HandleFunc("/block", s.handleBlock)
	mux.HandleFunc("/", s.handleNotFound)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins listening and serving in a background goroutine, returning
// once the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("network listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("network server error")
		}
	}()
	return nil
}

// Addr returns the bound listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.server.Addr
}

// Stop gracefully shuts down the server, giving in-flight requests up to
// the grace period (spec.md §5's shutdown semantics) before returning.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeWireError(w http.ResponseWriter, status int, kind ErrorKind, msg string, ctx map[string]any) {
	writeJSON(w, status, WireError{Error: kind, Message: msg, Context: ctx})
}

// decodeBody JSON-decodes a size-bounded request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	return dec.Decode(v)
}

// checkVersion compares the caller's declared version for exact equality,
// writing WrongVersion and returning false on any mismatch.
func checkVersion(w http.ResponseWriter, version uint64) bool {
	if version != ProtocolVersion {
		writeWireError(w, http.StatusBadRequest, KindWrongVersion,
			fmt.Sprintf("protocol version mismatch: want %d, got %d", ProtocolVersion, version),
			map[string]any{"request_version": version, "expected_version": ProtocolVersion})
		return false
	}
	return true
}

// --- handlers ---

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: ProtocolVersion})
}

func (s *Server) handleBlockchainInfo(w http.ResponseWriter, r *http.Request) {
	tip, err := s.chain.LastBlock()
	var best *block.Header
	if err == nil {
		best = tip.Header
	}
	writeJSON(w, http.StatusOK, BlockchainInfo{
		Version:     ProtocolVersion,
		Height:      s.chain.Height(),
		BestHeader:  best,
		MempoolSize: s.pool.Count(),
	})
}

// peerURLFromRequest builds the caller's advertised URL from its declared
// scheme/port and the connection's remote IP — the caller cannot be
// trusted to self-report an address, only a port and scheme.
func peerURLFromRequest(r *http.Request, scheme string, port uint16) (string, error) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", fmt.Errorf("parse remote addr: %w", err)
	}
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(host, fmt.Sprint(port))), nil
}

func (s *Server) handlePairUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeWireError(w, http.StatusBadRequest, KindInvalidURL, "pair_up requires POST", nil)
		return
	}
	var req PairRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeWireError(w, http.StatusBadRequest, KindInvalidURL, "malformed pair_up body", nil)
		return
	}
	if !checkVersion(w, req.Version) {
		return
	}

	url, err := peerURLFromRequest(r, req.Scheme, req.Port)
	if err != nil {
		writeWireError(w, http.StatusBadRequest, KindInvalidURL, err.Error(), nil)
		return
	}
	if url == s.selfURL {
		writeWireError(w, http.StatusBadRequest, KindInvalidURL, "cannot pair with self", nil)
		return
	}

	if err := s.peers.Add(url, false); err != nil {
		writeWireError(w, http.StatusServiceUnavailable, KindPeerSetFull, err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleUnpair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeWireError(w, http.StatusBadRequest, KindInvalidURL, "unpair requires DELETE", nil)
		return
	}
	var req PairRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeWireError(w, http.StatusBadRequest, KindInvalidURL, "malformed unpair body", nil)
		return
	}
	if !checkVersion(w, req.Version) {
		return
	}

	url, err := peerURLFromRequest(r, req.Scheme, req.Port)
	if err != nil {
		writeWireError(w, http.StatusBadRequest, KindInvalidURL, err.Error(), nil)
		return
	}
	s.peers.Remove(url)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PeerListResponse{Peers: s.peers.URLs()})
}

func (s *Server) handleGetBlocks(w http.ResponseWriter, r *http.Request) {
	var req LocatorRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeWireError(w, http.StatusBadRequest, KindInvalidURL, "malformed get-blocks body", nil)
		return
	}
	if !checkVersion(w, req.Version) {
		return
	}

	common, ok := s.chain.LocatorFindCommon(req.Locator)
	if !ok {
		writeJSON(w, http.StatusOK, Inv{Kind: InvBlock})
		return
	}
	hashes, err := s.chain.BlocksAfter(common)
	if err != nil {
		writeWireError(w, http.StatusInternalServerError, KindInvalidURL, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, Inv{Kind: InvBlock, Hashes: hashes})
}

func (s *Server) handleGetHeaders(w http.ResponseWriter, r *http.Request) {
	var req LocatorRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeWireError(w, http.StatusBadRequest, KindInvalidURL, "malformed get-headers body", nil)
		return
	}
	if !checkVersion(w, req.Version) {
		return
	}

	common, ok := s.chain.LocatorFindCommon(req.Locator)
	if !ok {
		writeJSON(w, http.StatusOK, HeadersResponse{})
		return
	}
	headers, err := s.chain.HeadersAfter(common)
	if err != nil {
		writeWireError(w, http.StatusInternalServerError, KindInvalidURL, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, HeadersResponse{Headers: headers})
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	var req GetDataRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeWireError(w, http.StatusBadRequest, KindInvalidURL, "malformed get-data body", nil)
		return
	}
	if !checkVersion(w, req.Version) {
		return
	}

	items := make([]DataItem, len(req.Hashes))
	for i, h := range req.Hashes {
		switch req.Kind {
		case InvTx:
			if t := s.pool.Get(h); t != nil {
				items[i] = DataItem{Found: true, Tx: t}
			}
		default:
			if blk, err := s.chain.BlockByHash(h); err == nil {
				items[i] = DataItem{Found: true, Block: blk}
			}
		}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleTx(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeWireError(w, http.StatusBadRequest, KindInvalidURL, "tx requires POST", nil)
		return
	}
	var req TxRequest
	if err := decodeBody(w, r, &req); err != nil || req.Transaction == nil {
		writeWireError(w, http.StatusBadRequest, KindInvalidURL, "malformed tx body", nil)
		return
	}
	if !checkVersion(w, req.Version) {
		return
	}

	_, err := s.pool.Add(req.Transaction)
	if err != nil {
		if errors.Is(err, mempool.ErrPoolFull) {
			writeWireError(w, http.StatusServiceUnavailable, KindMempoolFull, err.Error(), nil)
			return
		}
		writeWireError(w, http.StatusBadRequest, KindInvalidTransaction, err.Error(),
			map[string]any{"txid": req.Transaction.ID().String()})
		return
	}

	if s.bcast != nil {
		s.bcast.BroadcastTx(req.Transaction)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeWireError(w, http.StatusBadRequest, KindInvalidURL, "block requires POST", nil)
		return
	}
	var req BlockRequest
	if err := decodeBody(w, r, &req); err != nil || req.Block == nil {
		writeWireError(w, http.StatusBadRequest, KindInvalidURL, "malformed block body", nil)
		return
	}
	if !checkVersion(w, req.Version) {
		return
	}

	if err := s.chain.ApplyBlock(req.Block); err != nil {
		writeWireError(w, http.StatusBadRequest, KindInvalidBlock, err.Error(),
			map[string]any{"height": req.Block.Header.Height})
		return
	}

	if s.bcast != nil {
		s.bcast.BroadcastBlock(req.Block)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeWireError(w, http.StatusNotFound, KindInvalidURL,
		fmt.Sprintf("no such endpoint: %s", strings.TrimSpace(r.URL.Path)), nil)
}
