package network

import (
	"context"

	klog "github.com/klingnet-labs/klingnet-node/internal/log"
	"github.com/klingnet-labs/klingnet-node/pkg/block"
	"github.com/klingnet-labs/klingnet-node/pkg/tx"
)

// Broadcaster fans out newly-applied blocks and admitted transactions to
// every current peer, fire-and-forget, on a 500ms-timeout-per-request
// basis (spec.md §4.7). It satisfies internal/forger.Broadcaster.
type Broadcaster struct {
	peers *PeerSet
}

// NewBroadcaster creates a broadcaster fanning out over peers.
func NewBroadcaster(peers *PeerSet) *Broadcaster {
	return &Broadcaster{peers: peers}
}

// BroadcastBlock posts blk to /block on every current peer. Each post runs
// in its own goroutine; failures are logged, never surfaced, and never
// block the caller (spec.md §7's "transient I/O: logged, not surfaced,
// broadcast best-effort").
func (b *Broadcaster) BroadcastBlock(blk *block.Block) {
	req := BlockRequest{Version: ProtocolVersion, Block: blk}
	for _, url := range b.peers.URLs() {
		go func(url string) {
			ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
			defer cancel()
			if err := postJSON(ctx, url+"/block", req, nil); err != nil {
				klog.Network.Debug().Err(err).Str("peer", url).Msg("broadcast block failed")
			}
		}(url)
	}
}

// BroadcastTx posts t to /tx on every current peer, same fire-and-forget
// discipline as BroadcastBlock.
func (b *Broadcaster) BroadcastTx(t *tx.Transaction) {
	req := TxRequest{Version: ProtocolVersion, Transaction: t}
	for _, url := range b.peers.URLs() {
		go func(url string) {
			ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
			defer cancel()
			if err := postJSON(ctx, url+"/tx", req, nil); err != nil {
				klog.Network.Debug().Err(err).Str("peer", url).Msg("broadcast tx failed")
			}
		}(url)
	}
}
