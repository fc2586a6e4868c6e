package network

import (
	"context"
	"time"

	klog "github.com/klingnet-labs/klingnet-node/internal/log"
)

// ReplacePeerInterval is the cadence at which non-trusted peers are cycled
// out for newly-discovered ones (spec.md §4.6).
const ReplacePeerInterval = 10 * time.Minute

// peerCycleCount is how many non-trusted peers are replaced per cycle.
const peerCycleCount = 2

// discoverCandidates runs the two-round discovery spec.md §4.6 calls for:
// query /get-peers on every current peer, union the results, then query
// /get-peers again on any newly-seen peer from round one, and return the
// full candidate set deduplicated against the current membership.
func discoverCandidates(ctx context.Context, peers *PeerSet) []string {
	current := make(map[string]bool)
	for _, url := range peers.URLs() {
		current[url] = true
	}

	round1 := queryPeersEndpoint(ctx, peers.URLs())
	seen := make(map[string]bool)
	var fresh []string
	for _, url := range round1 {
		if current[url] || seen[url] {
			continue
		}
		seen[url] = true
		fresh = append(fresh, url)
	}

	round2 := queryPeersEndpoint(ctx, fresh)
	for _, url := range round2 {
		if current[url] || seen[url] {
			continue
		}
		seen[url] = true
		fresh = append(fresh, url)
	}

	return fresh
}

// queryPeersEndpoint fetches /get-peers from every URL in sources,
// returning the union of every peer URL they report. Unreachable peers are
// skipped (transient I/O per spec.md §7: logged, not surfaced).
func queryPeersEndpoint(ctx context.Context, sources []string) []string {
	var out []string
	for _, src := range sources {
		reqCtx, cancel := context.WithTimeout(ctx, broadcastTimeout)
		var resp PeerListResponse
		err := getJSON(reqCtx, src+"/get-peers", &resp)
		cancel()
		if err != nil {
			klog.Network.Debug().Err(err).Str("peer", src).Msg("get-peers discovery failed")
			continue
		}
		out = append(out, resp.Peers...)
	}
	return out
}

// RunCycler periodically replaces non-trusted peers with newly-discovered
// ones until ctx is cancelled (spec.md §4.6's "every REPLACE_PEER_INTERVAL
// seconds" rule).
func RunCycler(ctx context.Context, peers *PeerSet) {
	ticker := time.NewTicker(ReplacePeerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			candidates := discoverCandidates(ctx, peers)
			peers.Cycle(peerCycleCount, candidates)
		}
	}
}
