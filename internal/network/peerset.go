package network

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/klingnet-labs/klingnet-node/internal/storage"
)

const (
	peerKeyPrefix     = "peer/"
	staleThreshold    = 24 * time.Hour
	persistInterval   = 5 * time.Minute
	maxPersistedPeers = 500
)

// PeerRecord is a persisted peer entry, keyed by its URL (e.g.
// "http://203.0.113.4:7070").
type PeerRecord struct {
	URL      string `json:"url"`
	LastSeen int64  `json:"last_seen"`
	Trusted  bool   `json:"trusted"`
}

// PeerStore persists peer records in a storage.DB under the "peer/" prefix.
type PeerStore struct {
	db storage.DB
}

// NewPeerStore creates a PeerStore backed by the given DB.
func NewPeerStore(db storage.DB) *PeerStore {
	return &PeerStore{db: db}
}

func peerKey(url string) []byte {
	return []byte(peerKeyPrefix + url)
}

// Save persists a peer record. If the store already holds maxPersistedPeers
// records and this is a new peer, the save is silently skipped.
func (ps *PeerStore) Save(rec PeerRecord) error {
	key := peerKey(rec.URL)

	exists, err := ps.db.Has(key)
	if err != nil {
		return fmt.Errorf("check peer exists: %w", err)
	}
	if !exists {
		count, err := ps.Count()
		if err != nil {
			return fmt.Errorf("count peers: %w", err)
		}
		if count >= maxPersistedPeers {
			return nil
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal peer record: %w", err)
	}
	return ps.db.Put(key, data)
}

// LoadAll returns every persisted peer record.
func (ps *PeerStore) LoadAll() ([]PeerRecord, error) {
	var records []PeerRecord
	err := ps.db.ForEach([]byte(peerKeyPrefix), func(key, value []byte) error {
		var rec PeerRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil // Skip corrupt records.
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate peer records: %w", err)
	}
	return records, nil
}

// Delete removes a peer record.
func (ps *PeerStore) Delete(url string) error {
	return ps.db.Delete(peerKey(url))
}

// PruneStale removes records older than threshold. Returns the number pruned.
func (ps *PeerStore) PruneStale(threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold).Unix()
	var toDelete [][]byte

	err := ps.db.ForEach([]byte(peerKeyPrefix), func(key, value []byte) error {
		var rec PeerRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			keyCopy := append([]byte(nil), key...)
			toDelete = append(toDelete, keyCopy)
			return nil
		}
		if !rec.Trusted && rec.LastSeen < cutoff {
			keyCopy := append([]byte(nil), key...)
			toDelete = append(toDelete, keyCopy)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("iterate for prune: %w", err)
	}

	for _, k := range toDelete {
		if err := ps.db.Delete(k); err != nil {
			return 0, fmt.Errorf("delete stale peer: %w", err)
		}
	}
	return len(toDelete), nil
}

// Count returns the number of persisted peer records.
func (ps *PeerStore) Count() (int, error) {
	count := 0
	err := ps.db.ForEach([]byte(peerKeyPrefix), func(key, value []byte) error {
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count peers: %w", err)
	}
	return count, nil
}

// PeerSet is the node's live, in-memory peer table: bounded by maxPeers,
// with a trusted subset that is never evicted by cycling. Guarded by its
// own RWMutex, held only for the duration of individual updates (spec.md
// §5's peer-set locking rule).
type PeerSet struct {
	mu sync.RWMutex

	maxPeers int
	peers    map[string]PeerRecord // url -> record
	store    *PeerStore             // optional; nil disables persistence
}

// NewPeerSet creates an empty peer set bounded at maxPeers, seeded with the
// given trusted peer URLs (which never count against eviction). store may
// be nil to disable persistence.
func NewPeerSet(maxPeers int, trusted []string, store *PeerStore) *PeerSet {
	ps := &PeerSet{
		maxPeers: maxPeers,
		peers:    make(map[string]PeerRecord, maxPeers),
		store:    store,
	}
	for _, url := range trusted {
		ps.peers[url] = PeerRecord{URL: url, LastSeen: time.Now().Unix(), Trusted: true}
	}
	if store != nil {
		if recs, err := store.LoadAll(); err == nil {
			for _, rec := range recs {
				if _, exists := ps.peers[rec.URL]; !exists && len(ps.peers) < maxPeers {
					ps.peers[rec.URL] = rec
				}
			}
		}
	}
	return ps
}

// ErrPeerSetFull is returned by Add when the set is at capacity and url is
// not already a member.
var ErrPeerSetFull = fmt.Errorf("peer set is full")

// Add inserts a peer, succeeding as a no-op if already present. Returns
// ErrPeerSetFull if the set is at maxPeers and url is new.
func (ps *PeerSet) Add(url string, trusted bool) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.peers[url]; exists {
		return nil
	}
	if len(ps.peers) >= ps.maxPeers {
		return ErrPeerSetFull
	}
	rec := PeerRecord{URL: url, LastSeen: time.Now().Unix(), Trusted: trusted}
	ps.peers[url] = rec
	if ps.store != nil {
		_ = ps.store.Save(rec)
	}
	return nil
}

// Remove evicts a peer by URL, regardless of its trusted status (symmetric
// to /unpair — an explicit unpair always succeeds).
func (ps *PeerSet) Remove(url string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.peers, url)
	if ps.store != nil {
		_ = ps.store.Delete(url)
	}
}

// Has reports whether url is currently a member.
func (ps *PeerSet) Has(url string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	_, exists := ps.peers[url]
	return exists
}

// URLs returns a snapshot of every peer URL currently in the set.
func (ps *PeerSet) URLs() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]string, 0, len(ps.peers))
	for url := range ps.peers {
		out = append(out, url)
	}
	return out
}

// Len returns the current peer count.
func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.peers)
}

// Cycle replaces up to peerCycleCount non-trusted peers with candidates,
// deduplicated against the current set. candidates is expected to already
// be deduplicated against the current membership by two discovery rounds
// (the caller's responsibility per spec.md §4.6); Cycle itself only
// enforces membership and the trusted carve-out.
func (ps *PeerSet) Cycle(peerCycleCount int, candidates []string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	var evictable []string
	for url, rec := range ps.peers {
		if !rec.Trusted {
			evictable = append(evictable, url)
		}
	}

	added := 0
	for _, cand := range candidates {
		if added >= peerCycleCount || len(evictable) == 0 {
			break
		}
		if _, exists := ps.peers[cand]; exists {
			continue
		}
		victim := evictable[0]
		evictable = evictable[1:]

		delete(ps.peers, victim)
		if ps.store != nil {
			_ = ps.store.Delete(victim)
		}

		rec := PeerRecord{URL: cand, LastSeen: time.Now().Unix()}
		ps.peers[cand] = rec
		if ps.store != nil {
			_ = ps.store.Save(rec)
		}
		added++
	}
}

// Touch refreshes a peer's LastSeen timestamp (called on every successful
// inbound or outbound exchange).
func (ps *PeerSet) Touch(url string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	rec, exists := ps.peers[url]
	if !exists {
		return
	}
	rec.LastSeen = time.Now().Unix()
	ps.peers[url] = rec
	if ps.store != nil {
		_ = ps.store.Save(rec)
	}
}
