package discovery

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/marksync/marksync/types"
)

// Registry is the live peer table. It is written by the discovery listener
// and read concurrently by the UI collaborator; snapshots are copies, never
// views into shared entries.
type Registry struct {
	clock clockwork.Clock

	mu       sync.RWMutex
	peers    map[string]*types.PeerInstance
	onUpdate func(types.PeerInstance)
}

// NewRegistry creates an empty registry.
func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		clock: clock,
		peers: make(map[string]*types.PeerInstance),
	}
}

// OnUpdate registers a callback invoked with a copy of every upserted or
// evicted entry. Used to feed status events to the UI.
func (r *Registry) OnUpdate(fn func(types.PeerInstance)) {
	r.mu.Lock()
	r.onUpdate = fn
	r.mu.Unlock()
}

// Upsert inserts or refreshes a peer entry from an announcement, refreshing
// its last-seen timestamp. Existing connection status survives the refresh,
// and zero-valued endpoint fields never overwrite known ones: an inbound
// connection identifies a peer without learning its listen port, and that
// refresh must not make the entry undialable.
func (r *Registry) Upsert(peer types.PeerInstance) {
	r.mu.Lock()
	existing, ok := r.peers[peer.ID]
	if ok {
		if peer.Address != "" {
			existing.Address = peer.Address
		}
		if peer.Port != 0 {
			existing.Port = peer.Port
		}
		if peer.Fingerprint != "" {
			existing.Fingerprint = peer.Fingerprint
		}
		if len(peer.Capabilities) > 0 {
			existing.Capabilities = peer.Capabilities
		}
		existing.LastSeen = r.clock.Now()
		peer = *existing
	} else {
		peer.LastSeen = r.clock.Now()
		if peer.Status == 0 {
			peer.Status = types.StatusDiscovered
		}
		cp := peer
		r.peers[peer.ID] = &cp
	}
	fn := r.onUpdate
	r.mu.Unlock()
	if fn != nil {
		fn(peer)
	}
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id string) (types.PeerInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok {
		return types.PeerInstance{}, false
	}
	return *p, true
}

// SetStatus updates a peer's connection status and refreshes its last-seen
// timestamp for non-terminal statuses.
func (r *Registry) SetStatus(id string, status types.ConnectionStatus) {
	r.mu.Lock()
	p, ok := r.peers[id]
	var cp types.PeerInstance
	if ok {
		p.Status = status
		if status != types.StatusBlacklisted {
			p.LastSeen = r.clock.Now()
		}
		cp = *p
	}
	fn := r.onUpdate
	r.mu.Unlock()
	if ok && fn != nil {
		fn(cp)
	}
}

// Snapshot returns a consistent copy of all entries.
func (r *Registry) Snapshot() []types.PeerInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.PeerInstance, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, *p)
	}
	return out
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// EvictStale removes entries not refreshed within the liveness window.
// Discovery timeout is not a security event: entries are dropped, never
// blacklisted. Blacklisted entries are kept so the UI can show them.
func (r *Registry) EvictStale(window time.Duration) []types.PeerInstance {
	now := r.clock.Now()
	var evicted []types.PeerInstance
	r.mu.Lock()
	for id, p := range r.peers {
		if p.Status == types.StatusBlacklisted {
			continue
		}
		if now.Sub(p.LastSeen) > window {
			evicted = append(evicted, *p)
			delete(r.peers, id)
		}
	}
	fn := r.onUpdate
	r.mu.Unlock()
	if fn != nil {
		for _, p := range evicted {
			fn(p)
		}
	}
	return evicted
}
