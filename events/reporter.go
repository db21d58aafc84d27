package events

import (
	"sync"
	"time"

	"github.com/marksync/marksync/log"
)

const defaultChannelBuffer = 32

// Reporter fans events out to the UI collaborator over buffered channels.
// Emission never blocks the emitting connection handler: when a subscriber
// falls behind its buffer, events for it are dropped.
type Reporter struct {
	logger log.Log

	mu         sync.RWMutex
	peerSubs   []chan PeerStatusEvent
	progSubs   []chan SyncProgressEvent
	candidates []chan DuplicateCandidateEvent
	closed     bool
}

// NewReporter creates an event reporter.
func NewReporter(logger log.Log) *Reporter {
	return &Reporter{logger: logger}
}

// SubscribePeerStatus returns a channel of peer status events.
func (r *Reporter) SubscribePeerStatus() <-chan PeerStatusEvent {
	ch := make(chan PeerStatusEvent, defaultChannelBuffer)
	r.mu.Lock()
	r.peerSubs = append(r.peerSubs, ch)
	r.mu.Unlock()
	return ch
}

// SubscribeSyncProgress returns a channel of sync progress events.
func (r *Reporter) SubscribeSyncProgress() <-chan SyncProgressEvent {
	ch := make(chan SyncProgressEvent, defaultChannelBuffer)
	r.mu.Lock()
	r.progSubs = append(r.progSubs, ch)
	r.mu.Unlock()
	return ch
}

// SubscribeDuplicateCandidates returns a channel of duplicate candidate
// events.
func (r *Reporter) SubscribeDuplicateCandidates() <-chan DuplicateCandidateEvent {
	ch := make(chan DuplicateCandidateEvent, defaultChannelBuffer)
	r.mu.Lock()
	r.candidates = append(r.candidates, ch)
	r.mu.Unlock()
	return ch
}

// EmitPeerStatus publishes a peer status event.
func (r *Reporter) EmitPeerStatus(ev PeerStatusEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	for _, ch := range r.peerSubs {
		select {
		case ch <- ev:
		default:
			r.logger.Debug("peer status subscriber lagging, event dropped")
		}
	}
}

// EmitSyncProgress publishes a sync progress event.
func (r *Reporter) EmitSyncProgress(ev SyncProgressEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	for _, ch := range r.progSubs {
		select {
		case ch <- ev:
		default:
			r.logger.Debug("sync progress subscriber lagging, event dropped")
		}
	}
}

// EmitDuplicateCandidate publishes a duplicate candidate event.
func (r *Reporter) EmitDuplicateCandidate(ev DuplicateCandidateEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	for _, ch := range r.candidates {
		select {
		case ch <- ev:
		default:
			r.logger.Debug("duplicate candidate subscriber lagging, event dropped")
		}
	}
}

// Close closes all subscriber channels. Emit calls after Close are no-ops.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, ch := range r.peerSubs {
		close(ch)
	}
	for _, ch := range r.progSubs {
		close(ch)
	}
	for _, ch := range r.candidates {
		close(ch)
	}
}
