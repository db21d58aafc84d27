// Package events carries status and progress notifications from the core to
// the UI collaborator: commands flow in through the node API, events flow
// out through a Reporter, independent of any particular dispatch loop.
package events

import (
	"time"

	"github.com/marksync/marksync/types"
)

// PeerStatusEvent reports a peer registry change: discovery, status
// transition or eviction.
type PeerStatusEvent struct {
	Timestamp time.Time
	Peer      types.PeerInstance
}

// SyncStage names a phase of a sync operation.
type SyncStage string

// Sync stages in order of occurrence.
const (
	StageConnecting  SyncStage = "connecting"
	StageHandshaking SyncStage = "handshaking"
	StageSending     SyncStage = "sending"
	StageReceiving   SyncStage = "receiving"
	StageMerging     SyncStage = "merging"
	StageDone        SyncStage = "done"
	StageFailed      SyncStage = "failed"
)

// SyncProgressEvent reports progress of a share or sync operation.
type SyncProgressEvent struct {
	Timestamp time.Time
	PeerID    string
	Stage     SyncStage
	Sent      int
	Received  int
	Err       string
}

// DuplicateCandidateEvent surfaces an ambiguous fuzzy duplicate for manual
// resolution.
type DuplicateCandidateEvent struct {
	Timestamp time.Time
	PeerID    string
	Candidate types.DuplicateCandidate
}
