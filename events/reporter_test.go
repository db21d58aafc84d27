package events

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marksync/marksync/log/logtest"
	"github.com/marksync/marksync/types"
)

func TestReporterDeliversToSubscribers(t *testing.T) {
	r := require.New(t)
	rep := NewReporter(logtest.New(t))
	defer rep.Close()

	peerCh := rep.SubscribePeerStatus()
	progCh := rep.SubscribeSyncProgress()
	candCh := rep.SubscribeDuplicateCandidates()

	rep.EmitPeerStatus(PeerStatusEvent{Peer: types.PeerInstance{ID: "p1"}})
	rep.EmitSyncProgress(SyncProgressEvent{PeerID: "p1", Stage: StageDone})
	rep.EmitDuplicateCandidate(DuplicateCandidateEvent{PeerID: "p1"})

	got := <-peerCh
	r.Equal("p1", got.Peer.ID)
	r.False(got.Timestamp.IsZero())

	prog := <-progCh
	r.Equal(StageDone, prog.Stage)

	cand := <-candCh
	r.Equal("p1", cand.PeerID)
}

func TestReporterNeverBlocks(t *testing.T) {
	rep := NewReporter(logtest.New(t))
	defer rep.Close()

	// subscriber that never reads
	rep.SubscribePeerStatus()
	for i := 0; i < defaultChannelBuffer*2; i++ {
		rep.EmitPeerStatus(PeerStatusEvent{Peer: types.PeerInstance{ID: "p"}})
	}
	// reaching here is the assertion
}

func TestReporterClose(t *testing.T) {
	r := require.New(t)
	rep := NewReporter(logtest.New(t))
	ch := rep.SubscribePeerStatus()

	rep.Close()
	rep.Close() // idempotent
	rep.EmitPeerStatus(PeerStatusEvent{}) // no panic after close

	_, open := <-ch
	r.False(open)
}

func TestReporterMultipleSubscribers(t *testing.T) {
	r := require.New(t)
	rep := NewReporter(logtest.New(t))
	defer rep.Close()

	a := rep.SubscribeSyncProgress()
	b := rep.SubscribeSyncProgress()
	rep.EmitSyncProgress(SyncProgressEvent{PeerID: "p1", Stage: StageSending})

	r.Equal("p1", (<-a).PeerID)
	r.Equal("p1", (<-b).PeerID)
}
