// Package syncer is the sync engine: it drives share and two-way sync
// operations over established secure sessions and serves the same operations
// to remote peers.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marksync/marksync/codec"
	"github.com/marksync/marksync/events"
	"github.com/marksync/marksync/guard"
	"github.com/marksync/marksync/log"
	p2pnet "github.com/marksync/marksync/p2p/net"
	"github.com/marksync/marksync/p2p/wire"
	"github.com/marksync/marksync/types"
)

var (
	// ErrPeerReported is returned when the peer answered with an ERROR
	// message instead of the expected response.
	ErrPeerReported = errors.New("peer reported error")
	// ErrUnexpectedMessage is returned when the peer answered with an
	// unrelated message type.
	ErrUnexpectedMessage = errors.New("unexpected message type")
)

// Peer is an authenticated connection: the transport plus its session.
type Peer struct {
	Conn    *p2pnet.Conn
	Session *p2pnet.Session
}

// CollectionSource yields the local collection served to remote peers.
// Implementations must be safe for concurrent use.
type CollectionSource interface {
	LocalCollection() *types.Collection
}

// Engine implements share and two-way sync over secure sessions.
type Engine struct {
	cfg      Config
	logger   log.Log
	guard    *guard.Guard
	reporter *events.Reporter

	// mergeMu serializes collection mutation across concurrent sessions.
	// It is never held during network I/O.
	mergeMu sync.Mutex
}

// New creates a sync engine.
func New(cfg Config, g *guard.Guard, reporter *events.Reporter, logger log.Log) *Engine {
	if cfg.FuzzyThreshold == 0 {
		cfg.FuzzyThreshold = DefaultConfig().FuzzyThreshold
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	return &Engine{cfg: cfg, logger: logger, guard: g, reporter: reporter}
}

func (e *Engine) policy() Policy {
	return Policy{FuzzyThreshold: e.cfg.FuzzyThreshold, TieBreak: e.cfg.TieBreak}
}

// ShareAll transmits the entire local collection to the peer. It returns the
// number of bookmarks sent and never mutates local state.
func (e *Engine) ShareAll(ctx context.Context, peer Peer, local *types.Collection) (int, error) {
	return e.share(ctx, peer, local.All(), string(local.Source))
}

// ShareSelected transmits only the bookmarks with the given IDs. IDs not
// found locally are skipped and returned, not fatal.
func (e *Engine) ShareSelected(ctx context.Context, peer Peer, ids []string, local *types.Collection) (int, []string, error) {
	var (
		selected []types.Bookmark
		missing  []string
	)
	for _, id := range ids {
		if b := local.Find(id); b != nil {
			selected = append(selected, *b)
		} else {
			missing = append(missing, id)
		}
	}
	sent, err := e.share(ctx, peer, selected, string(local.Source))
	return sent, missing, err
}

func (e *Engine) share(ctx context.Context, peer Peer, bookmarks []types.Bookmark, source string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	e.reporter.EmitSyncProgress(events.SyncProgressEvent{
		PeerID: peer.Session.PeerID(),
		Stage:  events.StageSending,
		Sent:   len(bookmarks),
	})

	peer.Conn.SetDeadline(time.Now().Add(e.cfg.RequestTimeout))
	defer peer.Conn.ClearDeadline()

	payload := wire.SharePayload{Source: source, Bookmarks: wire.ToWireAll(bookmarks)}
	if err := e.send(peer, wire.MsgShare, &payload); err != nil {
		return 0, err
	}

	var ack wire.AckPayload
	if err := e.expect(peer, wire.MsgAck, &ack); err != nil {
		return 0, err
	}
	bookmarksTransferred.WithLabelValues("sent").Add(float64(len(bookmarks)))
	e.logger.With().Info("share complete",
		log.PeerID(peer.Session.PeerID()),
		log.Int("sent", len(bookmarks)),
		log.Int("acked", int(ack.Received)))
	return len(bookmarks), nil
}

// TwoWaySync requests the peer's full collection and merges it against the
// local one. The merge is applied in memory and returned for write-back; it
// never deletes local bookmarks, and re-running it with no intervening
// changes yields empty add and update sets.
func (e *Engine) TwoWaySync(ctx context.Context, peer Peer, local *types.Collection) (*types.MergeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	peerID := peer.Session.PeerID()
	e.reporter.EmitSyncProgress(events.SyncProgressEvent{PeerID: peerID, Stage: events.StageReceiving})

	peer.Conn.SetDeadline(time.Now().Add(e.cfg.RequestTimeout))
	defer peer.Conn.ClearDeadline()

	if err := e.send(peer, wire.MsgSyncRequest, &wire.AckPayload{}); err != nil {
		syncsCompleted.WithLabelValues("failed").Inc()
		return nil, err
	}
	var data wire.SharePayload
	if err := e.expect(peer, wire.MsgSyncData, &data); err != nil {
		syncsCompleted.WithLabelValues("failed").Inc()
		return nil, err
	}
	incoming := wire.FromWireAll(data.Bookmarks)
	bookmarksTransferred.WithLabelValues("received").Add(float64(len(incoming)))

	e.reporter.EmitSyncProgress(events.SyncProgressEvent{
		PeerID:   peerID,
		Stage:    events.StageMerging,
		Received: len(incoming),
	})
	e.mergeMu.Lock()
	result := Merge(local, incoming, e.policy())
	e.mergeMu.Unlock()
	e.report(peerID, result)

	syncsCompleted.WithLabelValues("ok").Inc()
	e.reporter.EmitSyncProgress(events.SyncProgressEvent{
		PeerID:   peerID,
		Stage:    events.StageDone,
		Received: len(incoming),
	})
	e.logger.With().Info("two-way sync complete",
		log.PeerID(peerID),
		log.Int("received", len(incoming)),
		log.Int("added", len(result.Added)),
		log.Int("updated", len(result.Updated)),
		log.Int("duplicates", len(result.Duplicates)),
		log.Int("candidates", len(result.Candidates)))
	return result, nil
}

func (e *Engine) report(peerID string, result *types.MergeResult) {
	duplicatesResolved.WithLabelValues().Add(float64(len(result.Duplicates)))
	candidatesSurfaced.WithLabelValues().Add(float64(len(result.Candidates)))
	for _, c := range result.Candidates {
		e.reporter.EmitDuplicateCandidate(events.DuplicateCandidateEvent{
			PeerID:    peerID,
			Candidate: c,
		})
	}
}

// Serve reads and dispatches inbound messages on an authenticated session
// until the context is cancelled, the session expires or the peer is
// blacklisted. It answers SHARE with a merge + ACK and SYNC_REQUEST with the
// local collection. Protocol and security failures are strikes; the
// connection closes only when the guard blacklists the source.
func (e *Engine) Serve(ctx context.Context, peer Peer, source CollectionSource) error {
	addr := peer.Conn.RemoteIP()
	peerID := peer.Session.PeerID()
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		env, err := peer.Conn.ReadEnvelope()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read envelope: %w", err)
		}
		if err := e.guard.AllowMessage(addr); err != nil {
			messagesDropped.WithLabelValues("rate_limited").Inc()
			if e.guard.IsBlacklisted(addr) {
				return err
			}
			continue
		}
		if err := e.guard.TouchSession(peer.Session.Token()); err != nil {
			e.sendError(peer, "session", err.Error())
			return err
		}
		msg, err := peer.Session.OpenMessage(env)
		if err != nil {
			e.handleOpenFailure(peer, addr, err)
			if e.guard.IsBlacklisted(addr) {
				return guard.ErrBlacklisted
			}
			continue
		}
		if err := e.dispatch(peer, peerID, msg, source); err != nil {
			e.logger.With().Warning("dispatch failed",
				log.PeerID(peerID), log.Err(err))
		}
	}
}

func (e *Engine) handleOpenFailure(peer Peer, addr string, err error) {
	switch {
	case errors.Is(err, p2pnet.ErrReplay):
		// replayed messages are dropped without processing any data
		messagesDropped.WithLabelValues("replay").Inc()
		e.guard.Strike(addr, "replay detected")
	case errors.Is(err, p2pnet.ErrSessionExpired):
		messagesDropped.WithLabelValues("expired").Inc()
	default:
		messagesDropped.WithLabelValues("verify_failed").Inc()
		e.guard.Strike(addr, "verification failed")
	}
}

func (e *Engine) dispatch(peer Peer, peerID string, msg *wire.Message, source CollectionSource) error {
	switch wire.MessageType(msg.Type) {
	case wire.MsgShare:
		var payload wire.SharePayload
		if err := codec.Decode(msg.Payload, &payload); err != nil {
			e.guard.Strike(peer.Conn.RemoteIP(), "malformed payload")
			return fmt.Errorf("decode share payload: %w", err)
		}
		incoming := wire.FromWireAll(payload.Bookmarks)
		bookmarksTransferred.WithLabelValues("received").Add(float64(len(incoming)))
		e.mergeMu.Lock()
		result := Merge(source.LocalCollection(), incoming, e.policy())
		e.mergeMu.Unlock()
		e.report(peerID, result)
		return e.send(peer, wire.MsgAck, &wire.AckPayload{Received: uint32(len(incoming))})

	case wire.MsgSyncRequest:
		local := source.LocalCollection()
		bookmarks := local.All()
		bookmarksTransferred.WithLabelValues("sent").Add(float64(len(bookmarks)))
		payload := wire.SharePayload{
			Source:    string(local.Source),
			Bookmarks: wire.ToWireAll(bookmarks),
		}
		return e.send(peer, wire.MsgSyncData, &payload)

	case wire.MsgAck:
		// liveness only; TouchSession already refreshed the traffic time
		return nil

	case wire.MsgError:
		var payload wire.ErrorPayload
		if err := codec.Decode(msg.Payload, &payload); err == nil {
			e.logger.With().Warning("peer error",
				log.PeerID(peerID),
				log.String("code", payload.Code),
				log.String("message", payload.Message))
		}
		return nil

	default:
		e.guard.Strike(peer.Conn.RemoteIP(), "unknown message type")
		return fmt.Errorf("%w: %s", ErrUnexpectedMessage, wire.MessageType(msg.Type))
	}
}

func (e *Engine) send(peer Peer, t wire.MessageType, payload codec.Encodable) error {
	buf, err := codec.Encode(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	env, err := peer.Session.SealMessage(&wire.Message{Type: uint32(t), Payload: buf})
	if err != nil {
		return fmt.Errorf("seal %s: %w", t, err)
	}
	return peer.Conn.WriteEnvelope(env)
}

func (e *Engine) sendError(peer Peer, code, message string) {
	if err := e.send(peer, wire.MsgError, &wire.ErrorPayload{Code: code, Message: message}); err != nil {
		e.logger.With().Debug("send error message failed", log.Err(err))
	}
}

// expect reads the next envelope and decodes the payload of the wanted type.
// An ERROR answer becomes ErrPeerReported; anything else unexpected is
// ErrUnexpectedMessage.
func (e *Engine) expect(peer Peer, want wire.MessageType, payload codec.Decodable) error {
	env, err := peer.Conn.ReadEnvelope()
	if err != nil {
		return fmt.Errorf("read envelope: %w", err)
	}
	msg, err := peer.Session.OpenMessage(env)
	if err != nil {
		e.handleOpenFailure(peer, peer.Conn.RemoteIP(), err)
		return err
	}
	switch wire.MessageType(msg.Type) {
	case want:
		return codec.Decode(msg.Payload, payload)
	case wire.MsgError:
		var ep wire.ErrorPayload
		if err := codec.Decode(msg.Payload, &ep); err != nil {
			return ErrPeerReported
		}
		return fmt.Errorf("%w: %s: %s", ErrPeerReported, ep.Code, ep.Message)
	default:
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedMessage, wire.MessageType(msg.Type), want)
	}
}
