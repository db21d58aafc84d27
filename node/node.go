// Package node assembles the marksync components into a running application:
// security guard, discovery, secure channel listener and sync engine, plus
// the command surface consumed by the UI collaborator.
package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/marksync/marksync/browsers"
	"github.com/marksync/marksync/config"
	"github.com/marksync/marksync/discovery"
	"github.com/marksync/marksync/events"
	"github.com/marksync/marksync/guard"
	"github.com/marksync/marksync/log"
	"github.com/marksync/marksync/p2p/handshake"
	p2pnet "github.com/marksync/marksync/p2p/net"
	"github.com/marksync/marksync/p2p/p2pcrypto"
	"github.com/marksync/marksync/syncer"
	"github.com/marksync/marksync/types"
)

const (
	connectAttempts      = 3
	connectRetryInterval = time.Second
)

var (
	// ErrUnknownPeer is returned for commands naming a peer not in the
	// registry.
	ErrUnknownPeer = errors.New("unknown peer")
	// ErrNotConnected is returned for share/sync commands without an
	// established session.
	ErrNotConnected = errors.New("peer is not connected")
	// ErrSelectionRequired is returned by Share without IDs when the
	// configured default share mode expects an explicit selection.
	ErrSelectionRequired = errors.New("share mode requires a bookmark selection")
	// ErrPersistFailed wraps a write-back failure. The in-memory merge is
	// kept; the caller may retry the write-back independently.
	ErrPersistFailed = errors.New("persisting merge result failed")
)

// peerConn is a live outbound session and its connection, owned by the app.
type peerConn struct {
	peer   syncer.Peer
	cancel context.CancelFunc
}

// App wires all components; lifetime is tied to the process.
type App struct {
	cfg      config.Config
	logger   log.Log
	clock    clockwork.Clock
	identity handshake.Identity

	guard    *guard.Guard
	registry *discovery.Registry
	disc     *discovery.Service
	network  *p2pnet.Net
	hs       *handshake.Protocol
	engine   *syncer.Engine
	reporter *events.Reporter
	browsers *browsers.Registry

	collMu sync.RWMutex
	local  *types.Collection

	connMu sync.Mutex
	conns  map[string]*peerConn // peer instance id -> live session
}

// Opt configures an App.
type Opt func(*App)

// WithLog sets the application logger.
func WithLog(logger log.Log) Opt {
	return func(a *App) { a.logger = logger }
}

// WithClock sets the clock shared by guard and discovery.
func WithClock(clock clockwork.Clock) Opt {
	return func(a *App) { a.clock = clock }
}

// WithBrowserRegistry installs the external per-browser collaborators.
func WithBrowserRegistry(reg *browsers.Registry) Opt {
	return func(a *App) { a.browsers = reg }
}

// New builds an App from configuration. The long-term key pair is loaded
// from the configured key file or generated fresh.
func New(cfg config.Config, opts ...Opt) (*App, error) {
	app := &App{
		cfg:      cfg,
		logger:   log.NewDefault("marksync"),
		clock:    clockwork.NewRealClock(),
		browsers: browsers.NewRegistry(),
		conns:    make(map[string]*peerConn),
		local:    types.NewCollection(types.BrowserTag(cfg.Browser)),
	}
	for _, opt := range opts {
		opt(app)
	}

	priv, pub, err := loadOrGenerateKey(cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	app.identity = handshake.Identity{
		InstanceID:   pub.String(),
		PrivKey:      priv,
		PubKey:       pub,
		Capabilities: []string{"share:" + string(cfg.Sync.DefaultShareMode), "sync"},
	}

	app.guard = guard.New(cfg.Guard,
		guard.WithLog(app.logger.WithName("guard")),
		guard.WithClock(app.clock))
	app.reporter = events.NewReporter(app.logger.WithName("events"))
	app.registry = discovery.NewRegistry(app.clock)
	app.registry.OnUpdate(func(p types.PeerInstance) {
		app.reporter.EmitPeerStatus(events.PeerStatusEvent{Peer: p})
	})
	app.disc = discovery.New(cfg.Discovery, discovery.Announcement{
		InstanceID:   app.identity.InstanceID,
		Port:         cfg.ListenPort,
		Fingerprint:  p2pcrypto.Fingerprint(pub),
		Capabilities: app.identity.Capabilities,
		Version:      handshake.ProtocolVersion,
	}, app.registry, app.logger.WithName("discovery"), app.clock)
	app.hs = handshake.New(cfg.Handshake, app.identity, app.logger.WithName("handshake"))
	app.engine = syncer.New(cfg.Sync, app.guard, app.reporter, app.logger.WithName("syncer"))
	app.network = p2pnet.New(app.guard, app.handleInbound,
		p2pnet.WithLog(app.logger.WithName("p2p")))
	return app, nil
}

func loadOrGenerateKey(keyFile string) (p2pcrypto.PrivateKey, p2pcrypto.PublicKey, error) {
	if keyFile == "" {
		return generateKey("")
	}
	buf, err := os.ReadFile(keyFile)
	if err != nil {
		if os.IsNotExist(err) {
			return generateKey(keyFile)
		}
		return nil, nil, fmt.Errorf("read key file: %w", err)
	}
	priv, err := p2pcrypto.NewPrivateKeyFromBase58(strings.TrimSpace(string(buf)))
	if err != nil {
		return nil, nil, fmt.Errorf("parse key file: %w", err)
	}
	pub := p2pcrypto.PublicKeyOf(priv)
	return priv, pub, nil
}

func generateKey(keyFile string) (p2pcrypto.PrivateKey, p2pcrypto.PublicKey, error) {
	priv, pub, err := p2pcrypto.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("generate key pair: %w", err)
	}
	if keyFile != "" {
		if err := os.WriteFile(keyFile, []byte(priv.String()), 0o600); err != nil {
			return nil, nil, fmt.Errorf("write key file: %w", err)
		}
	}
	return priv, pub, nil
}

// InstanceID returns this instance's public-key derived identifier.
func (a *App) InstanceID() string {
	return a.identity.InstanceID
}

// Events returns the event reporter the UI subscribes to.
func (a *App) Events() *events.Reporter {
	return a.reporter
}

// Browsers returns the external collaborator registry.
func (a *App) Browsers() *browsers.Registry {
	return a.browsers
}

// LocalCollection returns the collection this instance syncs. It implements
// syncer.CollectionSource for inbound traffic.
func (a *App) LocalCollection() *types.Collection {
	a.collMu.RLock()
	defer a.collMu.RUnlock()
	return a.local
}

// LoadLocalCollection parses the configured browser's bookmarks through the
// registered collaborator. A missing or unparseable source leaves the
// current collection in place: no data from that source is not fatal.
func (a *App) LoadLocalCollection(ctx context.Context) error {
	tag := types.BrowserTag(a.cfg.Browser)
	coll, err := a.browsers.ParseBrowserBookmarks(ctx, tag)
	if err != nil {
		a.logger.With().Warning("no bookmark data available",
			log.Browser(string(tag)), log.Err(err))
		return err
	}
	a.collMu.Lock()
	a.local = coll
	a.collMu.Unlock()
	a.logger.With().Info("local collection loaded",
		log.Browser(string(tag)), log.Int("bookmarks", coll.Len()))
	return nil
}

// Start runs the listener, discovery and guard sweep until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	if err := a.network.Listen(a.cfg.ListenPort); err != nil {
		return err
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return a.network.Start(ctx) })
	eg.Go(func() error { return a.disc.Start(ctx) })
	eg.Go(func() error {
		a.guard.Start(ctx)
		return nil
	})
	if a.cfg.CollectMetrics {
		eg.Go(func() error { return a.serveMetrics(ctx) })
	}
	err := eg.Wait()
	a.closeAll()
	a.reporter.Close()
	return err
}

func (a *App) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", a.cfg.MetricsPort), Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleInbound serves one accepted connection: handshake, session
// registration, then the sync engine's serve loop.
func (a *App) handleInbound(ctx context.Context, conn *p2pnet.Conn) {
	res, err := a.hs.Accept(ctx, conn)
	if err != nil {
		a.guard.Strike(conn.RemoteIP(), "handshake failed")
		a.logger.With().Warning("inbound handshake failed",
			log.String("addr", conn.RemoteIP()), log.Err(err))
		return
	}
	sess := res.Session
	if err := a.guard.RegisterSession(sess.Token(), conn.RemoteIP(), sess.PeerID()); err != nil {
		a.logger.With().Warning("session rejected",
			log.PeerID(sess.PeerID()), log.Err(err))
		return
	}
	defer a.guard.ReleaseSession(sess.Token())

	a.registry.Upsert(types.PeerInstance{
		ID:           res.PeerInstanceID,
		Address:      conn.RemoteIP(),
		Capabilities: res.PeerCapabilities,
	})
	a.registry.SetStatus(res.PeerInstanceID, types.StatusAuthenticated)
	defer a.registry.SetStatus(res.PeerInstanceID, types.StatusIdle)

	if err := a.engine.Serve(ctx, syncer.Peer{Conn: conn, Session: sess}, a); err != nil {
		a.logger.With().Debug("session ended",
			log.PeerID(sess.PeerID()), log.Err(err))
	}
}

// Peers returns a consistent snapshot of the peer registry.
func (a *App) Peers() []types.PeerInstance {
	return a.registry.Snapshot()
}

// AddPeer registers a peer manually by address and port, bypassing
// discovery.
func (a *App) AddPeer(address string, port uint16) types.PeerInstance {
	return a.disc.AddManual(address, port)
}

// Connect dials a registered peer and establishes an authenticated session.
// Network failures are retried with bounded backoff before surfacing.
func (a *App) Connect(ctx context.Context, peerID string) error {
	peer, ok := a.registry.Get(peerID)
	if !ok {
		return ErrUnknownPeer
	}
	if a.guard.IsBlacklisted(peer.Address) {
		return guard.ErrBlacklisted
	}

	a.connMu.Lock()
	if _, connected := a.conns[peerID]; connected {
		a.connMu.Unlock()
		return nil
	}
	a.connMu.Unlock()

	a.registry.SetStatus(peerID, types.StatusConnecting)
	a.reporter.EmitSyncProgress(events.SyncProgressEvent{PeerID: peerID, Stage: events.StageConnecting})

	var lastErr error
	for i := 0; i < connectAttempts; i++ {
		if err := a.connectOnce(ctx, peerID, peer.Endpoint()); err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				a.registry.SetStatus(peerID, types.StatusDiscovered)
				return ctx.Err()
			case <-a.clock.After(connectRetryInterval):
			}
			continue
		}
		return nil
	}
	a.registry.SetStatus(peerID, types.StatusDiscovered)
	a.reporter.EmitSyncProgress(events.SyncProgressEvent{
		PeerID: peerID, Stage: events.StageFailed, Err: lastErr.Error(),
	})
	return lastErr
}

func (a *App) connectOnce(ctx context.Context, peerID, endpoint string) error {
	conn, err := a.network.Dial(ctx, endpoint)
	if err != nil {
		return err
	}
	a.registry.SetStatus(peerID, types.StatusHandshaking)
	res, err := a.hs.Initiate(ctx, conn)
	if err != nil {
		conn.Close()
		a.guard.Strike(conn.RemoteIP(), "handshake failed")
		return err
	}
	sess := res.Session
	if err := a.guard.RegisterSession(sess.Token(), conn.RemoteIP(), sess.PeerID()); err != nil {
		conn.Close()
		return err
	}

	connCtx, cancel := context.WithCancel(ctx)
	a.connMu.Lock()
	a.conns[peerID] = &peerConn{
		peer:   syncer.Peer{Conn: conn, Session: sess},
		cancel: cancel,
	}
	a.connMu.Unlock()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	a.registry.SetStatus(peerID, types.StatusAuthenticated)
	return nil
}

// Disconnect closes the session to a peer and releases its guard
// accounting.
func (a *App) Disconnect(peerID string) error {
	a.connMu.Lock()
	pc, ok := a.conns[peerID]
	if ok {
		delete(a.conns, peerID)
	}
	a.connMu.Unlock()
	if !ok {
		return ErrNotConnected
	}
	pc.cancel()
	a.guard.ReleaseSession(pc.peer.Session.Token())
	a.registry.SetStatus(peerID, types.StatusIdle)
	return nil
}

func (a *App) session(peerID string) (syncer.Peer, error) {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	pc, ok := a.conns[peerID]
	if !ok {
		return syncer.Peer{}, ErrNotConnected
	}
	return pc.peer, nil
}

// Share transmits bookmarks to a connected peer. With no IDs the default
// share mode decides between the full collection and nothing; with IDs only
// that subset travels, and unknown IDs are reported back, not fatal.
func (a *App) Share(ctx context.Context, peerID string, ids ...string) (int, []string, error) {
	peer, err := a.session(peerID)
	if err != nil {
		return 0, nil, err
	}
	a.registry.SetStatus(peerID, types.StatusSyncing)
	defer a.registry.SetStatus(peerID, types.StatusAuthenticated)

	local := a.LocalCollection()
	if len(ids) > 0 {
		return a.engine.ShareSelected(ctx, peer, ids, local)
	}
	if a.cfg.Sync.DefaultShareMode == syncer.ShareSelectedMode {
		return 0, nil, ErrSelectionRequired
	}
	sent, err := a.engine.ShareAll(ctx, peer, local)
	return sent, nil, err
}

// Sync runs a two-way sync with a connected peer, applies the merge in
// memory and hands the result to the persistence collaborator. A write-back
// failure is reported as ErrPersistFailed together with the kept result.
func (a *App) Sync(ctx context.Context, peerID string) (*types.MergeResult, error) {
	peer, err := a.session(peerID)
	if err != nil {
		return nil, err
	}
	a.registry.SetStatus(peerID, types.StatusSyncing)
	defer a.registry.SetStatus(peerID, types.StatusAuthenticated)

	// the exchange can wait up to the request timeout; readers must not
	// stall behind it, so the collection pointer is taken briefly and the
	// engine serializes the merge itself
	result, err := a.engine.TwoWaySync(ctx, peer, a.LocalCollection())
	if err != nil {
		return nil, err
	}

	tag := types.BrowserTag(a.cfg.Browser)
	if err := a.browsers.PersistMergedCollection(ctx, result, tag); err != nil {
		if !errors.Is(err, browsers.ErrNotFound) {
			return result, fmt.Errorf("%w: %v", ErrPersistFailed, err)
		}
		a.logger.With().Debug("no persister registered", log.Browser(string(tag)))
	}
	return result, nil
}

// closeAll shuts down every live outbound session.
func (a *App) closeAll() {
	a.connMu.Lock()
	conns := a.conns
	a.conns = make(map[string]*peerConn)
	a.connMu.Unlock()
	for id, pc := range conns {
		pc.cancel()
		a.guard.ReleaseSession(pc.peer.Session.Token())
		a.registry.SetStatus(id, types.StatusIdle)
	}
}
