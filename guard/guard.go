// Package guard implements admission control and abuse mitigation shared by
// every connection: per-address rate limiting, strike accounting with timed
// blacklisting, connection caps and session bookkeeping.
package guard

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/marksync/marksync/log"
)

var (
	// ErrRateLimited is returned when a source address exhausted its
	// token bucket.
	ErrRateLimited = errors.New("rate limited")
	// ErrBlacklisted is returned for addresses currently blacklisted.
	ErrBlacklisted = errors.New("address blacklisted")
	// ErrTooManyConnections is returned when a connection cap is reached.
	ErrTooManyConnections = errors.New("too many connections")
	// ErrSessionExpired is returned for traffic on a session past its TTL.
	ErrSessionExpired = errors.New("session expired")
	// ErrUnknownSession is returned for tokens the guard never issued or
	// already evicted.
	ErrUnknownSession = errors.New("unknown session")
)

type addrState struct {
	limiter  *rate.Limiter
	strikes  []time.Time
	sessions int
	lastSeen time.Time
}

type sessionRecord struct {
	addr        string
	peerID      string
	createdAt   time.Time
	expiresAt   time.Time
	lastTraffic time.Time
}

// Guard is the shared security state. All methods are safe for concurrent
// use; mutation is serialized by a single mutex while connection I/O stays
// outside of it.
type Guard struct {
	cfg    Config
	logger log.Log
	clock  clockwork.Clock

	mu        sync.Mutex
	addrs     map[string]*addrState
	blacklist map[string]time.Time // addr -> unblock time
	sessions  map[string]*sessionRecord
}

// Opt configures a Guard.
type Opt func(*Guard)

// WithLog sets the guard logger.
func WithLog(logger log.Log) Opt {
	return func(g *Guard) { g.logger = logger }
}

// WithClock sets the clock, letting tests advance time.
func WithClock(clock clockwork.Clock) Opt {
	return func(g *Guard) { g.clock = clock }
}

// New creates a Guard with the given configuration.
func New(cfg Config, opts ...Opt) *Guard {
	g := &Guard{
		cfg:       cfg,
		logger:    log.NewNop(),
		clock:     clockwork.NewRealClock(),
		addrs:     make(map[string]*addrState),
		blacklist: make(map[string]time.Time),
		sessions:  make(map[string]*sessionRecord),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) state(addr string, now time.Time) *addrState {
	st, ok := g.addrs[addr]
	if !ok {
		st = &addrState{
			limiter: rate.NewLimiter(rate.Limit(g.cfg.RateLimitRefill), g.cfg.RateLimitCapacity),
		}
		g.addrs[addr] = st
	}
	st.lastSeen = now
	return st
}

// blacklistedLocked checks and lazily expires a blacklist entry. Callers
// hold g.mu.
func (g *Guard) blacklistedLocked(addr string, now time.Time) bool {
	until, ok := g.blacklist[addr]
	if !ok {
		return false
	}
	if now.Before(until) {
		return true
	}
	delete(g.blacklist, addr)
	return false
}

// IsBlacklisted reports whether the address is currently blacklisted.
func (g *Guard) IsBlacklisted(addr string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blacklistedLocked(addr, g.clock.Now())
}

// AdmitConnection runs the pre-handshake checks for a new connection from
// addr: blacklist first, then the rate limit, then the connection caps.
// A rate-limit rejection counts as a strike.
func (g *Guard) AdmitConnection(addr string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()

	if g.blacklistedLocked(addr, now) {
		return ErrBlacklisted
	}
	st := g.state(addr, now)
	if !st.limiter.AllowN(now, 1) {
		g.strikeLocked(addr, st, now, "rate limited")
		return ErrRateLimited
	}
	if len(g.sessions) >= g.cfg.MaxSessions {
		return ErrTooManyConnections
	}
	if st.sessions >= g.cfg.MaxSessionsPerAddr {
		return ErrTooManyConnections
	}
	return nil
}

// AllowMessage charges one token for a post-handshake message from addr.
// A rejection counts as a strike.
func (g *Guard) AllowMessage(addr string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()

	if g.blacklistedLocked(addr, now) {
		return ErrBlacklisted
	}
	st := g.state(addr, now)
	if !st.limiter.AllowN(now, 1) {
		g.strikeLocked(addr, st, now, "rate limited")
		return ErrRateLimited
	}
	return nil
}

// Strike records a unit of suspicion against addr. Crossing the configured
// threshold within the sliding window blacklists the address; the return
// value reports whether that happened on this call.
func (g *Guard) Strike(addr, reason string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()
	return g.strikeLocked(addr, g.state(addr, now), now, reason)
}

func (g *Guard) strikeLocked(addr string, st *addrState, now time.Time, reason string) bool {
	cutoff := now.Add(-g.cfg.StrikeWindow)
	kept := st.strikes[:0]
	for _, t := range st.strikes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	st.strikes = append(kept, now)
	g.logger.With().Debug("strike recorded",
		log.String("addr", addr),
		log.String("reason", reason),
		log.Int("strikes", len(st.strikes)))
	if len(st.strikes) >= g.cfg.StrikeThreshold {
		g.blacklist[addr] = now.Add(g.cfg.BlacklistDuration)
		st.strikes = nil
		g.logger.With().Warning("address blacklisted",
			log.String("addr", addr),
			log.Duration("duration", g.cfg.BlacklistDuration))
		return true
	}
	return false
}

// NewSessionToken returns a fresh random token half. Tokens are globally
// unique while live with overwhelming probability.
func NewSessionToken() string {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		panic(err) // crypto/rand is assumed available
	}
	return hex.EncodeToString(buf)
}

// RegisterSession records a live session under its token and charges it
// against the connection caps.
func (g *Guard) RegisterSession(token, addr, peerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()

	if len(g.sessions) >= g.cfg.MaxSessions {
		return ErrTooManyConnections
	}
	st := g.state(addr, now)
	if st.sessions >= g.cfg.MaxSessionsPerAddr {
		return ErrTooManyConnections
	}
	st.sessions++
	g.sessions[token] = &sessionRecord{
		addr:        addr,
		peerID:      peerID,
		createdAt:   now,
		expiresAt:   now.Add(g.cfg.SessionTTL),
		lastTraffic: now,
	}
	return nil
}

// TouchSession refreshes a session's traffic timestamp and rejects traffic
// on expired or unknown sessions.
func (g *Guard) TouchSession(token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()

	rec, ok := g.sessions[token]
	if !ok {
		return ErrUnknownSession
	}
	if now.After(rec.expiresAt) {
		g.releaseLocked(token, rec)
		return ErrSessionExpired
	}
	rec.lastTraffic = now
	return nil
}

// ReleaseSession drops a session's accounting. Safe to call twice.
func (g *Guard) ReleaseSession(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.sessions[token]; ok {
		g.releaseLocked(token, rec)
	}
}

func (g *Guard) releaseLocked(token string, rec *sessionRecord) {
	if st, ok := g.addrs[rec.addr]; ok && st.sessions > 0 {
		st.sessions--
	}
	delete(g.sessions, token)
}

// SessionCount returns the number of live sessions.
func (g *Guard) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// MaxMessageSize returns the configured per-message size cap.
func (g *Guard) MaxMessageSize() int {
	return g.cfg.MaxMessageSize
}

// Start runs the periodic sweep until ctx is cancelled. The sweep evicts
// expired and stale sessions, prunes expired blacklist entries and forgets
// idle address state.
func (g *Guard) Start(ctx context.Context) {
	ticker := g.clock.NewTicker(g.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			g.Sweep()
		}
	}
}

// Sweep runs one eviction pass. Exported so tests can trigger it directly.
func (g *Guard) Sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()

	for token, rec := range g.sessions {
		if now.After(rec.expiresAt) || now.Sub(rec.lastTraffic) > g.cfg.StaleTimeout {
			g.logger.With().Info("evicting session",
				log.SessionID(token),
				log.PeerID(rec.peerID),
				log.String("addr", rec.addr))
			g.releaseLocked(token, rec)
		}
	}
	for addr, until := range g.blacklist {
		if !now.Before(until) {
			delete(g.blacklist, addr)
		}
	}
	idleCutoff := now.Add(-g.cfg.StrikeWindow - g.cfg.BlacklistDuration)
	for addr, st := range g.addrs {
		if st.sessions == 0 && st.lastSeen.Before(idleCutoff) {
			delete(g.addrs, addr)
		}
	}
}
