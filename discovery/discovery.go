// Package discovery broadcasts instance announcements on the local network,
// listens for announcements from other instances and maintains the live peer
// registry.
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/marksync/marksync/codec"
	"github.com/marksync/marksync/log"
	"github.com/marksync/marksync/p2p/wire"
	"github.com/marksync/marksync/types"
)

const maxAnnounceSize = 1024

// Config holds the discovery settings.
type Config struct {
	// Port is the UDP port announcements are broadcast on.
	Port uint16 `mapstructure:"port"`
	// BroadcastInterval is how often this instance announces itself.
	BroadcastInterval time.Duration `mapstructure:"broadcast-interval"`
	// LivenessWindow evicts registry entries not refreshed for this long.
	LivenessWindow time.Duration `mapstructure:"liveness-window"`
	// SweepInterval is how often eviction runs.
	SweepInterval time.Duration `mapstructure:"sweep-interval"`
}

// DefaultConfig returns the discovery defaults.
func DefaultConfig() Config {
	return Config{
		Port:              8764,
		BroadcastInterval: 15 * time.Second,
		LivenessWindow:    5 * time.Minute,
		SweepInterval:     time.Minute,
	}
}

// Announcement is what this instance advertises about itself.
type Announcement struct {
	InstanceID   string
	Address      string
	Port         uint16
	Fingerprint  string
	Capabilities []string
	Version      string
}

// Service runs the periodic announcer and the announcement listener as two
// long-lived goroutines, feeding the registry.
type Service struct {
	cfg      Config
	logger   log.Log
	clock    clockwork.Clock
	registry *Registry
	self     Announcement

	conn *net.UDPConn
}

// New creates a discovery service. The registry is shared with the caller.
func New(cfg Config, self Announcement, registry *Registry, logger log.Log, clock clockwork.Clock) *Service {
	return &Service{
		cfg:      cfg,
		logger:   logger,
		clock:    clock,
		registry: registry,
		self:     self,
	}
}

// Registry returns the shared peer registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// AddManual registers a peer by explicit address and port, bypassing
// discovery. The peer still goes through the regular handshake and guard
// checks when connected.
func (s *Service) AddManual(address string, port uint16) types.PeerInstance {
	peer := types.PeerInstance{
		ID:      fmt.Sprintf("manual-%s:%d", address, port),
		Address: address,
		Port:    port,
		Status:  types.StatusDiscovered,
	}
	s.registry.Upsert(peer)
	return peer
}

// Start binds the UDP socket and runs the announcer, listener and eviction
// loops until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: int(s.cfg.Port)}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("bind discovery port %d: %w", s.cfg.Port, err)
	}
	s.conn = conn

	var eg errgroup.Group
	eg.Go(func() error {
		<-ctx.Done()
		conn.Close()
		return nil
	})
	eg.Go(func() error { return s.announceLoop(ctx) })
	eg.Go(func() error { return s.listenLoop(ctx) })
	eg.Go(func() error { return s.evictLoop(ctx) })
	return eg.Wait()
}

func (s *Service) announceLoop(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.BroadcastInterval)
	defer ticker.Stop()

	s.broadcast()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			s.broadcast()
		}
	}
}

func (s *Service) broadcast() {
	msg := wire.Announce{
		InstanceID:   s.self.InstanceID,
		Address:      s.self.Address,
		Port:         uint32(s.self.Port),
		Fingerprint:  s.self.Fingerprint,
		Capabilities: s.self.Capabilities,
		Version:      s.self.Version,
	}
	buf, err := codec.Encode(&msg)
	if err != nil {
		s.logger.With().Error("encode announcement", log.Err(err))
		return
	}
	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: int(s.cfg.Port)}
	if _, err := s.conn.WriteToUDP(buf, dst); err != nil {
		s.logger.With().Warning("broadcast announcement failed", log.Err(err))
	}
}

func (s *Service) listenLoop(ctx context.Context) error {
	buf := make([]byte, maxAnnounceSize)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.With().Warning("discovery read failed", log.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-s.clock.After(time.Second):
			}
			continue
		}
		s.handleAnnouncement(buf[:n], from)
	}
}

func (s *Service) handleAnnouncement(buf []byte, from *net.UDPAddr) {
	var msg wire.Announce
	if err := codec.Decode(buf, &msg); err != nil {
		s.logger.With().Debug("malformed announcement",
			log.Addr(from), log.Err(err))
		return
	}
	if msg.InstanceID == "" || msg.InstanceID == s.self.InstanceID {
		return
	}
	address := msg.Address
	if address == "" {
		address = from.IP.String()
	}
	s.registry.Upsert(types.PeerInstance{
		ID:           msg.InstanceID,
		Address:      address,
		Port:         uint16(msg.Port),
		Fingerprint:  msg.Fingerprint,
		Capabilities: msg.Capabilities,
		Status:       types.StatusDiscovered,
	})
	s.logger.With().Debug("announcement received",
		log.String("instance", msg.InstanceID),
		log.Addr(from))
}

func (s *Service) evictLoop(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			for _, p := range s.registry.EvictStale(s.cfg.LivenessWindow) {
				s.logger.With().Info("peer evicted",
					log.PeerID(p.ID),
					log.Time("last_seen", p.LastSeen))
			}
		}
	}
}
