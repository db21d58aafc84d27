package types

import (
	"fmt"
	"time"
)

// ConnectionStatus describes where a peer is in its lifecycle.
type ConnectionStatus int

// ConnectionStatus values.
const (
	StatusDiscovered ConnectionStatus = iota
	StatusConnecting
	StatusHandshaking
	StatusAuthenticated
	StatusSyncing
	StatusIdle
	StatusBlacklisted
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDiscovered:
		return "Discovered"
	case StatusConnecting:
		return "Connecting"
	case StatusHandshaking:
		return "Handshaking"
	case StatusAuthenticated:
		return "Authenticated"
	case StatusSyncing:
		return "Syncing"
	case StatusIdle:
		return "Idle"
	case StatusBlacklisted:
		return "Blacklisted"
	default:
		return fmt.Sprintf("ConnectionStatus(%d)", int(s))
	}
}

// PeerInstance is a registry entry for another running marksync instance.
// Entries are owned exclusively by the discovery registry; consumers get
// copies through snapshots.
type PeerInstance struct {
	// ID is derived from the peer's long-term public key (base58).
	ID string
	// Address and Port locate the peer's listener.
	Address string
	Port    uint16
	// Fingerprint is the short form of the peer's public key used in
	// announcements.
	Fingerprint string
	// Capabilities are the flags the peer advertised.
	Capabilities []string
	// LastSeen is the time of the last announcement or traffic.
	LastSeen time.Time
	// Status is the current connection status.
	Status ConnectionStatus
}

// Endpoint renders the peer's dialable address.
func (p *PeerInstance) Endpoint() string {
	return fmt.Sprintf("%s:%d", p.Address, p.Port)
}
