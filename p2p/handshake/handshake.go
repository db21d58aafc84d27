// Package handshake establishes authenticated sessions between peers: public
// keys are exchanged, a shared symmetric key is derived and a fresh session
// token is bound to it.
package handshake

import (
	"context"
	"fmt"
	"time"

	"github.com/marksync/marksync/codec"
	"github.com/marksync/marksync/guard"
	"github.com/marksync/marksync/log"
	p2pnet "github.com/marksync/marksync/p2p/net"
	"github.com/marksync/marksync/p2p/p2pcrypto"
	"github.com/marksync/marksync/p2p/wire"
)

// ProtocolVersion guards against incompatible peers.
const ProtocolVersion = "1.0"

const (
	defaultTimeout    = 10 * time.Second
	defaultSessionTTL = time.Hour
)

// Config holds the handshake settings.
type Config struct {
	// Timeout bounds the whole exchange; exceeding it aborts the
	// connection.
	Timeout time.Duration `mapstructure:"timeout"`
	// SessionTTL is the time-to-live of the established session.
	SessionTTL time.Duration `mapstructure:"session-ttl"`
}

// DefaultConfig returns the handshake defaults.
func DefaultConfig() Config {
	return Config{Timeout: defaultTimeout, SessionTTL: defaultSessionTTL}
}

// Identity is this instance's long-term identity presented during the
// handshake.
type Identity struct {
	InstanceID   string
	PrivKey      p2pcrypto.PrivateKey
	PubKey       p2pcrypto.PublicKey
	Capabilities []string
}

// Result is an established session with the peer's advertised identity.
type Result struct {
	Session          *p2pnet.Session
	PeerInstanceID   string
	PeerCapabilities []string
}

// Protocol performs handshakes over fresh connections.
type Protocol struct {
	cfg    Config
	id     Identity
	logger log.Log
}

// New creates a handshake protocol bound to this instance's identity.
func New(cfg Config, id Identity, logger log.Log) *Protocol {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	return &Protocol{cfg: cfg, id: id, logger: logger}
}

// Initiate runs the dialer side: send HANDSHAKE_INIT, await
// HANDSHAKE_RESPONSE, derive the shared key and join the token halves.
func (p *Protocol) Initiate(ctx context.Context, conn *p2pnet.Conn) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn.SetDeadline(time.Now().Add(p.cfg.Timeout))
	defer conn.ClearDeadline()

	tokenHalf := guard.NewSessionToken()
	init := wire.HandshakeInit{
		Version:      ProtocolVersion,
		InstanceID:   p.id.InstanceID,
		PubKey:       p.id.PubKey.Bytes(),
		TokenHalf:    tokenHalf,
		Capabilities: p.id.Capabilities,
	}
	if err := writePayload(conn, wire.MsgHandshakeInit, &init); err != nil {
		return nil, fmt.Errorf("send handshake init: %w", err)
	}

	var resp wire.HandshakeResponse
	if err := readPayload(conn, wire.MsgHandshakeResponse, &resp); err != nil {
		return nil, fmt.Errorf("read handshake response: %w", err)
	}
	if resp.Version != ProtocolVersion {
		return nil, fmt.Errorf("protocol version mismatch: %s instead of expected %s", resp.Version, ProtocolVersion)
	}
	peerPub, err := p2pcrypto.NewPubkeyFromBytes(resp.PubKey)
	if err != nil {
		return nil, fmt.Errorf("peer public key: %w", err)
	}

	// both sides join the halves in initiator-first order
	token := tokenHalf + resp.TokenHalf
	secret := p2pcrypto.GenerateSharedSecret(p.id.PrivKey, peerPub)
	p.logger.With().Info("handshake complete",
		log.PeerID(peerPub.String()),
		log.String("peer_instance", resp.InstanceID))
	return &Result{
		Session:          p2pnet.NewSession(token, peerPub, secret, p.cfg.SessionTTL),
		PeerInstanceID:   resp.InstanceID,
		PeerCapabilities: resp.Capabilities,
	}, nil
}

// Accept runs the listener side: await HANDSHAKE_INIT, answer with
// HANDSHAKE_RESPONSE and derive the same key and token.
func (p *Protocol) Accept(ctx context.Context, conn *p2pnet.Conn) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn.SetDeadline(time.Now().Add(p.cfg.Timeout))
	defer conn.ClearDeadline()

	var init wire.HandshakeInit
	if err := readPayload(conn, wire.MsgHandshakeInit, &init); err != nil {
		return nil, fmt.Errorf("read handshake init: %w", err)
	}
	if init.Version != ProtocolVersion {
		return nil, fmt.Errorf("protocol version mismatch: %s instead of expected %s", init.Version, ProtocolVersion)
	}
	peerPub, err := p2pcrypto.NewPubkeyFromBytes(init.PubKey)
	if err != nil {
		return nil, fmt.Errorf("peer public key: %w", err)
	}

	tokenHalf := guard.NewSessionToken()
	resp := wire.HandshakeResponse{
		Version:      ProtocolVersion,
		InstanceID:   p.id.InstanceID,
		PubKey:       p.id.PubKey.Bytes(),
		TokenHalf:    tokenHalf,
		Capabilities: p.id.Capabilities,
	}
	if err := writePayload(conn, wire.MsgHandshakeResponse, &resp); err != nil {
		return nil, fmt.Errorf("send handshake response: %w", err)
	}

	token := init.TokenHalf + tokenHalf
	secret := p2pcrypto.GenerateSharedSecret(p.id.PrivKey, peerPub)
	p.logger.With().Info("handshake accepted",
		log.PeerID(peerPub.String()),
		log.String("peer_instance", init.InstanceID))
	return &Result{
		Session:          p2pnet.NewSession(token, peerPub, secret, p.cfg.SessionTTL),
		PeerInstanceID:   init.InstanceID,
		PeerCapabilities: init.Capabilities,
	}, nil
}

func writePayload(conn *p2pnet.Conn, t wire.MessageType, payload codec.Encodable) error {
	buf, err := codec.Encode(payload)
	if err != nil {
		return err
	}
	return conn.WriteMessage(&wire.Message{Type: uint32(t), Payload: buf})
}

func readPayload(conn *p2pnet.Conn, want wire.MessageType, payload codec.Decodable) error {
	msg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	if wire.MessageType(msg.Type) != want {
		return fmt.Errorf("unexpected message type %s, want %s", wire.MessageType(msg.Type), want)
	}
	return codec.Decode(msg.Payload, payload)
}
