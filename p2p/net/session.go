// Package net holds the secure transport between peers: authenticated
// sessions with replay protection, connection wrappers and the TCP listener.
package net

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/marksync/marksync/codec"
	"github.com/marksync/marksync/p2p/p2pcrypto"
	"github.com/marksync/marksync/p2p/wire"
)

var (
	// ErrReplay marks an envelope whose sequence number is not strictly
	// greater than the last accepted one.
	ErrReplay = errors.New("replayed message")
	// ErrSessionExpired marks traffic on a session past its TTL.
	ErrSessionExpired = errors.New("session expired")
	// ErrVerifyFailed marks an envelope whose authentication failed.
	ErrVerifyFailed = errors.New("message verification failed")
)

// Session is an authenticated secure channel to one peer, bounded by a token
// and an expiry. It seals outgoing messages and opens incoming ones,
// enforcing strictly monotonic sequence numbers in both directions. Sequence
// counters are never reused within the session's lifetime.
type Session struct {
	token     string
	peerPub   p2pcrypto.PublicKey
	secret    p2pcrypto.SharedSecret
	createdAt time.Time
	expiresAt time.Time

	mu      sync.Mutex
	sendSeq uint64
	recvSeq uint64
}

// NewSession creates a session from a handshake-derived secret.
func NewSession(token string, peerPub p2pcrypto.PublicKey, secret p2pcrypto.SharedSecret, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		token:     token,
		peerPub:   peerPub,
		secret:    secret,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
}

// Token returns the session token.
func (s *Session) Token() string {
	return s.token
}

// PeerID returns the peer identifier derived from its public key.
func (s *Session) PeerID() string {
	return s.peerPub.String()
}

// PeerPublicKey returns the peer's long-term public key.
func (s *Session) PeerPublicKey() p2pcrypto.PublicKey {
	return s.peerPub
}

// ExpiresAt returns the session expiry time.
func (s *Session) ExpiresAt() time.Time {
	return s.expiresAt
}

// Expired reports whether the session has passed its TTL.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.expiresAt)
}

// SealMessage encrypts and authenticates a protocol message into an
// envelope. The sequence number is bound into the authenticated nonce, so
// the receiver detects any tampering with it.
func (s *Session) SealMessage(msg *wire.Message) (*wire.Envelope, error) {
	if s.Expired(time.Now()) {
		return nil, ErrSessionExpired
	}
	plaintext, err := codec.Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	s.mu.Lock()
	s.sendSeq++
	seq := s.sendSeq
	s.mu.Unlock()

	nonce := nonceForSeq(seq)
	return &wire.Envelope{
		Seq:        seq,
		Nonce:      nonce,
		Ciphertext: s.secret.Seal(plaintext, nonce),
	}, nil
}

// OpenMessage verifies and decrypts an envelope. Authentication is checked
// before any plaintext is produced; a sequence number not strictly greater
// than the last accepted one is a replay and yields ErrReplay without
// mutating any state.
func (s *Session) OpenMessage(env *wire.Envelope) (*wire.Message, error) {
	if s.Expired(time.Now()) {
		return nil, ErrSessionExpired
	}
	if binary.BigEndian.Uint64(env.Nonce[p2pcrypto.NonceSize-8:]) != env.Seq {
		return nil, ErrVerifyFailed
	}
	plaintext, err := s.secret.Open(env.Ciphertext, env.Nonce)
	if err != nil {
		return nil, ErrVerifyFailed
	}

	s.mu.Lock()
	if env.Seq <= s.recvSeq {
		s.mu.Unlock()
		return nil, ErrReplay
	}
	s.recvSeq = env.Seq
	s.mu.Unlock()

	var msg wire.Message
	if err := codec.Decode(plaintext, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}

// nonceForSeq builds a nonce with a random prefix and the sequence number in
// the trailing 8 bytes. The random prefix keeps nonces unique even if two
// sessions ever shared a key.
func nonceForSeq(seq uint64) [p2pcrypto.NonceSize]byte {
	var nonce [p2pcrypto.NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:p2pcrypto.NonceSize-8]); err != nil {
		panic(err)
	}
	binary.BigEndian.PutUint64(nonce[p2pcrypto.NonceSize-8:], seq)
	return nonce
}
