package net

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/marksync/marksync/codec"
	"github.com/marksync/marksync/p2p/wire"
)

// ConnectionSource specifies the connection originator - local or remote node.
type ConnectionSource int

// ConnectionSource values.
const (
	Local ConnectionSource = iota
	Remote
)

// Conn wraps a stream connection with varint framing and message helpers.
// Before a session exists it carries plaintext handshake messages; after,
// sealed envelopes. A Conn is driven by a single connection handler.
type Conn struct {
	id      string
	source  ConnectionSource
	created time.Time
	raw     net.Conn
	framer  *wire.Framer
}

// NewConn wraps a raw connection. maxMsgSize caps inbound frames.
func NewConn(raw net.Conn, source ConnectionSource, maxMsgSize int) *Conn {
	return &Conn{
		id:      uuid.NewString(),
		source:  source,
		created: time.Now(),
		raw:     raw,
		framer:  wire.NewFramer(raw, maxMsgSize),
	}
}

// ID returns the connection's identifier, used for logging.
func (c *Conn) ID() string {
	return c.id
}

// Source returns whether the connection was dialed locally or accepted.
func (c *Conn) Source() ConnectionSource {
	return c.source
}

// RemoteAddr returns the remote endpoint address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// RemoteIP returns the bare IP of the remote endpoint, the key used by the
// security guard.
func (c *Conn) RemoteIP() string {
	host, _, err := net.SplitHostPort(c.raw.RemoteAddr().String())
	if err != nil {
		return c.raw.RemoteAddr().String()
	}
	return host
}

// SetDeadline bounds the next read or write.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.raw.SetDeadline(t)
}

// ClearDeadline removes any read/write deadline.
func (c *Conn) ClearDeadline() error {
	return c.raw.SetDeadline(time.Time{})
}

// WriteMessage sends a plaintext protocol message. Handshake only.
func (c *Conn) WriteMessage(msg *wire.Message) error {
	buf, err := codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return c.framer.WriteFrame(buf)
}

// ReadMessage receives a plaintext protocol message. Handshake only.
func (c *Conn) ReadMessage() (*wire.Message, error) {
	buf, err := c.framer.ReadFrame()
	if err != nil {
		return nil, err
	}
	var msg wire.Message
	if err := codec.Decode(buf, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}

// WriteEnvelope sends a sealed envelope.
func (c *Conn) WriteEnvelope(env *wire.Envelope) error {
	buf, err := codec.Encode(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.framer.WriteFrame(buf)
}

// ReadEnvelope receives a sealed envelope.
func (c *Conn) ReadEnvelope() (*wire.Envelope, error) {
	buf, err := c.framer.ReadFrame()
	if err != nil {
		return nil, err
	}
	var env wire.Envelope
	if err := codec.Decode(buf, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}
