// Package wire defines the logical protocol messages, the encrypted
// post-handshake envelope and the stream framing used between peers.
package wire

import (
	"fmt"
	"time"

	"github.com/marksync/marksync/types"
)

// MessageType tags a protocol message.
type MessageType uint32

// Protocol message types.
const (
	MsgAnnounce MessageType = iota + 1
	MsgHandshakeInit
	MsgHandshakeResponse
	MsgShare
	MsgSyncRequest
	MsgSyncData
	MsgAck
	MsgError
)

func (t MessageType) String() string {
	switch t {
	case MsgAnnounce:
		return "ANNOUNCE"
	case MsgHandshakeInit:
		return "HANDSHAKE_INIT"
	case MsgHandshakeResponse:
		return "HANDSHAKE_RESPONSE"
	case MsgShare:
		return "SHARE"
	case MsgSyncRequest:
		return "SYNC_REQUEST"
	case MsgSyncData:
		return "SYNC_DATA"
	case MsgAck:
		return "ACK"
	case MsgError:
		return "ERROR"
	default:
		return fmt.Sprintf("MessageType(%d)", uint32(t))
	}
}

// Message is the plaintext protocol frame. During the handshake it travels
// as-is; afterwards it is sealed inside an Envelope.
type Message struct {
	Type    uint32
	Payload []byte
}

// Envelope is the outer frame of every post-handshake message: a strictly
// increasing sequence number, the seal nonce and the ciphertext with its
// authentication tag appended. The sequence is bound into the nonce, so a
// tampered sequence fails authentication.
type Envelope struct {
	Seq        uint64
	Nonce      [24]byte
	Ciphertext []byte
}

// HandshakeInit opens the handshake: protocol version, instance identity,
// long-term public key and this side's half of the session token.
type HandshakeInit struct {
	Version      string
	InstanceID   string
	PubKey       []byte
	TokenHalf    string
	Capabilities []string
}

// HandshakeResponse mirrors HandshakeInit from the accepting side.
type HandshakeResponse struct {
	Version      string
	InstanceID   string
	PubKey       []byte
	TokenHalf    string
	Capabilities []string
}

// Announce is broadcast periodically on the discovery channel.
type Announce struct {
	InstanceID   string
	Address      string
	Port         uint32
	Fingerprint  string
	Capabilities []string
	Version      string
}

// Bookmark is the wire form of types.Bookmark. Timestamps travel as unix
// milliseconds.
type Bookmark struct {
	ID         string
	URL        string
	Title      string
	FolderPath []string
	Browser    string
	ModifiedAt int64
}

// SharePayload carries a set of bookmarks for SHARE and SYNC_DATA messages.
type SharePayload struct {
	Source    string
	Bookmarks []Bookmark
}

// AckPayload acknowledges a received SHARE.
type AckPayload struct {
	Received uint32
}

// ErrorPayload reports a typed protocol error to the peer.
type ErrorPayload struct {
	Code    string
	Message string
}

// ToWire converts a model bookmark to its wire form.
func ToWire(b types.Bookmark) Bookmark {
	return Bookmark{
		ID:         b.ID,
		URL:        b.URL,
		Title:      b.Title,
		FolderPath: b.FolderPath,
		Browser:    string(b.Browser),
		ModifiedAt: b.ModifiedAt.UnixMilli(),
	}
}

// FromWire converts a wire bookmark back to the model form.
func FromWire(b Bookmark) types.Bookmark {
	return types.Bookmark{
		ID:         b.ID,
		URL:        b.URL,
		Title:      b.Title,
		FolderPath: b.FolderPath,
		Browser:    types.BrowserTag(b.Browser),
		ModifiedAt: time.UnixMilli(b.ModifiedAt),
	}
}

// ToWireAll converts a slice of model bookmarks.
func ToWireAll(bms []types.Bookmark) []Bookmark {
	out := make([]Bookmark, len(bms))
	for i, b := range bms {
		out[i] = ToWire(b)
	}
	return out
}

// FromWireAll converts a slice of wire bookmarks.
func FromWireAll(bms []Bookmark) []types.Bookmark {
	out := make([]types.Bookmark, len(bms))
	for i, b := range bms {
		out[i] = FromWire(b)
	}
	return out
}
