// Package p2pcrypto provides the long-term key pairs and the per-session
// shared secrets used by the secure channel.
package p2pcrypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

const (
	keySize   = 32 // non-configurable, expected by NaCl
	nonceSize = 24 // non-configurable, expected by NaCl
)

// NonceSize is the nonce length expected by Seal and Open.
const NonceSize = nonceSize

// Key is a 32-byte curve25519 key.
type Key interface {
	Bytes() []byte
	raw() *[keySize]byte
	Array() [32]byte
	String() string
}

// PrivateKey is a private key of size keySize.
type PrivateKey interface {
	Key
}

// PublicKey is a public key of size keySize.
type PublicKey interface {
	Key
}

// SharedSecret is a precomputed box key shared between two peers. It seals
// and opens messages exchanged over a session.
type SharedSecret interface {
	Key
	Seal(message []byte, nonce [NonceSize]byte) []byte
	Open(ciphertext []byte, nonce [NonceSize]byte) ([]byte, error)
}

type key struct {
	bytes [keySize]byte
}

var (
	_ PrivateKey   = (*key)(nil)
	_ PublicKey    = (*key)(nil)
	_ SharedSecret = (*key)(nil)
)

func (k key) raw() *[keySize]byte {
	return &k.bytes
}

func (k key) Array() [32]byte {
	return k.bytes
}

func (k key) Bytes() []byte {
	return k.bytes[:]
}

func (k key) String() string {
	return base58.Encode(k.Bytes())
}

// Seal encrypts and authenticates message under the shared secret and the
// caller-provided nonce. The Poly1305 tag is appended to the ciphertext.
func (k key) Seal(message []byte, nonce [NonceSize]byte) []byte {
	return box.SealAfterPrecomputation(nil, message, &nonce, k.raw())
}

// Open verifies the authentication tag and decrypts ciphertext. The tag is
// checked before any plaintext is produced; a failed check returns an error
// and no data.
func (k key) Open(ciphertext []byte, nonce [NonceSize]byte) ([]byte, error) {
	if len(ciphertext) <= box.Overhead {
		return nil, errors.New("ciphertext too small")
	}
	message, ok := box.OpenAfterPrecomputation(nil, ciphertext, &nonce, k.raw())
	if !ok {
		return nil, errors.New("opening boxed message failed")
	}
	return message, nil
}

// GenerateKeyPair creates a fresh long-term key pair.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	public, private, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	return key{*private}, key{*public}, nil
}

// PublicKeyOf derives the public key matching a stored private key.
func PublicKeyOf(priv PrivateKey) PublicKey {
	var pub key
	curve25519.ScalarBaseMult(&pub.bytes, priv.raw())
	return pub
}

// GenerateSharedSecret derives the symmetric session secret from our private
// key and the peer's public key. Both sides derive the same secret.
func GenerateSharedSecret(privkey PrivateKey, peerPubkey PublicKey) SharedSecret {
	var sharedSecret key
	box.Precompute(&sharedSecret.bytes, peerPubkey.raw(), privkey.raw())
	return sharedSecret
}

func newKey() key {
	return key{[keySize]byte{}}
}

var nilKey key

func newKeyFromBytes(bytes []byte) (key, error) {
	if l := len(bytes); l != keySize {
		return nilKey, fmt.Errorf("invalid key size (got %v instead of %v bytes)", l, keySize)
	}
	k := newKey()
	copy(k.bytes[:], bytes)
	return k, nil
}

// NewPubkeyFromBytes converts a raw 32-byte slice to a PublicKey.
func NewPubkeyFromBytes(bytes []byte) (PublicKey, error) {
	return newKeyFromBytes(bytes)
}

func newKeyFromBase58(s string) (key, error) {
	bytes := base58.Decode(s)
	if len(bytes) == 0 {
		return nilKey, errors.New("unable to decode key")
	}
	return newKeyFromBytes(bytes)
}

// NewPrivateKeyFromBase58 parses a base58-rendered private key.
func NewPrivateKeyFromBase58(s string) (PrivateKey, error) {
	return newKeyFromBase58(s)
}

// NewPublicKeyFromBase58 parses a base58-rendered public key.
func NewPublicKeyFromBase58(s string) (PublicKey, error) {
	return newKeyFromBase58(s)
}

// NewRandomPubkey generates a random public key, useful in tests.
func NewRandomPubkey() PublicKey {
	k := newKey()
	if _, err := io.ReadFull(rand.Reader, k.bytes[:]); err != nil {
		panic(err)
	}
	return k
}

// Fingerprint returns the short base58 prefix of a public key used in
// discovery announcements.
func Fingerprint(pub PublicKey) string {
	s := pub.String()
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

// RandomNonce returns a cryptographically random nonce.
func RandomNonce() [NonceSize]byte {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		panic(err)
	}
	return nonce
}
