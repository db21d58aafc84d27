package p2pcrypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBox(t *testing.T) {
	r := require.New(t)
	alicePrivkey, alicePubkey, err := GenerateKeyPair()
	r.NoError(err)

	bobPrivkey, bobPubkey, err := GenerateKeyPair()
	r.NoError(err)

	aliceSharedSecret := GenerateSharedSecret(alicePrivkey, bobPubkey)
	bobSharedSecret := GenerateSharedSecret(bobPrivkey, alicePubkey)
	r.Zero(bytes.Compare(aliceSharedSecret.Bytes(), bobSharedSecret.Bytes()))
	r.Equal(aliceSharedSecret.String(), bobSharedSecret.String())

	secretMessage := []byte("This is a secret -- sh...")
	nonce := RandomNonce()
	sealed := aliceSharedSecret.Seal(secretMessage, nonce)
	opened, err := bobSharedSecret.Open(sealed, nonce)
	r.NoError(err)
	r.Equal(string(secretMessage), string(opened))
}

func TestOpenRejectsTampering(t *testing.T) {
	r := require.New(t)
	alicePrivkey, _, err := GenerateKeyPair()
	r.NoError(err)
	_, bobPubkey, err := GenerateKeyPair()
	r.NoError(err)

	secret := GenerateSharedSecret(alicePrivkey, bobPubkey)
	nonce := RandomNonce()
	sealed := secret.Seal([]byte("payload"), nonce)

	sealed[0] ^= 0xff
	_, err = secret.Open(sealed, nonce)
	r.Error(err)

	sealed[0] ^= 0xff
	wrongNonce := RandomNonce()
	_, err = secret.Open(sealed, wrongNonce)
	r.Error(err)

	_, err = secret.Open([]byte("short"), nonce)
	r.Error(err)
}

func TestSharedSecretDependsOnKeys(t *testing.T) {
	r := require.New(t)
	alicePrivkey, _, err := GenerateKeyPair()
	r.NoError(err)
	_, bobPubkey, err := GenerateKeyPair()
	r.NoError(err)
	_, carolPubkey, err := GenerateKeyPair()
	r.NoError(err)

	var zero [keySize]byte
	aliceBob := GenerateSharedSecret(alicePrivkey, bobPubkey)
	r.NotEqual(zero[:], aliceBob.Bytes())

	aliceCarol := GenerateSharedSecret(alicePrivkey, carolPubkey)
	r.NotEqual(aliceBob.Bytes(), aliceCarol.Bytes())
}

func TestPublicKeyOf(t *testing.T) {
	r := require.New(t)
	priv, pub, err := GenerateKeyPair()
	r.NoError(err)
	r.Zero(bytes.Compare(pub.Bytes(), PublicKeyOf(priv).Bytes()))
}

func TestBase58Roundtrip(t *testing.T) {
	r := require.New(t)
	priv, pub, err := GenerateKeyPair()
	r.NoError(err)

	gotPriv, err := NewPrivateKeyFromBase58(priv.String())
	r.NoError(err)
	r.Equal(priv.Bytes(), gotPriv.Bytes())

	gotPub, err := NewPublicKeyFromBase58(pub.String())
	r.NoError(err)
	r.Equal(pub.Bytes(), gotPub.Bytes())

	_, err = NewPublicKeyFromBase58("")
	r.Error(err)

	_, err = NewPubkeyFromBytes([]byte{1, 2, 3})
	r.Error(err)
}

func TestFingerprint(t *testing.T) {
	pub := NewRandomPubkey()
	fp := Fingerprint(pub)
	require.Len(t, fp, 12)
	require.Equal(t, pub.String()[:12], fp)
}
