package handshake

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marksync/marksync/codec"
	"github.com/marksync/marksync/log/logtest"
	p2pnet "github.com/marksync/marksync/p2p/net"
	"github.com/marksync/marksync/p2p/p2pcrypto"
	"github.com/marksync/marksync/p2p/wire"
)

func testIdentity(t *testing.T, instanceID string, caps ...string) Identity {
	t.Helper()
	priv, pub, err := p2pcrypto.GenerateKeyPair()
	require.NoError(t, err)
	return Identity{
		InstanceID:   instanceID,
		PrivKey:      priv,
		PubKey:       pub,
		Capabilities: caps,
	}
}

func pipeConns(t *testing.T) (*p2pnet.Conn, *p2pnet.Conn) {
	t.Helper()
	a, b := net.Pipe()
	ca := p2pnet.NewConn(a, p2pnet.Local, 1<<20)
	cb := p2pnet.NewConn(b, p2pnet.Remote, 1<<20)
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

func TestHandshake(t *testing.T) {
	r := require.New(t)
	alice := New(DefaultConfig(), testIdentity(t, "alice", "sync"), logtest.New(t))
	bob := New(DefaultConfig(), testIdentity(t, "bob", "share:all", "sync"), logtest.New(t))

	dialer, listener := pipeConns(t)

	type accepted struct {
		res *Result
		err error
	}
	done := make(chan accepted, 1)
	go func() {
		res, err := bob.Accept(context.Background(), listener)
		done <- accepted{res, err}
	}()

	initRes, err := alice.Initiate(context.Background(), dialer)
	r.NoError(err)
	acceptRes := <-done
	r.NoError(acceptRes.err)

	r.Equal("bob", initRes.PeerInstanceID)
	r.Equal("alice", acceptRes.res.PeerInstanceID)
	r.Equal([]string{"share:all", "sync"}, initRes.PeerCapabilities)
	r.Equal([]string{"sync"}, acceptRes.res.PeerCapabilities)

	// both sides hold the same token
	r.Equal(initRes.Session.Token(), acceptRes.res.Session.Token())
	r.NotEmpty(initRes.Session.Token())

	// the derived secrets actually interoperate
	env, err := initRes.Session.SealMessage(&wire.Message{Type: uint32(wire.MsgAck)})
	r.NoError(err)
	msg, err := acceptRes.res.Session.OpenMessage(env)
	r.NoError(err)
	r.Equal(uint32(wire.MsgAck), msg.Type)
}

func TestHandshakeVersionMismatch(t *testing.T) {
	r := require.New(t)
	bob := New(DefaultConfig(), testIdentity(t, "bob"), logtest.New(t))
	dialer, listener := pipeConns(t)

	done := make(chan error, 1)
	go func() {
		_, err := bob.Accept(context.Background(), listener)
		done <- err
	}()

	// speak an incompatible version by hand
	init := wire.HandshakeInit{
		Version:    "0.9",
		InstanceID: "old",
		PubKey:     p2pcrypto.NewRandomPubkey().Bytes(),
		TokenHalf:  "deadbeef",
	}
	buf, err := codec.Encode(&init)
	r.NoError(err)
	r.NoError(dialer.WriteMessage(&wire.Message{Type: uint32(wire.MsgHandshakeInit), Payload: buf}))

	err = <-done
	r.Error(err)
	r.Contains(err.Error(), "version mismatch")
}

func TestHandshakeCancelledContext(t *testing.T) {
	alice := New(DefaultConfig(), testIdentity(t, "alice"), logtest.New(t))
	dialer, _ := pipeConns(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := alice.Initiate(ctx, dialer)
	require.ErrorIs(t, err, context.Canceled)
}

func TestHandshakeTimeout(t *testing.T) {
	cfg := Config{Timeout: 50 * time.Millisecond}
	alice := New(cfg, testIdentity(t, "alice"), logtest.New(t))
	dialer, listener := pipeConns(t)

	// drain the init so the write goes through, then never answer
	go func() {
		listener.ReadMessage()
	}()

	_, err := alice.Initiate(context.Background(), dialer)
	require.Error(t, err)
}
