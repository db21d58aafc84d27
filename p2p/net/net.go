package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marksync/marksync/guard"
	"github.com/marksync/marksync/log"
)

// Handler serves one accepted connection. It runs on its own goroutine and
// owns the connection for its whole lifetime.
type Handler func(ctx context.Context, conn *Conn)

// Net accepts peer connections, runs every one of them through the security
// guard before any handshake work, and hands admitted connections to the
// handler on a dedicated goroutine.
type Net struct {
	logger      log.Log
	guard       *guard.Guard
	handler     Handler
	dialTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener

	wg sync.WaitGroup
}

// Opt configures a Net.
type Opt func(*Net)

// WithLog sets the logger.
func WithLog(logger log.Log) Opt {
	return func(n *Net) { n.logger = logger }
}

// WithDialTimeout bounds outbound connection attempts.
func WithDialTimeout(d time.Duration) Opt {
	return func(n *Net) { n.dialTimeout = d }
}

// New creates a Net. The handler is invoked for every admitted inbound
// connection.
func New(g *guard.Guard, handler Handler, opts ...Opt) *Net {
	n := &Net{
		logger:      log.NewNop(),
		guard:       g,
		handler:     handler,
		dialTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Listen binds the TCP listener on the given port.
func (n *Net) Listen(port uint16) error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	n.mu.Lock()
	n.listener = l
	n.mu.Unlock()
	n.logger.With().Info("listening for peers", log.Addr(l.Addr()))
	return nil
}

// LocalAddr returns the bound listener address, or nil before Listen.
func (n *Net) LocalAddr() net.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

// Start runs the accept loop until ctx is cancelled. Connection handler
// failures never crash the loop.
func (n *Net) Start(ctx context.Context) error {
	n.mu.Lock()
	l := n.listener
	n.mu.Unlock()
	if l == nil {
		return errors.New("not listening")
	}

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		raw, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				n.wg.Wait()
				return nil
			}
			n.logger.With().Warning("accept failed", log.Err(err))
			continue
		}
		conn := NewConn(raw, Remote, n.guard.MaxMessageSize())
		if err := n.guard.AdmitConnection(conn.RemoteIP()); err != nil {
			n.logger.With().Warning("connection rejected",
				log.String("addr", conn.RemoteIP()),
				log.Err(err))
			conn.Close()
			continue
		}
		n.wg.Add(1)
		go n.serve(ctx, conn)
	}
}

func (n *Net) serve(ctx context.Context, conn *Conn) {
	defer n.wg.Done()
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("connection handler panicked: %v", r)
		}
	}()
	n.handler(ctx, conn)
}

// Dial opens an outbound connection to addr ("host:port"). The returned
// connection has not been through a handshake yet.
func (n *Net) Dial(ctx context.Context, addr string) (*Conn, error) {
	d := net.Dialer{Timeout: n.dialTimeout}
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewConn(raw, Local, n.guard.MaxMessageSize()), nil
}
