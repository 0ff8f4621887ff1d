/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package transport implements C1 Connection: one socket (plain, TLS, or
// SOCKS-wrapped), re-openable by the task that owns it, serially reusable
// once idle. The C source drives this through a non-blocking readiness
// multiplexer; here each Connection's I/O is a plain blocking net.Conn call
// guarded by a context deadline, with watchCancel (see cancelwatch.go)
// binding ctx cancellation to the socket exactly as spec.md §9's
// "suspension happens exclusively at the readiness-multiplex call" note
// asks an idiomatic rewrite to preserve: ^C / timeout must interrupt
// in-flight I/O, not just prevent new I/O from starting.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/axeda/agentembedded/internal/aeerr"
)

// State is the Connection's lifecycle state, per spec.md §3.
type State uint8

const (
	StateClosed State = iota
	StateConnecting
	StateConnectedPlain
	StateConnectedTLS
	StateClosing
)

// Endpoint is a host/port pair. Peer and origin endpoints differ when a
// proxy sits in between (spec.md §3's Connection fields).
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string { return fmt.Sprintf("%s:%d", e.Host, e.Port) }

// Resolver overrides host resolution before dialing. Set via WithResolver
// to route through a process-wide cache (agentctx.Context.ResolveHost)
// instead of letting net.Dialer resolve the hostname fresh on every
// Connect, matching spec.md §5's process-wide mutex-protected DNS cache.
type Resolver func(host string) ([]net.IP, error)

// Task is the non-owning back-reference a Connection holds to whichever
// HttpTransaction is currently bound to it (spec.md §9: "parent pointers /
// weak references ... model as non-owning handles validated at use").
// Connections don't call back into the Task themselves (Go's blocking I/O
// means the caller already holds the result), but Task lets the pool
// report who a busy connection belongs to for diagnostics and Cancel().
type Task interface {
	ID() string
}

// Connection owns exactly one socket and its lifecycle state.
type Connection struct {
	mu sync.Mutex

	peer   Endpoint
	origin Endpoint

	conn  net.Conn
	state State

	tlsEnabled bool
	tlsConfig  *tls.Config

	timeout      time.Duration
	lastActivity time.Time

	task Task // weak; owner-agnostic, set/cleared by the pool

	socks    *SOCKSConfig // non-nil for SOCKS-wrapped connections
	resolver Resolver
}

// New creates an unconnected Connection for peer, with origin defaulting to
// peer (no proxy). Use WithSOCKS to wrap it for SOCKS traversal before the
// first Connect.
func New(peer Endpoint, timeout time.Duration) *Connection {
	return &Connection{
		peer:    peer,
		origin:  peer,
		state:   StateClosed,
		timeout: timeout,
	}
}

// WithResolver attaches a Resolver Connect will consult before dialing.
func (c *Connection) WithResolver(r Resolver) *Connection {
	c.resolver = r
	return c
}

// WithSOCKS marks the connection as SOCKS-wrapped: origin is the proxy
// endpoint, peer remains the true destination, and Connect performs the
// SOCKS handshake before reporting StateConnectedPlain.
func (c *Connection) WithSOCKS(proxy Endpoint, cfg SOCKSConfig) *Connection {
	c.origin = proxy
	cfg.Target = c.peer
	c.socks = &cfg
	return c
}

// WithHTTPProxy redirects the dial to an HTTP proxy's endpoint while
// leaving peer as the true destination, with no wire-level handshake of
// its own: the plain-HTTP absolute-URI request and the CONNECT tunnel
// request (spec.md §4.3/§6) are both formatted by the HttpTransaction
// layer over the resulting socket, exactly as they would be over a direct
// connection.
func (c *Connection) WithHTTPProxy(proxy Endpoint) *Connection {
	c.origin = proxy
	return c
}

// Attach binds a non-owning Task reference; the Connection never calls
// back into it, it's purely bookkeeping for the owning pool.
func (c *Connection) Attach(t Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.task = t
}

// Detach clears the Task reference, making the Connection eligible for
// reuse by a different task once idle.
func (c *Connection) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.task = nil
}

// Task returns the currently attached task, or nil if idle.
func (c *Connection) Task() Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.task
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Peer returns the true destination endpoint (not the proxy).
func (c *Connection) Peer() Endpoint { return c.peer }

// Origin returns the endpoint actually dialed (the proxy, if any).
func (c *Connection) Origin() Endpoint { return c.origin }

// Connect dials origin, running the SOCKS handshake first if the
// connection is SOCKS-wrapped, then transitions to StateConnectedPlain.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateConnecting
	c.mu.Unlock()

	dialAddr := c.origin.String()
	if c.resolver != nil {
		if ips, resErr := c.resolver(c.origin.Host); resErr == nil && len(ips) > 0 {
			dialAddr = fmt.Sprintf("%s:%d", ips[0].String(), c.origin.Port)
		}
	}

	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", dialAddr)
	if err != nil {
		c.setClosed()
		return classifyDialError(err)
	}

	if c.socks != nil {
		raw, err = c.socks.Negotiate(ctx, raw)
		if err != nil {
			_ = raw.Close()
			c.setClosed()
			return err
		}
	}

	c.mu.Lock()
	c.conn = raw
	c.state = StateConnectedPlain
	c.lastActivity = time.Now()
	c.mu.Unlock()
	return nil
}

// EnableTLS performs the TLS handshake over the already-connected socket.
// Per spec.md §4.1 this must be invokable *after* Connect completes, which
// is exactly what CONNECT-tunnelled HTTPS-through-proxy needs: the CONNECT
// request goes out in plaintext, then TLS starts on the same socket.
func (c *Connection) EnableTLS(ctx context.Context, cfg *tls.Config) error {
	c.mu.Lock()
	if c.conn == nil || c.state == StateClosed {
		c.mu.Unlock()
		return aeerr.New(aeerr.TransportNotConnected, "enable-tls on unconnected connection")
	}
	raw := c.conn
	c.mu.Unlock()

	tlsConn := tls.Client(raw, cfg)
	if dl, ok := ctx.Deadline(); ok {
		_ = tlsConn.SetDeadline(dl)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		c.setClosed()
		return aeerr.New(aeerr.TLSHandshakeFailed, "tls handshake failed", err)
	}
	_ = tlsConn.SetDeadline(time.Time{})

	c.mu.Lock()
	c.conn = tlsConn
	c.tlsEnabled = true
	c.tlsConfig = cfg
	c.state = StateConnectedTLS
	c.lastActivity = time.Now()
	c.mu.Unlock()
	return nil
}

// Send writes buf to the socket, honoring ctx's deadline. The returned
// error is already classified into the aeerr Transport family.
func (c *Connection) Send(ctx context.Context, buf []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return aeerr.New(aeerr.TransportNotConnected, "send on unconnected connection")
	}

	stop := watchCancel(ctx, conn)
	defer stop()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
	}
	n := 0
	for n < len(buf) {
		w, err := conn.Write(buf[n:])
		if err != nil {
			c.setClosed()
			return classifyIOError(err)
		}
		n += w
	}
	c.touch()
	return nil
}

// Receive performs a single read into buf, blocking until some data
// arrives, EOF, or ctx is done. Returns the number of bytes read, which
// may be fewer than len(buf) even without an error.
func (c *Connection) Receive(ctx context.Context, buf []byte) (int, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0, aeerr.New(aeerr.TransportNotConnected, "receive on unconnected connection")
	}

	stop := watchCancel(ctx, conn)
	defer stop()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
	}
	n, err := conn.Read(buf)
	if n > 0 {
		c.touch()
	}
	if err != nil {
		c.setClosed()
		return n, classifyIOError(err)
	}
	return n, nil
}

// ReceiveAny reads whatever is available without requiring buf to fill,
// used by the chunked/close-delimited body readers in httptxn.
func (c *Connection) ReceiveAny(ctx context.Context, buf []byte) (int, error) {
	return c.Receive(ctx, buf)
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Connection) setClosed() {
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
}

// IdleTimedOut reports whether now-lastActivity exceeds the configured
// timeout, per spec.md §4.1's idle-timeout rule.
func (c *Connection) IdleTimedOut(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeout <= 0 || c.state == StateClosed {
		return false
	}
	return now.Sub(c.lastActivity) > c.timeout
}

// Disconnect closes the socket gracefully and transitions to StateClosed.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateClosed
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Reusable reports whether the connection is idle (no attached task) and
// connected, and therefore eligible for the pool to hand to a new task.
func (c *Connection) Reusable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.task == nil && (c.state == StateConnectedPlain || c.state == StateConnectedTLS)
}

func classifyDialError(err error) aeerr.Error {
	var opErr *net.OpError
	if ok := asOpError(err, &opErr); ok {
		if opErr.Timeout() {
			return aeerr.New(aeerr.TransportTimeout, "dial timed out", err)
		}
		if isConnRefused(opErr) {
			return aeerr.New(aeerr.TransportConnRefused, "connection refused", err)
		}
	}
	if dnsErr, ok := err.(*net.DNSError); ok {
		_ = dnsErr
		return aeerr.New(aeerr.TransportUnknownHost, "unknown host", err)
	}
	return aeerr.New(aeerr.TransportGeneral, "dial failed", err)
}

func classifyIOError(err error) aeerr.Error {
	if err == nil {
		return nil
	}
	var opErr *net.OpError
	if asOpError(err, &opErr) {
		if opErr.Timeout() {
			return aeerr.New(aeerr.TransportTimeout, "i/o timed out", err)
		}
	}
	return aeerr.New(aeerr.TransportConnLost, "connection lost", err)
}
