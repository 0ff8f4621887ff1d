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

// Package useragent implements C2 UserAgent: the connection pool and task
// list AeWebUserAgent.c manages with a list of sockets polled by a single
// select() loop. The Go rewrite keeps the same bookkeeping (idle
// connections keyed by destination, a live task table for Cancel) but
// drives each task's HttpTransaction on its own goroutine instead of a
// shared readiness multiplex, per spec.md §9's sanctioned re-architecture.
package useragent

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/axeda/agentembedded/httptxn"
	"github.com/axeda/agentembedded/internal/logx"
	"github.com/axeda/agentembedded/internal/metrics"
	"github.com/axeda/agentembedded/transport"
)

// poolKey identifies a family of interchangeable connections: same true
// destination, same proxy (if any), same TLS-or-not. Connections are never
// shared across keys even if the underlying TCP endpoint coincides, since
// SOCKS-wrapped and plain connections to the same origin aren't
// interchangeable.
func poolKey(peer transport.Endpoint, proxy *httptxn.ProxyOverride, tlsEnabled bool) string {
	if proxy == nil {
		return fmt.Sprintf("%s|tls=%v", peer, tlsEnabled)
	}
	return fmt.Sprintf("%s|proxy=%s:%s:%d|tls=%v", peer, proxy.Protocol, proxy.Host, proxy.Port, tlsEnabled)
}

// UserAgent pools Connections per poolKey and tracks in-flight Tasks by ID
// for Cancel. It implements httptxn.Pool.
type UserAgent struct {
	log      *logx.Logger
	metrics  *metrics.Registry
	timeout  time.Duration
	resolver transport.Resolver

	mu   sync.Mutex
	idle map[string][]*transport.Connection
	keys map[*transport.Connection]string // remembers each live connection's pool key for Release

	tasksMu sync.Mutex
	tasks   map[string]*runningTask
}

type runningTask struct {
	cancel context.CancelFunc
	req    *httptxn.Request
}

func New(log *logx.Logger, m *metrics.Registry, timeout time.Duration) *UserAgent {
	return &UserAgent{
		log:     log,
		metrics: m,
		timeout: timeout,
		idle:    make(map[string][]*transport.Connection),
		keys:    make(map[*transport.Connection]string),
		tasks:   make(map[string]*runningTask),
	}
}

// WithResolver attaches a Resolver every Connection dial()s from here on
// will consult, routing dials through a process-wide cache (see
// internal/agentctx.Context.ResolveHost) instead of a fresh lookup per
// connect.
func (ua *UserAgent) WithResolver(r transport.Resolver) *UserAgent {
	ua.resolver = r
	return ua
}

// Acquire implements httptxn.Pool: pop a reusable idle connection for the
// key, or dial a fresh one.
func (ua *UserAgent) Acquire(ctx context.Context, peer transport.Endpoint, proxy *httptxn.ProxyOverride, tlsConfig *tls.Config) (*transport.Connection, bool, error) {
	key := poolKey(peer, proxy, tlsConfig != nil)

	ua.mu.Lock()
	bucket := ua.idle[key]
	if n := len(bucket); n > 0 {
		conn := bucket[n-1]
		ua.idle[key] = bucket[:n-1]
		ua.mu.Unlock()
		if ua.metrics != nil {
			ua.metrics.TransactionsInFlight.Inc()
		}
		return conn, true, nil
	}
	ua.mu.Unlock()

	conn := ua.dial(peer, proxy)
	ua.mu.Lock()
	ua.keys[conn] = key
	ua.mu.Unlock()
	if err := conn.Connect(ctx); err != nil {
		ua.mu.Lock()
		delete(ua.keys, conn)
		ua.mu.Unlock()
		return nil, false, err
	}
	if ua.metrics != nil {
		ua.metrics.TransactionsInFlight.Inc()
	}
	return conn, false, nil
}

func (ua *UserAgent) dial(peer transport.Endpoint, proxy *httptxn.ProxyOverride) *transport.Connection {
	if proxy == nil {
		return transport.New(peer, ua.timeout).WithResolver(ua.resolver)
	}
	proxyEndpoint := transport.Endpoint{Host: proxy.Host, Port: proxy.Port}
	if proxy.Protocol == "http" {
		// The socket dials the proxy; HttpTransaction formats either an
		// absolute-URI request (plain target) or a CONNECT tunnel
		// request (TLS target) over it, per spec.md §4.3/§6.
		return transport.New(peer, ua.timeout).WithResolver(ua.resolver).WithHTTPProxy(proxyEndpoint)
	}
	return transport.New(peer, ua.timeout).WithResolver(ua.resolver).WithSOCKS(proxyEndpoint, transport.SOCKSConfig{
		User:     proxy.User,
		Password: proxy.Password,
	})
}

// Release implements httptxn.Pool.
func (ua *UserAgent) Release(conn *transport.Connection, keepAlive bool) {
	if ua.metrics != nil {
		ua.metrics.TransactionsInFlight.Dec()
	}
	conn.Detach()

	if !keepAlive || !conn.Reusable() {
		_ = conn.Disconnect()
		ua.mu.Lock()
		delete(ua.keys, conn)
		ua.mu.Unlock()
		return
	}

	ua.mu.Lock()
	key := ua.keys[conn]
	ua.idle[key] = append(ua.idle[key], conn)
	ua.mu.Unlock()
}

// Sweep disconnects idle connections past their idle timeout, replacing
// the original event loop's per-iteration idle check (spec.md §4.1).
func (ua *UserAgent) Sweep() {
	now := time.Now()
	ua.mu.Lock()
	defer ua.mu.Unlock()
	for key, bucket := range ua.idle {
		kept := bucket[:0]
		for _, conn := range bucket {
			if conn.IdleTimedOut(now) {
				_ = conn.Disconnect()
				delete(ua.keys, conn)
				continue
			}
			kept = append(kept, conn)
		}
		ua.idle[key] = kept
	}
}
