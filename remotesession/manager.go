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

package remotesession

import (
	"context"
	"crypto/tls"
	"strconv"
	"sync"
	"time"

	"github.com/axeda/agentembedded/httptxn"
	"github.com/axeda/agentembedded/internal/logx"
	"github.com/axeda/agentembedded/internal/metrics"
	"github.com/axeda/agentembedded/msgqueue"
	"github.com/axeda/agentembedded/soap"
	"github.com/axeda/agentembedded/transport"
)

// Manager satisfies soap.RemoteSessionHandler: each RemoteSession.Start
// (or .StartSecure) dispatch builds a Session from the method's
// attributes and runs it detached, tracking it so at most one session
// per device runs at a time (spec.md §4.11 doesn't allow concurrent
// sessions per device).
type Manager struct {
	Queue     *msgqueue.Queue
	TLSConfig *tls.Config
	Proxy     *httptxn.ProxyOverride
	Log       *logx.Logger
	Metrics   *metrics.Registry

	mu       sync.Mutex
	sessions map[int32]*Session
}

// NewManager constructs an empty Manager.
func NewManager(queue *msgqueue.Queue, tlsConfig *tls.Config, proxy *httptxn.ProxyOverride) *Manager {
	return &Manager{Queue: queue, TLSConfig: tlsConfig, Proxy: proxy, sessions: make(map[int32]*Session)}
}

// StartRemoteSession implements soap.RemoteSessionHandler.
func (m *Manager) StartRemoteSession(ctx context.Context, deviceID, configID int32, method *soap.Element, secure bool) error {
	m.mu.Lock()
	if _, busy := m.sessions[deviceID]; busy {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	cfg := Config{
		Secure:        secure,
		Server:        method.Attrs["server"],
		PlainPort:     atoiDefault(method.Attrs["port"], 0),
		SSLPort:       atoiDefault(method.Attrs["sslport"], 0),
		PostURL:       method.Attrs["puturl"],
		GetURL:        method.Attrs["geturl"],
		Timeout:       durationOf(method.Attrs["timeout"], 10*time.Minute),
		InterfaceType: method.Attrs["interfacename"],
	}
	sessionID := method.Attrs["sessionid"]

	sess := NewSession(sessionID, deviceID, configID, cfg, m.TLSConfig, m.Proxy)
	m.mu.Lock()
	m.sessions[deviceID] = sess
	m.mu.Unlock()

	go m.run(ctx, deviceID, sess)
	return nil
}

func (m *Manager) run(ctx context.Context, deviceID int32, sess *Session) {
	defer func() {
		m.mu.Lock()
		delete(m.sessions, deviceID)
		m.mu.Unlock()
	}()

	if sess.Config.InterfaceType == "desktop" && sess.Config.Server != "" {
		probe := &DesktopProbe{
			Peer:     transport.Endpoint{Host: sess.Config.Server, Port: probePort},
			Queue:    m.Queue,
			DeviceID: deviceID,
			ConfigID: sess.ConfigID,
		}
		_ = probe.Run(ctx)
	}

	_ = sess.Run(ctx)
}

// Active reports whether deviceID currently has a running session.
func (m *Manager) Active(deviceID int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[deviceID]
	return ok
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func durationOf(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}
