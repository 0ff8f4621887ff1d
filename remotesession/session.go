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
	"bytes"
	"context"
	"crypto/tls"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/axeda/agentembedded/httptxn"
	"github.com/axeda/agentembedded/internal/aeerr"
	"github.com/axeda/agentembedded/internal/logx"
	"github.com/axeda/agentembedded/internal/metrics"
	"github.com/axeda/agentembedded/transport"
)

// SessionState is the top-level session-start/-stop state machine
// (AeRemoteSessionState): beginning → (probing-desktop) → selecting
// transport → connecting → sending-start → waiting-for-start → started →
// sending-stop → done.
type SessionState int

const (
	StateBeginning SessionState = iota
	StateProbingDesktop
	StateSelectingTransport
	StateConnecting
	StateSendingStart
	StateWaitingForStart
	StateStarted
	StateSendingStop
	StateDone
)

// Config carries the server/port quadruple a FileTransfer.Start-like
// RemoteSession.Start method advertises (AE_REMOTE_ATTR_* in
// AeRemoteSession.h): direct connect target (plain/SSL port) plus the
// HTTP fallback's post/get URLs.
type Config struct {
	Secure       bool
	Server       string
	PlainPort    int
	SSLPort      int
	PostURL      string
	GetURL       string
	Timeout      time.Duration
	InterfaceType string // "desktop" triggers the probe sub-task
}

// pingInterval is the 10-second async-traffic keepalive the channel
// thread injects when nothing else went out (spec.md §4.11).
const pingInterval = 10 * time.Second

// Session drives one RemoteSession end to end: picks a transport
// (direct, then HTTP on failure), exchanges session-start, and runs the
// transport/channel goroutine pair until session-stop or timeout.
type Session struct {
	ID       string
	DeviceID int32
	ConfigID int32
	Config   Config

	TLSConfig *tls.Config
	Proxy     *httptxn.ProxyOverride
	Log       *logx.Logger
	Metrics   *metrics.Registry

	mu        sync.Mutex
	state     SessionState
	tr        Transport
	channels  *channelRegistry
	startTime time.Time
	lastSend  time.Time
}

// NewSession constructs a Session ready to Run.
func NewSession(id string, deviceID, configID int32, cfg Config, tlsConfig *tls.Config, proxy *httptxn.ProxyOverride) *Session {
	return &Session{
		ID:        id,
		DeviceID:  deviceID,
		ConfigID:  configID,
		Config:    cfg,
		TLSConfig: tlsConfig,
		Proxy:     proxy,
		channels:  newChannelRegistry(),
		state:     StateBeginning,
	}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run selects a transport and drives the session to completion. It
// returns when the session ends (stop frame sent/received, timeout
// reached, or ctx cancelled) — spec.md §4.11's "session carries a
// configured timeout from session-start to session-stop; on expiry, a
// session-stop frame is sent, then the session is reaped."
func (s *Session) Run(ctx context.Context) error {
	s.setState(StateSelectingTransport)
	tr, err := s.selectTransport(ctx)
	if err != nil {
		s.setState(StateDone)
		return err
	}
	s.tr = tr
	defer s.tr.Close()

	s.setState(StateSendingStart)
	start := CommandFrame{Type: CmdSessionStart, Param: ProtocolVersion}
	if err := s.sendCommand(ctx, 0, start); err != nil {
		s.setState(StateDone)
		return err
	}
	s.setState(StateWaitingForStart)
	s.startTime = time.Now()
	s.setState(StateStarted)

	deadline := ctx
	var cancel context.CancelFunc
	if s.Config.Timeout > 0 {
		deadline, cancel = context.WithTimeout(ctx, s.Config.Timeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(deadline)
	g.Go(func() error { return s.transportLoop(gctx) })
	g.Go(func() error { return s.channelLoop(gctx) })

	err = g.Wait()
	s.sendStop(ctx)
	s.setState(StateDone)
	return err
}

// selectTransport tries Direct first, falling back to HTTP only on
// connect/transport error and never interleaving the two (spec.md §4.11).
func (s *Session) selectTransport(ctx context.Context) (Transport, error) {
	if s.Config.Server != "" {
		port := s.Config.PlainPort
		useTLS := s.Config.Secure
		if useTLS && s.Config.SSLPort > 0 {
			port = s.Config.SSLPort
		}
		direct := &DirectTransport{
			Peer:      transport.Endpoint{Host: s.Config.Server, Port: port},
			TLS:       useTLS,
			TLSConfig: s.TLSConfig,
			SessionID: s.ID,
			Proxy:     s.Proxy,
		}
		s.setState(StateConnecting)
		if err := direct.Connect(ctx); err == nil {
			return direct, nil
		}
	}

	if s.Config.PostURL != "" && s.Config.GetURL != "" {
		h := &HTTPTransport{PostURL: s.Config.PostURL, GetURL: s.Config.GetURL, Proxy: s.Proxy}
		s.setState(StateConnecting)
		if err := h.Connect(ctx); err == nil {
			return h, nil
		}
	}

	return nil, aeerr.New(aeerr.TransportGeneral, "remotesession: no direct or HTTP transport available")
}

// transportLoop is the inbound/synchronous-reply state machine:
// receive-header → receive-body → dispatch → receive-header, matching
// AeRemoteSessionTransportThreadState's transition list.
func (s *Session) transportLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		hdr, err := ReadHeader(&contextReader{ctx: ctx, r: s.tr})
		if err != nil {
			return err
		}
		body := make([]byte, hdr.Length)
		if hdr.Length > 0 {
			if _, err := readFullFrom(ctx, s.tr, body); err != nil {
				return err
			}
		}

		switch hdr.Type {
		case MsgCommand:
			cmd, err := decodeCommand(body)
			if err != nil {
				continue
			}
			s.handleCommand(ctx, hdr.Channel, cmd)
		case MsgData:
			s.channels.Deliver(hdr.Channel, body)
		}
	}
}

// handleCommand implements the command table in spec.md §4.11: open-
// socket validates against the configured port and channel availability;
// close-socket closes the channel; error marks it errored; ping is
// answered with a ping-response. Other commands (session-stop,
// ping-response) are ignored here; the session ends when the transport
// closes or the context is done.
func (s *Session) handleCommand(ctx context.Context, channelID int32, cmd CommandFrame) {
	switch cmd.Type {
	case CmdOpenSocket:
		port := int32(cmd.Param)
		if int(port) != s.Config.PlainPort && int(port) != s.Config.SSLPort {
			s.sendCommand(ctx, channelID, CommandFrame{Type: CmdError, Code: ErrAccess})
			return
		}
		code := s.channels.Open(channelID, nil)
		if code != 0 {
			s.sendCommand(ctx, channelID, CommandFrame{Type: CmdError, Code: code})
		}
	case CmdCloseSocket:
		s.channels.Close(channelID)
	case CmdPing:
		s.sendCommand(ctx, channelID, CommandFrame{Type: CmdPingResponse})
	case CmdError:
		s.channels.MarkErrored(channelID)
	}
}

// channelLoop is the outbound polling loop: every 100ms it sends an
// unsolicited CloseSocket for each channel marked errored, and it injects
// a Ping after 10 seconds of outbound silence (spec.md §4.11). It does not
// upload channel data; nothing in the session sends MsgData upstream.
func (s *Session) channelLoop(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for _, id := range s.channels.drainErrored() {
			_ = s.sendCommand(ctx, id, CommandFrame{Type: CmdCloseSocket})
		}

		s.mu.Lock()
		idle := time.Since(s.lastSend) >= pingInterval
		s.mu.Unlock()
		if idle {
			if err := s.sendCommand(ctx, 0, CommandFrame{Type: CmdPing}); err != nil {
				return err
			}
		}
	}
}

func (s *Session) sendCommand(ctx context.Context, channelID int32, cmd CommandFrame) error {
	body := cmd.encode()
	hdr := Header{Type: MsgCommand, Length: int32(len(body)), Channel: channelID}
	var buf []byte
	buf = appendHeader(buf, hdr)
	buf = append(buf, body...)
	s.mu.Lock()
	s.lastSend = time.Now()
	s.mu.Unlock()
	return s.tr.Send(ctx, buf)
}

func (s *Session) sendStop(ctx context.Context) {
	s.setState(StateSendingStop)
	_ = s.sendCommand(ctx, 0, CommandFrame{Type: CmdSessionStop})
}

func appendHeader(buf []byte, h Header) []byte {
	var tmp bytes.Buffer
	_ = h.WriteTo(&tmp)
	return append(buf, tmp.Bytes()...)
}

// contextReader adapts a Transport's blocking Receive into an io.Reader
// ReadHeader can consume directly.
type contextReader struct {
	ctx context.Context
	r   Transport
}

func (c *contextReader) Read(p []byte) (int, error) {
	return c.r.Receive(c.ctx, p)
}

func readFullFrom(ctx context.Context, tr Transport, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := tr.Receive(ctx, buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}
