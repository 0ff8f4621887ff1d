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

// Package serversession implements C7 ServerSession: one controller per
// (server-config × device) tuple, owning ping timing, the message-size
// budget, delivery-result handling, re-queueing on failure and the
// registration/back-off cycle. spec.md §5's single-threaded cooperative
// process() call is replaced, per SPEC_FULL.md's ambient-concurrency
// redesign, by a dedicated goroutine driven by
// github.com/nabbar/golib/runner/ticker — the teacher's own start/stop/
// uptime-tracked periodic-task convention — so each session advances
// independently instead of sharing one application-stepped loop.
// Grounded on original_source/.../AeWebUserAgent.c's ping/registration/
// retry cadence.
package serversession

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/nabbar/golib/runner/ticker"

	"github.com/axeda/agentembedded/emessage"
	"github.com/axeda/agentembedded/httptxn"
	"github.com/axeda/agentembedded/internal/aeerr"
	"github.com/axeda/agentembedded/internal/config"
	"github.com/axeda/agentembedded/internal/logx"
	"github.com/axeda/agentembedded/internal/metrics"
	"github.com/axeda/agentembedded/msgqueue"
	"github.com/axeda/agentembedded/transport"
	"github.com/axeda/agentembedded/useragent"
)

// pollInterval is how often the session's ticker wakes to check whether a
// registration retry or a ping/send is due; the actual cadence is governed
// by the server config's PingInterval/RetryPeriod, not by this constant.
const pollInterval = time.Second

// Options bundles a Session's construction-time dependencies.
type Options struct {
	Server   config.ServerConfig
	Device   config.DeviceConfig
	Queue    *msgqueue.Queue
	Agent    *useragent.UserAgent
	Auth      httptxn.Authenticator
	ProxyAuth httptxn.Authenticator
	Proxy     *httptxn.ProxyOverride
	TLSConfig *tls.Config

	Dispatcher Dispatcher
	Log        *logx.Logger
	Metrics    *metrics.Registry

	MajorVersion, MinorVersion int
	TimestampMode              emessage.TimestampMode

	HTTPVersion    string
	HTTPPersistent bool
	HTTPTimeout    time.Duration

	OnError          func(error)
	OnPingRateUpdate func(time.Duration)
}

// Session is AeWebUserAgent's per-(server,device) ping/registration/send
// controller.
type Session struct {
	opts Options

	mu           sync.Mutex
	online       bool
	backoff      time.Duration
	lastAttempt  time.Time
	lastSend     time.Time
	pingInterval time.Duration
	nextMsgID    int64

	tick *ticker.Ticker
}

// New builds a Session. It starts offline; the first tick attempts
// registration immediately since lastAttempt is the zero value.
func New(opts Options) *Session {
	return &Session{
		opts:         opts,
		backoff:      opts.Server.RetryPeriod,
		pingInterval: opts.Server.PingInterval,
	}
}

// Start begins the session's ticker loop.
func (s *Session) Start(ctx context.Context) error {
	s.tick = ticker.New(pollInterval, s.onTick)
	return s.tick.Start(ctx)
}

// Stop halts the session's ticker loop.
func (s *Session) Stop(ctx context.Context) error {
	if s.tick == nil {
		return nil
	}
	return s.tick.Stop(ctx)
}

// IsOnline reports the session's current registration state.
func (s *Session) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *Session) onTick(ctx context.Context, _ *time.Ticker) error {
	s.mu.Lock()
	online := s.online
	readyToRetry := time.Since(s.lastAttempt) >= s.backoff
	s.mu.Unlock()

	if !online {
		if readyToRetry {
			s.register(ctx)
		}
		return nil
	}

	if s.dueToSend() {
		s.sendRound(ctx)
	}
	return nil
}

func (s *Session) dueToSend() bool {
	s.mu.Lock()
	due := time.Since(s.lastSend) >= s.pingInterval
	s.mu.Unlock()
	return due || s.opts.Queue.HasAtLeast(s.opts.Device.ID, msgqueue.PriorityUrgent)
}

func (s *Session) nextMessageID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMsgID++
	return s.nextMsgID
}

// register performs a registration round (spec.md §4.7 step 1): a
// standalone EMessage carrying only the Registration and Online fragments
// for this device.
func (s *Session) register(ctx context.Context) {
	s.mu.Lock()
	s.lastAttempt = time.Now()
	s.mu.Unlock()

	b := emessage.New(s.nextMessageID(), emessage.TypeStandard, s.opts.MajorVersion, s.opts.MinorVersion, 0, s.opts.TimestampMode, time.Now())
	frag := Registration(b.Timestamp(), s.opts.Device, s.pingInterval)
	if err := b.MustAddFragment(s.opts.Device.ID, emessage.KindOther, frag); err != nil {
		s.reportError(err)
		return
	}
	_ = b.MustAddFragment(s.opts.Device.ID, emessage.KindOther, OnlineFragment(true))

	s.post(ctx, b, func(result DispatchResult, err error) {
		if err != nil {
			s.onRoundFailed(err)
			return
		}
		s.onRegistrationSucceeded(result)
	})
}

func (s *Session) onRegistrationSucceeded(result DispatchResult) {
	s.mu.Lock()
	s.online = true
	s.backoff = s.opts.Server.RetryPeriod
	if result.NewPingRate > 0 {
		s.pingInterval = result.NewPingRate
	}
	rate := s.pingInterval
	s.mu.Unlock()

	if result.NewPingRate > 0 && s.opts.OnPingRateUpdate != nil {
		s.opts.OnPingRateUpdate(rate)
	}
}

// sendRound performs a regular ping/data round (spec.md §4.7 steps 2-4):
// drains queued items for this device up to the message-size budget, tags
// them with this round's message id, and on success deletes them.
func (s *Session) sendRound(ctx context.Context) {
	s.mu.Lock()
	s.lastSend = time.Now()
	s.mu.Unlock()

	msgID := s.nextMessageID()
	b := emessage.New(msgID, emessage.TypeStandard, s.opts.MajorVersion, s.opts.MinorVersion, int64(s.opts.Server.MaxMsgSize), s.opts.TimestampMode, time.Now())
	_ = b.MustAddFragment(s.opts.Device.ID, emessage.KindOther, Ping(b.Timestamp()))

	drained := s.drainQueue(b, msgID)

	s.post(ctx, b, func(result DispatchResult, err error) {
		if err != nil {
			s.onRoundFailed(err)
			return
		}
		s.onSendSucceeded(result, msgID, drained)
	})
}

// drainQueue appends queued items for this device into b in priority/FIFO
// order until the next item would either not fit the size budget or the
// budget has no room left (AddFragment's per-device first-data-item
// exemption still applies to a queued snapshot item, never to the Ping
// fragment sendRound already added), stamping each included item with
// msgID so a later DeleteByMessageID call can remove exactly this batch.
func (s *Session) drainQueue(b *emessage.Builder, msgID int64) int {
	c := s.opts.Queue.Open()
	defer c.Close()

	count := 0
	for {
		item, ok := c.Next()
		if !ok {
			break
		}
		if item.DeviceID != s.opts.Device.ID {
			continue
		}
		added, err := b.AddFragment(item.DeviceID, contentKindOf(item.Type), string(item.Content))
		if err != nil || !added {
			break
		}
		item.MessageID = int32(msgID)
		count++
	}
	return count
}

// contentKindOf maps a queued item's kind to the emessage.ContentKind its
// fragment was rendered as, so only a snapshot item can ever claim the
// builder's first-data-item size exemption (AeDRMEMessageAddData is the
// only adder in AeDRMEMessage.c with that exemption).
func contentKindOf(t msgqueue.ItemType) emessage.ContentKind {
	if t == msgqueue.ItemSnapshot {
		return emessage.KindData
	}
	return emessage.KindOther
}

func (s *Session) onSendSucceeded(result DispatchResult, msgID int64, drained int) {
	if drained > 0 {
		s.opts.Queue.DeleteByMessageID(int32(msgID), s.opts.Device.ID)
	}

	s.mu.Lock()
	s.backoff = s.opts.Server.RetryPeriod
	if result.NewPingRate > 0 {
		s.pingInterval = result.NewPingRate
	}
	rate := s.pingInterval
	s.mu.Unlock()

	if result.NewPingRate > 0 && s.opts.OnPingRateUpdate != nil {
		s.opts.OnPingRateUpdate(rate)
	}

	for _, frag := range result.Status {
		_ = s.opts.Queue.Add(&msgqueue.Item{
			Type:     msgqueue.ItemSOAPStatus,
			DeviceID: s.opts.Device.ID,
			ConfigID: int32(s.opts.Server.ID),
			Content:  []byte(frag.Fragment),
			Priority: frag.Priority,
		})
	}
}

// onRoundFailed is spec.md §4.7 step 4: back off, go offline so the next
// tick re-registers, and report the error. Items already tagged with this
// round's message id were never deleted, so they remain queued exactly as
// the spec's "mark all items in the outgoing message as still-queued"
// requires — no separate untagging step is needed.
func (s *Session) onRoundFailed(err error) {
	s.mu.Lock()
	s.online = false
	s.backoff = nextBackoff(s.backoff)
	s.mu.Unlock()
	s.reportError(err)
}

func (s *Session) reportError(err error) {
	if s.opts.Log != nil {
		s.opts.Log.Entry("serversession").WithField("server", s.opts.Server.ID).WithError(err).Warnf("round failed")
	}
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

// post submits one EMessage envelope as an HTTP POST and, on a successful
// response, hands the body to the configured Dispatcher before invoking
// onDone with the dispatch result.
func (s *Session) post(ctx context.Context, b *emessage.Builder, onDone func(DispatchResult, error)) {
	peer, path, useTLS, err := parsePostURL(s.opts.Server.PostURL)
	if err != nil {
		onDone(DispatchResult{}, err)
		return
	}

	var respBody []byte
	req := &httptxn.Request{
		Peer:        peer,
		Path:        path,
		Method:      "POST",
		Version:     s.opts.HTTPVersion,
		TLS:         useTLS,
		Persistent:  s.opts.HTTPPersistent,
		Timeout:     s.opts.HTTPTimeout,
		Proxy:       s.opts.Proxy,
		Headers:     httptxn.NewHeader(),
		Body:        b.Bytes(),
		ContentType: "text/xml",
	}
	req.OnEntity = func(_ int64, chunk []byte) bool {
		respBody = append(respBody, chunk...)
		return true
	}
	req.OnCompleted = func() {
		if req.StatusCode < 200 || req.StatusCode >= 300 {
			onDone(DispatchResult{}, aeerr.Newf(aeerr.HTTPBadResponse, "server returned status %d", req.StatusCode))
			return
		}
		if s.opts.Dispatcher == nil {
			onDone(DispatchResult{}, nil)
			return
		}
		result, err := s.opts.Dispatcher.Dispatch(ctx, s.opts.Device.ID, respBody)
		onDone(result, err)
	}
	req.OnError = func(err error) {
		onDone(DispatchResult{}, err)
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.HTTPRequestsTotal.WithLabelValues("submitted").Inc()
	}
	s.opts.Agent.Submit(ctx, req, s.opts.Auth, s.opts.ProxyAuth, s.opts.TLSConfig)
}

// parsePostURL splits a server config's post-URL into the transport
// Endpoint and path httptxn.Request needs.
func parsePostURL(raw string) (peer transport.Endpoint, path string, useTLS bool, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return transport.Endpoint{}, "", false, aeerr.New(aeerr.TransportBadURL, "malformed post URL", err)
	}

	useTLS = u.Scheme == "https"
	host := u.Hostname()
	portStr := u.Port()
	port := 80
	if useTLS {
		port = 443
	}
	if portStr != "" {
		p, convErr := strconv.Atoi(portStr)
		if convErr != nil {
			return transport.Endpoint{}, "", false, aeerr.New(aeerr.TransportBadURL, "malformed post URL port", convErr)
		}
		port = p
	}

	path = u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path = fmt.Sprintf("%s?%s", path, u.RawQuery)
	}
	return transport.Endpoint{Host: host, Port: port}, path, useTLS, nil
}
