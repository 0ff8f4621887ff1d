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

package httptxn

import (
	"context"
	"crypto/tls"
	"strconv"
	"strings"

	"github.com/axeda/agentembedded/internal/aeerr"
	"github.com/axeda/agentembedded/transport"
)

const (
	maxAuthRetries      = 2 // one challenge round-trip per scheme, plus NTLM's second leg
	maxRecoveryAttempts = 1 // spec.md §4.3: a reused connection gets exactly one async-close retry
)

// Transaction drives one Request through C3's state machine: acquire a
// connection, optionally tunnel/handshake, send the head, parse the
// response, and deliver the body — retrying exactly once for an
// asynchronously-closed reused connection and up to maxAuthRetries times
// for a 401/407 challenge, per spec.md §4.3/§4.4 and
// original_source/.../AeWebTransaction.c's transition table.
type Transaction struct {
	req  *Request
	pool Pool

	auth      Authenticator
	proxyAuth Authenticator
	tlsConfig *tls.Config

	conn   *transport.Connection
	reused bool

	authHeader      string
	proxyAuthHeader string

	// ntlmInFlight is true for exactly the retry that carries NTLM's
	// round-1 token (Type1), set by handleChallenge and consumed by the
	// next formatHead call; spec.md §4.3 requires that request use
	// Proxy-Connection: Keep-Alive rather than the normal Connection
	// header, since the handshake's state lives on this TCP connection.
	ntlmInFlight bool
}

// New builds a Transaction for req, to be driven over connections handed
// out by pool. auth/proxyAuth may be nil if the caller never configured
// credentials for that side (origin vs proxy) — Run then fails a 401/407
// outright rather than attempting a challenge it cannot answer.
func New(req *Request, pool Pool, auth, proxyAuth Authenticator, tlsConfig *tls.Config) *Transaction {
	return &Transaction{req: req, pool: pool, auth: auth, proxyAuth: proxyAuth, tlsConfig: tlsConfig}
}

// asyncCloseErr marks a failure that happened writing to, or reading the
// very first bytes of, a *reused* connection — indistinguishable from the
// peer having closed it between transactions, which spec.md §4.1 says to
// recover from with a single silent retry on a fresh connection.
type asyncCloseErr struct{ cause error }

func (e asyncCloseErr) Error() string { return e.cause.Error() }
func (e asyncCloseErr) Unwrap() error { return e.cause }

// challengeErr signals a 401/407 was handled and the transaction should
// retry the head (possibly on a fresh connection, if the server/proxy
// doesn't keep failed-auth connections open).
type challengeErr struct{ keepConn bool }

func (e challengeErr) Error() string { return "authentication challenge received" }

// Run drives the transaction to completion, invoking exactly one of
// req.OnCompleted / req.OnError (spec.md §8 invariant 1) before returning.
func (t *Transaction) Run(ctx context.Context) error {
	authRetries := 0
	recovered := false

	for {
		if t.conn == nil {
			conn, reused, err := t.pool.Acquire(ctx, t.req.Peer, t.req.Proxy, t.tlsConfig)
			if err != nil {
				return t.fail(err)
			}
			t.conn = conn
			t.reused = reused
		}

		err := t.runOnce(ctx)
		if err == nil {
			keepAlive := t.req.Persistent && !t.isConnectionClose()
			t.pool.Release(t.conn, keepAlive)
			t.conn = nil
			if t.req.OnCompleted != nil {
				t.req.OnCompleted()
			}
			return nil
		}

		switch e := err.(type) {
		case asyncCloseErr:
			t.pool.Release(t.conn, false)
			t.conn = nil
			if recovered || !t.reused {
				return t.fail(e.cause)
			}
			recovered = true
			continue

		case challengeErr:
			authRetries++
			if authRetries > maxAuthRetries {
				t.pool.Release(t.conn, false)
				t.conn = nil
				return t.fail(aeerr.New(aeerr.HTTPAuthFailed, "exhausted authentication retries"))
			}
			if !e.keepConn {
				t.pool.Release(t.conn, false)
				t.conn = nil
			}
			continue

		default:
			t.pool.Release(t.conn, false)
			t.conn = nil
			return t.fail(err)
		}
	}
}

func (t *Transaction) fail(err error) error {
	if t.req.OnError != nil {
		t.req.OnError(err)
	}
	return err
}

func (t *Transaction) isConnectionClose() bool {
	for _, v := range t.req.RespHeaders.Values("Connection") {
		if strings.EqualFold(strings.TrimSpace(v), "close") {
			return true
		}
	}
	return t.req.Version == "1.0"
}

// runOnce performs exactly one head+body cycle over t.conn: connect if
// needed, CONNECT-tunnel and/or TLS-handshake if needed, send, parse, and
// either return a retryable sentinel (asyncCloseErr/challengeErr) or
// deliver the body and return nil.
func (t *Transaction) runOnce(ctx context.Context) error {
	firstWrite := t.reused

	if t.conn.State() == transport.StateClosed {
		if err := t.conn.Connect(ctx); err != nil {
			if firstWrite {
				return asyncCloseErr{err}
			}
			return err
		}
		firstWrite = false // freshly dialed, not a reuse race
	}

	viaHTTPProxy := t.req.Proxy != nil && t.req.Proxy.Protocol == "http"
	needsTunnel := viaHTTPProxy && t.req.TLS && t.conn.State() != transport.StateConnectedTLS

	if needsTunnel {
		if err := t.performConnect(ctx); err != nil {
			return err
		}
	}
	if t.req.TLS && t.conn.State() != transport.StateConnectedTLS {
		if err := t.conn.EnableTLS(ctx, t.tlsConfig); err != nil {
			return err
		}
	}

	if t.auth != nil && t.authHeader == "" {
		t.authHeader = t.auth.Header(t.req.Peer, t.req.Method, t.req.Path)
	}
	if t.proxyAuth != nil && t.proxyAuthHeader == "" && viaHTTPProxy {
		t.proxyAuthHeader = t.proxyAuth.Header(transport.Endpoint{Host: t.req.Proxy.Host, Port: t.req.Proxy.Port}, t.req.Method, "")
	}

	head := t.formatHead(viaHTTPProxy, false, false, t.ntlmInFlight)
	if err := t.conn.Send(ctx, head); err != nil {
		if firstWrite {
			return asyncCloseErr{err}
		}
		return err
	}

	r := newHeadReader(t.conn)
	resp, err := readResponseHead(ctx, r)
	if err != nil {
		if firstWrite {
			return asyncCloseErr{err}
		}
		return err
	}

	for resp.statusCode == 100 {
		resp, err = readResponseHead(ctx, r)
		if err != nil {
			return err
		}
	}

	t.req.StatusCode = resp.statusCode
	t.req.RespHeaders = resp.headers

	switch {
	case resp.statusCode == 401 && t.auth != nil:
		return t.handleChallenge(ctx, r, resp, "WWW-Authenticate", t.auth, &t.authHeader)
	case resp.statusCode == 407 && t.proxyAuth != nil:
		return t.handleChallenge(ctx, r, resp, "Proxy-Authenticate", t.proxyAuth, &t.proxyAuthHeader)
	}

	if t.req.OnResponse != nil && !t.req.OnResponse(resp.statusCode) {
		return nil
	}

	return t.deliverBody(ctx, r, resp)
}

// performConnect issues the proxy CONNECT pre-flight for a TLS request
// through an HTTP proxy and expects a bare 200 with no body.
func (t *Transaction) performConnect(ctx context.Context) error {
	head := t.formatHead(true, true, true, t.ntlmInFlight)
	if err := t.conn.Send(ctx, head); err != nil {
		return err
	}
	r := newHeadReader(t.conn)
	resp, err := readResponseHead(ctx, r)
	if err != nil {
		return err
	}
	if resp.statusCode != 200 {
		return aeerr.Newf(aeerr.HTTPBadResponse, "proxy CONNECT refused: %d %s", resp.statusCode, resp.reason)
	}
	return nil
}

// handleChallenge drains any body the challenge response carries (so the
// connection stays reusable), asks the authenticator to produce a retry
// header, and signals the caller to retry the head.
func (t *Transaction) handleChallenge(ctx context.Context, r *headReader, resp *responseHead, headerName string, a Authenticator, out *string) error {
	if err := discardBody(ctx, r, resp); err != nil {
		return asyncCloseErr{err}
	}
	header, ntlmRoundTrip, ok := a.Challenge(t.req.Peer, t.req.Method, t.req.Path, resp.headers.Values(headerName))
	if !ok {
		return aeerr.New(aeerr.HTTPAuthFailed, "no usable credentials for challenge")
	}
	*out = header
	t.ntlmInFlight = ntlmRoundTrip

	// NTLM's first leg, and most proxy challenges, close the connection;
	// origin Basic/Digest challenges over a persistent connection do not
	// have to. Conservatively reconnect unless the response said otherwise
	// — except NTLM round 1, which must keep this exact connection
	// regardless of what Connection header the 401/407 carried, since the
	// handshake state lives on the socket, not in any cache.
	keepConn := ntlmRoundTrip || !t.isConnectionCloseHeaders(resp.headers)
	return challengeErr{keepConn: keepConn}
}

func (t *Transaction) isConnectionCloseHeaders(h *Header) bool {
	for _, v := range h.Values("Connection") {
		if strings.EqualFold(strings.TrimSpace(v), "close") {
			return true
		}
	}
	return false
}

// deliverBody reads the response entity per its framing (chunked,
// Content-Length, or close-delimited) and feeds it to req.OnEntity, per
// spec.md §4.3's entity-delivery rules. HEAD requests and bodyless status
// codes (204, 304) have no entity regardless of headers.
func (t *Transaction) deliverBody(ctx context.Context, r *headReader, resp *responseHead) error {
	if t.req.Method == "HEAD" || resp.statusCode == 204 || resp.statusCode == 304 {
		return nil
	}

	te := strings.ToLower(resp.headers.Get("Transfer-Encoding"))
	if te == "chunked" {
		return t.deliverChunked(ctx, r)
	}

	if cl := resp.headers.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil {
			return aeerr.Newf(aeerr.HTTPBadResponse, "malformed Content-Length %q", cl)
		}
		return t.deliverFixedLength(ctx, r, n)
	}

	return t.deliverUntilClose(ctx, r)
}

func (t *Transaction) deliverChunked(ctx context.Context, r *headReader) error {
	dec := newChunkDecoder(r)
	var offset int64
	for {
		data, ok, err := dec.next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if t.req.OnEntity != nil && !t.req.OnEntity(offset, data) {
			return nil
		}
		offset += int64(len(data))
	}
}

func (t *Transaction) deliverFixedLength(ctx context.Context, r *headReader, total int64) error {
	var offset int64
	for offset < total {
		want := total - offset
		const maxChunk = 32 * 1024
		if want > maxChunk {
			want = maxChunk
		}
		data, err := r.readExactly(ctx, int(want))
		if err != nil {
			return err
		}
		if t.req.OnEntity != nil && !t.req.OnEntity(offset, data) {
			return nil
		}
		offset += int64(len(data))
	}
	return nil
}

func (t *Transaction) deliverUntilClose(ctx context.Context, r *headReader) error {
	var offset int64
	for {
		data, err := r.readSome(ctx)
		if err != nil {
			// peer closing to signal end-of-body is the normal termination
			// for close-delimited entities, not a transaction failure.
			if aeerr.Is(err, aeerr.TransportConnLost) {
				return nil
			}
			return err
		}
		if len(data) == 0 {
			return nil
		}
		if t.req.OnEntity != nil && !t.req.OnEntity(offset, data) {
			return nil
		}
		offset += int64(len(data))
	}
}

// discardBody reads and throws away a response's entity, used before
// retrying after a 401/407 so the connection's byte stream is left clean
// for the next head.
func discardBody(ctx context.Context, r *headReader, resp *responseHead) error {
	te := strings.ToLower(resp.headers.Get("Transfer-Encoding"))
	if te == "chunked" {
		dec := newChunkDecoder(r)
		for {
			_, ok, err := dec.next(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
	}
	if cl := resp.headers.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil {
			return nil
		}
		_, err = r.readExactly(ctx, int(n))
		return err
	}
	return nil
}
