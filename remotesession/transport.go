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
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/axeda/agentembedded/httptxn"
	"github.com/axeda/agentembedded/transport"
)

// Transport is the framed byte-stream a Session drives its two state
// machines over — either a Direct TCP/TLS socket or an HTTP long-poll
// pair. Mirrors AeRemoteTransportVTable's Connect/Send/Receive/IsError
// shape, collapsed to blocking calls since each side already runs on its
// own goroutine (transport thread / channel thread) per spec.md §4.11.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, p []byte) error
	Receive(ctx context.Context, p []byte) (int, error)
	Close() error
}

// DirectTransport dials the session server's dedicated port and sends the
// 2-byte preamble {version, id-length} followed by the session id before
// the framed message stream begins (spec.md §4.11 "Direct").
type DirectTransport struct {
	Peer      transport.Endpoint
	TLS       bool
	TLSConfig *tls.Config
	SessionID string
	Proxy     *httptxn.ProxyOverride

	conn *transport.Connection
}

func (d *DirectTransport) Connect(ctx context.Context) error {
	d.conn = transport.New(d.Peer, 30*time.Second)
	switch {
	case d.Proxy == nil:
	case d.Proxy.Protocol == "http":
		d.conn = d.conn.WithHTTPProxy(transport.Endpoint{Host: d.Proxy.Host, Port: d.Proxy.Port})
	default:
		d.conn = d.conn.WithSOCKS(transport.Endpoint{Host: d.Proxy.Host, Port: d.Proxy.Port}, transport.SOCKSConfig{
			User:     d.Proxy.User,
			Password: d.Proxy.Password,
		})
	}
	if err := d.conn.Connect(ctx); err != nil {
		return err
	}
	if d.TLS {
		if err := d.conn.EnableTLS(ctx, d.TLSConfig); err != nil {
			return err
		}
	}
	preamble := make([]byte, 0, 2+len(d.SessionID))
	preamble = append(preamble, byte(ProtocolVersion), byte(len(d.SessionID)))
	preamble = append(preamble, []byte(d.SessionID)...)
	return d.conn.Send(ctx, preamble)
}

func (d *DirectTransport) Send(ctx context.Context, p []byte) error {
	return d.conn.Send(ctx, p)
}

func (d *DirectTransport) Receive(ctx context.Context, p []byte) (int, error) {
	return d.conn.Receive(ctx, p)
}

func (d *DirectTransport) Close() error { return d.conn.Disconnect() }

// HTTPTransport talks to a front-end server over HTTP: one long-poll GET,
// opened by Connect, streams downstream frames back, and each Send issues
// a separate POST carrying its upstream frames; the POST is not kept open
// across Sends. Selected only when DirectTransport fails to connect
// (spec.md §4.11 "sequential fallback").
type HTTPTransport struct {
	Client   *http.Client
	PostURL  string
	GetURL   string
	Proxy    *httptxn.ProxyOverride
	outbound bytes.Buffer
	resp     *http.Response
}

func (h *HTTPTransport) Connect(ctx context.Context) error {
	if h.Client == nil {
		h.Client = &http.Client{Transport: h.proxyTransport()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.GetURL, nil)
	if err != nil {
		return err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return fmt.Errorf("remotesession: GET long-poll returned status %d", resp.StatusCode)
	}
	h.resp = resp
	return nil
}

func (h *HTTPTransport) Send(ctx context.Context, p []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.PostURL, bytes.NewReader(p))
	if err != nil {
		return err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remotesession: POST upstream returned status %d", resp.StatusCode)
	}
	return nil
}

func (h *HTTPTransport) Receive(ctx context.Context, p []byte) (int, error) {
	if h.resp == nil {
		return 0, fmt.Errorf("remotesession: HTTP transport not connected")
	}
	return h.resp.Body.Read(p)
}

// proxyTransport builds the *http.Transport the long-poll client dials
// through when a proxy is configured. Only the "http" proxy protocol maps
// onto net/http's ProxyURL hook; a configured SOCKS proxy is left to the
// Direct transport (spec.md §4.11 tries Direct before ever falling back to
// HTTP, so a SOCKS-only deployment simply never reaches this path).
func (h *HTTPTransport) proxyTransport() *http.Transport {
	if h.Proxy == nil || h.Proxy.Protocol != "http" {
		return &http.Transport{}
	}
	u := &url.URL{Scheme: "http", Host: fmt.Sprintf("%s:%d", h.Proxy.Host, h.Proxy.Port)}
	if h.Proxy.User != "" {
		u.User = url.UserPassword(h.Proxy.User, h.Proxy.Password)
	}
	return &http.Transport{Proxy: http.ProxyURL(u)}
}

func (h *HTTPTransport) Close() error {
	if h.resp != nil {
		return h.resp.Body.Close()
	}
	return nil
}

