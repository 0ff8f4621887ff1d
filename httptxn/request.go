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

// Package httptxn implements C3 HttpTransaction: the per-request state
// machine that formats the request head, parses the response head, and
// handles 100-Continue, 401/407 auth retries, CONNECT tunnelling, chunked
// decoding and asynchronous-close recovery, grounded on
// original_source/.../AeWebTransaction.c's transition table.
package httptxn

import (
	"net/url"
	"time"

	"github.com/axeda/agentembedded/transport"
)

// Header is an ordered multi-map, since HTTP allows repeated header names
// and the spec calls for header order to be preserved (spec.md §3).
type Header struct {
	keys []string
	vals map[string][]string
}

func NewHeader() *Header {
	return &Header{vals: make(map[string][]string)}
}

func (h *Header) Add(key, value string) {
	if _, ok := h.vals[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.vals[key] = append(h.vals[key], value)
}

func (h *Header) Set(key, value string) {
	if _, ok := h.vals[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.vals[key] = []string{value}
}

func (h *Header) Get(key string) string {
	v := h.vals[key]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func (h *Header) Del(key string) {
	delete(h.vals, key)
	for i, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
}

// Keys returns header names in insertion order.
func (h *Header) Keys() []string {
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

func (h *Header) Values(key string) []string { return h.vals[key] }

// OnResponse is called once the status line and headers are parsed; return
// false to cancel the transfer before the body is fetched.
type OnResponse func(statusCode int) (cont bool)

// OnEntity is called per body chunk delivered; return false to cancel the
// remaining body transfer (spec.md §4.3 "Entity delivery").
type OnEntity func(offset int64, chunk []byte) (cont bool)

// OnCompleted is called exactly once when the transaction finishes
// successfully.
type OnCompleted func()

// OnError is called exactly once when the transaction fails. Per spec.md
// §8 invariant 1, exactly one of OnCompleted/OnError fires.
type OnError func(err error)

// Request is one logical HTTP call (spec.md §3).
type Request struct {
	Peer     transport.Endpoint
	Path     string // absolute path, e.g. "/ea"
	Method   string
	Version  string // "1.0" or "1.1"
	TLS      bool
	Persistent bool
	Strict   bool // forbid upgrade to 1.1 keep-alive
	Timeout  time.Duration

	Proxy *ProxyOverride

	Headers *Header
	Body    []byte
	ContentType string

	StatusCode int
	RespHeaders *Header

	OnResponse  OnResponse
	OnEntity    OnEntity
	OnCompleted OnCompleted
	OnError     OnError
}

// ProxyOverride lets one Request use a different proxy than the agent's
// default configuration (spec.md §3: "optional per-request proxy override").
type ProxyOverride struct {
	Protocol string // "http", "socks4", "socks5"
	Host     string
	Port     int
	User     string
	Password string
}

// URL renders the request's target as a *url.URL, used for proxy absolute-
// URI formatting and for the auth cache's path-prefix key.
func (r *Request) URL() *url.URL {
	scheme := "http"
	if r.TLS {
		scheme = "https"
	}
	return &url.URL{
		Scheme: scheme,
		Host:   r.Peer.String(),
		Path:   r.Path,
	}
}
