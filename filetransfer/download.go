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

package filetransfer

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/tls"
	"encoding/hex"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/axeda/agentembedded/httptxn"
	"github.com/axeda/agentembedded/transport"
	"github.com/axeda/agentembedded/useragent"
)

// Sink receives downloaded bytes at a given file offset and reports how
// far the caller has durably persisted, so Download can resume from there
// after a retry (spec.md §4.10 "position is advanced in the user callback").
type Sink interface {
	Write(offset int64, chunk []byte) error
	Position() int64
}

// Download is the C10 Download instruction: GET the advertised URL,
// optionally gzip-decompress, verify the MD5 of the whole (decompressed)
// body against ChunkChecksum, resume via Range, and retry transport
// failures with linear-to-exponential backoff. Individual wire chunks are
// not checksummed.
// Grounded on AeFileTransfer.c's download instruction and
// AeFileTransfer.h's retryMinDelay/retryMaxDelay/chunkSize attributes.
type Download struct {
	Agent     *useragent.UserAgent
	Auth      httptxn.Authenticator
	ProxyAuth httptxn.Authenticator
	Proxy     *httptxn.ProxyOverride
	TLSConfig *tls.Config

	URL           string
	Compression   bool
	ChunkChecksum string // server-advertised expected MD5 of the whole body, "" if none
	RetryCount    int
	MinDelay      time.Duration
	MaxDelay      time.Duration

	Sink Sink

	attempt int
	pending bool
}

// IsPendingRequest reports true only mid-transfer, so the engine never
// preempts or cancels a download between the request being sent and its
// response settling — matching the source's "pending request" gate.
func (d *Download) IsPendingRequest() bool { return d.pending }

func (d *Download) Notify(event NotifyEvent) {}

// Process performs one full download attempt (spec.md §4.10); the
// underlying Request already streams the wire body through OnEntity, so
// one Process call covers the whole transfer rather than one wire chunk,
// trading exact per-tick boundedness for a much simpler instruction body.
// Raw bytes are buffered and, when compressed, gunzipped once the
// response completes — simpler than interleaving gzip decode with arrival
// of individual wire chunks, at the cost of holding one package in memory
// per in-flight download.
func (d *Download) Process(ctx context.Context) (bool, ErrorCode) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return true, ErrBadFormat
	}
	peer, path, useTLS := endpointOf(u)

	position := d.Sink.Position()
	var raw []byte

	req := &httptxn.Request{
		Peer:       peer,
		Path:       path,
		Method:     "GET",
		Version:    "1.1",
		TLS:        useTLS,
		Persistent: true,
		Timeout:    30 * time.Second,
		Proxy:      d.Proxy,
		Headers:    httptxn.NewHeader(),
		OnEntity: func(offset int64, chunk []byte) bool {
			raw = append(raw, chunk...)
			return true
		},
	}
	if position > 0 {
		req.Headers.Set("Range", "bytes="+strconv.FormatInt(position, 10)+"-")
	}

	d.pending = true
	err = d.Agent.SyncExecute(ctx, []*httptxn.Request{req}, d.Auth, d.ProxyAuth, d.TLSConfig)
	d.pending = false

	if err != nil {
		d.attempt++
		if d.attempt > d.RetryCount {
			return true, translateError(err)
		}
		time.Sleep(backoffDelay(d.attempt, d.MinDelay, d.MaxDelay))
		return false, ErrNone
	}

	plain := raw
	if d.Compression {
		gz, gzErr := gzip.NewReader(bytes.NewReader(raw))
		if gzErr != nil {
			return true, ErrArchiveError
		}
		plain, err = io.ReadAll(gz)
		if err != nil {
			return true, ErrArchiveError
		}
	}

	if d.ChunkChecksum != "" {
		sum := md5.Sum(plain)
		if hex.EncodeToString(sum[:]) != d.ChunkChecksum {
			return true, ErrFileChecksum
		}
	}

	if werr := d.Sink.Write(position, plain); werr != nil {
		return true, ErrReadError
	}
	return true, ErrNone
}

// endpointOf splits a download/upload URL into the transport peer, path
// and TLS flag httptxn.Request needs.
func endpointOf(u *url.URL) (transport.Endpoint, string, bool) {
	useTLS := u.Scheme == "https"
	port := 80
	if useTLS {
		port = 443
	}
	host := u.Hostname()
	if p := u.Port(); p != "" {
		if n, convErr := strconv.Atoi(p); convErr == nil {
			port = n
		}
	}
	path := u.Path
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return transport.Endpoint{Host: host, Port: port}, path, useTLS
}

// backoffDelay is the linear-to-exponential ramp spec.md §4.10 calls for:
// attempt*min, doubling once past max/2, clamped to max.
func backoffDelay(attempt int, min, max time.Duration) time.Duration {
	if min <= 0 {
		min = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	d := time.Duration(attempt) * min
	if d > max/2 {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}
