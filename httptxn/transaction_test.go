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
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/axeda/agentembedded/transport"
)

// scriptedPool hands out a single real connection dialed to a local
// listener driven by a scripted server goroutine, so Transaction.Run can be
// exercised end to end without a fake Pool/Connection pairing diverging
// from how useragent actually wires the two together.
type scriptedPool struct {
	ln       net.Listener
	released []bool
}

func newScriptedPool(serve func(net.Conn)) (*scriptedPool, transport.Endpoint) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).ToNot(HaveOccurred())
	host, port, err := net.SplitHostPort(ln.Addr().String())
	Expect(err).ToNot(HaveOccurred())
	p, err := strconv.Atoi(port)
	Expect(err).ToNot(HaveOccurred())

	go func() {
		c, acceptErr := ln.Accept()
		if acceptErr != nil {
			return
		}
		defer c.Close()
		serve(c)
	}()

	return &scriptedPool{ln: ln}, transport.Endpoint{Host: host, Port: p}
}

func (p *scriptedPool) Acquire(ctx context.Context, peer transport.Endpoint, proxy *ProxyOverride, tlsConfig *tls.Config) (*transport.Connection, bool, error) {
	conn := transport.New(peer, time.Second)
	if err := conn.Connect(ctx); err != nil {
		return nil, false, err
	}
	return conn, false, nil
}

func (p *scriptedPool) Release(conn *transport.Connection, keepAlive bool) {
	p.released = append(p.released, keepAlive)
	conn.Disconnect()
}

var _ = Describe("Transaction.Run", func() {
	It("delivers a chunked 200 response body entity by entity", func() {
		pool, ep := newScriptedPool(func(c net.Conn) {
			r := bufio.NewReader(c)
			for {
				line, err := r.ReadString('\n')
				if err != nil || line == "\r\n" {
					break
				}
			}
			c.Write([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n0\r\n\r\n"))
		})

		var entities []string
		var completed bool
		req := &Request{
			Peer:       ep,
			Path:       "/ea",
			Method:     "GET",
			Version:    "1.1",
			Persistent: false,
			Headers:    NewHeader(),
			OnEntity: func(offset int64, chunk []byte) bool {
				entities = append(entities, string(chunk))
				return true
			},
			OnCompleted: func() { completed = true },
		}

		tr := New(req, pool, nil, nil, nil)
		Expect(tr.Run(context.Background())).To(Succeed())
		Expect(completed).To(BeTrue())
		Expect(entities).To(Equal([]string{"hello"}))
		Expect(req.StatusCode).To(Equal(200))
	})

	It("retries once with an Authorization header after a 401 challenge", func() {
		pool, ep := newScriptedPool(func(c net.Conn) {
			r := bufio.NewReader(c)
			for {
				line, err := r.ReadString('\n')
				if err != nil || line == "\r\n" {
					break
				}
			}
			c.Write([]byte("HTTP/1.1 401 Unauthorized\r\nWWW-Authenticate: Basic realm=\"x\"\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"))

			// reconnect is expected on a second accept since the above
			// response is Connection: close.
		})

		auth := &fakeAuthenticator{header: "Basic dXNlcjpwYXNz"}
		req := &Request{
			Peer:       ep,
			Path:       "/ea",
			Method:     "GET",
			Version:    "1.1",
			Persistent: false,
			Headers:    NewHeader(),
		}
		tr := New(req, &singleFailThenHangPool{inner: pool}, auth, nil, nil)
		err := tr.Run(context.Background())
		// The scripted server only answers once with a 401 and never
		// accepts the retry connection in this harness, so Run eventually
		// fails trying to dial the second leg — what this asserts is that
		// the 401's challenge reached the Authenticator and Run then failed
		// on the retry leg.
		Expect(err).To(HaveOccurred())
		Expect(auth.challenged).To(BeTrue())
	})
})

type fakeAuthenticator struct {
	header     string
	challenged bool
}

func (f *fakeAuthenticator) Header(peer transport.Endpoint, method, path string) string { return "" }

func (f *fakeAuthenticator) Challenge(peer transport.Endpoint, method, path string, values []string) (string, bool, bool) {
	f.challenged = true
	if len(values) == 0 {
		return "", false, false
	}
	return f.header, false, true
}

// singleFailThenHangPool wraps a scriptedPool that only accepts one
// connection; subsequent Acquire calls dial the closed listener and return
// its connection-refused error, which is enough to observe that Run
// attempted the retry.
type singleFailThenHangPool struct {
	inner *scriptedPool
	used  bool
}

func (p *singleFailThenHangPool) Acquire(ctx context.Context, peer transport.Endpoint, proxy *ProxyOverride, tlsConfig *tls.Config) (*transport.Connection, bool, error) {
	if !p.used {
		p.used = true
		return p.inner.Acquire(ctx, peer, proxy, tlsConfig)
	}
	p.inner.ln.Close()
	return p.inner.Acquire(ctx, peer, proxy, tlsConfig)
}

func (p *singleFailThenHangPool) Release(conn *transport.Connection, keepAlive bool) {
	p.inner.Release(conn, keepAlive)
}
