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

package useragent_test

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/axeda/agentembedded/httptxn"
	"github.com/axeda/agentembedded/internal/logx"
	"github.com/axeda/agentembedded/transport"
	"github.com/axeda/agentembedded/useragent"
)

func TestUserAgent(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "useragent suite")
}

// echoServer accepts connections and, for each, reads one HTTP-ish request
// line and replies with a small fixed 200 response, then keeps the
// connection open so the client side can decide to persist it.
func echoServer(closeAfter bool) (net.Listener, transport.Endpoint) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).ToNot(HaveOccurred())
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	Expect(err).ToNot(HaveOccurred())
	port, err := strconv.Atoi(portStr)
	Expect(err).ToNot(HaveOccurred())

	go func() {
		for {
			c, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			go func(conn net.Conn) {
				r := bufio.NewReader(conn)
				for {
					line, readErr := r.ReadString('\n')
					if readErr != nil || line == "\r\n" {
						break
					}
				}
				connHeader := "Connection: close\r\n"
				if !closeAfter {
					connHeader = "Connection: Keep-Alive\r\n"
				}
				fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n%s\r\nok", connHeader)
				if closeAfter {
					conn.Close()
				}
			}(c)
		}
	}()

	return ln, transport.Endpoint{Host: host, Port: port}
}

var _ = Describe("UserAgent pooling", func() {
	It("reuses a released persistent connection for the next Acquire with the same key", func() {
		ln, ep := echoServer(false)
		defer ln.Close()

		ua := useragent.New(logx.Discard(), nil, time.Second)
		ctx := context.Background()

		conn1, reused1, err := ua.Acquire(ctx, ep, nil, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(reused1).To(BeFalse())
		ua.Release(conn1, true)

		conn2, reused2, err := ua.Acquire(ctx, ep, nil, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(reused2).To(BeTrue())
		Expect(conn2).To(BeIdenticalTo(conn1))
		ua.Release(conn2, false)
	})

	It("does not reuse a connection released with keepAlive=false", func() {
		ln, ep := echoServer(true)
		defer ln.Close()

		ua := useragent.New(logx.Discard(), nil, time.Second)
		ctx := context.Background()

		conn1, _, err := ua.Acquire(ctx, ep, nil, nil)
		Expect(err).ToNot(HaveOccurred())
		ua.Release(conn1, false)

		conn2, reused2, err := ua.Acquire(ctx, ep, nil, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(reused2).To(BeFalse())
		Expect(conn2).ToNot(BeIdenticalTo(conn1))
		ua.Release(conn2, false)
	})

	It("keys pooled connections by proxy so a proxied and a direct connection never share a bucket", func() {
		ln, ep := echoServer(false)
		defer ln.Close()
		proxyLn, proxyEp := echoServer(false)
		defer proxyLn.Close()

		ua := useragent.New(logx.Discard(), nil, time.Second)
		ctx := context.Background()

		plain, _, err := ua.Acquire(ctx, ep, nil, nil)
		Expect(err).ToNot(HaveOccurred())
		ua.Release(plain, true)

		proxied, reused, err := ua.Acquire(ctx, ep, &httptxn.ProxyOverride{Protocol: "http", Host: proxyEp.Host, Port: proxyEp.Port}, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(reused).To(BeFalse())
		Expect(proxied).ToNot(BeIdenticalTo(plain))
		Expect(proxied.Origin()).To(Equal(proxyEp))
		ua.Release(proxied, false)
	})

	It("dials an HTTP proxy's own endpoint rather than the target peer", func() {
		ln, ep := echoServer(true) // never actually accepted in this test
		ln.Close()                 // the real peer is unreachable on purpose
		proxyLn, proxyEp := echoServer(true)
		defer proxyLn.Close()

		ua := useragent.New(logx.Discard(), nil, time.Second)
		conn, _, err := ua.Acquire(context.Background(), ep, &httptxn.ProxyOverride{Protocol: "http", Host: proxyEp.Host, Port: proxyEp.Port}, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(conn.Origin()).To(Equal(proxyEp))
		Expect(conn.Peer()).To(Equal(ep))
		ua.Release(conn, false)
	})
})

var _ = Describe("UserAgent.Submit/Cancel", func() {
	It("runs a submitted request to completion and removes it from the task table", func() {
		ln, ep := echoServer(true)
		defer ln.Close()

		ua := useragent.New(logx.Discard(), nil, time.Second)
		done := make(chan struct{})
		req := &httptxn.Request{
			Peer:       ep,
			Path:       "/x",
			Method:     "GET",
			Version:    "1.1",
			Headers:    httptxn.NewHeader(),
			OnCompleted: func() { close(done) },
		}

		id := ua.Submit(context.Background(), req, nil, nil, nil)
		Expect(id).ToNot(BeEmpty())

		Eventually(done, time.Second).Should(BeClosed())
		Eventually(ua.Pending, time.Second).Should(Equal(0))
	})

	It("Cancel on an unknown task id returns false", func() {
		ua := useragent.New(logx.Discard(), nil, time.Second)
		Expect(ua.Cancel("does-not-exist")).To(BeFalse())
	})
})

var _ = Describe("UserAgent.Sweep", func() {
	It("disconnects idle pooled connections past their timeout", func() {
		ln, ep := echoServer(false)
		defer ln.Close()

		ua := useragent.New(logx.Discard(), nil, time.Millisecond)
		ctx := context.Background()

		conn, _, err := ua.Acquire(ctx, ep, nil, nil)
		Expect(err).ToNot(HaveOccurred())
		ua.Release(conn, true)

		time.Sleep(10 * time.Millisecond)
		ua.Sweep()

		Expect(conn.State()).To(Equal(transport.StateClosed))
	})
})
