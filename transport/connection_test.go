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

package transport_test

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/axeda/agentembedded/internal/aeerr"
	"github.com/axeda/agentembedded/transport"
)

func listenLoopback() (net.Listener, transport.Endpoint) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).ToNot(HaveOccurred())
	host, port, err := net.SplitHostPort(ln.Addr().String())
	Expect(err).ToNot(HaveOccurred())
	p, err := strconv.Atoi(port)
	Expect(err).ToNot(HaveOccurred())
	return ln, transport.Endpoint{Host: host, Port: p}
}

var _ = Describe("Connection", func() {
	It("connects, exchanges bytes, and disconnects cleanly", func() {
		ln, ep := listenLoopback()
		defer ln.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close()
			buf := make([]byte, 5)
			_, _ = c.Read(buf)
			_, _ = c.Write(buf)
		}()

		conn := transport.New(ep, time.Second)
		Expect(conn.State()).To(Equal(transport.StateClosed))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(conn.Connect(ctx)).To(Succeed())
		Expect(conn.State()).To(Equal(transport.StateConnectedPlain))

		Expect(conn.Send(ctx, []byte("hello"))).To(Succeed())
		reply := make([]byte, 5)
		n, err := conn.Receive(ctx, reply)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(5))
		Expect(string(reply)).To(Equal("hello"))

		Expect(conn.Disconnect()).To(Succeed())
		Expect(conn.State()).To(Equal(transport.StateClosed))
		<-done
	})

	It("classifies a connection-refused dial as TransportConnRefused", func() {
		ln, ep := listenLoopback()
		ln.Close() // nothing listening anymore

		conn := transport.New(ep, time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err := conn.Connect(ctx)
		Expect(err).To(HaveOccurred())
		Expect(aeerr.Is(err, aeerr.TransportConnRefused)).To(BeTrue())
	})

	It("WithResolver substitutes the dial address when it resolves successfully", func() {
		ln, ep := listenLoopback()
		defer ln.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			c, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			_ = c.Close()
		}()

		resolved := false
		resolver := func(host string) ([]net.IP, error) {
			resolved = true
			Expect(host).To(Equal(ep.Host))
			return []net.IP{net.ParseIP(ep.Host)}, nil
		}

		conn := transport.New(ep, time.Second).WithResolver(resolver)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(conn.Connect(ctx)).To(Succeed())
		Expect(resolved).To(BeTrue())
		<-done
	})

	It("falls back to hostname dialing when the resolver errors", func() {
		ln, ep := listenLoopback()
		defer ln.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			c, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			_ = c.Close()
		}()

		resolver := func(host string) ([]net.IP, error) {
			return nil, errResolveFailed
		}

		conn := transport.New(ep, time.Second).WithResolver(resolver)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(conn.Connect(ctx)).To(Succeed())
		<-done
	})

	It("Origin differs from Peer once SOCKS-wrapped", func() {
		conn := transport.New(transport.Endpoint{Host: "target.example", Port: 443}, time.Second)
		conn.WithSOCKS(transport.Endpoint{Host: "proxy.example", Port: 1080}, transport.SOCKSConfig{})
		Expect(conn.Peer().Host).To(Equal("target.example"))
		Expect(conn.Origin().Host).To(Equal("proxy.example"))
	})

	It("WithHTTPProxy redirects Origin without requiring a SOCKS handshake", func() {
		ln, proxyEp := listenLoopback()
		defer ln.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			c, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			_ = c.Close()
		}()

		target := transport.Endpoint{Host: "target.example", Port: 80}
		conn := transport.New(target, time.Second).WithHTTPProxy(proxyEp)
		Expect(conn.Peer()).To(Equal(target))
		Expect(conn.Origin()).To(Equal(proxyEp))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(conn.Connect(ctx)).To(Succeed())
		Expect(conn.State()).To(Equal(transport.StateConnectedPlain))
		<-done
	})

	It("Endpoint.String formats host:port", func() {
		ep := transport.Endpoint{Host: "1.2.3.4", Port: 8080}
		Expect(strings.HasSuffix(ep.String(), ":8080")).To(BeTrue())
	})
})

type resolveErr string

func (e resolveErr) Error() string { return string(e) }

var errResolveFailed = resolveErr("resolution failed")
