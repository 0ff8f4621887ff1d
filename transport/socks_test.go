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
	"io"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/axeda/agentembedded/transport"
)

var _ = Describe("SOCKSConfig.Negotiate", func() {
	It("completes a plain SOCKSv5 handshake with no auth", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).ToNot(HaveOccurred())
		defer ln.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			c, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			defer c.Close()

			greeting := make([]byte, 2)
			_, _ = c.Read(greeting) // ver, nmethods
			methods := make([]byte, greeting[1])
			_, _ = c.Read(methods)
			c.Write([]byte{0x05, 0x00}) // version 5, no-auth selected

			req := make([]byte, 4)
			_, _ = c.Read(req)
			host := make([]byte, 1)
			_, _ = c.Read(host)
			rest := make([]byte, int(host[0])+2)
			_, _ = c.Read(rest)

			c.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		}()

		dialer, err := net.Dial("tcp", ln.Addr().String())
		Expect(err).ToNot(HaveOccurred())

		cfg := &transport.SOCKSConfig{Target: transport.Endpoint{Host: "example.com", Port: 443}}
		conn, err := cfg.Negotiate(context.Background(), dialer)
		Expect(err).ToNot(HaveOccurred())
		Expect(conn).ToNot(BeNil())
		conn.Close()
		<-done
	})

	It("downgrades to a fresh SOCKS4 connection when v5 method-selection signals 0x00", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).ToNot(HaveOccurred())
		defer ln.Close()

		var acceptCount int
		done := make(chan struct{})
		go func() {
			defer close(done)

			// First accept: the SOCKSv5 greeting, answered with the
			// downgrade-triggering 0x00 method-selection byte. The server
			// then closes without ever seeing a v4 request on this socket.
			c1, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			acceptCount++
			greeting := make([]byte, 2)
			_, _ = c1.Read(greeting)
			methods := make([]byte, greeting[1])
			_, _ = c1.Read(methods)
			c1.Write([]byte{0x00, 0x00})
			c1.Close()

			// Second accept: a brand-new connection carrying the actual
			// SOCKS4 CONNECT request and a clean 8-byte reply.
			c2, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			acceptCount++
			defer c2.Close()
			req := make([]byte, 9) // VN,CD,DSTPORT(2),DSTIP(4),USERID-terminator
			_, _ = io.ReadFull(c2, req)
			c2.Write([]byte{0x00, 0x5A, 0, 0, 0, 0, 0, 0})
		}()

		dialer, err := net.Dial("tcp", ln.Addr().String())
		Expect(err).ToNot(HaveOccurred())

		cfg := &transport.SOCKSConfig{Target: transport.Endpoint{Host: "10.0.0.5", Port: 80}}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		conn, err := cfg.Negotiate(ctx, dialer)
		Expect(err).ToNot(HaveOccurred())
		Expect(conn).ToNot(BeNil())
		conn.Close()
		<-done
		Expect(acceptCount).To(Equal(2))
	})

	It("fails the v4 downgrade for a non-IPv4 target without touching the network", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).ToNot(HaveOccurred())
		defer ln.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			c, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			defer c.Close()
			greeting := make([]byte, 2)
			_, _ = c.Read(greeting)
			methods := make([]byte, greeting[1])
			_, _ = c.Read(methods)
			c.Write([]byte{0x00, 0x00})
		}()

		dialer, err := net.Dial("tcp", ln.Addr().String())
		Expect(err).ToNot(HaveOccurred())

		cfg := &transport.SOCKSConfig{Target: transport.Endpoint{Host: "example.com", Port: 80}}
		_, err = cfg.Negotiate(context.Background(), dialer)
		Expect(err).To(HaveOccurred())
		<-done
	})
})
