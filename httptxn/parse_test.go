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
	"net"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/axeda/agentembedded/transport"
)

// servedReader dials a real loopback listener, writes raw bytes from the
// server side, and hands back a *headReader bound to the client-side
// connection. readResponseHead and chunkDecoder are tied to the concrete
// *transport.Connection type (not an interface), so exercising them for
// real requires an actual socket rather than an in-memory fake.
func servedReader(serverWrite func(net.Conn)) *headReader {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).ToNot(HaveOccurred())

	host, port, err := net.SplitHostPort(ln.Addr().String())
	Expect(err).ToNot(HaveOccurred())
	p, err := strconv.Atoi(port)
	Expect(err).ToNot(HaveOccurred())
	ep := transport.Endpoint{Host: host, Port: p}

	go func() {
		defer ln.Close()
		c, acceptErr := ln.Accept()
		if acceptErr != nil {
			return
		}
		defer c.Close()
		serverWrite(c)
	}()

	conn := transport.New(ep, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	Expect(conn.Connect(ctx)).To(Succeed())

	return newHeadReader(conn)
}

var _ = Describe("readResponseHead", func() {
	It("parses the status line and headers up to the blank line", func() {
		r := servedReader(func(c net.Conn) {
			c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\nX-Foo: bar\r\n\r\nhello"))
		})
		ctx := context.Background()
		head, err := readResponseHead(ctx, r)
		Expect(err).ToNot(HaveOccurred())
		Expect(head.version).To(Equal("1.1"))
		Expect(head.statusCode).To(Equal(200))
		Expect(head.reason).To(Equal("OK"))
		Expect(head.headers.Get("Content-Length")).To(Equal("5"))
		Expect(head.headers.Get("X-Foo")).To(Equal("bar"))

		// whatever trailed the blank line in the same read is still buffered
		Expect(string(r.take(5))).To(Equal("hello"))
	})

	It("rejects a status line missing the HTTP/ prefix", func() {
		r := servedReader(func(c net.Conn) {
			c.Write([]byte("BOGUS 200 OK\r\n\r\n"))
		})
		_, err := readResponseHead(context.Background(), r)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a non-numeric status code", func() {
		r := servedReader(func(c net.Conn) {
			c.Write([]byte("HTTP/1.1 OK Weird\r\n\r\n"))
		})
		_, err := readResponseHead(context.Background(), r)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a header line with no colon", func() {
		r := servedReader(func(c net.Conn) {
			c.Write([]byte("HTTP/1.1 200 OK\r\nNotAHeader\r\n\r\n"))
		})
		_, err := readResponseHead(context.Background(), r)
		Expect(err).To(HaveOccurred())
	})

	It("reports an error when the connection closes before the head completes", func() {
		r := servedReader(func(c net.Conn) {
			c.Write([]byte("HTTP/1.1 200 OK\r\n"))
			// connection closes here without the blank line
		})
		_, err := readResponseHead(context.Background(), r)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("chunkDecoder", func() {
	It("decodes successive chunks and stops at the terminating zero chunk", func() {
		r := servedReader(func(c net.Conn) {
			c.Write([]byte("5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"))
		})
		d := newChunkDecoder(r)
		ctx := context.Background()

		data, ok, err := d.next(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(string(data)).To(Equal("hello"))

		data, ok, err = d.next(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(string(data)).To(Equal(" world"))

		data, ok, err = d.next(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(data).To(BeNil())
	})

	It("completes immediately for a zero-length body", func() {
		r := servedReader(func(c net.Conn) {
			c.Write([]byte("0\r\n\r\n"))
		})
		d := newChunkDecoder(r)
		_, ok, err := d.next(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("ignores chunk extensions after a semicolon in the size line", func() {
		r := servedReader(func(c net.Conn) {
			c.Write([]byte("3;foo=bar\r\nabc\r\n0\r\n\r\n"))
		})
		d := newChunkDecoder(r)
		data, ok, err := d.next(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(string(data)).To(Equal("abc"))
	})

	It("consumes trailer headers after the terminating chunk", func() {
		r := servedReader(func(c net.Conn) {
			c.Write([]byte("0\r\nX-Trailer: done\r\n\r\n"))
		})
		d := newChunkDecoder(r)
		_, ok, err := d.next(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("rejects a malformed chunk size", func() {
		r := servedReader(func(c net.Conn) {
			c.Write([]byte("zzz\r\n\r\n"))
		})
		d := newChunkDecoder(r)
		_, _, err := d.next(context.Background())
		Expect(err).To(HaveOccurred())
	})
})
