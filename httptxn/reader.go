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
	"bytes"
	"context"

	"github.com/axeda/agentembedded/internal/aeerr"
	"github.com/axeda/agentembedded/transport"
)

// headReader buffers bytes read past the blank line that ends the response
// head, since transport.Connection's Receive returns whatever one read
// yields and the head/body boundary rarely lands on a read boundary. Grounded on
// the same "read what's available, line-split in memory" shape
// nabbar-golib/httpcli uses over bufio.Reader, adapted here to the
// Connection's own blocking Receive rather than a net.Conn directly so
// watchCancel and idle-timeout bookkeeping stay centralized in transport.
type headReader struct {
	conn *transport.Connection
	buf  []byte // unconsumed bytes already off the wire
}

func newHeadReader(conn *transport.Connection) *headReader {
	return &headReader{conn: conn}
}

func (r *headReader) fill(ctx context.Context) error {
	chunk := make([]byte, 4096)
	n, err := r.conn.ReceiveAny(ctx, chunk)
	if n > 0 {
		r.buf = append(r.buf, chunk[:n]...)
	}
	if n == 0 && err != nil {
		return err
	}
	return nil
}

// readLine returns the next CRLF- or LF-terminated line, excluding the
// terminator, blocking on the connection as needed.
func (r *headReader) readLine(ctx context.Context) (string, error) {
	for {
		if i := bytes.IndexByte(r.buf, '\n'); i >= 0 {
			line := r.buf[:i]
			r.buf = r.buf[i+1:]
			line = bytes.TrimSuffix(line, []byte{'\r'})
			return string(line), nil
		}
		if err := r.fill(ctx); err != nil {
			return "", err
		}
	}
}

// take returns up to n bytes already buffered (without blocking), consuming
// them from the internal buffer. Used once the head is parsed, to hand the
// body decoder whatever trailed the blank line in the same read.
func (r *headReader) take(n int) []byte {
	if n > len(r.buf) {
		n = len(r.buf)
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

// readExactly blocks until n bytes are available, combining buffered bytes
// with fresh reads from the connection.
func (r *headReader) readExactly(ctx context.Context, n int) ([]byte, error) {
	for len(r.buf) < n {
		if err := r.fill(ctx); err != nil {
			return nil, err
		}
	}
	return r.take(n), nil
}

// readSome returns whatever bytes are buffered, blocking for at least one
// byte if the buffer is currently empty. Used by the content-length and
// close-delimited body readers, which deliver entity data incrementally
// rather than all at once.
func (r *headReader) readSome(ctx context.Context) ([]byte, error) {
	if len(r.buf) == 0 {
		if err := r.fill(ctx); err != nil {
			return nil, err
		}
	}
	out := r.buf
	r.buf = nil
	return out, nil
}

func errUnexpectedEOF() aeerr.Error {
	return aeerr.New(aeerr.HTTPBadResponse, "connection closed while reading response head")
}
