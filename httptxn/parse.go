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
	"strconv"
	"strings"

	"github.com/axeda/agentembedded/internal/aeerr"
)

type responseHead struct {
	version    string
	statusCode int
	reason     string
	headers    *Header
}

// readResponseHead parses the status line and headers up to the blank line,
// per spec.md §4.3's "Response parsing" rules: malformed status lines and
// header lines both fail the transaction with HTTPBadResponse rather than
// being tolerated, matching the original agent's strict parser.
func readResponseHead(ctx context.Context, r *headReader) (*responseHead, error) {
	statusLine, err := r.readLine(ctx)
	if err != nil {
		return nil, classifyReadErr(err)
	}

	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return nil, aeerr.Newf(aeerr.HTTPBadResponse, "malformed status line %q", statusLine)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, aeerr.Newf(aeerr.HTTPBadResponse, "malformed status code %q", parts[1])
	}
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}

	head := &responseHead{
		version:    strings.TrimPrefix(parts[0], "HTTP/"),
		statusCode: code,
		reason:     reason,
		headers:    NewHeader(),
	}

	for {
		line, err := r.readLine(ctx)
		if err != nil {
			return nil, classifyReadErr(err)
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, aeerr.Newf(aeerr.HTTPBadResponse, "malformed header line %q", line)
		}
		head.headers.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return head, nil
}

func classifyReadErr(err error) error {
	if err == nil {
		return errUnexpectedEOF()
	}
	return err
}

// chunkDecoder implements the chunked transfer-coding reader, tracking the
// sentinel states the original source used for "awaiting chunk size" (-1)
// and "terminating chunk and trailer consumed" (-2) so zero-length ordinary
// chunks are never confused with the terminating zero chunk.
type chunkDecoder struct {
	r         *headReader
	remaining int64 // bytes left in the current chunk; -1 = need size line, -2 = done
}

func newChunkDecoder(r *headReader) *chunkDecoder {
	return &chunkDecoder{r: r, remaining: -1}
}

// next returns the next slice of chunk body data, or ok=false once the
// terminating chunk and trailer have been consumed.
func (d *chunkDecoder) next(ctx context.Context) (data []byte, ok bool, err error) {
	for {
		switch {
		case d.remaining == -2:
			return nil, false, nil
		case d.remaining == -1:
			line, err := d.r.readLine(ctx)
			if err != nil {
				return nil, false, classifyReadErr(err)
			}
			sizeStr, _, _ := strings.Cut(line, ";") // chunk extensions are ignored
			size, err := strconv.ParseInt(strings.TrimSpace(sizeStr), 16, 64)
			if err != nil {
				return nil, false, aeerr.Newf(aeerr.HTTPBadResponse, "malformed chunk size %q", line)
			}
			if size == 0 {
				for {
					trailer, err := d.r.readLine(ctx)
					if err != nil {
						return nil, false, classifyReadErr(err)
					}
					if trailer == "" {
						break
					}
				}
				d.remaining = -2
				return nil, false, nil
			}
			d.remaining = size
		default:
			take := d.remaining
			chunk, err := d.r.readExactly(ctx, int(take))
			if err != nil {
				return nil, false, classifyReadErr(err)
			}
			// consume the CRLF that terminates every chunk's data
			if _, err := d.r.readExactly(ctx, 2); err != nil {
				return nil, false, classifyReadErr(err)
			}
			d.remaining = -1
			return chunk, true, nil
		}
	}
}
