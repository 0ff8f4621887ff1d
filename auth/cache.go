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

package auth

import "strings"

// entry is one cached auth outcome: the scheme a given host/port/path
// prefix is known to require, plus whatever state that scheme needs to
// produce another header without a fresh challenge (Digest's nonce/nc;
// Basic needs nothing beyond the scheme itself; NTLM is never cached here
// since it cannot be answered preemptively — see Engine.Header).
type entry struct {
	path       string
	scheme     Scheme
	digest     digestParams
	nonceCount int
}

// hostCache holds every cached path prefix for one host:port, per
// original_source/.../AeWebAuth.h's AeWebAuthInfoGet(host, port, path, ...)
// signature — the cache key is the triple, matched by longest path prefix
// so a challenge on "/api/" also covers "/api/v1/widgets".
type hostCache struct {
	entries []*entry
}

func (h *hostCache) lookup(path string) *entry {
	var best *entry
	for _, e := range h.entries {
		if strings.HasPrefix(path, e.path) {
			if best == nil || len(e.path) > len(best.path) {
				best = e
			}
		}
	}
	return best
}

func (h *hostCache) store(e *entry) {
	for i, existing := range h.entries {
		if existing.path == e.path {
			h.entries[i] = e
			return
		}
	}
	h.entries = append(h.entries, e)
}
