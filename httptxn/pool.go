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
	"crypto/tls"

	"github.com/axeda/agentembedded/transport"
)

// Pool is the connection-pool surface C2's UserAgent provides: acquire a
// connection for peer (possibly reused from a prior idle transaction),
// release it back afterwards. Declared here, consumer-side, so httptxn
// doesn't import useragent (which itself imports httptxn to drive
// transactions) — avoids a package cycle while keeping the pooling policy
// out of the per-request state machine.
type Pool interface {
	// Acquire returns a connection dialed (or already connected, if reused)
	// to peer/proxy, and whether it was reused from the idle pool. The
	// returned connection is already Attach()ed to the caller's Task.
	Acquire(ctx context.Context, peer transport.Endpoint, proxy *ProxyOverride, tlsConfig *tls.Config) (conn *transport.Connection, reused bool, err error)

	// Release returns conn to the pool. keepAlive false means the caller
	// already observed (or must assume) the peer won't honor persistence,
	// so the pool should disconnect rather than hold it idle.
	Release(conn *transport.Connection, keepAlive bool)
}
