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

import "github.com/axeda/agentembedded/transport"

// Authenticator is the narrow surface Transaction needs from C4's AuthEngine.
// It is declared here, on the consumer side, so httptxn never imports the
// auth package directly (accept interfaces, return structs); the auth
// package's Engine type satisfies it structurally.
type Authenticator interface {
	// Header returns a preemptive Authorization/Proxy-Authorization value
	// for peer+method+path from the credential cache, or "" if nothing is
	// cached yet (spec.md §4.4: "retries are only attempted after a
	// challenge"). method is needed because Digest's response hash is
	// bound to the request method.
	Header(peer transport.Endpoint, method, path string) string

	// Challenge processes the WWW-Authenticate/Proxy-Authenticate header
	// values from a 401/407 response and returns the header value to retry
	// with. ok is false when the scheme is unsupported or credentials are
	// unavailable, in which case the transaction must fail rather than loop.
	// ntlmRoundTrip is true exactly when this is NTLM's first leg (the
	// challenge carried a bare "NTLM" with no token, i.e. nonce == none):
	// the retry this produces must go out on the very same connection with
	// Proxy-Connection: Keep-Alive (spec.md §4.3), since NTLM's handshake
	// state lives on the TCP connection, not in any header.
	Challenge(peer transport.Endpoint, method, path string, values []string) (header string, ntlmRoundTrip bool, ok bool)
}
