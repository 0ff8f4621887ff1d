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
	"fmt"
)

// formatHead renders the request line + headers for the wire, following
// spec.md §4.3's "Head formatting rules". suppressBody forces
// Content-Length: 0 (NTLM round 1, CONNECT pre-tunnel); ntlmInFlight keeps
// the connection alive across an NTLM round via Proxy-Connection instead
// of the normal Connection header.
func (t *Transaction) formatHead(viaHTTPProxy, connectTunnel, suppressBody, ntlmInFlight bool) []byte {
	r := t.req
	var b bytes.Buffer

	method := r.Method
	target := r.Path
	if connectTunnel {
		method = "CONNECT"
		target = r.Peer.String()
	} else if viaHTTPProxy && !r.TLS {
		target = r.URL().String()
	}

	fmt.Fprintf(&b, "%s %s HTTP/%s\r\n", method, target, r.Version)

	if r.Version == "1.1" {
		fmt.Fprintf(&b, "Host: %s\r\n", r.Peer.String())
	}

	bodyLen := len(r.Body)
	if suppressBody {
		bodyLen = 0
	}
	if !connectTunnel && bodyLen > 0 {
		if r.ContentType != "" {
			fmt.Fprintf(&b, "Content-Type: %s\r\n", r.ContentType)
		}
		fmt.Fprintf(&b, "Content-Length: %d\r\n", bodyLen)
	} else if suppressBody {
		fmt.Fprintf(&b, "Content-Length: 0\r\n")
	}

	nonPersistent := r.Version == "1.0" || !r.Persistent
	switch {
	case ntlmInFlight:
		fmt.Fprintf(&b, "Proxy-Connection: Keep-Alive\r\n")
	case nonPersistent:
		fmt.Fprintf(&b, "Connection: close\r\n")
	case r.Version == "1.0":
		fmt.Fprintf(&b, "Connection: Keep-Alive\r\n")
	}

	if t.authHeader != "" {
		fmt.Fprintf(&b, "Authorization: %s\r\n", t.authHeader)
	}
	if t.proxyAuthHeader != "" {
		fmt.Fprintf(&b, "Proxy-Authorization: %s\r\n", t.proxyAuthHeader)
	}

	for _, k := range r.Headers.Keys() {
		for _, v := range r.Headers.Values(k) {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
	}

	b.WriteString("\r\n")

	if !connectTunnel && !suppressBody {
		b.Write(r.Body)
	}
	return b.Bytes()
}
