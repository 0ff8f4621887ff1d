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

import (
	"encoding/base64"
	"sync"

	"github.com/axeda/agentembedded/transport"
)

// Credentials is one set of username/password(/domain/workstation for
// NTLM) the Engine answers challenges with. A single Engine handles one
// credential set — the agent builds one per configured server plus one
// for the configured proxy (spec.md §4.4: origin and proxy auth are
// cached and retried independently).
type Credentials struct {
	User        string
	Password    string
	Domain      string // NTLM only
	Workstation string // NTLM only
}

// Engine implements httptxn.Authenticator for one set of Credentials
// against every host:port it has seen a challenge from.
type Engine struct {
	creds Credentials

	mu    sync.Mutex
	hosts map[string]*hostCache
}

func New(creds Credentials) *Engine {
	return &Engine{creds: creds, hosts: make(map[string]*hostCache)}
}

// Header implements httptxn.Authenticator.
func (e *Engine) Header(peer transport.Endpoint, method, path string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	hc := e.hosts[peer.String()]
	if hc == nil {
		return ""
	}
	en := hc.lookup(path)
	if en == nil {
		return ""
	}

	switch en.scheme {
	case SchemeBasic:
		return basicHeader(e.creds.User, e.creds.Password)
	case SchemeDigest:
		en.nonceCount++
		return buildDigestHeader(en.digest, method, path, e.creds.User, e.creds.Password, en.nonceCount)
	default:
		// NTLM has no preemptive form: every connection needs its own
		// Type-2 challenge, so the cached entry only remembers *that* NTLM
		// is required, for diagnostics — not a header to send up front.
		return ""
	}
}

// Challenge implements httptxn.Authenticator.
func (e *Engine) Challenge(peer transport.Endpoint, method, path string, values []string) (string, bool, bool) {
	scheme, rest := pickChallenge(values)

	e.mu.Lock()
	defer e.mu.Unlock()

	switch scheme {
	case SchemeBasic:
		e.remember(peer, &entry{path: path, scheme: SchemeBasic})
		return basicHeader(e.creds.User, e.creds.Password), false, true

	case SchemeDigest:
		d := parseDigestChallenge(rest)
		e.remember(peer, &entry{path: path, scheme: SchemeDigest, digest: d, nonceCount: 1})
		return buildDigestHeader(d, method, path, e.creds.User, e.creds.Password, 1), false, true

	case SchemeNTLM:
		e.remember(peer, &entry{path: path, scheme: SchemeNTLM})
		if rest == "" {
			h, err := ntlmType1(e.creds.Domain, e.creds.Workstation)
			if err != nil {
				return "", false, false
			}
			return h, true, true
		}
		h, err := ntlmType3("NTLM "+rest, e.creds.User, e.creds.Password)
		if err != nil {
			return "", false, false
		}
		return h, false, true

	default:
		return "", false, false
	}
}

func (e *Engine) remember(peer transport.Endpoint, en *entry) {
	key := peer.String()
	hc := e.hosts[key]
	if hc == nil {
		hc = &hostCache{}
		e.hosts[key] = hc
	}
	hc.store(en)
}

func basicHeader(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

// pickChallenge chooses the strongest scheme this engine supports out of
// however many WWW-Authenticate/Proxy-Authenticate header values a 401/407
// carried, matching ordinary browser/client behavior when a server offers
// more than one scheme at once.
func pickChallenge(values []string) (Scheme, string) {
	var best Scheme
	var bestRest string
	for _, v := range values {
		s, rest := parseScheme(v)
		if s.rank() > best.rank() {
			best, bestRest = s, rest
		}
	}
	return best, bestRest
}
