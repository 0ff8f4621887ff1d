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

package auth_test

import (
	"encoding/base64"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/axeda/agentembedded/auth"
	"github.com/axeda/agentembedded/transport"
)

func TestAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "auth suite")
}

var peer = transport.Endpoint{Host: "example.com", Port: 80}

var _ = Describe("Engine", func() {
	It("answers a Basic challenge and caches it for future requests", func() {
		e := auth.New(auth.Credentials{User: "u", Password: "p"})

		hdr, ntlmRoundTrip, ok := e.Challenge(peer, "GET", "/api/x", []string{`Basic realm="widgets"`})
		Expect(ok).To(BeTrue())
		Expect(ntlmRoundTrip).To(BeFalse())
		Expect(hdr).To(Equal("Basic " + base64.StdEncoding.EncodeToString([]byte("u:p"))))

		// Cached: a subsequent request under the same path prefix gets a
		// header without a fresh challenge.
		Expect(e.Header(peer, "GET", "/api/x")).To(Equal(hdr))
	})

	It("matches the longest cached path prefix", func() {
		e := auth.New(auth.Credentials{User: "u", Password: "p"})
		_, _, ok := e.Challenge(peer, "GET", "/api/", []string{`Basic realm="r"`})
		Expect(ok).To(BeTrue())

		Expect(e.Header(peer, "GET", "/api/v1/widgets")).ToNot(BeEmpty())
		Expect(e.Header(peer, "GET", "/other")).To(BeEmpty())
	})

	It("computes a Digest response header", func() {
		e := auth.New(auth.Credentials{User: "u", Password: "p"})
		hdr, _, ok := e.Challenge(peer, "GET", "/x",
			[]string{`Digest realm="r", nonce="abc123", opaque="xyz"`})
		Expect(ok).To(BeTrue())
		Expect(hdr).To(HavePrefix("Digest "))
		Expect(hdr).To(ContainSubstring(`realm="r"`))
		Expect(hdr).To(ContainSubstring(`nonce="abc123"`))
		Expect(hdr).To(ContainSubstring(`opaque="xyz"`))
		Expect(hdr).To(ContainSubstring(`username="u"`))

		// Second preemptive use increments nc but reuses the same nonce.
		second := e.Header(peer, "GET", "/x")
		Expect(second).To(ContainSubstring(`nonce="abc123"`))
	})

	It("includes qop/nc/cnonce when the server advertises qop=auth", func() {
		e := auth.New(auth.Credentials{User: "u", Password: "p"})
		hdr, _, ok := e.Challenge(peer, "GET", "/x",
			[]string{`Digest realm="r", nonce="n1", qop="auth", algorithm=MD5`})
		Expect(ok).To(BeTrue())
		Expect(hdr).To(ContainSubstring("qop=auth"))
		Expect(hdr).To(ContainSubstring("nc=00000001"))
	})

	It("picks the strongest scheme when several are offered at once", func() {
		e := auth.New(auth.Credentials{User: "u", Password: "p"})
		hdr, _, ok := e.Challenge(peer, "GET", "/x", []string{
			`Basic realm="r"`,
			`Digest realm="r", nonce="n1"`,
		})
		Expect(ok).To(BeTrue())
		Expect(hdr).To(HavePrefix("Digest "))
	})

	It("starts an NTLM round 1 with no prior challenge state", func() {
		e := auth.New(auth.Credentials{User: "u", Password: "p", Domain: "D"})
		hdr, _, ok := e.Challenge(peer, "GET", "/x", []string{"NTLM"})
		Expect(ok).To(BeTrue())
		Expect(hdr).To(HavePrefix("NTLM "))

		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(hdr, "NTLM "))
		Expect(err).ToNot(HaveOccurred())
		Expect(string(raw[:8])).To(Equal("NTLMSSP\x00"))
	})

	It("never caches an NTLM header for preemptive reuse", func() {
		e := auth.New(auth.Credentials{User: "u", Password: "p"})
		_, _, ok := e.Challenge(peer, "GET", "/x", []string{"NTLM"})
		Expect(ok).To(BeTrue())

		// NTLM authenticates the connection, not the path; no preemptive
		// header should be handed back for a plain cache lookup.
		Expect(e.Header(peer, "GET", "/x")).To(BeEmpty())
	})

	It("rejects an unsupported scheme", func() {
		e := auth.New(auth.Credentials{User: "u", Password: "p"})
		_, _, ok := e.Challenge(peer, "GET", "/x", []string{`Negotiate abcd`})
		Expect(ok).To(BeFalse())
	})

	It("returns no header for a peer it has never seen a challenge from", func() {
		e := auth.New(auth.Credentials{User: "u", Password: "p"})
		Expect(e.Header(peer, "GET", "/x")).To(BeEmpty())
	})
})
