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

// Package auth implements C4 AuthEngine: Basic/Digest/NTLM challenge
// parsing and header production, cached per (host, port, path-prefix) as
// original_source/.../AeWebAuth.h's AeWebAuthInfoGet/Set pair does, so a
// transaction to a previously-authenticated path can send credentials
// preemptively instead of eating a 401 round trip every time.
package auth

import "strings"

// Scheme mirrors original_source's AeWebAuthScheme enum.
type Scheme uint8

const (
	SchemeNone Scheme = iota
	SchemeBasic
	SchemeDigest
	SchemeNTLM
)

func (s Scheme) String() string {
	switch s {
	case SchemeBasic:
		return "Basic"
	case SchemeDigest:
		return "Digest"
	case SchemeNTLM:
		return "NTLM"
	default:
		return "None"
	}
}

// parseScheme reads the leading auth-scheme token off a challenge header
// value, e.g. "Digest realm=...".
func parseScheme(challenge string) (Scheme, string) {
	name, rest, _ := strings.Cut(challenge, " ")
	switch strings.ToLower(name) {
	case "basic":
		return SchemeBasic, rest
	case "digest":
		return SchemeDigest, rest
	case "ntlm":
		return SchemeNTLM, rest
	default:
		return SchemeNone, rest
	}
}

// rank orders schemes by strength so a multi-valued challenge (several
// WWW-Authenticate headers, or comma-joined schemes) picks the strongest
// one the engine supports, matching common HTTP client practice.
func (s Scheme) rank() int {
	switch s {
	case SchemeNTLM:
		return 3
	case SchemeDigest:
		return 2
	case SchemeBasic:
		return 1
	default:
		return 0
	}
}
