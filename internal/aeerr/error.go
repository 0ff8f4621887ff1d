/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

package aeerr

import (
	"errors"
	"fmt"
	"strings"
)

// Error extends the standard error with a CodeError classification and
// parent-error chaining, so a transport failure can carry the raw net error
// as a parent while the outer code stays classifiable by the caller.
type Error interface {
	error

	IsCode(code CodeError) bool
	HasCode(code CodeError) bool
	GetCode() CodeError

	Add(parent ...error)
	HasParent() bool
	GetParent() []error

	Unwrap() []error
}

type aeErr struct {
	code   CodeError
	msg    string
	parent []error
}

// New builds an Error with the given code, message and optional parent
// errors (e.g. the raw net.OpError that triggered a TransportX code).
func New(code CodeError, msg string, parent ...error) Error {
	return &aeErr{code: code, msg: msg, parent: filterNil(parent)}
}

// Newf is New with fmt.Sprintf-style formatting of the message.
func Newf(code CodeError, pattern string, args ...any) Error {
	return &aeErr{code: code, msg: fmt.Sprintf(pattern, args...)}
}

// Wrap classifies an existing error under code, keeping it as the sole
// parent. If err is already an Error with the same code, it is returned
// unchanged rather than double-wrapped.
func Wrap(code CodeError, err error) Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(Error); ok && e.GetCode() == code {
		return e
	}
	return &aeErr{code: code, msg: code.String(), parent: []error{err}}
}

func filterNil(errs []error) []error {
	out := make([]error, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (e *aeErr) Error() string {
	var b strings.Builder
	b.WriteString(e.msg)
	for _, p := range e.parent {
		b.WriteString(": ")
		b.WriteString(p.Error())
	}
	return b.String()
}

func (e *aeErr) IsCode(code CodeError) bool { return e.code == code }

func (e *aeErr) HasCode(code CodeError) bool {
	if e.code == code {
		return true
	}
	for _, p := range e.parent {
		var ae Error
		if errors.As(p, &ae) && ae.HasCode(code) {
			return true
		}
	}
	return false
}

func (e *aeErr) GetCode() CodeError { return e.code }

func (e *aeErr) Add(parent ...error) {
	e.parent = append(e.parent, filterNil(parent)...)
}

func (e *aeErr) HasParent() bool { return len(e.parent) > 0 }

func (e *aeErr) GetParent() []error {
	out := make([]error, len(e.parent))
	copy(out, e.parent)
	return out
}

func (e *aeErr) Unwrap() []error { return e.parent }

// Is reports whether err is an Error carrying (directly or via a parent)
// the given code. Mirrors the teacher's package-level IsCode helper.
func Is(err error, code CodeError) bool {
	var ae Error
	if errors.As(err, &ae) {
		return ae.HasCode(code)
	}
	return false
}

// Code returns the CodeError of err if it is an Error, or CodeNone otherwise.
func Code(err error) CodeError {
	var ae Error
	if errors.As(err, &ae) {
		return ae.GetCode()
	}
	return CodeNone
}

// Family returns the log-category family name for err's code, one of
// {network, server, file-transfer, internal, unknown}.
func Family(err error) string {
	return Code(err).family()
}
