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

// Package emessage implements C6 EMessage: the outbound XML envelope
// builder. AeDRMEMessage.c builds a full in-memory AeXMLElement DOM and
// measures it with AeXMLDocumentGetFormattedSize only once finished;
// spec.md §9 calls for the idiomatic rewrite to track the serialized size
// as content is appended instead, so a caller never builds a document only
// to discover afterward that it didn't fit the transaction's message-size
// budget. Grounded on AeDRMEMessage.c for element names/nesting (`Re`,
// `Ds`, `Pi`, `Md`, `De` and friends) and its "one registration/ping
// element per device" and "first data item exempt from size check" rules.
package emessage

import (
	"bytes"
	"fmt"
	"time"

	"github.com/axeda/agentembedded/internal/aeerr"
)

// Type selects the envelope's root element: a standard data-carrying
// EMessage, or an MTMessage (管理device/"managed things" variant the
// original source calls EMessageManagedThing).
type Type uint8

const (
	TypeStandard Type = iota
	TypeManagedThings
)

func (t Type) rootTag() string {
	if t == TypeManagedThings {
		return "MTMessage"
	}
	return "EMessage"
}

// ContentKind tags what AddFragment is appending, so the first-item size
// exemption can be scoped the way AeDRMEMessageAddData scopes it: only a
// device's first data/snapshot item ever bypasses the budget check, never
// a Ping, Registration, Alarm, Event, or any other fragment kind.
type ContentKind uint8

const (
	KindOther ContentKind = iota
	KindData
)

// device accumulates one device's child elements within the envelope.
type device struct {
	id        int32
	buf       bytes.Buffer
	itemCount int
	dataCount int
}

// Builder is AeDRMEMessage: one outbound envelope, built incrementally.
// It is not safe for concurrent use — one goroutine (serversession's
// ticking controller) owns a Builder for the lifetime of one transaction.
type Builder struct {
	id            int64
	typ           Type
	majorVer      int
	minorVer      int
	maxSize       int64
	timestampMode TimestampMode
	timestamp     time.Time

	size    int64 // running serialized-byte counter
	devices []*device
	byID    map[int32]*device
}

// New starts a new envelope. maxSize is the message-size budget the
// caller negotiated for this transaction (spec.md §4.2); 0 means
// unbounded (used for the registration-only bootstrap exchange).
func New(id int64, typ Type, majorVer, minorVer int, maxSize int64, mode TimestampMode, now time.Time) *Builder {
	b := &Builder{
		id:            id,
		typ:           typ,
		majorVer:      majorVer,
		minorVer:      minorVer,
		maxSize:       maxSize,
		timestampMode: mode,
		timestamp:     now,
		byID:          make(map[int32]*device),
	}
	b.size = int64(len(b.rootOpenTag()) + len(b.rootCloseTag()))
	return b
}

func (b *Builder) rootOpenTag() string {
	if b.typ == TypeStandard {
		return fmt.Sprintf(`<%s id="%d" rc="0" v="%d.%d">`, b.typ.rootTag(), b.id, b.majorVer, b.minorVer)
	}
	return fmt.Sprintf(`<%s id="%d">`, b.typ.rootTag(), b.id)
}

func (b *Builder) rootCloseTag() string {
	return fmt.Sprintf("</%s>", b.typ.rootTag())
}

// Size reports the envelope's current serialized size, including every
// device accumulated so far, without building the final document.
func (b *Builder) Size() int64 { return b.size }

// Len reports how many devices currently have content.
func (b *Builder) Len() int { return len(b.devices) }

func (b *Builder) deviceFor(id int32) *device {
	if d, ok := b.byID[id]; ok {
		return d
	}
	d := &device{id: id}
	b.byID[id] = d
	b.devices = append(b.devices, d)
	b.size += int64(len(deviceOpenTag(id)) + len(deviceCloseTag()))
	return d
}

// AddFragment appends a pre-rendered child element (produced by one of
// this package's content builders) to deviceID's <De> element, enforcing
// the transaction's byte budget. A device's very first data/snapshot
// fragment is exempt from the budget check, matching
// AeDRMEMessageAddData's `!pDeviceElement->pElement->pFirstChild` guard —
// every other content kind (Ping, Registration, Alarm, Event, ...) is
// checked unconditionally, so a kind other than KindData can never
// consume the one exemption a device gets for reporting an oversized
// reading.
func (b *Builder) AddFragment(deviceID int32, kind ContentKind, fragment string) (added bool, err error) {
	d := b.deviceFor(deviceID)
	size := int64(len(fragment))

	exempt := kind == KindData && d.dataCount == 0
	if b.maxSize > 0 && !exempt && b.size+size > b.maxSize {
		return false, nil
	}

	d.buf.WriteString(fragment)
	d.itemCount++
	if kind == KindData {
		d.dataCount++
	}
	b.size += size
	return true, nil
}

// Bytes renders the finished envelope. Safe to call repeatedly; it does
// not mutate the Builder.
func (b *Builder) Bytes() []byte {
	var out bytes.Buffer
	out.WriteString(b.rootOpenTag())
	for _, d := range b.devices {
		out.WriteString(deviceOpenTag(d.id))
		out.Write(d.buf.Bytes())
		out.WriteString(deviceCloseTag())
	}
	out.WriteString(b.rootCloseTag())
	return out.Bytes()
}

func deviceOpenTag(id int32) string { return fmt.Sprintf(`<De id="%d">`, id) }
func deviceCloseTag() string        { return "</De>" }

// Timestamp renders now per the builder's configured mode.
func (b *Builder) Timestamp() string { return formatTimestamp(b.timestamp, b.timestampMode) }

var errTooLarge = aeerr.New(aeerr.InternalInvalidArgument, "single item exceeds message size budget even alone")

// MustAddFragment is AddFragment but treats a false "didn't fit" result
// as an error, for callers that already checked (via AddFragment's
// sibling planning pass in serversession) that this call should succeed.
func (b *Builder) MustAddFragment(deviceID int32, kind ContentKind, fragment string) error {
	ok, err := b.AddFragment(deviceID, kind, fragment)
	if err != nil {
		return err
	}
	if !ok {
		return errTooLarge
	}
	return nil
}
