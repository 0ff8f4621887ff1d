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

package emessage

import "time"

// TimestampMode selects between the device's own clock and "systime", the
// wire's substitution token telling the server to stamp the item with its
// own receipt time instead (spec.md §4.2 "ServerTimestampMode").
type TimestampMode uint8

const (
	TimestampDevice TimestampMode = iota
	TimestampServer
)

// epochFloor is the earliest timestamp the agent will ever report; a
// device clock that hasn't been set yet (post-boot, pre-NTP-sync) reads
// before the Unix epoch and gets clamped to it, per spec.md §4.6 ("a
// timestamp of 'before the epoch' is clamped to zero").
var epochFloor = time.Unix(0, 0).UTC()

// formatTimestamp renders t as ISO-8601 UTC with millisecond precision
// ("YYYY-MM-DDThh:mm:ss.mmmZ", spec.md §4.6), or the literal "systime"
// substitution token when mode asks the server to use its own clock
// instead of the device's.
func formatTimestamp(t time.Time, mode TimestampMode) string {
	if mode == TimestampServer {
		return "systime"
	}
	if t.Before(epochFloor) {
		t = epochFloor
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// FormatTimestamp exports formatTimestamp for callers outside this package
// that render fragments without going through a Builder — soap's dispatcher
// stamps SoapCommandStatus responses this way, since a status fragment is
// emitted on receipt of a server response, not while a Builder is open.
func FormatTimestamp(t time.Time, mode TimestampMode) string {
	return formatTimestamp(t, mode)
}
