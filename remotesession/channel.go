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

package remotesession

import "sync"

// MaxChannels is the "up to 256 logical channels" ceiling (spec.md §4.11).
const MaxChannels = 256

// channelState is a channel's local socket-multiplexing lifecycle —
// distinct from the session-level state machine in session.go.
type channelState uint8

const (
	channelClosed channelState = iota
	channelOpen
	channelErrored
)

// FuncWrite delivers bytes downloaded for a channel to whatever local
// socket or buffer owns it, the same callback shape as
// nabbar-golib/ioutils/multiplexer's FuncWrite, adapted from its CBOR
// stream-multiplexing use to this protocol's fixed-header framing.
type FuncWrite func(p []byte) (int, error)

type channel struct {
	id    int32
	state channelState
	write FuncWrite
}

// channelRegistry is the per-session channel table: Open registers a
// local FuncWrite handler for a server-opened channel id, Deliver hands
// inbound data for that id to its handler, and Close/MarkErrored update
// its state. It keys on this protocol's int32 channel ids. It has no
// outbound sink; nothing here queues data to send upstream.
type channelRegistry struct {
	mu    sync.Mutex
	chans map[int32]*channel
}

func newChannelRegistry() *channelRegistry {
	return &channelRegistry{chans: make(map[int32]*channel)}
}

// Open allocates channel id with the given write sink. Returns
// ErrAccess if port mismatches at the caller (checked by Session, not
// here), ErrInuse if the id is already open, ErrAgain if the table is
// full (spec.md §4.11 OpenSocket failure modes).
func (r *channelRegistry) Open(id int32, write FuncWrite) ErrorCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.chans[id]; ok && c.state == channelOpen {
		return ErrInuse
	}
	if len(r.chans) >= MaxChannels {
		return ErrAgain
	}
	r.chans[id] = &channel{id: id, state: channelOpen, write: write}
	return 0
}

func (r *channelRegistry) Close(id int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chans, id)
}

func (r *channelRegistry) MarkErrored(id int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.chans[id]; ok {
		c.state = channelErrored
	}
}

func (r *channelRegistry) Deliver(id int32, data []byte) {
	r.mu.Lock()
	c, ok := r.chans[id]
	r.mu.Unlock()
	if !ok || c.write == nil {
		return
	}
	_, _ = c.write(data)
}

// drainErrored returns the ids that closed asynchronously and have not yet
// had their unsolicited CloseSocket sent upstream, clearing their entries.
func (r *channelRegistry) drainErrored() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int32
	for id, c := range r.chans {
		if c.state == channelErrored {
			ids = append(ids, id)
			delete(r.chans, id)
		}
	}
	return ids
}

func (r *channelRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chans)
}
