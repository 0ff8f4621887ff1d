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

// Package msgqueue implements C5 MessageQueue: the bounded, priority-
// ordered outbound queue AeDRMQueue.h describes — urgent/high/normal/low
// priority, FIFO within a priority, a byte-size budget instead of an item
// count, and threshold status callbacks so the caller (serversession) can
// react to the queue filling up. Per spec.md §6 there is no persistence
// across restarts, so the queue is a plain in-memory, mutex-guarded slice.
package msgqueue

import (
	"sync"

	"github.com/axeda/agentembedded/internal/aeerr"
)

// ItemType mirrors AeDRMQueueItemType.
type ItemType uint8

const (
	ItemSnapshot ItemType = iota
	ItemAlarm
	ItemEvent
	ItemEmail
	ItemSOAPStatus
	ItemMisc
)

// Priority mirrors AeDRMQueuePriority, ordered so a higher numeric value
// sorts first (urgent drains before low, as spec.md §5 requires).
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// Item is one queued outbound unit, already serialized to its wire bytes
// by the emessage builder before it reaches the queue (spec.md §5: the
// queue stores opaque content, not live Go values, so its byte budget is
// exact).
type Item struct {
	Type      ItemType
	DeviceID  int32
	ConfigID  int32
	Content   []byte
	Priority  Priority
	MessageID int32

	seq uint64 // insertion order, breaks priority ties FIFO
}

// Status is a fill-level threshold crossed, for onStatus callbacks.
type Status uint8

const (
	StatusEmpty Status = iota
	StatusQuarter
	StatusHalf
	StatusThreeQuarter
	StatusFull
)

// Queue is AeDRMQueue: a byte-budgeted, priority-ordered item list guarded
// by one mutex, exactly as the source's single AeMutex lock protected
// pItemList (spec.md §9 "single mutex, not per-field locking").
type Queue struct {
	mu sync.Mutex

	items    []*Item
	dataSize int64
	maxSize  int64
	nextSeq  uint64
	status   Status

	onStatus func(Status)
}

const defaultMaxSize = 1048576 // AE_DRM_QUEUE_DEFAULT_SIZE

// New builds an empty Queue with the given byte budget (0 uses
// AeDRMQueue.h's historical default of 1MiB). onStatus, if non-nil, fires
// synchronously from Add/DeleteByMessageID whenever the fill level crosses
// a quartile threshold.
func New(maxSize int64, onStatus func(Status)) *Queue {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	return &Queue{maxSize: maxSize, onStatus: onStatus}
}

// Add inserts item, maintaining priority order (ties broken FIFO), and
// fails with InternalExists-turned QueueFull semantics if it would exceed
// the byte budget.
func (q *Queue) Add(item *Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	size := int64(len(item.Content))
	if q.dataSize+size > q.maxSize {
		return aeerr.New(aeerr.InternalExists, "message queue full")
	}

	item.seq = q.nextSeq
	q.nextSeq++

	idx := 0
	for idx < len(q.items) && q.items[idx].Priority >= item.Priority {
		idx++
	}
	q.items = append(q.items, nil)
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = item

	q.dataSize += size
	q.updateStatus()
	return nil
}

// DeleteByMessageID removes every item tagged with messageID for deviceID
// (AeDRMQueueDeleteMessageItems — called once the server acknowledges
// receipt), returning how many were removed.
func (q *Queue) DeleteByMessageID(messageID, deviceID int32) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	removed := 0
	for _, it := range q.items {
		if it.MessageID == messageID && it.DeviceID == deviceID {
			q.dataSize -= int64(len(it.Content))
			removed++
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
	q.updateStatus()
	return removed
}

// Len reports the current item count.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// DataSize reports the current byte total.
func (q *Queue) DataSize() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dataSize
}

// HasAtLeast reports whether deviceID has a queued item at priority >= min,
// used by serversession to decide whether an urgent item should trigger an
// out-of-cycle send ahead of the next ping interval (spec.md §4.7 step 2).
func (q *Queue) HasAtLeast(deviceID int32, min Priority) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.DeviceID == deviceID && it.Priority >= min {
			return true
		}
	}
	return false
}

func (q *Queue) updateStatus() {
	var pct int64
	if q.maxSize > 0 {
		pct = q.dataSize * 100 / q.maxSize
	}
	next := StatusEmpty
	switch {
	case len(q.items) == 0:
		next = StatusEmpty
	case pct >= 100:
		next = StatusFull
	case pct >= 75:
		next = StatusThreeQuarter
	case pct >= 50:
		next = StatusHalf
	case pct >= 25:
		next = StatusQuarter
	}
	if next != q.status {
		q.status = next
		if q.onStatus != nil {
			q.onStatus(next)
		}
	}
}
