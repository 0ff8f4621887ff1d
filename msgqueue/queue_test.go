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

package msgqueue_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/axeda/agentembedded/msgqueue"
)

var _ = Describe("Queue", func() {
	It("drains urgent before normal before low, FIFO within a priority", func() {
		q := msgqueue.New(0, nil)
		Expect(q.Add(&msgqueue.Item{Content: []byte("low-1"), Priority: msgqueue.PriorityLow})).To(Succeed())
		Expect(q.Add(&msgqueue.Item{Content: []byte("urgent-1"), Priority: msgqueue.PriorityUrgent})).To(Succeed())
		Expect(q.Add(&msgqueue.Item{Content: []byte("normal-1"), Priority: msgqueue.PriorityNormal})).To(Succeed())
		Expect(q.Add(&msgqueue.Item{Content: []byte("urgent-2"), Priority: msgqueue.PriorityUrgent})).To(Succeed())

		c := q.Open()
		defer c.Close()

		var order []string
		for {
			it, ok := c.Next()
			if !ok {
				break
			}
			order = append(order, string(it.Content))
		}
		Expect(order).To(Equal([]string{"urgent-1", "urgent-2", "normal-1", "low-1"}))
	})

	It("refuses a single item that alone exceeds the byte budget", func() {
		q := msgqueue.New(4, nil)
		Expect(q.Add(&msgqueue.Item{Content: []byte("way too big for four bytes")})).To(HaveOccurred())
	})

	It("refuses a second item once the byte budget is exceeded", func() {
		q := msgqueue.New(4, nil)
		Expect(q.Add(&msgqueue.Item{Content: []byte("abcd")})).To(Succeed())
		Expect(q.Add(&msgqueue.Item{Content: []byte("e")})).To(HaveOccurred())
	})

	It("fires onStatus when the fill level crosses a quartile", func() {
		var crossed []msgqueue.Status
		q := msgqueue.New(100, func(s msgqueue.Status) { crossed = append(crossed, s) })
		Expect(q.Add(&msgqueue.Item{Content: make([]byte, 30)})).To(Succeed())
		Expect(q.Add(&msgqueue.Item{Content: make([]byte, 30)})).To(Succeed())
		Expect(crossed).To(ContainElement(msgqueue.StatusQuarter))
		Expect(crossed).To(ContainElement(msgqueue.StatusHalf))
	})

	It("DeleteByMessageID removes only items matching both deviceID and messageID", func() {
		q := msgqueue.New(0, nil)
		Expect(q.Add(&msgqueue.Item{Content: []byte("a"), DeviceID: 1, MessageID: 9})).To(Succeed())
		Expect(q.Add(&msgqueue.Item{Content: []byte("b"), DeviceID: 2, MessageID: 9})).To(Succeed())
		Expect(q.Add(&msgqueue.Item{Content: []byte("c"), DeviceID: 1, MessageID: 5})).To(Succeed())

		removed := q.DeleteByMessageID(9, 1)
		Expect(removed).To(Equal(1))
		Expect(q.Len()).To(Equal(2))
	})

	It("HasAtLeast matches per-device priority thresholds", func() {
		q := msgqueue.New(0, nil)
		Expect(q.Add(&msgqueue.Item{DeviceID: 1, Priority: msgqueue.PriorityNormal})).To(Succeed())
		Expect(q.HasAtLeast(1, msgqueue.PriorityHigh)).To(BeFalse())
		Expect(q.HasAtLeast(1, msgqueue.PriorityNormal)).To(BeTrue())
		Expect(q.HasAtLeast(2, msgqueue.PriorityLow)).To(BeFalse())
	})

	It("PeekBounded declines an item larger than the requested budget without advancing", func() {
		q := msgqueue.New(0, nil)
		Expect(q.Add(&msgqueue.Item{Content: make([]byte, 50)})).To(Succeed())

		c := q.Open()
		defer c.Close()
		_, ok := c.PeekBounded(10)
		Expect(ok).To(BeFalse())
		item, ok := c.PeekBounded(100)
		Expect(ok).To(BeTrue())
		Expect(item).ToNot(BeNil())
	})
})
