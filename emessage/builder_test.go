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

package emessage_test

import (
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/axeda/agentembedded/emessage"
)

func TestEMessage(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "emessage suite")
}

var now = time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

var _ = Describe("Builder", func() {
	It("renders an empty standard envelope", func() {
		b := emessage.New(1, emessage.TypeStandard, 6, 6, 0, emessage.TimestampDevice, now)
		Expect(string(b.Bytes())).To(Equal(`<EMessage id="1" rc="0" v="6.6"></EMessage>`))
	})

	It("nests content under a per-device element, created on first touch", func() {
		b := emessage.New(1, emessage.TypeStandard, 6, 6, 0, emessage.TimestampDevice, now)
		ok, err := b.AddFragment(7, emessage.KindOther, emessage.Ping(b.Timestamp()))
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())

		out := string(b.Bytes())
		Expect(out).To(ContainSubstring(`<De id="7">`))
		Expect(out).To(ContainSubstring("<Pi "))
		Expect(b.Len()).To(Equal(1))
	})

	It("renders MTMessage root for managed-thing envelopes", func() {
		b := emessage.New(9, emessage.TypeManagedThings, 6, 6, 0, emessage.TimestampDevice, now)
		Expect(string(b.Bytes())).To(Equal(`<MTMessage id="9"></MTMessage>`))
	})

	It("grants a device's first data/snapshot fragment the budget exemption", func() {
		small := emessage.New(1, emessage.TypeStandard, 6, 6, 0, emessage.TimestampDevice, now)
		tagLen := small.Size()

		fragment := emessage.Data(small.Timestamp(), []emessage.DataItem{{Name: "t", Value: "1", Type: "integer"}})
		budget := tagLen + int64(len(`<De id="1">`)+len(`</De>`)) + int64(len(fragment)) - 5

		b := emessage.New(1, emessage.TypeStandard, 6, 6, budget, emessage.TimestampDevice, now)

		ok1, err := b.AddFragment(1, emessage.KindData, fragment)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok1).To(BeTrue(), "first data fragment for a device is exempt from the budget check")

		ok2, err := b.AddFragment(1, emessage.KindData, fragment)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok2).To(BeFalse(), "second data fragment must respect the budget")
	})

	It("never exempts a non-data fragment, even as the device's first item", func() {
		b := emessage.New(1, emessage.TypeStandard, 6, 6, 1, emessage.TimestampDevice, now)
		ok, err := b.AddFragment(1, emessage.KindOther, emessage.Ping(b.Timestamp()))
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeFalse(), "Ping is not a data/snapshot item and must never bypass the budget")
	})

	It("does not let a Ping consume the device's data exemption slot", func() {
		small := emessage.New(1, emessage.TypeStandard, 6, 6, 0, emessage.TimestampDevice, now)
		ping := emessage.Ping(small.Timestamp())
		data := emessage.Data(small.Timestamp(), []emessage.DataItem{{Name: "t", Value: "1", Type: "integer"}})
		budget := small.Size() + int64(len(`<De id="1">`)+len(`</De>`)) + int64(len(ping)+len(data))

		b := emessage.New(1, emessage.TypeStandard, 6, 6, budget, emessage.TimestampDevice, now)
		ok, err := b.AddFragment(1, emessage.KindOther, ping)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())

		// the oversized data item still gets its exemption: a prior Ping
		// for this device must not have spent it.
		ok, err = b.AddFragment(1, emessage.KindData, data+strings.Repeat("x", 200))
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("MustAddFragment surfaces the refusal as an error", func() {
		b := emessage.New(1, emessage.TypeStandard, 6, 6, 1, emessage.TimestampDevice, now)
		fragment := emessage.Data(b.Timestamp(), []emessage.DataItem{{Name: "t", Value: "1", Type: "integer"}})
		// first data fragment for this device is exempt and will always fit
		Expect(b.MustAddFragment(1, emessage.KindData, fragment)).To(Succeed())
		Expect(b.MustAddFragment(1, emessage.KindData, fragment)).To(HaveOccurred())
	})

	It("is idempotent: a refused fragment renders identical bytes whether or not it was attempted first", func() {
		budget := int64(40)
		b1 := emessage.New(1, emessage.TypeStandard, 6, 6, budget, emessage.TimestampDevice, now)
		big := emessage.Alarm(b1.Timestamp(), "overtemp", 5, strings.Repeat("x", 200), "high", true, false)

		_, _ = b1.AddFragment(1, emessage.KindOther, emessage.Ping(b1.Timestamp()))
		ok, _ := b1.AddFragment(1, emessage.KindOther, big)
		Expect(ok).To(BeFalse())
		before := b1.Bytes()

		b2 := emessage.New(1, emessage.TypeStandard, 6, 6, budget, emessage.TimestampDevice, now)
		_, _ = b2.AddFragment(1, emessage.KindOther, emessage.Ping(b2.Timestamp()))
		after := b2.Bytes()

		Expect(before).To(Equal(after))
	})
})

var _ = Describe("content fragments", func() {
	It("escapes reserved XML characters in attribute values", func() {
		out := emessage.Event("2026-07-31T00:00:00.000Z", `a&b<c>"d"`, 3, "msg")
		Expect(out).To(ContainSubstring("a&amp;b&lt;c&gt;&quot;d&quot;"))
	})

	It("renders a Data element with one or more items", func() {
		out := emessage.Data("t", []emessage.DataItem{
			{Name: "temp", Value: "72", Type: "integer", Quality: "good"},
		})
		Expect(out).To(Equal(`<Da t="t"><Di n="temp" ty="integer" q="good">72</Di></Da>`))
	})

	It("renders Online as a 0/1 flag", func() {
		Expect(emessage.Online(true)).To(Equal(`<Ds ol="1"/>`))
		Expect(emessage.Online(false)).To(Equal(`<Ds ol="0"/>`))
	})
})

var _ = Describe("timestamp formatting", func() {
	It("renders ISO-8601 UTC with millisecond precision", func() {
		t := time.Date(2026, 7, 31, 1, 2, 3, 4*int(time.Millisecond), time.UTC)
		Expect(emessage.FormatTimestamp(t, emessage.TimestampDevice)).To(Equal("2026-07-31T01:02:03.004Z"))
	})

	It("substitutes the literal systime token when server-timestamp mode is set", func() {
		Expect(emessage.FormatTimestamp(now, emessage.TimestampServer)).To(Equal("systime"))
	})

	It("clamps a before-the-epoch timestamp to zero", func() {
		before := time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)
		Expect(emessage.FormatTimestamp(before, emessage.TimestampDevice)).To(Equal("1970-01-01T00:00:00.000Z"))
	})
})
