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

package remotesession_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/axeda/agentembedded/remotesession"
)

var _ = Describe("wire header", func() {
	It("round-trips Type/Length/Channel through WriteTo/ReadHeader", func() {
		h := remotesession.Header{Type: remotesession.MsgCommand, Length: 42, Channel: 3}
		var buf bytes.Buffer
		Expect(h.WriteTo(&buf)).To(Succeed())
		Expect(buf.Len()).To(Equal(remotesession.HeaderSize))

		got, err := remotesession.ReadHeader(&buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(got.Type).To(Equal(remotesession.MsgCommand))
		Expect(got.Length).To(Equal(int32(42)))
		Expect(got.Channel).To(Equal(int32(3)))
	})

	It("rejects a truncated header", func() {
		_, err := remotesession.ReadHeader(bytes.NewReader([]byte{1, 2, 3}))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Manager", func() {
	It("reports a device as inactive until a session is started for it", func() {
		m := remotesession.NewManager(nil, nil, nil)
		Expect(m.Active(7)).To(BeFalse())
	})
})
