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

package metrics_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/axeda/agentembedded/internal/metrics"
)

func TestMetrics(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "metrics suite")
}

var _ = Describe("Registry", func() {
	It("registers every collector exactly once against a private registry", func() {
		Expect(func() { metrics.Noop() }).ToNot(Panic())
	})

	It("reflects gauge mutations through the standard collector interface", func() {
		m := metrics.Noop()
		m.QueueBytes.Set(42)
		m.QueueItems.Set(3)
		m.TransactionsInFlight.Inc()
		m.RemoteSessions.Set(1)
		m.RemoteChannels.Set(2)
		m.PackagesByState.WithLabelValues("success").Inc()
		m.HTTPRequestsTotal.WithLabelValues("submitted").Inc()

		Expect(testutil.ToFloat64(m.QueueBytes)).To(Equal(float64(42)))
		Expect(testutil.ToFloat64(m.QueueItems)).To(Equal(float64(3)))
		Expect(testutil.ToFloat64(m.TransactionsInFlight)).To(Equal(float64(1)))
		Expect(testutil.ToFloat64(m.RemoteSessions)).To(Equal(float64(1)))
		Expect(testutil.ToFloat64(m.RemoteChannels)).To(Equal(float64(2)))
		Expect(testutil.ToFloat64(m.PackagesByState.WithLabelValues("success"))).To(Equal(float64(1)))
		Expect(testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("submitted"))).To(Equal(float64(1)))
	})

	It("panics when registered twice against the same registry", func() {
		reg := prometheus.NewRegistry()
		Expect(func() { metrics.New(reg) }).ToNot(Panic())
		Expect(func() { metrics.New(reg) }).To(Panic())
	})
})
