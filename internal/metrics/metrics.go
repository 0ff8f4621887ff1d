/*
 * MIT License
 *
 * Copyright (c) 2023 Nicolas JUHEL
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

// Package metrics exposes the agent's Prometheus instrumentation: queue
// depth, in-flight HTTP transactions, file-transfer package states, and
// remote-session channel counts. None of this is on the wire protocol —
// it is the ambient observability stack carried regardless of the spec's
// Non-goals around the protocol itself.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the agent's collectors behind one constructed-once
// object instead of package-level globals, consistent with the explicit
// context object described in SPEC_FULL.md §7.
type Registry struct {
	QueueBytes          prometheus.Gauge
	QueueItems          prometheus.Gauge
	TransactionsInFlight prometheus.Gauge
	PackagesByState     *prometheus.GaugeVec
	RemoteSessions      prometheus.Gauge
	RemoteChannels      prometheus.Gauge
	HTTPRequestsTotal   *prometheus.CounterVec
}

// New constructs and registers every collector against reg.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		QueueBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "axeda_agent", Subsystem: "queue", Name: "bytes",
			Help: "Current total serialized byte size of the outbound message queue.",
		}),
		QueueItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "axeda_agent", Subsystem: "queue", Name: "items",
			Help: "Current number of items in the outbound message queue.",
		}),
		TransactionsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "axeda_agent", Subsystem: "http", Name: "transactions_in_flight",
			Help: "Number of HTTP transactions currently in flight.",
		}),
		PackagesByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "axeda_agent", Subsystem: "filetransfer", Name: "packages",
			Help: "Number of file-transfer packages by status.",
		}, []string{"status"}),
		RemoteSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "axeda_agent", Subsystem: "remote", Name: "sessions",
			Help: "Number of active remote sessions.",
		}),
		RemoteChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "axeda_agent", Subsystem: "remote", Name: "channels",
			Help: "Number of open remote-session channels across all sessions.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axeda_agent", Subsystem: "http", Name: "requests_total",
			Help: "Total HTTP requests issued by the agent, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.QueueBytes, m.QueueItems, m.TransactionsInFlight,
		m.PackagesByState, m.RemoteSessions, m.RemoteChannels, m.HTTPRequestsTotal,
	)
	return m
}

// Noop returns a Registry registered against a private registry, for use
// in tests that don't care about metric output and don't want to collide
// with prometheus's default global registerer.
func Noop() *Registry {
	return New(prometheus.NewRegistry())
}
