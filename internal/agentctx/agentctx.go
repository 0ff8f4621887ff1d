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

// Package agentctx holds the agent's explicit, constructed-once context
// object. The original C source keeps process-wide state in globals
// (g_drmSettings, g_pQueue, g_pWebUA, ...); spec.md §9 requires these be
// reorganized into an explicit object threaded through the stack instead.
// The DNS cache is held here behind its own mutex; the auth cache lives in
// auth.Engine, not in this Context.
package agentctx

import (
	"net"
	"sync"
	"time"

	"github.com/axeda/agentembedded/internal/config"
	"github.com/axeda/agentembedded/internal/logx"
	"github.com/axeda/agentembedded/internal/metrics"
)

// Context is passed by pointer to every constructor in the agent instead
// of being reached for as a global.
type Context struct {
	Config  *config.Config
	Log     *logx.Logger
	Metrics *metrics.Registry

	dnsCache dnsCache
}

// New builds a Context from already-loaded configuration.
func New(cfg *config.Config, log *logx.Logger, m *metrics.Registry) *Context {
	return &Context{
		Config:  cfg,
		Log:     log,
		Metrics: m,
		dnsCache: dnsCache{
			entries: make(map[string]dnsCacheEntry),
		},
	}
}

// ResolveHost returns the cached IPs for host, resolving and caching on
// first use. Process-wide and mutex-protected per spec.md §5's "DNS cache
// is process-wide and mutex-protected" requirement.
func (c *Context) ResolveHost(host string) ([]net.IP, error) {
	return c.dnsCache.resolve(host)
}

type dnsCacheEntry struct {
	ips     []net.IP
	fetched time.Time
}

type dnsCache struct {
	mu      sync.Mutex
	entries map[string]dnsCacheEntry
}

const dnsCacheTTL = 60 * time.Second

func (d *dnsCache) resolve(host string) ([]net.IP, error) {
	d.mu.Lock()
	if e, ok := d.entries[host]; ok && time.Since(e.fetched) < dnsCacheTTL {
		d.mu.Unlock()
		return e.ips, nil
	}
	d.mu.Unlock()

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.entries[host] = dnsCacheEntry{ips: ips, fetched: time.Now()}
	d.mu.Unlock()
	return ips, nil
}
