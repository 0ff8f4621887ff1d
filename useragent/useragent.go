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

package useragent

import (
	"context"
	"crypto/tls"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/axeda/agentembedded/httptxn"
)

// Submit starts req's transaction on its own goroutine (AeWebUserAgentAsyncExecute's
// per-request AeWebTransactionNew+Initiate, one goroutine each instead of
// one shared event loop iteration) and returns a task ID Cancel can use to
// abort it. The derived context is cancelled automatically once Run
// returns, successfully or not, so Cancel after completion is a harmless
// no-op.
func (ua *UserAgent) Submit(ctx context.Context, req *httptxn.Request, auth, proxyAuth httptxn.Authenticator, tlsConfig *tls.Config) string {
	id := uuid.NewString()
	taskCtx, cancel := context.WithCancel(ctx)

	ua.tasksMu.Lock()
	ua.tasks[id] = &runningTask{cancel: cancel, req: req}
	ua.tasksMu.Unlock()

	go func() {
		defer func() {
			cancel()
			ua.tasksMu.Lock()
			delete(ua.tasks, id)
			ua.tasksMu.Unlock()
		}()
		txn := httptxn.New(req, ua, auth, proxyAuth, tlsConfig)
		if err := txn.Run(taskCtx); err != nil && ua.log != nil {
			ua.log.Entry("useragent").WithField("task", id).WithError(err).Debugf("transaction failed")
		}
	}()

	return id
}

// Cancel aborts the task's context, interrupting whatever blocking I/O the
// transaction's goroutine is doing via watchCancel (spec.md §4.1,
// AeWebUserAgentCancel's original semantics). Returns false if the task
// already finished.
func (ua *UserAgent) Cancel(taskID string) bool {
	ua.tasksMu.Lock()
	t, ok := ua.tasks[taskID]
	ua.tasksMu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	return true
}

// SyncExecute submits every request and blocks until all of them complete,
// mirroring AeWebUserAgentSyncExecute's submit-then-DoEvents pairing.
// errgroup.Group (golang.org/x/sync) supplies the wait/first-error
// bookkeeping the original's blocking AeWebUserAgentDoEvents loop did by
// hand over its connection list.
func (ua *UserAgent) SyncExecute(ctx context.Context, reqs []*httptxn.Request, auth, proxyAuth httptxn.Authenticator, tlsConfig *tls.Config) error {
	var g errgroup.Group
	for _, req := range reqs {
		req := req
		g.Go(func() error {
			return httptxn.New(req, ua, auth, proxyAuth, tlsConfig).Run(ctx)
		})
	}
	return g.Wait()
}

// Pending reports how many tasks are currently in flight, for diagnostics
// and the serversession controller's backpressure decisions.
func (ua *UserAgent) Pending() int {
	ua.tasksMu.Lock()
	defer ua.tasksMu.Unlock()
	return len(ua.tasks)
}
