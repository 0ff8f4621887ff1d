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

package filetransfer

import (
	"context"
	"strconv"
	"sync"

	"github.com/axeda/agentembedded/emessage"
	"github.com/axeda/agentembedded/internal/aeerr"
	"github.com/axeda/agentembedded/internal/logx"
	"github.com/axeda/agentembedded/internal/metrics"
	"github.com/axeda/agentembedded/msgqueue"
	"github.com/axeda/agentembedded/soap"
)

// Builder constructs the Instruction list for a package from the server's
// FileTransfer.Start method element — one function per built-in
// instruction type the method names, so Engine never needs to know how to
// parse a <Download>/<Upload>/<Package.Rs> child itself.
type Builder func(method *soap.Element) ([]Instruction, error)

// Engine schedules file-transfer packages per spec.md §4.9: the head
// package (highest priority, oldest among ties) always runs; any other
// started package is marked preemption-pending and runs only to its next
// safe point. Grounded on AeFileTransfer.c's package-list scheduling loop.
type Engine struct {
	mu       sync.Mutex
	packages []*Package

	Queue         *msgqueue.Queue
	Metrics       *metrics.Registry
	Log           *logx.Logger
	TimestampMode emessage.TimestampMode

	BuildInstructions Builder
}

// StartFileTransfer implements soap.FileTransferHandler: it builds the
// instruction list for the incoming method and inserts the package in
// priority order (ties broken by arrival, matching AeFileTransferPackageCompare).
func (e *Engine) StartFileTransfer(ctx context.Context, deviceID, configID int32, method *soap.Element) error {
	priority := 0
	if v, ok := method.Attrs["priority"]; ok {
		priority = atoiOrZero(v)
	}

	instrs, err := e.BuildInstructions(method)
	if err != nil {
		return err
	}

	pkg := &Package{
		JobID:        method.Attrs["jobId"],
		PublishedID:  method.Attrs["id"],
		DeviceID:     deviceID,
		ConfigID:     configID,
		Priority:     int32(priority),
		Instructions: instrs,
		Status:       StatusQueued,
	}

	e.mu.Lock()
	idx := 0
	for idx < len(e.packages) && e.packages[idx].Priority >= pkg.Priority {
		idx++
	}
	e.packages = append(e.packages, nil)
	copy(e.packages[idx+1:], e.packages[idx:])
	e.packages[idx] = pkg
	count := len(e.packages)
	e.mu.Unlock()

	if e.Metrics != nil {
		e.Metrics.PackagesByState.WithLabelValues("queued").Set(float64(count))
	}
	e.reportStatus(pkg)
	return nil
}

// StopFileTransfer implements soap.FileTransferHandler, marking the named
// package cancellation-pending or pause-pending (spec.md §4.9): the
// transition is deferred to the package's next safe point.
func (e *Engine) StopFileTransfer(ctx context.Context, deviceID int32, method *soap.Element, pause bool) error {
	jobID := method.Attrs["jobId"]

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, pkg := range e.packages {
		if pkg.DeviceID != deviceID || pkg.JobID != jobID {
			continue
		}
		if pause {
			pkg.Status = StatusPausePending
		} else {
			pkg.Status = StatusCancellationPending
		}
		return nil
	}
	return aeerr.Newf(aeerr.FileTransferNameNotFound, "no file-transfer package with job id %q", jobID)
}

// Tick advances the scheduling head by one unit of work, per spec.md §4.9.
// Called once per engine poll cycle (analogous to AeFileTransferProcess).
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	if len(e.packages) == 0 {
		e.mu.Unlock()
		return
	}
	head := e.packages[0]

	for i, pkg := range e.packages {
		if i == 0 {
			continue
		}
		switch pkg.Status {
		case StatusStarted:
			pkg.Status = StatusPreemptionPending
		}
	}

	switch head.Status {
	case StatusQueued:
		head.Status = StatusStarted
	case StatusPreempted:
		head.Status = StatusStarted
		head.notifyCurrent(NotifyReactivate)
	}
	e.mu.Unlock()

	head.advance(ctx)

	e.mu.Lock()
	e.settlePending()
	finished := head.Status == StatusSuccess || head.Status == StatusError || head.Status == StatusCancelled
	if finished {
		e.removePackage(head)
	}
	e.mu.Unlock()

	if finished {
		e.reportStatus(head)
	}
}

// settlePending applies a pending preempt/cancel/pause transition to any
// package whose current instruction has reached a safe point
// (IsPendingRequest() == false), per spec.md §4.9's "terminate at a safe
// point" rule. Caller holds e.mu.
func (e *Engine) settlePending() {
	for _, pkg := range e.packages {
		if pkg.isPendingRequest() {
			continue
		}
		switch pkg.Status {
		case StatusPreemptionPending:
			pkg.Status = StatusPreempted
			pkg.notifyCurrent(NotifyPreempt)
		case StatusCancellationPending:
			pkg.Status = StatusCancelled
			pkg.notifyCurrent(NotifyCancel)
		case StatusPausePending:
			pkg.Status = StatusPaused
			pkg.notifyCurrent(NotifyPause)
		}
	}
}

func (e *Engine) removePackage(pkg *Package) {
	for i, p := range e.packages {
		if p == pkg {
			e.packages = append(e.packages[:i], e.packages[i+1:]...)
			return
		}
	}
}

// reportStatus queues a PackageStatus fragment for the next ServerSession
// send round. Internal-only states (preempted/pending) are never reported,
// matching AeFileTransfer.h's "the following statuses are internal" note.
func (e *Engine) reportStatus(pkg *Package) {
	if !pkg.Status.reportable() || e.Queue == nil {
		return
	}
	errStr := ""
	if pkg.Status == StatusError {
		errStr = strconv.Itoa(int(pkg.Error))
	}
	frag := emessage.PackageStatus(pkg.JobID, int(pkg.Status), errStr, strconv.Itoa(pkg.instructionIndex()))
	_ = e.Queue.Add(&msgqueue.Item{
		Type:     msgqueue.ItemSOAPStatus,
		DeviceID: pkg.DeviceID,
		ConfigID: pkg.ConfigID,
		Content:  []byte(frag),
		Priority: msgqueue.PriorityNormal,
	})
}

func atoiOrZero(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
