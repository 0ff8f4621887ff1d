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

// Package filetransfer implements C9 FileTransferEngine and C10's
// Download/Upload/AgentRestart instruction variants: a priority-ordered
// set of packages, each a list of instructions advanced one at a time,
// with preemption/pause/cancellation deferred to a safe point. Grounded
// on original_source/.../AeFileTransfer.{c,h} for the package/instruction
// state machine and AeAgentRestart.c for the restart variant.
package filetransfer

import "context"

// Status mirrors AeFileTransferStatus. Values AeQUEUED..AePAUSED are
// reported to the server; Preempted/PreemptionPending/CancellationPending/
// PausePending are internal-only scheduling states (AeFileTransfer.h's
// comment: "the following statuses are internal").
type Status int

const (
	StatusQueued Status = iota
	StatusStarted
	StatusSuccess
	StatusError
	StatusCancelled
	_ // gap preserves the source's enum numbering; unused by this port
	_
	_
	_
	_
	_
	_
	_
	_
	_
	_
	_
	StatusPaused // AePAUSED = 17

	StatusPreempted
	StatusPreemptionPending
	StatusCancellationPending
	StatusPausePending
)

// reportable is true for states the server is told about via PackageStatus;
// the *Pending/Preempted states are scheduling-internal only.
func (s Status) reportable() bool {
	switch s {
	case StatusQueued, StatusStarted, StatusSuccess, StatusError, StatusCancelled, StatusPaused:
		return true
	default:
		return false
	}
}

// NotifyEvent is delivered to an instruction when the engine changes its
// package's scheduling state out from under it (AeFileInstructionNotify).
type NotifyEvent int

const (
	NotifyPreempt NotifyEvent = iota
	NotifyReactivate
	NotifyCancel
	NotifyPause
)

// Instruction is one step of a package's instruction list: Download,
// Upload, or AgentRestart. Process is called repeatedly until it reports
// done; IsPendingRequest gates preemption/cancellation/pause to a safe
// point (spec.md §4.9), matching AeFileInstructionIsPendingRequest.
type Instruction interface {
	Process(ctx context.Context) (done bool, err ErrorCode)
	IsPendingRequest() bool
	Notify(event NotifyEvent)
}

// Package is one FileTransfer.Start job: an ordered instruction list run
// to completion or first error, reported back via PackageStatus fragments
// (jobId/sc/ec/ii, per AeFileTransfer.h's attribute names).
type Package struct {
	JobID       string
	PublishedID string
	DeviceID    int32
	ConfigID    int32
	Priority    int32

	Instructions []Instruction
	Current      int

	Status Status
	Error  ErrorCode
}

// instructionIndex is the "ii" PackageStatus attribute: the 1-based index
// of the instruction currently executing (or last attempted).
func (p *Package) instructionIndex() int {
	if p.Current >= len(p.Instructions) {
		return len(p.Instructions)
	}
	return p.Current + 1
}

// advance runs the current instruction one step. Called by the engine once
// per tick for the package occupying the scheduling head.
func (p *Package) advance(ctx context.Context) {
	if p.Current >= len(p.Instructions) {
		p.Status = StatusSuccess
		return
	}
	instr := p.Instructions[p.Current]
	done, errCode := instr.Process(ctx)
	if errCode != ErrNone {
		p.Status = StatusError
		p.Error = errCode
		return
	}
	if done {
		p.Current++
		if p.Current >= len(p.Instructions) {
			p.Status = StatusSuccess
		}
	}
}

// isPendingRequest reports whether the current instruction is at a point
// where preemption/pause/cancellation must wait (spec.md §4.9 "safe point").
func (p *Package) isPendingRequest() bool {
	if p.Current >= len(p.Instructions) {
		return false
	}
	return p.Instructions[p.Current].IsPendingRequest()
}

func (p *Package) notifyCurrent(event NotifyEvent) {
	if p.Current < len(p.Instructions) {
		p.Instructions[p.Current].Notify(event)
	}
}
