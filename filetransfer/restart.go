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

import "context"

// Restarter performs the actual device/gateway restart; declared
// consumer-side since "restart" means something different on every
// embedded target (reboot syscall, watchdog trigger, process re-exec).
type Restarter interface {
	Restart(ctx context.Context, hard bool) error
}

// AgentRestart is the C10 agent-restart instruction: single-shot, never
// pending, parses the hard/soft flag from the method's <ha> child
// (AE_PACKAGE_RESTART = "Package.Rs" in AeFileTransfer.h) and invokes the
// registered restart callback exactly once.
type AgentRestart struct {
	Restarter Restarter
	Hard      bool

	// IsGateway refuses the restart (AeFileTransfer.h's
	// AeRESTART_OF_GATEWAY_DEVICE): when set, Process reports
	// ErrRestartOfGateway and never calls Restarter.
	IsGateway bool
}

func (r *AgentRestart) IsPendingRequest() bool   { return false }
func (r *AgentRestart) Notify(event NotifyEvent) {}

func (r *AgentRestart) Process(ctx context.Context) (bool, ErrorCode) {
	if r.IsGateway {
		return true, ErrRestartOfGateway
	}
	if r.Restarter == nil {
		return true, ErrUnsupportedFunction
	}
	if err := r.Restarter.Restart(ctx, r.Hard); err != nil {
		return true, ErrFailed
	}
	return true, ErrNone
}
