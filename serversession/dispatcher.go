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

package serversession

import (
	"context"
	"time"

	"github.com/axeda/agentembedded/msgqueue"
)

// StatusFragment is one already-rendered XML child element (typically an
// emessage.SoapStatus or emessage.PackageStatus fragment) a Dispatch call
// wants enqueued back to the device's outbound queue, at the given
// priority — mirrors AeDRMSOAPProcessResponse's enqueuing of
// SoapCommandStatus items once each dispatched method completes.
type StatusFragment struct {
	Fragment string
	Priority msgqueue.Priority
}

// DispatchResult is what a round of method dispatch against one response
// body produced.
type DispatchResult struct {
	// NewPingRate is non-zero when the server's response changed the
	// device's ping interval (spec.md §4.7: "On device registration
	// success ... invoke the configured ping-rate-update callback").
	NewPingRate time.Duration
	Status      []StatusFragment
}

// Dispatcher is the consumer-side interface serversession uses to hand a
// response body to C8's SOAP method dispatch table, declared here (rather
// than imported from package soap) so serversession never depends on
// soap's parsing internals — the same consumer-side-interface pattern
// httptxn uses for Authenticator/Pool.
type Dispatcher interface {
	Dispatch(ctx context.Context, deviceID int32, body []byte) (DispatchResult, error)
}
