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

package soap

import (
	"context"
	"strconv"
	"time"

	"github.com/axeda/agentembedded/emessage"
	"github.com/axeda/agentembedded/internal/aeerr"
	"github.com/axeda/agentembedded/msgqueue"
	"github.com/axeda/agentembedded/serversession"
)

// HandlerResult is what a single method dispatch decided: the status-code/
// reason pair that becomes a SoapCommandStatus fragment (spec.md §4.8).
// StatusCode 0 is success; non-zero values are handler-defined failure
// codes (e.g. aeerr.CodeError values), mirroring the source's AeError
// return-code convention carried into AeDRMSOAPCommandStatus.iStatus.
type HandlerResult struct {
	StatusCode int
	Reason     string
}

func ok() HandlerResult                    { return HandlerResult{StatusCode: 0} }
func failed(reason string) HandlerResult   { return HandlerResult{StatusCode: 1, Reason: reason} }
func unsupported(reason string) HandlerResult { return HandlerResult{StatusCode: 2, Reason: reason} }

// TagSetter handles the built-in SetTag method (AeDRMSetOnCommandSetTag).
type TagSetter interface {
	SetTag(ctx context.Context, deviceID int32, name, value, dataType string) error
}

// TimeSetter handles the built-in SetTime method (AeDRMSetOnCommandSetTime).
type TimeSetter interface {
	SetTime(ctx context.Context, deviceID int32, when time.Time, tzOffsetMinutes int) error
}

// Restarter handles the built-in Restart method (AeDRMSetOnCommandRestart).
type Restarter interface {
	Restart(ctx context.Context, deviceID int32, hard bool) error
}

// FileTransferHandler handles FileTransfer.Start/Stop/Pause, declared
// consumer-side (like httptxn.Authenticator) so soap never imports
// filetransfer. method carries whatever package/instruction parameters
// the server sent; filetransfer's own parser interprets them.
type FileTransferHandler interface {
	StartFileTransfer(ctx context.Context, deviceID, configID int32, method *Element) error
	StopFileTransfer(ctx context.Context, deviceID int32, method *Element, pause bool) error
}

// RemoteSessionHandler handles RemoteSession.Start, declared consumer-side
// so soap never imports remotesession.
type RemoteSessionHandler interface {
	StartRemoteSession(ctx context.Context, deviceID, configID int32, method *Element, secure bool) error
}

// CatchAll handles any method name the built-in table doesn't recognize
// (spec.md §4.8: "otherwise dispatch to the user-registered catch-all").
type CatchAll func(ctx context.Context, deviceID int32, method *Element) HandlerResult

// Dispatcher implements serversession.Dispatcher. ConfigID identifies the
// server config this dispatcher's responses arrive on, threaded into the
// FileTransfer/RemoteSession handlers the same way AeDRMSOAPCommandStatus
// pairs a device id with a server/config id.
type Dispatcher struct {
	ConfigID int32

	TagSetter     TagSetter
	TimeSetter    TimeSetter
	Restarter     Restarter
	FileTransfer  FileTransferHandler
	RemoteSession RemoteSessionHandler
	CatchAll      CatchAll

	TimestampMode emessage.TimestampMode
}

// Dispatch implements serversession.Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, deviceID int32, body []byte) (serversession.DispatchResult, error) {
	root, err := parseBundle(body)
	if err != nil {
		return serversession.DispatchResult{}, aeerr.New(aeerr.HTTPBadResponse, "malformed SOAP response bundle", err)
	}
	if root.Name != "SoapResponseBundle" {
		return serversession.DispatchResult{}, aeerr.Newf(aeerr.HTTPBadResponse, "unexpected root element %q", root.Name)
	}

	var result serversession.DispatchResult
	if pr, ok := root.Attrs["pr"]; ok {
		if secs, convErr := strconv.Atoi(pr); convErr == nil && secs > 0 {
			result.NewPingRate = time.Duration(secs) * time.Second
		}
	}

	for _, env := range root.Children {
		if env.Name != "Envelope" {
			continue
		}
		for _, envBody := range env.Children {
			if envBody.Name != "Body" {
				continue
			}
			for _, method := range envBody.Children {
				result.Status = append(result.Status, d.dispatchOne(ctx, deviceID, method))
			}
		}
	}
	return result, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, deviceID int32, method *Element) serversession.StatusFragment {
	commandID := method.Attrs["id"]
	userID := method.Attrs["user"]

	res := d.invoke(ctx, deviceID, method)

	ts := emessage.FormatTimestamp(time.Now(), d.TimestampMode)
	frag := emessage.SoapStatus(ts, commandID, res.StatusCode, res.Reason, userID)
	return serversession.StatusFragment{Fragment: frag, Priority: msgqueue.PriorityNormal}
}
