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
)

// invoke routes a single method element to its built-in handler, falling
// back to the registered catch-all for anything the table doesn't name
// (spec.md §4.8). The method-name table mirrors AeDRMSOAP.c's dispatch
// switch (SetTag/SetTime/Restart/FileTransfer.*/RemoteSession.Start); a
// handler left nil is treated as "not configured", not a fatal error, so
// one agent build can opt out of a capability (e.g. no remote sessions)
// without the dispatcher itself failing.
func (d *Dispatcher) invoke(ctx context.Context, deviceID int32, method *Element) HandlerResult {
	switch method.Name {
	case "SetTag":
		return d.invokeSetTag(ctx, deviceID, method)
	case "SetTime":
		return d.invokeSetTime(ctx, deviceID, method)
	case "Restart":
		return d.invokeRestart(ctx, deviceID, method)
	case "FileTransfer.Start":
		return d.invokeFileTransferStart(ctx, deviceID, method)
	case "FileTransfer.Stop":
		return d.invokeFileTransferStop(ctx, deviceID, method, false)
	case "FileTransfer.Pause":
		return d.invokeFileTransferStop(ctx, deviceID, method, true)
	case "RemoteSession.Start":
		return d.invokeRemoteSessionStart(ctx, deviceID, method, false)
	case "RemoteSession.StartSecure":
		return d.invokeRemoteSessionStart(ctx, deviceID, method, true)
	default:
		if d.CatchAll == nil {
			return unsupported("no handler registered for method " + method.Name)
		}
		return d.CatchAll(ctx, deviceID, method)
	}
}

// setTag parameter children are named n(ame)/v(alue)/t(ype), matching the
// two-letter attribute idiom emessage/content.go establishes for the same
// data-item concept on the outbound side.
func (d *Dispatcher) invokeSetTag(ctx context.Context, deviceID int32, method *Element) HandlerResult {
	if d.TagSetter == nil {
		return unsupported("no TagSetter configured")
	}
	name := method.ChildText("n")
	value := method.ChildText("v")
	dataType := method.ChildText("t")
	if name == "" {
		return failed("SetTag: missing tag name")
	}
	if err := d.TagSetter.SetTag(ctx, deviceID, name, value, dataType); err != nil {
		return failed(err.Error())
	}
	return ok()
}

// SetTime carries an ISO-8601 timestamp child and an optional minutes-east
// timezone offset attribute, following the registration/ping timestamp
// convention already used throughout emessage.
func (d *Dispatcher) invokeSetTime(ctx context.Context, deviceID int32, method *Element) HandlerResult {
	if d.TimeSetter == nil {
		return unsupported("no TimeSetter configured")
	}
	raw := method.ChildText("t")
	when, err := time.Parse("2006-01-02T15:04:05-07:00", raw)
	if err != nil {
		return failed("SetTime: malformed timestamp " + raw)
	}
	tz := 0
	if v := method.Attrs["tz"]; v != "" {
		if n, convErr := strconv.Atoi(v); convErr == nil {
			tz = n
		}
	}
	if err := d.TimeSetter.SetTime(ctx, deviceID, when, tz); err != nil {
		return failed(err.Error())
	}
	return ok()
}

func (d *Dispatcher) invokeRestart(ctx context.Context, deviceID int32, method *Element) HandlerResult {
	if d.Restarter == nil {
		return unsupported("no Restarter configured")
	}
	hard := method.Attrs["hard"] == "1"
	if err := d.Restarter.Restart(ctx, deviceID, hard); err != nil {
		return failed(err.Error())
	}
	return ok()
}

func (d *Dispatcher) invokeFileTransferStart(ctx context.Context, deviceID int32, method *Element) HandlerResult {
	if d.FileTransfer == nil {
		return unsupported("no FileTransferHandler configured")
	}
	if err := d.FileTransfer.StartFileTransfer(ctx, deviceID, d.ConfigID, method); err != nil {
		return failed(err.Error())
	}
	return ok()
}

func (d *Dispatcher) invokeFileTransferStop(ctx context.Context, deviceID int32, method *Element, pause bool) HandlerResult {
	if d.FileTransfer == nil {
		return unsupported("no FileTransferHandler configured")
	}
	if err := d.FileTransfer.StopFileTransfer(ctx, deviceID, method, pause); err != nil {
		return failed(err.Error())
	}
	return ok()
}

func (d *Dispatcher) invokeRemoteSessionStart(ctx context.Context, deviceID int32, method *Element, secure bool) HandlerResult {
	if d.RemoteSession == nil {
		return unsupported("no RemoteSessionHandler configured")
	}
	if err := d.RemoteSession.StartRemoteSession(ctx, deviceID, d.ConfigID, method, secure); err != nil {
		return failed(err.Error())
	}
	return ok()
}
