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

package remotesession

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/axeda/agentembedded/emessage"
	"github.com/axeda/agentembedded/msgqueue"
	"github.com/axeda/agentembedded/transport"
)

// probeMagic is the 4-byte handshake AeRemoteDesktopProbe sends before a
// header is returned (spec.md §4.11).
var probeMagic = [4]byte{0x4C, 0x39, 0xDB, 0xAD}

// probeTimeout / probePort mirror AE_REMOTE_DESKTOP_PROBE_TIMEOUT/_PORT.
const (
	probeTimeout = 10 * time.Second
	probePort    = 8331
)

// probeHeader is the reply AeRemoteDesktopProbe.c's state machine builds
// one field at a time (Initial → Connecting → Connected → QuerySent →
// HeaderReceived → AppNameReceived): name length, protocol version, the
// RFB-compatibility flag, and the platform string's length, in the order
// spec.md §4.11 lists them. The flag is a single byte; the other three
// fields are big-endian int32.
type probeHeader struct {
	NameLength     int32
	Version        int32
	RFBCompatible  bool
	PlatformLength int32
}

const probeHeaderSize = 4 + 4 + 1 + 4

// DesktopProbe discovers the remote-desktop application listening on the
// device's probe port before a RemoteSession picks a transport, used only
// when the server announces an "interfacename" of "desktop" (spec.md
// §4.11 "Desktop-probe sub-task").
type DesktopProbe struct {
	Peer  transport.Endpoint
	Queue *msgqueue.Queue

	DeviceID int32
	ConfigID int32
}

// Run opens the probe socket, performs the magic-byte handshake, reads
// back the application descriptor, and posts a <DAv> fragment to the
// message queue. A probe failure is not fatal to the session — the
// caller proceeds to normal transport selection regardless.
func (p *DesktopProbe) Run(ctx context.Context) error {
	conn := transport.New(p.Peer, probeTimeout)
	if err := conn.Connect(ctx); err != nil {
		return err
	}
	defer conn.Disconnect()

	if err := conn.Send(ctx, probeMagic[:]); err != nil {
		return err
	}

	hdrBuf := make([]byte, probeHeaderSize)
	if err := receiveFull(ctx, conn, hdrBuf); err != nil {
		return err
	}
	hdr := decodeProbeHeader(hdrBuf)

	name := make([]byte, hdr.NameLength)
	if hdr.NameLength > 0 {
		if err := receiveFull(ctx, conn, name); err != nil {
			return err
		}
	}
	platform := make([]byte, hdr.PlatformLength)
	if hdr.PlatformLength > 0 {
		if err := receiveFull(ctx, conn, platform); err != nil {
			return err
		}
	}

	frag := emessage.DesktopApplication(string(name), fmt.Sprintf("%d", hdr.Version), string(platform), hdr.RFBCompatible)
	ts := emessage.FormatTimestamp(time.Now(), emessage.TimestampDevice)
	content := fmt.Sprintf(`<EMessage v="1.0" t="%s">%s</EMessage>`, ts, frag)

	return p.Queue.Add(&msgqueue.Item{
		Type:     msgqueue.ItemMisc,
		DeviceID: p.DeviceID,
		ConfigID: p.ConfigID,
		Content:  []byte(content),
		Priority: msgqueue.PriorityNormal,
	})
}

func decodeProbeHeader(b []byte) probeHeader {
	return probeHeader{
		NameLength:     int32(binary.BigEndian.Uint32(b[0:4])),
		Version:        int32(binary.BigEndian.Uint32(b[4:8])),
		RFBCompatible:  b[8] != 0,
		PlatformLength: int32(binary.BigEndian.Uint32(b[9:13])),
	}
}

func receiveFull(ctx context.Context, conn *transport.Connection, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := conn.Receive(ctx, buf[total:])
		total += n
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrUnexpectedEOF
		}
	}
	return nil
}
