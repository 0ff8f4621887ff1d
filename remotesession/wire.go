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

// Package remotesession implements C11 RemoteSession: a multiplexed
// channel session over a direct TCP/TLS transport or, on fallback, two
// long-poll HTTP requests, driven by two cooperative state machines (the
// transport thread and the channel thread) sharing one send path.
// Grounded on original_source/.../AeRemoteSession.{c,h} for the wire
// header layout and command/error vocabulary.
package remotesession

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ProtocolVersion is the only session-start value this agent speaks
// (aProtocolVersion in AeRemoteSession.h).
const ProtocolVersion = 1

// MsgType mirrors aProtocolData/aProtocolCommand/aProtocolUser.
type MsgType int32

const (
	MsgData MsgType = iota + 1
	MsgCommand
	MsgUser
)

// Command mirrors aCmdXxx.
type Command int32

const (
	CmdSessionStart Command = iota + 1
	CmdSessionStop
	CmdPing
	CmdPingResponse
	CmdOpenSocket
	CmdCloseSocket
	CmdError
)

// ErrorCode mirrors aErrorXxx, the codes sent to the server in a Command
// error frame.
type ErrorCode int32

const (
	ErrRefused ErrorCode = 1
	ErrUnreachable ErrorCode = 2
	ErrAgain ErrorCode = 3
	ErrInternal ErrorCode = 4
	ErrAccess ErrorCode = 10
	ErrInuse ErrorCode = 11
)

// HeaderSize is the fixed 16-byte wire header: four big-endian int32
// fields (msgType, msgLength, msgChannel, padding), matching
// _AeRemoteSessionHeader's four AeInt32 members.
const HeaderSize = 16

// Header is one message's framing: type, body length, channel id, and an
// unused alignment field the source carries but never reads.
type Header struct {
	Type    MsgType
	Length  int32
	Channel int32
	padding int32
}

// WriteTo encodes the header as 16 big-endian bytes.
func (h Header) WriteTo(w io.Writer) error {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(h.Type))
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.Length))
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.Channel))
	binary.BigEndian.PutUint32(buf[12:16], uint32(h.padding))
	_, err := w.Write(buf[:])
	return err
}

// ReadHeader decodes a 16-byte wire header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return Header{
		Type:    MsgType(binary.BigEndian.Uint32(buf[0:4])),
		Length:  int32(binary.BigEndian.Uint32(buf[4:8])),
		Channel: int32(binary.BigEndian.Uint32(buf[8:12])),
		padding: int32(binary.BigEndian.Uint32(buf[12:16])),
	}, nil
}

// Command frame body: a 4-byte type discriminant followed by either one
// int32 parameter (session-start/open-socket/close-socket/ping) or an
// int32 code plus NUL-terminated text (error), matching
// _AeRemoteSessionCommand's union.
type CommandFrame struct {
	Type  Command
	Param int32
	Code  ErrorCode
	Text  string
}

func (c CommandFrame) encode() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(c.Type))
	if c.Type == CmdError {
		binary.BigEndian.PutUint32(buf[4:8], uint32(c.Code))
		buf = append(buf, []byte(c.Text)...)
		buf = append(buf, 0)
		return buf
	}
	binary.BigEndian.PutUint32(buf[4:8], uint32(c.Param))
	return buf
}

func decodeCommand(body []byte) (CommandFrame, error) {
	if len(body) < 8 {
		return CommandFrame{}, fmt.Errorf("remotesession: short command frame (%d bytes)", len(body))
	}
	typ := Command(binary.BigEndian.Uint32(body[0:4]))
	if typ == CmdError {
		code := ErrorCode(binary.BigEndian.Uint32(body[4:8]))
		text := body[8:]
		if n := indexByte(text, 0); n >= 0 {
			text = text[:n]
		}
		return CommandFrame{Type: typ, Code: code, Text: string(text)}, nil
	}
	return CommandFrame{Type: typ, Param: int32(binary.BigEndian.Uint32(body[4:8]))}, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
