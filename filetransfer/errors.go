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

import "github.com/axeda/agentembedded/internal/aeerr"

// ErrorCode mirrors AeFileTransferError, the package-status error code
// reported to the server alongside StatusError (AeFileTransfer.h).
type ErrorCode int

const (
	ErrNone ErrorCode = iota
	ErrFailed
	ErrBadFormat
	ErrUnknownMethod
	ErrUnsupportedFunction
	ErrNameNotFound
	ErrDependencyInvalid
	ErrNoFilesFound
	ErrSomeFilesNotFound
	ErrDownloadExecutionFailure
	ErrArchiveError
	ErrReadError
	ErrHTTPStatus
	ErrChunkChecksum
	ErrConnectionFailure
	ErrSOCKSFailure
	ErrHTTPFailure
	ErrSSLFailure
	ErrAgentShutdown
	ErrFileChecksum
	ErrUploadFileMissing
	ErrInvalidDirectory
	ErrRestartOfGateway
	ErrMultifileUncompressed
)

// translateError maps a transport/HTTP/TLS aeerr.CodeError onto the
// ErrorCode the server expects in a PackageStatus report. The source's
// AeFileTransferTranslateError always returned AeHTTP_FAILURE regardless
// of the underlying cause (spec.md §9 Open Question #1); SPEC_FULL calls
// for a real table instead, so every transport/HTTP family member this
// agent can actually produce gets its own code.
func translateError(err error) ErrorCode {
	ce, ok := err.(aeerr.Error)
	if !ok {
		return ErrFailed
	}
	switch {
	case ce.IsCode(aeerr.TransportTimeout), ce.IsCode(aeerr.TransportConnLost),
		ce.IsCode(aeerr.TransportConnReset), ce.IsCode(aeerr.TransportConnAborted):
		return ErrDownloadExecutionFailure
	case ce.IsCode(aeerr.TransportConnRefused), ce.IsCode(aeerr.TransportNotConnected),
		ce.IsCode(aeerr.TransportNetworkUnreachable), ce.IsCode(aeerr.TransportHostUnreachable),
		ce.IsCode(aeerr.TransportUnknownHost), ce.IsCode(aeerr.TransportGeneral),
		ce.IsCode(aeerr.TransportBadURL):
		return ErrConnectionFailure
	case ce.GetCode() >= aeerr.SOCKSWrongVersion && ce.GetCode() <= aeerr.SOCKSAddressTypeUnsupported:
		return ErrSOCKSFailure
	case ce.GetCode() >= aeerr.TLSGeneral && ce.GetCode() <= aeerr.TLSHandshakeFailed:
		return ErrSSLFailure
	case ce.IsCode(aeerr.HTTPBadResponse):
		return ErrHTTPStatus
	case ce.IsCode(aeerr.HTTPAuthFailed), ce.IsCode(aeerr.HTTPAuthUnsupported):
		return ErrHTTPFailure
	case ce.IsCode(aeerr.FileTransferChunkChecksum):
		return ErrChunkChecksum
	case ce.IsCode(aeerr.FileTransferFileChecksum):
		return ErrFileChecksum
	default:
		return ErrFailed
	}
}
