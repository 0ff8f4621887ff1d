/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

// Package aeerr implements the agent's error taxonomy: every failure path in
// the agent maps to exactly one CodeError, grouped by the kind families of
// the Axeda wire protocol (transport, HTTP, TLS, SOCKS, file-transfer,
// internal).
package aeerr

// CodeError is a numeric error classification, grouped into families by
// value range so a caller can test "is this a transport error at all"
// without enumerating every member.
type CodeError uint16

const (
	CodeNone CodeError = 0

	// Transport family (1xxx)
	TransportGeneral CodeError = 1000 + iota
	TransportTimeout
	TransportWouldBlock
	TransportUnknownHost
	TransportConnLost
	TransportConnRefused
	TransportConnReset
	TransportConnAborted
	TransportNotConnected
	TransportNetworkUnreachable
	TransportHostUnreachable
	TransportBadURL
)

const (
	// HTTP family (2xxx)
	HTTPBadResponse CodeError = 2000 + iota
	HTTPAuthFailed
	HTTPAuthUnsupported
)

const (
	// TLS family (3xxx)
	TLSGeneral CodeError = 3000 + iota
	TLSWeakerCipherNegotiated
	TLSCertUnknownIssuer
	TLSCertInvalid
	TLSCertValidationFailed
	TLSHandshakeFailed
)

const (
	// SOCKS family (4xxx)
	SOCKSWrongVersion CodeError = 4000 + iota
	SOCKSAuthFailed
	SOCKSGeneral
	SOCKSNotAllowedByRuleset
	SOCKSNetworkUnreachable
	SOCKSHostUnreachable
	SOCKSConnRefused
	SOCKSTTLExpired
	SOCKSCommandUnsupported
	SOCKSAddressTypeUnsupported
)

const (
	// FileTransfer family (5xxx)
	FileTransferBadFormat CodeError = 5000 + iota
	FileTransferUnsupportedFunction
	FileTransferNameNotFound
	FileTransferDependencyInvalid
	FileTransferNoFilesFound
	FileTransferSomeFilesNotFound
	FileTransferDownloadExecutionFailure
	FileTransferArchiveError
	FileTransferReadError
	FileTransferHTTPStatus
	FileTransferChunkChecksum
	FileTransferFileChecksum
	FileTransferUploadFileMissing
	FileTransferInvalidDirectory
	FileTransferRestartOfGateway
	FileTransferMultifileUncompressed
)

const (
	// Internal family (6xxx)
	InternalMemory CodeError = 6000 + iota
	InternalInvalidArgument
	InternalExists
	InternalInternal
)

// family names the CodeError's group, used by the log subsystem to
// categorize entries: transport, TLS and SOCKS codes are "network", HTTP
// codes "server", then "file-transfer", "internal", or "unknown".
func (c CodeError) family() string {
	switch {
	case c >= 1000 && c < 2000:
		return "network"
	case c >= 2000 && c < 3000:
		return "server"
	case c >= 3000 && c < 4000:
		return "network"
	case c >= 4000 && c < 5000:
		return "network"
	case c >= 5000 && c < 6000:
		return "file-transfer"
	case c >= 6000 && c < 7000:
		return "internal"
	default:
		return "unknown"
	}
}

var codeStrings = map[CodeError]string{
	TransportGeneral:            "transport: general failure",
	TransportTimeout:            "transport: operation timed out",
	TransportWouldBlock:         "transport: operation would block",
	TransportUnknownHost:        "transport: unknown host",
	TransportConnLost:           "transport: connection lost",
	TransportConnRefused:        "transport: connection refused",
	TransportConnReset:          "transport: connection reset by peer",
	TransportConnAborted:        "transport: connection aborted",
	TransportNotConnected:       "transport: not connected",
	TransportNetworkUnreachable: "transport: network unreachable",
	TransportHostUnreachable:    "transport: host unreachable",
	TransportBadURL:             "transport: malformed URL",

	HTTPBadResponse:     "http: bad response",
	HTTPAuthFailed:      "http: authentication failed",
	HTTPAuthUnsupported: "http: unsupported authentication scheme",

	TLSGeneral:               "tls: general failure",
	TLSWeakerCipherNegotiated: "tls: weaker cipher negotiated than required",
	TLSCertUnknownIssuer:     "tls: certificate has unknown issuer",
	TLSCertInvalid:           "tls: certificate invalid",
	TLSCertValidationFailed:  "tls: certificate validation failed",
	TLSHandshakeFailed:       "tls: handshake failed",

	SOCKSWrongVersion:           "socks: wrong version",
	SOCKSAuthFailed:             "socks: authentication failed",
	SOCKSGeneral:                "socks: general failure",
	SOCKSNotAllowedByRuleset:    "socks: not allowed by ruleset",
	SOCKSNetworkUnreachable:     "socks: network unreachable",
	SOCKSHostUnreachable:        "socks: host unreachable",
	SOCKSConnRefused:            "socks: connection refused",
	SOCKSTTLExpired:             "socks: TTL expired",
	SOCKSCommandUnsupported:     "socks: command not supported",
	SOCKSAddressTypeUnsupported: "socks: address type not supported",

	FileTransferBadFormat:                 "file-transfer: bad instruction format",
	FileTransferUnsupportedFunction:       "file-transfer: unsupported function",
	FileTransferNameNotFound:              "file-transfer: name not found",
	FileTransferDependencyInvalid:         "file-transfer: dependency invalid",
	FileTransferNoFilesFound:              "file-transfer: no files found",
	FileTransferSomeFilesNotFound:         "file-transfer: some files not found",
	FileTransferDownloadExecutionFailure:  "file-transfer: download execution failure",
	FileTransferArchiveError:              "file-transfer: archive error",
	FileTransferReadError:                 "file-transfer: read error",
	FileTransferHTTPStatus:                "file-transfer: unexpected HTTP status",
	FileTransferChunkChecksum:             "file-transfer: chunk checksum mismatch",
	FileTransferFileChecksum:              "file-transfer: file checksum mismatch",
	FileTransferUploadFileMissing:         "file-transfer: upload file missing",
	FileTransferInvalidDirectory:          "file-transfer: invalid directory",
	FileTransferRestartOfGateway:          "file-transfer: restart of gateway not permitted",
	FileTransferMultifileUncompressed:     "file-transfer: multiple files require compression",

	InternalMemory:          "internal: memory allocation failure",
	InternalInvalidArgument: "internal: invalid argument",
	InternalExists:          "internal: already exists",
	InternalInternal:        "internal: internal error",
}

// String returns the human-readable string for the code, fetched from the
// error-string table per spec.md §7. Unknown codes render as "unknown error".
func (c CodeError) String() string {
	if s, ok := codeStrings[c]; ok {
		return s
	}
	return "unknown error"
}
