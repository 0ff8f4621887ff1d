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
	"crypto/tls"
	"fmt"
	"strconv"
	"time"

	"github.com/axeda/agentembedded/httptxn"
	"github.com/axeda/agentembedded/soap"
	"github.com/axeda/agentembedded/useragent"
)

// SinkFactory builds the Sink a Download instruction writes into, given
// the <Download> child element (name/path/destination attributes) — left
// to the embedding application since "where a downloaded file lands" is
// entirely target-specific.
type SinkFactory interface {
	NewSink(download *soap.Element) (Sink, error)
}

// SourceFactory builds the FileSource an Upload instruction reads from,
// given the <Upload> child element (FileList/File/Destination children
// per AeFileTransfer.h).
type SourceFactory interface {
	NewSource(upload *soap.Element) (FileSource, error)
}

// DefaultBuilder turns a FileTransfer.Start method element into the
// instruction list Engine.StartFileTransfer needs, recognizing the
// built-in <Download>/<Upload>/<Package.Rs> children (AE_FILETRANSFER_
// DOWNLOAD/UPLOAD/AE_PACKAGE_RESTART in AeFileTransfer.h).
type DefaultBuilder struct {
	Agent     *useragent.UserAgent
	Auth      httptxn.Authenticator
	ProxyAuth httptxn.Authenticator
	Proxy     *httptxn.ProxyOverride
	TLSConfig *tls.Config

	Sinks   SinkFactory
	Sources SourceFactory
	Restart Restarter

	IsGateway bool
}

// Build implements the Builder func type via method value (b.Build).
func (b *DefaultBuilder) Build(method *soap.Element) ([]Instruction, error) {
	var instrs []Instruction
	for _, child := range method.Children {
		switch child.Name {
		case "Download":
			sink, err := b.Sinks.NewSink(child)
			if err != nil {
				return nil, err
			}
			instrs = append(instrs, &Download{
				Agent:         b.Agent,
				Auth:          b.Auth,
				ProxyAuth:     b.ProxyAuth,
				Proxy:         b.Proxy,
				TLSConfig:     b.TLSConfig,
				URL:           child.Attrs["url"],
				Compression:   child.Attrs["compression"] == "1",
				ChunkChecksum: child.Attrs["checksum"],
				RetryCount:    atoiDefault(child.Attrs["retryCount"], 3),
				MinDelay:      durationOf(child.Attrs["retryMinDelay"], time.Second),
				MaxDelay:      durationOf(child.Attrs["retryMaxDelay"], 30*time.Second),
				Sink:          sink,
			})
		case "Upload":
			src, err := b.Sources.NewSource(child)
			if err != nil {
				return nil, err
			}
			instrs = append(instrs, &Upload{
				Agent:             b.Agent,
				Auth:              b.Auth,
				ProxyAuth:         b.ProxyAuth,
				Proxy:             b.Proxy,
				TLSConfig:         b.TLSConfig,
				URL:               child.Attrs["url"],
				ClientID:          child.Attrs["clientId"],
				Compression:       child.Attrs["compression"] == "1",
				RequireOverallMD5: child.Attrs["requireOverallMD5"] == "1",
				ChunkSize:         atoiDefault(child.Attrs["chunkSize"], 64*1024),
				Source:            src,
			})
		case "Package.Rs":
			instrs = append(instrs, &AgentRestart{
				Restarter: b.Restart,
				Hard:      child.ChildText("ha") == "1",
				IsGateway: b.IsGateway,
			})
		}
	}
	if len(instrs) == 0 {
		return nil, fmt.Errorf("filetransfer: no recognized instruction in method %q", method.Name)
	}
	return instrs, nil
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func durationOf(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Millisecond
}
