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
	"archive/tar"
	"bytes"
	"context"
	"crypto/md5"
	"crypto/tls"
	"encoding/hex"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/axeda/agentembedded/httptxn"
	"github.com/axeda/agentembedded/useragent"
)

// FileSource enumerates the files an Upload instruction should send,
// mirroring the server-specified file list plus the source's user-filter
// hook for which files actually exist/qualify (AeFileTransfer.h's
// FileList/File/Destination attributes).
type FileSource interface {
	Files() ([]string, error)
}

// Upload is the C10 Upload instruction: enumerate files, optionally bundle
// as tar+gzip, and POST the result in fixed-size chunks carrying
// position/total/checksum/compression URL parameters, with the overall
// MD5 in Content-MD5 on the final chunk when required.
type Upload struct {
	Agent     *useragent.UserAgent
	Auth      httptxn.Authenticator
	ProxyAuth httptxn.Authenticator
	Proxy     *httptxn.ProxyOverride
	TLSConfig *tls.Config

	URL               string
	ClientID          string
	Compression       bool
	RequireOverallMD5 bool
	ChunkSize         int

	Source FileSource

	built    bool
	body     []byte
	sent     int
	total    int
	overall  [16]byte
	pending  bool
}

func (u *Upload) IsPendingRequest() bool { return u.pending }
func (u *Upload) Notify(event NotifyEvent) {}

// Process builds the upload payload on first call (tar+gzip if
// Compression, raw concatenation otherwise — single-file uncompressed
// transfers are fine per AeFileTransfer.h's AeMULTIFILE_UNCOMPRESSED
// restriction, which only forbids multi-file transfers without
// compression) and then emits it one chunk per call until exhausted.
func (u *Upload) Process(ctx context.Context) (bool, ErrorCode) {
	if !u.built {
		files, err := u.Source.Files()
		if err != nil {
			return true, ErrReadError
		}
		if len(files) == 0 {
			return true, ErrNoFilesFound
		}
		if len(files) > 1 && !u.Compression {
			return true, ErrMultifileUncompressed
		}

		payload, err := u.buildPayload(files)
		if err != nil {
			return true, ErrArchiveError
		}
		u.body = payload
		u.total = len(payload)
		u.overall = md5.Sum(payload)
		u.built = true
		if u.ChunkSize <= 0 {
			u.ChunkSize = 64 * 1024
		}
	}

	if u.sent >= u.total && u.total > 0 {
		return true, ErrNone
	}

	end := u.sent + u.ChunkSize
	if end > u.total {
		end = u.total
	}
	chunk := u.body[u.sent:end]
	final := end >= u.total

	if err := u.postChunk(ctx, chunk, u.sent, final); err != nil {
		return true, translateError(err)
	}
	u.sent = end
	return final, ErrNone
}

func (u *Upload) buildPayload(files []string) ([]byte, error) {
	if !u.Compression {
		return os.ReadFile(files[0])
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0644}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(data); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (u *Upload) postChunk(ctx context.Context, chunk []byte, position int, final bool) error {
	parsed, err := url.Parse(u.URL)
	if err != nil {
		return err
	}
	peer, _, useTLS := endpointOf(parsed)

	q := parsed.Query()
	q.Set("position", strconv.Itoa(position))
	q.Set("total", strconv.Itoa(u.total))
	if u.Compression {
		q.Set("compression", "gzip")
	}
	if u.ClientID != "" {
		q.Set("clientId", u.ClientID)
	}
	checksum := md5.Sum(chunk)
	q.Set("checksum", hex.EncodeToString(checksum[:]))
	path := parsed.Path + "?" + q.Encode()

	req := &httptxn.Request{
		Peer:        peer,
		Path:        path,
		Method:      "POST",
		Version:     "1.1",
		TLS:         useTLS,
		Persistent:  true,
		Timeout:     30 * time.Second,
		Proxy:       u.Proxy,
		Headers:     httptxn.NewHeader(),
		Body:        chunk,
		ContentType: "application/octet-stream",
	}
	if final && u.RequireOverallMD5 {
		req.Headers.Set("Content-MD5", hex.EncodeToString(u.overall[:]))
	}

	u.pending = true
	defer func() { u.pending = false }()
	return u.Agent.SyncExecute(ctx, []*httptxn.Request{req}, u.Auth, u.ProxyAuth, u.TLSConfig)
}
