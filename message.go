/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpflow

import (
	"io"
	"net/url"

	"github.com/badu/httpflow/hdr"
)

// Request is the immutable input the engine is given: method, URI,
// version and headers. The engine never mutates a Request in place; every
// edit (injected headers, rewritten method/URI for a redirect) goes
// through an AmendedRequest overlay instead.
//
// Body is an optional informational placeholder only — httpflow never
// reads from it. Body bytes flow into the engine exclusively through
// BodyWriter.Write/Call.Write, which the caller drives with whatever
// buffers it likes (a file, a pipe, an in-memory slice).
type Request struct {
	Method  string
	URI     *url.URL
	Version Version
	Header  hdr.Header
	Body    io.Reader
}

// Response is what the engine produces once ResponseParser has consumed a
// full status line and header block from the caller's input buffer. Its
// header name/value bytes are detached copies — the engine never borrows
// the caller's buffer past the call that produced the Response.
type Response struct {
	Version    Version
	StatusCode int
	Status     string
	Header     hdr.Header
}

// ProtoAtLeast reports whether the response's version is at least
// major.minor. Only major 1 is meaningful here; kept for symmetry with the
// net/http convention this engine's callers are likely to already know.
func (r *Response) ProtoAtLeast(major, minor int) bool {
	if major != 1 {
		return false
	}
	if minor <= 0 {
		return true
	}
	return r.Version == HTTP11
}
