/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpflow

import (
	"github.com/badu/httpflow/hdr"
	"github.com/badu/httpflow/internal/xlog"
	"github.com/sirupsen/logrus"
)

// callCore is the shared payload threaded by value through Call's typed
// sub-states. Grounded on persistConn's per-roundtrip state, flattened
// from a goroutine pair (writeLoop/readLoop) into an explicit state
// machine a caller drives by hand instead.
type callCore struct {
	amended *AmendedRequest
	info    RequestInfo
	cfg     Config

	headerIdx int // next header row to emit in SendHeaders
	bw        *BodyWriter
	br        *BodyReader

	response     *Response
	lastLocation string
	hasLocation  bool
	serverClose  bool
}

// NewCall validates req via AnalyzeRequest and returns the first sub-state,
// CallSendLine, ready to serialize the status line.
func NewCall(req *Request, cfg Config, defaultMode RequestBodyMode, skipMethodBodyCheck bool) (CallSendLine, error) {
	cfg = cfg.normalized()
	amended := NewAmendedRequest(req, cfg)
	if !amended.base.Header.Has("host") {
		if host := amended.base.URI.Host; host != "" {
			if err := amended.AddHeader("host", host); err != nil {
				return CallSendLine{}, err
			}
		}
	}

	info, err := AnalyzeRequest(amended, defaultMode, skipMethodBodyCheck)
	if err != nil {
		return CallSendLine{}, err
	}

	var bw *BodyWriter
	switch info.BodyMode {
	case BodyModeChunked:
		bw = ChunkedBodyWriter(cfg.DefaultChunkSize)
	case BodyModeSized:
		bw = SizedBodyWriter(info.ContentLength)
	default:
		bw = NoneBodyWriter()
	}

	core := &callCore{amended: amended, info: info, cfg: cfg, bw: bw}
	return CallSendLine{core: core}, nil
}

func requestTarget(req *AmendedRequest) string {
	u := req.URI()
	if u == nil {
		return "/"
	}
	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return target
}

// CallSendLine emits the request's status line.
type CallSendLine struct{ core *callCore }

// Write serializes "METHOD target HTTP/version\r\n" atomically and returns
// the bytes written. If the whole line does not fit in w, nothing is
// written and ErrOutputOverflow is returned.
func (c CallSendLine) Write(w *Writer) (int, error) {
	before := w.Len()
	ok := w.TryWrite(func(dst []byte) (int, bool) {
		line := c.core.amended.Method() + " " + requestTarget(c.core.amended) + " " + c.core.amended.Version().String() + "\r\n"
		if len(dst) < len(line) {
			return 0, false
		}
		return copy(dst, line), true
	})
	if !ok {
		return 0, ErrOutputOverflow
	}
	return w.Len() - before, nil
}

// IntoHeaders transitions to CallSendHeaders once the status line fully
// fit in one Write call.
func (c CallSendLine) IntoHeaders() CallSendHeaders { return CallSendHeaders{core: c.core} }

// CallSendHeaders emits header rows one at a time, in AmendedRequest's
// added-then-original order, followed by the blank line that ends the
// prelude.
type CallSendHeaders struct{ core *callCore }

// Write emits as many whole header rows as fit in the buffer. Returns
// bytes written; Done reports whether the terminating blank line has
// been emitted.
func (c CallSendHeaders) Write(w *Writer) (written int, err error) {
	rows := c.headerRows()
	for c.core.headerIdx < len(rows) {
		row := rows[c.core.headerIdx]
		before := w.Len()
		ok := w.TryWrite(func(dst []byte) (int, bool) {
			if len(dst) < len(row) {
				return 0, false
			}
			return copy(dst, row), true
		})
		if !ok {
			if written == 0 {
				return 0, ErrOutputOverflow
			}
			return written, nil
		}
		written += w.Len() - before
		c.core.headerIdx++
	}
	return written, nil
}

// Done reports whether every header row (and the trailing blank line) has
// been emitted.
func (c CallSendHeaders) Done() bool { return c.core.headerIdx >= len(c.headerRows()) }

// headerRows excludes content-length and transfer-encoding from the
// original/added header set: BodyWriter.BodyHeader is the single source
// of truth for outbound body framing, so a caller-supplied value for
// either is superseded rather than duplicated on the wire.
func (c CallSendHeaders) headerRows() []string {
	rows := make([]string, 0, c.core.amended.addedCap+4)
	c.core.amended.ForEachHeader(func(name, value string) bool {
		if name == "content-length" || name == "transfer-encoding" {
			return true
		}
		rows = append(rows, name+": "+value+"\r\n")
		return true
	})
	if bh, bv, ok := c.core.bw.BodyHeader(); ok {
		rows = append(rows, bh+": "+bv+"\r\n")
	}
	rows = append(rows, "\r\n")
	return rows
}

// IntoBody transitions to CallSendBody.
func (c CallSendHeaders) IntoBody() CallSendBody { return CallSendBody{core: c.core} }

// CallSendBody delegates body bytes to BodyWriter.
type CallSendBody struct{ core *callCore }

// Write frames as much of input as fits in output via the underlying
// BodyWriter. An empty input signals end-of-body.
func (c CallSendBody) Write(input []byte, w *Writer) (int, error) {
	return c.core.bw.Write(input, w)
}

// ConsumeDirectWrite informs the BodyWriter that n body bytes were placed
// into the transport by some zero-copy path outside this Writer.
func (c CallSendBody) ConsumeDirectWrite(n uint64) error {
	if c.core.bw.mode != bwSized {
		return nil
	}
	if n > c.core.bw.remaining {
		return ErrBodyLargerThanContentLen
	}
	c.core.bw.remaining -= n
	if c.core.bw.remaining == 0 {
		c.core.bw.ended = true
	}
	return nil
}

// IsChunked reports whether the body is chunk-framed.
func (c CallSendBody) IsChunked() bool { return c.core.bw.IsChunked() }

// CalculateMaxInput mirrors BodyWriter.CalculateMaxInput.
func (c CallSendBody) CalculateMaxInput(outputLen int) int { return c.core.bw.CalculateMaxInput(outputLen) }

// CanProceed reports whether the body writer has emitted its terminator
// (or never had a body to send).
func (c CallSendBody) CanProceed() bool { return c.core.bw.IsEnded() }

// IntoReceive transitions to CallRecvResponse. Returns
// ErrUnfinishedRequest if the body writer has not ended.
func (c CallSendBody) IntoReceive() (CallRecvResponse, error) {
	if !c.core.bw.IsEnded() {
		return CallRecvResponse{}, ErrUnfinishedRequest
	}
	return CallRecvResponse{core: c.core}, nil
}

// CallRecvResponse parses the status line and headers of the response.
type CallRecvResponse struct{ core *callCore }

// TryResponse runs ResponseParser over input. On a complete parse it
// resolves the BodyReader via BodyReaderForResponse and stores the
// response; expect-100 handling lives in Flow, which discards a delayed
// 100 Continue returned from here. An incomplete response consumes
// nothing: call again with the same bytes plus more.
func (c CallRecvResponse) TryResponse(input []byte) (consumed int, response *Response, err error) {
	parser := NewResponseParser(c.core.cfg.MaxResponseHeaders)
	total := 0
	for total < len(input) {
		n, outcome, perr := parser.Feed(input[total:])
		total += n
		if perr != nil {
			return total, nil, perr
		}
		switch outcome {
		case ParseComplete:
			resp := parser.Response()
			c.core.response = resp
			if loc := resp.Header.Get("location"); loc != "" {
				c.core.lastLocation = loc
				c.core.hasLocation = true
			}
			if hdr.HasToken(resp.Header.Get("connection"), "close") {
				c.core.serverClose = true
			}
			br, berr := BodyReaderForResponse(resp.Version == HTTP10, c.core.amended.Method(), resp.StatusCode, resp.Header, maxChunkExtBytes)
			if berr != nil {
				return total, nil, berr
			}
			c.core.br = br
			xlog.Debugf(logrus.Fields{
				"status": resp.StatusCode,
				"mode":   br.mode,
			}, "response parsed, body reader resolved")
			return total, resp, nil
		case ParseTooManyHeaders:
			return total, nil, ErrTooManyResponseHeaders
		default: // ParseIncomplete
			if n == 0 {
				return 0, nil, nil
			}
		}
	}
	// Incomplete: the parser is discarded, so none of input counts as used.
	return 0, nil, nil
}

// IntoBody returns the RecvBody sub-state unless the response carries no
// body, in which case ok is false.
func (c CallRecvResponse) IntoBody() (call CallRecvBody, ok bool) {
	if c.core.br == nil || c.core.br.mode == brNoBody {
		return CallRecvBody{}, false
	}
	return CallRecvBody{core: c.core}, true
}

// Response returns the most recently parsed response, or nil.
func (c CallRecvResponse) Response() *Response { return c.core.response }

// IsCloseDelimited reports whether the resolved BodyReader has no
// explicit end and the transport must be closed to detect EOF.
func (c CallRecvResponse) IsCloseDelimited() bool {
	return c.core.br != nil && c.core.br.IsCloseDelimited()
}

// CallRecvBody reads response body bytes through BodyReader.
type CallRecvBody struct{ core *callCore }

// Read delegates to BodyReader.
func (c CallRecvBody) Read(src, dst []byte, stopOnChunkBoundary bool) (int, int, error) {
	return c.core.br.Read(src, dst, stopOnChunkBoundary)
}

// IsEnded reports whether the body has been fully consumed.
func (c CallRecvBody) IsEnded() bool { return c.core.br.IsEnded() }

// IsCloseDelimited reports whether this body ends only at transport
// close, per the supplemented feature exposing this on the RecvBody
// sub-state directly instead of only at RecvResponse time.
func (c CallRecvBody) IsCloseDelimited() bool { return c.core.br.IsCloseDelimited() }

// IsOnChunkBoundary passes through to BodyReader.
func (c CallRecvBody) IsOnChunkBoundary() bool { return c.core.br.IsOnChunkBoundary() }

// Response returns the response parsed at RecvResponse, available for
// the remainder of the Call's lifetime once try_response has succeeded.
func (c CallRecvBody) Response() *Response { return c.core.response }
