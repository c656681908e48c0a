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

// CloseReason enumerates why a Flow's transport must be discarded after
// Cleanup rather than reused for the next request.
type CloseReason int

const (
	ReasonHTTP10 CloseReason = iota
	ReasonClientConnectionClose
	ReasonServerConnectionClose
	ReasonNot100Continue
	ReasonCloseDelimitedBody
)

func (r CloseReason) String() string {
	switch r {
	case ReasonHTTP10:
		return "http/1.0"
	case ReasonClientConnectionClose:
		return "client sent connection: close"
	case ReasonServerConnectionClose:
		return "server sent connection: close"
	case ReasonNot100Continue:
		return "server did not send 100-continue"
	case ReasonCloseDelimitedBody:
		return "close-delimited response body"
	default:
		return "unknown"
	}
}

// flowCore is threaded by value through Flow's typed states, mirroring
// callCore's role for Call. Grounded on the transport roundTrip's close
// and redirect bookkeeping, flattened into an explicit state machine a
// caller drives by hand instead of a goroutine pair.
type flowCore struct {
	call CallSendLine

	closeReasons     []CloseReason
	closeReasonsCap  int
	shouldSendBody   bool
	await100Continue bool
	sendBodyDespite  bool

	authPolicy AuthPolicy
}

func (f *flowCore) pushCloseReason(r CloseReason) {
	for _, existing := range f.closeReasons {
		if existing == r {
			return
		}
	}
	if len(f.closeReasons) >= f.closeReasonsCap {
		xlog.Debugf(logrus.Fields{"reason": r.String()}, "close reason capacity reached, dropping")
		return
	}
	f.closeReasons = append(f.closeReasons, r)
	xlog.Debugf(logrus.Fields{"reason": r.String()}, "close reason recorded")
}

// FlowPrepare is the entry state: the request has been validated but no
// bytes have been serialized yet.
type FlowPrepare struct{ core *flowCore }

// NewFlow constructs a Flow in Prepare, wiring close-reasons for
// HTTP/1.0 and an explicit "connection: close" request header.
func NewFlow(req *Request, cfg Config, authPolicy AuthPolicy) (FlowPrepare, error) {
	cfg = cfg.normalized()
	if authPolicy == nil {
		authPolicy = cfg.RedirectAuth
	}
	if authPolicy == nil {
		authPolicy = RedirectAuthNever
	}
	call, err := NewCall(req, cfg, BodyModeNone, false)
	if err != nil {
		return FlowPrepare{}, err
	}

	core := &flowCore{
		call:            call,
		closeReasonsCap: cfg.CloseReasonCapacity,
		authPolicy:      authPolicy,
	}
	if req.Version == HTTP10 {
		core.pushCloseReason(ReasonHTTP10)
	}
	if hdr.HasToken(req.Header.Get("connection"), DoClose) {
		core.pushCloseReason(ReasonClientConnectionClose)
	}
	switch req.Method {
	case POST, PUT, PATCH:
		core.shouldSendBody = true
	}
	if req.Header.Get("expect") != "" && hdr.HasToken(req.Header.Get("expect"), "100-continue") {
		core.await100Continue = true
	}

	return FlowPrepare{core: core}, nil
}

// SendBodyDespiteMethod is the escape hatch for APIs that accept bodies
// on GET/DELETE/HEAD.
func (f FlowPrepare) SendBodyDespiteMethod() FlowPrepare {
	f.core.shouldSendBody = true
	f.core.sendBodyDespite = true
	return f
}

// AddHeader injects a header before the prelude is serialized.
func (f FlowPrepare) AddHeader(name, value string) error {
	return f.core.call.core.amended.AddHeader(name, value)
}

// Proceed transitions to SendRequest.
func (f FlowPrepare) Proceed() FlowSendRequest { return FlowSendRequest{core: f.core} }

// FlowSendRequest serializes the prelude (status line + headers).
type FlowSendRequest struct {
	core    *flowCore
	headers *CallSendHeaders
}

// Write emits as much of the prelude as fits in output.
func (f *FlowSendRequest) Write(w *Writer) (int, error) {
	if f.headers == nil {
		n, err := f.core.call.Write(w)
		if err != nil {
			return n, err
		}
		h := f.core.call.IntoHeaders()
		f.headers = &h
		return n, nil
	}
	return f.headers.Write(w)
}

// CanProceed reports whether the whole prelude has been emitted.
func (f *FlowSendRequest) CanProceed() bool {
	return f.headers != nil && f.headers.Done()
}

// flowNextAfterSend is the shared routing rule for what follows a fully
// sent prelude, used by the three FlowSendRequest.ProceedTo* methods below.
type flowNextAfterSend int

const (
	nextAwait100 flowNextAfterSend = iota
	nextSendBody
	nextRecvResponse
)

func (f *FlowSendRequest) next() flowNextAfterSend {
	switch {
	case f.core.shouldSendBody && f.core.await100Continue:
		return nextAwait100
	case f.core.shouldSendBody:
		return nextSendBody
	default:
		return nextRecvResponse
	}
}

// ProceedToAwait100 transitions to Await100. Valid only when both a body
// is pending and the request carried Expect: 100-continue.
func (f *FlowSendRequest) ProceedToAwait100() (FlowAwait100, bool) {
	if f.next() != nextAwait100 {
		return FlowAwait100{}, false
	}
	return FlowAwait100{core: f.core, body: f.headers.IntoBody()}, true
}

// ProceedToSendBody transitions to SendBody directly, skipping Await100.
func (f *FlowSendRequest) ProceedToSendBody() (FlowSendBody, bool) {
	if f.next() != nextSendBody {
		return FlowSendBody{}, false
	}
	return FlowSendBody{core: f.core, body: f.headers.IntoBody()}, true
}

// ProceedToRecvResponse transitions straight to RecvResponse for
// requests with no body.
func (f *FlowSendRequest) ProceedToRecvResponse() (FlowRecvResponse, bool) {
	if f.next() != nextRecvResponse {
		return FlowRecvResponse{}, false
	}
	body := f.headers.IntoBody()
	recv, err := body.IntoReceive()
	if err != nil {
		return FlowRecvResponse{}, false
	}
	return FlowRecvResponse{core: f.core, recv: recv}, true
}

// FlowAwait100 waits (briefly, non-blockingly) for a standalone 100
// Continue status line before committing to send the body.
type FlowAwait100 struct {
	core *flowCore
	body CallSendBody

	consumed bool
}

// TryRead100 parses input as a standalone status line with zero header
// capacity. See CanKeepAwaiting for whether to call again with more
// bytes, or ProceedToSendBody/ProceedToRecvResponse once resolved.
func (f *FlowAwait100) TryRead100(input []byte) (consumed int, err error) {
	parser := NewResponseParser(0)
	parser.maxHeaders = 0 // NewResponseParser maps 0 to the default; no header rows are allowed here
	n, outcome, perr := parser.Feed(input)
	if perr != nil {
		return n, perr
	}
	switch outcome {
	case ParseComplete:
		resp := parser.Response()
		f.core.await100Continue = false
		if resp.StatusCode == 100 {
			f.consumed = true
			return n, nil
		}
		f.core.pushCloseReason(ReasonNot100Continue)
		f.core.shouldSendBody = false
		f.consumed = true
		return 0, nil
	case ParseTooManyHeaders:
		f.core.await100Continue = false
		f.core.pushCloseReason(ReasonNot100Continue)
		f.core.shouldSendBody = false
		f.consumed = true
		return 0, nil
	default:
		return 0, nil
	}
}

// CanKeepAwaiting reports whether the caller may still wait for more
// bytes rather than giving up and proceeding regardless.
func (f *FlowAwait100) CanKeepAwaiting() bool { return !f.consumed }

// ProceedToSendBody transitions once the 100 (or a timeout decision) has
// been resolved in favor of sending the body.
func (f *FlowAwait100) ProceedToSendBody() (FlowSendBody, bool) {
	if !f.core.shouldSendBody {
		return FlowSendBody{}, false
	}
	return FlowSendBody{core: f.core, body: f.body}, true
}

// ProceedToRecvResponse transitions once the server declined the
// expect-100 handshake.
func (f *FlowAwait100) ProceedToRecvResponse() (FlowRecvResponse, bool) {
	if !f.consumed || f.core.shouldSendBody {
		return FlowRecvResponse{}, false
	}
	// The body is never sent, so the Call moves on without its body
	// writer having ended.
	return FlowRecvResponse{core: f.core, recv: CallRecvResponse{core: f.body.core}}, true
}

// FlowSendBody delegates body framing to Call's SendBody sub-state.
type FlowSendBody struct {
	core *flowCore
	body CallSendBody
}

// Write frames input into output; an empty input call signals
// end-of-body.
func (f FlowSendBody) Write(input []byte, w *Writer) (int, error) {
	return f.body.Write(input, w)
}

// ConsumeDirectWrite passes through to CallSendBody.
func (f FlowSendBody) ConsumeDirectWrite(n uint64) error { return f.body.ConsumeDirectWrite(n) }

// IsChunked passes through to CallSendBody.
func (f FlowSendBody) IsChunked() bool { return f.body.IsChunked() }

// CalculateMaxInput passes through to CallSendBody.
func (f FlowSendBody) CalculateMaxInput(outputLen int) int { return f.body.CalculateMaxInput(outputLen) }

// CanProceed reports whether the body writer has emitted its terminator.
func (f FlowSendBody) CanProceed() bool { return f.body.CanProceed() }

// ProceedToRecvResponse transitions once CanProceed is true.
func (f FlowSendBody) ProceedToRecvResponse() (FlowRecvResponse, error) {
	recv, err := f.body.IntoReceive()
	if err != nil {
		return FlowRecvResponse{}, err
	}
	return FlowRecvResponse{core: f.core, recv: recv}, nil
}

// FlowRecvResponse parses the real status line and headers.
type FlowRecvResponse struct {
	core *flowCore
	recv CallRecvResponse
}

// TryResponse runs the response parser, swallowing a delayed 100
// Continue (if await_100_continue is still set) rather than surfacing it
// as the real response.
func (f *FlowRecvResponse) TryResponse(input []byte) (consumed int, response *Response, err error) {
	n, resp, err := f.recv.TryResponse(input)
	if err != nil || resp == nil {
		return n, nil, err
	}
	if f.core.await100Continue && resp.StatusCode == 100 {
		f.core.await100Continue = false
		return n, nil, nil
	}
	f.core.await100Continue = false
	if hdr.HasToken(resp.Header.Get("connection"), DoClose) {
		f.core.pushCloseReason(ReasonServerConnectionClose)
	}
	if f.recv.IsCloseDelimited() {
		f.core.pushCloseReason(ReasonCloseDelimitedBody)
	}
	return n, resp, nil
}

// IsRedirect reports whether the parsed response is a redirect status
// (3xx excluding 304) with a captured Location header.
func (f *FlowRecvResponse) IsRedirect() bool {
	resp := f.recv.Response()
	if resp == nil {
		return false
	}
	if resp.StatusCode < 300 || resp.StatusCode >= 400 || resp.StatusCode == 304 {
		return false
	}
	return f.recv.core.hasLocation
}

// ProceedToBody transitions to RecvBody if the response carries a body.
func (f *FlowRecvResponse) ProceedToBody() (FlowRecvBody, bool) {
	body, ok := f.recv.IntoBody()
	if !ok {
		return FlowRecvBody{}, false
	}
	return FlowRecvBody{core: f.core, body: body}, true
}

// ProceedToRedirect transitions to Redirect; valid only when IsRedirect.
func (f *FlowRecvResponse) ProceedToRedirect() (FlowRedirect, bool) {
	if !f.IsRedirect() {
		return FlowRedirect{}, false
	}
	return FlowRedirect{core: f.core, recv: f.recv}, true
}

// ProceedToCleanup transitions to Cleanup for a non-redirect, no-body
// response.
func (f *FlowRecvResponse) ProceedToCleanup() FlowCleanup {
	return FlowCleanup{core: f.core}
}

// FlowRecvBody reads the response body.
type FlowRecvBody struct {
	core *flowCore
	body CallRecvBody
}

// Read delegates to CallRecvBody.
func (f FlowRecvBody) Read(src, dst []byte, stopOnChunkBoundary bool) (int, int, error) {
	return f.body.Read(src, dst, stopOnChunkBoundary)
}

// IsOnChunkBoundary is a pass-through to the underlying BodyReader's chunk
// framing state; stopping on a boundary is Read's stopOnChunkBoundary
// argument.
func (f FlowRecvBody) IsOnChunkBoundary() bool { return f.body.IsOnChunkBoundary() }

// IsCloseDelimited exposes the supplemented RecvBody accessor (see
// Call.IsCloseDelimited) at the Flow layer too.
func (f FlowRecvBody) IsCloseDelimited() bool { return f.body.IsCloseDelimited() }

// CanProceed ⇔ the body is ended, or it is close-delimited (the caller
// decides when the transport has hit EOF).
func (f FlowRecvBody) CanProceed() bool {
	return f.body.IsEnded() || f.body.IsCloseDelimited()
}

func (f FlowRecvBody) isRedirect() bool {
	resp := f.body.Response()
	if resp == nil {
		return false
	}
	if resp.StatusCode < 300 || resp.StatusCode >= 400 || resp.StatusCode == 304 {
		return false
	}
	return f.core.call.core.hasLocation
}

// ProceedToRedirect transitions to Redirect.
func (f FlowRecvBody) ProceedToRedirect() (FlowRedirect, bool) {
	if !f.isRedirect() {
		return FlowRedirect{}, false
	}
	return FlowRedirect{core: f.core, recv: CallRecvResponse{core: f.core.call.core}}, true
}

// ProceedToCleanup transitions to Cleanup.
func (f FlowRecvBody) ProceedToCleanup() FlowCleanup { return FlowCleanup{core: f.core} }

// FlowRedirect computes the next Flow (at Prepare) from a captured 3xx
// response, or allows giving up and proceeding to Cleanup instead.
type FlowRedirect struct {
	core *flowCore
	recv CallRecvResponse
}

// AsNewFlow resolves the Location header into an absolute URI, computes
// the redirect's method per RFC 7231 §6.4, strips sensitive headers, and
// returns a fresh Flow starting at Prepare. Returns ErrRedirectForbidden
// if a 307/308 would have to re-send a body (POST/PUT/PATCH/DELETE).
func (f FlowRedirect) AsNewFlow(cfg Config) (FlowPrepare, error) {
	core := f.core.call.core
	if !core.hasLocation {
		return FlowPrepare{}, ErrNoLocationHeader
	}
	prevAmended := core.amended
	prevURI := prevAmended.URI()

	nextURI, err := newURIFromLocation(prevURI, core.lastLocation)
	if err != nil {
		return FlowPrepare{}, err
	}

	status := core.response.StatusCode
	method := prevAmended.Method()
	if status == 307 || status == 308 {
		switch method {
		case POST, PUT, PATCH, DELETE:
			return FlowPrepare{}, ErrRedirectForbidden
		}
	}
	newMethod := redirectMethodForStatus(status, method)

	newHeader := hdr.New()
	keepAuth := f.core.authPolicy != nil && f.core.authPolicy.KeepAuthorization(prevURI, nextURI)
	prevAmended.ForEachHeader(func(name, value string) bool {
		switch name {
		// host is always dropped: NewCall injected it from the previous
		// URI's authority, and the new Call must re-derive it from
		// nextURI instead of carrying the old destination forward.
		case "host", "cookie", "content-length":
			return true
		case "authorization":
			if !keepAuth {
				return true
			}
		}
		newHeader.Add(name, value)
		return true
	})

	newReq := &Request{
		Method:  newMethod,
		URI:     nextURI,
		Version: prevAmended.Version(),
		Header:  newHeader,
	}

	xlog.Debugf(logrus.Fields{
		"status": status,
		"from":   prevURI.String(),
		"to":     nextURI.String(),
		"method": newMethod,
	}, "following redirect")

	return NewFlow(newReq, cfg, f.core.authPolicy)
}

// ProceedToCleanup gives up on following the redirect and terminates the
// logical call.
func (f FlowRedirect) ProceedToCleanup() FlowCleanup { return FlowCleanup{core: f.core} }

// FlowCleanup is the terminal state.
type FlowCleanup struct{ core *flowCore }

// MustCloseConnection reports whether any close reason was recorded
// during this Flow's lifetime.
func (f FlowCleanup) MustCloseConnection() bool { return len(f.core.closeReasons) > 0 }

// CloseReasons returns the accumulated close reasons, in the order they
// were recorded.
func (f FlowCleanup) CloseReasons() []CloseReason {
	out := make([]CloseReason, len(f.core.closeReasons))
	copy(out, f.core.closeReasons)
	return out
}
