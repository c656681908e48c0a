/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpflow

import (
	"strconv"
	"strings"
)

// RequestBodyMode is the outbound body framing RequestAnalyzer resolves a
// request to before a Call ever touches the wire.
type RequestBodyMode int

const (
	BodyModeNone RequestBodyMode = iota
	BodyModeSized
	BodyModeChunked
)

// RequestInfo is the result of analyzing an AmendedRequest.
type RequestInfo struct {
	BodyMode      RequestBodyMode
	ContentLength uint64 // meaningful only when BodyMode == BodyModeSized
	HasHostHeader bool
	HasBodyHeader bool // transfer-encoding or content-length was present
}

// httpOnlyMethods require HTTP/1.1; GET/HEAD/POST run on either version.
var httpOnlyMethods = map[string]bool{
	PUT:     true,
	DELETE:  true,
	CONNECT: true,
	OPTIONS: true,
	TRACE:   true,
	PATCH:   true,
}

// bodyRequiredMethods must carry a body unless skipMethodBodyCheck.
var bodyRequiredMethods = map[string]bool{
	POST:  true,
	PUT:   true,
	PATCH: true,
}

// AnalyzeRequest validates a.Version/headers and resolves the outbound
// body mode, per the seven-step algorithm this package implements in
// place of per-call ad hoc checks scattered across a transport's
// roundTrip. defaultMode applies when neither transfer-encoding nor
// content-length is present. skipMethodBodyCheck is the escape hatch for
// callers that must send a body on a method that normally forbids one.
func AnalyzeRequest(a *AmendedRequest, defaultMode RequestBodyMode, skipMethodBodyCheck bool) (RequestInfo, error) {
	var info RequestInfo
	method := a.Method()
	version := a.Version()

	// Step 1: version/method compatibility.
	if version != HTTP10 && version != HTTP11 {
		return info, ErrUnsupportedVersion
	}
	if version == HTTP10 && httpOnlyMethods[method] {
		return info, ErrMethodVersionMismatch
	}

	var hostCount, contentLenCount int
	var hostValue string
	var contentLenValue string
	var transferEncodingValue string

	a.ForEachHeader(func(name, value string) bool {
		switch name {
		case "host":
			hostCount++
			hostValue = value
		case "content-length":
			contentLenCount++
			contentLenValue = value
		case "transfer-encoding":
			if transferEncodingValue == "" {
				transferEncodingValue = value
			} else {
				transferEncodingValue += "," + value
			}
		}
		return true
	})

	// Step 2: at most one host, at most one content-length.
	if hostCount > 1 {
		return info, ErrTooManyHostHeaders
	}
	if contentLenCount > 1 {
		return info, ErrTooManyContentLengths
	}
	info.HasHostHeader = hostCount == 1

	// Step 3: host must be ASCII.
	if hostCount == 1 && !isASCII(hostValue) {
		return info, ErrBadHostHeader
	}

	// Step 4: content-length must parse as u64.
	var contentLen uint64
	if contentLenCount == 1 {
		n, err := strconv.ParseUint(strings.TrimSpace(contentLenValue), 10, 64)
		if err != nil {
			return info, ErrBadContentLengthHeader
		}
		contentLen = n
		info.HasBodyHeader = true
	}

	// Step 5 & 6: transfer-encoding chunked wins outright.
	chunked := false
	if transferEncodingValue != "" {
		for _, tok := range strings.Split(transferEncodingValue, ",") {
			if strings.EqualFold(strings.TrimSpace(tok), DoChunked) {
				chunked = true
				info.HasBodyHeader = true
				break
			}
		}
	}

	switch {
	case chunked:
		info.BodyMode = BodyModeChunked
	case contentLenCount == 1:
		info.BodyMode = BodyModeSized
		info.ContentLength = contentLen
	default:
		info.BodyMode = defaultMode
	}

	// Step 7: method/body agreement, unless explicitly bypassed.
	if !skipMethodBodyCheck {
		hasBody := info.BodyMode != BodyModeNone
		required := bodyRequiredMethods[method]
		if required && !hasBody {
			return info, ErrMethodRequiresBody
		}
		if !required && hasBody {
			return info, ErrMethodForbidsBody
		}
	}

	return info, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
