/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpflow

import (
	"net/url"

	"github.com/badu/httpflow/hdr"
)

// AmendedRequest overlays a caller's Request with an append-only set of
// injected headers, an append-only set of suppressed header names, and an
// optional URI override, without ever mutating the original Request.
// Grounded on reqWriteExcludeHeader's skip-list pattern in
// types_request.go, generalized from a static map of headers the writer
// always drops into a per-request bounded overlay a redirect can grow.
type AmendedRequest struct {
	base *Request

	overrideURI *url.URL

	added      []hdr.Pair
	addedCap   int
	unsetNames []string
	unsetCap   int
}

// NewAmendedRequest wraps req with empty overlays sized per cfg.
func NewAmendedRequest(req *Request, cfg Config) *AmendedRequest {
	cfg = cfg.normalized()
	return &AmendedRequest{
		base:     req,
		addedCap: cfg.AddedHeaderCapacity,
		unsetCap: cfg.UnsetHeaderCapacity,
	}
}

// Method is stable for the lifetime of one AmendedRequest.
func (a *AmendedRequest) Method() string { return a.base.Method }

// Version is stable for the lifetime of one AmendedRequest.
func (a *AmendedRequest) Version() Version { return a.base.Version }

// URI returns the override URI if SetURI was called, else the original.
func (a *AmendedRequest) URI() *url.URL {
	if a.overrideURI != nil {
		return a.overrideURI
	}
	return a.base.URI
}

// SetURI installs an override URI, used when rebuilding a request for a
// redirect.
func (a *AmendedRequest) SetURI(u *url.URL) { a.overrideURI = u }

// AddHeader appends a header to the overlay. Returns
// ErrAddedHeaderCapacity once addedCap entries are already present.
func (a *AmendedRequest) AddHeader(name, value string) error {
	if len(a.added) >= a.addedCap {
		return ErrAddedHeaderCapacity
	}
	a.added = append(a.added, hdr.Pair{Name: hdr.Canonical(name), Value: value})
	return nil
}

// UnsetHeader suppresses an original header name from iteration. Returns
// ErrUnsetHeaderCapacity once unsetCap entries are already present.
func (a *AmendedRequest) UnsetHeader(name string) error {
	name = hdr.Canonical(name)
	for _, n := range a.unsetNames {
		if n == name {
			return nil
		}
	}
	if len(a.unsetNames) >= a.unsetCap {
		return ErrUnsetHeaderCapacity
	}
	a.unsetNames = append(a.unsetNames, name)
	return nil
}

func (a *AmendedRequest) isUnset(name string) bool {
	for _, n := range a.unsetNames {
		if n == name {
			return true
		}
	}
	return false
}

// ForEachHeader yields added headers first, then the original request's
// headers, skipping any name present in the unset overlay. Iteration
// stops early if fn returns false.
func (a *AmendedRequest) ForEachHeader(fn func(name, value string) bool) {
	for _, p := range a.added {
		if !fn(p.Name, p.Value) {
			return
		}
	}
	a.base.Header.ForEach(func(name string, values []string) bool {
		if a.isUnset(name) {
			return true
		}
		for _, v := range values {
			if !fn(name, v) {
				return false
			}
		}
		return true
	})
}

// newURIFromLocation resolves a Location header value against the
// request's current URI, matching net/url's RFC 3986 reference
// resolution (relative references resolve against the base; absolute
// ones replace it outright).
func newURIFromLocation(base *url.URL, location string) (*url.URL, error) {
	loc, err := url.Parse(location)
	if err != nil {
		return nil, &BadLocationHeaderError{Detail: err.Error()}
	}
	return base.ResolveReference(loc), nil
}
