/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package hdr is the ordered multimap header type the engine's message
// family is built on: Add preserves insertion order across distinct names
// (unlike a plain map[string][]string), which matters for a Sans-I/O
// engine that must reproduce wire bytes a caller's fixtures expect
// byte-for-byte, and for AmendedRequest's "added headers first, then
// original headers" iteration rule.
package hdr

import (
	"strings"

	orderedmap "github.com/elliotchance/orderedmap/v2"
)

// Pair is a single header row, used where callers enumerate name/value
// pairs directly rather than through the multimap (e.g. the bounded
// added-header overlay in amended requests).
type Pair struct {
	Name  string
	Value string
}

// Header is an insertion-ordered, case-insensitive multimap of header
// names to their values. The zero value is not usable; use New.
type Header struct {
	m *orderedmap.OrderedMap[string, []string]
}

// New returns an empty Header.
func New() Header {
	return Header{m: orderedmap.NewOrderedMap[string, []string]()}
}

// Canonical lower-cases a header name for comparison and storage. Unlike
// net/http's Title-Case canonicalization, this engine stores and compares
// names in lowercase, matching the wire convention HTTP/2 already forces
// on every header field and that most HTTP/1.1 peers tolerate just fine.
func Canonical(name string) string {
	return strings.ToLower(name)
}

// Add adds the key, value pair to the header, appending to any existing
// values for key.
func (h Header) Add(key, value string) {
	key = Canonical(key)
	if vv, ok := h.m.Get(key); ok {
		h.m.Set(key, append(vv, value))
		return
	}
	h.m.Set(key, []string{value})
}

// Set sets the header entries for key to the single element value.
func (h Header) Set(key, value string) {
	h.m.Set(Canonical(key), []string{value})
}

// Get gets the first value associated with key, or "" if absent.
func (h Header) Get(key string) string {
	vv, ok := h.m.Get(Canonical(key))
	if !ok || len(vv) == 0 {
		return ""
	}
	return vv[0]
}

// Values returns all values for key in the order they were added.
func (h Header) Values(key string) []string {
	vv, _ := h.m.Get(Canonical(key))
	return vv
}

// Has reports whether key has at least one value.
func (h Header) Has(key string) bool {
	vv, ok := h.m.Get(Canonical(key))
	return ok && len(vv) > 0
}

// Del deletes the values associated with key.
func (h Header) Del(key string) {
	h.m.Delete(Canonical(key))
}

// Len returns the number of distinct header names.
func (h Header) Len() int {
	return h.m.Len()
}

// ForEach calls fn once per distinct name in insertion order, stopping
// early if fn returns false.
func (h Header) ForEach(fn func(name string, values []string) bool) {
	for el := h.m.Front(); el != nil; el = el.Next() {
		if !fn(el.Key, el.Value) {
			return
		}
	}
}

// Clone returns a deep copy.
func (h Header) Clone() Header {
	out := New()
	h.ForEach(func(name string, values []string) bool {
		cp := make([]string, len(values))
		copy(cp, values)
		out.m.Set(name, cp)
		return true
	})
	return out
}

// CommaValues splits a comma-separated header value the way
// Transfer-Encoding and Connection do, trimming ASCII space around each
// element and dropping empty elements.
func CommaValues(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HasToken reports whether header value v contains token (case-insensitive)
// as one of its comma-separated elements.
func HasToken(v, token string) bool {
	for _, part := range CommaValues(v) {
		if strings.EqualFold(part, token) {
			return true
		}
	}
	return false
}
