/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpflow

import (
	"strconv"

	"github.com/badu/httpflow/hdr"
)

type bodyReaderMode int

const (
	brNoBody bodyReaderMode = iota
	brLengthDelimited
	brChunked
	brCloseDelimited
)

// BodyReader consumes a response (or request) body under whichever
// framing for_response (or an explicit constructor) determined applies.
// Adapted from transfer_body_reader.go / utils_transfer.go's fixLength,
// restructured around Dechunker and caller buffers instead of a
// bufio.Reader.
type BodyReader struct {
	mode      bodyReaderMode
	remaining uint64 // brLengthDelimited
	dechunker *Dechunker
}

func noBodyReader() *BodyReader                  { return &BodyReader{mode: brNoBody} }
func lengthDelimitedReader(n uint64) *BodyReader { return &BodyReader{mode: brLengthDelimited, remaining: n} }
func chunkedReader(maxExt int) *BodyReader       { return &BodyReader{mode: brChunked, dechunker: NewDechunker(maxExt)} }
func closeDelimitedReader() *BodyReader          { return &BodyReader{mode: brCloseDelimited} }

// IsEnded reports whether the body has been fully read. CloseDelimited
// bodies are never self-ended — only the caller's transport can know EOF.
func (b *BodyReader) IsEnded() bool {
	switch b.mode {
	case brNoBody:
		return true
	case brLengthDelimited:
		return b.remaining == 0
	case brChunked:
		return b.dechunker.IsEnded()
	default:
		return false
	}
}

// IsCloseDelimited reports whether this body ends only when the
// transport closes, i.e. the caller must push a CloseReason.
func (b *BodyReader) IsCloseDelimited() bool { return b.mode == brCloseDelimited }

// IsOnChunkBoundary reports whether a chunked reader sits exactly at a
// chunk boundary; always true for non-chunked modes.
func (b *BodyReader) IsOnChunkBoundary() bool {
	if b.mode != brChunked {
		return true
	}
	return b.dechunker.IsOnChunkBoundary()
}

// Read decodes as much of src into dst as the current framing allows.
// stopOnChunkBoundary only affects chunked bodies: if true, Read returns
// as soon as a chunk boundary is reached even if both buffers still have
// room, so a caller can hand whole chunks upstream.
func (b *BodyReader) Read(src, dst []byte, stopOnChunkBoundary bool) (srcUsed, dstUsed int, err error) {
	switch b.mode {
	case brNoBody:
		return 0, 0, nil

	case brLengthDelimited:
		n := len(src)
		if n > len(dst) {
			n = len(dst)
		}
		if uint64(n) > b.remaining {
			n = int(b.remaining)
		}
		copy(dst[:n], src[:n])
		b.remaining -= uint64(n)
		return n, n, nil

	case brChunked:
		return b.dechunker.Read(src, dst, stopOnChunkBoundary)

	default: // brCloseDelimited
		n := len(src)
		if n > len(dst) {
			n = len(dst)
		}
		copy(dst[:n], src[:n])
		return n, n, nil
	}
}

// headerLookup is the minimal read-only view BodyReaderForResponse needs;
// hdr.Header already satisfies it.
type headerLookup interface {
	Get(key string) string
	Values(key string) []string
}

// BodyReaderForResponse implements RFC 7230 §3.3.3: given whether the
// connection is HTTP/1.0, the request method, the response status and its
// headers, it resolves which body framing the response uses. Grounded on
// utils_transfer.go's fixLength, flattened into a straight-line decision
// table instead of that function's historical accretion of special cases.
func BodyReaderForResponse(http10 bool, method string, status int, header headerLookup, maxChunkExt int) (*BodyReader, error) {
	if method == HEAD {
		return noBodyReader(), nil
	}
	if status >= 200 && status < 300 && method == CONNECT {
		return noBodyReader(), nil
	}
	if (status >= 100 && status < 200) || status == 204 || status == 304 {
		return noBodyReader(), nil
	}
	if status >= 300 && status < 400 && status != 304 {
		if !hasBodyFramingHeaders(header) {
			return noBodyReader(), nil
		}
	}

	te := header.Get("transfer-encoding")
	if te != "" && hdr.HasToken(te, DoChunked) && !http10 {
		return chunkedReader(maxChunkExt), nil
	}

	cls := header.Values("content-length")
	switch len(cls) {
	case 0:
		return closeDelimitedReader(), nil
	case 1:
		n, err := strconv.ParseUint(cls[0], 10, 64)
		if err != nil {
			return nil, ErrBadContentLengthHeader
		}
		return lengthDelimitedReader(n), nil
	default:
		return nil, ErrTooManyContentLengths
	}
}

func hasBodyFramingHeaders(header headerLookup) bool {
	return header.Get("transfer-encoding") != "" || header.Get("content-length") != ""
}
