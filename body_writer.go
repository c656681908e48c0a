/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpflow

import (
	"strconv"

	"github.com/badu/httpflow/hdr"
)

type bodyWriterMode int

const (
	bwNone bodyWriterMode = iota
	bwSized
	bwChunked
)

// BodyWriter emits a request (or response) body either length-delimited
// or chunked, tracking how much is left to send. Adapted from
// chunk_writer.go's chunked-emission logic, restructured to write into a
// caller buffer via Writer instead of a bufio.Writer wrapping a net.Conn.
type BodyWriter struct {
	mode      bodyWriterMode
	remaining uint64 // bwSized
	chunkSize int    // bwChunked: target data-segment size per frame
	ended     bool
}

// NoneBodyWriter returns a BodyWriter for a request that carries no body.
func NoneBodyWriter() *BodyWriter {
	return &BodyWriter{mode: bwNone, ended: true}
}

// SizedBodyWriter returns a BodyWriter that emits exactly n bytes
// length-delimited (Content-Length: n).
func SizedBodyWriter(n uint64) *BodyWriter {
	return &BodyWriter{mode: bwSized, remaining: n, ended: n == 0}
}

// ChunkedBodyWriter returns a BodyWriter that emits chunked
// transfer-encoding frames, each holding up to chunkSize bytes of data.
func ChunkedBodyWriter(chunkSize int) *BodyWriter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &BodyWriter{mode: bwChunked, chunkSize: chunkSize}
}

// HasBody reports whether this writer ever sends body bytes.
func (b *BodyWriter) HasBody() bool { return b.mode != bwNone }

// IsChunked reports whether this writer uses chunked transfer-encoding.
func (b *BodyWriter) IsChunked() bool { return b.mode == bwChunked }

// IsEnded reports whether the body has been fully emitted (for bwChunked,
// this means the terminator has been written).
func (b *BodyWriter) IsEnded() bool { return b.ended }

// LeftToSend returns the remaining sized byte count, or (0, false) for
// modes without a known remaining length.
func (b *BodyWriter) LeftToSend() (uint64, bool) {
	if b.mode != bwSized {
		return 0, false
	}
	return b.remaining, true
}

// BodyHeader returns the header row this writer requires the request
// prelude to carry, if any.
func (b *BodyWriter) BodyHeader() (name, value string, ok bool) {
	switch b.mode {
	case bwSized:
		return hdr.Canonical("content-length"), strconv.FormatUint(b.remaining, 10), true
	case bwChunked:
		return hdr.Canonical("transfer-encoding"), DoChunked, true
	default:
		return "", "", false
	}
}

// Write consumes as much of input as fits into the output Writer and
// returns how many input bytes were consumed. An empty input signals
// end-of-body: for bwSized it is a no-op unless remaining is already 0 (in
// which case the writer was already ended at construction); for bwChunked
// it emits the "0\r\n\r\n" terminator and sets ended.
func (b *BodyWriter) Write(input []byte, w *Writer) (int, error) {
	if b.ended {
		if len(input) == 0 {
			return 0, nil
		}
		return 0, ErrBodyContentAfterFinish
	}

	switch b.mode {
	case bwNone:
		if len(input) != 0 {
			return 0, ErrBodyContentAfterFinish
		}
		return 0, nil

	case bwSized:
		if len(input) == 0 {
			// Nothing to finish early on a zero-length write; remaining > 0
			// means the body simply isn't done yet.
			return 0, nil
		}
		if uint64(len(input)) > b.remaining {
			return 0, ErrBodyLargerThanContentLen
		}
		n := len(input)
		room := w.Available()
		if n > room {
			n = room
		}
		ok := w.WriteBytes(input[:n])
		if !ok {
			return 0, nil
		}
		b.remaining -= uint64(n)
		if b.remaining == 0 {
			b.ended = true
		}
		return n, nil

	default: // bwChunked
		return b.writeChunked(input, w)
	}
}

// writeChunked greedily frames as many chunks as fit in w, each holding up
// to b.chunkSize bytes. Each frame's exact size (hex length, CRLF, data,
// CRLF) is checked against the room left and written atomically, so a
// short output buffer never receives part of a frame. When a full frame
// does not fit, a smaller one sized by maxInputForOutput is tried.
func (b *BodyWriter) writeChunked(input []byte, w *Writer) (int, error) {
	if len(input) == 0 {
		if !w.WriteString("0\r\n\r\n") {
			return 0, nil
		}
		b.ended = true
		return 0, nil
	}

	consumed := 0
	for len(input) > 0 {
		n := len(input)
		if n > b.chunkSize {
			n = b.chunkSize
		}
		frameLen := len(strconv.FormatInt(int64(n), 16)) + 2 + n + 2
		if w.Available() < frameLen {
			// Try a smaller chunk so partial room is still used, as long
			// as at least a minimal frame (len prefix + CRLFs) fits.
			n = maxInputForOutput(w.Available())
			if n <= 0 {
				break
			}
			frameLen = len(strconv.FormatInt(int64(n), 16)) + 2 + n + 2
			if w.Available() < frameLen {
				break
			}
		}
		data := input[:n]
		ok := w.TryWrite(func(dst []byte) (int, bool) {
			if len(dst) < frameLen {
				return 0, false
			}
			hexLen := strconv.FormatInt(int64(n), 16)
			pos := 0
			pos += copy(dst[pos:], hexLen)
			pos += copy(dst[pos:], crlf)
			pos += copy(dst[pos:], data)
			pos += copy(dst[pos:], crlf)
			return pos, true
		})
		if !ok {
			break
		}
		consumed += n
		input = input[n:]
	}
	return consumed, nil
}

// maxInputForOutput returns the input length that produces the biggest
// chunk frame still fitting in an output buffer of size outputLen,
// assuming a one-digit hex length prefix; used only as a fallback when a
// full chunkSize-sized frame doesn't fit.
func maxInputForOutput(outputLen int) int {
	const overhead = 1 + 2 + 2 // "N" + CRLF + CRLF
	n := outputLen - overhead
	if n < 0 {
		return 0
	}
	return n
}

// CalculateMaxInput returns the largest input size that fits into an
// output buffer of outputLen bytes, assuming full chunkSize-sized chunk
// frames — useful for a caller that wants to size a zero-copy write
// without ever calling Write.
func (b *BodyWriter) CalculateMaxInput(outputLen int) int {
	if b.mode != bwChunked {
		return outputLen
	}
	frameOverhead := len(strconv.FormatInt(int64(b.chunkSize), 16)) + 4
	frameSize := b.chunkSize + frameOverhead
	if frameSize <= 0 {
		return 0
	}
	fullFrames := outputLen / frameSize
	remainder := outputLen % frameSize
	total := fullFrames * b.chunkSize
	if remainder > frameOverhead {
		total += remainder - frameOverhead
	}
	return total
}
