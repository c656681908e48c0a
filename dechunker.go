/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpflow

// dechunkState is Dechunker's state tag, mirroring the chunked-encoding
// grammar: a size line, the chunk's raw bytes, the CRLF that follows them,
// then either immediate end or a trailer block before the real end.
type dechunkState int

const (
	dSize dechunkState = iota
	dChunk
	dCrLf
	dEnding
	dTrailer
	dEnded
)

// Dechunker is a restartable parser for chunked transfer-encoding. Every
// method takes however much of the caller's input buffer is available and
// returns promptly; an incomplete size or trailer line is left unconsumed
// with no state change, so the caller can top up its buffer and call again
// with those bytes still at its front. A CRLF split across calls is the one
// exception: its bytes are consumed one at a time and the partial match is
// remembered. Adapted from the line-scanning and hex-length
// parsing in utils_chunks.go, restructured so progress is driven by
// caller-fed slices instead of a bufio.Reader pulling from a socket.
type Dechunker struct {
	maxChunkExt int

	state     dechunkState
	remaining uint64 // bytes left in the current chunk (state == dChunk)

	line    []byte // unused: an incomplete size/trailer line is left unconsumed, not buffered
	crlfAt  int    // how many of "\r\n" have been matched so far (dCrLf)
	endCR   bool   // dEnding has matched the leading '\r' of the final CRLF
}

// NewDechunker returns a Dechunker positioned at the start of a chunked
// body, i.e. ready to read a chunk-size line.
func NewDechunker(maxChunkExtensionBytes int) *Dechunker {
	if maxChunkExtensionBytes <= 0 {
		maxChunkExtensionBytes = maxChunkExtBytes
	}
	return &Dechunker{maxChunkExt: maxChunkExtensionBytes}
}

// IsEnded reports whether a complete chunked message — including the
// zero-size terminator chunk and any trailers — has been seen.
func (d *Dechunker) IsEnded() bool { return d.state == dEnded }

// IsOnChunkBoundary reports whether the parser is positioned exactly at
// the start of a chunk-size line, i.e. no partial chunk data is pending.
func (d *Dechunker) IsOnChunkBoundary() bool { return d.state == dSize }

// Read decodes as much of src into dst as fits, returning how many bytes
// of each were consumed/produced. It loops internally across sub-states
// (size line, chunk data, trailing CRLF, trailers) as long as it keeps
// making progress and dst still has room, stopping early if stopOnBoundary
// is true and a chunk boundary (dSize) is reached.
func (d *Dechunker) Read(src, dst []byte, stopOnBoundary bool) (srcUsed, dstUsed int, err error) {
	for {
		if d.state == dEnded {
			return srcUsed, dstUsed, nil
		}
		if stopOnBoundary && d.state == dSize && srcUsed > 0 {
			return srcUsed, dstUsed, nil
		}

		switch d.state {
		case dSize:
			n, progressed, lineErr := d.stepSize(src[srcUsed:])
			srcUsed += n
			if lineErr != nil {
				return srcUsed, dstUsed, lineErr
			}
			if !progressed {
				return srcUsed, dstUsed, nil
			}

		case dChunk:
			avail := src[srcUsed:]
			room := dst[dstUsed:]
			if len(avail) == 0 || len(room) == 0 {
				return srcUsed, dstUsed, nil
			}
			n := len(avail)
			if uint64(n) > d.remaining {
				n = int(d.remaining)
			}
			if n > len(room) {
				n = len(room)
			}
			copy(room, avail[:n])
			srcUsed += n
			dstUsed += n
			d.remaining -= uint64(n)
			if d.remaining == 0 {
				d.state = dCrLf
				d.crlfAt = 0
			}
			if n == 0 {
				return srcUsed, dstUsed, nil
			}

		case dCrLf:
			n, progressed, lineErr := d.stepCrLf(src[srcUsed:], dChunkBoundaryNext)
			srcUsed += n
			if lineErr != nil {
				return srcUsed, dstUsed, lineErr
			}
			if !progressed {
				return srcUsed, dstUsed, nil
			}

		case dEnding:
			n, progressed, lineErr := d.stepEnding(src[srcUsed:])
			srcUsed += n
			if lineErr != nil {
				return srcUsed, dstUsed, lineErr
			}
			if !progressed {
				return srcUsed, dstUsed, nil
			}

		case dTrailer:
			n, progressed, lineErr := d.stepTrailer(src[srcUsed:])
			srcUsed += n
			if lineErr != nil {
				return srcUsed, dstUsed, lineErr
			}
			if !progressed {
				return srcUsed, dstUsed, nil
			}
		}
	}
}

// dChunkBoundaryNext tells stepCrLf what state to land in once the CRLF
// after a chunk's data has been matched: back to dSize for the next chunk.
const dChunkBoundaryNext = dSize

// stepSize waits until a whole size line up to '\n' is in src, then parses
// the hex length (stripping any chunk-extension), and transitions to
// dChunk(n) or dEnding. An incomplete line consumes nothing.
func (d *Dechunker) stepSize(src []byte) (consumed int, progressed bool, err error) {
	full, n, ok := appendUntilNewline(nil, src, maxLineLength)
	if !ok {
		if n >= maxLineLength {
			return n, true, ErrLineTooLong
		}
		return 0, false, nil
	}
	consumed = n

	line := trimTrailingCR(full)
	line, err = stripChunkExtension(line, d.maxChunkExt)
	if err != nil {
		return consumed, true, err
	}
	if len(line) > maxChunkLenDigits {
		return consumed, true, ErrChunkLenNotANumber
	}
	if !isASCIIBytes(line) {
		return consumed, true, ErrChunkLenNotASCII
	}
	size, err := parseHexUint(line)
	if err != nil {
		return consumed, true, ErrChunkLenNotANumber
	}
	if size == 0 {
		d.state = dEnding
		d.endCR = false
	} else {
		d.state = dChunk
		d.remaining = size
	}
	return consumed, true, nil
}

// stepCrLf matches an exact two-byte "\r\n" and lands in next on success.
func (d *Dechunker) stepCrLf(src []byte, next dechunkState) (consumed int, progressed bool, err error) {
	want := [...]byte{'\r', '\n'}
	for consumed < len(src) {
		if src[consumed] != want[d.crlfAt] {
			return consumed + 1, true, ErrChunkExpectedCRLF
		}
		consumed++
		d.crlfAt++
		if d.crlfAt == 2 {
			d.state = next
			return consumed, true, nil
		}
	}
	return consumed, consumed > 0, nil
}

// stepEnding peeks at the byte(s) following the zero-size chunk's CRLF: an
// immediate CRLF means the message is over; anything else means trailers
// follow, and that byte belongs to the first trailer line.
func (d *Dechunker) stepEnding(src []byte) (consumed int, progressed bool, err error) {
	for consumed < len(src) {
		b := src[consumed]
		if !d.endCR {
			if b == '\r' {
				d.endCR = true
				consumed++
				continue
			}
			// Not a CRLF: trailers follow. Leave this byte for the
			// trailer-line scanner — don't consume it here.
			d.state = dTrailer
			return consumed, true, nil
		}
		// d.endCR: we've seen '\r', this must be '\n'.
		if b != '\n' {
			return consumed + 1, true, ErrChunkExpectedCRLF
		}
		consumed++
		d.state = dEnded
		return consumed, true, nil
	}
	return consumed, consumed > 0, nil
}

// stepTrailer consumes one trailer line (discarding its content) and
// returns to dEnding to check for the next line or the final blank line.
// An incomplete trailer line consumes nothing.
func (d *Dechunker) stepTrailer(src []byte) (consumed int, progressed bool, err error) {
	_, n, ok := appendUntilNewline(nil, src, maxLineLength)
	if !ok {
		if n >= maxLineLength {
			return n, true, ErrLineTooLong
		}
		return 0, false, nil
	}
	consumed = n
	d.state = dEnding
	d.endCR = false
	return consumed, true, nil
}

// appendUntilNewline appends src to buf until a '\n' is found or src runs
// out. On success ok is true and the returned slice is the line up to and
// including '\n'; consumed is always len(src) in the not-found case. If
// appending would exceed max, (nil, n, false) signals "too long".
func appendUntilNewline(buf, src []byte, max int) (line []byte, consumed int, ok bool) {
	for i, b := range src {
		if len(buf) >= max {
			return nil, i, false
		}
		buf = append(buf, b)
		if b == '\n' {
			return buf, i + 1, true
		}
	}
	if len(buf) > max {
		return nil, len(src), false
	}
	return buf, len(src), false
}

func trimTrailingCR(line []byte) []byte {
	line = line[:len(line)-1] // drop '\n'
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return line
}

// stripChunkExtension removes a ";ext" suffix from a chunk-size line,
// tolerating and discarding up to maxExt bytes of it.
func stripChunkExtension(line []byte, maxExt int) ([]byte, error) {
	semi := indexByte(line, ';')
	if semi == -1 {
		return line, nil
	}
	if len(line)-semi-1 > maxExt {
		return nil, ErrChunkExtTooLong
	}
	return line[:semi], nil
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func isASCIIBytes(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

// parseHexUint parses a hex chunk-size, case-insensitively.
func parseHexUint(v []byte) (uint64, error) {
	var n uint64
	for _, b := range v {
		var digit byte
		switch {
		case '0' <= b && b <= '9':
			digit = b - '0'
		case 'a' <= b && b <= 'f':
			digit = b - 'a' + 10
		case 'A' <= b && b <= 'F':
			digit = b - 'A' + 10
		default:
			return 0, ErrChunkLenNotANumber
		}
		n <<= 4
		n |= uint64(digit)
	}
	return n, nil
}
