/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpflow

import (
	"strconv"

	"github.com/badu/httpflow/hdr"
)

// ResponseParser accumulates a status line and a bounded header table out
// of caller-fed byte slices, never blocking and never owning a buffer of
// its own. Adapted from hdr.NewHeaderReader / public_response.go's
// ReadResponse, which drove the same grammar off a bufio.Reader; here the
// reader is replaced by repeated Feed calls over borrowed input.
type ResponseParser struct {
	maxHeaders int

	line       []byte // accumulates the current line across partial Feeds
	sawStatus  bool
	response   Response
	headerRows int

	done bool
}

// NewResponseParser returns a parser bounded to maxHeaders header lines;
// pass 0 to use defaultMaxResponseHeaders.
func NewResponseParser(maxHeaders int) *ResponseParser {
	if maxHeaders <= 0 {
		maxHeaders = defaultMaxResponseHeaders
	}
	return &ResponseParser{maxHeaders: maxHeaders, response: Response{Header: hdr.New()}}
}

// ParseOutcome is the disposition Feed returns after consuming a prefix
// of src.
type ParseOutcome int

const (
	// ParseIncomplete means Feed consumed what it could but needs more
	// input before a full status line or header block is available.
	ParseIncomplete ParseOutcome = iota
	// ParseComplete means the blank line terminating the header block was
	// seen; Response() now returns the parsed result.
	ParseComplete
	// ParseTooManyHeaders means the header count exceeded maxHeaders.
	// Await100 treats this as a signal, not necessarily fatal.
	ParseTooManyHeaders
)

// Feed consumes a prefix of src, returning how many bytes it used and the
// resulting outcome. Call repeatedly with fresh input until outcome is
// not ParseIncomplete. Once Complete or TooManyHeaders is returned, the
// parser must not be fed again.
func (p *ResponseParser) Feed(src []byte) (consumed int, outcome ParseOutcome, err error) {
	if p.done {
		return 0, ParseComplete, nil
	}
	total := 0
	for total < len(src) {
		line, n, ok := appendUntilNewline(p.line, src[total:], maxLineLength)
		if !ok {
			total += n
			if line == nil {
				p.done = true
				return total, ParseIncomplete, ErrLineTooLong
			}
			p.line = line
			return total, ParseIncomplete, nil
		}
		total += n
		p.line = nil
		line = trimTrailingCR(line)

		if !p.sawStatus {
			if err := p.parseStatusLine(line); err != nil {
				return total, ParseIncomplete, err
			}
			p.sawStatus = true
			continue
		}

		if len(line) == 0 {
			p.done = true
			return total, ParseComplete, nil
		}

		p.headerRows++
		if p.headerRows > p.maxHeaders {
			p.done = true
			return total, ParseTooManyHeaders, nil
		}
		if err := p.parseHeaderLine(line); err != nil {
			return total, ParseIncomplete, err
		}
	}
	return total, ParseIncomplete, nil
}

// Response returns the parsed response. Only meaningful after Feed has
// returned ParseComplete.
func (p *ResponseParser) Response() *Response { return &p.response }

func (p *ResponseParser) parseStatusLine(line []byte) error {
	i := indexByte(line, ' ')
	if i == -1 {
		return &HTTPParseFailError{Reason: "malformed status line"}
	}
	proto := string(line[:i])
	rest := line[i+1:]
	for len(rest) > 0 && rest[0] == ' ' {
		rest = rest[1:]
	}

	major, minor, ok := parseHTTPVersion(proto)
	if !ok {
		return ErrMissingResponseVersion
	}
	switch {
	case major == 1 && minor == 0:
		p.response.Version = HTTP10
	case major == 1 && minor == 1:
		p.response.Version = HTTP11
	default:
		return ErrUnsupportedVersion
	}

	j := indexByte(rest, ' ')
	statusText := rest
	if j != -1 {
		statusText = rest[:j]
	}
	if len(statusText) != 3 {
		return ErrResponseMissingStatus
	}
	code, err := strconv.Atoi(string(statusText))
	if err != nil || code < 0 || code > 999 {
		return ErrResponseInvalidStatus
	}
	p.response.StatusCode = code
	p.response.Status = string(rest)
	return nil
}

func (p *ResponseParser) parseHeaderLine(line []byte) error {
	i := indexByte(line, ':')
	if i < 1 {
		return &HTTPParseFailError{Reason: "malformed header line"}
	}
	name := string(line[:i])
	value := line[i+1:]
	for len(value) > 0 && (value[0] == ' ' || value[0] == '\t') {
		value = value[1:]
	}
	p.response.Header.Add(name, string(value))
	return nil
}

// parseHTTPVersion parses an "HTTP/major.minor" token, adapted from
// ParseHTTPVersion in types_http.go but scoped to the 1.x family this
// engine speaks.
func parseHTTPVersion(proto string) (major, minor int, ok bool) {
	const prefix = "HTTP/"
	if len(proto) != len(prefix)+3 || proto[:len(prefix)] != prefix {
		return 0, 0, false
	}
	if proto[len(prefix)+1] != '.' {
		return 0, 0, false
	}
	major = int(proto[len(prefix)] - '0')
	minor = int(proto[len(prefix)+2] - '0')
	if major < 0 || major > 9 || minor < 0 || minor > 9 {
		return 0, 0, false
	}
	return major, minor, true
}
