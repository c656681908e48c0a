package httpflow

import "testing"

func feedAll(t *testing.T, p *ResponseParser, raw string) ParseOutcome {
	t.Helper()
	src := []byte(raw)
	for len(src) > 0 {
		n, outcome, err := p.Feed(src)
		if err != nil {
			t.Fatalf("Feed error: %v", err)
		}
		src = src[n:]
		if outcome != ParseIncomplete {
			return outcome
		}
		if n == 0 {
			t.Fatal("Feed made no progress on non-empty input")
		}
	}
	return ParseIncomplete
}

func TestResponseParserBasic(t *testing.T) {
	p := NewResponseParser(0)
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\nContent-Type: text/plain\r\n\r\n"
	if outcome := feedAll(t, p, raw); outcome != ParseComplete {
		t.Fatalf("outcome = %v, want ParseComplete", outcome)
	}
	resp := p.Response()
	if resp.StatusCode != 200 || resp.Version != HTTP11 {
		t.Fatalf("status=%d version=%v", resp.StatusCode, resp.Version)
	}
	if resp.Header.Get("content-length") != "5" {
		t.Fatalf("content-length = %q", resp.Header.Get("content-length"))
	}
	if resp.Header.Get("content-type") != "text/plain" {
		t.Fatalf("content-type = %q", resp.Header.Get("content-type"))
	}
}

func TestResponseParserPiecewiseFeed(t *testing.T) {
	p := NewResponseParser(0)
	pieces := []string{"HTTP/1.", "1 404 Not Fou", "nd\r\nX-A: 1\r", "\n\r\n"}
	var outcome ParseOutcome
	for _, piece := range pieces {
		src := []byte(piece)
		for len(src) > 0 {
			n, o, err := p.Feed(src)
			if err != nil {
				t.Fatalf("Feed error: %v", err)
			}
			src = src[n:]
			outcome = o
			if n == 0 {
				break
			}
		}
	}
	if outcome != ParseComplete {
		t.Fatalf("outcome = %v, want ParseComplete", outcome)
	}
	if p.Response().StatusCode != 404 {
		t.Fatalf("status = %d", p.Response().StatusCode)
	}
}

func TestResponseParserTooManyHeaders(t *testing.T) {
	p := NewResponseParser(2)
	raw := "HTTP/1.1 200 OK\r\nA: 1\r\nB: 2\r\nC: 3\r\n\r\n"
	if outcome := feedAll(t, p, raw); outcome != ParseTooManyHeaders {
		t.Fatalf("outcome = %v, want ParseTooManyHeaders", outcome)
	}
}

func TestResponseParserMalformedStatusLine(t *testing.T) {
	p := NewResponseParser(0)
	_, _, err := p.Feed([]byte("not a status line\r\n"))
	if err == nil {
		t.Fatal("expected error for malformed status line")
	}
}

func TestResponseParserHTTP10(t *testing.T) {
	p := NewResponseParser(0)
	raw := "HTTP/1.0 200 OK\r\n\r\n"
	if outcome := feedAll(t, p, raw); outcome != ParseComplete {
		t.Fatalf("outcome = %v", outcome)
	}
	if p.Response().Version != HTTP10 {
		t.Fatalf("version = %v, want HTTP10", p.Response().Version)
	}
}
