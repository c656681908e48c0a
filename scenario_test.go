package httpflow

import "testing"

// TestScenarioS1GetHostInjection and the others in this file exercise the
// literal input/output pairs worked through by hand while building each
// component above, now pinned down as regression tests: S1-S3 through
// Call, S4, S6 and S7 through Flow, and S5 through the Dechunker.

func TestScenarioS1GetHostInjection(t *testing.T) {
	req := plainRequest(t, GET, "http://foo.test/page")
	call, err := NewCall(req, DefaultConfig(), BodyModeNone, false)
	if err != nil {
		t.Fatal(err)
	}
	w := NewWriter(make([]byte, 256))
	call.Write(w)
	headers := call.IntoHeaders()
	headers.Write(w)
	want := "GET /page HTTP/1.1\r\nhost: foo.test\r\n\r\n"
	if string(w.Bytes()) != want {
		t.Fatalf("got %q want %q", w.Bytes(), want)
	}
}

func TestScenarioS2PostContentLength(t *testing.T) {
	req := plainRequest(t, POST, "http://f.test/page", [2]string{"content-length", "5"})
	call, err := NewCall(req, DefaultConfig(), BodyModeNone, false)
	if err != nil {
		t.Fatal(err)
	}
	w := NewWriter(make([]byte, 256))
	call.Write(w)
	headers := call.IntoHeaders()
	headers.Write(w)
	body := headers.IntoBody()
	if _, err := body.Write([]byte("hallo"), w); err != nil {
		t.Fatal(err)
	}
	want := "POST /page HTTP/1.1\r\nhost: f.test\r\ncontent-length: 5\r\n\r\nhallo"
	if string(w.Bytes()) != want {
		t.Fatalf("got %q want %q", w.Bytes(), want)
	}
}

func TestScenarioS3PostChunked(t *testing.T) {
	req := plainRequest(t, POST, "http://f.test/page", [2]string{"transfer-encoding", "chunked"})
	call, err := NewCall(req, DefaultConfig(), BodyModeNone, false)
	if err != nil {
		t.Fatal(err)
	}
	w := NewWriter(make([]byte, 256))
	call.Write(w)
	headers := call.IntoHeaders()
	headers.Write(w)
	body := headers.IntoBody()
	if !body.IsChunked() {
		t.Fatal("expected chunked body writer for transfer-encoding: chunked")
	}
	if _, err := body.Write([]byte("hallo"), w); err != nil {
		t.Fatal(err)
	}
	if _, err := body.Write(nil, w); err != nil {
		t.Fatal(err)
	}
	if !body.CanProceed() {
		t.Fatal("expected body to be ended after empty write")
	}
	want := "POST /page HTTP/1.1\r\nhost: f.test\r\ntransfer-encoding: chunked\r\n\r\n5\r\nhallo\r\n0\r\n\r\n"
	if string(w.Bytes()) != want {
		t.Fatalf("got %q want %q", w.Bytes(), want)
	}
}

func TestScenarioS4Expect100With403(t *testing.T) {
	req := plainRequest(t, POST, "http://f.test/page",
		[2]string{"content-length", "5"},
		[2]string{"expect", "100-continue"},
	)
	flow, err := NewFlow(req, DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	send := flow.Proceed()
	w := NewWriter(make([]byte, 256))
	for {
		send.Write(w)
		if send.CanProceed() {
			break
		}
	}
	await, ok := send.ProceedToAwait100()
	if !ok {
		t.Fatal("expected ProceedToAwait100")
	}
	raw := []byte("HTTP/1.1 403 Forbidden\r\n\r\n")
	consumed, err := await.TryRead100(raw)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != 0 {
		t.Fatalf("consumed = %d, want 0", consumed)
	}
	recv, ok := await.ProceedToRecvResponse()
	if !ok {
		t.Fatal("expected ProceedToRecvResponse after a non-100 status")
	}
	n, resp, err := recv.TryResponse(raw)
	if err != nil || resp == nil {
		t.Fatalf("err=%v resp=%v", err, resp)
	}
	if resp.StatusCode != 403 {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if n != len(raw) {
		t.Fatalf("consumed = %d, want %d", n, len(raw))
	}
}

func TestScenarioS5ChunkedBodyInParts(t *testing.T) {
	got := drainDechunker(t, []string{"5\r", "5\r\nhel", "lo", "\r\n", "0\r\n\r\n"})
	if string(got) != "hello" {
		t.Fatalf("got %q want %q", got, "hello")
	}
}

func TestScenarioS6Redirect302Absolute(t *testing.T) {
	req := plainRequest(t, GET, "https://a.test/")
	flow, err := NewFlow(req, DefaultConfig(), RedirectAuthNever)
	if err != nil {
		t.Fatal(err)
	}
	send := flow.Proceed()
	w := NewWriter(make([]byte, 256))
	for {
		send.Write(w)
		if send.CanProceed() {
			break
		}
	}
	recv, ok := send.ProceedToRecvResponse()
	if !ok {
		t.Fatal("expected direct RecvResponse for bodyless GET")
	}
	recv.TryResponse([]byte("HTTP/1.1 302 Found\r\nLocation: https://b.test/\r\n\r\n"))
	redirect, ok := recv.ProceedToRedirect()
	if !ok {
		t.Fatal("expected ProceedToRedirect")
	}
	next, err := redirect.AsNewFlow(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	amended := next.core.call.core.amended
	if amended.Method() != GET {
		t.Fatalf("method = %s, want GET", amended.Method())
	}
	if amended.URI().String() != "https://b.test/" {
		t.Fatalf("uri = %s, want https://b.test/", amended.URI())
	}
	var hasAuth bool
	amended.ForEachHeader(func(name, value string) bool {
		if name == "authorization" {
			hasAuth = true
		}
		return true
	})
	if hasAuth {
		t.Fatal("expected no authorization header under RedirectAuthNever")
	}
	var hostValue string
	amended.ForEachHeader(func(name, value string) bool {
		if name == "host" {
			hostValue = value
		}
		return true
	})
	if hostValue != "b.test" {
		t.Fatalf("host = %q, want %q", hostValue, "b.test")
	}
	nextSend := next.Proceed()
	nw := NewWriter(make([]byte, 256))
	for {
		nextSend.Write(nw)
		if nextSend.CanProceed() {
			break
		}
	}
	wantPrelude := "GET / HTTP/1.1\r\nhost: b.test\r\n\r\n"
	if string(nw.Bytes()) != wantPrelude {
		t.Fatalf("prelude = %q, want %q", nw.Bytes(), wantPrelude)
	}
}

func TestScenarioS7Redirect302Relative(t *testing.T) {
	req := plainRequest(t, GET, "https://a.test/x/foo.html")
	flow, err := NewFlow(req, DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	send := flow.Proceed()
	w := NewWriter(make([]byte, 256))
	for {
		send.Write(w)
		if send.CanProceed() {
			break
		}
	}
	recv, _ := send.ProceedToRecvResponse()
	recv.TryResponse([]byte("HTTP/1.1 302 Found\r\nLocation: y/bar.html\r\n\r\n"))
	redirect, ok := recv.ProceedToRedirect()
	if !ok {
		t.Fatal("expected ProceedToRedirect")
	}
	next, err := redirect.AsNewFlow(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	want := "https://a.test/x/y/bar.html"
	if next.core.call.core.amended.URI().String() != want {
		t.Fatalf("uri = %s, want %s", next.core.call.core.amended.URI(), want)
	}
}
