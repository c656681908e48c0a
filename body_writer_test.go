package httpflow

import "testing"

func TestSizedBodyWriterWritesExactlyN(t *testing.T) {
	bw := SizedBodyWriter(5)
	buf := make([]byte, 32)
	w := NewWriter(buf)
	n, err := bw.Write([]byte("hallo"), w)
	if err != nil || n != 5 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if !bw.IsEnded() {
		t.Fatal("expected ended after writing remaining bytes")
	}
	if string(w.Bytes()) != "hallo" {
		t.Fatalf("wrote %q", w.Bytes())
	}
}

func TestSizedBodyWriterEmptyWriteDoesNotFinish(t *testing.T) {
	bw := SizedBodyWriter(5)
	w := NewWriter(make([]byte, 32))
	n, err := bw.Write(nil, w)
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if bw.IsEnded() {
		t.Fatal("empty write must not finish a sized body with remaining > 0")
	}
}

func TestSizedBodyWriterOverflow(t *testing.T) {
	bw := SizedBodyWriter(3)
	w := NewWriter(make([]byte, 32))
	_, err := bw.Write([]byte("toolong"), w)
	if err != ErrBodyLargerThanContentLen {
		t.Fatalf("err = %v, want ErrBodyLargerThanContentLen", err)
	}
}

func TestSizedBodyWriterAfterFinish(t *testing.T) {
	bw := SizedBodyWriter(0)
	if !bw.IsEnded() {
		t.Fatal("zero-length sized writer should start ended")
	}
	w := NewWriter(make([]byte, 32))
	_, err := bw.Write([]byte("x"), w)
	if err != ErrBodyContentAfterFinish {
		t.Fatalf("err = %v", err)
	}
}

func TestChunkedBodyWriterEmitsFramesThenTerminator(t *testing.T) {
	bw := ChunkedBodyWriter(defaultChunkSize)
	w := NewWriter(make([]byte, 64))
	n, err := bw.Write([]byte("hallo"), w)
	if err != nil || n != 5 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	n, err = bw.Write(nil, w)
	if err != nil || n != 0 {
		t.Fatalf("terminator write n=%d err=%v", n, err)
	}
	if !bw.IsEnded() {
		t.Fatal("expected ended after terminator")
	}
	want := "5\r\nhallo\r\n0\r\n\r\n"
	if string(w.Bytes()) != want {
		t.Fatalf("got %q want %q", w.Bytes(), want)
	}
}

func TestChunkedRoundTripThroughDechunker(t *testing.T) {
	bw := ChunkedBodyWriter(4) // small chunk size to force multiple frames
	input := []byte("the quick brown fox jumps over the lazy dog")
	out := make([]byte, 0, len(input)*2)
	buf := make([]byte, 1024)

	remaining := input
	for {
		w := NewWriter(buf)
		n, err := bw.Write(remaining, w)
		if err != nil {
			t.Fatalf("write error: %v", err)
		}
		remaining = remaining[n:]
		out = append(out, w.Bytes()...)
		if len(remaining) == 0 {
			w2 := NewWriter(buf)
			bw.Write(nil, w2)
			out = append(out, w2.Bytes()...)
			break
		}
	}

	d := NewDechunker(maxChunkExtBytes)
	decoded := make([]byte, 0, len(input))
	dst := make([]byte, 1024)
	src := out
	for !d.IsEnded() {
		sUsed, dUsed, err := d.Read(src, dst, false)
		if err != nil {
			t.Fatalf("dechunk error: %v", err)
		}
		decoded = append(decoded, dst[:dUsed]...)
		src = src[sUsed:]
		if sUsed == 0 && dUsed == 0 {
			break
		}
	}
	if string(decoded) != string(input) {
		t.Fatalf("round trip mismatch: got %q want %q", decoded, input)
	}
}

func TestBodyHeaderForEachMode(t *testing.T) {
	if _, _, ok := NoneBodyWriter().BodyHeader(); ok {
		t.Fatal("none mode should have no body header")
	}
	name, value, ok := SizedBodyWriter(5).BodyHeader()
	if !ok || name != "content-length" || value != "5" {
		t.Fatalf("sized header = %q %q %v", name, value, ok)
	}
	name, value, ok = ChunkedBodyWriter(0).BodyHeader()
	if !ok || name != "transfer-encoding" || value != DoChunked {
		t.Fatalf("chunked header = %q %q %v", name, value, ok)
	}
}
