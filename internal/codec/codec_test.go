package codec

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEncodeIsCanonicalRegardlessOfKeyOrder(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2, "c": 3}
	b := map[string]any{"c": 3, "a": 2, "b": 1}

	encA, err := Encode(a)
	if err != nil {
		t.Fatal(err)
	}
	encB, err := Encode(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(encA) != string(encB) {
		t.Fatalf("expected canonical encodings to match, got %q vs %q", encA, encB)
	}
}

func TestProcessUnprocessRoundTripZlib(t *testing.T) {
	value := map[string]any{"name": "widget", "count": float64(7)}
	opts := Options{Algorithm: Zlib}

	p, err := Process(value, opts)
	if err != nil {
		t.Fatal(err)
	}

	raw, err := Unprocess(p, opts)
	if err != nil {
		t.Fatal(err)
	}

	want, err := Encode(value)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != string(want) {
		t.Fatalf("got %q, want %q", raw, want)
	}
}

func TestProcessUnprocessRoundTripZstd(t *testing.T) {
	value := map[string]any{"name": "widget", "tags": []any{"a", "b"}}
	opts := Options{Algorithm: Zstd}

	p, err := Process(value, opts)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := Unprocess(p, opts)
	if err != nil {
		t.Fatal(err)
	}
	want, err := Encode(value)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != string(want) {
		t.Fatalf("got %q, want %q", raw, want)
	}
}

func TestUnprocessDetectsChecksumTampering(t *testing.T) {
	p, err := Process(map[string]any{"x": 1}, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	p.Checksum = "0000000000000000000000000000000000000000000000000000000000000000"

	if _, err := Unprocess(p, DefaultOptions()); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestProcessFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.bin")
	content := []byte("arbitrary file bytes, not JSON")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions()
	p, err := ProcessFile(path, opts)
	if err != nil {
		t.Fatal(err)
	}
	if p.ContentType != "application/octet-stream" {
		t.Fatalf("unexpected content type %q", p.ContentType)
	}

	compressed, err := Unframe(p.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if Checksum(compressed) != p.Checksum {
		t.Fatal("checksum does not match framed payload")
	}
	raw, err := Decompress(compressed, opts)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != string(content) {
		t.Fatalf("got %q, want %q", raw, content)
	}
}

func TestChecksumIsDeterministic(t *testing.T) {
	a := Checksum([]byte("hello"))
	b := Checksum([]byte("hello"))
	if a != b {
		t.Fatal("expected identical checksums for identical input")
	}
	if a == Checksum([]byte("hello!")) {
		t.Fatal("expected different checksums for different input")
	}
}
