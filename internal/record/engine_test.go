package record

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/katamari-go/katamari/internal/kerrors"
)

func TestEngineSetGetDelete(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "store")

	e, err := Open(base)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if err := e.Set("k1", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	got, err := e.Get("k1")
	if err != nil || string(got) != "v1" {
		t.Fatalf("got %q, %v; want v1, nil", got, err)
	}

	if err := e.Set("k1", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	got, err = e.Get("k1")
	if err != nil || string(got) != "v2" {
		t.Fatalf("got %q, %v; want v2, nil", got, err)
	}

	if err := e.Delete("k1"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Get("k1"); !kerrors.IsNotFound(err) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}
}

func TestEngineRecoversFromTornWAL(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "store")

	e, err := Open(base)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Set("committed", []byte("value")); err != nil {
		t.Fatal(err)
	}
	e.Close()

	// Simulate a crash mid-write: a WAL entry whose payload never
	// finished landing on disk.
	walPath := base + ".wal"
	payload := EncodeRecord("orphan", []byte("lost"))
	entry := &Entry{
		Header: Header{
			Magic:      Magic,
			Version:    WALVersion,
			EntryType:  EntryPut,
			PayloadLen: uint32(len(payload)),
			CRC32:      Checksum(payload),
		},
		Payload: payload,
	}
	f, err := os.OpenFile(walPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	var headerBuf [HeaderSize]byte
	entry.Header.encode(headerBuf[:])
	f.Write(headerBuf[:])
	f.Write(payload[:len(payload)-2]) // truncate the tail
	f.Close()

	reopened, err := Open(base)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, err := reopened.Get("committed")
	if err != nil || string(got) != "value" {
		t.Fatalf("expected prior commit to survive recovery, got %q, %v", got, err)
	}
	if _, err := reopened.Get("orphan"); !kerrors.IsNotFound(err) {
		t.Fatalf("expected torn WAL record to be dropped, got %v", err)
	}
}

func TestEngineRebuildsIndexFromDataFileWhenIndexMissing(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "store")

	e, err := Open(base)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Set("a", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := e.Set("b", []byte("2")); err != nil {
		t.Fatal(err)
	}
	e.Close()

	if err := os.Remove(base + ".idx"); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(base)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	for k, want := range map[string]string{"a": "1", "b": "2"} {
		got, err := reopened.Get(k)
		if err != nil || string(got) != want {
			t.Fatalf("key %q: got %q, %v; want %q", k, got, err, want)
		}
	}
}
