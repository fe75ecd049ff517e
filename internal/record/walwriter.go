package record

import (
	"bufio"
	"os"
	"sync"
	"sync/atomic"

	"github.com/katamari-go/katamari/internal/kerrors"
)

// WALWriter appends entries to the write-ahead log, fsyncing after every
// write. Crash recovery only holds if the WAL record lands on disk
// before the data-file record it guards, so unlike a batched or
// interval sync policy, this writer always syncs before returning from
// WriteEntry.
type WALWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	seq    uint64
}

// NewWALWriter opens (or creates) the WAL file at path for appending.
func NewWALWriter(path string) (*WALWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &kerrors.IOError{Op: "open wal", Path: path, Err: err}
	}
	return &WALWriter{
		file:   f,
		writer: bufio.NewWriterSize(f, 64*1024),
	}, nil
}

// WriteEntry frames payload as entryType, appends it to the WAL, and
// fsyncs before returning.
func (w *WALWriter) WriteEntry(entryType uint8, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry := &Entry{
		Header: Header{
			Magic:      Magic,
			Version:    WALVersion,
			EntryType:  entryType,
			Seq:        atomic.AddUint64(&w.seq, 1),
			PayloadLen: uint32(len(payload)),
			CRC32:      Checksum(payload),
		},
		Payload: payload,
	}
	if _, err := entry.WriteTo(w.writer); err != nil {
		return &kerrors.IOError{Op: "write wal entry", Path: w.file.Name(), Err: err}
	}
	if err := w.writer.Flush(); err != nil {
		return &kerrors.IOError{Op: "flush wal", Path: w.file.Name(), Err: err}
	}
	if err := w.file.Sync(); err != nil {
		return &kerrors.IOError{Op: "fsync wal", Path: w.file.Name(), Err: err}
	}
	return nil
}

// Truncate clears the WAL back to empty, called once the corresponding
// data-file write and index update have both landed.
func (w *WALWriter) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Truncate(0); err != nil {
		return &kerrors.IOError{Op: "truncate wal", Path: w.file.Name(), Err: err}
	}
	if _, err := w.file.Seek(0, 0); err != nil {
		return &kerrors.IOError{Op: "seek wal", Path: w.file.Name(), Err: err}
	}
	atomic.StoreUint64(&w.seq, 0)
	return nil
}

// Close flushes and closes the WAL file.
func (w *WALWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
