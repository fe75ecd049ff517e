package record

import (
	"io"
	"os"

	"github.com/katamari-go/katamari/internal/kerrors"
)

const maxPayloadLen = 1 << 30 // 1GB guard against reading garbage as a length

// WALReader reads WAL entries sequentially from a closed-out log file,
// the way recovery replays it at startup.
type WALReader struct {
	file   *os.File
	offset int64
}

// NewWALReader opens path for sequential reading.
func NewWALReader(path string) (*WALReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &WALReader{file: f}, nil
}

// ReadEntry reads the next entry, or returns io.EOF once the log is
// exhausted. A torn tail — a header or payload cut short by a crash
// mid-write — is reported as io.ErrUnexpectedEOF so the caller can stop
// replay at the last complete record instead of failing recovery
// outright.
func (r *WALReader) ReadEntry() (*Entry, error) {
	headerBuf := make([]byte, HeaderSize)
	n, err := io.ReadFull(r.file, headerBuf)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil || n != HeaderSize {
		return nil, io.ErrUnexpectedEOF
	}

	var header Header
	header.decode(headerBuf)

	if header.Magic != Magic {
		return nil, &kerrors.WALReplayError{Offset: r.offset, Err: io.ErrUnexpectedEOF}
	}
	if header.PayloadLen > maxPayloadLen {
		return nil, &kerrors.WALReplayError{Offset: r.offset, Err: io.ErrUnexpectedEOF}
	}

	payload := make([]byte, header.PayloadLen)
	if header.PayloadLen > 0 {
		if _, err := io.ReadFull(r.file, payload); err != nil {
			return nil, io.ErrUnexpectedEOF
		}
	}

	if !ValidateChecksum(payload, header.CRC32) {
		return nil, &kerrors.WALReplayError{Offset: r.offset, Err: io.ErrUnexpectedEOF}
	}

	r.offset += int64(HeaderSize) + int64(header.PayloadLen)
	return &Entry{Header: header, Payload: payload}, nil
}

// Close closes the underlying file.
func (r *WALReader) Close() error { return r.file.Close() }
