// Package kerrors defines the typed error kinds shared by every core
// component (record, mvcc, codec, search, orm, dispatch), in the same
// struct-per-kind style the storage engine this module grew out of used for
// table/index errors, wrapped with cockroachdb/errors instead of bare
// fmt.Errorf so callers keep stack traces across package boundaries.
package kerrors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// NotFoundError reports a missing key, either in the MVCC store, the
// on-disk engine, or a version lookup that walked off the end of a
// key's history.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("key %q not found", e.Key)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// SchemaError reports an unsupported field type while building a search
// schema. Schema misconfiguration is fatal at construction time.
type SchemaError struct {
	Field string
	Type  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("unsupported field type %q for field %q", e.Type, e.Field)
}

// CodecError wraps a JSON decode failure, a checksum mismatch on
// read-back, or an invalid compression payload.
type CodecError struct {
	Op  string
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec: %s: %v", e.Op, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

// IOError wraps a file open/read/write/fsync failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io: %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// WALReplayError reports a short or malformed WAL record encountered
// during recovery. It is not fatal: recovery truncates at the first bad
// record and continues with whatever was already applied.
type WALReplayError struct {
	Offset int64
	Err    error
}

func (e *WALReplayError) Error() string {
	return fmt.Sprintf("wal replay stopped at offset %d: %v", e.Offset, e.Err)
}

func (e *WALReplayError) Unwrap() error { return e.Err }

// TransactionError reports an unknown tx_id passed to Commit or Get.
// Callers log it and treat the operation as a no-op.
type TransactionError struct {
	TxID string
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("unknown transaction %q", e.TxID)
}

// ProtocolError reports a malformed WebSocket frame. The connection that
// produced it remains open; the frame is dropped.
type ProtocolError struct {
	WorkerID string
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error from worker %q: %v", e.WorkerID, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TimeoutError reports a lambda invocation that exceeded its deadline.
type TimeoutError struct {
	Name    string
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%q exceeded timeout %s", e.Name, e.Timeout)
}

// ConcurrencyLimitError reports a skipped invocation because the
// scheduler's concurrency gate was saturated.
type ConcurrencyLimitError struct {
	Name  string
	Limit int
}

func (e *ConcurrencyLimitError) Error() string {
	return fmt.Sprintf("%q skipped: concurrency limit %d reached", e.Name, e.Limit)
}

// Wrap annotates err with msg using cockroachdb/errors, preserving the
// original error for errors.Is/As and adding a captured stack trace.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Wrapf is the formatted form of Wrap.
func Wrapf(err error, format string, args ...any) error {
	return errors.Wrapf(err, format, args...)
}

// New constructs a stack-carrying error, for call sites with no
// underlying error to wrap.
func New(msg string) error {
	return errors.New(msg)
}
