package orm

import (
	"bufio"
	"os"
	"sync"

	"github.com/katamari-go/katamari/internal/kerrors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// txLogEntry is one pending write recorded ahead of a Set, so a Set
// that fails before its commit can roll back the keys it logged.
// Delete writes no entry, and the log is not read when the ORM opens.
type txLogEntry struct {
	TransactionID string         `bson:"transaction_id"`
	Key           string         `bson:"key"`
	Op            string         `bson:"op"` // Set writes "set"
	Value         map[string]any `bson:"value,omitempty"`
	TTLSeconds    int64          `bson:"ttl_seconds,omitempty"`
}

// txLog is a newline-delimited JSON log of in-flight operations,
// encoded through bson's extended-JSON writer rather than
// encoding/json.
type txLog struct {
	mu   sync.Mutex
	path string
}

func newTxLog(path string) *txLog {
	return &txLog{path: path}
}

// Write appends entry as one line of extended JSON.
func (l *txLog) Write(entry txLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := bson.MarshalExtJSON(entry, false, false)
	if err != nil {
		return &kerrors.CodecError{Op: "marshal tx log entry", Err: err}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &kerrors.IOError{Op: "open tx log", Path: l.path, Err: err}
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return &kerrors.IOError{Op: "write tx log", Path: l.path, Err: err}
	}
	return f.Sync()
}

// Read returns every entry currently recorded in the log, used for
// rollback: each one names a write that was staged but never cleared.
func (l *txLog) Read() ([]txLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &kerrors.IOError{Op: "open tx log", Path: l.path, Err: err}
	}
	defer f.Close()

	var entries []txLogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry txLogEntry
		if err := bson.UnmarshalExtJSON(line, false, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// Clear truncates the log, the transactional equivalent of a commit.
func (l *txLog) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.WriteFile(l.path, nil, 0o644); err != nil {
		return &kerrors.IOError{Op: "clear tx log", Path: l.path, Err: err}
	}
	return nil
}
