package record

import (
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/katamari-go/katamari/internal/kerrors"
	"github.com/katamari-go/katamari/internal/klog"
	"github.com/katamari-go/katamari/internal/kmetrics"
	"golang.org/x/sys/unix"
)

// Engine is the on-disk binary record store: a flat data file, an
// in-memory offset index persisted as JSON, and a write-ahead log that
// makes Set crash-recoverable.
type Engine struct {
	mu        sync.RWMutex
	writeMu   sync.Mutex // serializes Set and Delete within this process
	dataPath  string
	indexPath string
	walPath   string

	dataFile *os.File
	index    map[string]int64
	wal      *WALWriter
}

// Open opens (or creates) the engine backed by the three files derived
// from baseName: baseName+".dat", baseName+".idx", baseName+".wal". It
// loads the index, then replays and clears any WAL left behind by a
// crash before the previous process exited.
func Open(baseName string) (*Engine, error) {
	e := &Engine{
		dataPath:  baseName + ".dat",
		indexPath: baseName + ".idx",
		walPath:   baseName + ".wal",
		index:     make(map[string]int64),
	}

	dataFile, err := os.OpenFile(e.dataPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, &kerrors.IOError{Op: "open data file", Path: e.dataPath, Err: err}
	}
	e.dataFile = dataFile

	if err := e.loadIndex(); err != nil {
		return nil, err
	}
	if err := e.recoverFromWAL(); err != nil {
		return nil, err
	}

	wal, err := NewWALWriter(e.walPath)
	if err != nil {
		return nil, err
	}
	e.wal = wal

	return e, nil
}

// loadIndex reads the persisted JSON index, or rebuilds it by scanning
// the data file from the start when no index file exists yet (e.g. the
// index file was lost but the data file wasn't).
func (e *Engine) loadIndex() error {
	data, err := os.ReadFile(e.indexPath)
	if err == nil {
		return json.Unmarshal(data, &e.index)
	}
	if !os.IsNotExist(err) {
		return &kerrors.IOError{Op: "read index", Path: e.indexPath, Err: err}
	}
	return e.rebuildIndexFromDataFile()
}

func (e *Engine) rebuildIndexFromDataFile() error {
	if _, err := e.dataFile.Seek(0, io.SeekStart); err != nil {
		return &kerrors.IOError{Op: "seek data file", Path: e.dataPath, Err: err}
	}
	var offset int64
	for {
		header := make([]byte, 8)
		n, err := io.ReadFull(e.dataFile, header)
		if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
			break
		}
		if err != nil {
			break
		}
		keySize := beUint32(header[0:4])
		valueSize := beUint32(header[4:8])
		keyBuf := make([]byte, keySize)
		if _, err := io.ReadFull(e.dataFile, keyBuf); err != nil {
			break
		}
		if _, err := e.dataFile.Seek(int64(valueSize), io.SeekCurrent); err != nil {
			break
		}
		// Latest offset for a key wins, matching append-only overwrite
		// semantics: a key written twice simply has two records, and the
		// index should point at the most recent one.
		e.index[string(keyBuf)] = offset
		offset += 8 + int64(keySize) + int64(valueSize)
	}
	return nil
}

// recoverFromWAL replays any records left in the WAL from an interrupted
// Set, appending each to the data file and updating the index, then
// removes the WAL and persists the rebuilt index. A torn final record
// (the crash happened mid-write) is simply not replayed.
func (e *Engine) recoverFromWAL() error {
	if _, err := os.Stat(e.walPath); os.IsNotExist(err) {
		return nil
	}

	reader, err := NewWALReader(e.walPath)
	if err != nil {
		return &kerrors.IOError{Op: "open wal for recovery", Path: e.walPath, Err: err}
	}
	defer reader.Close()

	replayed := 0
	for {
		entry, err := reader.ReadEntry()
		if err == io.EOF {
			break
		}
		if err != nil {
			klog.Component("record").Info().Msg("wal recovery stopped at a torn record")
			break
		}

		key, value, ok := DecodeRecord(entry.Payload)
		if !ok {
			break
		}

		switch entry.Header.EntryType {
		case EntryPut:
			if err := e.appendRecordLocked(key, value); err != nil {
				return err
			}
		case EntryDelete:
			e.mu.Lock()
			delete(e.index, key)
			e.mu.Unlock()
		}
		replayed++
	}

	if err := os.Remove(e.walPath); err != nil && !os.IsNotExist(err) {
		return &kerrors.IOError{Op: "remove wal", Path: e.walPath, Err: err}
	}
	if replayed > 0 {
		return e.persistIndex()
	}
	return nil
}

// appendRecordLocked appends a record to the data file and updates the
// index, taking e.mu itself for the index update. Callers either run
// before the engine is shared (recovery) or hold e.writeMu (Set), so no
// two appends interleave.
func (e *Engine) appendRecordLocked(key string, value []byte) error {
	offset, err := e.dataFile.Seek(0, io.SeekEnd)
	if err != nil {
		return &kerrors.IOError{Op: "seek data file", Path: e.dataPath, Err: err}
	}
	buf := EncodeRecord(key, value)
	if _, err := e.dataFile.Write(buf); err != nil {
		return &kerrors.IOError{Op: "write data file", Path: e.dataPath, Err: err}
	}
	if err := e.dataFile.Sync(); err != nil {
		return &kerrors.IOError{Op: "fsync data file", Path: e.dataPath, Err: err}
	}
	e.mu.Lock()
	e.index[key] = offset
	e.mu.Unlock()
	return nil
}

func (e *Engine) persistIndex() error {
	e.mu.RLock()
	data, err := json.Marshal(e.index)
	e.mu.RUnlock()
	if err != nil {
		return &kerrors.CodecError{Op: "marshal index", Err: err}
	}
	if err := os.WriteFile(e.indexPath, data, 0o644); err != nil {
		return &kerrors.IOError{Op: "write index", Path: e.indexPath, Err: err}
	}
	return nil
}

// Set writes value for key: WAL first, then the data file, then the
// persisted index, then the WAL is truncated. A crash at any point
// before the WAL truncation leaves a record that recovery will replay.
func (e *Engine) Set(key string, value []byte) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := flockExclusive(e.dataFile); err != nil {
		return err
	}
	defer flockUnlock(e.dataFile)

	payload := EncodeRecord(key, value)
	if err := e.wal.WriteEntry(EntryPut, payload); err != nil {
		return err
	}
	if err := e.appendRecordLocked(key, value); err != nil {
		return err
	}
	if err := e.persistIndex(); err != nil {
		return err
	}
	if err := e.wal.Truncate(); err != nil {
		return err
	}
	kmetrics.RecordWrites.Inc()
	return nil
}

// Get reads the value currently indexed for key.
func (e *Engine) Get(key string) ([]byte, error) {
	e.mu.RLock()
	offset, ok := e.index[key]
	e.mu.RUnlock()
	if !ok {
		return nil, &kerrors.NotFoundError{Key: key}
	}

	header := make([]byte, 8)
	if _, err := e.dataFile.ReadAt(header, offset); err != nil {
		return nil, &kerrors.IOError{Op: "read data file", Path: e.dataPath, Err: err}
	}
	keySize := beUint32(header[0:4])
	valueSize := beUint32(header[4:8])
	value := make([]byte, valueSize)
	if _, err := e.dataFile.ReadAt(value, offset+8+int64(keySize)); err != nil {
		return nil, &kerrors.IOError{Op: "read data file", Path: e.dataPath, Err: err}
	}
	kmetrics.RecordReads.Inc()
	return value, nil
}

// Delete removes key from the index. The underlying data file bytes are
// left in place and reclaimed only by a future compaction pass; this
// matches the write-once, append-only nature of the rest of the engine.
func (e *Engine) Delete(key string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.mu.Lock()
	_, ok := e.index[key]
	if !ok {
		e.mu.Unlock()
		return &kerrors.NotFoundError{Key: key}
	}
	delete(e.index, key)
	e.mu.Unlock()

	if err := e.wal.WriteEntry(EntryDelete, EncodeRecord(key, nil)); err != nil {
		return err
	}
	if err := e.persistIndex(); err != nil {
		return err
	}
	return e.wal.Truncate()
}

// Keys returns every currently-indexed key, in no particular order.
func (e *Engine) Keys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]string, 0, len(e.index))
	for k := range e.index {
		keys = append(keys, k)
	}
	return keys
}

// Items returns every currently-indexed key and its value.
func (e *Engine) Items() (map[string][]byte, error) {
	keys := e.Keys()
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, err := e.Get(k)
		if err != nil {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// Close releases the engine's open file handles.
func (e *Engine) Close() error {
	if err := e.wal.Close(); err != nil {
		return err
	}
	return e.dataFile.Close()
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func flockExclusive(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return &kerrors.IOError{Op: "flock", Path: f.Name(), Err: err}
	}
	return nil
}

func flockUnlock(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
