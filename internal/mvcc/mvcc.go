// Package mvcc implements the versioned key-value store at the core of
// this module: every Put appends a new version rather than overwriting,
// every Get is answered against the caller's transaction snapshot, and
// no two transactions ever block each other or detect conflicts — the
// last committer for a key always wins, write-your-own semantics
// rather than optimistic conflict detection.
package mvcc

import (
	"sync"

	"github.com/katamari-go/katamari/internal/kerrors"
)

// VersionedValue is one committed revision of a key. Version is 1-based
// and monotonic per key: the Nth value ever committed for a key carries
// Version N, so Version always equals the key's history length at the
// time it was appended.
type VersionedValue struct {
	Value     any
	Version   int64
	Timestamp int64
	Deleted   bool
}

// keyHistory is the append-only version chain for a single key, newest
// version last.
type keyHistory struct {
	mu       sync.RWMutex
	versions []VersionedValue
}

func (h *keyHistory) visibleAt(asOf int64) (VersionedValue, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var best VersionedValue
	found := false
	for _, v := range h.versions {
		if v.Timestamp > asOf {
			break
		}
		best = v
		found = true
	}
	return best, found
}

// append assigns v the next version number for this key (history
// length + 1) and returns it.
func (h *keyHistory) append(v VersionedValue) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	v.Version = int64(len(h.versions) + 1)
	h.versions = append(h.versions, v)
	return v.Version
}

// Store holds every key's version history and the monotonic clock that
// timestamps transaction starts and commits.
type Store struct {
	mu       sync.RWMutex
	keys     map[string]*keyHistory
	clock    *TimestampTracker
	registry *TransactionRegistry
}

// NewStore constructs an empty versioned store.
func NewStore() *Store {
	return &Store{
		keys:     make(map[string]*keyHistory),
		clock:    NewTimestampTracker(),
		registry: NewTransactionRegistry(),
	}
}

func (s *Store) historyFor(key string) *keyHistory {
	s.mu.RLock()
	h, ok := s.keys[key]
	s.mu.RUnlock()
	if ok {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.keys[key]; ok {
		return h
	}
	h = &keyHistory{}
	s.keys[key] = h
	return h
}

// Transaction buffers a set of writes that become visible to the rest of
// the store only at Commit. Reads within the transaction see its own
// buffered writes immediately (read-your-writes) layered over the
// store's state as of StartTime (snapshot isolation).
type Transaction struct {
	ID        string
	StartTime int64

	store   *Store
	mu      sync.Mutex
	writes  map[string]any
	deletes map[string]bool
	done    bool
}

// Begin starts a new transaction snapshotted at the store's current
// clock value and registers it as active.
func (s *Store) Begin(id string) *Transaction {
	tx := &Transaction{
		ID:        id,
		StartTime: s.clock.Next(),
		store:     s,
		writes:    make(map[string]any),
		deletes:   make(map[string]bool),
	}
	s.registry.Register(tx)
	return tx
}

// Get resolves key against tx's own buffered writes first, then falls
// back to the store's state as of tx.StartTime.
func (s *Store) Get(tx *Transaction, key string) (any, error) {
	tx.mu.Lock()
	if tx.deletes[key] {
		tx.mu.Unlock()
		return nil, &kerrors.NotFoundError{Key: key}
	}
	if v, ok := tx.writes[key]; ok {
		tx.mu.Unlock()
		return v, nil
	}
	tx.mu.Unlock()

	v, ok := s.historyFor(key).visibleAt(tx.StartTime)
	if !ok || v.Deleted {
		return nil, &kerrors.NotFoundError{Key: key}
	}
	return v.Value, nil
}

// Put buffers value for key within tx; it is not visible to any other
// transaction until Commit.
func (s *Store) Put(tx *Transaction, key string, value any) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	delete(tx.deletes, key)
	tx.writes[key] = value
}

// Delete buffers a tombstone for key within tx.
func (s *Store) Delete(tx *Transaction, key string) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	delete(tx.writes, key)
	tx.deletes[key] = true
}

// Commit assigns every buffered write a single new commit timestamp,
// appends it to each key's version chain, and unregisters tx. It
// returns the commit timestamp together with the per-key version
// number (1-based, equal to that key's history length) each written
// or deleted key was assigned. Commit never fails on conflicting
// writes: whichever transaction commits last for a given key wins, by
// design.
func (s *Store) Commit(tx *Transaction) (int64, map[string]int64) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return 0, nil
	}
	commitTime := s.clock.Next()
	versions := make(map[string]int64, len(tx.writes)+len(tx.deletes))
	for key, value := range tx.writes {
		versions[key] = s.historyFor(key).append(VersionedValue{Value: value, Timestamp: commitTime})
	}
	for key := range tx.deletes {
		versions[key] = s.historyFor(key).append(VersionedValue{Timestamp: commitTime, Deleted: true})
	}
	tx.done = true
	s.registry.Unregister(tx)
	return commitTime, versions
}

// Rollback discards tx's buffered writes without touching the store.
func (s *Store) Rollback(tx *Transaction) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return
	}
	tx.writes = nil
	tx.deletes = nil
	tx.done = true
	s.registry.Unregister(tx)
}

// Latest reads key as of the current clock value, outside of any
// transaction — the convenience path the ORM layer uses for reads that
// don't need a long-lived snapshot.
func (s *Store) Latest(key string) (any, int64, error) {
	now := s.clock.Current()
	v, ok := s.historyFor(key).visibleAt(now)
	if !ok || v.Deleted {
		return nil, now, &kerrors.NotFoundError{Key: key}
	}
	return v.Value, now, nil
}

// Now returns the store's current clock value without advancing it.
func (s *Store) Now() int64 { return s.clock.Current() }

// OldestActiveSnapshot returns the smallest StartTime among currently
// active transactions, the boundary before which a version is safe to
// garbage collect. No caller performs that collection yet; this is kept
// available for a future compaction pass.
func (s *Store) OldestActiveSnapshot() int64 {
	return s.registry.MinActiveStart()
}
