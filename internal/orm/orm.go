// Package orm composes the record engine, the MVCC store, and the
// search index behind a single Set/Get/Delete/Search surface, and owns
// the ambient machinery none of those three packages know about on
// their own — per-key locking, TTL expiry, a read cache, a
// transaction log that rolls back failed writes, and the batched queue that keeps
// the search index eventually consistent with committed writes.
package orm

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/katamari-go/katamari/internal/codec"
	"github.com/katamari-go/katamari/internal/kerrors"
	"github.com/katamari-go/katamari/internal/klog"
	"github.com/katamari-go/katamari/internal/mvcc"
	"github.com/katamari-go/katamari/internal/record"
	"github.com/katamari-go/katamari/internal/search"
)

// Options configures a new ORM instance.
type Options struct {
	Schema     search.Schema
	CacheSize  int
	TxLogPath  string
	CodecOpts  codec.Options
	LockShards int
}

// ORM ties the record engine, the MVCC store, and the search index
// together into the single facade the rest of the system talks to.
type ORM struct {
	engine *record.Engine
	store  *mvcc.Store
	index  *search.Index
	schema search.Schema

	cache *lruCache
	locks *lockPool
	ttl   *ttlScheduler
	queue *indexQueue
	txlog *txLog

	codecOpts codec.Options
	stop      chan struct{}
}

// New constructs an ORM over an already-open record engine and starts
// its background TTL and indexing loops.
func New(engine *record.Engine, opts Options) *ORM {
	idx := search.NewIndex(opts.Schema)

	o := &ORM{
		engine:    engine,
		store:     mvcc.NewStore(),
		index:     idx,
		schema:    opts.Schema,
		cache:     newLRUCache(opts.CacheSize),
		locks:     newLockPool(opts.LockShards),
		queue:     newIndexQueue(idx, 1024),
		txlog:     newTxLog(opts.TxLogPath),
		codecOpts: opts.CodecOpts,
		stop:      make(chan struct{}),
	}
	o.ttl = newTTLScheduler(o.expireKey)

	go o.ttl.Run(o.stop)
	go o.queue.Run(o.stop)

	return o
}

// Set stores value under key, replacing any prior version (or merging
// onto it, if append is true and the existing value holds list fields),
// and arms ttl (if positive) for automatic expiry. Any field the schema
// declares DATETIME is parsed from a date string into a numeric instant
// before storage. value's fields become the search index document for
// key once the background queue catches up.
func (o *ORM) Set(key string, value map[string]any, appendMerge bool, ttl time.Duration) error {
	unlock := o.locks.lock(key)
	defer unlock()

	entry := txLogEntry{TransactionID: uuid.NewString(), Key: key, Op: "set", Value: value, TTLSeconds: int64(ttl / time.Second)}
	if err := o.txlog.Write(entry); err != nil {
		return err
	}

	o.parseDatetimeFields(value)

	if appendMerge {
		if existing, ok := o.existingValue(key); ok {
			value = mergeAppend(existing, value)
		}
	}

	processed, err := codec.Process(value, o.codecOpts)
	if err != nil {
		o.rollback()
		return err
	}
	envelope, err := json.Marshal(processed)
	if err != nil {
		o.rollback()
		return &kerrors.CodecError{Op: "marshal envelope", Err: err}
	}
	if err := o.engine.Set(key, envelope); err != nil {
		o.rollback()
		return err
	}

	tx := o.store.Begin(entry.TransactionID)
	o.store.Put(tx, key, value)
	commitTime, versions := o.store.Commit(tx)

	o.cache.set(key, value)

	if ttl > 0 {
		o.ttl.Schedule(key, ttl)
	} else {
		o.ttl.Cancel(key)
	}

	doc := search.Document{ID: key, Version: versions[key], CommittedAt: commitTime, Fields: value}
	o.queue.enqueueUpsert(doc)

	return o.txlog.Clear()
}

// parseDatetimeFields rewrites every DATETIME-typed field in value that
// currently holds a date string into its parsed unix-nanosecond instant,
// in place. Fields already numeric, or strings that don't parse under
// any accepted layout, are left untouched.
func (o *ORM) parseDatetimeFields(value map[string]any) {
	for field, ft := range o.schema {
		if ft != search.Datetime {
			continue
		}
		raw, ok := value[field]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		if instant, ok := search.ParseDateTime(s); ok {
			value[field] = instant
		}
	}
}

// existingValue looks up key's current document, cache first and the
// MVCC store second, for append-merge to build on.
func (o *ORM) existingValue(key string) (map[string]any, bool) {
	if v, ok := o.cache.get(key); ok {
		if m, ok := v.(map[string]any); ok {
			return m, true
		}
	}
	if v, _, err := o.store.Latest(key); err == nil {
		if m, ok := v.(map[string]any); ok {
			return m, true
		}
	}
	return nil, false
}

// mergeAppend merges incoming onto existing: any field incoming sets
// that also names an existing []any field gets incoming's value(s)
// appended onto the existing list rather than replacing it; every other
// field simply takes incoming's value.
func mergeAppend(existing, incoming map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		list, ok := merged[k].([]any)
		if !ok {
			merged[k] = v
			continue
		}
		if add, ok := v.([]any); ok {
			merged[k] = append(append([]any{}, list...), add...)
		} else {
			merged[k] = append(append([]any{}, list...), v)
		}
	}
	return merged
}

// rollback is the best-effort failure path for a Set that wrote its
// transaction-log entry but failed before committing: it deletes every
// key the log still names, then clears the log, matching the ORM's own
// write-ahead protocol rather than any distributed-transaction guarantee.
func (o *ORM) rollback() {
	entries, err := o.txlog.Read()
	if err != nil {
		return
	}
	for _, e := range entries {
		_ = o.engine.Delete(e.Key)
	}
	_ = o.txlog.Clear()
}

// Get resolves key's current value: cache first, then the MVCC store,
// falling back to the record engine (and repopulating both) when the
// process just restarted and the in-memory store hasn't seen the key
// yet.
func (o *ORM) Get(key string) (map[string]any, error) {
	if v, ok := o.cache.get(key); ok {
		return v.(map[string]any), nil
	}

	if value, _, err := o.store.Latest(key); err == nil {
		typed, ok := value.(map[string]any)
		if ok {
			o.cache.set(key, typed)
			return typed, nil
		}
	}

	envelope, err := o.engine.Get(key)
	if err != nil {
		return nil, err
	}
	var processed codec.Processed
	if err := json.Unmarshal(envelope, &processed); err != nil {
		return nil, &kerrors.CodecError{Op: "unmarshal envelope", Err: err}
	}
	raw, err := codec.Unprocess(&processed, o.codecOpts)
	if err != nil {
		return nil, err
	}
	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, &kerrors.CodecError{Op: "unmarshal value", Err: err}
	}

	tx := o.store.Begin(uuid.NewString())
	o.store.Put(tx, key, value)
	o.store.Commit(tx)
	o.cache.set(key, value)

	return value, nil
}

// Delete removes key from the store, the index, the cache, and any
// pending TTL.
func (o *ORM) Delete(key string) error {
	unlock := o.locks.lock(key)
	defer unlock()
	return o.deleteLocked(key)
}

func (o *ORM) deleteLocked(key string) error {
	tx := o.store.Begin(uuid.NewString())
	o.store.Delete(tx, key)
	commitTime, _ := o.store.Commit(tx)

	if err := o.engine.Delete(key); err != nil && !kerrors.IsNotFound(err) {
		return err
	}

	o.cache.delete(key)
	o.ttl.Cancel(key)
	o.queue.enqueueDelete(key, commitTime)

	return nil
}

// expireKey is the TTL scheduler's callback: it deletes key the same
// way an explicit Delete call would, logging the expiry.
func (o *ORM) expireKey(key string) {
	unlock := o.locks.lock(key)
	defer unlock()
	if err := o.deleteLocked(key); err != nil {
		klog.Component("orm").Warn().Err(err).Str("key", key).Msg("ttl expiry delete failed")
	}
}

// Search runs q against the index as of the current clock value.
func (o *ORM) Search(q search.Query) []search.Document {
	if q.AsOf == 0 {
		q.AsOf = o.store.Now()
	}
	return o.index.Search(q)
}

// SearchAsOf runs q filtered to what was visible at tx's snapshot: a
// version-aware query.
func (o *ORM) SearchAsOf(tx *mvcc.Transaction, q search.Query) []search.Document {
	q.AsOf = tx.StartTime
	return o.index.Search(q)
}

// Begin starts an MVCC transaction against the ORM's store, for callers
// that need multiple reads/writes to share one snapshot.
func (o *ORM) Begin() *mvcc.Transaction {
	return o.store.Begin(uuid.NewString())
}

// Close stops the background loops and the underlying record engine.
func (o *ORM) Close() error {
	close(o.stop)
	return o.engine.Close()
}
