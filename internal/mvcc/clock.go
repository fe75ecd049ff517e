package mvcc

import "sync/atomic"

// TimestampTracker hands out monotonically increasing timestamps for
// transaction starts and commits. Adapted from this module's storage
// engine lineage, which used the same atomic-counter shape to track a
// write-ahead log's sequence number; here the counter orders MVCC
// visibility instead of log position.
type TimestampTracker struct {
	current int64
}

// NewTimestampTracker starts counting from 0.
func NewTimestampTracker() *TimestampTracker {
	return &TimestampTracker{}
}

// Next returns the next timestamp, strictly greater than every value
// previously returned.
func (t *TimestampTracker) Next() int64 {
	return atomic.AddInt64(&t.current, 1)
}

// Current returns the most recently issued timestamp without advancing
// the counter.
func (t *TimestampTracker) Current() int64 {
	return atomic.LoadInt64(&t.current)
}

// Set forces the counter to val. Nothing in this module calls it; the
// store's clock always starts from 0.
func (t *TimestampTracker) Set(val int64) {
	atomic.StoreInt64(&t.current, val)
}
