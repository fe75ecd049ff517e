package orm

import (
	"container/heap"
	"sync"
	"time"

	"github.com/katamari-go/katamari/internal/kmetrics"
)

// ttlItem is one scheduled expiry: key expires at ExpireAt, unless the
// key has since been rewritten with a later expiry (tracked separately
// in current, so a stale heap entry can be recognized and skipped
// instead of expiring a key early).
type ttlItem struct {
	expireAt time.Time
	key      string
}

type ttlHeapData []*ttlItem

func (h ttlHeapData) Len() int            { return len(h) }
func (h ttlHeapData) Less(i, j int) bool  { return h[i].expireAt.Before(h[j].expireAt) }
func (h ttlHeapData) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *ttlHeapData) Push(x any)         { *h = append(*h, x.(*ttlItem)) }
func (h *ttlHeapData) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// ttlScheduler runs a cooperative wake/sleep loop: it sleeps until the
// soonest scheduled expiry, or until woken early by Schedule adding a
// sooner one, then expires whichever keys are actually due by asking
// current for the key's live deadline (a key rewritten without a new
// TTL, or rewritten with a later one, is simply skipped).
type ttlScheduler struct {
	mu      sync.Mutex
	heap    ttlHeapData
	current map[string]time.Time
	wake    chan struct{}
	onExpire func(key string)
}

func newTTLScheduler(onExpire func(key string)) *ttlScheduler {
	return &ttlScheduler{
		current:  make(map[string]time.Time),
		wake:     make(chan struct{}, 1),
		onExpire: onExpire,
	}
}

// Schedule arms (or re-arms) key to expire after ttl elapses. A zero or
// negative ttl cancels any pending expiry for key.
func (s *ttlScheduler) Schedule(key string, ttl time.Duration) {
	s.mu.Lock()
	if ttl <= 0 {
		delete(s.current, key)
		s.mu.Unlock()
		return
	}
	expireAt := time.Now().Add(ttl)
	s.current[key] = expireAt
	heap.Push(&s.heap, &ttlItem{expireAt: expireAt, key: key})
	kmetrics.TTLHeapSize.Set(float64(s.heap.Len()))
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Cancel removes any pending expiry for key (e.g. because it was
// deleted directly).
func (s *ttlScheduler) Cancel(key string) {
	s.mu.Lock()
	delete(s.current, key)
	s.mu.Unlock()
}

// Run drives the expiry loop until the stop channel closes.
func (s *ttlScheduler) Run(stop <-chan struct{}) {
	for {
		s.mu.Lock()
		for s.heap.Len() > 0 {
			next := s.heap[0]
			live, ok := s.current[next.key]
			if !ok || !live.Equal(next.expireAt) {
				// Stale entry: the key was canceled or rescheduled since
				// this entry was pushed.
				heap.Pop(&s.heap)
				continue
			}
			break
		}
		var sleepFor time.Duration
		hasNext := s.heap.Len() > 0
		if hasNext {
			sleepFor = time.Until(s.heap[0].expireAt)
		}
		kmetrics.TTLHeapSize.Set(float64(s.heap.Len()))
		s.mu.Unlock()

		if !hasNext {
			select {
			case <-s.wake:
				continue
			case <-stop:
				return
			}
		}

		if sleepFor <= 0 {
			s.popAndExpire()
			continue
		}

		timer := time.NewTimer(sleepFor)
		select {
		case <-timer.C:
			s.popAndExpire()
		case <-s.wake:
			timer.Stop()
		case <-stop:
			timer.Stop()
			return
		}
	}
}

func (s *ttlScheduler) popAndExpire() {
	s.mu.Lock()
	if s.heap.Len() == 0 {
		s.mu.Unlock()
		return
	}
	item := heap.Pop(&s.heap).(*ttlItem)
	live, ok := s.current[item.key]
	if !ok || !live.Equal(item.expireAt) {
		s.mu.Unlock()
		return
	}
	delete(s.current, item.key)
	s.mu.Unlock()

	s.onExpire(item.key)
}
