package orm

import (
	"github.com/katamari-go/katamari/internal/kmetrics"
	"github.com/katamari-go/katamari/internal/search"
)

type indexOp int

const (
	indexUpsert indexOp = iota
	indexDelete
)

type indexTask struct {
	op          indexOp
	doc         search.Document
	key         string
	commitTime  int64
}

// indexQueue hands Upsert/Delete calls to the search index from a
// background consumer, which grabs everything pending and then applies
// that batch in order. Each Upsert/Delete in a batch still takes the
// index lock on its own; a batch does not share one lock acquisition.
type indexQueue struct {
	tasks chan indexTask
	index *search.Index
	done  chan struct{}
}

func newIndexQueue(index *search.Index, buffer int) *indexQueue {
	if buffer <= 0 {
		buffer = 1024
	}
	return &indexQueue{
		tasks: make(chan indexTask, buffer),
		index: index,
		done:  make(chan struct{}),
	}
}

func (q *indexQueue) enqueueUpsert(doc search.Document) {
	q.tasks <- indexTask{op: indexUpsert, doc: doc}
	kmetrics.IndexQueueDepth.Set(float64(len(q.tasks)))
}

func (q *indexQueue) enqueueDelete(key string, commitTime int64) {
	q.tasks <- indexTask{op: indexDelete, key: key, commitTime: commitTime}
	kmetrics.IndexQueueDepth.Set(float64(len(q.tasks)))
}

// Run drains tasks until stop closes, applying each batch of
// already-queued tasks together.
func (q *indexQueue) Run(stop <-chan struct{}) {
	for {
		select {
		case task := <-q.tasks:
			q.applyBatch(task)
		case <-stop:
			return
		}
	}
}

func (q *indexQueue) applyBatch(first indexTask) {
	batch := []indexTask{first}
drain:
	for {
		select {
		case t := <-q.tasks:
			batch = append(batch, t)
		default:
			break drain
		}
	}

	for _, t := range batch {
		switch t.op {
		case indexUpsert:
			q.index.Upsert(t.doc)
		case indexDelete:
			q.index.Delete(t.key, t.commitTime)
		}
	}
	kmetrics.IndexQueueDepth.Set(float64(len(q.tasks)))
}
