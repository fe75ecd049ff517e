package mvcc

import (
	"testing"

	"github.com/katamari-go/katamari/internal/kerrors"
)

func TestReadYourWritesBeforeCommit(t *testing.T) {
	store := NewStore()
	tx := store.Begin("tx-1")

	if _, err := store.Get(tx, "k"); !kerrors.IsNotFound(err) {
		t.Fatalf("expected not-found before any write, got %v", err)
	}

	store.Put(tx, "k", "v1")
	got, err := store.Get(tx, "k")
	if err != nil || got != "v1" {
		t.Fatalf("expected read-your-writes to see v1, got %v, %v", got, err)
	}

	other := store.Begin("tx-2")
	if _, err := store.Get(other, "k"); !kerrors.IsNotFound(err) {
		t.Fatalf("expected uncommitted write invisible to other tx, got %v", err)
	}
	store.Rollback(other)
	store.Commit(tx)
}

func TestSnapshotIsolation(t *testing.T) {
	store := NewStore()

	setup := store.Begin("setup")
	store.Put(setup, "k", "v1")
	store.Commit(setup)

	reader := store.Begin("reader")
	v, err := store.Get(reader, "k")
	if err != nil || v != "v1" {
		t.Fatalf("expected reader to see v1, got %v, %v", v, err)
	}

	writer := store.Begin("writer")
	store.Put(writer, "k", "v2")
	store.Commit(writer)

	// The reader's snapshot was taken before the second commit; it must
	// keep seeing v1 even though the key has since moved on.
	v, err = store.Get(reader, "k")
	if err != nil || v != "v1" {
		t.Fatalf("expected snapshot isolation to preserve v1, got %v, %v", v, err)
	}

	fresh := store.Begin("fresh")
	v, err = store.Get(fresh, "k")
	if err != nil || v != "v2" {
		t.Fatalf("expected a fresh snapshot to see v2, got %v, %v", v, err)
	}
}

func TestLastCommitWinsNoConflictDetection(t *testing.T) {
	store := NewStore()
	a := store.Begin("a")
	b := store.Begin("b")

	store.Put(a, "k", "from-a")
	store.Put(b, "k", "from-b")

	store.Commit(a)
	store.Commit(b)

	fresh := store.Begin("fresh")
	v, err := store.Get(fresh, "k")
	if err != nil || v != "from-b" {
		t.Fatalf("expected last committer to win, got %v, %v", v, err)
	}
}

func TestDeleteTombstonesVisibility(t *testing.T) {
	store := NewStore()
	tx := store.Begin("tx")
	store.Put(tx, "k", "v1")
	store.Commit(tx)

	del := store.Begin("del")
	store.Delete(del, "k")
	store.Commit(del)

	fresh := store.Begin("fresh")
	if _, err := store.Get(fresh, "k"); !kerrors.IsNotFound(err) {
		t.Fatalf("expected deleted key to be not-found, got %v", err)
	}
}

func TestVersionTimestampsMonotonic(t *testing.T) {
	store := NewStore()
	var last int64
	for i := 0; i < 5; i++ {
		tx := store.Begin("tx")
		store.Put(tx, "k", i)
		commitTime, _ := store.Commit(tx)
		if commitTime <= last {
			t.Fatalf("expected strictly increasing commit timestamps, got %d after %d", commitTime, last)
		}
		last = commitTime
	}
}

func TestPerKeyVersionMonotonic(t *testing.T) {
	store := NewStore()
	for i := 1; i <= 3; i++ {
		tx := store.Begin("tx")
		store.Put(tx, "k", i)
		_, versions := store.Commit(tx)
		if versions["k"] != int64(i) {
			t.Fatalf("expected version %d for commit %d, got %d", i, i, versions["k"])
		}
	}

	tx := store.Begin("tx-other-key")
	store.Put(tx, "other", "v")
	_, versions := store.Commit(tx)
	if versions["other"] != 1 {
		t.Fatalf("expected a distinct key to start at version 1, got %d", versions["other"])
	}
}
