package orm

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/katamari-go/katamari/internal/codec"
	"github.com/katamari-go/katamari/internal/record"
	"github.com/katamari-go/katamari/internal/search"
)

func newTestORM(t *testing.T) *ORM {
	t.Helper()
	dir := t.TempDir()
	engine, err := record.Open(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatal(err)
	}
	schema, err := search.NewSchema(map[string]string{"title": "TEXT", "status": "KEYWORD"})
	if err != nil {
		t.Fatal(err)
	}
	o := New(engine, Options{
		Schema:     schema,
		CacheSize:  100,
		TxLogPath:  filepath.Join(dir, "txlog.ndjson"),
		CodecOpts:  codec.DefaultOptions(),
		LockShards: 16,
	})
	t.Cleanup(func() { o.Close() })
	return o
}

func TestSetGetRoundTrip(t *testing.T) {
	o := newTestORM(t)

	value := map[string]any{"title": "hello world", "status": "draft"}
	if err := o.Set("doc-1", value, false, 0); err != nil {
		t.Fatal(err)
	}

	got, err := o.Get("doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if got["title"] != "hello world" {
		t.Fatalf("got %+v", got)
	}
}

func TestDeleteRemovesValue(t *testing.T) {
	o := newTestORM(t)
	o.Set("doc-2", map[string]any{"title": "x"}, false, 0)
	if err := o.Delete("doc-2"); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Get("doc-2"); err == nil {
		t.Fatal("expected error after delete")
	}
}

func TestTTLExpiresKey(t *testing.T) {
	o := newTestORM(t)
	if err := o.Set("doc-3", map[string]any{"title": "temp"}, false, 30*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Get("doc-3"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := o.Get("doc-3"); err != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected key to expire within deadline")
}

func TestSearchBecomesConsistentEventually(t *testing.T) {
	o := newTestORM(t)
	if err := o.Set("doc-4", map[string]any{"title": "searchable content", "status": "published"}, false, 0); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		results := o.Search(search.Query{Text: "searchable"})
		if len(results) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected document to become searchable")
}

func TestSearchQueryStringBecomesConsistentEventually(t *testing.T) {
	o := newTestORM(t)
	if err := o.Set("doc-5", map[string]any{"title": "hello world", "status": "draft"}, false, 0); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		results := o.Search(search.Query{QueryString: "title:world"})
		if len(results) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected title:world to match the document")
}

func TestSetAppendMergesListField(t *testing.T) {
	o := newTestORM(t)
	if err := o.Set("doc-6", map[string]any{"title": "a", "tags": []any{"x"}}, false, 0); err != nil {
		t.Fatal(err)
	}
	if err := o.Set("doc-6", map[string]any{"tags": []any{"y"}}, true, 0); err != nil {
		t.Fatal(err)
	}

	got, err := o.Get("doc-6")
	if err != nil {
		t.Fatal(err)
	}
	tags, ok := got["tags"].([]any)
	if !ok || len(tags) != 2 || tags[0] != "x" || tags[1] != "y" {
		t.Fatalf("expected merged tags [x y], got %+v", got["tags"])
	}
}

func TestSetParsesDatetimeStringField(t *testing.T) {
	dir := t.TempDir()
	engine, err := record.Open(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatal(err)
	}
	schema, err := search.NewSchema(map[string]string{"title": "TEXT", "created_at": "DATETIME"})
	if err != nil {
		t.Fatal(err)
	}
	o := New(engine, Options{
		Schema:     schema,
		CacheSize:  100,
		TxLogPath:  filepath.Join(dir, "txlog.ndjson"),
		CodecOpts:  codec.DefaultOptions(),
		LockShards: 16,
	})
	t.Cleanup(func() { o.Close() })

	if err := o.Set("doc-7", map[string]any{"title": "x", "created_at": "2026-01-02"}, false, 0); err != nil {
		t.Fatal(err)
	}

	got, err := o.Get("doc-7")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got["created_at"].(string); ok {
		t.Fatalf("expected created_at to be parsed into an instant, still a string: %+v", got["created_at"])
	}
}
