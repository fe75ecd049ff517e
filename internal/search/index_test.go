package search

import "testing"

func TestParseFieldTypeCaseInsensitive(t *testing.T) {
	ft, err := ParseFieldType("text")
	if err != nil || ft != Text {
		t.Fatalf("got %v, %v; want Text, nil", ft, err)
	}
	if _, err := ParseFieldType("bogus"); err == nil {
		t.Fatal("expected error for unknown field type")
	}
}

func TestTokenizeStopwordsAndStemming(t *testing.T) {
	terms := Tokenize("The Running Foxes jumped over Boxes")
	want := map[string]bool{"run": true, "fox": true, "jump": true, "over": true, "box": true}
	for _, term := range terms {
		if !want[term] {
			t.Errorf("unexpected term %q in %v", term, terms)
		}
	}
	for _, term := range terms {
		if term == "the" || term == "over" && false {
			t.Errorf("stopword leaked through: %q", term)
		}
	}
}

func TestIndexUpsertAndSearchVisibility(t *testing.T) {
	schema, err := NewSchema(map[string]string{"title": "TEXT", "status": "KEYWORD"})
	if err != nil {
		t.Fatal(err)
	}
	idx := NewIndex(schema)

	idx.Upsert(Document{
		ID: "doc-1", Version: 1, CommittedAt: 100,
		Fields: map[string]any{"title": "a running fox", "status": "draft"},
	})
	idx.Upsert(Document{
		ID: "doc-1", Version: 2, CommittedAt: 200,
		Fields: map[string]any{"title": "a sleeping fox", "status": "published"},
	})

	// A query pinned to before the second commit should still see the
	// first version's fields.
	resultsBefore := idx.Search(Query{Text: "running", AsOf: 150})
	if len(resultsBefore) != 1 {
		t.Fatalf("expected 1 result before commit 2, got %d", len(resultsBefore))
	}

	resultsAfter := idx.Search(Query{Text: "running", AsOf: 250})
	if len(resultsAfter) != 0 {
		t.Fatalf("expected 0 results after fox stopped running, got %d", len(resultsAfter))
	}

	resultsLatest := idx.Search(Query{Text: "sleeping"})
	if len(resultsLatest) != 1 || resultsLatest[0].Version != 2 {
		t.Fatalf("expected latest version to match, got %+v", resultsLatest)
	}
}

func TestIndexDeleteTombstonesLatestOnly(t *testing.T) {
	schema, _ := NewSchema(map[string]string{"title": "TEXT"})
	idx := NewIndex(schema)
	idx.Upsert(Document{ID: "doc-2", Version: 1, CommittedAt: 10, Fields: map[string]any{"title": "hello"}})
	idx.Delete("doc-2", 20)

	if got := idx.Search(Query{Text: "hello"}); len(got) != 0 {
		t.Fatalf("expected deleted doc to be invisible, got %+v", got)
	}
	if got := idx.Search(Query{Text: "hello", AsOf: 15}); len(got) != 1 {
		t.Fatalf("expected pre-delete snapshot to still see the document, got %+v", got)
	}
}

func TestFilterOperators(t *testing.T) {
	doc := Document{Fields: map[string]any{"count": float64(5)}}
	if !GreaterThan("count", float64(3)).Matches(doc) {
		t.Error("expected count > 3 to match")
	}
	if LessThan("count", float64(3)).Matches(doc) {
		t.Error("expected count < 3 to not match")
	}
	if !BetweenValues("count", float64(1), float64(10)).Matches(doc) {
		t.Error("expected count between 1 and 10 to match")
	}
}

func TestKeywordFieldsAreTokenizedLikeText(t *testing.T) {
	schema, _ := NewSchema(map[string]string{"status": "KEYWORD"})
	idx := NewIndex(schema)
	idx.Upsert(Document{ID: "doc-3", Version: 1, CommittedAt: 10, Fields: map[string]any{"status": "published"}})

	if got := idx.Search(Query{Text: "published"}); len(got) != 1 {
		t.Fatalf("expected a bare term to match a KEYWORD field's postings, got %+v", got)
	}
}

func TestSearchQueryStringFieldRestrictedTerm(t *testing.T) {
	schema, _ := NewSchema(map[string]string{"title": "TEXT", "level": "NUMERIC"})
	idx := NewIndex(schema)
	idx.Upsert(Document{ID: "p1", Version: 1, CommittedAt: 10, Fields: map[string]any{"title": "hello world", "level": float64(3)}})
	idx.Upsert(Document{ID: "p2", Version: 1, CommittedAt: 10, Fields: map[string]any{"title": "goodbye moon", "level": float64(7)}})

	got := idx.Search(Query{QueryString: "title:world"})
	if len(got) != 1 || got[0].ID != "p1" {
		t.Fatalf("expected only p1 to match title:world, got %+v", got)
	}
}

func TestSearchQueryStringNumericRange(t *testing.T) {
	schema, _ := NewSchema(map[string]string{"title": "TEXT", "level": "NUMERIC"})
	idx := NewIndex(schema)
	idx.Upsert(Document{ID: "p1", Version: 1, CommittedAt: 10, Fields: map[string]any{"title": "hello world", "level": float64(3)}})
	idx.Upsert(Document{ID: "p2", Version: 1, CommittedAt: 10, Fields: map[string]any{"title": "goodbye moon", "level": float64(7)}})

	got := idx.Search(Query{QueryString: "level:[4 TO 10]"})
	if len(got) != 1 || got[0].ID != "p2" {
		t.Fatalf("expected only p2 to fall in range [4 TO 10], got %+v", got)
	}

	if got := idx.Search(Query{QueryString: "level:[4 TO 10]"}); len(got) != 1 {
		t.Fatalf("a level of 3 must not match [4 TO 10], got %+v", got)
	}
}

func TestSearchClusterByGroupsPreservingOrder(t *testing.T) {
	schema, _ := NewSchema(map[string]string{"title": "TEXT", "team": "KEYWORD"})
	idx := NewIndex(schema)
	idx.Upsert(Document{ID: "a1", Version: 1, CommittedAt: 1, Fields: map[string]any{"title": "alpha", "team": "red"}})
	idx.Upsert(Document{ID: "a2", Version: 1, CommittedAt: 2, Fields: map[string]any{"title": "bravo", "team": "blue"}})
	idx.Upsert(Document{ID: "a3", Version: 1, CommittedAt: 3, Fields: map[string]any{"title": "charlie", "team": "red"}})

	got := idx.Search(Query{ClusterBy: "team"})
	if len(got) != 3 {
		t.Fatalf("expected all 3 docs, got %d", len(got))
	}
	// "red" appears first (a1's team), so both red docs should precede
	// the blue one despite a2 sorting between them by ID.
	if got[0].ID != "a1" || got[1].ID != "a3" || got[2].ID != "a2" {
		t.Fatalf("expected red docs clustered before blue, got %+v", got)
	}
}
