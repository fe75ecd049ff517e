package search

import "testing"

func TestParseQueryStringFieldTerm(t *testing.T) {
	schema, _ := NewSchema(map[string]string{"title": "TEXT"})
	q := ParseQueryString(schema, "title:world")
	if terms := q.FieldTerms["title"]; len(terms) != 1 || terms[0] != "world" {
		t.Fatalf("expected title field term %q, got %v", "world", terms)
	}
}

func TestParseQueryStringNumericRange(t *testing.T) {
	schema, _ := NewSchema(map[string]string{"level": "NUMERIC"})
	q := ParseQueryString(schema, "level:[4 TO 10]")
	if len(q.Filters) != 1 {
		t.Fatalf("expected 1 range filter, got %d", len(q.Filters))
	}
	f := q.Filters[0]
	if f.Operator != Between || f.Value != float64(4) || f.ValueEnd != float64(10) {
		t.Fatalf("unexpected filter %+v", f)
	}
}

func TestParseQueryStringBareTermsAndMixedClauses(t *testing.T) {
	schema, _ := NewSchema(map[string]string{"title": "TEXT", "level": "NUMERIC"})
	q := ParseQueryString(schema, "hello title:world level:[1 TO 5]")
	if q.Text != "hello" {
		t.Fatalf("expected bare term %q, got %q", "hello", q.Text)
	}
	if terms := q.FieldTerms["title"]; len(terms) != 1 || terms[0] != "world" {
		t.Fatalf("expected title field term, got %v", terms)
	}
	if len(q.Filters) != 1 {
		t.Fatalf("expected 1 range filter, got %d", len(q.Filters))
	}
}

func TestParseDateTimeAcceptsDateFragment(t *testing.T) {
	if _, ok := ParseDateTime("2026-01-02"); !ok {
		t.Fatal("expected a bare date fragment to parse")
	}
	if _, ok := ParseDateTime("not-a-date"); ok {
		t.Fatal("expected an invalid string to fail to parse")
	}
}
