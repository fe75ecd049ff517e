// Package search implements the eventually-consistent full-text index kept
// in lockstep with the record/mvcc core. Fields are typed,
// text fields are tokenized and stemmed, and queries are filtered by the
// requesting transaction's start time so a reader never observes a
// document version committed after it began.
package search

import "github.com/katamari-go/katamari/internal/kerrors"

// FieldType is one of the schema field kinds: TEXT, KEYWORD, DATETIME,
// NUMERIC, BOOLEAN, or ID.
type FieldType string

const (
	Text     FieldType = "TEXT"
	Keyword  FieldType = "KEYWORD"
	Datetime FieldType = "DATETIME"
	Numeric  FieldType = "NUMERIC"
	Boolean  FieldType = "BOOLEAN"
	ID       FieldType = "ID"
)

// ParseFieldType validates a schema field type string, case-insensitively.
func ParseFieldType(s string) (FieldType, error) {
	switch FieldType(upper(s)) {
	case Text:
		return Text, nil
	case Keyword:
		return Keyword, nil
	case Datetime:
		return Datetime, nil
	case Numeric:
		return Numeric, nil
	case Boolean:
		return Boolean, nil
	case ID:
		return ID, nil
	default:
		return "", &kerrors.SchemaError{Field: "", Type: s}
	}
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// Schema maps field names to their declared type, built once at
// startup and shared by every document.
type Schema map[string]FieldType

// NewSchema validates every field type up front and builds a Schema
// that every document indexed afterward is checked against.
func NewSchema(fields map[string]string) (Schema, error) {
	s := make(Schema, len(fields))
	for name, kind := range fields {
		ft, err := ParseFieldType(kind)
		if err != nil {
			return nil, &kerrors.SchemaError{Field: name, Type: kind}
		}
		s[name] = ft
	}
	// ID is implicit and always present: every document's own key is
	// always indexed.
	if _, ok := s["id"]; !ok {
		s["id"] = ID
	}
	return s, nil
}
