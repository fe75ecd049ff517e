package search

// Operator is one of the comparison kinds a Filter may apply to a
// NUMERIC, DATETIME, or KEYWORD field.
type Operator int

const (
	Eq Operator = iota
	NotEq
	Gt
	Gte
	Lt
	Lte
	Between
)

// Filter restricts a Query to documents whose Field compares favorably
// against Value (and ValueEnd, for Between).
type Filter struct {
	Field    string
	Operator Operator
	Value    any
	ValueEnd any
}

func Equal(field string, value any) Filter         { return Filter{Field: field, Operator: Eq, Value: value} }
func NotEqual(field string, value any) Filter      { return Filter{Field: field, Operator: NotEq, Value: value} }
func GreaterThan(field string, value any) Filter    { return Filter{Field: field, Operator: Gt, Value: value} }
func GreaterOrEqual(field string, value any) Filter { return Filter{Field: field, Operator: Gte, Value: value} }
func LessThan(field string, value any) Filter       { return Filter{Field: field, Operator: Lt, Value: value} }
func LessOrEqual(field string, value any) Filter    { return Filter{Field: field, Operator: Lte, Value: value} }
func BetweenValues(field string, start, end any) Filter {
	return Filter{Field: field, Operator: Between, Value: start, ValueEnd: end}
}

// Matches reports whether doc's value for f.Field satisfies the filter.
func (f Filter) Matches(doc Document) bool {
	v, ok := doc.Fields[f.Field]
	if !ok && f.Field == "id" {
		// The implicit id field carries the document's own key.
		v, ok = doc.ID, true
	}
	if !ok {
		return false
	}
	switch f.Operator {
	case Eq:
		return compareAny(v, f.Value) == 0
	case NotEq:
		return compareAny(v, f.Value) != 0
	case Gt:
		return compareAny(v, f.Value) > 0
	case Gte:
		return compareAny(v, f.Value) >= 0
	case Lt:
		return compareAny(v, f.Value) < 0
	case Lte:
		return compareAny(v, f.Value) <= 0
	case Between:
		return compareAny(v, f.Value) >= 0 && compareAny(v, f.ValueEnd) <= 0
	default:
		return false
	}
}

// compareAny compares two field values of the same dynamic type,
// returning <0, 0, >0. Mixed or unorderable types compare unequal.
func compareAny(a, b any) int {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 1
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case float64:
		bv, ok := toFloat(b)
		if !ok {
			return 1
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case int:
		return compareAny(float64(av), b)
	case int64:
		return compareAny(float64(av), b)
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 1
		}
		if av == bv {
			return 0
		}
		if av {
			return 1
		}
		return -1
	default:
		return 1
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Query is a search request against the index: free-text terms matched
// against analyzed TEXT/KEYWORD fields, optional field-restricted terms,
// optional Filters against typed fields, optional sort/cluster keys, and
// the snapshot time the caller's transaction began at.
type Query struct {
	// Text is matched against every TEXT/KEYWORD field's postings (OR
	// across fields, AND across terms).
	Text string
	// FieldTerms restricts matching to field: the terms (already
	// tokenized) must all appear in that field's postings for a
	// document to match.
	FieldTerms map[string][]string
	// QueryString is an optional raw query-string-grammar expression
	// ("title:world", "level:[4 TO 10]", bare terms). When set,
	// Index.Search parses it with ParseQueryString and merges the
	// result into Text/FieldTerms/Filters before running the query.
	QueryString string
	Filters     []Filter
	SortBy      string
	// ClusterBy groups results by this field's value, preserving the
	// intra-group relative order they'd otherwise have.
	ClusterBy string
	AsOf      int64 // unix nanos; 0 means "no visibility filtering"
	Limit     int
}
