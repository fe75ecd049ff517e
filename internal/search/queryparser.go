package search

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseQueryString parses the query-string grammar this package's
// search surface accepts: bare terms matched against every TEXT/KEYWORD
// field, "field:value" clauses restricted to one field, and
// "field:[start TO end]" range clauses. schema resolves each field's
// declared type so NUMERIC and DATETIME clauses become range/equality
// Filters instead of postings lookups, while TEXT/KEYWORD field clauses
// become field-restricted terms.
func ParseQueryString(schema Schema, queryString string) Query {
	q := Query{FieldTerms: make(map[string][]string)}
	var bareTerms []string

	for _, clause := range splitQueryClauses(queryString) {
		field, value, hasField := cutField(clause)
		if !hasField {
			bareTerms = append(bareTerms, clause)
			continue
		}

		if isRange(value) {
			start, end := rangeBounds(value)
			if f, ok := rangeFilter(schema, field, start, end); ok {
				q.Filters = append(q.Filters, f)
			}
			continue
		}

		switch schema[field] {
		case Numeric:
			if n, err := strconv.ParseFloat(value, 64); err == nil {
				q.Filters = append(q.Filters, Equal(field, n))
			}
		case Boolean:
			if b, err := strconv.ParseBool(value); err == nil {
				q.Filters = append(q.Filters, Equal(field, b))
			}
		case Datetime:
			if instant, ok := ParseDateTime(value); ok {
				q.Filters = append(q.Filters, Equal(field, instant))
			}
		case ID:
			q.Filters = append(q.Filters, Equal(field, value))
		default:
			for _, term := range Tokenize(value) {
				q.FieldTerms[field] = append(q.FieldTerms[field], term)
			}
		}
	}

	q.Text = strings.Join(bareTerms, " ")
	return q
}

// splitQueryClauses splits s on whitespace, except inside a "[...]"
// range, so "level:[4 TO 10]" survives as a single clause.
func splitQueryClauses(s string) []string {
	var clauses []string
	var cur strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '[':
			depth++
			cur.WriteRune(r)
		case r == ']':
			if depth > 0 {
				depth--
			}
			cur.WriteRune(r)
		case unicode.IsSpace(r) && depth == 0:
			if cur.Len() > 0 {
				clauses = append(clauses, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		clauses = append(clauses, cur.String())
	}
	return clauses
}

// cutField splits "field:value" on its first colon. A clause with no
// colon, or one starting with a colon, is not field-restricted.
func cutField(clause string) (field, value string, ok bool) {
	idx := strings.IndexByte(clause, ':')
	if idx <= 0 {
		return "", "", false
	}
	return clause[:idx], clause[idx+1:], true
}

func isRange(value string) bool {
	return strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]")
}

func rangeBounds(value string) (start, end string) {
	inner := strings.TrimSuffix(strings.TrimPrefix(value, "["), "]")
	parts := strings.SplitN(inner, " TO ", 2)
	if len(parts) != 2 {
		return strings.TrimSpace(inner), ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func rangeFilter(schema Schema, field, start, end string) (Filter, bool) {
	switch schema[field] {
	case Datetime:
		s, ok1 := ParseDateTime(start)
		e, ok2 := ParseDateTime(end)
		if !ok1 || !ok2 {
			return Filter{}, false
		}
		return BetweenValues(field, s, e), true
	default:
		sf, errS := strconv.ParseFloat(start, 64)
		ef, errE := strconv.ParseFloat(end, 64)
		if errS == nil && errE == nil {
			return BetweenValues(field, sf, ef), true
		}
		return BetweenValues(field, start, end), true
	}
}
