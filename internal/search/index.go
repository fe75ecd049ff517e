package search

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Document is one version of an indexed record, carrying enough of the
// record's field values to satisfy Filters and free-text search
// without going back to the record engine.
type Document struct {
	ID          string
	Version     int64
	CommittedAt int64 // unix nanos; the MVCC commit time this version became visible at
	Deleted     bool
	Fields      map[string]any
}

// Index is the eventually-consistent inverted index. A single Index
// holds every version of every document ever indexed, so a query bound
// to an older transaction's start time still sees the field values that
// were current then, not the index's latest state.
type Index struct {
	mu      sync.RWMutex
	schema  Schema
	history map[string][]Document // per id, ascending CommittedAt
	// postings is field -> term -> candidate doc ids (any version).
	// Keeping it per-field lets a query-string clause like "title:world"
	// search only that field's terms instead of every tokenized field.
	postings map[string]map[string]map[string]struct{}
}

// NewIndex constructs an empty index bound to schema.
func NewIndex(schema Schema) *Index {
	return &Index{
		schema:   schema,
		history:  make(map[string][]Document),
		postings: make(map[string]map[string]map[string]struct{}),
	}
}

// Upsert appends a new version of doc to its history and updates the
// postings lists with any TEXT/KEYWORD-field terms it introduces (the
// two field kinds are tokenized and stemmed identically). It never
// replaces or rewrites an earlier version: that is what makes older
// queries still see what they saw at their own start time.
func (idx *Index) Upsert(doc Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.history[doc.ID] = append(idx.history[doc.ID], doc)

	for field, ft := range idx.schema {
		if ft != Text && ft != Keyword {
			continue
		}
		raw, ok := doc.Fields[field]
		if !ok {
			continue
		}
		text, ok := raw.(string)
		if !ok {
			continue
		}
		fieldPostings, ok := idx.postings[field]
		if !ok {
			fieldPostings = make(map[string]map[string]struct{})
			idx.postings[field] = fieldPostings
		}
		for _, term := range Tokenize(text) {
			set, ok := fieldPostings[term]
			if !ok {
				set = make(map[string]struct{})
				fieldPostings[term] = set
			}
			set[doc.ID] = struct{}{}
		}
	}
}

// Delete records a tombstone version for id, committed at commitTime.
// Matching the record engine's soft-delete idiom, history is kept so
// snapshots taken before the delete still resolve correctly.
func (idx *Index) Delete(id string, commitTime int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	version := int64(len(idx.history[id]) + 1)
	idx.history[id] = append(idx.history[id], Document{
		ID: id, Version: version, CommittedAt: commitTime, Deleted: true,
	})
}

// visibleVersionLocked returns the latest version of id visible as of
// asOf (0 meaning "now", i.e. the very latest version regardless of
// commit time). Callers must hold idx.mu.
func (idx *Index) visibleVersionLocked(id string, asOf int64) (Document, bool) {
	versions := idx.history[id]
	var best Document
	found := false
	for _, v := range versions {
		if asOf != 0 && v.CommittedAt > asOf {
			break
		}
		best = v
		found = true
	}
	return best, found
}

// Search runs q against the index and returns matching, visible,
// non-deleted documents ordered by q.SortBy (or ascending id order if
// unset), then clustered by q.ClusterBy if set. A non-empty
// q.QueryString is parsed and merged into q.Text/FieldTerms/Filters
// before the query runs, so callers may pass either a pre-built Query
// or a raw query-string expression.
func (idx *Index) Search(q Query) []Document {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if strings.TrimSpace(q.QueryString) != "" {
		q = mergeQueryString(idx.schema, q)
	}

	candidates := idx.candidateIDsLocked(q)

	results := make([]Document, 0, len(candidates))
	for _, id := range candidates {
		doc, ok := idx.visibleVersionLocked(id, q.AsOf)
		if !ok || doc.Deleted {
			continue
		}
		if !matchesAllFilters(doc, q.Filters) {
			continue
		}
		results = append(results, doc)
	}

	sortDocuments(results, q.SortBy)

	if q.ClusterBy != "" {
		results = clusterDocuments(results, q.ClusterBy)
	}

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results
}

// mergeQueryString parses q.QueryString against schema and folds the
// result into q's Text/FieldTerms/Filters, leaving whatever the caller
// already set in those fields in place.
func mergeQueryString(schema Schema, q Query) Query {
	parsed := ParseQueryString(schema, q.QueryString)

	if parsed.Text != "" {
		if q.Text != "" {
			q.Text = q.Text + " " + parsed.Text
		} else {
			q.Text = parsed.Text
		}
	}

	if len(parsed.FieldTerms) > 0 {
		if q.FieldTerms == nil {
			q.FieldTerms = make(map[string][]string, len(parsed.FieldTerms))
		}
		for field, terms := range parsed.FieldTerms {
			q.FieldTerms[field] = append(q.FieldTerms[field], terms...)
		}
	}

	q.Filters = append(q.Filters, parsed.Filters...)
	return q
}

// candidateIDsLocked returns the set of doc ids worth checking: every
// known id when q carries no text/field-term constraint, or the
// intersection of every constraint's postings otherwise. A bare-text
// term matches if any TEXT/KEYWORD field's postings contain it
// (union across fields); a FieldTerms entry restricts to that field's
// own postings.
func (idx *Index) candidateIDsLocked(q Query) []string {
	var set map[string]struct{}
	constrained := false

	intersect := func(ids map[string]struct{}) {
		if !constrained {
			constrained = true
			set = make(map[string]struct{}, len(ids))
			for id := range ids {
				set[id] = struct{}{}
			}
			return
		}
		for id := range set {
			if _, ok := ids[id]; !ok {
				delete(set, id)
			}
		}
	}

	if text := strings.TrimSpace(q.Text); text != "" {
		for _, term := range Tokenize(text) {
			union := make(map[string]struct{})
			for field := range idx.postings {
				for id := range idx.postings[field][term] {
					union[id] = struct{}{}
				}
			}
			intersect(union)
		}
	}

	for field, terms := range q.FieldTerms {
		for _, term := range terms {
			intersect(idx.postings[field][term])
		}
	}

	if !constrained {
		ids := make([]string, 0, len(idx.history))
		for id := range idx.history {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func matchesAllFilters(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if !f.Matches(doc) {
			return false
		}
	}
	return true
}

func sortDocuments(docs []Document, sortBy string) {
	if sortBy == "" {
		sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
		return
	}
	sort.Slice(docs, func(i, j int) bool {
		return compareAny(docs[i].Fields[sortBy], docs[j].Fields[sortBy]) < 0
	})
}

// clusterDocuments groups docs by their field value, preserving each
// group's first-appearance order and the intra-group relative order
// docs already had.
func clusterDocuments(docs []Document, field string) []Document {
	type group struct {
		key  string
		docs []Document
	}
	var groups []group
	index := make(map[string]int, len(docs))
	for _, d := range docs {
		key := fmt.Sprint(d.Fields[field])
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, group{key: key})
		}
		groups[i].docs = append(groups[i].docs, d)
	}
	out := make([]Document, 0, len(docs))
	for _, g := range groups {
		out = append(out, g.docs...)
	}
	return out
}
