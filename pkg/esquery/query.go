package esquery

import "encoding/json"

// Query is a node of a query clause.
type Query interface {
	Source() map[string]any
}

type sourceQuery map[string]any

func (q sourceQuery) Source() map[string]any { return q }

// Term matches an exact value.
func Term(field string, value any) Query {
	return sourceQuery{"term": map[string]any{field: value}}
}

// TermsQuery matches any of values.
func TermsQuery(field string, values []string) Query {
	return sourceQuery{"terms": map[string]any{field: values}}
}

// Range matches gte <= field < lt; nil bounds are left open.
func Range(field string, gte, lt any) Query {
	body := map[string]any{}
	if gte != nil {
		body["gte"] = gte
	}
	if lt != nil {
		body["lt"] = lt
	}
	return sourceQuery{"range": map[string]any{field: body}}
}

// Exists matches documents with a value for field.
func Exists(field string) Query {
	return sourceQuery{"exists": map[string]any{"field": field}}
}

// Prefix matches values starting with prefix, ignoring case.
func Prefix(field, prefix string) Query {
	return sourceQuery{"prefix": map[string]any{field: map[string]any{
		"value":            prefix,
		"case_insensitive": true,
	}}}
}

// MatchAll matches every document.
func MatchAll() Query {
	return sourceQuery{"match_all": map[string]any{}}
}

// NestedQuery runs q against nested documents at path.
func NestedQuery(path string, q Query) Query {
	return sourceQuery{"nested": map[string]any{"path": path, "query": q.Source()}}
}

// NestedInnerHits is NestedQuery that also returns the matching nested
// documents, at most size of them, under inner_hits.{path}. Inner hits are
// ordered by sort when given.
func NestedInnerHits(path string, q Query, size int, sort ...map[string]any) Query {
	inner := map[string]any{"size": size}
	if len(sort) > 0 {
		inner["sort"] = sort
	}
	return sourceQuery{"nested": map[string]any{
		"path":       path,
		"query":      q.Source(),
		"inner_hits": inner,
	}}
}

// NestedSort orders top-level hits by a field of their nested documents at
// path, taking the largest value among the documents matching filter.
func NestedSort(field, path string, filter Query, order string) map[string]any {
	return map[string]any{field: map[string]any{
		"order":  order,
		"mode":   "max",
		"nested": map[string]any{"path": path, "filter": filter.Source()},
	}}
}

// BoolQuery combines clauses.
type BoolQuery struct {
	Filter  []Query
	MustNot []Query
	Should  []Query
}

// Bool starts a bool query with filter clauses.
func Bool(filter ...Query) *BoolQuery {
	return &BoolQuery{Filter: filter}
}

func (b *BoolQuery) Source() map[string]any {
	body := map[string]any{}
	if len(b.Filter) > 0 {
		body["filter"] = sources(b.Filter)
	}
	if len(b.MustNot) > 0 {
		body["must_not"] = sources(b.MustNot)
	}
	if len(b.Should) > 0 {
		body["should"] = sources(b.Should)
		body["minimum_should_match"] = 1
	}
	return map[string]any{"bool": body}
}

func sources(qs []Query) []any {
	out := make([]any, len(qs))
	for i, q := range qs {
		out[i] = q.Source()
	}
	return out
}

// Request is a search request body.
type Request struct {
	Size  int
	Query Query
	Aggs  Aggs
	Sort  []map[string]any
	// Source lists the returned document fields; nil returns none when Size is 0.
	Source []string
}

func (r *Request) MarshalJSON() ([]byte, error) {
	body := map[string]any{"size": r.Size}
	if r.Query != nil {
		body["query"] = r.Query.Source()
	}
	if len(r.Aggs) > 0 {
		body["aggs"] = r.Aggs.Source()
	}
	if len(r.Sort) > 0 {
		body["sort"] = r.Sort
	}
	if r.Source != nil {
		body["_source"] = r.Source
	}
	return json.Marshal(body)
}
