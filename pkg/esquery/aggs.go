// Package esquery models search requests as a small recursive algebra of
// bucket, metric, pipeline and query nodes. Nodes are composed as Go values
// and only turned into the wire format by Source / MarshalJSON.
package esquery

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Aggregation is a node of an aggregation tree.
type Aggregation interface {
	Source() map[string]any
}

// Aggs names sibling aggregations.
type Aggs map[string]Aggregation

// Source renders every named aggregation.
func (a Aggs) Source() map[string]any {
	out := make(map[string]any, len(a))
	for name, agg := range a {
		out[name] = agg.Source()
	}
	return out
}

func (a Aggs) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Source())
}

// MetricAgg is a single- or multi-value metric over a field.
type MetricAgg struct {
	Op       string
	Field    string
	Percents []float64
}

func (m *MetricAgg) Source() map[string]any {
	body := map[string]any{"field": m.Field}
	if len(m.Percents) > 0 {
		body["percents"] = m.Percents
	}
	return map[string]any{m.Op: body}
}

func Avg(field string) *MetricAgg         { return &MetricAgg{Op: "avg", Field: field} }
func Sum(field string) *MetricAgg         { return &MetricAgg{Op: "sum", Field: field} }
func Min(field string) *MetricAgg         { return &MetricAgg{Op: "min", Field: field} }
func Max(field string) *MetricAgg         { return &MetricAgg{Op: "max", Field: field} }
func Cardinality(field string) *MetricAgg { return &MetricAgg{Op: "cardinality", Field: field} }

// Percentiles computes a single percentile; its value is read at values>{p}.
func Percentiles(field string, p float64) *MetricAgg {
	return &MetricAgg{Op: "percentiles", Field: field, Percents: []float64{p}}
}

// PercentileKey is the key a percentile is reported under, e.g. "50.0".
func PercentileKey(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64)
}

// BucketAgg partitions documents and runs its sub-aggregations per bucket.
type BucketAgg struct {
	Op     string
	Params map[string]any
	Subs   Aggs
}

func (b *BucketAgg) Source() map[string]any {
	out := map[string]any{b.Op: b.params()}
	if len(b.Subs) > 0 {
		out["aggs"] = b.Subs.Source()
	}
	return out
}

func (b *BucketAgg) params() any {
	if b.Params == nil {
		return map[string]any{}
	}
	return b.Params
}

// With adds a named sub-aggregation and returns b.
func (b *BucketAgg) With(name string, sub Aggregation) *BucketAgg {
	if b.Subs == nil {
		b.Subs = Aggs{}
	}
	b.Subs[name] = sub
	return b
}

// WithAll adds every named sub-aggregation and returns b.
func (b *BucketAgg) WithAll(subs Aggs) *BucketAgg {
	for name, sub := range subs {
		b.With(name, sub)
	}
	return b
}

// TermsAgg buckets by the distinct values of field.
func TermsAgg(field string, size int) *BucketAgg {
	return &BucketAgg{Op: "terms", Params: map[string]any{"field": field, "size": size}}
}

// NestedAgg steps into nested documents at path.
func NestedAgg(path string) *BucketAgg {
	return &BucketAgg{Op: "nested", Params: map[string]any{"path": path}}
}

// ReverseNested steps from nested documents back to their root document.
func ReverseNested() *BucketAgg {
	return &BucketAgg{Op: "reverse_nested"}
}

// FilterAgg keeps only documents matching q.
func FilterAgg(q Query) *BucketAgg {
	return &BucketAgg{Op: "filter", Params: q.Source()}
}

// FiltersAgg creates one bucket per named query.
func FiltersAgg(named map[string]Query) *BucketAgg {
	filters := make(map[string]any, len(named))
	for name, q := range named {
		filters[name] = q.Source()
	}
	return &BucketAgg{Op: "filters", Params: map[string]any{"filters": filters}}
}

// DateHistogram buckets field into fixed-width intervals covering [min, max).
// Empty buckets are kept so every interval is reported.
func DateHistogram(field string, minutes int, min, max time.Time) *BucketAgg {
	return &BucketAgg{Op: "date_histogram", Params: map[string]any{
		"field":          field,
		"fixed_interval": strconv.Itoa(minutes) + "m",
		"min_doc_count":  0,
		"extended_bounds": map[string]any{
			"min": min.UnixMilli(),
			"max": max.Add(-time.Millisecond).UnixMilli(),
		},
	}}
}

// TopHitsAgg returns the first size documents of a bucket, restricted to
// the listed source fields when Includes is set.
type TopHitsAgg struct {
	Size     int
	Includes []string
}

func (t *TopHitsAgg) Source() map[string]any {
	body := map[string]any{"size": t.Size}
	if len(t.Includes) > 0 {
		body["_source"] = map[string]any{"includes": t.Includes}
	}
	return map[string]any{"top_hits": body}
}

// ContainsPattern returns a terms include pattern matching values that
// contain s literally.
func ContainsPattern(s string) string {
	var b strings.Builder
	b.WriteString(".*")
	for _, r := range s {
		if strings.ContainsRune(`.?+*|{}[]()"\#@&<>~`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteString(".*")
	return b.String()
}

// PipelineAgg aggregates a metric across the buckets of a sibling aggregation.
type PipelineAgg struct {
	Op          string
	BucketsPath string
}

func (p *PipelineAgg) Source() map[string]any {
	return map[string]any{p.Op: map[string]any{"buckets_path": p.BucketsPath}}
}

// BucketPipeline builds a {op}_bucket sibling pipeline (sum, avg, min, max).
func BucketPipeline(op, bucketsPath string) *PipelineAgg {
	return &PipelineAgg{Op: op + "_bucket", BucketsPath: bucketsPath}
}
