package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// FullDateKey is the date key of the single bucket of a full-period query.
const FullDateKey = "full"

// FormatBucketDate renders a bucket start the same way for every backend.
func FormatBucketDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Bucket is one date slice of timeseries output. Values are keyed by series
// name; when the query is grouped, Groups holds one value map per group value
// and is emitted under the GroupBy key.
type Bucket struct {
	Date    string
	Values  map[string]float64
	GroupBy string
	Groups  map[string]map[string]float64
}

// NewBucket creates an empty bucket.
func NewBucket(date, groupBy string) *Bucket {
	b := &Bucket{Date: date, Values: map[string]float64{}, GroupBy: groupBy}
	if groupBy != "" {
		b.Groups = map[string]map[string]float64{}
	}
	return b
}

// Set stores a series value, under group when the bucket is grouped.
func (b *Bucket) Set(group, series string, value float64) {
	if b.GroupBy == "" {
		b.Values[series] = value
		return
	}
	g, ok := b.Groups[group]
	if !ok {
		g = map[string]float64{}
		b.Groups[group] = g
	}
	g[series] = value
}

func (b Bucket) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(b.Values)+2)
	for k, v := range b.Values {
		out[k] = v
	}
	if b.GroupBy != "" {
		groups := b.Groups
		if groups == nil {
			groups = map[string]map[string]float64{}
		}
		out[b.GroupBy] = groups
	}
	out["date"] = b.Date
	return json.Marshal(out)
}

func (b *Bucket) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = Bucket{Values: map[string]float64{}}
	for k, v := range raw {
		if k == "date" {
			if err := json.Unmarshal(v, &b.Date); err != nil {
				return fmt.Errorf("bucket date: %w", err)
			}
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err == nil {
			b.Values[k] = f
			continue
		}
		var groups map[string]map[string]float64
		if err := json.Unmarshal(v, &groups); err != nil {
			return fmt.Errorf("bucket field %q: %w", k, err)
		}
		b.GroupBy = k
		b.Groups = groups
	}
	return nil
}

// TimeseriesResult is the canonical timeseries output of both backends.
type TimeseriesResult struct {
	PreviousPeriod []*Bucket `json:"previousPeriod"`
	CurrentPeriod  []*Bucket `json:"currentPeriod"`
}

// SortBuckets orders buckets by date key.
func SortBuckets(buckets []*Bucket) {
	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Date < buckets[j].Date
	})
}

// FilterOption is one selectable value of a filter field.
type FilterOption struct {
	Field string `json:"field"`
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// SortOptions orders options by count, most used first, then by value.
func SortOptions(options []FilterOption) {
	sort.SliceStable(options, func(i, j int) bool {
		if options[i].Count != options[j].Count {
			return options[i].Count > options[j].Count
		}
		return options[i].Field < options[j].Field
	})
}

// FilterOptionsResult lists filter options, most used first.
type FilterOptionsResult struct {
	Options []FilterOption `json:"options"`
}

// DocumentUsage is one retrieval document and how many traces used it.
type DocumentUsage struct {
	DocumentID string  `json:"documentId"`
	Count      int64   `json:"count"`
	TraceID    string  `json:"traceId"`
	Content    *string `json:"content,omitempty"`
}

// SortDocuments orders documents by count, most used first, then by id.
func SortDocuments(docs []DocumentUsage) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Count != docs[j].Count {
			return docs[i].Count > docs[j].Count
		}
		return docs[i].DocumentID < docs[j].DocumentID
	})
}

// TopDocumentsResult lists the most used documents.
type TopDocumentsResult struct {
	TopDocuments         []DocumentUsage `json:"topDocuments"`
	TotalUniqueDocuments int64           `json:"totalUniqueDocuments"`
}

// EventRecord is a tracked event attached to a trace.
type EventRecord struct {
	EventID   string             `json:"event_id"`
	EventType string             `json:"event_type"`
	TenantID  string             `json:"project_id"`
	TraceID   string             `json:"trace_id"`
	Timestamp time.Time          `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
	Details   map[string]string  `json:"event_details"`
}

// FeedbackResult lists feedback events, newest first.
type FeedbackResult struct {
	Events []EventRecord `json:"events"`
}

// SortEvents orders events newest first.
func SortEvents(events []EventRecord) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.After(events[j].Timestamp)
		}
		return events[i].EventID < events[j].EventID
	})
}
