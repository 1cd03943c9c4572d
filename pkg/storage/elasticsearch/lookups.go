package elasticsearch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/yourusername/traceboard/pkg/errors"
	"github.com/yourusername/traceboard/pkg/esquery"
	"github.com/yourusername/traceboard/pkg/models"
	"github.com/yourusername/traceboard/pkg/registry"
	"github.com/yourusername/traceboard/pkg/storage"
)

const (
	optionsAgg  = "options"
	docsAgg     = "documents"
	uniqueAgg   = "unique"
	sampleAgg   = "sample"
	contentAgg  = "content"
	childAgg    = "child"
	backAgg     = "back"
	innerEvents = "events"
)

// FilterOptions lists the most used values of a filter field. Filters on
// the looked-up field itself are ignored so every value stays selectable.
func (s *Store) FilterOptions(ctx context.Context, q models.FilterOptionsQuery) (*models.FilterOptionsResult, error) {
	f, err := s.registry.Filter(q.Field)
	if err != nil {
		return nil, apperrors.NewBadRequestError(err.Error())
	}
	query, err := s.compiler.scopeQuery(q.Scope, q.Field)
	if err != nil {
		return nil, err
	}
	req := &esquery.Request{
		Query: query,
		Aggs: esquery.Aggs{optionsAgg: f.OptionsSearch(registry.OptionParams{
			Key:    q.Key,
			Subkey: q.Subkey,
			Size:   s.limits.Options,
			Match:  q.Query,
		})},
	}
	resp, err := s.search(ctx, req)
	if err != nil {
		return nil, err
	}

	labels := storage.ResolveLabels(ctx, s.labels, q.TenantID, f.LabelResolver)
	node, _ := esquery.Lookup(resp, "aggregations>"+optionsAgg)
	countPath := f.OptionsCountPath
	if countPath == "" {
		countPath = "doc_count"
	}
	result := &models.FilterOptionsResult{Options: []models.FilterOption{}}
	for _, b := range esquery.BucketsAt(node, f.OptionsBucketsPath) {
		count, ok := esquery.LookupFloat(b.Bucket, countPath)
		if !ok || count == 0 || b.Key == "" {
			continue
		}
		result.Options = append(result.Options, models.FilterOption{
			Field: b.Key,
			Label: label(labels, b.Key),
			Count: int64(count),
		})
	}
	models.SortOptions(result.Options)
	return result, nil
}

// TopDocuments lists the retrieval documents used by the most traces.
func (s *Store) TopDocuments(ctx context.Context, q models.DocumentsQuery) (*models.TopDocumentsResult, error) {
	query, err := s.compiler.scopeQuery(q.Scope, "",
		esquery.NestedQuery(registry.PathContexts, esquery.Exists(registry.FieldDocumentID)))
	if err != nil {
		return nil, err
	}
	perDocument := esquery.TermsAgg(registry.FieldDocumentID, s.limits.TopDocuments).
		With(backAgg, esquery.ReverseNested().
			With(sampleAgg, &esquery.TopHitsAgg{Size: 1, Includes: []string{registry.FieldTraceID}})).
		With(contentAgg, &esquery.TopHitsAgg{Size: 1})
	req := &esquery.Request{
		Query: query,
		Aggs: esquery.Aggs{docsAgg: esquery.NestedAgg(registry.PathContexts).
			With(childAgg, perDocument).
			With(uniqueAgg, esquery.Cardinality(registry.FieldDocumentID))},
	}
	resp, err := s.search(ctx, req)
	if err != nil {
		return nil, err
	}

	node, _ := esquery.Lookup(resp, "aggregations>"+docsAgg)
	total, _ := esquery.LookupFloat(node, uniqueAgg+">value")
	result := &models.TopDocumentsResult{
		TopDocuments:         []models.DocumentUsage{},
		TotalUniqueDocuments: int64(total),
	}
	for _, b := range esquery.BucketsAt(node, childAgg+">buckets") {
		count, _ := esquery.LookupFloat(b.Bucket, backAgg+">doc_count")
		doc := models.DocumentUsage{DocumentID: b.Key, Count: int64(count)}
		if hit := firstHit(b.Bucket, backAgg+">"+sampleAgg); hit != nil {
			doc.TraceID, _ = hit["trace_id"].(string)
		}
		if hit := firstHit(b.Bucket, contentAgg); hit != nil {
			if content, ok := hit["content"].(string); ok {
				doc.Content = &content
			}
		}
		result.TopDocuments = append(result.TopDocuments, doc)
	}
	models.SortDocuments(result.TopDocuments)
	return result, nil
}

// FeedbackEvents lists the latest thumbs up/down events carrying a
// feedback comment. Traces are ranked by their newest matching event, so
// the latest limit events all sit in the first limit traces.
func (s *Store) FeedbackEvents(ctx context.Context, q models.FeedbackQuery) (*models.FeedbackResult, error) {
	events := esquery.Bool(
		esquery.Term(registry.FieldEventType, registry.EventThumbsUpDown),
		esquery.NestedQuery(registry.PathEventDetails, esquery.Term(registry.FieldEventDetailK, registry.EventDetailFeedback)),
	)
	query, err := s.compiler.scopeQuery(q.Scope, "",
		esquery.NestedInnerHits(registry.PathEvents, events, s.limits.Feedback,
			map[string]any{registry.FieldEventTime: "desc"}))
	if err != nil {
		return nil, err
	}
	req := &esquery.Request{
		Size:   s.limits.Feedback,
		Query:  query,
		Sort:   []map[string]any{esquery.NestedSort(registry.FieldEventTime, registry.PathEvents, events, "desc")},
		Source: []string{registry.FieldTraceID, registry.FieldTenant},
	}
	resp, err := s.search(ctx, req)
	if err != nil {
		return nil, err
	}

	hits, _ := esquery.Lookup(resp, "hits>hits")
	list, _ := hits.([]any)
	result := &models.FeedbackResult{Events: []models.EventRecord{}}
	for _, h := range list {
		hit, ok := h.(map[string]any)
		if !ok {
			continue
		}
		traceID, _ := esquery.Lookup(hit, "_source>"+registry.FieldTraceID)
		inner, _ := esquery.Lookup(hit, "inner_hits>"+innerEvents+">hits>hits")
		innerList, _ := inner.([]any)
		for _, ih := range innerList {
			src, ok := esquery.Lookup(ih, "_source")
			if !ok {
				continue
			}
			ev, err := eventRecord(src)
			if err != nil {
				return nil, apperrors.NewInternalError("failed to read feedback event", err)
			}
			ev.TenantID = q.TenantID
			ev.TraceID, _ = traceID.(string)
			result.Events = append(result.Events, ev)
		}
	}
	models.SortEvents(result.Events)
	if len(result.Events) > s.limits.Feedback {
		result.Events = result.Events[:s.limits.Feedback]
	}
	return result, nil
}

func label(labels map[string]string, value string) string {
	if l, ok := labels[value]; ok {
		return l
	}
	return value
}

func firstHit(bucket map[string]any, path string) map[string]any {
	hits, ok := esquery.Lookup(bucket, path+">hits>hits")
	if !ok {
		return nil
	}
	list, ok := hits.([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	src, _ := esquery.Lookup(list[0], "_source")
	m, _ := src.(map[string]any)
	return m
}

// eventRecord decodes a nested event document.
func eventRecord(src any) (models.EventRecord, error) {
	m, ok := src.(map[string]any)
	if !ok {
		return models.EventRecord{}, fmt.Errorf("event source is %T", src)
	}
	ev := models.EventRecord{
		Metrics: map[string]float64{},
		Details: map[string]string{},
	}
	ev.EventID, _ = m["event_id"].(string)
	ev.EventType, _ = m["event_type"].(string)
	started, _ := esquery.Lookup(m, "timestamps>started_at")
	ts, err := parseTimestamp(started)
	if err != nil {
		return models.EventRecord{}, fmt.Errorf("event %s: %w", ev.EventID, err)
	}
	ev.Timestamp = ts
	for _, kv := range keyValues(m["metrics"]) {
		if v, ok := kv.value.(float64); ok {
			ev.Metrics[kv.key] = v
		}
	}
	for _, kv := range keyValues(m["event_details"]) {
		switch v := kv.value.(type) {
		case string:
			ev.Details[kv.key] = v
		case float64:
			ev.Details[kv.key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			ev.Details[kv.key] = strconv.FormatBool(v)
		}
	}
	return ev, nil
}

type keyValue struct {
	key   string
	value any
}

// keyValues reads a nested [{key, value}] list.
func keyValues(v any) []keyValue {
	list, _ := v.([]any)
	out := make([]keyValue, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		k, ok := m["key"].(string)
		if !ok {
			continue
		}
		out = append(out, keyValue{key: k, value: m["value"]})
	}
	return out
}

// parseTimestamp accepts epoch milliseconds or an RFC 3339 string.
func parseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case float64:
		return time.UnixMilli(int64(t)).UTC(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, err
		}
		return parsed.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp %v", v)
	}
}
