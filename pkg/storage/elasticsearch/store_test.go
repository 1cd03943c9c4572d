package elasticsearch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yourusername/traceboard/pkg/errors"
	"github.com/yourusername/traceboard/pkg/esquery"
	"github.com/yourusername/traceboard/pkg/models"
	"github.com/yourusername/traceboard/pkg/registry"
	"github.com/yourusername/traceboard/pkg/storage"
)

func newTestStore(searcher *fakeSearcher, labels storage.LabelResolver) *Store {
	return NewStore(searcher, "traces", registry.Default(), labels, storage.DefaultLimits(), false)
}

func TestStoreTimeseries(t *testing.T) {
	searcher := &fakeSearcher{response: `{"aggregations": {
		"previous": {"doc_count": 1, "group": {"buckets": [
			{"key": "t1", "doc_count": 1, "0/metadata.trace_id/cardinality": {"value": 1}}
		]}},
		"current": {"doc_count": 3, "group": {"buckets": [
			{"key": "t1", "doc_count": 2, "0/metadata.trace_id/cardinality": {"value": 2}},
			{"key": "t3", "doc_count": 1, "0/metadata.trace_id/cardinality": {"value": null}}
		]}}
	}}`}
	labels := &fakeLabels{labels: map[string]string{"t1": "Billing"}}

	q := tracesQuery(ptr(models.FullPeriod()))
	q.GroupBy = "topics.topics"
	result, err := newTestStore(searcher, labels).Timeseries(context.Background(), q)
	require.NoError(t, err)

	require.Equal(t, "traces", searcher.index)
	require.Len(t, searcher.bodies, 1)
	require.Equal(t, 1, labels.calls)

	require.Equal(t, map[string]map[string]float64{
		"Billing": {tracesSeries: 2},
		"t3":      {tracesSeries: 0},
	}, result.CurrentPeriod[0].Groups)
	require.Equal(t, map[string]map[string]float64{
		"Billing": {tracesSeries: 1},
	}, result.PreviousPeriod[0].Groups)
}

func TestStoreTimeseriesKeepsGroupsSharingALabel(t *testing.T) {
	searcher := &fakeSearcher{response: `{"aggregations": {
		"previous": {"group": {"buckets": []}},
		"current": {"group": {"buckets": [
			{"key": "id1", "doc_count": 5, "0/metadata.trace_id/cardinality": {"value": 5}},
			{"key": "id2", "doc_count": 7, "0/metadata.trace_id/cardinality": {"value": 7}}
		]}}
	}}`}
	labels := &fakeLabels{labels: map[string]string{"id1": "Billing", "id2": "Billing"}}

	q := tracesQuery(ptr(models.FullPeriod()))
	q.GroupBy = "topics.topics"
	result, err := newTestStore(searcher, labels).Timeseries(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, map[string]map[string]float64{
		"Billing (id1)": {tracesSeries: 5},
		"Billing (id2)": {tracesSeries: 7},
	}, result.CurrentPeriod[0].Groups)
}

func TestStoreTimeseriesIgnoresLabelFailure(t *testing.T) {
	searcher := &fakeSearcher{response: `{"aggregations": {
		"previous": {"group": {"buckets": []}},
		"current": {"group": {"buckets": [
			{"key": "t1", "doc_count": 2, "0/metadata.trace_id/cardinality": {"value": 2}}
		]}}
	}}`}
	labels := &fakeLabels{err: errors.New("store closed")}

	q := tracesQuery(ptr(models.FullPeriod()))
	q.GroupBy = "topics.topics"
	result, err := newTestStore(searcher, labels).Timeseries(context.Background(), q)
	require.NoError(t, err)
	require.Contains(t, result.CurrentPeriod[0].Groups, "t1")
}

func TestStoreErrors(t *testing.T) {
	ctx := context.Background()
	failing := newTestStore(&fakeSearcher{err: errors.New("connection refused")}, nil)

	_, err := failing.Timeseries(ctx, tracesQuery(nil))
	require.Equal(t, apperrors.ErrCodeBackend, apperrors.CodeOf(err))

	_, err = failing.FilterOptions(ctx, models.FilterOptionsQuery{Scope: scope(), Field: "metadata.user_id"})
	require.Equal(t, apperrors.ErrCodeBackend, apperrors.CodeOf(err))

	require.Error(t, failing.Health(ctx))
	require.NoError(t, newTestStore(&fakeSearcher{}, nil).Health(ctx))

	malformed := newTestStore(&fakeSearcher{response: `{"hits": {}}`}, nil)
	_, err = malformed.Timeseries(ctx, tracesQuery(nil))
	require.Equal(t, apperrors.ErrCodeInternal, apperrors.CodeOf(err))

	_, err = malformed.FilterOptions(ctx, models.FilterOptionsQuery{Scope: scope(), Field: "unknown.field"})
	require.True(t, apperrors.IsBadRequest(err))
}

func TestStoreFilterOptions(t *testing.T) {
	searcher := &fakeSearcher{response: `{"aggregations": {"options": {"buckets": [
		{"key": "t2", "doc_count": 3},
		{"key": "t1", "doc_count": 7},
		{"key": "", "doc_count": 4},
		{"key": "t9", "doc_count": 0}
	]}}}`}
	labels := &fakeLabels{labels: map[string]string{"t1": "Billing"}}

	q := models.FilterOptionsQuery{Scope: scope(), Field: "topics.topics", Query: "t"}
	q.Filters = models.Filters{
		"topics.topics":    {"t1"},
		"metadata.user_id": {"u1"},
	}
	result, err := newTestStore(searcher, labels).FilterOptions(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, []models.FilterOption{
		{Field: "t1", Label: "Billing", Count: 7},
		{Field: "t2", Label: "t2", Count: 3},
	}, result.Options)

	body := searcher.bodies[0]
	filter := dig(t, body, "query", "bool", "filter").([]any)
	require.Len(t, filter, 3)
	require.Equal(t, []any{"u1"}, dig(t, filter[2], "terms", "metadata.user_id"))

	terms := dig(t, body, "aggs", "options", "terms")
	require.Equal(t, "metadata.topic_id", dig(t, terms, "field"))
	require.EqualValues(t, storage.DefaultLimits().Options, dig(t, terms, "size"))
	require.Equal(t, ".*t.*", dig(t, terms, "include"))
}

func TestStoreTopDocuments(t *testing.T) {
	searcher := &fakeSearcher{response: `{"aggregations": {"documents": {
		"unique": {"value": 12},
		"child": {"buckets": [
			{"key": "doc-b", "doc_count": 4,
				"back": {"doc_count": 2, "sample": {"hits": {"hits": [{"_source": {"trace_id": "tr-2"}}]}}},
				"content": {"hits": {"hits": []}}},
			{"key": "doc-a", "doc_count": 9,
				"back": {"doc_count": 5, "sample": {"hits": {"hits": [{"_source": {"trace_id": "tr-1"}}]}}},
				"content": {"hits": {"hits": [{"_source": {"content": "refund policy", "document_id": "doc-a"}}]}}}
		]}
	}}}`}

	result, err := newTestStore(searcher, nil).TopDocuments(context.Background(), models.DocumentsQuery{Scope: scope()})
	require.NoError(t, err)
	require.EqualValues(t, 12, result.TotalUniqueDocuments)
	require.Len(t, result.TopDocuments, 2)

	first := result.TopDocuments[0]
	require.Equal(t, "doc-a", first.DocumentID)
	require.EqualValues(t, 5, first.Count)
	require.Equal(t, "tr-1", first.TraceID)
	require.NotNil(t, first.Content)
	require.Equal(t, "refund policy", *first.Content)

	second := result.TopDocuments[1]
	require.Equal(t, "doc-b", second.DocumentID)
	require.EqualValues(t, 2, second.Count)
	require.Nil(t, second.Content)

	docs := dig(t, searcher.bodies[0], "aggs", "documents")
	require.Equal(t, "contexts", dig(t, docs, "nested", "path"))
	require.Equal(t, "contexts.document_id", dig(t, docs, "aggs", "child", "terms", "field"))
}

func TestStoreFeedbackEvents(t *testing.T) {
	searcher := &fakeSearcher{response: `{"hits": {"hits": [
		{"_source": {"trace_id": "tr-1"}, "inner_hits": {"events": {"hits": {"hits": [
			{"_source": {
				"event_id": "ev-1", "event_type": "thumbs_up_down",
				"timestamps": {"started_at": "2024-01-09T10:00:00Z"},
				"metrics": [{"key": "vote", "value": 1}],
				"event_details": [{"key": "feedback", "value": "great"}, {"key": "score", "value": 0.5}]
			}},
			{"_source": {
				"event_id": "ev-2", "event_type": "thumbs_up_down",
				"timestamps": {"started_at": 1704880800000},
				"metrics": [{"key": "vote", "value": -1}],
				"event_details": [{"key": "feedback", "value": "wrong"}]
			}}
		]}}}},
		{"_source": {"trace_id": "tr-2"}, "inner_hits": {"events": {"hits": {"hits": [
			{"_source": {
				"event_id": "ev-3", "event_type": "thumbs_up_down",
				"timestamps": {"started_at": "2024-01-08T09:00:00Z"},
				"event_details": [{"key": "feedback", "value": "meh"}]
			}}
		]}}}}
	]}}`}

	limits := storage.DefaultLimits()
	limits.Feedback = 2
	store := NewStore(searcher, "traces", registry.Default(), nil, limits, false)

	result, err := store.FeedbackEvents(context.Background(), models.FeedbackQuery{Scope: scope()})
	require.NoError(t, err)
	require.Len(t, result.Events, 2)

	require.Equal(t, "ev-2", result.Events[0].EventID)
	require.Equal(t, time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC), result.Events[0].Timestamp)
	require.Equal(t, map[string]float64{"vote": -1}, result.Events[0].Metrics)

	ev := result.Events[1]
	require.Equal(t, "ev-1", ev.EventID)
	require.Equal(t, "tenant-1", ev.TenantID)
	require.Equal(t, "tr-1", ev.TraceID)
	require.Equal(t, map[string]string{"feedback": "great", "score": "0.5"}, ev.Details)

	body := searcher.bodies[0]
	require.EqualValues(t, 2, body["size"])

	sort, ok := body["sort"].([]any)
	require.True(t, ok)
	require.Len(t, sort, 1)
	byEvent, ok := esquery.Lookup(sort[0], "events.timestamps.started_at")
	require.True(t, ok)
	raw, err := json.Marshal(byEvent)
	require.NoError(t, err)
	require.JSONEq(t, `{"order": "desc", "mode": "max", "nested": {"path": "events", "filter": {"bool": {"filter": [
		{"term": {"events.event_type": "thumbs_up_down"}},
		{"nested": {"path": "events.event_details", "query": {"term": {"events.event_details.key": "feedback"}}}}
	]}}}}`, string(raw))

	query, err := json.Marshal(body["query"])
	require.NoError(t, err)
	require.Contains(t, string(query), `"inner_hits":{"size":2,"sort":[{"events.timestamps.started_at":"desc"}]}`)
}
