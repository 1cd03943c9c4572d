package registry

import (
	"github.com/yourusername/traceboard/pkg/alias"
	"github.com/yourusername/traceboard/pkg/esquery"
	"github.com/yourusername/traceboard/pkg/models"
)

// Source is a table of the columnar store a metric reads from.
type Source string

const (
	SourceTraces      Source = "traces"
	SourceEvents      Source = "events"
	SourceEvaluations Source = "evaluations"
	SourceContexts    Source = "contexts"
)

var sourceOrder = []Source{SourceTraces, SourceEvents, SourceEvaluations, SourceContexts}

var sourceTables = map[Source]string{
	SourceTraces:      "trace_summaries",
	SourceEvents:      "trace_events",
	SourceEvaluations: "evaluation_runs",
	SourceContexts:    "trace_contexts",
}

// Table returns the columnar table backing the source.
func (s Source) Table() string {
	return sourceTables[s]
}

// Columns shared by every columnar table.
const (
	ColumnTenant     = "TenantId"
	ColumnTraceID    = "TraceId"
	ColumnOccurredAt = "OccurredAt"
)

// Search index fields.
const (
	FieldTenant       = "tenant_id"
	FieldTraceID      = "trace_id"
	FieldStartedAt    = "timestamps.started_at"
	FieldUserID       = "metadata.user_id"
	FieldThreadID     = "metadata.thread_id"
	FieldCustomerID   = "metadata.customer_id"
	FieldLabels       = "metadata.labels"
	FieldTopicID      = "metadata.topic_id"
	FieldSubtopicID   = "metadata.subtopic_id"
	FieldSatisfaction = "input.satisfaction_score"
	FieldHasError     = "error.has_error"

	PathSpans      = "spans"
	FieldSpanModel = "spans.model"
	FieldSpanType  = "spans.type"

	PathEvents        = "events"
	FieldEventID      = "events.event_id"
	FieldEventType    = "events.event_type"
	PathEventMetrics  = "events.metrics"
	FieldEventMetricK = "events.metrics.key"
	FieldEventMetricV = "events.metrics.value"
	PathEventDetails  = "events.event_details"
	FieldEventDetailK = "events.event_details.key"
	FieldEventDetailV = "events.event_details.value"
	FieldEventTime    = "events.timestamps.started_at"

	PathEvaluations   = "evaluations"
	FieldEvaluationID = "evaluations.evaluation_id"
	FieldEvaluatorID  = "evaluations.evaluator_id"
	FieldEvalStatus   = "evaluations.status"
	FieldEvalScore    = "evaluations.score"
	FieldEvalPassed   = "evaluations.passed"

	PathContexts      = "contexts"
	FieldDocumentID   = "contexts.document_id"
	FieldDocumentText = "contexts.content"
)

// Fixed values of the event and evaluation stores.
const (
	EventThumbsUpDown   = "thumbs_up_down"
	EventMetricVote     = "vote"
	EventDetailFeedback = "feedback"
	EvaluationProcessed = "processed"
)

// LabelsTopics names the topic id to topic name resolver.
const LabelsTopics = "topics"

// Sentiment thresholds on the input satisfaction score.
const (
	positiveSentiment = 0.1
	negativeSentiment = -0.1
)

// childAgg is the name of the single sub-aggregation of a wrapping aggregation.
const childAgg = "child"

// backAgg is the name of the reverse_nested aggregation inside nested group buckets.
const backAgg = "back"

// termsFallbackSize bounds terms aggregations standing in for cardinality.
const termsFallbackSize = 10000

var pipelineFields = map[models.PipelineField]struct {
	search string
	column string
}{
	models.PipelineUserID:     {search: FieldUserID, column: "UserId"},
	models.PipelineThreadID:   {search: FieldThreadID, column: "ThreadId"},
	models.PipelineCustomerID: {search: FieldCustomerID, column: "CustomerId"},
}

// PipelineSearchField returns the search field a pipeline buckets by.
func PipelineSearchField(f models.PipelineField) string {
	return pipelineFields[f].search
}

// PipelineColumn returns the column a pipeline groups by. Every metric
// source carries it.
func PipelineColumn(f models.PipelineField) string {
	return pipelineFields[f].column
}

func wrapNested(path string, child esquery.Aggregation) esquery.Aggregation {
	return esquery.NestedAgg(path).With(childAgg, child)
}

func wrapFilter(q esquery.Query, child esquery.Aggregation) esquery.Aggregation {
	return esquery.FilterAgg(q).With(childAgg, child)
}

func wrapReverse(child esquery.Aggregation) esquery.Aggregation {
	return esquery.ReverseNested().With(childAgg, child)
}

// under prefixes a path with depth child accessors.
func under(depth int, path string) string {
	segs := make([]string, 0, depth+1)
	for i := 0; i < depth; i++ {
		segs = append(segs, childAgg)
	}
	return alias.Path(append(segs, path)...)
}
