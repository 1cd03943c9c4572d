package registry

import (
	"fmt"

	"github.com/yourusername/traceboard/pkg/alias"
	"github.com/yourusername/traceboard/pkg/esquery"
)

// groupTermsSize bounds the number of group values returned per bucket.
const groupTermsSize = 50

func defaultGroups() []GroupDefinition {
	return []GroupDefinition{
		{
			Group:         "topics",
			Key:           "topics",
			Label:         "Topic",
			Wrap:          termsGroup(FieldTopicID),
			BucketsPath:   "buckets",
			LabelResolver: LabelsTopics,
			SQL:           columnGroup("TopicId", SourceTraces),
		},
		{
			Group:         "topics",
			Key:           "subtopics",
			Label:         "Subtopic",
			Wrap:          termsGroup(FieldSubtopicID),
			BucketsPath:   "buckets",
			LabelResolver: LabelsTopics,
			SQL:           columnGroup("SubTopicId", SourceTraces),
		},
		{
			Group:       "metadata",
			Key:         "user_id",
			Label:       "User",
			Wrap:        termsGroup(FieldUserID),
			BucketsPath: "buckets",
			SQL:         columnGroup("UserId", SourceTraces, SourceEvents, SourceEvaluations),
		},
		{
			Group:       "metadata",
			Key:         "thread_id",
			Label:       "Thread",
			Wrap:        termsGroup(FieldThreadID),
			BucketsPath: "buckets",
			SQL:         columnGroup("ThreadId", SourceTraces, SourceEvents, SourceEvaluations),
		},
		{
			Group:       "metadata",
			Key:         "customer_id",
			Label:       "Customer",
			Wrap:        termsGroup(FieldCustomerID),
			BucketsPath: "buckets",
			SQL:         columnGroup("CustomerId", SourceTraces, SourceEvents, SourceEvaluations),
		},
		{
			Group:       "metadata",
			Key:         "labels",
			Label:       "Label",
			Wrap:        termsGroup(FieldLabels),
			BucketsPath: "buckets",
			SQL: map[Source]func(string) string{
				SourceTraces: func(t string) string { return "arrayJoin(" + col(t, "Labels") + ")" },
			},
		},
		{
			Group:       "metadata",
			Key:         "model",
			Label:       "Model",
			Wrap:        nestedTermsGroup(PathSpans, FieldSpanModel),
			BucketsPath: alias.Path(childAgg, "buckets"),
			InnerPath:   backAgg,
			SQL: map[Source]func(string) string{
				SourceTraces: func(t string) string { return "arrayJoin(" + col(t, "Models") + ")" },
			},
		},
		{
			Group: "sentiment",
			Key:   "input_sentiment",
			Label: "Input sentiment",
			Wrap: func(series esquery.Aggs) esquery.Aggregation {
				return esquery.FiltersAgg(map[string]esquery.Query{
					"positive": esquery.Range(FieldSatisfaction, positiveSentiment, nil),
					"negative": esquery.Range(FieldSatisfaction, nil, negativeSentiment),
					"neutral":  esquery.Range(FieldSatisfaction, negativeSentiment, positiveSentiment),
				}).WithAll(series)
			},
			BucketsPath: "buckets",
			SQL: map[Source]func(string) string{
				SourceTraces: func(t string) string {
					s := col(t, "SatisfactionScore")
					return fmt.Sprintf("multiIf(isNull(%s), '', %s >= %g, 'positive', %s < %g, 'negative', 'neutral')",
						s, s, positiveSentiment, s, negativeSentiment)
				},
			},
		},
		{
			Group: "sentiment",
			Key:   "thumbs_up_down",
			Label: "Thumbs up/down",
			Wrap: func(series esquery.Aggs) esquery.Aggregation {
				votes := esquery.TermsAgg(FieldEventMetricV, 3).With(backAgg, esquery.ReverseNested().WithAll(series))
				return wrapNested(PathEvents, wrapFilter(esquery.Term(FieldEventType, EventThumbsUpDown),
					wrapNested(PathEventMetrics, wrapFilter(esquery.Term(FieldEventMetricK, EventMetricVote), votes))))
			},
			BucketsPath: under(4, "buckets"),
			InnerPath:   backAgg,
			Labels:      map[string]string{"1": "thumbs_up", "-1": "thumbs_down"},
			SQL: map[Source]func(string) string{
				SourceEvents: func(t string) string {
					return fmt.Sprintf("if(%s = '%s' AND mapContains(%s, '%s'), toString(toInt64(%s['%s'])), '')",
						col(t, "EventType"), EventThumbsUpDown, col(t, "Metrics"), EventMetricVote, col(t, "Metrics"), EventMetricVote)
				},
			},
		},
		{
			Group:       "events",
			Key:         "event_type",
			Label:       "Event type",
			Wrap:        nestedTermsGroup(PathEvents, FieldEventType),
			BucketsPath: alias.Path(childAgg, "buckets"),
			InnerPath:   backAgg,
			SQL:         columnGroup("EventType", SourceEvents),
		},
		{
			Group:       "evaluations",
			Key:         "evaluation_passed",
			Label:       "Evaluation passed",
			Wrap:        nestedTermsGroup(PathEvaluations, FieldEvalPassed),
			BucketsPath: alias.Path(childAgg, "buckets"),
			InnerPath:   backAgg,
			Labels:      map[string]string{"true": "passed", "false": "failed"},
			SQL: map[Source]func(string) string{
				SourceEvaluations: func(t string) string {
					p := col(t, "Passed")
					return fmt.Sprintf("multiIf(isNull(%s), '', %s = 1, 'true', 'false')", p, p)
				},
			},
		},
		{
			Group: "error",
			Key:   "has_error",
			Label: "Contains error",
			Wrap: func(series esquery.Aggs) esquery.Aggregation {
				without := esquery.Bool()
				without.MustNot = []esquery.Query{esquery.Term(FieldHasError, true)}
				return esquery.FiltersAgg(map[string]esquery.Query{
					"with_error":    esquery.Term(FieldHasError, true),
					"without_error": without,
				}).WithAll(series)
			},
			BucketsPath: "buckets",
			SQL: map[Source]func(string) string{
				SourceTraces: func(t string) string {
					return fmt.Sprintf("if(%s = 1, 'with_error', 'without_error')", col(t, "HasError"))
				},
			},
		},
	}
}

func termsGroup(field string) func(esquery.Aggs) esquery.Aggregation {
	return func(series esquery.Aggs) esquery.Aggregation {
		return esquery.TermsAgg(field, groupTermsSize).WithAll(series)
	}
}

// nestedTermsGroup groups by a nested field and steps back to the root
// document so series aggregate whole traces.
func nestedTermsGroup(path, field string) func(esquery.Aggs) esquery.Aggregation {
	return func(series esquery.Aggs) esquery.Aggregation {
		return wrapNested(path, esquery.TermsAgg(field, groupTermsSize).
			With(backAgg, esquery.ReverseNested().WithAll(series)))
	}
}

func columnGroup(column string, sources ...Source) map[Source]func(string) string {
	out := make(map[Source]func(string) string, len(sources))
	for _, s := range sources {
		out[s] = func(t string) string { return col(t, column) }
	}
	return out
}
