package registry

import (
	"fmt"

	"github.com/yourusername/traceboard/pkg/alias"
	"github.com/yourusername/traceboard/pkg/esquery"
	"github.com/yourusername/traceboard/pkg/models"
)

func defaultFilters() []FilterDefinition {
	return []FilterDefinition{
		rootFilter("topics.topics", "Topic", FieldTopicID, "TopicId", LabelsTopics),
		rootFilter("topics.subtopics", "Subtopic", FieldSubtopicID, "SubTopicId", LabelsTopics),
		rootFilter("metadata.user_id", "User", FieldUserID, "UserId", ""),
		rootFilter("metadata.thread_id", "Thread", FieldThreadID, "ThreadId", ""),
		rootFilter("metadata.customer_id", "Customer", FieldCustomerID, "CustomerId", ""),
		arrayFilter("metadata.labels", "Label", "", FieldLabels, "Labels"),
		arrayFilter("spans.model", "Model", PathSpans, FieldSpanModel, "Models"),
		arrayFilter("spans.type", "Span type", PathSpans, FieldSpanType, "SpanTypes"),
		{
			Field: "traces.error",
			Label: "Contains error",
			Search: func(values []string) esquery.Query {
				return esquery.TermsQuery(FieldHasError, values)
			},
			SQL: func(p FilterSQLParams) string {
				return fmt.Sprintf("if(%s = 1, 'true', 'false') IN %s", col(p.Table, "HasError"), p.Binder.Strings(p.Values))
			},
			OptionsSearch: func(p OptionParams) esquery.Aggregation {
				return optionTerms(FieldHasError, OptionParams{Size: 2, Match: p.Match})
			},
			OptionsBucketsPath: "buckets",
			OptionsSource:      SourceTraces,
			OptionsSQL: func(t string, p OptionParams) string {
				return fmt.Sprintf("if(%s = 1, 'true', 'false')", col(t, "HasError"))
			},
		},
		childTableFilter("events.event_type", "Event type", PathEvents, FieldEventType, SourceEvents, "EventType"),
		childTableFilter("evaluations.evaluator_id", "Evaluator", PathEvaluations, FieldEvaluatorID, SourceEvaluations, "EvaluatorId"),
	}
}

// rootFilter filters on a scalar field of the trace.
func rootFilter(field models.FilterField, label, searchField, column, resolver string) FilterDefinition {
	return FilterDefinition{
		Field: field,
		Label: label,
		Search: func(values []string) esquery.Query {
			return esquery.TermsQuery(searchField, values)
		},
		SQL: func(p FilterSQLParams) string {
			return fmt.Sprintf("%s IN %s", col(p.Table, column), p.Binder.Strings(p.Values))
		},
		OptionsSearch: func(p OptionParams) esquery.Aggregation {
			return optionTerms(searchField, p)
		},
		OptionsBucketsPath: "buckets",
		OptionsSource:      SourceTraces,
		OptionsSQL: func(t string, p OptionParams) string {
			return col(t, column)
		},
		LabelResolver: resolver,
	}
}

// arrayFilter filters on a multi-valued field of the trace, optionally
// stored as nested documents at path in the search index.
func arrayFilter(field models.FilterField, label, path, searchField, column string) FilterDefinition {
	f := FilterDefinition{
		Field: field,
		Label: label,
		Search: func(values []string) esquery.Query {
			q := esquery.TermsQuery(searchField, values)
			if path != "" {
				return esquery.NestedQuery(path, q)
			}
			return q
		},
		SQL: func(p FilterSQLParams) string {
			return fmt.Sprintf("hasAny(%s, %s)", col(p.Table, column), p.Binder.Strings(p.Values))
		},
		OptionsSearch: func(p OptionParams) esquery.Aggregation {
			return optionTerms(searchField, p)
		},
		OptionsBucketsPath: "buckets",
		OptionsSource:      SourceTraces,
		OptionsSQL: func(t string, p OptionParams) string {
			return "arrayJoin(" + col(t, column) + ")"
		},
	}
	if path != "" {
		f.OptionsSearch = nestedOptions(path, searchField)
		f.OptionsBucketsPath = alias.Path(childAgg, "buckets")
		f.OptionsCountPath = alias.Path(backAgg, "doc_count")
	}
	return f
}

// childTableFilter filters traces by a field of one of their child records.
func childTableFilter(field models.FilterField, label, path, searchField string, source Source, column string) FilterDefinition {
	return FilterDefinition{
		Field: field,
		Label: label,
		Search: func(values []string) esquery.Query {
			return esquery.NestedQuery(path, esquery.TermsQuery(searchField, values))
		},
		SQL: func(p FilterSQLParams) string {
			return fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s = %s AND %s IN %s)",
				col(p.Table, ColumnTraceID), ColumnTraceID, source.Table(),
				ColumnTenant, p.Tenant, column, p.Binder.Strings(p.Values))
		},
		OptionsSearch:      nestedOptions(path, searchField),
		OptionsBucketsPath: alias.Path(childAgg, "buckets"),
		OptionsCountPath:   alias.Path(backAgg, "doc_count"),
		OptionsSource:      source,
		OptionsSQL: func(t string, p OptionParams) string {
			return col(t, column)
		},
	}
}

// nestedOptions lists values of a nested field, counting the traces that
// carry each of them.
func nestedOptions(path, field string) func(OptionParams) esquery.Aggregation {
	return func(p OptionParams) esquery.Aggregation {
		return wrapNested(path, optionTerms(field, p).With(backAgg, esquery.ReverseNested()))
	}
}

func optionTerms(field string, p OptionParams) *esquery.BucketAgg {
	terms := esquery.TermsAgg(field, p.Size)
	if p.Match != "" {
		terms.Params["include"] = esquery.ContainsPattern(p.Match)
	}
	return terms
}
