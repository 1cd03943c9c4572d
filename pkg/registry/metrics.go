package registry

import (
	"fmt"

	"github.com/yourusername/traceboard/pkg/alias"
	"github.com/yourusername/traceboard/pkg/esquery"
	"github.com/yourusername/traceboard/pkg/models"
)

func defaultMetrics() []MetricDefinition {
	return []MetricDefinition{
		distinctMetric("metadata", "trace_id", "Traces", FieldTraceID, "TraceId", esquery.BucketCountWithOther),
		distinctMetric("metadata", "user_id", "Users", FieldUserID, "UserId", esquery.BucketCount),
		distinctMetric("metadata", "thread_id", "Threads", FieldThreadID, "ThreadId", esquery.BucketCount),
		{
			Group:        "metadata",
			Key:          "span_type",
			Label:        "Span type",
			Aggregations: []models.AggregationType{models.CARDINALITY},
			RequiresKey:  true,
			Search: func(p SearchParams) esquery.Aggregation {
				return wrapNested(PathSpans, wrapFilter(esquery.Term(FieldSpanType, p.Key),
					wrapReverse(distinctAgg(FieldTraceID, p))))
			},
			ExtractionPath: func(p SearchParams) string {
				return under(3, distinctPath(p, esquery.BucketCountWithOther))
			},
			Source: SourceTraces,
			SQL: func(p SQLParams) string {
				return sqlAggregate(p.Aggregation, col(p.Table, "TraceId"),
					fmt.Sprintf("has(%s, %s)", col(p.Table, "SpanTypes"), p.Binder.String(p.Key)))
			},
		},
		{
			Group:        "sentiment",
			Key:          "input_sentiment",
			Label:        "Input sentiment",
			Aggregations: []models.AggregationType{models.CARDINALITY},
			RequiresKey:  true,
			Keys:         []string{"positive", "negative"},
			Search: func(p SearchParams) esquery.Aggregation {
				return wrapFilter(sentimentQuery(p.Key), distinctAgg(FieldTraceID, p))
			},
			ExtractionPath: func(p SearchParams) string {
				return under(1, distinctPath(p, esquery.BucketCountWithOther))
			},
			Source: SourceTraces,
			SQL: func(p SQLParams) string {
				return sqlAggregate(p.Aggregation, col(p.Table, "TraceId"), sentimentSQL(p.Table, p.Key))
			},
		},
		{
			Group:        "sentiment",
			Key:          "thumbs_up_down",
			Label:        "Thumbs up/down",
			Aggregations: []models.AggregationType{models.CARDINALITY, models.SUM, models.AVG, models.MIN, models.MAX},
			Search: func(p SearchParams) esquery.Aggregation {
				var inner esquery.Aggregation
				if p.Aggregation == models.CARDINALITY {
					inner = wrapReverse(distinctAgg(FieldTraceID, p))
				} else {
					inner = wrapNested(PathEventMetrics, wrapFilter(esquery.Term(FieldEventMetricK, EventMetricVote),
						numericAgg(p.Aggregation, FieldEventMetricV)))
				}
				return wrapNested(PathEvents, wrapFilter(esquery.Term(FieldEventType, EventThumbsUpDown), inner))
			},
			ExtractionPath: func(p SearchParams) string {
				if p.Aggregation == models.CARDINALITY {
					return under(3, distinctPath(p, esquery.BucketCountWithOther))
				}
				return under(4, numericPath(p.Aggregation))
			},
			Source: SourceEvents,
			SQL: func(p SQLParams) string {
				isVote := fmt.Sprintf("%s = '%s'", col(p.Table, "EventType"), EventThumbsUpDown)
				if p.Aggregation == models.CARDINALITY {
					return sqlAggregate(p.Aggregation, col(p.Table, "TraceId"), isVote)
				}
				return sqlAggregate(p.Aggregation, fmt.Sprintf("%s['%s']", col(p.Table, "Metrics"), EventMetricVote),
					fmt.Sprintf("%s AND mapContains(%s, '%s')", isVote, col(p.Table, "Metrics"), EventMetricVote))
			},
		},
		numericMetric("performance", "completion_time", "Completion time", "metrics.total_time_ms", "TotalDurationMs"),
		numericMetric("performance", "first_token", "Time to first token", "metrics.first_token_ms", "TimeToFirstTokenMs"),
		numericMetric("performance", "total_cost", "Total cost", "metrics.total_cost", "TotalCost"),
		numericMetric("performance", "prompt_tokens", "Prompt tokens", "metrics.prompt_tokens", "PromptTokens"),
		numericMetric("performance", "completion_tokens", "Completion tokens", "metrics.completion_tokens", "CompletionTokens"),
		numericMetric("performance", "total_tokens", "Total tokens", "metrics.total_tokens", "TotalTokens"),
		{
			Group:        "events",
			Key:          "event_type",
			Label:        "Event type",
			Aggregations: []models.AggregationType{models.CARDINALITY},
			RequiresKey:  true,
			Search: func(p SearchParams) esquery.Aggregation {
				return wrapNested(PathEvents, wrapFilter(esquery.Term(FieldEventType, p.Key), distinctAgg(FieldEventID, p)))
			},
			ExtractionPath: func(p SearchParams) string {
				return under(2, distinctPath(p, esquery.BucketCountWithOther))
			},
			Source: SourceEvents,
			SQL: func(p SQLParams) string {
				return sqlAggregate(p.Aggregation, col(p.Table, "EventId"),
					fmt.Sprintf("%s = %s", col(p.Table, "EventType"), p.Binder.String(p.Key)))
			},
		},
		{
			Group:          "events",
			Key:            "event_score",
			Label:          "Event score",
			Aggregations:   models.NumericAggregations,
			RequiresKey:    true,
			RequiresSubkey: true,
			Search: func(p SearchParams) esquery.Aggregation {
				return wrapNested(PathEvents, wrapFilter(esquery.Term(FieldEventType, p.Key),
					wrapNested(PathEventMetrics, wrapFilter(esquery.Term(FieldEventMetricK, p.Subkey),
						numericAgg(p.Aggregation, FieldEventMetricV)))))
			},
			ExtractionPath: func(p SearchParams) string {
				return under(4, numericPath(p.Aggregation))
			},
			Source: SourceEvents,
			SQL: func(p SQLParams) string {
				metrics := col(p.Table, "Metrics")
				subkey := p.Binder.String(p.Subkey)
				return sqlAggregate(p.Aggregation, fmt.Sprintf("%s[%s]", metrics, subkey),
					fmt.Sprintf("%s = %s AND mapContains(%s, %s)", col(p.Table, "EventType"), p.Binder.String(p.Key), metrics, subkey))
			},
		},
		{
			Group:        "evaluations",
			Key:          "evaluation_score",
			Label:        "Evaluation score",
			Aggregations: models.NumericAggregations,
			RequiresKey:  true,
			Search: func(p SearchParams) esquery.Aggregation {
				return wrapNested(PathEvaluations, wrapFilter(evaluatorQuery(p.Key), numericAgg(p.Aggregation, FieldEvalScore)))
			},
			ExtractionPath: func(p SearchParams) string {
				return under(2, numericPath(p.Aggregation))
			},
			Source: SourceEvaluations,
			SQL: func(p SQLParams) string {
				return sqlAggregate(p.Aggregation, col(p.Table, "Score"), evaluatorSQL(p))
			},
		},
		{
			Group:        "evaluations",
			Key:          "evaluation_pass_rate",
			Label:        "Evaluation pass rate",
			Aggregations: []models.AggregationType{models.AVG},
			RequiresKey:  true,
			Search: func(p SearchParams) esquery.Aggregation {
				return wrapNested(PathEvaluations, wrapFilter(evaluatorQuery(p.Key), esquery.Avg(FieldEvalPassed)))
			},
			ExtractionPath: func(p SearchParams) string {
				return under(2, "value")
			},
			Source: SourceEvaluations,
			SQL: func(p SQLParams) string {
				passed := col(p.Table, "Passed")
				return sqlAggregate(p.Aggregation, "toFloat64("+passed+")",
					evaluatorSQL(p)+" AND isNotNull("+passed+")")
			},
		},
		{
			Group:        "evaluations",
			Key:          "evaluation_runs",
			Label:        "Evaluation runs",
			Aggregations: []models.AggregationType{models.CARDINALITY},
			RequiresKey:  true,
			Search: func(p SearchParams) esquery.Aggregation {
				return wrapNested(PathEvaluations, wrapFilter(evaluatorQuery(p.Key), distinctAgg(FieldEvaluationID, p)))
			},
			ExtractionPath: func(p SearchParams) string {
				return under(2, distinctPath(p, esquery.BucketCountWithOther))
			},
			Source: SourceEvaluations,
			SQL: func(p SQLParams) string {
				return sqlAggregate(p.Aggregation, col(p.Table, "EvaluationId"), evaluatorSQL(p))
			},
		},
	}
}

// distinctMetric counts distinct values of a root field. fallbackLeaf picks
// how a terms aggregation is read when cardinality is unavailable.
func distinctMetric(group, key, label, field, column, fallbackLeaf string) MetricDefinition {
	return MetricDefinition{
		Group:        group,
		Key:          key,
		Label:        label,
		Aggregations: []models.AggregationType{models.CARDINALITY},
		Search: func(p SearchParams) esquery.Aggregation {
			return distinctAgg(field, p)
		},
		ExtractionPath: func(p SearchParams) string {
			return distinctPath(p, fallbackLeaf)
		},
		Source: SourceTraces,
		SQL: func(p SQLParams) string {
			c := col(p.Table, column)
			return sqlAggregate(p.Aggregation, c, "notEmpty("+c+")")
		},
	}
}

// numericMetric aggregates a root numeric field of the trace.
func numericMetric(group, key, label, field, column string) MetricDefinition {
	return MetricDefinition{
		Group:        group,
		Key:          key,
		Label:        label,
		Aggregations: models.NumericAggregations,
		Search: func(p SearchParams) esquery.Aggregation {
			return numericAgg(p.Aggregation, field)
		},
		ExtractionPath: func(p SearchParams) string {
			return numericPath(p.Aggregation)
		},
		Source: SourceTraces,
		SQL: func(p SQLParams) string {
			return sqlAggregate(p.Aggregation, col(p.Table, column), "")
		},
	}
}

func distinctAgg(field string, p SearchParams) esquery.Aggregation {
	if p.TermsFallback {
		return esquery.TermsAgg(field, termsFallbackSize)
	}
	return esquery.Cardinality(field)
}

func distinctPath(p SearchParams, fallbackLeaf string) string {
	if p.TermsFallback {
		return fallbackLeaf
	}
	return "value"
}

func numericAgg(a models.AggregationType, field string) esquery.Aggregation {
	if pct, ok := a.Percentile(); ok {
		return esquery.Percentiles(field, pct)
	}
	switch a {
	case models.SUM:
		return esquery.Sum(field)
	case models.MIN:
		return esquery.Min(field)
	case models.MAX:
		return esquery.Max(field)
	case models.CARDINALITY:
		return esquery.Cardinality(field)
	default:
		return esquery.Avg(field)
	}
}

func numericPath(a models.AggregationType) string {
	if pct, ok := a.Percentile(); ok {
		return alias.Path("values", esquery.PercentileKey(pct))
	}
	return "value"
}

// sqlAggregate renders an aggregate of expr, restricted to rows matching
// cond when cond is set. Aggregates that have no value over zero rows
// return NULL rather than a default.
func sqlAggregate(a models.AggregationType, expr, cond string) string {
	fn := ""
	params := ""
	if pct, ok := a.Percentile(); ok {
		fn = "quantileOrNull"
		params = fmt.Sprintf("(%g)", pct/100)
	} else {
		switch a {
		case models.CARDINALITY:
			fn = "uniq"
		case models.SUM:
			fn = "sum"
		case models.MIN:
			fn = "minOrNull"
		case models.MAX:
			fn = "maxOrNull"
		default:
			fn = "avgOrNull"
		}
	}
	if cond == "" {
		return fmt.Sprintf("%s%s(%s)", fn, params, expr)
	}
	return fmt.Sprintf("%sIf%s(%s, %s)", fn, params, expr, cond)
}

func col(table, column string) string {
	return table + "." + column
}

func sentimentQuery(key string) esquery.Query {
	if key == "negative" {
		return esquery.Range(FieldSatisfaction, nil, negativeSentiment)
	}
	return esquery.Range(FieldSatisfaction, positiveSentiment, nil)
}

func sentimentSQL(table, key string) string {
	if key == "negative" {
		return fmt.Sprintf("%s < %g", col(table, "SatisfactionScore"), negativeSentiment)
	}
	return fmt.Sprintf("%s >= %g", col(table, "SatisfactionScore"), positiveSentiment)
}

func evaluatorQuery(evaluatorID string) esquery.Query {
	return esquery.Bool(
		esquery.Term(FieldEvaluatorID, evaluatorID),
		esquery.Term(FieldEvalStatus, EvaluationProcessed),
	)
}

func evaluatorSQL(p SQLParams) string {
	return fmt.Sprintf("%s = %s AND %s = '%s'",
		col(p.Table, "EvaluatorId"), p.Binder.String(p.Key), col(p.Table, "Status"), EvaluationProcessed)
}
