package models

import "fmt"

// AggregationType defines how a metric's values are combined inside a bucket
type AggregationType string

const (
	CARDINALITY AggregationType = "cardinality"
	AVG         AggregationType = "avg"
	SUM         AggregationType = "sum"
	MIN         AggregationType = "min"
	MAX         AggregationType = "max"
	MEDIAN      AggregationType = "median"
	P90         AggregationType = "p90"
	P95         AggregationType = "p95"
	P99         AggregationType = "p99"
)

// NumericAggregations are the aggregations allowed on plain numeric fields.
var NumericAggregations = []AggregationType{AVG, SUM, MIN, MAX, MEDIAN, P90, P95, P99}

// String returns the string representation of AggregationType
func (a AggregationType) String() string {
	return string(a)
}

// Percentile returns the percentile an aggregation stands for, if any.
func (a AggregationType) Percentile() (float64, bool) {
	switch a {
	case MEDIAN:
		return 50, true
	case P90:
		return 90, true
	case P95:
		return 95, true
	case P99:
		return 99, true
	default:
		return 0, false
	}
}

// ParseAggregationType parses a string into AggregationType
func ParseAggregationType(s string) (AggregationType, error) {
	switch a := AggregationType(s); a {
	case CARDINALITY, AVG, SUM, MIN, MAX, MEDIAN, P90, P95, P99:
		return a, nil
	default:
		return "", fmt.Errorf("unknown aggregation %q", s)
	}
}

// PipelineField is the entity a pipeline rolls a metric up by.
type PipelineField string

const (
	PipelineUserID     PipelineField = "user_id"
	PipelineThreadID   PipelineField = "thread_id"
	PipelineCustomerID PipelineField = "customer_id"
)

// Pipeline means "aggregate the metric per entity, then aggregate across entities".
type Pipeline struct {
	Field       PipelineField   `json:"field"`
	Aggregation AggregationType `json:"aggregation"`
}

// Validate checks the pipeline field and the across-entity aggregation.
func (p Pipeline) Validate() error {
	switch p.Field {
	case PipelineUserID, PipelineThreadID, PipelineCustomerID:
	default:
		return fmt.Errorf("unknown pipeline field %q", p.Field)
	}
	switch p.Aggregation {
	case SUM, AVG, MIN, MAX:
	default:
		return fmt.Errorf("pipeline aggregation must be one of sum, avg, min, max, got %q", p.Aggregation)
	}
	return nil
}
