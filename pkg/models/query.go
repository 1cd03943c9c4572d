package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/yourusername/traceboard/pkg/errors"
)

// FilterField names a tenant-scoped filter, e.g. "metadata.user_id".
type FilterField string

// Filters holds the accepted values per filter field. Values within a field
// are OR-ed, fields are AND-ed.
type Filters map[FilterField][]string

// Fields returns the filtered fields in a stable order.
func (f Filters) Fields() []FilterField {
	out := make([]FilterField, 0, len(f))
	for field := range f {
		out = append(out, field)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Scope is the tenant, window and filters every analytics query shares.
type Scope struct {
	TenantID  string
	StartDate time.Time
	EndDate   time.Time
	Filters   Filters
}

// Validate checks the tenant and the date range.
func (s Scope) Validate() error {
	if s.TenantID == "" {
		return apperrors.NewBadRequestError("tenant id required")
	}
	if s.StartDate.IsZero() || s.EndDate.IsZero() {
		return apperrors.NewBadRequestError("start and end date required")
	}
	if !s.EndDate.After(s.StartDate) {
		return apperrors.NewBadRequestError("end date must be after start date")
	}
	return nil
}

// SeriesSpec is one requested output series.
type SeriesSpec struct {
	Metric      string          `json:"metric" validate:"required"`
	Aggregation AggregationType `json:"aggregation" validate:"required"`
	Key         string          `json:"key,omitempty"`
	Subkey      string          `json:"subkey,omitempty"`
	Pipeline    *Pipeline       `json:"pipeline,omitempty"`
}

// MetricGroup returns the "group" half of the metric reference.
func (s SeriesSpec) MetricGroup() string {
	group, _, _ := strings.Cut(s.Metric, ".")
	return group
}

// Validate checks the series shape. Whether the metric exists is up to the registry.
func (s SeriesSpec) Validate() error {
	group, key, ok := strings.Cut(s.Metric, ".")
	if !ok || group == "" || key == "" {
		return apperrors.NewBadRequestError(fmt.Sprintf("metric %q must be of the form group.key", s.Metric))
	}
	if _, err := ParseAggregationType(string(s.Aggregation)); err != nil {
		return apperrors.NewBadRequestError(err.Error())
	}
	if s.Pipeline != nil {
		if err := s.Pipeline.Validate(); err != nil {
			return apperrors.NewBadRequestError(err.Error())
		}
	}
	return nil
}

// TimeseriesQuery asks for one or more series over the current window and
// the mirrored window immediately preceding it.
type TimeseriesQuery struct {
	Scope
	Series    []SeriesSpec
	GroupBy   string
	TimeScale *TimeScale
}

// PreviousStart returns the start of the previous period, which ends where
// the current period starts and has the same length.
func (q TimeseriesQuery) PreviousStart() time.Time {
	return q.StartDate.Add(-q.EndDate.Sub(q.StartDate))
}

// Scale returns the requested time scale (daily when absent), rounded up
// so a period holds at most maxBuckets buckets.
func (q TimeseriesQuery) Scale(maxBuckets int) TimeScale {
	scale := Minutes(DefaultTimeScaleMinutes)
	if q.TimeScale != nil {
		scale = *q.TimeScale
	}
	return scale.Guard(q.StartDate, q.EndDate, maxBuckets)
}

// Validate checks the scope and every series.
func (q TimeseriesQuery) Validate() error {
	if err := q.Scope.Validate(); err != nil {
		return err
	}
	if len(q.Series) == 0 {
		return apperrors.NewBadRequestError("at least one series required")
	}
	for _, s := range q.Series {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FilterOptionsQuery asks for the most used values of a filter field.
type FilterOptionsQuery struct {
	Scope
	Field  FilterField
	Key    string
	Subkey string
	Query  string
}

// Validate checks the scope and the field.
func (q FilterOptionsQuery) Validate() error {
	if err := q.Scope.Validate(); err != nil {
		return err
	}
	if q.Field == "" {
		return apperrors.NewBadRequestError("filter field required")
	}
	return nil
}

// DocumentsQuery asks for the most used retrieval documents.
type DocumentsQuery struct {
	Scope
}

// FeedbackQuery asks for the latest user feedback events.
type FeedbackQuery struct {
	Scope
}
