// Package registry is the catalogue of metrics, group-by dimensions and
// filters the analytics compilers understand. Each entry carries matched
// search and SQL emission functions; adding a metric only means adding an
// entry here.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/yourusername/traceboard/pkg/chsql"
	apperrors "github.com/yourusername/traceboard/pkg/errors"
	"github.com/yourusername/traceboard/pkg/esquery"
	"github.com/yourusername/traceboard/pkg/models"
)

var (
	ErrUnknownMetric = errors.New("unknown metric")
	ErrUnknownGroup  = errors.New("unknown group")
	ErrUnknownFilter = errors.New("unknown filter")
)

// SearchParams are the inputs of a metric's search emission and extraction path.
type SearchParams struct {
	Aggregation models.AggregationType
	Key         string
	Subkey      string
	// TermsFallback asks for distinct counts as terms aggregations, for
	// clusters without a cardinality aggregation.
	TermsFallback bool
}

// SQLParams are the inputs of a metric's SQL emission.
type SQLParams struct {
	Aggregation models.AggregationType
	Key         string
	Subkey      string
	// Table is the alias of the metric's source table in the FROM clause.
	Table  string
	Binder *chsql.Binder
}

// MetricDefinition describes one metric. Search and ExtractionPath must
// agree: the path is read relative to the node Search returns.
type MetricDefinition struct {
	Group          string
	Key            string
	Label          string
	Aggregations   []models.AggregationType
	RequiresKey    bool
	RequiresSubkey bool
	// Keys restricts the accepted keys when set.
	Keys []string

	Search         func(p SearchParams) esquery.Aggregation
	ExtractionPath func(p SearchParams) string

	Source Source
	SQL    func(p SQLParams) string
}

// Ref returns the "group.key" reference of the metric.
func (m MetricDefinition) Ref() string {
	return m.Group + "." + m.Key
}

// Allows reports whether the aggregation may be used with the metric.
func (m MetricDefinition) Allows(a models.AggregationType) bool {
	return slices.Contains(m.Aggregations, a)
}

// Check validates a series against the metric's constraints.
func (m MetricDefinition) Check(s models.SeriesSpec) error {
	if !m.Allows(s.Aggregation) {
		return apperrors.NewBadRequestError(fmt.Sprintf("metric %s does not support aggregation %s", m.Ref(), s.Aggregation))
	}
	if m.RequiresKey && s.Key == "" {
		return apperrors.NewBadRequestError(fmt.Sprintf("metric %s requires a key", m.Ref()))
	}
	if m.RequiresSubkey && s.Subkey == "" {
		return apperrors.NewBadRequestError(fmt.Sprintf("metric %s requires a subkey", m.Ref()))
	}
	if len(m.Keys) > 0 && !slices.Contains(m.Keys, s.Key) {
		return apperrors.NewBadRequestError(fmt.Sprintf("metric %s does not accept key %q", m.Ref(), s.Key))
	}
	return nil
}

// GroupDefinition describes a group-by dimension.
type GroupDefinition struct {
	Group string
	Key   string
	Label string

	// Wrap places the per-series aggregations inside the grouping aggregation.
	Wrap func(series esquery.Aggs) esquery.Aggregation
	// BucketsPath leads from the grouping aggregation to its buckets.
	BucketsPath string
	// InnerPath leads from a bucket to the per-series aggregations.
	InnerPath string

	// Labels renames group values; LabelResolver names an external lookup
	// resolved once per query.
	Labels        map[string]string
	LabelResolver string

	// SQL holds the group key expression per source table. A source missing
	// here is grouped through the first entry, joined by trace id.
	SQL map[Source]func(table string) string
}

// Ref returns the "group.key" reference of the group.
func (g GroupDefinition) Ref() string {
	return g.Group + "." + g.Key
}

// HomeSource returns the source the group key is read from when a series'
// own source has no expression for it.
func (g GroupDefinition) HomeSource() Source {
	for _, s := range sourceOrder {
		if _, ok := g.SQL[s]; ok {
			return s
		}
	}
	return SourceTraces
}

// ValueLabel returns the display label of a group value.
func (g GroupDefinition) ValueLabel(value string, resolved map[string]string) string {
	if l, ok := resolved[value]; ok {
		return l
	}
	if l, ok := g.Labels[value]; ok {
		return l
	}
	return value
}

// OptionParams are the inputs of a filter's option lookup.
type OptionParams struct {
	Key    string
	Subkey string
	Size   int
	// Match keeps only values containing it, case-sensitively.
	Match  string
	Binder *chsql.Binder
}

// FilterSQLParams are the inputs of a filter's SQL predicate.
type FilterSQLParams struct {
	Values []string
	// Table is the alias of the trace table the predicate applies to.
	Table string
	// Tenant is the bound tenant placeholder, for sub-selects.
	Tenant string
	Binder *chsql.Binder
}

// FilterDefinition describes a filter field and how its options are listed.
type FilterDefinition struct {
	Field models.FilterField
	Label string

	Search func(values []string) esquery.Query
	SQL    func(p FilterSQLParams) string

	// OptionsSearch builds the option aggregation. OptionsBucketsPath leads
	// to its buckets and OptionsCountPath, inside a bucket, to the count;
	// an empty count path reads doc_count.
	OptionsSearch      func(p OptionParams) esquery.Aggregation
	OptionsBucketsPath string
	OptionsCountPath   string

	OptionsSource Source
	OptionsSQL    func(table string, p OptionParams) string

	LabelResolver string
}

// Registry is an immutable catalogue of metrics, groups and filters.
type Registry struct {
	metrics map[string]MetricDefinition
	groups  map[string]GroupDefinition
	filters map[models.FilterField]FilterDefinition
}

// New builds a registry from the given definitions.
func New(metrics []MetricDefinition, groups []GroupDefinition, filters []FilterDefinition) *Registry {
	r := &Registry{
		metrics: make(map[string]MetricDefinition, len(metrics)),
		groups:  make(map[string]GroupDefinition, len(groups)),
		filters: make(map[models.FilterField]FilterDefinition, len(filters)),
	}
	for _, m := range metrics {
		r.metrics[m.Ref()] = m
	}
	for _, g := range groups {
		r.groups[g.Ref()] = g
	}
	for _, f := range filters {
		r.filters[f.Field] = f
	}
	return r
}

// Default returns the built-in catalogue.
func Default() *Registry {
	return New(defaultMetrics(), defaultGroups(), defaultFilters())
}

// Metric looks up a metric by "group.key".
func (r *Registry) Metric(ref string) (MetricDefinition, error) {
	m, ok := r.metrics[ref]
	if !ok {
		return MetricDefinition{}, fmt.Errorf("%w: %s", ErrUnknownMetric, ref)
	}
	return m, nil
}

// Group looks up a group by "group.key".
func (r *Registry) Group(ref string) (GroupDefinition, error) {
	g, ok := r.groups[ref]
	if !ok {
		return GroupDefinition{}, fmt.Errorf("%w: %s", ErrUnknownGroup, ref)
	}
	return g, nil
}

// Filter looks up a filter by field.
func (r *Registry) Filter(field models.FilterField) (FilterDefinition, error) {
	f, ok := r.filters[field]
	if !ok {
		return FilterDefinition{}, fmt.Errorf("%w: %s", ErrUnknownFilter, field)
	}
	return f, nil
}

// Metrics returns every metric ordered by reference.
func (r *Registry) Metrics() []MetricDefinition {
	out := make([]MetricDefinition, 0, len(r.metrics))
	for _, m := range r.metrics {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref() < out[j].Ref() })
	return out
}

// Groups returns every group ordered by reference.
func (r *Registry) Groups() []GroupDefinition {
	out := make([]GroupDefinition, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref() < out[j].Ref() })
	return out
}

// Series resolves and checks every series of a query, in order. Unknown
// metrics are reported as internal errors: requests are validated against
// this same catalogue before they reach a compiler.
func (r *Registry) Series(series []models.SeriesSpec) ([]MetricDefinition, error) {
	defs := make([]MetricDefinition, len(series))
	for i, s := range series {
		m, err := r.Metric(s.Metric)
		if err != nil {
			return nil, apperrors.NewInternalError("series lookup", err)
		}
		if err := m.Check(s); err != nil {
			return nil, err
		}
		defs[i] = m
	}
	return defs, nil
}

// ValidateQuery checks a timeseries query against the catalogue, reporting
// unknown references as bad requests. It is meant for request boundaries.
func (r *Registry) ValidateQuery(q models.TimeseriesQuery) error {
	if err := q.Validate(); err != nil {
		return err
	}
	for _, s := range q.Series {
		m, err := r.Metric(s.Metric)
		if err != nil {
			return apperrors.NewBadRequestError(err.Error())
		}
		if err := m.Check(s); err != nil {
			return err
		}
	}
	if q.GroupBy != "" {
		if _, err := r.Group(q.GroupBy); err != nil {
			return apperrors.NewBadRequestError(err.Error())
		}
	}
	return r.ValidateFilters(q.Filters)
}

// ValidateFilters checks every filter field is known.
func (r *Registry) ValidateFilters(filters models.Filters) error {
	for field := range filters {
		if _, err := r.Filter(field); err != nil {
			return apperrors.NewBadRequestError(err.Error())
		}
	}
	return nil
}
