package elasticsearch

import (
	"strconv"
	"time"

	"github.com/yourusername/traceboard/pkg/alias"
	"github.com/yourusername/traceboard/pkg/esquery"
	"github.com/yourusername/traceboard/pkg/models"
	"github.com/yourusername/traceboard/pkg/registry"
)

// Names of the fixed aggregations of a timeseries request.
const (
	previousAgg  = "previous"
	currentAgg   = "current"
	histogramAgg = "histogram"
	groupAgg     = "group"
	entityMetric = "metric"
)

// pipelineEntities bounds the entity buckets a pipeline aggregates across.
const pipelineEntities = 10000

// Plan is a compiled timeseries request and how to read its response.
type Plan struct {
	Request *esquery.Request
	Scale   models.TimeScale
	Group   *registry.GroupDefinition
	Series  []SeriesPlan
}

// SeriesPlan locates one series inside a (date, group) bucket.
type SeriesPlan struct {
	Name string
	Path string
}

// Compiler turns timeseries queries into search requests.
type Compiler struct {
	registry      *registry.Registry
	maxBuckets    int
	termsFallback bool
}

// NewCompiler creates a compiler. termsFallback compiles distinct counts as
// terms aggregations for clusters without cardinality support.
func NewCompiler(reg *registry.Registry, maxBuckets int, termsFallback bool) *Compiler {
	return &Compiler{registry: reg, maxBuckets: maxBuckets, termsFallback: termsFallback}
}

// Compile builds the aggregation tree for q: the series, wrapped in the
// group aggregation, wrapped in a date histogram for explicit scales, once
// per period.
func (c *Compiler) Compile(q models.TimeseriesQuery) (*Plan, error) {
	defs, err := c.registry.Series(q.Series)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Scale: q.Scale(c.maxBuckets)}

	series := esquery.Aggs{}
	for i, s := range q.Series {
		p := registry.SearchParams{
			Aggregation:   s.Aggregation,
			Key:           s.Key,
			Subkey:        s.Subkey,
			TermsFallback: c.termsFallback,
		}
		name := alias.SeriesName(i, s)
		base := defs[i].Search(p)
		if s.Pipeline == nil {
			series[name] = base
			plan.Series = append(plan.Series, SeriesPlan{Name: name, Path: alias.Path(name, defs[i].ExtractionPath(p))})
			continue
		}
		entity := "pipeline_" + strconv.Itoa(i)
		series[entity] = esquery.TermsAgg(registry.PipelineSearchField(s.Pipeline.Field), pipelineEntities).
			With(entityMetric, base)
		series[name] = esquery.BucketPipeline(string(s.Pipeline.Aggregation),
			esquery.BucketsPath(alias.Path(entity, entityMetric), defs[i].ExtractionPath(p)))
		plan.Series = append(plan.Series, SeriesPlan{Name: name, Path: alias.Path(name, "value")})
	}

	inner := series
	if q.GroupBy != "" {
		g, err := c.registry.Group(q.GroupBy)
		if err != nil {
			return nil, err
		}
		plan.Group = &g
		inner = esquery.Aggs{groupAgg: g.Wrap(series)}
	}

	filters, err := c.filters(q.Scope, "")
	if err != nil {
		return nil, err
	}
	start, prev := q.StartDate, q.PreviousStart()
	plan.Request = &esquery.Request{
		Query: esquery.Bool(append([]esquery.Query{
			esquery.Term(registry.FieldTenant, q.TenantID),
			esquery.Range(registry.FieldStartedAt, prev.UnixMilli(), q.EndDate.UnixMilli()),
		}, filters...)...),
		Aggs: esquery.Aggs{
			previousAgg: c.period(prev, start, plan.Scale, inner),
			currentAgg:  c.period(start, q.EndDate, plan.Scale, inner),
		},
	}
	return plan, nil
}

func (c *Compiler) period(start, end time.Time, scale models.TimeScale, inner esquery.Aggs) esquery.Aggregation {
	split := esquery.FilterAgg(esquery.Range(registry.FieldStartedAt, start.UnixMilli(), end.UnixMilli()))
	if scale.Full {
		return split.WithAll(inner)
	}
	return split.With(histogramAgg,
		esquery.DateHistogram(registry.FieldStartedAt, scale.Minutes, start, end).WithAll(inner))
}

// filters renders the query filters, skipping the except field.
func (c *Compiler) filters(scope models.Scope, except models.FilterField) ([]esquery.Query, error) {
	var out []esquery.Query
	for _, field := range scope.Filters.Fields() {
		if field == except || len(scope.Filters[field]) == 0 {
			continue
		}
		f, err := c.registry.Filter(field)
		if err != nil {
			return nil, err
		}
		out = append(out, f.Search(scope.Filters[field]))
	}
	return out, nil
}

// scopeQuery restricts documents to the tenant, the current window and the filters.
func (c *Compiler) scopeQuery(scope models.Scope, except models.FilterField, extra ...esquery.Query) (*esquery.BoolQuery, error) {
	filters, err := c.filters(scope, except)
	if err != nil {
		return nil, err
	}
	clauses := append([]esquery.Query{
		esquery.Term(registry.FieldTenant, scope.TenantID),
		esquery.Range(registry.FieldStartedAt, scope.StartDate.UnixMilli(), scope.EndDate.UnixMilli()),
	}, filters...)
	return esquery.Bool(append(clauses, extra...)...), nil
}
