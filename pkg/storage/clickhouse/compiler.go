package clickhouse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/traceboard/pkg/alias"
	"github.com/yourusername/traceboard/pkg/chsql"
	"github.com/yourusername/traceboard/pkg/models"
	"github.com/yourusername/traceboard/pkg/registry"
)

// Columns of the compiled statement besides the series aliases.
const (
	periodColumn = "period"
	dateColumn   = "date"
	groupColumn  = "group_key"
)

const (
	previousPeriod = "previous"
	currentPeriod  = "current"
)

// Compiled is a generated statement, its bound parameters and the layout
// its rows are read back with.
type Compiled struct {
	SQL    string
	Params map[string]string
	Layout Layout
}

// Layout describes the rows of a compiled timeseries statement.
type Layout struct {
	GroupBy string
	Full    bool
	// Previous and Current list every expected date key, so empty
	// intervals are reported like the search backend reports them.
	Previous []string
	Current  []string
	// Group resolves labels of group values.
	Group *registry.GroupDefinition
}

// Compiler turns timeseries queries into ClickHouse statements.
type Compiler struct {
	registry   *registry.Registry
	maxBuckets int
}

// NewCompiler creates a compiler.
func NewCompiler(reg *registry.Registry, maxBuckets int) *Compiler {
	return &Compiler{registry: reg, maxBuckets: maxBuckets}
}

// part is one sub-select of a period: every simple series reading the same
// source, or a single pipeline series.
type part struct {
	source   registry.Source
	series   []int
	pipeline bool
}

// statement carries what every part of one compilation shares.
type statement struct {
	c      *Compiler
	q      models.TimeseriesQuery
	defs   []registry.MetricDefinition
	group  *registry.GroupDefinition
	scale  models.TimeScale
	b      *chsql.Binder
	tenant string
}

// Compile builds the statement for q. It is a WITH clause holding one
// sub-select per (period, part), one joined select per period, and a
// final UNION ALL tagging rows with their period.
func (c *Compiler) Compile(q models.TimeseriesQuery) (*Compiled, error) {
	defs, err := c.registry.Series(q.Series)
	if err != nil {
		return nil, err
	}
	st := &statement{c: c, q: q, defs: defs, scale: q.Scale(c.maxBuckets), b: chsql.NewBinder()}
	if q.GroupBy != "" {
		g, err := c.registry.Group(q.GroupBy)
		if err != nil {
			return nil, err
		}
		st.group = &g
	}
	for _, field := range q.Filters.Fields() {
		if _, err := c.registry.Filter(field); err != nil {
			return nil, err
		}
	}
	st.tenant = st.b.Named("tenantId", "String", q.TenantID)

	parts := splitParts(q.Series, defs)
	prevStart := st.b.Time("previousStart", q.PreviousStart())
	curStart := st.b.Time("currentStart", q.StartDate)
	curEnd := st.b.Time("currentEnd", q.EndDate)

	var ctes []string
	ctes = append(ctes, st.period(previousPeriod, parts, prevStart, curStart)...)
	ctes = append(ctes, st.period(currentPeriod, parts, curStart, curEnd)...)

	var sql strings.Builder
	sql.WriteString("WITH\n")
	sql.WriteString(strings.Join(ctes, ",\n"))
	fmt.Fprintf(&sql, "\nSELECT '%s' AS %s, * FROM %s_period\nUNION ALL\nSELECT '%s' AS %s, * FROM %s_period\nSETTINGS join_use_nulls = 1",
		previousPeriod, periodColumn, previousPeriod, currentPeriod, periodColumn, currentPeriod)

	layout := Layout{GroupBy: q.GroupBy, Full: st.scale.Full, Group: st.group}
	if !st.scale.Full {
		layout.Previous = dateKeys(st.scale.BucketStarts(q.PreviousStart(), q.StartDate))
		layout.Current = dateKeys(st.scale.BucketStarts(q.StartDate, q.EndDate))
	}
	return &Compiled{SQL: sql.String(), Params: st.b.Params(), Layout: layout}, nil
}

// splitParts groups simple series by source in order of first appearance;
// each pipeline series gets a part of its own.
func splitParts(series []models.SeriesSpec, defs []registry.MetricDefinition) []*part {
	var parts []*part
	bySource := map[registry.Source]*part{}
	for i, s := range series {
		if s.Pipeline != nil {
			parts = append(parts, &part{source: defs[i].Source, series: []int{i}, pipeline: true})
			continue
		}
		p, ok := bySource[defs[i].Source]
		if !ok {
			p = &part{source: defs[i].Source}
			bySource[defs[i].Source] = p
			parts = append(parts, p)
		}
		p.series = append(p.series, i)
	}
	return parts
}

func (st *statement) keyColumns() []string {
	var keys []string
	if !st.scale.Full {
		keys = append(keys, dateColumn)
	}
	if st.group != nil {
		keys = append(keys, groupColumn)
	}
	return keys
}

// period renders the part CTEs of one period and the CTE joining them.
func (st *statement) period(name string, parts []*part, start, end string) []string {
	var ctes []string
	names := make([]string, len(parts))
	for n, p := range parts {
		names[n] = name + "_" + strconv.Itoa(n)
		ctes = append(ctes, fmt.Sprintf("%s AS (\n%s\n)", names[n], st.part(p, start, end)))
	}

	keys := st.keyColumns()
	if len(keys) == 0 {
		ctes = append(ctes, fmt.Sprintf("%s_period AS (SELECT * FROM %s)", name, strings.Join(names, " CROSS JOIN ")))
		return ctes
	}

	unions := make([]string, len(names))
	for n, cte := range names {
		unions[n] = fmt.Sprintf("SELECT %s FROM %s", strings.Join(keys, ", "), cte)
	}
	ctes = append(ctes, fmt.Sprintf("%s_keys AS (SELECT DISTINCT %s FROM (%s))",
		name, strings.Join(keys, ", "), strings.Join(unions, " UNION ALL ")))

	var cols []string
	for _, k := range keys {
		cols = append(cols, fmt.Sprintf("k.%s AS %s", k, k))
	}
	var joins []string
	for n, p := range parts {
		ref := "p" + strconv.Itoa(n)
		for _, i := range p.series {
			col := chsql.Ident(alias.Column(i, st.q.Series[i]))
			cols = append(cols, fmt.Sprintf("%s.%s AS %s", ref, col, col))
		}
		on := make([]string, len(keys))
		for j, k := range keys {
			on[j] = fmt.Sprintf("%s.%s = k.%s", ref, k, k)
		}
		joins = append(joins, fmt.Sprintf("LEFT JOIN %s AS %s ON %s", names[n], ref, strings.Join(on, " AND ")))
	}
	ctes = append(ctes, fmt.Sprintf("%s_period AS (SELECT %s FROM %s_keys AS k %s)",
		name, strings.Join(cols, ", "), name, strings.Join(joins, " ")))
	return ctes
}

// part renders the sub-select of one part over [start, end).
func (st *statement) part(p *part, start, end string) string {
	table := "t"
	keySelect, from, where := st.source(p.source, table, start, end)

	if !p.pipeline {
		cols := append([]string{}, keySelect...)
		for _, i := range p.series {
			s := st.q.Series[i]
			expr := st.defs[i].SQL(st.sqlParams(table, s))
			cols = append(cols, fmt.Sprintf("%s AS %s", expr, chsql.Ident(alias.Column(i, s))))
		}
		return st.selectSQL(cols, from, where, st.keyColumns())
	}

	i := p.series[0]
	s := st.q.Series[i]
	entity := fmt.Sprintf("%s.%s", table, registry.PipelineColumn(s.Pipeline.Field))
	inner := append([]string{}, keySelect...)
	inner = append(inner,
		entity+" AS entity",
		st.defs[i].SQL(st.sqlParams(table, s))+" AS per_entity")
	innerWhere := append(append([]string{}, where...), entity+" != ''")
	innerSQL := st.selectSQL(inner, from, innerWhere, append(st.keyColumns(), "entity"))

	outer := append([]string{}, st.keyColumns()...)
	outer = append(outer, fmt.Sprintf("%s(per_entity) AS %s",
		pipelineAggregate(s.Pipeline.Aggregation), chsql.Ident(alias.Column(i, s))))
	var groupBy string
	if keys := st.keyColumns(); len(keys) > 0 {
		groupBy = "\nGROUP BY " + strings.Join(keys, ", ")
	}
	return fmt.Sprintf("SELECT %s\nFROM (\n%s\n)%s", strings.Join(outer, ", "), innerSQL, groupBy)
}

// source returns the key projections, the FROM clause and the WHERE
// conditions of a sub-select over src aliased as table.
func (st *statement) source(src registry.Source, table, start, end string) ([]string, string, []string) {
	var keys []string
	from := fmt.Sprintf("%s AS %s", src.Table(), table)
	if !st.scale.Full {
		keys = append(keys, fmt.Sprintf("toStartOfInterval(%s.%s, INTERVAL %d MINUTE, 'UTC') AS %s",
			table, registry.ColumnOccurredAt, st.scale.Minutes, dateColumn))
	}
	if st.group != nil {
		if expr, ok := st.group.SQL[src]; ok {
			keys = append(keys, fmt.Sprintf("%s AS %s", expr(table), groupColumn))
		} else {
			home := st.group.HomeSource()
			from += fmt.Sprintf(" INNER JOIN (SELECT DISTINCT g.%s AS %s, %s AS %s FROM %s AS g WHERE g.%s = %s) AS grp ON grp.%s = %s.%s",
				registry.ColumnTraceID, registry.ColumnTraceID, st.group.SQL[home]("g"), groupColumn,
				home.Table(), registry.ColumnTenant, st.tenant,
				registry.ColumnTraceID, table, registry.ColumnTraceID)
			keys = append(keys, fmt.Sprintf("grp.%s AS %s", groupColumn, groupColumn))
		}
	}
	where := []string{
		fmt.Sprintf("%s.%s = %s", table, registry.ColumnTenant, st.tenant),
		fmt.Sprintf("%s.%s >= %s", table, registry.ColumnOccurredAt, start),
		fmt.Sprintf("%s.%s < %s", table, registry.ColumnOccurredAt, end),
	}
	if f := filterClause(st.c.registry, st.q.Filters, "", src, table, st.tenant, st.b); f != "" {
		where = append(where, f)
	}
	return keys, from, where
}

func (st *statement) selectSQL(cols []string, from string, where, groupBy []string) string {
	var sql strings.Builder
	fmt.Fprintf(&sql, "SELECT %s\nFROM %s\nWHERE %s", strings.Join(cols, ", "), from, strings.Join(where, " AND "))
	if len(groupBy) > 0 {
		fmt.Fprintf(&sql, "\nGROUP BY %s", strings.Join(groupBy, ", "))
	}
	if st.group != nil {
		fmt.Fprintf(&sql, "\nHAVING %s != ''", groupColumn)
	}
	return sql.String()
}

func (st *statement) sqlParams(table string, s models.SeriesSpec) registry.SQLParams {
	return registry.SQLParams{
		Aggregation: s.Aggregation,
		Key:         s.Key,
		Subkey:      s.Subkey,
		Table:       table,
		Binder:      st.b,
	}
}

// filterClause renders the filters, skipping the except field, as one
// condition on table. Filters are defined on traces; other sources are
// restricted to the traces matching them.
func filterClause(reg *registry.Registry, filters models.Filters, except models.FilterField, src registry.Source, table, tenant string, b *chsql.Binder) string {
	target := table
	if src != registry.SourceTraces {
		target = "ts"
	}
	var preds []string
	for _, field := range filters.Fields() {
		values := filters[field]
		if field == except || len(values) == 0 {
			continue
		}
		f, err := reg.Filter(field)
		if err != nil {
			continue
		}
		preds = append(preds, f.SQL(registry.FilterSQLParams{Values: values, Table: target, Tenant: tenant, Binder: b}))
	}
	if len(preds) == 0 {
		return ""
	}
	if src == registry.SourceTraces {
		return strings.Join(preds, " AND ")
	}
	return fmt.Sprintf("%s.%s IN (SELECT ts.%s FROM %s AS ts WHERE ts.%s = %s AND %s)",
		table, registry.ColumnTraceID, registry.ColumnTraceID, registry.SourceTraces.Table(),
		registry.ColumnTenant, tenant, strings.Join(preds, " AND "))
}

func pipelineAggregate(a models.AggregationType) string {
	switch a {
	case models.SUM:
		return "sumOrNull"
	case models.MIN:
		return "minOrNull"
	case models.MAX:
		return "maxOrNull"
	default:
		return "avgOrNull"
	}
}

func dateKeys(starts []time.Time) []string {
	out := make([]string, len(starts))
	for i, t := range starts {
		out[i] = models.FormatBucketDate(t)
	}
	return out
}
