package clickhouse

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yourusername/traceboard/pkg/errors"
	"github.com/yourusername/traceboard/pkg/models"
	"github.com/yourusername/traceboard/pkg/registry"
)

var (
	weekStart = time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	weekEnd   = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
)

func scope() models.Scope {
	return models.Scope{TenantID: "tenant-1", StartDate: weekStart, EndDate: weekEnd}
}

func full() *models.TimeScale {
	s := models.FullPeriod()
	return &s
}

func tracesQuery() models.TimeseriesQuery {
	return models.TimeseriesQuery{
		Scope:     scope(),
		Series:    []models.SeriesSpec{{Metric: "metadata.trace_id", Aggregation: models.CARDINALITY}},
		TimeScale: full(),
	}
}

// userThreadsSeries is a plain distinct count followed by three per-user
// and per-thread rollups.
func userThreadsSeries() []models.SeriesSpec {
	perUser := &models.Pipeline{Field: models.PipelineUserID, Aggregation: models.AVG}
	return []models.SeriesSpec{
		{Metric: "metadata.user_id", Aggregation: models.CARDINALITY},
		{Metric: "metadata.thread_id", Aggregation: models.CARDINALITY, Pipeline: perUser},
		{Metric: "metadata.trace_id", Aggregation: models.CARDINALITY, Pipeline: perUser},
		{Metric: "metadata.trace_id", Aggregation: models.CARDINALITY,
			Pipeline: &models.Pipeline{Field: models.PipelineThreadID, Aggregation: models.MAX}},
	}
}

func compile(t *testing.T, q models.TimeseriesQuery) *Compiled {
	t.Helper()
	compiled, err := NewCompiler(registry.Default(), 1000).Compile(q)
	require.NoError(t, err)
	return compiled
}

func TestCompileSingleSeries(t *testing.T) {
	compiled := compile(t, tracesQuery())

	require.Contains(t, compiled.SQL, "uniqIf(t.TraceId, notEmpty(t.TraceId)) AS `0__metadata_trace_id__cardinality`")
	require.Contains(t, compiled.SQL, "FROM trace_summaries AS t")
	require.Contains(t, compiled.SQL, "t.TenantId = {tenantId:String}")
	require.Contains(t, compiled.SQL, "t.OccurredAt >= fromUnixTimestamp64Milli({previousStart:Int64})")
	require.Contains(t, compiled.SQL, "previous_period AS (SELECT * FROM previous_0)")
	require.Contains(t, compiled.SQL, "SELECT 'current' AS period, * FROM current_period")
	require.True(t, strings.HasSuffix(compiled.SQL, "SETTINGS join_use_nulls = 1"))
	require.NotContains(t, compiled.SQL, "tenant-1")

	require.Equal(t, map[string]string{
		"tenantId":      "tenant-1",
		"previousStart": strconv.FormatInt(weekStart.AddDate(0, 0, -7).UnixMilli(), 10),
		"currentStart":  strconv.FormatInt(weekStart.UnixMilli(), 10),
		"currentEnd":    strconv.FormatInt(weekEnd.UnixMilli(), 10),
	}, compiled.Params)
	require.True(t, compiled.Layout.Full)
	require.Empty(t, compiled.Layout.Current)
}

func TestCompilePipelines(t *testing.T) {
	q := tracesQuery()
	q.Series = userThreadsSeries()
	compiled := compile(t, q)

	require.True(t, strings.HasPrefix(compiled.SQL, "WITH\n"))
	require.Contains(t, compiled.SQL, "UNION ALL")
	for _, column := range []string{
		"0__metadata_user_id__cardinality",
		"1__metadata_thread_id__cardinality",
		"2__metadata_trace_id__cardinality",
		"3__metadata_trace_id__cardinality",
	} {
		require.Contains(t, compiled.SQL, "`"+column+"`")
	}

	require.Contains(t, compiled.SQL, "t.UserId AS entity")
	require.Contains(t, compiled.SQL, "t.UserId != ''")
	require.Contains(t, compiled.SQL, "avgOrNull(per_entity) AS `1__metadata_thread_id__cardinality`")
	require.Contains(t, compiled.SQL, "maxOrNull(per_entity) AS `3__metadata_trace_id__cardinality`")
	require.Contains(t, compiled.SQL, "t.ThreadId AS entity")
	require.Contains(t, compiled.SQL, "previous_period AS (SELECT * FROM previous_0 CROSS JOIN previous_1 CROSS JOIN previous_2 CROSS JOIN previous_3)")
}

func TestCompileHistogram(t *testing.T) {
	q := tracesQuery()
	q.TimeScale = nil
	compiled := compile(t, q)

	require.Contains(t, compiled.SQL, "toStartOfInterval(t.OccurredAt, INTERVAL 1440 MINUTE, 'UTC') AS date")
	require.Contains(t, compiled.SQL, "GROUP BY date")
	require.Contains(t, compiled.SQL, "current_keys AS (SELECT DISTINCT date FROM (SELECT date FROM current_0))")
	require.Contains(t, compiled.SQL, "LEFT JOIN current_0 AS p0 ON p0.date = k.date")

	require.False(t, compiled.Layout.Full)
	require.Len(t, compiled.Layout.Current, 7)
	require.Equal(t, "2024-01-08T00:00:00Z", compiled.Layout.Current[0])
	require.Equal(t, "2024-01-14T00:00:00Z", compiled.Layout.Current[6])
	require.Equal(t, "2024-01-01T00:00:00Z", compiled.Layout.Previous[0])
}

func TestCompileBindsFilters(t *testing.T) {
	q := tracesQuery()
	q.Filters = models.Filters{"metadata.user_id": {"u'1"}}
	q.Series = append(q.Series, models.SeriesSpec{Metric: "events.event_type", Aggregation: models.CARDINALITY, Key: "thumbs_up_down"})
	compiled := compile(t, q)

	require.NotContains(t, compiled.SQL, "u'1")
	require.NotContains(t, compiled.SQL, "'thumbs_up_down'")
	require.Contains(t, compiled.SQL, "t.UserId IN {p0:Array(String)}")
	require.Equal(t, `['u\'1']`, compiled.Params["p0"])
	require.Contains(t, compiled.SQL, "FROM trace_events AS t")
	require.Contains(t, compiled.SQL, "t.TraceId IN (SELECT ts.TraceId FROM trace_summaries AS ts WHERE ts.TenantId = {tenantId:String} AND ts.UserId IN {p")

	var keys int
	for _, v := range compiled.Params {
		if v == "thumbs_up_down" {
			keys++
		}
	}
	require.Equal(t, 2, keys)
}

func TestCompileGroupedAcrossSources(t *testing.T) {
	q := tracesQuery()
	q.GroupBy = "topics.topics"
	q.Series = []models.SeriesSpec{
		{Metric: "metadata.trace_id", Aggregation: models.CARDINALITY},
		{Metric: "events.event_type", Aggregation: models.CARDINALITY, Key: "thumbs_up_down"},
	}
	compiled := compile(t, q)

	require.Contains(t, compiled.SQL, "t.TopicId AS group_key")
	require.Contains(t, compiled.SQL,
		"INNER JOIN (SELECT DISTINCT g.TraceId AS TraceId, g.TopicId AS group_key FROM trace_summaries AS g WHERE g.TenantId = {tenantId:String}) AS grp ON grp.TraceId = t.TraceId")
	require.Contains(t, compiled.SQL, "HAVING group_key != ''")
	require.Contains(t, compiled.SQL, "LEFT JOIN previous_1 AS p1 ON p1.group_key = k.group_key")

	require.NotNil(t, compiled.Layout.Group)
	require.Equal(t, "topics.topics", compiled.Layout.GroupBy)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.TimeseriesQuery)
	}{
		{"missing key", func(q *models.TimeseriesQuery) {
			q.Series = []models.SeriesSpec{{Metric: "events.event_type", Aggregation: models.CARDINALITY}}
		}},
		{"unsupported aggregation", func(q *models.TimeseriesQuery) {
			q.Series = []models.SeriesSpec{{Metric: "metadata.trace_id", Aggregation: models.AVG}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tracesQuery()
			tt.mutate(&q)
			_, err := NewCompiler(registry.Default(), 1000).Compile(q)
			require.True(t, apperrors.IsBadRequest(err))
		})
	}

	q := tracesQuery()
	q.GroupBy = "nope.nope"
	_, err := NewCompiler(registry.Default(), 1000).Compile(q)
	require.Error(t, err)
}
