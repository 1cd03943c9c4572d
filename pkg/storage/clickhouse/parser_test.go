package clickhouse

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/traceboard/pkg/alias"
	"github.com/yourusername/traceboard/pkg/models"
	"github.com/yourusername/traceboard/pkg/normalize"
)

func TestParseReadsColumnAliases(t *testing.T) {
	q := tracesQuery()
	compiled := compile(t, q)
	column := alias.Column(0, q.Series[0])
	require.Contains(t, compiled.SQL, column)

	rows := []map[string]any{
		{periodColumn: "previous", column: uint64(2)},
		{periodColumn: "current", column: uint64(5)},
	}
	result, err := Parse(rows, q.Series, compiled.Layout, nil)
	require.NoError(t, err)

	name := alias.SeriesName(0, q.Series[0])
	require.Equal(t, map[string]float64{name: 2}, result.PreviousPeriod[0].Values)
	require.Equal(t, map[string]float64{name: 5}, result.CurrentPeriod[0].Values)
}

func TestParseMissingPipelineColumns(t *testing.T) {
	q := tracesQuery()
	q.Series = userThreadsSeries()
	compiled := compile(t, q)

	columns := make([]string, len(q.Series))
	names := make([]string, len(q.Series))
	for i, s := range q.Series {
		columns[i] = alias.Column(i, s)
		names[i] = alias.SeriesName(i, s)
	}
	rows := []map[string]any{
		{periodColumn: "previous", columns[0]: uint64(4)},
		{periodColumn: "current", columns[0]: uint64(6), columns[1]: 1.5, columns[2]: 3.0, columns[3]: 7.0},
	}
	result, err := Parse(rows, q.Series, compiled.Layout, nil)
	require.NoError(t, err)
	current := map[string]float64{names[0]: 6, names[1]: 1.5, names[2]: 3, names[3]: 7}
	require.Equal(t, current, result.CurrentPeriod[0].Values)

	normalize.Apply(result)
	require.Equal(t, map[string]float64{names[0]: 4, names[1]: 0, names[2]: 0, names[3]: 0}, result.PreviousPeriod[0].Values)
	require.Equal(t, current, result.CurrentPeriod[0].Values)
}

func TestParseNullValues(t *testing.T) {
	q := tracesQuery()
	q.Series = append(q.Series,
		models.SeriesSpec{Metric: "performance.total_cost", Aggregation: models.AVG},
		models.SeriesSpec{Metric: "performance.total_cost", Aggregation: models.MAX})
	compiled := compile(t, q)

	var missing *float64
	cost := 0.25
	rows := []map[string]any{{
		periodColumn:                 "current",
		alias.Column(0, q.Series[0]): uint64(3),
		alias.Column(1, q.Series[1]): missing,
		alias.Column(2, q.Series[2]): math.NaN(),
	}, {
		periodColumn:                 "previous",
		alias.Column(1, q.Series[1]): &cost,
	}}
	result, err := Parse(rows, q.Series, compiled.Layout, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]float64{alias.SeriesName(0, q.Series[0]): 3}, result.CurrentPeriod[0].Values)
	require.Equal(t, map[string]float64{alias.SeriesName(1, q.Series[1]): 0.25}, result.PreviousPeriod[0].Values)
}

func TestParseHistogramKeepsEmptyIntervals(t *testing.T) {
	q := tracesQuery()
	q.TimeScale = nil
	compiled := compile(t, q)
	column := alias.Column(0, q.Series[0])

	rows := []map[string]any{
		{periodColumn: "current", dateColumn: weekStart.AddDate(0, 0, 2), column: uint64(9)},
		{periodColumn: "current", dateColumn: weekStart, column: uint64(1)},
	}
	result, err := Parse(rows, q.Series, compiled.Layout, nil)
	require.NoError(t, err)
	require.Len(t, result.PreviousPeriod, 7)
	require.Len(t, result.CurrentPeriod, 7)

	name := alias.SeriesName(0, q.Series[0])
	require.Equal(t, "2024-01-08T00:00:00Z", result.CurrentPeriod[0].Date)
	require.Equal(t, map[string]float64{name: 1}, result.CurrentPeriod[0].Values)
	require.Empty(t, result.CurrentPeriod[1].Values)
	require.Equal(t, map[string]float64{name: 9}, result.CurrentPeriod[2].Values)
}

func TestParseGroups(t *testing.T) {
	q := tracesQuery()
	q.GroupBy = "topics.topics"
	compiled := compile(t, q)
	column := alias.Column(0, q.Series[0])
	name := alias.SeriesName(0, q.Series[0])

	topic := "t3"
	rows := []map[string]any{
		{periodColumn: "current", groupColumn: "t1", column: uint64(4)},
		{periodColumn: "current", groupColumn: &topic, column: nil},
		{periodColumn: "current", groupColumn: "", column: uint64(8)},
	}
	result, err := Parse(rows, q.Series, compiled.Layout, map[string]string{"t1": "Billing"})
	require.NoError(t, err)
	require.Equal(t, map[string]map[string]float64{
		"Billing": {name: 4},
		"t3":      {},
	}, result.CurrentPeriod[0].Groups)
	require.Empty(t, result.PreviousPeriod[0].Groups)
}

func TestParseErrors(t *testing.T) {
	q := tracesQuery()
	_, err := Parse([]map[string]any{{periodColumn: "next"}}, q.Series, compile(t, q).Layout, nil)
	require.ErrorContains(t, err, "unknown period")

	q.TimeScale = nil
	_, err = Parse([]map[string]any{{periodColumn: "current", dateColumn: "2024-01-08"}}, q.Series, compile(t, q).Layout, nil)
	require.ErrorContains(t, err, "missing date")

	_, err = Parse([]map[string]any{{periodColumn: "current", dateColumn: time.Time{}}}, q.Series, compile(t, q).Layout, nil)
	require.NoError(t, err)
}
