package alias

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/traceboard/pkg/models"
)

func TestColumn(t *testing.T) {
	tests := []struct {
		name  string
		index int
		spec  models.SeriesSpec
		want  string
	}{
		{
			name: "plain metric",
			spec: models.SeriesSpec{Metric: "metadata.trace_id", Aggregation: models.CARDINALITY},
			want: "0__metadata_trace_id__cardinality",
		},
		{
			name:  "key and subkey",
			index: 3,
			spec:  models.SeriesSpec{Metric: "events.event_score", Aggregation: models.AVG, Key: "thumbs", Subkey: "vote"},
			want:  "3__events_event_score_thumbs_vote__avg",
		},
		{
			name:  "unsafe key characters",
			index: 1,
			spec:  models.SeriesSpec{Metric: "events.event_type", Aggregation: models.CARDINALITY, Key: "user-signed up"},
			want:  "1__events_event_type_user_signed_up__cardinality",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Column(tt.index, tt.spec))
		})
	}
}

func TestColumnRoundTrip(t *testing.T) {
	specs := []models.SeriesSpec{
		{Metric: "metadata.trace_id", Aggregation: models.CARDINALITY},
		{Metric: "metadata.thread_id", Aggregation: models.CARDINALITY, Pipeline: &models.Pipeline{Field: models.PipelineUserID, Aggregation: models.AVG}},
		{Metric: "evaluations.evaluation_score", Aggregation: models.P95, Key: "faithfulness"},
		{Metric: "events.event_score", Aggregation: models.MAX, Key: "k", Subkey: "s"},
	}
	row := map[string]float64{}
	for i, s := range specs {
		row[Column(i, s)] = float64(i + 1)
	}
	require.Len(t, row, len(specs))

	for i, s := range specs {
		col := Column(i, s)
		require.Equal(t, float64(i+1), row[col])

		parts, err := ParseColumn(col)
		require.NoError(t, err)
		require.Equal(t, i, parts.Index)
		require.Equal(t, s.Aggregation, parts.Aggregation)
		require.Equal(t, MetricPath(s.Metric, s.Key, s.Subkey), parts.MetricPath)
	}
}

func TestSeriesNameRoundTrip(t *testing.T) {
	plain := models.SeriesSpec{Metric: "metadata.trace_id", Aggregation: models.CARDINALITY}
	require.Equal(t, "0/metadata.trace_id/cardinality", SeriesName(0, plain))

	piped := models.SeriesSpec{
		Metric:      "metadata.thread_id",
		Aggregation: models.CARDINALITY,
		Pipeline:    &models.Pipeline{Field: models.PipelineUserID, Aggregation: models.AVG},
	}
	name := SeriesName(2, piped)
	require.Equal(t, "2/metadata.thread_id/cardinality/user_id/avg", name)

	parts, err := ParseSeriesName(name)
	require.NoError(t, err)
	require.Equal(t, 2, parts.Index)
	require.Equal(t, "metadata.thread_id", parts.Metric)
	require.Equal(t, models.CARDINALITY, parts.Aggregation)
	require.Equal(t, piped.Pipeline, parts.Pipeline)
}

func TestParseErrors(t *testing.T) {
	for _, bad := range []string{"", "x__y__avg", "0__path", "0__path__bogus"} {
		_, err := ParseColumn(bad)
		require.Error(t, err, bad)
	}
	for _, bad := range []string{"", "0/metric", "a/metric/avg", "0/m/avg/user_id"} {
		_, err := ParseSeriesName(bad)
		require.Error(t, err, bad)
	}
}

func TestPath(t *testing.T) {
	require.Equal(t, "child>back>doc_count", Path("child", "", "back", "doc_count"))
	require.Equal(t, []string{"a", "b"}, Segments("a>b"))
	require.Nil(t, Segments(""))
}
