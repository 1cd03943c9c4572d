// Package alias generates the synthetic names that carry a series' value
// through a backend round-trip, and the paths used to read it back.
//
// The same functions are used when emitting a query and when reading its
// result, so a value written under Column(i, s) is always looked up by
// Column(i, s). Aliases depend on the series position and are recomputed
// for every query.
package alias

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yourusername/traceboard/pkg/models"
)

const (
	columnSep = "__"
	seriesSep = "/"
	pathSep   = ">"
	wordSep   = "_"
)

// Column returns the SQL column alias of the series at index:
// {index}__{metricPath}__{aggregation}.
func Column(index int, s models.SeriesSpec) string {
	return strconv.Itoa(index) + columnSep + MetricPath(s.Metric, s.Key, s.Subkey) + columnSep + sanitize(string(s.Aggregation))
}

// MetricPath flattens a metric reference and its key/subkey into a single
// identifier-safe word, e.g. "events.event_score", "thumbs", "vote" becomes
// "events_event_score_thumbs_vote".
func MetricPath(metric, key, subkey string) string {
	parts := []string{sanitize(metric)}
	if key != "" {
		parts = append(parts, sanitize(key))
	}
	if subkey != "" {
		parts = append(parts, sanitize(subkey))
	}
	return strings.Join(parts, wordSep)
}

// SeriesName returns the name a series is reported under in results, and
// the aggregation name used for it in the search backend:
// {index}/{metric}/{aggregation}[/{pipelineField}/{pipelineAggregation}].
func SeriesName(index int, s models.SeriesSpec) string {
	parts := []string{strconv.Itoa(index), s.Metric, string(s.Aggregation)}
	if s.Pipeline != nil {
		parts = append(parts, string(s.Pipeline.Field), string(s.Pipeline.Aggregation))
	}
	return strings.Join(parts, seriesSep)
}

// ColumnParts is a decoded column alias.
type ColumnParts struct {
	Index       int
	MetricPath  string
	Aggregation models.AggregationType
}

// ParseColumn decodes an alias produced by Column.
func ParseColumn(column string) (ColumnParts, error) {
	first := strings.Index(column, columnSep)
	last := strings.LastIndex(column, columnSep)
	if first <= 0 || last <= first {
		return ColumnParts{}, fmt.Errorf("malformed column alias %q", column)
	}
	index, err := strconv.Atoi(column[:first])
	if err != nil {
		return ColumnParts{}, fmt.Errorf("malformed column alias %q: %w", column, err)
	}
	agg, err := models.ParseAggregationType(column[last+len(columnSep):])
	if err != nil {
		return ColumnParts{}, fmt.Errorf("malformed column alias %q: %w", column, err)
	}
	return ColumnParts{
		Index:       index,
		MetricPath:  column[first+len(columnSep) : last],
		Aggregation: agg,
	}, nil
}

// SeriesParts is a decoded series name.
type SeriesParts struct {
	Index       int
	Metric      string
	Aggregation models.AggregationType
	Pipeline    *models.Pipeline
}

// ParseSeriesName decodes a name produced by SeriesName.
func ParseSeriesName(name string) (SeriesParts, error) {
	parts := strings.Split(name, seriesSep)
	if len(parts) != 3 && len(parts) != 5 {
		return SeriesParts{}, fmt.Errorf("malformed series name %q", name)
	}
	index, err := strconv.Atoi(parts[0])
	if err != nil {
		return SeriesParts{}, fmt.Errorf("malformed series name %q: %w", name, err)
	}
	agg, err := models.ParseAggregationType(parts[2])
	if err != nil {
		return SeriesParts{}, fmt.Errorf("malformed series name %q: %w", name, err)
	}
	out := SeriesParts{Index: index, Metric: parts[1], Aggregation: agg}
	if len(parts) == 5 {
		out.Pipeline = &models.Pipeline{
			Field:       models.PipelineField(parts[3]),
			Aggregation: models.AggregationType(parts[4]),
		}
	}
	return out, nil
}

// Path joins accessors into an extraction path, skipping empty ones.
func Path(segments ...string) string {
	kept := segments[:0:0]
	for _, s := range segments {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, pathSep)
}

// Segments splits an extraction path into its accessors.
func Segments(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, pathSep)
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
