package clickhouse

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/yourusername/traceboard/pkg/alias"
	"github.com/yourusername/traceboard/pkg/models"
)

// Parse groups the rows of a compiled timeseries statement into dated
// buckets per period. Each series is read under the alias it was emitted
// with; a NULL value is left absent. labels renames group values.
func Parse(rows []map[string]any, series []models.SeriesSpec, layout Layout, labels map[string]string) (*models.TimeseriesResult, error) {
	periods := map[string]*periodBuckets{
		previousPeriod: newPeriodBuckets(layout, layout.Previous),
		currentPeriod:  newPeriodBuckets(layout, layout.Current),
	}
	columns := make([]string, len(series))
	names := make([]string, len(series))
	for i, s := range series {
		columns[i] = alias.Column(i, s)
		names[i] = alias.SeriesName(i, s)
	}

	for n, row := range rows {
		name, _ := row[periodColumn].(string)
		period, ok := periods[name]
		if !ok {
			return nil, fmt.Errorf("row %d: unknown period %q", n, name)
		}
		date := models.FullDateKey
		if !layout.Full {
			t, ok := timeValue(row[dateColumn])
			if !ok {
				return nil, fmt.Errorf("row %d: missing %s", n, dateColumn)
			}
			date = models.FormatBucketDate(t)
		}
		b := period.bucket(date)

		group := ""
		if layout.GroupBy != "" {
			key, ok := stringValue(row[groupColumn])
			if !ok || key == "" {
				continue
			}
			group = key
			if layout.Group != nil {
				group = layout.Group.ValueLabel(key, labels)
			}
			if _, ok := b.Groups[group]; !ok {
				b.Groups[group] = map[string]float64{}
			}
		}
		for i := range series {
			if v, ok := floatValue(row[columns[i]]); ok {
				b.Set(group, names[i], v)
			}
		}
	}

	return &models.TimeseriesResult{
		PreviousPeriod: periods[previousPeriod].list(),
		CurrentPeriod:  periods[currentPeriod].list(),
	}, nil
}

type periodBuckets struct {
	groupBy string
	byDate  map[string]*models.Bucket
}

func newPeriodBuckets(layout Layout, dates []string) *periodBuckets {
	p := &periodBuckets{groupBy: layout.GroupBy, byDate: map[string]*models.Bucket{}}
	if layout.Full {
		p.bucket(models.FullDateKey)
	}
	for _, d := range dates {
		p.bucket(d)
	}
	return p
}

func (p *periodBuckets) bucket(date string) *models.Bucket {
	b, ok := p.byDate[date]
	if !ok {
		b = models.NewBucket(date, p.groupBy)
		p.byDate[date] = b
	}
	return b
}

func (p *periodBuckets) list() []*models.Bucket {
	out := make([]*models.Bucket, 0, len(p.byDate))
	for _, b := range p.byDate {
		out = append(out, b)
	}
	models.SortBuckets(out)
	return out
}

// deref unwraps pointers produced when scanning Nullable columns. A nil
// pointer reports false.
func deref(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	return rv.Interface(), true
}

func floatValue(v any) (float64, bool) {
	v, ok := deref(v)
	if !ok {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f, !math.IsNaN(f)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	default:
		return 0, false
	}
}

func stringValue(v any) (string, bool) {
	v, ok := deref(v)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func timeValue(v any) (time.Time, bool) {
	v, ok := deref(v)
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}
