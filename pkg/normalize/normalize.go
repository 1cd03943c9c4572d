// Package normalize post-processes timeseries results so the previous and
// current periods can be paired bucket by bucket.
package normalize

import (
	"github.com/yourusername/traceboard/pkg/models"
)

// Apply aligns the periods then normalizes their keys.
func Apply(r *models.TimeseriesResult) {
	AlignPeriods(r)
	Normalize(r)
}

// AlignPeriods trims the previous period to the length of the current one,
// keeping its most recent buckets.
func AlignPeriods(r *models.TimeseriesResult) {
	if r == nil {
		return
	}
	if extra := len(r.PreviousPeriod) - len(r.CurrentPeriod); extra > 0 {
		r.PreviousPeriod = r.PreviousPeriod[extra:]
	}
}

// Normalize fills every series missing from a bucket with zero, so every
// bucket of both periods exposes the same series. Within grouped buckets
// only groups already present are filled; no group value is added.
func Normalize(r *models.TimeseriesResult) {
	if r == nil {
		return
	}
	values := map[string]struct{}{}
	grouped := map[string]struct{}{}
	for _, b := range buckets(r) {
		for k := range b.Values {
			values[k] = struct{}{}
		}
		for _, g := range b.Groups {
			for k := range g {
				grouped[k] = struct{}{}
			}
		}
	}
	for _, b := range buckets(r) {
		if b.Values == nil {
			b.Values = map[string]float64{}
		}
		fill(b.Values, values)
		for _, g := range b.Groups {
			fill(g, grouped)
		}
	}
}

func buckets(r *models.TimeseriesResult) []*models.Bucket {
	out := make([]*models.Bucket, 0, len(r.PreviousPeriod)+len(r.CurrentPeriod))
	out = append(out, r.PreviousPeriod...)
	return append(out, r.CurrentPeriod...)
}

func fill(m map[string]float64, keys map[string]struct{}) {
	for k := range keys {
		if _, ok := m[k]; !ok {
			m[k] = 0
		}
	}
}
