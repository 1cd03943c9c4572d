package elasticsearch

import (
	"fmt"
	"time"

	"github.com/yourusername/traceboard/pkg/alias"
	"github.com/yourusername/traceboard/pkg/esquery"
	"github.com/yourusername/traceboard/pkg/models"
)

// Extract reads a timeseries result out of a search response. labels
// renames group values and may be nil.
func Extract(plan *Plan, response map[string]any, labels map[string]string) (*models.TimeseriesResult, error) {
	aggs, ok := response["aggregations"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("search response has no aggregations")
	}
	result := &models.TimeseriesResult{}
	for _, period := range []struct {
		name string
		out  *[]*models.Bucket
	}{
		{previousAgg, &result.PreviousPeriod},
		{currentAgg, &result.CurrentPeriod},
	} {
		node, ok := aggs[period.name]
		if !ok {
			return nil, fmt.Errorf("search response has no %s period", period.name)
		}
		buckets, err := plan.extractPeriod(node, labels)
		if err != nil {
			return nil, fmt.Errorf("%s period: %w", period.name, err)
		}
		*period.out = buckets
	}
	return result, nil
}

func (p *Plan) extractPeriod(node any, labels map[string]string) ([]*models.Bucket, error) {
	if p.Scale.Full {
		return []*models.Bucket{p.extractBucket(models.FullDateKey, node, labels)}, nil
	}
	dates := esquery.BucketsAt(node, alias.Path(histogramAgg, "buckets"))
	out := make([]*models.Bucket, 0, len(dates))
	for _, d := range dates {
		ms, ok := d.Bucket["key"].(float64)
		if !ok {
			return nil, fmt.Errorf("histogram bucket %q has no numeric key", d.Key)
		}
		date := models.FormatBucketDate(time.UnixMilli(int64(ms)))
		out = append(out, p.extractBucket(date, d.Bucket, labels))
	}
	models.SortBuckets(out)
	return out, nil
}

func (p *Plan) extractBucket(date string, node any, labels map[string]string) *models.Bucket {
	if p.Group == nil {
		b := models.NewBucket(date, "")
		p.extractSeries(b, "", node)
		return b
	}
	b := models.NewBucket(date, p.Group.Ref())
	groupNode, _ := esquery.Lookup(node, groupAgg)
	for _, gb := range esquery.BucketsAt(groupNode, p.Group.BucketsPath) {
		if count, ok := esquery.LookupFloat(gb.Bucket, "doc_count"); ok && count == 0 {
			continue
		}
		inner, ok := esquery.Lookup(gb.Bucket, p.Group.InnerPath)
		if !ok {
			continue
		}
		value := p.Group.ValueLabel(gb.Key, labels)
		if _, ok := b.Groups[value]; !ok {
			b.Groups[value] = map[string]float64{}
		}
		p.extractSeries(b, value, inner)
	}
	return b
}

// extractSeries reads every series below node; series without a value are
// left absent.
func (p *Plan) extractSeries(b *models.Bucket, group string, node any) {
	for _, s := range p.Series {
		if v, ok := esquery.LookupFloat(node, s.Path); ok {
			b.Set(group, s.Name, v)
		}
	}
}
