package analytics

import (
	"fmt"
	"math"
	"sort"

	"github.com/yourusername/traceboard/pkg/models"
)

// relativeTolerance is the accepted drift as a share of the larger value.
const relativeTolerance = 0.05

// absoluteTolerance floors the accepted drift so near-zero counts do not
// report noise.
const absoluteTolerance = 1.0

// WithinTolerance reports whether a and b differ by at most
// max(5% of the larger magnitude, 1).
func WithinTolerance(a, b float64) bool {
	tol := math.Max(relativeTolerance*math.Max(math.Abs(a), math.Abs(b)), absoluteTolerance)
	return math.Abs(a-b) <= tol+1e-9
}

// Compare lists the numeric drift between the results two backends gave
// for the same operation. left and right name the backends in the messages.
func Compare(left string, a Result, right string, b Result) []string {
	c := &comparison{left: left, right: right}
	if a.Kind != b.Kind {
		c.addf("result kinds differ: %s=%s %s=%s", left, a.Kind, right, b.Kind)
		return c.out
	}
	switch a.Kind {
	case KindTimeseries:
		c.timeseries(a.Timeseries, b.Timeseries)
	case KindFilterOptions:
		c.filterOptions(a.FilterOptions, b.FilterOptions)
	case KindTopDocuments:
		c.topDocuments(a.TopDocuments, b.TopDocuments)
	case KindFeedback:
		c.feedback(a.Feedback, b.Feedback)
	default:
		c.addf("unknown result kind %d", a.Kind)
	}
	return c.out
}

type comparison struct {
	left, right string
	out         []string
}

func (c *comparison) addf(format string, args ...any) {
	c.out = append(c.out, fmt.Sprintf(format, args...))
}

func (c *comparison) number(what string, a, b float64) {
	if !WithinTolerance(a, b) {
		c.addf("%s: %s=%g %s=%g", what, c.left, a, c.right, b)
	}
}

func (c *comparison) timeseries(a, b *models.TimeseriesResult) {
	if a == nil || b == nil {
		if a != b {
			c.addf("timeseries missing: %s=%t %s=%t", c.left, a != nil, c.right, b != nil)
		}
		return
	}
	if len(a.CurrentPeriod) != len(b.CurrentPeriod) {
		c.addf("current period bucket count: %s=%d %s=%d", c.left, len(a.CurrentPeriod), c.right, len(b.CurrentPeriod))
	}
	c.period("previous", a.PreviousPeriod, b.PreviousPeriod)
	c.period("current", a.CurrentPeriod, b.CurrentPeriod)
}

// period compares buckets pairwise by position, over the buckets both sides have.
func (c *comparison) period(name string, a, b []*models.Bucket) {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		where := fmt.Sprintf("%s[%d] %s", name, i, a[i].Date)
		if a[i].Date != b[i].Date {
			c.addf("%s: date %s=%s %s=%s", where, c.left, a[i].Date, c.right, b[i].Date)
		}
		c.values(where, a[i].Values, b[i].Values)
		for _, g := range unionKeys(a[i].Groups, b[i].Groups) {
			c.values(where+" "+g, a[i].Groups[g], b[i].Groups[g])
		}
	}
}

func (c *comparison) values(where string, a, b map[string]float64) {
	for _, k := range unionKeys(a, b) {
		c.number(where+" "+k, a[k], b[k])
	}
}

func (c *comparison) filterOptions(a, b *models.FilterOptionsResult) {
	if a == nil || b == nil {
		if a != b {
			c.addf("filter options missing: %s=%t %s=%t", c.left, a != nil, c.right, b != nil)
		}
		return
	}
	if len(a.Options) != len(b.Options) {
		c.addf("option count: %s=%d %s=%d", c.left, len(a.Options), c.right, len(b.Options))
	}
	counts := make(map[string]int64, len(b.Options))
	for _, o := range b.Options {
		counts[o.Field] = o.Count
	}
	for _, o := range a.Options {
		if other, ok := counts[o.Field]; ok {
			c.number("option "+o.Field, float64(o.Count), float64(other))
		}
	}
}

func (c *comparison) topDocuments(a, b *models.TopDocumentsResult) {
	if a == nil || b == nil {
		if a != b {
			c.addf("top documents missing: %s=%t %s=%t", c.left, a != nil, c.right, b != nil)
		}
		return
	}
	c.number("total unique documents", float64(a.TotalUniqueDocuments), float64(b.TotalUniqueDocuments))
	counts := make(map[string]int64, len(b.TopDocuments))
	for _, d := range b.TopDocuments {
		counts[d.DocumentID] = d.Count
	}
	for _, d := range a.TopDocuments {
		if other, ok := counts[d.DocumentID]; ok {
			c.number("document "+d.DocumentID, float64(d.Count), float64(other))
		}
	}
}

func (c *comparison) feedback(a, b *models.FeedbackResult) {
	if a == nil || b == nil {
		if a != b {
			c.addf("feedback missing: %s=%t %s=%t", c.left, a != nil, c.right, b != nil)
		}
		return
	}
	c.number("feedback events", float64(len(a.Events)), float64(len(b.Events)))
}

func unionKeys[V any](a, b map[string]V) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
