package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// DefaultTimeScaleMinutes is used when a query does not name a time scale.
const DefaultTimeScaleMinutes = 1440

// scaleLadder lists the bucket widths, in minutes, the guard rounds up through.
var scaleLadder = []int{1, 5, 15, 30, 60, 120, 360, 720, 1440, 10080, 43200}

// TimeScale is a bucket width in minutes, or Full for one bucket per period.
type TimeScale struct {
	Full    bool
	Minutes int
}

// FullPeriod returns the one-bucket-per-period scale.
func FullPeriod() TimeScale {
	return TimeScale{Full: true}
}

// Minutes returns a fixed-width scale.
func Minutes(n int) TimeScale {
	return TimeScale{Minutes: n}
}

// Duration returns the bucket width. Zero for Full.
func (s TimeScale) Duration() time.Duration {
	if s.Full {
		return 0
	}
	return time.Duration(s.Minutes) * time.Minute
}

func (s TimeScale) String() string {
	if s.Full {
		return "full"
	}
	return strconv.Itoa(s.Minutes) + "m"
}

// Guard rounds a fixed-width scale up until the epoch-aligned buckets
// covering [start, end) number at most maxBuckets. A non-positive
// maxBuckets disables it; a maxBuckets of 1 is treated as 2, since an
// unaligned start may span two buckets.
func (s TimeScale) Guard(start, end time.Time, maxBuckets int) TimeScale {
	if s.Full || maxBuckets <= 0 || !end.After(start) {
		return s
	}
	if maxBuckets < 2 {
		maxBuckets = 2
	}
	fits := func(minutes int) bool {
		return bucketCount(start, end, minutes) <= int64(maxBuckets)
	}
	if s.Minutes > 0 && fits(s.Minutes) {
		return s
	}
	for _, m := range scaleLadder {
		if m >= s.Minutes && fits(m) {
			return Minutes(m)
		}
	}
	span := end.Sub(start).Minutes()
	if m := int(math.Ceil(span / float64(maxBuckets))); fits(m) {
		return Minutes(m)
	}
	// the partial leading bucket is shorter than one width
	return Minutes(int(math.Ceil(span / float64(maxBuckets-1))))
}

// alignedStart floors t to a multiple of ms since the Unix epoch.
func alignedStart(t time.Time, ms int64) int64 {
	first := t.UnixMilli() - t.UnixMilli()%ms
	if t.UnixMilli() < 0 && t.UnixMilli()%ms != 0 {
		first -= ms
	}
	return first
}

// bucketCount is len(Minutes(minutes).BucketStarts(start, end)) without
// materialising the starts.
func bucketCount(start, end time.Time, minutes int) int64 {
	ms := int64(minutes) * time.Minute.Milliseconds()
	first := alignedStart(start, ms)
	return (end.UnixMilli() - first + ms - 1) / ms
}

func (s TimeScale) MarshalJSON() ([]byte, error) {
	if s.Full {
		return json.Marshal("full")
	}
	return json.Marshal(s.Minutes)
}

func (s *TimeScale) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		if v == "full" {
			*s = FullPeriod()
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("time scale must be \"full\" or minutes, got %q", v)
		}
		*s = Minutes(n)
	case float64:
		*s = Minutes(int(v))
	default:
		return fmt.Errorf("time scale must be \"full\" or minutes, got %s", string(data))
	}
	if s.Minutes <= 0 {
		return fmt.Errorf("time scale must be positive, got %d", s.Minutes)
	}
	return nil
}

// BucketStarts lists the starts of the buckets covering [start, end), aligned
// to multiples of the bucket width since the Unix epoch. Nil for Full.
func (s TimeScale) BucketStarts(start, end time.Time) []time.Time {
	width := s.Duration()
	if width <= 0 || !end.After(start) {
		return nil
	}
	first := alignedStart(start, width.Milliseconds())
	var out []time.Time
	for t := time.UnixMilli(first).UTC(); t.Before(end); t = t.Add(width) {
		out = append(out, t)
	}
	return out
}
