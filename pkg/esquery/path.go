package esquery

import (
	"strconv"

	"github.com/yourusername/traceboard/pkg/alias"
)

// Special path leaves used to read a terms aggregation as a distinct count.
const (
	// BucketCount reads the number of returned buckets.
	BucketCount = "_bucket_count"
	// BucketCountWithOther adds sum_other_doc_count to the bucket count,
	// which is exact when every document is its own distinct value.
	BucketCountWithOther = "_bucket_count_with_other"
)

// Lookup follows an extraction path through a decoded response.
func Lookup(node any, path string) (any, bool) {
	cur := node
	for _, seg := range alias.Segments(path) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// LookupFloat follows an extraction path to a numeric leaf. A null leaf is
// reported as absent.
func LookupFloat(node any, path string) (float64, bool) {
	segs := alias.Segments(path)
	if n := len(segs); n > 0 && (segs[n-1] == BucketCount || segs[n-1] == BucketCountWithOther) {
		parent, ok := Lookup(node, alias.Path(segs[:n-1]...))
		if !ok {
			return 0, false
		}
		return bucketCount(parent, segs[n-1] == BucketCountWithOther)
	}
	v, ok := Lookup(node, path)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func bucketCount(node any, withOther bool) (float64, bool) {
	m, ok := node.(map[string]any)
	if !ok {
		return 0, false
	}
	buckets, ok := m["buckets"].([]any)
	if !ok {
		return 0, false
	}
	count := float64(len(buckets))
	if withOther {
		if other, ok := toFloat(m["sum_other_doc_count"]); ok {
			count += other
		}
	}
	return count, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// BucketsPath converts an extraction path relative to an aggregation into
// the buckets_path syntax pipelines use, prefixed by prefix.
func BucketsPath(prefix, extraction string) string {
	segs := alias.Segments(extraction)
	if len(segs) == 0 {
		return prefix
	}
	last := segs[len(segs)-1]
	names := segs[:len(segs)-1]
	suffix := ""
	switch {
	case last == "value":
	case last == "doc_count":
		suffix = "._count"
	case last == BucketCount || last == BucketCountWithOther:
		suffix = "._bucket_count"
	case len(segs) >= 2 && segs[len(segs)-2] == "values":
		names = segs[:len(segs)-2]
		suffix = "[" + last + "]"
	default:
		names = segs
	}
	return alias.Path(prefix, alias.Path(names...)) + suffix
}

// Buckets returns the buckets of a bucketing aggregation as (key, bucket)
// pairs, accepting both the array form and the keyed object form.
func Buckets(node any) []KeyedBucket {
	m, ok := node.(map[string]any)
	if !ok {
		return nil
	}
	switch raw := m["buckets"].(type) {
	case []any:
		out := make([]KeyedBucket, 0, len(raw))
		for _, b := range raw {
			bm, ok := b.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, KeyedBucket{Key: BucketKey(bm), Bucket: bm})
		}
		return out
	case map[string]any:
		out := make([]KeyedBucket, 0, len(raw))
		for k, b := range raw {
			bm, ok := b.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, KeyedBucket{Key: k, Bucket: bm})
		}
		return out
	}
	return nil
}

// BucketsAt returns the buckets found at path, a path ending in "buckets".
func BucketsAt(node any, path string) []KeyedBucket {
	segs := alias.Segments(path)
	if n := len(segs); n > 0 && segs[n-1] == "buckets" {
		segs = segs[:n-1]
	}
	parent, ok := Lookup(node, alias.Path(segs...))
	if !ok {
		return nil
	}
	return Buckets(parent)
}

// KeyedBucket is a response bucket with its key rendered as a string.
type KeyedBucket struct {
	Key    string
	Bucket map[string]any
}

// BucketKey renders a bucket key, preferring key_as_string.
func BucketKey(b map[string]any) string {
	if s, ok := b["key_as_string"].(string); ok {
		return s
	}
	switch k := b["key"].(type) {
	case string:
		return k
	case float64:
		return formatFloat(k)
	}
	return ""
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
