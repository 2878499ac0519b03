package index

import (
	"fmt"
	"sort"
	"time"

	"github.com/datacite/registry-search/internal/search"
)

const defaultBucketCount = 10

// aggregate computes every requested aggregation over the matched set. It
// runs under the same read lock as the match, so bucket counts and the hit
// total always agree.
func (e *Engine) aggregate(matched []scored, specs []search.AggregationSpec) map[string][]search.Bucket {
	out := make(map[string][]search.Bucket, len(specs))
	for _, spec := range specs {
		if spec.Interval != "" {
			out[spec.Name] = dateHistogram(matched, spec)
		} else {
			out[spec.Name] = termsBuckets(matched, spec)
		}
	}
	return out
}

// termsBuckets counts distinct field values across the matched docs and
// returns the top buckets ordered by count descending, key ascending.
func termsBuckets(matched []scored, spec search.AggregationSpec) []search.Bucket {
	counts := make(map[string]int)
	members := make(map[string][]scored)
	for _, en := range matched {
		for _, v := range en.doc.doc.Fields[spec.Field] {
			if v == "" {
				continue
			}
			counts[v]++
			if spec.Sub != nil {
				members[v] = append(members[v], en)
			}
		}
	}

	buckets := make([]search.Bucket, 0, len(counts))
	for key, count := range counts {
		b := search.Bucket{Key: key, DocCount: count}
		if sub := spec.Sub; sub != nil {
			b.Sub = make(map[string][]search.Bucket, 1)
			if sub.Interval != "" {
				b.Sub[sub.Name] = dateHistogram(members[key], *sub)
			} else {
				b.Sub[sub.Name] = termsBuckets(members[key], *sub)
			}
		}
		buckets = append(buckets, b)
	}

	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].DocCount != buckets[j].DocCount {
			return buckets[i].DocCount > buckets[j].DocCount
		}
		return buckets[i].Key < buckets[j].Key
	})
	return truncate(buckets, spec.Size)
}

// dateHistogram buckets the matched docs by calendar year or month of the
// field's first value, newest bucket first. Keys render as the first day of
// the truncated period.
func dateHistogram(matched []scored, spec search.AggregationSpec) []search.Bucket {
	counts := make(map[string]int)
	for _, en := range matched {
		v := en.doc.doc.Field(spec.Field)
		t, ok := parseDate(v)
		if !ok {
			continue
		}
		var key string
		if spec.Interval == "month" {
			key = fmt.Sprintf("%04d-%02d-01", t.Year(), int(t.Month()))
		} else {
			key = fmt.Sprintf("%04d-01-01", t.Year())
		}
		counts[key]++
	}

	buckets := make([]search.Bucket, 0, len(counts))
	for key, count := range counts {
		buckets = append(buckets, search.Bucket{
			Key:         key,
			KeyAsString: key,
			DocCount:    count,
		})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Key > buckets[j].Key
	})
	return truncate(buckets, spec.Size)
}

func truncate(buckets []search.Bucket, size int) []search.Bucket {
	if size <= 0 {
		size = defaultBucketCount
	}
	if len(buckets) > size {
		buckets = buckets[:size]
	}
	return buckets
}

// parseDate accepts the timestamp layouts stored by the registry, from full
// RFC 3339 down to a bare year.
func parseDate(v string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
