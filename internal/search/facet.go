package search

import "strings"

// Facet is the normalized, wire-ready summary of one aggregation bucket.
// Time-series facets carry their per-period breakdown in YearMonths or
// Years, depending on the aggregation's granularity.
type Facet struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Count      int     `json:"count"`
	YearMonths []Facet `json:"yearMonths,omitempty"`
	Years      []Facet `json:"years,omitempty"`
}

// ShapeKind identifies how a raw bucket key maps to a facet id and title.
type ShapeKind int

const (
	// ShapePlain uses the key verbatim for both id and title.
	ShapePlain ShapeKind = iota
	// ShapeHumanized keeps the key as id and derives a display title from it.
	ShapeHumanized
	// ShapeComposite splits an "id:title" key on the first colon. The engine
	// only aggregates single-field keys, so id and title are packed into one.
	ShapeComposite
	// ShapeDateTruncated keeps the 4-digit year of a date-formatted key.
	ShapeDateTruncated
	// ShapeLookupTable lowercases the key as id and resolves the title from
	// a static table, falling back to the key itself.
	ShapeLookupTable
	// ShapeNestedTimeSeries is a plain bucket plus a nested per-period
	// breakdown normalized recursively.
	ShapeNestedTimeSeries
)

// NestedTarget picks the wire field the nested breakdown renders into.
type NestedTarget int

const (
	NestedYearMonths NestedTarget = iota
	NestedYears
)

// BucketShape is the tagged description of a raw bucket's key encoding.
// Kind selects the transform; the remaining fields carry the data that
// transform needs.
type BucketShape struct {
	Kind      ShapeKind
	Lookup    map[string]string
	SubName   string
	SubTarget NestedTarget
}

// Normalize maps raw aggregation buckets into facets according to shape.
// It is total over well-formed engine output: a nil or empty bucket list
// yields an empty slice, never nil.
func Normalize(buckets []Bucket, shape BucketShape) []Facet {
	facets := make([]Facet, 0, len(buckets))
	for _, b := range buckets {
		facets = append(facets, normalizeOne(b, shape))
	}
	return facets
}

func normalizeOne(b Bucket, shape BucketShape) Facet {
	key := b.Key
	if b.KeyAsString != "" {
		key = b.KeyAsString
	}

	switch shape.Kind {
	case ShapeHumanized:
		return Facet{ID: key, Title: humanize(key), Count: b.DocCount}

	case ShapeComposite:
		id, title, found := strings.Cut(key, ":")
		if !found {
			title = key
		}
		return Facet{ID: id, Title: title, Count: b.DocCount}

	case ShapeDateTruncated:
		year := key
		if len(year) > 4 {
			year = year[:4]
		}
		return Facet{ID: year, Title: year, Count: b.DocCount}

	case ShapeLookupTable:
		title, ok := shape.Lookup[key]
		if !ok {
			title = key
		}
		return Facet{ID: strings.ToLower(key), Title: title, Count: b.DocCount}

	case ShapeNestedTimeSeries:
		f := Facet{ID: key, Title: key, Count: b.DocCount}
		// Histogram child keys are full dates; trim them to the period id
		// ("2021" / "2021-06") so they round-trip as filter values.
		width := 7
		if shape.SubTarget == NestedYears {
			width = 4
		}
		children := make([]Facet, 0, len(b.Sub[shape.SubName]))
		for _, sb := range b.Sub[shape.SubName] {
			period := sb.Key
			if sb.KeyAsString != "" {
				period = sb.KeyAsString
			}
			if len(period) > width {
				period = period[:width]
			}
			children = append(children, Facet{ID: period, Title: period, Count: sb.DocCount})
		}
		if shape.SubTarget == NestedYears {
			f.Years = children
		} else {
			f.YearMonths = children
		}
		return f

	default:
		return Facet{ID: key, Title: key, Count: b.DocCount}
	}
}

// humanize turns a keyword like "repository_type" or "national-library"
// into "Repository Type" / "National Library". Display only; ids keep the
// raw key.
func humanize(key string) string {
	replaced := strings.NewReplacer("_", " ", "-", " ").Replace(key)
	words := strings.Fields(replaced)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
