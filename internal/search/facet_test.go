package search

import (
	"reflect"
	"testing"
)

func TestNormalizePlain(t *testing.T) {
	buckets := []Bucket{
		{Key: "2019", DocCount: 41},
		{Key: "2018", DocCount: 7},
	}
	got := Normalize(buckets, BucketShape{Kind: ShapePlain})
	want := []Facet{
		{ID: "2019", Title: "2019", Count: 41},
		{ID: "2018", Title: "2018", Count: 7},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestNormalizeEmptyIsNotNil(t *testing.T) {
	if got := Normalize(nil, BucketShape{Kind: ShapePlain}); got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}

func TestNormalizeHumanized(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"repository_type", "Repository Type"},
		{"national-library", "National Library"},
		{"findable", "Findable"},
		{"dataset", "Dataset"},
	}
	for _, tt := range tests {
		got := Normalize([]Bucket{{Key: tt.key, DocCount: 1}}, BucketShape{Kind: ShapeHumanized})
		if got[0].ID != tt.key {
			t.Errorf("id mutated: got %q, want %q", got[0].ID, tt.key)
		}
		if got[0].Title != tt.want {
			t.Errorf("humanize(%q) = %q, want %q", tt.key, got[0].Title, tt.want)
		}
	}
}

func TestNormalizeComposite(t *testing.T) {
	buckets := []Bucket{
		{Key: "datacite:DataCite Consortium", DocCount: 12},
		// Extra colons belong to the title, only the first splits.
		{Key: "cern:CERN: European Organization", DocCount: 3},
		// No separator: whole key is both id and title.
		{Key: "orphan", DocCount: 1},
	}
	got := Normalize(buckets, BucketShape{Kind: ShapeComposite})
	want := []Facet{
		{ID: "datacite", Title: "DataCite Consortium", Count: 12},
		{ID: "cern", Title: "CERN: European Organization", Count: 3},
		{ID: "orphan", Title: "orphan", Count: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestNormalizeDateTruncated(t *testing.T) {
	buckets := []Bucket{
		{Key: "2021-01-01", KeyAsString: "2021-01-01", DocCount: 5},
		{Key: "2020-01-01", KeyAsString: "2020-01-01", DocCount: 2},
	}
	got := Normalize(buckets, BucketShape{Kind: ShapeDateTruncated})
	if got[0].ID != "2021" || got[0].Title != "2021" || got[0].Count != 5 {
		t.Errorf("got %+v, want 4-digit year 2021", got[0])
	}
	if got[1].ID != "2020" {
		t.Errorf("got %+v, want 4-digit year 2020", got[1])
	}
}

func TestNormalizeLookupTable(t *testing.T) {
	got := Normalize([]Bucket{
		{Key: "EMEA", DocCount: 40},
		{Key: "XXXX", DocCount: 1},
	}, BucketShape{Kind: ShapeLookupTable, Lookup: Regions})

	if got[0].ID != "emea" || got[0].Title != "Europe, Middle East and Africa" {
		t.Errorf("known key: got %+v", got[0])
	}
	// Unknown keys keep the raw key as title instead of disappearing.
	if got[1].ID != "xxxx" || got[1].Title != "XXXX" {
		t.Errorf("unknown key: got %+v", got[1])
	}
}

func TestNormalizeLookupTableNilTable(t *testing.T) {
	got := Normalize([]Bucket{{Key: "Dataverse", DocCount: 2}}, BucketShape{Kind: ShapeLookupTable})
	if got[0].ID != "dataverse" || got[0].Title != "Dataverse" {
		t.Errorf("got %+v, want lowercased id with raw title", got[0])
	}
}

func TestNormalizeNestedTimeSeries(t *testing.T) {
	buckets := []Bucket{{
		Key:      "is-referenced-by",
		DocCount: 9,
		Sub: map[string][]Bucket{
			"year_month": {
				{Key: "2021-02-01", KeyAsString: "2021-02-01", DocCount: 6},
				{Key: "2021-01-01", KeyAsString: "2021-01-01", DocCount: 3},
			},
		},
	}}
	shape := BucketShape{Kind: ShapeNestedTimeSeries, SubName: "year_month", SubTarget: NestedYearMonths}

	got := Normalize(buckets, shape)
	if got[0].ID != "is-referenced-by" || got[0].Count != 9 {
		t.Fatalf("parent = %+v", got[0])
	}
	if len(got[0].YearMonths) != 2 || len(got[0].Years) != 0 {
		t.Fatalf("children = %+v", got[0])
	}
	// Children trim the histogram's full date down to the period id, so a
	// facet id can be fed straight back as a year-month filter value.
	if got[0].YearMonths[0].ID != "2021-02" || got[0].YearMonths[0].Count != 6 {
		t.Errorf("first child = %+v", got[0].YearMonths[0])
	}
	if got[0].YearMonths[1].ID != "2021-01" {
		t.Errorf("second child = %+v", got[0].YearMonths[1])
	}

	// Same parent with a yearly breakdown lands in Years instead.
	buckets[0].Sub = map[string][]Bucket{
		"year": {{Key: "2021-01-01", KeyAsString: "2021-01-01", DocCount: 9}},
	}
	got = Normalize(buckets, BucketShape{Kind: ShapeNestedTimeSeries, SubName: "year", SubTarget: NestedYears})
	if len(got[0].Years) != 1 || len(got[0].YearMonths) != 0 {
		t.Fatalf("yearly children = %+v", got[0])
	}
	if got[0].Years[0].ID != "2021" || got[0].Years[0].Title != "2021" {
		t.Errorf("year child = %+v", got[0].Years[0])
	}
}

func TestNormalizePrefersKeyAsString(t *testing.T) {
	got := Normalize([]Bucket{{Key: "1609459200000", KeyAsString: "2021-01-01", DocCount: 1}},
		BucketShape{Kind: ShapePlain})
	if got[0].ID != "2021-01-01" {
		t.Errorf("id = %q, want the rendered key", got[0].ID)
	}
}
