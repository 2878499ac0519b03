package search

import (
	"net/url"
	"strings"
	"testing"
)

func testHits(n int) []Hit {
	hits := make([]Hit, n)
	for i := range hits {
		uid := "10.5438/000" + string(rune('a'+i))
		hits[i] = Hit{
			Document: Document{Type: TypeWorks, UID: uid},
			Sort:     []string{"2021", uid},
		}
	}
	return hits
}

func TestAssembleTotalPages(t *testing.T) {
	cfg := Configs()[TypeWorks]

	tests := []struct {
		total int
		size  int
		want  int
	}{
		{0, 25, 0},
		{1, 25, 1},
		{25, 25, 1},
		{26, 25, 2},
		{100, 25, 4},
		{101, 25, 5},
		{7, 0, 0},
	}
	for _, tt := range tests {
		resp := &Response{Total: tt.total, Aggregations: map[string][]Bucket{}}
		page := PageSpec{Mode: PageOffset, Number: 1, Size: tt.size}
		result := Assemble(resp, cfg, page, LinkContext{BaseURL: "https://api.test", Path: "/works"})
		if result.TotalPages != tt.want {
			t.Errorf("total=%d size=%d: totalPages=%d, want %d", tt.total, tt.size, result.TotalPages, tt.want)
		}
	}
}

func TestAssembleFacetSuppressionAtZeroTotal(t *testing.T) {
	cfg := Configs()[TypeWorks]
	resp := &Response{
		Total: 0,
		// Engine aggregations can be non-empty in theory; zero total still
		// suppresses them.
		Aggregations: map[string][]Bucket{"years": {{Key: "2021", DocCount: 1}}},
	}
	result := Assemble(resp, cfg, PageSpec{Mode: PageOffset, Number: 1, Size: 25},
		LinkContext{BaseURL: "https://api.test", Path: "/works"})

	if result.Facets != nil {
		t.Errorf("facets = %+v, want none at zero total", result.Facets)
	}
}

func TestAssembleFacetsPresentAndOrdered(t *testing.T) {
	cfg := Configs()[TypeWorks]
	resp := &Response{
		Total:        3,
		Hits:         testHits(3),
		Aggregations: map[string][]Bucket{"years": {{Key: "2021", DocCount: 3}}},
	}
	result := Assemble(resp, cfg, PageSpec{Mode: PageOffset, Number: 1, Size: 25},
		LinkContext{BaseURL: "https://api.test", Path: "/works"})

	if len(result.Facets) != len(cfg.Facets) {
		t.Fatalf("got %d facet groups, want %d (one per configured facet)", len(result.Facets), len(cfg.Facets))
	}
	for i, spec := range cfg.Facets {
		if result.Facets[i].Name != spec.MetaKey {
			t.Errorf("facet %d = %q, want %q (config order)", i, result.Facets[i].Name, spec.MetaKey)
		}
		// Missing aggregations render as empty lists, not nil.
		if result.Facets[i].Facets == nil {
			t.Errorf("facet %q is nil", spec.MetaKey)
		}
	}
}

func TestAssembleScrollSkipsFacets(t *testing.T) {
	cfg := Configs()[TypeWorks]
	resp := &Response{
		Total:        5,
		Hits:         testHits(5),
		ScrollID:     "scroll-1",
		Aggregations: map[string][]Bucket{"years": {{Key: "2021", DocCount: 5}}},
	}
	result := Assemble(resp, cfg, PageSpec{Mode: PageScroll, Size: 5},
		LinkContext{BaseURL: "https://api.test", Path: "/works"})

	if result.Facets != nil {
		t.Errorf("scroll result has facets: %+v", result.Facets)
	}
	if result.ScrollID != "scroll-1" {
		t.Errorf("scrollID = %q", result.ScrollID)
	}
}

func TestAssembleNextLinkOffset(t *testing.T) {
	cfg := Configs()[TypeWorks]
	params := url.Values{"query": {"climate"}, "page[number]": {"2"}, "page[size]": {"3"}, "empty": {""}}
	resp := &Response{Total: 30, Hits: testHits(3), Aggregations: map[string][]Bucket{}}
	page := PageSpec{Mode: PageOffset, Number: 2, Size: 3}

	result := Assemble(resp, cfg, page, LinkContext{BaseURL: "https://api.test", Path: "/works", Params: params})
	if result.NextLink == "" {
		t.Fatal("expected a next link on a full page")
	}
	next, err := url.Parse(result.NextLink)
	if err != nil {
		t.Fatalf("next link unparseable: %v", err)
	}
	q := next.Query()
	if q.Get("page[number]") != "3" || q.Get("page[size]") != "3" {
		t.Errorf("next link pagination = %v", q)
	}
	if q.Get("query") != "climate" {
		t.Errorf("next link dropped the query param: %v", q)
	}
	if _, present := q["empty"]; present {
		t.Errorf("next link carries blank param: %v", q)
	}
	if result.Page != 2 {
		t.Errorf("page = %d, want 2", result.Page)
	}
}

func TestAssembleNextLinkEmptyOnLastPage(t *testing.T) {
	cfg := Configs()[TypeWorks]

	// Short page in every mode means exhausted.
	for _, page := range []PageSpec{
		{Mode: PageOffset, Number: 4, Size: 25},
		{Mode: PageCursor, Size: 25},
		{Mode: PageScroll, Size: 25},
	} {
		resp := &Response{Total: 80, Hits: testHits(5), ScrollID: "s", Aggregations: map[string][]Bucket{}}
		result := Assemble(resp, cfg, page, LinkContext{BaseURL: "https://api.test", Path: "/works"})
		if result.NextLink != "" {
			t.Errorf("mode %v: next link = %q, want empty", page.Mode, result.NextLink)
		}
	}

	// Size zero never links onward.
	resp := &Response{Total: 80, Aggregations: map[string][]Bucket{}}
	result := Assemble(resp, cfg, PageSpec{Mode: PageOffset, Number: 1, Size: 0},
		LinkContext{BaseURL: "https://api.test", Path: "/works"})
	if result.NextLink != "" {
		t.Errorf("size 0: next link = %q, want empty", result.NextLink)
	}
}

func TestAssembleNextLinkStopsAtWindowCeiling(t *testing.T) {
	cfg := Configs()[TypeWorks]
	limits := DefaultPageLimits()

	// A full page on the last window-addressable page must not link to a
	// number that would only clamp back to the same page.
	page, err := ParsePage(PageParams{Number: "9999", Size: "25"}, limits)
	if err != nil {
		t.Fatalf("ParsePage: %v", err)
	}
	if page.Number != page.MaxNumber {
		t.Fatalf("number = %d, maxNumber = %d, want the clamped last page", page.Number, page.MaxNumber)
	}
	resp := &Response{Total: 20000, Hits: testHits(25), Aggregations: map[string][]Bucket{}}
	result := Assemble(resp, cfg, page, LinkContext{BaseURL: "https://api.test", Path: "/works"})
	if result.NextLink != "" {
		t.Errorf("next link at window ceiling = %q, want empty", result.NextLink)
	}

	// One page earlier the chain still advances.
	page, err = ParsePage(PageParams{Number: "399", Size: "25"}, limits)
	if err != nil {
		t.Fatalf("ParsePage: %v", err)
	}
	result = Assemble(resp, cfg, page, LinkContext{BaseURL: "https://api.test", Path: "/works"})
	if !strings.Contains(result.NextLink, "page%5Bnumber%5D=400") {
		t.Errorf("next link = %q, want page 400", result.NextLink)
	}
}

func TestAssembleNextLinkCursor(t *testing.T) {
	cfg := Configs()[TypeWorks]
	hits := testHits(3)
	resp := &Response{Total: 30, Hits: hits, Aggregations: map[string][]Bucket{}}
	page := PageSpec{Mode: PageCursor, Size: 3}

	result := Assemble(resp, cfg, page, LinkContext{
		BaseURL: "https://api.test", Path: "/works",
		Params: url.Values{"page[cursor]": {"previous-token"}},
	})
	next, err := url.Parse(result.NextLink)
	if err != nil {
		t.Fatalf("next link unparseable: %v", err)
	}
	token := next.Query().Get("page[cursor]")
	if token == "" || token == "previous-token" {
		t.Fatalf("cursor token not advanced: %q", token)
	}
	want := hits[len(hits)-1].Sort
	got := DecodeCursor(token)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("cursor tuple = %v, want last hit's %v", got, want)
	}
}

func TestAssembleNextLinkScroll(t *testing.T) {
	cfg := Configs()[TypeWorks]
	resp := &Response{Total: 100, Hits: testHits(5), ScrollID: "scroll-xyz", Aggregations: map[string][]Bucket{}}
	page := PageSpec{Mode: PageScroll, Size: 5}

	result := Assemble(resp, cfg, page, LinkContext{BaseURL: "https://api.test", Path: "/works"})
	if !strings.Contains(result.NextLink, "scroll-id=scroll-xyz") {
		t.Errorf("next link = %q, want scroll-id", result.NextLink)
	}
	if !strings.Contains(result.NextLink, "page%5Bscroll%5D=true") {
		t.Errorf("next link = %q, want page[scroll]", result.NextLink)
	}
}

func TestAssembleTotalReadOnce(t *testing.T) {
	cfg := Configs()[TypeWorks]
	resp := &Response{Total: 26, Hits: testHits(25), Aggregations: map[string][]Bucket{}}
	result := Assemble(resp, cfg, PageSpec{Mode: PageOffset, Number: 1, Size: 25},
		LinkContext{BaseURL: "https://api.test", Path: "/works"})

	if result.Total != 26 || result.TotalPages != 2 || result.NextLink == "" {
		t.Errorf("total=%d totalPages=%d next=%q: totals disagree", result.Total, result.TotalPages, result.NextLink)
	}
}
