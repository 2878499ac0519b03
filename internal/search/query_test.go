package search

import (
	"net/url"
	"reflect"
	"testing"
)

func TestBuildSortResolution(t *testing.T) {
	cfg := Configs()[TypeWorks]

	tests := []struct {
		sortKey string
		want    SortClause
	}{
		{"name", SortClause{Field: "doi"}},
		{"-name", SortClause{Field: "doi", Desc: true}},
		{"relevance", SortClause{Field: "_score", Desc: true}},
		// Unrecognized keys silently fall back to the default.
		{"bogus", cfg.DefaultSort},
		{"", cfg.DefaultSort},
	}
	for _, tt := range tests {
		req := cfg.Build("", url.Values{}, tt.sortKey, PageSpec{Mode: PageOffset, Number: 1, Size: 25})
		if req.Sort != tt.want {
			t.Errorf("sort %q resolved to %+v, want %+v", tt.sortKey, req.Sort, tt.want)
		}
	}
}

func TestBuildFilterAllowList(t *testing.T) {
	cfg := Configs()[TypeWorks]
	params := url.Values{
		"provider-id": {"datacite"},
		"client-id":   {"datacite.rph"},
		"unknown":     {"ignored"},
		"admin":       {"true"},
	}

	req := cfg.Build("", params, "", PageSpec{})
	want := map[string][]string{
		"provider_id": {"datacite"},
		"client_id":   {"datacite.rph"},
	}
	if !reflect.DeepEqual(req.Filters, want) {
		t.Errorf("filters = %v, want %v", req.Filters, want)
	}
}

func TestBuildCommaSeparatedValues(t *testing.T) {
	cfg := Configs()[TypeClients]
	params := url.Values{"software": {"dataverse, ckan", "dspace"}}

	req := cfg.Build("", params, "", PageSpec{})
	want := []string{"dataverse", "ckan", "dspace"}
	if !reflect.DeepEqual(req.Filters["software"], want) {
		t.Errorf("software filter = %v, want %v", req.Filters["software"], want)
	}
}

func TestBuildTrimsQuery(t *testing.T) {
	cfg := Configs()[TypeProviders]
	req := cfg.Build("  climate data  ", url.Values{}, "", PageSpec{})
	if req.Query != "climate data" {
		t.Errorf("query = %q", req.Query)
	}
	if req.Type != TypeProviders {
		t.Errorf("type = %q", req.Type)
	}
}

func TestBuildAttachesTypeAggregations(t *testing.T) {
	for entityType, cfg := range Configs() {
		req := cfg.Build("", url.Values{}, "", PageSpec{})
		if len(req.Aggregations) != len(cfg.Aggregations) {
			t.Errorf("%s: %d aggregations attached, want %d",
				entityType, len(req.Aggregations), len(cfg.Aggregations))
		}
	}
}

func TestConfigsCoverAllTypes(t *testing.T) {
	configs := Configs()
	for _, entityType := range []string{
		TypeWorks, TypeClients, TypeProviders, TypePrefixes,
		TypeClientPrefixes, TypeProviderPrefixes, TypeEvents,
	} {
		cfg, ok := configs[entityType]
		if !ok {
			t.Errorf("no config for %s", entityType)
			continue
		}
		if len(cfg.Facets) == 0 {
			t.Errorf("%s: no facets configured", entityType)
		}
		for _, facet := range cfg.Facets {
			found := false
			for _, agg := range cfg.Aggregations {
				if agg.Name == facet.Agg {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("%s: facet %q references unknown aggregation %q",
					entityType, facet.MetaKey, facet.Agg)
			}
		}
	}
}
