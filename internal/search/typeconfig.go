package search

// Entity type names. They double as URL path segments and index partitions.
const (
	TypeWorks            = "works"
	TypeClients          = "clients"
	TypeProviders        = "providers"
	TypePrefixes         = "prefixes"
	TypeClientPrefixes   = "client-prefixes"
	TypeProviderPrefixes = "provider-prefixes"
	TypeEvents           = "events"
)

// Regions maps region codes to display names.
var Regions = map[string]string{
	"APAC": "Asia and Pacific",
	"EMEA": "Europe, Middle East and Africa",
	"AMER": "Americas",
}

// Sources maps citation-event source ids to display names.
var Sources = map[string]string{
	"datacite-usage":      "DataCite Usage Stats",
	"datacite-resolution": "DataCite Resolution Stats",
	"datacite-related":    "DataCite Related Identifiers",
	"datacite-crossref":   "DataCite to Crossref",
	"datacite-url":        "DataCite URL Links",
	"datacite-funder":     "DataCite Funder Information",
	"crossref":            "Crossref to DataCite",
}

func sortAsc(field string) SortClause  { return SortClause{Field: field} }
func sortDesc(field string) SortClause { return SortClause{Field: field, Desc: true} }

func terms(name, field string, size int) AggregationSpec {
	return AggregationSpec{Name: name, Field: field, Size: size}
}

func yearHistogram(name, field string, size int) AggregationSpec {
	return AggregationSpec{Name: name, Field: field, Size: size, Interval: "year"}
}

// Configs returns the full set of per-type search configurations, keyed by
// entity type. The returned map is built fresh on every call so callers can
// treat their copy as their own.
func Configs() map[string]*TypeConfig {
	configs := []*TypeConfig{
		worksConfig(),
		clientsConfig(),
		providersConfig(),
		prefixesConfig(),
		clientPrefixesConfig(),
		providerPrefixesConfig(),
		eventsConfig(),
	}
	byType := make(map[string]*TypeConfig, len(configs))
	for _, c := range configs {
		byType[c.Type] = c
	}
	return byType
}

func worksConfig() *TypeConfig {
	return &TypeConfig{
		Type:        TypeWorks,
		DefaultSort: sortDesc("updated"),
		Sorts: map[string]SortClause{
			"name":      sortAsc("doi"),
			"-name":     sortDesc("doi"),
			"created":   sortAsc("created"),
			"-created":  sortDesc("created"),
			"updated":   sortAsc("updated"),
			"-updated":  sortDesc("updated"),
			"relevance": sortDesc("_score"),
		},
		Filters: map[string]string{
			"year":           "publication_year",
			"provider-id":    "provider_id",
			"client-id":      "client_id",
			"prefix":         "prefix",
			"resource-type":  "resource_type",
			"schema-version": "schema_version",
			"state":          "state",
		},
		Aggregations: []AggregationSpec{
			terms("resource_types", "resource_type", 15),
			terms("states", "state", 15),
			terms("years", "publication_year", 15),
			yearHistogram("registered", "registered", 15),
			terms("providers", "provider_id_and_name", 15),
			terms("clients", "client_id_and_name", 15),
			terms("schema_versions", "schema_version", 15),
			terms("prefixes", "prefix", 15),
		},
		Facets: []FacetSpec{
			{MetaKey: "resourceTypes", Agg: "resource_types", Shape: BucketShape{Kind: ShapeHumanized}},
			{MetaKey: "states", Agg: "states", Shape: BucketShape{Kind: ShapeHumanized}},
			{MetaKey: "years", Agg: "years", Shape: BucketShape{Kind: ShapePlain}},
			{MetaKey: "registered", Agg: "registered", Shape: BucketShape{Kind: ShapeDateTruncated}},
			{MetaKey: "providers", Agg: "providers", Shape: BucketShape{Kind: ShapeComposite}},
			{MetaKey: "clients", Agg: "clients", Shape: BucketShape{Kind: ShapeComposite}},
			{MetaKey: "schemaVersions", Agg: "schema_versions", Shape: BucketShape{Kind: ShapePlain}},
			{MetaKey: "prefixes", Agg: "prefixes", Shape: BucketShape{Kind: ShapePlain}},
		},
	}
}

func clientsConfig() *TypeConfig {
	return &TypeConfig{
		Type:        TypeClients,
		DefaultSort: sortAsc("name"),
		Sorts: map[string]SortClause{
			"name":      sortAsc("name"),
			"-name":     sortDesc("name"),
			"created":   sortAsc("created"),
			"-created":  sortDesc("created"),
			"relevance": sortDesc("_score"),
		},
		Filters: map[string]string{
			"year":            "year",
			"provider-id":     "provider_id",
			"software":        "software",
			"certificate":     "certificate",
			"repository-type": "repository_type",
			"client-type":     "client_type",
		},
		Aggregations: []AggregationSpec{
			yearHistogram("years", "created", 10),
			terms("providers", "provider_id_and_name", 10),
			terms("software", "software", 10),
			terms("client_types", "client_type", 10),
			terms("repository_types", "repository_type", 10),
			terms("certificates", "certificate", 10),
		},
		Facets: []FacetSpec{
			{MetaKey: "years", Agg: "years", Shape: BucketShape{Kind: ShapeDateTruncated}},
			{MetaKey: "providers", Agg: "providers", Shape: BucketShape{Kind: ShapeComposite}},
			{MetaKey: "software", Agg: "software", Shape: BucketShape{Kind: ShapeLookupTable}},
			{MetaKey: "clientTypes", Agg: "client_types", Shape: BucketShape{Kind: ShapeHumanized}},
			{MetaKey: "repositoryTypes", Agg: "repository_types", Shape: BucketShape{Kind: ShapeHumanized}},
			{MetaKey: "certificates", Agg: "certificates", Shape: BucketShape{Kind: ShapePlain}},
		},
	}
}

func providersConfig() *TypeConfig {
	return &TypeConfig{
		Type:        TypeProviders,
		DefaultSort: sortAsc("name"),
		Sorts: map[string]SortClause{
			"name":      sortAsc("name"),
			"-name":     sortDesc("name"),
			"created":   sortAsc("created"),
			"-created":  sortDesc("created"),
			"relevance": sortDesc("_score"),
		},
		Filters: map[string]string{
			"year":        "year",
			"region":      "region",
			"member-type": "member_type",
		},
		Aggregations: []AggregationSpec{
			yearHistogram("years", "created", 10),
			terms("regions", "region", 10),
			terms("member_types", "member_type", 10),
		},
		Facets: []FacetSpec{
			{MetaKey: "years", Agg: "years", Shape: BucketShape{Kind: ShapeDateTruncated}},
			{MetaKey: "regions", Agg: "regions", Shape: BucketShape{Kind: ShapeLookupTable, Lookup: Regions}},
			{MetaKey: "memberTypes", Agg: "member_types", Shape: BucketShape{Kind: ShapeHumanized}},
		},
	}
}

func prefixesConfig() *TypeConfig {
	return &TypeConfig{
		Type:        TypePrefixes,
		DefaultSort: sortDesc("created"),
		Sorts: map[string]SortClause{
			"name":     sortAsc("prefix"),
			"-name":    sortDesc("prefix"),
			"created":  sortAsc("created"),
			"-created": sortDesc("created"),
		},
		Filters: map[string]string{
			"year":        "year",
			"state":       "state",
			"provider-id": "provider_id",
			"client-id":   "client_id",
		},
		Aggregations: []AggregationSpec{
			yearHistogram("years", "created", 10),
			terms("states", "state", 10),
			terms("providers", "provider_id_and_name", 10),
		},
		Facets: []FacetSpec{
			{MetaKey: "years", Agg: "years", Shape: BucketShape{Kind: ShapeDateTruncated}},
			{MetaKey: "states", Agg: "states", Shape: BucketShape{Kind: ShapeHumanized}},
			{MetaKey: "providers", Agg: "providers", Shape: BucketShape{Kind: ShapeComposite}},
		},
	}
}

func clientPrefixesConfig() *TypeConfig {
	return &TypeConfig{
		Type:        TypeClientPrefixes,
		DefaultSort: sortDesc("created"),
		Sorts: map[string]SortClause{
			"name":     sortAsc("prefix"),
			"-name":    sortDesc("prefix"),
			"created":  sortAsc("created"),
			"-created": sortDesc("created"),
		},
		Filters: map[string]string{
			"year":      "year",
			"client-id": "client_id",
			"prefix":    "prefix",
		},
		Aggregations: []AggregationSpec{
			yearHistogram("years", "created", 10),
			terms("clients", "client_id_and_name", 10),
		},
		Facets: []FacetSpec{
			{MetaKey: "years", Agg: "years", Shape: BucketShape{Kind: ShapeDateTruncated}},
			{MetaKey: "clients", Agg: "clients", Shape: BucketShape{Kind: ShapeComposite}},
		},
	}
}

func providerPrefixesConfig() *TypeConfig {
	return &TypeConfig{
		Type:        TypeProviderPrefixes,
		DefaultSort: sortDesc("created"),
		Sorts: map[string]SortClause{
			"name":     sortAsc("prefix"),
			"-name":    sortDesc("prefix"),
			"created":  sortAsc("created"),
			"-created": sortDesc("created"),
		},
		Filters: map[string]string{
			"year":        "year",
			"provider-id": "provider_id",
			"prefix":      "prefix",
		},
		Aggregations: []AggregationSpec{
			yearHistogram("years", "created", 10),
			terms("providers", "provider_id_and_name", 10),
		},
		Facets: []FacetSpec{
			{MetaKey: "years", Agg: "years", Shape: BucketShape{Kind: ShapeDateTruncated}},
			{MetaKey: "providers", Agg: "providers", Shape: BucketShape{Kind: ShapeComposite}},
		},
	}
}

func eventsConfig() *TypeConfig {
	yearMonth := &AggregationSpec{Name: "year_month", Field: "occurred", Size: 12, Interval: "month"}
	year := &AggregationSpec{Name: "year", Field: "occurred", Size: 10, Interval: "year"}
	return &TypeConfig{
		Type:        TypeEvents,
		DefaultSort: sortAsc("created"),
		Sorts: map[string]SortClause{
			"created":          sortAsc("created"),
			"-created":         sortDesc("created"),
			"updated":          sortAsc("updated"),
			"-updated":         sortDesc("updated"),
			"obj-id":           sortAsc("obj_id"),
			"-obj-id":          sortDesc("obj_id"),
			"relation-type-id": sortAsc("relation_type_id"),
			"relevance":        sortDesc("_score"),
		},
		Filters: map[string]string{
			"subj-id":          "subj_id",
			"obj-id":           "obj_id",
			"doi":              "doi",
			"prefix":           "prefix",
			"citation-type":    "citation_type",
			"source-id":        "source_id",
			"registrant-id":    "registrant_id",
			"relation-type-id": "relation_type_id",
			"publication-year": "publication_year",
			"year-month":       "year_month",
		},
		Aggregations: []AggregationSpec{
			terms("sources", "source_id", 10),
			terms("prefixes", "prefix", 10),
			{Name: "citation_types", Field: "citation_type", Size: 10, Sub: yearMonth},
			{Name: "relation_types", Field: "relation_type_id", Size: 10, Sub: yearMonth},
			{Name: "registrants", Field: "registrant_id", Size: 10, Sub: year},
		},
		Facets: []FacetSpec{
			{MetaKey: "sources", Agg: "sources", Shape: BucketShape{Kind: ShapeLookupTable, Lookup: Sources}},
			{MetaKey: "prefixes", Agg: "prefixes", Shape: BucketShape{Kind: ShapePlain}},
			{MetaKey: "citationTypes", Agg: "citation_types", Shape: BucketShape{Kind: ShapeNestedTimeSeries, SubName: "year_month", SubTarget: NestedYearMonths}},
			{MetaKey: "relationTypes", Agg: "relation_types", Shape: BucketShape{Kind: ShapeNestedTimeSeries, SubName: "year_month", SubTarget: NestedYearMonths}},
			{MetaKey: "registrants", Agg: "registrants", Shape: BucketShape{Kind: ShapeNestedTimeSeries, SubName: "year", SubTarget: NestedYears}},
		},
	}
}
