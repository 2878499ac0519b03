package search

import (
	"net/url"
	"sort"
	"strings"
)

// FacetSpec binds one aggregation to the meta key it renders under and the
// shape of its buckets.
type FacetSpec struct {
	MetaKey string
	Agg     string
	Shape   BucketShape
}

// TypeConfig is the immutable per-entity-type search configuration: which
// filter parameters are recognized, which sort keys resolve to which fields,
// and the fixed aggregation set attached to every list query. Configs are
// built once at startup and injected into the handlers; nothing is
// discovered at runtime.
type TypeConfig struct {
	// Type is the entity type and the URL path segment (works, clients, ...).
	Type string
	// DefaultSort applies when the sort parameter is absent or unrecognized.
	DefaultSort SortClause
	// Sorts maps the public sort keys (name, -name, created, ...) to
	// field+direction pairs.
	Sorts map[string]SortClause
	// Filters is the allow-list mapping query parameters to document fields.
	// Parameters outside this list are ignored, not rejected.
	Filters map[string]string
	// Aggregations is the fixed aggregation set for this type, attached to
	// every list query so facets never need a second round trip.
	Aggregations []AggregationSpec
	// Facets describes how each aggregation renders into response meta.
	Facets []FacetSpec
}

// Build resolves raw request parameters into a structured search request.
// Unrecognized sort keys fall back to the type default; unrecognized filter
// parameters are dropped. Filter values may be comma-separated lists, which
// combine as OR within the field.
func (c *TypeConfig) Build(query string, params url.Values, sortKey string, page PageSpec) *Request {
	sortClause, ok := c.Sorts[sortKey]
	if !ok {
		sortClause = c.DefaultSort
	}

	filters := make(map[string][]string)
	// Deterministic param order keeps cache keys stable.
	names := make([]string, 0, len(c.Filters))
	for name := range c.Filters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		field := c.Filters[name]
		for _, raw := range params[name] {
			for _, v := range strings.Split(raw, ",") {
				v = strings.TrimSpace(v)
				if v != "" {
					filters[field] = append(filters[field], v)
				}
			}
		}
	}

	return &Request{
		Type:         c.Type,
		Query:        strings.TrimSpace(query),
		Filters:      filters,
		Sort:         sortClause,
		Page:         page,
		Aggregations: c.Aggregations,
	}
}
