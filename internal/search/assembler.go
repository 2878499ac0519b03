package search

import (
	"net/url"
	"strconv"
)

// NamedFacets is one facet list with the meta key it renders under. Order
// follows the type config, so responses are stable.
type NamedFacets struct {
	Name   string
	Facets []Facet
}

// PagedResult is the assembled paged-collection contract handed to the
// response serializer: items, consistent totals, facets, and links.
type PagedResult struct {
	Hits       []Hit
	Total      int
	TotalPages int
	// Page is the current offset page number, 0 in cursor and scroll modes.
	Page     int
	Facets   []NamedFacets
	ScrollID string
	SelfLink string
	NextLink string
}

// LinkContext carries what Assemble needs to rebuild request URLs.
type LinkContext struct {
	// BaseURL is scheme://host, no trailing slash.
	BaseURL string
	// Path is the request path, e.g. "/clients".
	Path string
	// Params are the original query parameters of the request.
	Params url.Values
}

// Assemble combines a raw engine response with the pagination strategy and
// facet configuration into the final paged result.
//
// The total is read once and drives both totalPages and the next-link
// decision. Facets are computed only when the total is positive; a zero
// total yields no facet entries at all rather than empty lists. The next
// link preserves every original parameter, advancing only the pagination
// component, and is empty exactly when the current page is the last one.
func Assemble(resp *Response, cfg *TypeConfig, page PageSpec, link LinkContext) *PagedResult {
	total := resp.Total

	result := &PagedResult{
		Hits:     resp.Hits,
		Total:    total,
		ScrollID: resp.ScrollID,
		SelfLink: buildLink(link.BaseURL, link.Path, link.Params),
	}

	if page.Size > 0 {
		result.TotalPages = (total + page.Size - 1) / page.Size
	}
	if page.Mode == PageOffset {
		result.Page = page.Number
	}

	// Scroll responses are bulk-export pages and carry no facets.
	if total > 0 && page.Mode != PageScroll {
		result.Facets = make([]NamedFacets, 0, len(cfg.Facets))
		for _, spec := range cfg.Facets {
			result.Facets = append(result.Facets, NamedFacets{
				Name:   spec.MetaKey,
				Facets: Normalize(resp.Aggregations[spec.Agg], spec.Shape),
			})
		}
	}

	result.NextLink = nextLink(resp, page, link)
	return result
}

// nextLink builds the link to the following page, or "" when exhausted. A
// page shorter than the requested size signals exhaustion in every mode;
// for scroll this holds even while the underlying context is still open.
func nextLink(resp *Response, page PageSpec, link LinkContext) string {
	if page.Size == 0 || len(resp.Hits) < page.Size {
		return ""
	}

	params := cloneNonBlank(link.Params)
	params.Del("page[number]")
	params.Del("page[size]")
	params.Del("page[cursor]")
	params.Del("page[scroll]")
	params.Del("scroll-id")

	switch page.Mode {
	case PageCursor:
		last := resp.Hits[len(resp.Hits)-1]
		params.Set("page[cursor]", EncodeCursor(last.Sort))
	case PageScroll:
		if resp.ScrollID == "" {
			return ""
		}
		params.Set("page[scroll]", "true")
		params.Set("scroll-id", resp.ScrollID)
	default:
		// Past the window ceiling the next number would only clamp back to
		// this same page, so the link chain ends here.
		if page.MaxNumber > 0 && page.Number >= page.MaxNumber {
			return ""
		}
		params.Set("page[number]", strconv.Itoa(page.Number+1))
	}
	params.Set("page[size]", strconv.Itoa(page.Size))

	return buildLink(link.BaseURL, link.Path, params)
}

// cloneNonBlank copies params, dropping blank values so they are not emitted
// as empty parameters in links.
func cloneNonBlank(params url.Values) url.Values {
	out := make(url.Values, len(params))
	for name, values := range params {
		for _, v := range values {
			if v != "" {
				out.Add(name, v)
			}
		}
	}
	return out
}

func buildLink(base, path string, params url.Values) string {
	if len(params) == 0 {
		return base + path
	}
	return base + path + "?" + params.Encode()
}
