// Package search defines the structured search request model shared by the
// query builders, the index gateway, and the result assembler: documents,
// pagination strategies, aggregation specs, and facet normalization.
package search

import (
	"context"
	"time"
)

// Document is the denormalized, index-resident projection of a registry
// entity. It is a pure function of the entity and its immediate parents at
// projection time.
type Document struct {
	// Type is the entity type (works, clients, providers, ...).
	Type string `json:"type"`
	// UID is the entity's stable unique key: DOI string, symbol, or UUID.
	// It never changes after creation.
	UID string `json:"uid"`
	// Fields holds keyword values used for filtering, sorting, and
	// aggregations. Multi-valued fields (software, certificate) carry more
	// than one entry.
	Fields map[string][]string `json:"fields"`
	// Text is the analyzed free-text blob built from names, titles, and
	// descriptions.
	Text string `json:"text"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
	// Version is the entity's optimistic-lock version at projection time,
	// used by the sync consumer to reject stale writes.
	Version int64 `json:"version"`
}

// Field returns the first value of a keyword field, or "".
func (d Document) Field(name string) string {
	if vs := d.Fields[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// SortClause names a document field and direction. The field "_score" sorts
// by relevance.
type SortClause struct {
	Field string
	Desc  bool
}

// AggregationSpec asks the engine for one aggregation alongside the query.
// Interval selects a date histogram ("year" or "month"); an empty Interval
// means a terms aggregation. Sub requests one nested aggregation computed
// per bucket.
type AggregationSpec struct {
	Name     string
	Field    string
	Size     int
	Interval string
	Sub      *AggregationSpec
}

// Request is a fully resolved structured search request for one entity type.
type Request struct {
	Type         string
	Query        string
	Filters      map[string][]string
	Sort         SortClause
	Page         PageSpec
	Aggregations []AggregationSpec
}

// Bucket is a raw aggregation bucket as returned by the engine. KeyAsString
// is set for date-histogram buckets. Sub holds nested buckets keyed by the
// sub-aggregation name.
type Bucket struct {
	Key         string              `json:"key"`
	KeyAsString string              `json:"key_as_string,omitempty"`
	DocCount    int                 `json:"doc_count"`
	Sub         map[string][]Bucket `json:"sub,omitempty"`
}

// Hit is one search result with the raw sort tuple the engine ordered it by.
// The tuple always ends with the document UID so callers can resume cursor
// pagination from it.
type Hit struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
	Sort     []string `json:"sort"`
}

// Response is the outcome of executing a Request: results, the total match
// count, and every requested aggregation, all computed from one snapshot.
type Response struct {
	Hits         []Hit               `json:"hits"`
	Total        int                 `json:"total"`
	Aggregations map[string][]Bucket `json:"aggregations"`
	ScrollID     string              `json:"scroll_id,omitempty"`
}

// Gateway executes structured requests against the search index and applies
// idempotent writes to it. Indexing the same document twice produces one
// logical document; deleting a missing key is a no-op.
type Gateway interface {
	Search(ctx context.Context, req *Request) (*Response, error)
	IndexDocument(ctx context.Context, doc Document) error
	BulkIndex(ctx context.Context, docs []Document) error
	DeleteDocument(ctx context.Context, entityType, uid string) error
	GetDocument(ctx context.Context, entityType, uid string) (Document, bool)
}
