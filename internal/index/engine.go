// Package index implements the in-process search engine behind the
// search.Gateway interface: an inverted index with BM25 relevance, keyword
// filters, deterministic sorting with a unique-key tiebreaker, offset and
// search-after pagination, TTL-bound scroll contexts, and terms and
// date-histogram aggregations computed on the matched set.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/datacite/registry-search/internal/search"
)

// storedDoc is a document plus the term statistics derived at index time.
type storedDoc struct {
	doc    search.Document
	terms  map[string]int
	length int
}

// Engine is the in-memory search index. All reads of one request run under
// a single read lock, so total, hits, and aggregations always describe the
// same snapshot.
type Engine struct {
	mu       sync.RWMutex
	docs     map[string]map[string]*storedDoc
	postings map[string]map[string]map[string]int
	totalLen map[string]int
	scrolls  *scrollTable
	logger   *slog.Logger
}

// New creates an empty Engine whose scroll contexts expire after scrollTTL.
func New(scrollTTL time.Duration) *Engine {
	return &Engine{
		docs:     make(map[string]map[string]*storedDoc),
		postings: make(map[string]map[string]map[string]int),
		totalLen: make(map[string]int),
		scrolls:  newScrollTable(scrollTTL),
		logger:   slog.Default().With("component", "index-engine"),
	}
}

// IndexDocument stores doc with replace-by-key semantics: indexing the same
// UID twice leaves exactly one logical document.
func (e *Engine) IndexDocument(ctx context.Context, doc search.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(doc.Type, doc.UID)
	e.insertLocked(doc)
	return nil
}

// BulkIndex stores a batch of documents under one lock acquisition.
func (e *Engine) BulkIndex(ctx context.Context, docs []search.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, doc := range docs {
		e.removeLocked(doc.Type, doc.UID)
		e.insertLocked(doc)
	}
	return nil
}

// DeleteDocument removes the document with the given key. Deleting a key
// that is not indexed is a no-op, not an error.
func (e *Engine) DeleteDocument(ctx context.Context, entityType, uid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(entityType, uid)
	return nil
}

// GetDocument returns the indexed document for the key, if present.
func (e *Engine) GetDocument(ctx context.Context, entityType, uid string) (search.Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if sd, ok := e.docs[entityType][uid]; ok {
		return sd.doc, true
	}
	return search.Document{}, false
}

// DocCount returns the number of indexed documents for one entity type.
func (e *Engine) DocCount(entityType string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs[entityType])
}

// Search executes a structured request. See search.Gateway for the
// contract; notably the sort tuple of every hit ends with the document UID
// regardless of the primary sort, so cursor pagination never skips or
// duplicates rows on ties.
func (e *Engine) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	plan, err := parseQuery(req.Query)
	if err != nil {
		return nil, err
	}

	if req.Page.Mode == search.PageScroll && req.Page.ScrollID != "" {
		return e.continueScroll(req.Page.ScrollID, req.Page.Size)
	}
	e.scrolls.sweep()

	e.mu.RLock()
	defer e.mu.RUnlock()

	matched := e.matchLocked(req, plan)
	total := len(matched)

	resp := &search.Response{
		Total:        total,
		Aggregations: map[string][]search.Bucket{},
	}
	if req.Page.Mode != search.PageScroll {
		resp.Aggregations = e.aggregate(matched, req.Aggregations)
	}

	entries := e.sortLocked(matched, req.Sort, plan)

	switch req.Page.Mode {
	case search.PageCursor:
		entries = entriesAfter(entries, req.Page.Cursor, req.Sort)
		if req.Page.Size < len(entries) {
			entries = entries[:req.Page.Size]
		}
	case search.PageScroll:
		uids := make([]string, len(entries))
		for i, en := range entries {
			uids[i] = en.doc.doc.UID
		}
		if req.Page.Size < len(entries) {
			entries = entries[:req.Page.Size]
		}
		// The opening response already delivers the first batch; the
		// context starts past it so continuations never repeat it.
		resp.ScrollID = e.scrolls.open(req.Type, uids, len(entries))
	default:
		start := (req.Page.Number - 1) * req.Page.Size
		if start > len(entries) {
			start = len(entries)
		}
		end := start + req.Page.Size
		if end > len(entries) {
			end = len(entries)
		}
		entries = entries[start:end]
	}

	resp.Hits = make([]search.Hit, 0, len(entries))
	for _, en := range entries {
		resp.Hits = append(resp.Hits, search.Hit{
			Document: en.doc.doc,
			Score:    en.score,
			Sort:     []string{en.primary, en.doc.doc.UID},
		})
	}
	return resp, nil
}

// continueScroll resolves the next batch of an open scroll. Documents
// deleted since the snapshot was taken are skipped.
func (e *Engine) continueScroll(scrollID string, size int) (*search.Response, error) {
	uids, entityType, total, err := e.scrolls.next(scrollID, size)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	resp := &search.Response{
		Total:        total,
		ScrollID:     scrollID,
		Aggregations: map[string][]search.Bucket{},
	}
	docs := e.docs[entityType]
	for _, uid := range uids {
		if sd, ok := docs[uid]; ok {
			resp.Hits = append(resp.Hits, search.Hit{
				Document: sd.doc,
				Sort:     []string{uid},
			})
		}
	}
	return resp, nil
}

// matchLocked applies the free-text plan and keyword filters and returns
// the matched documents with their relevance scores.
func (e *Engine) matchLocked(req *search.Request, plan *queryPlan) []scored {
	docs := e.docs[req.Type]
	avgLen := 0.0
	if len(docs) > 0 {
		avgLen = float64(e.totalLen[req.Type]) / float64(len(docs))
	}

	matched := make([]scored, 0, len(docs))
	for _, sd := range docs {
		score, ok := e.scoreDoc(req.Type, sd, plan, avgLen)
		if !ok {
			continue
		}
		if !matchesFilters(sd.doc, req.Filters) {
			continue
		}
		matched = append(matched, scored{doc: sd, score: score})
	}
	return matched
}

type scored struct {
	doc     *storedDoc
	score   float64
	primary string
}

func (e *Engine) scoreDoc(entityType string, sd *storedDoc, plan *queryPlan, avgLen float64) (float64, bool) {
	if plan == nil {
		return 0, true
	}
	for _, term := range plan.exclude {
		if sd.terms[term] > 0 {
			return 0, false
		}
	}
	score := 0.0
	matchedAny := false
	for _, term := range plan.terms {
		freq := sd.terms[term]
		if freq == 0 {
			if !plan.orMode {
				return 0, false
			}
			continue
		}
		matchedAny = true
		df := len(e.postings[entityType][term])
		idf := computeIDF(len(e.docs[entityType]), df)
		score += idf * computeTFNorm(float64(freq), float64(sd.length), avgLen)
	}
	if len(plan.terms) > 0 && !matchedAny {
		return 0, false
	}
	return score, true
}

// matchesFilters requires every filtered field to hold at least one of the
// accepted values (OR within a field, AND across fields).
func matchesFilters(doc search.Document, filters map[string][]string) bool {
	for field, accepted := range filters {
		values := doc.Fields[field]
		found := false
		for _, v := range values {
			for _, a := range accepted {
				if strings.EqualFold(v, a) {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// sortLocked orders matched docs by the sort clause with the UID as the
// final tiebreaker, and materializes each entry's primary sort value.
func (e *Engine) sortLocked(matched []scored, clause search.SortClause, plan *queryPlan) []scored {
	for i := range matched {
		matched[i].primary = sortValue(matched[i], clause)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.primary != b.primary {
			if clause.Desc {
				return a.primary > b.primary
			}
			return a.primary < b.primary
		}
		return a.doc.doc.UID < b.doc.doc.UID
	})
	return matched
}

// sortValue renders the primary sort component as a string whose
// lexicographic order matches the field's natural order. Scores are
// zero-padded so string comparison equals numeric comparison.
func sortValue(en scored, clause search.SortClause) string {
	switch clause.Field {
	case "_score":
		return fmt.Sprintf("%016.6f", en.score)
	case "created":
		return en.doc.doc.Created.UTC().Format(time.RFC3339)
	case "updated":
		return en.doc.doc.Updated.UTC().Format(time.RFC3339)
	default:
		return en.doc.doc.Field(clause.Field)
	}
}

// entriesAfter drops every entry at or before the cursor tuple in the
// current ordering. An empty cursor keeps everything (first page).
func entriesAfter(entries []scored, cursor []string, clause search.SortClause) []scored {
	if len(cursor) == 0 {
		return entries
	}
	afterPrimary := cursor[0]
	afterUID := ""
	if len(cursor) > 1 {
		afterUID = cursor[1]
	}
	out := entries[:0]
	for _, en := range entries {
		if cmpEntry(en, afterPrimary, afterUID, clause.Desc) > 0 {
			out = append(out, en)
		}
	}
	return out
}

func cmpEntry(en scored, primary, uid string, desc bool) int {
	if en.primary != primary {
		less := en.primary < primary
		if desc {
			less = !less
		}
		if less {
			return -1
		}
		return 1
	}
	return strings.Compare(en.doc.doc.UID, uid)
}

func (e *Engine) insertLocked(doc search.Document) {
	terms := tokenize(doc.Text)
	termFreq := make(map[string]int, len(terms))
	for _, t := range terms {
		termFreq[t]++
	}
	sd := &storedDoc{doc: doc, terms: termFreq, length: len(terms)}

	if e.docs[doc.Type] == nil {
		e.docs[doc.Type] = make(map[string]*storedDoc)
	}
	e.docs[doc.Type][doc.UID] = sd
	e.totalLen[doc.Type] += sd.length

	if e.postings[doc.Type] == nil {
		e.postings[doc.Type] = make(map[string]map[string]int)
	}
	for term, freq := range termFreq {
		if e.postings[doc.Type][term] == nil {
			e.postings[doc.Type][term] = make(map[string]int)
		}
		e.postings[doc.Type][term][doc.UID] = freq
	}
}

func (e *Engine) removeLocked(entityType, uid string) {
	sd, ok := e.docs[entityType][uid]
	if !ok {
		return
	}
	delete(e.docs[entityType], uid)
	e.totalLen[entityType] -= sd.length
	for term := range sd.terms {
		delete(e.postings[entityType][term], uid)
		if len(e.postings[entityType][term]) == 0 {
			delete(e.postings[entityType], term)
		}
	}
}
