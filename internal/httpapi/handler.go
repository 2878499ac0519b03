package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/datacite/registry-search/internal/registry"
	"github.com/datacite/registry-search/internal/search"
	"github.com/datacite/registry-search/pkg/config"
	apperrors "github.com/datacite/registry-search/pkg/errors"
	"github.com/datacite/registry-search/pkg/metrics"
	"github.com/datacite/registry-search/pkg/resilience"
)

// EntityStore is the registry surface the handlers need.
type EntityStore interface {
	Create(ctx context.Context, e *registry.Entity) (*registry.Entity, error)
	Update(ctx context.Context, e *registry.Entity) (*registry.Entity, error)
	Delete(ctx context.Context, entityType, uid string) error
	Get(ctx context.Context, entityType, uid string) (*registry.Entity, error)
}

// ResponseCache is the read-through cache in front of the gateway.
// Implemented by search.QueryCache; a nil cache means direct execution.
type ResponseCache interface {
	GetOrCompute(ctx context.Context, req *search.Request, computeFn func() (*search.Response, error)) (*search.Response, bool, error)
}

// Handler serves the list and CRUD endpoints for every entity type.
type Handler struct {
	gateway search.Gateway
	store   EntityStore
	cache   ResponseCache
	configs map[string]*search.TypeConfig
	limits  search.PageLimits
	timeout time.Duration
	metrics *metrics.Metrics
}

func NewHandler(gateway search.Gateway, store EntityStore, cache ResponseCache, cfg config.SearchConfig, m *metrics.Metrics) *Handler {
	limits := search.DefaultPageLimits()
	if cfg.DefaultPageSize > 0 {
		limits.DefaultSize = cfg.DefaultPageSize
	}
	if cfg.MaxPageSize > 0 {
		limits.MaxSize = cfg.MaxPageSize
		limits.ScrollDefaultSize = cfg.MaxPageSize
	}
	if cfg.MaxResultWindow > 0 {
		limits.MaxWindow = cfg.MaxResultWindow
	}
	return &Handler{
		gateway: gateway,
		store:   store,
		cache:   cache,
		configs: search.Configs(),
		limits:  limits,
		timeout: cfg.RequestTimeout,
		metrics: m,
	}
}

// list serves GET /{type} with faceted search and all three pagination
// strategies.
func (h *Handler) list(cfg *search.TypeConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()

		page, err := search.ParsePage(search.PageParams{
			Number:        params.Get("page[number]"),
			Size:          params.Get("page[size]"),
			Cursor:        params.Get("page[cursor]"),
			CursorPresent: params.Has("page[cursor]"),
			ScrollID:      params.Get("scroll-id"),
			ScrollPresent: params.Has("page[scroll]") || params.Has("scroll-id"),
		}, h.limits)
		if err != nil {
			respondError(w, r, err)
			return
		}

		req := cfg.Build(params.Get("query"), params, params.Get("sort"), page)

		start := time.Now()
		resp, cached, err := h.execute(r.Context(), req)
		h.observeSearch(cfg.Type, resp, cached, err, time.Since(start))
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = apperrors.New(apperrors.ErrTimeout, http.StatusServiceUnavailable,
					"the search took too long, please try again")
			}
			respondError(w, r, err)
			return
		}

		result := search.Assemble(resp, cfg, page, search.LinkContext{
			BaseURL: baseURL(r),
			Path:    "/" + cfg.Type,
			Params:  params,
		})
		respondJSON(w, http.StatusOK, renderPage(cfg.Type, result, page))
	}
}

// execute runs the request through the cache when one is configured, with
// the per-request search timeout applied to the underlying engine call.
func (h *Handler) execute(ctx context.Context, req *search.Request) (*search.Response, bool, error) {
	compute := func() (*search.Response, error) {
		var resp *search.Response
		err := resilience.WithTimeout(ctx, h.timeout, "search", func(tctx context.Context) error {
			var err error
			resp, err = h.gateway.Search(tctx, req)
			return err
		})
		return resp, err
	}
	if h.cache == nil {
		resp, err := compute()
		return resp, false, err
	}
	return h.cache.GetOrCompute(ctx, req, compute)
}

func (h *Handler) observeSearch(entityType string, resp *search.Response, cached bool, err error, elapsed time.Duration) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case resp.Total == 0:
		outcome = "zero_result"
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(entityType, outcome).Inc()

	cacheStatus := "miss"
	if cached {
		cacheStatus = "hit"
		h.metrics.CacheHitsTotal.Inc()
	} else {
		h.metrics.CacheMissesTotal.Inc()
	}
	h.metrics.SearchLatency.WithLabelValues(entityType, cacheStatus).Observe(elapsed.Seconds())
	if err == nil {
		h.metrics.SearchResultsCount.WithLabelValues(entityType).Observe(float64(len(resp.Hits)))
	}
}

// show serves GET /{type}/{id}.
func (h *Handler) show(cfg *search.TypeConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := h.store.Get(r.Context(), cfg.Type, r.PathValue("id"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, document{Data: entityResource(e)})
	}
}

// create serves POST /{type}.
func (h *Handler) create(cfg *search.TypeConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := decodeBody(r)
		if err != nil {
			respondError(w, r, err)
			return
		}
		e, err := h.store.Create(r.Context(), &registry.Entity{
			Type:       cfg.Type,
			UID:        data.ID,
			Attributes: data.Attributes,
		})
		if err != nil {
			respondError(w, r, err)
			return
		}
		w.Header().Set("Location", "/"+cfg.Type+"/"+e.UID)
		respondJSON(w, http.StatusCreated, document{Data: entityResource(e)})
	}
}

// update serves PUT /{type}/{id}. The unique key is immutable: a body id
// that disagrees with the path is rejected, never applied.
func (h *Handler) update(cfg *search.TypeConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathID := registry.NormalizeKey(cfg.Type, r.PathValue("id"))
		data, err := decodeBody(r)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if data.ID != "" && registry.NormalizeKey(cfg.Type, data.ID) != pathID {
			respondError(w, r, apperrors.Newf(apperrors.ErrImmutableKey, http.StatusUnprocessableEntity,
				"uid cannot be changed from %q to %q", pathID, data.ID))
			return
		}
		e, err := h.store.Update(r.Context(), &registry.Entity{
			Type:       cfg.Type,
			UID:        pathID,
			Attributes: data.Attributes,
		})
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, document{Data: entityResource(e)})
	}
}

// del serves DELETE /{type}/{id}.
func (h *Handler) del(cfg *search.TypeConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.store.Delete(r.Context(), cfg.Type, r.PathValue("id")); err != nil {
			respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func decodeBody(r *http.Request) (*resource, error) {
	var body document
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil {
		return nil, apperrors.New(apperrors.ErrValidation, http.StatusBadRequest, "malformed JSON body")
	}
	raw, err := json.Marshal(body.Data)
	if err != nil || body.Data == nil {
		return nil, apperrors.New(apperrors.ErrValidation, http.StatusBadRequest, "missing data object")
	}
	var res resource
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, apperrors.New(apperrors.ErrValidation, http.StatusBadRequest, "malformed data object")
	}
	return &res, nil
}

// renderPage flattens the assembled result into the wire envelope. Scroll
// responses carry only the total and the continuation id in meta.
func renderPage(entityType string, result *search.PagedResult, page search.PageSpec) document {
	data := make([]resource, 0, len(result.Hits))
	for _, hit := range result.Hits {
		data = append(data, hitResource(hit))
	}

	meta := map[string]any{"total": result.Total}
	if page.Mode == search.PageScroll {
		meta["scroll-id"] = result.ScrollID
	} else {
		meta["totalPages"] = result.TotalPages
		if page.Mode == search.PageOffset {
			meta["page"] = result.Page
		}
		for _, nf := range result.Facets {
			meta[nf.Name] = nf.Facets
		}
	}

	links := map[string]any{"self": result.SelfLink}
	if result.NextLink != "" {
		links["next"] = result.NextLink
	}
	return document{Data: data, Meta: meta, Links: links}
}

// hitResource renders an index document. Single-valued fields flatten to a
// scalar, multi-valued ones stay lists.
func hitResource(hit search.Hit) resource {
	attrs := make(map[string]any, len(hit.Document.Fields)+2)
	for name, values := range hit.Document.Fields {
		if len(values) == 1 {
			attrs[name] = values[0]
		} else {
			attrs[name] = values
		}
	}
	attrs["created"] = hit.Document.Created.UTC().Format(time.RFC3339)
	attrs["updated"] = hit.Document.Updated.UTC().Format(time.RFC3339)
	return resource{
		ID:         hit.Document.UID,
		Type:       hit.Document.Type,
		Attributes: attrs,
	}
}

func entityResource(e *registry.Entity) resource {
	attrs := make(map[string]any, len(e.Attributes)+2)
	for name, value := range e.Attributes {
		attrs[name] = value
	}
	attrs["created"] = e.Created.UTC().Format(time.RFC3339)
	attrs["updated"] = e.Updated.UTC().Format(time.RFC3339)
	return resource{ID: e.UID, Type: e.Type, Attributes: attrs}
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
