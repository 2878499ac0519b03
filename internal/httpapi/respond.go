// Package httpapi exposes the registry over HTTP: one faceted, paginated
// list endpoint per entity type plus CRUD on individual records, rendered in
// a JSON:API-style envelope.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/datacite/registry-search/pkg/logger"

	apperrors "github.com/datacite/registry-search/pkg/errors"
)

// resource is the wire form of one record: JSON:API-style id/type/attributes.
type resource struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes"`
}

type document struct {
	Data  any            `json:"data"`
	Meta  map[string]any `json:"meta,omitempty"`
	Links map[string]any `json:"links,omitempty"`
}

type apiError struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Source string `json:"source,omitempty"`
}

type errorDocument struct {
	Errors []apiError `json:"errors"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			slog.Error("encoding response failed", "error", err)
		}
	}
}

// respondError translates the error taxonomy into a JSON:API errors array.
// Validation failures list one error per field; everything else renders a
// single title. Internal errors never leak their message to the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)

	var verr *apperrors.ValidationError
	if errors.As(err, &verr) {
		out := make([]apiError, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			out = append(out, apiError{
				Status: strconv.Itoa(status),
				Title:  f.Message,
				Source: f.Field,
			})
		}
		respondJSON(w, status, errorDocument{Errors: out})
		return
	}

	title := http.StatusText(status)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && status < http.StatusInternalServerError {
		title = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondJSON(w, status, errorDocument{Errors: []apiError{{
		Status: strconv.Itoa(status),
		Title:  title,
	}}})
}
