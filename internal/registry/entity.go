// Package registry holds the system of record: typed entities with
// validation rules, their projection into search documents, and the
// PostgreSQL store that persists them together with the outbox rows the
// index sync relay drains.
package registry

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/datacite/registry-search/internal/search"
	apperrors "github.com/datacite/registry-search/pkg/errors"
)

// Entity is one registry record. Attributes carries the type-specific
// payload; parent names (provider_name, client_name) are denormalized onto
// children at write time so projections need no joins.
type Entity struct {
	Type       string         `json:"type"`
	UID        string         `json:"uid"`
	Attributes map[string]any `json:"attributes"`
	Version    int64          `json:"version"`
	Created    time.Time      `json:"created"`
	Updated    time.Time      `json:"updated"`
}

var (
	doiPattern            = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)
	prefixPattern         = regexp.MustCompile(`^10\.\d{4,9}$`)
	providerSymbolPattern = regexp.MustCompile(`^[A-Z]{2,8}$`)
	clientSymbolPattern   = regexp.MustCompile(`^[A-Z]{2,8}\.[A-Z0-9]{2,8}(-[A-Z0-9]+)?$`)
)

var clientTypes = map[string]bool{
	"repository": true,
	"periodical": true,
}

// Attr returns a string attribute, or "" when absent or not a string.
func (e *Entity) Attr(name string) string {
	if v, ok := e.Attributes[name].(string); ok {
		return v
	}
	return ""
}

// AttrList returns a multi-valued attribute. A plain string counts as a
// one-element list; JSON arrays keep their string members.
func (e *Entity) AttrList(name string) []string {
	switch v := e.Attributes[name].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// AttrInt returns a numeric attribute, tolerating both JSON numbers and
// numeric strings. Returns 0 when absent or unparseable.
func (e *Entity) AttrInt(name string) int {
	switch v := e.Attributes[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

// Validate checks the entity against its type's rules and returns a
// ValidationError listing every failed field, or nil.
func (e *Entity) Validate() error {
	var fields []apperrors.FieldError
	add := func(field, format string, args ...any) {
		fields = append(fields, apperrors.FieldError{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
		})
	}

	if e.UID == "" {
		add("uid", "can't be blank")
	}

	switch e.Type {
	case search.TypeWorks:
		if e.UID != "" && !doiPattern.MatchString(strings.ToLower(e.UID)) {
			add("uid", "%q is not a valid DOI", e.UID)
		}
		if e.Attr("client_id") == "" {
			add("client_id", "can't be blank")
		}
		if year := e.AttrInt("publication_year"); year != 0 && (year < 1000 || year > time.Now().Year()+1) {
			add("publication_year", "%d is out of range", year)
		}
	case search.TypeClients:
		if e.UID != "" && !clientSymbolPattern.MatchString(e.UID) {
			add("uid", "%q is not a valid client symbol", e.UID)
		}
		if e.Attr("name") == "" {
			add("name", "can't be blank")
		}
		if e.Attr("provider_id") == "" {
			add("provider_id", "can't be blank")
		}
		if ct := e.Attr("client_type"); ct != "" && !clientTypes[ct] {
			add("client_type", "%q is not a valid client type", ct)
		}
	case search.TypeProviders:
		if e.UID != "" && !providerSymbolPattern.MatchString(e.UID) {
			add("uid", "%q is not a valid provider symbol", e.UID)
		}
		if e.Attr("name") == "" {
			add("name", "can't be blank")
		}
		if region := e.Attr("region"); region != "" {
			if _, ok := search.Regions[region]; !ok {
				add("region", "%q is not a valid region", region)
			}
		}
	case search.TypePrefixes:
		if e.UID != "" && !prefixPattern.MatchString(e.UID) {
			add("uid", "%q is not a valid prefix", e.UID)
		}
	case search.TypeClientPrefixes:
		if e.Attr("client_id") == "" {
			add("client_id", "can't be blank")
		}
		if e.Attr("prefix_id") == "" {
			add("prefix_id", "can't be blank")
		}
	case search.TypeProviderPrefixes:
		if e.Attr("provider_id") == "" {
			add("provider_id", "can't be blank")
		}
		if e.Attr("prefix_id") == "" {
			add("prefix_id", "can't be blank")
		}
	case search.TypeEvents:
		if e.Attr("subj_id") == "" {
			add("subj_id", "can't be blank")
		}
		if e.Attr("source_id") == "" {
			add("source_id", "can't be blank")
		}
		if e.Attr("relation_type_id") == "" {
			add("relation_type_id", "can't be blank")
		}
	default:
		add("type", "%q is not a registered entity type", e.Type)
	}

	if len(fields) > 0 {
		return apperrors.Validation(fields...)
	}
	return nil
}

// NormalizeKey canonicalizes the unique key for storage and lookup: DOIs
// and prefixes are lowercase, symbols uppercase, UUID-keyed types as given.
func NormalizeKey(entityType, uid string) string {
	switch entityType {
	case search.TypeWorks, search.TypePrefixes:
		return strings.ToLower(uid)
	case search.TypeClients, search.TypeProviders:
		return strings.ToUpper(uid)
	default:
		return uid
	}
}
