package index

import (
	"strings"

	apperrors "github.com/datacite/registry-search/pkg/errors"
)

// queryPlan is a parsed free-text query: required terms, excluded terms, and
// the boolean mode combining the required ones.
type queryPlan struct {
	terms   []string
	exclude []string
	orMode  bool
	raw     string
}

// parseQuery validates and tokenizes a free-text query. Syntax errors carry
// a human-readable reason suitable for returning to the client verbatim;
// nothing engine-internal leaks through them.
func parseQuery(query string) (*queryPlan, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if strings.Count(query, `"`)%2 != 0 {
		return nil, apperrors.Newf(apperrors.ErrQuerySyntax, 400,
			"Failed to parse query [%s]: unbalanced quotes", query)
	}
	if strings.HasPrefix(query, "*") || strings.HasPrefix(query, "?") {
		return nil, apperrors.Newf(apperrors.ErrQuerySyntax, 400,
			"Failed to parse query [%s]: query must not start with a wildcard", query)
	}

	plan := &queryPlan{raw: query}
	excludeNext := false
	for _, word := range strings.Fields(strings.ReplaceAll(query, `"`, " ")) {
		switch strings.ToUpper(word) {
		case "AND":
			plan.orMode = false
			continue
		case "OR":
			plan.orMode = true
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		terms := tokenize(word)
		if len(terms) == 0 {
			continue
		}
		if excludeNext {
			plan.exclude = append(plan.exclude, terms...)
			excludeNext = false
		} else {
			plan.terms = append(plan.terms, terms...)
		}
	}
	if len(plan.terms) == 0 && len(plan.exclude) == 0 {
		return nil, nil
	}
	return plan, nil
}
