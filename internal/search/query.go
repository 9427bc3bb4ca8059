package search

import (
	"strings"

	"github.com/omnidex/oci/internal/errors"
	"github.com/omnidex/oci/internal/types"
)

// Filters are the inline key:value post-conditions of a query.
// Supported keys: path (substring of the relative path), ext (file
// extension), kind (symbol kind); each negatable with a leading dash.
type Filters struct {
	IncludePaths []string
	ExcludePaths []string
	IncludeExts  []string
	ExcludeExts  []string
	IncludeKinds []string
	ExcludeKinds []string
}

// Match applies the filters to one document.
func (f *Filters) Match(doc Doc) bool {
	if len(f.IncludePaths) > 0 {
		ok := false
		for _, p := range f.IncludePaths {
			if strings.Contains(doc.File, p) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, p := range f.ExcludePaths {
		if strings.Contains(doc.File, p) {
			return false
		}
	}

	ext := ExtOf(doc.File)
	if len(f.IncludeExts) > 0 && !containsString(f.IncludeExts, ext) {
		return false
	}
	if containsString(f.ExcludeExts, ext) {
		return false
	}

	if len(f.IncludeKinds) > 0 && !containsString(f.IncludeKinds, doc.Kind) {
		return false
	}
	if containsString(f.ExcludeKinds, doc.Kind) {
		return false
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, cand := range list {
		if cand == s {
			return true
		}
	}
	return false
}

// Query is the parsed form of a search request.
type Query struct {
	// Terms are the raw positive terms (not yet tokenized).
	Terms []string
	// Negative are the raw -term exclusions.
	Negative []string
	Filters  Filters
}

// PositiveTokens tokenizes the positive terms the same way documents
// are tokenized.
func (q *Query) PositiveTokens() []string {
	var out []string
	for _, t := range q.Terms {
		out = append(out, Tokenize(t)...)
	}
	return out
}

// NegativeTokens tokenizes the negative terms.
func (q *Query) NegativeTokens() []string {
	var out []string
	for _, t := range q.Negative {
		out = append(out, Tokenize(t)...)
	}
	return out
}

// ParseQuery splits a raw query string (plus optional extra filter
// tokens) into positive terms, -term negatives, and key:value filters.
// A query with no positive terms is invalid: filters and negatives
// only constrain, they cannot seed a result set. Unknown kind: values
// are also invalid rather than silently matching nothing.
func ParseQuery(raw string, extra ...string) (Query, error) {
	var q Query
	var badKind string

	handle := func(token string) {
		token = strings.TrimSpace(token)
		if token == "" {
			return
		}
		negated := false
		if strings.HasPrefix(token, "-") && len(token) > 1 {
			negated = true
			token = token[1:]
		}
		if value, ok := strings.CutPrefix(token, "path:"); ok {
			if negated {
				q.Filters.ExcludePaths = append(q.Filters.ExcludePaths, value)
			} else {
				q.Filters.IncludePaths = append(q.Filters.IncludePaths, value)
			}
			return
		}
		if value, ok := strings.CutPrefix(token, "ext:"); ok {
			value = strings.ToLower(strings.TrimPrefix(value, "."))
			if negated {
				q.Filters.ExcludeExts = append(q.Filters.ExcludeExts, value)
			} else {
				q.Filters.IncludeExts = append(q.Filters.IncludeExts, value)
			}
			return
		}
		if value, ok := strings.CutPrefix(token, "kind:"); ok {
			value = strings.ToLower(value)
			if _, known := types.ParseSymbolKind(value); !known {
				badKind = value
				return
			}
			if negated {
				q.Filters.ExcludeKinds = append(q.Filters.ExcludeKinds, value)
			} else {
				q.Filters.IncludeKinds = append(q.Filters.IncludeKinds, value)
			}
			return
		}
		if negated {
			q.Negative = append(q.Negative, token)
			return
		}
		q.Terms = append(q.Terms, token)
	}

	for _, token := range strings.Fields(raw) {
		handle(token)
	}
	for _, chunk := range extra {
		for _, token := range strings.Fields(chunk) {
			handle(token)
		}
	}

	if badKind != "" {
		return Query{}, errors.InvalidQuery("unknown symbol kind %q in filter", badKind)
	}
	if len(q.PositiveTokens()) == 0 {
		return Query{}, errors.InvalidQuery("query must include at least one search term")
	}
	return q, nil
}
