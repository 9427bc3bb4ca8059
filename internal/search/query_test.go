package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidex/oci/internal/errors"
)

func TestParseQueryTermsAndFilters(t *testing.T) {
	q, err := ParseQuery("token -noise path:src -path:tests ext:rs kind:function -kind:macro")
	require.NoError(t, err)

	assert.Equal(t, []string{"token"}, q.Terms)
	assert.Equal(t, []string{"noise"}, q.Negative)
	assert.Equal(t, []string{"src"}, q.Filters.IncludePaths)
	assert.Equal(t, []string{"tests"}, q.Filters.ExcludePaths)
	assert.Equal(t, []string{"rs"}, q.Filters.IncludeExts)
	assert.Equal(t, []string{"function"}, q.Filters.IncludeKinds)
	assert.Equal(t, []string{"macro"}, q.Filters.ExcludeKinds)
}

func TestParseQueryExtraFilters(t *testing.T) {
	q, err := ParseQuery("token", "path:src -ext:.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"src"}, q.Filters.IncludePaths)
	assert.Equal(t, []string{"md"}, q.Filters.ExcludeExts)
}

func TestParseQueryEmptyIsInvalid(t *testing.T) {
	_, err := ParseQuery("")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidQuery, errors.CodeOf(err))
}

func TestParseQueryOnlyFiltersIsInvalid(t *testing.T) {
	_, err := ParseQuery("path:src ext:rs")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidQuery, errors.CodeOf(err))
}

func TestParseQueryOnlyNegativesIsInvalid(t *testing.T) {
	_, err := ParseQuery("-foo -bar")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidQuery, errors.CodeOf(err))
}

func TestParseQueryUnknownKindIsInvalid(t *testing.T) {
	_, err := ParseQuery("token kind:gadget")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidQuery, errors.CodeOf(err))
}

func TestParseQueryShortTermsAreInvalid(t *testing.T) {
	// Single-character terms tokenize to nothing, leaving no positives.
	_, err := ParseQuery("a b")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidQuery, errors.CodeOf(err))
}

func TestFiltersMatch(t *testing.T) {
	doc := Doc{File: "src/query/engine.rs", Kind: "function"}

	f := Filters{IncludePaths: []string{"query"}}
	assert.True(t, f.Match(doc))

	f = Filters{ExcludePaths: []string{"query"}}
	assert.False(t, f.Match(doc))

	f = Filters{IncludeExts: []string{"rs"}}
	assert.True(t, f.Match(doc))

	f = Filters{ExcludeExts: []string{"rs"}}
	assert.False(t, f.Match(doc))

	f = Filters{IncludeKinds: []string{"struct"}}
	assert.False(t, f.Match(doc))
}
