package query

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidex/oci/internal/cache"
	"github.com/omnidex/oci/internal/config"
	"github.com/omnidex/oci/internal/errors"
	"github.com/omnidex/oci/internal/indexing"
	"github.com/omnidex/oci/internal/state"
)

func indexedRepo(t *testing.T, files map[string]string) (*Engine, *state.State) {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfg := config.Default()
	cfg.Project.Root = root
	ix, err := indexing.New(cfg)
	require.NoError(t, err)

	st := state.New(root)
	_, err = ix.Update(context.Background(), st, indexing.OptionsFromConfig(cfg))
	require.NoError(t, err)
	return New(st), st
}

func TestSearchEmptyRepo(t *testing.T) {
	engine, _ := indexedRepo(t, map[string]string{"a.txt": "not source"})
	results, err := engine.Search("anything", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchFindsFunction(t *testing.T) {
	engine, _ := indexedRepo(t, map[string]string{
		"src/m.rs": "fn compute_total(items: &[u32]) -> u32 { items.iter().sum() }",
	})

	results, err := engine.Search("compute total", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "crate::m::compute_total", results[0].Symbol)
	assert.Equal(t, "src/m.rs", results[0].File)
	assert.Equal(t, 1, results[0].Line)
}

func TestSearchPathFilter(t *testing.T) {
	engine, _ := indexedRepo(t, map[string]string{
		"src/x.rs":   "fn token_handler() {}",
		"tests/y.rs": "fn token_checker() {}",
	})

	results, err := engine.Search("token -path:tests", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "src/x.rs", results[0].File)
}

func TestSearchInvalidQueries(t *testing.T) {
	engine, _ := indexedRepo(t, map[string]string{"src/m.rs": "fn f() {}"})

	_, err := engine.Search("", 10)
	assert.Equal(t, errors.CodeInvalidQuery, errors.CodeOf(err))

	_, err = engine.Search("path:src", 10)
	assert.Equal(t, errors.CodeInvalidQuery, errors.CodeOf(err))

	_, err = engine.Search("-negative", 10)
	assert.Equal(t, errors.CodeInvalidQuery, errors.CodeOf(err))
}

func TestSearchTopKBound(t *testing.T) {
	files := map[string]string{
		"src/a.rs": "fn widget_one() {}\nfn widget_two() {}\nfn widget_three() {}",
	}
	engine, _ := indexedRepo(t, files)

	results, err := engine.Search("widget", 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
}

func TestSearchResultsDeterministic(t *testing.T) {
	engine, _ := indexedRepo(t, map[string]string{
		"src/a.rs": "fn parse_alpha() {}",
		"src/b.rs": "fn parse_beta() {}",
	})

	first, err := engine.Search("parse", 10)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := engine.Search("parse", 10)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSearchPreview(t *testing.T) {
	engine, _ := indexedRepo(t, map[string]string{
		"src/m.rs": "fn preview_me() {\n    let x = 1;\n}",
	})

	results, err := engine.Search("preview", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "fn preview_me() {", results[0].Preview)
}

func TestSearchUsesBM25DiskCache(t *testing.T) {
	engine, st := indexedRepo(t, map[string]string{"src/m.rs": "fn cached_fn() {}"})

	_, err := engine.Search("cached", 5)
	require.NoError(t, err)
	_, statErr := os.Stat(cache.BM25Path(st.Root()))
	assert.NoError(t, statErr)

	// A second engine over the same root loads the cached index.
	engine2 := New(st)
	results, err := engine2.Search("cached", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestSymbolsLookup(t *testing.T) {
	engine, _ := indexedRepo(t, map[string]string{
		"src/a.rs": "fn shared() {}",
		"src/b.rs": "fn shared() {}",
	})

	simple := engine.Symbols("shared", false, false)
	assert.Len(t, simple, 2)

	scoped := engine.Symbols("crate::a::shared", true, false)
	require.Len(t, scoped, 1)
	assert.Equal(t, "src/a.rs", scoped[0].File)

	prefix := engine.Symbols("sha", false, true)
	assert.Len(t, prefix, 2)

	assert.Empty(t, engine.Symbols("absent", false, false))
}

func TestCallersAndCallees(t *testing.T) {
	engine, _ := indexedRepo(t, map[string]string{
		"src/a.rs": "fn f() { g(); }",
		"src/b.rs": "fn g() {}",
	})

	callers := engine.Callers("g")
	require.Len(t, callers, 1)
	assert.Equal(t, "crate::a::f", callers[0].Caller)
	assert.Equal(t, "src/a.rs", callers[0].File)

	callees := engine.Callees("crate::a::f")
	require.Len(t, callees, 1)
	assert.Equal(t, "g", callees[0].Callee)
	require.Len(t, callees[0].Candidates, 1)
	assert.Equal(t, "crate::b::g", callees[0].Candidates[0].Symbol)
}

func TestCalleesBySimpleName(t *testing.T) {
	engine, _ := indexedRepo(t, map[string]string{
		"src/a.rs": "fn f() { g(); }",
		"src/b.rs": "fn g() {}",
	})

	callees := engine.Callees("f")
	require.Len(t, callees, 1)
	assert.Equal(t, "g", callees[0].Callee)
}

func TestFold(t *testing.T) {
	engine, _ := indexedRepo(t, map[string]string{
		"src/m.rs": "pub struct S;\n\nimpl S {\n    pub fn m(&self) {}\n}\n\nfn free() {}",
	})

	entries, err := engine.Fold("src/m.rs")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	// Entries arrive in span order.
	for i := 1; i < len(entries); i++ {
		assert.GreaterOrEqual(t, entries[i].StartByte, entries[i-1].StartByte)
	}

	_, err = engine.Fold("src/missing.rs")
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}

func TestTopologyScores(t *testing.T) {
	engine, _ := indexedRepo(t, map[string]string{
		"src/a.rs": "use crate::b::T;\nfn f() {}",
		"src/b.rs": "pub struct T;",
	})

	entries := engine.Topology()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Greater(t, e.Score, 0.0)
	}

	scores := map[string]float64{}
	for _, e := range entries {
		scores[e.File] = e.Score
	}
	// b is imported by a and must score at least as high.
	assert.GreaterOrEqual(t, scores["src/b.rs"], scores["src/a.rs"])
}
