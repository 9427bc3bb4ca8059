package indexing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidex/oci/internal/cache"
	"github.com/omnidex/oci/internal/config"
	"github.com/omnidex/oci/internal/state"
)

func testConfig(root string) *config.Config {
	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Project.Name = filepath.Base(root)
	return cfg
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestIndexer(t *testing.T, root string) (*Indexer, *state.State) {
	t.Helper()
	ix, err := New(testConfig(root))
	require.NoError(t, err)
	return ix, state.New(root)
}

func TestIndexEmptyRepo(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "not source")

	ix, st := newTestIndexer(t, root)
	report, err := ix.Update(context.Background(), st, OptionsFromConfig(ix.cfg))
	require.NoError(t, err)

	assert.Equal(t, 0, report.TotalFiles)
	assert.Equal(t, 0, report.Symbols)
}

func TestIndexSingleFunction(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/m.rs", "fn compute_total(items: &[u32]) -> u32 { items.iter().sum() }")

	ix, st := newTestIndexer(t, root)
	_, err := ix.Update(context.Background(), st, OptionsFromConfig(ix.cfg))
	require.NoError(t, err)

	byName := st.FindByName("compute_total")
	require.Len(t, byName, 1)
	assert.Equal(t, 1, byName[0].Location.StartLine)
	assert.Equal(t, "src/m.rs", byName[0].Location.FilePath)

	_, ok := st.FindByScopedName("crate::m::compute_total")
	assert.True(t, ok)
}

func TestCallerCalleeAcrossFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.rs", "fn f() { g(); }")
	writeFile(t, root, "src/b.rs", "fn g() {}")

	ix, st := newTestIndexer(t, root)
	_, err := ix.Update(context.Background(), st, OptionsFromConfig(ix.cfg))
	require.NoError(t, err)

	callers := st.FindCallers("g")
	require.Len(t, callers, 1)
	assert.Equal(t, "crate::a::f", st.Interner().Resolve(callers[0].CallerScoped))

	callees := st.FindCallees("crate::a::f")
	require.Len(t, callees, 1)
	assert.Equal(t, "g", st.Interner().Resolve(callees[0].CalleeName))
}

func TestIncrementalSkipsUnchanged(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/m.rs", "fn stable() {}")

	ix, st := newTestIndexer(t, root)
	first, err := ix.Update(context.Background(), st, OptionsFromConfig(ix.cfg))
	require.NoError(t, err)
	assert.Equal(t, 1, first.FilesReparsed)

	second, err := ix.Update(context.Background(), st, OptionsFromConfig(ix.cfg))
	require.NoError(t, err)
	assert.Equal(t, 0, second.FilesReparsed)
	assert.Equal(t, 1, second.FilesSkipped)
	assert.Equal(t, first.Symbols, second.Symbols)
}

func TestIncrementalSkipsAcrossProcesses(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/m.rs", "fn persisted() {}")

	ix, st := newTestIndexer(t, root)
	_, err := ix.Update(context.Background(), st, OptionsFromConfig(ix.cfg))
	require.NoError(t, err)

	// A fresh indexer + state simulates a new process run: the state
	// warms from the snapshot and nothing reparses.
	ix2, st2 := newTestIndexer(t, root)
	report, err := ix2.Update(context.Background(), st2, OptionsFromConfig(ix2.cfg))
	require.NoError(t, err)
	assert.Equal(t, 0, report.FilesReparsed)

	_, ok := st2.FindByScopedName("crate::m::persisted")
	assert.True(t, ok)
}

func TestModifiedFileIsReparsed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/m.rs", "fn before() {}")

	ix, st := newTestIndexer(t, root)
	_, err := ix.Update(context.Background(), st, OptionsFromConfig(ix.cfg))
	require.NoError(t, err)

	// Rewrite with different content; bump mtime to defeat the
	// (size, mtime) prefilter on filesystems with coarse timestamps.
	writeFile(t, root, "src/m.rs", "fn after__() {}")
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(root, "src", "m.rs"), future, future))

	report, err := ix.Update(context.Background(), st, OptionsFromConfig(ix.cfg))
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesReparsed)

	assert.Empty(t, st.FindByName("before"))
	assert.Len(t, st.FindByName("after__"), 1)
}

func TestDeletionRemovesRecords(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.rs", "fn f() { g(); }")
	writeFile(t, root, "src/b.rs", "fn g() {}")

	ix, st := newTestIndexer(t, root)
	_, err := ix.Update(context.Background(), st, OptionsFromConfig(ix.cfg))
	require.NoError(t, err)
	require.Len(t, st.FindByName("g"), 1)

	require.NoError(t, os.Remove(filepath.Join(root, "src", "b.rs")))
	report, err := ix.Update(context.Background(), st, OptionsFromConfig(ix.cfg))
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesRemoved)

	assert.Empty(t, st.FindByName("g"))

	manifest, err := cache.LoadManifest(root)
	require.NoError(t, err)
	_, present := manifest.Fingerprints["src/b.rs"]
	assert.False(t, present)
}

func TestForceReparsesEverything(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/m.rs", "fn f() {}")

	ix, st := newTestIndexer(t, root)
	_, err := ix.Update(context.Background(), st, OptionsFromConfig(ix.cfg))
	require.NoError(t, err)

	opts := OptionsFromConfig(ix.cfg)
	opts.Force = true
	report, err := ix.Update(context.Background(), st, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesReparsed)
}

func TestIncrementalEquivalence(t *testing.T) {
	// index(R); apply(E); update() must equal index(R after E) fresh.
	root := t.TempDir()
	writeFile(t, root, "src/a.rs", "fn f() { g(); }")
	writeFile(t, root, "src/b.rs", "fn g() {}")

	ix, st := newTestIndexer(t, root)
	_, err := ix.Update(context.Background(), st, OptionsFromConfig(ix.cfg))
	require.NoError(t, err)

	writeFile(t, root, "src/b.rs", "fn g() {}\nfn h() { g(); }")
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(root, "src", "b.rs"), future, future))
	writeFile(t, root, "src/c.rs", "fn extra() {}")
	_, err = ix.Update(context.Background(), st, OptionsFromConfig(ix.cfg))
	require.NoError(t, err)

	freshRoot := t.TempDir()
	writeFile(t, freshRoot, "src/a.rs", "fn f() { g(); }")
	writeFile(t, freshRoot, "src/b.rs", "fn g() {}\nfn h() { g(); }")
	writeFile(t, freshRoot, "src/c.rs", "fn extra() {}")
	ixFresh, stFresh := newTestIndexer(t, freshRoot)
	_, err = ixFresh.Update(context.Background(), stFresh, OptionsFromConfig(ixFresh.cfg))
	require.NoError(t, err)

	incSnap := st.Snapshot()
	freshSnap := stFresh.Snapshot()
	assert.Equal(t, freshSnap.Symbols, incSnap.Symbols)
	assert.Equal(t, freshSnap.CallEdges, incSnap.CallEdges)
}

func TestUpdateFileTargeted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/m.rs", "fn one() {}")

	ix, st := newTestIndexer(t, root)
	_, err := ix.Update(context.Background(), st, OptionsFromConfig(ix.cfg))
	require.NoError(t, err)

	writeFile(t, root, "src/m.rs", "fn one() {}\nfn two() {}")
	require.NoError(t, ix.UpdateFile(context.Background(), st, "src/m.rs"))

	assert.Len(t, st.FindByName("two"), 1)
}

func TestRemoveFileTargeted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/m.rs", "fn gone() {}")

	ix, st := newTestIndexer(t, root)
	_, err := ix.Update(context.Background(), st, OptionsFromConfig(ix.cfg))
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "src", "m.rs")))
	require.NoError(t, ix.RemoveFile(st, "src/m.rs"))
	assert.Empty(t, st.FindByName("gone"))
}

func TestCancelledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/m.rs", "fn f() {}")

	ix, st := newTestIndexer(t, root)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ix.Update(ctx, st, OptionsFromConfig(ix.cfg))
	require.Error(t, err)
}

func TestTopologyImportEdges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.rs", "use crate::b::Thing;\nfn f() {}")
	writeFile(t, root, "src/b.rs", "pub struct Thing;")

	ix, st := newTestIndexer(t, root)
	_, err := ix.Update(context.Background(), st, OptionsFromConfig(ix.cfg))
	require.NoError(t, err)

	g := st.Topology()
	aIdx, ok := g.NodeByPath("src/a.rs")
	require.True(t, ok)

	found := false
	for _, edge := range g.OutEdges(aIdx) {
		if node, ok := g.Node(edge.To); ok && node.Path == "src/b.rs" {
			found = true
		}
	}
	assert.True(t, found, "expected an import edge src/a.rs -> src/b.rs")
}

func TestManifestWrittenAtomically(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/m.rs", "fn f() {}")

	ix, st := newTestIndexer(t, root)
	_, err := ix.Update(context.Background(), st, OptionsFromConfig(ix.cfg))
	require.NoError(t, err)

	manifest, err := cache.LoadManifest(root)
	require.NoError(t, err)
	require.NotNil(t, manifest)
	assert.Contains(t, manifest.Fingerprints, "src/m.rs")
	assert.NotZero(t, manifest.Fingerprints["src/m.rs"].ContentHash)

	// No temp files left behind in the cache directory.
	entries, err := os.ReadDir(cache.Dir(root))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}
