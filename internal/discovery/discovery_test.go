package discovery

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func relPaths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func TestDiscoverFiltersByExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.rs", "fn a() {}")
	writeFile(t, root, "notes.txt", "not source")

	files, err := Discover(root, Options{Extensions: []string{"rs"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.rs"}, relPaths(files))
}

func TestDiscoverSortedAndStable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/z.rs", "")
	writeFile(t, root, "src/a.rs", "")
	writeFile(t, root, "lib/m.rs", "")

	first, err := Discover(root, Options{Extensions: []string{"rs"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/m.rs", "src/a.rs", "src/z.rs"}, relPaths(first))

	for i := 0; i < 3; i++ {
		again, err := Discover(root, Options{Extensions: []string{"rs"}})
		require.NoError(t, err)
		assert.Equal(t, relPaths(first), relPaths(again))
	}
}

func TestDefaultExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.rs", "")
	writeFile(t, root, "target/debug/gen.rs", "")
	writeFile(t, root, "node_modules/pkg/x.rs", "")
	writeFile(t, root, "vendor/dep/y.rs", "")

	files, err := Discover(root, Options{Extensions: []string{"rs"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.rs"}, relPaths(files))
}

func TestNoDefaultExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.rs", "")
	writeFile(t, root, "target/debug/gen.rs", "")

	files, err := Discover(root, Options{Extensions: []string{"rs"}, NoDefaultExcludes: true})
	require.NoError(t, err)
	assert.Contains(t, relPaths(files), "target/debug/gen.rs")
}

func TestIncludeOverridesExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "vendor/special/keep.rs", "")
	writeFile(t, root, "vendor/other/drop.rs", "")

	files, err := Discover(root, Options{
		Extensions: []string{"rs"},
		Include:    []string{"vendor/special/**"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"vendor/special/keep.rs"}, relPaths(files))
}

func TestUserExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.rs", "")
	writeFile(t, root, "src/generated.rs", "")

	files, err := Discover(root, Options{
		Extensions: []string{"rs"},
		Exclude:    []string{"**/generated.rs"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.rs"}, relPaths(files))
}

func TestHiddenFilesSkippedByDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.rs", "")
	writeFile(t, root, ".hidden/b.rs", "")
	writeFile(t, root, "src/.dot.rs", "")

	files, err := Discover(root, Options{Extensions: []string{"rs"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.rs"}, relPaths(files))

	withHidden, err := Discover(root, Options{Extensions: []string{"rs"}, IncludeHidden: true})
	require.NoError(t, err)
	assert.Contains(t, relPaths(withHidden), ".hidden/b.rs")
	assert.Contains(t, relPaths(withHidden), "src/.dot.rs")
}

func TestMaxFileSizeCap(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/small.rs", "fn s() {}")
	writeFile(t, root, "src/big.rs", strings.Repeat("x", 2048))

	files, err := Discover(root, Options{Extensions: []string{"rs"}, MaxFileSize: 1024})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/small.rs"}, relPaths(files))

	all, err := Discover(root, Options{Extensions: []string{"rs"}, MaxFileSize: 1024, IncludeLarge: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGitignoreRespected(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "ignored.rs\nsub/deep/\n")
	writeFile(t, root, "src/kept.rs", "")
	writeFile(t, root, "src/ignored.rs", "")
	writeFile(t, root, "sub/deep/gone.rs", "")

	files, err := Discover(root, Options{Extensions: []string{"rs"}, RespectGitignore: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/kept.rs"}, relPaths(files))
}

func TestHierarchicalGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sub/.gitignore", "local.rs\n")
	writeFile(t, root, "sub/local.rs", "")
	writeFile(t, root, "sub/kept.rs", "")
	writeFile(t, root, "local.rs", "")

	files, err := Discover(root, Options{Extensions: []string{"rs"}, RespectGitignore: true})
	require.NoError(t, err)
	// The nested ignore applies only beneath its own directory.
	assert.Equal(t, []string{"local.rs", "sub/kept.rs"}, relPaths(files))
}

func TestExcludeIdempotence(t *testing.T) {
	// Discovery output is unchanged whether an excluded path is
	// present or absent on disk.
	rootWith := t.TempDir()
	writeFile(t, rootWith, "src/a.rs", "")
	writeFile(t, rootWith, "target/junk.rs", "")

	rootWithout := t.TempDir()
	writeFile(t, rootWithout, "src/a.rs", "")

	withFiles, err := Discover(rootWith, Options{Extensions: []string{"rs"}})
	require.NoError(t, err)
	withoutFiles, err := Discover(rootWithout, Options{Extensions: []string{"rs"}})
	require.NoError(t, err)
	assert.Equal(t, relPaths(withoutFiles), relPaths(withFiles))
}

func TestMissingRoot(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"), Options{})
	assert.Error(t, err)
}
