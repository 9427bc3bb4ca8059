package indexing

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/omnidex/oci/internal/state"
	"github.com/omnidex/oci/internal/topology"
	"github.com/omnidex/oci/internal/types"
)

// The topology graph gets one Crate root, one Module node per
// directory on the path to a file, and one File node per source file.
// Contains edges form a tree; Imports edges are rebuilt per file when
// it is reparsed.

// crateRootPath is the reserved path key of the crate node. Real file
// paths are always non-empty relative paths, so this cannot collide.
const crateRootPath = ""

func ensureCrateRoot(st *state.State) topology.NodeIndex {
	g := st.Topology()
	if idx, ok := g.NodeByPath(crateRootPath); ok {
		return idx
	}
	return g.AddNode(topology.Node{
		Kind: topology.NodeCrate,
		Name: filepath.Base(st.Root()),
		Path: crateRootPath,
	})
}

// ensureFileNode creates the file node and its Contains chain of
// module nodes derived from directory structure.
func ensureFileNode(st *state.State, relPath string) topology.NodeIndex {
	g := st.Topology()
	if idx, ok := g.NodeByPath(relPath); ok {
		return idx
	}

	parent := ensureCrateRoot(st)
	dir := path.Dir(relPath)
	if dir != "." {
		segments := strings.Split(dir, "/")
		for i := range segments {
			modPath := strings.Join(segments[:i+1], "/")
			idx, ok := g.NodeByPath(modPath)
			if !ok {
				idx = g.AddNode(topology.Node{
					Kind: topology.NodeModule,
					Name: segments[i],
					Path: modPath,
				})
				g.AddEdge(topology.Edge{From: parent, To: idx, Kind: topology.EdgeContains})
			}
			parent = idx
		}
	}

	fileIdx := g.AddNode(topology.Node{
		Kind: topology.NodeFile,
		Name: path.Base(relPath),
		Path: relPath,
	})
	g.AddEdge(topology.Edge{From: parent, To: fileIdx, Kind: topology.EdgeContains})
	return fileIdx
}

// removeFileNode drops a file's topology node; module nodes stay (they
// are cheap and other files may still sit under them).
func removeFileNode(st *state.State, relPath string) {
	g := st.Topology()
	if idx, ok := g.NodeByPath(relPath); ok {
		g.RemoveNode(idx)
	}
}

// restitchImports rebuilds a file's outgoing import edges from its
// fresh import list. Targets named by imports that resolve to files
// not yet in the graph are added as nodes even if not yet parsed.
func restitchImports(st *state.State, relPath string, imports []types.ImportInfo) {
	g := st.Topology()
	fileIdx := ensureFileNode(st, relPath)
	g.RemoveOutEdges(fileIdx, topology.EdgeImports, topology.EdgeReExports)

	for _, imp := range imports {
		target, ok := resolveImportTarget(st, imp.RawPath)
		if !ok {
			continue
		}
		if target == relPath {
			continue
		}
		targetIdx := ensureFileNode(st, target)
		kind := topology.EdgeImports
		if imp.IsReexport {
			kind = topology.EdgeReExports
		}
		g.AddEdge(topology.Edge{
			From:    fileIdx,
			To:      targetIdx,
			Kind:    kind,
			UsePath: imp.RawPath,
			IsGlob:  imp.IsGlob,
		})
	}
}

// resolveImportTarget maps a use path onto a repository file. Only
// crate-relative paths resolve; external crates have no file target.
// Resolution tries the module-layout candidates for progressively
// shorter prefixes of the path, since trailing segments usually name
// items rather than modules.
func resolveImportTarget(st *state.State, usePath string) (string, bool) {
	segments := strings.Split(usePath, "::")
	if len(segments) == 0 || segments[0] != "crate" {
		return "", false
	}
	segments = segments[1:]

	for n := len(segments); n >= 1; n-- {
		mod := strings.Join(segments[:n], "/")
		candidates := []string{
			"src/" + mod + ".rs",
			"src/" + mod + "/mod.rs",
			mod + ".rs",
			mod + "/mod.rs",
		}
		for _, cand := range candidates {
			if _, ok := st.Topology().NodeByPath(cand); ok {
				return cand, true
			}
			if fileExists(st.Root(), cand) {
				return cand, true
			}
		}
	}
	return "", false
}

func fileExists(root, rel string) bool {
	info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil && info.Mode().IsRegular()
}

// absFor joins a repo-relative path back onto the root.
func absFor(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}
