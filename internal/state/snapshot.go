package state

import (
	"sort"
	"time"

	"github.com/omnidex/oci/internal/topology"
	"github.com/omnidex/oci/internal/types"
)

// Snapshot is the serializable form of the state: symbol table, call
// edges, topology, and the interner table they index into.
//
// Snapshots are canonical: symbols and edges are sorted by (file,
// start byte) and interner keys are renumbered in first-use order over
// that sequence. Two states holding the same records therefore produce
// byte-identical snapshots even when their in-memory intern histories
// differ (e.g. incremental update vs fresh index).
type Snapshot struct {
	Interner    []string
	Symbols     []types.SymbolDef
	CallEdges   []types.CallEdge
	Imports     []FileImports
	Topology    topology.Snapshot
	LastIndexed time.Time
}

// FileImports carries one file's import records; the snapshot keeps
// them as a slice sorted by path so gob output is byte-stable.
type FileImports struct {
	Path    string
	Imports []types.ImportInfo
}

// symRemap renumbers interned keys in first-use order.
type symRemap struct {
	resolve func(types.Sym) string
	ids     map[types.Sym]types.Sym
	table   []string
}

func newSymRemap(resolve func(types.Sym) string) *symRemap {
	return &symRemap{
		resolve: resolve,
		ids:     map[types.Sym]types.Sym{types.SymNone: types.SymNone},
		table:   []string{""},
	}
}

func (r *symRemap) remap(sym types.Sym) types.Sym {
	if mapped, ok := r.ids[sym]; ok {
		return mapped
	}
	mapped := types.Sym(len(r.table))
	r.table = append(r.table, r.resolve(sym))
	r.ids[sym] = mapped
	return mapped
}

// Snapshot captures the current state in canonical form.
func (s *State) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]types.SymbolDef, 0, len(s.byScoped))
	for _, sym := range s.byScoped {
		symbols = append(symbols, sym)
	}
	sortSymbols(symbols)

	edges := make([]types.CallEdge, len(s.callEdges))
	copy(edges, s.callEdges)
	sortEdges(edges)

	remap := newSymRemap(s.interner.Resolve)
	for i := range symbols {
		symbols[i].Name = remap.remap(symbols[i].Name)
		symbols[i].ScopedName = remap.remap(symbols[i].ScopedName)
	}
	for i := range edges {
		edges[i].CallerScoped = remap.remap(edges[i].CallerScoped)
		edges[i].CalleeName = remap.remap(edges[i].CalleeName)
	}

	imports := make([]FileImports, 0, len(s.imports))
	for path, list := range s.imports {
		cp := make([]types.ImportInfo, len(list))
		copy(cp, list)
		imports = append(imports, FileImports{Path: path, Imports: cp})
	}
	sort.Slice(imports, func(i, j int) bool { return imports[i].Path < imports[j].Path })

	return &Snapshot{
		Interner:    remap.table,
		Symbols:     symbols,
		CallEdges:   edges,
		Imports:     imports,
		Topology:    s.topo.Snapshot(),
		LastIndexed: s.lastIndexed,
	}
}

// Restore replaces the state's contents from a snapshot. The restored
// interner starts from the snapshot table and grows from there.
func (s *State) Restore(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.interner.Restore(snap.Interner)

	s.byScoped = make(map[types.Sym]types.SymbolDef, len(snap.Symbols))
	s.byName = make(map[types.Sym][]types.Sym)
	s.byFile = make(map[string][]types.Sym)
	for _, sym := range snap.Symbols {
		if _, exists := s.byScoped[sym.ScopedName]; !exists {
			s.byName[sym.Name] = append(s.byName[sym.Name], sym.ScopedName)
		}
		s.byScoped[sym.ScopedName] = sym
		s.byFile[sym.Location.FilePath] = append(s.byFile[sym.Location.FilePath], sym.ScopedName)
	}
	// Keep per-file lists in span order, matching what ReplaceFile
	// produces from a parser walk.
	for path := range s.byFile {
		list := s.byFile[path]
		sort.Slice(list, func(i, j int) bool {
			return s.byScoped[list[i]].Location.StartByte < s.byScoped[list[j]].Location.StartByte
		})
	}

	s.callEdges = make([]types.CallEdge, len(snap.CallEdges))
	copy(s.callEdges, snap.CallEdges)
	s.rebuildCallIndicesLocked()

	s.imports = make(map[string][]types.ImportInfo, len(snap.Imports))
	for _, fi := range snap.Imports {
		cp := make([]types.ImportInfo, len(fi.Imports))
		copy(cp, fi.Imports)
		s.imports[fi.Path] = cp
	}

	s.topo = topology.FromSnapshot(snap.Topology)
	s.lastIndexed = snap.LastIndexed
}
