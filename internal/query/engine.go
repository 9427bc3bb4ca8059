// Package query answers read-only requests against the indexed state:
// name/prefix lookup, call traversal, BM25 ranked search, folding, and
// topology summaries. No operation here mutates state.
package query

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/omnidex/oci/internal/cache"
	"github.com/omnidex/oci/internal/debug"
	"github.com/omnidex/oci/internal/errors"
	"github.com/omnidex/oci/internal/search"
	"github.com/omnidex/oci/internal/state"
	"github.com/omnidex/oci/internal/topology"
	"github.com/omnidex/oci/internal/types"
	"github.com/omnidex/oci/internal/version"
	"github.com/omnidex/oci/pkg/pathutil"
)

// Engine evaluates queries against one state. The BM25 index is built
// lazily on first search: whichever caller observes it missing builds
// it while others wait on the same lock, and the result is cached on
// disk keyed by the manifest stamp.
type Engine struct {
	st *state.State

	bm25Mu    sync.Mutex
	bm25      *search.Index
	bm25Stamp uint64
}

// New creates an engine over a state.
func New(st *state.State) *Engine {
	return &Engine{st: st}
}

// SymbolResult is the JSON shape for one symbol match.
type SymbolResult struct {
	Symbol     string   `json:"symbol"`
	Kind       string   `json:"kind"`
	File       string   `json:"file"`
	Line       int      `json:"line"`
	Col        int      `json:"col"`
	EndLine    int      `json:"end_line"`
	EndCol     int      `json:"end_col"`
	StartByte  int      `json:"start_byte"`
	EndByte    int      `json:"end_byte"`
	Visibility string   `json:"visibility"`
	Signature  string   `json:"signature,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
}

func (e *Engine) symbolResult(sym types.SymbolDef) SymbolResult {
	in := e.st.Interner()
	loc := sym.Location
	return SymbolResult{
		Symbol:     in.Resolve(sym.ScopedName),
		Kind:       sym.Kind.String(),
		File:       loc.FilePath,
		Line:       loc.StartLine,
		Col:        loc.StartCol,
		EndLine:    loc.EndLine,
		EndCol:     loc.EndCol,
		StartByte:  loc.StartByte,
		EndByte:    loc.EndByte,
		Visibility: sym.Visibility.String(),
		Signature:  sym.Signature,
		Attributes: sym.Attributes,
	}
}

// Symbols looks a name up: exact scoped match when scoped is set, else
// the simple-name multi-map; prefix switches to a prefix scan over
// simple names.
func (e *Engine) Symbols(name string, scoped, prefix bool) []SymbolResult {
	var defs []types.SymbolDef
	switch {
	case scoped:
		if sym, ok := e.st.FindByScopedName(name); ok {
			defs = append(defs, sym)
		}
	case prefix:
		defs = e.st.FindByPrefix(name)
	default:
		defs = e.st.FindByName(name)
	}
	out := make([]SymbolResult, 0, len(defs))
	for _, sym := range defs {
		out = append(out, e.symbolResult(sym))
	}
	return out
}

// CallResult is the JSON shape for one call edge.
type CallResult struct {
	Caller   string `json:"caller"`
	Callee   string `json:"callee"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Col      int    `json:"col"`
	IsMethod bool   `json:"is_method,omitempty"`
}

// Callers returns every edge whose callee simple name matches.
func (e *Engine) Callers(name string) []CallResult {
	in := e.st.Interner()
	edges := e.st.FindCallers(name)
	out := make([]CallResult, 0, len(edges))
	for _, edge := range edges {
		out = append(out, CallResult{
			Caller:   in.Resolve(edge.CallerScoped),
			Callee:   in.Resolve(edge.CalleeName),
			File:     edge.Location.FilePath,
			Line:     edge.Location.StartLine,
			Col:      edge.Location.StartCol,
			IsMethod: edge.IsMethodCall,
		})
	}
	return out
}

// CalleeResult is one outgoing edge joined to its candidate
// definitions; multiple candidates are normal (simple names collide)
// and the client disambiguates.
type CalleeResult struct {
	CallResult
	Candidates []SymbolResult `json:"candidates,omitempty"`
}

// Callees returns the edges whose caller scoped name matches. When the
// given name is not scoped, every symbol sharing the simple name
// contributes its outgoing edges.
func (e *Engine) Callees(name string) []CalleeResult {
	in := e.st.Interner()

	callers := []string{name}
	if !strings.Contains(name, "::") {
		callers = callers[:0]
		for _, sym := range e.st.FindByName(name) {
			callers = append(callers, in.Resolve(sym.ScopedName))
		}
	}

	var out []CalleeResult
	for _, caller := range callers {
		for _, edge := range e.st.FindCallees(caller) {
			calleeName := in.Resolve(edge.CalleeName)
			res := CalleeResult{CallResult: CallResult{
				Caller:   in.Resolve(edge.CallerScoped),
				Callee:   calleeName,
				File:     edge.Location.FilePath,
				Line:     edge.Location.StartLine,
				Col:      edge.Location.StartCol,
				IsMethod: edge.IsMethodCall,
			}}
			for _, cand := range e.st.FindByName(calleeName) {
				res.Candidates = append(res.Candidates, e.symbolResult(cand))
			}
			out = append(out, res)
		}
	}
	return out
}

// SearchResult is the stable basic result contract.
type SearchResult struct {
	Symbol string  `json:"symbol"`
	Kind   string  `json:"kind"`
	File   string  `json:"file"`
	Line   int     `json:"line"`
	Score  float64 `json:"score"`
}

// QueryResult extends SearchResult with spans and a preview.
type QueryResult struct {
	SearchResult
	DocID     uint32 `json:"doc_id"`
	StartByte int    `json:"start_byte"`
	EndByte   int    `json:"end_byte"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
	Preview   string `json:"preview"`
}

// Search runs a BM25 query. Filters may ride inline in the query
// string or arrive as extra tokens.
func (e *Engine) Search(rawQuery string, topK int, extraFilters ...string) ([]QueryResult, error) {
	q, err := search.ParseQuery(rawQuery, extraFilters...)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}

	ix, err := e.ensureBM25()
	if err != nil {
		return nil, err
	}

	hits := ix.Execute(q, topK)
	out := make([]QueryResult, 0, len(hits))
	for _, hit := range hits {
		doc := hit.Doc
		out = append(out, QueryResult{
			SearchResult: SearchResult{
				Symbol: doc.Symbol,
				Kind:   doc.Kind,
				File:   doc.File,
				Line:   doc.StartLine,
				Score:  hit.Score,
			},
			DocID:     hit.DocID,
			StartByte: doc.StartByte,
			EndByte:   doc.EndByte,
			StartCol:  doc.StartCol,
			EndLine:   doc.EndLine,
			EndCol:    doc.EndCol,
			Preview:   doc.Preview,
		})
	}
	return out, nil
}

// FoldEntry is one symbol's head line and span, enabling callers to
// render a file as a signature skeleton.
type FoldEntry struct {
	Symbol    string `json:"symbol"`
	Kind      string `json:"kind"`
	Head      string `json:"head"`
	Line      int    `json:"line"`
	EndLine   int    `json:"end_line"`
	StartByte int    `json:"start_byte"`
	EndByte   int    `json:"end_byte"`
}

// Fold returns the signature skeleton of one file.
func (e *Engine) Fold(relPath string) ([]FoldEntry, error) {
	symbols := e.st.SymbolsInFile(relPath)
	if len(symbols) == 0 {
		if _, ok := e.st.Topology().NodeByPath(relPath); !ok {
			return nil, errors.NotFound("file %s is not indexed", relPath)
		}
	}
	in := e.st.Interner()
	data, _ := e.st.FileContents(relPath, pathutil.FromRelative(relPath, e.st.Root()))

	out := make([]FoldEntry, 0, len(symbols))
	for _, sym := range symbols {
		head := sym.Signature
		if head == "" && data != nil {
			head = firstLine(bodySlice(data, sym.Location))
		}
		out = append(out, FoldEntry{
			Symbol:    in.Resolve(sym.ScopedName),
			Kind:      sym.Kind.String(),
			Head:      head,
			Line:      sym.Location.StartLine,
			EndLine:   sym.Location.EndLine,
			StartByte: sym.Location.StartByte,
			EndByte:   sym.Location.EndByte,
		})
	}
	return out, nil
}

// TopologyEntry is one file with its PageRank relevance score.
type TopologyEntry struct {
	File    string  `json:"file"`
	Score   float64 `json:"score"`
	Imports int     `json:"imports"`
}

// Topology returns the file-level import graph summary ranked by
// PageRank score (descending, ties by path).
func (e *Engine) Topology() []TopologyEntry {
	g := e.st.Topology()
	scores := g.PageRank()

	paths := g.FilePaths()
	out := make([]TopologyEntry, 0, len(paths))
	for _, path := range paths {
		idx, ok := g.NodeByPath(path)
		if !ok {
			continue
		}
		imports := 0
		for _, edge := range g.OutEdges(idx) {
			if edge.Kind == topology.EdgeImports || edge.Kind == topology.EdgeReExports {
				imports++
			}
		}
		out = append(out, TopologyEntry{File: path, Score: scores[path], Imports: imports})
	}
	sortTopology(out)
	return out
}

func sortTopology(entries []TopologyEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].File < entries[j].File
	})
}

// ensureBM25 returns the current search index, building or loading it
// when the manifest stamp moved.
func (e *Engine) ensureBM25() (*search.Index, error) {
	manifest, err := cache.LoadManifest(e.st.Root())
	if err != nil {
		return nil, errors.Wrap(errors.CodeIO, err, "load manifest")
	}
	stamp := uint64(0)
	if manifest != nil {
		stamp = cache.Stamp(manifest)
	}

	e.bm25Mu.Lock()
	defer e.bm25Mu.Unlock()
	if e.bm25 != nil && e.bm25Stamp == stamp {
		return e.bm25, nil
	}

	if ix, err := cache.LoadBM25(e.st.Root(), version.Version, stamp); err == nil && ix != nil {
		debug.LogSearch("bm25 loaded from cache (%d docs)", ix.Len())
		e.bm25, e.bm25Stamp = ix, stamp
		return ix, nil
	}

	ix := e.buildBM25()
	if err := cache.SaveBM25(e.st.Root(), version.Version, stamp, ix); err != nil {
		debug.Warnf("bm25 cache write failed: %v", err)
	}
	e.bm25, e.bm25Stamp = ix, stamp
	return ix, nil
}

// buildBM25 constructs the index from state. Symbols arrive sorted by
// (file, start byte), so document ids and serialized postings are
// deterministic.
func (e *Engine) buildBM25() *search.Index {
	in := e.st.Interner()
	ix := search.NewIndex()

	for _, sym := range e.st.AllSymbols() {
		loc := sym.Location
		body := e.bodyText(loc)

		doc := search.Doc{
			Symbol:    in.Resolve(sym.ScopedName),
			Kind:      sym.Kind.String(),
			File:      loc.FilePath,
			StartByte: loc.StartByte,
			EndByte:   loc.EndByte,
			StartLine: loc.StartLine,
			StartCol:  loc.StartCol,
			EndLine:   loc.EndLine,
			EndCol:    loc.EndCol,
			Preview:   makePreview(body),
		}

		docText := sym.DocComment
		if len(sym.Attributes) > 0 {
			docText += " " + strings.Join(sym.Attributes, " ")
		}

		ix.AddDocument(doc, search.FieldTokens{
			Path:   search.PathTokens(loc.FilePath),
			Ident:  append(search.Tokenize(in.Resolve(sym.Name)), search.Tokenize(doc.Symbol)...),
			Doc:    search.Tokenize(docText),
			String: search.Tokenize(body),
		})
	}

	ix.Finalize()
	debug.LogSearch("bm25 built: %d docs", ix.Len())
	return ix
}

func (e *Engine) bodyText(loc types.Location) string {
	data, ok := e.st.FileContents(loc.FilePath, pathutil.FromRelative(loc.FilePath, e.st.Root()))
	if !ok {
		return ""
	}
	return bodySlice(data, loc)
}

func bodySlice(data []byte, loc types.Location) string {
	start, end := loc.StartByte, loc.EndByte
	if start < 0 || end > len(data) || start >= end {
		return ""
	}
	return string(data[start:end])
}

// makePreview extracts the first non-empty line of a symbol body,
// truncated to PreviewMaxChars scalar values.
func makePreview(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > types.PreviewMaxChars {
			runes := []rune(line)
			line = string(runes[:types.PreviewMaxChars])
		}
		return line
	}
	return ""
}

// firstLine returns the first non-empty line of text, trimmed.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line != "" {
			return line
		}
	}
	return ""
}
