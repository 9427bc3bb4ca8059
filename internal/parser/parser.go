// Package parser turns file bytes into symbol, call, and import
// records via tree-sitter concrete syntax trees. A file with syntax
// errors still yields partial results; no per-file error aborts the
// pipeline.
package parser

import (
	"sort"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/omnidex/oci/internal/intern"
	"github.com/omnidex/oci/internal/types"
)

// LanguageParser is the per-language contract. All three extraction
// operations must be deterministic: byte-identical output for a fixed
// input across runs.
type LanguageParser interface {
	// Language reports the language tag (e.g. "rust").
	Language() string

	// Extensions lists lowercase file extensions (no dot) this parser handles.
	Extensions() []string

	// Parse produces a concrete syntax tree for the file bytes. The
	// caller owns the tree and must Close it.
	Parse(src []byte) (*tree_sitter.Tree, error)

	// ExtractSymbols walks the tree and emits one SymbolDef per
	// declarable node, scoped by the enclosing-item stack.
	ExtractSymbols(tree *tree_sitter.Tree, src []byte, relPath string, in *intern.Interner) []types.SymbolDef

	// ExtractCalls records (caller_scoped, callee_name, location) for
	// call and method-call expressions.
	ExtractCalls(tree *tree_sitter.Tree, src []byte, relPath string, in *intern.Interner) []types.CallEdge

	// ExtractImports produces one ImportInfo per import/use entry.
	ExtractImports(tree *tree_sitter.Tree, src []byte, relPath string) []types.ImportInfo
}

// Registry dispatches from file extension to language parser. Adding a
// language is purely additive: construct it and Register.
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]LanguageParser
}

// NewRegistry builds the default registry with the Rust parser.
func NewRegistry() (*Registry, error) {
	r := &Registry{byExt: make(map[string]LanguageParser)}
	rust, err := NewRustParser()
	if err != nil {
		return nil, err
	}
	r.Register(rust)
	return r, nil
}

// Register adds a parser for each of its extensions.
func (r *Registry) Register(p LanguageParser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range p.Extensions() {
		r.byExt[strings.ToLower(ext)] = p
	}
}

// ForFile returns the parser responsible for path, or nil.
func (r *Registry) ForFile(path string) LanguageParser {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byExt[strings.ToLower(path[idx+1:])]
}

// Extensions returns all registered extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
