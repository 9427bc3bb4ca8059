package parser

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"

	"github.com/omnidex/oci/internal/errors"
	"github.com/omnidex/oci/internal/intern"
	"github.com/omnidex/oci/internal/types"
)

// RustParser extracts symbols, calls, and imports from Rust source.
type RustParser struct {
	language *tree_sitter.Language
	pool     sync.Pool
}

// NewRustParser loads the Rust grammar. Failure here is a top-level
// parse_error, not a per-file condition.
func NewRustParser() (*RustParser, error) {
	language := tree_sitter.NewLanguage(tree_sitter_rust.Language())
	probe := tree_sitter.NewParser()
	if err := probe.SetLanguage(language); err != nil {
		return nil, errors.NewParseError("rust", err)
	}
	rp := &RustParser{language: language}
	rp.pool.New = func() interface{} {
		p := tree_sitter.NewParser()
		if err := p.SetLanguage(language); err != nil {
			return nil
		}
		return p
	}
	rp.pool.Put(probe)
	return rp, nil
}

// Language implements LanguageParser.
func (rp *RustParser) Language() string { return "rust" }

// Extensions implements LanguageParser.
func (rp *RustParser) Extensions() []string { return []string{"rs"} }

// Parse implements LanguageParser. Parsers are pooled because a
// tree-sitter parser is not safe for concurrent use.
func (rp *RustParser) Parse(src []byte) (*tree_sitter.Tree, error) {
	v := rp.pool.Get()
	if v == nil {
		return nil, errors.NewParseError("rust", fmt.Errorf("parser pool exhausted"))
	}
	p := v.(*tree_sitter.Parser)
	defer rp.pool.Put(p)

	tree := p.Parse(src, nil)
	if tree == nil {
		return nil, errors.NewParseError("rust", fmt.Errorf("parse returned no tree"))
	}
	return tree, nil
}

// ModulePathForFile derives the module scope seeded into extraction
// from a repo-relative file path. Examples:
//
//	src/lib.rs      -> [crate]
//	src/m.rs        -> [crate m]
//	src/foo/mod.rs  -> [crate foo]
//	src/foo/bar.rs  -> [crate foo bar]
//
// Paths outside src/ keep their directory segments the same way.
func ModulePathForFile(relPath string) []string {
	path := strings.TrimSuffix(relPath, ".rs")
	path = strings.TrimPrefix(path, "src/")
	segments := []string{"crate"}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		switch seg {
		case "lib", "main", "mod":
			// Root and mod files name the enclosing module, not a new one.
			continue
		default:
			segments = append(segments, seg)
		}
	}
	return segments
}

// scopeKind classifies an entry on the enclosing-item stack.
type scopeKind uint8

const (
	scopeModule scopeKind = iota
	scopeImpl
	scopeTrait
	scopeType
	scopeFn
)

type scopeEntry struct {
	segment string
	kind    scopeKind
}

// rustWalk carries shared traversal state for one file.
type rustWalk struct {
	src     []byte
	relPath string
	lines   *LineIndex
	in      *intern.Interner
	scope   []scopeEntry
}

func (w *rustWalk) scopedName(name string) string {
	var b strings.Builder
	for _, e := range w.scope {
		b.WriteString(e.segment)
		b.WriteString("::")
	}
	b.WriteString(name)
	return b.String()
}

func (w *rustWalk) inMethodScope() bool {
	for i := len(w.scope) - 1; i >= 0; i-- {
		switch w.scope[i].kind {
		case scopeImpl, scopeTrait:
			return true
		case scopeFn:
			return false
		}
	}
	return false
}

// ExtractSymbols implements LanguageParser.
func (rp *RustParser) ExtractSymbols(tree *tree_sitter.Tree, src []byte, relPath string, in *intern.Interner) []types.SymbolDef {
	w := &rustWalk{src: src, relPath: relPath, lines: NewLineIndex(src), in: in}
	for _, seg := range ModulePathForFile(relPath) {
		w.scope = append(w.scope, scopeEntry{segment: seg, kind: scopeModule})
	}
	var symbols []types.SymbolDef
	w.walkSymbols(tree.RootNode(), &symbols)
	return symbols
}

func (w *rustWalk) walkSymbols(node *tree_sitter.Node, out *[]types.SymbolDef) {
	pushed := 0
	switch node.Kind() {
	case "mod_item":
		if node.ChildByFieldName("body") != nil {
			if name := fieldIdent(node, "name", w.src); name != "" {
				w.emit(out, node, name, types.SymbolKindModule, "")
				w.scope = append(w.scope, scopeEntry{segment: name, kind: scopeModule})
				pushed++
			}
		}

	case "impl_item":
		if segment, name := implSegment(node, w.src); name != "" {
			w.emit(out, node, name, types.SymbolKindImpl, "")
			// Overwrite the scoped name: the impl's scope segment is
			// the two-part trait-plus-type path, not just the name.
			(*out)[len(*out)-1].ScopedName = w.in.Intern(w.scopedName(segment))
			w.scope = append(w.scope, scopeEntry{segment: segment, kind: scopeImpl})
			pushed++
		}

	case "function_item":
		if name := fieldIdent(node, "name", w.src); name != "" {
			kind := types.SymbolKindFunction
			if w.inMethodScope() {
				kind = types.SymbolKindMethod
			}
			w.emit(out, node, name, kind, headText(node, w.src))
			w.scope = append(w.scope, scopeEntry{segment: name, kind: scopeFn})
			pushed++
		}

	case "function_signature_item":
		// Trait method declarations without bodies; extern "C" items
		// land here too and stay plain functions.
		if name := fieldIdent(node, "name", w.src); name != "" {
			kind := types.SymbolKindFunction
			if w.inMethodScope() {
				kind = types.SymbolKindMethod
			}
			w.emit(out, node, name, kind, headText(node, w.src))
		}

	case "struct_item":
		if name := fieldIdent(node, "name", w.src); name != "" {
			w.emit(out, node, name, types.SymbolKindStruct, headText(node, w.src))
			w.scope = append(w.scope, scopeEntry{segment: name, kind: scopeType})
			pushed++
		}

	case "enum_item":
		if name := fieldIdent(node, "name", w.src); name != "" {
			w.emit(out, node, name, types.SymbolKindEnum, headText(node, w.src))
			w.scope = append(w.scope, scopeEntry{segment: name, kind: scopeType})
			pushed++
		}

	case "trait_item":
		if name := fieldIdent(node, "name", w.src); name != "" {
			w.emit(out, node, name, types.SymbolKindTrait, headText(node, w.src))
			w.scope = append(w.scope, scopeEntry{segment: name, kind: scopeTrait})
			pushed++
		}

	case "const_item":
		if name := fieldIdent(node, "name", w.src); name != "" {
			w.emit(out, node, name, types.SymbolKindConst, headText(node, w.src))
		}

	case "static_item":
		if name := fieldIdent(node, "name", w.src); name != "" {
			w.emit(out, node, name, types.SymbolKindStatic, headText(node, w.src))
		}

	case "type_item":
		if name := fieldIdent(node, "name", w.src); name != "" {
			w.emit(out, node, name, types.SymbolKindTypeAlias, headText(node, w.src))
		}

	case "macro_definition":
		if name := fieldIdent(node, "name", w.src); name != "" {
			w.emit(out, node, name, types.SymbolKindMacro, "macro_rules! "+name)
		}

	case "field_declaration":
		if name := fieldIdent(node, "name", w.src); name != "" {
			w.emit(out, node, name, types.SymbolKindField, "")
		}

	case "enum_variant":
		if name := fieldIdent(node, "name", w.src); name != "" {
			w.emit(out, node, name, types.SymbolKindVariant, "")
		}
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		w.walkSymbols(child, out)
	}

	for ; pushed > 0; pushed-- {
		w.scope = w.scope[:len(w.scope)-1]
	}
}

func (w *rustWalk) emit(out *[]types.SymbolDef, node *tree_sitter.Node, name string, kind types.SymbolKind, signature string) {
	*out = append(*out, types.SymbolDef{
		Name:       w.in.Intern(name),
		ScopedName: w.in.Intern(w.scopedName(name)),
		Kind:       kind,
		Location:   w.lines.LocationFor(node, w.relPath),
		Signature:  signature,
		Visibility: visibilityOf(node, w.src),
		Attributes: attributesOf(node, w.src),
		DocComment: docCommentOf(node, w.src),
	})
}

// ExtractCalls implements LanguageParser. The caller of each edge is
// the innermost enclosing function or method; call expressions outside
// any function are dropped. Macro invocations are not call edges.
func (rp *RustParser) ExtractCalls(tree *tree_sitter.Tree, src []byte, relPath string, in *intern.Interner) []types.CallEdge {
	w := &rustWalk{src: src, relPath: relPath, lines: NewLineIndex(src), in: in}
	for _, seg := range ModulePathForFile(relPath) {
		w.scope = append(w.scope, scopeEntry{segment: seg, kind: scopeModule})
	}
	var edges []types.CallEdge
	var fnStack []string
	w.walkCalls(tree.RootNode(), &fnStack, &edges)
	return edges
}

func (w *rustWalk) walkCalls(node *tree_sitter.Node, fnStack *[]string, out *[]types.CallEdge) {
	pushedScope := 0
	pushedFn := false

	switch node.Kind() {
	case "mod_item":
		if node.ChildByFieldName("body") != nil {
			if name := fieldIdent(node, "name", w.src); name != "" {
				w.scope = append(w.scope, scopeEntry{segment: name, kind: scopeModule})
				pushedScope++
			}
		}

	case "impl_item":
		if segment, name := implSegment(node, w.src); name != "" {
			w.scope = append(w.scope, scopeEntry{segment: segment, kind: scopeImpl})
			pushedScope++
		}

	case "trait_item":
		if name := fieldIdent(node, "name", w.src); name != "" {
			w.scope = append(w.scope, scopeEntry{segment: name, kind: scopeTrait})
			pushedScope++
		}

	case "function_item":
		if name := fieldIdent(node, "name", w.src); name != "" {
			scoped := w.scopedName(name)
			w.scope = append(w.scope, scopeEntry{segment: name, kind: scopeFn})
			pushedScope++
			*fnStack = append(*fnStack, scoped)
			pushedFn = true
		}

	case "macro_invocation":
		// Not call edges; token trees inside are not walked either,
		// since their contents are unparsed tokens.
		return

	case "call_expression":
		if len(*fnStack) > 0 {
			if callee, isMethod := calleeOf(node, w.src); callee != "" {
				*out = append(*out, types.CallEdge{
					CallerScoped: w.in.Intern((*fnStack)[len(*fnStack)-1]),
					CalleeName:   w.in.Intern(callee),
					Location:     w.lines.LocationFor(node, w.relPath),
					IsMethodCall: isMethod,
				})
			}
		}
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		w.walkCalls(child, fnStack, out)
	}

	if pushedFn {
		*fnStack = (*fnStack)[:len(*fnStack)-1]
	}
	for ; pushedScope > 0; pushedScope-- {
		w.scope = w.scope[:len(w.scope)-1]
	}
}

// calleeOf resolves the direct identifier at a call site. Qualified
// callees (a::b::c) use only the terminal identifier; method calls use
// the method identifier.
func calleeOf(node *tree_sitter.Node, src []byte) (name string, isMethod bool) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return "", false
	}
	switch fn.Kind() {
	case "field_expression":
		if field := fn.ChildByFieldName("field"); field != nil {
			return nodeText(field, src), true
		}
		return lastIdent(nodeText(fn, src)), true
	case "generic_function":
		if inner := fn.ChildByFieldName("function"); inner != nil {
			if inner.Kind() == "field_expression" {
				if field := inner.ChildByFieldName("field"); field != nil {
					return nodeText(field, src), true
				}
			}
			return lastIdent(nodeText(inner, src)), false
		}
	}
	return lastIdent(nodeText(fn, src)), false
}

// ExtractImports implements LanguageParser.
func (rp *RustParser) ExtractImports(tree *tree_sitter.Tree, src []byte, relPath string) []types.ImportInfo {
	lines := NewLineIndex(src)
	var imports []types.ImportInfo
	walkImports(tree.RootNode(), src, relPath, lines, &imports)
	return imports
}

func walkImports(node *tree_sitter.Node, src []byte, relPath string, lines *LineIndex, out *[]types.ImportInfo) {
	if node.Kind() == "use_declaration" {
		reexport := visibilityOf(node, src) != types.VisibilityPrivate
		if arg := node.ChildByFieldName("argument"); arg != nil {
			extractUseTree(arg, src, relPath, "", reexport, lines, out)
		}
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		walkImports(child, src, relPath, lines, out)
	}
}

func extractUseTree(node *tree_sitter.Node, src []byte, relPath, prefix string, reexport bool, lines *LineIndex, out *[]types.ImportInfo) {
	joined := func(p string) string {
		if prefix == "" {
			return p
		}
		return prefix + "::" + p
	}

	switch node.Kind() {
	case "identifier", "scoped_identifier", "crate", "self", "super":
		text := nodeText(node, src)
		*out = append(*out, types.ImportInfo{
			RawPath:    joined(text),
			Alias:      lastIdent(text),
			IsReexport: reexport,
			Location:   lines.LocationFor(node, relPath),
		})

	case "use_as_clause":
		path := node.ChildByFieldName("path")
		alias := node.ChildByFieldName("alias")
		if path != nil && alias != nil {
			*out = append(*out, types.ImportInfo{
				RawPath:    joined(nodeText(path, src)),
				Alias:      nodeText(alias, src),
				IsReexport: reexport,
				Location:   lines.LocationFor(node, relPath),
			})
		}

	case "use_wildcard":
		text := nodeText(node, src)
		path := strings.TrimSuffix(text, "::*")
		if path == text {
			path = prefix
		} else {
			path = joined(path)
		}
		*out = append(*out, types.ImportInfo{
			RawPath:    path,
			Alias:      "*",
			IsGlob:     true,
			IsReexport: reexport,
			Location:   lines.LocationFor(node, relPath),
		})

	case "scoped_use_list":
		path := node.ChildByFieldName("path")
		list := node.ChildByFieldName("list")
		if path != nil && list != nil {
			newPrefix := joined(nodeText(path, src))
			for i := uint(0); i < list.ChildCount(); i++ {
				child := list.Child(i)
				if child == nil {
					continue
				}
				extractUseTree(child, src, relPath, newPrefix, reexport, lines, out)
			}
		}

	case "use_list":
		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			if child == nil {
				continue
			}
			extractUseTree(child, src, relPath, prefix, reexport, lines, out)
		}

	default:
		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			if child == nil {
				continue
			}
			extractUseTree(child, src, relPath, prefix, reexport, lines, out)
		}
	}
}

// ---------------------------------------------------------------------------
// Node helpers
// ---------------------------------------------------------------------------

func nodeText(node *tree_sitter.Node, src []byte) string {
	start, end := node.StartByte(), node.EndByte()
	if start > end || int(end) > len(src) {
		return ""
	}
	return string(src[start:end])
}

// fieldIdent returns the identifier text of a named child field.
func fieldIdent(node *tree_sitter.Node, field string, src []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return lastIdent(nodeText(child, src))
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// lastIdent extracts the terminal identifier from a path-like text.
func lastIdent(text string) string {
	var best string
	for _, part := range strings.FieldsFunc(text, func(r rune) bool { return !isIdentRune(r) }) {
		best = part
	}
	return best
}

// firstIdent extracts the leading identifier (e.g. "Foo" from "Foo<T>").
func firstIdent(text string) string {
	for _, part := range strings.FieldsFunc(text, func(r rune) bool { return !isIdentRune(r) }) {
		return part
	}
	return ""
}

// implSegment derives the scope segment and display name for an impl
// block: the trait (if any) plus the implementing type.
func implSegment(node *tree_sitter.Node, src []byte) (segment, name string) {
	typeNode := node.ChildByFieldName("type")
	if typeNode == nil {
		return "", ""
	}
	name = firstIdent(nodeText(typeNode, src))
	if name == "" {
		return "", ""
	}
	if traitNode := node.ChildByFieldName("trait"); traitNode != nil {
		if trait := lastIdent(nodeText(traitNode, src)); trait != "" {
			return trait + "::" + name, name
		}
	}
	return name, name
}

// visibilityOf derives the three-valued visibility from any modifier.
func visibilityOf(node *tree_sitter.Node, src []byte) types.Visibility {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil || child.Kind() != "visibility_modifier" {
			continue
		}
		vis := strings.TrimSpace(nodeText(child, src))
		if vis == "pub" {
			return types.VisibilityPublic
		}
		return types.VisibilityRestricted
	}
	return types.VisibilityPrivate
}

// attributesOf collects attached attribute items in source order.
func attributesOf(node *tree_sitter.Node, src []byte) []string {
	var attrs []string
	for cur := node.PrevSibling(); cur != nil; cur = cur.PrevSibling() {
		if cur.Kind() != "attribute_item" {
			break
		}
		attrs = append(attrs, strings.TrimSpace(nodeText(cur, src)))
	}
	// Collected innermost-first; restore source order.
	for i, j := 0, len(attrs)-1; i < j; i, j = i+1, j-1 {
		attrs[i], attrs[j] = attrs[j], attrs[i]
	}
	return attrs
}

// docCommentOf collects adjacent documentation comments preceding the
// declaration, skipping over attribute items.
func docCommentOf(node *tree_sitter.Node, src []byte) string {
	var docs []string
	for cur := node.PrevSibling(); cur != nil; cur = cur.PrevSibling() {
		switch cur.Kind() {
		case "attribute_item":
			continue
		case "line_comment":
			text := strings.TrimSpace(nodeText(cur, src))
			if strings.HasPrefix(text, "///") || strings.HasPrefix(text, "//!") {
				docs = append(docs, text)
				continue
			}
		case "block_comment":
			text := strings.TrimSpace(nodeText(cur, src))
			if strings.HasPrefix(text, "/**") {
				docs = append(docs, text)
				continue
			}
		}
		break
	}
	if len(docs) == 0 {
		return ""
	}
	for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
		docs[i], docs[j] = docs[j], docs[i]
	}
	return strings.Join(docs, "\n")
}

// headText is the declaration head: everything from the start of the
// declaration through the end of the parameter or type-body head. For
// bodied items that is the text before the body; for the rest, the
// text before any initializer.
func headText(node *tree_sitter.Node, src []byte) string {
	if body := node.ChildByFieldName("body"); body != nil {
		if body.StartByte() > node.StartByte() {
			return strings.TrimSpace(string(src[node.StartByte():body.StartByte()]))
		}
	}
	text := nodeText(node, src)
	if i := strings.IndexByte(text, '='); i > 0 {
		return strings.TrimSpace(text[:i])
	}
	return strings.TrimSuffix(strings.TrimSpace(text), ";")
}
