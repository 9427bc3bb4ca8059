package types

import "time"

// Common system-wide constants
const (
	// File size limits
	DefaultMaxFileSize = 2 * 1024 * 1024 // 2MB per file - standard limit for indexing
	// Rationale: Covers essentially all hand-written source files
	// while keeping generated monsters (bundled JS, protobuf output)
	// out of the symbol tables and the BM25 postings.

	// Files at or below this size are always content-hashed during
	// fingerprinting, even when (size, mtime) match the manifest.
	// Small files are the ones most likely to be touched by tools
	// that preserve timestamps.
	AlwaysHashSizeThreshold = 64 * 1024 // 64KB

	// Preview truncation for search results, in Unicode scalar values.
	PreviewMaxChars = 120
)

// FileID identifies a file within the in-memory state for the lifetime
// of a process. IDs are never reused within a process.
type FileID uint32

// Sym is an interned string handle. Equality and hashing use the key;
// the interner resolves key to string. Keys are process-local.
type Sym uint32

// SymNone is the zero Sym; the interner never hands it out for a
// non-empty string.
const SymNone Sym = 0

// Location is the span of a syntax element in a file.
//
// Byte offsets are absolute into the file. Lines and columns are
// 1-based and measured in Unicode scalar values; newlines follow any of
// LF, CRLF, or CR.
type Location struct {
	FilePath  string `json:"file"`
	StartByte int    `json:"start_byte"`
	EndByte   int    `json:"end_byte"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

// SymbolKind classifies a symbol definition.
type SymbolKind uint8

const (
	SymbolKindFunction SymbolKind = iota
	SymbolKindMethod
	SymbolKindStruct
	SymbolKindEnum
	SymbolKindTrait
	SymbolKindImpl
	SymbolKindConst
	SymbolKindStatic
	SymbolKindModule
	SymbolKindTypeAlias
	SymbolKindMacro
	SymbolKindField
	SymbolKindVariant
)

func (sk SymbolKind) String() string {
	switch sk {
	case SymbolKindFunction:
		return "function"
	case SymbolKindMethod:
		return "method"
	case SymbolKindStruct:
		return "struct"
	case SymbolKindEnum:
		return "enum"
	case SymbolKindTrait:
		return "trait"
	case SymbolKindImpl:
		return "impl"
	case SymbolKindConst:
		return "const"
	case SymbolKindStatic:
		return "static"
	case SymbolKindModule:
		return "module"
	case SymbolKindTypeAlias:
		return "type"
	case SymbolKindMacro:
		return "macro"
	case SymbolKindField:
		return "field"
	case SymbolKindVariant:
		return "variant"
	default:
		return "unknown"
	}
}

// ParseSymbolKind maps the string form back to a kind. The boolean is
// false for unrecognized strings.
func ParseSymbolKind(s string) (SymbolKind, bool) {
	for k := SymbolKindFunction; k <= SymbolKindVariant; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Visibility is the three-valued export status of a symbol.
type Visibility uint8

const (
	VisibilityPrivate Visibility = iota
	VisibilityRestricted
	VisibilityPublic
)

func (v Visibility) String() string {
	switch v {
	case VisibilityPublic:
		return "public"
	case VisibilityRestricted:
		return "restricted"
	default:
		return "private"
	}
}

// SymbolDef is a single symbol definition extracted from source.
type SymbolDef struct {
	// Name is the simple identifier at the declaration site.
	Name Sym
	// ScopedName is the full path from the crate root to the symbol,
	// joined with the language's path separator.
	ScopedName Sym
	Kind       SymbolKind
	// Location spans the entire declaration including body; for fields
	// and variants it is the declaration itself.
	Location Location
	// Signature is the opaque head of the declaration (through the end
	// of the parameter list or type-body head). Empty for symbols that
	// have no meaningful head.
	Signature  string
	Visibility Visibility
	// Attributes holds attached attribute token streams in source order.
	Attributes []string
	// DocComment holds adjacent documentation comment lines, joined
	// with newlines. Feeds the BM25 doc field.
	DocComment string
}

// CallEdge records one call site.
//
// Callees are stored by simple name to tolerate missing resolution;
// callers by scoped name so reverse lookup is precise.
type CallEdge struct {
	CallerScoped Sym
	CalleeName   Sym
	Location     Location
	// IsMethodCall is true when the call site has a receiver.
	IsMethodCall bool
}

// ImportInfo describes one import/use statement entry.
type ImportInfo struct {
	// RawPath is the full use path as written (e.g. "std::io::Read").
	RawPath string
	// Alias is the bound name when the import renames, else the
	// terminal segment ("*" for glob imports).
	Alias      string
	IsGlob     bool
	IsReexport bool
	Location   Location
}

// FileFingerprint identifies one file's content for incremental runs.
type FileFingerprint struct {
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	MtimeNanos  int64  `json:"mtime_nanos"`
	ContentHash uint64 `json:"content_hash"`
}

// Manifest is the persisted record of per-file fingerprints used to
// detect unchanged files across runs. Serialized as manifest.json.
type Manifest struct {
	Version      string                     `json:"version"`
	Fingerprints map[string]FileFingerprint `json:"fingerprints"`
	SymbolCount  int                        `json:"symbol_count"`
	FileCount    int                        `json:"file_count"`
	// Warnings records per-file parse diagnostics from the last run.
	// A warned file keeps its prior records and is retried next run.
	Warnings map[string]string `json:"warnings,omitempty"`
}

// NewManifest returns an empty manifest carrying the given version tag.
func NewManifest(version string) *Manifest {
	return &Manifest{
		Version:      version,
		Fingerprints: make(map[string]FileFingerprint),
		Warnings:     make(map[string]string),
	}
}

// IndexStats summarizes the in-memory state.
type IndexStats struct {
	FileCount     int       `json:"files"`
	SymbolCount   int       `json:"symbols"`
	CallEdgeCount int       `json:"call_edges"`
	TopologyNodes int       `json:"topology_nodes"`
	HasBM25       bool      `json:"has_bm25"`
	LastIndexed   time.Time `json:"-"`
}
