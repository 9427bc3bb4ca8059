package parser

import (
	"sort"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/omnidex/oci/internal/types"
)

// LineIndex precomputes line boundaries so byte offsets convert to
// 1-based line/column pairs in O(log lines). Columns count Unicode
// scalar values, not bytes; tree-sitter's own points count bytes, so
// locations are always derived through this index instead.
//
// Newline handling: LF, CRLF, and lone CR each terminate a line.
type LineIndex struct {
	src []byte
	// starts[i] is the byte offset where line i+1 begins.
	starts []int
}

// NewLineIndex scans src once and records line start offsets.
func NewLineIndex(src []byte) *LineIndex {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '\n':
			starts = append(starts, i+1)
		case '\r':
			if i+1 < len(src) && src[i+1] == '\n' {
				i++
			}
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{src: src, starts: starts}
}

// Position converts an absolute byte offset to a 1-based (line, col).
// Offsets past the end clamp to the final position.
func (li *LineIndex) Position(offset int) (line, col int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(li.src) {
		offset = len(li.src)
	}
	idx := sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset }) - 1
	start := li.starts[idx]
	return idx + 1, utf8.RuneCount(li.src[start:offset]) + 1
}

// LocationFor builds a Location for a tree-sitter node, with byte spans
// straight off the node and line/column pairs computed through the
// index.
func (li *LineIndex) LocationFor(node *tree_sitter.Node, relPath string) types.Location {
	startByte := int(node.StartByte())
	endByte := int(node.EndByte())
	sl, sc := li.Position(startByte)
	el, ec := li.Position(endByte)
	return types.Location{
		FilePath:  relPath,
		StartByte: startByte,
		EndByte:   endByte,
		StartLine: sl,
		StartCol:  sc,
		EndLine:   el,
		EndCol:    ec,
	}
}
