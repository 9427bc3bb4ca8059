package search

import (
	"strings"
	"unicode"
)

// Token length bounds. Anything shorter is noise (single letters,
// operators leaking through), anything longer is generated data.
const (
	minTokenLen = 2
	maxTokenLen = 64
)

// Tokenize lowercases, splits on non-alphanumeric boundaries, and
// additionally splits camelCase and snake_case identifiers:
// "parseConfigFile" -> ["parse", "config", "file"]. Tokens outside the
// length bounds are dropped. The function is pure: same input, same
// output.
func Tokenize(text string) []string {
	var tokens []string
	for _, word := range splitWords(text) {
		for _, sub := range splitCamel(word) {
			n := len([]rune(sub))
			if n < minTokenLen || n > maxTokenLen {
				continue
			}
			tokens = append(tokens, strings.ToLower(sub))
		}
	}
	return tokens
}

// splitWords cuts text on any rune that is not a letter or digit.
// Underscores separate too, which handles snake_case.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// splitCamel splits one word at lower-to-upper transitions and before
// the final upper of an acronym run ("HTTPServer" -> "HTTP", "Server").
func splitCamel(word string) []string {
	runes := []rune(word)
	if len(runes) == 0 {
		return nil
	}
	var parts []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := false
		if unicode.IsUpper(cur) && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
			boundary = true
		} else if i+1 < len(runes) && unicode.IsUpper(prev) && unicode.IsUpper(cur) && unicode.IsLower(runes[i+1]) {
			boundary = true
		}
		if boundary {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	parts = append(parts, string(runes[start:]))
	return parts
}

// PathTokens tokenizes a relative file path, splitting on separators
// and dropping the extension of the final segment.
func PathTokens(relPath string) []string {
	var tokens []string
	segments := strings.Split(relPath, "/")
	for i, seg := range segments {
		if i == len(segments)-1 {
			if dot := strings.LastIndexByte(seg, '.'); dot > 0 {
				seg = seg[:dot]
			}
		}
		tokens = append(tokens, Tokenize(seg)...)
	}
	return tokens
}
