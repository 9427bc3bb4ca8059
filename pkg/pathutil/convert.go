// Package pathutil provides utilities for converting between absolute
// and repository-relative paths.
//
// Architecture Pattern:
// oci uses absolute paths while walking the filesystem, but every path
// that reaches state, caches, or user-facing output is repo-relative
// with forward slashes, regardless of host OS. This package is the
// conversion layer between the two representations.
package pathutil

import (
	"path/filepath"
	"strings"
)

// ToRelative converts an absolute path to a forward-slash relative path
// based on a root directory. Falls back to the slash-normalized input
// if conversion fails or the path lies outside the root.
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return filepath.ToSlash(absPath)
	}
	if !filepath.IsAbs(absPath) {
		return filepath.ToSlash(absPath)
	}

	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)

	relPath, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		return filepath.ToSlash(absPath)
	}
	if strings.HasPrefix(relPath, "..") {
		return filepath.ToSlash(absPath)
	}
	return filepath.ToSlash(relPath)
}

// FromRelative joins a repo-relative forward-slash path back onto the
// root using the host separator.
func FromRelative(relPath, rootDir string) string {
	if filepath.IsAbs(relPath) {
		return filepath.Clean(relPath)
	}
	return filepath.Join(rootDir, filepath.FromSlash(relPath))
}

// Ext returns the lowercase extension of a path without the leading dot.
func Ext(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
