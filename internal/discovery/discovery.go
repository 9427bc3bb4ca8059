// Package discovery enumerates repository source files honoring
// gitignore rules, default excludes, and size/extension filters.
// Output ordering is stable across runs (sorted by relative path) so
// downstream JSON and tests are deterministic.
package discovery

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/omnidex/oci/internal/debug"
	"github.com/omnidex/oci/internal/types"
)

// defaultExcludePatterns covers common build outputs, lockfiles,
// minified assets, and binary types. Matched with doublestar against
// the forward-slash relative path.
var defaultExcludePatterns = []string{
	"**/.git/**",
	"**/.omni/**",
	"**/target/**",
	"**/node_modules/**",
	"**/dist/**",
	"**/build/**",
	"**/out/**",
	"**/coverage/**",
	"**/vendor/**",
	"**/.venv/**",
	"**/.next/**",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/Cargo.lock",
	"**/*.min.js",
	"**/*.min.css",
	"**/*.map",
	"**/*.png",
	"**/*.jpg",
	"**/*.jpeg",
	"**/*.gif",
	"**/*.webp",
	"**/*.pdf",
	"**/*.zip",
	"**/*.gz",
	"**/*.tar",
	"**/*.tgz",
	"**/*.jar",
	"**/*.wasm",
	"**/*.o",
	"**/*.a",
	"**/*.so",
	"**/*.dylib",
	"**/*.dll",
}

// Options controls a discovery walk.
type Options struct {
	// Extensions holds lowercase extensions (no dot) that pass the
	// filter. Empty means all extensions pass.
	Extensions []string
	// Include re-includes paths matching these globs even when an
	// exclude pattern matches them.
	Include []string
	// Exclude drops paths matching these globs.
	Exclude []string
	// NoDefaultExcludes disables the built-in exclude set entirely.
	NoDefaultExcludes bool
	// IncludeHidden admits dot-files and dot-directories.
	IncludeHidden bool
	// IncludeLarge disables the size cap.
	IncludeLarge bool
	// MaxFileSize rejects files above this many bytes unless
	// IncludeLarge is set. 0 means the built-in default.
	MaxFileSize int64
	// RespectGitignore applies hierarchical .gitignore files.
	RespectGitignore bool
}

// File is one discovered candidate.
type File struct {
	// RelPath is repository-relative with forward slashes.
	RelPath string
	// AbsPath is the host path for reading.
	AbsPath string
	Size    int64
}

type walker struct {
	root string
	opts Options
	exts map[string]bool
}

// gitignoreFrame is one directory's compiled .gitignore plus the
// relative directory it applies from.
type gitignoreFrame struct {
	dirRel  string // "" for root
	matcher *ignore.GitIgnore
}

// Discover walks root and returns the candidate files, sorted by
// relative path.
func Discover(root string, opts Options) ([]File, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "discover", Path: root, Err: fs.ErrInvalid}
	}

	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = types.DefaultMaxFileSize
	}
	w := &walker{root: absRoot, opts: opts}
	if len(opts.Extensions) > 0 {
		w.exts = make(map[string]bool, len(opts.Extensions))
		for _, e := range opts.Extensions {
			w.exts[strings.ToLower(strings.TrimPrefix(e, "."))] = true
		}
	}

	var files []File
	err = w.walkDir(absRoot, "", nil, &files)
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func (w *walker) walkDir(absDir, relDir string, stack []gitignoreFrame, files *[]File) error {
	// Pick up this directory's .gitignore before descending so its
	// rules apply to siblings in the same listing.
	if w.opts.RespectGitignore {
		if gi, err := ignore.CompileIgnoreFile(filepath.Join(absDir, ".gitignore")); err == nil && gi != nil {
			stack = append(stack, gitignoreFrame{dirRel: relDir, matcher: gi})
		}
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		// Unreadable directories are skipped, not fatal: the walk is
		// best-effort over whatever the process can see.
		debug.LogIndexing("skipping unreadable dir %s: %v", absDir, err)
		return nil
	}

	for _, entry := range entries {
		name := entry.Name()
		rel := name
		if relDir != "" {
			rel = relDir + "/" + name
		}

		if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
			continue
		}

		if entry.IsDir() {
			if w.excluded(rel+"/") && !w.reincluded(rel+"/") {
				// Keep descending when an include override may match a
				// path beneath this directory; its files are checked
				// one by one below.
				beneath := false
				for _, pat := range w.opts.Include {
					if strings.HasPrefix(pat, rel+"/") || strings.HasPrefix(pat, "**") {
						beneath = true
						break
					}
				}
				if !beneath {
					continue
				}
			}
			if w.gitignored(stack, rel, true) && !w.reincluded(rel+"/") {
				continue
			}
			if err := w.walkDir(filepath.Join(absDir, name), rel, stack, files); err != nil {
				return err
			}
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}

		if w.excluded(rel) && !w.reincluded(rel) {
			continue
		}
		if w.gitignored(stack, rel, false) && !w.reincluded(rel) {
			continue
		}
		if w.exts != nil {
			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
			if !w.exts[ext] {
				continue
			}
		}

		fi, err := entry.Info()
		if err != nil {
			continue
		}
		if !w.opts.IncludeLarge && fi.Size() > w.opts.MaxFileSize {
			continue
		}

		*files = append(*files, File{
			RelPath: rel,
			AbsPath: filepath.Join(absDir, name),
			Size:    fi.Size(),
		})
	}
	return nil
}

// excluded reports whether rel matches the default or user exclude set.
func (w *walker) excluded(rel string) bool {
	if !w.opts.NoDefaultExcludes {
		for _, pat := range defaultExcludePatterns {
			if ok, _ := doublestar.Match(pat, rel); ok {
				return true
			}
			if ok, _ := doublestar.Match(pat, strings.TrimSuffix(rel, "/")); ok {
				return true
			}
		}
	}
	for _, pat := range w.opts.Exclude {
		if ok, _ := doublestar.Match(pat, strings.TrimSuffix(rel, "/")); ok {
			return true
		}
	}
	return false
}

// reincluded reports whether rel matches a user include override.
func (w *walker) reincluded(rel string) bool {
	for _, pat := range w.opts.Include {
		if ok, _ := doublestar.Match(pat, strings.TrimSuffix(rel, "/")); ok {
			return true
		}
	}
	return false
}

// gitignored checks rel against every .gitignore on the directory
// stack, innermost last (gitignore semantics: deeper files override,
// and sabhiram's matcher already resolves negations within one file).
func (w *walker) gitignored(stack []gitignoreFrame, rel string, isDir bool) bool {
	matched := false
	for _, frame := range stack {
		local := rel
		if frame.dirRel != "" {
			local = strings.TrimPrefix(rel, frame.dirRel+"/")
		}
		probe := local
		if isDir {
			probe = local + "/"
		}
		if frame.matcher.MatchesPath(probe) {
			matched = true
		}
	}
	return matched
}
