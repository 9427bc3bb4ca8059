// Package indexing orchestrates discovery, parsing, and record updates
// against the state store, keyed by a persistent file-fingerprint
// manifest so unchanged files are skipped across process runs.
package indexing

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/omnidex/oci/internal/cache"
	"github.com/omnidex/oci/internal/config"
	"github.com/omnidex/oci/internal/debug"
	"github.com/omnidex/oci/internal/discovery"
	"github.com/omnidex/oci/internal/errors"
	"github.com/omnidex/oci/internal/parser"
	"github.com/omnidex/oci/internal/state"
	"github.com/omnidex/oci/internal/types"
	"github.com/omnidex/oci/internal/version"
)

// Indexer drives full and incremental index operations.
type Indexer struct {
	cfg      *config.Config
	registry *parser.Registry
}

// New creates an indexer. Grammar load failures surface here as
// parse_error; they are not per-file conditions.
func New(cfg *config.Config) (*Indexer, error) {
	registry, err := parser.NewRegistry()
	if err != nil {
		return nil, err
	}
	return &Indexer{cfg: cfg, registry: registry}, nil
}

// Registry exposes the language dispatch map.
func (ix *Indexer) Registry() *parser.Registry { return ix.registry }

// Options control one index operation.
type Options struct {
	// Force discards the manifest and all caches first.
	Force             bool
	Include           []string
	Exclude           []string
	NoDefaultExcludes bool
	IncludeHidden     bool
	IncludeLarge      bool
	MaxFileSize       int64
}

// OptionsFromConfig seeds Options from the loaded config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Include:           cfg.Index.Include,
		Exclude:           cfg.Index.Exclude,
		NoDefaultExcludes: cfg.Index.NoDefaultExcludes,
		IncludeHidden:     cfg.Index.IncludeHidden,
		IncludeLarge:      cfg.Index.IncludeLarge,
		MaxFileSize:       cfg.Index.MaxFileSize,
	}
}

// Report summarizes one index operation.
type Report struct {
	TotalFiles    int `json:"files"`
	FilesReparsed int `json:"files_reparsed"`
	FilesSkipped  int `json:"files_skipped"`
	FilesRemoved  int `json:"files_removed"`
	Symbols       int `json:"symbols"`
	Warnings      int `json:"warnings,omitempty"`
}

// parsedFile carries one worker's extraction results.
type parsedFile struct {
	rel     string
	symbols []types.SymbolDef
	calls   []types.CallEdge
	imports []types.ImportInfo
	err     error
}

// FullIndex forces a full reparse regardless of the manifest.
func (ix *Indexer) FullIndex(ctx context.Context, st *state.State) (Report, error) {
	opts := OptionsFromConfig(ix.cfg)
	opts.Force = true
	return ix.Update(ctx, st, opts)
}

// Update performs an incremental index run: fingerprint every
// discovered file, apply deletions, reparse stale files in parallel,
// re-stitch topology, and rewrite the manifest and state snapshot.
func (ix *Indexer) Update(ctx context.Context, st *state.State, opts Options) (Report, error) {
	root := st.Root()
	start := time.Now()

	if opts.Force {
		if err := cache.Clear(root); err != nil {
			return Report{}, errors.Wrap(errors.CodeIO, err, "clear cache for %s", root)
		}
		st.Reset()
	}

	manifest, err := ix.loadOrInitManifest(st, root, opts.Force)
	if err != nil {
		return Report{}, err
	}

	files, err := discovery.Discover(root, discovery.Options{
		Extensions:        ix.registry.Extensions(),
		Include:           opts.Include,
		Exclude:           opts.Exclude,
		NoDefaultExcludes: opts.NoDefaultExcludes,
		IncludeHidden:     opts.IncludeHidden,
		IncludeLarge:      opts.IncludeLarge,
		MaxFileSize:       opts.MaxFileSize,
		RespectGitignore:  ix.cfg.Index.RespectGitignore,
	})
	if err != nil {
		return Report{}, errors.Wrap(errors.CodeIO, err, "discover files under %s", root)
	}

	report := Report{TotalFiles: len(files)}

	// Fingerprint pass: decide which files are stale.
	seen := make(map[string]bool, len(files))
	var stale []discovery.File
	contents := make(map[string][]byte)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return report, errors.Cancelled("index")
		}
		seen[f.RelPath] = true

		fp, data, changed, err := ix.fingerprint(f, manifest)
		if err != nil {
			// Disk read errors are fatal for the operation; prior
			// records stay intact because nothing was applied yet.
			return report, err
		}
		if !changed && manifest.Warnings[f.RelPath] == "" {
			manifest.Fingerprints[f.RelPath] = fp
			report.FilesSkipped++
			continue
		}
		manifest.Fingerprints[f.RelPath] = fp
		if data != nil {
			contents[f.RelPath] = data
		}
		stale = append(stale, f)
	}

	// Deletions are applied before parses.
	var removed []string
	for rel := range manifest.Fingerprints {
		if !seen[rel] {
			removed = append(removed, rel)
		}
	}
	sort.Strings(removed)
	for _, rel := range removed {
		delete(manifest.Fingerprints, rel)
		delete(manifest.Warnings, rel)
		st.RemoveFile(rel)
		removeFileNode(st, rel)
		report.FilesRemoved++
	}
	for rel := range manifest.Warnings {
		if !seen[rel] {
			delete(manifest.Warnings, rel)
		}
	}

	// Parse stale files in parallel; apply results sequentially so
	// each file's records swap in atomically.
	results := make([]parsedFile, len(stale))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(ix.cfg.Workers())
	for i, f := range stale {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return errors.Cancelled("index")
			}
			data := contents[f.RelPath]
			if data == nil {
				var err error
				data, err = os.ReadFile(f.AbsPath)
				if err != nil {
					return errors.NewFileError("read", f.RelPath, err)
				}
			}
			results[i] = ix.parseOne(f.RelPath, data, st)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return report, err
	}

	for _, res := range results {
		if res.err != nil {
			// Per-file parse issues isolate the file: prior records
			// are preserved and a warning lands in the manifest so the
			// next run retries.
			debug.Warnf("parse failed for %s: %v", res.rel, res.err)
			manifest.Warnings[res.rel] = res.err.Error()
			delete(manifest.Fingerprints, res.rel)
			continue
		}
		delete(manifest.Warnings, res.rel)
		st.ReplaceFile(res.rel, res.symbols, res.calls, res.imports)
		ensureFileNode(st, res.rel)
		restitchImports(st, res.rel, res.imports)
		report.FilesReparsed++
	}

	report.Symbols = st.Stats().SymbolCount
	report.Warnings = len(manifest.Warnings)
	if err := ix.persist(st, root, manifest); err != nil {
		return report, err
	}

	st.SetLastIndexed(time.Now())
	debug.LogIndexing("update of %s: %d files, %d reparsed, %d removed in %s",
		root, report.TotalFiles, report.FilesReparsed, report.FilesRemoved, time.Since(start))
	return report, nil
}

// UpdateFile applies a targeted single-file update, used by watchers.
func (ix *Indexer) UpdateFile(ctx context.Context, st *state.State, relPath string) error {
	root := st.Root()
	absPath := absFor(root, relPath)

	info, err := os.Stat(absPath)
	if err != nil {
		// Gone from disk: treat as removal.
		return ix.RemoveFile(st, relPath)
	}
	if ix.registry.ForFile(relPath) == nil {
		return nil
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return errors.NewFileError("read", relPath, err)
	}

	manifest, err := ix.loadOrInitManifest(st, root, false)
	if err != nil {
		return err
	}

	res := ix.parseOne(relPath, data, st)
	if res.err != nil {
		manifest.Warnings[relPath] = res.err.Error()
		delete(manifest.Fingerprints, relPath)
	} else {
		delete(manifest.Warnings, relPath)
		st.ReplaceFile(relPath, res.symbols, res.calls, res.imports)
		ensureFileNode(st, relPath)
		restitchImports(st, relPath, res.imports)
		manifest.Fingerprints[relPath] = types.FileFingerprint{
			Path:        relPath,
			Size:        info.Size(),
			MtimeNanos:  info.ModTime().UnixNano(),
			ContentHash: xxhash.Sum64(data),
		}
	}

	if err := ix.persist(st, root, manifest); err != nil {
		return err
	}
	st.SetLastIndexed(time.Now())
	return nil
}

// RemoveFile drops all records for a file and its manifest entry.
func (ix *Indexer) RemoveFile(st *state.State, relPath string) error {
	root := st.Root()
	// Load the manifest first: loading may warm an empty state from the
	// snapshot, which would otherwise bring the removed records back.
	manifest, err := ix.loadOrInitManifest(st, root, false)
	if err != nil {
		return err
	}
	st.RemoveFile(relPath)
	removeFileNode(st, relPath)

	delete(manifest.Fingerprints, relPath)
	delete(manifest.Warnings, relPath)
	return ix.persist(st, root, manifest)
}

// persist updates the manifest counters and writes the manifest and
// state snapshot back to the cache.
func (ix *Indexer) persist(st *state.State, root string, manifest *types.Manifest) error {
	stats := st.Stats()
	manifest.SymbolCount = stats.SymbolCount
	manifest.FileCount = stats.FileCount
	if err := cache.SaveManifest(root, manifest); err != nil {
		return errors.Wrap(errors.CodeIO, err, "write manifest")
	}
	stamp := cache.Stamp(manifest)
	if err := cache.SaveState(root, version.Version, stamp, st.Snapshot()); err != nil {
		return errors.Wrap(errors.CodeIO, err, "write state snapshot")
	}
	return nil
}

// loadOrInitManifest reads the on-disk manifest, resetting to an empty
// one on version mismatch (which also resets state: a stale cache is
// rebuilt, never partially trusted). When the process starts with a
// valid manifest and an empty state, the state snapshot is warmed from
// disk so unchanged files are not reparsed.
func (ix *Indexer) loadOrInitManifest(st *state.State, root string, force bool) (*types.Manifest, error) {
	if force {
		return types.NewManifest(version.Version), nil
	}
	manifest, err := cache.LoadManifest(root)
	if err != nil {
		debug.Warnf("manifest unreadable, rebuilding: %v", err)
		st.Reset()
		return types.NewManifest(version.Version), nil
	}
	if manifest == nil {
		return types.NewManifest(version.Version), nil
	}
	if manifest.Version != version.Version {
		debug.Warnf("manifest version %q != %q, rebuilding", manifest.Version, version.Version)
		st.Reset()
		if err := cache.Clear(root); err != nil {
			return nil, errors.Wrap(errors.CodeIO, err, "clear stale cache")
		}
		return types.NewManifest(version.Version), nil
	}

	if st.Stats().FileCount == 0 && manifest.FileCount > 0 {
		stamp := cache.Stamp(manifest)
		snap, err := cache.LoadState(root, version.Version, stamp)
		if err != nil || snap == nil {
			// Without the snapshot the manifest would let unchanged
			// files skip parsing into an empty state. Reparse all.
			debug.Warnf("state snapshot unavailable, reparsing everything")
			return types.NewManifest(version.Version), nil
		}
		st.Restore(snap)
		debug.LogIndexing("state warmed from snapshot: %d symbols", len(snap.Symbols))
	}
	return manifest, nil
}

// fingerprint stats and, when needed, reads and hashes a file. A match
// on (size, mtime) skips hashing for files above the always-hash
// threshold; any mismatch requires a hash comparison before a reparse
// is decided.
func (ix *Indexer) fingerprint(f discovery.File, manifest *types.Manifest) (types.FileFingerprint, []byte, bool, error) {
	info, err := os.Stat(f.AbsPath)
	if err != nil {
		return types.FileFingerprint{}, nil, false, errors.NewFileError("stat", f.RelPath, err)
	}
	mtime := info.ModTime().UnixNano()

	prev, known := manifest.Fingerprints[f.RelPath]
	if known && prev.Size == info.Size() && prev.MtimeNanos == mtime && info.Size() > types.AlwaysHashSizeThreshold {
		return prev, nil, false, nil
	}

	data, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return types.FileFingerprint{}, nil, false, errors.NewFileError("read", f.RelPath, err)
	}
	hash := xxhash.Sum64(data)
	fp := types.FileFingerprint{
		Path:        f.RelPath,
		Size:        info.Size(),
		MtimeNanos:  mtime,
		ContentHash: hash,
	}
	if known && prev.ContentHash == hash {
		return fp, nil, false, nil
	}
	return fp, data, true, nil
}

// parseOne runs the three extraction operations for a single file.
func (ix *Indexer) parseOne(relPath string, data []byte, st *state.State) parsedFile {
	lang := ix.registry.ForFile(relPath)
	if lang == nil {
		return parsedFile{rel: relPath}
	}
	tree, err := lang.Parse(data)
	if err != nil {
		return parsedFile{rel: relPath, err: err}
	}
	defer tree.Close()

	in := st.Interner()
	return parsedFile{
		rel:     relPath,
		symbols: lang.ExtractSymbols(tree, data, relPath, in),
		calls:   lang.ExtractCalls(tree, data, relPath, in),
		imports: lang.ExtractImports(tree, data, relPath),
	}
}
