// Package cache persists the index under <root>/.omni/: manifest.json
// (human-readable fingerprints), state.bin (symbol/edge/topology
// snapshot), and bm25.bin (search index). All three carry the same
// version tag; a mismatch on any triggers a full rebuild.
//
// Binary payloads are gob-encoded and zstd-compressed. Every write
// goes to a temp file first and is renamed into place so readers never
// observe a torn cache.
package cache

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/omnidex/oci/internal/search"
	"github.com/omnidex/oci/internal/state"
	"github.com/omnidex/oci/internal/types"
)

const (
	// DirName is the cache directory under the repository root.
	DirName = ".omni"

	ManifestFile = "manifest.json"
	StateFile    = "state.bin"
	BM25File     = "bm25.bin"
)

// Dir returns the cache directory for a root.
func Dir(root string) string {
	return filepath.Join(root, DirName)
}

// EnsureDir creates the cache directory.
func EnsureDir(root string) error {
	return os.MkdirAll(Dir(root), 0o755)
}

// ManifestPath returns the manifest location for a root.
func ManifestPath(root string) string {
	return filepath.Join(Dir(root), ManifestFile)
}

// StatePath returns the state snapshot location for a root.
func StatePath(root string) string {
	return filepath.Join(Dir(root), StateFile)
}

// BM25Path returns the BM25 cache location for a root.
func BM25Path(root string) string {
	return filepath.Join(Dir(root), BM25File)
}

// Clear removes the entire cache directory.
func Clear(root string) error {
	dir := Dir(root)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return os.RemoveAll(dir)
}

// LoadManifest reads manifest.json. A missing manifest returns
// (nil, nil).
func LoadManifest(root string) (*types.Manifest, error) {
	data, err := os.ReadFile(ManifestPath(root))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m types.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Fingerprints == nil {
		m.Fingerprints = make(map[string]types.FileFingerprint)
	}
	if m.Warnings == nil {
		m.Warnings = make(map[string]string)
	}
	return &m, nil
}

// SaveManifest writes manifest.json via temp-then-rename. Map keys are
// sorted by encoding/json, so the bytes are deterministic.
func SaveManifest(root string, m *types.Manifest) error {
	if err := EnsureDir(root); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(ManifestPath(root), data)
}

// Stamp summarizes a manifest's fingerprint set into a single value.
// The BM25 cache is keyed by (version, stamp): any mutation of the
// file set changes the stamp and invalidates the cache.
func Stamp(m *types.Manifest) uint64 {
	paths := make([]string, 0, len(m.Fingerprints))
	for path := range m.Fingerprints {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	h := xxhash.New()
	for _, path := range paths {
		fp := m.Fingerprints[path]
		fmt.Fprintf(h, "%s\x00%d\x00%d\x00%x\n", path, fp.Size, fp.MtimeNanos, fp.ContentHash)
	}
	return h.Sum64()
}

// binHeader fronts every binary cache file.
type binHeader struct {
	Version string
	Stamp   uint64
}

// SaveState writes the state snapshot.
func SaveState(root, version string, stamp uint64, snap *state.Snapshot) error {
	return saveBinary(StatePath(root), root, version, stamp, func(enc *gob.Encoder) error {
		return enc.Encode(snap)
	})
}

// LoadState reads a state snapshot, verifying the version and stamp.
// Returns (nil, nil) when the file is absent; a mismatched header also
// returns (nil, nil) so stale caches get rebuilt instead of erroring.
func LoadState(root, version string, stamp uint64) (*state.Snapshot, error) {
	var snap state.Snapshot
	ok, err := loadBinary(StatePath(root), version, stamp, func(dec *gob.Decoder) error {
		return dec.Decode(&snap)
	})
	if err != nil || !ok {
		return nil, err
	}
	return &snap, nil
}

// SaveBM25 writes the search index.
func SaveBM25(root, version string, stamp uint64, ix *search.Index) error {
	return saveBinary(BM25Path(root), root, version, stamp, func(enc *gob.Encoder) error {
		// The index has its own gob framing; nest it as raw bytes so
		// the header stays decodable without touching the payload.
		var buf bytes.Buffer
		if err := ix.Encode(&buf); err != nil {
			return err
		}
		return enc.Encode(buf.Bytes())
	})
}

// LoadBM25 reads the search index, verifying version and stamp.
func LoadBM25(root, version string, stamp uint64) (*search.Index, error) {
	var payload []byte
	ok, err := loadBinary(BM25Path(root), version, stamp, func(dec *gob.Decoder) error {
		return dec.Decode(&payload)
	})
	if err != nil || !ok {
		return nil, err
	}
	return search.Decode(bytes.NewReader(payload))
}

// RemoveBM25 drops the BM25 cache; the next query rebuilds it.
func RemoveBM25(root string) {
	_ = os.Remove(BM25Path(root))
}

func saveBinary(path, root, version string, stamp uint64, encode func(*gob.Encoder) error) error {
	if err := EnsureDir(root); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	zw, err := zstd.NewWriter(bw)
	if err != nil {
		tmp.Close()
		return err
	}
	enc := gob.NewEncoder(zw)
	if err := enc.Encode(binHeader{Version: version, Stamp: stamp}); err != nil {
		zw.Close()
		tmp.Close()
		return err
	}
	if err := encode(enc); err != nil {
		zw.Close()
		tmp.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// loadBinary returns (false, nil) for missing files and header
// mismatches, (false, err) for IO/decode failures.
func loadBinary(path, version string, stamp uint64, decode func(*gob.Decoder) error) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(bufio.NewReader(f))
	if err != nil {
		return false, err
	}
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	var hdr binHeader
	if err := dec.Decode(&hdr); err != nil {
		return false, err
	}
	if hdr.Version != version || hdr.Stamp != stamp {
		return false, nil
	}
	if err := decode(dec); err != nil {
		return false, err
	}
	return true, nil
}

func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

