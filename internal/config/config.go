package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pelletier/go-toml/v2"

	"github.com/omnidex/oci/internal/types"
)

// DefaultConfigName is the config file looked up in the workspace root.
const DefaultConfigName = ".oci.toml"

// WorkspaceEnv names the environment variable consulted when no root is
// given on the command line.
const WorkspaceEnv = "OCI_WORKSPACE"

type Config struct {
	Project     Project     `toml:"project"`
	Index       Index       `toml:"index"`
	Performance Performance `toml:"performance"`
	Search      Search      `toml:"search"`
}

type Project struct {
	// Root is the absolute path of the repository to index.
	Root string `toml:"root"`
	Name string `toml:"name"`
}

type Index struct {
	MaxFileSize       int64    `toml:"max_file_size"`
	IncludeHidden     bool     `toml:"include_hidden"`
	IncludeLarge      bool     `toml:"include_large"`
	NoDefaultExcludes bool     `toml:"no_default_excludes"`
	Include           []string `toml:"include"`
	Exclude           []string `toml:"exclude"`
	RespectGitignore  bool     `toml:"respect_gitignore"`
	WatchDebounceMs   int      `toml:"watch_debounce_ms"`
}

type Performance struct {
	// ParallelFileWorkers bounds the parse pool. 0 = auto-detect (NumCPU).
	ParallelFileWorkers int `toml:"parallel_file_workers"`
}

type Search struct {
	// TopK is the default result count for search/query commands.
	TopK int `toml:"top_k"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Index: Index{
			MaxFileSize:      types.DefaultMaxFileSize,
			RespectGitignore: true,
			WatchDebounceMs:  250,
		},
		Performance: Performance{
			ParallelFileWorkers: 0,
		},
		Search: Search{
			TopK: 10,
		},
	}
}

// Load reads the config file at path, layered over defaults. A missing
// file is not an error; a malformed file is.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadForRoot loads <root>/.oci.toml and pins Project.Root to the
// absolute root path.
func LoadForRoot(root string) (*Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	cfg, err := Load(filepath.Join(absRoot, DefaultConfigName))
	if err != nil {
		return nil, err
	}
	cfg.Project.Root = absRoot
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(absRoot)
	}
	return cfg, nil
}

// ResolveRoot picks the workspace root: explicit flag first, then
// OCI_WORKSPACE, then the current directory.
func ResolveRoot(flagRoot string) string {
	if flagRoot != "" {
		return flagRoot
	}
	if env := os.Getenv(WorkspaceEnv); env != "" {
		return env
	}
	return "."
}

// Workers resolves the effective parse pool size.
func (c *Config) Workers() int {
	if c.Performance.ParallelFileWorkers > 0 {
		return c.Performance.ParallelFileWorkers
	}
	return runtime.NumCPU()
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Index.MaxFileSize < 0 {
		return fmt.Errorf("index.max_file_size must be >= 0, got %d", c.Index.MaxFileSize)
	}
	if c.Performance.ParallelFileWorkers < 0 {
		return fmt.Errorf("performance.parallel_file_workers must be >= 0, got %d", c.Performance.ParallelFileWorkers)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be > 0, got %d", c.Search.TopK)
	}
	return nil
}
