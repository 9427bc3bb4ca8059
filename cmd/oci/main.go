package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/omnidex/oci/internal/cache"
	"github.com/omnidex/oci/internal/config"
	"github.com/omnidex/oci/internal/debug"
	"github.com/omnidex/oci/internal/indexing"
	"github.com/omnidex/oci/internal/mcp"
	"github.com/omnidex/oci/internal/query"
	"github.com/omnidex/oci/internal/state"
	"github.com/omnidex/oci/internal/version"
)

func main() {
	app := &cli.App{
		Name:                   "oci",
		Usage:                  "Omniscient code index - deterministic code search for AI agents",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Repository root to analyze (default: $OCI_WORKSPACE or .)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default: <root>/.oci.toml)",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output the machine-readable envelope",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "index",
				Usage: "Run discovery and an incremental index update",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Force full rebuild (ignore manifest and caches)",
					},
					&cli.StringSliceFlag{
						Name:  "include",
						Usage: "Re-include paths matching glob (repeatable)",
					},
					&cli.StringSliceFlag{
						Name:  "exclude",
						Usage: "Exclude paths matching glob (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "no-default-excludes",
						Usage: "Disable the built-in exclude set",
					},
					&cli.BoolFlag{
						Name:  "include-hidden",
						Usage: "Include hidden files and directories",
					},
					&cli.BoolFlag{
						Name:  "include-large",
						Usage: "Ignore the file size cap",
					},
					&cli.Int64Flag{
						Name:  "max-file-size",
						Usage: "Max file size in bytes (ignored with --include-large)",
					},
				},
				Action: indexCommand,
			},
			{
				Name:      "search",
				Usage:     "Ranked BM25 search (basic result payload)",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "workspace",
						Aliases: []string{"w"},
						Usage:   "Workspace root (overrides --root for this command)",
					},
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"n"},
						Usage:   "Maximum results",
						Value:   10,
					},
				},
				Action: searchCommand,
			},
			{
				Name:      "query",
				Usage:     "Ranked BM25 search with extended payload (spans, preview)",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "workspace",
						Aliases: []string{"w"},
						Usage:   "Workspace root (overrides --root for this command)",
					},
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k", "n"},
						Usage:   "Maximum results",
						Value:   10,
					},
					&cli.StringSliceFlag{
						Name:  "filters",
						Usage: "Extra filter tokens (path:..., ext:..., kind:..., negatable with -)",
					},
				},
				Action: queryCommand,
			},
			{
				Name:      "symbol",
				Usage:     "Find symbol definitions by name",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "scoped",
						Usage: "Exact scoped-name match",
					},
					&cli.BoolFlag{
						Name:  "prefix",
						Usage: "Prefix scan over simple names",
					},
				},
				Action: symbolCommand,
			},
			{
				Name:      "calls",
				Usage:     "Forward or backward call-graph traversal",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "direction",
						Aliases: []string{"d"},
						Usage:   "callers or callees",
						Value:   "callers",
					},
				},
				Action: callsCommand,
			},
			{
				Name:      "fold",
				Usage:     "Render a file as a signature skeleton",
				ArgsUsage: "<file>",
				Action:    foldCommand,
			},
			{
				Name:   "topology",
				Usage:  "File import graph with PageRank relevance scores",
				Action: topologyCommand,
			},
			{
				Name:   "status",
				Usage:  "Index statistics",
				Action: statusCommand,
			},
			{
				Name:   "watch",
				Usage:  "Watch the repository and apply targeted updates",
				Action: watchCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the tool surface over MCP stdio",
				Action: mcpCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		// cli.Exit errors carry their own code and were already
		// rendered; anything else is a usage-level failure.
		if _, ok := err.(cli.ExitCoder); ok {
			cli.HandleExitCoder(err)
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}

// setup resolves the root, loads config, and builds the indexer/state
// pair used by every command.
func setup(c *cli.Context) (*config.Config, *indexing.Indexer, *state.State, error) {
	rootFlag := c.String("workspace")
	if rootFlag == "" {
		rootFlag = c.String("root")
	}
	root := config.ResolveRoot(rootFlag)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := os.Stat(absRoot); err != nil {
		return nil, nil, nil, fmt.Errorf("root %s: %w", root, err)
	}

	var cfg *config.Config
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
		if err == nil {
			cfg.Project.Root = absRoot
		}
	} else {
		cfg, err = config.LoadForRoot(absRoot)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	ix, err := indexing.New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, ix, state.New(cfg.Project.Root), nil
}

// refresh brings the state up to date before a read-only command: the
// manifest-driven update skips everything unchanged, so repeated
// invocations stay near-incremental.
func refresh(c *cli.Context) (*config.Config, *query.Engine, *state.State, error) {
	cfg, ix, st, err := setup(c)
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := ix.Update(commandContext(), st, indexing.OptionsFromConfig(cfg)); err != nil {
		return nil, nil, nil, err
	}
	return cfg, query.New(st), st, nil
}

// commandContext cancels on SIGINT/SIGTERM for cooperative
// cancellation of long operations.
func commandContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx
}

func indexCommand(c *cli.Context) error {
	cfg, ix, st, err := setup(c)
	if err != nil {
		return fail(c, err)
	}

	opts := indexing.OptionsFromConfig(cfg)
	opts.Force = c.Bool("force")
	if v := c.StringSlice("include"); len(v) > 0 {
		opts.Include = append(opts.Include, v...)
	}
	if v := c.StringSlice("exclude"); len(v) > 0 {
		opts.Exclude = append(opts.Exclude, v...)
	}
	if c.Bool("no-default-excludes") {
		opts.NoDefaultExcludes = true
	}
	if c.Bool("include-hidden") {
		opts.IncludeHidden = true
	}
	if c.Bool("include-large") {
		opts.IncludeLarge = true
	}
	if v := c.Int64("max-file-size"); v > 0 {
		opts.MaxFileSize = v
	}

	report, err := ix.Update(commandContext(), st, opts)
	if err != nil {
		return fail(c, err)
	}
	return emit(c, "index", map[string]interface{}{
		"files":          report.TotalFiles,
		"files_reparsed": report.FilesReparsed,
		"files_skipped":  report.FilesSkipped,
		"files_removed":  report.FilesRemoved,
		"symbols":        report.Symbols,
	}, func() {
		fmt.Printf("Indexed %d files (%d reparsed, %d skipped, %d removed): %d symbols\n",
			report.TotalFiles, report.FilesReparsed, report.FilesSkipped,
			report.FilesRemoved, report.Symbols)
	})
}

func searchCommand(c *cli.Context) error {
	rawQuery := c.Args().First()
	if rawQuery == "" {
		return usage(c, "search requires a query argument")
	}
	_, engine, _, err := refresh(c)
	if err != nil {
		return fail(c, err)
	}

	results, err := engine.Search(rawQuery, c.Int("top-k"))
	if err != nil {
		return fail(c, err)
	}

	basic := make([]query.SearchResult, len(results))
	for i, r := range results {
		basic[i] = r.SearchResult
	}
	return emit(c, "search", map[string]interface{}{
		"query":   rawQuery,
		"results": basic,
	}, func() {
		printSearchResults(basic)
	})
}

func queryCommand(c *cli.Context) error {
	rawQuery := c.Args().First()
	if rawQuery == "" {
		return usage(c, "query requires a query argument")
	}
	_, engine, _, err := refresh(c)
	if err != nil {
		return fail(c, err)
	}

	results, err := engine.Search(rawQuery, c.Int("top-k"), c.StringSlice("filters")...)
	if err != nil {
		return fail(c, err)
	}
	return emit(c, "query", map[string]interface{}{
		"query":   rawQuery,
		"top_k":   c.Int("top-k"),
		"results": results,
	}, func() {
		printQueryResults(results)
	})
}

func symbolCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return usage(c, "symbol requires a name argument")
	}
	_, engine, _, err := refresh(c)
	if err != nil {
		return fail(c, err)
	}

	results := engine.Symbols(name, c.Bool("scoped"), c.Bool("prefix"))
	return emit(c, "symbol", map[string]interface{}{
		"query":   name,
		"results": results,
	}, func() {
		printSymbolResults(results)
	})
}

func callsCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return usage(c, "calls requires a name argument")
	}
	direction := c.String("direction")
	if direction != "callers" && direction != "callees" {
		return usage(c, "direction must be callers or callees")
	}
	_, engine, _, err := refresh(c)
	if err != nil {
		return fail(c, err)
	}

	payload := map[string]interface{}{
		"symbol":    name,
		"direction": direction,
	}
	if direction == "callers" {
		results := engine.Callers(name)
		payload["results"] = results
		return emit(c, "calls", payload, func() { printCallers(results) })
	}
	results := engine.Callees(name)
	payload["results"] = results
	return emit(c, "calls", payload, func() { printCallees(results) })
}

func foldCommand(c *cli.Context) error {
	file := c.Args().First()
	if file == "" {
		return usage(c, "fold requires a file argument")
	}
	_, engine, _, err := refresh(c)
	if err != nil {
		return fail(c, err)
	}

	entries, err := engine.Fold(file)
	if err != nil {
		return fail(c, err)
	}
	return emit(c, "fold", map[string]interface{}{
		"file":    file,
		"results": entries,
	}, func() {
		printFold(entries)
	})
}

func topologyCommand(c *cli.Context) error {
	_, engine, _, err := refresh(c)
	if err != nil {
		return fail(c, err)
	}
	results := engine.Topology()
	return emit(c, "topology", map[string]interface{}{
		"results": results,
	}, func() {
		printTopology(results)
	})
}

func statusCommand(c *cli.Context) error {
	_, _, st, err := refresh(c)
	if err != nil {
		return fail(c, err)
	}
	stats := st.Stats()
	if _, err := os.Stat(cache.BM25Path(st.Root())); err == nil {
		stats.HasBM25 = true
	}
	return emit(c, "status", map[string]interface{}{
		"files":          stats.FileCount,
		"symbols":        stats.SymbolCount,
		"call_edges":     stats.CallEdgeCount,
		"topology_nodes": stats.TopologyNodes,
		"bm25_cached":    stats.HasBM25,
	}, func() {
		fmt.Printf("files: %d\nsymbols: %d\ncall edges: %d\ntopology nodes: %d\nbm25 cached: %v\n",
			stats.FileCount, stats.SymbolCount, stats.CallEdgeCount, stats.TopologyNodes, stats.HasBM25)
	})
}

func watchCommand(c *cli.Context) error {
	cfg, ix, st, err := setup(c)
	if err != nil {
		return fail(c, err)
	}
	ctx := commandContext()
	if _, err := ix.Update(ctx, st, indexing.OptionsFromConfig(cfg)); err != nil {
		return fail(c, err)
	}
	fmt.Fprintf(os.Stderr, "watching %s\n", cfg.Project.Root)

	watcher := indexing.NewWatcher(ix, st)
	if err := watcher.Run(ctx); err != nil && err != context.Canceled {
		return fail(c, err)
	}
	return nil
}

func mcpCommand(c *cli.Context) error {
	// MCP owns stdio: suppress all logging before anything can print.
	debug.SetMCPMode(true)

	cfg, ix, st, err := setup(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	ctx := commandContext()
	if _, err := ix.Update(ctx, st, indexing.OptionsFromConfig(cfg)); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	server := mcp.NewServer(cfg, ix, st)
	if err := server.Run(ctx); err != nil && err != context.Canceled {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}
