package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/omnidex/oci/internal/envelope"
	"github.com/omnidex/oci/internal/query"
)

// emit renders a successful result: the envelope on stdout in --json
// mode, otherwise the human printer.
func emit(c *cli.Context, opType string, payload map[string]interface{}, human func()) error {
	if c.Bool("json") {
		text, err := envelope.Encode(envelope.Success(opType, payload))
		if err != nil {
			return fail(c, err)
		}
		fmt.Println(text)
		return nil
	}
	human()
	return nil
}

// fail renders an operation error and exits with status 1. In --json
// mode the error envelope is the only stdout content; otherwise a
// single diagnostic line goes to stderr.
func fail(c *cli.Context, err error) error {
	if c.Bool("json") {
		if text, encErr := envelope.Encode(envelope.Error(err)); encErr == nil {
			fmt.Println(text)
		}
		return cli.Exit("", 1)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return cli.Exit("", 1)
}

// usage reports an argument error and exits with status 2.
func usage(c *cli.Context, msg string) error {
	if c.Bool("json") {
		env := envelope.Error(fmt.Errorf("%s", msg))
		if info, ok := env["error"].(envelope.ErrorInfo); ok {
			info.Code = "invalid_query"
			env["error"] = info
		}
		if text, err := envelope.Encode(env); err == nil {
			fmt.Println(text)
		}
		return cli.Exit("", 2)
	}
	return cli.Exit("Error: "+msg, 2)
}

func printSearchResults(results []query.SearchResult) {
	if len(results) == 0 {
		fmt.Println("no results")
		return
	}
	for _, r := range results {
		fmt.Printf("%8.3f  %s  %s:%d  [%s]\n", r.Score, r.Symbol, r.File, r.Line, r.Kind)
	}
}

func printQueryResults(results []query.QueryResult) {
	if len(results) == 0 {
		fmt.Println("no results")
		return
	}
	for _, r := range results {
		fmt.Printf("%8.3f  %s  %s:%d:%d  [%s]\n", r.Score, r.Symbol, r.File, r.Line, r.StartCol, r.Kind)
		if r.Preview != "" {
			fmt.Printf("          %s\n", r.Preview)
		}
	}
}

func printSymbolResults(results []query.SymbolResult) {
	if len(results) == 0 {
		fmt.Println("no matches")
		return
	}
	for _, r := range results {
		fmt.Printf("%s  %s:%d:%d  [%s, %s]\n", r.Symbol, r.File, r.Line, r.Col, r.Kind, r.Visibility)
		if r.Signature != "" {
			fmt.Printf("    %s\n", r.Signature)
		}
	}
}

func printCallers(results []query.CallResult) {
	if len(results) == 0 {
		fmt.Println("no callers")
		return
	}
	for _, r := range results {
		fmt.Printf("%s -> %s  %s:%d:%d\n", r.Caller, r.Callee, r.File, r.Line, r.Col)
	}
}

func printCallees(results []query.CalleeResult) {
	if len(results) == 0 {
		fmt.Println("no callees")
		return
	}
	for _, r := range results {
		fmt.Printf("%s -> %s  %s:%d:%d\n", r.Caller, r.Callee, r.File, r.Line, r.Col)
		for _, cand := range r.Candidates {
			fmt.Printf("    candidate: %s  %s:%d\n", cand.Symbol, cand.File, cand.Line)
		}
	}
}

func printFold(entries []query.FoldEntry) {
	if len(entries) == 0 {
		fmt.Println("no symbols")
		return
	}
	for _, e := range entries {
		fmt.Printf("%5d-%-5d %-9s %s\n", e.Line, e.EndLine, e.Kind, e.Head)
	}
}

func printTopology(entries []query.TopologyEntry) {
	if len(entries) == 0 {
		fmt.Println("no files")
		return
	}
	for _, e := range entries {
		fmt.Printf("%.6f  %s  (%d imports)\n", e.Score, e.File, e.Imports)
	}
}
