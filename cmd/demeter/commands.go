// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/demeterhq/demeter/pkg/orchestrator"
	"github.com/demeterhq/demeter/pkg/retrieval"
	qtrace "github.com/demeterhq/demeter/pkg/trace"
)

func runQuery(ctx context.Context, global globalFlags, args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	mode := fs.String("mode", "auto", "processing mode: auto, direct, react, pipeline")
	capName := fs.String("capability", "", "capability name for direct mode")
	pipeName := fs.String("pipeline", "", "pipeline name for pipeline mode")
	maxIter := fs.Int("max-iterations", 0, "override reasoning loop bound")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if fs.NArg() == 0 {
		fatal(fmt.Errorf("query text required"))
	}
	query := strings.Join(fs.Args(), " ")

	a, err := buildApp(true, global.ConfigPath)
	if err != nil {
		fatal(err)
	}
	defer a.close(context.Background())

	ctx, cancel := context.WithTimeout(ctx, global.Timeout)
	defer cancel()

	var opts []orchestrator.ProcessOption
	if *capName != "" {
		opts = append(opts, orchestrator.WithCapability(*capName))
	}
	if *pipeName != "" {
		opts = append(opts, orchestrator.WithPipeline(*pipeName))
	}
	if *maxIter > 0 {
		opts = append(opts, orchestrator.WithIterationLimit(*maxIter))
	}

	tr, err := a.orchestrator.Process(ctx, query, orchestrator.Mode(*mode), opts...)
	if err != nil {
		fatal(err)
	}

	if global.JSON {
		printJSON(tr)
		return
	}
	fmt.Println(tr.FinalAnswer)
	fmt.Printf("\n[success=%t iterations=%d tools=%s time=%.2fs]\n",
		tr.Success, tr.IterationsUsed, strings.Join(tr.ToolsUsed, ","), tr.ExecutionTime)
}

func runCapabilities(global globalFlags) {
	a, err := buildApp(false, global.ConfigPath)
	if err != nil {
		fatal(err)
	}
	defer a.close(context.Background())

	descs := a.registry.List()
	if global.JSON {
		type entry struct {
			Name        string   `json:"name"`
			Category    string   `json:"category"`
			Description string   `json:"description"`
			Keywords    []string `json:"keywords"`
		}
		out := make([]entry, 0, len(descs))
		for _, d := range descs {
			out = append(out, entry{d.Name, string(d.Category), d.Description, d.Keywords})
		}
		printJSON(out)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tDESCRIPTION")
	for _, d := range descs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Category, d.Description)
	}
	w.Flush()
}

func runTraces(ctx context.Context, global globalFlags, args []string) {
	fs := flag.NewFlagSet("traces", flag.ExitOnError)
	session := fs.String("session", "", "filter by session id")
	mode := fs.String("mode", "", "filter by processing mode")
	limit := fs.Int("limit", 20, "maximum records")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	a, err := buildApp(false, global.ConfigPath)
	if err != nil {
		fatal(err)
	}
	defer a.close(context.Background())

	if a.traces == nil {
		fatal(fmt.Errorf("trace persistence is disabled; set trace.enabled in the config"))
	}

	records, err := a.traces.List(ctx, qtrace.Filter{
		SessionID: *session,
		Mode:      *mode,
		Limit:     *limit,
	})
	if err != nil {
		fatal(err)
	}

	if global.JSON {
		printJSON(records)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tMODE\tSUCCESS\tITER\tTOOLS\tQUERY")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\t%s\n",
			rec.RunID, rec.Mode, rec.Success, rec.Iterations,
			strings.Join(rec.ToolsUsed, ","), truncate(rec.Query, 48))
	}
	w.Flush()
}

func runIndex(ctx context.Context, global globalFlags, args []string) {
	if len(args) != 1 {
		fatal(fmt.Errorf("usage: demeter index <file.yaml>"))
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fatal(err)
	}
	var docs []retrieval.Document
	if err := yaml.Unmarshal(data, &docs); err != nil {
		fatal(fmt.Errorf("invalid document file: %w", err))
	}
	if len(docs) == 0 {
		fatal(fmt.Errorf("no documents in %s", args[0]))
	}

	a, err := buildApp(false, global.ConfigPath)
	if err != nil {
		fatal(err)
	}
	defer a.close(context.Background())

	ctx, cancel := context.WithTimeout(ctx, global.Timeout)
	defer cancel()

	if err := a.retriever.Index(ctx, docs); err != nil {
		fatal(err)
	}
	fmt.Printf("indexed %d document(s) into %s\n", len(docs), a.cfg.Retrieval.Collection)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
