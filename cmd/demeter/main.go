// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

// Command demeter runs the agricultural question-answering core from
// the terminal: answer queries, inspect capabilities, browse persisted
// traces and index documents into the knowledge base.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

const version = "dev"

type globalFlags struct {
	ConfigPath string
	Timeout    time.Duration
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	switch cmd := args[0]; cmd {
	case "query":
		runQuery(ctx, global, args[1:])
	case "capabilities":
		ensureNoArgs(args[1:])
		runCapabilities(global)
	case "traces":
		runTraces(ctx, global, args[1:])
	case "index":
		runIndex(ctx, global, args[1:])
	case "help":
		printUsage()
	case "version":
		fmt.Println("demeter", version)
	default:
		fatal(fmt.Errorf("unknown command %q", cmd))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{
		ConfigPath: os.Getenv("DEMETER_CONFIG"),
		Timeout:    2 * time.Minute,
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --config")
			}
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--timeout":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --timeout")
			}
			value, err := time.ParseDuration(args[i+1])
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
			i++
		case strings.HasPrefix(arg, "--timeout="):
			value, err := time.ParseDuration(strings.TrimPrefix(arg, "--timeout="))
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func printUsage() {
	fmt.Print(`demeter - agricultural question-answering core

Usage:
  demeter [global flags] <command> [args]

Commands:
  query <text>     Answer a query (flags: --mode auto|direct|react|pipeline,
                   --capability NAME, --pipeline NAME, --max-iterations N)
  capabilities     List registered capabilities
  traces           List persisted query traces (flags: --session ID, --mode M, --limit N)
  index <file>     Index a YAML document file into the knowledge base
  version          Print version
  help             Show this help

Global flags:
  --config PATH    Config file (or DEMETER_CONFIG env)
  --timeout DUR    Command timeout (default 2m)
  --json           JSON output
`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func ensureNoArgs(args []string) {
	if len(args) > 0 {
		fatal(fmt.Errorf("unexpected arguments: %s", strings.Join(args, " ")))
	}
}
