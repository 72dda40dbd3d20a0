// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package main implements the ingestd CLI for the hierarchical
// code-knowledge ingestion pipeline.
//
// Usage:
//
//	ingestd run [--repo owner/name] [--dry-run] [--threshold 0.05] [--no-llm] [--trigger manual]
//	ingestd stats [--pydeps] [--prefixes]
//	ingestd analyze
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/kbhalerao/codesmriti/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "", "Path to the YAML config file")
		jsonOut     = flag.Bool("json", false, "Force JSON log output")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `ingestd - hierarchical code-knowledge ingestion pipeline

Usage:
  ingestd <command> [options]

Commands:
  run       Run one ingestion pass over the canonical repo set (default)
  stats     Report dependency-graph statistics from pydeps JSON files
  analyze   Rank modules by criticality over a pydeps dependency graph

Global Options:
  --config   Path to the YAML config file
  --json     Force JSON log output (default: auto-detect TTY)
  --version  Show version and exit
`)
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("ingestd version %s (%s)\n", version, commit)
		os.Exit(0)
	}

	logger := newLogger(*jsonOut)

	cfg := config.Defaults()
	var err error
	cfg, err = config.LoadFile(cfg, *configPath)
	if err != nil {
		logger.Error("ingest.config.load_file", "error", err)
		os.Exit(int(exitConfig))
	}
	var warnings []string
	cfg, warnings = config.LoadEnv(cfg)
	for _, w := range warnings {
		logger.Warn("ingest.config.env", "warning", w)
	}

	args := flag.Args()
	command := "run"
	cmdArgs := args
	if len(args) > 0 && !isFlagLike(args[0]) {
		command = args[0]
		cmdArgs = args[1:]
	}

	var code exitCode
	switch command {
	case "run":
		code = runCommand(cmdArgs, cfg, logger)
	case "stats":
		code = statsCommand(cmdArgs, cfg, logger)
	case "analyze":
		code = analyzeCommand(cmdArgs, cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		flag.Usage()
		code = exitFailed
	}
	os.Exit(int(code))
}

func isFlagLike(s string) bool {
	return len(s) > 0 && s[0] == '-'
}

func newLogger(forceJSON bool) *slog.Logger {
	useJSON := forceJSON || !term.IsTerminal(int(os.Stdout.Fd()))
	var handler slog.Handler
	if useJSON {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	return slog.New(handler)
}
