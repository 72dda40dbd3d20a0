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

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/kbhalerao/codesmriti/internal/config"
	"github.com/kbhalerao/codesmriti/internal/output"
	"github.com/kbhalerao/codesmriti/internal/ui"
	"github.com/kbhalerao/codesmriti/pkg/criticality"
)

// analyzeCommand runs full criticality analysis over one or more pydeps
// JSON exports: PageRank scoring, percentile ranking, and an optional JSON
// export of the detailed result (mirrors cmd_analyze in the
// source-included criticality module).
func analyzeCommand(args []string, cfg config.Config, logger *slog.Logger) exitCode {
	fs := pflag.NewFlagSet("analyze", pflag.ContinueOnError)
	repoFlag := fs.String("repo", "", "Repo id to scope the analysis to (used as the graph's node namespace)")
	pydepsFlag := fs.String("pydeps", "", "Comma-separated pydeps JSON file paths")
	prefixesFlag := fs.String("prefixes", "", "Comma-separated project module prefixes")
	topFlag := fs.Int("top", 20, "Number of top-ranked modules to print")
	outputFlag := fs.String("output", "", "Optional path to write the full JSON analysis")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailed
	}

	if *pydepsFlag == "" {
		fmt.Fprintln(os.Stderr, "analyze: --pydeps is required")
		return exitFailed
	}
	prefixes := splitCSV(*prefixesFlag)
	if len(prefixes) == 0 {
		fmt.Fprintln(os.Stderr, "analyze: --prefixes is required")
		return exitFailed
	}
	repoID := *repoFlag
	if repoID == "" {
		repoID = "analysis"
	}

	data, err := criticality.LoadPydepsFiles(splitCSV(*pydepsFlag))
	if err != nil {
		logger.Error("ingest.analyze.load", "error", err)
		return exitFailed
	}

	g := criticality.BuildGraph(data, repoID, prefixes)
	scores := criticality.PageRank(g)
	analysis := criticality.Analyze(g, scores)

	printTopModules(analysis, *topFlag)

	if *outputFlag != "" {
		if err := writeAnalysisJSON(*outputFlag, analysis); err != nil {
			logger.Error("ingest.analyze.output", "error", err)
			return exitFailed
		}
		ui.Successf("wrote analysis to %s", *outputFlag)
	}

	return exitOK
}

func printTopModules(a criticality.Analysis, top int) {
	fmt.Printf("nodes: %d, edges: %d\n\n", a.NodeCount, a.EdgeCount)
	fmt.Printf("%-50s %10s %8s %8s %8s\n", "module", "score", "pctile", "in", "out")
	n := top
	if n > len(a.Scores) {
		n = len(a.Scores)
	}
	for _, s := range a.Scores[:n] {
		fmt.Printf("%-50s %10.6f %7.1f%% %8d %8d\n", s.Module, s.Score, s.Percentile, s.InDegree, s.OutDegree)
	}
}

func writeAnalysisJSON(path string, a criticality.Analysis) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return output.JSONTo(f, a)
}
