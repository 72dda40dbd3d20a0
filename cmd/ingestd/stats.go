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
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/kbhalerao/codesmriti/internal/config"
	"github.com/kbhalerao/codesmriti/internal/ui"
	"github.com/kbhalerao/codesmriti/pkg/criticality"
)

// statsCommand reports lightweight dependency-graph statistics over one or
// more pydeps JSON exports: node/edge counts, density, and degree
// distribution. It never writes a JSON export -- that is `analyze`'s job.
func statsCommand(args []string, cfg config.Config, logger *slog.Logger) exitCode {
	fs := pflag.NewFlagSet("stats", pflag.ContinueOnError)
	pydepsFlag := fs.String("pydeps", "", "Comma-separated pydeps JSON file paths")
	prefixesFlag := fs.String("prefixes", "", "Comma-separated project module prefixes")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailed
	}

	if *pydepsFlag == "" {
		fmt.Fprintln(os.Stderr, "stats: --pydeps is required")
		return exitFailed
	}
	prefixes := splitCSV(*prefixesFlag)
	if len(prefixes) == 0 {
		fmt.Fprintln(os.Stderr, "stats: --prefixes is required")
		return exitFailed
	}

	data, err := criticality.LoadPydepsFiles(splitCSV(*pydepsFlag))
	if err != nil {
		ui.Errorf("failed to load pydeps files: %v", err)
		logger.Error("ingest.stats.load", "error", err)
		return exitFailed
	}

	g := criticality.BuildGraph(data, "stats", prefixes)
	printGraphStats(g)
	return exitOK
}

func printGraphStats(g *criticality.Graph) {
	nodes := g.Nodes()
	fmt.Printf("nodes: %d\n", g.NodeCount())
	fmt.Printf("edges: %d\n", g.EdgeCount())

	n := len(nodes)
	if n < 2 {
		fmt.Println("density: 0.0000")
	} else {
		density := float64(g.EdgeCount()) / float64(n*(n-1))
		fmt.Printf("density: %.4f\n", density)
	}

	if n == 0 {
		return
	}

	inDegs := make([]int, 0, n)
	outDegs := make([]int, 0, n)
	var sumIn, sumOut int
	for _, node := range nodes {
		in, out := g.InDegree(node), g.OutDegree(node)
		inDegs = append(inDegs, in)
		outDegs = append(outDegs, out)
		sumIn += in
		sumOut += out
	}
	sort.Ints(inDegs)
	sort.Ints(outDegs)

	fmt.Printf("in-degree:  min=%d max=%d avg=%.2f\n", inDegs[0], inDegs[n-1], float64(sumIn)/float64(n))
	fmt.Printf("out-degree: min=%d max=%d avg=%.2f\n", outDegs[0], outDegs[n-1], float64(sumOut)/float64(n))
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
