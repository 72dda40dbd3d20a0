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

// Package gate implements the Significance Gate (§4.J): decides whether a
// changed file's new summary should propagate to its ancestor module and
// repo summaries.
package gate

import (
	"context"
	"strings"

	diffmatchpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/kbhalerao/codesmriti/pkg/embedding"
)

const (
	cosineNotSignificantAbove = 0.95
	cosineSignificantBelow    = 0.80
	ratioNotSignificantAbove  = 0.90
	ratioSignificantBelow     = 0.70
)

var minorKeywords = []string{
	"fix", "typo", "comment", "format", "style", "cleanup", "lint", "whitespace", "minor",
}

var significantKeywords = []string{
	"new feature", "added", "implements", "creates", "api", "interface",
	"breaking", "refactor", "architecture", "dependency", "integration",
}

// Input bundles everything the gate needs to decide. OldEmbedding and
// Embedder are both optional; when either is absent the gate falls
// through to the text heuristic.
type Input struct {
	Ctx          context.Context
	OldSummary   string
	NewSummary   string
	DiffText     string
	OldEmbedding []float32
	Embedder     Embedder
	Disabled     bool
}

// Embedder is the subset of *embedding.Client the gate needs.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

// Decision is the gate's verdict plus the reasoning path taken, useful for
// audit logging.
type Decision struct {
	Significant bool
	Reason      string
}

// Evaluate implements the §4.J decision order exactly.
func Evaluate(in Input) Decision {
	if in.OldSummary == "" {
		return Decision{true, "no_old_summary"}
	}
	if in.OldSummary == in.NewSummary {
		return Decision{false, "identical_summary"}
	}
	if in.Disabled {
		return Decision{true, "gate_disabled"}
	}

	if sim, ok := cosineSimilarity(in); ok {
		switch {
		case sim > cosineNotSignificantAbove:
			return Decision{false, "embedding_similar"}
		case sim < cosineSignificantBelow:
			return Decision{true, "embedding_dissimilar"}
		}
	}

	return textHeuristic(in.OldSummary, in.NewSummary, in.DiffText)
}

func cosineSimilarity(in Input) (float64, bool) {
	if len(in.OldEmbedding) == 0 || in.Embedder == nil {
		return 0, false
	}
	ctx := in.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	newEmbedding, err := in.Embedder.EmbedDocument(ctx, in.NewSummary)
	if err != nil || len(newEmbedding) == 0 {
		return 0, false
	}
	return embedding.CosineSimilarity(in.OldEmbedding, newEmbedding), true
}

func textHeuristic(oldSummary, newSummary, diffText string) Decision {
	ratio := sequenceRatio(oldSummary, newSummary)
	combined := strings.ToLower(diffText + " " + newSummary)

	if ratio >= ratioNotSignificantAbove {
		return Decision{false, "text_ratio_high"}
	}

	hasMinor := containsAny(combined, minorKeywords)
	hasSignificant := containsAny(combined, significantKeywords)
	if hasMinor && !hasSignificant {
		return Decision{false, "minor_keywords"}
	}
	if hasSignificant {
		return Decision{true, "significant_keywords"}
	}
	if ratio < ratioSignificantBelow {
		return Decision{true, "text_ratio_low"}
	}
	return Decision{true, "default_conservative"}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// sequenceRatio approximates Python's difflib.SequenceMatcher.ratio():
// 2.0*M / T where M is "matching characters" and T is total length. We
// derive M from the Levenshtein edit distance reported by go-diff's
// diffmatchpatch, which gives an equivalent similarity signal without
// reimplementing the matching-blocks algorithm by hand.
func sequenceRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	total := len(a) + len(b)
	if total == 0 {
		return 1.0
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	dist := dmp.DiffLevenshtein(diffs)
	matching := float64(total-2*dist) / 2.0
	if matching < 0 {
		matching = 0
	}
	return 2.0 * matching / float64(total)
}
