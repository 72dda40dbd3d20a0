// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"context"
	"testing"
)

func TestNoOldSummaryIsSignificant(t *testing.T) {
	d := Evaluate(Input{OldSummary: "", NewSummary: "new"})
	if !d.Significant || d.Reason != "no_old_summary" {
		t.Fatalf("expected significant/no_old_summary, got %+v", d)
	}
}

func TestIdenticalSummaryNotSignificant(t *testing.T) {
	d := Evaluate(Input{OldSummary: "same", NewSummary: "same"})
	if d.Significant || d.Reason != "identical_summary" {
		t.Fatalf("expected not significant/identical_summary, got %+v", d)
	}
}

func TestDisabledGateIsSignificant(t *testing.T) {
	d := Evaluate(Input{OldSummary: "a", NewSummary: "b", Disabled: true})
	if !d.Significant || d.Reason != "gate_disabled" {
		t.Fatalf("expected significant/gate_disabled, got %+v", d)
	}
}

type fakeEmbedder struct{ vec []float32 }

func (f fakeEmbedder) EmbedDocument(_ context.Context, _ string) ([]float32, error) {
	return f.vec, nil
}

func TestEmbeddingHighSimilarityNotSignificant(t *testing.T) {
	d := Evaluate(Input{
		OldSummary:   "a",
		NewSummary:   "b",
		OldEmbedding: []float32{1, 0, 0},
		Embedder:     fakeEmbedder{vec: []float32{1, 0, 0}},
	})
	if d.Significant || d.Reason != "embedding_similar" {
		t.Fatalf("expected not significant/embedding_similar, got %+v", d)
	}
}

func TestEmbeddingLowSimilaritySignificant(t *testing.T) {
	d := Evaluate(Input{
		OldSummary:   "a",
		NewSummary:   "b",
		OldEmbedding: []float32{1, 0, 0},
		Embedder:     fakeEmbedder{vec: []float32{0, 1, 0}},
	})
	if !d.Significant || d.Reason != "embedding_dissimilar" {
		t.Fatalf("expected significant/embedding_dissimilar, got %+v", d)
	}
}

func TestTextHeuristicMinorKeywordsNotSignificant(t *testing.T) {
	d := Evaluate(Input{
		OldSummary: "Handles widget creation with validation logic across several cases.",
		NewSummary: "Handles widget creation with validation logic across several cases and a typo fix.",
		DiffText:   "fixed a typo in comment",
	})
	if d.Significant {
		t.Fatalf("expected not significant for minor keyword diff, got %+v", d)
	}
}

func TestTextHeuristicSignificantKeywords(t *testing.T) {
	d := Evaluate(Input{
		OldSummary: "Old handler for widgets.",
		NewSummary: "Implements a new feature: breaking api change to the widget interface.",
		DiffText:   "implements new feature",
	})
	if !d.Significant || d.Reason != "significant_keywords" {
		t.Fatalf("expected significant/significant_keywords, got %+v", d)
	}
}

func TestTextHeuristicHighRatioNotSignificant(t *testing.T) {
	d := Evaluate(Input{
		OldSummary: "Processes orders and validates totals before checkout completes successfully.",
		NewSummary: "Processes orders and validates totals before checkout completes successfully!",
	})
	if d.Significant {
		t.Fatalf("expected not significant for near-identical text, got %+v", d)
	}
}
