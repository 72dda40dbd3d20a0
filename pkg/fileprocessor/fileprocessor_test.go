// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package fileprocessor

import (
	"context"
	"testing"

	"github.com/kbhalerao/codesmriti/pkg/parser"
)

type fakeResolver struct {
	content string
	err     error
}

func (f fakeResolver) ShowAtCommit(_, _ string) (string, error) { return f.content, f.err }
func (f fakeResolver) ReadWorkingTree(_ string) (string, error) { return f.content, f.err }

type noLLM struct{}

func (noLLM) SummarizeSymbol(context.Context, string, string, string, string, string) (string, int, error) {
	return "", 0, errNotUsed
}
func (noLLM) SummarizeFile(context.Context, string, string, string) (string, int, error) {
	return "", 0, errNotUsed
}

var errNotUsed = &fakeErr{"not used"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

type noopTracker struct{}

func (noopTracker) RecordSymbolProcessed()          {}
func (noopTracker) RecordLLMCall(bool, int)         {}
func (noopTracker) LLMAvailable() bool              { return false }

func TestProcessSkipsTooShortContent(t *testing.T) {
	p := New(parser.NewDispatch(), fakeResolver{content: "short"}, noLLM{}, nil, noopTracker{})
	res, err := p.Process(context.Background(), Input{RelPath: "a.go", RepoID: "r", CommitHash: "deadbeef1234"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Skipped {
		t.Fatal("expected skip for too-short content")
	}
}

func TestProcessFallbackPathProducesFileAndSymbols(t *testing.T) {
	src := `package widget

func Run() {
	println("line1")
	println("line2")
	println("line3")
	println("line4")
	println("line5")
}
`
	p := New(parser.NewDispatch(), fakeResolver{content: src}, noLLM{}, nil, noopTracker{})
	res, err := p.Process(context.Background(), Input{RelPath: "widget.go", RepoID: "r", CommitHash: "deadbeef1234"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped || res.File == nil {
		t.Fatalf("expected a processed file, got %+v", res)
	}
	if len(res.Symbols) != 1 {
		t.Fatalf("expected 1 significant symbol, got %d: %+v", len(res.Symbols), res.Symbols)
	}
	if res.File.Quality.EnrichmentLevel != "basic" {
		t.Fatalf("expected basic enrichment without LLM, got %v", res.File.Quality.EnrichmentLevel)
	}
	if len(res.File.ChildrenID) != 1 {
		t.Fatalf("expected 1 child id, got %d", len(res.File.ChildrenID))
	}
}

func TestFallbackSymbolSummaryFormat(t *testing.T) {
	sym := parser.Symbol{Name: "Run", Kind: parser.KindFunction, StartLine: 3, EndLine: 9}
	got := fallbackSymbolSummary(sym, "widget.go")
	want := "Run (function in widget.go, lines 3-9)"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
