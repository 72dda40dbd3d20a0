// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"context"
	"testing"

	"github.com/kbhalerao/codesmriti/pkg/model"
)

type noLLM struct{}

func (noLLM) SummarizeModule(context.Context, string, string, string) (string, int, error) {
	return "", 0, errUnused
}
func (noLLM) SummarizeRepo(context.Context, string, string) (string, int, error) {
	return "", 0, errUnused
}

var errUnused = fakeErr("unused")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

type noopTracker struct{}

func (noopTracker) RecordModuleCreated()    {}
func (noopTracker) RecordLLMCall(bool, int) {}
func (noopTracker) LLMAvailable() bool      { return false }

func TestRunBuildsModuleTreeBottomUp(t *testing.T) {
	files := []*model.FileIndex{
		{DocumentID: "f1", FilePath: "pkg/a/foo.go", Content: "foo summary", LineCount: 10, Language: "go"},
		{DocumentID: "f2", FilePath: "pkg/b/bar.go", Content: "bar summary", LineCount: 300, Language: "go"},
		{DocumentID: "f3", FilePath: "main.go", Content: "main summary", LineCount: 20, Language: "go"},
	}
	agg := New(noLLM{}, noopTracker{})
	result := agg.Run(context.Background(), "repo1", "abcdef123456", files)

	if len(result.Modules) != 4 {
		t.Fatalf("expected 4 modules (pkg/a, pkg/b, pkg, root), got %d: %+v", len(result.Modules), result.Modules)
	}

	var rootModule, pkgModule *model.ModuleSummary
	for i := range result.Modules {
		switch result.Modules[i].FolderPath {
		case "":
			rootModule = &result.Modules[i]
		case "pkg":
			pkgModule = &result.Modules[i]
		}
	}
	if rootModule == nil {
		t.Fatal("expected a root ('') module")
	}
	if pkgModule == nil {
		t.Fatal("expected a pkg module")
	}
	if len(pkgModule.ChildrenID) != 2 {
		t.Fatalf("expected pkg module to have 2 children (pkg/a, pkg/b), got %d", len(pkgModule.ChildrenID))
	}

	if files[1].ParentID == "" {
		t.Fatal("expected file ParentID to be set to its module id")
	}

	if result.Repo.TotalFiles != 3 {
		t.Fatalf("expected 3 total files, got %d", result.Repo.TotalFiles)
	}
	if result.Repo.TotalLines != 330 {
		t.Fatalf("expected 330 total lines, got %d", result.Repo.TotalLines)
	}
	if result.Repo.LanguageHistogram["go"] != 3 {
		t.Fatalf("expected go histogram count 3, got %d", result.Repo.LanguageHistogram["go"])
	}
}

func TestKeyFilesIncludesFixedNamesAndLargeFiles(t *testing.T) {
	files := []*model.FileIndex{
		{FilePath: "app/models.py", LineCount: 10},
		{FilePath: "app/huge.py", LineCount: 500},
		{FilePath: "app/small.py", LineCount: 5},
	}
	kf := keyFiles(files)
	if len(kf) != 2 {
		t.Fatalf("expected 2 key files, got %d: %v", len(kf), kf)
	}
}

func TestDetectTechStackFromImportsAndManifests(t *testing.T) {
	imports := []string{"import django.db", "from flask import Flask"}
	files := []*model.FileIndex{
		{FilePath: "requirements.txt"},
		{FilePath: "Dockerfile"},
	}
	stack := detectTechStack(imports, files)
	want := map[string]bool{"django": true, "flask": true, "python": true, "docker": true}
	if len(stack) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), stack)
	}
	for _, s := range stack {
		if !want[s] {
			t.Fatalf("unexpected tech stack entry %q", s)
		}
	}
}

func TestDetectTechStackCoversAllManifestTypes(t *testing.T) {
	files := []*model.FileIndex{
		{FilePath: "Pipfile"},
		{FilePath: "go.mod"},
		{FilePath: "Gemfile"},
		{FilePath: "package.json"},
	}
	stack := detectTechStack(nil, files)
	want := map[string]bool{"python": true, "go": true, "ruby": true, "nodejs": true}
	if len(stack) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), stack)
	}
	for _, s := range stack {
		if !want[s] {
			t.Fatalf("unexpected tech stack entry %q", s)
		}
	}
}

func TestDetectTechStackParsesComposeServiceImages(t *testing.T) {
	compose := "services:\n  db:\n    image: postgres:16-alpine\n  cache:\n    image: redis:7\n"
	files := []*model.FileIndex{
		{FilePath: "docker-compose.yml", Content: compose},
	}
	stack := detectTechStack(nil, files)
	want := map[string]bool{"docker": true, "postgresql": true, "redis": true}
	if len(stack) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), stack)
	}
	for _, s := range stack {
		if !want[s] {
			t.Fatalf("unexpected tech stack entry %q", s)
		}
	}
}

func TestProcessingOrderDepthDescendingThenLexicographic(t *testing.T) {
	folders := map[string]bool{"": true, "a": true, "a/b": true, "c": true}
	order := processingOrder(folders)
	want := []string{"a/b", "a", "c", ""}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}
