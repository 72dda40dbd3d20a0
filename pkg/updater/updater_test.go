// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/kbhalerao/codesmriti/pkg/exclude"
	"github.com/kbhalerao/codesmriti/pkg/gitutil"
	"github.com/kbhalerao/codesmriti/pkg/parser"

	"github.com/kbhalerao/codesmriti/internal/store"
)

type fakeLLM struct{}

func (fakeLLM) SummarizeSymbol(_ context.Context, name, kind, _, _, _ string) (string, int, error) {
	return "summary of " + name + " (" + kind + ")", 0, nil
}
func (fakeLLM) SummarizeFile(_ context.Context, path, _, _ string) (string, int, error) {
	return "summary of file " + path, 0, nil
}
func (fakeLLM) SummarizeModule(_ context.Context, modulePath, _, _ string) (string, int, error) {
	return "summary of module " + modulePath, 0, nil
}
func (fakeLLM) SummarizeRepo(_ context.Context, repoID, _ string) (string, int, error) {
	return "summary of repo " + repoID, 0, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1, 0}
	}
	return out, nil
}
func (fakeEmbedder) EmbedDocument(_ context.Context, _ string) ([]float32, error) {
	return []float32{0, 1, 0}, nil
}

type fakeTracker struct{}

func (fakeTracker) RecordFileProcessed()    {}
func (fakeTracker) RecordFileFailed(error)  {}
func (fakeTracker) RecordFileSkipped()      {}
func (fakeTracker) RecordSymbolProcessed()  {}
func (fakeTracker) RecordModuleCreated()    {}
func (fakeTracker) RecordLLMCall(bool, int) {}
func (fakeTracker) RecordEmbedding()        {}
func (fakeTracker) LLMAvailable() bool      { return true }

// fakeDetector is a minimal GitDetector stub driven entirely by a
// pre-seeded working tree on disk; ShowAtCommit reads the working tree
// directly since no tests here exercise distinct historical revisions.
type fakeDetector struct {
	repoPath string
	head     string
	changes  *gitutil.ChangeSet
}

func (f *fakeDetector) Fetch(context.Context, string) error { return nil }
func (f *fakeDetector) Pull() error                          { return nil }
func (f *fakeDetector) DefaultBranch() string                { return "main" }
func (f *fakeDetector) OriginHeadCommit(string) (string, error) {
	return f.head, nil
}
func (f *fakeDetector) Diff(string, string) (*gitutil.ChangeSet, error) {
	return f.changes, nil
}
func (f *fakeDetector) FileDiff(string, string, string) (string, error) {
	return "", nil
}
func (f *fakeDetector) ShowAtCommit(_ string, relPath string) (string, error) {
	b, err := os.ReadFile(filepath.Join(f.repoPath, relPath))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func newTestUpdater(t *testing.T, dataDir string) (*Updater, *store.Store) {
	t.Helper()
	st, err := store.Open(dataDir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	u := New(st, parser.NewDispatch(), fakeLLM{}, nil, fakeEmbedder{}, fakeTracker{}, exclude.New(nil), 2)
	return u, st
}

func writeRepoFile(t *testing.T, repoPath, rel, content string) {
	t.Helper()
	full := filepath.Join(repoPath, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestUpdateFullReingestsNewRepo(t *testing.T) {
	repoPath := t.TempDir()
	writeRepoFile(t, repoPath, "pkg/a/a.go", "package a\n\nfunc Foo() {\n\tprintln(\"hi\")\n\tprintln(\"there\")\n\tprintln(\"more\")\n}\n")
	writeRepoFile(t, repoPath, "README.md", "# Title\n\n"+stringsRepeat("word ", 30)+"\n")

	u, st := newTestUpdater(t, t.TempDir())
	det := &fakeDetector{repoPath: repoPath, head: "deadbeefcafe0123456789abcdef0123456789"}

	res := u.Update(context.Background(), det, Input{RepoID: "r1", RepoPath: repoPath, Threshold: 0.05})
	if res.Status != "full_reingest" {
		t.Fatalf("expected full_reingest, got %+v", res)
	}
	if res.FilesProcessed == 0 {
		t.Fatalf("expected at least one file processed, got %+v", res)
	}

	files, err := st.Find(store.Predicate{Equals: map[string]string{"type": store.TypeFile, "repo_id": "r1"}})
	if err != nil || len(files) == 0 {
		t.Fatalf("expected stored file docs, got %v err=%v", files, err)
	}
	repoDocs, err := st.Find(store.Predicate{Equals: map[string]string{"type": store.TypeRepo, "repo_id": "r1"}})
	if err != nil || len(repoDocs) != 1 {
		t.Fatalf("expected exactly one repo summary doc, got %v err=%v", repoDocs, err)
	}
}

func TestUpdateSkipsWhenCommitUnchanged(t *testing.T) {
	repoPath := t.TempDir()
	writeRepoFile(t, repoPath, "main.go", "package main\n\nfunc main() {\n\tprintln(\"hello, world\")\n}\n")

	u, st := newTestUpdater(t, t.TempDir())
	head := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	det := &fakeDetector{repoPath: repoPath, head: head}

	u.Update(context.Background(), det, Input{RepoID: "r2", RepoPath: repoPath, Threshold: 0.05})

	// storedCommit should now equal head; a second run should skip.
	repoDocs, _ := st.Find(store.Predicate{Equals: map[string]string{"type": store.TypeRepo, "repo_id": "r2"}})
	if len(repoDocs) != 1 {
		t.Fatalf("expected repo summary stored after first run, got %d", len(repoDocs))
	}

	res := u.Update(context.Background(), det, Input{RepoID: "r2", RepoPath: repoPath, Threshold: 0.05})
	if res.Status != "skipped" || res.Reason != "no_changes" {
		t.Fatalf("expected skipped/no_changes, got %+v", res)
	}
}

func TestUpdateDryRunDoesNotWriteDocs(t *testing.T) {
	repoPath := t.TempDir()
	writeRepoFile(t, repoPath, "main.go", "package main\n\nfunc main() {}\n")

	u, st := newTestUpdater(t, t.TempDir())
	det := &fakeDetector{repoPath: repoPath, head: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"}

	res := u.Update(context.Background(), det, Input{RepoID: "r3", RepoPath: repoPath, Threshold: 0.05, DryRun: true})
	if res.Status != "full_reingest" {
		t.Fatalf("expected full_reingest status even in dry-run, got %+v", res)
	}

	repoDocs, _ := st.Find(store.Predicate{Equals: map[string]string{"type": store.TypeRepo, "repo_id": "r3"}})
	if len(repoDocs) != 0 {
		t.Fatalf("dry-run must not write documents, found %d", len(repoDocs))
	}
}

// TestIncrementalProcessesDocOnlyChangeWithoutSignificantCode verifies that
// a commit touching only a doc file (no code, nothing deleted) still runs
// the doc-chunking step, even though it never trips the ancestor-regen
// significance gate.
func TestIncrementalProcessesDocOnlyChangeWithoutSignificantCode(t *testing.T) {
	repoPath := t.TempDir()
	for i := 0; i < 5; i++ {
		writeRepoFile(t, repoPath, fmt.Sprintf("pkg/a/f%d.go", i), fmt.Sprintf("package a\n\nfunc Foo%d() {\n\tprintln(\"hi\")\n\tprintln(\"there\")\n\tprintln(\"more\")\n}\n", i))
	}
	writeRepoFile(t, repoPath, "docs/guide.md", "# Guide\n\n"+stringsRepeat("word ", 30)+"\n")

	u, st := newTestUpdater(t, t.TempDir())
	det := &fakeDetector{repoPath: repoPath, head: "1111111111111111111111111111111111111a"}

	res := u.Update(context.Background(), det, Input{RepoID: "r4", RepoPath: repoPath, Threshold: 0.5})
	if res.Status != "full_reingest" {
		t.Fatalf("expected full_reingest for new repo, got %+v", res)
	}

	// Second commit only edits the doc file; no code file is touched or
	// deleted, so the gate never sees a significant change.
	writeRepoFile(t, repoPath, "docs/guide.md", "# Guide\n\n"+stringsRepeat("updated word ", 30)+"\n")
	det.head = "2222222222222222222222222222222222222b"
	det.changes = &gitutil.ChangeSet{
		Modified:       []string{"docs/guide.md"},
		FilesToProcess: []string{"docs/guide.md"},
		TotalChanged:   1,
	}

	res = u.Update(context.Background(), det, Input{RepoID: "r4", RepoPath: repoPath, Threshold: 0.5})
	if res.Status != "updated" || res.Reason != "incremental_no_significant_changes" {
		t.Fatalf("expected incremental no-significant-changes result, got %+v", res)
	}

	chunks, err := st.Find(store.Predicate{Equals: map[string]string{"type": store.TypeDocChunk, "repo_id": "r4"}})
	if err != nil {
		t.Fatalf("find doc chunks: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatalf("expected doc-only incremental update to produce document chunks, got none")
	}
}

func stringsRepeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
