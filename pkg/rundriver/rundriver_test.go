// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package rundriver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	runerrors "github.com/kbhalerao/codesmriti/internal/errors"
	"github.com/kbhalerao/codesmriti/internal/lock"
	"github.com/kbhalerao/codesmriti/internal/store"
	"github.com/kbhalerao/codesmriti/pkg/model"
	"github.com/kbhalerao/codesmriti/pkg/updater"
)

type fakeUpdater struct {
	calls   []string
	results map[string]model.UpdateResult
}

func (f *fakeUpdater) Update(_ context.Context, _ updater.GitDetector, in updater.Input) model.UpdateResult {
	f.calls = append(f.calls, in.RepoID)
	if res, ok := f.results[in.RepoID]; ok {
		return res
	}
	return model.UpdateResult{RepoID: in.RepoID, Status: "updated"}
}

func newTestDriver(t *testing.T, dataDir string) (*Driver, *fakeUpdater) {
	t.Helper()
	st, err := store.Open(dataDir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reposPath := t.TempDir()
	if err := os.MkdirAll(filepath.Join(reposPath, "acme_widgets"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	fu := &fakeUpdater{results: map[string]model.UpdateResult{}}
	return &Driver{
		LockPath:       filepath.Join(t.TempDir(), "ingest.lock"),
		ReposPath:      reposPath,
		ConfigListPath: "",
		Store:          st,
		Updater:        fu,
		Threshold:      0.05,
	}, fu
}

func TestRunProcessesDiskReposWhenNoOtherCanonicalSource(t *testing.T) {
	d, fu := newTestDriver(t, t.TempDir())

	run, err := d.Run(context.Background(), Options{Trigger: "manual"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(fu.calls) != 1 || fu.calls[0] != "acme/widgets" {
		t.Fatalf("expected exactly one call for acme/widgets, got %v", fu.calls)
	}
	if run.Repos["acme/widgets"].Status != "updated" {
		t.Fatalf("expected updated status, got %+v", run.Repos)
	}
}

func TestRunClonesNewRepoFromConfigList(t *testing.T) {
	d, fu := newTestDriver(t, t.TempDir())
	listPath := filepath.Join(t.TempDir(), "repos_to_ingest.txt")
	if err := os.WriteFile(listPath, []byte("# comment\nacme/widgets\nacme/gadgets\n"), 0o644); err != nil {
		t.Fatalf("write list: %v", err)
	}
	d.ConfigListPath = listPath

	run, err := d.Run(context.Background(), Options{Trigger: "manual", DryRun: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Repos["acme/gadgets"].Status == "" {
		t.Fatalf("expected acme/gadgets to be classified as new and attempted, got %+v", run.Repos)
	}
	if len(fu.calls) == 0 {
		t.Fatalf("expected updater to be invoked for at least acme/widgets")
	}
}

func TestRunDeletesOrphanedRepoDocs(t *testing.T) {
	d, _ := newTestDriver(t, t.TempDir())

	doc, err := store.ToDocument(store.TypeRepo, model.RepoSummary{DocumentID: "r1", RepoID: "acme/obsolete", CommitHash: "abc"})
	if err != nil {
		t.Fatalf("to document: %v", err)
	}
	if err := d.Store.Upsert("r1", doc); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	run, err := d.Run(context.Background(), Options{Trigger: "manual"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Repos["acme/obsolete"].Status != "deleted" {
		t.Fatalf("expected acme/obsolete deleted, got %+v", run.Repos)
	}
	if _, found, _ := d.Store.Get("r1"); found {
		t.Fatal("expected orphaned repo doc to be removed")
	}
}

func TestRunReturnsLockErrorWhenAlreadyHeld(t *testing.T) {
	d, _ := newTestDriver(t, t.TempDir())

	held, err := lock.Acquire(d.LockPath)
	if err != nil {
		t.Fatalf("pre-acquire: %v", err)
	}
	defer held.Release()

	_, err = d.Run(context.Background(), Options{Trigger: "manual"})
	if err == nil {
		t.Fatal("expected lock error")
	}
	if runerrors.KindOf(err) != runerrors.KindLockError {
		t.Fatalf("expected KindLockError, got %v", runerrors.KindOf(err))
	}
}
