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

// Package rundriver implements the Run Driver (§4.L): global lock
// acquisition, canonical-repo-set reconciliation, per-repo dispatch to
// the Incremental Updater, and run-record finalization.
package rundriver

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kbhalerao/codesmriti/internal/errors"
	"github.com/kbhalerao/codesmriti/internal/lock"
	"github.com/kbhalerao/codesmriti/internal/store"
	"github.com/kbhalerao/codesmriti/pkg/gitutil"
	"github.com/kbhalerao/codesmriti/pkg/model"
	"github.com/kbhalerao/codesmriti/pkg/updater"
)

// GitHubLister is the subset of a GitHub API client the driver needs for
// canonical-set reconciliation step (a): a paginated listing of the
// authenticated user's repositories, as "owner/name" strings.
type GitHubLister interface {
	ListRepos(ctx context.Context) ([]string, error)
}

// Updater is the subset of *updater.Updater the driver dispatches to,
// narrowed for testability.
type Updater interface {
	Update(ctx context.Context, detector updater.GitDetector, in updater.Input) model.UpdateResult
}

// Driver wires together the lock, the canonical-set sources, and the
// per-repo Incremental Updater.
type Driver struct {
	LockPath        string
	ReposPath       string
	ConfigListPath  string // repos_to_ingest.txt, optional
	Store           *store.Store
	Updater         Updater
	GitHub          GitHubLister // optional; nil falls through to the config file / disk listing
	GitToken        string
	Threshold       float64
	Logger          *slog.Logger

	// OnRepoDone, if set, is called synchronously after each repo is
	// classified and dispatched; used to drive a CLI progress indicator.
	OnRepoDone func(repoID string, res model.UpdateResult)
}

// Options bundles one invocation's parameters, mirroring the `run`
// subcommand's flags (§6).
type Options struct {
	Trigger  string
	DryRun   bool
	Repo     string // when set, restrict canonical-set reconciliation to exactly this repo
}

// Run executes the full §4.L algorithm and returns the completed run
// record. On lock failure it returns a non-nil error wrapping
// errors.KindLockError; callers should map that to exit code 2.
func (d *Driver) Run(ctx context.Context, opts Options) (*model.IngestionRun, error) {
	l, err := lock.Acquire(d.LockPath)
	if err != nil {
		return nil, err
	}
	defer l.Release()

	runID := newRunID()
	run := model.NewIngestionRun(runID, opts.Trigger, opts.DryRun, time.Now())

	canonical, err := d.canonicalRepoSet(ctx, opts.Repo)
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("canonical set reconciliation: %v", err))
	}

	onDisk, err := d.diskRepoSet()
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("disk listing: %v", err))
	}
	inStore := d.storeRepoSet()

	newRepos, orphaned, toProcess := classify(canonical, onDisk, inStore)

	for _, repoID := range newRepos {
		res := d.cloneAndProcess(ctx, repoID, opts)
		run.Repos[repoID] = res
		d.notify(repoID, res)
	}
	for _, repoID := range orphaned {
		res := d.deleteOrphan(repoID, opts.DryRun)
		run.Repos[repoID] = res
		d.notify(repoID, res)
	}
	for _, repoID := range toProcess {
		res := d.processExisting(ctx, repoID, opts)
		run.Repos[repoID] = res
		d.notify(repoID, res)
	}

	run.Finalize(time.Now())

	if !opts.DryRun {
		d.writeRunRecord(run)
	}

	if d.Logger != nil {
		d.Logger.Info("ingest.run.finish",
			"run_id", run.RunID, "processed", run.Processed, "errors", run.ErrorCount)
	}

	return run, nil
}

func (d *Driver) notify(repoID string, res model.UpdateResult) {
	if d.OnRepoDone != nil {
		d.OnRepoDone(repoID, res)
	}
}

func newRunID() string {
	return fmt.Sprintf("%s-%04d", time.Now().UTC().Format("20060102T150405Z"), rand.Intn(10000))
}

// canonicalRepoSet implements §4.L step 3's preference order: GitHub API,
// then repos_to_ingest.txt, then disk listing.
func (d *Driver) canonicalRepoSet(ctx context.Context, explicitRepo string) ([]string, error) {
	if explicitRepo != "" {
		return []string{explicitRepo}, nil
	}
	if d.GitHub != nil {
		repos, err := d.GitHub.ListRepos(ctx)
		if err == nil && len(repos) > 0 {
			return repos, nil
		}
	}
	if d.ConfigListPath != "" {
		repos, err := readRepoList(d.ConfigListPath)
		if err == nil && len(repos) > 0 {
			return repos, nil
		}
	}
	return d.diskRepoSet()
}

func readRepoList(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var repos []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		repos = append(repos, line)
	}
	return repos, nil
}

// diskRepoSet lists the working copies under ReposPath, reversing the
// "<owner>_<name>" directory naming back to "owner/name" repo ids.
func (d *Driver) diskRepoSet() ([]string, error) {
	entries, err := os.ReadDir(d.ReposPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var repos []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		repos = append(repos, dirNameToRepoID(e.Name()))
	}
	return repos, nil
}

func (d *Driver) storeRepoSet() []string {
	docs, err := d.Store.Find(store.Predicate{Equals: map[string]string{"type": store.TypeRepo}})
	if err != nil {
		return nil
	}
	seen := make(map[string]bool, len(docs))
	var repos []string
	for _, doc := range docs {
		id, _ := doc["repo_id"].(string)
		if id != "" && !seen[id] {
			seen[id] = true
			repos = append(repos, id)
		}
	}
	return repos
}

func repoIDToDirName(repoID string) string {
	return strings.ReplaceAll(repoID, "/", "_")
}

func dirNameToRepoID(dirName string) string {
	return strings.Replace(dirName, "_", "/", 1)
}

func (d *Driver) repoPath(repoID string) string {
	return filepath.Join(d.ReposPath, repoIDToDirName(repoID))
}

// classify implements §4.L step 4.
func classify(canonical, onDisk, inStore []string) (newRepos, orphaned, toProcess []string) {
	canonicalSet := toSet(canonical)
	diskSet := toSet(onDisk)
	storeSet := toSet(inStore)

	for repoID := range canonicalSet {
		if diskSet[repoID] {
			toProcess = append(toProcess, repoID)
		} else {
			newRepos = append(newRepos, repoID)
		}
	}
	for repoID := range storeSet {
		if !canonicalSet[repoID] {
			orphaned = append(orphaned, repoID)
		}
	}
	sort.Strings(newRepos)
	sort.Strings(orphaned)
	sort.Strings(toProcess)
	return
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func (d *Driver) cloneAndProcess(ctx context.Context, repoID string, opts Options) model.UpdateResult {
	dest := d.repoPath(repoID)
	if !opts.DryRun {
		url := fmt.Sprintf("https://github.com/%s.git", repoID)
		if err := gitutil.Clone(ctx, url, dest, d.GitToken); err != nil {
			return model.UpdateResult{RepoID: repoID, Status: "error", Error: err.Error()}
		}
	}
	return d.processExisting(ctx, repoID, opts)
}

func (d *Driver) processExisting(ctx context.Context, repoID string, opts Options) model.UpdateResult {
	detector := gitutil.New(d.repoPath(repoID))
	defer func() {
		if r := recover(); r != nil && d.Logger != nil {
			d.Logger.Error("ingest.repo.panic", "repo_id", repoID, "recover", r)
		}
	}()
	res := d.Updater.Update(ctx, detector, updater.Input{
		RepoID:    repoID,
		RepoPath:  d.repoPath(repoID),
		Threshold: d.Threshold,
		DryRun:    opts.DryRun,
		GitToken:  d.GitToken,
	})
	if res.Status == "error" && d.Logger != nil {
		d.Logger.Error("ingest.repo.error", "repo_id", repoID, "error", res.Error)
	}
	return res
}

func (d *Driver) deleteOrphan(repoID string, dryRun bool) model.UpdateResult {
	if dryRun {
		return model.UpdateResult{RepoID: repoID, Status: "deleted", Reason: "dry_run"}
	}
	n, err := d.Store.DeleteByPredicate(store.Predicate{Equals: map[string]string{"repo_id": repoID}})
	if err != nil {
		return model.UpdateResult{RepoID: repoID, Status: "error", Error: err.Error()}
	}
	os.RemoveAll(d.repoPath(repoID))
	return model.UpdateResult{RepoID: repoID, Status: "deleted", FilesDeleted: n}
}

func (d *Driver) writeRunRecord(run *model.IngestionRun) {
	doc, err := store.ToDocument("ingestion_run", run)
	if err == nil {
		d.Store.Upsert("ingestion_run::"+run.RunID, doc)
	}

	legacy := model.LegacyIngestionLog{
		LogID:      "log-" + run.RunID,
		RunID:      run.RunID,
		Timestamp:  run.CompletedAt,
		Trigger:    run.Trigger,
		ReposTotal: run.Processed,
		ReposOK:    run.Processed - run.ErrorCount,
		ReposError: run.ErrorCount,
	}
	legacyDoc, err := store.ToDocument("ingestion_log", legacy)
	if err == nil {
		d.Store.Upsert("ingestion_log::"+run.RunID, legacyDoc)
	}
}

// KindOf re-exports errors.KindOf for callers that only import rundriver.
func KindOf(err error) errors.Kind {
	return errors.KindOf(err)
}
