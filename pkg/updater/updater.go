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

// Package updater implements the Incremental Updater (§4.K): decides
// whether a repo needs a full reingest or an incremental update, and
// drives the File Processor, Aggregator, Significance Gate, embedding
// client, and document chunker to bring the store in line with HEAD.
package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/kbhalerao/codesmriti/pkg/aggregator"
	"github.com/kbhalerao/codesmriti/pkg/chunker"
	"github.com/kbhalerao/codesmriti/pkg/docchunk"
	"github.com/kbhalerao/codesmriti/pkg/exclude"
	"github.com/kbhalerao/codesmriti/pkg/fileprocessor"
	"github.com/kbhalerao/codesmriti/pkg/gate"
	"github.com/kbhalerao/codesmriti/pkg/gitutil"
	"github.com/kbhalerao/codesmriti/pkg/ids"
	"github.com/kbhalerao/codesmriti/pkg/model"
	"github.com/kbhalerao/codesmriti/pkg/parser"

	"github.com/kbhalerao/codesmriti/internal/store"
)

// GitDetector is the subset of *gitutil.Detector the updater drives.
type GitDetector interface {
	Fetch(ctx context.Context, token string) error
	Pull() error
	DefaultBranch() string
	OriginHeadCommit(branch string) (string, error)
	Diff(base, head string) (*gitutil.ChangeSet, error)
	FileDiff(base, head, path string) (string, error)
	ShowAtCommit(commit, relPath string) (string, error)
}

// Embedder is the subset of *embedding.Client the updater needs, shared
// by the gate and the batch-embedding steps.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

// Tracker is the union of quality signals the updater's collaborators
// (fileprocessor, aggregator) report to, plus the counters the updater
// itself records.
type Tracker interface {
	RecordFileProcessed()
	RecordFileFailed(err error)
	RecordFileSkipped()
	RecordSymbolProcessed()
	RecordModuleCreated()
	RecordLLMCall(success bool, tokens int)
	RecordEmbedding()
	LLMAvailable() bool
}

const defaultMaxConcurrentFiles = 4

// Updater runs the §4.K state machine for a single repo.
type Updater struct {
	docStore           *store.Store
	dispatch           *parser.Dispatch
	llmClient          fileprocessor.LLM
	aggLLM             aggregator.LLM
	chunkCaller        chunker.Caller
	embedder           Embedder
	tracker            Tracker
	matcher            *exclude.Matcher
	maxConcurrentFiles int
}

// New builds an Updater. llmClient must implement both fileprocessor.LLM
// and aggregator.LLM; in practice this is a single *llm.Client.
func New(docStore *store.Store, dispatch *parser.Dispatch, llmClient interface {
	fileprocessor.LLM
	aggregator.LLM
}, chunkCaller chunker.Caller, embedder Embedder, tracker Tracker, matcher *exclude.Matcher, maxConcurrentFiles int) *Updater {
	if maxConcurrentFiles <= 0 {
		maxConcurrentFiles = defaultMaxConcurrentFiles
	}
	return &Updater{
		docStore:           docStore,
		dispatch:           dispatch,
		llmClient:          llmClient,
		aggLLM:             llmClient,
		chunkCaller:        chunkCaller,
		embedder:           embedder,
		tracker:            tracker,
		matcher:            matcher,
		maxConcurrentFiles: maxConcurrentFiles,
	}
}

// Input bundles one repo's update parameters, §4.K.
type Input struct {
	RepoID    string
	RepoPath  string
	Threshold float64
	DryRun    bool
	GitToken  string
}

// Update runs the full incremental-or-full-reingest decision and
// executes whichever path applies.
func (u *Updater) Update(ctx context.Context, detector GitDetector, in Input) model.UpdateResult {
	start := time.Now()
	result := model.UpdateResult{RepoID: in.RepoID}

	if err := detector.Fetch(ctx, in.GitToken); err != nil {
		result.Status = "error"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	branch := detector.DefaultBranch()
	head, err := detector.OriginHeadCommit(branch)
	if err != nil {
		result.Status = "error"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	storedCommit := u.storedCommit(in.RepoID)

	if storedCommit == "" {
		res := u.fullReingest(ctx, detector, in, head, "new_repo")
		res.Duration = time.Since(start)
		return res
	}
	if storedCommit == head {
		result.Status = "skipped"
		result.Reason = "no_changes"
		result.Commit = head
		result.Duration = time.Since(start)
		return result
	}

	changes, err := detector.Diff(storedCommit, head)
	if err != nil {
		result.Status = "error"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}
	if changes.TotalChanged == 0 {
		result.Status = "skipped"
		result.Reason = "no_file_changes"
		result.Commit = head
		result.Duration = time.Since(start)
		return result
	}

	existing := u.countDocs(in.RepoID, store.TypeFile)
	threshold := in.Threshold
	if threshold <= 0 {
		threshold = 0.05
	}
	if existing == 0 {
		res := u.fullReingest(ctx, detector, in, head, "no_prior_file_index")
		res.Duration = time.Since(start)
		return res
	}
	ratio := float64(changes.TotalChanged) / float64(existing)
	if ratio > threshold {
		res := u.fullReingest(ctx, detector, in, head, fmt.Sprintf("threshold_exceeded (%.1f%%)", ratio*100))
		res.Duration = time.Since(start)
		return res
	}

	res := u.incremental(ctx, detector, in, changes, storedCommit, head)
	res.Duration = time.Since(start)
	return res
}

func (u *Updater) storedCommit(repoID string) string {
	doc, found, err := u.docStore.FindOne(store.Predicate{Equals: map[string]string{
		"type": store.TypeRepo, "repo_id": repoID,
	}})
	if err != nil || !found {
		return ""
	}
	commit, _ := doc["commit_hash"].(string)
	return commit
}

func (u *Updater) countDocs(repoID, docType string) int {
	docs, err := u.docStore.Find(store.Predicate{Equals: map[string]string{
		"type": docType, "repo_id": repoID,
	}})
	if err != nil {
		return 0
	}
	return len(docs)
}

// contentResolver adapts a GitDetector plus the repo's working tree into
// fileprocessor.ContentResolver (§4.G step 1: git show, falling back to
// the working tree for untracked/uncommitted content).
type contentResolver struct {
	detector GitDetector
}

func (r contentResolver) ShowAtCommit(commit, relPath string) (string, error) {
	return r.detector.ShowAtCommit(commit, relPath)
}

func (r contentResolver) ReadWorkingTree(absPath string) (string, error) {
	b, err := os.ReadFile(absPath)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// fileJob is one unit of work for the bounded worker pool below, modeled
// on the teacher's local_pipeline.go parseFilesParallel: a jobs channel
// feeding N workers, a results channel drained by the caller.
type fileJob struct {
	absPath      string
	relPath      string
	parentModule string
}

type fileJobResult struct {
	relPath string
	result  fileprocessor.Result
	err     error
}

func (u *Updater) processFilesConcurrently(ctx context.Context, proc *fileprocessor.Processor, in Input, jobs []fileJob, commit string) []fileJobResult {
	jobsCh := make(chan fileJob, len(jobs))
	resultsCh := make(chan fileJobResult, len(jobs))

	var wg sync.WaitGroup
	workers := u.maxConcurrentFiles
	if workers > len(jobs) {
		workers = len(jobs)
	}
	if workers <= 0 {
		workers = 1
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobsCh {
				res, err := proc.Process(ctx, fileprocessor.Input{
					AbsPath:      job.absPath,
					RelPath:      job.relPath,
					RepoRoot:     in.RepoPath,
					RepoID:       in.RepoID,
					CommitHash:   commit,
					ParentModule: job.parentModule,
				})
				resultsCh <- fileJobResult{relPath: job.relPath, result: res, err: err}
			}
		}()
	}
	for _, j := range jobs {
		jobsCh <- j
	}
	close(jobsCh)

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	results := make([]fileJobResult, 0, len(jobs))
	for r := range resultsCh {
		results = append(results, r)
	}
	return results
}

// incremental runs the §4.K incremental path over a non-empty, below-
// threshold ChangeSet.
func (u *Updater) incremental(ctx context.Context, detector GitDetector, in Input, changes *gitutil.ChangeSet, baseCommit, head string) model.UpdateResult {
	result := model.UpdateResult{RepoID: in.RepoID, Status: "updated", Commit: head}

	if !in.DryRun {
		if err := detector.Pull(); err != nil {
			result.Status = "error"
			result.Error = err.Error()
			return result
		}
	}

	deleted := append([]string{}, changes.Deleted...)
	touched := changes.FilesToProcess

	var codeJobs []fileJob
	var docPaths []string
	for _, rel := range touched {
		if u.matcher.ShouldSkipFile(rel) {
			continue
		}
		if exclude.IsDocFile(rel) {
			docPaths = append(docPaths, rel)
			continue
		}
		codeJobs = append(codeJobs, fileJob{
			absPath:      filepath.Join(in.RepoPath, rel),
			relPath:      rel,
			parentModule: ids.ModuleID(in.RepoID, filepath.Dir(rel), head),
		})
	}

	// Capture the previously-stored file docs (needed by the gate) before
	// deleting them, for every path that is changing or going away.
	oldDocs := make(map[string]store.Document)
	for _, rel := range append(append([]string{}, deleted...), touched...) {
		if doc, found, _ := u.docStore.FindOne(store.Predicate{Equals: map[string]string{
			"type": store.TypeFile, "repo_id": in.RepoID, "file_path": rel,
		}}); found {
			oldDocs[rel] = doc
		}
	}

	for _, rel := range deleted {
		if !in.DryRun {
			n, err := u.docStore.DeleteByPredicate(store.Predicate{Equals: map[string]string{
				"repo_id": in.RepoID, "file_path": rel,
			}})
			if err == nil {
				result.FilesDeleted += n
			}
		} else {
			result.FilesDeleted++
		}
	}
	for _, rel := range touched {
		if !in.DryRun {
			u.docStore.DeleteByPredicate(store.Predicate{Equals: map[string]string{
				"repo_id": in.RepoID, "file_path": rel,
			}})
		}
	}

	proc := fileprocessor.New(u.dispatch, contentResolver{detector: detector}, u.llmClient, u.chunkCaller, u.tracker)
	jobResults := u.processFilesConcurrently(ctx, proc, in, codeJobs, head)

	var texts []string
	type embedTarget struct {
		isFile bool
		fileIx int
		symIx  int
	}
	var files []*model.FileIndex
	var symbolsByFile [][]model.SymbolIndex
	var targets []embedTarget

	anySignificant := false
	for _, jr := range jobResults {
		if jr.err != nil {
			if u.tracker != nil {
				u.tracker.RecordFileFailed(jr.err)
			}
			continue
		}
		if jr.result.Skipped || jr.result.File == nil {
			if u.tracker != nil {
				u.tracker.RecordFileSkipped()
			}
			continue
		}
		fi := jr.result.File
		idx := len(files)
		files = append(files, fi)
		symbolsByFile = append(symbolsByFile, jr.result.Symbols)

		targets = append(targets, embedTarget{isFile: true, fileIx: idx})
		texts = append(texts, fi.Content)
		for s := range jr.result.Symbols {
			targets = append(targets, embedTarget{isFile: false, fileIx: idx, symIx: s})
			texts = append(texts, jr.result.Symbols[s].Content)
		}

		if u.tracker != nil {
			u.tracker.RecordFileProcessed()
		}

		old := oldDocs[fi.FilePath]
		oldSummary, _ := old["content"].(string)
		oldEmbedding := embeddingFromDoc(old)
		diffText, _ := detector.FileDiff(baseCommit, head, fi.FilePath)
		decision := gate.Evaluate(gate.Input{
			Ctx:          ctx,
			OldSummary:   oldSummary,
			NewSummary:   fi.Content,
			DiffText:     diffText,
			OldEmbedding: oldEmbedding,
			Embedder:     u.embedder,
		})
		if decision.Significant {
			anySignificant = true
		}
	}

	if len(texts) > 0 && !in.DryRun {
		embeddings, err := u.embedder.EmbedDocuments(ctx, texts)
		if err == nil {
			for i, t := range targets {
				if i >= len(embeddings) {
					break
				}
				if t.isFile {
					files[t.fileIx].Embedding = embeddings[i]
				} else {
					symbolsByFile[t.fileIx][t.symIx].Embedding = embeddings[i]
				}
				if u.tracker != nil {
					u.tracker.RecordEmbedding()
				}
			}
		}
	}

	if !in.DryRun {
		for i, fi := range files {
			doc, err := store.ToDocument(store.TypeFile, fi)
			if err == nil {
				u.docStore.Upsert(fi.DocumentID, doc)
			}
			for _, sym := range symbolsByFile[i] {
				sdoc, err := store.ToDocument(store.TypeSymbol, sym)
				if err == nil {
					u.docStore.Upsert(sym.DocumentID, sdoc)
				}
			}
		}
	}
	result.FilesProcessed = len(files)

	// §4.K step 8 runs regardless of the ancestor-regen significance
	// decision below — a doc-only commit still needs its chunks split.
	u.processDocFiles(ctx, detector, in, docPaths, head)

	if !anySignificant && len(deleted) == 0 {
		result.Reason = "incremental_no_significant_changes"
		return result
	}

	if !in.DryRun {
		u.regenerateAncestors(ctx, in.RepoID, head)
	}

	return result
}

func embeddingFromDoc(doc store.Document) []float32 {
	if doc == nil {
		return nil
	}
	raw, ok := doc["embedding"].([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(raw))
	for _, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil
		}
		out = append(out, float32(f))
	}
	return out
}

// regenerateAncestors rebuilds the full module/repo tier from every
// currently-stored file document, satisfying invariant #7 (every folder
// on a changed path is overwritten) by overwriting the entire tree, a
// superset of what's strictly required.
func (u *Updater) regenerateAncestors(ctx context.Context, repoID, commit string) {
	docs, err := u.docStore.Find(store.Predicate{Equals: map[string]string{
		"type": store.TypeFile, "repo_id": repoID,
	}})
	if err != nil {
		return
	}
	files := make([]*model.FileIndex, 0, len(docs))
	for _, d := range docs {
		var fi model.FileIndex
		if err := store.Decode(d, &fi); err == nil {
			files = append(files, &fi)
		}
	}
	if len(files) == 0 {
		return
	}

	agg := aggregator.New(u.aggLLM, u.tracker)
	res := agg.Run(ctx, repoID, commit, files)

	var texts []string
	for _, m := range res.Modules {
		texts = append(texts, m.Content)
	}
	texts = append(texts, res.Repo.Content)
	embeddings, err := u.embedder.EmbedDocuments(ctx, texts)
	if err == nil {
		for i := range res.Modules {
			if i < len(embeddings) {
				res.Modules[i].Embedding = embeddings[i]
			}
		}
		if len(res.Modules) < len(embeddings) {
			res.Repo.Embedding = embeddings[len(res.Modules)]
		}
	}

	for _, m := range res.Modules {
		doc, err := store.ToDocument(store.TypeModule, m)
		if err == nil {
			u.docStore.Upsert(m.DocumentID, doc)
		}
	}
	rdoc, err := store.ToDocument(store.TypeRepo, res.Repo)
	if err == nil {
		u.docStore.Upsert(res.Repo.DocumentID, rdoc)
	}

	for _, fi := range files {
		fdoc, err := store.ToDocument(store.TypeFile, fi)
		if err == nil {
			u.docStore.Upsert(fi.DocumentID, fdoc)
		}
	}
}

func (u *Updater) processDocFiles(ctx context.Context, detector GitDetector, in Input, paths []string, head string) {
	for _, rel := range paths {
		content, err := detector.ShowAtCommit(head, rel)
		if err != nil {
			continue
		}
		docType := docchunk.DetectDocType(rel)
		if docType == "" {
			continue
		}
		chunks := docchunk.Split(in.RepoID, rel, head, docType, content)
		if len(chunks) == 0 {
			continue
		}
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		if in.DryRun {
			continue
		}
		embeddings, err := u.embedder.EmbedDocuments(ctx, texts)
		for i, c := range chunks {
			if err == nil && i < len(embeddings) {
				c.Embedding = embeddings[i]
			}
			doc, derr := store.ToDocument(store.TypeDocChunk, c)
			if derr == nil {
				u.docStore.Upsert(c.DocumentID, doc)
			}
		}
	}
}

// fullReingest walks the entire working tree at head and rebuilds every
// document for the repo from scratch.
func (u *Updater) fullReingest(ctx context.Context, detector GitDetector, in Input, head, reason string) model.UpdateResult {
	result := model.UpdateResult{RepoID: in.RepoID, Status: "full_reingest", Reason: reason, Commit: head}

	if !in.DryRun {
		u.docStore.DeleteByPredicate(store.Predicate{Equals: map[string]string{"repo_id": in.RepoID}})
		if err := detector.Pull(); err != nil {
			result.Status = "error"
			result.Error = err.Error()
			return result
		}
	}

	var codeJobs []fileJob
	var docPaths []string
	err := filepath.WalkDir(in.RepoPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, rerr := filepath.Rel(in.RepoPath, path)
		if rerr != nil {
			return nil
		}
		if u.matcher.ShouldSkipFile(rel) {
			return nil
		}
		if exclude.IsDocFile(rel) {
			docPaths = append(docPaths, rel)
			return nil
		}
		codeJobs = append(codeJobs, fileJob{
			absPath:      path,
			relPath:      rel,
			parentModule: ids.ModuleID(in.RepoID, filepath.Dir(rel), head),
		})
		return nil
	})
	if err != nil {
		result.Status = "error"
		result.Error = err.Error()
		return result
	}
	sort.Slice(codeJobs, func(i, j int) bool { return codeJobs[i].relPath < codeJobs[j].relPath })

	if len(codeJobs) == 0 && len(docPaths) == 0 {
		result.Status = "empty"
		return result
	}

	proc := fileprocessor.New(u.dispatch, contentResolver{detector: detector}, u.llmClient, u.chunkCaller, u.tracker)
	jobResults := u.processFilesConcurrently(ctx, proc, in, codeJobs, head)

	var files []*model.FileIndex
	var symbolsByFile [][]model.SymbolIndex
	var texts []string
	type embedTarget struct {
		isFile bool
		fileIx int
		symIx  int
	}
	var targets []embedTarget

	for _, jr := range jobResults {
		if jr.err != nil {
			if u.tracker != nil {
				u.tracker.RecordFileFailed(jr.err)
			}
			continue
		}
		if jr.result.Skipped || jr.result.File == nil {
			if u.tracker != nil {
				u.tracker.RecordFileSkipped()
			}
			continue
		}
		fi := jr.result.File
		idx := len(files)
		files = append(files, fi)
		symbolsByFile = append(symbolsByFile, jr.result.Symbols)
		targets = append(targets, embedTarget{isFile: true, fileIx: idx})
		texts = append(texts, fi.Content)
		for s := range jr.result.Symbols {
			targets = append(targets, embedTarget{isFile: false, fileIx: idx, symIx: s})
			texts = append(texts, jr.result.Symbols[s].Content)
		}
		if u.tracker != nil {
			u.tracker.RecordFileProcessed()
		}
	}

	if len(texts) > 0 && !in.DryRun {
		embeddings, err := u.embedder.EmbedDocuments(ctx, texts)
		if err == nil {
			for i, t := range targets {
				if i >= len(embeddings) {
					break
				}
				if t.isFile {
					files[t.fileIx].Embedding = embeddings[i]
				} else {
					symbolsByFile[t.fileIx][t.symIx].Embedding = embeddings[i]
				}
				if u.tracker != nil {
					u.tracker.RecordEmbedding()
				}
			}
		}
	}

	if !in.DryRun {
		for i, fi := range files {
			doc, err := store.ToDocument(store.TypeFile, fi)
			if err == nil {
				u.docStore.Upsert(fi.DocumentID, doc)
			}
			for _, sym := range symbolsByFile[i] {
				sdoc, err := store.ToDocument(store.TypeSymbol, sym)
				if err == nil {
					u.docStore.Upsert(sym.DocumentID, sdoc)
				}
			}
		}
		u.regenerateAncestors(ctx, in.RepoID, head)
	}

	u.processDocFiles(ctx, detector, in, docPaths, head)

	result.FilesProcessed = len(files)
	return result
}
