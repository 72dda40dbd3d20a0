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

// Package aggregator implements the Bottom-Up Aggregator (§4.H): builds
// ModuleSummary documents for every folder and one RepoSummary, processing
// deepest folders first so a module is only built after its descendants
// exist.
package aggregator

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	goyaml "github.com/goccy/go-yaml"

	"github.com/kbhalerao/codesmriti/pkg/ids"
	"github.com/kbhalerao/codesmriti/pkg/model"
)

func newVersion() model.Version {
	now := time.Now().UTC()
	return model.Version{SchemaVersion: model.CurrentSchemaVersion, PipelineVersion: "4", CreatedAt: now, UpdatedAt: now}
}

const (
	maxModuleChildSummaries = 15
	maxRepoModuleSummaries  = 20
	keyFileLineThreshold    = 200
	maxTechStack            = 15
)

var keyFileNames = map[string]bool{
	"models.py": true, "views.py": true, "urls.py": true, "index.ts": true,
	"main.py": true, "api.py": true, "config.py": true, "settings.py": true,
	"__init__.py": true,
}

// LLM is the subset of *llm.Client the aggregator calls.
type LLM interface {
	SummarizeModule(ctx context.Context, modulePath, filesContext, repoID string) (string, int, error)
	SummarizeRepo(ctx context.Context, repoID, modulesContext string) (string, int, error)
}

// Tracker is the subset of *quality.Tracker the aggregator reports to.
type Tracker interface {
	RecordModuleCreated()
	RecordLLMCall(success bool, tokens int)
	LLMAvailable() bool
}

// Aggregator builds the module/repo tier from a flat list of files.
type Aggregator struct {
	llmClient LLM
	tracker   Tracker
}

func New(llmClient LLM, tracker Tracker) *Aggregator {
	return &Aggregator{llmClient: llmClient, tracker: tracker}
}

// Result is the aggregator's output.
type Result struct {
	Modules []model.ModuleSummary
	Repo    model.RepoSummary
}

// Run executes the full §4.H algorithm over every FileIndex for one
// (repo, commit), mutating each file's ParentID in place to point at its
// owning module.
func (a *Aggregator) Run(ctx context.Context, repoID, commit string, files []*model.FileIndex) Result {
	byFolder := groupByFolder(files)
	folders := closeFolderTree(byFolder)
	order := processingOrder(folders)

	moduleIDByFolder := make(map[string]string, len(folders))
	childSummariesByFolder := make(map[string][]string, len(folders))
	moduleByFolder := make(map[string]*model.ModuleSummary, len(folders))

	var modules []model.ModuleSummary

	for _, folder := range order {
		moduleID := ids.ModuleID(repoID, folder, commit)
		moduleIDByFolder[folder] = moduleID

		parentFolder, hasParent := parentOf(folder)
		parentID := ids.RepoDocID(repoID, commit)
		if hasParent {
			if pid, ok := moduleIDByFolder[parentFolder]; ok {
				parentID = pid
			}
		}

		direct := byFolder[folder]
		childSummaries := make([]string, 0, len(direct)+len(childSummariesByFolder[folder]))
		for _, f := range direct {
			f.ParentID = moduleID
			childSummaries = append(childSummaries, f.Content)
		}
		childSummaries = append(childSummaries, childSummariesByFolder[folder]...)

		n := len(childSummaries)
		if n > maxModuleChildSummaries {
			n = maxModuleChildSummaries
		}
		childContext := strings.Join(childSummaries[:n], "\n---\n")

		summary, usedLLM := a.summarizeModule(ctx, folder, childContext, repoID)

		var childrenIDs []string
		for _, f := range direct {
			childrenIDs = append(childrenIDs, f.DocumentID)
		}
		for _, sub := range directSubfolders(folder, folders) {
			if sid, ok := moduleIDByFolder[sub]; ok {
				childrenIDs = append(childrenIDs, sid)
			}
		}

		quality := model.Quality{LLMAvailable: a.tracker != nil && a.tracker.LLMAvailable()}
		if usedLLM {
			quality.EnrichmentLevel = model.EnrichmentLLM
			quality.SummarySource = "llm_summary"
		} else {
			quality.EnrichmentLevel = model.EnrichmentBasic
			quality.SummarySource = "basic"
		}

		mod := model.ModuleSummary{
			DocumentID: moduleID,
			RepoID:     repoID,
			FolderPath: folder,
			CommitHash: commit,
			Content:    summary,
			FileCount:  len(direct),
			KeyFiles:   keyFiles(direct),
			ParentID:   parentID,
			ChildrenID: childrenIDs,
			Quality:    quality,
			Version:    newVersion(),
		}
		modules = append(modules, mod)
		moduleByFolder[folder] = &modules[len(modules)-1]

		if hasParent {
			childSummariesByFolder[parentFolder] = append(childSummariesByFolder[parentFolder], summary)
		}

		if a.tracker != nil {
			a.tracker.RecordModuleCreated()
		}
	}

	repo := a.buildRepoSummary(ctx, repoID, commit, files, topLevelModuleSummaries(modules))
	return Result{Modules: modules, Repo: repo}
}

func (a *Aggregator) summarizeModule(ctx context.Context, folder, childContext, repoID string) (string, bool) {
	if a.llmClient != nil && a.tracker != nil && a.tracker.LLMAvailable() {
		summary, tokens, err := a.llmClient.SummarizeModule(ctx, folder, childContext, repoID)
		a.tracker.RecordLLMCall(err == nil, tokens)
		if err == nil {
			return summary, true
		}
	}
	return fmt.Sprintf("Module: %s/\n%s", folder, childContext), false
}

func (a *Aggregator) buildRepoSummary(ctx context.Context, repoID, commit string, files []*model.FileIndex, topModules []moduleBrief) model.RepoSummary {
	n := len(topModules)
	if n > maxRepoModuleSummaries {
		n = maxRepoModuleSummaries
	}
	summaries := make([]string, 0, n)
	paths := make([]string, 0, n)
	for _, m := range topModules[:n] {
		summaries = append(summaries, m.summary)
		paths = append(paths, m.path)
	}
	moduleContext := strings.Join(summaries, "\n---\n")

	var summary string
	usedLLM := false
	if a.llmClient != nil && a.tracker != nil && a.tracker.LLMAvailable() {
		s, tokens, err := a.llmClient.SummarizeRepo(ctx, repoID, moduleContext)
		a.tracker.RecordLLMCall(err == nil, tokens)
		if err == nil {
			summary, usedLLM = s, true
		}
	}
	if !usedLLM {
		summary = fmt.Sprintf("Repository %s.\n%s", repoID, moduleContext)
	}

	totalLines := 0
	histogram := make(map[string]int)
	var imports []string
	for _, f := range files {
		totalLines += f.LineCount
		if f.Language != "" {
			histogram[f.Language]++
		}
		imports = append(imports, f.Imports...)
	}

	quality := model.Quality{LLMAvailable: a.tracker != nil && a.tracker.LLMAvailable()}
	if usedLLM {
		quality.EnrichmentLevel = model.EnrichmentLLM
		quality.SummarySource = "llm_summary"
	} else {
		quality.EnrichmentLevel = model.EnrichmentBasic
		quality.SummarySource = "basic"
	}

	var childrenIDs []string
	for _, m := range topModules {
		childrenIDs = append(childrenIDs, m.id)
	}

	return model.RepoSummary{
		DocumentID:        ids.RepoDocID(repoID, commit),
		RepoID:            repoID,
		CommitHash:        commit,
		Content:           summary,
		TotalFiles:        len(files),
		TotalLines:        totalLines,
		LanguageHistogram: histogram,
		TechStack:         detectTechStack(imports, files),
		TopModulePaths:    paths,
		ChildrenID:        childrenIDs,
		Quality:           quality,
		Version:           newVersion(),
	}
}

// groupByFolder buckets files by their parent directory path.
func groupByFolder(files []*model.FileIndex) map[string][]*model.FileIndex {
	out := make(map[string][]*model.FileIndex)
	for _, f := range files {
		folder := path.Dir(f.FilePath)
		if folder == "." {
			folder = ""
		}
		out[folder] = append(out[folder], f)
	}
	return out
}

// closeFolderTree ensures every intermediate ancestor directory is present,
// even if it has no direct files.
func closeFolderTree(byFolder map[string][]*model.FileIndex) map[string]bool {
	set := make(map[string]bool)
	for folder := range byFolder {
		set[folder] = true
		cur := folder
		for {
			parent, ok := parentOf(cur)
			if !ok {
				break
			}
			set[parent] = true
			cur = parent
		}
	}
	set[""] = true
	return set
}

func parentOf(folder string) (string, bool) {
	if folder == "" {
		return "", false
	}
	parent := path.Dir(folder)
	if parent == "." {
		parent = ""
	}
	return parent, true
}

// processingOrder sorts folders by depth descending, then lexicographically
// ascending, §4.H step 2.
func processingOrder(folders map[string]bool) []string {
	list := make([]string, 0, len(folders))
	for f := range folders {
		list = append(list, f)
	}
	sort.Slice(list, func(i, j int) bool {
		di, dj := depth(list[i]), depth(list[j])
		if di != dj {
			return di > dj
		}
		return list[i] < list[j]
	})
	return list
}

func depth(folder string) int {
	if folder == "" {
		return 0
	}
	return strings.Count(folder, "/") + 1
}

func directSubfolders(folder string, folders map[string]bool) []string {
	var out []string
	for f := range folders {
		if f == folder {
			continue
		}
		parent, ok := parentOf(f)
		if ok && parent == folder {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

func keyFiles(files []*model.FileIndex) []string {
	var out []string
	for _, f := range files {
		base := path.Base(f.FilePath)
		if keyFileNames[base] || f.LineCount > keyFileLineThreshold {
			out = append(out, f.FilePath)
		}
	}
	sort.Strings(out)
	return out
}

type moduleBrief struct {
	id      string
	path    string
	summary string
}

func topLevelModuleSummaries(modules []model.ModuleSummary) []moduleBrief {
	var out []moduleBrief
	for _, m := range modules {
		if depth(m.FolderPath) <= 1 {
			out = append(out, moduleBrief{id: m.DocumentID, path: m.FolderPath, summary: m.Content})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

func fileNames(files []*model.FileIndex) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, path.Base(f.FilePath))
	}
	return out
}

var techStackDetectors = []struct {
	name    string
	matches func(imports []string, fileNames []string) bool
}{
	{"django", importContains("django")},
	{"flask", importContains("flask")},
	{"fastapi", importContains("fastapi")},
	{"react", importContains("react")},
	{"vue", importContains("vue")},
	{"svelte", importContains("svelte")},
	{"sqlalchemy", importContains("sqlalchemy")},
	{"postgresql", importContains("psycopg", "postgres")},
	{"redis", importContains("redis")},
	{"celery", importContains("celery")},
	{"python", fileContains("requirements.txt", "pyproject.toml", "setup.py", "pipfile")},
	{"nodejs", fileContains("package.json")},
	{"go", fileContains("go.mod")},
	{"ruby", fileContains("gemfile")},
	{"docker", fileContains("dockerfile", "docker-compose.yml", "docker-compose.yaml")},
}

// composeImageTags maps a docker-compose service's image name to the
// tech_stack tag it implies. Matched by substring against the lowercased
// image reference, so "postgres:16-alpine" and "postgres" both hit.
var composeImageTags = []struct {
	name   string
	needle string
}{
	{"postgresql", "postgres"},
	{"mysql", "mysql"},
	{"mariadb", "mariadb"},
	{"redis", "redis"},
	{"mongodb", "mongo"},
	{"rabbitmq", "rabbitmq"},
	{"elasticsearch", "elasticsearch"},
	{"kafka", "kafka"},
	{"nginx", "nginx"},
}

// composeManifest is the subset of a docker-compose.yml this package reads.
type composeManifest struct {
	Services map[string]struct {
		Image string `yaml:"image"`
	} `yaml:"services"`
}

// composeServiceTags parses a docker-compose manifest's service images for
// known backing services, surfacing tags the filename-only heuristics above
// can't see (e.g. a repo using Postgres only via its compose file, with no
// driver import in application code).
func composeServiceTags(content string) []string {
	var manifest composeManifest
	if err := goyaml.Unmarshal([]byte(content), &manifest); err != nil {
		return nil
	}
	var out []string
	for _, svc := range manifest.Services {
		lower := strings.ToLower(svc.Image)
		for _, t := range composeImageTags {
			if strings.Contains(lower, t.needle) {
				out = append(out, t.name)
			}
		}
	}
	return out
}

func importContains(needles ...string) func([]string, []string) bool {
	return func(imports []string, _ []string) bool {
		for _, imp := range imports {
			lower := strings.ToLower(imp)
			for _, n := range needles {
				if strings.Contains(lower, n) {
					return true
				}
			}
		}
		return false
	}
}

func fileContains(needles ...string) func([]string, []string) bool {
	return func(_ []string, files []string) bool {
		for _, f := range files {
			lower := strings.ToLower(f)
			for _, n := range needles {
				if lower == n {
					return true
				}
			}
		}
		return false
	}
}

// detectTechStack derives the tech_stack list from imports, manifest file
// names, and docker-compose service images, deduplicated, sorted, and
// truncated to 15, §4.H step 4.
func detectTechStack(imports []string, files []*model.FileIndex) []string {
	names := fileNames(files)
	var out []string
	for _, d := range techStackDetectors {
		if d.matches(imports, names) {
			out = append(out, d.name)
		}
	}
	for _, f := range files {
		base := strings.ToLower(path.Base(f.FilePath))
		if base == "docker-compose.yml" || base == "docker-compose.yaml" {
			out = append(out, composeServiceTags(f.Content)...)
		}
	}

	seen := make(map[string]bool, len(out))
	deduped := out[:0]
	for _, tag := range out {
		if !seen[tag] {
			seen[tag] = true
			deduped = append(deduped, tag)
		}
	}
	out = deduped

	sort.Strings(out)
	if len(out) > maxTechStack {
		out = out[:maxTechStack]
	}
	return out
}
