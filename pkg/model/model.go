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

// Package model defines the persisted document hierarchy produced by the
// ingestion pipeline: symbol, file, module, repo, doc chunk, and run record.
package model

import "time"

// EnrichmentLevel records whether a document's summary came from the LLM,
// a structural fallback, or is absent.
type EnrichmentLevel string

const (
	EnrichmentLLM   EnrichmentLevel = "llm_summary"
	EnrichmentBasic EnrichmentLevel = "basic"
	EnrichmentNone  EnrichmentLevel = "none"
)

// Quality is the truthful record of how a document's content was produced.
type Quality struct {
	EnrichmentLevel   EnrichmentLevel `json:"enrichment_level"`
	LLMAvailable      bool            `json:"llm_available"`
	SummarySource     string          `json:"summary_source,omitempty"`
	IsUnderchunked    bool            `json:"is_underchunked,omitempty"`
	UnderchunkReason  []string        `json:"underchunk_reason,omitempty"`
	LLMChunksAdded    int             `json:"llm_chunks_added,omitempty"`
}

// Version stamps a document with schema/pipeline provenance.
type Version struct {
	SchemaVersion   int       `json:"schema_version"`
	PipelineVersion string    `json:"pipeline_version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

const CurrentSchemaVersion = 3

// MethodRef is a nested method entry recorded on a class-kind symbol.
type MethodRef struct {
	Name      string `json:"name"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// SymbolRef is a lightweight entry listed in FileIndex.Symbols, covering
// every parsed symbol regardless of significance.
type SymbolRef struct {
	Name        string      `json:"name"`
	Kind        string      `json:"kind"`
	StartLine   int         `json:"start_line"`
	EndLine     int         `json:"end_line"`
	Docstring   string      `json:"docstring,omitempty"`
	Significant bool        `json:"significant"`
	Methods     []MethodRef `json:"methods,omitempty"`
}

// SymbolIndex is a single significant symbol document (§3, kind=symbol).
type SymbolIndex struct {
	DocumentID string          `json:"document_id"`
	RepoID     string          `json:"repo_id"`
	FilePath   string          `json:"file_path"`
	CommitHash string          `json:"commit_hash"`
	Language   string          `json:"language"`
	SymbolName string          `json:"symbol_name"`
	SymbolType string          `json:"symbol_type"`
	Content    string          `json:"content"`
	StartLine  int             `json:"start_line"`
	EndLine    int             `json:"end_line"`
	Docstring  string          `json:"docstring,omitempty"`
	Methods    []MethodRef     `json:"methods,omitempty"`
	Inherits   []string        `json:"inherits,omitempty"`
	ParentID   string          `json:"parent_id"`
	Quality    Quality         `json:"quality"`
	Version    Version         `json:"version"`
	Embedding  []float32       `json:"embedding,omitempty"`
}

// FileIndex is one per processed file (§3, kind=file).
type FileIndex struct {
	DocumentID string      `json:"document_id"`
	RepoID     string      `json:"repo_id"`
	FilePath   string      `json:"file_path"`
	CommitHash string      `json:"commit_hash"`
	Content    string      `json:"content"`
	LineCount  int         `json:"line_count"`
	Language   string      `json:"language"`
	Imports    []string    `json:"imports,omitempty"`
	Symbols    []SymbolRef `json:"symbols"`
	ChildrenID []string    `json:"children_ids"`
	ParentID   string      `json:"parent_id"`
	Quality    Quality     `json:"quality"`
	Version    Version     `json:"version"`
	Embedding  []float32   `json:"embedding,omitempty"`
}

// ModuleSummary is one per folder containing at least one file or nested
// module (§3, kind=module).
type ModuleSummary struct {
	DocumentID string    `json:"document_id"`
	RepoID     string    `json:"repo_id"`
	FolderPath string    `json:"folder_path"`
	CommitHash string    `json:"commit_hash"`
	Content    string    `json:"content"`
	FileCount  int       `json:"file_count"`
	KeyFiles   []string  `json:"key_files,omitempty"`
	ParentID   string    `json:"parent_id"`
	ChildrenID []string  `json:"children_ids"`
	Quality    Quality   `json:"quality"`
	Version    Version   `json:"version"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// RepoSummary is exactly one per (repo, commit) (§3, kind=repo).
type RepoSummary struct {
	DocumentID       string         `json:"document_id"`
	RepoID           string         `json:"repo_id"`
	CommitHash       string         `json:"commit_hash"`
	Content          string         `json:"content"`
	TotalFiles       int            `json:"total_files"`
	TotalLines       int            `json:"total_lines"`
	LanguageHistogram map[string]int `json:"language_histogram"`
	TechStack        []string       `json:"tech_stack"`
	TopModulePaths   []string       `json:"top_module_paths"`
	ChildrenID       []string       `json:"children_ids"`
	Quality          Quality        `json:"quality"`
	Version          Version        `json:"version"`
	Embedding        []float32      `json:"embedding,omitempty"`
}

// DocType identifies the kind of supplementary documentation source a
// DocumentChunk was split from.
type DocType string

const (
	DocTypeMarkdown  DocType = "markdown"
	DocTypeRST       DocType = "rst"
	DocTypePlaintext DocType = "plaintext"
)

// DocumentChunk is a chunk of a documentation file (.md/.rst/.txt), §3.
type DocumentChunk struct {
	DocumentID   string    `json:"document_id"`
	RepoID       string    `json:"repo_id"`
	FilePath     string    `json:"file_path"`
	CommitHash   string    `json:"commit_hash"`
	Content      string    `json:"content"`
	DocType      DocType   `json:"doc_type"`
	ChunkIndex   int       `json:"chunk_index"`
	TotalChunks  int       `json:"total_chunks"`
	SectionTitle string    `json:"section_title,omitempty"`
	HeaderPath   []string  `json:"header_path,omitempty"`
	HeaderLevel  int       `json:"header_level,omitempty"`
	Version      Version   `json:"version"`
	Embedding    []float32 `json:"embedding,omitempty"`
}

// UpdateResult is the outcome of running the Incremental Updater over one
// repository (§3, §4.K).
type UpdateResult struct {
	RepoID         string        `json:"repo_id"`
	Status         string        `json:"status"`
	Reason         string        `json:"reason,omitempty"`
	Commit         string        `json:"commit,omitempty"`
	FilesProcessed int           `json:"files_processed"`
	FilesDeleted   int           `json:"files_deleted"`
	Duration       time.Duration `json:"duration"`
	Error          string        `json:"error,omitempty"`
}

// IngestionRun is written once per driver invocation (§3).
type IngestionRun struct {
	RunID           string                  `json:"run_id"`
	StartedAt       time.Time               `json:"started_at"`
	CompletedAt     time.Time               `json:"completed_at,omitempty"`
	Trigger         string                  `json:"trigger"`
	DryRun          bool                    `json:"dry_run"`
	Processed       int                     `json:"processed"`
	Skipped         int                     `json:"skipped"`
	Excluded        int                     `json:"excluded"`
	Updated         int                     `json:"updated"`
	FullReingest    int                     `json:"full_reingest"`
	Empty           int                     `json:"empty"`
	Cloned          int                     `json:"cloned"`
	Deleted         int                     `json:"deleted"`
	ErrorCount      int                     `json:"error_count"`
	FilesProcessed  int                     `json:"files_processed"`
	FilesDeleted    int                     `json:"files_deleted"`
	DurationSeconds float64                 `json:"duration_seconds"`
	Errors          []string                `json:"errors,omitempty"`
	Repos           map[string]UpdateResult `json:"repos"`
}

// NewIngestionRun initializes an empty run record for runID.
func NewIngestionRun(runID, trigger string, dryRun bool, startedAt time.Time) *IngestionRun {
	return &IngestionRun{
		RunID:     runID,
		StartedAt: startedAt,
		Trigger:   trigger,
		DryRun:    dryRun,
		Repos:     make(map[string]UpdateResult),
	}
}

// Finalize stamps completion time/duration and tallies status counters.
func (r *IngestionRun) Finalize(completedAt time.Time) {
	r.CompletedAt = completedAt
	r.DurationSeconds = completedAt.Sub(r.StartedAt).Seconds()
	for _, res := range r.Repos {
		switch res.Status {
		case "skipped":
			r.Skipped++
		case "excluded":
			r.Excluded++
		case "updated":
			r.Updated++
		case "full_reingest":
			r.FullReingest++
		case "empty":
			r.Empty++
		case "deleted":
			r.Deleted++
		case "error":
			r.ErrorCount++
			if res.Error != "" {
				r.Errors = append(r.Errors, res.RepoID+": "+res.Error)
			}
		}
		r.Processed++
		r.FilesProcessed += res.FilesProcessed
		r.FilesDeleted += res.FilesDeleted
	}
}

// LegacyIngestionLog is the duplicate legacy document shape the original
// implementation writes alongside IngestionRun for backward compatibility
// (see SPEC_FULL.md, Open Question #1).
type LegacyIngestionLog struct {
	LogID      string    `json:"log_id"`
	RunID      string    `json:"run_id"`
	Timestamp  time.Time `json:"timestamp"`
	Trigger    string    `json:"trigger"`
	ReposTotal int       `json:"repos_total"`
	ReposOK    int       `json:"repos_ok"`
	ReposError int       `json:"repos_error"`
}

// FromRun builds the legacy log view from a finalized run record.
func FromRun(r *IngestionRun) LegacyIngestionLog {
	return LegacyIngestionLog{
		LogID:      "ingestion_log:" + r.RunID,
		RunID:      r.RunID,
		Timestamp:  r.CompletedAt,
		Trigger:    r.Trigger,
		ReposTotal: len(r.Repos),
		ReposOK:    r.Processed - r.ErrorCount,
		ReposError: r.ErrorCount,
	}
}
