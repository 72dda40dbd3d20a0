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

// Package fileprocessor implements the File Processor (§4.G): the
// per-file pipeline from raw bytes at a commit to a FileIndex plus its
// significant-symbol SymbolIndex documents.
package fileprocessor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kbhalerao/codesmriti/pkg/chunker"
	"github.com/kbhalerao/codesmriti/pkg/ids"
	"github.com/kbhalerao/codesmriti/pkg/llm"
	"github.com/kbhalerao/codesmriti/pkg/model"
	"github.com/kbhalerao/codesmriti/pkg/parser"
	"github.com/kbhalerao/codesmriti/pkg/significance"
)

const (
	minContentChars     = 50
	significantLines    = 5
	maxSymbolsForFileCtx = 10
	maxFileContentPreview = 6000
	maxDocstringChars    = 300
)

// ContentResolver resolves a file's content at a commit, trying git show
// then the working tree, matching §4.G step 1.
type ContentResolver interface {
	ShowAtCommit(commit, relPath string) (string, error)
	ReadWorkingTree(absPath string) (string, error)
}

// LLM is the subset of *llm.Client the processor calls directly.
type LLM interface {
	SummarizeSymbol(ctx context.Context, name, kind, code, path, lang string) (string, int, error)
	SummarizeFile(ctx context.Context, path, contentPreview, symbolsContext string) (string, int, error)
}

// Tracker is the subset of *quality.Tracker the processor reports to.
type Tracker interface {
	RecordSymbolProcessed()
	RecordLLMCall(success bool, tokens int)
	LLMAvailable() bool
}

// Processor ties the structural parser, significance detector, LLM
// chunker, and LLM client into the §4.G algorithm.
type Processor struct {
	dispatch *parser.Dispatch
	resolver ContentResolver
	llmClient LLM
	chunkCaller chunker.Caller
	tracker  Tracker
}

func New(dispatch *parser.Dispatch, resolver ContentResolver, llmClient LLM, chunkCaller chunker.Caller, tracker Tracker) *Processor {
	return &Processor{dispatch: dispatch, resolver: resolver, llmClient: llmClient, chunkCaller: chunkCaller, tracker: tracker}
}

// Input bundles the file-processor's inputs, §4.G.
type Input struct {
	AbsPath      string
	RelPath      string
	RepoRoot     string
	RepoID       string
	CommitHash   string
	ParentModule string
}

// Result is the processor's output: nil FileIndex means skip.
type Result struct {
	File    *model.FileIndex
	Symbols []model.SymbolIndex
	Skipped bool
}

// Process runs the full §4.G algorithm for a single file.
func (p *Processor) Process(ctx context.Context, in Input) (Result, error) {
	content, ok := p.resolveContent(in)
	if !ok {
		return Result{Skipped: true}, nil
	}

	lang := parser.DetectLanguage(in.RelPath)
	symbols, detectedLang, err := p.dispatch.Parse([]byte(content), in.RelPath)
	if err != nil {
		return Result{Skipped: true}, fmt.Errorf("parse %s: %w", in.RelPath, err)
	}
	if detectedLang != "" {
		lang = detectedLang
	}
	imports := parser.ExtractImports([]byte(content), lang)

	sigResult := significance.Evaluate([]byte(content), lang, in.RelPath, symbols)
	llmChunksAdded := 0
	if sigResult.Underchunked && p.tracker != nil && p.tracker.LLMAvailable() && p.chunkCaller != nil {
		chunks, _ := chunker.Run(ctx, p.chunkCaller, in.RelPath, lang, []byte(content))
		added := chunker.ToSymbols(chunks)
		symbols = append(symbols, added...)
		llmChunksAdded = len(added)
	}

	fileID := ids.FileID(in.RepoID, in.RelPath, in.CommitHash)

	lines := strings.Split(content, "\n")
	symbolIndexes := make([]model.SymbolIndex, 0, len(symbols))
	symbolRefs := make([]model.SymbolRef, 0, len(symbols))
	childrenIDs := make([]string, 0)
	var summaries []string
	llmUsedAny := false

	for _, sym := range symbols {
		significant := sym.LineCount() >= significantLines
		ref := model.SymbolRef{
			Name:        symbolName(sym),
			Kind:        string(sym.Kind),
			StartLine:   sym.StartLine,
			EndLine:     sym.EndLine,
			Docstring:   sym.Docstring,
			Significant: significant,
		}
		for _, m := range sym.Methods {
			ref.Methods = append(ref.Methods, model.MethodRef{Name: m.Name, StartLine: m.StartLine, EndLine: m.EndLine})
		}
		symbolRefs = append(symbolRefs, ref)

		if !significant {
			continue
		}

		snippet := sliceLines(lines, sym.StartLine, sym.EndLine)
		summary, usedLLM := p.summarizeSymbol(ctx, sym, snippet, in.RelPath, lang)
		if usedLLM {
			llmUsedAny = true
		}
		summaries = append(summaries, summary)

		symID := ids.SymbolID(in.RepoID, in.RelPath, symbolName(sym), in.CommitHash)
		childrenIDs = append(childrenIDs, symID)

		quality := model.Quality{
			LLMAvailable: p.tracker != nil && p.tracker.LLMAvailable(),
		}
		if usedLLM {
			quality.EnrichmentLevel = model.EnrichmentLLM
			quality.SummarySource = "llm_summary"
		} else {
			quality.EnrichmentLevel = model.EnrichmentBasic
			quality.SummarySource = "basic"
		}

		symbolIndexes = append(symbolIndexes, model.SymbolIndex{
			DocumentID: symID,
			RepoID:     in.RepoID,
			FilePath:   in.RelPath,
			CommitHash: in.CommitHash,
			Language:   lang,
			SymbolName: symbolName(sym),
			SymbolType: string(sym.Kind),
			Content:    summary,
			StartLine:  sym.StartLine,
			EndLine:    sym.EndLine,
			Docstring:  sym.Docstring,
			Inherits:   sym.Inherits,
			ParentID:   fileID,
			Quality:    quality,
			Version:    newVersion(),
		})

		if p.tracker != nil {
			p.tracker.RecordSymbolProcessed()
		}
	}

	fileSummary, fileUsedLLM := p.summarizeFile(ctx, in.RelPath, content, summaries, symbols)

	fileQuality := model.Quality{
		LLMAvailable:   p.tracker != nil && p.tracker.LLMAvailable(),
		IsUnderchunked: sigResult.Underchunked,
		LLMChunksAdded: llmChunksAdded,
	}
	if sigResult.Reason != "" {
		fileQuality.UnderchunkReason = []string{sigResult.Reason}
	}
	if fileUsedLLM || llmUsedAny {
		fileQuality.EnrichmentLevel = model.EnrichmentLLM
		fileQuality.SummarySource = "llm_summary"
	} else {
		fileQuality.EnrichmentLevel = model.EnrichmentBasic
		fileQuality.SummarySource = "basic"
	}

	fi := &model.FileIndex{
		DocumentID: fileID,
		RepoID:     in.RepoID,
		FilePath:   in.RelPath,
		CommitHash: in.CommitHash,
		Content:    fileSummary,
		LineCount:  len(lines),
		Language:   lang,
		Imports:    imports,
		Symbols:    symbolRefs,
		ChildrenID: childrenIDs,
		ParentID:   in.ParentModule,
		Quality:    fileQuality,
		Version:    newVersion(),
	}

	return Result{File: fi, Symbols: symbolIndexes}, nil
}

func (p *Processor) resolveContent(in Input) (string, bool) {
	var content string
	if p.resolver != nil {
		if c, err := p.resolver.ShowAtCommit(in.CommitHash, in.RelPath); err == nil {
			content = c
		} else if c, err := p.resolver.ReadWorkingTree(in.AbsPath); err == nil {
			content = c
		}
	}
	if strings.TrimSpace(content) == "" || len(strings.TrimSpace(content)) < minContentChars {
		return "", false
	}
	return content, true
}

func (p *Processor) summarizeSymbol(ctx context.Context, sym parser.Symbol, snippet, path, lang string) (string, bool) {
	if p.llmClient != nil && p.tracker != nil && p.tracker.LLMAvailable() {
		summary, tokens, err := p.llmClient.SummarizeSymbol(ctx, symbolName(sym), string(sym.Kind), snippet, path, lang)
		p.tracker.RecordLLMCall(err == nil, tokens)
		if err == nil {
			return summary, true
		}
	}
	return fallbackSymbolSummary(sym, path), false
}

func fallbackSymbolSummary(sym parser.Symbol, path string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s in %s, lines %d-%d)", symbolName(sym), sym.Kind, path, sym.StartLine, sym.EndLine)
	if doc := cleanDocstring(sym.Docstring); doc != "" {
		sb.WriteString("\n")
		sb.WriteString(doc)
	}
	if sym.Kind == parser.KindClass && len(sym.Methods) > 0 {
		n := len(sym.Methods)
		if n > 5 {
			n = 5
		}
		names := make([]string, 0, n)
		for _, m := range sym.Methods[:n] {
			names = append(names, m.Name)
		}
		sb.WriteString("\nMethods: ")
		sb.WriteString(strings.Join(names, ", "))
	}
	return sb.String()
}

func cleanDocstring(doc string) string {
	doc = strings.TrimSpace(doc)
	if len(doc) > maxDocstringChars {
		doc = doc[:maxDocstringChars]
	}
	return doc
}

func (p *Processor) summarizeFile(ctx context.Context, path, content string, symbolSummaries []string, symbols []parser.Symbol) (string, bool) {
	preview := content
	if len(preview) > maxFileContentPreview {
		preview = preview[:maxFileContentPreview]
	}
	n := len(symbolSummaries)
	if n > maxSymbolsForFileCtx {
		n = maxSymbolsForFileCtx
	}
	symContext := strings.Join(symbolSummaries[:n], "\n---\n")

	if p.llmClient != nil && p.tracker != nil && p.tracker.LLMAvailable() {
		summary, tokens, err := p.llmClient.SummarizeFile(ctx, path, preview, symContext)
		p.tracker.RecordLLMCall(err == nil, tokens)
		if err == nil {
			return summary, true
		}
	}
	return fallbackFileSummary(path, symbols), false
}

func fallbackFileSummary(path string, symbols []parser.Symbol) string {
	classes, functions, methods := classifyFallback(symbols)
	var sb strings.Builder
	fmt.Fprintf(&sb, "File %s.", path)
	if len(classes) > 0 {
		fmt.Fprintf(&sb, " Classes: %s.", strings.Join(classes, ", "))
	}
	if len(functions) > 0 {
		fmt.Fprintf(&sb, " Functions: %s.", strings.Join(functions, ", "))
	}
	if len(methods) > 0 {
		fmt.Fprintf(&sb, " Methods: %s.", strings.Join(methods, ", "))
	}
	return sb.String()
}

func classifyFallback(symbols []parser.Symbol) (classes, functions, methods []string) {
	for _, s := range symbols {
		switch s.Kind {
		case parser.KindClass:
			classes = append(classes, s.Name)
			for _, m := range s.Methods {
				methods = append(methods, s.Name+"."+m.Name)
			}
		case parser.KindFunction, parser.KindArrowFunction:
			functions = append(functions, s.Name)
		}
	}
	sort.Strings(classes)
	sort.Strings(functions)
	sort.Strings(methods)
	return classes, functions, methods
}

func symbolName(sym parser.Symbol) string {
	if sym.Name != "" {
		return sym.Name
	}
	return "unnamed"
}

func sliceLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end || start > len(lines) {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

func newVersion() model.Version {
	now := time.Now().UTC()
	return model.Version{
		SchemaVersion:   model.CurrentSchemaVersion,
		PipelineVersion: "4",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
