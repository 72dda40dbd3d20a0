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

// Package significance implements the Significance Detector (§4.E): the
// underchunked heuristic that decides whether a parsed file should be sent
// through the LLM chunker for additional semantic symbols.
package significance

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kbhalerao/codesmriti/pkg/parser"
)

const (
	largeFileSize  = 5000
	highDensity    = 100
	minSymbolCount = 2
)

var (
	tripleQuoteBlockRe = regexp.MustCompile(`(?s)("""|''')(.{200,}?)("""|''')`)
	sqlKeywordRe       = regexp.MustCompile(`(?i)SELECT\s+.+\s+FROM|INSERT\s+INTO|UPDATE\s+.+\s+SET|DELETE\s+FROM|CREATE\s+TABLE`)
	sqlExecutionRe     = regexp.MustCompile(`\.execute\(|\.query\(|cursor\.|rawsql|text\(`)
	stringFormatRe     = regexp.MustCompile(`\.format\(|%\s*\(|[rfRF]'|[rfRF]"`)
	templateLiteralRe  = regexp.MustCompile("`[^`]*\\$\\{[^}]+\\}[^`]*`")
	embeddedHTMLRe     = regexp.MustCompile(`(?is)<(?:div|table|form|span|section)[^>]{20,}>`)
	embeddedGraphQLRe  = regexp.MustCompile(`\b(mutation|query)\s*\{`)
)

var unsupportedLanguages = map[string]bool{
	"sql": true, "svelte": true, "vue": true, "unknown": true,
}

var importantPathMarkers = []string{
	"service", "handler", "controller", "manager", "helper", "util", "api", "view",
}

// Result records whether a file is underchunked and, when so, the
// first-matching reason, recorded verbatim for audit per quality.underchunk_reason.
type Result struct {
	Underchunked bool
	Reason       string
}

// Evaluate applies the §4.E reason table, in table order, to one file's
// parsed symbols and raw content.
func Evaluate(content []byte, lang, path string, symbols []parser.Symbol) Result {
	text := string(content)
	size := len(text)
	symbolCount := len(symbols)

	if size > largeFileSize && symbolCount < minSymbolCount {
		return Result{true, "large_file_single_chunk"}
	}

	if symbolCount > 0 {
		lines := strings.Count(text, "\n") + 1
		if float64(lines)/float64(symbolCount) > highDensity {
			return Result{true, "high_density"}
		}
	}

	if tripleQuoteBlockRe.MatchString(text) {
		return Result{true, "long_docstring_or_sql"}
	}

	if sqlKeywordRe.MatchString(text) {
		return Result{true, "embedded_sql"}
	}

	if lang == "python" && sqlExecutionRe.MatchString(text) {
		return Result{true, "sql_execution_pattern"}
	}

	if lang == "python" {
		if len(stringFormatRe.FindAllString(text, -1)) > 5 {
			return Result{true, "heavy_string_formatting"}
		}
	}

	if lang == "javascript" || lang == "typescript" {
		if len(templateLiteralRe.FindAllString(text, -1)) > 3 {
			return Result{true, "template_literals"}
		}
	}

	if embeddedHTMLRe.MatchString(text) {
		return Result{true, "embedded_html"}
	}
	if embeddedGraphQLRe.MatchString(text) {
		return Result{true, "embedded_graphql"}
	}

	if unsupportedLanguages[lang] && symbolCount <= minSymbolCount {
		return Result{true, "unsupported_language_minimal_chunks"}
	}

	if symbolCount <= minSymbolCount && pathLooksImportant(path) {
		return Result{true, "important_file_minimal_chunks"}
	}

	return Result{false, ""}
}

func pathLooksImportant(path string) bool {
	lower := strings.ToLower(filepath.ToSlash(path))
	for _, marker := range importantPathMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
