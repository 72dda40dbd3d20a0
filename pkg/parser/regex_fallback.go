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

package parser

import (
	"bufio"
	"bytes"
	"regexp"
)

// RegexFallback extracts approximately-correct symbol boundaries by
// matching function/class declaration lines and running to the next
// top-level declaration or EOF, for languages without a tree-sitter
// grammar in the dispatch table (§4.D: "a regex fallback produces
// correctly named function/class symbols with approximate line ranges").
type RegexFallback struct {
	lang     string
	patterns []fallbackPattern
}

type fallbackPattern struct {
	re   *regexp.Regexp
	kind Kind
}

var languagePatterns = map[string][]fallbackPattern{
	"python": {
		{regexp.MustCompile(`^def\s+(\w+)\s*\(`), KindFunction},
		{regexp.MustCompile(`^class\s+(\w+)`), KindClass},
	},
	"javascript": {
		{regexp.MustCompile(`^\s*function\s+(\w+)\s*\(`), KindFunction},
		{regexp.MustCompile(`^\s*class\s+(\w+)`), KindClass},
		{regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s*)?\(`), KindArrowFunction},
	},
	"typescript": {
		{regexp.MustCompile(`^\s*(?:export\s+)?function\s+(\w+)\s*\(`), KindFunction},
		{regexp.MustCompile(`^\s*(?:export\s+)?class\s+(\w+)`), KindClass},
		{regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*(?::[^=]+)?=\s*(?:async\s*)?\(`), KindArrowFunction},
	},
	"go": {
		{regexp.MustCompile(`^func\s+(?:\([^)]*\)\s*)?(\w+)\s*\(`), KindFunction},
		{regexp.MustCompile(`^type\s+(\w+)\s+struct`), KindClass},
	},
}

var genericPatterns = []fallbackPattern{
	{regexp.MustCompile(`^\s*(?:public|private|protected|static)*\s*\w[\w<>\[\]]*\s+(\w+)\s*\([^;{]*\)\s*\{?\s*$`), KindFunction},
}

func NewRegexFallback(lang string) *RegexFallback {
	patterns, ok := languagePatterns[lang]
	if !ok {
		patterns = genericPatterns
	}
	return &RegexFallback{lang: lang, patterns: patterns}
}

func (r *RegexFallback) Language() string { return r.lang }

func (r *RegexFallback) Parse(content []byte, _ string) ([]Symbol, error) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	type hit struct {
		lineIdx int
		name    string
		kind    Kind
	}
	var hits []hit
	for i, line := range lines {
		for _, p := range r.patterns {
			if m := p.re.FindStringSubmatch(line); m != nil {
				hits = append(hits, hit{lineIdx: i, name: m[1], kind: p.kind})
				break
			}
		}
	}

	symbols := make([]Symbol, 0, len(hits))
	for i, h := range hits {
		end := len(lines)
		if i+1 < len(hits) {
			end = hits[i+1].lineIdx
		}
		symbols = append(symbols, Symbol{
			Name:      h.name,
			Kind:      h.kind,
			StartLine: h.lineIdx + 1,
			EndLine:   end,
		})
	}
	return symbols, nil
}
