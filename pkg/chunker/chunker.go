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

// Package chunker implements the LLM Chunker (§4.F): up to three passes
// over an underchunked file, each asking the LLM to find semantic units a
// structural parser missed, filtered to a confidence floor and merged into
// the symbol list as additional SymbolRefs.
package chunker

import (
	"context"
	"fmt"

	"github.com/kbhalerao/codesmriti/pkg/llm"
	"github.com/kbhalerao/codesmriti/pkg/parser"
)

const confidenceFloor = 0.7

// Caller is the subset of *llm.Client the chunker needs, letting tests
// supply a fake.
type Caller interface {
	Chunk(ctx context.Context, prompt string) ([]llm.SemanticChunk, error)
}

type pass struct {
	name       string
	languages  map[string]bool // nil means all languages
	promptTmpl string
}

var passes = []pass{
	{
		name:       "embedded-code",
		languages:  nil,
		promptTmpl: "Find embedded code fragments (SQL, templates, or markup) in this %s file %s that a structural parser would miss. Content:\n%s",
	},
	{
		name:       "business-logic",
		languages:  nil,
		promptTmpl: "Find business-logic units (validation, pricing, workflow steps) in this %s file %s not already captured as top-level symbols. Content:\n%s",
	},
	{
		name:       "api-contracts",
		languages:  map[string]bool{"python": true, "javascript": true, "typescript": true},
		promptTmpl: "Find API contract definitions (request/response shapes, route handlers) in this %s file %s. Content:\n%s",
	},
}

// Run issues up to three passes over content and returns the union of
// chunks whose confidence exceeds 0.7, §4.F.
func Run(ctx context.Context, caller Caller, path, lang string, content []byte) ([]llm.SemanticChunk, error) {
	var accepted []llm.SemanticChunk
	text := string(content)
	if len(text) > 8000 {
		text = text[:8000]
	}

	for _, p := range passes {
		if p.languages != nil && !p.languages[lang] {
			continue
		}
		prompt := fmt.Sprintf(p.promptTmpl, lang, path, text)
		chunks, err := caller.Chunk(ctx, prompt)
		if err != nil {
			continue // a failed pass is skipped, not fatal to the file (§4.F is best-effort)
		}
		for _, c := range chunks {
			if c.Confidence > confidenceFloor {
				accepted = append(accepted, c)
			}
		}
	}
	return accepted, nil
}

// ToSymbols converts accepted semantic chunks into parser.Symbol entries so
// they flow through the same significance and summarization pipeline as
// structurally parsed symbols, per §4.F.
func ToSymbols(chunks []llm.SemanticChunk) []parser.Symbol {
	out := make([]parser.Symbol, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, parser.Symbol{
			Name:      c.Name,
			Kind:      parser.Kind(c.Type),
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Docstring: c.Purpose,
		})
	}
	return out
}
