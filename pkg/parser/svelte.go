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

import "regexp"

var (
	svelteScriptRe = regexp.MustCompile(`(?s)<script[^>]*>(.*?)</script>`)
	svelteStyleRe  = regexp.MustCompile(`(?s)<style[^>]*>(.*?)</style>`)
)

// SvelteParser splits a .svelte file into its script, style, and template
// sections and re-dispatches the script section to the JS/TS structural
// parser, matching §4.D's "split into script / style / template sections"
// requirement for Svelte.
type SvelteParser struct {
	dispatch *Dispatch
}

func NewSvelteParser(d *Dispatch) *SvelteParser {
	return &SvelteParser{dispatch: d}
}

func (s *SvelteParser) Language() string { return "svelte" }

func (s *SvelteParser) Parse(content []byte, filePath string) ([]Symbol, error) {
	text := string(content)
	var symbols []Symbol

	if loc := svelteScriptRe.FindStringSubmatchIndex(text); loc != nil {
		scriptBody := text[loc[2]:loc[3]]
		startLine := lineAt(text, loc[2])
		endLine := lineAt(text, loc[3])
		symbols = append(symbols, Symbol{
			Name:      "script",
			Kind:      KindSvelteScript,
			StartLine: startLine,
			EndLine:   endLine,
		})
		if inner, lang, err := s.dispatch.Parse([]byte(scriptBody), scriptLangHint(filePath)); err == nil && lang != "unknown" {
			for _, sym := range inner {
				sym.StartLine += startLine - 1
				sym.EndLine += startLine - 1
				symbols = append(symbols, sym)
			}
		}
	}

	if loc := svelteStyleRe.FindStringSubmatchIndex(text); loc != nil {
		symbols = append(symbols, Symbol{
			Name:      "style",
			Kind:      KindSvelteStyle,
			StartLine: lineAt(text, loc[2]),
			EndLine:   lineAt(text, loc[3]),
		})
	}

	symbols = append(symbols, Symbol{
		Name:      "template",
		Kind:      KindSvelteTemplate,
		StartLine: 1,
		EndLine:   lineAt(text, len(text)),
	})

	return symbols, nil
}

func scriptLangHint(filePath string) string {
	return filePath + ".ts"
}

func lineAt(text string, byteOffset int) int {
	if byteOffset > len(text) {
		byteOffset = len(text)
	}
	line := 1
	for i := 0; i < byteOffset; i++ {
		if text[i] == '\n' {
			line++
		}
	}
	return line
}
