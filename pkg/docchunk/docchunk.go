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

// Package docchunk splits documentation files (.md, .rst, .txt) into
// DocumentChunk records for the supplementary doc pipeline (§3).
package docchunk

import (
	"strings"

	"github.com/kbhalerao/codesmriti/pkg/ids"
	"github.com/kbhalerao/codesmriti/pkg/model"
)

const (
	targetChunkSize = 4000
	minChunkChars   = 100
)

// DetectDocType maps a file path to its DocumentChunk doc type, or "" if
// the path isn't a recognized documentation format.
func DetectDocType(path string) model.DocType {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown"):
		return model.DocTypeMarkdown
	case strings.HasSuffix(lower, ".rst"):
		return model.DocTypeRST
	case strings.HasSuffix(lower, ".txt"):
		return model.DocTypePlaintext
	default:
		return ""
	}
}

type heading struct {
	level int
	title string
}

// Split breaks content into DocumentChunk records. Markdown headings seed
// section_title/header_path/header_level; rst/plaintext chunks carry none
// of those. Chunks whose trimmed text is under 100 characters are dropped;
// no chunk targets more than ~4000 characters.
func Split(repoID, filePath, commitHash string, docType model.DocType, content string) []model.DocumentChunk {
	var blocks []block
	switch docType {
	case model.DocTypeMarkdown:
		blocks = splitMarkdown(content)
	default:
		blocks = splitPlain(content)
	}

	var chunks []model.DocumentChunk
	for _, b := range blocks {
		trimmed := strings.TrimSpace(b.text)
		if len(trimmed) < minChunkChars {
			continue
		}
		idx := len(chunks)
		chunks = append(chunks, model.DocumentChunk{
			DocumentID:   ids.DocChunkID(repoID, filePath, idx),
			RepoID:       repoID,
			FilePath:     filePath,
			CommitHash:   commitHash,
			Content:      trimmed,
			DocType:      docType,
			ChunkIndex:   idx,
			SectionTitle: b.sectionTitle,
			HeaderPath:   b.headerPath,
			HeaderLevel:  b.headerLevel,
		})
	}
	for i := range chunks {
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}

type block struct {
	text         string
	sectionTitle string
	headerPath   []string
	headerLevel  int
}

func splitMarkdown(content string) []block {
	lines := strings.Split(content, "\n")
	var blocks []block
	var stack []heading
	var cur strings.Builder

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		b := block{text: cur.String()}
		if len(stack) > 0 {
			top := stack[len(stack)-1]
			b.sectionTitle = top.title
			b.headerLevel = top.level
			for _, h := range stack {
				b.headerPath = append(b.headerPath, h.title)
			}
		}
		blocks = append(blocks, splitOversized(b)...)
		cur.Reset()
	}

	for _, line := range lines {
		if level, title, ok := parseHeading(line); ok {
			flush()
			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, heading{level: level, title: title})
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if cur.Len() >= targetChunkSize {
			flush()
		}
	}
	flush()
	return blocks
}

func parseHeading(line string) (level int, title string, ok bool) {
	trimmed := strings.TrimLeft(line, " \t")
	n := 0
	for n < len(trimmed) && trimmed[n] == '#' {
		n++
	}
	if n == 0 || n > 6 || n >= len(trimmed) || trimmed[n] != ' ' {
		return 0, "", false
	}
	return n, strings.TrimSpace(trimmed[n:]), true
}

func splitPlain(content string) []block {
	paragraphs := strings.Split(content, "\n\n")
	var blocks []block
	var cur strings.Builder
	for _, p := range paragraphs {
		if cur.Len() > 0 && cur.Len()+len(p) > targetChunkSize {
			blocks = append(blocks, block{text: cur.String()})
			cur.Reset()
		}
		cur.WriteString(p)
		cur.WriteString("\n\n")
	}
	if cur.Len() > 0 {
		blocks = append(blocks, block{text: cur.String()})
	}
	var out []block
	for _, b := range blocks {
		out = append(out, splitOversized(b)...)
	}
	return out
}

// splitOversized hard-wraps a block that exceeds the target size after
// heading-based splitting (e.g. one huge section with no sub-headings).
func splitOversized(b block) []block {
	if len(b.text) <= targetChunkSize {
		return []block{b}
	}
	var out []block
	text := b.text
	for len(text) > targetChunkSize {
		cut := strings.LastIndex(text[:targetChunkSize], "\n")
		if cut <= 0 {
			cut = targetChunkSize
		}
		piece := b
		piece.text = text[:cut]
		out = append(out, piece)
		text = text[cut:]
	}
	if strings.TrimSpace(text) != "" {
		piece := b
		piece.text = text
		out = append(out, piece)
	}
	return out
}
