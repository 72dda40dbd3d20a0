// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package docchunk

import (
	"strings"
	"testing"

	"github.com/kbhalerao/codesmriti/pkg/model"
)

func TestDetectDocType(t *testing.T) {
	cases := map[string]model.DocType{
		"README.md":     model.DocTypeMarkdown,
		"docs/guide.rst": model.DocTypeRST,
		"notes.txt":     model.DocTypePlaintext,
		"main.go":       "",
	}
	for path, want := range cases {
		if got := DetectDocType(path); got != want {
			t.Fatalf("%s: expected %q, got %q", path, want, got)
		}
	}
}

func TestSplitMarkdownCarriesHeaderPath(t *testing.T) {
	content := "# Title\n\n" + strings.Repeat("intro text. ", 10) + "\n\n## Section A\n\n" +
		strings.Repeat("section body content here. ", 10) + "\n\n### Subsection\n\n" +
		strings.Repeat("deep content goes here and is long enough. ", 10)

	chunks := Split("repo1", "docs/guide.md", "c1", model.DocTypeMarkdown, content)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	var foundSub bool
	for _, c := range chunks {
		if c.SectionTitle == "Subsection" {
			foundSub = true
			want := []string{"Title", "Section A", "Subsection"}
			if len(c.HeaderPath) != len(want) {
				t.Fatalf("expected header path %v, got %v", want, c.HeaderPath)
			}
			for i := range want {
				if c.HeaderPath[i] != want[i] {
					t.Fatalf("expected header path %v, got %v", want, c.HeaderPath)
				}
			}
		}
	}
	if !foundSub {
		t.Fatal("expected a chunk under the Subsection heading")
	}
	for _, c := range chunks {
		if len(strings.TrimSpace(c.Content)) < minChunkChars {
			t.Fatalf("chunk below minimum size leaked through: %q", c.Content)
		}
	}
}

func TestSplitDropsShortChunks(t *testing.T) {
	content := "# Title\n\ntiny\n\n## Another\n\ntoo short\n"
	chunks := Split("repo1", "docs/x.md", "c1", model.DocTypeMarkdown, content)
	if len(chunks) != 0 {
		t.Fatalf("expected all chunks dropped as too short, got %d", len(chunks))
	}
}

func TestSplitStampsTotalChunksAndIDs(t *testing.T) {
	content := strings.Repeat("a", 150) + "\n\n" + strings.Repeat("b", 150)
	chunks := Split("repo1", "notes.txt", "c1", model.DocTypePlaintext, content)
	if len(chunks) < 1 {
		t.Fatal("expected at least one chunk")
	}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Fatalf("expected chunk index %d, got %d", i, c.ChunkIndex)
		}
		if c.TotalChunks != len(chunks) {
			t.Fatalf("expected total_chunks %d, got %d", len(chunks), c.TotalChunks)
		}
		if c.DocumentID == "" {
			t.Fatal("expected a non-empty document id")
		}
	}
}

func TestSplitOversizedSectionIsHardWrapped(t *testing.T) {
	content := "# Huge\n\n" + strings.Repeat("word word word word word word word word word word.\n", 200)
	chunks := Split("repo1", "docs/huge.md", "c1", model.DocTypeMarkdown, content)
	if len(chunks) < 2 {
		t.Fatalf("expected the oversized section to be split into multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c.Content) > targetChunkSize+200 {
			t.Fatalf("chunk exceeds target size by too much: %d chars", len(c.Content))
		}
	}
}
