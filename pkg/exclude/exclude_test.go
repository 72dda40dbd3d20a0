// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package exclude

import "testing"

func TestShouldSkipFileMatchesGlobs(t *testing.T) {
	m := New([]string{"node_modules/**", "**/.git/**", "*.o"})
	cases := map[string]bool{
		"node_modules/lodash/index.js": true,
		"src/.git/HEAD":                true,
		"main.o":                       true,
		"src/lib.o":                    true,
		"src/main.go":                  false,
	}
	for path, want := range cases {
		if got := m.ShouldSkipFile(path); got != want {
			t.Fatalf("%s: expected skip=%v, got %v", path, want, got)
		}
	}
}

func TestShouldSkipFileRejectsUnknownExtensions(t *testing.T) {
	m := New(nil)
	if !m.ShouldSkipFile("image.png") {
		t.Fatal("expected unknown extension to be skipped")
	}
	if m.ShouldSkipFile("main.go") {
		t.Fatal("expected known extension to not be skipped")
	}
}

func TestIsDocFile(t *testing.T) {
	if !IsDocFile("README.md") || !IsDocFile("docs/x.rst") || !IsDocFile("NOTES.txt") {
		t.Fatal("expected markdown/rst/txt to be doc files")
	}
	if IsDocFile("main.go") {
		t.Fatal("expected go file to not be a doc file")
	}
}
