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

// Package exclude implements should_skip_file (§4.K step 2): matching a
// repo-relative path against the configured exclusion glob list.
package exclude

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// knownCodeAndDocExtensions lists extensions the pipeline will attempt to
// process; anything else is skipped even if it survives the glob list.
var knownCodeAndDocExtensions = map[string]bool{
	".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".go": true, ".java": true, ".rb": true, ".php": true, ".c": true,
	".cpp": true, ".h": true, ".hpp": true, ".cs": true, ".rs": true,
	".svelte": true, ".vue": true, ".html": true, ".css": true, ".sql": true,
	".md": true, ".markdown": true, ".rst": true, ".txt": true,
}

// Matcher holds a compiled exclusion glob list.
type Matcher struct {
	globs []string
}

// New builds a Matcher from the configured exclusion globs.
func New(globs []string) *Matcher {
	return &Matcher{globs: globs}
}

// ShouldSkipFile reports whether path should be skipped entirely: it
// matches an exclusion glob, or its extension isn't one the pipeline
// knows how to process.
func (m *Matcher) ShouldSkipFile(path string) bool {
	if m.matchesAnyGlob(path) {
		return true
	}
	return !knownCodeAndDocExtensions[extensionOf(path)]
}

func (m *Matcher) matchesAnyGlob(path string) bool {
	for _, pattern := range m.globs {
		if doublestar.MatchUnvalidated(pattern, path) {
			return true
		}
		// A pattern with no "/" and no leading "**" is meant to match at
		// any depth, mirroring .gitignore-style exclude lists.
		if !strings.Contains(pattern, "/") && doublestar.MatchUnvalidated("**/"+pattern, path) {
			return true
		}
	}
	return false
}

func extensionOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}
	return strings.ToLower(path[idx:])
}

// IsDocFile reports whether path is a documentation file the doc chunking
// pipeline (§3) should process, as opposed to a code file for the File
// Processor.
func IsDocFile(path string) bool {
	switch extensionOf(path) {
	case ".md", ".markdown", ".rst", ".txt":
		return true
	default:
		return false
	}
}
