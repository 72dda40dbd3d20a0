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

// Package ids generates the content-derived document identifiers used
// throughout the hierarchy: hash of a canonical key string, same key
// always yields the same identifier.
package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// Commit12 truncates a full commit SHA to its first 12 characters, the
// granularity identifiers are keyed at.
func Commit12(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

// NormalizePath makes a path stable across platforms: forward slashes,
// no leading "./" or "/".
func NormalizePath(path string) string {
	if len(path) >= 2 && path[0:2] == "./" {
		path = path[2:]
	}
	path = filepath.ToSlash(filepath.Clean(path))
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	return path
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SymbolID hashes `symbol:{repo}:{path}:{symbol_name}:{commit12}`.
func SymbolID(repoID, filePath, symbolName, commit string) string {
	key := fmt.Sprintf("symbol:%s:%s:%s:%s", repoID, NormalizePath(filePath), symbolName, Commit12(commit))
	return hash(key)
}

// FileID hashes `file:{repo}:{path}:{commit12}`.
func FileID(repoID, filePath, commit string) string {
	key := fmt.Sprintf("file:%s:%s:%s", repoID, NormalizePath(filePath), Commit12(commit))
	return hash(key)
}

// ModuleID hashes `module:{repo}:{folder_path}:{commit12}`.
func ModuleID(repoID, folderPath, commit string) string {
	key := fmt.Sprintf("module:%s:%s:%s", repoID, NormalizePath(folderPath), Commit12(commit))
	return hash(key)
}

// RepoDocID hashes `repo:{repo}:{commit12}`.
func RepoDocID(repoID, commit string) string {
	key := fmt.Sprintf("repo:%s:%s", repoID, Commit12(commit))
	return hash(key)
}

// DocChunkID hashes `document:hash16(repo:path:index)` — a 16-byte-truncated
// hash as described in §3's DocumentChunk entity.
func DocChunkID(repoID, filePath string, index int) string {
	key := fmt.Sprintf("%s:%s:%d", repoID, NormalizePath(filePath), index)
	sum := sha256.Sum256([]byte(key))
	return "document:" + hex.EncodeToString(sum[:16])
}
