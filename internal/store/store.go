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

// Package store implements the embedded document store the core ingestion
// pipeline runs against: upsert/get/query/delete-by-predicate over JSON
// documents, plus brute-force vector search over an embedding field.
//
// Persistence is a write-ahead log of JSON lines plus a snapshot file that
// Compact rewrites atomically (temp file + rename); compaction runs only
// when Compact is called.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kbhalerao/codesmriti/pkg/embedding"
)

// Document is a stored record keyed by document id. Concrete model types
// (FileIndex, ModuleSummary, ...) round-trip through it via JSON.
type Document map[string]any

const tombstoneMarker = "__deleted__"

// Store is a process-local, mutex-guarded embedded document store.
type Store struct {
	mu      sync.RWMutex
	dataDir string
	wal     *os.File
	docs    map[string]Document
	closed  bool
}

// Open opens (creating if absent) the store rooted at dataDir, replaying
// its write-ahead log to rebuild the in-memory index.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	s := &Store{
		dataDir: dataDir,
		docs:    make(map[string]Document),
	}
	if err := s.replay(); err != nil {
		return nil, fmt.Errorf("replay wal: %w", err)
	}
	f, err := os.OpenFile(s.walPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}
	s.wal = f
	return s, nil
}

func (s *Store) walPath() string      { return filepath.Join(s.dataDir, "documents.wal.jsonl") }
func (s *Store) snapshotPath() string { return filepath.Join(s.dataDir, "documents.snapshot.json") }

type walEntry struct {
	ID        string          `json:"id"`
	Tombstone bool            `json:"tombstone,omitempty"`
	Doc       json.RawMessage `json:"doc,omitempty"`
}

func (s *Store) replay() error {
	if data, err := os.ReadFile(s.snapshotPath()); err == nil {
		var snap map[string]Document
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("parse snapshot: %w", err)
		}
		s.docs = snap
	} else if !os.IsNotExist(err) {
		return err
	}

	f, err := os.Open(s.walPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e walEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // tolerate a torn final write from a crash mid-append
		}
		if e.Tombstone {
			delete(s.docs, e.ID)
			continue
		}
		var doc Document
		if err := json.Unmarshal(e.Doc, &doc); err != nil {
			continue
		}
		s.docs[e.ID] = doc
	}
	return scanner.Err()
}

func (s *Store) appendWAL(e walEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := s.wal.Write(data); err != nil {
		return err
	}
	return s.wal.Sync()
}

// Upsert writes doc under docID, replacing any prior value. Idempotent.
func (s *Store) Upsert(docID string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %q: %w", docID, err)
	}
	if err := s.appendWAL(walEntry{ID: docID, Doc: raw}); err != nil {
		return fmt.Errorf("append wal for %q: %w", docID, err)
	}
	cp := make(Document, len(doc))
	for k, v := range doc {
		cp[k] = v
	}
	s.docs[docID] = cp
	return nil
}

// Get returns the document stored under docID, or found=false if absent.
func (s *Store) Get(docID string) (doc Document, found bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, fmt.Errorf("store is closed")
	}
	d, ok := s.docs[docID]
	if !ok {
		return nil, false, nil
	}
	return d, true, nil
}

// Predicate matches documents for Query and DeleteByPredicate. A document
// matches when it has every Equals field and each value, formatted with
// %v, equals the wanted string.
type Predicate struct {
	Equals map[string]string
}

// Find returns every document matching pred. Unlike Query, it is a direct
// Go-level scan for internal pipeline callers that already know the exact
// fields they need, rather than a textual N1QL shape.
func (s *Store) Find(pred Predicate) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	var ids []string
	for id, d := range s.docs {
		if pred.matches(d) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.docs[id])
	}
	return out, nil
}

// FindOne returns the first document matching pred, if any.
func (s *Store) FindOne(pred Predicate) (Document, bool, error) {
	docs, err := s.Find(pred)
	if err != nil || len(docs) == 0 {
		return nil, false, err
	}
	return docs[0], true, nil
}

func (p Predicate) matches(d Document) bool {
	for field, want := range p.Equals {
		got, ok := d[field]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}

// Query runs a parameterised, N1QL-flavoured query string against the
// store. It implements the small set of shapes the pipeline actually
// issues rather than a general query engine:
//
//	SELECT DISTINCT file_path, commit_hash FROM documents WHERE type = $type AND repo_id = $repo_id
//	SELECT DISTINCT repo_id FROM documents WHERE type = $type
//	SELECT COUNT(*) FROM documents WHERE type = $type AND repo_id = $repo_id
//	SELECT commit_hash FROM documents WHERE type = $type AND repo_id = $repo_id
//
// params supplies the $name bindings. Results are returned as a slice of
// field->value rows, sorted for determinism.
func (s *Store) Query(n1ql string, params map[string]string) ([]map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	q, err := parseSelect(n1ql)
	if err != nil {
		return nil, err
	}
	pred := q.bind(params)

	if q.countOnly {
		n := 0
		for _, d := range s.docs {
			if pred.matches(d) {
				n++
			}
		}
		return []map[string]string{{"count": fmt.Sprintf("%d", n)}}, nil
	}

	seen := make(map[string]bool)
	var rows []map[string]string
	for _, d := range s.docs {
		if !pred.matches(d) {
			continue
		}
		row := make(map[string]string, len(q.fields))
		for _, f := range q.fields {
			if v, ok := d[f]; ok {
				row[f] = fmt.Sprintf("%v", v)
			}
		}
		if q.distinct {
			key := rowKey(row, q.fields)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		rows = append(rows, row)
	}
	sortRows(rows, q.fields)
	return rows, nil
}

func rowKey(row map[string]string, fields []string) string {
	key := ""
	for _, f := range fields {
		key += f + "=" + row[f] + "\x1f"
	}
	return key
}

func sortRows(rows []map[string]string, fields []string) {
	sort.Slice(rows, func(i, j int) bool {
		for _, f := range fields {
			if rows[i][f] != rows[j][f] {
				return rows[i][f] < rows[j][f]
			}
		}
		return false
	})
}

// DeleteByPredicate removes every document matching pred, appending a
// tombstone WAL entry per removed id, and returns the count removed.
func (s *Store) DeleteByPredicate(pred Predicate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}
	var toDelete []string
	for id, d := range s.docs {
		if pred.matches(d) {
			toDelete = append(toDelete, id)
		}
	}
	sort.Strings(toDelete)
	for _, id := range toDelete {
		if err := s.appendWAL(walEntry{ID: id, Tombstone: true}); err != nil {
			return 0, fmt.Errorf("append tombstone for %q: %w", id, err)
		}
		delete(s.docs, id)
	}
	return len(toDelete), nil
}

// VectorResult is a single kNN hit.
type VectorResult struct {
	DocumentID string
	Score      float64
	Doc        Document
}

// VectorSearch returns the k nearest documents to query by cosine
// similarity over their "embedding" field, after applying filters (exact
// match on type/repo_id/language/chunk_type/doc_type). It is a brute-force
// scan: the contract notes vector search is not used during ingest, so
// there is no indexing cost to pay on the write path.
func (s *Store) VectorSearch(query []float32, k int, filters map[string]string) ([]VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if k <= 0 {
		k = 10
	}
	pred := Predicate{Equals: filters}

	var candidates []VectorResult
	for id, d := range s.docs {
		if !pred.matches(d) {
			continue
		}
		vec, ok := embeddingOf(d)
		if !ok {
			continue
		}
		score := embedding.CosineSimilarity(query, vec)
		candidates = append(candidates, VectorResult{DocumentID: id, Score: score, Doc: d})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func embeddingOf(d Document) ([]float32, bool) {
	raw, ok := d["embedding"]
	if !ok {
		return nil, false
	}
	arr, ok := raw.([]any)
	if !ok || len(arr) == 0 {
		return nil, false
	}
	vec := make([]float32, len(arr))
	for i, v := range arr {
		f, ok := v.(float64)
		if !ok {
			return nil, false
		}
		vec[i] = float32(f)
	}
	return vec, true
}

// Compact rewrites the snapshot from the current in-memory state and
// truncates the write-ahead log, bounding replay cost on the next Open.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	data, err := json.Marshal(s.docs)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := s.snapshotPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot temp: %w", err)
	}
	if err := os.Rename(tmp, s.snapshotPath()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	if err := s.wal.Close(); err != nil {
		return fmt.Errorf("close wal: %w", err)
	}
	if err := os.Truncate(s.walPath(), 0); err != nil {
		return fmt.Errorf("truncate wal: %w", err)
	}
	f, err := os.OpenFile(s.walPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("reopen wal: %w", err)
	}
	s.wal = f
	return nil
}

// Close flushes and releases the underlying WAL handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.wal.Close()
}
