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

package store

import "encoding/json"

// Document kind discriminators, matching the vector-search filter fields
// named in §6 ("type", "repo_id", "language", "chunk_type", "doc_type").
const (
	TypeFile    = "file"
	TypeSymbol  = "symbol"
	TypeModule  = "module"
	TypeRepo    = "repo_summary"
	TypeDocChunk = "document_chunk"
)

// ToDocument round-trips any of the model package's document structs
// through JSON into a generic Document, stamping a "type" discriminator
// field used by Query/DeleteByPredicate/VectorSearch filters.
func ToDocument(kind string, v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	doc["type"] = kind
	return doc, nil
}

// Decode round-trips a Document back into a typed struct.
func Decode(doc Document, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
