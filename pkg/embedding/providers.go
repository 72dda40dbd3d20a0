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

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OllamaProvider calls an Ollama-compatible /api/embeddings endpoint,
// ported from the teacher's OllamaEmbeddingProvider.
type OllamaProvider struct {
	baseURL string
	model   string
	dim     int
	http    *http.Client
}

func NewOllamaProvider(baseURL, model string, dim int) *OllamaProvider {
	return &OllamaProvider{baseURL: strings.TrimRight(baseURL, "/"), model: model, dim: dim, http: &http.Client{Timeout: 30 * time.Second}}
}

func (p *OllamaProvider) Dimension() int { return p.dim }

func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(map[string]string{"model": p.model, "prompt": text})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode, string(data))
	}

	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	return parsed.Embedding, nil
}

// OpenAIProvider embeds via an OpenAI-compatible embeddings endpoint using
// the go-openai client — a pack dependency the teacher's own hand-rolled
// HTTP provider did not use (see SPEC_FULL.md domain stack table).
type OpenAIProvider struct {
	client *openai.Client
	model  string
	dim    int
}

func NewOpenAIProvider(apiKey, baseURL, model string, dim int) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), model: model, dim: dim}
}

func (p *OpenAIProvider) Dimension() int { return p.dim }

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}
	return resp.Data[0].Embedding, nil
}

// NewFromEnv builds a Provider from the EMBEDDING_PROVIDER environment
// variable (mock, ollama or openai; empty means mock) and that provider's
// OLLAMA_* or OPENAI_* settings, mirroring the teacher's CreateEmbeddingProvider factory switch.
func NewFromEnv() (Provider, error) {
	switch strings.ToLower(os.Getenv("EMBEDDING_PROVIDER")) {
	case "", "mock":
		return NewMockProvider(768), nil
	case "ollama":
		base := os.Getenv("OLLAMA_BASE_URL")
		if base == "" {
			base = "http://localhost:11434"
		}
		model := os.Getenv("OLLAMA_EMBED_MODEL")
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaProvider(base, model, 768), nil
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		base := os.Getenv("OPENAI_API_BASE")
		model := os.Getenv("OPENAI_EMBED_MODEL")
		if model == "" {
			model = "text-embedding-3-small"
		}
		return NewOpenAIProvider(key, base, model, 1536), nil
	default:
		return nil, fmt.Errorf("unknown EMBEDDING_PROVIDER %q", os.Getenv("EMBEDDING_PROVIDER"))
	}
}
