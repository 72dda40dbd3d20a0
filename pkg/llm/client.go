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

// Package llm implements the summarization/chunking LLM client: an
// OpenAI-style `/v1/responses`-like HTTP endpoint with retry, timeout,
// and a circuit breaker shared with the Quality Tracker.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Breaker is the subset of quality.Breaker the client needs, so tests can
// supply a fake without importing the quality package's Prometheus globals.
type Breaker interface {
	Allow() bool
	RecordSuccess()
	RecordFailure()
}

// Config configures the Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
	Timeout    time.Duration
}

// Client calls the `/v1/responses`-like endpoint described in SPEC_FULL.md
// §6. One long-lived http.Client per process; callers pass a context for
// cancellation rather than the client recreating transports per call (per
// the "lazy event-loop-bound HTTP client" re-architecture note in §9).
type Client struct {
	cfg     Config
	http    *http.Client
	breaker Breaker
}

// New constructs a Client. breaker may be a *quality.Tracker's Breaker() or
// any Breaker implementation (tests use a fake).
func New(cfg Config, breaker Breaker) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}
}

// ErrLLMUnavailable is returned when the circuit breaker is open on entry.
var ErrLLMUnavailable = fmt.Errorf("llm unavailable: circuit open")

type responsesRequest struct {
	Model           string  `json:"model"`
	Input           string  `json:"input"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
}

type responseContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseOutputItem struct {
	Type    string                 `json:"type"`
	Content []responseContentItem  `json:"content"`
}

type responsesResponse struct {
	Output []responseOutputItem `json:"output"`
	Text   string               `json:"text,omitempty"` // legacy fallback
}

// Result is the parsed output of a single /v1/responses call.
type Result struct {
	Text      string
	Reasoning string
	Tokens    int
}

// call issues one HTTP request with linear-backoff retry on network
// timeout or 5xx. 4xx errors are not retried. Every attempt updates the
// shared circuit breaker.
func (c *Client) call(ctx context.Context, prompt string, temperature float64, maxTokens int) (*Result, error) {
	if c.breaker != nil && !c.breaker.Allow() {
		return nil, ErrLLMUnavailable
	}

	body, err := json.Marshal(responsesRequest{
		Model:           c.cfg.Model,
		Input:           prompt,
		Temperature:     temperature,
		MaxOutputTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		result, retryable, err := c.doOnce(ctx, body)
		if err == nil {
			if c.breaker != nil {
				c.breaker.RecordSuccess()
			}
			return result, nil
		}
		lastErr = err
		if c.breaker != nil {
			c.breaker.RecordFailure()
		}
		if !retryable {
			return nil, fmt.Errorf("llm call failed: %w", err)
		}
	}
	return nil, fmt.Errorf("llm call failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

func (c *Client) doOnce(ctx context.Context, body []byte) (*Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/v1/responses", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("server error %d: %s", resp.StatusCode, string(data))
	}
	if resp.StatusCode >= 400 {
		return nil, false, fmt.Errorf("client error %d: %s", resp.StatusCode, string(data))
	}

	var parsed responsesResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}

	result := &Result{}
	for _, item := range parsed.Output {
		switch item.Type {
		case "reasoning":
			for _, c := range item.Content {
				if c.Type == "reasoning_text" {
					result.Reasoning = c.Text
				}
			}
		case "message":
			for _, c := range item.Content {
				if c.Type == "output_text" {
					result.Text = c.Text
				}
			}
		}
	}
	if result.Text == "" && parsed.Text != "" {
		result.Text = parsed.Text
	}
	result.Tokens = estimateTokens(result.Text)
	return result, false, nil
}

func estimateTokens(s string) int {
	// rough char/4 heuristic, matching the "tokens_estimate" contract (§4.B)
	return (len(s) + 3) / 4
}

// SummarizeSymbol implements the summarize_symbol(name, kind, code, path,
// lang) contract: up to 4,000 chars of code plus a structured header.
func (c *Client) SummarizeSymbol(ctx context.Context, name, kind, code, path, lang string) (string, int, error) {
	if len(code) > 4000 {
		code = code[:4000]
	}
	prompt := fmt.Sprintf("Summarize this %s %s from %s (%s):\n\n%s", lang, kind, path, name, code)
	r, err := c.call(ctx, prompt, 0.2, 300)
	if err != nil {
		return "", 0, err
	}
	return r.Text, r.Tokens, nil
}

// SummarizeFile implements summarize_file(path, content_preview, symbols_context).
func (c *Client) SummarizeFile(ctx context.Context, path, contentPreview, symbolsContext string) (string, int, error) {
	if len(contentPreview) > 6000 {
		contentPreview = contentPreview[:6000]
	}
	if len(symbolsContext) > 3000 {
		symbolsContext = symbolsContext[:3000]
	}
	prompt := fmt.Sprintf("Summarize the file %s.\n\nSymbols:\n%s\n\nContent:\n%s", path, symbolsContext, contentPreview)
	r, err := c.call(ctx, prompt, 0.2, 400)
	if err != nil {
		return "", 0, err
	}
	return r.Text, r.Tokens, nil
}

// SummarizeModule implements summarize_module(module_path, files_context, repo_id).
func (c *Client) SummarizeModule(ctx context.Context, modulePath, filesContext, repoID string) (string, int, error) {
	if len(filesContext) > 6000 {
		filesContext = filesContext[:6000]
	}
	prompt := fmt.Sprintf("Summarize module %s of repo %s from its child summaries:\n\n%s", modulePath, repoID, filesContext)
	r, err := c.call(ctx, prompt, 0.2, 400)
	if err != nil {
		return "", 0, err
	}
	return r.Text, r.Tokens, nil
}

// SummarizeRepo implements summarize_repo(repo_id, modules_context).
func (c *Client) SummarizeRepo(ctx context.Context, repoID, modulesContext string) (string, int, error) {
	if len(modulesContext) > 8000 {
		modulesContext = modulesContext[:8000]
	}
	prompt := fmt.Sprintf("Summarize repository %s from its module summaries:\n\n%s", repoID, modulesContext)
	r, err := c.call(ctx, prompt, 0.2, 500)
	if err != nil {
		return "", 0, err
	}
	return r.Text, r.Tokens, nil
}

// SemanticChunk is a single LLM chunker result item, §4.F.
type SemanticChunk struct {
	Type           string   `json:"type"`
	Name           string   `json:"name"`
	Content        string   `json:"content"`
	StartLine      int      `json:"start_line"`
	EndLine        int      `json:"end_line"`
	Purpose        string   `json:"purpose"`
	RelatedSymbols []string `json:"related_symbols"`
	Tags           []string `json:"tags"`
	Confidence     float64  `json:"confidence"`
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```")
var lonelyBackslash = regexp.MustCompile(`\\([^"\\/bfnrtu])`)

// Chunk implements chunk(path, content, lang, existing_symbols): asks the
// LLM for semantic chunks and extracts a JSON array from its response. On
// any parse failure it returns an empty slice — not an error.
func (c *Client) Chunk(ctx context.Context, prompt string) ([]SemanticChunk, error) {
	r, err := c.call(ctx, prompt, 0.1, 1500)
	if err != nil {
		return nil, err
	}
	return extractChunks(r.Text), nil
}

func extractChunks(text string) []SemanticChunk {
	raw := strings.TrimSpace(text)
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	raw = repairJSON(raw)

	var chunks []SemanticChunk
	if err := json.Unmarshal([]byte(raw), &chunks); err != nil {
		return nil
	}
	return chunks
}

// repairJSON doubles lone backslashes that aren't part of a valid JSON
// escape sequence, per §4.B's minimal-repair rule.
func repairJSON(s string) string {
	return lonelyBackslash.ReplaceAllString(s, `\\$1`)
}
