// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type fakeBreaker struct {
	allow    bool
	failures int32
	successes int32
}

func (f *fakeBreaker) Allow() bool       { return f.allow }
func (f *fakeBreaker) RecordSuccess()    { atomic.AddInt32(&f.successes, 1) }
func (f *fakeBreaker) RecordFailure()    { atomic.AddInt32(&f.failures, 1) }

func TestSummarizeSymbolHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := responsesResponse{
			Output: []responseOutputItem{
				{Type: "message", Content: []responseContentItem{{Type: "output_text", Text: "a tidy summary"}}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	b := &fakeBreaker{allow: true}
	c := New(Config{BaseURL: srv.URL, Model: "test-model"}, b)

	summary, tokens, err := c.SummarizeSymbol(context.Background(), "run", "method", "func (w *Widget) run() {}", "widget.go", "go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != "a tidy summary" {
		t.Fatalf("unexpected summary: %q", summary)
	}
	if tokens <= 0 {
		t.Fatal("expected positive token estimate")
	}
	if atomic.LoadInt32(&b.successes) != 1 {
		t.Fatalf("expected breaker success recorded once, got %d", b.successes)
	}
}

func TestCallRefusesWhenBreakerOpen(t *testing.T) {
	b := &fakeBreaker{allow: false}
	c := New(Config{BaseURL: "http://unused.invalid"}, b)
	_, err := c.call(context.Background(), "x", 0.1, 10)
	if err != ErrLLMUnavailable {
		t.Fatalf("expected ErrLLMUnavailable, got %v", err)
	}
}

func Test4xxNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	b := &fakeBreaker{allow: true}
	c := New(Config{BaseURL: srv.URL, MaxRetries: 3}, b)
	_, err := c.call(context.Background(), "x", 0.1, 10)
	if err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one attempt for a 4xx, got %d", calls)
	}
	if atomic.LoadInt32(&b.failures) != 1 {
		t.Fatalf("expected one failure recorded, got %d", b.failures)
	}
}

func TestExtractChunksFencedBlock(t *testing.T) {
	text := "Here are the chunks:\n```json\n[{\"type\":\"business_logic\",\"name\":\"billing\",\"confidence\":0.9}]\n```"
	chunks := extractChunks(text)
	if len(chunks) != 1 || chunks[0].Name != "billing" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}

func TestExtractChunksInvalidJSONReturnsEmpty(t *testing.T) {
	chunks := extractChunks("not json at all")
	if chunks != nil {
		t.Fatalf("expected nil on parse failure, got %+v", chunks)
	}
}
