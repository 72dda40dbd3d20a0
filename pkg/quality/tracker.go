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

// Package quality implements the per-run Quality Tracker: thread-safe
// counters, an error list, and a circuit breaker shared by every LLM
// caller in the run.
package quality

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Breaker is a consecutive-failure circuit breaker. After FailureThreshold
// consecutive failures it opens; ResetTimeout after the last failure, the
// next check half-opens it for one trial call.
type Breaker struct {
	FailureThreshold int
	ResetTimeout     time.Duration

	mu          sync.Mutex
	consecutive int
	open        bool
	disabled    bool
	lastFailure time.Time
	trialInFlight bool
}

// NewBreaker constructs a breaker with the given thresholds.
func NewBreaker(failureThreshold int, resetTimeout time.Duration) *Breaker {
	return &Breaker{FailureThreshold: failureThreshold, ResetTimeout: resetTimeout}
}

// Disable permanently marks the circuit open with no half-open trial,
// for `--no-llm` runs that must fall back to structural summaries without
// ever attempting an LLM call.
func (b *Breaker) Disable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disabled = true
	b.open = true
}

// Allow reports whether a call may proceed right now. It returns false
// while the circuit is open and no trial window has arrived; it marks a
// trial in flight when one is granted so concurrent callers don't all
// rush the half-open trial at once.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disabled {
		return false
	}
	if !b.open {
		return true
	}
	if b.trialInFlight {
		return false
	}
	if time.Since(b.lastFailure) >= b.ResetTimeout {
		b.trialInFlight = true
		return true
	}
	return false
}

// RecordSuccess closes the circuit and resets the consecutive-failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	b.open = false
	b.trialInFlight = false
}

// RecordFailure increments the consecutive-failure count and opens the
// circuit once the threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive++
	b.lastFailure = time.Now()
	b.trialInFlight = false
	if b.consecutive >= b.FailureThreshold {
		b.open = true
	}
}

// IsOpen reports whether the circuit is currently open (ignoring the
// half-open trial window).
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disabled {
		return true
	}
	if !b.open {
		return false
	}
	return time.Since(b.lastFailure) < b.ResetTimeout
}

// LLMAvailable is a convenience alias callers use before attempting an LLM
// call: true unless the circuit is open.
func (b *Breaker) LLMAvailable() bool {
	return !b.IsOpen()
}

// Summary is the point-in-time snapshot returned by GetSummary/Snapshot.
type Summary struct {
	RepoID            string        `json:"repo_id,omitempty"`
	FilesProcessed    int64         `json:"files_processed"`
	FilesFailed       int64         `json:"files_failed"`
	FilesSkipped      int64         `json:"files_skipped"`
	SymbolsProcessed  int64         `json:"symbols_processed"`
	ModulesCreated    int64         `json:"modules_created"`
	LLMCallsOK        int64         `json:"llm_calls_ok"`
	LLMCallsFailed    int64         `json:"llm_calls_failed"`
	LLMTokens         int64         `json:"llm_tokens"`
	EmbeddingsDone    int64         `json:"embeddings_done"`
	CircuitOpen       bool          `json:"circuit_open"`
	LLMAvailable      bool          `json:"llm_available"`
	Errors            []string      `json:"errors,omitempty"`
	Elapsed           time.Duration `json:"elapsed"`
}

var metricsOnce sync.Once

type promMetrics struct {
	filesProcessed prometheus.Counter
	filesFailed    prometheus.Counter
	filesSkipped   prometheus.Counter
	llmCallsOK     prometheus.Counter
	llmCallsFailed prometheus.Counter
	llmTokens      prometheus.Counter
	embeddingsDone prometheus.Counter
	circuitOpen    prometheus.Gauge
}

var metrics promMetrics

func initMetrics() {
	metricsOnce.Do(func() {
		metrics = promMetrics{
			filesProcessed: prometheus.NewCounter(prometheus.CounterOpts{Name: "ingestd_files_processed_total", Help: "Files successfully processed"}),
			filesFailed:    prometheus.NewCounter(prometheus.CounterOpts{Name: "ingestd_files_failed_total", Help: "Files that failed processing"}),
			filesSkipped:   prometheus.NewCounter(prometheus.CounterOpts{Name: "ingestd_files_skipped_total", Help: "Files skipped"}),
			llmCallsOK:     prometheus.NewCounter(prometheus.CounterOpts{Name: "ingestd_llm_calls_ok_total", Help: "Successful LLM calls"}),
			llmCallsFailed: prometheus.NewCounter(prometheus.CounterOpts{Name: "ingestd_llm_calls_failed_total", Help: "Failed LLM calls"}),
			llmTokens:      prometheus.NewCounter(prometheus.CounterOpts{Name: "ingestd_llm_tokens_total", Help: "Estimated LLM tokens consumed"}),
			embeddingsDone: prometheus.NewCounter(prometheus.CounterOpts{Name: "ingestd_embeddings_total", Help: "Embeddings computed"}),
			circuitOpen:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "ingestd_llm_circuit_open", Help: "1 when the LLM circuit breaker is open"}),
		}
		prometheus.MustRegister(
			metrics.filesProcessed, metrics.filesFailed, metrics.filesSkipped,
			metrics.llmCallsOK, metrics.llmCallsFailed, metrics.llmTokens,
			metrics.embeddingsDone, metrics.circuitOpen,
		)
	})
}

// Tracker is per-run state with thread-safe counters wrapping a Breaker.
type Tracker struct {
	repoID  string
	breaker *Breaker
	started time.Time

	filesProcessed   atomic.Int64
	filesFailed      atomic.Int64
	filesSkipped     atomic.Int64
	symbolsProcessed atomic.Int64
	modulesCreated   atomic.Int64
	llmCallsOK       atomic.Int64
	llmCallsFailed   atomic.Int64
	llmTokens        atomic.Int64
	embeddingsDone   atomic.Int64

	mu     sync.Mutex
	errors []string
}

// New builds a Tracker, registering global Prometheus collectors once.
func New(failureThreshold int, resetTimeout time.Duration) *Tracker {
	initMetrics()
	return &Tracker{breaker: NewBreaker(failureThreshold, resetTimeout)}
}

// StartRun records the repo id being processed and restarts the elapsed
// clock; counters and the error list are not reset.
func (t *Tracker) StartRun(repoID string) {
	t.repoID = repoID
	t.started = time.Now()
}

// EndRun is a no-op hook kept for symmetry with StartRun; callers read
// GetSummary() after calling it.
func (t *Tracker) EndRun() {}

func (t *Tracker) RecordFileProcessed() { t.filesProcessed.Add(1); metrics.filesProcessed.Inc() }
func (t *Tracker) RecordFileFailed(err error) {
	t.filesFailed.Add(1)
	metrics.filesFailed.Inc()
	if err != nil {
		t.mu.Lock()
		t.errors = append(t.errors, err.Error())
		t.mu.Unlock()
	}
}
func (t *Tracker) RecordFileSkipped() { t.filesSkipped.Add(1); metrics.filesSkipped.Inc() }
func (t *Tracker) RecordSymbolProcessed() { t.symbolsProcessed.Add(1) }
func (t *Tracker) RecordModuleCreated()   { t.modulesCreated.Add(1) }

// RecordLLMCall updates both the counters and the shared circuit breaker.
func (t *Tracker) RecordLLMCall(success bool, tokens int) {
	if success {
		t.llmCallsOK.Add(1)
		metrics.llmCallsOK.Inc()
		t.breaker.RecordSuccess()
	} else {
		t.llmCallsFailed.Add(1)
		metrics.llmCallsFailed.Inc()
		t.breaker.RecordFailure()
	}
	if tokens > 0 {
		t.llmTokens.Add(int64(tokens))
		metrics.llmTokens.Add(float64(tokens))
	}
	if t.breaker.IsOpen() {
		metrics.circuitOpen.Set(1)
	} else {
		metrics.circuitOpen.Set(0)
	}
}

func (t *Tracker) RecordEmbedding() { t.embeddingsDone.Add(1); metrics.embeddingsDone.Inc() }

// Breaker exposes the shared circuit breaker for LLM/embedding clients.
func (t *Tracker) Breaker() *Breaker { return t.breaker }

// LLMAvailable is the convenience callers consult before attempting a call.
func (t *Tracker) LLMAvailable() bool { return t.breaker.LLMAvailable() }

// GetSummary returns a point-in-time snapshot of the tracker's state.
func (t *Tracker) GetSummary() Summary {
	t.mu.Lock()
	errs := append([]string(nil), t.errors...)
	t.mu.Unlock()

	return Summary{
		RepoID:           t.repoID,
		FilesProcessed:   t.filesProcessed.Load(),
		FilesFailed:      t.filesFailed.Load(),
		FilesSkipped:     t.filesSkipped.Load(),
		SymbolsProcessed: t.symbolsProcessed.Load(),
		ModulesCreated:   t.modulesCreated.Load(),
		LLMCallsOK:       t.llmCallsOK.Load(),
		LLMCallsFailed:   t.llmCallsFailed.Load(),
		LLMTokens:        t.llmTokens.Load(),
		EmbeddingsDone:   t.embeddingsDone.Load(),
		CircuitOpen:      t.breaker.IsOpen(),
		LLMAvailable:     t.breaker.LLMAvailable(),
		Errors:           errs,
		Elapsed:          time.Since(t.started),
	}
}

// Snapshot is an alias of GetSummary, kept as a distinct name because the
// original implementation exposes both a Python-style get_summary() and a
// KPI-facing snapshot() entry point.
func (t *Tracker) Snapshot() Summary { return t.GetSummary() }
