// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package quality

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	for i := 0; i < 2; i++ {
		b.RecordFailure()
	}
	if b.IsOpen() {
		t.Fatal("should not be open before threshold reached")
	}
	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatal("expected circuit open after threshold consecutive failures")
	}
	if b.Allow() {
		t.Fatal("Allow() should refuse while open and before reset timeout")
	}
}

func TestBreakerHalfOpensAfterResetTimeout(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)
	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatal("expected open after single failure with threshold=1")
	}
	time.Sleep(15 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("expected one trial call permitted after reset timeout")
	}
	b.RecordSuccess()
	if b.IsOpen() {
		t.Fatal("expected circuit closed after successful trial")
	}
}

func TestTrackerRecordLLMCallUpdatesBreaker(t *testing.T) {
	tr := New(2, time.Minute)
	tr.StartRun("acme/widget")
	tr.RecordLLMCall(false, 0)
	tr.RecordLLMCall(false, 0)
	if tr.LLMAvailable() {
		t.Fatal("expected llm unavailable once breaker opens")
	}
	tr.RecordFileFailed(errors.New("boom"))
	summary := tr.GetSummary()
	if summary.FilesFailed != 1 || len(summary.Errors) != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if !summary.CircuitOpen {
		t.Fatal("expected circuit_open=true in summary")
	}
}

func TestBreakerDisableIsPermanent(t *testing.T) {
	b := NewBreaker(5, time.Millisecond)
	b.Disable()
	if b.Allow() {
		t.Fatal("expected disabled breaker to never allow calls")
	}
	time.Sleep(5 * time.Millisecond)
	if b.Allow() {
		t.Fatal("expected disabled breaker to stay open past reset timeout")
	}
	if b.LLMAvailable() {
		t.Fatal("expected LLMAvailable=false while disabled")
	}
}
