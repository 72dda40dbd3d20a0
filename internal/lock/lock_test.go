// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package lock

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	runerrors "github.com/kbhalerao/codesmriti/internal/errors"
)

func TestAcquireWritesPidAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ingest.lock")
	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if !strings.Contains(string(data), "pid=") || !strings.Contains(string(data), "started=") {
		t.Fatalf("expected pid/started contents, got %q", data)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestAcquireFailsWhenAlreadyHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.lock")
	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer first.Release()

	_, err = Acquire(path)
	if err == nil {
		t.Fatal("expected second acquire to fail while first holds the lock")
	}
	if runerrors.KindOf(err) != runerrors.KindLockError {
		t.Fatalf("expected KindLockError, got %v", runerrors.KindOf(err))
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.lock")
	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	second, err := Acquire(path)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	second.Release()
}

func TestReleaseOnNilLockIsNoop(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Fatalf("expected nil-safe release, got %v", err)
	}
}
