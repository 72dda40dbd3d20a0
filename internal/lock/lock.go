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

// Package lock implements the run driver's global advisory file lock
// (§4.L step 1, §5): one ingestion run per host, enforced by an exclusive
// OS file lock whose contents record which process holds it.
package lock

import (
	"fmt"
	"os"
	"syscall"
	"time"

	runerrors "github.com/kbhalerao/codesmriti/internal/errors"
)

// Lock holds an exclusively-locked file. Release must be called exactly
// once, on every exit path, including panics recovered upstream.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes an exclusive, non-blocking lock on path, creating the file
// (and its parent directory) if absent, and writes "pid=<n>\nstarted=<ISO8601>\n"
// into it. If another process already holds the lock, it returns a
// *runerrors.RunError of KindLockError wrapping the held-lock contents so
// the caller can report who has it.
func Acquire(path string) (*Lock, error) {
	if dir := parentDir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, runerrors.Wrap(runerrors.KindLockError, "create lock directory", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, runerrors.Wrap(runerrors.KindLockError, "open lock file", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		held, _ := os.ReadFile(path)
		f.Close()
		return nil, runerrors.Wrap(runerrors.KindLockError,
			fmt.Sprintf("another run holds the lock at %s: %s", path, string(held)), err)
	}

	if err := f.Truncate(0); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return nil, runerrors.Wrap(runerrors.KindLockError, "truncate lock file", err)
	}
	contents := fmt.Sprintf("pid=%d\nstarted=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteAt([]byte(contents), 0); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return nil, runerrors.Wrap(runerrors.KindLockError, "write lock contents", err)
	}

	return &Lock{path: path, file: f}, nil
}

// Release unlocks and closes the lock file. Safe to call on a nil *Lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	if unlockErr != nil {
		return fmt.Errorf("unlock %s: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", l.path, closeErr)
	}
	return nil
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}
