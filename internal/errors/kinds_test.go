// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package errors

import (
	stderrors "errors"
	"testing"
)

func TestRunErrorUnwrapAndKindOf(t *testing.T) {
	base := stderrors.New("lock held by pid 123")
	err := Wrap(KindLockError, "acquire global lock", base)

	if KindOf(err) != KindLockError {
		t.Fatalf("expected KindLockError, got %v", KindOf(err))
	}
	if !stderrors.Is(err, base) {
		t.Fatal("expected errors.Is to see through RunError to the wrapped error")
	}
}

func TestKindOfDefaultsToError(t *testing.T) {
	if got := KindOf(stderrors.New("boom")); got != KindError {
		t.Fatalf("expected default KindError, got %v", got)
	}
}

func TestRunErrorMessageFormat(t *testing.T) {
	err := Wrap(KindFullReingest, "threshold_exceeded (15.0%)", nil)
	want := "full_reingest: threshold_exceeded (15.0%)"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}
