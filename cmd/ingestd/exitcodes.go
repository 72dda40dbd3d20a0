// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package main

import runerrors "github.com/kbhalerao/codesmriti/internal/errors"

// exitCode is the process exit status, §6's CLI table: 0/1/2 for `run`,
// 0/1 for `stats`/`analyze`.
type exitCode int

const (
	exitOK     exitCode = exitCode(runerrors.RunExitOK)
	exitFailed exitCode = exitCode(runerrors.RunExitFailed)
	exitLock   exitCode = exitCode(runerrors.RunExitLockError)
	exitConfig exitCode = 1
)
