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

package fileprocessor

import (
	"os"

	"github.com/kbhalerao/codesmriti/pkg/gitutil"
)

// GitResolver implements ContentResolver against a real repo checkout.
type GitResolver struct {
	detector *gitutil.Detector
}

func NewGitResolver(detector *gitutil.Detector) *GitResolver {
	return &GitResolver{detector: detector}
}

func (r *GitResolver) ShowAtCommit(commit, relPath string) (string, error) {
	return r.detector.ShowAtCommit(commit, relPath)
}

func (r *GitResolver) ReadWorkingTree(absPath string) (string, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
