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

// Package gitutil implements the Change Detector (§4.I). Repository
// lifecycle operations (clone, fetch, open, authenticated URLs) go through
// go-git; the name-status diff with rename/copy detection is shelled to
// the system git binary, since go-git's tree diff does not expose git's
// similarity-based rename detector.
package gitutil

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// ChangeSet is the result of diffing two commits, §4.I.
type ChangeSet struct {
	Added          []string
	Modified       []string
	Deleted        []string
	FilesToProcess []string // Added ∪ Modified
	TotalChanged   int      // |Added| + |Modified| + |Deleted|
	BaseCommit     string
	HeadCommit     string
}

// Detector runs git operations against a repo checkout.
type Detector struct {
	repoPath string
}

func New(repoPath string) *Detector {
	return &Detector{repoPath: repoPath}
}

func (d *Detector) shell(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = d.repoPath
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_ASKPASS=echo")
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), string(exitErr.Stderr))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Fetch fetches updates from origin via go-git, tolerating "already
// up-to-date" as success.
func (d *Detector) Fetch(ctx context.Context, token string) error {
	repo, err := git.PlainOpen(d.repoPath)
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		Auth:       basicAuth(token),
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch origin: %w", err)
	}
	return nil
}

// Pull runs `git pull --ff-only`, preferring the plumbing fast path over
// go-git's worktree.Pull, which does not support --ff-only semantics.
func (d *Detector) Pull() error {
	_, err := d.shell("pull", "--ff-only")
	return err
}

// HeadCommit resolves the local HEAD to a commit SHA.
func (d *Detector) HeadCommit() (string, error) {
	repo, err := git.PlainOpen(d.repoPath)
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// DefaultBranch discovers the remote default branch via
// symbolic-ref refs/remotes/origin/HEAD, falling back to main then master.
func (d *Detector) DefaultBranch() string {
	if out, err := d.shell("symbolic-ref", "refs/remotes/origin/HEAD"); err == nil {
		const prefix = "refs/remotes/origin/"
		if strings.HasPrefix(out, prefix) {
			return strings.TrimPrefix(out, prefix)
		}
	}
	if _, err := d.shell("rev-parse", "--verify", "origin/main"); err == nil {
		return "main"
	}
	return "master"
}

// OriginHeadCommit resolves origin/<branch> to a commit SHA.
func (d *Detector) OriginHeadCommit(branch string) (string, error) {
	return d.shell("rev-parse", "origin/"+branch)
}

// Diff runs `git diff --name-status` between two commits and classifies
// entries into added/modified/deleted, splitting renames into a
// delete-plus-add pair and folding copies into an add, per §4.I.
func (d *Detector) Diff(base, head string) (*ChangeSet, error) {
	out, err := d.shell("diff", "--name-status", "-M", "-C", base, head)
	if err != nil {
		return nil, err
	}

	cs := &ChangeSet{BaseCommit: base, HeadCommit: head}
	scanner := bufio.NewScanner(bytes.NewReader([]byte(out)))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}
		status, paths := parts[0], parts[1:]

		switch status[0] {
		case 'A':
			cs.Added = append(cs.Added, paths[0])
		case 'M':
			cs.Modified = append(cs.Modified, paths[0])
		case 'D':
			cs.Deleted = append(cs.Deleted, paths[0])
		case 'R':
			if len(paths) >= 2 {
				cs.Deleted = append(cs.Deleted, paths[0])
				cs.Added = append(cs.Added, paths[1])
			}
		case 'C':
			if len(paths) >= 2 {
				cs.Added = append(cs.Added, paths[1])
			}
		}
	}

	sort.Strings(cs.Added)
	sort.Strings(cs.Modified)
	sort.Strings(cs.Deleted)

	cs.FilesToProcess = union(cs.Added, cs.Modified)
	cs.TotalChanged = len(cs.Added) + len(cs.Modified) + len(cs.Deleted)
	return cs, nil
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, p := range list {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

const maxDiffTextChars = 2000

// FileDiff fetches per-file diff text, truncated to 2,000 chars, for use
// by the Significance Gate's text heuristic.
func (d *Detector) FileDiff(base, head, path string) (string, error) {
	out, err := d.shell("diff", base, head, "--", path)
	if err != nil {
		return "", err
	}
	if len(out) > maxDiffTextChars {
		out = out[:maxDiffTextChars]
	}
	return out, nil
}

// ShowAtCommit retrieves file content at a specific commit via
// `git show <commit>:<relpath>`, trying the full hash then its first 12
// characters, per §4.G step 1.
func (d *Detector) ShowAtCommit(commit, relPath string) (string, error) {
	out, err := d.shell("show", commit+":"+relPath)
	if err == nil {
		return out, nil
	}
	if len(commit) > 12 {
		if out, err2 := d.shell("show", commit[:12]+":"+relPath); err2 == nil {
			return out, nil
		}
	}
	return "", err
}

// Clone shallow-clones a repository via go-git, substituting an
// x-access-token credential into the URL when a token is supplied (§4.L
// new_repos handling).
func Clone(ctx context.Context, repoURL, dest, token string) error {
	authURL, err := authenticatedURL(repoURL, token)
	if err != nil {
		return err
	}
	_, err = git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:   authURL,
		Depth: 1,
		Auth:  basicAuth(token),
	})
	if err != nil {
		return fmt.Errorf("clone %s: %w", repoURL, err)
	}
	return nil
}

func authenticatedURL(repoURL, token string) (string, error) {
	if token == "" {
		return repoURL, nil
	}
	if !strings.HasPrefix(repoURL, "https://") && !strings.HasPrefix(repoURL, "http://") {
		return repoURL, nil
	}
	parsed, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("parse repo url: %w", err)
	}
	parsed.User = url.UserPassword("x-access-token", token)
	return parsed.String(), nil
}

func basicAuth(token string) *githttp.BasicAuth {
	if token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: token}
}
