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

// Package ghrepos implements canonical-set reconciliation source (a)
// (§4.L step 3): a paginated listing of the authenticated user's
// repositories over the GitHub REST API.
package ghrepos

import (
	"context"
	"fmt"

	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"
)

// Lister satisfies rundriver.GitHubLister.
type Lister struct {
	client *github.Client
}

// NewLister builds a Lister authenticated with a personal access token.
func NewLister(ctx context.Context, token string) *Lister {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return &Lister{client: github.NewClient(tc)}
}

// ListRepos pages through every repository visible to the authenticated
// user and returns "owner/name" identifiers.
func (l *Lister) ListRepos(ctx context.Context) ([]string, error) {
	var repos []string
	opts := &github.RepositoryListByAuthenticatedUserOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		page, resp, err := l.client.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("list repositories: %w", err)
		}
		for _, r := range page {
			if r.GetFullName() != "" {
				repos = append(repos, r.GetFullName())
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return repos, nil
}
