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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/kbhalerao/codesmriti/internal/config"
	runerrors "github.com/kbhalerao/codesmriti/internal/errors"
	"github.com/kbhalerao/codesmriti/internal/ghrepos"
	"github.com/kbhalerao/codesmriti/internal/metrics"
	"github.com/kbhalerao/codesmriti/internal/output"
	"github.com/kbhalerao/codesmriti/internal/store"
	"github.com/kbhalerao/codesmriti/internal/ui"
	"github.com/kbhalerao/codesmriti/pkg/embedding"
	"github.com/kbhalerao/codesmriti/pkg/exclude"
	"github.com/kbhalerao/codesmriti/pkg/llm"
	"github.com/kbhalerao/codesmriti/pkg/model"
	"github.com/kbhalerao/codesmriti/pkg/parser"
	"github.com/kbhalerao/codesmriti/pkg/quality"
	"github.com/kbhalerao/codesmriti/pkg/rundriver"
	"github.com/kbhalerao/codesmriti/pkg/updater"
)

func runCommand(args []string, cfg config.Config, logger *slog.Logger) exitCode {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	config.BindFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailed
	}
	if err := config.ValidateTrigger(cfg.Trigger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailed
	}

	docStore, err := store.Open(cfg.StoreDataDir)
	if err != nil {
		logger.Error("ingest.store.open", "error", err)
		return exitFailed
	}
	defer docStore.Close()

	tracker := quality.New(5, 0)
	if cfg.NoLLM {
		tracker.Breaker().Disable()
	}
	llmClient := llm.New(llm.Config{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  os.Getenv(cfg.LLMAPIKeyEnv),
		Model:   cfg.LLMModel,
	}, tracker.Breaker())

	embedProvider, err := embeddingProvider(cfg)
	if err != nil {
		logger.Error("ingest.embedding.provider", "error", err)
		return exitFailed
	}
	embedClient := embedding.NewClient(embedProvider)

	matcher := exclude.New(cfg.ExcludeGlobs)
	dispatch := parser.NewDispatch()

	upd := updater.New(docStore, dispatch, llmClient, llmClient, embedClient, tracker, matcher, cfg.MaxConcurrentFiles)

	driver := &rundriver.Driver{
		LockPath:       cfg.LockPath,
		ReposPath:      cfg.ReposPath,
		ConfigListPath: filepath.Join(filepath.Dir(cfg.LockPath), "repos_to_ingest.txt"),
		Store:          docStore,
		Updater:        upd,
		GitToken:       gitToken(cfg),
		Threshold:      cfg.Threshold,
		Logger:         logger,
	}
	if token := driver.GitToken; token != "" {
		driver.GitHub = ghrepos.NewLister(context.Background(), token)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr, logger); err != nil && err != http.ErrServerClosed {
				logger.Error("ingest.metrics.serve", "error", err)
			}
		}()
	}

	bar := newProgressBar()
	if bar != nil {
		defer bar.Close()
		driver.OnRepoDone = func(repoID string, _ model.UpdateResult) {
			bar.Add(1)
			bar.Describe(repoID)
		}
	}

	run, err := driver.Run(context.Background(), rundriver.Options{
		Trigger: cfg.Trigger,
		DryRun:  cfg.DryRun,
		Repo:    cfg.Repo,
	})
	if err != nil {
		if runerrors.KindOf(err) == runerrors.KindLockError {
			ui.Error(err.Error())
			return exitLock
		}
		logger.Error("ingest.run.failed", "error", err)
		return exitFailed
	}

	if err := output.JSON(run); err != nil {
		logger.Error("ingest.run.output", "error", err)
	}

	if run.ErrorCount > 0 {
		ui.Warningf("completed with %d repo error(s)", run.ErrorCount)
		return exitFailed
	}
	ui.Successf("processed %d repo(s)", run.Processed)
	return exitOK
}

func gitToken(cfg config.Config) string {
	if cfg.GitTokenEnvName == "" {
		return ""
	}
	return os.Getenv(cfg.GitTokenEnvName)
}

func embeddingProvider(cfg config.Config) (embedding.Provider, error) {
	switch cfg.EmbeddingBackend {
	case config.EmbeddingBackendRemote:
		return embedding.NewOpenAIProvider(os.Getenv("OPENAI_API_KEY"), "", cfg.EmbeddingModel, 1536), nil
	default:
		return embedding.NewOllamaProvider("http://localhost:11434", cfg.EmbeddingModel, 768), nil
	}
}

func newProgressBar() *progressbar.ProgressBar {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return nil
	}
	return progressbar.Default(-1, "ingesting")
}
