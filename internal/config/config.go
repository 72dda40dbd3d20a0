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

// Package config loads run configuration in increasing priority: built-in
// defaults, a YAML file, environment variables, then CLI flags.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EmbeddingBackend selects where embedding calls are served.
type EmbeddingBackend string

const (
	EmbeddingBackendLocal  EmbeddingBackend = "local"
	EmbeddingBackendRemote EmbeddingBackend = "remote"
)

// RunMode controls whether the driver exits after one pass or loops.
type RunMode string

const (
	RunModeOnce       RunMode = "once"
	RunModeContinuous RunMode = "continuous"
)

// Config is the fully resolved run configuration.
type Config struct {
	ReposPath         string           `yaml:"repos_path"`
	GitTokenEnvName   string           `yaml:"git_token_env_name"`
	EmbeddingBackend  EmbeddingBackend `yaml:"embedding_backend"`
	RunMode           RunMode          `yaml:"run_mode"`
	Threshold         float64          `yaml:"threshold"`
	MaxConcurrentFiles int             `yaml:"max_concurrent_files"`
	NoLLM             bool             `yaml:"no_llm"`
	ExcludeGlobs      []string         `yaml:"exclude_globs"`

	LLMBaseURL      string `yaml:"llm_base_url"`
	LLMModel        string `yaml:"llm_model"`
	LLMAPIKeyEnv    string `yaml:"llm_api_key_env"`
	EmbeddingModel  string `yaml:"embedding_model"`
	StoreDataDir    string `yaml:"store_data_dir"`
	MetricsAddr     string `yaml:"metrics_addr"`
	LockPath        string `yaml:"lock_path"`

	DryRun   bool   `yaml:"-"`
	Repo     string `yaml:"-"`
	Trigger  string `yaml:"-"`
}

// Defaults returns the built-in baseline configuration (lowest priority).
func Defaults() Config {
	return Config{
		ReposPath:          "/repos",
		GitTokenEnvName:    "GIT_TOKEN",
		EmbeddingBackend:   EmbeddingBackendLocal,
		RunMode:            RunModeOnce,
		Threshold:          0.05,
		MaxConcurrentFiles: 4,
		ExcludeGlobs: []string{
			"**/node_modules/**", "**/.git/**", "**/vendor/**",
			"**/__pycache__/**", "**/dist/**", "**/build/**",
		},
		LLMModel:       "gpt-4o-mini",
		EmbeddingModel: "nomic-embed-text",
		StoreDataDir:   "/var/lib/codesmriti/store",
		LockPath:       "/var/lib/codesmriti/ingest.lock",
		Trigger:        "manual",
	}
}

// LoadFile merges a YAML config file over base. A missing file is not an
// error; the base configuration is returned unchanged.
func LoadFile(base Config, path string) (Config, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return base, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return base, nil
}

// env var names consumed by the core, per §6.
const (
	envReposPath        = "REPOS_PATH"
	envGitTokenEnvName  = "GIT_TOKEN_ENV_NAME"
	envEmbeddingBackend = "EMBEDDING_BACKEND"
	envRunMode          = "RUN_MODE"
	envThreshold        = "INGEST_THRESHOLD"
	envMaxConcurrent    = "MAX_CONCURRENT_FILES"
	envLLMBaseURL       = "LLM_BASE_URL"
	envLLMModel         = "LLM_MODEL"
	envStoreDataDir     = "STORE_DATA_DIR"
	envMetricsAddr      = "METRICS_ADDR"
)

var githubTokenPrefixRe = regexp.MustCompile(`^(ghp_|gho_|ghu_|ghs_|ghr_|github_pat_)`)

// LoadEnv merges process environment variables over base and returns any
// warnings worth surfacing to an operator (e.g. a token that doesn't look
// like a GitHub token).
func LoadEnv(base Config) (cfg Config, warnings []string) {
	cfg = base
	if v := os.Getenv(envReposPath); v != "" {
		cfg.ReposPath = v
	}
	if v := os.Getenv(envGitTokenEnvName); v != "" {
		cfg.GitTokenEnvName = v
	}
	if v := os.Getenv(envEmbeddingBackend); v != "" {
		cfg.EmbeddingBackend = EmbeddingBackend(v)
	}
	if v := os.Getenv(envRunMode); v != "" {
		cfg.RunMode = RunMode(v)
	}
	if v := os.Getenv(envThreshold); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Threshold = f
		}
	}
	if v := os.Getenv(envMaxConcurrent); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrentFiles = n
		}
	}
	if v := os.Getenv(envLLMBaseURL); v != "" {
		cfg.LLMBaseURL = v
	}
	if v := os.Getenv(envLLMModel); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv(envStoreDataDir); v != "" {
		cfg.StoreDataDir = v
	}
	if v := os.Getenv(envMetricsAddr); v != "" {
		cfg.MetricsAddr = v
	}

	if cfg.GitTokenEnvName != "" {
		if token := os.Getenv(cfg.GitTokenEnvName); token != "" && !githubTokenPrefixRe.MatchString(token) {
			warnings = append(warnings, fmt.Sprintf(
				"%s does not look like a GitHub token (expected ghp_/gho_/ghu_/ghs_/ghr_/github_pat_ prefix)",
				cfg.GitTokenEnvName))
		}
	}
	return cfg, warnings
}

// BindFlags registers the `run` subcommand's pflag set, highest priority.
// Flags are bound directly to cfg's fields, so fs.Parse writes parsed
// values over cfg.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Repo, "repo", cfg.Repo, "restrict the run to a single repo id")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "compute what would change without writing")
	fs.Float64Var(&cfg.Threshold, "threshold", cfg.Threshold, "fraction of changed files that forces a full reingest")
	fs.BoolVar(&cfg.NoLLM, "no-llm", cfg.NoLLM, "disable LLM enrichment, fall back to structural summaries")
	fs.StringVar(&cfg.Trigger, "trigger", cfg.Trigger, "run trigger: manual, scheduled, or webhook")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve /metrics and /healthz on, empty to disable")
}

// ValidateTrigger reports whether trigger is one of the three allowed values.
func ValidateTrigger(trigger string) error {
	switch trigger {
	case "manual", "scheduled", "webhook":
		return nil
	default:
		return fmt.Errorf("invalid trigger %q: must be manual, scheduled, or webhook", trigger)
	}
}
