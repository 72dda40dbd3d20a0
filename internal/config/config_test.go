// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestDefaultsAreSane(t *testing.T) {
	d := Defaults()
	if d.Threshold != 0.05 {
		t.Fatalf("expected default threshold 0.05, got %v", d.Threshold)
	}
	if d.MaxConcurrentFiles != 4 {
		t.Fatalf("expected default max_concurrent_files 4, got %v", d.MaxConcurrentFiles)
	}
	if d.ReposPath != "/repos" {
		t.Fatalf("expected default repos path /repos, got %v", d.ReposPath)
	}
}

func TestLoadFileMissingIsNotError(t *testing.T) {
	cfg, err := LoadFile(Defaults(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Threshold != 0.05 {
		t.Fatalf("expected defaults preserved, got %+v", cfg)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	if err := os.WriteFile(path, []byte("threshold: 0.2\nrepos_path: /data/repos\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(Defaults(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Threshold != 0.2 {
		t.Fatalf("expected threshold 0.2, got %v", cfg.Threshold)
	}
	if cfg.ReposPath != "/data/repos" {
		t.Fatalf("expected overridden repos path, got %v", cfg.ReposPath)
	}
}

func TestLoadEnvOverridesFileAndWarnsOnBadToken(t *testing.T) {
	os.Setenv("REPOS_PATH", "/env/repos")
	os.Setenv("GIT_TOKEN_ENV_NAME", "MY_TOKEN")
	os.Setenv("MY_TOKEN", "not-a-github-token")
	defer os.Unsetenv("REPOS_PATH")
	defer os.Unsetenv("GIT_TOKEN_ENV_NAME")
	defer os.Unsetenv("MY_TOKEN")

	cfg, warnings := LoadEnv(Defaults())
	if cfg.ReposPath != "/env/repos" {
		t.Fatalf("expected env override, got %v", cfg.ReposPath)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning about token shape, got %v", warnings)
	}
}

func TestLoadEnvAcceptsValidGitHubTokenPrefix(t *testing.T) {
	os.Setenv("GIT_TOKEN_ENV_NAME", "MY_TOKEN")
	os.Setenv("MY_TOKEN", "ghp_abc123")
	defer os.Unsetenv("GIT_TOKEN_ENV_NAME")
	defer os.Unsetenv("MY_TOKEN")

	_, warnings := LoadEnv(Defaults())
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings for valid token prefix, got %v", warnings)
	}
}

func TestBindFlagsOverridesConfig(t *testing.T) {
	cfg := Defaults()
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	BindFlags(fs, &cfg)
	if err := fs.Parse([]string{"--threshold=0.33", "--no-llm", "--repo=acme/widgets"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Threshold != 0.33 || !cfg.NoLLM || cfg.Repo != "acme/widgets" {
		t.Fatalf("unexpected cfg after flag parse: %+v", cfg)
	}
}

func TestValidateTrigger(t *testing.T) {
	for _, ok := range []string{"manual", "scheduled", "webhook"} {
		if err := ValidateTrigger(ok); err != nil {
			t.Fatalf("expected %q valid: %v", ok, err)
		}
	}
	if err := ValidateTrigger("bogus"); err == nil {
		t.Fatal("expected error for invalid trigger")
	}
}
