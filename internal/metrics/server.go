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

// Package metrics serves the optional `--metrics-addr` debug endpoint: a
// Prometheus /metrics scrape target and a /healthz liveness check, mounted
// beside a running ingestion pass. The ingestion pipeline itself has no
// HTTP surface; this server is operational-only (SPEC_FULL.md Domain
// Stack).
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the debug server's router: request-id/real-ip/
// recovery/timeout middleware, a /healthz liveness probe, and /metrics
// backed by the default Prometheus registry that pkg/quality registers
// its counters into.
func NewRouter(logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Serve starts the debug server on addr and blocks until it exits. Callers
// typically run it in its own goroutine alongside a run driver pass.
func Serve(addr string, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(logger),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Info("ingest.metrics.listen", "addr", addr)
	return srv.ListenAndServe()
}
