/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/carverauto/gridwatch/pkg/config"
	gwhttp "github.com/carverauto/gridwatch/pkg/http"
	"github.com/carverauto/gridwatch/pkg/logger"
	"github.com/carverauto/gridwatch/pkg/models"
)

const (
	apiReadTimeout     = 10 * time.Second
	apiWriteTimeout    = 30 * time.Second
	apiShutdownTimeout = 5 * time.Second
)

// PollerService is the orchestrator surface the HTTP API re-exposes.
type PollerService interface {
	PollOnce(ctx context.Context, pushToSinks bool) *models.PollResult
	CurrentHealth() models.HealthReport
	LastResult() *models.PollResult
}

// APIServer serves the local operations API: health, on-demand polls,
// the latest snapshot, and the redacted configuration.
type APIServer struct {
	cfg    *Config
	svc    PollerService
	log    logger.Logger
	server *http.Server
}

// NewAPIServer builds the server without starting it.
func NewAPIServer(cfg *Config, svc PollerService, log logger.Logger) *APIServer {
	a := &APIServer{
		cfg: cfg,
		svc: svc,
		log: log,
	}

	a.server = &http.Server{
		Addr:         cfg.listenAddr(),
		Handler:      a.Handler(),
		ReadTimeout:  apiReadTimeout,
		WriteTimeout: apiWriteTimeout,
	}

	return a
}

// Handler assembles the route table with logging and auth middleware.
func (a *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", a.handleHealth)
	mux.HandleFunc("/api/poll", a.handlePoll)
	mux.HandleFunc("/api/snapshot", a.handleSnapshot)
	mux.HandleFunc("/api/config", a.handleConfig)

	var handler http.Handler = mux
	handler = gwhttp.APIKeyAuth(a.cfg.APIKey, a.log)(handler)
	handler = gwhttp.RequestLogging(a.log)(handler)

	return handler
}

// Start blocks serving requests until Shutdown.
func (a *APIServer) Start() error {
	a.log.Info().Str("addr", a.server.Addr).Msg("Starting HTTP API")

	err := a.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown drains in-flight requests.
func (a *APIServer) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, apiShutdownTimeout)
	defer cancel()

	return a.server.Shutdown(ctx)
}

// handleHealth answers 200 when overall health holds, 503 otherwise, with
// the full report either way.
func (a *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report := a.svc.CurrentHealth()

	status := http.StatusOK
	if !report.Overall {
		status = http.StatusServiceUnavailable
	}

	a.writeJSON(w, status, report)
}

// handlePoll triggers one cycle outside the ticker cadence. push=false
// skips the sinks for a dry run.
func (a *APIServer) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	push := r.URL.Query().Get("push") != "false"
	result := a.svc.PollOnce(r.Context(), push)

	a.writeJSON(w, http.StatusOK, result)
}

func (a *APIServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	last := a.svc.LastResult()
	if last == nil || last.Snapshot == nil {
		http.Error(w, "no snapshot available", http.StatusNotFound)
		return
	}

	a.writeJSON(w, http.StatusOK, last.Snapshot)
}

func (a *APIServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sanitized, err := config.Sanitize(a.cfg)
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to sanitize configuration")
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	a.writeJSON(w, http.StatusOK, sanitized)
}

func (a *APIServer) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.log.Error().Err(err).Msg("Failed to encode response")
	}
}
