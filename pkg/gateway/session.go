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

package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/carverauto/gridwatch/pkg/logger"
	"github.com/carverauto/gridwatch/pkg/models"
)

const (
	defaultMaxAuthFailures       = 3
	defaultMaxConnectionFailures = 5
	defaultRequestTimeout        = 10 * time.Second
)

// SessionManager owns the lifecycle of the single session to the gateway.
// It tracks two independent failure counters (auth, connectivity) and
// implements the connectivity circuit breaker: once the connection counter
// reaches its threshold, Ensure refuses to touch the network until either
// the orchestrator arms a probe for the next poll tick or ResetCircuit is
// called.
//
// The manager is not self-synchronizing. All access, including the
// counters mutated by the SnapshotFetcher, must be serialized by the
// caller; the orchestrator holds one lock around ensure and fetch
// together.
type SessionManager struct {
	source TelemetrySource
	cfg    *models.GatewayConfig
	log    logger.Logger

	session    Session
	createdAt  time.Time
	mode       AuthMode
	authFails  int
	connFails  int
	probeArmed bool

	now func() time.Time
}

// NewSessionManager creates a manager for the given source. The
// authentication mode is fixed at construction: gateway password when
// configured, customer credentials otherwise.
func NewSessionManager(source TelemetrySource, cfg *models.GatewayConfig, log logger.Logger) *SessionManager {
	mode := AuthModeCustomer
	if cfg.GatewayPassword != "" {
		mode = AuthModeGateway
	}

	return &SessionManager{
		source: source,
		cfg:    cfg,
		log:    log,
		mode:   mode,
		now:    time.Now,
	}
}

// Session returns the current live session, or nil when none exists.
func (m *SessionManager) Session() Session {
	return m.session
}

// AuthMode returns the fixed authentication mode for this manager.
func (m *SessionManager) AuthMode() AuthMode {
	return m.mode
}

// AuthFailures returns the consecutive auth failure count.
func (m *SessionManager) AuthFailures() int {
	return m.authFails
}

// ConnectionFailures returns the consecutive connection failure count.
func (m *SessionManager) ConnectionFailures() int {
	return m.connFails
}

// MaxAuthFailures returns the configured auth failure threshold.
func (m *SessionManager) MaxAuthFailures() int {
	if m.cfg.MaxAuthFailures > 0 {
		return m.cfg.MaxAuthFailures
	}

	return defaultMaxAuthFailures
}

// MaxConnectionFailures returns the configured connectivity threshold.
func (m *SessionManager) MaxConnectionFailures() int {
	if m.cfg.MaxConnectionFailures > 0 {
		return m.cfg.MaxConnectionFailures
	}

	return defaultMaxConnectionFailures
}

// RecordAuthFailure increments the auth counter and returns its new value.
// Called by the fetcher when a sub-query fails with an auth error.
func (m *SessionManager) RecordAuthFailure() int {
	m.authFails++
	return m.authFails
}

// ResetCounters zeroes both failure counters. Called on any fully
// successful cycle.
func (m *SessionManager) ResetCounters() {
	m.authFails = 0
	m.connFails = 0
}

// ResetCircuit zeroes the connectivity counter, closing the escape valve
// the orchestrator pulls after too many consecutive poll-cycle failures.
func (m *SessionManager) ResetCircuit() {
	if m.connFails > 0 {
		m.log.Info().
			Int("connection_failures", m.connFails).
			Msg("Resetting connectivity circuit breaker")
	}

	m.connFails = 0
}

// ArmProbe allows exactly one connection attempt on an otherwise open
// circuit. The orchestrator arms it once per poll tick, which throttles
// reconnection attempts to at most one per poll interval.
func (m *SessionManager) ArmProbe() {
	m.probeArmed = true
}

// Ensure guarantees a live session, reconnecting when forced. It performs
// at most one connection attempt: a single bounded-timeout authentication
// in the configured mode, never a multi-mode retry ladder.
func (m *SessionManager) Ensure(ctx context.Context, forceReconnect bool) error {
	if m.connFails >= m.MaxConnectionFailures() && !m.probeArmed {
		return fmt.Errorf("%w: connectivity circuit open after %d consecutive failures",
			ErrUnavailable, m.connFails)
	}

	if m.session != nil && !forceReconnect {
		return nil
	}

	m.Close()

	// Any attempt consumes the per-tick probe, whether or not the
	// circuit was open when it started.
	m.probeArmed = false

	timeout := defaultRequestTimeout
	if m.cfg.RequestTimeout > 0 {
		timeout = time.Duration(m.cfg.RequestTimeout)
	}

	m.log.Debug().
		Str("host", m.cfg.Host).
		Str("mode", string(m.mode)).
		Int("connection_failures", m.connFails).
		Msg("Connecting to gateway")

	sess, err := m.source.Connect(ctx, m.mode, m.cfg, timeout)
	if err != nil {
		m.connFails++

		class := Classify(err)
		m.log.Warn().
			Err(err).
			Str("class", class.String()).
			Int("connection_failures", m.connFails).
			Int("max_connection_failures", m.MaxConnectionFailures()).
			Msg("Gateway connection attempt failed")

		// Non-connectivity classes still count against the connection
		// counter: no session could be formed either way.
		return fmt.Errorf("%w: failed to connect to gateway at %s: %w",
			ErrUnavailable, m.cfg.Host, err)
	}

	hadFailures := m.connFails > 0 || m.authFails > 0

	m.session = sess
	m.createdAt = m.now()
	// Only the connectivity counter resets on session creation. The auth
	// counter belongs to the fetch cycle: it resets when a cycle
	// completes all required sub-queries, so that repeated re-auth
	// within failing cycles still trips the forced-reconnect threshold.
	m.connFails = 0

	if hadFailures {
		m.log.Info().
			Str("host", m.cfg.Host).
			Msg("Gateway connection restored")
	}

	return nil
}

// SessionAge returns how long the current session has been alive, or zero
// when no session exists.
func (m *SessionManager) SessionAge() time.Duration {
	if m.session == nil {
		return 0
	}

	return m.now().Sub(m.createdAt)
}

// Close releases the session handle unconditionally. Safe to call when no
// session exists. Connection failures are intentionally preserved across
// close so the circuit breaker keeps its memory.
func (m *SessionManager) Close() {
	if m.session == nil {
		return
	}

	if err := m.session.Close(); err != nil {
		m.log.Debug().Err(err).Msg("Failed to close gateway session")
	}

	m.session = nil
}
