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

// Package service drives the poll loop, fans snapshots out to the sinks,
// and exposes current health.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/carverauto/gridwatch/pkg/health"
	"github.com/carverauto/gridwatch/pkg/logger"
	"github.com/carverauto/gridwatch/pkg/models"
)

// Monitored component names.
const (
	ComponentGateway    = "gateway"
	ComponentTimeseries = "timeseries"
	ComponentEvents     = "events"
	ComponentLink       = "link"
)

// Deps are the collaborators wired into the orchestrator. Metrics,
// Events, Background and Link are optional; a nil entry disables that
// concern.
type Deps struct {
	Fetcher    Fetcher
	Sessions   SessionControl
	Tracker    *health.Tracker
	Metrics    MetricSink
	Events     EventSink
	Background BackgroundTask
	Link       LinkManager
	Clock      Clock
}

// Orchestrator owns the poll loop. One cycle per tick: arm the circuit
// probe, fetch, record health, push to sinks. Cycles are serialized; a
// manually triggered poll and a ticker poll never interleave.
type Orchestrator struct {
	cfg      *Config
	log      logger.Logger
	clock    Clock
	fetcher  Fetcher
	sessions SessionControl
	tracker  *health.Tracker

	metrics    MetricSink
	events     EventSink
	background BackgroundTask
	link       LinkManager

	pollMu sync.Mutex

	mu              sync.Mutex
	lastResult      *models.PollResult
	lastOnline      *bool
	lastLinkAttempt time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New wires an orchestrator and registers its components with the health
// tracker. The gateway is always required; the timeseries sink is
// required when configured; the event bus and link are optional.
func New(cfg *Config, deps Deps, log logger.Logger) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}

	o := &Orchestrator{
		cfg:        cfg,
		log:        log,
		clock:      deps.Clock,
		fetcher:    deps.Fetcher,
		sessions:   deps.Sessions,
		tracker:    deps.Tracker,
		metrics:    deps.Metrics,
		events:     deps.Events,
		background: deps.Background,
		link:       deps.Link,
		done:       make(chan struct{}),
	}

	o.tracker.Register(ComponentGateway, true)

	if o.metrics != nil {
		o.tracker.Register(ComponentTimeseries, true)
	}

	if o.events != nil {
		o.tracker.Register(ComponentEvents, false)
	}

	if o.link != nil {
		o.tracker.Register(ComponentLink, false)
	}

	if o.background != nil {
		o.tracker.SetBackgroundProbe(o.background.Running)
	}

	return o
}

// Start runs the poll loop until the context is canceled or Stop is
// called. The first cycle runs immediately rather than waiting a full
// interval.
func (o *Orchestrator) Start(ctx context.Context) error {
	interval := o.cfg.pollInterval()
	ticker := o.clock.Ticker(interval)

	defer ticker.Stop()

	o.log.Info().Dur("interval", interval).Msg("Starting poll loop")

	if o.background != nil {
		o.background.Start(ctx)
	}

	o.pollCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.done:
			return nil
		case <-ticker.Chan():
			o.pollCycle(ctx)
		}
	}
}

func (o *Orchestrator) pollCycle(ctx context.Context) {
	result := o.PollOnce(ctx, true)
	if result.GatewayError != "" {
		o.log.Error().
			Str("error", result.GatewayError).
			Int("consecutive_failures", o.tracker.ConsecutiveFailures()).
			Msg("Poll cycle failed")
	}
}

// PollOnce executes one polling cycle and returns its result. With
// pushToSinks false the snapshot is fetched and health recorded, but
// nothing is written to the sinks; the HTTP API uses this for dry runs.
func (o *Orchestrator) PollOnce(ctx context.Context, pushToSinks bool) *models.PollResult {
	o.pollMu.Lock()
	defer o.pollMu.Unlock()

	// One probe per cycle: this is what throttles reconnection attempts
	// to the poll cadence once the connectivity circuit opens.
	o.sessions.ArmProbe()

	start := o.clock.Now()
	result := &models.PollResult{Timestamp: start.UTC()}

	snapshot, err := o.fetcher.Fetch(ctx)

	result.Duration = o.clock.Now().Sub(start).Seconds()

	if err != nil {
		result.GatewayError = err.Error()
		o.tracker.RecordFailure(ComponentGateway, err)
		o.tracker.RecordCycle(false)
		o.handleCycleFailure(ctx, err)
	} else {
		result.Snapshot = snapshot
		o.tracker.RecordSuccess(ComponentGateway)
		o.tracker.RecordCycle(true)
		o.publishAvailability(ctx, true, "")

		if pushToSinks {
			o.push(ctx, snapshot, result)
		}
	}

	o.mu.Lock()
	o.lastResult = result
	o.mu.Unlock()

	return result
}

// push fans one snapshot out to the configured sinks. Sink failures are
// recorded and surfaced on the result; they never fail the cycle.
func (o *Orchestrator) push(ctx context.Context, snapshot *models.Snapshot, result *models.PollResult) {
	if o.metrics != nil {
		if err := o.metrics.WriteSnapshot(ctx, snapshot); err != nil {
			result.TimeseriesError = err.Error()
			o.tracker.RecordFailure(ComponentTimeseries, err)
			o.log.Error().Err(err).Msg("Failed to write snapshot to timeseries")
		} else {
			result.WroteTimeseries = true
			o.tracker.RecordSuccess(ComponentTimeseries)
		}
	}

	if o.events != nil {
		if err := o.events.PublishSnapshot(ctx, snapshot); err != nil {
			result.EventsError = err.Error()
			o.tracker.RecordFailure(ComponentEvents, err)
			o.log.Error().Err(err).Msg("Failed to publish snapshot event")
		} else {
			result.PublishedEvents = true
			o.tracker.RecordSuccess(ComponentEvents)
		}
	}
}

// handleCycleFailure runs the failure-side bookkeeping of a cycle: the
// offline availability edge, the circuit escape valve, and the link join
// trigger.
func (o *Orchestrator) handleCycleFailure(ctx context.Context, err error) {
	o.publishAvailability(ctx, false, err.Error())

	fails := o.tracker.ConsecutiveFailures()
	maxFails := o.cfg.maxCycleFailures()

	// The valve fires on every maxFails-th consecutive failure rather
	// than on all cycles past the threshold, so the breaker still
	// throttles between resets.
	if fails >= maxFails && fails%maxFails == 0 {
		o.log.Warn().
			Int("consecutive_failures", fails).
			Msg("Escape valve: resetting connectivity circuit")
		o.sessions.ResetCircuit()
	}

	o.maybeJoinLink(ctx)
}

// publishAvailability emits availability events on state edges only, so
// a flapping gateway produces one event per transition instead of one
// per cycle. Best effort: publish errors are logged and dropped.
func (o *Orchestrator) publishAvailability(ctx context.Context, online bool, detail string) {
	if o.events == nil {
		return
	}

	o.mu.Lock()
	unchanged := o.lastOnline != nil && *o.lastOnline == online
	o.mu.Unlock()

	if unchanged {
		return
	}

	if err := o.events.PublishAvailability(ctx, online, detail); err != nil {
		o.log.Warn().Err(err).Bool("online", online).Msg("Failed to publish availability event")
		return
	}

	o.mu.Lock()
	o.lastOnline = &online
	o.mu.Unlock()
}

// maybeJoinLink triggers one link join attempt per cooldown window.
func (o *Orchestrator) maybeJoinLink(ctx context.Context) {
	if o.link == nil {
		return
	}

	now := o.clock.Now()

	o.mu.Lock()
	if !o.lastLinkAttempt.IsZero() && now.Sub(o.lastLinkAttempt) < o.cfg.linkCooldown() {
		o.mu.Unlock()
		return
	}

	o.lastLinkAttempt = now
	o.mu.Unlock()

	if err := o.link.Join(ctx); err != nil {
		o.tracker.RecordFailure(ComponentLink, err)
		o.log.Warn().Err(err).Msg("Link join attempt failed")

		return
	}

	o.tracker.RecordSuccess(ComponentLink)
}

// CurrentHealth returns the current health report. Always safe to call
// concurrently with the poll loop.
func (o *Orchestrator) CurrentHealth() models.HealthReport {
	return o.tracker.Report()
}

// IsBackgroundTaskRunning reports whether the health-publish loop is
// alive.
func (o *Orchestrator) IsBackgroundTaskRunning() bool {
	return o.background != nil && o.background.Running()
}

// LastResult returns the most recent poll result, or nil before the
// first cycle.
func (o *Orchestrator) LastResult() *models.PollResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.lastResult
}

// Stop shuts the service down: stops the loops, publishes a best-effort
// offline availability event, and closes the session and sinks.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.closeOnce.Do(func() {
		close(o.done)
	})

	if o.background != nil {
		o.background.Stop()
	}

	// Wait out any in-flight cycle before tearing down its sinks.
	o.pollMu.Lock()
	defer o.pollMu.Unlock()

	o.publishAvailability(ctx, false, "service stopped")

	o.sessions.Close()

	if o.metrics != nil {
		o.metrics.Close()
	}

	if o.events != nil {
		o.events.Close()
	}

	o.log.Info().Msg("Service stopped")

	return nil
}
