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

// Package health tracks per-component connectivity and publishes it on an
// independent cadence from the poll loop.
package health

import (
	"sync"
	"time"

	"github.com/carverauto/gridwatch/pkg/logger"
	"github.com/carverauto/gridwatch/pkg/models"
)

// Tracker is the authoritative record of component health. Components
// start in the unknown state and move between connected and disconnected
// on recorded outcomes; they never return to unknown.
//
// Tracking is pure bookkeeping on the hot path of the poll loop, so every
// recording method absorbs panics instead of letting them take down the
// loop. Components are fully independent: recording one never reads or
// writes another.
type Tracker struct {
	mu  sync.Mutex
	log logger.Logger
	now func() time.Time

	components map[string]*models.ComponentHealth

	lastPoll     *time.Time
	lastSuccess  *time.Time
	consecFails  int
	backgroundFn func() bool
}

// NewTracker creates an empty tracker.
func NewTracker(log logger.Logger) *Tracker {
	return &Tracker{
		log:        log,
		now:        time.Now,
		components: make(map[string]*models.ComponentHealth),
	}
}

// Register declares a component before its first recorded outcome. Only
// required components participate in the overall flag.
func (t *Tracker) Register(name string, required bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.components[name]; ok {
		return
	}

	t.components[name] = &models.ComponentHealth{
		Name:     name,
		State:    models.HealthUnknown,
		Required: required,
	}
}

// SetBackgroundProbe installs the callback used to report whether the
// background health-publish task is alive.
func (t *Tracker) SetBackgroundProbe(fn func() bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.backgroundFn = fn
}

// RecordSuccess marks a component connected. Unregistered names are
// registered on the fly as optional.
func (t *Tracker) RecordSuccess(name string) {
	defer t.recovered("RecordSuccess", name)

	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.component(name)
	prev := c.State
	ts := t.now().UTC()

	c.State = models.HealthConnected
	c.LastSuccess = &ts
	c.LastError = ""
	c.Detail = ""

	t.logTransition(name, prev, c.State)
}

// RecordFailure marks a component disconnected and remembers the error.
// A nil err is tolerated.
func (t *Tracker) RecordFailure(name string, err error) {
	defer t.recovered("RecordFailure", name)

	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.component(name)
	prev := c.State

	c.State = models.HealthDisconnected
	if err != nil {
		c.LastError = err.Error()
	}

	t.logTransition(name, prev, c.State)
}

// RecordDetail attaches a free-form status detail without changing state.
func (t *Tracker) RecordDetail(name, detail string) {
	defer t.recovered("RecordDetail", name)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.component(name).Detail = detail
}

// RecordCycle notes the outcome of one poll cycle: every cycle updates the
// last-poll time, successful ones also update last-success and reset the
// consecutive failure counter.
func (t *Tracker) RecordCycle(success bool) {
	defer t.recovered("RecordCycle", "")

	t.mu.Lock()
	defer t.mu.Unlock()

	ts := t.now().UTC()
	t.lastPoll = &ts

	if success {
		t.lastSuccess = &ts
		t.consecFails = 0

		return
	}

	t.consecFails++
}

// ConsecutiveFailures returns the current run of failed poll cycles.
func (t *Tracker) ConsecutiveFailures() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.consecFails
}

// Component returns a copy of one component's health.
func (t *Tracker) Component(name string) (models.ComponentHealth, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.components[name]
	if !ok {
		return models.ComponentHealth{}, false
	}

	return *c, true
}

// Report assembles a point-in-time health view. Overall is recomputed on
// every call as the AND of the required components' connected flags;
// unknown counts as not connected, and a tracker with no required
// components reports overall false until one connects.
func (t *Tracker) Report() models.HealthReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	report := models.HealthReport{
		Components:          make(map[string]models.ComponentHealth, len(t.components)),
		LastPollTime:        t.lastPoll,
		LastSuccessTime:     t.lastSuccess,
		ConsecutiveFailures: t.consecFails,
	}

	overall := false
	sawRequired := false

	for name, c := range t.components {
		report.Components[name] = *c

		if !c.Required {
			continue
		}

		if !sawRequired {
			sawRequired = true
			overall = true
		}

		if !c.Connected() {
			overall = false
		}
	}

	report.Overall = overall && sawRequired

	if t.backgroundFn != nil {
		report.BackgroundTaskRunning = t.backgroundFn()
	}

	return report
}

// component returns the mutable entry for name, creating an optional one
// when missing. Callers hold the lock.
func (t *Tracker) component(name string) *models.ComponentHealth {
	c, ok := t.components[name]
	if !ok {
		c = &models.ComponentHealth{
			Name:  name,
			State: models.HealthUnknown,
		}
		t.components[name] = c
	}

	return c
}

func (t *Tracker) logTransition(name string, prev, next models.HealthState) {
	if prev == next {
		return
	}

	switch next {
	case models.HealthConnected:
		t.log.Info().
			Str("component", name).
			Str("previous_state", string(prev)).
			Msg("Component connected")
	case models.HealthDisconnected:
		t.log.Warn().
			Str("component", name).
			Str("previous_state", string(prev)).
			Msg("Component disconnected")
	case models.HealthUnknown:
		// Unreachable: components never transition back to unknown.
	}
}

// recovered absorbs panics from recording paths so health bookkeeping can
// never take down the poll loop.
func (t *Tracker) recovered(op, name string) {
	if r := recover(); r != nil {
		t.log.Error().
			Str("operation", op).
			Str("component", name).
			Interface("panic", r).
			Msg("Recovered panic in health tracker")
	}
}
