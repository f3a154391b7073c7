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
	"sync"
	"time"

	"github.com/carverauto/gridwatch/pkg/models"
)

type fakeFetcher struct {
	mu      sync.Mutex
	fetchFn func(ctx context.Context) (*models.Snapshot, error)
	calls   int
}

func (f *fakeFetcher) Fetch(ctx context.Context) (*models.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	fn := f.fetchFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}

	return &models.Snapshot{Timestamp: time.Now().UTC(), Power: &models.PowerFlow{}}, nil
}

func (f *fakeFetcher) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

type fakeSessionControl struct {
	mu         sync.Mutex
	armCalls   int
	resetCalls int
	closeCalls int
}

func (s *fakeSessionControl) ArmProbe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armCalls++
}

func (s *fakeSessionControl) ResetCircuit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCalls++
}

func (s *fakeSessionControl) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
}

func (s *fakeSessionControl) resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.resetCalls
}

type fakeMetricSink struct {
	err    error
	writes int
	closed int
}

func (m *fakeMetricSink) WriteSnapshot(context.Context, *models.Snapshot) error {
	m.writes++
	return m.err
}

func (m *fakeMetricSink) Close() { m.closed++ }

type availabilityEvent struct {
	online bool
	detail string
}

type fakeEventSink struct {
	snapshotErr     error
	availabilityErr error
	snapshots       int
	availability    []availabilityEvent
	closed          int
}

func (e *fakeEventSink) PublishSnapshot(context.Context, *models.Snapshot) error {
	e.snapshots++
	return e.snapshotErr
}

func (e *fakeEventSink) PublishAvailability(_ context.Context, online bool, detail string) error {
	if e.availabilityErr != nil {
		return e.availabilityErr
	}

	e.availability = append(e.availability, availabilityEvent{online: online, detail: detail})

	return nil
}

func (e *fakeEventSink) Close() { e.closed++ }

type fakeBackground struct {
	running bool
	started int
	stopped int
}

func (b *fakeBackground) Start(context.Context) {
	b.started++
	b.running = true
}

func (b *fakeBackground) Stop() {
	b.stopped++
	b.running = false
}

func (b *fakeBackground) Running() bool { return b.running }

type fakeLink struct {
	err   error
	joins int
}

func (l *fakeLink) Join(context.Context) error {
	l.joins++
	return l.err
}

// manualClock is a settable clock whose tickers fire only when the test
// sends on them.
type manualClock struct {
	mu      sync.Mutex
	current time.Time
	created chan *manualTicker
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{
		current: start,
		created: make(chan *manualTicker, 4),
	}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

func (c *manualClock) Ticker(time.Duration) Ticker {
	t := &manualTicker{ch: make(chan time.Time, 1)}
	c.created <- t

	return t
}

type manualTicker struct {
	ch chan time.Time
}

func (t *manualTicker) Chan() <-chan time.Time { return t.ch }
func (*manualTicker) Stop()                    {}
