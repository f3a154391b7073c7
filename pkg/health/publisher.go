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

package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/carverauto/gridwatch/pkg/events"
	"github.com/carverauto/gridwatch/pkg/logger"
	"github.com/carverauto/gridwatch/pkg/models"
)

const (
	defaultPublishInterval = 60 * time.Second
	defaultInitialDelay    = 10 * time.Second
	publishTimeout         = 15 * time.Second
)

// Sink receives health reports. Satisfied by events.Publisher.
type Sink interface {
	PublishHealth(ctx context.Context, report models.HealthReport) error
	Close()
}

// Publisher runs the background health-publish loop on its own cadence,
// fully decoupled from the poll loop: it has its own ticker, its own
// event-bus connection, and never blocks or fails a poll cycle. A wedged
// poll loop therefore still reports health, which is the whole point.
type Publisher struct {
	reportFn     func() models.HealthReport
	connectFn    func(ctx context.Context) (Sink, error)
	clock        Clock
	log          logger.Logger
	interval     time.Duration
	initialDelay time.Duration

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// PublisherOptions tunes the publish loop. Zero values use defaults.
type PublisherOptions struct {
	Interval     time.Duration
	InitialDelay time.Duration
	Clock        Clock
}

// NewPublisher creates a health publisher that dials its own connection
// to the event bus. reportFn is called once per publish interval.
func NewPublisher(
	cfg *models.EventsConfig,
	reportFn func() models.HealthReport,
	log logger.Logger,
	opts PublisherOptions,
) *Publisher {
	if opts.Interval <= 0 {
		opts.Interval = defaultPublishInterval
	}

	if opts.InitialDelay <= 0 {
		opts.InitialDelay = defaultInitialDelay
	}

	if opts.Clock == nil {
		opts.Clock = realClock{}
	}

	return &Publisher{
		reportFn: reportFn,
		connectFn: func(ctx context.Context) (Sink, error) {
			return events.Connect(ctx, cfg, log)
		},
		clock:        opts.Clock,
		log:          log,
		interval:     opts.Interval,
		initialDelay: opts.InitialDelay,
	}
}

// Start launches the publish loop. It returns immediately; the loop runs
// until Stop is called or the context is canceled.
func (p *Publisher) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.running.Store(true)

	go p.run(ctx)
}

// Running reports whether the background loop is alive. Wired into the
// health report's background-task flag.
func (p *Publisher) Running() bool {
	return p.running.Load()
}

// Stop cancels the loop and waits for it to exit.
func (p *Publisher) Stop() {
	if p.cancel == nil {
		return
	}

	p.cancel()
	<-p.done
}

func (p *Publisher) run(ctx context.Context) {
	defer p.running.Store(false)
	defer close(p.done)

	var sink Sink

	defer func() {
		if sink != nil {
			sink.Close()
		}
	}()

	// The initial delay lets the first poll cycle land before the first
	// report, so startup health reflects a real outcome rather than a
	// wall of unknowns.
	delay := p.clock.Ticker(p.initialDelay)
	select {
	case <-ctx.Done():
		delay.Stop()
		return
	case <-delay.Chan():
		delay.Stop()
	}

	ticker := p.clock.Ticker(p.interval)
	defer ticker.Stop()

	for {
		sink = p.publishOnce(ctx, sink)

		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

// publishOnce pushes one report, (re)connecting the sink as needed. All
// failures are logged and swallowed; the loop itself must survive any
// event-bus outage.
func (p *Publisher) publishOnce(ctx context.Context, sink Sink) Sink {
	if sink == nil {
		connected, err := p.connectFn(ctx)
		if err != nil {
			p.log.Warn().Err(err).Msg("Health publisher failed to connect to event bus")
			return nil
		}

		sink = connected
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	report := p.reportFn()

	if err := sink.PublishHealth(pubCtx, report); err != nil {
		p.log.Warn().Err(err).Msg("Failed to publish health report, dropping connection")
		sink.Close()

		return nil
	}

	p.log.Debug().
		Bool("overall", report.Overall).
		Int("components", len(report.Components)).
		Msg("Published health report")

	return sink
}
