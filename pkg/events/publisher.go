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

// Package events publishes CloudEvents to NATS JetStream: telemetry
// snapshots, gateway availability transitions, and component health.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/gridwatch/pkg/logger"
	"github.com/carverauto/gridwatch/pkg/models"
)

const (
	defaultStream        = "gridwatch"
	defaultSubjectPrefix = "events.gridwatch"

	eventSource = "gridwatch/poller"

	typeSnapshot     = "com.carverauto.gridwatch.telemetry.snapshot"
	typeAvailability = "com.carverauto.gridwatch.gateway.availability"
	typeHealth       = "com.carverauto.gridwatch.component.health"
)

// jsPublisher is the slice of jetstream.JetStream the publisher uses.
type jsPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher writes CloudEvents to a JetStream stream. Each Publisher owns
// its NATS connection; the health monitor deliberately creates a separate
// one so a stuck poll-side connection cannot silence health events.
type Publisher struct {
	nc      *nats.Conn
	js      jsPublisher
	cfg     *models.EventsConfig
	log     logger.Logger
	stream  string
	subject string
}

// Connect dials NATS, creates the JetStream context, and makes sure the
// stream exists.
func Connect(ctx context.Context, cfg *models.EventsConfig, log logger.Logger, opts ...nats.Option) (*Publisher, error) {
	opts = append(opts,
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := newPublisher(js, cfg, log)
	p.nc = nc

	if _, err := js.Stream(ctx, p.stream); err != nil {
		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     p.stream,
			Subjects: []string{p.subject + ".>"},
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create or get stream %s: %w", p.stream, err)
		}

		log.Info().Str("stream", p.stream).Msg("Created JetStream stream")
	}

	return p, nil
}

// newPublisher wires a publisher onto an existing JetStream context.
func newPublisher(js jsPublisher, cfg *models.EventsConfig, log logger.Logger) *Publisher {
	stream := cfg.Stream
	if stream == "" {
		stream = defaultStream
	}

	subject := cfg.Subject
	if subject == "" {
		subject = defaultSubjectPrefix
	}

	return &Publisher{
		js:      js,
		cfg:     cfg,
		log:     log,
		stream:  stream,
		subject: subject,
	}
}

// PublishSnapshot publishes one telemetry snapshot.
func (p *Publisher) PublishSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	return p.publish(ctx, typeSnapshot, p.subject+".telemetry", snapshot.Timestamp, snapshot)
}

// PublishAvailability publishes a gateway availability transition. Both
// edges are published: offline when the gateway becomes unreachable,
// online when it recovers.
func (p *Publisher) PublishAvailability(ctx context.Context, online bool, detail string) error {
	data := models.AvailabilityEventData{
		Online:    online,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}

	return p.publish(ctx, typeAvailability, p.subject+".availability", data.Timestamp, data)
}

// PublishHealth publishes one event per component in the report.
func (p *Publisher) PublishHealth(ctx context.Context, report models.HealthReport) error {
	now := time.Now().UTC()

	for name, component := range report.Components {
		data := models.ComponentHealthEventData{
			Component:   name,
			State:       component.State,
			LastSuccess: component.LastSuccess,
			LastError:   component.LastError,
			Detail:      component.Detail,
			Timestamp:   now,
		}

		if err := p.publish(ctx, typeHealth, p.subject+".health."+name, now, data); err != nil {
			return err
		}
	}

	return nil
}

func (p *Publisher) publish(ctx context.Context, eventType, subject string, ts time.Time, data interface{}) error {
	event := models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          eventSource,
		Type:            eventType,
		DataContentType: "application/json",
		Subject:         subject,
		Time:            &ts,
		Data:            data,
		Site:            p.cfg.SiteLabel,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	ack, err := p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	p.log.Debug().
		Str("event_id", event.ID).
		Str("subject", subject).
		Uint64("sequence", ack.Sequence).
		Msg("Published event")

	return nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc == nil {
		return
	}

	if err := p.nc.Drain(); err != nil {
		p.log.Debug().Err(err).Msg("Failed to drain NATS connection")
	}

	p.nc.Close()
}
