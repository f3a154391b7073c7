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

	"github.com/carverauto/gridwatch/pkg/models"
)

// Fetcher runs one full polling cycle against the gateway.
// Implemented by gateway.SnapshotFetcher.
type Fetcher interface {
	Fetch(ctx context.Context) (*models.Snapshot, error)
}

// SessionControl is the slice of the session manager the orchestrator
// drives: the per-tick probe re-arm, the circuit escape valve, and
// shutdown.
type SessionControl interface {
	ArmProbe()
	ResetCircuit()
	Close()
}

// MetricSink persists snapshots to the time-series store.
// Implemented by timeseries.Writer.
type MetricSink interface {
	WriteSnapshot(ctx context.Context, snapshot *models.Snapshot) error
	Close()
}

// EventSink publishes snapshots and availability transitions to the event
// bus. Implemented by events.Publisher.
type EventSink interface {
	PublishSnapshot(ctx context.Context, snapshot *models.Snapshot) error
	PublishAvailability(ctx context.Context, online bool, detail string) error
	Close()
}

// BackgroundTask is the independent health-publish loop.
// Implemented by health.Publisher.
type BackgroundTask interface {
	Start(ctx context.Context)
	Stop()
	Running() bool
}
