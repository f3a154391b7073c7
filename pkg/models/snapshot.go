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

package models

import "time"

// PowerFlow holds the instantaneous power aggregates reported by the
// gateway, in watts. Positive battery/site values indicate draw, negative
// values indicate export, matching the gateway's own sign convention.
type PowerFlow struct {
	Site    float64 `json:"site"`
	Battery float64 `json:"battery"`
	Load    float64 `json:"load"`
	Solar   float64 `json:"solar"`
}

// Snapshot is one complete set of readings from a polling cycle.
//
// Power, SystemStatus and Vitals come from required sub-queries and are
// always present on a successful cycle. The remaining fields come from
// best-effort sub-queries and may carry zero values when the gateway
// declined to answer.
type Snapshot struct {
	Timestamp      time.Time              `json:"timestamp"`
	SiteName       string                 `json:"site_name,omitempty"`
	Firmware       string                 `json:"firmware,omitempty"`
	Serial         string                 `json:"serial,omitempty"`
	GridStatus     string                 `json:"grid_status,omitempty"`
	BatteryPercent *float64               `json:"battery_percentage,omitempty"`
	Power          *PowerFlow             `json:"power"`
	Alerts         []string               `json:"alerts"`
	SystemStatus   map[string]interface{} `json:"system_status,omitempty"`
	Vitals         map[string]interface{} `json:"vitals,omitempty"`

	// Nominal battery energy figures extracted from the vitals TEPOD
	// block when present.
	NominalEnergyRemaining *float64 `json:"battery_nominal_energy_remaining,omitempty"`
	NominalFullEnergy      *float64 `json:"battery_nominal_full_energy,omitempty"`
}

// PollResult captures the outcome of one polling cycle, including per-sink
// delivery status. A sink failure never fails the cycle; it is surfaced
// here and in the health report instead.
type PollResult struct {
	Timestamp       time.Time `json:"timestamp"`
	Duration        float64   `json:"duration_seconds"`
	Snapshot        *Snapshot `json:"snapshot,omitempty"`
	GatewayError    string    `json:"gateway_error,omitempty"`
	TimeseriesError string    `json:"timeseries_error,omitempty"`
	EventsError     string    `json:"events_error,omitempty"`
	WroteTimeseries bool      `json:"wrote_timeseries"`
	PublishedEvents bool      `json:"published_events"`
}

// Success reports whether the cycle produced a snapshot from the gateway.
func (r *PollResult) Success() bool {
	return r.Snapshot != nil && r.GatewayError == ""
}
