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

// HealthState is the per-component connectivity state. Unknown is the
// unique initial state; it is left permanently on the first recorded
// outcome for a component.
type HealthState string

const (
	HealthUnknown      HealthState = "unknown"
	HealthConnected    HealthState = "connected"
	HealthDisconnected HealthState = "disconnected"
)

// ComponentHealth is the last-known status of one monitored dependency.
type ComponentHealth struct {
	Name        string      `json:"name"`
	State       HealthState `json:"state"`
	Required    bool        `json:"required"`
	LastSuccess *time.Time  `json:"last_success,omitempty"`
	LastError   string      `json:"last_error,omitempty"`
	Detail      string      `json:"detail,omitempty"`
}

// Connected reports whether the component is currently in the connected
// state. Unknown counts as not connected.
func (c *ComponentHealth) Connected() bool {
	return c.State == HealthConnected
}

// HealthReport is a point-in-time view of service health. Overall is
// derived on each read as the logical AND of the required components'
// connected flags; it is never cached.
type HealthReport struct {
	Overall               bool                       `json:"overall"`
	Components            map[string]ComponentHealth `json:"components"`
	LastPollTime          *time.Time                 `json:"last_poll_time,omitempty"`
	LastSuccessTime       *time.Time                 `json:"last_success_time,omitempty"`
	ConsecutiveFailures   int                        `json:"consecutive_failures"`
	BackgroundTaskRunning bool                       `json:"background_task_running"`
}
