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

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrInvalidDuration = errors.New("invalid duration")

// Duration is a wrapper around time.Duration for JSON unmarshaling.
// It accepts either a number of nanoseconds or a Go duration string.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}

		*d = Duration(tmp)
	default:
		return ErrInvalidDuration
	}

	return nil
}

// GatewayConfig describes how to reach and authenticate with the energy
// gateway. Exactly one authentication mode is attempted per connection;
// there is no internal mode-discovery ladder.
type GatewayConfig struct {
	Host             string   `json:"host"`
	GatewayPassword  string   `json:"gateway_password,omitempty"`
	CustomerEmail    string   `json:"customer_email,omitempty"`
	CustomerPassword string   `json:"customer_password,omitempty"`
	RequestTimeout   Duration `json:"request_timeout,omitempty"`

	// Failure thresholds for the connection core. Zero values fall back
	// to the package defaults.
	MaxAuthFailures       int `json:"max_auth_failures,omitempty"`
	MaxConnectionFailures int `json:"max_connection_failures,omitempty"`
}

// TimeseriesConfig configures the Timescale/Postgres metric sink.
type TimeseriesConfig struct {
	Host             string   `json:"host"`
	Port             int      `json:"port,omitempty"`
	Database         string   `json:"database"`
	Username         string   `json:"username,omitempty"`
	Password         string   `json:"password,omitempty"`
	SSLMode          string   `json:"ssl_mode,omitempty"`
	Table            string   `json:"table,omitempty"`
	MaxConnections   int32    `json:"max_connections,omitempty"`
	StatementTimeout Duration `json:"statement_timeout,omitempty"`
}

// EventsConfig configures the NATS JetStream event sink.
type EventsConfig struct {
	URL       string `json:"url"`
	Stream    string `json:"stream,omitempty"`
	Subject   string `json:"subject_prefix,omitempty"`
	SiteLabel string `json:"site_label,omitempty"`
}

// LinkConfig configures best-effort supervision of the local network link
// to the gateway. Association mechanics live behind the LinkManager
// boundary; only the trigger cadence is configured here.
type LinkConfig struct {
	Enabled   bool     `json:"enabled"`
	SSID      string   `json:"ssid,omitempty"`
	Password  string   `json:"password,omitempty"`
	Interface string   `json:"interface,omitempty"`
	Cooldown  Duration `json:"cooldown,omitempty"`
}
