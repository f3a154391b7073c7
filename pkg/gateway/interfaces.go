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
	"time"

	"github.com/carverauto/gridwatch/pkg/models"
)

// AuthMode identifies the single authentication mode used for a session.
type AuthMode string

const (
	// AuthModeGateway authenticates with the installer/gateway password
	// against the local TEDAPI endpoint.
	AuthModeGateway AuthMode = "gateway"
	// AuthModeCustomer authenticates with the customer email/password
	// against the local owner API.
	AuthModeCustomer AuthMode = "customer"
)

// TelemetrySource opens authenticated sessions against the energy gateway.
// Connect must perform exactly one bounded-timeout authentication attempt
// in the given mode; it must never fall back to other modes internally.
type TelemetrySource interface {
	Connect(ctx context.Context, mode AuthMode, cfg *models.GatewayConfig, timeout time.Duration) (Session, error)
}

// Session is a live authenticated handle to the gateway. Sessions are
// owned exclusively by the SessionManager and are never shared outside it.
type Session interface {
	// Required sub-queries.
	Power(ctx context.Context) (*models.PowerFlow, error)
	Status(ctx context.Context) (map[string]interface{}, error)
	Vitals(ctx context.Context) (map[string]interface{}, error)

	// Best-effort sub-queries.
	SiteName(ctx context.Context) (string, error)
	Firmware(ctx context.Context) (string, error)
	Serial(ctx context.Context) (string, error)
	GridStatus(ctx context.Context) (string, error)
	BatteryLevel(ctx context.Context) (float64, error)

	Close() error
}
