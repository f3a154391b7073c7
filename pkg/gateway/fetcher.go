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
	"fmt"
	"time"

	"github.com/carverauto/gridwatch/pkg/logger"
	"github.com/carverauto/gridwatch/pkg/models"
)

// SnapshotFetcher executes one polling cycle against the gateway. Required
// sub-queries (power, status, vitals) fail the cycle; each is retried at
// most once, and only after an authentication failure below the threshold.
// Best-effort sub-queries never fail the cycle.
//
// Auth recovery is per sub-query rather than per cycle: re-authenticating
// immediately after the first 403 saves the rest of the cycle's data when
// a single fresh session would have sufficed, while still bounding retries
// to one extra attempt per sub-query.
type SnapshotFetcher struct {
	sessions *SessionManager
	log      logger.Logger
	now      func() time.Time
}

// NewSnapshotFetcher creates a fetcher bound to the given session manager.
// The fetcher and manager must be driven from the same serialized context;
// both mutate the same failure counters.
func NewSnapshotFetcher(sessions *SessionManager, log logger.Logger) *SnapshotFetcher {
	return &SnapshotFetcher{
		sessions: sessions,
		log:      log,
		now:      time.Now,
	}
}

// Fetch runs one full cycle and assembles a snapshot. Every failure path
// returns an error wrapping ErrUnavailable; the process stays alive and
// retries on the next tick.
func (f *SnapshotFetcher) Fetch(ctx context.Context) (*models.Snapshot, error) {
	forceReconnect := f.sessions.AuthFailures() >= f.sessions.MaxAuthFailures()
	if forceReconnect {
		f.log.Info().
			Int("auth_failures", f.sessions.AuthFailures()).
			Msg("Auth failure threshold reached, forcing full reconnect")
	}

	if err := f.sessions.Ensure(ctx, forceReconnect); err != nil {
		return nil, err
	}

	power, err := fetchRequired(ctx, f, "power", func(ctx context.Context, s Session) (*models.PowerFlow, error) {
		return s.Power(ctx)
	})
	if err != nil {
		return nil, err
	}

	status, err := fetchRequired(ctx, f, "status", func(ctx context.Context, s Session) (map[string]interface{}, error) {
		return s.Status(ctx)
	})
	if err != nil {
		return nil, err
	}

	vitals, err := fetchRequired(ctx, f, "vitals", func(ctx context.Context, s Session) (map[string]interface{}, error) {
		return s.Vitals(ctx)
	})
	if err != nil {
		return nil, err
	}

	snapshot := f.assemble(ctx, power, status, vitals)

	if f.sessions.AuthFailures() > 0 {
		f.log.Info().
			Int("auth_failures", f.sessions.AuthFailures()).
			Msg("Recovered from previous authentication failures")
	}

	f.sessions.ResetCounters()

	return snapshot, nil
}

// fetchRequired runs one required sub-query with differentiated error
// handling: connectivity failures abort the cycle immediately (the whole
// cycle retries next tick), auth failures below threshold get exactly one
// reconnect-and-retry, anything else aborts the cycle.
func fetchRequired[T any](
	ctx context.Context,
	f *SnapshotFetcher,
	kind string,
	query func(context.Context, Session) (T, error),
) (T, error) {
	var zero T

	value, err := query(ctx, f.sessions.Session())
	if err == nil {
		return value, nil
	}

	switch Classify(err) {
	case FailureConnectivity:
		return zero, fmt.Errorf("%w: failed to retrieve %s: %w", ErrUnavailable, kind, err)

	case FailureAuth:
		failures := f.sessions.RecordAuthFailure()
		f.log.Warn().
			Err(err).
			Str("query", kind).
			Int("auth_failures", failures).
			Int("max_auth_failures", f.sessions.MaxAuthFailures()).
			Msg("Authentication error on required sub-query")

		if failures >= f.sessions.MaxAuthFailures() {
			// Next cycle's Ensure runs with forceReconnect=true.
			return zero, fmt.Errorf("%w: authentication failed %d times fetching %s",
				ErrUnavailable, failures, kind)
		}

		f.sessions.Close()

		if err := f.sessions.Ensure(ctx, true); err != nil {
			return zero, err
		}

		value, err = query(ctx, f.sessions.Session())
		if err != nil {
			return zero, fmt.Errorf("%w: %s retry after re-authentication failed: %w",
				ErrUnavailable, kind, err)
		}

		f.log.Info().Str("query", kind).Msg("Sub-query succeeded after re-authentication")

		return value, nil

	default:
		return zero, fmt.Errorf("%w: failed to retrieve %s: %w", ErrUnavailable, kind, err)
	}
}

// fetchOptional runs a best-effort sub-query. Any failure is logged and
// replaced by the default value; optional data never fails the cycle and
// never touches the failure counters.
func fetchOptional[T any](
	ctx context.Context,
	f *SnapshotFetcher,
	kind string,
	def T,
	query func(context.Context, Session) (T, error),
) T {
	value, err := query(ctx, f.sessions.Session())
	if err != nil {
		f.log.Debug().Err(err).Str("query", kind).Msg("Optional sub-query failed, using default")
		return def
	}

	return value
}

// assemble builds the snapshot from required results plus best-effort
// extras.
func (f *SnapshotFetcher) assemble(
	ctx context.Context,
	power *models.PowerFlow,
	status map[string]interface{},
	vitals map[string]interface{},
) *models.Snapshot {
	snapshot := &models.Snapshot{
		Timestamp:    f.now().UTC(),
		Power:        power,
		SystemStatus: extractSystemStatus(status),
		Vitals:       vitals,
		Alerts:       extractAlerts(status),
	}

	snapshot.SiteName = fetchOptional(ctx, f, "site_name", "", func(ctx context.Context, s Session) (string, error) {
		return s.SiteName(ctx)
	})
	snapshot.Firmware = fetchOptional(ctx, f, "firmware", "", func(ctx context.Context, s Session) (string, error) {
		return s.Firmware(ctx)
	})
	snapshot.Serial = fetchOptional(ctx, f, "serial", "", func(ctx context.Context, s Session) (string, error) {
		return s.Serial(ctx)
	})
	snapshot.GridStatus = fetchOptional(ctx, f, "grid_status", "", func(ctx context.Context, s Session) (string, error) {
		return s.GridStatus(ctx)
	})

	if level, err := f.sessions.Session().BatteryLevel(ctx); err == nil {
		snapshot.BatteryPercent = &level
	} else {
		f.log.Debug().Err(err).Str("query", "battery_level").Msg("Optional sub-query failed, using default")
	}

	if snapshot.Serial != "" {
		podKey := "TEPOD--" + snapshot.Serial
		snapshot.NominalEnergyRemaining = extractFloat(vitals, podKey, "POD_nom_energy_remaining")
		snapshot.NominalFullEnergy = extractFloat(vitals, podKey, "POD_nom_full_pack_energy")
	}

	return snapshot
}

// extractAlerts pulls the active alert list out of the status document.
// Missing intermediate keys yield an empty list, never an error.
func extractAlerts(status map[string]interface{}) []string {
	alerts := []string{}

	control, ok := status["control"].(map[string]interface{})
	if !ok {
		return alerts
	}

	alertsDoc, ok := control["alerts"].(map[string]interface{})
	if !ok {
		return alerts
	}

	active, ok := alertsDoc["active"].([]interface{})
	if !ok {
		return alerts
	}

	for _, a := range active {
		if s, ok := a.(string); ok {
			alerts = append(alerts, s)
		}
	}

	return alerts
}

// extractSystemStatus pulls the nested systemStatus block, if present.
func extractSystemStatus(status map[string]interface{}) map[string]interface{} {
	control, ok := status["control"].(map[string]interface{})
	if !ok {
		return nil
	}

	system, ok := control["systemStatus"].(map[string]interface{})
	if !ok {
		return nil
	}

	return system
}

// extractFloat digs a float out of a nested document by key path.
func extractFloat(doc map[string]interface{}, keys ...string) *float64 {
	current := doc

	for i, key := range keys {
		value, ok := current[key]
		if !ok {
			return nil
		}

		if i == len(keys)-1 {
			switch v := value.(type) {
			case float64:
				return &v
			case int:
				f := float64(v)
				return &f
			}

			return nil
		}

		current, ok = value.(map[string]interface{})
		if !ok {
			return nil
		}
	}

	return nil
}
