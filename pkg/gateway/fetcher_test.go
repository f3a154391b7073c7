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
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/gridwatch/pkg/logger"
	"github.com/carverauto/gridwatch/pkg/models"
)

func newFetcherHarness(t *testing.T, source *fakeSource, cfg *models.GatewayConfig) (*SnapshotFetcher, *SessionManager) {
	t.Helper()

	log := logger.NewTestLogger()
	sessions := NewSessionManager(source, cfg, log)

	return NewSnapshotFetcher(sessions, log), sessions
}

func TestFetchAssemblesSnapshot(t *testing.T) {
	battery := 72.5
	session := &fakeSession{
		statusFn: func(context.Context) (map[string]interface{}, error) {
			return map[string]interface{}{
				"control": map[string]interface{}{
					"alerts": map[string]interface{}{
						"active": []interface{}{"GridCodesWrite", "FWUpdateSucceeded"},
					},
					"systemStatus": map[string]interface{}{
						"mode": "self_consumption",
					},
				},
			}, nil
		},
		vitalsFn: func(context.Context) (map[string]interface{}, error) {
			return map[string]interface{}{
				"TEPOD--TG123456": map[string]interface{}{
					"POD_nom_energy_remaining": 12345.0,
					"POD_nom_full_pack_energy": 13500.0,
				},
			}, nil
		},
		siteNameFn:   func(context.Context) (string, error) { return "Lakehouse", nil },
		firmwareFn:   func(context.Context) (string, error) { return "25.10.1", nil },
		serialFn:     func(context.Context) (string, error) { return "TG123456", nil },
		gridStatusFn: func(context.Context) (string, error) { return "SystemGridConnected", nil },
		batteryFn:    func(context.Context) (float64, error) { return battery, nil },
	}
	source := &fakeSource{connectFn: func(AuthMode) (Session, error) { return session, nil }}

	fetcher, sessions := newFetcherHarness(t, source, testGatewayConfig())

	snapshot, err := fetcher.Fetch(context.Background())

	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.False(t, snapshot.Timestamp.IsZero())
	assert.Equal(t, &models.PowerFlow{Site: 100, Battery: -50, Load: 1200, Solar: 1150}, snapshot.Power)
	assert.Equal(t, []string{"GridCodesWrite", "FWUpdateSucceeded"}, snapshot.Alerts)
	assert.Equal(t, map[string]interface{}{"mode": "self_consumption"}, snapshot.SystemStatus)
	assert.Equal(t, "Lakehouse", snapshot.SiteName)
	assert.Equal(t, "25.10.1", snapshot.Firmware)
	assert.Equal(t, "TG123456", snapshot.Serial)
	assert.Equal(t, "SystemGridConnected", snapshot.GridStatus)
	require.NotNil(t, snapshot.BatteryPercent)
	assert.InDelta(t, battery, *snapshot.BatteryPercent, 0.001)
	require.NotNil(t, snapshot.NominalEnergyRemaining)
	assert.InDelta(t, 12345.0, *snapshot.NominalEnergyRemaining, 0.001)
	require.NotNil(t, snapshot.NominalFullEnergy)
	assert.InDelta(t, 13500.0, *snapshot.NominalFullEnergy, 0.001)

	assert.Equal(t, 0, sessions.AuthFailures())
	assert.Equal(t, 0, sessions.ConnectionFailures())
}

func TestFetchOptionalFailuresDoNotFailCycle(t *testing.T) {
	session := &fakeSession{
		siteNameFn: func(context.Context) (string, error) {
			return "", errors.New("endpoint not supported on this firmware")
		},
		batteryFn: func(context.Context) (float64, error) {
			return 0, &StatusError{StatusCode: http.StatusForbidden, Endpoint: soePath}
		},
	}
	source := &fakeSource{connectFn: func(AuthMode) (Session, error) { return session, nil }}

	fetcher, sessions := newFetcherHarness(t, source, testGatewayConfig())

	snapshot, err := fetcher.Fetch(context.Background())

	require.NoError(t, err)
	assert.Empty(t, snapshot.SiteName)
	assert.Nil(t, snapshot.BatteryPercent)
	// Optional sub-queries never touch the auth counter, even on a 403.
	assert.Equal(t, 0, sessions.AuthFailures())
}

func TestFetchConnectivityFailureAbortsWithoutRetry(t *testing.T) {
	session := &fakeSession{
		powerFn: func(context.Context) (*models.PowerFlow, error) {
			return nil, fmt.Errorf("request failed: %w", syscall.ECONNREFUSED)
		},
	}
	source := &fakeSource{connectFn: func(AuthMode) (Session, error) { return session, nil }}

	fetcher, sessions := newFetcherHarness(t, source, testGatewayConfig())

	snapshot, err := fetcher.Fetch(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Nil(t, snapshot)
	assert.Equal(t, 1, session.powerCalls)
	assert.Equal(t, 0, sessions.AuthFailures())
	assert.Equal(t, 1, source.connectCalls)
}

func TestFetchEnsureFailurePropagates(t *testing.T) {
	source := &fakeSource{
		connectFn: func(AuthMode) (Session, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}

	fetcher, _ := newFetcherHarness(t, source, testGatewayConfig())

	snapshot, err := fetcher.Fetch(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Nil(t, snapshot)
}

func TestFetchAuthRetryRecoversWithinCycle(t *testing.T) {
	powerCalls := 0
	newSession := func() *fakeSession {
		return &fakeSession{
			powerFn: func(context.Context) (*models.PowerFlow, error) {
				powerCalls++
				if powerCalls == 1 {
					return nil, &StatusError{StatusCode: http.StatusForbidden, Endpoint: aggregatesPath}
				}

				return &models.PowerFlow{Load: 900}, nil
			},
		}
	}
	source := &fakeSource{connectFn: func(AuthMode) (Session, error) { return newSession(), nil }}

	fetcher, sessions := newFetcherHarness(t, source, testGatewayConfig())

	snapshot, err := fetcher.Fetch(context.Background())

	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.InDelta(t, 900.0, snapshot.Power.Load, 0.001)
	// Initial connect plus one reconnect for the auth retry.
	assert.Equal(t, 2, source.connectCalls)
	assert.Equal(t, 2, powerCalls)
	// Completed cycle clears the counter incremented by the 403.
	assert.Equal(t, 0, sessions.AuthFailures())
}

func TestFetchAuthThresholdAcrossCycles(t *testing.T) {
	powerCalls := 0
	newSession := func() *fakeSession {
		return &fakeSession{
			powerFn: func(context.Context) (*models.PowerFlow, error) {
				powerCalls++
				if powerCalls <= 3 {
					return nil, &StatusError{StatusCode: http.StatusForbidden, Endpoint: aggregatesPath}
				}

				return &models.PowerFlow{Load: 1100}, nil
			},
		}
	}
	source := &fakeSource{connectFn: func(AuthMode) (Session, error) { return newSession(), nil }}

	cfg := testGatewayConfig()
	cfg.MaxAuthFailures = 2

	fetcher, sessions := newFetcherHarness(t, source, cfg)
	ctx := context.Background()

	// Cycle 1: below threshold, so the 403 earns a reconnect and one
	// retry, which fails too. Only the first failure increments.
	_, err := fetcher.Fetch(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, sessions.AuthFailures())
	assert.Equal(t, 2, source.connectCalls)
	assert.Equal(t, 2, powerCalls)

	// Cycle 2: the second increment reaches the threshold, so no retry
	// and no reconnect inside the cycle.
	_, err = fetcher.Fetch(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, sessions.AuthFailures())
	assert.Equal(t, 2, source.connectCalls)
	assert.Equal(t, 3, powerCalls)

	// Cycle 3: threshold reached forces a full reconnect up front, the
	// fresh session works, and the completed cycle clears the counter.
	snapshot, err := fetcher.Fetch(ctx)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.InDelta(t, 1100.0, snapshot.Power.Load, 0.001)
	assert.Equal(t, 3, source.connectCalls)
	assert.Equal(t, 0, sessions.AuthFailures())
	assert.Equal(t, 0, sessions.ConnectionFailures())
}
