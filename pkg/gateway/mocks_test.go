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

// fakeSession implements Session with per-method hooks. A nil hook returns
// a benign default so tests only wire the paths they exercise.
type fakeSession struct {
	powerFn      func(ctx context.Context) (*models.PowerFlow, error)
	statusFn     func(ctx context.Context) (map[string]interface{}, error)
	vitalsFn     func(ctx context.Context) (map[string]interface{}, error)
	siteNameFn   func(ctx context.Context) (string, error)
	firmwareFn   func(ctx context.Context) (string, error)
	serialFn     func(ctx context.Context) (string, error)
	gridStatusFn func(ctx context.Context) (string, error)
	batteryFn    func(ctx context.Context) (float64, error)

	powerCalls  int
	statusCalls int
	vitalsCalls int
	closeCalls  int
}

func (s *fakeSession) Power(ctx context.Context) (*models.PowerFlow, error) {
	s.powerCalls++

	if s.powerFn != nil {
		return s.powerFn(ctx)
	}

	return &models.PowerFlow{Site: 100, Battery: -50, Load: 1200, Solar: 1150}, nil
}

func (s *fakeSession) Status(ctx context.Context) (map[string]interface{}, error) {
	s.statusCalls++

	if s.statusFn != nil {
		return s.statusFn(ctx)
	}

	return map[string]interface{}{}, nil
}

func (s *fakeSession) Vitals(ctx context.Context) (map[string]interface{}, error) {
	s.vitalsCalls++

	if s.vitalsFn != nil {
		return s.vitalsFn(ctx)
	}

	return map[string]interface{}{}, nil
}

func (s *fakeSession) SiteName(ctx context.Context) (string, error) {
	if s.siteNameFn != nil {
		return s.siteNameFn(ctx)
	}

	return "", nil
}

func (s *fakeSession) Firmware(ctx context.Context) (string, error) {
	if s.firmwareFn != nil {
		return s.firmwareFn(ctx)
	}

	return "", nil
}

func (s *fakeSession) Serial(ctx context.Context) (string, error) {
	if s.serialFn != nil {
		return s.serialFn(ctx)
	}

	return "", nil
}

func (s *fakeSession) GridStatus(ctx context.Context) (string, error) {
	if s.gridStatusFn != nil {
		return s.gridStatusFn(ctx)
	}

	return "", nil
}

func (s *fakeSession) BatteryLevel(ctx context.Context) (float64, error) {
	if s.batteryFn != nil {
		return s.batteryFn(ctx)
	}

	return 0, nil
}

func (s *fakeSession) Close() error {
	s.closeCalls++
	return nil
}

// fakeSource implements TelemetrySource and counts connection attempts.
type fakeSource struct {
	connectFn    func(mode AuthMode) (Session, error)
	connectCalls int
	lastMode     AuthMode
}

func (f *fakeSource) Connect(
	_ context.Context,
	mode AuthMode,
	_ *models.GatewayConfig,
	_ time.Duration,
) (Session, error) {
	f.connectCalls++
	f.lastMode = mode

	if f.connectFn != nil {
		return f.connectFn(mode)
	}

	return &fakeSession{}, nil
}
