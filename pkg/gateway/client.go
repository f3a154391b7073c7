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
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/carverauto/gridwatch/pkg/logger"
	"github.com/carverauto/gridwatch/pkg/models"
)

const (
	loginPath      = "/api/login/Basic"
	logoutPath     = "/api/logout"
	aggregatesPath = "/api/meters/aggregates"
	statusPath     = "/api/status"
	vitalsPath     = "/api/devices/vitals"
	siteInfoPath   = "/api/site_info/site_name"
	gridStatusPath = "/api/system_status/grid_status"
	soePath        = "/api/system_status/soe"
)

// Client talks to the gateway's local HTTPS API. The gateway serves a
// self-signed certificate on its maintenance address, so certificate
// verification is disabled for this transport only.
type Client struct {
	log logger.Logger
}

// NewClient creates a TelemetrySource backed by the gateway's local API.
func NewClient(log logger.Logger) *Client {
	return &Client{log: log}
}

// Connect performs a single login attempt in the given mode and returns a
// live session. There is no fallback between modes; a failed login is a
// failed connect.
func (c *Client) Connect(
	ctx context.Context,
	mode AuthMode,
	cfg *models.GatewayConfig,
	timeout time.Duration,
) (Session, error) {
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, //nolint:gosec // gateway serves a self-signed cert
			},
		},
	}

	sess := &httpSession{
		baseURL: "https://" + cfg.Host,
		client:  httpClient,
		log:     c.log,
	}

	username := "installer"
	password := cfg.GatewayPassword
	email := cfg.CustomerEmail

	if mode == AuthModeCustomer {
		username = "customer"
		password = cfg.CustomerPassword
	}

	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
		"email":    email,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sess.baseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build login request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Endpoint: loginPath}
	}

	var login struct {
		Token string `json:"token"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}

	sess.token = login.Token

	return sess, nil
}

// httpSession is one authenticated session against the gateway API.
type httpSession struct {
	baseURL string
	token   string
	client  *http.Client
	log     logger.Logger
}

func (s *httpSession) get(ctx context.Context, path string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}

	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Endpoint: path}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}

func (s *httpSession) Power(ctx context.Context) (*models.PowerFlow, error) {
	var aggregates map[string]struct {
		InstantPower float64 `json:"instant_power"`
	}

	if err := s.get(ctx, aggregatesPath, &aggregates); err != nil {
		return nil, err
	}

	return &models.PowerFlow{
		Site:    aggregates["site"].InstantPower,
		Battery: aggregates["battery"].InstantPower,
		Load:    aggregates["load"].InstantPower,
		Solar:   aggregates["solar"].InstantPower,
	}, nil
}

func (s *httpSession) Status(ctx context.Context) (map[string]interface{}, error) {
	var status map[string]interface{}
	if err := s.get(ctx, statusPath, &status); err != nil {
		return nil, err
	}

	return status, nil
}

func (s *httpSession) Vitals(ctx context.Context) (map[string]interface{}, error) {
	var vitals map[string]interface{}
	if err := s.get(ctx, vitalsPath, &vitals); err != nil {
		return nil, err
	}

	return vitals, nil
}

func (s *httpSession) SiteName(ctx context.Context) (string, error) {
	var site struct {
		SiteName string `json:"site_name"`
	}

	if err := s.get(ctx, siteInfoPath, &site); err != nil {
		return "", err
	}

	return site.SiteName, nil
}

func (s *httpSession) Firmware(ctx context.Context) (string, error) {
	var status struct {
		Version string `json:"version"`
	}

	if err := s.get(ctx, statusPath, &status); err != nil {
		return "", err
	}

	return status.Version, nil
}

func (s *httpSession) Serial(ctx context.Context) (string, error) {
	var status struct {
		DIN string `json:"din"`
	}

	if err := s.get(ctx, statusPath, &status); err != nil {
		return "", err
	}

	return status.DIN, nil
}

func (s *httpSession) GridStatus(ctx context.Context) (string, error) {
	var grid struct {
		GridStatus string `json:"grid_status"`
	}

	if err := s.get(ctx, gridStatusPath, &grid); err != nil {
		return "", err
	}

	return grid.GridStatus, nil
}

func (s *httpSession) BatteryLevel(ctx context.Context) (float64, error) {
	var soe struct {
		Percentage float64 `json:"percentage"`
	}

	if err := s.get(ctx, soePath, &soe); err != nil {
		return 0, err
	}

	return soe.Percentage, nil
}

// Close logs out best-effort and releases idle transport connections.
// In-flight calls are left to time out naturally.
func (s *httpSession) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+logoutPath, nil)
	if err == nil {
		if s.token != "" {
			req.Header.Set("Authorization", "Bearer "+s.token)
		}

		if resp, doErr := s.client.Do(req); doErr == nil {
			_ = resp.Body.Close()
		}
	}

	s.client.CloseIdleConnections()

	return nil
}
