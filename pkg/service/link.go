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
	"fmt"
	"os/exec"

	"github.com/carverauto/gridwatch/pkg/logger"
	"github.com/carverauto/gridwatch/pkg/models"
)

// LinkManager attempts to (re)associate the local network link to the
// gateway's access point. Association mechanics are deliberately behind
// this boundary; the orchestrator only triggers a join on gateway failure,
// at most once per cooldown.
type LinkManager interface {
	Join(ctx context.Context) error
}

// NoopLinkManager satisfies LinkManager without doing anything. Used when
// link supervision is disabled or the host manages its own network.
type NoopLinkManager struct{}

func (NoopLinkManager) Join(context.Context) error { return nil }

// NMCLILinkManager joins the configured SSID through NetworkManager's CLI.
type NMCLILinkManager struct {
	cfg *models.LinkConfig
	log logger.Logger

	// runner is swapped in tests.
	runner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewNMCLILinkManager creates a link manager that shells out to nmcli.
func NewNMCLILinkManager(cfg *models.LinkConfig, log logger.Logger) *NMCLILinkManager {
	return &NMCLILinkManager{
		cfg: cfg,
		log: log,
		runner: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Join attempts one association with the configured network.
func (m *NMCLILinkManager) Join(ctx context.Context) error {
	args := []string{"device", "wifi", "connect", m.cfg.SSID}

	if m.cfg.Password != "" {
		args = append(args, "password", m.cfg.Password)
	}

	if m.cfg.Interface != "" {
		args = append(args, "ifname", m.cfg.Interface)
	}

	m.log.Info().
		Str("ssid", m.cfg.SSID).
		Str("interface", m.cfg.Interface).
		Msg("Attempting to join gateway network")

	output, err := m.runner(ctx, "nmcli", args...)
	if err != nil {
		return fmt.Errorf("nmcli join failed: %w: %s", err, string(output))
	}

	return nil
}

// NewLinkManager picks the implementation for the given config. A nil or
// disabled config yields nil, which turns link supervision off entirely.
func NewLinkManager(cfg *models.LinkConfig, log logger.Logger) LinkManager {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	if cfg.SSID == "" {
		log.Warn().Msg("Link supervision enabled without an SSID, disabling")
		return nil
	}

	return NewNMCLILinkManager(cfg, log)
}
