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
	"errors"
	"time"

	"github.com/carverauto/gridwatch/pkg/logger"
	"github.com/carverauto/gridwatch/pkg/models"
)

const (
	defaultPollInterval       = 30 * time.Second
	defaultHealthInterval     = 60 * time.Second
	defaultHealthInitialDelay = 10 * time.Second
	defaultListenAddr         = ":8090"
	defaultMaxCycleFailures   = 10
	defaultLinkCooldown       = 5 * time.Minute
)

var (
	errGatewayHostRequired        = errors.New("gateway.host is required")
	errGatewayCredentialsRequired = errors.New("either gateway.gateway_password or gateway.customer_email/customer_password must be set")
)

// Config is the top-level service configuration, loaded from a JSON file.
type Config struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	APIKey     string `json:"api_key,omitempty"`

	PollInterval       models.Duration `json:"poll_interval,omitempty"`
	HealthInterval     models.Duration `json:"health_interval,omitempty"`
	HealthInitialDelay models.Duration `json:"health_initial_delay,omitempty"`

	// MaxCycleFailures is the escape valve: after this many consecutive
	// failed poll cycles the connectivity circuit is forcibly reset.
	MaxCycleFailures int `json:"max_cycle_failures,omitempty"`

	Gateway    models.GatewayConfig     `json:"gateway"`
	Timeseries *models.TimeseriesConfig `json:"timeseries,omitempty"`
	Events     *models.EventsConfig     `json:"events,omitempty"`
	Link       *models.LinkConfig       `json:"link,omitempty"`
	Logging    *logger.Config           `json:"logging,omitempty"`
}

// Validate checks the parts of the config without workable defaults.
func (c *Config) Validate() error {
	if c.Gateway.Host == "" {
		return errGatewayHostRequired
	}

	hasGatewayAuth := c.Gateway.GatewayPassword != ""
	hasCustomerAuth := c.Gateway.CustomerEmail != "" && c.Gateway.CustomerPassword != ""

	if !hasGatewayAuth && !hasCustomerAuth {
		return errGatewayCredentialsRequired
	}

	return nil
}

func (c *Config) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return time.Duration(c.PollInterval)
	}

	return defaultPollInterval
}

func (c *Config) healthInterval() time.Duration {
	if c.HealthInterval > 0 {
		return time.Duration(c.HealthInterval)
	}

	return defaultHealthInterval
}

func (c *Config) healthInitialDelay() time.Duration {
	if c.HealthInitialDelay > 0 {
		return time.Duration(c.HealthInitialDelay)
	}

	return defaultHealthInitialDelay
}

func (c *Config) maxCycleFailures() int {
	if c.MaxCycleFailures > 0 {
		return c.MaxCycleFailures
	}

	return defaultMaxCycleFailures
}

func (c *Config) listenAddr() string {
	if c.ListenAddr != "" {
		return c.ListenAddr
	}

	return defaultListenAddr
}

func (c *Config) linkCooldown() time.Duration {
	if c.Link != nil && c.Link.Cooldown > 0 {
		return time.Duration(c.Link.Cooldown)
	}

	return defaultLinkCooldown
}

// HealthPublisherOptions returns the tuning for the background
// health-publish loop.
func (c *Config) HealthPublisherOptions() (interval, initialDelay time.Duration) {
	return c.healthInterval(), c.healthInitialDelay()
}
