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

package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/hrxen/punchclock/pkg/attendance"
	"github.com/hrxen/punchclock/pkg/models"
)

var errInvalidConfig = errors.New("invalid engine config")

const (
	defaultPollInterval        = 5 * time.Second
	defaultHealthCheckInterval = 30 * time.Second
	defaultCallTimeout         = 10 * time.Second
	defaultScanQueueSize       = 1024
	defaultEventQueueSize      = 1024
	defaultMaxConcurrency      = 16
	defaultStaleScanAge        = 24 * time.Hour
)

// Config tunes the engine loops and the attendance policy.
type Config struct {
	PollInterval        models.Duration    `json:"poll_interval"`
	HealthCheckInterval models.Duration    `json:"health_check_interval"`
	CallTimeout         models.Duration    `json:"call_timeout"`
	ScanQueueSize       int                `json:"scan_queue_size"`
	EventQueueSize      int                `json:"event_queue_size"`
	MaxConcurrency      int                `json:"max_concurrency"`
	StaleScanAge        models.Duration    `json:"stale_scan_age"`
	Attendance          attendance.Config  `json:"attendance"`
	NATS                *models.NATSConfig `json:"nats,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		PollInterval:        models.Duration(defaultPollInterval),
		HealthCheckInterval: models.Duration(defaultHealthCheckInterval),
		CallTimeout:         models.Duration(defaultCallTimeout),
		ScanQueueSize:       defaultScanQueueSize,
		EventQueueSize:      defaultEventQueueSize,
		MaxConcurrency:      defaultMaxConcurrency,
		StaleScanAge:        models.Duration(defaultStaleScanAge),
		Attendance:          attendance.DefaultConfig(),
	}
}

// Validate fills zero values with defaults and rejects negative settings.
func (c *Config) Validate() error {
	d := DefaultConfig()

	durations := []struct {
		name  string
		value *models.Duration
		def   models.Duration
	}{
		{"poll_interval", &c.PollInterval, d.PollInterval},
		{"health_check_interval", &c.HealthCheckInterval, d.HealthCheckInterval},
		{"call_timeout", &c.CallTimeout, d.CallTimeout},
		{"stale_scan_age", &c.StaleScanAge, d.StaleScanAge},
	}

	for _, f := range durations {
		if *f.value < 0 {
			return fmt.Errorf("%w: %s must not be negative", errInvalidConfig, f.name)
		}

		if *f.value == 0 {
			*f.value = f.def
		}
	}

	sizes := []struct {
		name  string
		value *int
		def   int
	}{
		{"scan_queue_size", &c.ScanQueueSize, d.ScanQueueSize},
		{"event_queue_size", &c.EventQueueSize, d.EventQueueSize},
		{"max_concurrency", &c.MaxConcurrency, d.MaxConcurrency},
	}

	for _, f := range sizes {
		if *f.value < 0 {
			return fmt.Errorf("%w: %s must not be negative", errInvalidConfig, f.name)
		}

		if *f.value == 0 {
			*f.value = f.def
		}
	}

	if _, err := attendance.NewPolicy(c.Attendance); err != nil {
		return fmt.Errorf("%w: attendance: %w", errInvalidConfig, err)
	}

	return c.NATS.Validate()
}
