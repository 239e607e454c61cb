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

// Package health probes every device on a fixed interval, writes
// connectivity back to the store and reports system status.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hrxen/punchclock/pkg/clock"
	"github.com/hrxen/punchclock/pkg/fleet"
	"github.com/hrxen/punchclock/pkg/logger"
	"github.com/hrxen/punchclock/pkg/models"
)

const defaultInterval = 30 * time.Second

// Prober tests every registered device.
type Prober interface {
	TestAllConnections(ctx context.Context) map[string]fleet.Result
}

// ConnectivityStore records device reachability.
type ConnectivityStore interface {
	UpdateDeviceConnectivity(ctx context.Context, deviceID string, connected bool, lastSync *time.Time) error
}

// Publisher accepts events for distribution.
type Publisher interface {
	Publish(ctx context.Context, ev *models.Event) error
}

type Options struct {
	Interval time.Duration
	Clock    clock.Clock
	Logger   logger.Logger
	// Subscribers and QueueDepth feed the system_status payload.
	Subscribers func() int
	QueueDepth  func() int
	// Repair runs at the start of every cycle, before the devices are probed.
	Repair func(ctx context.Context)
}

type Monitor struct {
	prober    Prober
	store     ConnectivityStore
	publisher Publisher
	interval  time.Duration
	clock     clock.Clock
	logger    logger.Logger

	subscribers func() int
	queueDepth  func() int
	repair      func(ctx context.Context)

	mu        sync.Mutex
	state     map[string]bool
	lastCheck *time.Time
}

func NewMonitor(prober Prober, store ConnectivityStore, publisher Publisher, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}

	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	if opts.Logger == nil {
		opts.Logger = logger.NewTestLogger()
	}

	zero := func() int { return 0 }

	if opts.Subscribers == nil {
		opts.Subscribers = zero
	}

	if opts.QueueDepth == nil {
		opts.QueueDepth = zero
	}

	return &Monitor{
		prober:      prober,
		store:       store,
		publisher:   publisher,
		interval:    opts.Interval,
		clock:       opts.Clock,
		logger:      opts.Logger,
		subscribers: opts.Subscribers,
		queueDepth:  opts.QueueDepth,
		repair:      opts.Repair,
		state:       make(map[string]bool),
	}
}

// Seed records known connectivity, typically the connect-all results at
// start, so the first cycle only reports real changes.
func (m *Monitor) Seed(results map[string]fleet.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, res := range results {
		m.state[id] = res.OK
	}
}

// Run performs a check immediately and then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", m.interval).Msg("health monitor started")

	m.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("health monitor stopped")
			return
		case <-ticker.Chan():
			m.Check(ctx)
		}
	}
}

// Check runs one probe cycle. A failure for one device never stops the
// cycle for the others.
func (m *Monitor) Check(ctx context.Context) {
	if m.repair != nil {
		m.repair(ctx)
	}

	now := m.clock.Now()
	results := m.prober.TestAllConnections(ctx)

	if ctx.Err() != nil {
		return
	}

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	devices := make(map[string]bool, len(results))
	connected := 0

	m.mu.Lock()
	previous := m.state
	m.mu.Unlock()

	for _, id := range ids {
		res := results[id]
		devices[id] = res.OK

		var lastSync *time.Time

		if res.OK {
			connected++

			ts := now
			lastSync = &ts
		}

		if err := m.store.UpdateDeviceConnectivity(ctx, id, res.OK, lastSync); err != nil {
			m.logger.Warn().Err(err).Str("device_id", id).Msg("failed to record device connectivity")
		}

		if was, known := previous[id]; known && was == res.OK {
			continue
		}

		m.publish(ctx, connectivityEvent(id, res, now))
	}

	m.mu.Lock()
	m.state = devices
	m.lastCheck = &now
	m.mu.Unlock()

	m.publish(ctx, models.NewEvent(models.EventSystemStatus, models.SystemDeviceID, map[string]interface{}{
		"devices":           devices,
		"total_devices":     len(devices),
		"connected_devices": connected,
		"total_subscribers": m.subscribers(),
		"queue_size":        m.queueDepth(),
	}, now))

	m.logger.Debug().
		Int("total_devices", len(devices)).
		Int("connected_devices", connected).
		Msg("health check complete")
}

// LastCheck returns when the last full cycle finished, or nil.
func (m *Monitor) LastCheck() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastCheck == nil {
		return nil
	}

	t := *m.lastCheck

	return &t
}

func (m *Monitor) publish(ctx context.Context, ev *models.Event) {
	if m.publisher == nil {
		return
	}

	if err := m.publisher.Publish(ctx, ev); err != nil {
		m.logger.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("failed to publish event")
	}
}

func connectivityEvent(id string, res fleet.Result, now time.Time) *models.Event {
	if res.OK {
		return models.NewEvent(models.EventDeviceConnected, id, map[string]interface{}{
			"message": "device reachable",
		}, now)
	}

	data := map[string]interface{}{"message": "device unreachable"}
	if res.Err != nil {
		data["error"] = res.Err.Error()
	}

	return models.NewEvent(models.EventDeviceDisconnected, id, data, now)
}
