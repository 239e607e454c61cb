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

// Package engine composes the fleet, scan pipeline, health monitor and event
// distributor into one supervised lifetime.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hrxen/punchclock/pkg/attendance"
	"github.com/hrxen/punchclock/pkg/clock"
	"github.com/hrxen/punchclock/pkg/device"
	"github.com/hrxen/punchclock/pkg/events"
	"github.com/hrxen/punchclock/pkg/fleet"
	"github.com/hrxen/punchclock/pkg/health"
	"github.com/hrxen/punchclock/pkg/logger"
	"github.com/hrxen/punchclock/pkg/models"
	"github.com/hrxen/punchclock/pkg/pipeline"
)

var (
	ErrAlreadyRunning = errors.New("engine already running")
	ErrNotRunning     = errors.New("engine not running")
)

// SinkFactory opens an event sink that is subscribed on every Start and
// closed on Stop.
type SinkFactory func(ctx context.Context) (events.Subscriber, error)

type Option func(*Engine)

func WithRegistry(r device.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithEventSink(f SinkFactory) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, f) }
}

// Engine owns the device fleet and the four loops. The zero value is not
// usable; construct with New.
type Engine struct {
	cfg      Config
	store    pipeline.Store
	registry device.Registry
	clock    clock.Clock
	logger   logger.Logger
	policy   *attendance.Policy
	fleet    *fleet.Fleet
	sinks    []SinkFactory

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	loops   sync.WaitGroup
	dist    *events.Distributor
	monitor *health.Monitor
	scans   chan models.NormalizedScan

	cursorMu sync.Mutex
	cursors  map[string]time.Time

	// sinkIDs[i] is the subscriber id opened from sinks[i], "" when closed.
	sinkMu  sync.Mutex
	sinkIDs []string
}

func New(cfg Config, store pipeline.Store, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	policy, err := attendance.NewPolicy(cfg.Attendance)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		store:   store,
		policy:  policy,
		cursors: make(map[string]time.Time),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.registry == nil {
		e.registry = device.NewDefaultRegistry()
	}

	if e.clock == nil {
		e.clock = clock.Real()
	}

	if e.logger == nil {
		e.logger = logger.NewTestLogger()
	}

	if cfg.NATS.Enabled() {
		natsCfg := cfg.NATS
		log := e.logger

		e.sinks = append(e.sinks, func(ctx context.Context) (events.Subscriber, error) {
			return events.ConnectNATS(ctx, natsCfg, log)
		})
	}

	e.fleet = fleet.New(e.registry, device.Options{
		Logger:   e.logger,
		Location: policy.Location(),
		Timeout:  time.Duration(cfg.CallTimeout),
		Now:      e.clock.Now,
	}, fleet.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		CallTimeout:    time.Duration(cfg.CallTimeout),
	}, e.logger)

	return e, nil
}

// Start loads the active devices, connects them and launches the poll,
// pipeline, distributor and health loops. The loops outlive ctx; they run
// until Stop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrAlreadyRunning
	}

	descs, err := e.store.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("load devices: %w", err)
	}

	active := make([]*models.DeviceDescriptor, 0, len(descs))

	for _, d := range descs {
		if d.IsActive() {
			active = append(active, d)
		}
	}

	for id, err := range e.fleet.AddDevices(active) {
		e.logger.Error().Err(err).Str("device_id", id).Msg("device excluded from fleet")
	}

	dist := events.NewDistributor(events.Config{
		QueueSize: e.cfg.EventQueueSize,
		Now:       e.clock.Now,
	}, e.logger)

	scans := make(chan models.NormalizedScan, e.cfg.ScanQueueSize)

	proc := pipeline.New(e.store, e.policy, dist, pipeline.Config{
		StaleScanAge: time.Duration(e.cfg.StaleScanAge),
		Now:          e.clock.Now,
	}, e.logger)

	monitor := health.NewMonitor(e.fleet, e.store, dist, health.Options{
		Interval:    time.Duration(e.cfg.HealthCheckInterval),
		Clock:       e.clock,
		Logger:      e.logger,
		Subscribers: dist.Count,
		QueueDepth:  func() int { return len(scans) },
		Repair:      func(ctx context.Context) { e.ensureSinks(ctx, dist) },
	})

	connected := e.fleet.ConnectAll(ctx)
	monitor.Seed(connected)

	for id, res := range connected {
		if !res.OK {
			e.logger.Warn().Err(res.Err).Str("device_id", id).Msg("device failed to connect")
		}
	}

	e.sinkMu.Lock()
	e.sinkIDs = make([]string, len(e.sinks))
	e.sinkMu.Unlock()

	e.ensureSinks(ctx, dist)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	e.dist = dist
	e.monitor = monitor
	e.scans = scans
	e.cancel = cancel
	e.resetCursors()

	e.goLoop(func() { dist.Run(runCtx) })
	e.goLoop(func() { proc.Run(runCtx, scans) })
	e.goLoop(func() { monitor.Run(runCtx) })
	e.goLoop(func() { e.pollLoop(runCtx, scans) })

	now := e.clock.Now()

	for _, id := range e.fleet.DeviceIDs() {
		if res, ok := connected[id]; ok && res.OK {
			ev := models.NewEvent(models.EventDeviceConnected, id, map[string]interface{}{
				"message": "device connected",
			}, now)

			if err := dist.Publish(runCtx, ev); err != nil {
				e.logger.Warn().Err(err).Str("device_id", id).Msg("failed to publish event")
			}
		}
	}

	e.running = true

	total, up := e.fleet.Stats()
	e.logger.Info().
		Int("total_devices", total).
		Int("connected_devices", up).
		Msg("attendance engine started")

	return nil
}

// ensureSinks opens every configured sink that is not subscribed, including
// sinks the distributor dropped after a failed delivery.
func (e *Engine) ensureSinks(ctx context.Context, dist *events.Distributor) {
	e.sinkMu.Lock()
	defer e.sinkMu.Unlock()

	for i, open := range e.sinks {
		if id := e.sinkIDs[i]; id != "" {
			if dist.Has(id) {
				continue
			}

			e.logger.Error().Str("subscriber_id", id).Msg("event sink was dropped, reopening")
			e.sinkIDs[i] = ""
		}

		openCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.CallTimeout))
		sink, err := open(openCtx)

		if err != nil {
			cancel()
			e.logger.Warn().Err(err).Msg("event sink unavailable")

			continue
		}

		err = dist.Subscribe(openCtx, sink)
		cancel()

		if err != nil {
			e.logger.Warn().Err(err).Str("subscriber_id", sink.ID()).Msg("event sink rejected")
			continue
		}

		e.sinkIDs[i] = sink.ID()
	}
}

func (e *Engine) goLoop(fn func()) {
	e.loops.Add(1)

	go func() {
		defer e.loops.Done()
		fn()
	}()
}

// Stop ends the loops, disconnects every adapter once, closes every
// subscriber and empties the fleet so a later Start can register the same
// devices again.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}

	e.cancel()

	stopped := make(chan struct{})

	go func() {
		e.loops.Wait()
		close(stopped)
	}()

	var waitErr error

	select {
	case <-stopped:
	case <-ctx.Done():
		waitErr = fmt.Errorf("waiting for engine loops: %w", ctx.Err())
	}

	for id, res := range e.fleet.DisconnectAll(context.WithoutCancel(ctx)) {
		if !res.OK {
			e.logger.Warn().Err(res.Err).Str("device_id", id).Msg("device disconnect failed")
		}
	}

	e.dist.Close()
	e.fleet.Reset()
	e.running = false

	e.logger.Info().Msg("attendance engine stopped")

	return waitErr
}

// Status reports the operational snapshot.
func (e *Engine) Status() models.SystemStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	total, connected := e.fleet.Stats()

	status := models.SystemStatus{
		IsRunning:        e.running,
		TotalDevices:     total,
		ConnectedDevices: connected,
	}

	if !e.running {
		return status
	}

	status.TotalSubscribers = e.dist.Count()
	status.PendingScanQueueDepth = len(e.scans)
	status.LastHealthCheck = e.monitor.LastCheck()

	return status
}

// Subscribe registers a live subscriber with the running distributor.
func (e *Engine) Subscribe(ctx context.Context, sub events.Subscriber) error {
	e.mu.RLock()
	dist := e.dist
	running := e.running
	e.mu.RUnlock()

	if !running {
		_ = sub.Close()
		return ErrNotRunning
	}

	return dist.Subscribe(ctx, sub)
}

// Unsubscribe removes a subscriber, reporting whether it was registered.
func (e *Engine) Unsubscribe(id string) bool {
	e.mu.RLock()
	dist := e.dist
	running := e.running
	e.mu.RUnlock()

	if !running {
		return false
	}

	return dist.Unsubscribe(id)
}

func (e *Engine) pollLoop(ctx context.Context, scans chan<- models.NormalizedScan) {
	ticker := e.clock.Ticker(time.Duration(e.cfg.PollInterval))
	defer ticker.Stop()

	e.pollOnce(ctx, scans)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			e.pollOnce(ctx, scans)
		}
	}
}

// pollOnce runs one cycle. A device's cursor moves to the cycle start only
// when its poll succeeds, so a failed poll is retried from the same point.
func (e *Engine) pollOnce(ctx context.Context, scans chan<- models.NormalizedScan) {
	cycleStart := e.clock.Now()

	e.fleet.PollEach(ctx, e.cursor, func(id string, batch []models.NormalizedScan) {
		for _, s := range batch {
			select {
			case scans <- s:
			case <-ctx.Done():
				return
			}
		}

		e.advanceCursor(id, cycleStart)
	})
}

func (e *Engine) cursor(id string) *time.Time {
	e.cursorMu.Lock()
	defer e.cursorMu.Unlock()

	since, ok := e.cursors[id]
	if !ok {
		since = e.clock.Now().Add(-time.Duration(e.cfg.StaleScanAge))
		e.cursors[id] = since
	}

	return &since
}

func (e *Engine) advanceCursor(id string, to time.Time) {
	e.cursorMu.Lock()
	e.cursors[id] = to
	e.cursorMu.Unlock()
}

func (e *Engine) resetCursors() {
	e.cursorMu.Lock()
	e.cursors = make(map[string]time.Time)
	e.cursorMu.Unlock()
}
