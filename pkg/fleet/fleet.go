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

// Package fleet owns the set of device adapters and fans operations out to them.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hrxen/punchclock/pkg/device"
	"github.com/hrxen/punchclock/pkg/logger"
	"github.com/hrxen/punchclock/pkg/models"
)

var (
	ErrDeviceExists   = errors.New("device already registered")
	ErrDeviceNotFound = errors.New("device not registered")
	ErrAdapterPanic   = errors.New("adapter panicked")
)

const (
	defaultCallTimeout    = 10 * time.Second
	defaultMaxConcurrency = 16
)

// Result is the outcome of one adapter call during a fan-out.
type Result struct {
	OK  bool
	Err error
}

type Config struct {
	// MaxConcurrency bounds simultaneous adapter calls in one fan-out.
	MaxConcurrency int
	// CallTimeout bounds each adapter call.
	CallTimeout time.Duration
}

// Fleet is the device registry. Registration takes the write lock; fan-outs
// work on a snapshot so a slow device never holds the lock.
type Fleet struct {
	registry device.Registry
	opts     device.Options
	cfg      Config
	logger   logger.Logger

	mu       sync.RWMutex
	adapters map[string]device.Adapter
	order    []string

	// inflight marks devices whose ListScansSince has not returned yet.
	inflightMu sync.Mutex
	inflight   map[string]bool
}

func New(registry device.Registry, opts device.Options, cfg Config, log logger.Logger) *Fleet {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}

	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	if opts.Logger == nil {
		opts.Logger = log
	}

	return &Fleet{
		registry: registry,
		opts:     opts,
		cfg:      cfg,
		logger:   log,
		adapters: make(map[string]device.Adapter),
		inflight: make(map[string]bool),
	}
}

// AddDevice builds an adapter through the registry and registers it.
func (f *Fleet) AddDevice(desc *models.DeviceDescriptor) error {
	f.mu.RLock()
	_, exists := f.adapters[desc.ID]
	f.mu.RUnlock()

	if exists {
		return fmt.Errorf("%w: %s", ErrDeviceExists, desc.ID)
	}

	adapter, err := f.registry.Create(desc, f.opts)
	if err != nil {
		return fmt.Errorf("device %s: %w", desc.ID, err)
	}

	return f.AddAdapter(adapter)
}

// AddAdapter registers an already constructed adapter.
func (f *Fleet) AddAdapter(adapter device.Adapter) error {
	id := adapter.ID()

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.adapters[id]; exists {
		return fmt.Errorf("%w: %s", ErrDeviceExists, id)
	}

	f.adapters[id] = adapter
	f.order = append(f.order, id)

	f.logger.Info().Str("device_id", id).Str("type", adapter.Type()).Msg("Device registered")

	return nil
}

// AddDevices registers each descriptor independently and returns the
// failures keyed by device id.
func (f *Fleet) AddDevices(descs []*models.DeviceDescriptor) map[string]error {
	failures := make(map[string]error)

	for _, desc := range descs {
		if err := f.AddDevice(desc); err != nil {
			f.logger.Error().Str("device_id", desc.ID).Err(err).Msg("Failed to register device")
			failures[desc.ID] = err
		}
	}

	return failures
}

// RemoveDevice unregisters and disconnects one device.
func (f *Fleet) RemoveDevice(ctx context.Context, id string) error {
	f.mu.Lock()
	adapter, ok := f.adapters[id]

	if ok {
		delete(f.adapters, id)

		for i, existing := range f.order {
			if existing == id {
				f.order = append(f.order[:i], f.order[i+1:]...)
				break
			}
		}
	}
	f.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	_, err := invoke(ctx, f.cfg.CallTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, adapter.Disconnect(ctx)
	})

	return err
}

// Reset forgets every adapter without touching the devices.
func (f *Fleet) Reset() {
	f.mu.Lock()
	f.adapters = make(map[string]device.Adapter)
	f.order = nil
	f.mu.Unlock()

	f.inflightMu.Lock()
	f.inflight = make(map[string]bool)
	f.inflightMu.Unlock()
}

// DeviceIDs returns ids in registration order.
func (f *Fleet) DeviceIDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return append([]string(nil), f.order...)
}

func (f *Fleet) Stats() (total, connected int) {
	for _, a := range f.snapshot() {
		total++

		if a.IsConnected() {
			connected++
		}
	}

	return total, connected
}

func (f *Fleet) snapshot() []device.Adapter {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]device.Adapter, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.adapters[id])
	}

	return out
}

func (f *Fleet) ConnectAll(ctx context.Context) map[string]Result {
	return f.fanOut(ctx, "connect", func(ctx context.Context, a device.Adapter) error {
		return a.Connect(ctx)
	})
}

func (f *Fleet) DisconnectAll(ctx context.Context) map[string]Result {
	return f.fanOut(ctx, "disconnect", func(ctx context.Context, a device.Adapter) error {
		return a.Disconnect(ctx)
	})
}

func (f *Fleet) TestAllConnections(ctx context.Context) map[string]Result {
	return f.fanOut(ctx, "test", func(ctx context.Context, a device.Adapter) error {
		return a.TestConnection(ctx)
	})
}

// fanOut runs op against every adapter, bounded by MaxConcurrency. Each
// device gets its own result; nothing is cancelled on a sibling failure.
func (f *Fleet) fanOut(ctx context.Context, op string, fn func(context.Context, device.Adapter) error) map[string]Result {
	adapters := f.snapshot()
	results := make(map[string]Result, len(adapters))

	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(f.cfg.MaxConcurrency)

	for _, a := range adapters {
		g.Go(func() error {
			_, err := invoke(ctx, f.cfg.CallTimeout, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, fn(ctx, a)
			})

			if err != nil {
				recordFailure(ctx, op)
				f.logger.Warn().Str("device_id", a.ID()).Str("operation", op).Err(err).Msg("Device call failed")
			}

			mu.Lock()
			results[a.ID()] = Result{OK: err == nil, Err: err}
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()

	return results
}

// PollAll queries every connected adapter and concatenates the batches.
// Order within a device is preserved; order across devices is not defined.
func (f *Fleet) PollAll(ctx context.Context, since *time.Time) []models.NormalizedScan {
	var (
		mu  sync.Mutex
		all []models.NormalizedScan
	)

	f.PollEach(ctx, func(string) *time.Time { return since }, func(_ string, scans []models.NormalizedScan) {
		mu.Lock()
		all = append(all, scans...)
		mu.Unlock()
	})

	return all
}

// PollEach queries every connected adapter concurrently and hands each
// successful batch, possibly empty, to emit as soon as that device answers.
// Devices whose previous call is still outstanding are skipped. emit may be
// called from several goroutines.
func (f *Fleet) PollEach(
	ctx context.Context,
	since func(deviceID string) *time.Time,
	emit func(deviceID string, scans []models.NormalizedScan),
) {
	g := new(errgroup.Group)
	g.SetLimit(f.cfg.MaxConcurrency)

	for _, a := range f.snapshot() {
		if !a.IsConnected() {
			continue
		}

		id := a.ID()
		if !f.acquire(id) {
			f.logger.Debug().Str("device_id", id).Msg("Skipping poll, previous call still in flight")
			continue
		}

		g.Go(func() error {
			start := time.Now()

			scans, err := invokeTracked(ctx, f.cfg.CallTimeout, func(ctx context.Context) ([]models.NormalizedScan, error) {
				return a.ListScansSince(ctx, since(id))
			}, func() { f.release(id) })

			recordPoll(ctx, id, len(scans), time.Since(start))

			if err != nil {
				recordFailure(ctx, "poll")
				f.logger.Warn().Str("device_id", id).Err(err).Msg("Failed to poll device")

				return nil
			}

			emit(id, scans)

			return nil
		})
	}

	_ = g.Wait()
}

func (f *Fleet) acquire(id string) bool {
	f.inflightMu.Lock()
	defer f.inflightMu.Unlock()

	if f.inflight[id] {
		return false
	}

	f.inflight[id] = true

	return true
}

func (f *Fleet) release(id string) {
	f.inflightMu.Lock()
	delete(f.inflight, id)
	f.inflightMu.Unlock()
}
