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

// Package memory provides an in-process attendance store, seeded from a JSON
// file. It backs single-node deployments and tests.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/hrxen/punchclock/pkg/models"
	"github.com/hrxen/punchclock/pkg/pipeline"
)

var (
	errEmptyID     = errors.New("record id is required")
	errDuplicateID = errors.New("duplicate record id")
)

// Seed is the on-disk layout of a store seed file.
type Seed struct {
	Devices []*models.DeviceDescriptor `json:"devices"`
	People  []*models.Person           `json:"people"`
}

// aggregateKey uniquely identifies a stored daily aggregate.
type aggregateKey struct {
	personID string
	date     string
}

// Store implements pipeline.Store in memory.
type Store struct {
	mu         sync.RWMutex
	people     map[string]*models.Person
	devices    map[string]*models.DeviceDescriptor
	order      []string
	aggregates map[aggregateKey]*models.DailyAggregate
	scans      map[string]*models.ScanRecord
	now        func() time.Time
}

var _ pipeline.Store = (*Store)(nil)

// New returns an empty store. now may be nil.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}

	return &Store{
		people:     make(map[string]*models.Person),
		devices:    make(map[string]*models.DeviceDescriptor),
		aggregates: make(map[aggregateKey]*models.DailyAggregate),
		scans:      make(map[string]*models.ScanRecord),
		now:        now,
	}
}

// Load reads a seed file and returns a store holding its records.
func Load(path string, now func() time.Time) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	s := New(now)
	if err := s.Apply(&seed); err != nil {
		return nil, fmt.Errorf("seed file %s: %w", path, err)
	}

	return s, nil
}

// Apply adds every record of the seed. Devices keep their seed order.
func (s *Store) Apply(seed *Seed) error {
	for _, p := range seed.People {
		if err := s.AddPerson(p); err != nil {
			return err
		}
	}

	for _, d := range seed.Devices {
		if err := s.AddDevice(d); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) AddPerson(p *models.Person) error {
	if p == nil || p.ID == "" {
		return errEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.people[p.ID]; ok {
		return fmt.Errorf("%w: person %s", errDuplicateID, p.ID)
	}

	c := *p
	s.people[p.ID] = &c

	return nil
}

func (s *Store) AddDevice(d *models.DeviceDescriptor) error {
	if d == nil || d.ID == "" {
		return errEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[d.ID]; ok {
		return fmt.Errorf("%w: device %s", errDuplicateID, d.ID)
	}

	s.devices[d.ID] = cloneDevice(d)
	s.order = append(s.order, d.ID)

	return nil
}

func (s *Store) FindPerson(_ context.Context, personID string) (*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.people[personID]
	if !ok {
		return nil, fmt.Errorf("%w: person %s", models.ErrNotFound, personID)
	}

	c := *p

	return &c, nil
}

func (s *Store) FindDevice(_ context.Context, deviceID string) (*models.DeviceDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: device %s", models.ErrNotFound, deviceID)
	}

	return cloneDevice(d), nil
}

func (s *Store) ListDevices(_ context.Context) ([]*models.DeviceDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.DeviceDescriptor, 0, len(s.order))

	for _, id := range s.order {
		out = append(out, cloneDevice(s.devices[id]))
	}

	return out, nil
}

// UpsertDailyAggregate runs mutate on a copy under the store lock and only
// commits it when mutate succeeds.
func (s *Store) UpsertDailyAggregate(
	_ context.Context, personID string, date time.Time, mutate pipeline.AggregateMutator,
) (*models.DailyAggregate, error) {
	key := aggregateKey{personID: personID, date: models.DateKey(date)}

	s.mu.Lock()
	defer s.mu.Unlock()

	agg := s.aggregates[key].Clone()
	if agg == nil {
		agg = models.NewDailyAggregate(personID, date)
	}

	if err := mutate(agg); err != nil {
		return nil, err
	}

	agg.UpdatedAt = s.now()
	s.aggregates[key] = agg

	return agg.Clone(), nil
}

func (s *Store) RecordRawScan(_ context.Context, rec *models.ScanRecord) error {
	if rec == nil || rec.ID == "" {
		return errEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scans[rec.ID]; ok {
		return fmt.Errorf("%w: scan %s", errDuplicateID, rec.ID)
	}

	c := *rec
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}

	s.scans[rec.ID] = &c

	return nil
}

func (s *Store) MarkScanProcessed(_ context.Context, scanID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.scans[scanID]
	if !ok {
		return fmt.Errorf("%w: scan %s", models.ErrNotFound, scanID)
	}

	rec.Processed = true

	return nil
}

func (s *Store) UpdateDeviceConnectivity(_ context.Context, deviceID string, connected bool, lastSync *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: device %s", models.ErrNotFound, deviceID)
	}

	d.IsConnected = connected

	if lastSync != nil {
		t := *lastSync
		d.LastSync = &t
	}

	return nil
}

// Aggregate returns the stored aggregate for a person and date.
func (s *Store) Aggregate(personID string, date time.Time) (*models.DailyAggregate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg, ok := s.aggregates[aggregateKey{personID: personID, date: models.DateKey(date)}]

	return agg.Clone(), ok
}

// Scans returns the recorded raw scans ordered by scan time.
func (s *Store) Scans() []models.ScanRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ScanRecord, 0, len(s.scans))
	for _, rec := range s.scans {
		out = append(out, *rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ScanTime.Equal(out[j].ScanTime) {
			return out[i].ID < out[j].ID
		}

		return out[i].ScanTime.Before(out[j].ScanTime)
	})

	return out
}

func cloneDevice(d *models.DeviceDescriptor) *models.DeviceDescriptor {
	c := *d

	if d.Config != nil {
		c.Config = make(map[string]interface{}, len(d.Config))
		for k, v := range d.Config {
			c.Config[k] = v
		}
	}

	if d.LastSync != nil {
		t := *d.LastSync
		c.LastSync = &t
	}

	return &c
}
