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

package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrxen/punchclock/pkg/models"
)

const seedJSON = `{
  "people": [
    {"id": "EMP001", "name": "Rahim Uddin", "department": "Cutting", "tier": "worker"}
  ],
  "devices": [
    {"id": "dev-b", "type": "zkteco", "address": "10.0.0.2", "status": "active"},
    {"id": "dev-a", "type": "simulated", "address": "local", "status": "inactive",
     "config": {"interval": 5}}
  ]
}`

func writeSeed(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadSeed(t *testing.T) {
	s, err := Load(writeSeed(t, seedJSON), nil)
	require.NoError(t, err)

	ctx := context.Background()

	p, err := s.FindPerson(ctx, "EMP001")
	require.NoError(t, err)
	assert.Equal(t, "Rahim Uddin", p.Name)
	assert.Equal(t, "worker", p.Tier)

	devices, err := s.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "dev-b", devices[0].ID)
	assert.Equal(t, "dev-a", devices[1].ID)
	assert.InDelta(t, 5.0, devices[1].ConfigFloat("interval", 0), 0)
	assert.False(t, devices[1].IsActive())
}

func TestLoadSeedErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"), nil)
	require.Error(t, err)

	_, err = Load(writeSeed(t, "{not json"), nil)
	require.Error(t, err)

	_, err = Load(writeSeed(t, `{"people":[{"id":"A"},{"id":"A"}]}`), nil)
	require.ErrorIs(t, err, errDuplicateID)
}

func TestLookupsReturnNotFound(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	_, err := s.FindPerson(ctx, "nobody")
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = s.FindDevice(ctx, "nothing")
	require.ErrorIs(t, err, models.ErrNotFound)

	err = s.UpdateDeviceConnectivity(ctx, "nothing", true, nil)
	require.ErrorIs(t, err, models.ErrNotFound)

	err = s.MarkScanProcessed(ctx, "nothing")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AddDevice(&models.DeviceDescriptor{
		ID:     "dev-1",
		Type:   "generic",
		Config: map[string]interface{}{"terminator": "END"},
	}))

	d, err := s.FindDevice(context.Background(), "dev-1")
	require.NoError(t, err)

	d.Config["terminator"] = "changed"
	d.Address = "changed"

	again, err := s.FindDevice(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "END", again.Config["terminator"])
	assert.Empty(t, again.Address)
}

func TestUpsertCreatesAbsentAggregate(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	s := New(func() time.Time { return now })
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	var seen models.AttendanceStatus

	agg, err := s.UpsertDailyAggregate(context.Background(), "EMP001", date, func(a *models.DailyAggregate) error {
		seen = a.Status
		a.TotalScans++

		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusAbsent, seen)
	assert.Equal(t, 1, agg.TotalScans)
	assert.Equal(t, now, agg.UpdatedAt)

	stored, ok := s.Aggregate("EMP001", date)
	require.True(t, ok)
	assert.Equal(t, 1, stored.TotalScans)
}

func TestUpsertDiscardsFailedMutation(t *testing.T) {
	s := New(nil)
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	_, err := s.UpsertDailyAggregate(ctx, "EMP001", date, func(a *models.DailyAggregate) error {
		a.TotalScans = 3
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")

	_, err = s.UpsertDailyAggregate(ctx, "EMP001", date, func(a *models.DailyAggregate) error {
		a.TotalScans = 99
		return boom
	})
	require.ErrorIs(t, err, boom)

	stored, ok := s.Aggregate("EMP001", date)
	require.True(t, ok)
	assert.Equal(t, 3, stored.TotalScans)
}

func TestConcurrentUpsertsSerialize(t *testing.T) {
	s := New(nil)
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	const writers = 50

	var wg sync.WaitGroup

	for i := 0; i < writers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := s.UpsertDailyAggregate(context.Background(), "EMP001", date, func(a *models.DailyAggregate) error {
				a.TotalScans++
				return nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	stored, ok := s.Aggregate("EMP001", date)
	require.True(t, ok)
	assert.Equal(t, writers, stored.TotalScans)
}

func TestRawScanLifecycle(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	ts := time.Date(2024, 1, 15, 8, 3, 0, 0, time.UTC)

	rec := &models.ScanRecord{ID: "scan-1", PersonID: "EMP001", DeviceID: "dev-1", ScanTime: ts, Kind: models.ScanIn}
	require.NoError(t, s.RecordRawScan(ctx, rec))
	require.ErrorIs(t, s.RecordRawScan(ctx, rec), errDuplicateID)

	require.NoError(t, s.MarkScanProcessed(ctx, "scan-1"))

	scans := s.Scans()
	require.Len(t, scans, 1)
	assert.True(t, scans[0].Processed)
	assert.False(t, scans[0].CreatedAt.IsZero())
}

func TestUpdateDeviceConnectivity(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	require.NoError(t, s.AddDevice(&models.DeviceDescriptor{ID: "dev-1", Type: "simulated"}))

	lastSync := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateDeviceConnectivity(ctx, "dev-1", true, &lastSync))

	d, err := s.FindDevice(ctx, "dev-1")
	require.NoError(t, err)
	assert.True(t, d.IsConnected)
	require.NotNil(t, d.LastSync)
	assert.Equal(t, lastSync, *d.LastSync)

	require.NoError(t, s.UpdateDeviceConnectivity(ctx, "dev-1", false, nil))

	d, err = s.FindDevice(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, d.IsConnected)
	assert.Equal(t, lastSync, *d.LastSync)
}
