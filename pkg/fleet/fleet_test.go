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

package fleet

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hrxen/punchclock/pkg/device"
	"github.com/hrxen/punchclock/pkg/logger"
	"github.com/hrxen/punchclock/pkg/models"
)

var errRefused = errors.New("connection refused")

func newTestFleet(cfg Config) *Fleet {
	return New(device.NewDefaultRegistry(), device.Options{Location: time.UTC}, cfg, logger.NewTestLogger())
}

func newMockAdapter(ctrl *gomock.Controller, id string) *device.MockAdapter {
	m := device.NewMockAdapter(ctrl)
	m.EXPECT().ID().Return(id).AnyTimes()
	m.EXPECT().Type().Return("mock").AnyTimes()

	return m
}

func scanFor(deviceID, personID string) models.NormalizedScan {
	return models.NormalizedScan{
		PersonID:  personID,
		DeviceID:  deviceID,
		Timestamp: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
		Kind:      models.ScanIn,
		Valid:     true,
	}
}

func TestAddDevicesIsolatesUnknownType(t *testing.T) {
	f := newTestFleet(Config{})

	failures := f.AddDevices([]*models.DeviceDescriptor{
		{ID: "sim-1", Type: device.TypeSimulated},
		{ID: "bad-1", Type: "hikvision"},
		{ID: "sim-2", Type: device.TypeSimulated},
	})

	require.Len(t, failures, 1)
	require.ErrorIs(t, failures["bad-1"], device.ErrUnsupportedDeviceType)
	assert.Equal(t, []string{"sim-1", "sim-2"}, f.DeviceIDs())
}

func TestAddDeviceDuplicate(t *testing.T) {
	f := newTestFleet(Config{})

	require.NoError(t, f.AddDevice(&models.DeviceDescriptor{ID: "sim-1", Type: device.TypeSimulated}))
	err := f.AddDevice(&models.DeviceDescriptor{ID: "sim-1", Type: device.TypeSimulated})
	require.ErrorIs(t, err, ErrDeviceExists)
}

func TestConnectAllCollectsPerDeviceResults(t *testing.T) {
	ctrl := gomock.NewController(t)

	ok := newMockAdapter(ctrl, "ok")
	ok.EXPECT().Connect(gomock.Any()).Return(nil)

	refused := newMockAdapter(ctrl, "refused")
	refused.EXPECT().Connect(gomock.Any()).Return(errRefused)

	panicky := newMockAdapter(ctrl, "panicky")
	panicky.EXPECT().Connect(gomock.Any()).DoAndReturn(func(context.Context) error {
		panic("firmware bug")
	})

	f := newTestFleet(Config{MaxConcurrency: 2})
	for _, a := range []device.Adapter{ok, refused, panicky} {
		require.NoError(t, f.AddAdapter(a))
	}

	results := f.ConnectAll(context.Background())

	require.Len(t, results, 3)
	assert.True(t, results["ok"].OK)
	assert.False(t, results["refused"].OK)
	require.ErrorIs(t, results["refused"].Err, errRefused)
	assert.False(t, results["panicky"].OK)
	require.ErrorIs(t, results["panicky"].Err, ErrAdapterPanic)
}

func TestTestAllConnectionsTimesOutHungDevice(t *testing.T) {
	ctrl := gomock.NewController(t)

	hung := newMockAdapter(ctrl, "hung")
	hung.EXPECT().TestConnection(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	fine := newMockAdapter(ctrl, "fine")
	fine.EXPECT().TestConnection(gomock.Any()).Return(nil)

	f := newTestFleet(Config{CallTimeout: 50 * time.Millisecond})
	require.NoError(t, f.AddAdapter(hung))
	require.NoError(t, f.AddAdapter(fine))

	results := f.TestAllConnections(context.Background())

	assert.True(t, results["fine"].OK)
	assert.False(t, results["hung"].OK)
	require.ErrorIs(t, results["hung"].Err, context.DeadlineExceeded)
}

func TestPollEachHungDeviceDoesNotDelayOthers(t *testing.T) {
	ctrl := gomock.NewController(t)

	release := make(chan struct{})
	defer close(release)

	hung := newMockAdapter(ctrl, "hung")
	hung.EXPECT().IsConnected().Return(true).AnyTimes()
	hung.EXPECT().ListScansSince(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, *time.Time) ([]models.NormalizedScan, error) {
			<-release // ignores its context entirely
			return nil, nil
		}).Times(1)

	fast := newMockAdapter(ctrl, "fast")
	fast.EXPECT().IsConnected().Return(true).AnyTimes()
	fast.EXPECT().ListScansSince(gomock.Any(), gomock.Any()).
		Return([]models.NormalizedScan{scanFor("fast", "EMP001"), scanFor("fast", "EMP002")}, nil).
		Times(2)

	f := newTestFleet(Config{CallTimeout: 300 * time.Millisecond})
	require.NoError(t, f.AddAdapter(hung))
	require.NoError(t, f.AddAdapter(fast))

	arrived := make(chan time.Duration, 1)
	start := time.Now()

	done := make(chan struct{})
	go func() {
		defer close(done)

		f.PollEach(context.Background(), func(string) *time.Time { return nil }, func(id string, scans []models.NormalizedScan) {
			assert.Equal(t, "fast", id)
			assert.Len(t, scans, 2)
			arrived <- time.Since(start)
		})
	}()

	select {
	case took := <-arrived:
		assert.Less(t, took, 250*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("scans from the healthy device never arrived")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PollEach did not return after the call timeout")
	}

	// The hung call is still outstanding, so the next cycle skips it.
	var calls atomic.Int32
	f.PollEach(context.Background(), func(string) *time.Time { return nil }, func(string, []models.NormalizedScan) {
		calls.Add(1)
	})
	assert.Equal(t, int32(1), calls.Load())
}

func TestPollAllOnlyConnectedAndPreservesOrder(t *testing.T) {
	ctrl := gomock.NewController(t)

	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	a := newMockAdapter(ctrl, "a")
	a.EXPECT().IsConnected().Return(true).AnyTimes()
	a.EXPECT().ListScansSince(gomock.Any(), &since).
		Return([]models.NormalizedScan{scanFor("a", "EMP001"), scanFor("a", "EMP002"), scanFor("a", "EMP003")}, nil)

	offline := newMockAdapter(ctrl, "offline")
	offline.EXPECT().IsConnected().Return(false).AnyTimes()

	failing := newMockAdapter(ctrl, "failing")
	failing.EXPECT().IsConnected().Return(true).AnyTimes()
	failing.EXPECT().ListScansSince(gomock.Any(), &since).Return(nil, errRefused)

	f := newTestFleet(Config{})
	for _, ad := range []device.Adapter{a, offline, failing} {
		require.NoError(t, f.AddAdapter(ad))
	}

	scans := f.PollAll(context.Background(), &since)
	require.Len(t, scans, 3)
	assert.Equal(t, "EMP001", scans[0].PersonID)
	assert.Equal(t, "EMP002", scans[1].PersonID)
	assert.Equal(t, "EMP003", scans[2].PersonID)

	total, connected := f.Stats()
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, connected)
}

func TestRemoveDevice(t *testing.T) {
	ctrl := gomock.NewController(t)

	a := newMockAdapter(ctrl, "a")
	a.EXPECT().Disconnect(gomock.Any()).Return(nil).Times(1)

	f := newTestFleet(Config{})
	require.NoError(t, f.AddAdapter(a))

	require.NoError(t, f.RemoveDevice(context.Background(), "a"))
	assert.Empty(t, f.DeviceIDs())

	require.ErrorIs(t, f.RemoveDevice(context.Background(), "a"), ErrDeviceNotFound)

	// The id can be registered again.
	require.NoError(t, f.AddDevice(&models.DeviceDescriptor{ID: "a", Type: device.TypeSimulated}))
}

func TestResetAllowsReRegistration(t *testing.T) {
	f := newTestFleet(Config{})
	descs := []*models.DeviceDescriptor{
		{ID: "sim-1", Type: device.TypeSimulated},
		{ID: "sim-2", Type: device.TypeSimulated},
	}

	require.Empty(t, f.AddDevices(descs))
	f.Reset()
	assert.Empty(t, f.DeviceIDs())
	require.Empty(t, f.AddDevices(descs))
}

func TestDisconnectAllRunsConcurrently(t *testing.T) {
	ctrl := gomock.NewController(t)

	var (
		mu     sync.Mutex
		active int
		peak   int
	)

	slow := func(context.Context) error {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()

		time.Sleep(50 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()

		return nil
	}

	f := newTestFleet(Config{MaxConcurrency: 4})

	for _, id := range []string{"a", "b", "c", "d"} {
		m := newMockAdapter(ctrl, id)
		m.EXPECT().Disconnect(gomock.Any()).DoAndReturn(slow).Times(1)
		require.NoError(t, f.AddAdapter(m))
	}

	results := f.DisconnectAll(context.Background())
	require.Len(t, results, 4)

	for id, r := range results {
		assert.True(t, r.OK, id)
	}

	assert.Greater(t, peak, 1)
}
