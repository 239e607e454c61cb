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

package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrxen/punchclock/pkg/models"
)

func TestSimulatedGeneratesScans(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	opts := testOptions()
	opts.Now = func() time.Time { return now }

	adapter, err := NewSimulated(&models.DeviceDescriptor{
		ID:     "sim-1",
		Type:   TypeSimulated,
		Config: map[string]interface{}{"employees": []interface{}{"EMP001", "EMP002"}, "seed": 42.0},
	}, opts)
	require.NoError(t, err)

	scans, err := adapter.ListScansSince(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, scans, "disconnected simulator must not produce scans")

	require.NoError(t, adapter.Connect(context.Background()))

	for i := 0; i < 20; i++ {
		scans, err := adapter.ListScansSince(context.Background(), nil)
		require.NoError(t, err)
		require.NotEmpty(t, scans)
		require.LessOrEqual(t, len(scans), 3)

		for _, s := range scans {
			assert.Contains(t, []string{"EMP001", "EMP002"}, s.PersonID)
			assert.Contains(t, []models.ScanKind{models.ScanIn, models.ScanOut}, s.Kind)
			assert.False(t, s.Timestamp.After(now))
			assert.True(t, s.Timestamp.After(now.Add(-31*time.Minute)))
			assert.Equal(t, "sim-1", s.DeviceID)
		}
	}

	assert.Equal(t, now, *adapter.LastSync())
}

func TestSimulatedSeedIsDeterministic(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	opts := testOptions()
	opts.Now = func() time.Time { return now }

	desc := &models.DeviceDescriptor{ID: "sim-1", Type: TypeSimulated, Config: map[string]interface{}{"seed": 7.0}}

	a, err := NewSimulated(desc, opts)
	require.NoError(t, err)
	b, err := NewSimulated(desc, opts)
	require.NoError(t, err)

	require.NoError(t, a.Connect(context.Background()))
	require.NoError(t, b.Connect(context.Background()))

	sa, err := a.ListScansSince(context.Background(), nil)
	require.NoError(t, err)
	sb, err := b.ListScansSince(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, sa, sb)
}

func TestSimulatedConnectHonoursContext(t *testing.T) {
	adapter, err := NewSimulated(&models.DeviceDescriptor{ID: "sim-1", Type: TypeSimulated}, testOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, adapter.Connect(ctx), context.Canceled)
	assert.False(t, adapter.IsConnected())
}
