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
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hrxen/punchclock/pkg/models"
)

const (
	simulatedConnectDelay = 100 * time.Millisecond
	simulatedWindow       = 30 * time.Minute
	simulatedMaxBatch     = 3
)

// Simulated generates synthetic scans without any network I/O.
type Simulated struct {
	base

	people []string

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewSimulated builds a simulated terminal. Config keys: employees ([]string)
// and seed (number) for reproducible output.
func NewSimulated(desc *models.DeviceDescriptor, opts Options) (Adapter, error) {
	s := &Simulated{
		people: desc.ConfigStrings("employees"),
	}
	s.init(desc, TypeSimulated, opts)

	if len(s.people) == 0 {
		s.people = make([]string, 0, 10)
		for i := 1; i <= 10; i++ {
			s.people = append(s.people, fmt.Sprintf("EMP%03d", i))
		}
	}

	if seed := desc.ConfigFloat("seed", 0); seed != 0 {
		s.rng = rand.New(rand.NewPCG(uint64(seed), uint64(seed))) //nolint:gosec // synthetic data
	} else {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // synthetic data
	}

	return s, nil
}

func (s *Simulated) Connect(ctx context.Context) error {
	timer := time.NewTimer(simulatedConnectDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	s.setConnected(true)
	s.logger.Info().Str("device_id", s.id).Msg("Connected to simulated device")

	return nil
}

func (s *Simulated) Disconnect(context.Context) error {
	s.setConnected(false)
	return nil
}

func (s *Simulated) TestConnection(context.Context) error {
	s.setConnected(true)
	return nil
}

func (s *Simulated) ListScansSince(_ context.Context, _ *time.Time) ([]models.NormalizedScan, error) {
	if !s.IsConnected() {
		return nil, nil
	}

	now := s.now()

	s.rngMu.Lock()
	count := 1 + s.rng.IntN(simulatedMaxBatch)
	scans := make([]models.NormalizedScan, 0, count)

	for i := 0; i < count; i++ {
		kind := models.ScanIn
		if s.rng.IntN(2) == 1 {
			kind = models.ScanOut
		}

		offset := time.Duration(s.rng.Int64N(int64(simulatedWindow)))

		scans = append(scans, models.NormalizedScan{
			PersonID:  s.people[s.rng.IntN(len(s.people))],
			Timestamp: now.Add(-offset).In(s.loc),
			Kind:      kind,
			DeviceID:  s.id,
			Raw:       map[string]interface{}{"simulated": true},
			Valid:     true,
		})
	}
	s.rngMu.Unlock()

	s.markSynced()

	return scans, nil
}
