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

//go:generate mockgen -destination=mock_device.go -package=device github.com/hrxen/punchclock/pkg/device Adapter

// Package device talks to attendance terminals and turns their payloads into
// models.NormalizedScan values.
package device

import (
	"context"
	"time"

	"github.com/hrxen/punchclock/pkg/models"
)

// Adapter is one connected terminal. Implementations are safe for concurrent
// use by the poll and health loops.
type Adapter interface {
	ID() string
	Type() string
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	// ListScansSince returns scans recorded after since, or everything the
	// device holds when since is nil. A disconnected adapter returns (nil, nil).
	ListScansSince(ctx context.Context, since *time.Time) ([]models.NormalizedScan, error)
	TestConnection(ctx context.Context) error
	IsConnected() bool
	LastSync() *time.Time
}
