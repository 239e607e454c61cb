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

//go:generate mockgen -destination=mock_pipeline.go -package=pipeline github.com/hrxen/punchclock/pkg/pipeline Store,Publisher

package pipeline

import (
	"context"
	"time"

	"github.com/hrxen/punchclock/pkg/models"
)

// AggregateMutator edits a daily aggregate in place inside a store upsert.
// Returning an error aborts the upsert.
type AggregateMutator func(agg *models.DailyAggregate) error

// Store is the persistence boundary of the engine. Lookups of unknown
// records return an error wrapping models.ErrNotFound.
type Store interface {
	FindPerson(ctx context.Context, personID string) (*models.Person, error)
	FindDevice(ctx context.Context, deviceID string) (*models.DeviceDescriptor, error)
	ListDevices(ctx context.Context) ([]*models.DeviceDescriptor, error)
	// UpsertDailyAggregate loads the aggregate for (personID, date), creating
	// it with status Absent when missing, applies mutate and persists the
	// result atomically. The stored copy is returned.
	UpsertDailyAggregate(ctx context.Context, personID string, date time.Time, mutate AggregateMutator) (*models.DailyAggregate, error)
	RecordRawScan(ctx context.Context, rec *models.ScanRecord) error
	MarkScanProcessed(ctx context.Context, scanID string) error
	UpdateDeviceConnectivity(ctx context.Context, deviceID string, connected bool, lastSync *time.Time) error
}

// Publisher accepts events for distribution to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev *models.Event) error
}
