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

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hrxen/punchclock/pkg/attendance"
	"github.com/hrxen/punchclock/pkg/logger"
	"github.com/hrxen/punchclock/pkg/models"
)

var (
	testDay    = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	testNow    = testDay.Add(18 * time.Hour)
	testPerson = &models.Person{ID: "EMP001", Name: "Rahim", Tier: "worker"}
	testDevice = &models.DeviceDescriptor{ID: "zk-1", Name: "Gate A", Type: "zkteco"}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.Event
}

func (r *recordingPublisher) Publish(_ context.Context, ev *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)

	return nil
}

func (r *recordingPublisher) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}

	return out
}

func newTestPipeline(t *testing.T, store Store, pub Publisher, log logger.Logger) *Pipeline {
	t.Helper()

	cfg := attendance.DefaultConfig()
	cfg.Timezone = "UTC"

	policy, err := attendance.NewPolicy(cfg)
	require.NoError(t, err)

	return New(store, policy, pub, Config{Now: func() time.Time { return testNow }}, log)
}

func scanAt(kind models.ScanKind, hour, minute int) models.NormalizedScan {
	return models.NormalizedScan{
		PersonID:  "EMP001",
		DeviceID:  "zk-1",
		Kind:      kind,
		Timestamp: testDay.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute),
		Valid:     true,
	}
}

// expectUpsertInto makes the mock store apply mutators to one shared aggregate.
func expectUpsertInto(store *MockStore, agg **models.DailyAggregate) *gomock.Call {
	return store.EXPECT().
		UpsertDailyAggregate(gomock.Any(), "EMP001", testDay, gomock.Any()).
		DoAndReturn(func(_ context.Context, personID string, date time.Time, mutate AggregateMutator) (*models.DailyAggregate, error) {
			if *agg == nil {
				*agg = models.NewDailyAggregate(personID, date)
			}

			if err := mutate(*agg); err != nil {
				return nil, err
			}

			return (*agg).Clone(), nil
		})
}

func TestProcessFoldsScansAndEmitsEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	pub := &recordingPublisher{}

	var (
		agg      *models.DailyAggregate
		recorded []*models.ScanRecord
	)

	store.EXPECT().FindPerson(gomock.Any(), "EMP001").Return(testPerson, nil).Times(2)
	store.EXPECT().FindDevice(gomock.Any(), "zk-1").Return(testDevice, nil).Times(2)
	store.EXPECT().RecordRawScan(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rec *models.ScanRecord) error {
			recorded = append(recorded, rec)
			return nil
		}).Times(2)
	expectUpsertInto(store, &agg).Times(2)
	store.EXPECT().MarkScanProcessed(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	p := newTestPipeline(t, store, pub, logger.NewTestLogger())

	require.NoError(t, p.Process(context.Background(), scanAt(models.ScanIn, 8, 3)))
	require.NoError(t, p.Process(context.Background(), scanAt(models.ScanOut, 17, 45)))

	require.NotNil(t, agg)
	assert.Equal(t, models.StatusConsidered, agg.Status)
	assert.InDelta(t, 8.70, agg.TotalWorkingHours, 1e-9)
	assert.InDelta(t, 0.75, agg.OvertimeHours, 1e-9)
	assert.InDelta(t, 0.0, agg.ExtraOvertimeHours, 1e-9)
	assert.Equal(t, testNow, agg.UpdatedAt)

	require.Len(t, recorded, 2)
	assert.NotEmpty(t, recorded[0].ID)
	assert.NotEqual(t, recorded[0].ID, recorded[1].ID)
	assert.Equal(t, models.ScanOut, recorded[1].Kind)

	assert.Equal(t, []models.EventType{
		models.EventScanReceived, models.EventAttendanceUpdated,
		models.EventScanReceived, models.EventAttendanceUpdated,
	}, pub.types())

	last := pub.events[3]
	assert.Equal(t, "EMP001", last.PersonID)
	assert.Equal(t, "zk-1", last.DeviceID)
	assert.Equal(t, "Present-Considered", last.Data["status"])
	assert.Equal(t, "2025-03-01", last.Data["date"])
	assert.Equal(t, "Rahim", pub.events[0].Data["person_name"])
}

func TestProcessUnknownDevice(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	pub := &recordingPublisher{}

	var buf bytes.Buffer

	store.EXPECT().FindPerson(gomock.Any(), "EMP001").Return(testPerson, nil)
	store.EXPECT().FindDevice(gomock.Any(), "ghost").
		Return(nil, fmt.Errorf("device %s: %w", "ghost", models.ErrNotFound))

	p := newTestPipeline(t, store, pub, logger.NewWriterLogger(&buf))

	scan := scanAt(models.ScanIn, 8, 0)
	scan.DeviceID = "ghost"

	err := p.Process(context.Background(), scan)
	require.ErrorIs(t, err, ErrUnknownDevice)
	require.ErrorIs(t, err, models.ErrNotFound)

	assert.Empty(t, pub.types())
	assert.Equal(t, 1, strings.Count(buf.String(), `"level":"warn"`), buf.String())
	assert.Equal(t, 0, strings.Count(buf.String(), `"level":"error"`))
}

func TestProcessUnknownPerson(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	pub := &recordingPublisher{}

	store.EXPECT().FindPerson(gomock.Any(), "EMP404").Return(nil, models.ErrNotFound)

	p := newTestPipeline(t, store, pub, nil)

	scan := scanAt(models.ScanIn, 8, 0)
	scan.PersonID = "EMP404"

	require.ErrorIs(t, p.Process(context.Background(), scan), ErrUnknownPerson)
	assert.Empty(t, pub.types())
}

func TestProcessRejectsWithoutStoreAccess(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.NormalizedScan)
		want   error
	}{
		{"stale", func(s *models.NormalizedScan) { s.Timestamp = testNow.Add(-25 * time.Hour) }, ErrStaleScan},
		{"missing person", func(s *models.NormalizedScan) { s.PersonID = " " }, ErrInvalidScan},
		{"missing device", func(s *models.NormalizedScan) { s.DeviceID = "" }, ErrInvalidScan},
		{"missing timestamp", func(s *models.NormalizedScan) { s.Timestamp = time.Time{} }, ErrInvalidScan},
		{"flagged invalid", func(s *models.NormalizedScan) { s.Valid, s.Reason = false, "bad checksum" }, ErrInvalidScan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := NewMockStore(ctrl)
			pub := &recordingPublisher{}

			scan := scanAt(models.ScanIn, 8, 0)
			tt.mutate(&scan)

			p := newTestPipeline(t, store, pub, nil)

			require.ErrorIs(t, p.Process(context.Background(), scan), tt.want)
			assert.Empty(t, pub.types())
		})
	}
}

func TestProcessAcceptsScanJustInsideStaleWindow(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)

	var agg *models.DailyAggregate

	scan := scanAt(models.ScanIn, 8, 0)
	scan.Timestamp = testNow.Add(-24 * time.Hour)

	store.EXPECT().FindPerson(gomock.Any(), "EMP001").Return(testPerson, nil)
	store.EXPECT().FindDevice(gomock.Any(), "zk-1").Return(testDevice, nil)
	store.EXPECT().RecordRawScan(gomock.Any(), gomock.Any()).Return(nil)
	store.EXPECT().
		UpsertDailyAggregate(gomock.Any(), "EMP001", testDay.AddDate(0, 0, -1), gomock.Any()).
		DoAndReturn(func(_ context.Context, personID string, date time.Time, mutate AggregateMutator) (*models.DailyAggregate, error) {
			agg = models.NewDailyAggregate(personID, date)
			return agg, mutate(agg)
		})
	store.EXPECT().MarkScanProcessed(gomock.Any(), gomock.Any()).Return(nil)

	p := newTestPipeline(t, store, &recordingPublisher{}, nil)

	require.NoError(t, p.Process(context.Background(), scan))
	require.NotNil(t, agg)
	assert.Equal(t, 1, agg.TotalScans)
}

func TestProcessUpsertFailureEmitsError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	pub := &recordingPublisher{}
	errDown := errors.New("database unavailable")

	store.EXPECT().FindPerson(gomock.Any(), "EMP001").Return(testPerson, nil)
	store.EXPECT().FindDevice(gomock.Any(), "zk-1").Return(testDevice, nil)
	store.EXPECT().RecordRawScan(gomock.Any(), gomock.Any()).Return(nil)
	store.EXPECT().UpsertDailyAggregate(gomock.Any(), "EMP001", testDay, gomock.Any()).Return(nil, errDown)

	p := newTestPipeline(t, store, pub, nil)

	err := p.Process(context.Background(), scanAt(models.ScanIn, 8, 0))
	require.ErrorIs(t, err, errDown)

	require.Equal(t, []models.EventType{models.EventError}, pub.types())
	assert.Equal(t, "upsert daily aggregate", pub.events[0].Data["stage"])
	assert.Equal(t, "EMP001", pub.events[0].PersonID)
}

func TestProcessLookupFailureIsStoreError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	pub := &recordingPublisher{}

	store.EXPECT().FindPerson(gomock.Any(), "EMP001").Return(nil, errors.New("connection reset"))

	p := newTestPipeline(t, store, pub, nil)

	err := p.Process(context.Background(), scanAt(models.ScanIn, 8, 0))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownPerson)
	assert.Equal(t, []models.EventType{models.EventError}, pub.types())
}

func TestProcessPublishFailureIsNotFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	pub := NewMockPublisher(ctrl)

	var agg *models.DailyAggregate

	store.EXPECT().FindPerson(gomock.Any(), "EMP001").Return(testPerson, nil)
	store.EXPECT().FindDevice(gomock.Any(), "zk-1").Return(testDevice, nil)
	store.EXPECT().RecordRawScan(gomock.Any(), gomock.Any()).Return(nil)
	expectUpsertInto(store, &agg)
	store.EXPECT().MarkScanProcessed(gomock.Any(), gomock.Any()).Return(errors.New("timeout"))
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("distributor closed")).Times(2)

	p := newTestPipeline(t, store, pub, nil)

	require.NoError(t, p.Process(context.Background(), scanAt(models.ScanIn, 7, 59)))
	require.NotNil(t, agg)
	assert.Equal(t, models.StatusOnTime, agg.Status)
}

func TestRunDrainsQueueUntilClosed(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	pub := &recordingPublisher{}

	var agg *models.DailyAggregate

	store.EXPECT().FindPerson(gomock.Any(), "EMP001").Return(testPerson, nil).Times(3)
	store.EXPECT().FindDevice(gomock.Any(), "zk-1").Return(testDevice, nil).Times(3)
	store.EXPECT().RecordRawScan(gomock.Any(), gomock.Any()).Return(nil).Times(3)
	expectUpsertInto(store, &agg).Times(3)
	store.EXPECT().MarkScanProcessed(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	p := newTestPipeline(t, store, pub, nil)

	queue := make(chan models.NormalizedScan, 3)
	queue <- scanAt(models.ScanOut, 17, 0)
	queue <- scanAt(models.ScanIn, 9, 0)
	queue <- scanAt(models.ScanIn, 8, 30)
	close(queue)

	done := make(chan struct{})

	go func() {
		p.Run(context.Background(), queue)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the queue closed")
	}

	require.NotNil(t, agg)
	assert.Equal(t, 3, agg.TotalScans)
	assert.Equal(t, 2, agg.CheckInCount)
	assert.Equal(t, testDay.Add(8*time.Hour+30*time.Minute), *agg.FirstCheckIn)
	assert.Equal(t, models.StatusLate, agg.Status)
	assert.Len(t, pub.types(), 6)
}

func TestRunStopsOnCancel(t *testing.T) {
	p := newTestPipeline(t, NewMockStore(gomock.NewController(t)), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		p.Run(ctx, make(chan models.NormalizedScan))
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
