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

// Package pipeline turns normalized scans into persisted daily aggregates and
// outcome events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hrxen/punchclock/pkg/attendance"
	"github.com/hrxen/punchclock/pkg/logger"
	"github.com/hrxen/punchclock/pkg/models"
)

var (
	ErrInvalidScan   = errors.New("invalid scan")
	ErrStaleScan     = errors.New("stale scan")
	ErrUnknownPerson = errors.New("unknown person")
	ErrUnknownDevice = errors.New("unknown device")
)

const (
	DefaultStaleScanAge = 24 * time.Hour

	reasonInvalid       = "invalid"
	reasonStale         = "stale"
	reasonUnknownPerson = "unknown_person"
	reasonUnknownDevice = "unknown_device"
	reasonStoreError    = "store_error"
)

type Config struct {
	// StaleScanAge drops scans older than this relative to processing time.
	StaleScanAge time.Duration
	Now          func() time.Time
}

type Pipeline struct {
	store     Store
	policy    *attendance.Policy
	publisher Publisher
	logger    logger.Logger
	staleAge  time.Duration
	now       func() time.Time
}

func New(store Store, policy *attendance.Policy, publisher Publisher, cfg Config, log logger.Logger) *Pipeline {
	if cfg.StaleScanAge <= 0 {
		cfg.StaleScanAge = DefaultStaleScanAge
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Pipeline{
		store:     store,
		policy:    policy,
		publisher: publisher,
		logger:    log,
		staleAge:  cfg.StaleScanAge,
		now:       cfg.Now,
	}
}

// Run consumes the scan queue until ctx is done or the queue is closed.
// Per-scan failures are logged and never stop the loop.
func (p *Pipeline) Run(ctx context.Context, scans <-chan models.NormalizedScan) {
	p.logger.Info().Msg("scan pipeline started")
	defer p.logger.Info().Msg("scan pipeline stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case scan, ok := <-scans:
			if !ok {
				return
			}

			_ = p.Process(ctx, scan)
		}
	}
}

// Process runs one scan through validate, resolve, record, fold and emit.
// The returned error says why the scan was dropped; it has already been logged.
func (p *Pipeline) Process(ctx context.Context, scan models.NormalizedScan) error {
	ctx, span := otel.Tracer(meterName).Start(ctx, "pipeline.process",
		trace.WithAttributes(
			attribute.String("device_id", scan.DeviceID),
			attribute.String("person_id", scan.PersonID),
		))
	defer span.End()

	err := p.process(ctx, scan)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

func (p *Pipeline) process(ctx context.Context, scan models.NormalizedScan) error {
	started := p.now()

	if err := p.validate(scan, started); err != nil {
		reason := reasonInvalid
		if errors.Is(err, ErrStaleScan) {
			reason = reasonStale
		}

		p.logger.Warn().
			Err(err).
			Str("person_id", scan.PersonID).
			Str("device_id", scan.DeviceID).
			Time("scan_time", scan.Timestamp).
			Msg("dropping scan")
		recordDropped(ctx, reason)

		return err
	}

	person, err := p.store.FindPerson(ctx, scan.PersonID)
	if err != nil {
		return p.resolveFailed(ctx, scan, ErrUnknownPerson, reasonUnknownPerson, err)
	}

	dev, err := p.store.FindDevice(ctx, scan.DeviceID)
	if err != nil {
		return p.resolveFailed(ctx, scan, ErrUnknownDevice, reasonUnknownDevice, err)
	}

	rec := &models.ScanRecord{
		ID:        uuid.NewString(),
		PersonID:  person.ID,
		DeviceID:  dev.ID,
		ScanTime:  scan.Timestamp,
		Kind:      scan.Kind,
		Raw:       scan.Raw,
		CreatedAt: started,
	}

	if err := p.store.RecordRawScan(ctx, rec); err != nil {
		return p.storeFailed(ctx, scan, "record raw scan", err)
	}

	date := p.policy.DayOf(scan.Timestamp)

	agg, err := p.store.UpsertDailyAggregate(ctx, person.ID, date, func(agg *models.DailyAggregate) error {
		p.policy.Fold(agg, scan, person, p.now())
		return nil
	})
	if err != nil {
		return p.storeFailed(ctx, scan, "upsert daily aggregate", err)
	}

	if err := p.store.MarkScanProcessed(ctx, rec.ID); err != nil {
		p.logger.Warn().Err(err).Str("scan_id", rec.ID).Msg("failed to mark scan processed")
	}

	p.emit(ctx, scanReceivedEvent(rec, person, dev, p.now()))
	p.emit(ctx, attendanceUpdatedEvent(agg, dev.ID, p.now()))

	recordProcessed(ctx, p.now().Sub(started).Seconds())

	p.logger.Debug().
		Str("person_id", person.ID).
		Str("device_id", dev.ID).
		Str("kind", string(scan.Kind)).
		Str("status", string(agg.Status)).
		Msg("processed scan")

	return nil
}

func (p *Pipeline) validate(scan models.NormalizedScan, now time.Time) error {
	switch {
	case !scan.Valid:
		reason := scan.Reason
		if reason == "" {
			reason = "flagged invalid by adapter"
		}

		return fmt.Errorf("%w: %s", ErrInvalidScan, reason)
	case strings.TrimSpace(scan.PersonID) == "":
		return fmt.Errorf("%w: missing person id", ErrInvalidScan)
	case strings.TrimSpace(scan.DeviceID) == "":
		return fmt.Errorf("%w: missing device id", ErrInvalidScan)
	case scan.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrInvalidScan)
	case now.Sub(scan.Timestamp) > p.staleAge:
		return fmt.Errorf("%w: older than %s", ErrStaleScan, p.staleAge)
	}

	return nil
}

func (p *Pipeline) resolveFailed(ctx context.Context, scan models.NormalizedScan, sentinel error, reason string, err error) error {
	if !errors.Is(err, models.ErrNotFound) {
		return p.storeFailed(ctx, scan, "lookup", err)
	}

	p.logger.Warn().
		Str("person_id", scan.PersonID).
		Str("device_id", scan.DeviceID).
		Msgf("dropping scan: %s", sentinel)
	recordDropped(ctx, reason)

	return fmt.Errorf("%w: %w", sentinel, err)
}

// storeFailed reports a store error. Earlier steps are not rolled back.
func (p *Pipeline) storeFailed(ctx context.Context, scan models.NormalizedScan, stage string, err error) error {
	p.logger.Error().
		Err(err).
		Str("stage", stage).
		Str("person_id", scan.PersonID).
		Str("device_id", scan.DeviceID).
		Msg("scan processing failed")
	recordDropped(ctx, reasonStoreError)

	ev := models.NewEvent(models.EventError, scan.DeviceID, map[string]interface{}{
		"stage":   stage,
		"message": err.Error(),
	}, p.now())
	ev.PersonID = scan.PersonID
	p.emit(ctx, ev)

	return fmt.Errorf("%s: %w", stage, err)
}

func (p *Pipeline) emit(ctx context.Context, ev *models.Event) {
	if p.publisher == nil {
		return
	}

	if err := p.publisher.Publish(ctx, ev); err != nil {
		p.logger.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("failed to publish event")
	}
}

func scanReceivedEvent(rec *models.ScanRecord, person *models.Person, dev *models.DeviceDescriptor, now time.Time) *models.Event {
	ev := models.NewEvent(models.EventScanReceived, dev.ID, map[string]interface{}{
		"scan_id":     rec.ID,
		"person_id":   person.ID,
		"person_name": person.Name,
		"device_name": dev.Name,
		"scan_time":   rec.ScanTime.Format(time.RFC3339),
		"scan_type":   string(rec.Kind),
	}, now)
	ev.PersonID = person.ID

	return ev
}

func attendanceUpdatedEvent(agg *models.DailyAggregate, deviceID string, now time.Time) *models.Event {
	data := map[string]interface{}{
		"date":                 models.DateKey(agg.Date),
		"status":               string(agg.Status),
		"total_working_hours":  agg.TotalWorkingHours,
		"overtime_hours":       agg.OvertimeHours,
		"extra_overtime_hours": agg.ExtraOvertimeHours,
		"total_scans":          agg.TotalScans,
		"check_in_count":       agg.CheckInCount,
		"check_out_count":      agg.CheckOutCount,
		"snacks_eligible":      agg.SnacksEligible,
		"night_bill_eligible":  agg.NightBillEligible,
	}

	if agg.FirstCheckIn != nil {
		data["first_check_in"] = agg.FirstCheckIn.Format(time.RFC3339)
	}

	if agg.LastCheckOut != nil {
		data["last_check_out"] = agg.LastCheckOut.Format(time.RFC3339)
	}

	ev := models.NewEvent(models.EventAttendanceUpdated, deviceID, data, now)
	ev.PersonID = agg.PersonID

	return ev
}
