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

// Package db persists attendance data in a CNPG (PostgreSQL) cluster through
// pgx.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hrxen/punchclock/pkg/logger"
	"github.com/hrxen/punchclock/pkg/models"
	"github.com/hrxen/punchclock/pkg/pipeline"
)

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	selectPersonSQL = `
SELECT person_id, name, department, tier
FROM attendance_people
WHERE person_id = $1`

	deviceColumns = `
machine_id, name, machine_type, address, port, username, password,
config, status, is_connected, last_sync`

	selectDeviceSQL = `SELECT` + deviceColumns + `
FROM attendance_machine
WHERE machine_id = $1`

	listDevicesSQL = `SELECT` + deviceColumns + `
FROM attendance_machine
ORDER BY created_at, machine_id`

	ensureDailySQL = `
INSERT INTO attendance_daily (person_id, date, status)
VALUES ($1, $2, $3)
ON CONFLICT (person_id, date) DO NOTHING`

	lockDailySQL = `
SELECT status, first_check_in, last_check_out,
       total_working_hours, overtime_hours, extra_overtime_hours,
       total_scans, check_in_count, check_out_count,
       snacks_eligible, night_bill_eligible, updated_at
FROM attendance_daily
WHERE person_id = $1 AND date = $2
FOR UPDATE`

	updateDailySQL = `
UPDATE attendance_daily SET
    status = $3,
    first_check_in = $4,
    last_check_out = $5,
    total_working_hours = $6,
    overtime_hours = $7,
    extra_overtime_hours = $8,
    total_scans = $9,
    check_in_count = $10,
    check_out_count = $11,
    snacks_eligible = $12,
    night_bill_eligible = $13,
    updated_at = now()
WHERE person_id = $1 AND date = $2
RETURNING updated_at`

	insertScanSQL = `
INSERT INTO attendance_scan (scan_id, person_id, machine_id, scan_time, scan_type, raw_data, is_processed)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	markScanSQL = `
UPDATE attendance_scan SET is_processed = TRUE
WHERE scan_id = $1`

	updateConnectivitySQL = `
UPDATE attendance_machine
SET is_connected = $2,
    last_sync = COALESCE($3, last_sync)
WHERE machine_id = $1`
)

// Store implements pipeline.Store on top of a pgx pool.
type Store struct {
	db     querier
	logger logger.Logger
}

var _ pipeline.Store = (*Store)(nil)

func NewStore(db querier, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Store{db: db, logger: log}
}

func (s *Store) FindPerson(ctx context.Context, personID string) (*models.Person, error) {
	var p models.Person

	err := s.db.QueryRow(ctx, selectPersonSQL, personID).Scan(&p.ID, &p.Name, &p.Department, &p.Tier)
	if err != nil {
		return nil, notFoundOr(err, "person", personID)
	}

	return &p, nil
}

func (s *Store) FindDevice(ctx context.Context, deviceID string) (*models.DeviceDescriptor, error) {
	d, err := scanDevice(s.db.QueryRow(ctx, selectDeviceSQL, deviceID))
	if err != nil {
		return nil, notFoundOr(err, "device", deviceID)
	}

	return d, nil
}

func (s *Store) ListDevices(ctx context.Context) ([]*models.DeviceDescriptor, error) {
	rows, err := s.db.Query(ctx, listDevicesSQL)
	if err != nil {
		return nil, fmt.Errorf("%w devices: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var devices []*models.DeviceDescriptor

	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("%w devices: %w", ErrFailedToQuery, err)
		}

		devices = append(devices, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w devices: %w", ErrFailedToQuery, err)
	}

	return devices, nil
}

// UpsertDailyAggregate creates the row when missing, locks it, applies mutate
// and writes it back inside one transaction.
func (s *Store) UpsertDailyAggregate(
	ctx context.Context, personID string, date time.Time, mutate pipeline.AggregateMutator,
) (*models.DailyAggregate, error) {
	var result *models.DailyAggregate

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ensureDailySQL, personID, date, string(models.StatusAbsent)); err != nil {
			return fmt.Errorf("%w daily aggregate: %w", ErrFailedToInsert, err)
		}

		agg := models.NewDailyAggregate(personID, date)

		var status string

		if err := tx.QueryRow(ctx, lockDailySQL, personID, date).Scan(
			&status, &agg.FirstCheckIn, &agg.LastCheckOut,
			&agg.TotalWorkingHours, &agg.OvertimeHours, &agg.ExtraOvertimeHours,
			&agg.TotalScans, &agg.CheckInCount, &agg.CheckOutCount,
			&agg.SnacksEligible, &agg.NightBillEligible, &agg.UpdatedAt,
		); err != nil {
			return fmt.Errorf("%w daily aggregate: %w", ErrFailedToQuery, err)
		}

		agg.Status = models.AttendanceStatus(status)

		if err := mutate(agg); err != nil {
			return err
		}

		if err := tx.QueryRow(ctx, updateDailySQL,
			personID, date, string(agg.Status), agg.FirstCheckIn, agg.LastCheckOut,
			agg.TotalWorkingHours, agg.OvertimeHours, agg.ExtraOvertimeHours,
			agg.TotalScans, agg.CheckInCount, agg.CheckOutCount,
			agg.SnacksEligible, agg.NightBillEligible,
		).Scan(&agg.UpdatedAt); err != nil {
			return fmt.Errorf("%w daily aggregate: %w", ErrFailedToUpdate, err)
		}

		result = agg

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) RecordRawScan(ctx context.Context, rec *models.ScanRecord) error {
	raw, err := json.Marshal(rec.Raw)
	if err != nil {
		return fmt.Errorf("%w scan %s: %w", ErrFailedToInsert, rec.ID, err)
	}

	if rec.Raw == nil {
		raw = []byte("{}")
	}

	if _, err := s.db.Exec(ctx, insertScanSQL,
		rec.ID, rec.PersonID, rec.DeviceID, rec.ScanTime, string(rec.Kind), raw, rec.Processed,
	); err != nil {
		return fmt.Errorf("%w scan %s: %w", ErrFailedToInsert, rec.ID, err)
	}

	return nil
}

func (s *Store) MarkScanProcessed(ctx context.Context, scanID string) error {
	tag, err := s.db.Exec(ctx, markScanSQL, scanID)
	if err != nil {
		return fmt.Errorf("%w scan %s: %w", ErrFailedToUpdate, scanID, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: scan %s", models.ErrNotFound, scanID)
	}

	return nil
}

func (s *Store) UpdateDeviceConnectivity(ctx context.Context, deviceID string, connected bool, lastSync *time.Time) error {
	tag, err := s.db.Exec(ctx, updateConnectivitySQL, deviceID, connected, lastSync)
	if err != nil {
		return fmt.Errorf("%w device %s: %w", ErrFailedToUpdate, deviceID, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: device %s", models.ErrNotFound, deviceID)
	}

	return nil
}

func scanDevice(row pgx.Row) (*models.DeviceDescriptor, error) {
	var (
		d      models.DeviceDescriptor
		status string
		config []byte
	)

	if err := row.Scan(
		&d.ID, &d.Name, &d.Type, &d.Address, &d.Port, &d.Username, &d.Password,
		&config, &status, &d.IsConnected, &d.LastSync,
	); err != nil {
		return nil, err
	}

	d.Status = models.DeviceStatus(status)

	if len(config) > 0 {
		if err := json.Unmarshal(config, &d.Config); err != nil {
			return nil, fmt.Errorf("device %s config: %w", d.ID, err)
		}
	}

	return &d, nil
}

func notFoundOr(err error, kind, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", models.ErrNotFound, kind, id)
	}

	return fmt.Errorf("%w %s %s: %w", ErrFailedToQuery, kind, id, err)
}
