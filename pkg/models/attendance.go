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

package models

import "time"

// AttendanceStatus classifies a person's day.
type AttendanceStatus string

const (
	StatusOnTime         AttendanceStatus = "Present-OnTime"
	StatusConsidered     AttendanceStatus = "Present-Considered"
	StatusLate           AttendanceStatus = "Present-Late"
	StatusAbsent         AttendanceStatus = "Absent"
	StatusLeaveEarn      AttendanceStatus = "Leave-Earn"
	StatusLeaveCasual    AttendanceStatus = "Leave-Casual"
	StatusLeaveSick      AttendanceStatus = "Leave-Sick"
	StatusLeaveMaternity AttendanceStatus = "Leave-Maternity"
	StatusLeaveNoPay     AttendanceStatus = "Leave-WithOutPay"
	StatusHoliday        AttendanceStatus = "Holiday"
	StatusWeekend        AttendanceStatus = "Weekend"
)

// IsPresent reports whether the status is one of the presence classifications.
func (s AttendanceStatus) IsPresent() bool {
	return s == StatusOnTime || s == StatusConsidered || s == StatusLate
}

// Person is the subset of an employee record the engine needs.
type Person struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
	Tier       string `json:"tier"`
}

// DailyAggregate is the running attendance summary of one person on one date.
type DailyAggregate struct {
	PersonID           string           `json:"person_id"`
	Date               time.Time        `json:"date"`
	Status             AttendanceStatus `json:"status"`
	FirstCheckIn       *time.Time       `json:"first_check_in,omitempty"`
	LastCheckOut       *time.Time       `json:"last_check_out,omitempty"`
	TotalWorkingHours  float64          `json:"total_working_hours"`
	OvertimeHours      float64          `json:"overtime_hours"`
	ExtraOvertimeHours float64          `json:"extra_overtime_hours"`
	TotalScans         int              `json:"total_scans"`
	CheckInCount       int              `json:"check_in_count"`
	CheckOutCount      int              `json:"check_out_count"`
	SnacksEligible     bool             `json:"snacks_eligible"`
	NightBillEligible  bool             `json:"night_bill_eligible"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// NewDailyAggregate returns the lazily created aggregate for a day with no scans folded yet.
func NewDailyAggregate(personID string, date time.Time) *DailyAggregate {
	return &DailyAggregate{
		PersonID: personID,
		Date:     date,
		Status:   StatusAbsent,
	}
}

// Clone returns a deep copy so stores can hand out aggregates without sharing pointers.
func (a *DailyAggregate) Clone() *DailyAggregate {
	if a == nil {
		return nil
	}

	c := *a

	if a.FirstCheckIn != nil {
		t := *a.FirstCheckIn
		c.FirstCheckIn = &t
	}

	if a.LastCheckOut != nil {
		t := *a.LastCheckOut
		c.LastCheckOut = &t
	}

	return &c
}

// DateKey formats a calendar date the way stores key aggregates.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
