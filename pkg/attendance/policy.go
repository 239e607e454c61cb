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

// Package attendance folds scans into daily aggregates and derives working
// hours, overtime and status from them.
package attendance

import (
	"fmt"
	"math"
	"time"

	"github.com/hrxen/punchclock/pkg/models"
)

const minutesPerDay = 24 * 60

// Policy is a validated Config ready for calculations.
type Policy struct {
	loc                *time.Location
	safeEntry          int
	lateEntry          int
	overtimeStart      int
	extraOvertimeStart int
	lunchMinutes       float64
	overtimeCapMinutes float64
	snacksThreshold    float64
	nightBillThreshold float64
	overtimeTier       string
}

func NewPolicy(cfg Config) (*Policy, error) {
	cfg = cfg.withDefaults()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}

	p := &Policy{
		loc:                loc,
		lunchMinutes:       time.Duration(*cfg.LunchBreak).Minutes(),
		overtimeCapMinutes: time.Duration(*cfg.OvertimeCap).Minutes(),
		snacksThreshold:    *cfg.SnacksThresholdHours,
		nightBillThreshold: *cfg.NightBillThresholdHours,
		overtimeTier:       cfg.OvertimeTier,
	}

	clocks := []struct {
		dst   *int
		value string
		name  string
	}{
		{&p.safeEntry, cfg.SafeEntry, "safe_entry"},
		{&p.lateEntry, cfg.LateEntry, "late_entry"},
		{&p.overtimeStart, cfg.OvertimeStart, "overtime_start"},
		{&p.extraOvertimeStart, cfg.ExtraOvertimeStart, "extra_overtime_start"},
	}

	for _, c := range clocks {
		minutes, err := parseClock(c.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}

		*c.dst = minutes
	}

	if p.lateEntry < p.safeEntry {
		return nil, errBoundaryOrder
	}

	if p.lunchMinutes < 0 || p.overtimeCapMinutes < 0 || p.snacksThreshold < 0 || p.nightBillThreshold < 0 {
		return nil, errNegativeSetting
	}

	return p, nil
}

func (p *Policy) Location() *time.Location { return p.loc }

// DayOf returns local midnight of the day t falls on.
func (p *Policy) DayOf(t time.Time) time.Time {
	local := t.In(p.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.loc)
}

func (p *Policy) minuteOfDay(t time.Time) int {
	local := t.In(p.loc)
	return local.Hour()*60 + local.Minute()
}

// span returns check-in and check-out as minutes of day, pushing check-out
// into the next day when it reads earlier than check-in.
func (p *Policy) span(in, out time.Time) (inMin, outMin int) {
	inMin = p.minuteOfDay(in)
	outMin = p.minuteOfDay(out)

	if outMin < inMin {
		outMin += minutesPerDay
	}

	return inMin, outMin
}

// WorkingHours is the check-in to check-out span minus lunch, never negative.
func (p *Policy) WorkingHours(in, out time.Time) float64 {
	inMin, outMin := p.span(in, out)

	worked := float64(outMin-inMin) - p.lunchMinutes
	if worked < 0 {
		worked = 0
	}

	return round2(worked / 60)
}

// OvertimeHours is time past overtime_start, capped at overtime_cap.
func (p *Policy) OvertimeHours(in, out time.Time) float64 {
	return p.hoursPast(in, out, p.overtimeStart, p.overtimeCapMinutes)
}

// ExtraOvertimeHours is uncapped time past extra_overtime_start.
func (p *Policy) ExtraOvertimeHours(in, out time.Time) float64 {
	return p.hoursPast(in, out, p.extraOvertimeStart, math.Inf(1))
}

func (p *Policy) hoursPast(in, out time.Time, threshold int, capMinutes float64) float64 {
	_, outMin := p.span(in, out)

	past := float64(outMin - threshold)
	if past <= 0 {
		return 0
	}

	return round2(math.Min(past, capMinutes) / 60)
}

// Classify maps a first check-in onto a presence status using its local
// time of day. Boundaries are inclusive.
func (p *Policy) Classify(firstCheckIn time.Time) models.AttendanceStatus {
	local := firstCheckIn.In(p.loc)
	secs := local.Hour()*3600 + local.Minute()*60 + local.Second()

	switch {
	case secs <= p.safeEntry*60:
		return models.StatusOnTime
	case secs <= p.lateEntry*60:
		return models.StatusConsidered
	default:
		return models.StatusLate
	}
}

func (p *Policy) earnsOvertime(person *models.Person) bool {
	return person != nil && person.Tier == p.overtimeTier
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
