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

package attendance

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hrxen/punchclock/pkg/models"
)

var (
	errInvalidClock    = errors.New("invalid clock time, expected HH:MM")
	errBoundaryOrder   = errors.New("late_entry must not be before safe_entry")
	errNegativeSetting = errors.New("setting must not be negative")
)

// Config holds the attendance rules. Clock times are "HH:MM" in Timezone.
// Numeric settings are pointers so an explicit zero is kept; nil means default.
type Config struct {
	Timezone                string           `json:"timezone"`
	SafeEntry               string           `json:"safe_entry"`
	LateEntry               string           `json:"late_entry"`
	OvertimeStart           string           `json:"overtime_start"`
	ExtraOvertimeStart      string           `json:"extra_overtime_start"`
	LunchBreak              *models.Duration `json:"lunch_break,omitempty"`
	OvertimeCap             *models.Duration `json:"overtime_cap,omitempty"`
	SnacksThresholdHours    *float64         `json:"snacks_threshold_hours,omitempty"`
	NightBillThresholdHours *float64         `json:"night_bill_threshold_hours,omitempty"`
	OvertimeTier            string           `json:"overtime_tier"`
}

func DefaultConfig() Config {
	return Config{
		Timezone:                "Local",
		SafeEntry:               "08:00",
		LateEntry:               "08:05",
		OvertimeStart:           "17:00",
		ExtraOvertimeStart:      "19:00",
		LunchBreak:              DurationOf(60 * time.Minute),
		OvertimeCap:             DurationOf(2 * time.Hour),
		SnacksThresholdHours:    HoursOf(1.0),
		NightBillThresholdHours: HoursOf(5.0),
		OvertimeTier:            "worker",
	}
}

// DurationOf and HoursOf build the optional Config settings.
func DurationOf(d time.Duration) *models.Duration {
	v := models.Duration(d)
	return &v
}

func HoursOf(h float64) *float64 {
	return &h
}

// withDefaults fills empty strings and nil settings from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()

	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}

	if c.SafeEntry == "" {
		c.SafeEntry = d.SafeEntry
	}

	if c.LateEntry == "" {
		c.LateEntry = d.LateEntry
	}

	if c.OvertimeStart == "" {
		c.OvertimeStart = d.OvertimeStart
	}

	if c.ExtraOvertimeStart == "" {
		c.ExtraOvertimeStart = d.ExtraOvertimeStart
	}

	if c.LunchBreak == nil {
		c.LunchBreak = d.LunchBreak
	}

	if c.OvertimeCap == nil {
		c.OvertimeCap = d.OvertimeCap
	}

	if c.SnacksThresholdHours == nil {
		c.SnacksThresholdHours = d.SnacksThresholdHours
	}

	if c.NightBillThresholdHours == nil {
		c.NightBillThresholdHours = d.NightBillThresholdHours
	}

	if c.OvertimeTier == "" {
		c.OvertimeTier = d.OvertimeTier
	}

	return c
}

// parseClock converts "HH:MM" into minutes after midnight.
func parseClock(value string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", errInvalidClock, value)
	}

	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", errInvalidClock, value)
	}

	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", errInvalidClock, value)
	}

	return h*60 + m, nil
}
