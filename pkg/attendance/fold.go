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
	"time"

	"github.com/hrxen/punchclock/pkg/models"
)

// Fold applies one scan to the aggregate and recomputes every derived field.
// First check-in keeps the earliest check-in class scan and last check-out
// the latest check-out class scan, so same-kind reordering has no effect.
func (p *Policy) Fold(agg *models.DailyAggregate, scan models.NormalizedScan, person *models.Person, now time.Time) {
	agg.TotalScans++

	ts := scan.Timestamp

	switch {
	case scan.Kind.IsCheckIn():
		agg.CheckInCount++

		if agg.FirstCheckIn == nil || ts.Before(*agg.FirstCheckIn) {
			agg.FirstCheckIn = &ts
		}
	case scan.Kind.IsCheckOut():
		agg.CheckOutCount++

		if agg.LastCheckOut == nil || ts.After(*agg.LastCheckOut) {
			agg.LastCheckOut = &ts
		}
	}

	p.Recalculate(agg, person)
	agg.UpdatedAt = now
}

// Recalculate derives hours, flags and status from the check-in/out times.
// Leave, holiday and weekend statuses set outside the engine are kept.
func (p *Policy) Recalculate(agg *models.DailyAggregate, person *models.Person) {
	if agg.FirstCheckIn != nil && agg.LastCheckOut != nil {
		in, out := *agg.FirstCheckIn, *agg.LastCheckOut

		agg.TotalWorkingHours = p.WorkingHours(in, out)

		if p.earnsOvertime(person) {
			agg.OvertimeHours = p.OvertimeHours(in, out)
			agg.ExtraOvertimeHours = p.ExtraOvertimeHours(in, out)
		} else {
			agg.OvertimeHours = 0
			agg.ExtraOvertimeHours = 0
		}

		agg.SnacksEligible = agg.ExtraOvertimeHours >= p.snacksThreshold
		agg.NightBillEligible = agg.ExtraOvertimeHours >= p.nightBillThreshold
	}

	if agg.FirstCheckIn != nil && classifiable(agg.Status) {
		agg.Status = p.Classify(*agg.FirstCheckIn)
	}
}

func classifiable(s models.AttendanceStatus) bool {
	return s == "" || s == models.StatusAbsent || s.IsPresent()
}
