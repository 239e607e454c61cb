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

import (
	"strings"
	"time"
)

// ScanKind is the normalized kind of a terminal scan.
type ScanKind string

const (
	ScanIn          ScanKind = "IN"
	ScanOut         ScanKind = "OUT"
	ScanBreakIn     ScanKind = "BREAK_IN"
	ScanBreakOut    ScanKind = "BREAK_OUT"
	ScanOvertimeIn  ScanKind = "OVERTIME_IN"
	ScanOvertimeOut ScanKind = "OVERTIME_OUT"
)

// scanKindTokens maps vendor tokens (upper-cased) onto normalized kinds.
var scanKindTokens = map[string]ScanKind{
	"IN":           ScanIn,
	"OUT":          ScanOut,
	"BREAK_IN":     ScanBreakIn,
	"BREAK_OUT":    ScanBreakOut,
	"OVERTIME_IN":  ScanOvertimeIn,
	"OVERTIME_OUT": ScanOvertimeOut,
	"0":            ScanIn,
	"1":            ScanIn,
	"2":            ScanOut,
	"CHECK_IN":     ScanIn,
	"CHECK_OUT":    ScanOut,
}

// ParseScanKind maps a vendor token to a ScanKind. Unknown tokens fall back to
// ScanIn and report recognized=false so callers can flag the lossy mapping.
func ParseScanKind(token string) (kind ScanKind, recognized bool) {
	kind, ok := scanKindTokens[strings.ToUpper(strings.TrimSpace(token))]
	if !ok {
		return ScanIn, false
	}

	return kind, true
}

// IsCheckIn reports whether the kind opens a presence interval.
// A break ending on the outside (BREAK_OUT) counts as coming back in.
func (k ScanKind) IsCheckIn() bool {
	return k == ScanIn || k == ScanBreakOut || k == ScanOvertimeIn
}

// IsCheckOut reports whether the kind closes a presence interval.
func (k ScanKind) IsCheckOut() bool {
	return k == ScanOut || k == ScanBreakIn || k == ScanOvertimeOut
}

// NormalizedScan is a vendor-independent scan produced by a device adapter.
type NormalizedScan struct {
	PersonID  string                 `json:"person_id"`
	Timestamp time.Time              `json:"timestamp"`
	Kind      ScanKind               `json:"kind"`
	DeviceID  string                 `json:"device_id"`
	Raw       map[string]interface{} `json:"raw,omitempty"`
	Valid     bool                   `json:"valid"`
	Reason    string                 `json:"reason,omitempty"`
}

// ScanRecord is the durable audit copy of a scan written through the store.
type ScanRecord struct {
	ID        string                 `json:"id"`
	PersonID  string                 `json:"person_id"`
	DeviceID  string                 `json:"device_id"`
	ScanTime  time.Time              `json:"scan_time"`
	Kind      ScanKind               `json:"kind"`
	Raw       map[string]interface{} `json:"raw,omitempty"`
	Processed bool                   `json:"processed"`
	CreatedAt time.Time              `json:"created_at"`
}
