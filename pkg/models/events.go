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
	"fmt"
	"time"
)

// EventType tags the events streamed to live subscribers.
type EventType string

const (
	EventScanReceived       EventType = "scan_received"
	EventAttendanceUpdated  EventType = "attendance_updated"
	EventDeviceConnected    EventType = "device_connected"
	EventDeviceDisconnected EventType = "device_disconnected"
	EventError              EventType = "error"
	EventSystemStatus       EventType = "system_status"
)

// SystemDeviceID is used as the device id of events not tied to a terminal.
const SystemDeviceID = "system"

// Event is the envelope pushed to every subscriber.
type Event struct {
	Type      EventType              `json:"type"`
	DeviceID  string                 `json:"deviceId"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	PersonID  string                 `json:"personId,omitempty"`
}

// NewEvent builds an event stamped with the given time.
func NewEvent(eventType EventType, deviceID string, data map[string]interface{}, ts time.Time) *Event {
	if data == nil {
		data = make(map[string]interface{})
	}

	return &Event{
		Type:      eventType,
		DeviceID:  deviceID,
		Data:      data,
		Timestamp: ts,
	}
}

// NATSConfig configures the optional NATS JetStream event sink.
type NATSConfig struct {
	URL           string `json:"url"`
	Domain        string `json:"domain,omitempty"`
	StreamName    string `json:"stream_name,omitempty"`
	SubjectPrefix string `json:"subject_prefix,omitempty"`
	CredsFile     string `json:"creds_file,omitempty"`
}

// Enabled reports whether a NATS sink should be created.
func (c *NATSConfig) Enabled() bool {
	return c != nil && c.URL != ""
}

// Validate fills defaults for an enabled sink.
func (c *NATSConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}

	if c.StreamName == "" {
		c.StreamName = "ATTENDANCE_EVENTS"
	}

	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "attendance.events"
	}

	if c.SubjectPrefix[len(c.SubjectPrefix)-1] == '.' {
		return fmt.Errorf("%w: %q", errInvalidSubjectPrefix, c.SubjectPrefix)
	}

	return nil
}
