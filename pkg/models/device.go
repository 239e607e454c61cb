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

// DeviceStatus is the administrative state of an attendance terminal.
type DeviceStatus string

const (
	DeviceStatusActive      DeviceStatus = "active"
	DeviceStatusInactive    DeviceStatus = "inactive"
	DeviceStatusMaintenance DeviceStatus = "maintenance"
	DeviceStatusError       DeviceStatus = "error"
)

// DeviceDescriptor describes one attendance terminal as it is known to the store.
// Connectivity fields are written by the health monitor, Status only by
// administrative action outside the engine.
type DeviceDescriptor struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name,omitempty"`
	Type        string                 `json:"type"`
	Address     string                 `json:"address"`
	Port        int                    `json:"port,omitempty"`
	Username    string                 `json:"username,omitempty"`
	Password    string                 `json:"password,omitempty" sensitive:"true"`
	Config      map[string]interface{} `json:"config,omitempty"`
	Status      DeviceStatus           `json:"status"`
	IsConnected bool                   `json:"is_connected"`
	LastSync    *time.Time             `json:"last_sync,omitempty"`
}

// IsActive reports whether the engine should load this device at start.
func (d *DeviceDescriptor) IsActive() bool {
	return d.Status == DeviceStatusActive || d.Status == ""
}

// ConfigString returns a string value from the protocol specific config map.
func (d *DeviceDescriptor) ConfigString(key, fallback string) string {
	if d.Config == nil {
		return fallback
	}

	if v, ok := d.Config[key].(string); ok && v != "" {
		return v
	}

	return fallback
}

// ConfigFloat returns a numeric value from the protocol specific config map.
// JSON numbers decode as float64, so integers are accepted too.
func (d *DeviceDescriptor) ConfigFloat(key string, fallback float64) float64 {
	if d.Config == nil {
		return fallback
	}

	switch v := d.Config[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}

	return fallback
}

// ConfigBool returns a boolean value from the protocol specific config map.
func (d *DeviceDescriptor) ConfigBool(key string, fallback bool) bool {
	if d.Config == nil {
		return fallback
	}

	if v, ok := d.Config[key].(bool); ok {
		return v
	}

	return fallback
}

// ConfigStrings returns a list of strings from the protocol specific config map.
func (d *DeviceDescriptor) ConfigStrings(key string) []string {
	if d.Config == nil {
		return nil
	}

	switch v := d.Config[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))

		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}

		return out
	}

	return nil
}
