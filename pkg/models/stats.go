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

// SystemStatus is the operational snapshot exposed to the admin layer.
type SystemStatus struct {
	IsRunning             bool       `json:"isRunning"`
	TotalDevices          int        `json:"totalDevices"`
	ConnectedDevices      int        `json:"connectedDevices"`
	TotalSubscribers      int        `json:"totalSubscribers"`
	PendingScanQueueDepth int        `json:"pendingScanQueueDepth"`
	LastHealthCheck       *time.Time `json:"lastHealthCheckTimestamp,omitempty"`
}

// ErrorResponse is the JSON body of API errors.
type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}
