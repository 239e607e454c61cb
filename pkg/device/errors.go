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

package device

import "errors"

var (
	ErrUnsupportedDeviceType = errors.New("unsupported device type")
	ErrMissingAddress        = errors.New("device address is required")

	errUnexpectedStatus = errors.New("unexpected HTTP status")
	errMissingEnvelope  = errors.New("response envelope missing")
	errPingFailed       = errors.New("device did not answer PING")
	errConnClosed       = errors.New("connection closed by device")
	errMalformedRecord  = errors.New("malformed record")
	errBadTimestamp     = errors.New("unparseable timestamp")
)
