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

import (
	"time"

	"github.com/hrxen/punchclock/pkg/models"
)

var zktecoProtocol = vendorProtocol{
	connectPath: "/cgi-bin/attendance.cgi",
	testPath:    "/cgi-bin/status.cgi",
	scansPath:   "/cgi-bin/attendance.cgi",
	formatSince: func(since time.Time, loc *time.Location) string {
		return since.In(loc).Format(time.DateTime)
	},
	envelope:  "attendance",
	personKey: "user_id",
	timeKey:   "time",
	kindKey:   "type",
}

// NewZKTeco builds an adapter for ZKTeco terminals speaking the CGI JSON API.
func NewZKTeco(desc *models.DeviceDescriptor, opts Options) (Adapter, error) {
	a, err := newHTTPAdapter(desc, TypeZKTeco, zktecoProtocol, opts)
	if err != nil {
		return nil, err
	}

	return a, nil
}
