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

//go:generate mockgen -destination=mock_events.go -package=events github.com/hrxen/punchclock/pkg/events Subscriber

package events

import (
	"context"

	"github.com/hrxen/punchclock/pkg/models"
)

// Subscriber is a live channel receiving every distributed event.
// The distributor owns a registered subscriber and closes it on removal.
type Subscriber interface {
	ID() string
	Send(ctx context.Context, ev *models.Event) error
	Close() error
}
