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
	"sync"
	"time"

	"github.com/hrxen/punchclock/pkg/logger"
	"github.com/hrxen/punchclock/pkg/models"
)

const (
	defaultTimeout = 10 * time.Second

	TypeSimulated = "simulated"
	TypeZKTeco    = "zkteco"
	TypeSuprema   = "suprema"
	TypeGeneric   = "generic"
)

// Options carries engine level settings every adapter needs.
type Options struct {
	Logger   logger.Logger
	Location *time.Location
	// Timeout bounds a single network call when the device config has none.
	Timeout time.Duration
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.NewTestLogger()
	}

	if o.Location == nil {
		o.Location = time.Local
	}

	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}

	if o.Now == nil {
		o.Now = time.Now
	}

	return o
}

// base holds identity and connectivity shared by all adapter families.
type base struct {
	id      string
	kind    string
	logger  logger.Logger
	loc     *time.Location
	now     func() time.Time
	timeout time.Duration

	stateMu   sync.RWMutex
	connected bool
	lastSync  *time.Time
}

func (b *base) init(desc *models.DeviceDescriptor, kind string, opts Options) {
	opts = opts.withDefaults()

	b.id = desc.ID
	b.kind = kind
	b.logger = opts.Logger
	b.loc = opts.Location
	b.now = opts.Now
	b.timeout = opts.Timeout

	if secs := desc.ConfigFloat("timeout", 0); secs > 0 {
		b.timeout = time.Duration(secs * float64(time.Second))
	}

	if desc.LastSync != nil {
		t := *desc.LastSync
		b.lastSync = &t
	}
}

func (b *base) ID() string { return b.id }

func (b *base) Type() string { return b.kind }

func (b *base) IsConnected() bool {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()

	return b.connected
}

// LastSync returns a copy of the time of the last successful scan query.
func (b *base) LastSync() *time.Time {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()

	if b.lastSync == nil {
		return nil
	}

	t := *b.lastSync

	return &t
}

func (b *base) setConnected(connected bool) {
	b.stateMu.Lock()
	b.connected = connected
	b.stateMu.Unlock()
}

func (b *base) markSynced() {
	now := b.now()

	b.stateMu.Lock()
	b.lastSync = &now
	b.stateMu.Unlock()
}

// resolveKind maps a vendor token and stamps raw when the token was unknown.
func (b *base) resolveKind(token string, raw map[string]interface{}) models.ScanKind {
	kind, recognized := models.ParseScanKind(token)
	if !recognized {
		b.logger.Warn().
			Str("device_id", b.id).
			Str("token", token).
			Msg("Unrecognized scan kind, recording as IN")

		raw["kind_fallback"] = true
		raw["kind_token"] = token
	}

	return kind
}
