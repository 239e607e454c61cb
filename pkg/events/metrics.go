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

package events

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName                = "github.com/hrxen/punchclock/pkg/events"
	metricEventsDelivered    = "punchclock.events.delivered"
	metricSubscribersRemoved = "punchclock.subscribers.removed"
)

//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
var (
	meterOnce        sync.Once
	deliveredCounter metric.Int64Counter
	removedCounter   metric.Int64Counter
)

func initMeter() {
	meter := otel.Meter(meterName)

	delivered, err := meter.Int64Counter(
		metricEventsDelivered,
		metric.WithDescription("Events delivered to subscribers"),
	)
	if err != nil {
		otel.Handle(err)
	}
	deliveredCounter = delivered

	removed, err := meter.Int64Counter(
		metricSubscribersRemoved,
		metric.WithDescription("Subscribers removed after a failed delivery"),
	)
	if err != nil {
		otel.Handle(err)
	}
	removedCounter = removed
}

func recordDelivered(ctx context.Context, eventType string, count int) {
	meterOnce.Do(initMeter)

	if deliveredCounter == nil || count == 0 {
		return
	}

	deliveredCounter.Add(ctx, int64(count), metric.WithAttributes(attribute.String("event_type", eventType)))
}

func recordRemoved(ctx context.Context) {
	meterOnce.Do(initMeter)

	if removedCounter == nil {
		return
	}

	removedCounter.Add(ctx, 1)
}
