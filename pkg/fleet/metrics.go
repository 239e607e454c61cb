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

package fleet

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName            = "github.com/hrxen/punchclock/pkg/fleet"
	metricScansPolled    = "punchclock.scans.polled"
	metricDeviceFailures = "punchclock.device.call_failures"
	metricPollLatency    = "punchclock.device.poll_latency_seconds"
)

//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
var (
	meterOnce       sync.Once
	polledCounter   metric.Int64Counter
	failureCounter  metric.Int64Counter
	pollLatencyHist metric.Float64Histogram
)

func initMeter() {
	meter := otel.Meter(meterName)

	polled, err := meter.Int64Counter(
		metricScansPolled,
		metric.WithDescription("Scans returned by device adapters"),
	)
	if err != nil {
		otel.Handle(err)
	}
	polledCounter = polled

	failures, err := meter.Int64Counter(
		metricDeviceFailures,
		metric.WithDescription("Failed adapter calls by operation"),
	)
	if err != nil {
		otel.Handle(err)
	}
	failureCounter = failures

	hist, err := meter.Float64Histogram(
		metricPollLatency,
		metric.WithDescription("Latency of ListScansSince calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
	}
	pollLatencyHist = hist
}

func recordPoll(ctx context.Context, deviceID string, count int, took time.Duration) {
	meterOnce.Do(initMeter)

	attrs := metric.WithAttributes(attribute.String("device_id", deviceID))

	if polledCounter != nil && count > 0 {
		polledCounter.Add(ctx, int64(count), attrs)
	}

	if pollLatencyHist != nil {
		pollLatencyHist.Record(ctx, took.Seconds(), attrs)
	}
}

func recordFailure(ctx context.Context, op string) {
	meterOnce.Do(initMeter)

	if failureCounter == nil {
		return
	}

	failureCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}
