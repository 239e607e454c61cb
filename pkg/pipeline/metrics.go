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

package pipeline

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName             = "github.com/hrxen/punchclock/pkg/pipeline"
	metricScansProcessed  = "punchclock.scans.processed"
	metricScansDropped    = "punchclock.scans.dropped"
	metricProcessDuration = "punchclock.scans.process_duration_seconds"
)

//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
var (
	meterOnce        sync.Once
	processedCounter metric.Int64Counter
	droppedCounter   metric.Int64Counter
	durationHist     metric.Float64Histogram
)

func initMeter() {
	meter := otel.Meter(meterName)

	processed, err := meter.Int64Counter(
		metricScansProcessed,
		metric.WithDescription("Scans folded into daily aggregates"),
	)
	if err != nil {
		otel.Handle(err)
	}
	processedCounter = processed

	dropped, err := meter.Int64Counter(
		metricScansDropped,
		metric.WithDescription("Scans dropped by the pipeline, by reason"),
	)
	if err != nil {
		otel.Handle(err)
	}
	droppedCounter = dropped

	hist, err := meter.Float64Histogram(
		metricProcessDuration,
		metric.WithDescription("Time spent processing one scan"),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
	}
	durationHist = hist
}

func recordProcessed(ctx context.Context, seconds float64) {
	meterOnce.Do(initMeter)

	if processedCounter != nil {
		processedCounter.Add(ctx, 1)
	}

	if durationHist != nil {
		durationHist.Record(ctx, seconds)
	}
}

func recordDropped(ctx context.Context, reason string) {
	meterOnce.Do(initMeter)

	if droppedCounter == nil {
		return
	}

	droppedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
