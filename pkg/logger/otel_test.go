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

package logger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	log "go.opentelemetry.io/otel/log"
)

func TestDefaultOTelConfig(t *testing.T) {
	config := DefaultOTelConfig()

	if config.ServiceName == "" {
		t.Error("ServiceName should have a default value")
	}

	if config.BatchTimeout.OrDefault(0) != 5*time.Second {
		t.Errorf("Expected default BatchTimeout to be 5s, got %v", config.BatchTimeout)
	}
}

func TestOTelWriter_Disabled(t *testing.T) {
	writer, err := NewOTELWriter(context.Background(), OTelConfig{Enabled: false})
	if !errors.Is(err, ErrOTelLoggingDisabled) {
		t.Errorf("Expected ErrOTelLoggingDisabled, got %v", err)
	}

	if writer != nil {
		t.Error("Writer should be nil when OTel is disabled")
	}
}

func TestOTelWriter_NoEndpoint(t *testing.T) {
	writer, err := NewOTELWriter(context.Background(), OTelConfig{Enabled: true})
	if !errors.Is(err, ErrOTelEndpointRequired) {
		t.Errorf("Expected ErrOTelEndpointRequired, got %v", err)
	}

	if writer != nil {
		t.Error("Writer should be nil when endpoint is empty")
	}
}

func TestInitializeMetricsDisabled(t *testing.T) {
	if _, err := InitializeMetrics(context.Background(), &OTelConfig{}); !errors.Is(err, ErrOTelMetricsDisabled) {
		t.Errorf("Expected ErrOTelMetricsDisabled, got %v", err)
	}
}

func TestInitializeTracingDisabled(t *testing.T) {
	if _, err := InitializeTracing(context.Background(), &OTelConfig{}); !errors.Is(err, ErrOTelTracingDisabled) {
		t.Errorf("Expected ErrOTelTracingDisabled, got %v", err)
	}
}

func TestConfigWriterWithoutOTel(t *testing.T) {
	cfg := &Config{Output: "stdout", OTel: OTelConfig{Enabled: true}}

	w, err := cfg.Writer(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, ok := w.(*MultiWriter); ok {
		t.Error("Expected plain writer when no endpoint is configured")
	}
}

func TestMapZerologLevelToOTEL(t *testing.T) {
	tests := []struct {
		level    string
		expected log.Severity
	}{
		{"trace", log.SeverityTrace},
		{"debug", log.SeverityDebug},
		{"info", log.SeverityInfo},
		{"warn", log.SeverityWarn},
		{"warning", log.SeverityWarn},
		{"error", log.SeverityError},
		{"fatal", log.SeverityFatal},
		{"panic", log.SeverityFatal},
		{"unknown", log.SeverityInfo},
	}

	for _, tt := range tests {
		if got := mapZerologLevelToOTEL(tt.level); got != tt.expected {
			t.Errorf("mapZerologLevelToOTEL(%s) = %v, expected %v", tt.level, got, tt.expected)
		}
	}
}

func TestRecordFromEntry(t *testing.T) {
	entry := map[string]interface{}{
		"time":      "2025-03-01T08:03:00Z",
		"level":     "warn",
		"message":   "unrecognized scan kind",
		"device_id": "zk-1",
		"big":       strings.Repeat("x", maxAttributeValueLength+10),
	}

	record := recordFromEntry(entry)

	if record.Severity() != log.SeverityWarn {
		t.Errorf("Expected warn severity, got %v", record.Severity())
	}

	if record.Body().AsString() != "unrecognized scan kind" {
		t.Errorf("Unexpected body %q", record.Body().AsString())
	}

	if record.Timestamp().IsZero() {
		t.Error("Expected timestamp to be parsed")
	}

	attrs := make(map[string]string)
	record.WalkAttributes(func(kv log.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})

	if attrs["device_id"] != "zk-1" {
		t.Errorf("Expected device_id attribute, got %v", attrs)
	}

	if attrs[truncatedKeysAttribute] != "big" {
		t.Errorf("Expected big to be reported as truncated, got %q", attrs[truncatedKeysAttribute])
	}

	if len(attrs["big"]) != maxAttributeValueLength {
		t.Errorf("Expected truncated length %d, got %d", maxAttributeValueLength, len(attrs["big"]))
	}
}

func TestTruncateStringKeepsUTF8(t *testing.T) {
	out, truncated := truncateString("ééééé", 6)
	if !truncated {
		t.Fatal("Expected truncation")
	}

	if out != "é..." {
		t.Errorf("Unexpected result %q", out)
	}
}
