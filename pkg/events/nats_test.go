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
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrxen/punchclock/pkg/models"
)

type published struct {
	subject string
	data    []byte
}

type fakeJetStream struct {
	msgs []published
	err  error
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.msgs = append(f.msgs, published{subject: subject, data: data})

	return &jetstream.PubAck{Stream: "ATTENDANCE_EVENTS", Sequence: uint64(len(f.msgs))}, nil
}

func TestNATSSubscriberPublishesCloudEvent(t *testing.T) {
	js := &fakeJetStream{}
	sub := newNATSSubscriber(js, nil, "attendance.events", nil)

	ev := models.NewEvent(models.EventAttendanceUpdated, "zk-1", map[string]interface{}{"status": "Present-Late"},
		time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	ev.PersonID = "EMP001"

	require.NoError(t, sub.Send(context.Background(), ev))
	require.Len(t, js.msgs, 1)
	assert.Equal(t, "attendance.events.attendance_updated", js.msgs[0].subject)

	var envelope struct {
		SpecVersion string       `json:"specversion"`
		ID          string       `json:"id"`
		Type        string       `json:"type"`
		Subject     string       `json:"subject"`
		Time        time.Time    `json:"time"`
		Data        models.Event `json:"data"`
	}

	require.NoError(t, json.Unmarshal(js.msgs[0].data, &envelope))
	assert.Equal(t, "1.0", envelope.SpecVersion)
	assert.NotEmpty(t, envelope.ID)
	assert.Equal(t, "com.punchclock.attendance.attendance_updated", envelope.Type)
	assert.Equal(t, "attendance.events.attendance_updated", envelope.Subject)
	assert.True(t, ev.Timestamp.Equal(envelope.Time))
	assert.Equal(t, "EMP001", envelope.Data.PersonID)
	assert.Equal(t, "Present-Late", envelope.Data.Data["status"])

	assert.NoError(t, sub.Close())
}

func TestNATSSubscriberPublishError(t *testing.T) {
	errNoResponders := errors.New("no responders")
	sub := newNATSSubscriber(&fakeJetStream{err: errNoResponders}, nil, "attendance.events", nil)

	err := sub.Send(context.Background(), models.NewEvent(models.EventError, "zk-1", nil, time.Now()))
	require.ErrorIs(t, err, errNoResponders)
}

func TestMatchesSubject(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"attendance.events.scan_received", "attendance.events.scan_received", true},
		{"attendance.*.scan_received", "attendance.events.scan_received", true},
		{"attendance.>", "attendance.events.>", true},
		{"attendance.events.>", "attendance.events.>", true},
		{"attendance.events.*", "attendance.events.>", false},
		{"attendance.events", "attendance.events.>", false},
		{"logs.>", "attendance.events.>", false},
		{"attendance.events.>", "attendance.events", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesSubject(tt.pattern, tt.subject))
		})
	}
}

func TestEnsureSubjectList(t *testing.T) {
	assert.Equal(t, []string{"attendance.events.>"}, ensureSubjectList(nil, "attendance.events.>"))
	assert.Equal(t, []string{"attendance.>"}, ensureSubjectList([]string{"attendance.>"}, "attendance.events.>"))
	assert.Equal(t,
		[]string{"logs.syslog.*", "attendance.events.>"},
		ensureSubjectList([]string{"logs.syslog.*"}, "attendance.events.>"))
}
