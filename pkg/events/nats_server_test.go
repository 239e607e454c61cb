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
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrxen/punchclock/pkg/models"
)

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	srv, err := server.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}

	require.Eventually(t, func() bool {
		return srv.JetStreamEnabled()
	}, 5*time.Second, 50*time.Millisecond, "embedded NATS server not ready for JetStream")

	t.Cleanup(srv.Shutdown)

	return srv
}

func jetStreamClient(t *testing.T, srv *server.Server) jetstream.JetStream {
	t.Helper()

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	return js
}

func TestConnectNATSCreatesStreamAndDelivers(t *testing.T) {
	srv := runJetStreamServer(t)
	js := jetStreamClient(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub, err := ConnectNATS(ctx, &models.NATSConfig{URL: srv.ClientURL()}, nil)
	require.NoError(t, err)

	stream, err := js.Stream(ctx, "ATTENDANCE_EVENTS")
	require.NoError(t, err)
	assert.Equal(t, []string{"attendance.events.>"}, stream.CachedInfo().Config.Subjects)

	ev := models.NewEvent(models.EventScanReceived, "zk-1", map[string]interface{}{"kind": "IN"},
		time.Date(2025, 3, 1, 8, 3, 0, 0, time.UTC))
	ev.PersonID = "EMP001"

	require.NoError(t, sub.Send(ctx, ev))

	msg, err := stream.GetLastMsgForSubject(ctx, "attendance.events.scan_received")
	require.NoError(t, err)

	var got cloudEvent
	require.NoError(t, json.Unmarshal(msg.Data, &got))

	assert.Equal(t, "1.0", got.SpecVersion)
	assert.Equal(t, "com.punchclock.attendance.scan_received", got.Type)
	assert.Equal(t, "attendance.events.scan_received", got.Subject)
	require.NotNil(t, got.Data)
	assert.Equal(t, "zk-1", got.Data.DeviceID)
	assert.Equal(t, "EMP001", got.Data.PersonID)

	require.NoError(t, sub.Close())
}

func TestConnectNATSMergesSubjectIntoExistingStream(t *testing.T) {
	srv := runJetStreamServer(t)
	js := jetStreamClient(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:     "ATTENDANCE_EVENTS",
		Subjects: []string{"legacy.>"},
	})
	require.NoError(t, err)

	sub, err := ConnectNATS(ctx, &models.NATSConfig{URL: srv.ClientURL()}, nil)
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	stream, err := js.Stream(ctx, "ATTENDANCE_EVENTS")
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy.>", "attendance.events.>"}, stream.CachedInfo().Config.Subjects)

	// A second connect finds the subject covered and leaves the stream alone.
	sub, err = ConnectNATS(ctx, &models.NATSConfig{URL: srv.ClientURL()}, nil)
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	stream, err = js.Stream(ctx, "ATTENDANCE_EVENTS")
	require.NoError(t, err)
	assert.Len(t, stream.CachedInfo().Config.Subjects, 2)
}
