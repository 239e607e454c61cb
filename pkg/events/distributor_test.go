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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hrxen/punchclock/pkg/logger"
	"github.com/hrxen/punchclock/pkg/models"
)

var errBrokenPipe = errors.New("broken pipe")

type fakeSubscriber struct {
	id    string
	order *orderLog

	mu     sync.Mutex
	events []*models.Event
	closed int
}

type orderLog struct {
	mu  sync.Mutex
	ids []string
}

func (o *orderLog) add(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.ids = append(o.ids, id)
}

func (o *orderLog) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]string(nil), o.ids...)
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(_ context.Context, ev *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed > 0 {
		return ErrSubscriberClosed
	}

	f.events = append(f.events, ev)

	if f.order != nil {
		f.order.add(f.id)
	}

	return nil
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed++

	return nil
}

func (f *fakeSubscriber) received() []*models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*models.Event(nil), f.events...)
}

func (f *fakeSubscriber) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}

func newEvent(t models.EventType) *models.Event {
	return models.NewEvent(t, "zk-1", nil, time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
}

func startDistributor(t *testing.T, cfg Config) *Distributor {
	t.Helper()

	d := NewDistributor(cfg, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		d.Run(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return d
}

func TestSubscribeSendsWelcomeFirst(t *testing.T) {
	d := NewDistributor(Config{}, nil)
	sub := &fakeSubscriber{id: "a"}

	require.NoError(t, d.Subscribe(context.Background(), sub))
	assert.Equal(t, 1, d.Count())

	got := sub.received()
	require.Len(t, got, 1)
	assert.Equal(t, models.EventSystemStatus, got[0].Type)
	assert.Equal(t, models.SystemDeviceID, got[0].DeviceID)
	assert.Equal(t, WelcomeMessage, got[0].Data["message"])
}

func TestBroadcastInRegistrationOrder(t *testing.T) {
	d := startDistributor(t, Config{})
	order := &orderLog{}

	subs := []*fakeSubscriber{{id: "a", order: order}, {id: "b", order: order}, {id: "c", order: order}}
	for _, s := range subs {
		require.NoError(t, d.Subscribe(context.Background(), s))
	}

	require.NoError(t, d.Publish(context.Background(), newEvent(models.EventScanReceived)))
	require.NoError(t, d.Publish(context.Background(), newEvent(models.EventAttendanceUpdated)))

	require.Eventually(t, func() bool { return len(subs[2].received()) == 3 }, time.Second, 5*time.Millisecond)

	// Welcomes are sent one by one at subscribe time, then each event in turn.
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c", "a", "b", "c"}, order.snapshot())

	for _, s := range subs {
		got := s.received()
		assert.Equal(t, models.EventScanReceived, got[1].Type)
		assert.Equal(t, models.EventAttendanceUpdated, got[2].Type)
	}
}

func TestFailedSubscriberIsNeverSentAgain(t *testing.T) {
	ctrl := gomock.NewController(t)
	bad := NewMockSubscriber(ctrl)

	bad.EXPECT().ID().Return("bad").AnyTimes()
	gomock.InOrder(
		bad.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil),
		bad.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errBrokenPipe),
		bad.EXPECT().Close().Return(nil),
	)

	d := startDistributor(t, Config{})
	good := &fakeSubscriber{id: "good"}

	require.NoError(t, d.Subscribe(context.Background(), bad))
	require.NoError(t, d.Subscribe(context.Background(), good))

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Publish(context.Background(), newEvent(models.EventScanReceived)))
	}

	require.Eventually(t, func() bool { return len(good.received()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, d.Count())
}

func TestWelcomeFailureClosesSubscriber(t *testing.T) {
	ctrl := gomock.NewController(t)
	sub := NewMockSubscriber(ctrl)

	sub.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errBrokenPipe)
	sub.EXPECT().Close().Return(nil)

	d := NewDistributor(Config{}, nil)

	err := d.Subscribe(context.Background(), sub)
	require.ErrorIs(t, err, errBrokenPipe)
	assert.Zero(t, d.Count())
}

func TestDuplicateSubscriberRejected(t *testing.T) {
	d := NewDistributor(Config{}, nil)

	first := &fakeSubscriber{id: "a"}
	dup := &fakeSubscriber{id: "a"}

	require.NoError(t, d.Subscribe(context.Background(), first))
	require.ErrorIs(t, d.Subscribe(context.Background(), dup), ErrDuplicateID)
	assert.Equal(t, 1, d.Count())

	assert.Equal(t, 1, dup.closeCount())
	assert.Zero(t, first.closeCount())
}

func TestCloseStopsIntakeAndClosesSubscribers(t *testing.T) {
	d := NewDistributor(Config{}, nil)
	a := &fakeSubscriber{id: "a"}
	b := &fakeSubscriber{id: "b"}

	require.NoError(t, d.Subscribe(context.Background(), a))
	require.NoError(t, d.Subscribe(context.Background(), b))

	d.Close()
	d.Close()

	assert.Equal(t, 1, a.closeCount())
	assert.Equal(t, 1, b.closeCount())
	assert.Zero(t, d.Count())

	require.ErrorIs(t, d.Publish(context.Background(), newEvent(models.EventError)), ErrDistributorClosed)

	late := &fakeSubscriber{id: "late"}
	require.ErrorIs(t, d.Subscribe(context.Background(), late), ErrDistributorClosed)
	assert.Equal(t, 1, late.closeCount())
	assert.Empty(t, late.received())

	done := make(chan struct{})

	go func() {
		d.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return on a closed distributor")
	}
}

func TestPublishBlocksWhileQueueFull(t *testing.T) {
	d := NewDistributor(Config{QueueSize: 1}, nil)

	require.NoError(t, d.Publish(context.Background(), newEvent(models.EventScanReceived)))
	assert.Equal(t, 1, d.Depth())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, d.Publish(ctx, newEvent(models.EventScanReceived)), context.DeadlineExceeded)
	assert.Equal(t, 1, d.Depth())
}

func TestUnsubscribe(t *testing.T) {
	d := NewDistributor(Config{}, nil)
	a := &fakeSubscriber{id: "a"}

	require.NoError(t, d.Subscribe(context.Background(), a))
	assert.True(t, d.Unsubscribe("a"))
	assert.False(t, d.Unsubscribe("a"))
	assert.Equal(t, 1, a.closeCount())
	assert.Zero(t, d.Count())
}
