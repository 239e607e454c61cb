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

// Package events fans engine events out to live subscribers.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hrxen/punchclock/pkg/logger"
	"github.com/hrxen/punchclock/pkg/models"
)

var (
	ErrDistributorClosed = errors.New("event distributor closed")
	ErrSubscriberClosed  = errors.New("subscriber closed")
	ErrDuplicateID       = errors.New("subscriber already registered")
)

const (
	defaultQueueSize   = 1000
	defaultSendTimeout = 5 * time.Second

	// WelcomeMessage is sent to every new subscriber before any queued event.
	WelcomeMessage = "Connected to real-time attendance system"
)

type Config struct {
	QueueSize   int
	SendTimeout time.Duration
	Now         func() time.Time
}

// Distributor owns the ordered event queue and the subscriber registry.
type Distributor struct {
	queue       chan *models.Event
	done        chan struct{}
	closeOnce   sync.Once
	sendTimeout time.Duration
	now         func() time.Time
	logger      logger.Logger

	mu   sync.RWMutex
	subs []Subscriber
}

func NewDistributor(cfg Config, log logger.Logger) *Distributor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Distributor{
		queue:       make(chan *models.Event, cfg.QueueSize),
		done:        make(chan struct{}),
		sendTimeout: cfg.SendTimeout,
		now:         cfg.Now,
		logger:      log,
	}
}

// Publish enqueues ev, blocking while the queue is full.
func (d *Distributor) Publish(ctx context.Context, ev *models.Event) error {
	select {
	case <-d.done:
		return ErrDistributorClosed
	default:
	}

	select {
	case <-d.done:
		return ErrDistributorClosed
	case <-ctx.Done():
		return ctx.Err()
	case d.queue <- ev:
		return nil
	}
}

// Run delivers queued events one at a time until ctx is done or the
// distributor is closed.
func (d *Distributor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case ev := <-d.queue:
			d.broadcast(ctx, ev)
		}
	}
}

// broadcast sends ev to every subscriber in registration order. A subscriber
// whose send fails is removed and closed before the next event.
func (d *Distributor) broadcast(ctx context.Context, ev *models.Event) {
	d.mu.RLock()
	subs := make([]Subscriber, len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	delivered := 0

	for _, sub := range subs {
		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		err := sub.Send(sendCtx, ev)
		cancel()

		if err != nil {
			d.logger.Warn().
				Err(err).
				Str("subscriber_id", sub.ID()).
				Str("event_type", string(ev.Type)).
				Msg("removing subscriber after failed delivery")

			if d.remove(sub.ID()) {
				recordRemoved(ctx)
			}

			continue
		}

		delivered++
	}

	recordDelivered(ctx, string(ev.Type), delivered)
}

// Subscribe sends the welcome event straight to sub and registers it.
// On failure sub is closed.
func (d *Distributor) Subscribe(ctx context.Context, sub Subscriber) error {
	select {
	case <-d.done:
		_ = sub.Close()
		return ErrDistributorClosed
	default:
	}

	welcome := models.NewEvent(models.EventSystemStatus, models.SystemDeviceID, map[string]interface{}{
		"message": WelcomeMessage,
	}, d.now())

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	err := sub.Send(sendCtx, welcome)
	cancel()

	if err != nil {
		_ = sub.Close()
		return fmt.Errorf("send welcome: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	select {
	case <-d.done:
		_ = sub.Close()
		return ErrDistributorClosed
	default:
	}

	for _, existing := range d.subs {
		if existing.ID() == sub.ID() {
			_ = sub.Close()
			return fmt.Errorf("%w: %s", ErrDuplicateID, sub.ID())
		}
	}

	d.subs = append(d.subs, sub)

	d.logger.Info().
		Str("subscriber_id", sub.ID()).
		Int("total_subscribers", len(d.subs)).
		Msg("subscriber registered")

	return nil
}

// Unsubscribe removes and closes the subscriber with the given id.
func (d *Distributor) Unsubscribe(id string) bool {
	return d.remove(id)
}

func (d *Distributor) remove(id string) bool {
	d.mu.Lock()

	var removed Subscriber

	for i, sub := range d.subs {
		if sub.ID() == id {
			removed = sub
			d.subs = append(d.subs[:i:i], d.subs[i+1:]...)

			break
		}
	}

	d.mu.Unlock()

	if removed == nil {
		return false
	}

	if err := removed.Close(); err != nil {
		d.logger.Debug().Err(err).Str("subscriber_id", id).Msg("error closing subscriber")
	}

	return true
}

// Has reports whether a subscriber with the given id is registered.
func (d *Distributor) Has(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, sub := range d.subs {
		if sub.ID() == id {
			return true
		}
	}

	return false
}

// Count returns the number of registered subscribers.
func (d *Distributor) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.subs)
}

// Depth returns the number of events waiting for delivery.
func (d *Distributor) Depth() int {
	return len(d.queue)
}

// CloseAll closes and forgets every subscriber.
func (d *Distributor) CloseAll() {
	d.mu.Lock()
	subs := d.subs
	d.subs = nil
	d.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			d.logger.Debug().Err(err).Str("subscriber_id", sub.ID()).Msg("error closing subscriber")
		}
	}
}

// Close stops intake, ends Run and closes every subscriber. Queued events
// that were not delivered yet are discarded.
func (d *Distributor) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
	})

	d.CloseAll()
}
