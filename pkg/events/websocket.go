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
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hrxen/punchclock/pkg/logger"
	"github.com/hrxen/punchclock/pkg/models"
)

const (
	defaultPingInterval = 20 * time.Second
	defaultPongTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

type WebSocketConfig struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c WebSocketConfig) withDefaults() WebSocketConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}

	if c.PongTimeout <= 0 {
		c.PongTimeout = defaultPongTimeout
	}

	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}

	return c
}

// WebSocketSubscriber streams events as JSON text frames over one connection.
type WebSocketSubscriber struct {
	id     string
	conn   *websocket.Conn
	cfg    WebSocketConfig
	logger logger.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func NewWebSocketSubscriber(conn *websocket.Conn, cfg WebSocketConfig, log logger.Logger) *WebSocketSubscriber {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &WebSocketSubscriber{
		id:     uuid.NewString(),
		conn:   conn,
		cfg:    cfg.withDefaults(),
		logger: log,
		done:   make(chan struct{}),
	}
}

func (s *WebSocketSubscriber) ID() string { return s.id }

// Done is closed once the subscriber has been closed.
func (s *WebSocketSubscriber) Done() <-chan struct{} { return s.done }

func (s *WebSocketSubscriber) Send(ctx context.Context, ev *models.Event) error {
	select {
	case <-s.done:
		return ErrSubscriberClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline := time.Now().Add(s.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if err := s.conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	return nil
}

// Close sends a close frame and closes the connection. It is idempotent.
func (s *WebSocketSubscriber) Close() error {
	var err error

	s.closeOnce.Do(func() {
		close(s.done)

		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

		err = s.conn.Close()
	})

	return err
}

// Serve keeps the connection alive and reads (and discards) client frames
// until the peer goes away, the pong deadline passes, ctx is done or the
// subscriber is closed. The connection is closed on return.
func (s *WebSocketSubscriber) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	readWindow := s.cfg.PingInterval + s.cfg.PongTimeout

	if err := s.conn.SetReadDeadline(time.Now().Add(readWindow)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readWindow))
	})

	go s.keepalive()

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug().Str("subscriber_id", s.id).Msg("websocket closed by client")
				return nil
			}

			return fmt.Errorf("websocket read: %w", err)
		}
	}
}

func (s *WebSocketSubscriber) keepalive() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				s.logger.Debug().Err(err).Str("subscriber_id", s.id).Msg("websocket ping failed")
				_ = s.Close()

				return
			}
		}
	}
}
