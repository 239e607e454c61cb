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

// Package api exposes the engine over HTTP: operational status, liveness and
// the live event WebSocket.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/hrxen/punchclock/pkg/events"
	srHttp "github.com/hrxen/punchclock/pkg/http"
	"github.com/hrxen/punchclock/pkg/logger"
	"github.com/hrxen/punchclock/pkg/models"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second

	defaultHandshakeTimeout = 10 * time.Second
)

// Engine is the part of the attendance engine the API serves.
type Engine interface {
	Status() models.SystemStatus
	Subscribe(ctx context.Context, sub events.Subscriber) error
	Unsubscribe(id string) bool
}

type APIServer struct {
	engine   Engine
	config   models.APIConfig
	wsConfig events.WebSocketConfig
	logger   logger.Logger
	router   *mux.Router
	upgrader websocket.Upgrader
}

func WithLogger(log logger.Logger) func(*APIServer) {
	return func(s *APIServer) { s.logger = log }
}

func WithWebSocketConfig(cfg events.WebSocketConfig) func(*APIServer) {
	return func(s *APIServer) { s.wsConfig = cfg }
}

func NewAPIServer(engine Engine, config models.APIConfig, options ...func(server *APIServer)) *APIServer {
	s := &APIServer{
		engine: engine,
		config: config,
		router: mux.NewRouter(),
		logger: logger.NewTestLogger(),
	}

	for _, o := range options {
		o(s)
	}

	s.upgrader = websocket.Upgrader{
		HandshakeTimeout: defaultHandshakeTimeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      s.checkWebSocketOrigin,
	}

	s.setupRoutes()

	return s
}

func (s *APIServer) setupRoutes() {
	s.router.Use(func(next http.Handler) http.Handler {
		return srHttp.CommonMiddleware(next, s.config.CORS, s.logger)
	})

	s.router.Use(srHttp.APIKeyMiddlewareWithOptions(srHttp.APIKeyOptions{
		APIKey:          s.config.APIKey,
		ExcludePaths:    []string{"/healthz"},
		LogUnauthorized: true,
		Logger:          s.logger,
	}))

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/status", s.getSystemStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleEventStream).Methods(http.MethodGet)
}

// Handler returns the routed handler.
func (s *APIServer) Handler() http.Handler {
	return s.router
}

// HTTPServer wraps the router in a server listening on the configured address.
func (s *APIServer) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}
}

func (*APIServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		writeError(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (s *APIServer) getSystemStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.engine.Status()

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error().Err(err).Msg("Error encoding system status")
		writeError(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// handleEventStream upgrades to a WebSocket and keeps it registered with the
// engine until either side goes away.
func (s *APIServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Str("origin", r.Header.Get("Origin")).
			Msg("Failed to upgrade to WebSocket")

		return
	}

	sub := events.NewWebSocketSubscriber(conn, s.wsConfig, s.logger)

	if err := s.engine.Subscribe(r.Context(), sub); err != nil {
		s.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket subscription rejected")
		_ = sub.Close()

		return
	}

	defer s.engine.Unsubscribe(sub.ID())

	s.logger.Info().
		Str("subscriber_id", sub.ID()).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	if err := sub.Serve(r.Context()); err != nil {
		s.logger.Debug().Err(err).Str("subscriber_id", sub.ID()).Msg("WebSocket connection ended")
	}
}

// checkWebSocketOrigin accepts same-origin requests, requests without an
// Origin header and any origin on the CORS allow list.
func (s *APIServer) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	allowed := s.config.CORS.AllowedOrigins
	if slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
		return true
	}

	u, err := url.Parse(origin)

	return err == nil && u.Host == r.Host
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResponse := models.ErrorResponse{
		Message: message,
		Status:  statusCode,
	}

	if err := json.NewEncoder(w).Encode(errResponse); err != nil {
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}
