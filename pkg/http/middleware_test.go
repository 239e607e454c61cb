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

package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hrxen/punchclock/pkg/logger"
	"github.com/hrxen/punchclock/pkg/models"
)

func okHandler(t *testing.T) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			t.Errorf("Error writing response: %v", err)
		}
	})
}

func TestCommonMiddleware_CORS(t *testing.T) {
	corsConfig := models.CORSConfig{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
	}

	handler := CommonMiddleware(okHandler(t), corsConfig, logger.NewTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/status", http.NoBody)
	req.Header.Set("Origin", "http://localhost:3000")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("CORS origin not set correctly: got %v", rr.Header().Get("Access-Control-Allow-Origin"))
	}

	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Errorf("credentials header missing")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", http.NoBody)
	req.Header.Set("Origin", "http://evil.com")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("CORS allowed an unpermitted origin")
	}
}

func TestCommonMiddleware_Preflight(t *testing.T) {
	called := false
	handler := CommonMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}), models.CORSConfig{AllowedOrigins: []string{"*"}}, logger.NewTestLogger())

	req := httptest.NewRequest(http.MethodOptions, "/api/status", http.NoBody)
	req.Header.Set("Origin", "http://dashboard.local")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || called {
		t.Errorf("preflight reached handler or failed: code=%d called=%v", rr.Code, called)
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	opts := APIKeyOptions{
		APIKey:          "test-key",
		ExcludePaths:    []string{"/healthz"},
		LogUnauthorized: true,
		Logger:          logger.NewTestLogger(),
	}

	handler := APIKeyMiddlewareWithOptions(opts)(okHandler(t))

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"missing key", "/api/status", "", http.StatusUnauthorized},
		{"wrong key", "/api/status", "nope", http.StatusUnauthorized},
		{"header key", "/api/status", "test-key", http.StatusOK},
		{"query key", "/ws?api_key=test-key", "", http.StatusOK},
		{"excluded path", "/healthz", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, http.NoBody)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("status=%d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestAPIKeyMiddleware_EmptyKeyDisablesCheck(t *testing.T) {
	handler := APIKeyMiddlewareWithOptions(APIKeyOptions{})(okHandler(t))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Errorf("status=%d, want %d", rr.Code, http.StatusOK)
	}
}
