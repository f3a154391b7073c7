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

	"github.com/stretchr/testify/assert"

	"github.com/carverauto/gridwatch/pkg/logger"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		provided   string
		wantStatus int
	}{
		{
			name:       "matching key",
			configured: "sekrit",
			provided:   "sekrit",
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong key",
			configured: "sekrit",
			provided:   "guess",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing key",
			configured: "sekrit",
			provided:   "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "auth disabled",
			configured: "",
			provided:   "",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := APIKeyAuth(tt.configured, logger.NewTestLogger())(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			if tt.provided != "" {
				req.Header.Set("X-API-Key", tt.provided)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRequestLoggingPassesThrough(t *testing.T) {
	handler := RequestLogging(logger.NewTestLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
