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

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

// timeoutError satisfies net.Error with Timeout() == true.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// selfError unwraps to itself, the pathological chain the depth bound
// must survive.
type selfError struct{}

func (selfError) Error() string   { return "self-referential" }
func (e selfError) Unwrap() error { return e }

// opaqueError wraps without echoing the inner message, so classification
// can only find the cause by traversing the chain.
type opaqueError struct{ inner error }

func (*opaqueError) Error() string   { return "wrapped" }
func (e *opaqueError) Unwrap() error { return e.inner }

func TestClassify(t *testing.T) {
	deepAuthChain := error(&StatusError{StatusCode: http.StatusForbidden, Endpoint: "/api/status"})
	for i := 0; i < maxCauseDepth+8; i++ {
		deepAuthChain = &opaqueError{inner: deepAuthChain}
	}

	tests := []struct {
		name string
		err  error
		want FailureClass
	}{
		{
			name: "nil error",
			err:  nil,
			want: FailureOther,
		},
		{
			name: "plain error",
			err:  errors.New("unexpected payload shape"),
			want: FailureOther,
		},
		{
			name: "status 401",
			err:  &StatusError{StatusCode: http.StatusUnauthorized, Endpoint: "/api/meters/aggregates"},
			want: FailureAuth,
		},
		{
			name: "status 403",
			err:  &StatusError{StatusCode: http.StatusForbidden, Endpoint: "/api/status"},
			want: FailureAuth,
		},
		{
			name: "status 500",
			err:  &StatusError{StatusCode: http.StatusInternalServerError, Endpoint: "/api/status"},
			want: FailureOther,
		},
		{
			name: "wrapped status 403",
			err:  fmt.Errorf("request failed: %w", &StatusError{StatusCode: http.StatusForbidden, Endpoint: "/api/status"}),
			want: FailureAuth,
		},
		{
			name: "credential message",
			err:  errors.New("invalid credentials for user"),
			want: FailureAuth,
		},
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			want: FailureConnectivity,
		},
		{
			name: "wrapped deadline exceeded",
			err:  fmt.Errorf("request to /api/status failed: %w", context.DeadlineExceeded),
			want: FailureConnectivity,
		},
		{
			name: "dns error",
			err:  &net.DNSError{Err: "no such host", Name: "gateway.local"},
			want: FailureConnectivity,
		},
		{
			name: "op error",
			err:  &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
			want: FailureConnectivity,
		},
		{
			name: "wrapped econnrefused",
			err:  fmt.Errorf("dial failed: %w", syscall.ECONNREFUSED),
			want: FailureConnectivity,
		},
		{
			name: "net timeout",
			err:  fmt.Errorf("fetch failed: %w", timeoutError{}),
			want: FailureConnectivity,
		},
		{
			name: "auth beats connectivity",
			err:  fmt.Errorf("unauthorized: %w", context.DeadlineExceeded),
			want: FailureAuth,
		},
		{
			name: "auth behind opaque wrapper",
			err:  &opaqueError{inner: &StatusError{StatusCode: http.StatusUnauthorized, Endpoint: "/api/status"}},
			want: FailureAuth,
		},
		{
			name: "self-referential chain terminates",
			err:  selfError{},
			want: FailureOther,
		},
		{
			name: "auth beyond depth bound is not found",
			err:  deepAuthChain,
			want: FailureOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestFailureClassString(t *testing.T) {
	assert.Equal(t, "auth", FailureAuth.String())
	assert.Equal(t, "connectivity", FailureConnectivity.String())
	assert.Equal(t, "other", FailureOther.String())
	assert.Equal(t, "other", FailureClass(99).String())
}
