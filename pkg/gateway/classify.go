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
	"net"
	"net/http"
	"strings"
	"syscall"
)

// FailureClass is the coarse classification of a remote-call error.
type FailureClass int

const (
	// FailureOther is any error that is neither an authentication nor a
	// connectivity failure. The session core treats it conservatively as
	// a connection-establishment failure.
	FailureOther FailureClass = iota
	// FailureAuth covers 401/403 responses and credential-related errors
	// anywhere in the cause chain.
	FailureAuth
	// FailureConnectivity covers timeouts, refused connections, DNS
	// failures and similar transport-level errors.
	FailureConnectivity
)

func (c FailureClass) String() string {
	switch c {
	case FailureAuth:
		return "auth"
	case FailureConnectivity:
		return "connectivity"
	case FailureOther:
		return "other"
	default:
		return "other"
	}
}

// maxCauseDepth bounds traversal of wrapped causes so a self-referential
// chain cannot loop forever.
const maxCauseDepth = 32

// httpStatuser is implemented by errors that carry an HTTP status code.
type httpStatuser interface {
	HTTPStatus() int
}

var authPhrases = []string{
	"401",
	"403",
	"forbidden",
	"unauthorized",
	"authentication",
	"invalid credentials",
	"login required",
}

// Classify inspects err and its cause chain and decides whether it is an
// authentication failure, a connectivity failure, or something else.
// Auth takes precedence over connectivity: a 403 means the transport
// completed a round trip. Classify is a pure function; it never mutates
// any counter.
func Classify(err error) FailureClass {
	if err == nil {
		return FailureOther
	}

	if matchesChain(err, isAuthError) {
		return FailureAuth
	}

	if matchesChain(err, isConnectivityError) {
		return FailureConnectivity
	}

	return FailureOther
}

// matchesChain walks err's cause chain, bounded by maxCauseDepth, and
// reports whether any single cause satisfies match. Each match callback
// inspects one node only; the traversal happens exclusively here so the
// depth bound holds even for self-referential chains.
func matchesChain(err error, match func(error) bool) bool {
	for depth := 0; err != nil && depth < maxCauseDepth; depth++ {
		if match(err) {
			return true
		}

		next := errors.Unwrap(err)
		if next == err {
			return false
		}

		err = next
	}

	return false
}

// isAuthError inspects a single error node, without unwrapping.
func isAuthError(err error) bool {
	if statusErr, ok := err.(httpStatuser); ok {
		code := statusErr.HTTPStatus()
		return code == http.StatusUnauthorized || code == http.StatusForbidden
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range authPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}

	return false
}

// isConnectivityError inspects a single error node, without unwrapping.
func isConnectivityError(err error) bool {
	if err == context.DeadlineExceeded {
		return true
	}

	switch e := err.(type) {
	case *net.DNSError:
		return true
	case *net.OpError:
		return true
	case syscall.Errno:
		return e == syscall.ECONNREFUSED ||
			e == syscall.ECONNRESET ||
			e == syscall.EHOSTUNREACH ||
			e == syscall.ENETUNREACH ||
			e == syscall.EPIPE
	case net.Error:
		return e.Timeout()
	}

	return false
}
