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
	"errors"
	"fmt"
	"net/http"
)

// ErrUnavailable is the only failure propagated out of the connection
// core. Finer-grained classification (auth vs connectivity vs other) is
// consumed internally to drive reconnection behavior.
var ErrUnavailable = errors.New("gateway unavailable")

// StatusError is returned by the HTTP client when the gateway answers
// with a non-2xx status. It carries the status code so the classifier can
// recognize authentication failures without parsing message text.
type StatusError struct {
	StatusCode int
	Endpoint   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned %d %s for %s",
		e.StatusCode, http.StatusText(e.StatusCode), e.Endpoint)
}

// HTTPStatus implements the optional interface consumed by Classify.
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}
