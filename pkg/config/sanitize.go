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

package config

import (
	"encoding/json"
	"strings"
)

const redactedValue = "[redacted]"

var sensitiveKeyFragments = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"credential",
}

// Sanitize round-trips cfg through JSON and redacts any field whose key
// looks credential-bearing, at any nesting depth. Used by the HTTP API's
// config endpoint so operators can inspect settings without exposing
// secrets.
func Sanitize(cfg interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	redactDoc(doc)

	return doc, nil
}

func redactDoc(doc map[string]interface{}) {
	for key, value := range doc {
		if isSensitiveKey(key) {
			if s, ok := value.(string); ok && s != "" {
				doc[key] = redactedValue
			}

			continue
		}

		if nested, ok := value.(map[string]interface{}); ok {
			redactDoc(nested)
		}
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)

	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}

	return false
}
