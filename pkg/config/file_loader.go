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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/carverauto/gridwatch/pkg/logger"
)

// envPlaceholder matches ${VAR_NAME} references inside config values.
var envPlaceholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// FileConfigLoader loads configuration from a local JSON file. String
// values may reference environment variables as ${VAR}; unset variables
// expand to the empty string, so secrets can live outside the file.
type FileConfigLoader struct {
	logger logger.Logger
}

// Load implements ConfigLoader by reading, expanding, and unmarshaling a
// JSON file.
func (l *FileConfigLoader) Load(_ context.Context, path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file '%s': %w", path, err)
	}

	data = expandEnv(data)

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal JSON from '%s': %w", path, err)
	}

	return nil
}

// expandEnv substitutes ${VAR} placeholders with environment values. The
// replacement is JSON-escaped so secrets containing quotes or backslashes
// cannot corrupt the document.
func expandEnv(data []byte) []byte {
	return envPlaceholder.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPlaceholder.FindSubmatch(match)[1]

		value := os.Getenv(string(name))

		escaped, err := json.Marshal(value)
		if err != nil {
			return []byte("")
		}

		// Strip the surrounding quotes; the placeholder sits inside an
		// already-quoted JSON string.
		return escaped[1 : len(escaped)-1]
	})
}
