/* Copyright 2025 Corkboard Authors
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

// Package dirs resolves the base directories for user data
package dirs

import (
	"os"
	"path/filepath"
)

var (
	// Home is the current user's home directory
	Home string
	// ConfigHome is the base directory for user configuration files
	ConfigHome string
	// DataHome is the base directory for user data files
	DataHome string
	// CacheHome is the base directory for user cache files
	CacheHome string
)

func init() {
	Reload()
}

// Reload re-resolves the directories from the environment. It is used by
// tests that point the process at a temporary home.
func Reload() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	Home = home
	ConfigHome = fromEnv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	DataHome = fromEnv("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	CacheHome = fromEnv("XDG_CACHE_HOME", filepath.Join(home, ".cache"))
}

func fromEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
