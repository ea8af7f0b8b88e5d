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

package config

import (
	"fmt"
	"os"

	"github.com/corkboard/corkboard/pkg/cli/consts"
	"github.com/corkboard/corkboard/pkg/cli/context"
	"github.com/corkboard/corkboard/pkg/cli/utils"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config holds corkboard configuration
type Config struct {
	Editor      string `yaml:"editor"`
	APIEndpoint string `yaml:"apiEndpoint"`
}

// GetPath returns the path to the corkboard config file
func GetPath(ctx context.CorkboardCtx) string {
	return fmt.Sprintf("%s/%s/%s", ctx.Paths.Config, consts.CorkboardDirName, consts.ConfigFilename)
}

func getEnvPath(ctx context.CorkboardCtx) string {
	return fmt.Sprintf("%s/%s/%s", ctx.Paths.Config, consts.CorkboardDirName, consts.EnvFilename)
}

// Read reads the config file and applies the env overlay. Values from an
// optional .env file next to the config, or from the process environment,
// take precedence over the config file.
func Read(ctx context.CorkboardCtx) (Config, error) {
	var ret Config

	configPath := GetPath(ctx)
	b, err := os.ReadFile(configPath)
	if err != nil {
		return ret, errors.Wrap(err, "reading config file")
	}

	err = yaml.Unmarshal(b, &ret)
	if err != nil {
		return ret, errors.Wrap(err, "unmarshalling config")
	}

	if err := applyEnv(ctx, &ret); err != nil {
		return ret, err
	}

	return ret, nil
}

func applyEnv(ctx context.CorkboardCtx, cf *Config) error {
	envPath := getEnvPath(ctx)
	ok, err := utils.FileExists(envPath)
	if err != nil {
		return errors.Wrap(err, "checking env file")
	}
	if ok {
		if err := godotenv.Load(envPath); err != nil {
			return errors.Wrap(err, "loading env file")
		}
	}

	if v := os.Getenv("CORKBOARD_API_ENDPOINT"); v != "" {
		cf.APIEndpoint = v
	}
	if v := os.Getenv("CORKBOARD_EDITOR"); v != "" {
		cf.Editor = v
	}

	return nil
}

// Write writes the config to the config file
func Write(ctx context.CorkboardCtx, cf Config) error {
	path := GetPath(ctx)

	b, err := yaml.Marshal(cf)
	if err != nil {
		return errors.Wrap(err, "marshalling config into YAML")
	}

	err = os.WriteFile(path, b, 0644)
	if err != nil {
		return errors.Wrap(err, "writing the config file")
	}

	return nil
}
