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

package main

import (
	"os"
	"strings"

	"github.com/corkboard/corkboard/pkg/cli/infra"
	"github.com/corkboard/corkboard/pkg/cli/log"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	// commands
	"github.com/corkboard/corkboard/pkg/cli/cmd/add"
	"github.com/corkboard/corkboard/pkg/cli/cmd/edit"
	"github.com/corkboard/corkboard/pkg/cli/cmd/login"
	"github.com/corkboard/corkboard/pkg/cli/cmd/logout"
	"github.com/corkboard/corkboard/pkg/cli/cmd/remove"
	"github.com/corkboard/corkboard/pkg/cli/cmd/root"
	"github.com/corkboard/corkboard/pkg/cli/cmd/sync"
	"github.com/corkboard/corkboard/pkg/cli/cmd/tag"
	"github.com/corkboard/corkboard/pkg/cli/cmd/version"
	"github.com/corkboard/corkboard/pkg/cli/cmd/view"
)

// apiEndpoint and versionTag are populated during link time
var apiEndpoint string
var versionTag = "master"

// parseDBPath extracts the --dbPath flag value from command line arguments
// regardless of where it appears, since it can follow the subcommand
func parseDBPath(args []string) string {
	for i, arg := range args {
		if strings.HasPrefix(arg, "--dbPath=") {
			return strings.TrimPrefix(arg, "--dbPath=")
		}
		if arg == "--dbPath" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func main() {
	dbPath := parseDBPath(os.Args[1:])

	ctx, err := infra.Init(versionTag, apiEndpoint, dbPath)
	if err != nil {
		panic(errors.Wrap(err, "initializing context"))
	}
	defer ctx.DB.Close()

	root.Register(add.NewCmd(*ctx))
	root.Register(edit.NewCmd(*ctx))
	root.Register(remove.NewCmd(*ctx))
	root.Register(view.NewCmd(*ctx))
	root.Register(tag.NewCmd(*ctx))
	root.Register(login.NewCmd(*ctx))
	root.Register(logout.NewCmd(*ctx))
	root.Register(sync.NewCmd(*ctx))
	root.Register(version.NewCmd(*ctx))

	if err := root.Execute(); err != nil {
		log.Errorf("%s\n", err.Error())
		os.Exit(1)
	}
}
