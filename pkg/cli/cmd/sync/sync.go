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

package sync

import (
	stdctx "context"

	"github.com/corkboard/corkboard/pkg/cli/context"
	"github.com/corkboard/corkboard/pkg/cli/infra"
	"github.com/corkboard/corkboard/pkg/cli/log"
	synce "github.com/corkboard/corkboard/pkg/cli/sync"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  corkboard sync`

var isFullSync bool
var apiEndpointFlag string

// NewCmd returns a new sync command
func NewCmd(ctx context.CorkboardCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sync",
		Aliases: []string{"s"},
		Short:   "Sync the board with the server",
		Example: example,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.BoolVarP(&isFullSync, "full", "f", false, "replace the local board with the server's copy after uploading")
	f.StringVar(&apiEndpointFlag, "apiEndpoint", "", "API endpoint to connect to (defaults to value in config)")

	return cmd
}

func newRun(ctx context.CorkboardCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		if apiEndpointFlag != "" {
			ctx.APIEndpoint = apiEndpointFlag
		}

		svc, err := infra.InitServices(ctx)
		if err != nil {
			return errors.Wrap(err, "initializing services")
		}

		if svc.Auth.CurrentUser() == nil {
			log.Error("not logged in\n")
			return nil
		}
		if svc.Engine.MergeStatus() == synce.MergePrompt {
			log.Error("a merge decision is pending; run corkboard login\n")
			return nil
		}
		if !svc.Engine.HasLoadedRemote() {
			log.Warnf("the board has not been loaded from the server yet; check your connection and retry\n")
			return nil
		}

		bg := stdctx.Background()
		pending := len(svc.Engine.DirtyIDs())

		log.Infof("uploading %d note(s)\n", pending)

		if err := svc.Engine.Sync(bg); err != nil {
			return errors.Wrap(err, "syncing notes")
		}
		if err := svc.Tags.Flush(bg); err != nil {
			return errors.Wrap(err, "syncing tags")
		}

		if isFullSync {
			if err := svc.Engine.ReloadFromRemote(bg); err != nil {
				return errors.Wrap(err, "downloading the board")
			}
		}

		log.Success("done\n")

		return nil
	}
}
