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

package logout

import (
	stdctx "context"

	"github.com/corkboard/corkboard/pkg/cli/context"
	"github.com/corkboard/corkboard/pkg/cli/infra"
	"github.com/corkboard/corkboard/pkg/cli/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  corkboard logout`

var apiEndpointFlag string

// NewCmd returns a new logout command
func NewCmd(ctx context.CorkboardCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "logout",
		Short:   "Logout from the server",
		Example: example,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
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

		if err := svc.Auth.SignOut(stdctx.Background()); err != nil {
			return errors.Wrap(err, "logging out")
		}

		log.Success("logged out\n")

		return nil
	}
}
