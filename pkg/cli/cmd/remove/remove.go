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

package remove

import (
	stdctx "context"

	"github.com/corkboard/corkboard/pkg/cli/context"
	"github.com/corkboard/corkboard/pkg/cli/infra"
	"github.com/corkboard/corkboard/pkg/cli/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  corkboard remove 8a3bd012`

func preRun(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("Incorrect number of argument")
	}

	return nil
}

// NewCmd returns a new remove command
func NewCmd(ctx context.CorkboardCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <note-id>",
		Short:   "Remove a note from the board",
		Aliases: []string{"rm", "d"},
		Example: example,
		PreRunE: preRun,
		RunE:    newRun(ctx),
	}

	return cmd
}

func newRun(ctx context.CorkboardCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		noteID := args[0]

		svc, err := infra.InitServices(ctx)
		if err != nil {
			return errors.Wrap(err, "initializing services")
		}

		if err := svc.Engine.DeleteNote(stdctx.Background(), noteID); err != nil {
			return errors.Wrap(err, "removing the note")
		}

		log.Successf("removed note %s\n", noteID)

		return nil
	}
}
