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

package add

import (
	stdctx "context"
	"strings"

	"github.com/corkboard/corkboard/pkg/cli/context"
	"github.com/corkboard/corkboard/pkg/cli/database"
	"github.com/corkboard/corkboard/pkg/cli/infra"
	"github.com/corkboard/corkboard/pkg/cli/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
 * Pin a note to the board
 corkboard add "pick up the dry cleaning"

 * Pin a colored note at a position
 corkboard add "standup at 10" --color "#fca5a5" -x 120 -y 80`

var colorFlag string
var xFlag, yFlag float64
var widthFlag, heightFlag float64

func preRun(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return errors.New("Incorrect number of argument")
	}

	return nil
}

// NewCmd returns a new add command
func NewCmd(ctx context.CorkboardCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "add <text>",
		Short:   "Pin a new note to the board",
		Aliases: []string{"a", "n", "new"},
		Example: example,
		PreRunE: preRun,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.StringVar(&colorFlag, "color", "#fef3c7", "the note color")
	f.Float64VarP(&xFlag, "x", "x", 0, "the horizontal position on the board")
	f.Float64VarP(&yFlag, "y", "y", 0, "the vertical position on the board")
	f.Float64Var(&widthFlag, "width", 200, "the note width")
	f.Float64Var(&heightFlag, "height", 200, "the note height")

	return cmd
}

func newRun(ctx context.CorkboardCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if text == "" {
			return errors.New("Empty content")
		}

		svc, err := infra.InitServices(ctx)
		if err != nil {
			return errors.Wrap(err, "initializing services")
		}

		note, err := svc.Engine.AddNote(database.Note{
			Text:      text,
			PlainText: text,
			Color:     colorFlag,
			X:         xFlag,
			Y:         yFlag,
			Width:     widthFlag,
			Height:    heightFlag,
		})
		if err != nil {
			return errors.Wrap(err, "adding the note")
		}

		// the process exits before the debounce would fire
		if err := svc.Engine.Sync(stdctx.Background()); err != nil {
			log.Warnf("saved locally; upload failed: %v\n", err)
		}

		log.Successf("pinned note %s\n", note.ID)

		return nil
	}
}
