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

package edit

import (
	stdctx "context"

	"github.com/corkboard/corkboard/pkg/cli/context"
	"github.com/corkboard/corkboard/pkg/cli/infra"
	"github.com/corkboard/corkboard/pkg/cli/log"
	"github.com/corkboard/corkboard/pkg/cli/sync"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
 * Rewrite a note
 corkboard edit 8a3bd012 --text "standup moved to 11"

 * Move and recolor a note
 corkboard edit 8a3bd012 -x 300 -y 40 --color "#bbf7d0"

 * Raise a note above the others
 corkboard edit 8a3bd012 --front`

var textFlag string
var colorFlag string
var xFlag, yFlag float64
var widthFlag, heightFlag float64
var frontFlag bool

func preRun(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("Incorrect number of argument")
	}

	return nil
}

// NewCmd returns a new edit command
func NewCmd(ctx context.CorkboardCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "edit <note-id>",
		Short:   "Edit a note on the board",
		Aliases: []string{"e"},
		Example: example,
		PreRunE: preRun,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.StringVar(&textFlag, "text", "", "the new text for the note")
	f.StringVar(&colorFlag, "color", "", "the new note color")
	f.Float64VarP(&xFlag, "x", "x", 0, "the horizontal position on the board")
	f.Float64VarP(&yFlag, "y", "y", 0, "the vertical position on the board")
	f.Float64Var(&widthFlag, "width", 0, "the note width")
	f.Float64Var(&heightFlag, "height", 0, "the note height")
	f.BoolVar(&frontFlag, "front", false, "bring the note above the others")

	return cmd
}

// buildUpdate translates the flags that were actually set into a partial
// update, so untouched fields stay as they are
func buildUpdate(cmd *cobra.Command) sync.NoteUpdate {
	var update sync.NoteUpdate

	f := cmd.Flags()
	if f.Changed("text") {
		update.Text = &textFlag
		update.PlainText = &textFlag
	}
	if f.Changed("color") {
		update.Color = &colorFlag
	}
	if f.Changed("x") {
		update.X = &xFlag
	}
	if f.Changed("y") {
		update.Y = &yFlag
	}
	if f.Changed("width") {
		update.Width = &widthFlag
	}
	if f.Changed("height") {
		update.Height = &heightFlag
	}

	return update
}

func newRun(ctx context.CorkboardCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		noteID := args[0]

		svc, err := infra.InitServices(ctx)
		if err != nil {
			return errors.Wrap(err, "initializing services")
		}

		if err := svc.Engine.UpdateNote(noteID, buildUpdate(cmd)); err != nil {
			return errors.Wrap(err, "editing the note")
		}
		if frontFlag {
			if err := svc.Engine.BringToFront(noteID); err != nil {
				return errors.Wrap(err, "raising the note")
			}
		}

		if err := svc.Engine.Sync(stdctx.Background()); err != nil {
			log.Warnf("saved locally; upload failed: %v\n", err)
		}

		log.Successf("edited note %s\n", noteID)

		return nil
	}
}
