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

package view

import (
	"sort"
	"strings"

	"github.com/corkboard/corkboard/pkg/cli/context"
	"github.com/corkboard/corkboard/pkg/cli/database"
	"github.com/corkboard/corkboard/pkg/cli/infra"
	"github.com/corkboard/corkboard/pkg/cli/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
 * List the notes on the board
 corkboard view

 * Show one note
 corkboard view 8a3bd012`

// NewCmd returns a new view command
func NewCmd(ctx context.CorkboardCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "view [note-id]",
		Short:   "Show the board or a single note",
		Aliases: []string{"v", "ls"},
		Example: example,
		RunE:    newRun(ctx),
	}

	return cmd
}

func tagNames(tags []database.Tag, ids []string) []string {
	byID := map[string]string{}
	for _, t := range tags {
		byID[t.ID] = t.Name
	}

	var ret []string
	for _, id := range ids {
		if name, ok := byID[id]; ok {
			ret = append(ret, name)
		}
	}
	sort.Strings(ret)

	return ret
}

func printBoard(svc *infra.Services) error {
	notes, err := svc.Engine.Notes()
	if err != nil {
		return errors.Wrap(err, "listing notes")
	}
	tags, err := svc.Tags.Tags()
	if err != nil {
		return errors.Wrap(err, "listing tags")
	}

	if len(notes) == 0 {
		log.Info("the board is empty\n")
		return nil
	}

	for _, n := range notes {
		line := n.PlainText
		if n.Mode == database.ModeDraw {
			line = "(drawing)"
		}

		suffix := ""
		if names := tagNames(tags, n.TagIDs); len(names) > 0 {
			suffix = " [" + strings.Join(names, ", ") + "]"
		}
		if n.Dirty {
			suffix += " *"
		}

		log.Plainf("%s  %s%s\n", n.ID, line, suffix)
	}

	return nil
}

func printNote(ctx context.CorkboardCtx, svc *infra.Services, id string) error {
	n, ok, err := database.GetNote(ctx.DB, id)
	if err != nil {
		return errors.Wrap(err, "finding the note")
	}
	if !ok {
		log.Errorf("note %s not found\n", id)
		return nil
	}

	tags, err := svc.Tags.Tags()
	if err != nil {
		return errors.Wrap(err, "listing tags")
	}

	log.Plainf("id: %s\n", n.ID)
	log.Plainf("text: %s\n", n.PlainText)
	log.Plainf("color: %s\n", n.Color)
	log.Plainf("position: (%.0f, %.0f) %.0fx%.0f z%d\n", n.X, n.Y, n.Width, n.Height, n.ZIndex)
	log.Plainf("mode: %s\n", n.Mode)
	if names := tagNames(tags, n.TagIDs); len(names) > 0 {
		log.Plainf("tags: %s\n", strings.Join(names, ", "))
	}
	log.Plainf("created: %s\n", n.DateCreated.Format("2006-01-02 15:04"))
	log.Plainf("edited: %s\n", n.LastEdited.Format("2006-01-02 15:04"))
	if n.Dirty {
		log.Plain("pending upload\n")
	}

	return nil
}

func newRun(ctx context.CorkboardCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		svc, err := infra.InitServices(ctx)
		if err != nil {
			return errors.Wrap(err, "initializing services")
		}

		if len(args) == 0 {
			return printBoard(svc)
		}

		return printNote(ctx, svc, args[0])
	}
}
