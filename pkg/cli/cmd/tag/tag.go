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

package tag

import (
	stdctx "context"

	"github.com/corkboard/corkboard/pkg/cli/context"
	"github.com/corkboard/corkboard/pkg/cli/database"
	"github.com/corkboard/corkboard/pkg/cli/infra"
	"github.com/corkboard/corkboard/pkg/cli/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var colorFlag string

// NewCmd returns a new tag command with its subcommands
func NewCmd(ctx context.CorkboardCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage tags and tag notes",
	}

	cmd.AddCommand(newLsCmd(ctx))
	cmd.AddCommand(newCreateCmd(ctx))
	cmd.AddCommand(newRemoveCmd(ctx))
	cmd.AddCommand(newAttachCmd(ctx))
	cmd.AddCommand(newDetachCmd(ctx))

	return cmd
}

func newLsCmd(ctx context.CorkboardCtx) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := infra.InitServices(ctx)
			if err != nil {
				return errors.Wrap(err, "initializing services")
			}

			tags, err := svc.Tags.Tags()
			if err != nil {
				return errors.Wrap(err, "listing tags")
			}

			if len(tags) == 0 {
				log.Info("no tags yet\n")
				return nil
			}

			for _, t := range tags {
				log.Plainf("%s  %s (%s)\n", t.ID, t.Name, t.Color)
			}

			return nil
		},
	}
}

func newCreateCmd(ctx context.CorkboardCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := infra.InitServices(ctx)
			if err != nil {
				return errors.Wrap(err, "initializing services")
			}

			tag, err := svc.Tags.CreateTag(stdctx.Background(), args[0], colorFlag)
			if err != nil {
				return errors.Wrap(err, "creating the tag")
			}

			log.Successf("created tag %s (%s)\n", tag.Name, tag.ID)

			return nil
		},
	}

	cmd.Flags().StringVar(&colorFlag, "color", "", "the tag color (defaults to gray)")

	return cmd
}

func newRemoveCmd(ctx context.CorkboardCtx) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <tag-name>",
		Short:   "Delete a tag everywhere",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := infra.InitServices(ctx)
			if err != nil {
				return errors.Wrap(err, "initializing services")
			}

			tag, err := findTagByName(svc, args[0])
			if err != nil {
				return err
			}

			if err := svc.Tags.DeleteTag(stdctx.Background(), tag.ID); err != nil {
				return errors.Wrap(err, "deleting the tag")
			}

			log.Successf("removed tag %s\n", tag.Name)

			return nil
		},
	}
}

func newAttachCmd(ctx context.CorkboardCtx) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <note-id> <tag-name>",
		Short: "Tag a note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := infra.InitServices(ctx)
			if err != nil {
				return errors.Wrap(err, "initializing services")
			}

			tag, err := findTagByName(svc, args[1])
			if err != nil {
				return err
			}

			if err := svc.Tags.TagNote(args[0], tag.ID); err != nil {
				return errors.Wrap(err, "tagging the note")
			}
			if err := svc.Tags.Flush(stdctx.Background()); err != nil {
				log.Warnf("saved locally; upload failed: %v\n", err)
			}

			log.Successf("tagged note %s with %s\n", args[0], tag.Name)

			return nil
		},
	}
}

func newDetachCmd(ctx context.CorkboardCtx) *cobra.Command {
	return &cobra.Command{
		Use:   "detach <note-id> <tag-name>",
		Short: "Untag a note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := infra.InitServices(ctx)
			if err != nil {
				return errors.Wrap(err, "initializing services")
			}

			tag, err := findTagByName(svc, args[1])
			if err != nil {
				return err
			}

			if err := svc.Tags.UntagNote(args[0], tag.ID); err != nil {
				return errors.Wrap(err, "untagging the note")
			}
			if err := svc.Tags.Flush(stdctx.Background()); err != nil {
				log.Warnf("saved locally; upload failed: %v\n", err)
			}

			log.Successf("untagged note %s from %s\n", args[0], tag.Name)

			return nil
		},
	}
}

func findTagByName(svc *infra.Services, name string) (database.Tag, error) {
	tags, err := svc.Tags.Tags()
	if err != nil {
		return database.Tag{}, errors.Wrap(err, "listing tags")
	}

	for _, t := range tags {
		if t.Name == name {
			return t, nil
		}
	}

	return database.Tag{}, errors.Errorf("tag %s not found", name)
}
