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

package login

import (
	"bufio"
	stdctx "context"
	"os"
	"strings"

	"github.com/corkboard/corkboard/pkg/cli/client"
	"github.com/corkboard/corkboard/pkg/cli/context"
	"github.com/corkboard/corkboard/pkg/cli/infra"
	"github.com/corkboard/corkboard/pkg/cli/log"
	"github.com/corkboard/corkboard/pkg/cli/sync"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  corkboard login
  corkboard login --email alice@example.com`

var emailFlag string
var passwordFlag string
var registerFlag bool
var apiEndpointFlag string

// NewCmd returns a new login command
func NewCmd(ctx context.CorkboardCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "login",
		Short:   "Login to the server",
		Example: example,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.StringVar(&emailFlag, "email", "", "account email")
	f.StringVar(&passwordFlag, "password", "", "account password (prompted if not given)")
	f.BoolVar(&registerFlag, "register", false, "create a new account instead of logging in")
	f.StringVar(&apiEndpointFlag, "apiEndpoint", "", "API endpoint to connect to (defaults to value in config)")

	return cmd
}

func prompt(label string) (string, error) {
	log.Askf(label)

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", errors.Wrap(err, "reading input")
	}

	return strings.TrimSpace(input), nil
}

func getCredentials() (string, string, error) {
	email := emailFlag
	if email == "" {
		var err error
		email, err = prompt("email")
		if err != nil {
			return "", "", err
		}
	}

	password := passwordFlag
	if password == "" {
		var err error
		password, err = prompt("password")
		if err != nil {
			return "", "", err
		}
	}

	return email, password, nil
}

// resolveMerge asks what to do with the guest notes found on the board and
// carries the decision out. Confirmed notes are uploaded before returning so
// that the process does not exit with the batch still pending.
func resolveMerge(svc *infra.Services) error {
	bg := stdctx.Background()

	guest := svc.Engine.GuestNotes()
	log.Infof("you have %d local note(s) from before logging in\n", len(guest))

	answer, err := prompt("keep them in your account? (y/n)")
	if err != nil {
		return err
	}

	if strings.HasPrefix(strings.ToLower(answer), "y") {
		if err := svc.Engine.ConfirmMerge(bg); err != nil {
			return errors.Wrap(err, "merging notes")
		}

		log.Successf("merged %d note(s) into your account\n", len(guest))
		return nil
	}

	if err := svc.Engine.DiscardMerge(bg); err != nil {
		return errors.Wrap(err, "discarding notes")
	}
	log.Info("local notes set aside; they come back when you log out\n")

	return nil
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

		email, password, err := getCredentials()
		if err != nil {
			return err
		}

		bg := stdctx.Background()
		if registerFlag {
			err = svc.Auth.SignUp(bg, email, password)
		} else {
			err = svc.Auth.SignIn(bg, email, password)
		}
		if errors.Cause(err) == client.ErrInvalidLogin {
			log.Error("wrong login\n")
			return nil
		} else if err != nil {
			return errors.Wrap(err, "logging in")
		}

		if svc.Engine.MergeStatus() == sync.MergePrompt {
			if err := resolveMerge(svc); err != nil {
				return err
			}
		}

		log.Successf("logged in as %s\n", email)

		return nil
	}
}
