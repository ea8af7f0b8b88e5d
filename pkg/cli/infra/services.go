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

package infra

import (
	stdctx "context"

	"github.com/corkboard/corkboard/pkg/cli/auth"
	"github.com/corkboard/corkboard/pkg/cli/client"
	"github.com/corkboard/corkboard/pkg/cli/context"
	"github.com/corkboard/corkboard/pkg/cli/log"
	"github.com/corkboard/corkboard/pkg/cli/sync"
	"github.com/pkg/errors"
)

// Services bundles the long-lived collaborators of a corkboard process
type Services struct {
	Client *client.Client
	Auth   *auth.Service
	Engine *sync.Engine
	Tags   *sync.TagEngine
}

// InitServices wires the client, the auth service and the engines together.
// The auth service drives the engine through its event stream; the initial
// session, if any, is delivered before this returns.
func InitServices(ctx context.CorkboardCtx) (*Services, error) {
	c := client.New(ctx.APIEndpoint, ctx.Version, ctx.HTTPClient)

	authSvc, err := auth.NewService(ctx.DB, c)
	if err != nil {
		return nil, errors.Wrap(err, "initializing auth service")
	}

	engine, err := sync.NewEngine(ctx.DB, c, authSvc, ctx.Clock, sync.DefaultConfig())
	if err != nil {
		return nil, errors.Wrap(err, "initializing sync engine")
	}
	tags := sync.NewTagEngine(ctx.DB, c, authSvc, ctx.Clock, sync.DefaultConfig(), engine)

	authSvc.Subscribe(func(ev auth.Event) {
		if err := engine.HandleAuthEvent(stdctx.Background(), ev); err != nil {
			log.Debug("handling auth event %s: %v\n", ev, err)
		}
	})
	authSvc.Initialize()

	return &Services{
		Client: c,
		Auth:   authSvc,
		Engine: engine,
		Tags:   tags,
	}, nil
}
