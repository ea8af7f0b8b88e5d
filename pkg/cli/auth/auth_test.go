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

package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/corkboard/corkboard/pkg/cli/client"
	"github.com/corkboard/corkboard/pkg/cli/consts"
	"github.com/corkboard/corkboard/pkg/cli/database"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/signin", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"key": "k1", "expires_at": 1700003600000, "user": {"id": "user1", "email": "alice@example.com"}}`)
	})
	mux.HandleFunc("/v1/register", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"key": "k2", "expires_at": 1700003600000, "user": {"id": "user2", "email": "bob@example.com"}}`)
	})
	mux.HandleFunc("/v1/signout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func newTestService(t *testing.T, db *database.DB) *Service {
	t.Helper()

	server := newTestServer(t)

	svc, err := NewService(db, client.New(server.URL, "test", server.Client()))
	if err != nil {
		t.Fatal(err)
	}

	return svc
}

func TestSignInPersistsSession(t *testing.T) {
	db := database.InitTestMemoryDB(t)
	svc := newTestService(t, db)

	var events []Event
	svc.Subscribe(func(ev Event) { events = append(events, ev) })

	if err := svc.SignIn(context.Background(), "alice@example.com", "pass"); err != nil {
		t.Fatal(err)
	}

	user := svc.CurrentUser()
	if user == nil || user.ID != "user1" {
		t.Fatalf("got user %v, want user1", user)
	}
	if len(events) != 1 || events[0] != EventSignedIn {
		t.Errorf("got events %v, want a single signed-in event", events)
	}

	var key string
	if err := database.GetSystem(db, consts.SystemSessionKey, &key); err != nil {
		t.Fatal(err)
	}
	if key != "k1" {
		t.Errorf("got persisted key %q, want k1", key)
	}
}

func TestSessionRestoredAcrossProcesses(t *testing.T) {
	db := database.InitTestMemoryDB(t)
	svc := newTestService(t, db)

	if err := svc.SignIn(context.Background(), "alice@example.com", "pass"); err != nil {
		t.Fatal(err)
	}

	restarted := newTestService(t, db)

	var events []Event
	restarted.Subscribe(func(ev Event) { events = append(events, ev) })
	restarted.Initialize()
	restarted.Initialize()

	user := restarted.CurrentUser()
	if user == nil || user.Email != "alice@example.com" {
		t.Fatalf("got user %v, want the restored session owner", user)
	}
	if len(events) != 1 || events[0] != EventInitialSession {
		t.Errorf("got events %v, want a single initial-session event", events)
	}
}

func TestSignOutClearsSession(t *testing.T) {
	db := database.InitTestMemoryDB(t)
	svc := newTestService(t, db)

	if err := svc.SignIn(context.Background(), "alice@example.com", "pass"); err != nil {
		t.Fatal(err)
	}

	var events []Event
	svc.Subscribe(func(ev Event) { events = append(events, ev) })

	if err := svc.SignOut(context.Background()); err != nil {
		t.Fatal(err)
	}

	if svc.CurrentUser() != nil {
		t.Error("got a user after sign-out")
	}
	if len(events) != 1 || events[0] != EventSignedOut {
		t.Errorf("got events %v, want a single signed-out event", events)
	}

	var key string
	if err := database.GetSystem(db, consts.SystemSessionKey, &key); err != nil {
		t.Fatal(err)
	}
	if key != "" {
		t.Errorf("got persisted key %q after sign-out, want none", key)
	}
}

func TestInitializeWithoutSession(t *testing.T) {
	db := database.InitTestMemoryDB(t)
	svc := newTestService(t, db)

	var events []Event
	svc.Subscribe(func(ev Event) { events = append(events, ev) })
	svc.Initialize()

	if len(events) != 0 {
		t.Errorf("got events %v without a persisted session, want none", events)
	}
}

func TestSignInFailureRecordsError(t *testing.T) {
	db := database.InitTestMemoryDB(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "wrong login"}`)
	}))
	t.Cleanup(server.Close)

	svc, err := NewService(db, client.New(server.URL, "test", server.Client()))
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.SignIn(context.Background(), "alice@example.com", "nope"); err == nil {
		t.Fatal("got nil error from a rejected sign-in")
	}

	if svc.LastError() == "" {
		t.Error("got no recorded error after a rejected sign-in")
	}
	if svc.CurrentUser() != nil {
		t.Error("got a user after a rejected sign-in")
	}

	svc.ClearError()
	if svc.LastError() != "" {
		t.Error("got a recorded error after clearing")
	}
}
