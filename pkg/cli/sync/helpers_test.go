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
	"context"
	gosync "sync"
	"testing"

	"github.com/corkboard/corkboard/pkg/cli/auth"
	"github.com/corkboard/corkboard/pkg/cli/client"
	"github.com/corkboard/corkboard/pkg/cli/consts"
	"github.com/corkboard/corkboard/pkg/cli/database"
	"github.com/corkboard/corkboard/pkg/clock"
	"github.com/pkg/errors"
)

type fakeAuth struct {
	mu   gosync.Mutex
	user *auth.User
}

func (a *fakeAuth) CurrentUser() *auth.User {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.user == nil {
		return nil
	}

	u := *a.user
	return &u
}

func (a *fakeAuth) setUser(u *auth.User) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user = u
}

// fakeRemote is an in-memory remote store. Error queues are consumed one per
// call; an exhausted queue means success.
type fakeRemote struct {
	mu gosync.Mutex

	notes  map[string]client.NoteRecord
	tags   map[string]client.TagRecord
	assocs map[client.NoteTagRecord]bool

	upsertCalls   int
	upsertBatches [][]client.NoteRecord
	deleteCalls   int
	listCalls     int
	addCalls      int
	removeCalls   int
	assocLog      []string

	upsertErrs []error
	deleteErrs []error
	listErrs   []error
	addErrs    []error
	removeErrs []error

	onUpsert func()
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		notes:  map[string]client.NoteRecord{},
		tags:   map[string]client.TagRecord{},
		assocs: map[client.NoteTagRecord]bool{},
	}
}

func popErr(q *[]error) error {
	if len(*q) == 0 {
		return nil
	}

	err := (*q)[0]
	*q = (*q)[1:]

	return err
}

func (r *fakeRemote) UpsertNotes(ctx context.Context, notes []client.NoteRecord) error {
	r.mu.Lock()
	r.upsertCalls++
	batch := make([]client.NoteRecord, len(notes))
	copy(batch, notes)
	r.upsertBatches = append(r.upsertBatches, batch)
	err := popErr(&r.upsertErrs)
	hook := r.onUpsert
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	for _, n := range notes {
		r.notes[n.ID] = n
	}
	r.mu.Unlock()

	return nil
}

func (r *fakeRemote) DeleteNote(ctx context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleteCalls++
	if err := popErr(&r.deleteErrs); err != nil {
		return err
	}

	delete(r.notes, id)

	return nil
}

func (r *fakeRemote) ListNotes(ctx context.Context, userID string) ([]client.NoteRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listCalls++
	if err := popErr(&r.listErrs); err != nil {
		return nil, err
	}

	ret := make([]client.NoteRecord, 0, len(r.notes))
	for _, n := range r.notes {
		ret = append(ret, n)
	}

	return ret, nil
}

func (r *fakeRemote) CreateTag(ctx context.Context, tag client.TagRecord) (client.TagRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tags[tag.ID] = tag

	return tag, nil
}

func (r *fakeRemote) UpdateTag(ctx context.Context, id string, name, color *string) (client.TagRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tag, ok := r.tags[id]
	if !ok {
		return client.TagRecord{}, errors.New("tag not found")
	}
	if name != nil {
		tag.Name = *name
	}
	if color != nil {
		tag.Color = *color
	}
	r.tags[id] = tag

	return tag, nil
}

func (r *fakeRemote) DeleteTag(ctx context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tags, id)
	for pair := range r.assocs {
		if pair.TagID == id {
			delete(r.assocs, pair)
		}
	}

	return nil
}

func (r *fakeRemote) ListTags(ctx context.Context, userID string) ([]client.TagRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ret := make([]client.TagRecord, 0, len(r.tags))
	for _, t := range r.tags {
		ret = append(ret, t)
	}

	return ret, nil
}

func (r *fakeRemote) AddNoteTags(ctx context.Context, pairs []client.NoteTagRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.addCalls++
	r.assocLog = append(r.assocLog, "add")
	if err := popErr(&r.addErrs); err != nil {
		return err
	}

	for _, pair := range pairs {
		r.assocs[pair] = true
	}

	return nil
}

func (r *fakeRemote) RemoveNoteTags(ctx context.Context, pairs []client.NoteTagRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeCalls++
	r.assocLog = append(r.assocLog, "remove")
	if err := popErr(&r.removeErrs); err != nil {
		return err
	}

	for _, pair := range pairs {
		delete(r.assocs, pair)
	}

	return nil
}

type testEnv struct {
	db     *database.DB
	remote *fakeRemote
	auth   *fakeAuth
	clock  *clock.Mock
	engine *Engine
	tags   *TagEngine
}

// newTestEnv builds an engine pair over an in-memory store. A non-empty
// userID starts the environment signed in with the remote already loaded.
func newTestEnv(t *testing.T, userID string) *testEnv {
	t.Helper()

	db := database.InitTestMemoryDB(t)
	remote := newFakeRemote()
	authSrc := &fakeAuth{}
	c := clock.NewMock()

	if userID != "" {
		authSrc.setUser(&auth.User{ID: userID, Email: userID + "@example.com"})
		if err := database.UpdateSystem(db, consts.SystemRemoteLoaded, "true"); err != nil {
			t.Fatal(errors.Wrap(err, "seeding remote-loaded flag"))
		}
	}

	engine, err := NewEngine(db, remote, authSrc, c, DefaultConfig())
	if err != nil {
		t.Fatal(errors.Wrap(err, "initializing engine"))
	}

	return &testEnv{
		db:     db,
		remote: remote,
		auth:   authSrc,
		clock:  c,
		engine: engine,
		tags:   NewTagEngine(db, remote, authSrc, c, DefaultConfig(), engine),
	}
}

func (env *testEnv) mustAddNote(t *testing.T, text string) database.Note {
	t.Helper()

	n, err := env.engine.AddNote(database.Note{Text: text, PlainText: text, Color: "#fef3c7"})
	if err != nil {
		t.Fatal(errors.Wrap(err, "adding a note"))
	}

	return n
}

func (env *testEnv) mustGetNote(t *testing.T, id string) database.Note {
	t.Helper()

	n, ok, err := database.GetNote(env.db, id)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting a note"))
	}
	if !ok {
		t.Fatalf("note %s not found", id)
	}

	return n
}

func transientErr() error {
	return &client.APIError{StatusCode: 503, Message: "service unavailable"}
}

func permanentErr() error {
	return &client.APIError{StatusCode: 400, Message: "invalid payload"}
}
