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
	"testing"
	"time"

	"github.com/corkboard/corkboard/pkg/cli/client"
	"github.com/google/go-cmp/cmp"
)

func TestTagNoteDebounced(t *testing.T) {
	env := newTestEnv(t, "user1")

	n := env.mustAddNote(t, "note")
	env.clock.Advance(500 * time.Millisecond)

	tag, err := env.tags.CreateTag(context.Background(), "work", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := env.tags.TagNote(n.ID, tag.ID); err != nil {
		t.Fatal(err)
	}

	// the local note updates immediately
	if diff := cmp.Diff([]string{tag.ID}, env.mustGetNote(t, n.ID).TagIDs); diff != "" {
		t.Fatalf("local tag ids mismatch (-want +got):\n%s", diff)
	}
	if env.remote.addCalls != 0 {
		t.Fatalf("got %d association uploads before the quiet period, want 0", env.remote.addCalls)
	}

	env.clock.Advance(500 * time.Millisecond)

	if env.remote.addCalls != 1 {
		t.Fatalf("got %d association uploads, want 1", env.remote.addCalls)
	}
	if !env.remote.assocs[client.NoteTagRecord{NoteID: n.ID, TagID: tag.ID}] {
		t.Error("association missing in the remote store")
	}

	toAdd, toRemove := env.tags.PendingOps(n.ID)
	if len(toAdd) != 0 || len(toRemove) != 0 {
		t.Errorf("got pending ops %v/%v after upload, want none", toAdd, toRemove)
	}
}

func TestTagThenUntagCancelsOut(t *testing.T) {
	env := newTestEnv(t, "user1")

	n := env.mustAddNote(t, "note")
	env.clock.Advance(500 * time.Millisecond)

	tag, err := env.tags.CreateTag(context.Background(), "work", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := env.tags.TagNote(n.ID, tag.ID); err != nil {
		t.Fatal(err)
	}
	if err := env.tags.UntagNote(n.ID, tag.ID); err != nil {
		t.Fatal(err)
	}

	env.clock.Advance(time.Second)

	if env.remote.addCalls != 0 || env.remote.removeCalls != 0 {
		t.Errorf("got %d adds and %d removes, want the operations cancelled out",
			env.remote.addCalls, env.remote.removeCalls)
	}
	if got := len(env.mustGetNote(t, n.ID).TagIDs); got != 0 {
		t.Errorf("got %d local tag ids, want 0", got)
	}
}

func TestUntagThenRetagCancelsOut(t *testing.T) {
	env := newTestEnv(t, "user1")

	n := env.mustAddNote(t, "note")
	env.clock.Advance(500 * time.Millisecond)

	tag, err := env.tags.CreateTag(context.Background(), "work", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.tags.TagNote(n.ID, tag.ID); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(500 * time.Millisecond)

	if err := env.tags.UntagNote(n.ID, tag.ID); err != nil {
		t.Fatal(err)
	}
	if err := env.tags.TagNote(n.ID, tag.ID); err != nil {
		t.Fatal(err)
	}

	env.clock.Advance(time.Second)

	if env.remote.addCalls != 1 || env.remote.removeCalls != 0 {
		t.Errorf("got %d adds and %d removes, want no traffic beyond the original add",
			env.remote.addCalls, env.remote.removeCalls)
	}
	if !env.remote.assocs[client.NoteTagRecord{NoteID: n.ID, TagID: tag.ID}] {
		t.Error("association missing in the remote store")
	}
}

func TestTagFlushRemovesBeforeAdds(t *testing.T) {
	env := newTestEnv(t, "user1")

	n := env.mustAddNote(t, "note")
	env.clock.Advance(500 * time.Millisecond)

	old, err := env.tags.CreateTag(context.Background(), "old", "")
	if err != nil {
		t.Fatal(err)
	}
	next, err := env.tags.CreateTag(context.Background(), "next", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := env.tags.TagNote(n.ID, old.ID); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(500 * time.Millisecond)

	if err := env.tags.UntagNote(n.ID, old.ID); err != nil {
		t.Fatal(err)
	}
	if err := env.tags.TagNote(n.ID, next.ID); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(500 * time.Millisecond)

	// the mixed batch drops the stale association before inserting the new one
	if diff := cmp.Diff([]string{"add", "remove", "add"}, env.remote.assocLog); diff != "" {
		t.Errorf("association call order mismatch (-want +got):\n%s", diff)
	}
	if env.remote.assocs[client.NoteTagRecord{NoteID: n.ID, TagID: old.ID}] {
		t.Error("stale association still in the remote store")
	}
	if !env.remote.assocs[client.NoteTagRecord{NoteID: n.ID, TagID: next.ID}] {
		t.Error("association missing in the remote store")
	}
}

func TestTagOpsCoalescePerNote(t *testing.T) {
	env := newTestEnv(t, "user1")

	n := env.mustAddNote(t, "note")
	env.clock.Advance(500 * time.Millisecond)

	for _, name := range []string{"a", "b", "c"} {
		tag, err := env.tags.CreateTag(context.Background(), name, "")
		if err != nil {
			t.Fatal(err)
		}
		if err := env.tags.TagNote(n.ID, tag.ID); err != nil {
			t.Fatal(err)
		}
	}

	env.clock.Advance(500 * time.Millisecond)

	if env.remote.addCalls != 1 {
		t.Fatalf("got %d association uploads, want a single coalesced batch", env.remote.addCalls)
	}
	if got := len(env.remote.assocs); got != 3 {
		t.Errorf("got %d remote associations, want 3", got)
	}
}

func TestDuplicateAssociationIsBenign(t *testing.T) {
	env := newTestEnv(t, "user1")

	n := env.mustAddNote(t, "note")
	env.clock.Advance(500 * time.Millisecond)

	tag, err := env.tags.CreateTag(context.Background(), "work", "")
	if err != nil {
		t.Fatal(err)
	}

	env.remote.addErrs = []error{&client.APIError{StatusCode: 409, Code: "23505", Message: "duplicate key value"}}

	if err := env.tags.TagNote(n.ID, tag.ID); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(500 * time.Millisecond)

	if env.tags.LastError() != nil {
		t.Error("got an error recorded for a duplicate association")
	}

	toAdd, _ := env.tags.PendingOps(n.ID)
	if len(toAdd) != 0 {
		t.Errorf("got pending adds %v, want the duplicate treated as uploaded", toAdd)
	}

	env.clock.Advance(time.Minute)
	if env.remote.addCalls != 1 {
		t.Errorf("got %d association uploads, want no retries", env.remote.addCalls)
	}
}

func TestTagFlushRetries(t *testing.T) {
	env := newTestEnv(t, "user1")

	n := env.mustAddNote(t, "note")
	env.clock.Advance(500 * time.Millisecond)

	tag, err := env.tags.CreateTag(context.Background(), "work", "")
	if err != nil {
		t.Fatal(err)
	}

	env.remote.addErrs = []error{transientErr()}

	if err := env.tags.TagNote(n.ID, tag.ID); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(500 * time.Millisecond)

	if env.remote.addCalls != 1 {
		t.Fatalf("got %d association uploads, want the initial attempt", env.remote.addCalls)
	}

	env.clock.Advance(time.Second)

	if env.remote.addCalls != 2 {
		t.Fatalf("got %d association uploads, want a retry after 1s", env.remote.addCalls)
	}
	if !env.remote.assocs[client.NoteTagRecord{NoteID: n.ID, TagID: tag.ID}] {
		t.Error("association missing in the remote store after the retry")
	}
}

func TestUntagDuringRetryCancelsAdd(t *testing.T) {
	env := newTestEnv(t, "user1")

	n := env.mustAddNote(t, "note")
	env.clock.Advance(500 * time.Millisecond)

	tag, err := env.tags.CreateTag(context.Background(), "work", "")
	if err != nil {
		t.Fatal(err)
	}

	env.remote.addErrs = []error{transientErr()}

	if err := env.tags.TagNote(n.ID, tag.ID); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(500 * time.Millisecond)

	// the failed add is queued for retry; removing the tag now cancels it
	if err := env.tags.UntagNote(n.ID, tag.ID); err != nil {
		t.Fatal(err)
	}

	env.clock.Advance(time.Minute)

	if env.remote.addCalls != 1 || env.remote.removeCalls != 0 {
		t.Errorf("got %d adds and %d removes, want the retry cancelled",
			env.remote.addCalls, env.remote.removeCalls)
	}
}

func TestDeleteTagDropsPendingOps(t *testing.T) {
	env := newTestEnv(t, "user1")

	n := env.mustAddNote(t, "note")
	env.clock.Advance(500 * time.Millisecond)

	tag, err := env.tags.CreateTag(context.Background(), "work", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.tags.TagNote(n.ID, tag.ID); err != nil {
		t.Fatal(err)
	}

	if err := env.tags.DeleteTag(context.Background(), tag.ID); err != nil {
		t.Fatal(err)
	}

	env.clock.Advance(time.Minute)

	if env.remote.addCalls != 0 {
		t.Errorf("got %d association uploads for a deleted tag, want 0", env.remote.addCalls)
	}
	if got := len(env.mustGetNote(t, n.ID).TagIDs); got != 0 {
		t.Errorf("got %d local tag ids, want the cascade to clear them", got)
	}
	if _, ok := env.remote.tags[tag.ID]; ok {
		t.Error("tag still present in the remote store")
	}
}

func TestCreateTagDefaultColor(t *testing.T) {
	env := newTestEnv(t, "user1")

	tag, err := env.tags.CreateTag(context.Background(), "work", "")
	if err != nil {
		t.Fatal(err)
	}

	if tag.Color != DefaultTagColor {
		t.Errorf("got color %q, want the default", tag.Color)
	}
	if got := env.remote.tags[tag.ID].Color; got != DefaultTagColor {
		t.Errorf("got remote color %q, want the default", got)
	}
}

func TestGuestTagOpsStayLocal(t *testing.T) {
	env := newTestEnv(t, "")

	n := env.mustAddNote(t, "note")

	tag, err := env.tags.CreateTag(context.Background(), "work", "#fca5a5")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.tags.TagNote(n.ID, tag.ID); err != nil {
		t.Fatal(err)
	}

	env.clock.Advance(time.Minute)

	if env.remote.addCalls != 0 {
		t.Errorf("got %d association uploads for a guest, want 0", env.remote.addCalls)
	}
	if len(env.remote.tags) != 0 {
		t.Errorf("got %d remote tags for a guest, want 0", len(env.remote.tags))
	}
	if diff := cmp.Diff([]string{tag.ID}, env.mustGetNote(t, n.ID).TagIDs); diff != "" {
		t.Errorf("local tag ids mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateTag(t *testing.T) {
	env := newTestEnv(t, "user1")

	tag, err := env.tags.CreateTag(context.Background(), "work", "")
	if err != nil {
		t.Fatal(err)
	}

	name := "projects"
	updated, err := env.tags.UpdateTag(context.Background(), tag.ID, &name, nil)
	if err != nil {
		t.Fatal(err)
	}

	if updated.Name != "projects" {
		t.Errorf("got name %q, want the rename applied", updated.Name)
	}
	if updated.Color != DefaultTagColor {
		t.Errorf("got color %q, want it untouched", updated.Color)
	}
	if got := env.remote.tags[tag.ID].Name; got != "projects" {
		t.Errorf("got remote name %q, want the rename applied", got)
	}
}
