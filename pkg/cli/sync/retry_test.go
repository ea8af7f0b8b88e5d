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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestTransientFailureBacksOff(t *testing.T) {
	env := newTestEnv(t, "user1")
	env.remote.upsertErrs = []error{
		transientErr(), transientErr(), transientErr(),
		transientErr(), transientErr(), transientErr(),
	}

	n := env.mustAddNote(t, "note")
	env.clock.Advance(500 * time.Millisecond)

	if env.remote.upsertCalls != 1 {
		t.Fatalf("got %d uploads, want the initial attempt", env.remote.upsertCalls)
	}
	if got := env.engine.StateVal(); got != StateSyncing {
		t.Fatalf("got state %s during backoff, want syncing", got)
	}

	// the ladder doubles from 1s: 1, 2, 4, 8, 16
	for i, delay := range []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	} {
		env.clock.Advance(delay - time.Millisecond)
		if env.remote.upsertCalls != i+1 {
			t.Fatalf("retry %d fired before its delay elapsed", i+1)
		}

		env.clock.Advance(time.Millisecond)
		if env.remote.upsertCalls != i+2 {
			t.Fatalf("got %d uploads after retry %d, want %d", env.remote.upsertCalls, i+1, i+2)
		}
	}

	if got := env.engine.StateVal(); got != StateError {
		t.Errorf("got state %s after exhausting retries, want error", got)
	}
	if got := env.engine.RetryCount(); got != 5 {
		t.Errorf("got retry count %d, want 5", got)
	}
	if diff := cmp.Diff([]string{n.ID}, env.engine.DirtyIDs()); diff != "" {
		t.Errorf("dirty ids mismatch after exhaustion (-want +got):\n%s", diff)
	}
	if syncErr := env.engine.LastError(); syncErr == nil {
		t.Error("got nil last error after exhaustion")
	}

	// no further attempts without a new mutation
	env.clock.Advance(time.Hour)
	if env.remote.upsertCalls != 6 {
		t.Errorf("got %d uploads, want the ladder capped at 6", env.remote.upsertCalls)
	}
}

func TestPermanentFailureShortCircuits(t *testing.T) {
	env := newTestEnv(t, "user1")
	env.remote.upsertErrs = []error{permanentErr()}

	n := env.mustAddNote(t, "note")
	env.clock.Advance(500 * time.Millisecond)

	if env.remote.upsertCalls != 1 {
		t.Fatalf("got %d uploads, want 1", env.remote.upsertCalls)
	}
	if got := env.engine.StateVal(); got != StateError {
		t.Fatalf("got state %s, want error without retrying", got)
	}

	env.clock.Advance(time.Minute)
	if env.remote.upsertCalls != 1 {
		t.Errorf("got %d uploads, want no retries for a permanent failure", env.remote.upsertCalls)
	}
	if diff := cmp.Diff([]string{n.ID}, env.engine.DirtyIDs()); diff != "" {
		t.Errorf("dirty ids mismatch (-want +got):\n%s", diff)
	}
}

func TestRetrySuccessResetsLadder(t *testing.T) {
	env := newTestEnv(t, "user1")
	env.remote.upsertErrs = []error{transientErr(), transientErr()}

	env.mustAddNote(t, "note")
	env.clock.Advance(500 * time.Millisecond)
	env.clock.Advance(time.Second)
	env.clock.Advance(2 * time.Second)

	if env.remote.upsertCalls != 3 {
		t.Fatalf("got %d uploads, want 3", env.remote.upsertCalls)
	}
	if got := env.engine.StateVal(); got != StateIdle {
		t.Errorf("got state %s after a successful retry, want idle", got)
	}
	if got := env.engine.RetryCount(); got != 0 {
		t.Errorf("got retry count %d after success, want 0", got)
	}
	if env.engine.LastError() != nil {
		t.Error("got a lingering last error after success")
	}
	if got := env.engine.DirtyIDs(); len(got) != 0 {
		t.Errorf("got dirty ids %v, want none", got)
	}
}

func TestNewMutationRestartsAfterExhaustion(t *testing.T) {
	env := newTestEnv(t, "user1")
	env.remote.upsertErrs = []error{permanentErr()}

	n := env.mustAddNote(t, "note")
	env.clock.Advance(500 * time.Millisecond)

	if got := env.engine.StateVal(); got != StateError {
		t.Fatalf("got state %s, want error", got)
	}

	text := "edited"
	if err := env.engine.UpdateNote(n.ID, NoteUpdate{Text: &text}); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(500 * time.Millisecond)

	if env.remote.upsertCalls != 2 {
		t.Fatalf("got %d uploads, want a fresh attempt after a new edit", env.remote.upsertCalls)
	}
	if got := env.engine.StateVal(); got != StateIdle {
		t.Errorf("got state %s, want idle after recovery", got)
	}
	if got := env.engine.DirtyIDs(); len(got) != 0 {
		t.Errorf("got dirty ids %v, want none", got)
	}
}
