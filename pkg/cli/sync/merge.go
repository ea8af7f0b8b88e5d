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
	"encoding/json"

	"github.com/corkboard/corkboard/pkg/cli/auth"
	"github.com/corkboard/corkboard/pkg/cli/client"
	"github.com/corkboard/corkboard/pkg/cli/consts"
	"github.com/corkboard/corkboard/pkg/cli/database"
	"github.com/pkg/errors"
)

// MergeState is the guest-to-account merge flow state
type MergeState int

// Merge flow states. The flow enters MergePrompt when a sign-in finds guest
// notes and leaves it only through ConfirmMerge or DiscardMerge.
const (
	MergeIdle MergeState = iota
	MergePrompt
)

func (s MergeState) String() string {
	switch s {
	case MergeIdle:
		return "idle"
	case MergePrompt:
		return "prompt"
	}

	return "unknown"
}

// ErrNoMergePending is returned when a merge resolution arrives outside the
// prompt state
var ErrNoMergePending = errors.New("no merge in progress")

// HandleAuthEvent transitions the engine across sign-in-state changes.
// Duplicate events are no-ops.
func (e *Engine) HandleAuthEvent(ctx context.Context, ev auth.Event) error {
	switch ev {
	case auth.EventSignedIn:
		return e.handleSignedIn(ctx)
	case auth.EventInitialSession:
		return e.handleInitialSession(ctx)
	case auth.EventSignedOut:
		return e.handleSignedOut()
	}

	return nil
}

func (e *Engine) handleSignedIn(ctx context.Context) error {
	e.mu.Lock()

	if e.sessionActive {
		e.mu.Unlock()
		return nil
	}
	e.sessionActive = true

	return e.reconcileSessionLocked(ctx)
}

// handleInitialSession resumes a session restored from the local store. A
// collection that never made it past reconciliation, for instance when the
// process died before a merge was confirmed, goes through the same guest-notes
// check as a fresh sign-in.
func (e *Engine) handleInitialSession(ctx context.Context) error {
	e.mu.Lock()
	e.sessionActive = true

	if e.mergeState == MergePrompt {
		e.mu.Unlock()
		return nil
	}

	if e.hasLoadedRemote {
		if len(e.dirty) > 0 {
			e.queueSyncLocked()
		}
		e.mu.Unlock()
		return nil
	}

	return e.reconcileSessionLocked(ctx)
}

// reconcileSessionLocked brings a never-reconciled session to a decided
// state: local notes raise the merge prompt, an empty board loads the remote
// collection. Called with the lock held; releases it.
func (e *Engine) reconcileSessionLocked(ctx context.Context) error {
	guest, err := database.ListNotes(e.db)
	if err != nil {
		e.sessionActive = false
		e.mu.Unlock()
		return errors.Wrap(err, "listing guest notes")
	}

	if len(guest) == 0 {
		e.mu.Unlock()
		return e.ReloadFromRemote(ctx)
	}

	// the guest collection survives the session in the local store, keyed
	// away from the live notes, so that signing out brings it back
	if err := saveGuestSnapshot(e.db, guest); err != nil {
		e.sessionActive = false
		e.mu.Unlock()
		return err
	}

	// the live collection empties while the prompt is open so the guest
	// notes cannot be mistaken for already-synced data
	if _, err := e.db.Exec("DELETE FROM notes"); err != nil {
		e.sessionActive = false
		e.mu.Unlock()
		return errors.Wrap(err, "clearing the live collection")
	}
	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
		e.debounceTimer = nil
	}
	e.dirty = map[string]bool{}

	e.guestNotes = guest
	e.mergeState = MergePrompt
	e.mu.Unlock()

	return nil
}

func (e *Engine) handleSignedOut() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.sessionActive {
		return nil
	}
	e.sessionActive = false
	e.hasLoadedRemote = false

	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
		e.debounceTimer = nil
	}
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}

	e.dirty = map[string]bool{}
	e.inflight = map[string]bool{}
	e.flushDeferred = false
	e.state = StateIdle
	e.lastError = nil
	e.retryCount = 0
	e.mergeState = MergeIdle
	e.guestNotes = nil

	if err := database.DeleteSystem(e.db, consts.SystemRemoteLoaded); err != nil {
		return errors.Wrap(err, "clearing the remote-loaded flag")
	}

	guest, ok, err := loadGuestSnapshot(e.db)
	if err != nil {
		return err
	}

	if _, err := e.db.Exec("DELETE FROM notes"); err != nil {
		return errors.Wrap(err, "clearing local notes")
	}
	if !ok {
		return nil
	}

	for _, n := range guest {
		n.Dirty = false
		if err := n.Save(e.db); err != nil {
			return errors.Wrap(err, "restoring a guest note")
		}
	}

	return database.DeleteSystem(e.db, consts.SystemGuestNotes)
}

// ConfirmMerge uploads the guest notes into the signed-in account in one
// batch, then loads the canonical merged collection from the server. A failed
// upload restores the guest notes onto the board, resolves the prompt and
// records the failure.
func (e *Engine) ConfirmMerge(ctx context.Context) error {
	e.mu.Lock()
	if e.mergeState != MergePrompt {
		e.mu.Unlock()
		return ErrNoMergePending
	}

	user := e.auth.CurrentUser()
	if user == nil {
		e.mu.Unlock()
		return errors.New("not signed in")
	}

	guest := e.guestNotes
	e.mu.Unlock()

	records := make([]client.NoteRecord, 0, len(guest))
	ids := make([]string, 0, len(guest))
	for _, n := range guest {
		records = append(records, noteToRecord(n, user.ID))
		ids = append(ids, n.ID)
	}

	if uploadErr := e.remote.UpsertNotes(ctx, records); uploadErr != nil {
		e.mu.Lock()
		defer e.mu.Unlock()

		for _, n := range guest {
			n.Dirty = true
			if err := n.Save(e.db); err != nil {
				return errors.Wrap(err, "restoring a guest note")
			}
			e.dirty[n.ID] = true
		}

		e.mergeState = MergeIdle
		e.guestNotes = nil
		e.state = StateError
		e.lastError = &SyncError{
			Message: uploadErr.Error(),
			Code:    errCode(uploadErr),
			Time:    e.clock.Now(),
			NoteIDs: ids,
		}

		return errors.Wrap(uploadErr, "merging guest notes into the account")
	}

	e.mu.Lock()
	e.mergeState = MergeIdle
	e.guestNotes = nil
	e.mu.Unlock()

	return e.ReloadFromRemote(ctx)
}

// DiscardMerge drops the guest notes from the board and loads the account's
// collection. The guest snapshot stays persisted so that signing out brings
// the guest board back.
func (e *Engine) DiscardMerge(ctx context.Context) error {
	e.mu.Lock()
	if e.mergeState != MergePrompt {
		e.mu.Unlock()
		return ErrNoMergePending
	}
	e.mergeState = MergeIdle
	e.guestNotes = nil
	e.mu.Unlock()

	return e.ReloadFromRemote(ctx)
}

// MergeStatus returns the merge flow state
func (e *Engine) MergeStatus() MergeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mergeState
}

// GuestNotes returns the guest collection awaiting a merge decision
func (e *Engine) GuestNotes() []database.Note {
	e.mu.Lock()
	defer e.mu.Unlock()

	ret := make([]database.Note, len(e.guestNotes))
	copy(ret, e.guestNotes)

	return ret
}

func saveGuestSnapshot(db *database.DB, notes []database.Note) error {
	b, err := json.Marshal(notes)
	if err != nil {
		return errors.Wrap(err, "marshaling the guest snapshot")
	}

	if err := database.UpdateSystem(db, consts.SystemGuestNotes, string(b)); err != nil {
		return errors.Wrap(err, "persisting the guest snapshot")
	}

	return nil
}

func loadGuestSnapshot(db *database.DB) ([]database.Note, bool, error) {
	var raw string
	if err := database.GetSystem(db, consts.SystemGuestNotes, &raw); err != nil {
		return nil, false, errors.Wrap(err, "finding the guest snapshot")
	}
	if raw == "" {
		return nil, false, nil
	}

	var notes []database.Note
	if err := json.Unmarshal([]byte(raw), &notes); err != nil {
		return nil, false, errors.Wrap(err, "unmarshaling the guest snapshot")
	}

	return notes, true, nil
}
