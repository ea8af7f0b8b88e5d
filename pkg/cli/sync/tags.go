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
	"sort"
	gosync "sync"
	"time"

	"github.com/corkboard/corkboard/pkg/cli/client"
	"github.com/corkboard/corkboard/pkg/cli/database"
	"github.com/corkboard/corkboard/pkg/cli/log"
	"github.com/corkboard/corkboard/pkg/cli/utils"
	"github.com/corkboard/corkboard/pkg/clock"
	"github.com/pkg/errors"
)

// DefaultTagColor is assigned to tags created without a color
const DefaultTagColor = "#6b7280"

// pendingTagOps accumulates association changes for one note between flushes.
// toAdd and toRemove are kept disjoint: queueing the opposite of a pending
// operation cancels it instead of queueing both.
type pendingTagOps struct {
	toAdd      map[string]bool
	toRemove   map[string]bool
	timer      clock.Timer
	retryCount int
	inFlight   bool
	deferred   bool
}

func (p *pendingTagOps) empty() bool {
	return len(p.toAdd) == 0 && len(p.toRemove) == 0
}

// TagEngine owns the tag collection and reconciles note-tag associations with
// the remote store, debounced per note. Note tag lists are only ever mutated
// through the note engine.
type TagEngine struct {
	mu     gosync.Mutex
	db     *database.DB
	remote Remote
	auth   AuthSource
	clock  clock.Clock
	config Config
	engine *Engine

	pending   map[string]*pendingTagOps
	lastError *SyncError
}

// NewTagEngine returns a tag engine bound to the given note engine
func NewTagEngine(db *database.DB, remote Remote, authSrc AuthSource, c clock.Clock, config Config, engine *Engine) *TagEngine {
	if config.DebounceInterval == 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}
	if config.RetryBaseDelay == 0 {
		config.RetryBaseDelay = DefaultConfig().RetryBaseDelay
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = DefaultConfig().MaxRetries
	}

	return &TagEngine{
		db:      db,
		remote:  remote,
		auth:    authSrc,
		clock:   c,
		config:  config,
		engine:  engine,
		pending: map[string]*pendingTagOps{},
	}
}

// Tags returns the local tag collection
func (e *TagEngine) Tags() ([]database.Tag, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return database.ListTags(e.db)
}

// CreateTag creates a tag locally and, for a signed-in user, in the server
func (e *TagEngine) CreateTag(ctx context.Context, name, color string) (database.Tag, error) {
	if color == "" {
		color = DefaultTagColor
	}

	id, err := utils.GenerateUUID()
	if err != nil {
		return database.Tag{}, err
	}

	tag := database.Tag{ID: id, Name: name, Color: color}

	e.mu.Lock()
	if err := tag.Save(e.db); err != nil {
		e.mu.Unlock()
		return database.Tag{}, errors.Wrap(err, "saving a tag")
	}
	user := e.auth.CurrentUser()
	e.mu.Unlock()

	if user == nil {
		return tag, nil
	}

	rec := client.TagRecord{ID: tag.ID, UserID: user.ID, Name: tag.Name, Color: tag.Color}
	if _, err := e.remote.CreateTag(ctx, rec); err != nil {
		e.recordError(err, nil)
		return tag, errors.Wrap(err, "creating the tag in the server")
	}

	return tag, nil
}

// UpdateTag renames or recolors a tag locally and, for a signed-in user, in
// the server. Nil fields are left unchanged.
func (e *TagEngine) UpdateTag(ctx context.Context, id string, name, color *string) (database.Tag, error) {
	e.mu.Lock()
	tag, ok, err := getTag(e.db, id)
	if err != nil {
		e.mu.Unlock()
		return database.Tag{}, err
	}
	if !ok {
		e.mu.Unlock()
		return database.Tag{}, errors.Errorf("tag %s not found", id)
	}

	if name != nil {
		tag.Name = *name
	}
	if color != nil {
		tag.Color = *color
	}

	if err := tag.Save(e.db); err != nil {
		e.mu.Unlock()
		return database.Tag{}, errors.Wrap(err, "saving the tag")
	}
	user := e.auth.CurrentUser()
	e.mu.Unlock()

	if user == nil {
		return tag, nil
	}

	if _, err := e.remote.UpdateTag(ctx, id, name, color); err != nil {
		e.recordError(err, nil)
		return tag, errors.Wrap(err, "updating the tag in the server")
	}

	return tag, nil
}

// DeleteTag removes a tag everywhere. Associations cascade locally and in the
// server, so pending operations touching the tag are simply dropped.
func (e *TagEngine) DeleteTag(ctx context.Context, id string) error {
	e.mu.Lock()
	if err := (database.Tag{ID: id}).Expunge(e.db); err != nil {
		e.mu.Unlock()
		return err
	}

	for noteID, ops := range e.pending {
		delete(ops.toAdd, id)
		delete(ops.toRemove, id)
		if ops.empty() && !ops.inFlight {
			if ops.timer != nil {
				ops.timer.Stop()
			}
			delete(e.pending, noteID)
		}
	}

	user := e.auth.CurrentUser()
	e.mu.Unlock()

	if user == nil {
		return nil
	}

	if err := e.remote.DeleteTag(ctx, id, user.ID); err != nil {
		e.recordError(err, nil)
		return errors.Wrap(err, "deleting the tag in the server")
	}

	return nil
}

// TagNote adds a tag to a note. The local note updates immediately; the
// association upload is debounced per note.
func (e *TagEngine) TagNote(noteID, tagID string) error {
	n, ok, err := database.GetNote(e.db, noteID)
	if err != nil {
		return errors.Wrap(err, "finding the note")
	}
	if !ok {
		return nil
	}

	for _, id := range n.TagIDs {
		if id == tagID {
			return nil
		}
	}

	if err := e.engine.SetNoteTags(noteID, append(n.TagIDs, tagID)); err != nil {
		return err
	}

	e.queueOp(noteID, tagID, true)

	return nil
}

// UntagNote removes a tag from a note
func (e *TagEngine) UntagNote(noteID, tagID string) error {
	n, ok, err := database.GetNote(e.db, noteID)
	if err != nil {
		return errors.Wrap(err, "finding the note")
	}
	if !ok {
		return nil
	}

	kept := make([]string, 0, len(n.TagIDs))
	found := false
	for _, id := range n.TagIDs {
		if id == tagID {
			found = true
			continue
		}
		kept = append(kept, id)
	}
	if !found {
		return nil
	}

	if err := e.engine.SetNoteTags(noteID, kept); err != nil {
		return err
	}

	e.queueOp(noteID, tagID, false)

	return nil
}

// queueOp records an association change with net-effect cancellation and arms
// the note's debounce timer
func (e *TagEngine) queueOp(noteID, tagID string, add bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ops := e.pending[noteID]
	if ops == nil {
		ops = &pendingTagOps{toAdd: map[string]bool{}, toRemove: map[string]bool{}}
		e.pending[noteID] = ops
	}

	if add {
		if ops.toRemove[tagID] {
			delete(ops.toRemove, tagID)
		} else {
			ops.toAdd[tagID] = true
		}
	} else {
		if ops.toAdd[tagID] {
			delete(ops.toAdd, tagID)
		} else {
			ops.toRemove[tagID] = true
		}
	}

	// a fresh mutation restarts an exhausted retry ladder
	if ops.retryCount >= e.config.MaxRetries && !ops.inFlight {
		ops.retryCount = 0
	}

	if ops.empty() && !ops.inFlight {
		if ops.timer != nil {
			ops.timer.Stop()
		}
		delete(e.pending, noteID)
		return
	}

	e.scheduleFlushLocked(noteID, ops, e.config.DebounceInterval)
}

func (e *TagEngine) scheduleFlushLocked(noteID string, ops *pendingTagOps, delay time.Duration) {
	if e.auth.CurrentUser() == nil {
		return
	}

	if ops.timer != nil {
		ops.timer.Stop()
	}
	ops.timer = e.clock.AfterFunc(delay, func() {
		if err := e.flushNote(context.Background(), noteID); err != nil {
			log.Debug("flushing tag ops for note %s: %v\n", noteID, err)
		}
	})
}

// flushNote uploads the pending association changes of one note
func (e *TagEngine) flushNote(ctx context.Context, noteID string) error {
	e.mu.Lock()

	ops := e.pending[noteID]
	if ops == nil {
		e.mu.Unlock()
		return nil
	}
	if ops.inFlight {
		ops.deferred = true
		e.mu.Unlock()
		return nil
	}

	user := e.auth.CurrentUser()
	if user == nil {
		e.mu.Unlock()
		return nil
	}

	adds := keys(ops.toAdd)
	removes := keys(ops.toRemove)
	ops.toAdd = map[string]bool{}
	ops.toRemove = map[string]bool{}

	if len(adds) == 0 && len(removes) == 0 {
		delete(e.pending, noteID)
		e.mu.Unlock()
		return nil
	}

	ops.inFlight = true
	e.mu.Unlock()

	flushErr := e.uploadOps(ctx, noteID, adds, removes)

	e.mu.Lock()
	defer e.mu.Unlock()
	ops.inFlight = false

	if flushErr == nil {
		ops.retryCount = 0

		if ops.deferred || !ops.empty() {
			ops.deferred = false
			e.scheduleFlushLocked(noteID, ops, e.config.DebounceInterval)
		} else {
			delete(e.pending, noteID)
		}

		return nil
	}

	// the failed changes rejoin the queue, cancelling against anything
	// queued while the upload was in flight
	for _, tagID := range adds {
		if ops.toRemove[tagID] {
			delete(ops.toRemove, tagID)
		} else {
			ops.toAdd[tagID] = true
		}
	}
	for _, tagID := range removes {
		if ops.toAdd[tagID] {
			delete(ops.toAdd, tagID)
		} else {
			ops.toRemove[tagID] = true
		}
	}
	ops.deferred = false

	if ops.empty() {
		delete(e.pending, noteID)
		return nil
	}

	if IsTransient(flushErr) && ops.retryCount < e.config.MaxRetries {
		delay := e.config.RetryBaseDelay << ops.retryCount
		ops.retryCount++

		log.Debug("transient tag upload failure for note %s, retrying in %s: %v\n", noteID, delay, flushErr)
		e.scheduleFlushLocked(noteID, ops, delay)

		return errors.Wrap(flushErr, "uploading tag associations")
	}

	e.lastError = &SyncError{
		Message: flushErr.Error(),
		Code:    errCode(flushErr),
		Time:    e.clock.Now(),
		NoteIDs: []string{noteID},
	}

	return errors.Wrap(flushErr, "uploading tag associations")
}

// uploadOps sends the removes then the adds. A duplicate association means
// the server already holds the row and counts as success.
func (e *TagEngine) uploadOps(ctx context.Context, noteID string, adds, removes []string) error {
	if len(removes) > 0 {
		pairs := make([]client.NoteTagRecord, 0, len(removes))
		for _, tagID := range removes {
			pairs = append(pairs, client.NoteTagRecord{NoteID: noteID, TagID: tagID})
		}

		if err := e.remote.RemoveNoteTags(ctx, pairs); err != nil {
			return err
		}
	}

	if len(adds) > 0 {
		pairs := make([]client.NoteTagRecord, 0, len(adds))
		for _, tagID := range adds {
			pairs = append(pairs, client.NoteTagRecord{NoteID: noteID, TagID: tagID})
		}

		if err := e.remote.AddNoteTags(ctx, pairs); err != nil && !IsDuplicateAssociation(err) {
			return err
		}
	}

	return nil
}

// Flush uploads every pending association change immediately
func (e *TagEngine) Flush(ctx context.Context) error {
	e.mu.Lock()
	noteIDs := make([]string, 0, len(e.pending))
	for noteID, ops := range e.pending {
		if ops.timer != nil {
			ops.timer.Stop()
			ops.timer = nil
		}
		noteIDs = append(noteIDs, noteID)
	}
	e.mu.Unlock()

	var ret error
	for _, noteID := range noteIDs {
		if err := e.flushNote(ctx, noteID); err != nil {
			ret = err
		}
	}

	return ret
}

// PendingOps returns the queued association changes for a note. Both slices
// empty means nothing is queued.
func (e *TagEngine) PendingOps(noteID string) (toAdd, toRemove []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ops := e.pending[noteID]
	if ops == nil {
		return nil, nil
	}

	return keys(ops.toAdd), keys(ops.toRemove)
}

// LastError returns the most recent final tag upload failure, or nil
func (e *TagEngine) LastError() *SyncError {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastError == nil {
		return nil
	}

	ret := *e.lastError
	return &ret
}

func (e *TagEngine) recordError(err error, noteIDs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastError = &SyncError{
		Message: err.Error(),
		Code:    errCode(err),
		Time:    e.clock.Now(),
		NoteIDs: noteIDs,
	}
}

func getTag(db *database.DB, id string) (database.Tag, bool, error) {
	tags, err := database.ListTags(db)
	if err != nil {
		return database.Tag{}, false, err
	}

	for _, t := range tags {
		if t.ID == id {
			return t, true, nil
		}
	}

	return database.Tag{}, false, nil
}

func keys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}

	ret := make([]string, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	sort.Strings(ret)

	return ret
}
