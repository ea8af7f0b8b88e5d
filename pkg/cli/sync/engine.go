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

// Package sync implements the local-first synchronization core. Mutations
// land in the local store immediately and are uploaded in debounced batches;
// the remote store is never consulted on the mutation path.
package sync

import (
	"context"
	"sort"
	"strconv"
	gosync "sync"
	"time"

	"github.com/corkboard/corkboard/pkg/cli/auth"
	"github.com/corkboard/corkboard/pkg/cli/client"
	"github.com/corkboard/corkboard/pkg/cli/consts"
	"github.com/corkboard/corkboard/pkg/cli/database"
	"github.com/corkboard/corkboard/pkg/cli/log"
	"github.com/corkboard/corkboard/pkg/cli/utils"
	"github.com/corkboard/corkboard/pkg/clock"
	"github.com/pkg/errors"
)

// Remote is the surface of the remote store the engine talks to. It is
// satisfied by client.Client.
type Remote interface {
	UpsertNotes(ctx context.Context, notes []client.NoteRecord) error
	DeleteNote(ctx context.Context, id, userID string) error
	ListNotes(ctx context.Context, userID string) ([]client.NoteRecord, error)
	CreateTag(ctx context.Context, tag client.TagRecord) (client.TagRecord, error)
	UpdateTag(ctx context.Context, id string, name, color *string) (client.TagRecord, error)
	DeleteTag(ctx context.Context, id, userID string) error
	ListTags(ctx context.Context, userID string) ([]client.TagRecord, error)
	AddNoteTags(ctx context.Context, pairs []client.NoteTagRecord) error
	RemoveNoteTags(ctx context.Context, pairs []client.NoteTagRecord) error
}

// AuthSource provides the current identity. It is satisfied by auth.Service.
type AuthSource interface {
	CurrentUser() *auth.User
}

// State is the upload lifecycle state
type State int

// Upload lifecycle states. The state stays StateSyncing across the whole
// retry ladder and only becomes StateError once a failure is final.
const (
	StateIdle State = iota
	StateSyncing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateError:
		return "error"
	}

	return "unknown"
}

// Config holds the timing knobs of the engine
type Config struct {
	// DebounceInterval is the trailing quiet period before a batch upload
	DebounceInterval time.Duration
	// RetryBaseDelay is the first retry delay. Each subsequent retry doubles it.
	RetryBaseDelay time.Duration
	// MaxRetries is the number of retries after the initial attempt
	MaxRetries int
}

// DefaultConfig returns the standard engine timing
func DefaultConfig() Config {
	return Config{
		DebounceInterval: 500 * time.Millisecond,
		RetryBaseDelay:   time.Second,
		MaxRetries:       5,
	}
}

// Engine owns the note collection and its synchronization with the remote
// store. All exported methods are safe for concurrent use.
type Engine struct {
	mu     gosync.Mutex
	db     *database.DB
	remote Remote
	auth   AuthSource
	clock  clock.Clock
	config Config

	state      State
	lastError  *SyncError
	retryCount int

	// dirty holds ids awaiting upload; inflight holds ids currently being
	// uploaded. A mutation during an upload re-enters dirty, so a failed
	// upload unions the two and nothing is lost.
	dirty    map[string]bool
	inflight map[string]bool

	pendingDeletes map[string]bool

	debounceTimer clock.Timer
	retryTimer    clock.Timer
	flushing      bool
	flushDeferred bool
	reloading     bool

	sessionActive   bool
	hasLoadedRemote bool

	mergeState MergeState
	guestNotes []database.Note
}

// NewEngine restores engine state from the local store and returns the engine
func NewEngine(db *database.DB, remote Remote, authSrc AuthSource, c clock.Clock, config Config) (*Engine, error) {
	if config.DebounceInterval == 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}
	if config.RetryBaseDelay == 0 {
		config.RetryBaseDelay = DefaultConfig().RetryBaseDelay
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = DefaultConfig().MaxRetries
	}

	e := &Engine{
		db:             db,
		remote:         remote,
		auth:           authSrc,
		clock:          c,
		config:         config,
		dirty:          map[string]bool{},
		inflight:       map[string]bool{},
		pendingDeletes: map[string]bool{},
	}

	if err := e.restore(); err != nil {
		return nil, errors.Wrap(err, "restoring engine state")
	}

	return e, nil
}

// restore rebuilds the dirty set and the remote-loaded flag from the local
// store so that edits made by a previous process are still uploaded
func (e *Engine) restore() error {
	rows, err := e.db.Query("SELECT id FROM notes WHERE dirty = ?", true)
	if err != nil {
		return errors.Wrap(err, "querying dirty notes")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return errors.Wrap(err, "scanning a dirty note id")
		}
		e.dirty[id] = true
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterating dirty note ids")
	}

	var loaded string
	if err := database.GetSystem(e.db, consts.SystemRemoteLoaded, &loaded); err != nil {
		return errors.Wrap(err, "finding remote-loaded flag")
	}
	e.hasLoadedRemote = loaded == "true"

	e.sessionActive = e.auth.CurrentUser() != nil

	return nil
}

// NoteUpdate is a partial update of a note. Nil fields are left unchanged.
// Tag associations are not updatable here; they go through the tag engine.
type NoteUpdate struct {
	X          *float64
	Y          *float64
	Width      *float64
	Height     *float64
	ZIndex     *int
	Color      *string
	ColorIndex *int
	Mode       *string
	Text       *string
	PlainText  *string
	Paths      *string
	InlineSVG  *string
}

// AddNote inserts a note into the local store and schedules an upload.
// Missing identity and timestamps are filled in.
func (e *Engine) AddNote(n database.Note) (database.Note, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if n.ID == "" {
		id, err := utils.GenerateUUID()
		if err != nil {
			return database.Note{}, err
		}
		n.ID = id
	}
	if n.Mode == "" {
		n.Mode = database.ModeText
	}

	now := e.clock.Now()
	if n.DateCreated.IsZero() {
		n.DateCreated = now
	}
	if n.LastEdited.IsZero() {
		n.LastEdited = now
	}
	n.Dirty = true

	if err := n.Save(e.db); err != nil {
		return database.Note{}, errors.Wrap(err, "saving a note")
	}

	e.dirty[n.ID] = true
	e.queueSyncLocked()

	return n, nil
}

// UpdateNote applies a partial update to a note and schedules an upload.
// Updating a note that does not exist is a no-op.
func (e *Engine) UpdateNote(id string, update NoteUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok, err := database.GetNote(e.db, id)
	if err != nil {
		return errors.Wrap(err, "finding the note")
	}
	if !ok {
		return nil
	}

	if update.X != nil {
		n.X = *update.X
	}
	if update.Y != nil {
		n.Y = *update.Y
	}
	if update.Width != nil {
		n.Width = *update.Width
	}
	if update.Height != nil {
		n.Height = *update.Height
	}
	if update.ZIndex != nil {
		n.ZIndex = *update.ZIndex
	}
	if update.Color != nil {
		n.Color = *update.Color
	}
	if update.ColorIndex != nil {
		n.ColorIndex = *update.ColorIndex
	}
	if update.Mode != nil {
		n.Mode = *update.Mode
	}
	if update.Text != nil {
		n.Text = *update.Text
	}
	if update.PlainText != nil {
		n.PlainText = *update.PlainText
	}
	if update.Paths != nil {
		n.Paths = *update.Paths
	}
	if update.InlineSVG != nil {
		n.InlineSVG = *update.InlineSVG
	}

	n.LastEdited = e.clock.Now()
	n.Dirty = true

	if err := n.Save(e.db); err != nil {
		return errors.Wrap(err, "saving the note")
	}

	e.dirty[id] = true
	e.queueSyncLocked()

	return nil
}

// BringToFront raises the note above every other note
func (e *Engine) BringToFront(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok, err := database.GetNote(e.db, id)
	if err != nil {
		return errors.Wrap(err, "finding the note")
	}
	if !ok {
		return nil
	}

	var maxZ int
	if err := e.db.QueryRow("SELECT COALESCE(MAX(z_index), 0) FROM notes").Scan(&maxZ); err != nil {
		return errors.Wrap(err, "querying the top z-index")
	}
	if n.ZIndex > maxZ {
		return nil
	}

	n.ZIndex = maxZ + 1
	n.Dirty = true

	if err := n.Save(e.db); err != nil {
		return errors.Wrap(err, "saving the note")
	}

	e.dirty[id] = true
	e.queueSyncLocked()

	return nil
}

// DeleteNote removes a note locally and, for a signed-in user, fires a single
// remote delete. A failed remote delete restores the note locally; the delete
// path does not enter the retry ladder.
func (e *Engine) DeleteNote(ctx context.Context, id string) error {
	e.mu.Lock()

	n, ok, err := database.GetNote(e.db, id)
	if err != nil {
		e.mu.Unlock()
		return errors.Wrap(err, "finding the note")
	}
	if !ok {
		e.mu.Unlock()
		return nil
	}

	if err := n.Expunge(e.db); err != nil {
		e.mu.Unlock()
		return errors.Wrap(err, "expunging the note")
	}
	delete(e.dirty, id)

	user := e.auth.CurrentUser()
	remoteScoped := e.sessionActive && e.hasLoadedRemote && user != nil
	if !remoteScoped {
		e.mu.Unlock()
		return nil
	}

	e.pendingDeletes[id] = true
	e.mu.Unlock()

	remoteErr := e.remote.DeleteNote(ctx, id, user.ID)

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pendingDeletes, id)

	if remoteErr != nil {
		if err := n.Save(e.db); err != nil {
			return errors.Wrap(err, "restoring the note after a failed delete")
		}
		if n.Dirty {
			e.dirty[id] = true
		}

		e.state = StateError
		e.lastError = &SyncError{
			Message: remoteErr.Error(),
			Code:    errCode(remoteErr),
			Time:    e.clock.Now(),
			NoteIDs: []string{id},
		}

		return errors.Wrap(remoteErr, "deleting the note in the server")
	}

	return nil
}

// SetNoteTags replaces a note's tag associations in the local store. The
// associations are reconciled with the server by the tag engine, not the note
// batch upload, so the note is not marked dirty.
func (e *Engine) SetNoteTags(id string, tagIDs []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok, err := database.GetNote(e.db, id)
	if err != nil {
		return errors.Wrap(err, "finding the note")
	}
	if !ok {
		return nil
	}

	n.TagIDs = tagIDs
	if err := n.Save(e.db); err != nil {
		return errors.Wrap(err, "saving the note")
	}

	return nil
}

// Notes returns the local collection
func (e *Engine) Notes() ([]database.Note, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return database.ListNotes(e.db)
}

// queueSyncLocked arms the trailing debounce timer. Each call resets the
// quiet period, so a burst of edits produces a single upload.
func (e *Engine) queueSyncLocked() {
	if !e.sessionActive || !e.hasLoadedRemote {
		return
	}

	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
	}
	e.debounceTimer = e.clock.AfterFunc(e.config.DebounceInterval, func() {
		if err := e.runFlush(context.Background()); err != nil {
			log.Debug("debounced flush: %v\n", err)
		}
	})
}

// Sync uploads dirty notes immediately, bypassing the debounce
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
		e.debounceTimer = nil
	}
	e.mu.Unlock()

	return e.runFlush(ctx)
}

func (e *Engine) runFlush(ctx context.Context) error {
	e.mu.Lock()

	if e.flushing {
		e.flushDeferred = true
		e.mu.Unlock()
		return nil
	}
	if !e.sessionActive || !e.hasLoadedRemote {
		e.mu.Unlock()
		return nil
	}
	if len(e.dirty) == 0 {
		if e.state == StateSyncing {
			e.state = StateIdle
		}
		e.mu.Unlock()
		return nil
	}

	user := e.auth.CurrentUser()
	if user == nil {
		e.mu.Unlock()
		return nil
	}

	records, ids, err := e.takeBatchLocked(user.ID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if len(records) == 0 {
		e.state = StateIdle
		e.mu.Unlock()
		return nil
	}

	e.state = StateSyncing
	e.flushing = true
	e.mu.Unlock()

	uploadErr := e.remote.UpsertNotes(ctx, records)

	e.mu.Lock()
	e.flushing = false

	if uploadErr == nil {
		if err := e.finishBatchLocked(); err != nil {
			e.mu.Unlock()
			return err
		}

		rerun := e.flushDeferred || len(e.dirty) > 0
		e.flushDeferred = false
		if !rerun {
			e.state = StateIdle
			e.mu.Unlock()
			return nil
		}

		e.mu.Unlock()
		return e.runFlush(ctx)
	}

	// the failed batch rejoins the dirty set untouched
	for id := range e.inflight {
		e.dirty[id] = true
	}
	e.inflight = map[string]bool{}
	e.flushDeferred = false

	if IsTransient(uploadErr) && e.retryCount < e.config.MaxRetries {
		delay := e.config.RetryBaseDelay << e.retryCount
		e.retryCount++

		log.Debug("transient upload failure, retrying in %s: %v\n", delay, uploadErr)

		e.retryTimer = e.clock.AfterFunc(delay, func() {
			if err := e.runFlush(context.Background()); err != nil {
				log.Debug("retry flush: %v\n", err)
			}
		})
		e.mu.Unlock()

		return errors.Wrap(uploadErr, "uploading notes")
	}

	e.state = StateError
	e.lastError = &SyncError{
		Message: uploadErr.Error(),
		Code:    errCode(uploadErr),
		Time:    e.clock.Now(),
		NoteIDs: ids,
	}
	e.mu.Unlock()

	return errors.Wrap(uploadErr, "uploading notes")
}

// takeBatchLocked moves the dirty set into the inflight set and returns the
// corresponding wire records. Ids whose notes vanished since being marked are
// dropped.
func (e *Engine) takeBatchLocked(userID string) ([]client.NoteRecord, []string, error) {
	ids := make([]string, 0, len(e.dirty))
	for id := range e.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]client.NoteRecord, 0, len(ids))
	taken := make([]string, 0, len(ids))
	for _, id := range ids {
		n, ok, err := database.GetNote(e.db, id)
		if err != nil {
			return nil, nil, errors.Wrap(err, "loading a dirty note")
		}
		if !ok {
			delete(e.dirty, id)
			continue
		}

		records = append(records, noteToRecord(n, userID))
		taken = append(taken, id)
		e.inflight[id] = true
		delete(e.dirty, id)
	}

	return records, taken, nil
}

// finishBatchLocked clears the dirty flag of every uploaded note that was not
// edited again while the upload was in flight
func (e *Engine) finishBatchLocked() error {
	for id := range e.inflight {
		if e.dirty[id] {
			continue
		}
		if _, err := e.db.Exec("UPDATE notes SET dirty = ? WHERE id = ?", false, id); err != nil {
			return errors.Wrap(err, "clearing the dirty flag")
		}
	}
	e.inflight = map[string]bool{}

	e.retryCount = 0
	e.lastError = nil

	ts := strconv.FormatInt(e.clock.Now().UnixMilli(), 10)
	if err := database.UpdateSystem(e.db, consts.SystemLastSyncAt, ts); err != nil {
		return errors.Wrap(err, "updating last sync time")
	}

	return nil
}

// ReloadFromRemote replaces the local collection with the server's. It is a
// no-op while another reload is in flight, and it refuses to run over local
// notes that were never reconciled; those belong to the merge flow.
func (e *Engine) ReloadFromRemote(ctx context.Context) error {
	e.mu.Lock()
	user := e.auth.CurrentUser()
	if !e.sessionActive || user == nil {
		e.mu.Unlock()
		return errors.New("not signed in")
	}
	if e.reloading {
		e.mu.Unlock()
		return nil
	}

	if !e.hasLoadedRemote {
		var count int
		if err := e.db.QueryRow("SELECT count(*) FROM notes").Scan(&count); err != nil {
			e.mu.Unlock()
			return errors.Wrap(err, "counting local notes")
		}
		if count > 0 {
			e.mu.Unlock()
			log.Debug("skipping reload over unreconciled local notes\n")
			return nil
		}
	}

	e.reloading = true
	e.mu.Unlock()

	records, err := e.remote.ListNotes(ctx, user.ID)
	if err != nil {
		e.mu.Lock()
		e.reloading = false
		e.state = StateError
		e.mu.Unlock()
		return errors.Wrap(err, "listing notes from the server")
	}
	tagRecords, err := e.remote.ListTags(ctx, user.ID)
	if err != nil {
		e.mu.Lock()
		e.reloading = false
		e.state = StateError
		e.mu.Unlock()
		return errors.Wrap(err, "listing tags from the server")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.reloading = false

	if err := e.replaceLocalLocked(records, tagRecords); err != nil {
		return err
	}

	e.hasLoadedRemote = true
	if err := database.UpdateSystem(e.db, consts.SystemRemoteLoaded, "true"); err != nil {
		return errors.Wrap(err, "recording the remote-loaded flag")
	}

	e.state = StateIdle
	e.lastError = nil
	e.retryCount = 0

	return nil
}

// replaceLocalLocked swaps the local notes for the server's copy. Tags are
// upserted rather than replaced so that tags created as a guest survive.
// Tags must land before notes; the association rows reference them.
func (e *Engine) replaceLocalLocked(records []client.NoteRecord, tagRecords []client.TagRecord) error {
	if _, err := e.db.Exec("DELETE FROM notes"); err != nil {
		return errors.Wrap(err, "clearing local notes")
	}

	for _, tr := range tagRecords {
		tag := database.Tag{ID: tr.ID, Name: tr.Name, Color: tr.Color}
		if err := tag.Save(e.db); err != nil {
			return errors.Wrap(err, "saving a remote tag")
		}
	}

	for _, rec := range records {
		if err := recordToNote(rec).Save(e.db); err != nil {
			return errors.Wrap(err, "saving a remote note")
		}
	}

	e.dirty = map[string]bool{}
	e.inflight = map[string]bool{}

	return nil
}

// StateVal returns the upload lifecycle state
func (e *Engine) StateVal() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastError returns the most recent final failure, or nil
func (e *Engine) LastError() *SyncError {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastError == nil {
		return nil
	}

	ret := *e.lastError
	return &ret
}

// RetryCount returns how many retries the current ladder has consumed
func (e *Engine) RetryCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retryCount
}

// DirtyIDs returns the ids awaiting upload, including any batch in flight
func (e *Engine) DirtyIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.dirty)+len(e.inflight))
	for id := range e.dirty {
		ids = append(ids, id)
	}
	for id := range e.inflight {
		if !e.dirty[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	return ids
}

// HasLoadedRemote reports whether the local collection reflects the remote
// store
func (e *Engine) HasLoadedRemote() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasLoadedRemote
}

func noteToRecord(n database.Note, userID string) client.NoteRecord {
	tagIDs := n.TagIDs
	if tagIDs == nil {
		tagIDs = []string{}
	}

	return client.NoteRecord{
		ID:          n.ID,
		UserID:      userID,
		X:           n.X,
		Y:           n.Y,
		Width:       n.Width,
		Height:      n.Height,
		ZIndex:      n.ZIndex,
		Color:       n.Color,
		ColorIndex:  n.ColorIndex,
		Mode:        n.Mode,
		Text:        n.Text,
		PlainText:   n.PlainText,
		Paths:       n.Paths,
		InlineSVG:   n.InlineSVG,
		TagIDs:      tagIDs,
		DateCreated: n.DateCreated.UnixMilli(),
		LastEdited:  n.LastEdited.UnixMilli(),
	}
}

func recordToNote(rec client.NoteRecord) database.Note {
	return database.Note{
		ID:          rec.ID,
		X:           rec.X,
		Y:           rec.Y,
		Width:       rec.Width,
		Height:      rec.Height,
		ZIndex:      rec.ZIndex,
		Color:       rec.Color,
		ColorIndex:  rec.ColorIndex,
		Mode:        rec.Mode,
		Text:        rec.Text,
		PlainText:   rec.PlainText,
		Paths:       rec.Paths,
		InlineSVG:   rec.InlineSVG,
		TagIDs:      rec.TagIDs,
		DateCreated: time.UnixMilli(rec.DateCreated).UTC(),
		LastEdited:  time.UnixMilli(rec.LastEdited).UTC(),
		Dirty:       false,
	}
}
