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

// Package auth tracks the current session and notifies subscribers of
// sign-in-state changes. The session key and identity persist in the local
// system table so that a new process resumes the previous session.
package auth

import (
	"context"
	"strconv"
	"sync"

	"github.com/corkboard/corkboard/pkg/cli/client"
	"github.com/corkboard/corkboard/pkg/cli/consts"
	"github.com/corkboard/corkboard/pkg/cli/database"
	"github.com/corkboard/corkboard/pkg/cli/log"
	"github.com/pkg/errors"
)

// Event is a sign-in-state change delivered to subscribers
type Event int

// Events delivered to subscribers. Only sign-in and sign-out carry meaning
// for the sync core; token refresh exists for completeness and initial
// session is a one-time sign-in equivalent.
const (
	EventInitialSession Event = iota
	EventSignedIn
	EventSignedOut
	EventTokenRefreshed
)

func (e Event) String() string {
	switch e {
	case EventInitialSession:
		return "INITIAL_SESSION"
	case EventSignedIn:
		return "SIGNED_IN"
	case EventSignedOut:
		return "SIGNED_OUT"
	case EventTokenRefreshed:
		return "TOKEN_REFRESHED"
	}

	return "UNKNOWN"
}

// User is the authenticated identity
type User struct {
	ID    string
	Email string
}

// Session is a live session for a user
type Session struct {
	User      User
	Key       string
	ExpiresAt int64
}

// Service owns the current session and the subscriber list
type Service struct {
	mu          sync.RWMutex
	db          *database.DB
	client      *client.Client
	session     *Session
	initialized bool
	lastError   string
	subs        map[int]func(Event)
	nextSubID   int
}

// NewService restores any persisted session and returns the service
func NewService(db *database.DB, c *client.Client) (*Service, error) {
	s := &Service{
		db:     db,
		client: c,
		subs:   map[int]func(Event){},
	}

	session, err := restoreSession(db)
	if err != nil {
		return nil, errors.Wrap(err, "restoring session")
	}
	if session != nil {
		s.session = session
		c.SetSessionKey(session.Key)
	}

	return s, nil
}

func restoreSession(db *database.DB) (*Session, error) {
	var key, userID, email string
	var expiryStr string

	if err := database.GetSystem(db, consts.SystemSessionKey, &key); err != nil {
		return nil, errors.Wrap(err, "finding session key")
	}
	if key == "" {
		return nil, nil
	}

	if err := database.GetSystem(db, consts.SystemSessionKeyExpiry, &expiryStr); err != nil {
		return nil, errors.Wrap(err, "finding session key expiry")
	}
	if err := database.GetSystem(db, consts.SystemUserID, &userID); err != nil {
		return nil, errors.Wrap(err, "finding session user id")
	}
	if err := database.GetSystem(db, consts.SystemUserEmail, &email); err != nil {
		return nil, errors.Wrap(err, "finding session user email")
	}

	expiry, _ := strconv.ParseInt(expiryStr, 10, 64)

	return &Session{
		User:      User{ID: userID, Email: email},
		Key:       key,
		ExpiresAt: expiry,
	}, nil
}

// Initialize delivers the one-time initial-session event if a persisted
// session was restored. Repeated calls are no-ops.
func (s *Service) Initialize() {
	s.mu.Lock()
	if s.initialized || s.session == nil {
		s.initialized = true
		s.mu.Unlock()
		return
	}
	s.initialized = true
	s.mu.Unlock()

	s.emit(EventInitialSession)
}

// CurrentUser returns the signed-in user, or nil outside a live session
func (s *Service) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return nil
	}

	u := s.session.User
	return &u
}

// CurrentSession returns the live session, or nil
func (s *Service) CurrentSession() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return nil
	}

	ret := *s.session
	return &ret
}

// LastError returns the message of the most recent auth failure
func (s *Service) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// ClearError clears the recorded auth failure
func (s *Service) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
}

// Subscribe registers fn for sign-in-state events and returns a cancel
// function
func (s *Service) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Service) emit(ev Event) {
	s.mu.RLock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	log.Debug("auth state changed: %s\n", ev)

	for _, fn := range fns {
		fn(ev)
	}
}

// SignIn signs the user in and persists the session. Unlike the sync paths,
// the error is returned to the caller after being recorded, since sign-in is
// interactively awaited.
func (s *Service) SignIn(ctx context.Context, email, password string) error {
	resp, err := s.client.Signin(ctx, email, password)
	if err != nil {
		s.recordError(err)
		return errors.Wrap(err, "signing in")
	}

	if err := s.installSession(resp); err != nil {
		s.recordError(err)
		return err
	}

	s.emit(EventSignedIn)

	return nil
}

// SignUp registers an account, signs in with the new session and persists it
func (s *Service) SignUp(ctx context.Context, email, password string) error {
	resp, err := s.client.Register(ctx, email, password)
	if err != nil {
		s.recordError(err)
		return errors.Wrap(err, "registering")
	}

	if err := s.installSession(resp); err != nil {
		s.recordError(err)
		return err
	}

	s.emit(EventSignedIn)

	return nil
}

func (s *Service) installSession(resp client.SigninResponse) error {
	session := &Session{
		User:      User{ID: resp.User.ID, Email: resp.User.Email},
		Key:       resp.Key,
		ExpiresAt: resp.ExpiresAt,
	}

	if err := persistSession(s.db, session); err != nil {
		return errors.Wrap(err, "persisting session")
	}

	s.mu.Lock()
	s.session = session
	s.lastError = ""
	s.mu.Unlock()

	s.client.SetSessionKey(session.Key)

	return nil
}

func persistSession(db *database.DB, session *Session) error {
	if err := database.UpdateSystem(db, consts.SystemSessionKey, session.Key); err != nil {
		return err
	}
	if err := database.UpdateSystem(db, consts.SystemSessionKeyExpiry, strconv.FormatInt(session.ExpiresAt, 10)); err != nil {
		return err
	}
	if err := database.UpdateSystem(db, consts.SystemUserID, session.User.ID); err != nil {
		return err
	}

	return database.UpdateSystem(db, consts.SystemUserEmail, session.User.Email)
}

// SignOut ends the session locally and best-effort revokes it remotely.
// The local session is cleared even if the remote call fails.
func (s *Service) SignOut(ctx context.Context) error {
	remoteErr := s.client.Signout(ctx)
	if remoteErr != nil {
		log.Debug("remote signout failed: %v\n", remoteErr)
	}

	if err := clearSession(s.db); err != nil {
		s.recordError(err)
		return errors.Wrap(err, "clearing session")
	}

	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()

	s.client.SetSessionKey("")
	s.emit(EventSignedOut)

	return nil
}

func clearSession(db *database.DB) error {
	for _, key := range []string{consts.SystemSessionKey, consts.SystemSessionKeyExpiry, consts.SystemUserID, consts.SystemUserEmail} {
		if err := database.DeleteSystem(db, key); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err.Error()
}
