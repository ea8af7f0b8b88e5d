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

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func TestDoReqSetsHeaders(t *testing.T) {
	var gotAuth, gotVersion, gotContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("CLI-Version")
		gotContentType = r.Header.Get("Content-Type")

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "{}")
	}))
	defer server.Close()

	c := New(server.URL, "0.1.0", server.Client())
	c.SetSessionKey("s3kr3t")

	res, err := c.doReq(context.Background(), "POST", "/v1/notes/batch", upsertNotesPayload{})
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()

	if gotAuth != "Bearer s3kr3t" {
		t.Errorf("got authorization header %q, want the bearer session key", gotAuth)
	}
	if gotVersion != "0.1.0" {
		t.Errorf("got version header %q, want 0.1.0", gotVersion)
	}
	if gotContentType != "application/json" {
		t.Errorf("got content type %q, want application/json", gotContentType)
	}
}

func TestDoAuthorizedReqWithoutSession(t *testing.T) {
	c := New("http://localhost", "0.1.0", nil)

	_, err := c.doAuthorizedReq(context.Background(), "GET", "/v1/notes", nil)
	if err == nil {
		t.Fatal("got nil error without a session key")
	}
}

func TestCheckRespErrStructured(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"code": "23505", "message": "duplicate key value"}`)
	}))
	defer server.Close()

	c := New(server.URL, "0.1.0", server.Client())
	c.SetSessionKey("s3kr3t")

	err := c.AddNoteTags(context.Background(), []NoteTagRecord{{NoteID: "n1", TagID: "t1"}})
	if err == nil {
		t.Fatal("got nil error from a 409 response")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %T, want an APIError", errors.Cause(err))
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Errorf("got status %d, want 409", apiErr.StatusCode)
	}
	if apiErr.Code != "23505" {
		t.Errorf("got code %q, want 23505", apiErr.Code)
	}
	if !apiErr.IsUniqueViolation() {
		t.Error("got a 23505 error not recognized as a unique violation")
	}
}

func TestCheckRespErrPlainBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, "something broke")
	}))
	defer server.Close()

	c := New(server.URL, "0.1.0", server.Client())
	c.SetSessionKey("s3kr3t")

	_, err := c.ListNotes(context.Background(), "user1")
	if err == nil {
		t.Fatal("got nil error from a 500 response")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %T, want an APIError", errors.Cause(err))
	}
	if apiErr.Message != "something broke" {
		t.Errorf("got message %q, want the raw body", apiErr.Message)
	}
}

func TestUpsertNotesPayload(t *testing.T) {
	var got upsertNotesPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/notes/batch" {
			t.Errorf("got path %s, want /v1/notes/batch", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(server.URL, "0.1.0", server.Client())
	c.SetSessionKey("s3kr3t")

	notes := []NoteRecord{
		{
			ID:          "n1",
			UserID:      "user1",
			X:           10,
			Y:           20,
			ZIndex:      3,
			Color:       "#fef3c7",
			Mode:        "text",
			Text:        "hello",
			PlainText:   "hello",
			TagIDs:      []string{"t1"},
			DateCreated: 1700000000000,
			LastEdited:  1700000001000,
		},
	}

	if err := c.UpsertNotes(context.Background(), notes); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(notes, got.Notes); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestSigninInvalidLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "wrong login"}`)
	}))
	defer server.Close()

	c := New(server.URL, "0.1.0", server.Client())

	_, err := c.Signin(context.Background(), "alice@example.com", "nope")
	if err != ErrInvalidLogin {
		t.Errorf("got %v, want ErrInvalidLogin", err)
	}
}

func TestSignin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload SigninPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Error(err)
		}
		if payload.Email != "alice@example.com" {
			t.Errorf("got email %q in payload", payload.Email)
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"key": "k1", "expires_at": 1700003600000, "user": {"id": "user1", "email": "alice@example.com"}}`)
	}))
	defer server.Close()

	c := New(server.URL, "0.1.0", server.Client())

	resp, err := c.Signin(context.Background(), "alice@example.com", "pass")
	if err != nil {
		t.Fatal(err)
	}

	if resp.Key != "k1" {
		t.Errorf("got key %q, want k1", resp.Key)
	}
	if resp.User.ID != "user1" {
		t.Errorf("got user id %q, want user1", resp.User.ID)
	}
}
