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
	"fmt"
	"net/url"

	"github.com/pkg/errors"
)

// NoteRecord is the wire representation of a note
type NoteRecord struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Width       float64  `json:"width"`
	Height      float64  `json:"height"`
	ZIndex      int      `json:"z_index"`
	Color       string   `json:"color"`
	ColorIndex  int      `json:"color_index"`
	Mode        string   `json:"display_mode"`
	Text        string   `json:"text"`
	PlainText   string   `json:"plain_text"`
	Paths       string   `json:"paths,omitempty"`
	InlineSVG   string   `json:"inline_svg,omitempty"`
	TagIDs      []string `json:"tag_ids"`
	DateCreated int64    `json:"date_created"`
	LastEdited  int64    `json:"last_edited"`
}

type upsertNotesPayload struct {
	Notes []NoteRecord `json:"notes"`
}

// UpsertNotes sends a batch upsert keyed by note id. Re-sending the same
// note is safe; the server replaces on identity match.
func (c *Client) UpsertNotes(ctx context.Context, notes []NoteRecord) error {
	res, err := c.doAuthorizedReq(ctx, "POST", "/v1/notes/batch", upsertNotesPayload{Notes: notes})
	if err != nil {
		return errors.Wrap(err, "upserting notes in the server")
	}
	res.Body.Close()

	return nil
}

// DeleteNote removes a note in the server, scoped to the owner
func (c *Client) DeleteNote(ctx context.Context, id, userID string) error {
	path := fmt.Sprintf("/v1/notes/%s?user_id=%s", url.PathEscape(id), url.QueryEscape(userID))
	res, err := c.doAuthorizedReq(ctx, "DELETE", path, nil)
	if err != nil {
		return errors.Wrap(err, "deleting a note in the server")
	}
	res.Body.Close()

	return nil
}

// GetNotesResp is the response from the get notes endpoint
type GetNotesResp struct {
	Notes []NoteRecord `json:"notes"`
}

// ListNotes gets the owner's notes from the server, ordered by last_edited
// descending, each carrying its joined tag ids
func (c *Client) ListNotes(ctx context.Context, userID string) ([]NoteRecord, error) {
	path := fmt.Sprintf("/v1/notes?user_id=%s", url.QueryEscape(userID))
	res, err := c.doAuthorizedReq(ctx, "GET", path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "getting notes from the server")
	}

	var resp GetNotesResp
	if err := decodeInto(res, &resp); err != nil {
		return nil, err
	}

	return resp.Notes, nil
}
