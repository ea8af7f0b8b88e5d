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

// TagRecord is the wire representation of a tag
type TagRecord struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
}

// NoteTagRecord is a single row of the note-tag join table
type NoteTagRecord struct {
	NoteID string `json:"note_id"`
	TagID  string `json:"tag_id"`
}

// CreateTagResp is the response from the create tag endpoint
type CreateTagResp struct {
	Tag TagRecord `json:"tag"`
}

// CreateTag creates a new tag in the server
func (c *Client) CreateTag(ctx context.Context, tag TagRecord) (TagRecord, error) {
	res, err := c.doAuthorizedReq(ctx, "POST", "/v1/tags", tag)
	if err != nil {
		return TagRecord{}, errors.Wrap(err, "posting a tag to the server")
	}

	var resp CreateTagResp
	if err := decodeInto(res, &resp); err != nil {
		return TagRecord{}, err
	}

	return resp.Tag, nil
}

type updateTagPayload struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

// UpdateTagResp is the response from the update tag endpoint
type UpdateTagResp struct {
	Tag TagRecord `json:"tag"`
}

// UpdateTag updates a tag in the server
func (c *Client) UpdateTag(ctx context.Context, id string, name, color *string) (TagRecord, error) {
	path := fmt.Sprintf("/v1/tags/%s", url.PathEscape(id))
	res, err := c.doAuthorizedReq(ctx, "PATCH", path, updateTagPayload{Name: name, Color: color})
	if err != nil {
		return TagRecord{}, errors.Wrap(err, "patching a tag in the server")
	}

	var resp UpdateTagResp
	if err := decodeInto(res, &resp); err != nil {
		return TagRecord{}, err
	}

	return resp.Tag, nil
}

// DeleteTag deletes a tag in the server. The server cascades deletion of
// the join rows.
func (c *Client) DeleteTag(ctx context.Context, id, userID string) error {
	path := fmt.Sprintf("/v1/tags/%s?user_id=%s", url.PathEscape(id), url.QueryEscape(userID))
	res, err := c.doAuthorizedReq(ctx, "DELETE", path, nil)
	if err != nil {
		return errors.Wrap(err, "deleting a tag in the server")
	}
	res.Body.Close()

	return nil
}

// GetTagsResp is the response from the get tags endpoint
type GetTagsResp struct {
	Tags []TagRecord `json:"tags"`
}

// ListTags gets the owner's tags from the server
func (c *Client) ListTags(ctx context.Context, userID string) ([]TagRecord, error) {
	path := fmt.Sprintf("/v1/tags?user_id=%s", url.QueryEscape(userID))
	res, err := c.doAuthorizedReq(ctx, "GET", path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "getting tags from the server")
	}

	var resp GetTagsResp
	if err := decodeInto(res, &resp); err != nil {
		return nil, err
	}

	return resp.Tags, nil
}

type noteTagsPayload struct {
	Associations []NoteTagRecord `json:"associations"`
}

// AddNoteTags batch-inserts join rows for the given (note, tag) pairs
func (c *Client) AddNoteTags(ctx context.Context, pairs []NoteTagRecord) error {
	res, err := c.doAuthorizedReq(ctx, "POST", "/v1/note-tags", noteTagsPayload{Associations: pairs})
	if err != nil {
		return errors.Wrap(err, "inserting note-tag associations in the server")
	}
	res.Body.Close()

	return nil
}

// RemoveNoteTags batch-deletes join rows for the given (note, tag) pairs
func (c *Client) RemoveNoteTags(ctx context.Context, pairs []NoteTagRecord) error {
	res, err := c.doAuthorizedReq(ctx, "POST", "/v1/note-tags/delete", noteTagsPayload{Associations: pairs})
	if err != nil {
		return errors.Wrap(err, "deleting note-tag associations in the server")
	}
	res.Body.Close()

	return nil
}
