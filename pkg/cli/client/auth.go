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
	"net/http"

	"github.com/pkg/errors"
)

// UserRecord is the wire representation of an authenticated user
type UserRecord struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SigninPayload is a payload for /v1/signin
type SigninPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SigninResponse is a response from the /v1/signin endpoint
type SigninResponse struct {
	Key       string     `json:"key"`
	ExpiresAt int64      `json:"expires_at"`
	User      UserRecord `json:"user"`
}

// Signin requests a session token
func (c *Client) Signin(ctx context.Context, email, password string) (SigninResponse, error) {
	res, err := c.doReq(ctx, "POST", "/v1/signin", SigninPayload{Email: email, Password: password})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return SigninResponse{}, ErrInvalidLogin
		}
		return SigninResponse{}, errors.Wrap(err, "making http request")
	}

	var resp SigninResponse
	if err := decodeInto(res, &resp); err != nil {
		return SigninResponse{}, err
	}

	return resp, nil
}

// Register creates an account and returns a session for it
func (c *Client) Register(ctx context.Context, email, password string) (SigninResponse, error) {
	res, err := c.doReq(ctx, "POST", "/v1/register", SigninPayload{Email: email, Password: password})
	if err != nil {
		return SigninResponse{}, errors.Wrap(err, "making http request")
	}

	var resp SigninResponse
	if err := decodeInto(res, &resp); err != nil {
		return SigninResponse{}, err
	}

	return resp, nil
}

// Signout deletes the user session on the server side
func (c *Client) Signout(ctx context.Context) error {
	res, err := c.doAuthorizedReq(ctx, "POST", "/v1/signout", nil)
	if err != nil {
		return errors.Wrap(err, "making http request")
	}
	res.Body.Close()

	return nil
}

// GetMeResp is the response from the get me endpoint
type GetMeResp struct {
	User UserRecord `json:"user"`
}

// GetMe returns the profile of the session owner
func (c *Client) GetMe(ctx context.Context) (UserRecord, error) {
	res, err := c.doAuthorizedReq(ctx, "GET", "/v1/me", nil)
	if err != nil {
		return UserRecord{}, errors.Wrap(err, "getting the user from the server")
	}

	var resp GetMeResp
	if err := decodeInto(res, &resp); err != nil {
		return UserRecord{}, err
	}

	return resp.User, nil
}
