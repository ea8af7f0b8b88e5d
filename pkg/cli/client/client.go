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

// Package client provides interfaces for interacting with the corkboard
// server and the data structures for requests and responses
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/corkboard/corkboard/pkg/cli/log"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// ErrInvalidLogin is an error for invalid credentials for login
var ErrInvalidLogin = errors.New("wrong credentials")

// APIError represents an error response from the server, decoded into a
// closed shape at the boundary so that callers never inspect raw bodies.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf(`response %d (%s) "%s"`, e.StatusCode, e.Code, e.Message)
	}

	return fmt.Sprintf(`response %d "%s"`, e.StatusCode, e.Message)
}

// IsUniqueViolation returns true if the error indicates a unique constraint
// violation on the server
func (e *APIError) IsUniqueViolation() bool {
	return e.Code == "23505" || e.StatusCode == http.StatusConflict
}

const (
	// clientRateLimitPerSecond is the max requests per second the client will make
	clientRateLimitPerSecond = 50
	// clientRateLimitBurst is the burst capacity for rate limiting
	clientRateLimitBurst = 100
)

// rateLimitedTransport wraps an http.RoundTripper with rate limiting
type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.transport.RoundTrip(req)
}

// NewRateLimitedHTTPClient creates an HTTP client with rate limiting
func NewRateLimitedHTTPClient() *http.Client {
	interval := time.Second / time.Duration(clientRateLimitPerSecond)

	transport := &rateLimitedTransport{
		transport: http.DefaultTransport,
		limiter:   rate.NewLimiter(rate.Every(interval), clientRateLimitBurst),
	}
	return &http.Client{
		Transport: transport,
	}
}

// Client talks to the remote store on behalf of at most one session
type Client struct {
	Endpoint   string
	Version    string
	HTTPClient *http.Client

	mu         sync.RWMutex
	sessionKey string
}

// New returns a client for the given API endpoint
func New(endpoint, version string, hc *http.Client) *Client {
	if hc == nil {
		hc = NewRateLimitedHTTPClient()
	}

	return &Client{
		Endpoint:   endpoint,
		Version:    version,
		HTTPClient: hc,
	}
}

// SetSessionKey installs the session key used to authorize requests.
// An empty key clears the session.
func (c *Client) SetSessionKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionKey = key
}

func (c *Client) getSessionKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionKey
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// checkRespErr checks if the given http response indicates an error. The
// error body is decoded into an APIError, falling back to the raw body when
// the server did not send a structured payload.
func checkRespErr(res *http.Response) error {
	if res.StatusCode < 400 {
		return nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrapf(err, "server responded with %d but client could not read the response body", res.StatusCode)
	}

	ret := &APIError{StatusCode: res.StatusCode}

	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		ret.Code = payload.Code
		ret.Message = payload.Message
	} else {
		ret.Message = strings.TrimRight(string(body), "\n")
	}

	return ret
}

// doReq does a http request to the given path in the api endpoint
func (c *Client) doReq(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshaling payload")
		}
		reader = bytes.NewReader(b)
	}

	endpoint := fmt.Sprintf("%s%s", c.Endpoint, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, errors.Wrap(err, "constructing http request")
	}

	req.Header.Set("CLI-Version", c.Version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := c.getSessionKey(); key != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", key))
	}

	log.Debug("HTTP %s %s\n", method, path)

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return res, errors.Wrap(err, "making http request")
	}

	log.Debug("HTTP %d %s\n", res.StatusCode, res.Status)

	if err = checkRespErr(res); err != nil {
		res.Body.Close()
		return res, errors.Wrap(err, "server responded with an error")
	}

	return res, nil
}

// doAuthorizedReq does a http request to the given path in the api endpoint
// as a user. The given path should include the preceding slash.
func (c *Client) doAuthorizedReq(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	if c.getSessionKey() == "" {
		return nil, errors.New("no session key found")
	}

	return c.doReq(ctx, method, path, body)
}

func decodeInto(res *http.Response, dest interface{}) error {
	defer res.Body.Close()

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
		return errors.Wrap(err, "decoding payload")
	}

	return nil
}
