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
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/corkboard/corkboard/pkg/cli/client"
	"github.com/pkg/errors"
)

// SyncError describes a failed upload in a closed shape so that callers never
// branch on raw error strings
type SyncError struct {
	Message string
	Code    string
	Time    time.Time
	NoteIDs []string
}

func (e *SyncError) Error() string {
	return e.Message
}

var transientStatuses = map[int]bool{
	http.StatusRequestTimeout:     true,
	http.StatusTooManyRequests:    true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// transientCodes are server-side resource conditions that clear on their own:
// too_many_connections, configuration_limit_exceeded, cannot_connect_now and
// the two connection_exception variants
var transientCodes = map[string]bool{
	"53300": true,
	"53400": true,
	"57P03": true,
	"08003": true,
	"08006": true,
}

var transientKeywords = []string{
	"network",
	"timeout",
	"fetch",
	"connection",
	"rate limit",
}

// IsTransient reports whether the error is worth retrying. Anything not
// recognized as transient is treated as permanent, so auth and validation
// failures surface immediately instead of burning the retry ladder.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return transientStatuses[apiErr.StatusCode] || transientCodes[apiErr.Code]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range transientKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}

	return false
}

// IsDuplicateAssociation reports whether the error indicates an association
// that already exists on the server. Such a failure means the server is
// already in the desired state.
func IsDuplicateAssociation(err error) bool {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsUniqueViolation()
	}

	return false
}

func errCode(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code != "" {
			return apiErr.Code
		}
		return http.StatusText(apiErr.StatusCode)
	}

	return ""
}
