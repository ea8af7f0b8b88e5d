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

// Package consts provides definitions of constants
package consts

var (
	// CorkboardDirName is the name of the directory containing corkboard files
	CorkboardDirName = "corkboard"
	// CorkboardDBFileName is a filename for the corkboard SQLite database
	CorkboardDBFileName = "corkboard.db"
	// ConfigFilename is the name of the config file
	ConfigFilename = "corkboardrc"
	// EnvFilename is the name of the optional env overlay file
	EnvFilename = ".env"

	// SystemLastSyncAt is the timestamp of the last successful batch sync
	SystemLastSyncAt = "last_sync_time"
	// SystemRemoteLoaded records whether the local collection has ever been
	// reconciled with the remote store
	SystemRemoteLoaded = "remote_loaded"
	// SystemSessionKey is the session key
	SystemSessionKey = "session_token"
	// SystemSessionKeyExpiry is the timestamp at which the session key will expire
	SystemSessionKeyExpiry = "session_token_expiry"
	// SystemUserID is the identity of the signed-in user
	SystemUserID = "session_user_id"
	// SystemUserEmail is the email of the signed-in user
	SystemUserEmail = "session_user_email"
	// SystemGuestNotes holds the guest collection snapshot taken on sign-in,
	// restored on sign-out
	SystemGuestNotes = "guest_notes"
)
