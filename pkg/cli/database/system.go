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

package database

import (
	"database/sql"

	"github.com/pkg/errors"
)

// GetSystem scans the value for the given key in the system table into dest.
// It is a no-op if the key does not exist.
func GetSystem(db *DB, key string, dest interface{}) error {
	err := db.QueryRow("SELECT value FROM system WHERE key = ?", key).Scan(dest)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "querying system value for %s", key)
	}

	return nil
}

// UpdateSystem sets the value for the given key in the system table,
// inserting the row if missing
func UpdateSystem(db *DB, key string, value interface{}) error {
	var count int
	if err := db.QueryRow("SELECT count(*) FROM system WHERE key = ?", key).Scan(&count); err != nil {
		return errors.Wrapf(err, "counting system rows for %s", key)
	}

	if count == 0 {
		if _, err := db.Exec("INSERT INTO system (key, value) VALUES (?, ?)", key, value); err != nil {
			return errors.Wrapf(err, "inserting system value for %s", key)
		}
		return nil
	}

	if _, err := db.Exec("UPDATE system SET value = ? WHERE key = ?", value, key); err != nil {
		return errors.Wrapf(err, "updating system value for %s", key)
	}

	return nil
}

// DeleteSystem removes the row for the given key from the system table
func DeleteSystem(db *DB, key string) error {
	if _, err := db.Exec("DELETE FROM system WHERE key = ?", key); err != nil {
		return errors.Wrapf(err, "deleting system value for %s", key)
	}

	return nil
}
