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

// Package database provides the local SQLite store. It holds the guest-mode
// copy of notes, tags and associations, plus a small system key-value table.
package database

import (
	"database/sql"

	// the sqlite driver registers itself with database/sql
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// DB is a handle to the local database. It wraps either a connection or a
// transaction so that data access helpers work against both.
type DB struct {
	conn *sql.DB
	tx   *sql.Tx
}

// Open opens a database connection at the given path
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, errors.Wrap(err, "enabling foreign keys")
	}

	return &DB{conn: conn}, nil
}

// Begin starts a transaction
func (d *DB) Begin() (*DB, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "beginning a transaction")
	}

	return &DB{conn: d.conn, tx: tx}, nil
}

// Commit commits the transaction
func (d *DB) Commit() error {
	if d.tx == nil {
		return errors.New("not in a transaction")
	}

	return d.tx.Commit()
}

// Rollback aborts the transaction. It is a no-op outside a transaction.
func (d *DB) Rollback() error {
	if d.tx == nil {
		return nil
	}

	return d.tx.Rollback()
}

// Close closes the underlying connection
func (d *DB) Close() error {
	return d.conn.Close()
}

// Exec executes a query without returning any rows
func (d *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	if d.tx != nil {
		return d.tx.Exec(query, args...)
	}

	return d.conn.Exec(query, args...)
}

// Query executes a query that returns rows
func (d *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	if d.tx != nil {
		return d.tx.Query(query, args...)
	}

	return d.conn.Query(query, args...)
}

// QueryRow executes a query that is expected to return at most one row
func (d *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	if d.tx != nil {
		return d.tx.QueryRow(query, args...)
	}

	return d.conn.QueryRow(query, args...)
}

// InitSchema creates the tables if they do not exist yet
func InitSchema(db *DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS notes
		(
			id text PRIMARY KEY,
			x real NOT NULL DEFAULT 0,
			y real NOT NULL DEFAULT 0,
			width real NOT NULL DEFAULT 0,
			height real NOT NULL DEFAULT 0,
			z_index integer NOT NULL DEFAULT 0,
			color text NOT NULL DEFAULT '',
			color_index integer NOT NULL DEFAULT 0,
			mode text NOT NULL DEFAULT 'text',
			text text NOT NULL DEFAULT '',
			plain_text text NOT NULL DEFAULT '',
			paths text NOT NULL DEFAULT '',
			inline_svg text NOT NULL DEFAULT '',
			date_created integer NOT NULL,
			last_edited integer NOT NULL,
			dirty bool NOT NULL DEFAULT false
		)`)
	if err != nil {
		return errors.Wrap(err, "creating notes table")
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS tags
		(
			id text PRIMARY KEY,
			name text NOT NULL,
			color text NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return errors.Wrap(err, "creating tags table")
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS note_tags
		(
			note_id text NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
			tag_id text NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY (note_id, tag_id)
		)`)
	if err != nil {
		return errors.Wrap(err, "creating note_tags table")
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS system
		(
			key string NOT NULL,
			value text NOT NULL
		)`)
	if err != nil {
		return errors.Wrap(err, "creating system table")
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_notes_last_edited ON notes(last_edited);
		CREATE INDEX IF NOT EXISTS idx_note_tags_tag_id ON note_tags(tag_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_system_key ON system(key);`)
	if err != nil {
		return errors.Wrap(err, "creating indices")
	}

	return nil
}
