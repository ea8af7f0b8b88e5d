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
	"time"

	"github.com/pkg/errors"
)

// Display modes for a note
const (
	ModeText = "text"
	ModeDraw = "draw"
)

// Note represents a sticky note. Text and Paths carry opaque payloads owned
// by the presentation layer.
type Note struct {
	ID          string
	X           float64
	Y           float64
	Width       float64
	Height      float64
	ZIndex      int
	Color       string
	ColorIndex  int
	Mode        string
	Text        string
	PlainText   string
	Paths       string
	InlineSVG   string
	TagIDs      []string
	DateCreated time.Time
	LastEdited  time.Time
	Dirty       bool
}

// Tag represents a note tag
type Tag struct {
	ID    string
	Name  string
	Color string
}

// Save upserts the note and replaces its tag associations
func (n Note) Save(db *DB) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO notes
		(id, x, y, width, height, z_index, color, color_index, mode, text, plain_text, paths, inline_svg, date_created, last_edited, dirty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.X, n.Y, n.Width, n.Height, n.ZIndex, n.Color, n.ColorIndex, n.Mode, n.Text, n.PlainText, n.Paths, n.InlineSVG,
		n.DateCreated.UnixMilli(), n.LastEdited.UnixMilli(), n.Dirty)
	if err != nil {
		return errors.Wrapf(err, "upserting note with id %s", n.ID)
	}

	if _, err := db.Exec("DELETE FROM note_tags WHERE note_id = ?", n.ID); err != nil {
		return errors.Wrapf(err, "clearing tag associations for note %s", n.ID)
	}
	for _, tagID := range n.TagIDs {
		if _, err := db.Exec("INSERT OR IGNORE INTO note_tags (note_id, tag_id) VALUES (?, ?)", n.ID, tagID); err != nil {
			return errors.Wrapf(err, "associating tag %s with note %s", tagID, n.ID)
		}
	}

	return nil
}

// Expunge hard-deletes the note from the database
func (n Note) Expunge(db *DB) error {
	_, err := db.Exec("DELETE FROM notes WHERE id = ?", n.ID)
	if err != nil {
		return errors.Wrap(err, "expunging a note locally")
	}

	return nil
}

// ListNotes returns all local notes with their tag associations, ordered by
// creation time
func ListNotes(db *DB) ([]Note, error) {
	tagsByNote, err := listAssociations(db)
	if err != nil {
		return nil, errors.Wrap(err, "listing tag associations")
	}

	rows, err := db.Query(`SELECT id, x, y, width, height, z_index, color, color_index, mode, text, plain_text, paths, inline_svg, date_created, last_edited, dirty
		FROM notes ORDER BY date_created ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "querying notes")
	}
	defer rows.Close()

	var ret []Note
	for rows.Next() {
		var n Note
		var created, edited int64
		if err := rows.Scan(&n.ID, &n.X, &n.Y, &n.Width, &n.Height, &n.ZIndex, &n.Color, &n.ColorIndex, &n.Mode, &n.Text,
			&n.PlainText, &n.Paths, &n.InlineSVG, &created, &edited, &n.Dirty); err != nil {
			return nil, errors.Wrap(err, "scanning a note row")
		}

		n.DateCreated = time.UnixMilli(created).UTC()
		n.LastEdited = time.UnixMilli(edited).UTC()
		n.TagIDs = tagsByNote[n.ID]

		ret = append(ret, n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating note rows")
	}

	return ret, nil
}

// GetNote returns the note with the given id. The second return value is
// false if no such note exists.
func GetNote(db *DB, id string) (Note, bool, error) {
	var n Note
	var created, edited int64

	err := db.QueryRow(`SELECT id, x, y, width, height, z_index, color, color_index, mode, text, plain_text, paths, inline_svg, date_created, last_edited, dirty
		FROM notes WHERE id = ?`, id).
		Scan(&n.ID, &n.X, &n.Y, &n.Width, &n.Height, &n.ZIndex, &n.Color, &n.ColorIndex, &n.Mode, &n.Text,
			&n.PlainText, &n.Paths, &n.InlineSVG, &created, &edited, &n.Dirty)
	if err == sql.ErrNoRows {
		return Note{}, false, nil
	} else if err != nil {
		return Note{}, false, errors.Wrapf(err, "finding note %s", id)
	}

	n.DateCreated = time.UnixMilli(created).UTC()
	n.LastEdited = time.UnixMilli(edited).UTC()

	rows, err := db.Query("SELECT tag_id FROM note_tags WHERE note_id = ?", n.ID)
	if err != nil {
		return Note{}, false, errors.Wrap(err, "querying tag associations")
	}
	defer rows.Close()

	for rows.Next() {
		var tagID string
		if err := rows.Scan(&tagID); err != nil {
			return Note{}, false, errors.Wrap(err, "scanning an association row")
		}
		n.TagIDs = append(n.TagIDs, tagID)
	}
	if err := rows.Err(); err != nil {
		return Note{}, false, errors.Wrap(err, "iterating association rows")
	}

	return n, true, nil
}

func listAssociations(db *DB) (map[string][]string, error) {
	rows, err := db.Query("SELECT note_id, tag_id FROM note_tags")
	if err != nil {
		return nil, errors.Wrap(err, "querying note_tags")
	}
	defer rows.Close()

	ret := map[string][]string{}
	for rows.Next() {
		var noteID, tagID string
		if err := rows.Scan(&noteID, &tagID); err != nil {
			return nil, errors.Wrap(err, "scanning an association row")
		}
		ret[noteID] = append(ret[noteID], tagID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating association rows")
	}

	return ret, nil
}

// Save upserts the tag
func (t Tag) Save(db *DB) error {
	_, err := db.Exec("INSERT OR REPLACE INTO tags (id, name, color) VALUES (?, ?, ?)", t.ID, t.Name, t.Color)
	if err != nil {
		return errors.Wrapf(err, "upserting tag with id %s", t.ID)
	}

	return nil
}

// Expunge hard-deletes the tag. Associations cascade.
func (t Tag) Expunge(db *DB) error {
	_, err := db.Exec("DELETE FROM tags WHERE id = ?", t.ID)
	if err != nil {
		return errors.Wrap(err, "expunging a tag locally")
	}

	return nil
}

// ListTags returns all local tags ordered by name
func ListTags(db *DB) ([]Tag, error) {
	rows, err := db.Query("SELECT id, name, color FROM tags ORDER BY name ASC")
	if err != nil {
		return nil, errors.Wrap(err, "querying tags")
	}
	defer rows.Close()

	var ret []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color); err != nil {
			return nil, errors.Wrap(err, "scanning a tag row")
		}
		ret = append(ret, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating tag rows")
	}

	return ret, nil
}
