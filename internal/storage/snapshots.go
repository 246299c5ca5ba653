/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage keeps local page snapshots in an embedded SQLite database.
// Snapshots are a recovery aid: the backend stays the source of truth, the
// local store only captures what the editor last saw so a crash or an offline
// session does not lose the working set.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"takeoff/internal/domain"
	applog "takeoff/internal/log"
	"takeoff/internal/version"

	"github.com/xeipuuv/gojsonschema"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	SnapshotFileName = "snapshots.sqlite"

	// schemaVersion tracks the local SQLite schema. Bump on breaking changes.
	schemaVersion = 1

	// DefaultKeep is how many snapshots Prune retains per page.
	DefaultKeep = 20
)

// ErrInvalidDocument is returned when a page document fails schema validation,
// wrapped with the individual violations.
var ErrInvalidDocument = errors.New("page document failed validation")

// PageDocument is the unit a snapshot stores: everything needed to restore a
// page's working set.
type PageDocument struct {
	PageID       string               `json:"pageId"`
	Scale        float64              `json:"scale"`
	Conditions   []domain.Condition   `json:"conditions"`
	Measurements []domain.Measurement `json:"measurements"`
}

// pageDocumentSchema guards the on-disk format. A blob that does not validate
// is refused on write and reported on read instead of silently restoring
// garbage into the editor.
const pageDocumentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["pageId", "scale", "measurements"],
  "properties": {
    "pageId": {"type": "string", "minLength": 1},
    "scale": {"type": "number", "exclusiveMinimum": 0},
    "conditions": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "color": {"type": "string"},
          "unit": {"type": "string"}
        }
      }
    },
    "measurements": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["id", "conditionId", "kind", "points"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "conditionId": {"type": "string"},
          "kind": {"enum": ["point", "line", "polyline", "polygon", "rectangle", "circle"]},
          "points": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["x", "y"],
              "properties": {
                "x": {"type": "number"},
                "y": {"type": "number"}
              }
            }
          }
        }
      }
    }
  }
}`

var docSchema = gojsonschema.NewStringLoader(pageDocumentSchema)

// ValidateDocument checks a serialized page document against the snapshot
// schema and reports every violation.
func ValidateDocument(data []byte) error {
	res, err := gojsonschema.Validate(docSchema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate snapshot: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %v", ErrInvalidDocument, msgs)
}

// Store is the local snapshot database. It is safe for concurrent use; the
// pool is capped at one connection for embedded usage.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// SnapshotPath returns the database file path under dataDir.
func SnapshotPath(dataDir string) string {
	return filepath.Join(dataDir, SnapshotFileName)
}

// Open creates dataDir if needed, opens the snapshot database, enables WAL
// mode, and ensures the schema is current.
func Open(dataDir string) (*Store, error) {
	l := applog.WithComponent("storage")
	if dataDir == "" {
		return nil, errors.New("data dir is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(SnapshotPath(dataDir)))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	l.Debug("snapshot store ready", slog.String("path", SnapshotPath(dataDir)))
	return &Store{db: db, log: l}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS version (
			id         INTEGER PRIMARY KEY CHECK(id=1),
			schema     INTEGER NOT NULL,
			app        TEXT,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			page_id TEXT NOT NULL,
			ts      TEXT NOT NULL,
			doc     BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_page_ts ON snapshots(page_id, ts DESC);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, updated_at) VALUES(1, ?, ?, ?)`, schemaVersion, version.String(), now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, version.String(), now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save validates and persists a snapshot of the page document.
func (s *Store) Save(ctx context.Context, doc PageDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := ValidateDocument(data); err != nil {
		return err
	}
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, `INSERT INTO snapshots(page_id, ts, doc) VALUES (?, ?, ?)`, doc.PageID, ts, data); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	s.log.Debug("snapshot saved", slog.String("page", doc.PageID), slog.Int("bytes", len(data)))
	return nil
}

// Latest returns the most recent snapshot for the page, or ok=false when the
// page has none. A stored blob that no longer validates is an error, not a
// silent restore.
func (s *Store) Latest(ctx context.Context, pageID string) (PageDocument, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM snapshots WHERE page_id = ? ORDER BY ts DESC, id DESC LIMIT 1`, pageID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return PageDocument{}, false, nil
	}
	if err != nil {
		return PageDocument{}, false, err
	}
	if err := ValidateDocument(blob); err != nil {
		return PageDocument{}, false, err
	}
	var doc PageDocument
	if err := json.Unmarshal(blob, &doc); err != nil {
		return PageDocument{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return doc, true, nil
}

// Count reports how many snapshots a page currently has.
func (s *Store) Count(ctx context.Context, pageID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM snapshots WHERE page_id = ?`, pageID).Scan(&n)
	return n, err
}

// Prune keeps at most keep snapshots per page and drops older ones.
func (s *Store) Prune(ctx context.Context, pageID string, keep int) error {
	if keep <= 0 {
		keep = DefaultKeep
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE page_id = ? AND id NOT IN (
		SELECT id FROM snapshots WHERE page_id = ? ORDER BY ts DESC, id DESC LIMIT ?
	)`, pageID, pageID, keep)
	return err
}
