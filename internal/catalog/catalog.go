// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog records every source cited in any conversation, locally.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/ragchat/internal/citation"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrClosed = errors.New("catalog is closed")
)

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS sources (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	question_index  INTEGER NOT NULL,
	title           TEXT NOT NULL,
	content         TEXT NOT NULL,
	document_url    TEXT NOT NULL DEFAULT '',
	first_seen      TIMESTAMP NOT NULL,
	UNIQUE(conversation_id, question_index, title)
);

CREATE INDEX IF NOT EXISTS idx_sources_title ON sources(title);
CREATE INDEX IF NOT EXISTS idx_sources_conversation ON sources(conversation_id);
`

// =============================================================================
// CATALOG
// =============================================================================

// Catalog is a persistent index of cited sources across all conversations.
// It implements generation.SourceSink: sessions feed it the same
// deduplicated records they merge into the aggregator, with conversation and
// question provenance. Duplicate records across calls are absorbed by the
// unique constraint.
type Catalog struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) a catalog database at path.
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Catalog{db: db, path: path}, nil
}

// Close releases the database.
func (c *Catalog) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// =============================================================================
// WRITES
// =============================================================================

// RecordSources inserts records with provenance, ignoring ones already
// present for the same conversation and question. Implements
// generation.SourceSink.
func (c *Catalog) RecordSources(conversationID string, questionIndex int, records []citation.SourceRecord) error {
	if c.db == nil {
		return ErrClosed
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, rec := range records {
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO sources
				(conversation_id, question_index, title, content, document_url, first_seen)
			VALUES (?, ?, ?, ?, ?, ?)`,
			conversationID, questionIndex, rec.Title, rec.Content, rec.DocumentURL, now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteConversation removes all records for one conversation.
func (c *Catalog) DeleteConversation(conversationID string) error {
	if c.db == nil {
		return ErrClosed
	}
	_, err := c.db.Exec("DELETE FROM sources WHERE conversation_id = ?", conversationID)
	return err
}

// =============================================================================
// READS
// =============================================================================

// Entry is one catalogued source with provenance.
type Entry struct {
	ConversationID string
	QuestionIndex  int
	Record         citation.SourceRecord
	FirstSeen      time.Time
}

// Search returns entries whose title or content contains the query
// substring, most recent first.
func (c *Catalog) Search(query string, limit int) ([]Entry, error) {
	if c.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 50
	}

	pattern := "%" + query + "%"
	rows, err := c.db.Query(`
		SELECT conversation_id, question_index, title, content, document_url, first_seen
		FROM sources
		WHERE title LIKE ? OR content LIKE ?
		ORDER BY first_seen DESC
		LIMIT ?`,
		pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ForConversation returns every entry recorded for one conversation, in
// question order.
func (c *Catalog) ForConversation(conversationID string) ([]Entry, error) {
	if c.db == nil {
		return nil, ErrClosed
	}

	rows, err := c.db.Query(`
		SELECT conversation_id, question_index, title, content, document_url, first_seen
		FROM sources
		WHERE conversation_id = ?
		ORDER BY question_index, id`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Stats returns total entries and distinct titles in the catalog.
func (c *Catalog) Stats() (total, distinctTitles int, err error) {
	if c.db == nil {
		return 0, 0, ErrClosed
	}
	if err := c.db.QueryRow("SELECT COUNT(*) FROM sources").Scan(&total); err != nil {
		return 0, 0, err
	}
	if err := c.db.QueryRow("SELECT COUNT(DISTINCT title) FROM sources").Scan(&distinctTitles); err != nil {
		return 0, 0, err
	}
	return total, distinctTitles, nil
}

// scanEntries reads entry rows.
func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ConversationID, &e.QuestionIndex, &e.Record.Title, &e.Record.Content, &e.Record.DocumentURL, &e.FirstSeen); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
