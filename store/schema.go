// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

// Package store provides SQLite persistence for cards and the
// content-addressed audio cache.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a card or asset id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAsset is returned for malformed asset payloads (empty text
	// or empty audio data).
	ErrInvalidAsset = errors.New("invalid audio asset")
)

// Store wraps one SQLite database holding cards, audio assets and their
// ordered many-to-many associations.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// Serialize write operations to prevent SQLite locking issues. This also
	// makes the find-or-create path race-free under concurrent batches, on
	// top of the unique index on (text, tts_model).
	writeMu sync.Mutex
}

// Open opens (creating if needed) the SQLite database at path and
// initializes the schema. Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing database handle and initializes the schema.
func New(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := initializeSchema(db); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for maintenance tooling.
func (s *Store) DB() *sql.DB { return s.db }

func initializeSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS cards (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			deck_name     TEXT NOT NULL DEFAULT '',
			front         TEXT NOT NULL,
			back          TEXT NOT NULL,
			anki_note_id  INTEGER,
			export_hash   TEXT,
			tags          TEXT NOT NULL DEFAULT '[]',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS example_audio (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			text        TEXT NOT NULL,
			tts_model   TEXT NOT NULL DEFAULT '',
			audio_data  BLOB NOT NULL,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		// tts_model is NOT NULL with '' for "no model" so this index
		// deduplicates that case too (SQLite treats NULLs as distinct).
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_example_audio_identity
			ON example_audio(text, tts_model)`,
		`CREATE TABLE IF NOT EXISTS card_audio_association (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			card_id     INTEGER NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
			audio_id    INTEGER NOT NULL REFERENCES example_audio(id) ON DELETE CASCADE,
			order_index INTEGER NOT NULL DEFAULT 0,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(card_id, audio_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_card_audio_card
			ON card_audio_association(card_id, order_index)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
