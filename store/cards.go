// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vasyan/anki-deck-tools-sub000/ankisync"
)

var (
	_ ankisync.CardStore   = (*Store)(nil)
	_ ankisync.AudioSource = (*Store)(nil)
)

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(data), nil
}

func decodeTags(data string) ([]string, error) {
	if data == "" {
		return []string{}, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(data), &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	return tags, nil
}

// CreateCard inserts a new unlinked card and returns its id.
func (s *Store) CreateCard(ctx context.Context, deckName, front, back string, tags []string) (int64, error) {
	encoded, err := encodeTags(tags)
	if err != nil {
		return 0, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cards (deck_name, front, back, tags)
		VALUES (?, ?, ?, ?)
	`, deckName, front, back, encoded)
	if err != nil {
		return 0, fmt.Errorf("failed to insert card: %w", err)
	}
	return res.LastInsertId()
}

// GetCard loads one card by id.
func (s *Store) GetCard(ctx context.Context, id int64) (*ankisync.Card, error) {
	card := &ankisync.Card{}
	var noteID sql.NullInt64
	var exportHash sql.NullString
	var tags string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, deck_name, front, back, anki_note_id, export_hash, tags, created_at, updated_at
		FROM cards WHERE id = ?
	`, id).Scan(&card.ID, &card.DeckName, &card.Front, &card.Back,
		&noteID, &exportHash, &tags, &card.CreatedAt, &card.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("card %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load card %d: %w", id, err)
	}
	if noteID.Valid {
		card.AnkiNoteID = &noteID.Int64
	}
	if exportHash.Valid {
		card.ExportHash = &exportHash.String
	}
	if card.Tags, err = decodeTags(tags); err != nil {
		return nil, fmt.Errorf("card %d: %w", id, err)
	}
	return card, nil
}

// ListCardIDs returns every card id, optionally filtered by deck.
func (s *Store) ListCardIDs(ctx context.Context, deckName string) ([]int64, error) {
	query := `SELECT id FROM cards ORDER BY id`
	args := []any{}
	if deckName != "" {
		query = `SELECT id FROM cards WHERE deck_name = ? ORDER BY id`
		args = append(args, deckName)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan card id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveSyncResult persists the fingerprint and tag set produced by a
// successful sync in one statement.
func (s *Store) SaveSyncResult(ctx context.Context, id int64, exportHash string, tags []string) error {
	encoded, err := encodeTags(tags)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE cards SET export_hash = ?, tags = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, exportHash, encoded, id)
	if err != nil {
		return fmt.Errorf("failed to save sync result for card %d: %w", id, err)
	}
	return requireRow(res, id)
}

// SaveTags persists only the tag set, leaving the fingerprint alone.
func (s *Store) SaveTags(ctx context.Context, id int64, tags []string) error {
	encoded, err := encodeTags(tags)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE cards SET tags = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, encoded, id)
	if err != nil {
		return fmt.Errorf("failed to save tags for card %d: %w", id, err)
	}
	return requireRow(res, id)
}

// LinkNote records the Anki note id a card was exported to.
func (s *Store) LinkNote(ctx context.Context, id int64, noteID int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE cards SET anki_note_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, noteID, id)
	if err != nil {
		return fmt.Errorf("failed to link card %d to note %d: %w", id, noteID, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, cardID int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("card %d: %w", cardID, ErrNotFound)
	}
	return nil
}
