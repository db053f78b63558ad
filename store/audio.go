// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vasyan/anki-deck-tools-sub000/ankisync"
)

// AudioLookup is one entry of BatchFindOrCreate: whether a synthesis call
// can be skipped for this text, and the reusable asset when it can.
type AudioLookup struct {
	Text            string
	NeedsGeneration bool
	Existing        *ankisync.AudioAsset
}

// AudioUsage reports which cards reference an asset.
type AudioUsage struct {
	AssetID   int64   `json:"asset_id"`
	Text      string  `json:"text"`
	TTSModel  string  `json:"tts_model"`
	CardCount int     `json:"card_count"`
	CardIDs   []int64 `json:"card_ids"`
}

// FindReusable returns the asset for (text, model), or nil when none exists.
// An empty model matches only assets stored without a model.
func (s *Store) FindReusable(ctx context.Context, text, ttsModel string) (*ankisync.AudioAsset, error) {
	asset := &ankisync.AudioAsset{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, text, tts_model, audio_data, created_at
		FROM example_audio WHERE text = ? AND tts_model = ?
	`, text, ttsModel).Scan(&asset.ID, &asset.Text, &asset.TTSModel, &asset.Data, &asset.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up audio for %q: %w", text, err)
	}
	return asset, nil
}

// CreateAndAssociate stores audio for (text, model) and associates it with a
// card. When an asset for the pair already exists its id is reused; two
// assets with identical (text, model) can never come into existence. The
// insert races through the unique index on (text, tts_model) with
// ON CONFLICT DO NOTHING, so concurrent batch generation for the same text
// converges on one row.
func (s *Store) CreateAndAssociate(ctx context.Context, cardID int64, text string, data []byte, ttsModel string, orderIndex *int) (assetID, associationID int64, err error) {
	if text == "" || len(data) == 0 {
		return 0, 0, fmt.Errorf("text and audio data are required: %w", ErrInvalidAsset)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO example_audio (text, tts_model, audio_data)
		VALUES (?, ?, ?)
		ON CONFLICT(text, tts_model) DO NOTHING
	`, text, ttsModel, data); err != nil {
		return 0, 0, fmt.Errorf("failed to insert audio for %q: %w", text, err)
	}
	if err = tx.QueryRowContext(ctx, `
		SELECT id FROM example_audio WHERE text = ? AND tts_model = ?
	`, text, ttsModel).Scan(&assetID); err != nil {
		return 0, 0, fmt.Errorf("failed to resolve audio id for %q: %w", text, err)
	}

	associationID, err = s.associateInTx(ctx, tx, cardID, assetID, orderIndex)
	if err != nil {
		return 0, 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit audio association: %w", err)
	}
	return assetID, associationID, nil
}

// Associate links an existing asset to a card. Idempotent: associating the
// same (card, asset) pair again updates order_index when one is given and is
// otherwise a no-op. Without an explicit index a new association goes to the
// end of the card's sequence.
func (s *Store) Associate(ctx context.Context, cardID, assetID int64, orderIndex *int) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	associationID, err := s.associateInTx(ctx, tx, cardID, assetID, orderIndex)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit association: %w", err)
	}
	return associationID, nil
}

func (s *Store) associateInTx(ctx context.Context, tx *sql.Tx, cardID, assetID int64, orderIndex *int) (int64, error) {
	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM example_audio WHERE id = ?`, assetID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check asset %d: %w", assetID, err)
	}
	if exists == 0 {
		return 0, fmt.Errorf("audio asset %d: %w", assetID, ErrNotFound)
	}

	if orderIndex != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO card_audio_association (card_id, audio_id, order_index)
			VALUES (?, ?, ?)
			ON CONFLICT(card_id, audio_id) DO UPDATE SET order_index = excluded.order_index
		`, cardID, assetID, *orderIndex); err != nil {
			return 0, fmt.Errorf("failed to associate asset %d with card %d: %w", assetID, cardID, err)
		}
	} else {
		var next int
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(order_index) + 1, 0)
			FROM card_audio_association WHERE card_id = ?
		`, cardID).Scan(&next); err != nil {
			return 0, fmt.Errorf("failed to compute order index for card %d: %w", cardID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO card_audio_association (card_id, audio_id, order_index)
			VALUES (?, ?, ?)
			ON CONFLICT(card_id, audio_id) DO NOTHING
		`, cardID, assetID, next); err != nil {
			return 0, fmt.Errorf("failed to associate asset %d with card %d: %w", assetID, cardID, err)
		}
	}

	var associationID int64
	if err := tx.QueryRowContext(ctx, `
		SELECT id FROM card_audio_association WHERE card_id = ? AND audio_id = ?
	`, cardID, assetID).Scan(&associationID); err != nil {
		return 0, fmt.Errorf("failed to resolve association id: %w", err)
	}
	return associationID, nil
}

// BatchFindOrCreate reports, for each text, whether synthesized audio
// already exists. Callers must skip the synthesis service for every entry
// with NeedsGeneration false.
func (s *Store) BatchFindOrCreate(ctx context.Context, texts []string, ttsModel string) ([]AudioLookup, error) {
	results := make([]AudioLookup, 0, len(texts))
	for _, text := range texts {
		asset, err := s.FindReusable(ctx, text, ttsModel)
		if err != nil {
			return nil, err
		}
		results = append(results, AudioLookup{
			Text:            text,
			NeedsGeneration: asset == nil,
			Existing:        asset,
		})
	}
	return results, nil
}

// CardAssets returns a card's assets in association order.
func (s *Store) CardAssets(ctx context.Context, cardID int64) ([]ankisync.AudioAsset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.text, a.tts_model, a.audio_data, a.created_at, assoc.order_index
		FROM example_audio a
		JOIN card_audio_association assoc ON assoc.audio_id = a.id
		WHERE assoc.card_id = ?
		ORDER BY assoc.order_index, a.id
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assets for card %d: %w", cardID, err)
	}
	defer rows.Close()

	var assets []ankisync.AudioAsset
	for rows.Next() {
		var asset ankisync.AudioAsset
		if err := rows.Scan(&asset.ID, &asset.Text, &asset.TTSModel,
			&asset.Data, &asset.CreatedAt, &asset.OrderIndex); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// Reorder rewrites order_index for the given asset ids to their position in
// the sequence (0-based). Assets of the card not named in the sequence are
// left untouched.
func (s *Store) Reorder(ctx context.Context, cardID int64, orderedAssetIDs []int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for position, assetID := range orderedAssetIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE card_audio_association SET order_index = ?
			WHERE card_id = ? AND audio_id = ?
		`, position, cardID, assetID); err != nil {
			return fmt.Errorf("failed to reorder asset %d for card %d: %w", assetID, cardID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reorder: %w", err)
	}
	return nil
}

// UsageStats reports which cards reference an asset.
func (s *Store) UsageStats(ctx context.Context, assetID int64) (*AudioUsage, error) {
	usage := &AudioUsage{AssetID: assetID}
	err := s.db.QueryRowContext(ctx,
		`SELECT text, tts_model FROM example_audio WHERE id = ?`, assetID).
		Scan(&usage.Text, &usage.TTSModel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audio asset %d: %w", assetID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load asset %d: %w", assetID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT card_id FROM card_audio_association
		WHERE audio_id = ? ORDER BY card_id
	`, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage for asset %d: %w", assetID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cardID int64
		if err := rows.Scan(&cardID); err != nil {
			return nil, fmt.Errorf("failed to scan card id: %w", err)
		}
		usage.CardIDs = append(usage.CardIDs, cardID)
	}
	usage.CardCount = len(usage.CardIDs)
	return usage, rows.Err()
}

// CleanupUnused deletes every asset with zero associations and returns how
// many were removed. Maintenance-only: sync never calls this implicitly.
func (s *Store) CleanupUnused(ctx context.Context) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM example_audio
		WHERE id NOT IN (SELECT DISTINCT audio_id FROM card_audio_association)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unused audio: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("removed unused audio assets", "count", removed)
	}
	return removed, nil
}
