// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

package ankisync

import (
	"context"
	"time"

	"github.com/vasyan/anki-deck-tools-sub000/ankiconnect"
)

// Card is the locally authoritative content record. A card links to at most
// one Anki note; ExportHash is the fingerprint persisted after the last
// successful sync (nil before the first one).
type Card struct {
	ID         int64
	DeckName   string
	Front      string
	Back       string
	AnkiNoteID *int64
	ExportHash *string
	Tags       []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AudioAsset is an immutable synthesized-audio payload, content-addressed by
// (Text, TTSModel). OrderIndex is populated when the asset is returned in
// the context of one card's ordered association list.
type AudioAsset struct {
	ID         int64
	Text       string
	TTSModel   string
	Data       []byte
	OrderIndex int
	CreatedAt  time.Time
}

// MediaFilename is the collection filename an asset is stored under in Anki.
func (a AudioAsset) MediaFilename() string {
	return mediaFilename(a.ID)
}

// CardStore is the persistence surface the sync engine needs for cards.
type CardStore interface {
	GetCard(ctx context.Context, id int64) (*Card, error)
	// SaveSyncResult persists the new fingerprint and tag set in one short
	// transaction. Called only after the remote apply succeeded.
	SaveSyncResult(ctx context.Context, id int64, exportHash string, tags []string) error
	// SaveTags persists the tag set alone, used on skip outcomes where the
	// fingerprint is already current.
	SaveTags(ctx context.Context, id int64, tags []string) error
	LinkNote(ctx context.Context, id int64, noteID int64) error
}

// AudioSource resolves a card's ordered audio assets, typically backed by
// the content-addressed audio cache.
type AudioSource interface {
	CardAssets(ctx context.Context, cardID int64) ([]AudioAsset, error)
}

// NoteClient is the remote collaborator surface consumed by the engine,
// implemented by ankiconnect.Client.
type NoteClient interface {
	FindNotes(ctx context.Context, query string) ([]int64, error)
	NotesInfo(ctx context.Context, noteIDs []int64) ([]ankiconnect.NoteInfo, error)
	AddNote(ctx context.Context, note ankiconnect.NewNote) (int64, error)
	UpdateNote(ctx context.Context, noteID int64, fields map[string]string, tags []string) error
	StoreMediaFile(ctx context.Context, filename string, data []byte) error
	DeleteMediaFile(ctx context.Context, filename string) error
	MediaFileNames(ctx context.Context, pattern string) ([]string, error)
}
