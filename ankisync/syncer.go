// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

// Package ankisync reconciles a locally authoritative card store with a
// running Anki instance reached through AnkiConnect.
//
// The engine never clobbers edits a human made directly in Anki: whether a
// remote update is needed is decided by comparing content fingerprints, and
// whether it is safe is decided by diffing the note's observed fields and
// user tags against what the engine last exported.
package ankisync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vasyan/anki-deck-tools-sub000/ankiconnect"
)

// Syncer drives reconciliation of single cards against Anki. All remote
// calls go through the injected NoteClient; all persistence through the
// injected CardStore.
type Syncer struct {
	cards  CardStore
	audio  AudioSource
	notes  NoteClient
	tags   *TagManager
	hasher *Hasher
	config *Config
	logger *slog.Logger
}

// NewSyncer creates a sync engine. A nil config selects DefaultConfig with
// an empty deck name; a nil logger selects slog.Default.
func NewSyncer(cards CardStore, audio AudioSource, notes NoteClient, config *Config, logger *slog.Logger) *Syncer {
	if config == nil {
		config = DefaultConfig("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	tags := NewTagManager(config.TagPrefix)
	return &Syncer{
		cards:  cards,
		audio:  audio,
		notes:  notes,
		tags:   tags,
		hasher: NewHasher(tags),
		config: config,
		logger: logger,
	}
}

// Tags exposes the engine's TagManager, e.g. for display code that wants
// CurrentStatus.
func (s *Syncer) Tags() *TagManager { return s.tags }

func mediaFilename(assetID int64) string {
	return fmt.Sprintf("asset_%d.mp3", assetID)
}

// renderCard produces the field map to export: the card's front and back,
// with a sound reference per associated asset appended to the back in
// association order.
func (s *Syncer) renderCard(card *Card, assets []AudioAsset) map[string]string {
	back := card.Back
	for _, asset := range assets {
		back += fmt.Sprintf("\n[sound:%s]", asset.MediaFilename())
	}
	return map[string]string{
		"Front": card.Front,
		"Back":  back,
	}
}

func (s *Syncer) hasSkipTag(tags []string) bool {
	for _, tag := range tags {
		for _, skip := range s.config.SkipTags {
			if tag == skip {
				return true
			}
		}
	}
	return false
}

// SyncCard reconciles one card with its linked Anki note.
//
// Decision order: skip tags win over everything; then an unchanged
// fingerprint (without force) short-circuits to skipped with zero remote
// mutations; only a stale fingerprint reaches Anki. A stale card whose note
// carries human edits fails with ErrConflict instead of overwriting, unless
// force is set. On any remote failure the stored fingerprint stays
// untouched, so the next run retries naturally.
func (s *Syncer) SyncCard(ctx context.Context, cardID int64, force bool) (SyncStatus, error) {
	card, err := s.cards.GetCard(ctx, cardID)
	if err != nil {
		return StatusFailed, fmt.Errorf("failed to load card %d: %w", cardID, err)
	}
	if card.AnkiNoteID == nil {
		return StatusFailed, fmt.Errorf("card %d: %w", cardID, ErrNotLinked)
	}
	if s.hasSkipTag(card.Tags) {
		s.logger.Debug("card excluded by skip tag", "card_id", cardID)
		return StatusSkipped, nil
	}

	assets, err := s.audio.CardAssets(ctx, cardID)
	if err != nil {
		return StatusFailed, fmt.Errorf("failed to resolve audio for card %d: %w", cardID, err)
	}
	fields := s.renderCard(card, assets)
	userTags := s.tags.UserTags(card.Tags)
	fingerprint := s.hasher.FullFingerprint(fields, userTags)

	if card.ExportHash != nil && *card.ExportHash == fingerprint && !force {
		newTags := s.tags.Merge(card.Tags, StatusSkipped)
		if err := s.cards.SaveTags(ctx, cardID, newTags); err != nil {
			return StatusFailed, fmt.Errorf("failed to persist skip status for card %d: %w", cardID, err)
		}
		return StatusSkipped, nil
	}

	noteID := *card.AnkiNoteID
	infos, err := s.notes.NotesInfo(ctx, []int64{noteID})
	if err != nil {
		return StatusFailed, fmt.Errorf("failed to fetch note %d: %w", noteID, err)
	}
	if len(infos) == 0 {
		return StatusFailed, fmt.Errorf("card %d note %d: %w", cardID, noteID, ErrNoteGone)
	}
	note := infos[0]

	if !force && s.config.PreserveRemoteEdits && !s.safeToUpdate(card, note, fields, userTags) {
		changes := s.hasher.DetectModifications(fields, userTags, note)
		return StatusFailed, &ConflictError{CardID: cardID, NoteID: noteID, Changes: changes}
	}

	if err := s.uploadMediaWithReplace(ctx, assets); err != nil {
		return StatusFailed, err
	}

	// Merge over the note's tags plus the card's own, so user tags added on
	// either side survive the update.
	combined := append(append([]string{}, note.Tags...), card.Tags...)
	newTags := s.tags.Merge(combined, StatusSuccess, StatusUpdated)
	if err := s.notes.UpdateNote(ctx, noteID, fields, newTags); err != nil {
		return StatusFailed, fmt.Errorf("failed to update note %d: %w", noteID, err)
	}

	// The persisted fingerprint must cover the tag set as it exists after
	// the merge, or user tags picked up from the note would make the next
	// run look stale forever.
	persistedFingerprint := s.hasher.FullFingerprint(fields, s.tags.UserTags(newTags))
	if err := s.cards.SaveSyncResult(ctx, cardID, persistedFingerprint, newTags); err != nil {
		// Remote apply succeeded but local persistence did not; the next run
		// re-applies idempotently.
		return StatusPartial, fmt.Errorf("note %d updated but card %d not persisted: %w", noteID, cardID, err)
	}

	s.logger.Info("card synced", "card_id", cardID, "note_id", noteID, "fields", len(fields))
	return StatusUpdated, nil
}

// ExportNew creates a fresh Anki note for an unlinked card and links it.
// This is deliberately a distinct operation from SyncCard: reconciliation
// never creates notes, even when the linked note is gone.
func (s *Syncer) ExportNew(ctx context.Context, cardID int64) (int64, error) {
	card, err := s.cards.GetCard(ctx, cardID)
	if err != nil {
		return 0, fmt.Errorf("failed to load card %d: %w", cardID, err)
	}
	if card.AnkiNoteID != nil {
		return 0, fmt.Errorf("card %d: %w", cardID, ErrAlreadyLinked)
	}

	assets, err := s.audio.CardAssets(ctx, cardID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve audio for card %d: %w", cardID, err)
	}
	if err := s.uploadMediaWithReplace(ctx, assets); err != nil {
		return 0, err
	}

	fields := s.renderCard(card, assets)
	newTags := s.tags.Merge(card.Tags, StatusSuccess, StatusNew)
	deck := card.DeckName
	if deck == "" {
		deck = s.config.DeckName
	}
	noteID, err := s.notes.AddNote(ctx, ankiconnect.NewNote{
		DeckName:  deck,
		ModelName: s.config.NoteModel,
		Fields:    fields,
		Tags:      newTags,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add note for card %d: %w", cardID, err)
	}

	if err := s.cards.LinkNote(ctx, cardID, noteID); err != nil {
		return noteID, fmt.Errorf("note %d created but card %d not linked: %w", noteID, cardID, err)
	}
	fingerprint := s.hasher.FullFingerprint(fields, s.tags.UserTags(card.Tags))
	if err := s.cards.SaveSyncResult(ctx, cardID, fingerprint, newTags); err != nil {
		return noteID, fmt.Errorf("note %d created but card %d not persisted: %w", noteID, cardID, err)
	}

	s.logger.Info("card exported", "card_id", cardID, "note_id", noteID, "deck", deck)
	return noteID, nil
}

// safeToUpdate decides whether overwriting the note can destroy human work.
// The note is safe when its observed fields and user tags still hash to the
// fingerprint persisted by the last successful sync: then everything on the
// remote side is engine-written. A linked card that has never synced has no
// baseline, so it is safe only when the note already matches the target
// render.
func (s *Syncer) safeToUpdate(card *Card, note ankiconnect.NoteInfo, fields map[string]string, userTags []string) bool {
	if card.ExportHash != nil {
		observed := s.hasher.FullFingerprint(note.FieldValues(), s.tags.UserTags(note.Tags))
		return observed == *card.ExportHash
	}
	return s.hasher.DetectModifications(fields, userTags, note).SafeToUpdate
}

// uploadMediaWithReplace stores each asset under its collection filename,
// deleting any existing file of the same name first so stale bytes never
// survive under a reused name.
func (s *Syncer) uploadMediaWithReplace(ctx context.Context, assets []AudioAsset) error {
	for _, asset := range assets {
		filename := asset.MediaFilename()
		existing, err := s.notes.MediaFileNames(ctx, filename)
		if err != nil {
			return fmt.Errorf("failed to list media %q: %w", filename, err)
		}
		if len(existing) > 0 {
			if err := s.notes.DeleteMediaFile(ctx, filename); err != nil {
				return fmt.Errorf("failed to delete media %q: %w", filename, err)
			}
		}
		if err := s.notes.StoreMediaFile(ctx, filename, asset.Data); err != nil {
			return fmt.Errorf("failed to store media %q: %w", filename, err)
		}
	}
	return nil
}

// Preview reports what SyncCard would do to the linked note without touching
// anything, for review UIs.
func (s *Syncer) Preview(ctx context.Context, cardID int64) (*ContentChanges, error) {
	card, err := s.cards.GetCard(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load card %d: %w", cardID, err)
	}
	if card.AnkiNoteID == nil {
		return nil, fmt.Errorf("card %d: %w", cardID, ErrNotLinked)
	}
	assets, err := s.audio.CardAssets(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve audio for card %d: %w", cardID, err)
	}
	infos, err := s.notes.NotesInfo(ctx, []int64{*card.AnkiNoteID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch note %d: %w", *card.AnkiNoteID, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("card %d note %d: %w", cardID, *card.AnkiNoteID, ErrNoteGone)
	}
	changes := s.hasher.DetectModifications(s.renderCard(card, assets), s.tags.UserTags(card.Tags), infos[0])
	return &changes, nil
}

// statusLabel trims a wrapped error chain down to a single display line.
func statusLabel(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
