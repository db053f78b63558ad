// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

package ankisync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/vasyan/anki-deck-tools-sub000/ankiconnect"
)

type fakeStore struct {
	mu     sync.Mutex
	cards  map[int64]*Card
	assets map[int64][]AudioAsset

	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cards:  make(map[int64]*Card),
		assets: make(map[int64][]AudioAsset),
	}
}

func (f *fakeStore) GetCard(ctx context.Context, id int64) (*Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	card, ok := f.cards[id]
	if !ok {
		return nil, fmt.Errorf("card %d not found", id)
	}
	clone := *card
	clone.Tags = append([]string(nil), card.Tags...)
	return &clone, nil
}

func (f *fakeStore) SaveSyncResult(ctx context.Context, id int64, exportHash string, tags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	card := f.cards[id]
	card.ExportHash = &exportHash
	card.Tags = append([]string(nil), tags...)
	return nil
}

func (f *fakeStore) SaveTags(ctx context.Context, id int64, tags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards[id].Tags = append([]string(nil), tags...)
	return nil
}

func (f *fakeStore) LinkNote(ctx context.Context, id int64, noteID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards[id].AnkiNoteID = &noteID
	return nil
}

func (f *fakeStore) CardAssets(ctx context.Context, cardID int64) ([]AudioAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AudioAsset(nil), f.assets[cardID]...), nil
}

type fakeAnki struct {
	mu    sync.Mutex
	notes map[int64]*ankiconnect.NoteInfo
	media map[string][]byte

	nextNoteID int64

	infoCalls   int
	updateCalls int
	storeCalls  int
	deleteCalls int
	addCalls    int

	failUpdate map[int64]error
}

func newFakeAnki() *fakeAnki {
	return &fakeAnki{
		notes:      make(map[int64]*ankiconnect.NoteInfo),
		media:      make(map[string][]byte),
		nextNoteID: 1000,
		failUpdate: make(map[int64]error),
	}
}

func (f *fakeAnki) setNote(id int64, fields map[string]string, tags []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := &ankiconnect.NoteInfo{NoteID: id, ModelName: "Basic", Tags: tags,
		Fields: make(map[string]ankiconnect.NoteField)}
	for name, value := range fields {
		info.Fields[name] = ankiconnect.NoteField{Value: value}
	}
	f.notes[id] = info
}

func (f *fakeAnki) mutationCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateCalls + f.storeCalls + f.deleteCalls + f.addCalls
}

func (f *fakeAnki) FindNotes(ctx context.Context, query string) ([]int64, error) {
	return nil, nil
}

func (f *fakeAnki) NotesInfo(ctx context.Context, noteIDs []int64) ([]ankiconnect.NoteInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoCalls++
	var infos []ankiconnect.NoteInfo
	for _, id := range noteIDs {
		if note, ok := f.notes[id]; ok {
			infos = append(infos, *note)
		}
	}
	return infos, nil
}

func (f *fakeAnki) AddNote(ctx context.Context, note ankiconnect.NewNote) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	f.nextNoteID++
	id := f.nextNoteID
	info := &ankiconnect.NoteInfo{NoteID: id, ModelName: note.ModelName,
		Tags: note.Tags, Fields: make(map[string]ankiconnect.NoteField)}
	for name, value := range note.Fields {
		info.Fields[name] = ankiconnect.NoteField{Value: value}
	}
	f.notes[id] = info
	return id, nil
}

func (f *fakeAnki) UpdateNote(ctx context.Context, noteID int64, fields map[string]string, tags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if err := f.failUpdate[noteID]; err != nil {
		return err
	}
	note := f.notes[noteID]
	for name, value := range fields {
		note.Fields[name] = ankiconnect.NoteField{Value: value}
	}
	if tags != nil {
		note.Tags = append([]string(nil), tags...)
	}
	return nil
}

func (f *fakeAnki) StoreMediaFile(ctx context.Context, filename string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storeCalls++
	f.media[filename] = append([]byte(nil), data...)
	return nil
}

func (f *fakeAnki) DeleteMediaFile(ctx context.Context, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	delete(f.media, filename)
	return nil
}

func (f *fakeAnki) MediaFileNames(ctx context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.media[pattern]; ok {
		return []string{pattern}, nil
	}
	return nil, nil
}

func newTestSyncer(cards *fakeStore, anki *fakeAnki) *Syncer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSyncer(cards, cards, anki, DefaultConfig("test-deck"), logger)
}

func ptrInt64(v int64) *int64 { return &v }

func TestSyncCardNotLinked(t *testing.T) {
	cards := newFakeStore()
	cards.cards[1] = &Card{ID: 1, Front: "f", Back: "b"}
	s := newTestSyncer(cards, newFakeAnki())

	status, err := s.SyncCard(context.Background(), 1, false)
	if status != StatusFailed || !errors.Is(err, ErrNotLinked) {
		t.Fatalf("got %v / %v, want failed / ErrNotLinked", status, err)
	}
}

func TestSyncCardSkipTagWinsOverStaleContent(t *testing.T) {
	cards := newFakeStore()
	cards.cards[1] = &Card{ID: 1, Front: "f", Back: "b",
		AnkiNoteID: ptrInt64(100), Tags: []string{"sync::skip"}}
	anki := newFakeAnki()
	s := newTestSyncer(cards, anki)

	status, err := s.SyncCard(context.Background(), 1, false)
	if err != nil || status != StatusSkipped {
		t.Fatalf("got %v / %v, want skipped", status, err)
	}
	if anki.infoCalls != 0 || anki.mutationCalls() != 0 {
		t.Fatalf("skip tag must short-circuit before any remote call")
	}
}

func TestSyncCardUpdateThenIdempotentSkip(t *testing.T) {
	cards := newFakeStore()
	cards.cards[1] = &Card{ID: 1, Front: "สวัสดี", Back: "Hello",
		AnkiNoteID: ptrInt64(100), Tags: []string{"thai"}}
	anki := newFakeAnki()
	anki.setNote(100, map[string]string{"Front": "", "Back": ""}, nil)
	s := newTestSyncer(cards, anki)
	ctx := context.Background()

	// First sync: never exported, note is empty -> unsafe baseline check
	// would fire, so the initial export uses force.
	status, err := s.SyncCard(ctx, 1, true)
	if err != nil || status != StatusUpdated {
		t.Fatalf("first sync: got %v / %v, want updated", status, err)
	}
	if cards.cards[1].ExportHash == nil {
		t.Fatalf("fingerprint not persisted")
	}
	note := anki.notes[100]
	if note.Fields["Front"].Value != "สวัสดี" {
		t.Fatalf("note fields not applied: %+v", note.Fields)
	}
	if user := s.Tags().UserTags(note.Tags); len(user) != 1 || user[0] != "thai" {
		t.Fatalf("card's user tag not pushed to the note: %v", note.Tags)
	}

	mutationsAfterFirst := anki.mutationCalls()

	// Second sync: nothing changed, must skip without remote mutations.
	status, err = s.SyncCard(ctx, 1, false)
	if err != nil || status != StatusSkipped {
		t.Fatalf("second sync: got %v / %v, want skipped", status, err)
	}
	if anki.mutationCalls() != mutationsAfterFirst {
		t.Fatalf("idempotent re-sync issued remote mutations")
	}
	if got, ok := s.Tags().CurrentStatus(cards.cards[1].Tags); !ok || got != StatusSkipped {
		t.Fatalf("local status tag = %v/%v, want skipped", got, ok)
	}

	// Third sync after a local edit: stale again, remote untouched -> safe.
	cards.cards[1].Front = "สวัสดีครับ"
	status, err = s.SyncCard(ctx, 1, false)
	if err != nil || status != StatusUpdated {
		t.Fatalf("third sync: got %v / %v, want updated", status, err)
	}
	if anki.notes[100].Fields["Front"].Value != "สวัสดีครับ" {
		t.Fatalf("local edit not pushed")
	}
}

func TestSyncCardConflictOnRemoteEdit(t *testing.T) {
	cards := newFakeStore()
	cards.cards[1] = &Card{ID: 1, Front: "A", Back: "B",
		AnkiNoteID: ptrInt64(100)}
	anki := newFakeAnki()
	anki.setNote(100, map[string]string{"Front": "", "Back": ""}, nil)
	s := newTestSyncer(cards, anki)
	ctx := context.Background()

	if status, err := s.SyncCard(ctx, 1, true); err != nil || status != StatusUpdated {
		t.Fatalf("initial export failed: %v / %v", status, err)
	}

	// User edits the note in Anki, then local content changes too.
	note := anki.notes[100]
	note.Fields["Front"] = ankiconnect.NoteField{Value: "A (my mnemonic)"}
	cards.cards[1].Back = "B v2"

	mutations := anki.mutationCalls()
	status, err := s.SyncCard(ctx, 1, false)
	if status != StatusFailed || !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v / %v, want failed / ErrConflict", status, err)
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) || len(conflict.Changes.ModifiedFields) == 0 {
		t.Fatalf("conflict error carries no diff detail: %v", err)
	}
	if anki.mutationCalls() != mutations {
		t.Fatalf("conflict must not mutate the remote note")
	}
	if anki.notes[100].Fields["Front"].Value != "A (my mnemonic)" {
		t.Fatalf("user edit was overwritten")
	}

	// Force pushes through and re-baselines.
	status, err = s.SyncCard(ctx, 1, true)
	if err != nil || status != StatusUpdated {
		t.Fatalf("forced sync: got %v / %v, want updated", status, err)
	}
	if anki.notes[100].Fields["Back"].Value != "B v2" {
		t.Fatalf("forced sync did not apply fields")
	}
}

func TestSyncCardRemoteFailureKeepsFingerprint(t *testing.T) {
	cards := newFakeStore()
	cards.cards[1] = &Card{ID: 1, Front: "A", Back: "B", AnkiNoteID: ptrInt64(100)}
	anki := newFakeAnki()
	anki.setNote(100, map[string]string{"Front": "", "Back": ""}, nil)
	s := newTestSyncer(cards, anki)
	ctx := context.Background()

	if status, err := s.SyncCard(ctx, 1, true); err != nil || status != StatusUpdated {
		t.Fatalf("initial export failed: %v / %v", status, err)
	}
	baseline := *cards.cards[1].ExportHash

	cards.cards[1].Front = "A v2"
	anki.failUpdate[100] = errors.New("connection refused")

	status, err := s.SyncCard(ctx, 1, false)
	if status != StatusFailed || err == nil {
		t.Fatalf("got %v / %v, want failed with error", status, err)
	}
	if *cards.cards[1].ExportHash != baseline {
		t.Fatalf("fingerprint changed on a failed sync")
	}

	// Retry after the outage succeeds with no special handling.
	delete(anki.failUpdate, 100)
	if status, err := s.SyncCard(ctx, 1, false); err != nil || status != StatusUpdated {
		t.Fatalf("retry: got %v / %v, want updated", status, err)
	}
}

func TestSyncCardNoteGone(t *testing.T) {
	cards := newFakeStore()
	hash := "stale"
	cards.cards[1] = &Card{ID: 1, Front: "A", Back: "B",
		AnkiNoteID: ptrInt64(404), ExportHash: &hash}
	s := newTestSyncer(cards, newFakeAnki())

	status, err := s.SyncCard(context.Background(), 1, false)
	if status != StatusFailed || !errors.Is(err, ErrNoteGone) {
		t.Fatalf("got %v / %v, want failed / ErrNoteGone", status, err)
	}
}

func TestSyncCardUploadsMediaWithReplace(t *testing.T) {
	cards := newFakeStore()
	cards.cards[1] = &Card{ID: 1, Front: "A", Back: "B", AnkiNoteID: ptrInt64(100)}
	cards.assets[1] = []AudioAsset{
		{ID: 7, Text: "สวัสดี", Data: []byte("mp3-bytes"), OrderIndex: 0},
	}
	anki := newFakeAnki()
	anki.setNote(100, map[string]string{"Front": "", "Back": ""}, nil)
	anki.media["asset_7.mp3"] = []byte("stale-bytes")
	s := newTestSyncer(cards, anki)

	status, err := s.SyncCard(context.Background(), 1, true)
	if err != nil || status != StatusUpdated {
		t.Fatalf("got %v / %v, want updated", status, err)
	}
	if anki.deleteCalls != 1 {
		t.Fatalf("existing media file was not replaced (deletes=%d)", anki.deleteCalls)
	}
	if string(anki.media["asset_7.mp3"]) != "mp3-bytes" {
		t.Fatalf("media content = %q", anki.media["asset_7.mp3"])
	}
	if back := anki.notes[100].Fields["Back"].Value; back != "B\n[sound:asset_7.mp3]" {
		t.Fatalf("sound reference missing from back field: %q", back)
	}
}

func TestExportNewLinksAndBaselines(t *testing.T) {
	cards := newFakeStore()
	cards.cards[1] = &Card{ID: 1, DeckName: "thai", Front: "A", Back: "B",
		Tags: []string{"beginner"}}
	anki := newFakeAnki()
	s := newTestSyncer(cards, anki)
	ctx := context.Background()

	noteID, err := s.ExportNew(ctx, 1)
	if err != nil {
		t.Fatalf("ExportNew: %v", err)
	}
	card := cards.cards[1]
	if card.AnkiNoteID == nil || *card.AnkiNoteID != noteID {
		t.Fatalf("card not linked to created note")
	}
	if card.ExportHash == nil {
		t.Fatalf("fingerprint not persisted on export")
	}
	if status, ok := s.Tags().CurrentStatus(card.Tags); !ok || status != StatusSuccess {
		t.Fatalf("status after export = %v/%v", status, ok)
	}

	// Exporting again is refused; reconciliation owns linked cards.
	if _, err := s.ExportNew(ctx, 1); !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("second export: %v, want ErrAlreadyLinked", err)
	}

	// The exported note syncs clean immediately.
	if status, err := s.SyncCard(ctx, 1, false); err != nil || status != StatusSkipped {
		t.Fatalf("post-export sync: got %v / %v, want skipped", status, err)
	}
}
