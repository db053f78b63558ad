// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

package ankisync

import (
	"testing"

	"github.com/vasyan/anki-deck-tools-sub000/ankiconnect"
)

func newTestHasher() *Hasher {
	return NewHasher(NewTagManager("sync::"))
}

func TestHashFieldsKeyOrderIndependent(t *testing.T) {
	h := newTestHasher()
	a := h.HashFields(map[string]string{"a": "1", "b": "2"})
	b := h.HashFields(map[string]string{"b": "2", "a": "1"})
	if a != b {
		t.Fatalf("equal field maps produced different hashes: %s vs %s", a, b)
	}
	c := h.HashFields(map[string]string{"a": "1", "b": "3"})
	if a == c {
		t.Fatalf("different field values produced identical hashes")
	}
}

func TestHashTagsIgnoresStatusTagChurn(t *testing.T) {
	h := newTestHasher()
	a := h.HashTags([]string{"mytag", "sync::success"})
	b := h.HashTags([]string{"sync::failed", "mytag"})
	if a != b {
		t.Fatalf("status-tag churn changed the tag hash")
	}
	c := h.HashTags([]string{"othertag"})
	if a == c {
		t.Fatalf("different user tags produced identical hashes")
	}
}

func TestFullFingerprintStable(t *testing.T) {
	h := newTestHasher()
	fields := map[string]string{"Front": "สวัสดี", "Back": "Hello"}
	a := h.FullFingerprint(fields, []string{"thai", "sync::updated"})
	b := h.FullFingerprint(map[string]string{"Back": "Hello", "Front": "สวัสดี"}, []string{"sync::failed", "thai"})
	if a != b {
		t.Fatalf("fingerprint not stable under key/tag reordering")
	}
	if len(a) != 64 {
		t.Fatalf("expected a sha256 hex digest, got %q", a)
	}
}

func TestFieldDiffsDetectsChangeAndNewField(t *testing.T) {
	h := newTestHasher()
	diffs := h.FieldDiffs(
		map[string]string{"Front": "X"},
		map[string]string{"Front": "Y", "Notes": "user addition"},
	)
	front, ok := diffs["Front"]
	if !ok || !front.Changed || front.Original != "X" || front.Current != "Y" {
		t.Fatalf("unexpected Front diff: %+v", front)
	}
	notes, ok := diffs["Notes"]
	if !ok || notes.Original != "" || notes.Current != "user addition" {
		t.Fatalf("unexpected Notes diff: %+v", notes)
	}
}

func TestFieldDiffsTrimsWhitespace(t *testing.T) {
	h := newTestHasher()
	diffs := h.FieldDiffs(
		map[string]string{"Front": "X"},
		map[string]string{"Front": " X \n"},
	)
	if len(diffs) != 0 {
		t.Fatalf("whitespace-only differences should not count as changes: %v", diffs)
	}
}

func noteWith(fields map[string]string, tags []string) ankiconnect.NoteInfo {
	info := ankiconnect.NoteInfo{
		NoteID: 100,
		Fields: make(map[string]ankiconnect.NoteField, len(fields)),
		Tags:   tags,
	}
	order := 0
	for name, value := range fields {
		info.Fields[name] = ankiconnect.NoteField{Value: value, Order: order}
		order++
	}
	return info
}

func TestDetectModificationsUnsafeOnFieldEdit(t *testing.T) {
	h := newTestHasher()
	changes := h.DetectModifications(
		map[string]string{"Front": "X"},
		nil,
		noteWith(map[string]string{"Front": "Y"}, nil),
	)
	if changes.SafeToUpdate {
		t.Fatalf("edited field should make the update unsafe")
	}
	if len(changes.ModifiedFields) != 1 || changes.ModifiedFields[0] != "Front" {
		t.Fatalf("ModifiedFields = %v", changes.ModifiedFields)
	}
}

func TestDetectModificationsTagSetComparison(t *testing.T) {
	h := newTestHasher()

	// Same user tags in a different order, plus status-tag noise: safe.
	changes := h.DetectModifications(
		map[string]string{"Front": "X"},
		[]string{"thai", "beginner"},
		noteWith(map[string]string{"Front": "X"}, []string{"beginner", "sync::success", "thai"}),
	)
	if changes.ModifiedTags || !changes.SafeToUpdate {
		t.Fatalf("reordered user tags should be safe: %+v", changes)
	}

	// A user tag added in Anki: unsafe.
	changes = h.DetectModifications(
		map[string]string{"Front": "X"},
		[]string{"thai"},
		noteWith(map[string]string{"Front": "X"}, []string{"thai", "my-note"}),
	)
	if !changes.ModifiedTags || changes.SafeToUpdate {
		t.Fatalf("user tag added remotely should be unsafe: %+v", changes)
	}
}
