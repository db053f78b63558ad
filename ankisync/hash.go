// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

package ankisync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/vasyan/anki-deck-tools-sub000/ankiconnect"
)

// Hasher produces the content fingerprints that drive the sync decision.
// Fingerprints cover fields and user tags only; status-tag churn never
// changes a fingerprint.
type Hasher struct {
	tags *TagManager
}

// NewHasher creates a Hasher that classifies tags with the given TagManager.
func NewHasher(tags *TagManager) *Hasher {
	return &Hasher{tags: tags}
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashFields hashes a field map. Keys are sorted and the pairs serialized
// deterministically, so key order never affects the digest.
func (h *Hasher) HashFields(fields map[string]string) string {
	pairs := make([][2]string, 0, len(fields))
	for name, value := range fields {
		pairs = append(pairs, [2]string{name, value})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	serialized, _ := json.Marshal(pairs)
	return hashString(string(serialized))
}

// HashTags hashes the user-tag subset of a tag collection, sorted.
func (h *Hasher) HashTags(tags []string) string {
	user := h.tags.UserTags(tags)
	sort.Strings(user)
	serialized, _ := json.Marshal(user)
	return hashString(string(serialized))
}

// FullFingerprint is the digest persisted on a card after a successful sync:
// hash of "fieldHash|tagHash".
func (h *Hasher) FullFingerprint(fields map[string]string, userTags []string) string {
	return hashString(h.HashFields(fields) + "|" + h.HashTags(userTags))
}

// FieldDiff describes one field-level difference between the content we
// expect and what the note actually carries.
type FieldDiff struct {
	Original string `json:"original"`
	Current  string `json:"current"`
	Changed  bool   `json:"changed"`
}

// ContentChanges summarizes modifications a human made to a note in Anki
// relative to the content the engine last exported.
type ContentChanges struct {
	ModifiedFields []string             `json:"modified_fields"`
	ModifiedTags   bool                 `json:"modified_tags"`
	FieldDiffs     map[string]FieldDiff `json:"field_diffs"`
	SafeToUpdate   bool                 `json:"safe_to_update"`
}

// FieldDiffs compares expected against observed field values. Values are
// compared trimmed. A field present only on the observed side counts as
// changed with an empty original, covering fields the user added in Anki.
func (h *Hasher) FieldDiffs(expected, actual map[string]string) map[string]FieldDiff {
	diffs := make(map[string]FieldDiff)
	for name, expectedValue := range expected {
		actualValue := actual[name]
		if strings.TrimSpace(expectedValue) != strings.TrimSpace(actualValue) {
			diffs[name] = FieldDiff{Original: expectedValue, Current: actualValue, Changed: true}
		}
	}
	for name, actualValue := range actual {
		if _, ok := expected[name]; ok {
			continue
		}
		if strings.TrimSpace(actualValue) == "" {
			continue
		}
		diffs[name] = FieldDiff{Original: "", Current: actualValue, Changed: true}
	}
	return diffs
}

// DetectModifications compares the content the engine would export with the
// note as observed in Anki. SafeToUpdate is true only when nothing the human
// could have touched differs, which is what permits an automatic overwrite.
func (h *Hasher) DetectModifications(expectedFields map[string]string, expectedUserTags []string, note ankiconnect.NoteInfo) ContentChanges {
	diffs := h.FieldDiffs(expectedFields, note.FieldValues())
	modified := make([]string, 0, len(diffs))
	for name, diff := range diffs {
		if diff.Changed {
			modified = append(modified, name)
		}
	}
	sort.Strings(modified)

	modifiedTags := !equalTagSets(h.tags.UserTags(expectedUserTags), h.tags.UserTags(note.Tags))

	return ContentChanges{
		ModifiedFields: modified,
		ModifiedTags:   modifiedTags,
		FieldDiffs:     diffs,
		SafeToUpdate:   len(modified) == 0 && !modifiedTags,
	}
}

// equalTagSets compares tag collections as sets, order-insensitive.
func equalTagSets(a, b []string) bool {
	setA := make(map[string]struct{}, len(a))
	for _, tag := range a {
		setA[tag] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, tag := range b {
		setB[tag] = struct{}{}
	}
	if len(setA) != len(setB) {
		return false
	}
	for tag := range setA {
		if _, ok := setB[tag]; !ok {
			return false
		}
	}
	return true
}
