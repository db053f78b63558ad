// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

package ankisync

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLinked means the card has no Anki note id stored. Fatal for the
	// item; linking (or ExportNew) is a distinct operation.
	ErrNotLinked = errors.New("card is not linked to an anki note")

	// ErrNoteGone means the linked note id no longer resolves in Anki, e.g.
	// the user deleted the note. The engine never silently re-creates notes;
	// the card must be re-exported explicitly.
	ErrNoteGone = errors.New("linked anki note no longer exists")

	// ErrAlreadyLinked is returned by ExportNew for a card that already has
	// a note id.
	ErrAlreadyLinked = errors.New("card is already linked to an anki note")

	// ErrConflict marks an unsafe update: the note carries human edits that
	// an automatic overwrite would destroy.
	ErrConflict = errors.New("remote note was modified by the user")
)

// ConflictError carries the detected human modifications alongside
// ErrConflict so callers can surface exactly what needs review.
type ConflictError struct {
	CardID  int64
	NoteID  int64
	Changes ContentChanges
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("note %d for card %d was modified by the user (fields: %v, tags: %v)",
		e.NoteID, e.CardID, e.Changes.ModifiedFields, e.Changes.ModifiedTags)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
