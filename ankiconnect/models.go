// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

package ankiconnect

// NoteField is the per-field value object returned by notesInfo.
type NoteField struct {
	Value string `json:"value"`
	Order int    `json:"order"`
}

// NoteInfo is the observed state of a note in Anki.
type NoteInfo struct {
	NoteID    int64                `json:"noteId"`
	ModelName string               `json:"modelName"`
	Fields    map[string]NoteField `json:"fields"`
	Tags      []string             `json:"tags"`
}

// FieldValues flattens the notesInfo field objects to plain strings.
func (n NoteInfo) FieldValues() map[string]string {
	values := make(map[string]string, len(n.Fields))
	for name, field := range n.Fields {
		values[name] = field.Value
	}
	return values
}

// NewNote is the payload for addNote.
type NewNote struct {
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags"`
}
