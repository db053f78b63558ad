// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

package ankisync

// Config holds configuration for the sync engine.
type Config struct {
	TagPrefix string   // reserved status-tag prefix, e.g. "sync::"
	SkipTags  []string // tags that exclude a card from sync entirely
	DeckName  string   // target deck for newly exported notes
	NoteModel string   // Anki note model for newly exported notes

	// PreserveRemoteEdits refuses to overwrite notes carrying human edits
	// unless the caller forces the update.
	PreserveRemoteEdits bool

	Concurrency int // default batch worker count
}

// DefaultConfig returns engine defaults. The skip-tag list matches the tags
// users historically applied to pin individual cards.
func DefaultConfig(deckName string) *Config {
	return &Config{
		TagPrefix: DefaultTagPrefix,
		SkipTags: []string{
			"sync::skip",
			"sync::skip_update",
			"sync::no_update",
			"skip::sync",
			"skip::update",
		},
		DeckName:            deckName,
		NoteModel:           "Basic",
		PreserveRemoteEdits: true,
		Concurrency:         5,
	}
}
