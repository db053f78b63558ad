// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"io"
	"log/slog"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	// A second pool connection would see its own empty in-memory database.
	st.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { st.Close() })
	return st
}
