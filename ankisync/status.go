// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

package ankisync

// SyncStatus is the outcome of one reconciliation attempt for one card.
// The enum is the internal source of truth; it is only rendered into a
// prefixed tag (e.g. "sync::updated") at the AnkiConnect boundary.
type SyncStatus string

const (
	StatusNew     SyncStatus = "new"
	StatusSuccess SyncStatus = "success"
	StatusUpdated SyncStatus = "updated"
	StatusSkipped SyncStatus = "skipped"
	StatusFailed  SyncStatus = "failed"
	StatusPartial SyncStatus = "partial"
	StatusError   SyncStatus = "error"
)

// statusSeverity orders statuses most-severe first. Error states must never
// be masked by a leftover benign tag from an earlier step, so the scan in
// TagManager.CurrentStatus walks this list in order.
var statusSeverity = []SyncStatus{
	StatusError,
	StatusFailed,
	StatusPartial,
	StatusSuccess,
	StatusUpdated,
	StatusNew,
	StatusSkipped,
}

// knownStatus reports whether s is a member of the enum. Tags carrying the
// reserved prefix but an unknown suffix are still status tags (and get
// cleaned on merge), they just never win CurrentStatus.
func knownStatus(s SyncStatus) bool {
	for _, k := range statusSeverity {
		if k == s {
			return true
		}
	}
	return false
}
