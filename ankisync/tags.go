// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

package ankisync

import "strings"

// DefaultTagPrefix marks tags owned by the sync engine. Everything else on a
// note belongs to the human and is never modified or reordered.
const DefaultTagPrefix = "sync::"

// TagManager separates engine-owned status tags from user tags and performs
// the status merge on a note's tag collection.
type TagManager struct {
	prefix string
}

// NewTagManager creates a TagManager for the given reserved prefix. An empty
// prefix selects DefaultTagPrefix.
func NewTagManager(prefix string) *TagManager {
	if prefix == "" {
		prefix = DefaultTagPrefix
	}
	return &TagManager{prefix: prefix}
}

// Prefix returns the reserved status-tag prefix.
func (m *TagManager) Prefix() string { return m.prefix }

// IsStatusTag reports whether the tag is owned by the sync engine.
func (m *TagManager) IsStatusTag(tag string) bool {
	return strings.HasPrefix(tag, m.prefix)
}

// UserTags returns tags with every status tag removed, preserving order and
// dropping duplicates.
func (m *TagManager) UserTags(tags []string) []string {
	user := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if m.IsStatusTag(tag) {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		user = append(user, tag)
	}
	return user
}

// StatusTag renders a status into its tag form.
func (m *TagManager) StatusTag(status SyncStatus) string {
	return m.prefix + string(status)
}

// Merge returns the user tags from the input followed by exactly the
// requested status tags, deduplicated preserving first occurrence. Status
// tags left over from a previous run are dropped; user tags always survive
// untouched.
func (m *TagManager) Merge(tags []string, status SyncStatus, extra ...SyncStatus) []string {
	merged := m.UserTags(tags)
	seen := make(map[string]struct{}, len(merged)+1+len(extra))
	for _, tag := range merged {
		seen[tag] = struct{}{}
	}
	for _, s := range append([]SyncStatus{status}, extra...) {
		tag := m.StatusTag(s)
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		merged = append(merged, tag)
	}
	return merged
}

// CurrentStatus scans the tag collection and returns the most severe status
// present. The second return is false when no recognized status tag exists.
func (m *TagManager) CurrentStatus(tags []string) (SyncStatus, bool) {
	present := make(map[SyncStatus]struct{})
	for _, tag := range tags {
		if !m.IsStatusTag(tag) {
			continue
		}
		status := SyncStatus(strings.TrimPrefix(tag, m.prefix))
		if knownStatus(status) {
			present[status] = struct{}{}
		}
	}
	for _, status := range statusSeverity {
		if _, ok := present[status]; ok {
			return status, true
		}
	}
	return "", false
}
