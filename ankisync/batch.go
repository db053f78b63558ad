// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

package ankisync

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// BatchOptions controls one SyncMany run.
type BatchOptions struct {
	// Concurrency bounds the worker pool; zero or negative selects the
	// engine config default.
	Concurrency int
	// Force overwrites notes even when human edits are detected and skips
	// the fingerprint short-circuit.
	Force bool
}

// ItemResult is the per-card outcome of a batch run.
type ItemResult struct {
	CardID int64      `json:"card_id"`
	Status SyncStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// BatchReport is the JSON-serializable result of SyncMany: exactly one entry
// per input id plus aggregate counts. Partial outcomes (remote applied,
// local persistence failed) count as failed so they get looked at.
type BatchReport struct {
	BatchID   string       `json:"batch_id"`
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Results   []ItemResult `json:"results"`
}

// SyncMany runs SyncCard for each id under a bounded worker pool. Every
// item's error is captured in its result entry; nothing propagates out, and
// sibling items are never cancelled or delayed by one item's failure. All
// workers are joined before the report is returned.
func (s *Syncer) SyncMany(ctx context.Context, cardIDs []int64, opts BatchOptions) *BatchReport {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = s.config.Concurrency
	}
	if concurrency > len(cardIDs) && len(cardIDs) > 0 {
		concurrency = len(cardIDs)
	}

	report := &BatchReport{
		BatchID: uuid.New().String(),
		Total:   len(cardIDs),
		Results: make([]ItemResult, len(cardIDs)),
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, cardID := range cardIDs {
		wg.Add(1)
		go func(i int, cardID int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			status, err := s.SyncCard(ctx, cardID, opts.Force)
			result := ItemResult{CardID: cardID, Status: status}
			if err != nil {
				result.Error = statusLabel(err)
				s.logger.Warn("batch item failed", "batch_id", report.BatchID,
					"card_id", cardID, "status", status, "error", err)
			}
			report.Results[i] = result
		}(i, cardID)
	}
	wg.Wait()

	for _, result := range report.Results {
		switch result.Status {
		case StatusSkipped:
			report.Skipped++
		case StatusUpdated, StatusSuccess, StatusNew:
			report.Succeeded++
		default:
			report.Failed++
		}
	}

	s.logger.Info("batch sync finished", "batch_id", report.BatchID,
		"total", report.Total, "succeeded", report.Succeeded,
		"skipped", report.Skipped, "failed", report.Failed)
	return report
}
