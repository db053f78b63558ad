// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vasyan/anki-deck-tools-sub000/ankisync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync cards to their linked Anki notes",
	Long: `Sync cards to Anki under a bounded worker pool.

Each card is reconciled independently; one card's failure never aborts the
batch. The full per-card result list is printed as JSON. Exit status is
non-zero when any card failed.

Examples:
  ankideck sync --ids 1,2,3
  ankideck sync --all --concurrency 8
  ankideck sync --ids 42 --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		idsFlag, _ := cmd.Flags().GetString("ids")
		all, _ := cmd.Flags().GetBool("all")
		force, _ := cmd.Flags().GetBool("force")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		if (idsFlag == "" && !all) || (idsFlag != "" && all) {
			return fmt.Errorf("provide exactly one of --ids or --all")
		}

		syncer, st, err := openEngine()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		var ids []int64
		if all {
			if ids, err = st.ListCardIDs(ctx, ""); err != nil {
				return err
			}
		} else {
			if ids, err = parseIDList(idsFlag); err != nil {
				return err
			}
		}

		report := syncer.SyncMany(ctx, ids, ankisync.BatchOptions{
			Concurrency: concurrency,
			Force:       force,
		})

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			return err
		}
		if report.Failed > 0 {
			return fmt.Errorf("%d of %d cards failed", report.Failed, report.Total)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <card-id>",
	Short: "Create a new Anki note for an unlinked card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cardID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid card id %q", args[0])
		}

		syncer, st, err := openEngine()
		if err != nil {
			return err
		}
		defer st.Close()

		noteID, err := syncer.ExportNew(cmd.Context(), cardID)
		if err != nil {
			return err
		}
		fmt.Printf("card %d exported as note %d\n", cardID, noteID)
		return nil
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview <card-id>",
	Short: "Show what a sync would change on the linked note",
	Long: `Compare a card's rendered content with its note as it currently exists in
Anki, without touching anything. Useful to inspect a conflict before deciding
on --force.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cardID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid card id %q", args[0])
		}

		syncer, st, err := openEngine()
		if err != nil {
			return err
		}
		defer st.Close()

		changes, err := syncer.Preview(cmd.Context(), cardID)
		if err != nil {
			return err
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(changes)
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity to AnkiConnect",
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := newAnkiClient().Version(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("AnkiConnect version %d\n", version)
		return nil
	},
}

func parseIDList(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid card id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no card ids given")
	}
	return ids, nil
}

func init() {
	syncCmd.Flags().String("ids", "", "comma-separated card ids to sync")
	syncCmd.Flags().Bool("all", false, "sync every card in the database")
	syncCmd.Flags().Bool("force", false, "overwrite notes even when user edits were detected")
	syncCmd.Flags().Int("concurrency", 5, "number of cards synced in parallel")

	rootCmd.AddCommand(syncCmd, exportCmd, previewCmd, pingCmd)
}
