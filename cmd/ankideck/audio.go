// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vasyan/anki-deck-tools-sub000/store"
)

var audioCmd = &cobra.Command{
	Use:   "audio",
	Short: "Manage the content-addressed audio cache",
}

var audioCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete audio assets no card references",
	Long: `Delete every audio asset with zero card associations.

This is an explicit maintenance operation; sync never deletes assets on its
own, so orphans accumulate until this command runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStoreOnly()
		if err != nil {
			return err
		}
		defer st.Close()

		removed, err := st.CleanupUnused(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("removed %d unused audio assets\n", removed)
		return nil
	},
}

var audioStatsCmd = &cobra.Command{
	Use:   "stats <asset-id>",
	Short: "Show which cards reference an audio asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		assetID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid asset id %q", args[0])
		}

		st, err := openStoreOnly()
		if err != nil {
			return err
		}
		defer st.Close()

		usage, err := st.UsageStats(cmd.Context(), assetID)
		if err != nil {
			return err
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(usage)
	},
}

var audioReorderCmd = &cobra.Command{
	Use:   "reorder <card-id> <asset-id>...",
	Short: "Rewrite the audio order for a card",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cardID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid card id %q", args[0])
		}
		assetIDs := make([]int64, 0, len(args)-1)
		for _, arg := range args[1:] {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid asset id %q", arg)
			}
			assetIDs = append(assetIDs, id)
		}

		st, err := openStoreOnly()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Reorder(cmd.Context(), cardID, assetIDs); err != nil {
			return err
		}
		fmt.Printf("card %d audio order updated\n", cardID)
		return nil
	},
}

func openStoreOnly() (*store.Store, error) {
	return store.Open(viper.GetString("db"), newLogger())
}

func init() {
	audioCmd.AddCommand(audioCleanupCmd, audioStatsCmd, audioReorderCmd)
	rootCmd.AddCommand(audioCmd)
}
