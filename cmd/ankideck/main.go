// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

// Command ankideck synchronizes a local card database with a running Anki
// instance through AnkiConnect, and maintains the content-addressed audio
// cache backing the cards.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vasyan/anki-deck-tools-sub000/ankiconnect"
	"github.com/vasyan/anki-deck-tools-sub000/ankisync"
	"github.com/vasyan/anki-deck-tools-sub000/store"
)

var rootCmd = &cobra.Command{
	Use:   "ankideck",
	Short: "Sync locally managed flashcards and audio to Anki",
	Long: `ankideck keeps a local SQLite card database synchronized with a running
Anki instance via the AnkiConnect add-on.

Cards are fingerprinted so unchanged content never hits Anki, and notes a
user edited inside Anki are never overwritten without --force. Synthesized
audio is stored content-addressed and reused across cards.

Configuration is read from flags or ANKIDECK_* environment variables
(e.g. ANKIDECK_DB, ANKIDECK_ANKI_URL).`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("db", "ankideck.db", "path to the local SQLite database")
	rootCmd.PersistentFlags().String("anki-url", "http://127.0.0.1:8765", "AnkiConnect endpoint")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "AnkiConnect request timeout")
	rootCmd.PersistentFlags().String("deck", "top-thai-2000", "target deck for new notes")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	viper.SetEnvPrefix("ANKIDECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, name := range []string{"db", "anki-url", "timeout", "deck", "log-level"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newAnkiClient() *ankiconnect.Client {
	return ankiconnect.NewClient(&ankiconnect.Config{
		URL:     viper.GetString("anki-url"),
		Timeout: viper.GetDuration("timeout"),
	}, newLogger())
}

// openEngine wires the store, the AnkiConnect client and the sync engine.
// Callers close the returned store.
func openEngine() (*ankisync.Syncer, *store.Store, error) {
	logger := newLogger()

	st, err := store.Open(viper.GetString("db"), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	syncer := ankisync.NewSyncer(st, st, newAnkiClient(), ankisync.DefaultConfig(viper.GetString("deck")), logger)
	return syncer, st, nil
}
