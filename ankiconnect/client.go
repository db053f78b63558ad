// Copyright 2025 The anki-deck-tools Authors
// SPDX-License-Identifier: Apache-2.0

// Package ankiconnect implements a client for the AnkiConnect HTTP API
// (https://foosoft.net/projects/anki-connect/), protocol version 6.
//
// AnkiConnect exposes a single POST endpoint that accepts an
// {action, version, params} envelope and answers with {result, error}.
// All methods take a context and go through one shared *http.Client, so
// callers control timeouts and connection reuse across a batch.
package ankiconnect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const protocolVersion = 6

// Config holds configuration for the AnkiConnect client.
type Config struct {
	URL     string        // e.g. "http://127.0.0.1:8765"
	Timeout time.Duration // per-request timeout on the default HTTP client
}

// DefaultConfig returns the standard local AnkiConnect endpoint settings.
func DefaultConfig() *Config {
	return &Config{
		URL:     "http://127.0.0.1:8765",
		Timeout: 30 * time.Second,
	}
}

// Client talks to a running Anki instance through the AnkiConnect add-on.
type Client struct {
	HTTP   *http.Client // replaceable for tests
	config *Config
	logger *slog.Logger
}

// NewClient creates an AnkiConnect client. A nil config selects
// DefaultConfig; a nil logger selects slog.Default.
func NewClient(config *Config, logger *slog.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		HTTP:   &http.Client{Timeout: config.Timeout},
		config: config,
		logger: logger,
	}
}

// APIError is an error reported by AnkiConnect itself (the "error" member of
// the response envelope), as opposed to a transport failure.
type APIError struct {
	Action  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ankiconnect %s: %s", e.Action, e.Message)
}

type requestEnvelope struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

type responseEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// request performs one AnkiConnect call and unmarshals the result into out
// (skipped when out is nil).
func (c *Client) request(ctx context.Context, action string, params any, out any) error {
	body, err := json.Marshal(requestEnvelope{
		Action:  action,
		Version: protocolVersion,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("ankiconnect %s request failed: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("ankiconnect %s returned HTTP %d: %s", action, resp.StatusCode, string(data))
	}

	var envelope responseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", action, err)
	}
	if envelope.Error != nil && *envelope.Error != "" {
		return &APIError{Action: action, Message: *envelope.Error}
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", action, err)
		}
	}
	return nil
}

// Version returns the AnkiConnect protocol version of the running instance.
func (c *Client) Version(ctx context.Context) (int, error) {
	var version int
	if err := c.request(ctx, "version", nil, &version); err != nil {
		return 0, err
	}
	return version, nil
}

// DeckNames returns all deck names known to Anki.
func (c *Client) DeckNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.request(ctx, "deckNames", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// FindNotes returns note ids matching an Anki search query,
// e.g. `deck:"top-thai-2000"`.
func (c *Client) FindNotes(ctx context.Context, query string) ([]int64, error) {
	var ids []int64
	params := map[string]any{"query": query}
	if err := c.request(ctx, "findNotes", params, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// NotesInfo returns detailed field and tag state for the given notes.
// Notes that no longer exist are absent from the result.
func (c *Client) NotesInfo(ctx context.Context, noteIDs []int64) ([]NoteInfo, error) {
	var infos []NoteInfo
	params := map[string]any{"notes": noteIDs}
	if err := c.request(ctx, "notesInfo", params, &infos); err != nil {
		return nil, err
	}
	// AnkiConnect pads the result with zero-valued entries for deleted notes.
	valid := infos[:0]
	for _, info := range infos {
		if info.NoteID != 0 {
			valid = append(valid, info)
		}
	}
	return valid, nil
}

// AddNote creates a new note and returns its id.
func (c *Client) AddNote(ctx context.Context, note NewNote) (int64, error) {
	var id int64
	params := map[string]any{"note": note}
	if err := c.request(ctx, "addNote", params, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateNote updates fields and/or tags of an existing note. Nil fields or
// tags are omitted from the request and left untouched on the note.
func (c *Client) UpdateNote(ctx context.Context, noteID int64, fields map[string]string, tags []string) error {
	note := map[string]any{"id": noteID}
	if fields != nil {
		note["fields"] = fields
	}
	if tags != nil {
		note["tags"] = tags
	}
	return c.request(ctx, "updateNote", map[string]any{"note": note}, nil)
}

// StoreMediaFile uploads a media file into Anki's collection, overwriting any
// existing file with the same name. Payloads go over the wire base64-encoded.
func (c *Client) StoreMediaFile(ctx context.Context, filename string, data []byte) error {
	params := map[string]any{
		"filename": filename,
		"data":     base64.StdEncoding.EncodeToString(data),
	}
	return c.request(ctx, "storeMediaFile", params, nil)
}

// DeleteMediaFile removes a media file from Anki's collection. Deleting a
// file that does not exist is not an error.
func (c *Client) DeleteMediaFile(ctx context.Context, filename string) error {
	params := map[string]any{"filename": filename}
	return c.request(ctx, "deleteMediaFile", params, nil)
}

// MediaFileNames lists media files matching a glob pattern.
func (c *Client) MediaFileNames(ctx context.Context, pattern string) ([]string, error) {
	var names []string
	params := map[string]any{"pattern": pattern}
	if err := c.request(ctx, "getMediaFilesNames", params, &names); err != nil {
		return nil, err
	}
	return names, nil
}
