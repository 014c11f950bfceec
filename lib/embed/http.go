// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bureau-foundation/chronicle/lib/record"
)

// HTTPEmbedder calls a local embedding service over HTTP. The wire
// contract is a single POST:
//
//	request:  {"model": "...", "inputs": ["text", ...]}
//	response: {"embeddings": [[0.1, ...], ...]}
//
// with exactly one embedding per input, in order.
type HTTPEmbedder struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewHTTPEmbedder returns an embedder for the service at endpoint.
// The timeout bounds each HTTP call; zero means 30 seconds.
func NewHTTPEmbedder(endpoint, model string, timeout time.Duration) *HTTPEmbedder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEmbedder{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Model  string   `json:"model"`
	Inputs []string `json:"inputs"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Generate embeds a single record.
func (e *HTTPEmbedder) Generate(ctx context.Context, r record.Record) (Artifact, error) {
	artifacts, err := e.GenerateBatch(ctx, []record.Record{r})
	if err != nil {
		return Artifact{}, err
	}
	return artifacts[0], nil
}

// GenerateBatch embeds a batch in order, one artifact per input or a
// whole-call error.
func (e *HTTPEmbedder) GenerateBatch(ctx context.Context, records []record.Record) ([]Artifact, error) {
	if len(records) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(records))
	for i, r := range records {
		inputs[i] = r.Payload
	}
	body, err := json.Marshal(embedRequest{Model: e.model, Inputs: inputs})
	if err != nil {
		return nil, fmt.Errorf("embed: marshaling request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed: building request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := e.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("embed: calling %s: %w", e.endpoint, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return nil, fmt.Errorf("embed: service returned %s: %s", response.Status, detail)
	}

	var decoded embedResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("embed: decoding response: %w", err)
	}
	if len(decoded.Embeddings) != len(records) {
		return nil, fmt.Errorf("embed: service returned %d embeddings for %d inputs",
			len(decoded.Embeddings), len(records))
	}

	artifacts := make([]Artifact, len(records))
	for i, r := range records {
		artifacts[i] = Artifact{
			Timestamp: r.Timestamp,
			Text:      r.Payload,
			Vector:    decoded.Embeddings[i],
			Model:     e.model,
		}
	}
	return artifacts, nil
}
