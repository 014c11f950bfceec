// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package embed defines the embedding collaborator boundary. The
// model itself is external; the core only needs a callable that turns
// record payloads into vectors, returning either one artifact per
// input or a whole-call failure.
package embed

import (
	"context"
	"time"

	"github.com/bureau-foundation/chronicle/lib/datekey"
	"github.com/bureau-foundation/chronicle/lib/record"
)

// Artifact is one derived embedding: the vector plus enough context
// to tie it back to its source record.
type Artifact struct {
	// Date is the day of the source record's stream.
	Date datekey.DateKey `cbor:"date"`

	// Index is the record's offset within the day's keyboard stream.
	Index int `cbor:"index"`

	// Timestamp is the source record's capture time.
	Timestamp time.Time `cbor:"timestamp"`

	// Text is the (still-encoded) payload the vector was computed
	// from.
	Text string `cbor:"text"`

	// Vector is the embedding.
	Vector []float32 `cbor:"vector"`

	// Model names the embedding model that produced the vector.
	Model string `cbor:"model"`
}

// Embedder turns records into artifacts. Implementations must either
// return exactly one artifact per input record or fail the whole
// call; partial results are not part of the contract.
type Embedder interface {
	// Generate embeds a single record.
	Generate(ctx context.Context, r record.Record) (Artifact, error)

	// GenerateBatch embeds a batch in order. The result has one
	// artifact per input, with Date and Index left zero for the
	// caller to fill in.
	GenerateBatch(ctx context.Context, records []record.Record) ([]Artifact, error)
}
