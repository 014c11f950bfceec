// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package embedstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/chronicle/lib/embed"
)

func sampleArtifact() embed.Artifact {
	vector := make([]float32, 64)
	for i := range vector {
		vector[i] = float32(i) * 0.01
	}
	return embed.Artifact{
		Date:      "20250703",
		Index:     7,
		Timestamp: time.Date(2025, 7, 3, 9, 0, 0, 0, time.UTC),
		Text:      "the quick brown fox",
		Vector:    vector,
		Model:     "test-model",
	}
}

func TestPutReadRoundTrip(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd, CompressionBG4LZ4} {
		t.Run(tag.String(), func(t *testing.T) {
			store := New(t.TempDir(), tag)
			original := sampleArtifact()

			path, err := store.Put(original)
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			loaded, err := store.Read(path)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if loaded.Text != original.Text || loaded.Model != original.Model ||
				loaded.Index != original.Index || loaded.Date != original.Date {
				t.Errorf("loaded = %+v, want %+v", loaded, original)
			}
			if len(loaded.Vector) != len(original.Vector) {
				t.Fatalf("vector length = %d, want %d", len(loaded.Vector), len(original.Vector))
			}
			for i := range original.Vector {
				if loaded.Vector[i] != original.Vector[i] {
					t.Fatalf("vector[%d] = %v, want %v", i, loaded.Vector[i], original.Vector[i])
				}
			}
		})
	}
}

func TestPutIsDeterministic(t *testing.T) {
	store := New(t.TempDir(), CompressionBG4LZ4)
	first, err := store.Put(sampleArtifact())
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Put(sampleArtifact())
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("same artifact produced two paths:\n%s\n%s", first, second)
	}

	entries, err := os.ReadDir(store.DayDir("20250703"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("day directory holds %d files, want 1", len(entries))
	}
}

func TestPutPlacesFileUnderDayDir(t *testing.T) {
	store := New(t.TempDir(), CompressionNone)
	path, err := store.Put(sampleArtifact())
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != store.DayDir("20250703") {
		t.Errorf("artifact at %s, want under %s", path, store.DayDir("20250703"))
	}
	if filepath.Ext(path) != ".emb" {
		t.Errorf("extension = %s, want .emb", filepath.Ext(path))
	}
}

func TestIncompressibleFallsBackToNone(t *testing.T) {
	// A tiny artifact with a short random-ish vector will not shrink
	// under lz4; the store must still round-trip it.
	store := New(t.TempDir(), CompressionLZ4)
	artifact := embed.Artifact{Date: "20250703", Vector: []float32{1.5}, Model: "m"}
	path, err := store.Put(artifact)
	if err != nil {
		t.Fatalf("Put incompressible: %v", err)
	}
	sealed, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if CompressionTag(sealed[0]) != CompressionNone {
		t.Errorf("tag = %v, want none fallback", CompressionTag(sealed[0]))
	}
	if _, err := store.Read(path); err != nil {
		t.Errorf("Read after fallback: %v", err)
	}
}

func TestReadTruncated(t *testing.T) {
	store := New(t.TempDir(), CompressionNone)
	path := filepath.Join(store.Root(), "short.emb")
	if err := os.MkdirAll(store.Root(), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte{1, 2}, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Read(path); err == nil {
		t.Error("Read on truncated file succeeded, want error")
	}
}

func TestPutAll(t *testing.T) {
	store := New(t.TempDir(), CompressionBG4LZ4)
	batch := make([]embed.Artifact, 3)
	for i := range batch {
		batch[i] = sampleArtifact()
		batch[i].Index = i
	}
	if err := store.PutAll(batch); err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	entries, err := os.ReadDir(store.DayDir("20250703"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("day directory holds %d files, want 3", len(entries))
	}
}

func TestBG4TransposeRoundTrip(t *testing.T) {
	inputs := [][]byte{
		nil,
		{1},
		{1, 2, 3},
		{1, 2, 3, 4},
		{1, 2, 3, 4, 5, 6, 7, 8, 9},
	}
	for _, input := range inputs {
		restored := bg4Untranspose(bg4Transpose(input))
		if len(restored) != len(input) {
			t.Fatalf("length changed: %d -> %d", len(input), len(restored))
		}
		for i := range input {
			if restored[i] != input[i] {
				t.Fatalf("round trip mismatch at %d for input %v", i, input)
			}
		}
	}
}
