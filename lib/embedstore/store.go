// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package embedstore persists embedding artifacts on disk, one file
// per artifact under a per-day directory:
//
//	<root>/<datekey>/<blake3-hex>.emb
//
// An artifact file is a 5-byte header (compression tag, uncompressed
// body length) followed by the compressed body. The body is the
// artifact encoded as deterministic CBOR (RFC 8949 §4.2), so the same
// logical artifact always produces identical bytes and therefore the
// same file name. Names are the keyed BLAKE3 hash of the encoded
// body; re-persisting an artifact after a crash overwrites the same
// file instead of duplicating it.
//
// The archiver later moves a day's directory wholesale into that
// day's archive bundle.
package embedstore

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/chronicle/lib/datekey"
	"github.com/bureau-foundation/chronicle/lib/embed"
)

// nameKey is the 32-byte BLAKE3 key for artifact file names. Domain
// separation keeps these hashes distinct from any other BLAKE3 use on
// the host. The bytes are ASCII "chronicle.embedding" zero-padded,
// readable in hex dumps. Changing the key renames every artifact.
var nameKey = [32]byte{
	'c', 'h', 'r', 'o', 'n', 'i', 'c', 'l', 'e', '.',
	'e', 'm', 'b', 'e', 'd', 'd', 'i', 'n', 'g', 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// encMode encodes artifact bodies with Core Deterministic Encoding:
// sorted map keys, smallest integer encoding, no indefinite-length
// items.
var encMode cbor.EncMode

// decMode accepts standard CBOR; unknown fields are ignored for
// forward compatibility.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("embedstore: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("embedstore: CBOR decoder initialization failed: " + err.Error())
	}
}

// Store writes and reads artifact files under a root directory.
type Store struct {
	root        string
	compression CompressionTag
}

// New returns a Store rooted at path, sealing new artifacts with the
// given compression.
func New(path string, compression CompressionTag) *Store {
	return &Store{root: path, compression: compression}
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// DayDir returns the directory holding a day's artifacts. It need
// not exist.
func (s *Store) DayDir(date datekey.DateKey) string {
	return filepath.Join(s.root, date.String())
}

// Put persists one artifact and returns its file path. The day
// directory is created on demand.
func (s *Store) Put(artifact embed.Artifact) (string, error) {
	body, err := encMode.Marshal(artifact)
	if err != nil {
		return "", fmt.Errorf("embedstore: encoding artifact: %w", err)
	}
	sealed, err := sealBody(body, s.compression)
	if err != nil {
		return "", fmt.Errorf("embedstore: sealing artifact: %w", err)
	}

	dayDir := s.DayDir(artifact.Date)
	if err := os.MkdirAll(dayDir, 0700); err != nil {
		return "", fmt.Errorf("embedstore: creating day directory: %w", err)
	}

	name := hex.EncodeToString(hashBody(body)) + ".emb"

	path := filepath.Join(dayDir, name)
	if err := os.WriteFile(path, sealed, 0600); err != nil {
		return "", fmt.Errorf("embedstore: writing artifact: %w", err)
	}
	return path, nil
}

// PutAll persists a batch of artifacts. The whole batch fails on the
// first error; already-written files are content-addressed, so a
// retry after a partial failure rewrites them harmlessly.
func (s *Store) PutAll(artifacts []embed.Artifact) error {
	for _, artifact := range artifacts {
		if _, err := s.Put(artifact); err != nil {
			return err
		}
	}
	return nil
}

// hashBody computes the keyed BLAKE3 digest that names an artifact
// file. NewKeyed only fails on a wrong key length, which the
// fixed-size nameKey rules out.
func hashBody(body []byte) []byte {
	hasher, err := blake3.NewKeyed(nameKey[:])
	if err != nil {
		panic("embedstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(body)
	return hasher.Sum(nil)
}

// Read loads an artifact file. Used by tests and inspection tooling;
// the processing pipeline only writes.
func (s *Store) Read(path string) (embed.Artifact, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		return embed.Artifact{}, fmt.Errorf("embedstore: reading artifact: %w", err)
	}
	body, err := openBody(sealed)
	if err != nil {
		return embed.Artifact{}, fmt.Errorf("embedstore: opening %s: %w", path, err)
	}
	var artifact embed.Artifact
	if err := decMode.Unmarshal(body, &artifact); err != nil {
		return embed.Artifact{}, fmt.Errorf("embedstore: decoding %s: %w", path, err)
	}
	return artifact, nil
}
