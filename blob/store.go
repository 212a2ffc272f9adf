// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

// Package blob manages the binary attachment pipeline: a per-document
// upload/download state machine decoupled from metadata sync, with local
// caching and remote retention cleanup.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Download when the object does not
// exist remotely. It is terminal for a download: the document enters the
// error state and is not retried automatically.
var ErrNotFound = errors.New("object not found")

// Store is the remote binary object store contract.
type Store interface {
	Upload(ctx context.Context, path string, data []byte) error
	// Download returns the object bytes, or ErrNotFound.
	Download(ctx context.Context, path string) ([]byte, error)
	Remove(ctx context.Context, paths []string) error
}
