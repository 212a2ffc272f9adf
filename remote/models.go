// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"encoding/json"
)

// Wire models for the remote data service HTTP API. The server package
// serves these; the client consumes them.

// RecordsResponse carries one table's records.
type RecordsResponse struct {
	Records []json.RawMessage `json:"records"`
}

// UpsertRequest carries records to write. The server answers with a
// RecordsResponse holding the stored rows, notably their canonical
// updated_at values.
type UpsertRequest struct {
	Records []json.RawMessage `json:"records"`
}

// DeleteRequest carries record ids to delete from one table. The server
// writes a tombstone per deleted row.
type DeleteRequest struct {
	IDs []string `json:"ids"`
}

// TombstoneRecord is one remote deletion marker.
type TombstoneRecord struct {
	Table     string `json:"table"`
	RecordID  string `json:"record_id"`
	DeletedAt string `json:"deleted_at"` // RFC 3339
}

// TombstonesResponse carries the tombstones inside a since-window.
type TombstonesResponse struct {
	Tombstones []TombstoneRecord `json:"tombstones"`
}

// SchemaVersionResponse reports the remote schema version; its absence
// (404) distinguishes an uninitialized store from a network failure.
type SchemaVersionResponse struct {
	Version int `json:"schema_version"`
}

// ErrorResponse is the error body for non-2xx responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
