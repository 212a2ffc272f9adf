// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

// Package replica implements the persistent per-owner local replica
// store on SQLite: the full domain graph snapshot, the pending-deletion
// ledgers, independent document metadata, the binary payload cache, and
// the dirty flag.
//
// All business data is partitioned by the effective owner id, so an
// assistant's device stores and reads the lawyer's partition.
package replica

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lawline/lawsync/domain"
)

// ErrNoBlob is returned when a document has no cached binary payload.
var ErrNoBlob = errors.New("no cached payload for document")

// Store is the SQLite-backed local replica store. A store is exclusively
// owned by the current process instance; cross-process access is not
// guaranteed safe beyond last-write-wins at the storage layer.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) a replica database file and initializes the
// schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replica database: %w", err)
	}
	return NewStore(db, logger)
}

// NewStore wraps an existing SQLite handle and initializes the schema.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := initializeSchema(db); err != nil {
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func initializeSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	tables := []string{
		// One row per signed-in owner partition on this device.
		`CREATE TABLE IF NOT EXISTS client_info (
			owner_id    TEXT NOT NULL,
			source_id   TEXT NOT NULL,          -- locally generated UUIDv4 (persisted)
			dirty_gen   INTEGER NOT NULL DEFAULT 0,
			synced_gen  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (owner_id)
		)`,

		`CREATE TABLE IF NOT EXISTS snapshots (
			owner_id   TEXT NOT NULL,
			payload    TEXT NOT NULL,           -- full nested graph as JSON
			saved_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			PRIMARY KEY (owner_id)
		)`,

		// Append-only until acknowledged by a successful sync cycle.
		`CREATE TABLE IF NOT EXISTS deleted_ids (
			owner_id    TEXT NOT NULL,
			table_name  TEXT NOT NULL,
			record_id   TEXT NOT NULL,
			deleted_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			PRIMARY KEY (owner_id, table_name, record_id)
		)`,

		`CREATE TABLE IF NOT EXISTS deleted_paths (
			owner_id  TEXT NOT NULL,
			path      TEXT NOT NULL,
			PRIMARY KEY (owner_id, path)
		)`,

		// Document metadata, stored independently of the snapshot so the
		// attachment pipeline can update local_state without a graph write.
		`CREATE TABLE IF NOT EXISTS document_meta (
			doc_id    TEXT NOT NULL,
			owner_id  TEXT NOT NULL,
			payload   TEXT NOT NULL,
			PRIMARY KEY (doc_id)
		)`,

		`CREATE TABLE IF NOT EXISTS document_blobs (
			doc_id      TEXT NOT NULL,
			data        BLOB NOT NULL,
			created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			PRIMARY KEY (doc_id)
		)`,
	}
	for _, t := range tables {
		if _, err := db.Exec(t); err != nil {
			return fmt.Errorf("failed to create replica table: %w", err)
		}
	}
	return nil
}

// EnsureSourceID generates and persists a device source id for an owner
// partition if not already present.
func (s *Store) EnsureSourceID(ctx context.Context, ownerID string) (string, error) {
	var sourceID string
	err := s.db.QueryRowContext(ctx,
		`SELECT source_id FROM client_info WHERE owner_id = ?`, ownerID).Scan(&sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		sourceID = uuid.New().String()
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO client_info (owner_id, source_id) VALUES (?, ?)
		`, ownerID, sourceID)
		if err != nil {
			return "", fmt.Errorf("failed to insert client info: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("failed to query client info: %w", err)
	}
	return sourceID, nil
}

// LoadSnapshot returns the persisted graph for an owner, or nil when the
// partition has never been synced.
func (s *Store) LoadSnapshot(ctx context.Context, ownerID string) (*domain.Snapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE owner_id = ?`, ownerID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// SaveSnapshot persists the full graph for an owner, replacing any prior
// snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, ownerID string, snap *domain.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (owner_id, payload, saved_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(owner_id) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at
	`, ownerID, string(payload))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// MarkDirty records a local mutation by bumping the owner's dirty
// generation. Mutations landing while a sync cycle is in flight bump the
// generation past the one the cycle snapshotted, so the flag survives
// the cycle's commit.
func (s *Store) MarkDirty(ctx context.Context, ownerID string) error {
	if _, err := s.EnsureSourceID(ctx, ownerID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE client_info SET dirty_gen = dirty_gen + 1 WHERE owner_id = ?
	`, ownerID)
	if err != nil {
		return fmt.Errorf("failed to mark dirty: %w", err)
	}
	return nil
}

// DirtyGeneration returns the current mutation generation for an owner.
func (s *Store) DirtyGeneration(ctx context.Context, ownerID string) (int64, error) {
	var gen int64
	err := s.db.QueryRowContext(ctx,
		`SELECT dirty_gen FROM client_info WHERE owner_id = ?`, ownerID).Scan(&gen)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read dirty generation: %w", err)
	}
	return gen, nil
}

// ClearDirtyThrough marks every mutation up to gen as synced. A mutation
// recorded after gen keeps the partition dirty.
func (s *Store) ClearDirtyThrough(ctx context.Context, ownerID string, gen int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE client_info SET synced_gen = ? WHERE owner_id = ? AND synced_gen < ?
	`, gen, ownerID, gen)
	if err != nil {
		return fmt.Errorf("failed to clear dirty flag: %w", err)
	}
	return nil
}

// IsDirty reports whether local state changed since the last successful
// sync commit.
func (s *Store) IsDirty(ctx context.Context, ownerID string) (bool, error) {
	var dirty, synced int64
	err := s.db.QueryRowContext(ctx,
		`SELECT dirty_gen, synced_gen FROM client_info WHERE owner_id = ?`, ownerID).
		Scan(&dirty, &synced)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read dirty flag: %w", err)
	}
	return dirty > synced, nil
}

// AddDeletedID appends a locally-initiated deletion to the ledger.
// Re-recording an already-pending id is a no-op.
func (s *Store) AddDeletedID(ctx context.Context, ownerID, table, recordID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deleted_ids (owner_id, table_name, record_id) VALUES (?, ?, ?)
		ON CONFLICT(owner_id, table_name, record_id) DO NOTHING
	`, ownerID, table, recordID)
	if err != nil {
		return fmt.Errorf("failed to record deletion: %w", err)
	}
	return nil
}

// AddDeletedPath appends a deleted document's storage object path.
func (s *Store) AddDeletedPath(ctx context.Context, ownerID, path string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deleted_paths (owner_id, path) VALUES (?, ?)
		ON CONFLICT(owner_id, path) DO NOTHING
	`, ownerID, path)
	if err != nil {
		return fmt.Errorf("failed to record deleted path: %w", err)
	}
	return nil
}

// DeletedIDs returns the pending deletion ids per table.
func (s *Store) DeletedIDs(ctx context.Context, ownerID string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, record_id FROM deleted_ids
		WHERE owner_id = ? ORDER BY deleted_at
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deleted ids: %w", err)
	}
	defer rows.Close()

	out := map[string][]string{}
	for rows.Next() {
		var table, id string
		if err := rows.Scan(&table, &id); err != nil {
			return nil, fmt.Errorf("failed to scan deleted id: %w", err)
		}
		out[table] = append(out[table], id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deleted ids: %w", err)
	}
	return out, nil
}

// DeletedPaths returns the pending deleted storage paths.
func (s *Store) DeletedPaths(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM deleted_paths WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deleted paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan deleted path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deleted paths: %w", err)
	}
	return paths, nil
}

// RemoveDeletedIDs removes acknowledged ids from the ledger. Removing an
// id that is already gone is a no-op.
func (s *Store) RemoveDeletedIDs(ctx context.Context, ownerID, table string, ids []string) error {
	for _, id := range ids {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM deleted_ids WHERE owner_id = ? AND table_name = ? AND record_id = ?
		`, ownerID, table, id)
		if err != nil {
			return fmt.Errorf("failed to acknowledge deletion %s.%s: %w", table, id, err)
		}
	}
	return nil
}

// RemoveDeletedPaths removes acknowledged storage paths from the ledger.
func (s *Store) RemoveDeletedPaths(ctx context.Context, ownerID string, paths []string) error {
	for _, p := range paths {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM deleted_paths WHERE owner_id = ? AND path = ?
		`, ownerID, p)
		if err != nil {
			return fmt.Errorf("failed to acknowledge deleted path %s: %w", p, err)
		}
	}
	return nil
}

// SaveDocumentMeta persists one document's metadata record independently
// of the snapshot.
func (s *Store) SaveDocumentMeta(ctx context.Context, ownerID string, doc domain.CaseDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document meta: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO document_meta (doc_id, owner_id, payload) VALUES (?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET payload = excluded.payload
	`, doc.ID, ownerID, string(payload))
	if err != nil {
		return fmt.Errorf("failed to save document meta: %w", err)
	}
	return nil
}

// DocumentMeta loads one document's metadata, or nil when unknown.
func (s *Store) DocumentMeta(ctx context.Context, docID string) (*domain.CaseDocument, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM document_meta WHERE doc_id = ?`, docID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document meta: %w", err)
	}
	var doc domain.CaseDocument
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document meta: %w", err)
	}
	return &doc, nil
}

// DeleteDocumentMeta removes a document's metadata record.
func (s *Store) DeleteDocumentMeta(ctx context.Context, docID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM document_meta WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("failed to delete document meta: %w", err)
	}
	return nil
}

// PutBlob caches a document's binary payload locally.
func (s *Store) PutBlob(ctx context.Context, docID string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_blobs (doc_id, data) VALUES (?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET data = excluded.data
	`, docID, data)
	if err != nil {
		return fmt.Errorf("failed to store blob: %w", err)
	}
	return nil
}

// GetBlob returns a document's cached payload, or ErrNoBlob.
func (s *Store) GetBlob(ctx context.Context, docID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM document_blobs WHERE doc_id = ?`, docID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBlob
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load blob: %w", err)
	}
	return data, nil
}

// HasBlob reports whether a payload is cached for the document.
func (s *Store) HasBlob(ctx context.Context, docID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM document_blobs WHERE doc_id = ?)`, docID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check blob: %w", err)
	}
	return exists, nil
}

// DeleteBlob drops a document's cached payload.
func (s *Store) DeleteBlob(ctx context.Context, docID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM document_blobs WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// PurgeBlobsOlderThan drops cached payloads created before the cutoff.
// Local cache expiry only; remote retention is the attachment pipeline's
// concern.
func (s *Store) PurgeBlobsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM document_blobs WHERE created_at < ?
	`, cutoff.UTC().Format("2006-01-02T15:04:05.000Z"))
	if err != nil {
		return 0, fmt.Errorf("failed to purge blobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}
