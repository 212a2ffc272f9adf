// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

// Package server is the reference remote data service: an authenticated
// per-table query/upsert/delete API over Postgres with tombstoned
// deletions and row-level owner authorization. The sync engine treats it
// purely through the remote package's wire contract.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lawline/lawsync/domain"
	"github.com/lawline/lawsync/remote"
)

// SchemaVersion is reported to clients; its absence tells a client the
// store is uninitialized rather than unreachable.
const SchemaVersion = 1

// Service provides the data-service operations over a pgx pool.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	tables map[string]bool
}

// NewService creates the service and initializes the storage schema.
func NewService(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{pool: pool, logger: logger, tables: map[string]bool{}}
	for _, t := range domain.AllTables {
		s.tables[t] = true
	}

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return s.initializeSchemaInTx(ctx, tx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize data service schema: %w", err)
	}
	return s, nil
}

func (s *Service) initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sync_records (
			owner_id    TEXT NOT NULL,
			table_name  TEXT NOT NULL,
			record_id   TEXT NOT NULL,
			payload     JSONB NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (owner_id, table_name, record_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_records_owner_table
			ON sync_records (owner_id, table_name)`,
		`CREATE TABLE IF NOT EXISTS sync_tombstones (
			owner_id    TEXT NOT NULL,
			table_name  TEXT NOT NULL,
			record_id   TEXT NOT NULL,
			deleted_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (owner_id, table_name, record_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_tombstones_owner_deleted
			ON sync_tombstones (owner_id, deleted_at)`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// ErrUnknownTable is returned for tables not registered for sync.
var ErrUnknownTable = errors.New("unknown table")

func (s *Service) checkTable(table string) error {
	if !s.tables[table] {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return nil
}

// FetchRecords returns all of one table's records for an owner.
func (s *Service) FetchRecords(ctx context.Context, ownerID, table string) ([]json.RawMessage, error) {
	if err := s.checkTable(table); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT payload FROM sync_records
		WHERE owner_id = $1 AND table_name = $2
		ORDER BY record_id
	`, ownerID, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, json.RawMessage(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return out, nil
}

// UpsertRecords writes records for an owner and returns the stored rows.
// A record failing structural validation is skipped with a warning; it
// never fails the batch. An upsert clears any tombstone for the same id
// (explicit re-creation).
func (s *Service) UpsertRecords(ctx context.Context, ownerID, table string, raws []json.RawMessage) ([]json.RawMessage, error) {
	if err := s.checkTable(table); err != nil {
		return nil, err
	}

	stored := make([]json.RawMessage, 0, len(raws))
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, raw := range raws {
			rec, err := domain.DecodeRecord(table, raw)
			if err != nil {
				s.logger.Warn("skipping invalid record in upsert",
					"table", table, "error", err)
				continue
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO sync_records (owner_id, table_name, record_id, payload, updated_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (owner_id, table_name, record_id)
				DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
			`, ownerID, table, rec.RecordID(), []byte(raw), rec.LastModified().UTC())
			if err != nil {
				return fmt.Errorf("failed to upsert %s.%s: %w", table, rec.RecordID(), err)
			}
			_, err = tx.Exec(ctx, `
				DELETE FROM sync_tombstones
				WHERE owner_id = $1 AND table_name = $2 AND record_id = $3
			`, ownerID, table, rec.RecordID())
			if err != nil {
				return fmt.Errorf("failed to clear tombstone for %s.%s: %w", table, rec.RecordID(), err)
			}
			stored = append(stored, raw)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// DeleteRecords removes records and writes one tombstone per deleted id,
// atomically. Deleting an absent id still leaves a tombstone, keeping
// the operation idempotent across retries.
func (s *Service) DeleteRecords(ctx context.Context, ownerID, table string, ids []string) error {
	if err := s.checkTable(table); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, id := range ids {
			if _, err := tx.Exec(ctx, `
				DELETE FROM sync_records
				WHERE owner_id = $1 AND table_name = $2 AND record_id = $3
			`, ownerID, table, id); err != nil {
				return fmt.Errorf("failed to delete %s.%s: %w", table, id, err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO sync_tombstones (owner_id, table_name, record_id, deleted_at)
				VALUES ($1, $2, $3, now())
				ON CONFLICT (owner_id, table_name, record_id)
				DO UPDATE SET deleted_at = excluded.deleted_at
			`, ownerID, table, id); err != nil {
				return fmt.Errorf("failed to tombstone %s.%s: %w", table, id, err)
			}
		}
		return nil
	})
}

// Tombstones returns the owner's deletion markers newer than since.
func (s *Service) Tombstones(ctx context.Context, ownerID string, since time.Time) ([]remote.TombstoneRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT table_name, record_id, deleted_at FROM sync_tombstones
		WHERE owner_id = $1 AND deleted_at > $2
		ORDER BY deleted_at
	`, ownerID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query tombstones: %w", err)
	}
	defer rows.Close()

	var out []remote.TombstoneRecord
	for rows.Next() {
		var table, id string
		var deletedAt time.Time
		if err := rows.Scan(&table, &id, &deletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone: %w", err)
		}
		out = append(out, remote.TombstoneRecord{
			Table:     table,
			RecordID:  id,
			DeletedAt: deletedAt.UTC().Format(time.RFC3339),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tombstones: %w", err)
	}
	return out, nil
}
