// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracker accumulates locally-initiated deletions (and storage
// object paths for deleted documents) until a sync cycle propagates them
// to the remote store and acknowledges them.
package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lawline/lawsync/domain"
)

// Ledger is the persistence surface the tracker needs. *replica.Store
// satisfies it.
type Ledger interface {
	AddDeletedID(ctx context.Context, ownerID, table, recordID string) error
	AddDeletedPath(ctx context.Context, ownerID, path string) error
	DeletedIDs(ctx context.Context, ownerID string) (map[string][]string, error)
	DeletedPaths(ctx context.Context, ownerID string) ([]string, error)
	RemoveDeletedIDs(ctx context.Context, ownerID, table string, ids []string) error
	RemoveDeletedPaths(ctx context.Context, ownerID string, paths []string) error
}

// Tracker records deletions for one owner partition. Entries are
// persisted immediately so they survive an app restart before the next
// sync cycle.
type Tracker struct {
	ledger Ledger
	owner  string
	logger *slog.Logger
}

// New creates a tracker bound to an owner partition.
func New(ledger Ledger, ownerID string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{ledger: ledger, owner: ownerID, logger: logger}
}

// RecordDelete registers a locally-initiated delete of a syncable
// record.
func (t *Tracker) RecordDelete(ctx context.Context, table, recordID string) error {
	if recordID == "" {
		return fmt.Errorf("cannot record deletion with empty id for table %s", table)
	}
	if err := t.ledger.AddDeletedID(ctx, t.owner, table, recordID); err != nil {
		return err
	}
	t.logger.Debug("recorded local deletion", "table", table, "id", recordID)
	return nil
}

// RecordDocumentDelete registers a document deletion together with its
// storage object path so the binary can be removed remotely as well.
func (t *Tracker) RecordDocumentDelete(ctx context.Context, docID, storagePath string) error {
	if err := t.RecordDelete(ctx, domain.TableDocuments, docID); err != nil {
		return err
	}
	if storagePath == "" {
		return nil
	}
	return t.ledger.AddDeletedPath(ctx, t.owner, storagePath)
}

// Pending returns the unacknowledged deletion ids per table and the
// unacknowledged storage paths.
func (t *Tracker) Pending(ctx context.Context) (map[string][]string, []string, error) {
	ids, err := t.ledger.DeletedIDs(ctx, t.owner)
	if err != nil {
		return nil, nil, err
	}
	paths, err := t.ledger.DeletedPaths(ctx, t.owner)
	if err != nil {
		return nil, nil, err
	}
	return ids, paths, nil
}

// PendingSet returns the pending ids as per-table lookup sets, the shape
// the merge engine consumes.
func (t *Tracker) PendingSet(ctx context.Context) (map[string]map[string]bool, error) {
	ids, err := t.ledger.DeletedIDs(ctx, t.owner)
	if err != nil {
		return nil, err
	}
	set := map[string]map[string]bool{}
	for table, list := range ids {
		m := map[string]bool{}
		for _, id := range list {
			m[id] = true
		}
		set[table] = m
	}
	return set, nil
}

// Acknowledge removes exactly the ids that were successfully deleted
// remotely. Acknowledging an id that is no longer pending is a no-op.
func (t *Tracker) Acknowledge(ctx context.Context, table string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return t.ledger.RemoveDeletedIDs(ctx, t.owner, table, ids)
}

// AcknowledgePaths removes storage paths whose remote objects were
// successfully removed.
func (t *Tracker) AcknowledgePaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return t.ledger.RemoveDeletedPaths(ctx, t.owner, paths)
}
