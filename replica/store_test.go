// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

package replica

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lawline/lawsync/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEnsureSourceIDIsStable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.EnsureSourceID(ctx, "owner1")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := store.EnsureSourceID(ctx, "owner1")
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := store.EnsureSourceID(ctx, "owner2")
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	loaded, err := store.LoadSnapshot(ctx, "owner1")
	require.NoError(t, err)
	require.Nil(t, loaded, "never-synced partition loads as nil")

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := &domain.Snapshot{
		Clients: []domain.Client{{
			ID: "c1", Name: "Acme", UpdatedAt: now,
			Cases: []domain.Case{{ID: "k1", ClientID: "c1", Subject: "Dispute", UpdatedAt: now}},
		}},
	}
	require.NoError(t, store.SaveSnapshot(ctx, "owner1", snap))

	loaded, err = store.LoadSnapshot(ctx, "owner1")
	require.NoError(t, err)
	require.Equal(t, snap, loaded)

	// Replacing is a full overwrite.
	snap2 := &domain.Snapshot{AdminTasks: []domain.AdminTask{{ID: "t1", Title: "x", UpdatedAt: now}}}
	require.NoError(t, store.SaveSnapshot(ctx, "owner1", snap2))
	loaded, err = store.LoadSnapshot(ctx, "owner1")
	require.NoError(t, err)
	require.Equal(t, snap2, loaded)
}

func TestSnapshotsArePartitionedByOwner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveSnapshot(ctx, "owner1",
		&domain.Snapshot{AdminTasks: []domain.AdminTask{{ID: "t1", Title: "a", UpdatedAt: now}}}))

	loaded, err := store.LoadSnapshot(ctx, "owner2")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestDirtyGenerationSemantics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dirty, err := store.IsDirty(ctx, "owner1")
	require.NoError(t, err)
	require.False(t, dirty)

	require.NoError(t, store.MarkDirty(ctx, "owner1"))
	require.NoError(t, store.MarkDirty(ctx, "owner1"))

	gen, err := store.DirtyGeneration(ctx, "owner1")
	require.NoError(t, err)
	require.Equal(t, int64(2), gen)

	dirty, err = store.IsDirty(ctx, "owner1")
	require.NoError(t, err)
	require.True(t, dirty)

	// A mutation after the cycle snapshotted its generation keeps the
	// partition dirty once the cycle commits.
	require.NoError(t, store.MarkDirty(ctx, "owner1"))
	require.NoError(t, store.ClearDirtyThrough(ctx, "owner1", gen))

	dirty, err = store.IsDirty(ctx, "owner1")
	require.NoError(t, err)
	require.True(t, dirty)

	gen, err = store.DirtyGeneration(ctx, "owner1")
	require.NoError(t, err)
	require.NoError(t, store.ClearDirtyThrough(ctx, "owner1", gen))

	dirty, err = store.IsDirty(ctx, "owner1")
	require.NoError(t, err)
	require.False(t, dirty)
}

func TestClearDirtyNeverRegresses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.MarkDirty(ctx, "owner1"))
	require.NoError(t, store.MarkDirty(ctx, "owner1"))
	require.NoError(t, store.ClearDirtyThrough(ctx, "owner1", 2))

	// A stale cycle committing an older generation must not resurrect
	// the dirty flag.
	require.NoError(t, store.ClearDirtyThrough(ctx, "owner1", 1))
	dirty, err := store.IsDirty(ctx, "owner1")
	require.NoError(t, err)
	require.False(t, dirty)
}

func TestDeletionLedger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddDeletedID(ctx, "owner1", domain.TableClients, "c1"))
	require.NoError(t, store.AddDeletedID(ctx, "owner1", domain.TableClients, "c1")) // idempotent
	require.NoError(t, store.AddDeletedID(ctx, "owner1", domain.TableCases, "k1"))
	require.NoError(t, store.AddDeletedPath(ctx, "owner1", "owner1/d1"))

	ids, err := store.DeletedIDs(ctx, "owner1")
	require.NoError(t, err)
	require.Equal(t, map[string][]string{
		domain.TableClients: {"c1"},
		domain.TableCases:   {"k1"},
	}, ids)

	paths, err := store.DeletedPaths(ctx, "owner1")
	require.NoError(t, err)
	require.Equal(t, []string{"owner1/d1"}, paths)

	require.NoError(t, store.RemoveDeletedIDs(ctx, "owner1", domain.TableClients, []string{"c1"}))
	require.NoError(t, store.RemoveDeletedIDs(ctx, "owner1", domain.TableClients, []string{"c1"})) // gone already
	require.NoError(t, store.RemoveDeletedPaths(ctx, "owner1", []string{"owner1/d1"}))

	ids, err = store.DeletedIDs(ctx, "owner1")
	require.NoError(t, err)
	require.Equal(t, map[string][]string{domain.TableCases: {"k1"}}, ids)

	paths, err = store.DeletedPaths(ctx, "owner1")
	require.NoError(t, err)
	require.Empty(t, paths)
}

func TestDocumentMeta(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	doc, err := store.DocumentMeta(ctx, "d1")
	require.NoError(t, err)
	require.Nil(t, doc)

	saved := domain.CaseDocument{
		ID: "d1", CaseID: "k1", Name: "contract.pdf", StoragePath: "owner1/d1",
		LocalState: domain.DocPendingUpload, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.SaveDocumentMeta(ctx, "owner1", saved))

	doc, err = store.DocumentMeta(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, &saved, doc)

	saved.LocalState = domain.DocSynced
	require.NoError(t, store.SaveDocumentMeta(ctx, "owner1", saved))
	doc, err = store.DocumentMeta(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, domain.DocSynced, doc.LocalState)

	require.NoError(t, store.DeleteDocumentMeta(ctx, "d1"))
	doc, err = store.DocumentMeta(ctx, "d1")
	require.NoError(t, err)
	require.Nil(t, doc)
}

func TestBlobCache(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetBlob(ctx, "d1")
	require.ErrorIs(t, err, ErrNoBlob)

	has, err := store.HasBlob(ctx, "d1")
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, store.PutBlob(ctx, "d1", []byte("pdf bytes")))

	data, err := store.GetBlob(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, []byte("pdf bytes"), data)

	has, err = store.HasBlob(ctx, "d1")
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, store.PutBlob(ctx, "d1", []byte("replaced")))
	data, err = store.GetBlob(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, []byte("replaced"), data)

	require.NoError(t, store.DeleteBlob(ctx, "d1"))
	_, err = store.GetBlob(ctx, "d1")
	require.ErrorIs(t, err, ErrNoBlob)
}

func TestPurgeBlobsOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutBlob(ctx, "old", []byte("x")))
	require.NoError(t, store.PutBlob(ctx, "new", []byte("y")))

	// Everything was written just now, so a past cutoff purges nothing.
	n, err := store.PurgeBlobsOlderThan(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)

	// A future cutoff purges both.
	n, err = store.PurgeBlobsOlderThan(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	_, err = store.GetBlob(ctx, "old")
	require.ErrorIs(t, err, ErrNoBlob)
}
