// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lawline/lawsync/domain"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func client(id, name string, at time.Time) domain.Client {
	return domain.Client{ID: id, Name: name, UpdatedAt: at}
}

func ids(recs []domain.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.RecordID())
	}
	return out
}

func TestLocalNewerWins(t *testing.T) {
	local := domain.Tables{domain.TableClients: {client("c1", "local edit", base.Add(time.Minute))}}
	remote := domain.Tables{domain.TableClients: {client("c1", "stale", base)}}

	res := Merge(local, remote, nil, Options{})

	require.Len(t, res.Merged[domain.TableClients], 1)
	require.Equal(t, "local edit", res.Merged[domain.TableClients][0].(domain.Client).Name)
	require.Equal(t, []string{"c1"}, ids(res.ToUpsert[domain.TableClients]))
}

func TestRemoteNewerWins(t *testing.T) {
	local := domain.Tables{domain.TableClients: {client("c1", "stale", base)}}
	remote := domain.Tables{domain.TableClients: {client("c1", "remote edit", base.Add(time.Minute))}}

	res := Merge(local, remote, nil, Options{})

	require.Equal(t, "remote edit", res.Merged[domain.TableClients][0].(domain.Client).Name)
	require.Empty(t, res.ToUpsert[domain.TableClients])
}

func TestEqualTimestampsFavorRemote(t *testing.T) {
	local := domain.Tables{domain.TableClients: {client("c1", "local copy", base)}}
	remote := domain.Tables{domain.TableClients: {client("c1", "remote copy", base)}}

	res := Merge(local, remote, nil, Options{})

	require.Equal(t, "remote copy", res.Merged[domain.TableClients][0].(domain.Client).Name)
	require.Empty(t, res.ToUpsert[domain.TableClients])
}

func TestLocalOnlyRecordIsPushed(t *testing.T) {
	local := domain.Tables{domain.TableClients: {client("c1", "created offline", base)}}

	res := Merge(local, domain.Tables{}, nil, Options{})

	require.Equal(t, []string{"c1"}, ids(res.Merged[domain.TableClients]))
	require.Equal(t, []string{"c1"}, ids(res.ToUpsert[domain.TableClients]))
}

func TestRemoteOnlyRecordIsMerged(t *testing.T) {
	remote := domain.Tables{domain.TableClients: {client("c1", "from other device", base)}}

	res := Merge(domain.Tables{}, remote, nil, Options{})

	require.Equal(t, []string{"c1"}, ids(res.Merged[domain.TableClients]))
	require.Empty(t, res.ToUpsert[domain.TableClients])
}

func TestTombstoneSuppressesStaleLocalCopy(t *testing.T) {
	// Deleted elsewhere after the local copy's last edit. The stale copy
	// must neither survive locally nor be pushed back as a re-creation.
	deletedAt := base.Add(time.Minute)
	local := domain.Tables{domain.TableClients: {client("c1", "stale", base)}}
	tombs := []Tombstone{{Table: domain.TableClients, RecordID: "c1", DeletedAt: deletedAt}}

	res := Merge(local, domain.Tables{}, tombs, Options{})

	require.Empty(t, res.Merged[domain.TableClients])
	require.Empty(t, res.ToUpsert[domain.TableClients])
}

func TestTombstoneSuppressesRemoteZombie(t *testing.T) {
	// A remote row that somehow outlived its own tombstone is dropped too.
	deletedAt := base.Add(time.Minute)
	remote := domain.Tables{domain.TableClients: {client("c1", "zombie", base)}}
	tombs := []Tombstone{{Table: domain.TableClients, RecordID: "c1", DeletedAt: deletedAt}}

	res := Merge(domain.Tables{}, remote, tombs, Options{})

	require.Empty(t, res.Merged[domain.TableClients])
}

func TestEditStrictlyAfterSkewWindowSurvivesTombstone(t *testing.T) {
	deletedAt := base
	edited := client("c1", "revived", base.Add(DefaultSkewBuffer+time.Millisecond))
	local := domain.Tables{domain.TableClients: {edited}}
	tombs := []Tombstone{{Table: domain.TableClients, RecordID: "c1", DeletedAt: deletedAt}}

	res := Merge(local, domain.Tables{}, tombs, Options{})

	require.Equal(t, []string{"c1"}, ids(res.Merged[domain.TableClients]))
	require.Equal(t, []string{"c1"}, ids(res.ToUpsert[domain.TableClients]))
}

func TestEditExactlyAtSkewBoundaryIsDropped(t *testing.T) {
	deletedAt := base
	local := domain.Tables{domain.TableClients: {
		client("c1", "boundary", base.Add(DefaultSkewBuffer)),
	}}
	tombs := []Tombstone{{Table: domain.TableClients, RecordID: "c1", DeletedAt: deletedAt}}

	res := Merge(local, domain.Tables{}, tombs, Options{})

	require.Empty(t, res.Merged[domain.TableClients])
}

func TestPendingDeleteKeepsRemoteRecordOut(t *testing.T) {
	remote := domain.Tables{domain.TableClients: {client("c1", "deleted here", base)}}
	opts := Options{PendingDeletes: map[string]map[string]bool{
		domain.TableClients: {"c1": true},
	}}

	res := Merge(domain.Tables{}, remote, nil, opts)

	require.Empty(t, res.Merged[domain.TableClients])
}

func TestExcludedDocumentIsNotMerged(t *testing.T) {
	remote := domain.Tables{domain.TableDocuments: {
		domain.CaseDocument{ID: "d1", Name: "big.pdf", StoragePath: "u1/d1", CreatedAt: base, UpdatedAt: base},
		domain.CaseDocument{ID: "d2", Name: "keep.pdf", StoragePath: "u1/d2", CreatedAt: base, UpdatedAt: base},
	}}
	opts := Options{ExcludedDocuments: map[string]bool{"d1": true}}

	res := Merge(domain.Tables{}, remote, nil, opts)

	require.Equal(t, []string{"d2"}, ids(res.Merged[domain.TableDocuments]))
}

func TestOrphanContainment(t *testing.T) {
	// Client c1 was deleted remotely; its locally edited case must not
	// survive the merge nor be pushed back.
	deletedAt := base.Add(time.Minute)
	local := domain.Tables{
		domain.TableClients: {client("c1", "gone", base)},
		domain.TableCases: {
			domain.Case{ID: "k1", ClientID: "c1", Subject: "edited offline", UpdatedAt: base.Add(2 * time.Minute)},
		},
		domain.TableStages: {
			domain.Stage{ID: "st1", CaseID: "k1", CourtName: "First", UpdatedAt: base},
		},
		domain.TableSessions: {
			domain.Session{ID: "s1", StageID: "st1", Date: "2025-06-10", UpdatedAt: base},
		},
	}
	tombs := []Tombstone{{Table: domain.TableClients, RecordID: "c1", DeletedAt: deletedAt}}

	res := Merge(local, domain.Tables{}, tombs, Options{})

	require.Empty(t, res.Merged[domain.TableClients])
	require.Empty(t, res.Merged[domain.TableCases])
	require.Empty(t, res.Merged[domain.TableStages], "containment cascades through the hierarchy")
	require.Empty(t, res.Merged[domain.TableSessions])
	require.Empty(t, res.ToUpsert[domain.TableCases], "orphans are never pushed")
}

func TestOrphanContainmentSparesWeakReferences(t *testing.T) {
	// Documents reference a case weakly; a missing case does not drop them.
	remote := domain.Tables{domain.TableDocuments: {
		domain.CaseDocument{ID: "d1", CaseID: "k-missing", Name: "a.pdf", StoragePath: "u1/d1",
			CreatedAt: base, UpdatedAt: base},
	}}

	res := Merge(domain.Tables{}, remote, nil, Options{})

	require.Equal(t, []string{"d1"}, ids(res.Merged[domain.TableDocuments]))
}

func TestMergeIndependentRecordsFromBothSides(t *testing.T) {
	local := domain.Tables{domain.TableAdminTasks: {
		domain.AdminTask{ID: "t1", Title: "local", UpdatedAt: base},
	}}
	remote := domain.Tables{domain.TableAdminTasks: {
		domain.AdminTask{ID: "t2", Title: "remote", UpdatedAt: base},
	}}

	res := Merge(local, remote, nil, Options{})

	require.ElementsMatch(t, []string{"t1", "t2"}, ids(res.Merged[domain.TableAdminTasks]))
	require.Equal(t, []string{"t1"}, ids(res.ToUpsert[domain.TableAdminTasks]))
}

func TestCustomSkewBuffer(t *testing.T) {
	deletedAt := base
	local := domain.Tables{domain.TableClients: {
		client("c1", "edit", base.Add(5*time.Second)),
	}}
	tombs := []Tombstone{{Table: domain.TableClients, RecordID: "c1", DeletedAt: deletedAt}}

	res := Merge(local, domain.Tables{}, tombs, Options{SkewBuffer: 10 * time.Second})
	require.Empty(t, res.Merged[domain.TableClients])

	res = Merge(local, domain.Tables{}, tombs, Options{SkewBuffer: time.Second})
	require.Equal(t, []string{"c1"}, ids(res.Merged[domain.TableClients]))
}
