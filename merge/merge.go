// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

// Package merge reconciles local and remote flat record sets per entity
// type using timestamp-based last-writer-wins resolution and tombstone
// filtering. Merge is a pure function: it never performs I/O and never
// fails on individual records.
package merge

import (
	"time"

	"github.com/lawline/lawsync/domain"
)

// DefaultSkewBuffer absorbs clock skew between replicas when comparing
// a local edit against a remote deletion time.
const DefaultSkewBuffer = 2 * time.Second

// Tombstone records a remote deletion: entity id plus deletion time,
// retained long enough to prevent a stale copy from being treated as a
// new creation.
type Tombstone struct {
	Table     string    `json:"table"`
	RecordID  string    `json:"record_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// Options tunes one merge run.
type Options struct {
	// SkewBuffer widens the tombstone window; zero means DefaultSkewBuffer.
	SkewBuffer time.Duration
	// PendingDeletes holds locally-initiated deletions not yet
	// acknowledged, per table. Remote records matching an entry are kept
	// out of the merged result.
	PendingDeletes map[string]map[string]bool
	// ExcludedDocuments lists document ids the user excluded on this
	// device; matching remote document records are not merged in.
	ExcludedDocuments map[string]bool
}

// Result is the outcome of one merge run.
type Result struct {
	// Merged is the reconciled flat data, ready for reconstruction.
	Merged domain.Tables
	// ToUpsert is the subset of local records that won and must be
	// written back to the remote store.
	ToUpsert domain.Tables
}

// ownership relations, parent first. Used for orphan containment.
var relations = []struct{ parent, child string }{
	{domain.TableClients, domain.TableCases},
	{domain.TableCases, domain.TableStages},
	{domain.TableStages, domain.TableSessions},
	{domain.TableInvoices, domain.TableInvoiceItems},
}

// Merge reconciles local and remote flat data against the remote
// tombstone set.
//
// Per table, per record id:
//  1. Tombstone pre-filter: a copy (local or remote) whose updated_at is
//     not newer than deleted_at + skew buffer is a zombie and is dropped
//     before comparison.
//  2. A surviving local record wins when it is absent remotely or
//     strictly newer; winners appear in both Merged and ToUpsert.
//  3. A remote record absent locally is merged in unless its id is in
//     the local pending-deletion set (or, for documents, excluded on
//     this device).
//  4. Exactly equal timestamps favor the remote copy; the remote store
//     is authoritative on ties.
//
// After the per-table pass, child tables are filtered to records whose
// parent id exists in the merged parent table. Dropped orphans are
// discarded silently; their deletion is never inferred or propagated.
func Merge(local, remote domain.Tables, tombstones []Tombstone, opts Options) Result {
	skew := opts.SkewBuffer
	if skew == 0 {
		skew = DefaultSkewBuffer
	}

	tombs := map[string]map[string]time.Time{}
	for _, t := range tombstones {
		m := tombs[t.Table]
		if m == nil {
			m = map[string]time.Time{}
			tombs[t.Table] = m
		}
		m[t.RecordID] = t.DeletedAt
	}

	zombie := func(table string, rec domain.Record) bool {
		deletedAt, ok := tombs[table][rec.RecordID()]
		if !ok {
			return false
		}
		return !rec.LastModified().After(deletedAt.Add(skew))
	}

	res := Result{Merged: domain.Tables{}, ToUpsert: domain.Tables{}}

	for _, table := range domain.AllTables {
		remoteByID := map[string]domain.Record{}
		var remoteOrder []string
		for _, r := range remote[table] {
			if zombie(table, r) {
				continue
			}
			if _, seen := remoteByID[r.RecordID()]; !seen {
				remoteOrder = append(remoteOrder, r.RecordID())
			}
			remoteByID[r.RecordID()] = r
		}

		taken := map[string]bool{}
		for _, l := range local[table] {
			id := l.RecordID()
			if taken[id] || zombie(table, l) {
				continue
			}
			taken[id] = true
			r, ok := remoteByID[id]
			if !ok || l.LastModified().After(r.LastModified()) {
				res.Merged[table] = append(res.Merged[table], l)
				res.ToUpsert[table] = append(res.ToUpsert[table], l)
			} else {
				res.Merged[table] = append(res.Merged[table], r)
			}
		}

		for _, id := range remoteOrder {
			if taken[id] {
				continue
			}
			if opts.PendingDeletes[table][id] {
				continue
			}
			if table == domain.TableDocuments && opts.ExcludedDocuments[id] {
				continue
			}
			res.Merged[table] = append(res.Merged[table], remoteByID[id])
		}
	}

	containOrphans(&res)
	return res
}

// containOrphans walks the ownership relations parent-first and drops
// children whose parent is absent from the merged parent table. ToUpsert
// is filtered the same way so a dangling child is never pushed against a
// deleted parent.
func containOrphans(res *Result) {
	for _, rel := range relations {
		parents := map[string]bool{}
		for _, p := range res.Merged[rel.parent] {
			parents[p.RecordID()] = true
		}
		res.Merged[rel.child] = keepChildrenOf(res.Merged[rel.child], parents)
		res.ToUpsert[rel.child] = keepChildrenOf(res.ToUpsert[rel.child], parents)
	}
}

func keepChildrenOf(recs []domain.Record, parents map[string]bool) []domain.Record {
	if len(recs) == 0 {
		return recs
	}
	kept := recs[:0:0]
	for _, r := range recs {
		child, ok := r.(domain.ChildRecord)
		if !ok || parents[child.ParentID()] {
			kept = append(kept, r)
		}
	}
	return kept
}
