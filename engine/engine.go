// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine drives one synchronization cycle end-to-end and owns
// the status state machine, re-entrancy, retry policy, and the
// atomic-at-the-boundary commit: a cycle either fully persists a merged
// result or leaves the local replica untouched.
//
// An Engine is constructed per authenticated session and discarded on
// logout; session state (effective owner, in-flight guard) lives on the
// instance, never in process-wide globals.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lawline/lawsync/blob"
	"github.com/lawline/lawsync/domain"
	"github.com/lawline/lawsync/merge"
	"github.com/lawline/lawsync/remote"
	"github.com/lawline/lawsync/replica"
	"github.com/lawline/lawsync/tracker"
)

// Status is the orchestrator state.
type Status string

const (
	StatusLoading Status = "loading"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
	// StatusUnconfigured means no remote endpoint is configured.
	StatusUnconfigured Status = "unconfigured"
	// StatusUninitialized means the remote schema/tables are absent.
	StatusUninitialized Status = "uninitialized"
)

// Remote is the data-service surface the engine drives. *remote.Client
// satisfies it.
type Remote interface {
	CheckSchema(ctx context.Context) error
	Fetch(ctx context.Context, ownerID, table string) ([]domain.Record, error)
	FetchTombstones(ctx context.Context, ownerID string, since time.Time) ([]merge.Tombstone, error)
	Upsert(ctx context.Context, ownerID, table string, recs []domain.Record) ([]domain.Record, error)
	Delete(ctx context.Context, ownerID, table string, ids []string) error
}

// Config tunes one engine instance. Zero values pick the defaults.
type Config struct {
	SkewBuffer      time.Duration // tombstone clock-skew buffer (2s)
	CallTimeout     time.Duration // per remote call ceiling (60s)
	TombstoneWindow time.Duration // tombstone fetch window (30 days)
	BackoffMin      time.Duration // 1s
	BackoffMax      time.Duration // 60s
	MaxAttempts     int           // retry ceiling for transient errors (5)
	// ExcludedDocuments lists document ids the user excluded on this
	// device; they are never merged in from the remote side.
	ExcludedDocuments map[string]bool
}

func (c Config) withDefaults() Config {
	if c.SkewBuffer == 0 {
		c.SkewBuffer = merge.DefaultSkewBuffer
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 60 * time.Second
	}
	if c.TombstoneWindow == 0 {
		c.TombstoneWindow = 30 * 24 * time.Hour
	}
	if c.BackoffMin == 0 {
		c.BackoffMin = 1 * time.Second
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = 60 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Engine orchestrates sync cycles for one owner partition.
type Engine struct {
	store    *replica.Store
	remote   Remote
	tracker  *tracker.Tracker
	pipeline *blob.Pipeline
	binaries blob.Store
	owner    string
	cfg      Config
	logger   *slog.Logger

	mu         sync.Mutex
	status     Status
	lastErr    string
	inFlight   bool
	callbacks  []func(Status)
	onUploaded func(docIDs []string)
}

// New creates an engine for the session's profile. The effective owner
// is resolved once here.
func New(store *replica.Store, rem Remote, trk *tracker.Tracker, pipeline *blob.Pipeline,
	binaries blob.Store, profile domain.Profile, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		remote:   rem,
		tracker:  trk,
		pipeline: pipeline,
		binaries: binaries,
		owner:    EffectiveOwner(profile),
		cfg:      cfg.withDefaults(),
		logger:   logger,
		status:   StatusLoading,
	}
}

// Owner returns the effective owner id the engine is partitioned to.
func (e *Engine) Owner() string { return e.owner }

// Status returns the current state and, for error states, the last
// human-readable message.
func (e *Engine) Status() (Status, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, e.lastErr
}

// OnStatusChange registers a callback invoked on every status
// transition. Callbacks run on the syncing goroutine and must not block.
func (e *Engine) OnStatusChange(fn func(Status)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks = append(e.callbacks, fn)
}

// OnDocumentsUploaded registers a callback receiving the ids of
// documents whose payload upload succeeded in a cycle.
func (e *Engine) OnDocumentsUploaded(fn func(docIDs []string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUploaded = fn
}

// Dirty reports whether local state changed since the last successful
// sync commit.
func (e *Engine) Dirty(ctx context.Context) (bool, error) {
	return e.store.IsDirty(ctx, e.owner)
}

func (e *Engine) setStatus(st Status, msg string) {
	e.mu.Lock()
	e.status = st
	e.lastErr = msg
	cbs := make([]func(Status), len(e.callbacks))
	copy(cbs, e.callbacks)
	e.mu.Unlock()
	for _, cb := range cbs {
		cb(st)
	}
}

// begin claims the single in-flight slot. A second caller while syncing
// gets false and must treat the request as a no-op.
func (e *Engine) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		return false
	}
	e.inFlight = true
	return true
}

func (e *Engine) end() {
	e.mu.Lock()
	e.inFlight = false
	e.mu.Unlock()
}

// RequestSync runs one synchronization cycle. Re-entrant calls while a
// cycle is in flight are no-ops. The cycle runs to completion or
// failure; there is no mid-cycle cancellation beyond ctx.
func (e *Engine) RequestSync(ctx context.Context) error {
	if !e.begin() {
		return nil
	}
	defer e.end()

	e.setStatus(StatusSyncing, "")
	if err := e.runCycle(ctx); err != nil {
		e.failWith(err)
		return err
	}
	e.setStatus(StatusSynced, "")
	return nil
}

// Refetch discards merge and rebuilds the local replica from a full
// remote fetch. Used for first-login hydration.
func (e *Engine) Refetch(ctx context.Context) error {
	if !e.begin() {
		return nil
	}
	defer e.end()

	e.setStatus(StatusSyncing, "")
	err := func() error {
		if err := e.call(ctx, "check schema", e.remote.CheckSchema); err != nil {
			return err
		}
		gen, err := e.store.DirtyGeneration(ctx, e.owner)
		if err != nil {
			return err
		}
		flat, err := e.fetchAll(ctx)
		if err != nil {
			return err
		}
		snap := domain.Reconstruct(flat)
		if err := e.store.SaveSnapshot(ctx, e.owner, snap); err != nil {
			return err
		}
		return e.store.ClearDirtyThrough(ctx, e.owner, gen)
	}()
	if err != nil {
		e.failWith(err)
		return err
	}
	e.setStatus(StatusSynced, "")
	return nil
}

func (e *Engine) failWith(err error) {
	e.logger.Error("sync cycle failed", "owner", e.owner, "error", err)
	switch remote.KindOf(err) {
	case remote.KindUnconfigured:
		e.setStatus(StatusUnconfigured, err.Error())
	case remote.KindUninitialized:
		e.setStatus(StatusUninitialized, err.Error())
	default:
		e.setStatus(StatusError, err.Error())
	}
}

// call wraps one remote operation with the per-call timeout and the
// transient-retry policy.
func (e *Engine) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return withRetry(ctx, e.logger, e.cfg, op, fn)
}

func (e *Engine) fetchAll(ctx context.Context) (domain.Tables, error) {
	flat := domain.Tables{}
	for _, table := range domain.AllTables {
		var recs []domain.Record
		err := e.call(ctx, "fetch "+table, func(ctx context.Context) error {
			var ferr error
			recs, ferr = e.remote.Fetch(ctx, e.owner, table)
			return ferr
		})
		if err != nil {
			return nil, err
		}
		flat[table] = recs
	}
	return flat, nil
}

// runCycle executes one full synchronization cycle. The local replica is
// read once at cycle start and written once at cycle end; a mutation
// landing in between bumps the dirty generation past the one recorded
// here and is picked up by the next cycle.
func (e *Engine) runCycle(ctx context.Context) error {
	if err := e.call(ctx, "check schema", e.remote.CheckSchema); err != nil {
		return err
	}

	genAtStart, err := e.store.DirtyGeneration(ctx, e.owner)
	if err != nil {
		return err
	}
	snap, err := e.store.LoadSnapshot(ctx, e.owner)
	if err != nil {
		return err
	}
	if snap == nil {
		snap = &domain.Snapshot{}
	}
	localFlat := domain.Flatten(snap)

	remoteFlat, err := e.fetchAll(ctx)
	if err != nil {
		return err
	}
	var tombs []merge.Tombstone
	err = e.call(ctx, "fetch tombstones", func(ctx context.Context) error {
		var ferr error
		tombs, ferr = e.remote.FetchTombstones(ctx, e.owner, time.Now().Add(-e.cfg.TombstoneWindow))
		return ferr
	})
	if err != nil {
		return err
	}

	pendingSet, err := e.tracker.PendingSet(ctx)
	if err != nil {
		return err
	}

	res := merge.Merge(localFlat, remoteFlat, tombs, merge.Options{
		SkewBuffer:        e.cfg.SkewBuffer,
		PendingDeletes:    pendingSet,
		ExcludedDocuments: e.cfg.ExcludedDocuments,
	})

	// Push winning local records parent-first, adopting the stored rows
	// (canonical updated_at) into the merged result.
	for _, table := range domain.UpsertOrder {
		recs := res.ToUpsert[table]
		if len(recs) == 0 {
			continue
		}
		var stored []domain.Record
		err := e.call(ctx, "upsert "+table, func(ctx context.Context) error {
			var uerr error
			stored, uerr = e.remote.Upsert(ctx, e.owner, table, recs)
			return uerr
		})
		if err != nil {
			return err
		}
		res.Merged[table] = adoptNormalized(res.Merged[table], stored)
	}

	// Propagate pending deletions children-first, acknowledging each
	// table only after its remote delete succeeded.
	pendingIDs, pendingPaths, err := e.tracker.Pending(ctx)
	if err != nil {
		return err
	}
	for _, table := range domain.DeleteOrder {
		ids := pendingIDs[table]
		if len(ids) == 0 {
			continue
		}
		err := e.call(ctx, "delete "+table, func(ctx context.Context) error {
			return e.remote.Delete(ctx, e.owner, table, ids)
		})
		if err != nil {
			return err
		}
		if err := e.tracker.Acknowledge(ctx, table, ids); err != nil {
			return err
		}
		// A propagated document deletion also retires its local
		// metadata row and cached payload.
		if table == domain.TableDocuments {
			for _, id := range ids {
				if err := e.store.DeleteDocumentMeta(ctx, id); err != nil {
					return err
				}
				if err := e.store.DeleteBlob(ctx, id); err != nil {
					return err
				}
			}
		}
	}
	if len(pendingPaths) > 0 && e.binaries != nil {
		err := e.call(ctx, "remove deleted objects", func(ctx context.Context) error {
			return e.binaries.Remove(ctx, pendingPaths)
		})
		if err != nil {
			return err
		}
		if err := e.tracker.AcknowledgePaths(ctx, pendingPaths); err != nil {
			return err
		}
	}

	// Advance document payloads through the attachment pipeline.
	if e.pipeline != nil {
		docs := documentsOf(res.Merged)
		pres, err := e.pipeline.Process(ctx, docs)
		if err != nil {
			return err
		}
		res.Merged[domain.TableDocuments] = documentRecords(pres.Docs)

		e.mu.Lock()
		uploaded := e.onUploaded
		e.mu.Unlock()
		if uploaded != nil && len(pres.Uploaded) > 0 {
			uploaded(pres.Uploaded)
		}

		// Retention sweep bounds remote storage cost. Best effort: a
		// failed sweep never aborts the cycle.
		expired, err := e.pipeline.CleanupExpired(ctx, pres.Docs, time.Now())
		if err != nil {
			e.logger.Warn("retention sweep failed", "error", err)
		} else if len(expired) > 0 {
			err := e.call(ctx, "delete expired document metadata", func(ctx context.Context) error {
				return e.remote.Delete(ctx, e.owner, domain.TableDocuments, expired)
			})
			if err != nil {
				e.logger.Warn("failed to delete expired document metadata", "error", err)
			}
		}

		// Local cache expiry mirrors the remote sweep. Best effort.
		if _, err := e.pipeline.PurgeLocalCache(ctx, time.Now()); err != nil {
			e.logger.Warn("local cache purge failed", "error", err)
		}
	}

	merged := domain.Reconstruct(res.Merged)
	if err := e.store.SaveSnapshot(ctx, e.owner, merged); err != nil {
		return fmt.Errorf("failed to persist merged snapshot: %w", err)
	}
	return e.store.ClearDirtyThrough(ctx, e.owner, genAtStart)
}

// adoptNormalized replaces merged records by id with their
// server-normalized counterparts.
func adoptNormalized(merged, stored []domain.Record) []domain.Record {
	if len(stored) == 0 {
		return merged
	}
	byID := make(map[string]domain.Record, len(stored))
	for _, r := range stored {
		byID[r.RecordID()] = r
	}
	out := make([]domain.Record, 0, len(merged))
	for _, r := range merged {
		if norm, ok := byID[r.RecordID()]; ok {
			out = append(out, norm)
		} else {
			out = append(out, r)
		}
	}
	return out
}

func documentsOf(t domain.Tables) []domain.CaseDocument {
	recs := t[domain.TableDocuments]
	docs := make([]domain.CaseDocument, 0, len(recs))
	for _, r := range recs {
		if d, ok := r.(domain.CaseDocument); ok {
			docs = append(docs, d)
		}
	}
	return docs
}

func documentRecords(docs []domain.CaseDocument) []domain.Record {
	recs := make([]domain.Record, 0, len(docs))
	for _, d := range docs {
		recs = append(recs, d)
	}
	return recs
}
