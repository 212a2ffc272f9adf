// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lawline/lawsync/domain"
)

// DefaultRetention bounds remote storage cost: binaries older than this
// window are removed from the remote store during a sync cycle.
const DefaultRetention = 72 * time.Hour

// Cache is the local side of the pipeline: cached payloads and
// independently-stored document metadata. *replica.Store satisfies it.
type Cache interface {
	PutBlob(ctx context.Context, docID string, data []byte) error
	GetBlob(ctx context.Context, docID string) ([]byte, error)
	HasBlob(ctx context.Context, docID string) (bool, error)
	SaveDocumentMeta(ctx context.Context, ownerID string, doc domain.CaseDocument) error
	PurgeBlobsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pipeline drives each document's binary payload through its state
// machine. Metadata records and binary payloads are independent;
// local_state is the join point.
type Pipeline struct {
	remote    Store
	cache     Cache
	owner     string
	retention time.Duration
	logger    *slog.Logger
}

// NewPipeline creates an attachment pipeline for one owner partition.
// A zero retention means DefaultRetention.
func NewPipeline(remote Store, cache Cache, ownerID string, retention time.Duration, logger *slog.Logger) *Pipeline {
	if retention == 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{remote: remote, cache: cache, owner: ownerID, retention: retention, logger: logger}
}

// Result reports one pipeline pass.
type Result struct {
	// Docs carries every input document with its post-pass local state.
	Docs []domain.CaseDocument
	// Uploaded lists ids whose payload upload succeeded in this pass,
	// each exactly once.
	Uploaded []string
}

// Process advances every document one step. A single document's failure
// never aborts the pass: transient upload/download failures leave the
// document in its pending state for the next cycle, and a missing remote
// object is terminal for that document only.
func (p *Pipeline) Process(ctx context.Context, docs []domain.CaseDocument) (Result, error) {
	res := Result{Docs: make([]domain.CaseDocument, 0, len(docs))}
	for _, doc := range docs {
		updated, uploaded := p.processOne(ctx, doc)
		if updated.LocalState != doc.LocalState {
			if err := p.cache.SaveDocumentMeta(ctx, p.owner, updated); err != nil {
				return res, err
			}
		}
		if uploaded {
			res.Uploaded = append(res.Uploaded, updated.ID)
		}
		res.Docs = append(res.Docs, updated)
	}
	return res, nil
}

func (p *Pipeline) processOne(ctx context.Context, doc domain.CaseDocument) (domain.CaseDocument, bool) {
	switch doc.LocalState {
	case domain.DocPendingUpload, domain.DocUploading:
		data, err := p.cache.GetBlob(ctx, doc.ID)
		if err != nil {
			p.logger.Warn("document pending upload has no cached payload",
				"doc", doc.ID, "error", err)
			doc.LocalState = domain.DocError
			return doc, false
		}
		if err := p.remote.Upload(ctx, doc.StoragePath, data); err != nil {
			// Transient: retried on the next cycle.
			p.logger.Warn("upload failed, will retry", "doc", doc.ID, "error", err)
			doc.LocalState = domain.DocPendingUpload
			return doc, false
		}
		doc.LocalState = domain.DocSynced
		return doc, true

	case domain.DocPendingDownload, domain.DocDownloading:
		// Self-heal: payload already cached while metadata lags behind.
		if ok, err := p.cache.HasBlob(ctx, doc.ID); err == nil && ok {
			doc.LocalState = domain.DocSynced
			return doc, false
		}
		doc.LocalState = domain.DocDownloading
		data, err := p.remote.Download(ctx, doc.StoragePath)
		if errors.Is(err, ErrNotFound) {
			p.logger.Warn("remote object missing, marking document failed",
				"doc", doc.ID, "path", doc.StoragePath)
			doc.LocalState = domain.DocError
			return doc, false
		}
		if err != nil {
			p.logger.Warn("download failed, will retry", "doc", doc.ID, "error", err)
			doc.LocalState = domain.DocPendingDownload
			return doc, false
		}
		if err := p.cache.PutBlob(ctx, doc.ID, data); err != nil {
			p.logger.Warn("failed to cache downloaded payload", "doc", doc.ID, "error", err)
			doc.LocalState = domain.DocPendingDownload
			return doc, false
		}
		doc.LocalState = domain.DocSynced
		return doc, false

	default:
		// synced and error states are stable.
		return doc, false
	}
}

// CleanupExpired removes remote binaries older than the retention window
// and returns the ids of the expired documents so the caller can delete
// their metadata records remotely. Local caches are unaffected.
func (p *Pipeline) CleanupExpired(ctx context.Context, docs []domain.CaseDocument, now time.Time) ([]string, error) {
	cutoff := now.Add(-p.retention)
	var expired []string
	var paths []string
	for _, doc := range docs {
		if !doc.CreatedAt.IsZero() && doc.CreatedAt.Before(cutoff) {
			expired = append(expired, doc.ID)
			if doc.StoragePath != "" {
				paths = append(paths, doc.StoragePath)
			}
		}
	}
	if len(paths) > 0 {
		if err := p.remote.Remove(ctx, paths); err != nil {
			return nil, err
		}
	}
	return expired, nil
}

// PurgeLocalCache drops cached payloads older than the retention
// window, bounding local disk use the same way CleanupExpired bounds
// the remote store.
func (p *Pipeline) PurgeLocalCache(ctx context.Context, now time.Time) (int64, error) {
	return p.cache.PurgeBlobsOlderThan(ctx, now.Add(-p.retention))
}
