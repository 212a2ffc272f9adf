// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

// Package remote implements the core-to-collaborator contract with the
// remote data service: per-table fetch and upsert, ordered deletes,
// tombstone fetch, and a schema check that distinguishes "unconfigured"
// from "uninitialized" from plain network failure.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/lawline/lawsync/domain"
	"github.com/lawline/lawsync/merge"
)

// Client talks to the remote data service over HTTP with JWT bearer
// auth. All reads and writes are scoped to the effective owner id.
type Client struct {
	BaseURL string
	Token   func(ctx context.Context) (string, error)
	HTTP    *http.Client
	logger  *slog.Logger
}

// NewClient creates a remote data service client. An empty baseURL is
// allowed; every call then fails with KindUnconfigured until the user
// configures an endpoint.
func NewClient(baseURL string, token func(ctx context.Context) (string, error), logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 120 * time.Second},
		logger:  logger,
	}
}

// CheckSchema verifies the remote endpoint is configured and its tables
// exist.
func (c *Client) CheckSchema(ctx context.Context) error {
	const op = "check schema"
	if c.BaseURL == "" {
		return newError(KindUnconfigured, op, errors.New("no remote endpoint configured"))
	}
	var resp SchemaVersionResponse
	if err := c.getJSON(ctx, op, "/sync/schema-version", nil, &resp); err != nil {
		return err
	}
	if resp.Version < 1 {
		return newError(KindUninitialized, op, fmt.Errorf("unsupported schema version %d", resp.Version))
	}
	return nil
}

// Fetch returns one table's records for the owner. Records failing
// structural validation are dropped with a warning, never a fatal error.
func (c *Client) Fetch(ctx context.Context, ownerID, table string) ([]domain.Record, error) {
	op := "fetch " + table
	q := url.Values{"owner": {ownerID}, "table": {table}}
	var resp RecordsResponse
	if err := c.getJSON(ctx, op, "/sync/records", q, &resp); err != nil {
		return nil, err
	}
	return c.decodeRecords(table, resp.Records), nil
}

// FetchTombstones returns remote deletion markers newer than since.
func (c *Client) FetchTombstones(ctx context.Context, ownerID string, since time.Time) ([]merge.Tombstone, error) {
	const op = "fetch tombstones"
	q := url.Values{"owner": {ownerID}, "since": {since.UTC().Format(time.RFC3339)}}
	var resp TombstonesResponse
	if err := c.getJSON(ctx, op, "/sync/tombstones", q, &resp); err != nil {
		return nil, err
	}
	tombs := make([]merge.Tombstone, 0, len(resp.Tombstones))
	for _, t := range resp.Tombstones {
		deletedAt, err := time.Parse(time.RFC3339, t.DeletedAt)
		if err != nil {
			c.logger.Warn("dropping tombstone with malformed deleted_at",
				"table", t.Table, "id", t.RecordID, "deleted_at", t.DeletedAt)
			continue
		}
		tombs = append(tombs, merge.Tombstone{Table: t.Table, RecordID: t.RecordID, DeletedAt: deletedAt})
	}
	return tombs, nil
}

// Upsert writes records to one table and returns the stored rows with
// server-normalized fields, notably the canonical updated_at.
func (c *Client) Upsert(ctx context.Context, ownerID, table string, recs []domain.Record) ([]domain.Record, error) {
	op := "upsert " + table
	if len(recs) == 0 {
		return nil, nil
	}
	req := UpsertRequest{Records: make([]json.RawMessage, 0, len(recs))}
	for _, r := range recs {
		raw, err := domain.EncodeRecord(r)
		if err != nil {
			return nil, newError(KindUnknown, op, err)
		}
		req.Records = append(req.Records, raw)
	}
	q := url.Values{"owner": {ownerID}, "table": {table}}
	var resp RecordsResponse
	if err := c.postJSON(ctx, op, "/sync/records", q, &req, &resp); err != nil {
		return nil, err
	}
	return c.decodeRecords(table, resp.Records), nil
}

// Delete removes records from one table; the server tombstones each
// deleted row. Callers invoke Delete per table in the Deletion Tracker's
// dependency order.
func (c *Client) Delete(ctx context.Context, ownerID, table string, ids []string) error {
	op := "delete " + table
	if len(ids) == 0 {
		return nil
	}
	q := url.Values{"owner": {ownerID}, "table": {table}}
	return c.postJSON(ctx, op, "/sync/delete", q, &DeleteRequest{IDs: ids}, nil)
}

func (c *Client) decodeRecords(table string, raws []json.RawMessage) []domain.Record {
	recs := make([]domain.Record, 0, len(raws))
	for _, raw := range raws {
		rec, err := domain.DecodeRecord(table, raw)
		if err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				c.logger.Warn("dropping invalid record", "table", table, "reason", verr.Reason)
				continue
			}
			c.logger.Warn("dropping undecodable record", "table", table, "error", err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs
}

func (c *Client) getJSON(ctx context.Context, op, path string, q url.Values, out any) error {
	return c.do(ctx, op, http.MethodGet, path, q, nil, out)
}

func (c *Client) postJSON(ctx context.Context, op, path string, q url.Values, body, out any) error {
	return c.do(ctx, op, http.MethodPost, path, q, body, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, body, out any) error {
	if c.BaseURL == "" {
		return newError(KindUnconfigured, op, errors.New("no remote endpoint configured"))
	}

	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return newError(KindUnknown, op, fmt.Errorf("failed to marshal request: %w", err))
		}
		reqBody = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return newError(KindUnknown, op, fmt.Errorf("failed to create HTTP request: %w", err))
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	token, err := c.Token(ctx)
	if err != nil {
		return newError(KindPermission, op, fmt.Errorf("failed to get token: %w", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		// Network failures and context timeouts are transient.
		return newError(KindTransient, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.classifyStatus(op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newError(KindUnknown, op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func (c *Client) classifyStatus(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body ErrorResponse
	_ = json.Unmarshal(data, &body)
	msg := body.Message
	if msg == "" {
		msg = string(data)
	}
	err := fmt.Errorf("server returned status %d: %s", resp.StatusCode, msg)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return newError(KindPermission, op, err)
	case resp.StatusCode == http.StatusNotFound:
		// Endpoints only exist once the remote schema is provisioned.
		return newError(KindUninitialized, op, err)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return newError(KindTransient, op, err)
	case resp.StatusCode == http.StatusBadRequest && body.Error == "invalid_record":
		return newError(KindValidation, op, err)
	default:
		return newError(KindUnknown, op, err)
	}
}
