// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lawline/lawsync/remote"
)

// Authenticator resolves the owner partition a request may touch.
// *JWTAuth satisfies it.
type Authenticator interface {
	AuthorizedOwner(r *http.Request) (string, error)
}

// Handlers exposes the data service over HTTP.
type Handlers struct {
	service *Service
	auth    Authenticator
	logger  *slog.Logger
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(service *Service, auth Authenticator, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{service: service, auth: auth, logger: logger}
}

// Register wires the sync routes onto a mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/sync/records", h.HandleRecords)
	mux.HandleFunc("/sync/delete", h.HandleDelete)
	mux.HandleFunc("/sync/tombstones", h.HandleTombstones)
	mux.HandleFunc("/sync/schema-version", h.HandleSchemaVersion)
}

// authorize authenticates the request and checks the owner query
// parameter against the token's authorized partition.
func (h *Handlers) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, err := h.auth.AuthorizedOwner(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return "", false
	}
	requested := r.URL.Query().Get("owner")
	if requested == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "owner parameter required")
		return "", false
	}
	if requested != owner {
		h.writeError(w, http.StatusForbidden, "forbidden", "not authorized for this owner")
		return "", false
	}
	return owner, true
}

// HandleRecords serves GET (fetch one table) and POST (upsert).
func (h *Handlers) HandleRecords(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.authorize(w, r)
	if !ok {
		return
	}
	table := r.URL.Query().Get("table")

	switch r.Method {
	case http.MethodGet:
		records, err := h.service.FetchRecords(r.Context(), owner, table)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writeJSON(w, remote.RecordsResponse{Records: records})

	case http.MethodPost:
		var req remote.UpsertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse upsert request")
			return
		}
		stored, err := h.service.UpsertRecords(r.Context(), owner, table, req.Records)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writeJSON(w, remote.RecordsResponse{Records: stored})

	default:
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET and POST are allowed")
	}
}

// HandleDelete removes records and tombstones them.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	owner, ok := h.authorize(w, r)
	if !ok {
		return
	}
	table := r.URL.Query().Get("table")

	var req remote.DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse delete request")
		return
	}
	if err := h.service.DeleteRecords(r.Context(), owner, table, req.IDs); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleTombstones serves the deletion markers inside a since-window.
func (h *Handlers) HandleTombstones(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is allowed")
		return
	}
	owner, ok := h.authorize(w, r)
	if !ok {
		return
	}
	since := time.Time{}
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "since must be RFC 3339")
			return
		}
		since = parsed
	}
	tombs, err := h.service.Tombstones(r.Context(), owner, since)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, remote.TombstonesResponse{Tombstones: tombs})
}

// HandleSchemaVersion reports the provisioned schema version.
func (h *Handlers) HandleSchemaVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, remote.SchemaVersionResponse{Version: SchemaVersion})
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrUnknownTable) {
		h.writeError(w, http.StatusBadRequest, "unknown_table", err.Error())
		return
	}
	h.logger.Error("data service operation failed", "error", err)
	h.writeError(w, http.StatusInternalServerError, "internal_error", "operation failed")
}

func (h *Handlers) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(remote.ErrorResponse{Error: code, Message: message})
}
