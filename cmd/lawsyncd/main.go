// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

// lawsyncd runs the reference remote data service for lawsync clients:
// authenticated per-table fetch/upsert/delete with tombstoned deletions,
// backed by Postgres.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lawline/lawsync/internal/config"
	"github.com/lawline/lawsync/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	service, err := server.NewService(ctx, pool, logger)
	if err != nil {
		logger.Error("failed to initialize data service", "error", err)
		os.Exit(1)
	}

	auth := server.NewJWTAuth(cfg.JWTSecret)
	handlers := server.NewHandlers(service, auth, logger)

	mux := http.NewServeMux()
	handlers.Register(mux)

	logger.Info("lawsync data service listening", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, mux); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
