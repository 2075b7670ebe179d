// Package postgres persists catalog snapshots to Postgres through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"genecluster/internal/catalog"
)

var _ catalog.Sink = (*Sink)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/genecluster?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS builds (
		build_id TEXT PRIMARY KEY,
		built_at TIMESTAMPTZ NOT NULL,
		species JSONB NOT NULL,
		clusters INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cluster_members (
		build_id TEXT NOT NULL REFERENCES builds(build_id) ON DELETE CASCADE,
		cluster_id TEXT NOT NULL,
		species TEXT NOT NULL,
		position INTEGER NOT NULL,
		stable_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		biotype TEXT NOT NULL,
		synthesized BOOLEAN NOT NULL,
		PRIMARY KEY (build_id, cluster_id, species, position)
	)`,
	`CREATE TABLE IF NOT EXISTS cluster_aliases (
		build_id TEXT NOT NULL REFERENCES builds(build_id) ON DELETE CASCADE,
		alias TEXT NOT NULL,
		cluster_id TEXT NOT NULL,
		PRIMARY KEY (build_id, alias, cluster_id)
	)`,
	`CREATE INDEX IF NOT EXISTS cluster_aliases_alias_idx ON cluster_aliases (alias)`,
}

// Sink writes each snapshot as a new build in one transaction.
type Sink struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSink connects using dsn (defaultDSN when empty) and applies the schema.
func NewSink(ctx context.Context, dsn string) (*Sink, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute ddl: %w", err)
		}
	}
	return &Sink{db: db}, nil
}

// Name implements catalog.Sink.
func (s *Sink) Name() string { return "postgres" }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Sink) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Sink) Close() error { return s.db.Close() }

// WriteSnapshot implements catalog.Sink.
func (s *Sink) WriteSnapshot(ctx context.Context, snap catalog.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	species, err := json.Marshal(snap.Species)
	if err != nil {
		return fmt.Errorf("encode species: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO builds (build_id, built_at, species, clusters) VALUES ($1,$2,$3,$4)`,
		snap.BuildID, snap.BuiltAt.UTC(), string(species), snap.Clusters); err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	for _, m := range snap.Members {
		if _, err := tx.ExecContext(ctx, `INSERT INTO cluster_members (build_id, cluster_id, species, position, stable_id, symbol, biotype, synthesized) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			snap.BuildID, m.ClusterID, m.Species, m.Position, m.StableID, m.Symbol, m.Biotype, m.Synthesized); err != nil {
			return fmt.Errorf("insert member %s/%s: %w", m.ClusterID, m.StableID, err)
		}
	}
	for _, a := range snap.Aliases {
		if _, err := tx.ExecContext(ctx, `INSERT INTO cluster_aliases (build_id, alias, cluster_id) VALUES ($1,$2,$3)`,
			snap.BuildID, a.Alias, a.ClusterID); err != nil {
			return fmt.Errorf("insert alias %s: %w", a.Alias, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
