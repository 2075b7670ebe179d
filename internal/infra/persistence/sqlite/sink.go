// Package sqlite persists catalog snapshots to a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"genecluster/internal/catalog"
)

var _ catalog.Sink = (*Sink)(nil)

const defaultPath = "genecluster.db"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS builds (
		build_id TEXT PRIMARY KEY,
		built_at TEXT NOT NULL,
		species TEXT NOT NULL,
		clusters INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cluster_members (
		build_id TEXT NOT NULL,
		cluster_id TEXT NOT NULL,
		species TEXT NOT NULL,
		position INTEGER NOT NULL,
		stable_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		biotype TEXT NOT NULL,
		synthesized INTEGER NOT NULL,
		PRIMARY KEY (build_id, cluster_id, species, position)
	)`,
	`CREATE TABLE IF NOT EXISTS cluster_aliases (
		build_id TEXT NOT NULL,
		alias TEXT NOT NULL,
		cluster_id TEXT NOT NULL,
		PRIMARY KEY (build_id, alias, cluster_id)
	)`,
}

// ErrNoSnapshot is returned by Latest on an empty database.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Sink writes every snapshot as a new build inside one transaction.
type Sink struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewSink opens (and creates when needed) the database at path.
func NewSink(path string) (*Sink, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Sink{db: db, path: path}, nil
}

// Name implements catalog.Sink.
func (s *Sink) Name() string { return "sqlite" }

// Path returns the database file.
func (s *Sink) Path() string { return s.path }

// DB exposes the underlying sql.DB for read-only consumers.
func (s *Sink) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Sink) Close() error { return s.db.Close() }

// WriteSnapshot implements catalog.Sink.
func (s *Sink) WriteSnapshot(ctx context.Context, snap catalog.Snapshot) (retErr error) {
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
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO builds(build_id,built_at,species,clusters) VALUES(?,?,?,?)`,
		snap.BuildID, snap.BuiltAt.UTC().Format(time.RFC3339Nano), string(species), snap.Clusters); err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	memberStmt, err := tx.PrepareContext(ctx, `INSERT INTO cluster_members(build_id,cluster_id,species,position,stable_id,symbol,biotype,synthesized) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare members: %w", err)
	}
	defer func() { _ = memberStmt.Close() }()
	for _, m := range snap.Members {
		if _, err := memberStmt.ExecContext(ctx, snap.BuildID, m.ClusterID, m.Species, m.Position, m.StableID, m.Symbol, m.Biotype, m.Synthesized); err != nil {
			return fmt.Errorf("insert member %s/%s: %w", m.ClusterID, m.StableID, err)
		}
	}
	aliasStmt, err := tx.PrepareContext(ctx, `INSERT INTO cluster_aliases(build_id,alias,cluster_id) VALUES(?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare aliases: %w", err)
	}
	defer func() { _ = aliasStmt.Close() }()
	for _, a := range snap.Aliases {
		if _, err := aliasStmt.ExecContext(ctx, snap.BuildID, a.Alias, a.ClusterID); err != nil {
			return fmt.Errorf("insert alias %s: %w", a.Alias, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Latest reads back the most recent build.
func (s *Sink) Latest(ctx context.Context) (catalog.Snapshot, error) {
	var (
		snap    catalog.Snapshot
		builtAt string
		species string
	)
	err := s.db.QueryRowContext(ctx, `SELECT build_id, built_at, species, clusters FROM builds ORDER BY built_at DESC LIMIT 1`).
		Scan(&snap.BuildID, &builtAt, &species, &snap.Clusters)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return catalog.Snapshot{}, fmt.Errorf("select build: %w", err)
	}
	if snap.BuiltAt, err = time.Parse(time.RFC3339Nano, builtAt); err != nil {
		return catalog.Snapshot{}, fmt.Errorf("decode built_at: %w", err)
	}
	if err := json.Unmarshal([]byte(species), &snap.Species); err != nil {
		return catalog.Snapshot{}, fmt.Errorf("decode species: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT cluster_id, species, position, stable_id, symbol, biotype, synthesized
		FROM cluster_members WHERE build_id = ? ORDER BY rowid`, snap.BuildID)
	if err != nil {
		return catalog.Snapshot{}, fmt.Errorf("select members: %w", err)
	}
	for rows.Next() {
		var m catalog.MemberRow
		if err := rows.Scan(&m.ClusterID, &m.Species, &m.Position, &m.StableID, &m.Symbol, &m.Biotype, &m.Synthesized); err != nil {
			_ = rows.Close()
			return catalog.Snapshot{}, fmt.Errorf("scan member: %w", err)
		}
		snap.Members = append(snap.Members, m)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return catalog.Snapshot{}, fmt.Errorf("iterate members: %w", err)
	}
	_ = rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT alias, cluster_id FROM cluster_aliases WHERE build_id = ? ORDER BY rowid`, snap.BuildID)
	if err != nil {
		return catalog.Snapshot{}, fmt.Errorf("select aliases: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var a catalog.AliasRow
		if err := rows.Scan(&a.Alias, &a.ClusterID); err != nil {
			return catalog.Snapshot{}, fmt.Errorf("scan alias: %w", err)
		}
		snap.Aliases = append(snap.Aliases, a)
	}
	if err := rows.Err(); err != nil {
		return catalog.Snapshot{}, fmt.Errorf("iterate aliases: %w", err)
	}
	return snap, nil
}
