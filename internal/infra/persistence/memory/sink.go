// Package memory keeps catalog snapshots in process memory.
package memory

import (
	"context"
	"sync"

	"genecluster/internal/catalog"
)

var _ catalog.Sink = (*Sink)(nil)

// Sink retains every written snapshot. Intended for tests and dry runs.
type Sink struct {
	mu        sync.RWMutex
	snapshots []catalog.Snapshot
}

// NewSink returns an empty sink.
func NewSink() *Sink { return &Sink{} }

// Name implements catalog.Sink.
func (s *Sink) Name() string { return "memory" }

// WriteSnapshot implements catalog.Sink.
func (s *Sink) WriteSnapshot(ctx context.Context, snap catalog.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, cloneSnapshot(snap))
	return nil
}

// Latest returns the most recently written snapshot.
func (s *Sink) Latest() (catalog.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.snapshots) == 0 {
		return catalog.Snapshot{}, false
	}
	return cloneSnapshot(s.snapshots[len(s.snapshots)-1]), true
}

// Len returns the number of stored snapshots.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

func cloneSnapshot(in catalog.Snapshot) catalog.Snapshot {
	out := in
	out.Species = append([]string(nil), in.Species...)
	out.Members = append([]catalog.MemberRow(nil), in.Members...)
	out.Aliases = append([]catalog.AliasRow(nil), in.Aliases...)
	return out
}
