// Package catalog describes the flattened, read-only export of a built
// cluster index and the sinks that persist it.
package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"genecluster/internal/aliasindex"
	"genecluster/internal/cluster"
	"genecluster/internal/gene"
)

// MemberRow is one gene listed by one cluster.
type MemberRow struct {
	ClusterID   string `json:"clusterId"`
	Species     string `json:"species"`
	Position    int    `json:"position"`
	StableID    string `json:"stableId"`
	Symbol      string `json:"symbol"`
	Biotype     string `json:"biotype"`
	Synthesized bool   `json:"synthesized"`
}

// AliasRow links a lower-cased alias to a cluster.
type AliasRow struct {
	Alias     string `json:"alias"`
	ClusterID string `json:"clusterId"`
}

// Snapshot is the complete export of one build.
type Snapshot struct {
	BuildID  string      `json:"buildId"`
	BuiltAt  time.Time   `json:"builtAt"`
	Species  []string    `json:"species"`
	Clusters int         `json:"clusters"`
	Members  []MemberRow `json:"members"`
	Aliases  []AliasRow  `json:"aliases"`
}

// Sink persists snapshots.
type Sink interface {
	Name() string
	WriteSnapshot(ctx context.Context, snap Snapshot) error
}

// NewBuildID returns a random build identifier.
func NewBuildID() string { return uuid.NewString() }

// Build flattens clusters and their alias index into a Snapshot. An empty
// buildID is replaced by a fresh one.
func Build(buildID string, builtAt time.Time, species []string, clusters []*cluster.Cluster, idx *aliasindex.Index) Snapshot {
	if buildID == "" {
		buildID = NewBuildID()
	}
	snap := Snapshot{
		BuildID:  buildID,
		BuiltAt:  builtAt.UTC(),
		Species:  append([]string(nil), species...),
		Clusters: len(clusters),
	}
	for _, c := range clusters {
		positions := make(map[string]int)
		c.Each(func(sp string, rec *gene.Record) {
			snap.Members = append(snap.Members, MemberRow{
				ClusterID:   c.ID,
				Species:     sp,
				Position:    positions[sp],
				StableID:    rec.StableID,
				Symbol:      rec.Symbol,
				Biotype:     rec.Biotype,
				Synthesized: rec.Synthesized,
			})
			positions[sp]++
		})
	}
	for _, entry := range idx.AliasEntries() {
		snap.Aliases = append(snap.Aliases, AliasRow{Alias: entry.Key, ClusterID: entry.ClusterID})
	}
	return snap
}
