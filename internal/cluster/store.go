package cluster

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"genecluster/internal/blob"
	"genecluster/internal/gene"
)

// DefaultSuffix is appended to the species name to form a membership key.
const DefaultSuffix = "_clusters"

const (
	colStableID = 0
	colName     = 1
	colCluster  = 2
)

// Resolver finds the annotation record for a stable id.
// *annotation.Table satisfies it.
type Resolver interface {
	Lookup(key string) (*gene.Record, bool)
}

// LoadStats summarises one membership file.
type LoadStats struct {
	Rows        int `json:"rows"`
	Skipped     int `json:"skipped"`
	Added       int `json:"added"`
	Duplicates  int `json:"duplicates"`
	Synthesized int `json:"synthesized"`
	NewClusters int `json:"newClusters"`
}

type row struct {
	stableID string
	name     string
	cluster  string
}

// Store is the cluster collection plus its id map. It is safe for
// concurrent LoadSpecies calls.
type Store struct {
	mu          sync.RWMutex
	clusters    []*Cluster
	byID        map[string]*Cluster
	synthesized map[string]map[string]*gene.Record
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		byID:        make(map[string]*Cluster),
		synthesized: make(map[string]map[string]*gene.Record),
	}
}

// LoadSpecies reads "stableId \t displayName \t clusterId" rows for species
// and attaches each row's record to its cluster. Rows with fewer than three
// columns or an empty stable id or cluster id are skipped.
func (s *Store) LoadSpecies(species string, r io.Reader, resolver Resolver) (LoadStats, error) {
	var stats LoadStats
	rows, err := readRows(r, &stats)
	if err != nil {
		return stats, fmt.Errorf("species %s: %w", species, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	placeholders, ok := s.synthesized[species]
	if !ok {
		placeholders = make(map[string]*gene.Record)
		s.synthesized[species] = placeholders
	}
	for _, rw := range rows {
		rec, found := lookup(resolver, rw.stableID)
		if !found {
			rec, found = placeholders[rw.stableID]
			if !found {
				rec = gene.NewSynthesized(rw.stableID, rw.name)
				placeholders[rw.stableID] = rec
				stats.Synthesized++
			}
		}
		c, exists := s.byID[rw.cluster]
		if !exists {
			c = newCluster(rw.cluster)
			s.byID[rw.cluster] = c
			s.clusters = append(s.clusters, c)
			stats.NewClusters++
		}
		if c.add(species, rw.stableID, rec) {
			stats.Added++
		} else {
			stats.Duplicates++
		}
	}
	return stats, nil
}

func lookup(resolver Resolver, stableID string) (*gene.Record, bool) {
	if resolver == nil {
		return nil, false
	}
	return resolver.Lookup(stableID)
}

func readRows(r io.Reader, stats *LoadStats) ([]row, error) {
	var rows []row
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		stats.Rows++
		tokens := strings.Split(line, "\t")
		if len(tokens) <= colCluster {
			stats.Skipped++
			continue
		}
		rw := row{
			stableID: strings.TrimSpace(tokens[colStableID]),
			name:     strings.TrimSpace(tokens[colName]),
			cluster:  strings.TrimSpace(tokens[colCluster]),
		}
		if rw.stableID == "" || rw.cluster == "" {
			stats.Skipped++
			continue
		}
		rows = append(rows, rw)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read membership: %w", err)
	}
	return rows, nil
}

// Clusters returns the clusters in creation order.
func (s *Store) Clusters() []*Cluster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Cluster(nil), s.clusters...)
}

// Get returns the cluster with id.
func (s *Store) Get(id string) (*Cluster, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	return c, ok
}

// Len returns the number of clusters.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clusters)
}

// BlobSource opens membership files from a blob store under
// "<Prefix>/<species><Suffix>".
type BlobSource struct {
	Store  blob.Store
	Prefix string
	Suffix string
}

// Key returns the blob key of the membership file for species.
func (b BlobSource) Key(species gene.Species) string {
	suffix := b.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}
	prefix := strings.TrimSuffix(b.Prefix, "/")
	if prefix == "" {
		return species.Name + suffix
	}
	return prefix + "/" + species.Name + suffix
}

// Open returns the membership file of species. A missing file is an error.
func (b BlobSource) Open(ctx context.Context, species gene.Species) (io.ReadCloser, error) {
	if b.Store == nil {
		return nil, fmt.Errorf("membership source: no store configured")
	}
	key := b.Key(species)
	_, rc, err := b.Store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open membership %s: %w", key, err)
	}
	return rc, nil
}
