// Package aliasindex maps gene aliases and stable ids to the clusters that
// contain them.
//
// Every key maps to a list of cluster ids, even when only one cluster
// matches. Ids are deduplicated and kept in insertion order.
package aliasindex

import (
	"sort"
	"strings"

	"genecluster/internal/cluster"
	"genecluster/internal/gene"
)

// Index is immutable once built and safe for concurrent readers.
type Index struct {
	aliases   map[string][]string
	stableIDs map[string][]string
	keys      []string
}

// Build walks every member of every cluster once. Aliases are lower-cased,
// stable ids keep their case.
func Build(clusters []*cluster.Cluster) *Index {
	idx := &Index{
		aliases:   make(map[string][]string),
		stableIDs: make(map[string][]string),
	}
	for _, c := range clusters {
		c.Each(func(_ string, rec *gene.Record) {
			if rec.StableID != "" {
				insert(idx.stableIDs, rec.StableID, c.ID)
			}
			for _, alias := range rec.Aliases {
				key := strings.ToLower(strings.TrimSpace(alias))
				if key == "" {
					continue
				}
				insert(idx.aliases, key, c.ID)
			}
		})
	}
	idx.keys = make([]string, 0, len(idx.aliases))
	for key := range idx.aliases {
		idx.keys = append(idx.keys, key)
	}
	sort.Strings(idx.keys)
	return idx
}

func insert(m map[string][]string, key, id string) {
	ids := m[key]
	for _, existing := range ids {
		if existing == id {
			return
		}
	}
	m[key] = append(ids, id)
}

// Aliases returns the clusters whose members carry alias, ignoring case.
func (idx *Index) Aliases(alias string) []string {
	if idx == nil {
		return nil
	}
	return clone(idx.aliases[strings.ToLower(strings.TrimSpace(alias))])
}

// StableIDs returns the clusters listing stableID (case-sensitive).
func (idx *Index) StableIDs(stableID string) []string {
	if idx == nil {
		return nil
	}
	return clone(idx.stableIDs[stableID])
}

// Scan visits alias keys in ascending order until fn returns false.
func (idx *Index) Scan(fn func(key string, ids []string) bool) {
	if idx == nil {
		return
	}
	for _, key := range idx.keys {
		if !fn(key, idx.aliases[key]) {
			return
		}
	}
}

// Len returns the number of alias keys.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.aliases)
}

// StableIDLen returns the number of stable id keys.
func (idx *Index) StableIDLen() int {
	if idx == nil {
		return 0
	}
	return len(idx.stableIDs)
}

// Entry is one (key, cluster) pair.
type Entry struct {
	Key       string
	ClusterID string
}

// AliasEntries returns every alias pair, keys ascending.
func (idx *Index) AliasEntries() []Entry {
	var out []Entry
	idx.Scan(func(key string, ids []string) bool {
		for _, id := range ids {
			out = append(out, Entry{Key: key, ClusterID: id})
		}
		return true
	})
	return out
}

func clone(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	return append([]string(nil), ids...)
}
