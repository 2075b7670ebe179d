// Package cluster groups gene records of several species into homology
// clusters read from per-species membership files.
package cluster

import (
	"encoding/json"

	"genecluster/internal/gene"
)

// Cluster is one homology group. Members are kept per species in the order
// they were first seen; a stable id appears at most once per species.
type Cluster struct {
	ID string

	species []string
	members map[string][]*gene.Record
	seen    map[string]map[string]struct{}
}

func newCluster(id string) *Cluster {
	return &Cluster{
		ID:      id,
		members: make(map[string][]*gene.Record),
		seen:    make(map[string]map[string]struct{}),
	}
}

// add appends rec to the species list unless stableID is already listed.
func (c *Cluster) add(species, stableID string, rec *gene.Record) bool {
	ids, ok := c.seen[species]
	if !ok {
		ids = make(map[string]struct{})
		c.seen[species] = ids
		c.species = append(c.species, species)
	}
	if _, dup := ids[stableID]; dup {
		return false
	}
	ids[stableID] = struct{}{}
	c.members[species] = append(c.members[species], rec)
	return true
}

// Species returns the species with at least one member, in first-seen order.
func (c *Cluster) Species() []string {
	return append([]string(nil), c.species...)
}

// Members returns the records listed for species.
func (c *Cluster) Members(species string) []*gene.Record {
	return append([]*gene.Record(nil), c.members[species]...)
}

// Symbols returns the member symbols for species.
func (c *Cluster) Symbols(species string) []string {
	recs := c.members[species]
	out := make([]string, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Symbol)
	}
	return out
}

// Size returns the total number of members across species.
func (c *Cluster) Size() int {
	n := 0
	for _, recs := range c.members {
		n += len(recs)
	}
	return n
}

// Each calls fn for every member, species in first-seen order.
func (c *Cluster) Each(fn func(species string, rec *gene.Record)) {
	for _, species := range c.species {
		for _, rec := range c.members[species] {
			fn(species, rec)
		}
	}
}

type clusterJSON struct {
	ID             string                    `json:"id"`
	GenesBySpecies map[string][]*gene.Record `json:"genesBySpecies"`
}

// MarshalJSON renders {id, genesBySpecies}.
func (c *Cluster) MarshalJSON() ([]byte, error) {
	out := clusterJSON{ID: c.ID, GenesBySpecies: make(map[string][]*gene.Record, len(c.members))}
	for species, recs := range c.members {
		out.GenesBySpecies[species] = recs
	}
	return json.Marshal(out)
}
