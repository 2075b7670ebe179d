package aliasindex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genecluster/internal/cluster"
	"genecluster/internal/gene"
)

type mapResolver map[string]*gene.Record

func (m mapResolver) Lookup(key string) (*gene.Record, bool) {
	rec, ok := m[key]
	return rec, ok
}

func buildStore(t *testing.T) *cluster.Store {
	t.Helper()
	human := mapResolver{
		"ENSG001": gene.New("SYM1", "ENSG001", []string{"alt1", "ALT2"}, "", "protein_coding"),
		"ENSG002": gene.New("KINASE1", "ENSG002", []string{"sym1"}, "", "protein_coding"),
	}
	mouse := mapResolver{
		"ENSMUSG001": gene.New("Sym1", "ENSMUSG001", []string{"alt1"}, "", "protein_coding"),
	}
	store := cluster.NewStore()
	_, err := store.LoadSpecies("human", strings.NewReader("ENSG001\tSYM1\tCluster_1\nENSG002\tKINASE1\tCluster_2\n"), human)
	require.NoError(t, err)
	_, err = store.LoadSpecies("mouse", strings.NewReader("ENSMUSG001\tSym1\tCluster_1\nENSMUSG404\tOrphan\tCluster_3\n"), mouse)
	require.NoError(t, err)
	return store
}

func TestBuildAliasCompleteness(t *testing.T) {
	store := buildStore(t)
	idx := Build(store.Clusters())

	for _, c := range store.Clusters() {
		c.Each(func(_ string, rec *gene.Record) {
			for _, alias := range rec.Aliases {
				assert.Contains(t, idx.Aliases(alias), c.ID, "alias %s", alias)
			}
			assert.Contains(t, idx.StableIDs(rec.StableID), c.ID)
		})
	}
}

func TestBuildAlwaysList(t *testing.T) {
	idx := Build(buildStore(t).Clusters())

	assert.Equal(t, []string{"Cluster_1"}, idx.Aliases("ALT1"), "single hit is still a list, shared alias deduplicated")
	assert.Equal(t, []string{"Cluster_1", "Cluster_2"}, idx.Aliases("sym1"))
	assert.Equal(t, []string{"Cluster_3"}, idx.Aliases("orphan"))
	assert.Nil(t, idx.Aliases("missing"))
}

func TestStableIDsAreCaseSensitive(t *testing.T) {
	idx := Build(buildStore(t).Clusters())
	assert.Equal(t, []string{"Cluster_1"}, idx.StableIDs("ENSG001"))
	assert.Nil(t, idx.StableIDs("ensg001"))
	assert.Equal(t, 4, idx.StableIDLen())
}

func TestScanIsSortedAndStoppable(t *testing.T) {
	idx := Build(buildStore(t).Clusters())
	var keys []string
	idx.Scan(func(key string, _ []string) bool {
		keys = append(keys, key)
		return true
	})
	require.Len(t, keys, idx.Len())
	assert.IsIncreasing(t, keys)

	var visited int
	idx.Scan(func(string, []string) bool {
		visited++
		return visited < 2
	})
	assert.Equal(t, 2, visited)
}

func TestReturnedListsAreCopies(t *testing.T) {
	idx := Build(buildStore(t).Clusters())
	ids := idx.Aliases("sym1")
	ids[0] = "mutated"
	assert.Equal(t, "Cluster_1", idx.Aliases("sym1")[0])
}

func TestAliasEntries(t *testing.T) {
	idx := Build(buildStore(t).Clusters())
	entries := idx.AliasEntries()
	assert.Contains(t, entries, Entry{Key: "kinase1", ClusterID: "Cluster_2"})
	assert.Contains(t, entries, Entry{Key: "sym1", ClusterID: "Cluster_2"})
}

func TestNilIndex(t *testing.T) {
	var idx *Index
	assert.Zero(t, idx.Len())
	assert.Nil(t, idx.Aliases("x"))
	assert.Nil(t, idx.StableIDs("x"))
	idx.Scan(func(string, []string) bool { t.Fatal("unexpected visit"); return false })
}
