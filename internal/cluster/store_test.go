package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genecluster/internal/blob"
	"genecluster/internal/gene"
)

type mapResolver map[string]*gene.Record

func (m mapResolver) Lookup(key string) (*gene.Record, bool) {
	rec, ok := m[key]
	return rec, ok
}

func TestLoadSpeciesAttachesAnnotatedRecords(t *testing.T) {
	tp53 := gene.New("TP53", "ENSG001", []string{"p53"}, "tumor protein", "protein_coding")
	store := NewStore()
	stats, err := store.LoadSpecies("human", strings.NewReader("ENSG001\tTP53\tCluster_1\n"), mapResolver{"ENSG001": tp53})
	require.NoError(t, err)
	assert.Equal(t, LoadStats{Rows: 1, Added: 1, NewClusters: 1}, stats)

	c, ok := store.Get("Cluster_1")
	require.True(t, ok)
	members := c.Members("human")
	require.Len(t, members, 1)
	assert.Same(t, tp53, members[0], "cluster must share the annotation record")
}

func TestLoadSpeciesSynthesizesMissingRecords(t *testing.T) {
	store := NewStore()
	input := "ENSMUSG9\tGhost\tCluster_7\nENSMUSG9\tGhostAgain\tCluster_8\n"
	stats, err := store.LoadSpecies("mouse", strings.NewReader(input), mapResolver{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Synthesized)

	c7, _ := store.Get("Cluster_7")
	c8, _ := store.Get("Cluster_8")
	rec := c7.Members("mouse")[0]
	assert.True(t, rec.Synthesized)
	assert.Equal(t, "Ghost", rec.Symbol)
	assert.True(t, rec.HasAlias("ghost"))
	assert.Same(t, rec, c8.Members("mouse")[0], "placeholder is reused, first display name wins")
}

func TestLoadSpeciesSkipsMalformedAndDuplicateRows(t *testing.T) {
	input := strings.Join([]string{
		"ENSG1\tA\tC1",
		"ENSG1\tA\tC1",
		"ENSG2\tB",
		"\tB\tC1",
		"ENSG3\tC\t",
		"",
		"ENSG4\tD\tC1\textra",
	}, "\n")
	store := NewStore()
	stats, err := store.LoadSpecies("human", strings.NewReader(input), nil)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Rows)
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 2, stats.Added)

	c, _ := store.Get("C1")
	assert.Equal(t, []string{"A", "D"}, c.Symbols("human"))
}

func TestClustersKeepCreationAndSpeciesOrder(t *testing.T) {
	store := NewStore()
	_, err := store.LoadSpecies("human", strings.NewReader("H1\tHA\tC2\nH2\tHB\tC1\n"), nil)
	require.NoError(t, err)
	_, err = store.LoadSpecies("mouse", strings.NewReader("M1\tMA\tC2\nM2\tMB\tC3\n"), nil)
	require.NoError(t, err)

	var ids []string
	for _, c := range store.Clusters() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"C2", "C1", "C3"}, ids)
	assert.Equal(t, 3, store.Len())

	c2, _ := store.Get("C2")
	assert.Equal(t, []string{"human", "mouse"}, c2.Species())
	assert.Equal(t, 2, c2.Size())
}

func TestLoadSpeciesConcurrently(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	for _, species := range []string{"human", "mouse", "rat", "dog"} {
		wg.Add(1)
		go func(species string) {
			defer wg.Done()
			var b strings.Builder
			for i := 0; i < 50; i++ {
				b.WriteString(species + "_" + string(rune('a'+i%26)) + string(rune('a'+i/26)) + "\tX\tShared\n")
			}
			_, err := store.LoadSpecies(species, strings.NewReader(b.String()), nil)
			assert.NoError(t, err)
		}(species)
	}
	wg.Wait()
	c, ok := store.Get("Shared")
	require.True(t, ok)
	assert.Equal(t, 200, c.Size())
	assert.Len(t, c.Species(), 4)
}

func TestClusterJSON(t *testing.T) {
	store := NewStore()
	_, err := store.LoadSpecies("human", strings.NewReader("ENSG1\tA\tC1\n"), nil)
	require.NoError(t, err)
	c, _ := store.Get("C1")
	b, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded struct {
		ID             string                      `json:"id"`
		GenesBySpecies map[string][]map[string]any `json:"genesBySpecies"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "C1", decoded.ID)
	require.Len(t, decoded.GenesBySpecies["human"], 1)
	assert.Equal(t, "A", decoded.GenesBySpecies["human"][0]["symbol"])
}

func TestBlobSource(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	src := BlobSource{Store: store, Prefix: "Annotation/AnnotationFiles/"}
	human := gene.Species{Name: "human"}
	assert.Equal(t, "Annotation/AnnotationFiles/human_clusters", src.Key(human))

	_, err := src.Open(ctx, human)
	require.Error(t, err)
	assert.True(t, blob.IsNotFound(err))

	_, err = store.Put(ctx, src.Key(human), bytes.NewReader([]byte("ENSG1\tA\tC1\n")), blob.PutOptions{})
	require.NoError(t, err)
	rc, err := src.Open(ctx, human)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	clusters := NewStore()
	_, err = clusters.LoadSpecies("human", rc, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, clusters.Len())

	assert.Equal(t, "mouse.tsv", BlobSource{Suffix: ".tsv"}.Key(gene.Species{Name: "mouse"}))
}
