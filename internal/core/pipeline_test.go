package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"

	"genecluster/internal/annotation"
	"genecluster/internal/blob"
	"genecluster/internal/cluster"
	"genecluster/internal/gene"
)

type countingFetcher struct {
	bodies map[string][]byte
	calls  atomic.Int32
}

func (f *countingFetcher) Fetch(_ context.Context, url string) (io.ReadCloser, error) {
	f.calls.Add(1)
	for suffix, body := range f.bodies {
		if strings.HasSuffix(url, suffix) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	return nil, fmt.Errorf("unexpected url %s", url)
}

func gzipText(t *testing.T, lines ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := io.WriteString(zw, strings.Join(lines, "\n")+"\n"); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestPipelineWithLoaderAndBlobMemberships(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	memberships := cluster.BlobSource{Store: store, Prefix: "clusters"}
	for name, body := range map[string]string{
		"human": "ENSG001\tSYM1\tCluster_1\nENSG002\tNCSYM\tCluster_2\n",
		"mouse": "ENSMUSG001\tSym1\tCluster_1\n",
	} {
		if _, err := store.Put(ctx, memberships.Key(gene.Species{Name: name}), strings.NewReader(body), blob.PutOptions{}); err != nil {
			t.Fatalf("seed membership: %v", err)
		}
	}

	fetcher := &countingFetcher{bodies: map[string][]byte{
		"Homo_sapiens.gene_info.gz": gzipText(t,
			annoLine("NCSYM", "ncalias", "ENSG002", "noncoding copy", "ncRNA"),
			annoLine("SYM1", "alt1|alt2", "ENSG001", "desc", "protein_coding"),
			annoLine("PCSYM", "pcalias", "ENSG002", "coding", "protein_coding"),
		),
		"Mus_musculus.gene_info.gz": gzipText(t, annoLine("Sym1", "-", "ENSMUSG001", "", "protein_coding")),
	}}
	loader := annotation.NewLoader(store, annotation.Options{Priority: gene.Priority{"ncRNA", "protein_coding"}},
		annotation.WithFetcher(fetcher))
	svc := NewService([]gene.Species{human, mouse}, loader, memberships)

	res, err := svc.GetClusters(ctx, "alt1", 10)
	if err != nil {
		t.Fatalf("get clusters: %v", err)
	}
	if got := ids(res.FullMatchList); len(got) != 1 || got[0] != "Cluster_1" {
		t.Fatalf("unexpected matches %v", got)
	}

	// The merged record keeps the protein_coding symbol and the ncRNA aliases.
	res, err = svc.GetClusters(ctx, "ncalias", 10)
	if err != nil {
		t.Fatalf("get clusters: %v", err)
	}
	if got := ids(res.FullMatchList); len(got) != 1 || got[0] != "Cluster_2" {
		t.Fatalf("unexpected matches %v", got)
	}
	rec := res.FullMatchList[0].Members("human")[0]
	if rec.Symbol != "PCSYM" || !rec.HasAlias("NCSYM") || rec.Synthesized {
		t.Fatalf("unexpected merged record %+v", rec)
	}

	loader.Wait()
	if _, err := store.Head(ctx, loader.CacheKey(mouse)); err != nil {
		t.Fatalf("expected mouse annotation cached: %v", err)
	}
	if fetcher.calls.Load() != 2 {
		t.Fatalf("expected one fetch per species, got %d", fetcher.calls.Load())
	}
}
