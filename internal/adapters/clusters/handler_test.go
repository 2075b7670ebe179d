package clusters_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"genecluster/internal/adapters/clusters"
	"genecluster/internal/annotation"
	"genecluster/internal/core"
	"genecluster/internal/gene"
)

type tableLoader struct {
	tables map[string]*annotation.Table
	err    error
}

func (l tableLoader) Load(_ context.Context, species gene.Species) (*annotation.Table, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.tables[species.Name], nil
}

type memberships map[string]string

func (m memberships) Open(_ context.Context, species gene.Species) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(m[species.Name])), nil
}

type clusterJSON struct {
	ID             string                       `json:"id"`
	GenesBySpecies map[string][]json.RawMessage `json:"genesBySpecies"`
}

type resultJSON struct {
	FullMatchList    []clusterJSON `json:"fullMatchList"`
	PartialMatchList []clusterJSON `json:"partialMatchList"`
	MaxExceeded      bool          `json:"maxExceeded"`
}

func newService(loadErr error) *core.Service {
	human := gene.Species{Name: "human", Latin: "Homo_sapiens"}
	loader := tableLoader{err: loadErr, tables: map[string]*annotation.Table{
		"human": annotation.NewTable([]*gene.Record{
			gene.New("SYM1", "ENSG001", []string{"alt1", "alt2"}, "", "protein_coding"),
			gene.New("KINA", "ENSG010", nil, "", "protein_coding"),
			gene.New("KINB", "ENSG011", nil, "", "protein_coding"),
			gene.New("KINC", "ENSG012", nil, "", "protein_coding"),
		}, nil),
	}}
	rows := "ENSG001\tSYM1\tCluster_1\nENSG010\tKINA\tCluster_10\nENSG011\tKINB\tCluster_11\nENSG012\tKINC\tCluster_12\n"
	return core.NewService([]gene.Species{human}, loader, memberships{"human": rows})
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestGetClusterRoute(t *testing.T) {
	h := clusters.NewHandler(newService(nil))
	resp := do(t, h, "/get_cluster/alt1")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var res resultJSON
	if err := json.Unmarshal(resp.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.FullMatchList) != 1 || res.FullMatchList[0].ID != "Cluster_1" || len(res.FullMatchList[0].GenesBySpecies["human"]) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.PartialMatchList == nil {
		t.Fatalf("partial list must serialise as an empty array")
	}
}

func TestSearchRouteWithMax(t *testing.T) {
	h := clusters.NewHandler(newService(nil))
	var res resultJSON
	resp := do(t, h, "/api/v1/clusters?q=kin&max=2")
	if err := json.Unmarshal(resp.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.MaxExceeded || len(res.PartialMatchList) != 0 {
		t.Fatalf("expected max exceeded, got %+v", res)
	}

	resp = do(t, h, "/api/v1/clusters?q=kin&max=3")
	res = resultJSON{}
	if err := json.Unmarshal(resp.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.MaxExceeded || len(res.PartialMatchList) != 3 {
		t.Fatalf("expected three partial matches, got %+v", res)
	}

	if resp := do(t, h, "/api/v1/clusters?q=kin&max=zero"); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid max, got %d", resp.Code)
	}
}

func TestGetClusterByIDRoute(t *testing.T) {
	h := clusters.NewHandler(newService(nil))
	resp := do(t, h, "/api/v1/clusters/Cluster_10")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var body struct {
		Cluster clusterJSON `json:"cluster"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Cluster.ID != "Cluster_10" {
		t.Fatalf("unexpected cluster %+v", body.Cluster)
	}
	if resp := do(t, h, "/api/v1/clusters/missing"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestBuildFailureIsUnavailable(t *testing.T) {
	h := clusters.NewHandler(newService(errors.New("ncbi down")))
	resp := do(t, h, "/get_cluster/alt1")
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "ncbi down") {
		t.Fatalf("expected cause in body: %s", resp.Body.String())
	}
	if resp := do(t, h, "/readyz"); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected readyz 503, got %d", resp.Code)
	}
	if resp := do(t, h, "/healthz"); resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"state":"failed"`) {
		t.Fatalf("unexpected healthz %d %s", resp.Code, resp.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	svc := newService(nil)
	h := clusters.NewHandler(svc)
	if resp := do(t, h, "/readyz"); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before build, got %d", resp.Code)
	}
	if err := svc.Ready(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if resp := do(t, h, "/readyz"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 after build, got %d", resp.Code)
	}
}

func TestUnknownRouteAndMissingService(t *testing.T) {
	h := clusters.NewHandler(newService(nil))
	if resp := do(t, h, "/nope"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	empty := &clusters.Handler{}
	if resp := do(t, empty, "/get_cluster/x"); resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}
