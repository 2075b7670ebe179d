package s3

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"genecluster/internal/blob/core"
)

func TestMockStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests()
	if s.Driver() != core.DriverS3 {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	if _, err := s.Head(ctx, "gene/Mus_musculus.gene_info.gz"); !core.IsNotFound(err) {
		t.Fatalf("expected not found before put, got %v", err)
	}
	if _, err := s.Put(ctx, "gene/Mus_musculus.gene_info.gz", bytes.NewReader([]byte("payload")), core.PutOptions{ContentType: "application/gzip"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, rc, err := s.Get(ctx, "gene/Mus_musculus.gene_info.gz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "payload" || info.ETag != "etag123" {
		t.Fatalf("unexpected get result %q %+v", b, info)
	}
	head, err := s.Head(ctx, "gene/Mus_musculus.gene_info.gz")
	if err != nil || head.ETag != "etag123" || head.Size != int64(len("payload")) {
		t.Fatalf("unexpected head result %+v %v", head, err)
	}
	list, err := s.List(ctx, "gene/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	if ok, err := s.Delete(ctx, "gene/Mus_musculus.gene_info.gz"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := s.Delete(ctx, "gene/Mus_musculus.gene_info.gz"); err != nil || ok {
		t.Fatalf("expected missing delete to report false: %v %v", ok, err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without bucket")
	}
}

func TestDecodeChunked(t *testing.T) {
	body, ok := decodeChunked([]byte("5;chunk-signature=abc\r\nhello\r\n0\r\n\r\n"))
	if !ok || string(body) != "hello" {
		t.Fatalf("decode = %q %v", body, ok)
	}
	if _, ok := decodeChunked([]byte("plain body")); ok {
		t.Fatalf("expected plain body to be rejected")
	}
}

func TestPrefixNamespacesKeys(t *testing.T) {
	ctx := context.Background()
	s := newMock("genecluster/")
	rt := s.client.Options().HTTPClient.(*http.Client).Transport.(*mockRoundTripper)
	if _, err := s.Put(ctx, "gene/Homo_sapiens.gene_info.gz", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok := rt.state["genecluster/gene/Homo_sapiens.gene_info.gz"]; !ok {
		t.Fatalf("object not stored under prefix: %v", rt.state)
	}
	list, err := s.List(ctx, "gene/")
	if err != nil || len(list) != 1 || list[0].Key != "gene/Homo_sapiens.gene_info.gz" {
		t.Fatalf("list must return unprefixed keys: %v %+v", err, list)
	}
	if _, err := s.Head(ctx, "gene/Homo_sapiens.gene_info.gz"); err != nil {
		t.Fatalf("head: %v", err)
	}
}
