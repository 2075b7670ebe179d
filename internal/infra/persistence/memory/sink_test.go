package memory

import (
	"context"
	"testing"

	"genecluster/internal/catalog"
)

func TestSinkStoresCopies(t *testing.T) {
	sink := NewSink()
	if _, ok := sink.Latest(); ok {
		t.Fatalf("empty sink should have no snapshot")
	}
	snap := catalog.Snapshot{BuildID: "b1", Members: []catalog.MemberRow{{ClusterID: "C1", Symbol: "A"}}}
	if err := sink.WriteSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	snap.Members[0].Symbol = "mutated"

	got, ok := sink.Latest()
	if !ok || got.BuildID != "b1" || got.Members[0].Symbol != "A" {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if sink.Len() != 1 || sink.Name() != "memory" {
		t.Fatalf("unexpected sink state")
	}
}

func TestSinkHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewSink().WriteSnapshot(ctx, catalog.Snapshot{}); err == nil {
		t.Fatalf("expected context error")
	}
}
