package catalog

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"genecluster/internal/aliasindex"
	"genecluster/internal/cluster"
)

func TestBuildFlattensClusters(t *testing.T) {
	store := cluster.NewStore()
	if _, err := store.LoadSpecies("human", strings.NewReader("ENSG1\tA\tC1\nENSG2\tB\tC1\n"), nil); err != nil {
		t.Fatalf("load human: %v", err)
	}
	if _, err := store.LoadSpecies("mouse", strings.NewReader("ENSMUSG1\ta\tC1\n"), nil); err != nil {
		t.Fatalf("load mouse: %v", err)
	}
	clusters := store.Clusters()
	builtAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	snap := Build("", builtAt, []string{"human", "mouse"}, clusters, aliasindex.Build(clusters))

	if _, err := uuid.Parse(snap.BuildID); err != nil {
		t.Fatalf("build id is not a uuid: %v", err)
	}
	if !snap.BuiltAt.Equal(builtAt) || snap.BuiltAt.Location() != time.UTC {
		t.Fatalf("expected UTC build time, got %v", snap.BuiltAt)
	}
	if snap.Clusters != 1 || len(snap.Members) != 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Members[1].Symbol != "B" || snap.Members[1].Position != 1 || snap.Members[2].Position != 0 {
		t.Fatalf("unexpected member order %+v", snap.Members)
	}
	if !snap.Members[0].Synthesized {
		t.Fatalf("members without annotation should be flagged synthesized")
	}
	// "a" and "A" fold to the same alias key.
	if len(snap.Aliases) != 2 {
		t.Fatalf("expected 2 alias rows, got %+v", snap.Aliases)
	}
	if fixed := Build("b-1", builtAt, nil, nil, nil); fixed.BuildID != "b-1" || fixed.Clusters != 0 {
		t.Fatalf("unexpected snapshot %+v", fixed)
	}
	if NewBuildID() == NewBuildID() {
		t.Fatalf("build ids must be unique")
	}
}
