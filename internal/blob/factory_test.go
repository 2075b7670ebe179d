package blob

import (
	"context"
	"testing"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()
	mem, err := Open(ctx, Config{Driver: DriverMemory})
	if err != nil || mem.Driver() != DriverMemory {
		t.Fatalf("memory: %v %v", mem, err)
	}
	fsStore, err := Open(ctx, Config{Root: t.TempDir()})
	if err != nil || fsStore.Driver() != DriverFilesystem {
		t.Fatalf("expected filesystem default: %v %v", fsStore, err)
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected error without bucket")
	}
	if _, err := Open(ctx, Config{Driver: "tape"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TESTBLOB_DRIVER", "s3")
	t.Setenv("TESTBLOB_S3_BUCKET", "annotations")
	t.Setenv("TESTBLOB_S3_PATH_STYLE", "TRUE")
	t.Setenv("TESTBLOB_S3_PREFIX", "genecluster/")
	cfg := ApplyEnv(Config{Driver: DriverFilesystem, Root: "keep"}, "TESTBLOB")
	if cfg.Driver != DriverS3 || cfg.S3.Bucket != "annotations" || !cfg.S3.PathStyle || cfg.S3.Prefix != "genecluster/" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Root != "keep" {
		t.Fatalf("unset variables must not clear fields: %+v", cfg)
	}
}
