package blob

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Config selects and parameterises a backend.
type Config struct {
	Driver Driver   `yaml:"driver"`
	Root   string   `yaml:"root"` // filesystem root when Driver is fs
	S3     S3Config `yaml:"s3"`
}

// EnvPrefix is the default prefix for blob environment overrides.
const EnvPrefix = "GENECLUSTER_BLOB"

// ApplyEnv overlays environment variables named <prefix>_* onto cfg:
//
//	<prefix>_DRIVER: fs|s3|memory
//	<prefix>_FS_ROOT: directory root when driver=fs
//	<prefix>_S3_BUCKET, <prefix>_S3_REGION, <prefix>_S3_ENDPOINT,
//	<prefix>_S3_PATH_STYLE=true|false, <prefix>_S3_PREFIX
//
// Unset variables leave the corresponding field untouched.
func ApplyEnv(cfg Config, prefix string) Config {
	if v := os.Getenv(prefix + "_DRIVER"); v != "" {
		cfg.Driver = Driver(v)
	}
	if v := os.Getenv(prefix + "_FS_ROOT"); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv(prefix + "_S3_BUCKET"); v != "" {
		cfg.S3.Bucket = v
	}
	if v := os.Getenv(prefix + "_S3_REGION"); v != "" {
		cfg.S3.Region = v
	}
	if v := os.Getenv(prefix + "_S3_ENDPOINT"); v != "" {
		cfg.S3.Endpoint = v
	}
	if v := os.Getenv(prefix + "_S3_PREFIX"); v != "" {
		cfg.S3.Prefix = v
	}
	if v := os.Getenv(prefix + "_S3_PATH_STYLE"); v != "" {
		cfg.S3.PathStyle = strings.EqualFold(v, "true")
	}
	return cfg
}

// Open constructs the Store described by cfg. An empty driver selects the
// filesystem.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.Root)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
