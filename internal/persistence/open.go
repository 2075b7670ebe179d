// Package persistence selects the catalog snapshot sink from configuration.
package persistence

import (
	"context"
	"fmt"
	"os"
	"strings"

	"genecluster/internal/catalog"
	"genecluster/internal/infra/persistence/memory"
	"genecluster/internal/infra/persistence/postgres"
	"genecluster/internal/infra/persistence/sqlite"
)

// Driver names a snapshot backend.
type Driver string

const (
	DriverNone     Driver = "none"
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// EnvPrefix namespaces the environment overrides read by ApplyEnv.
const EnvPrefix = "GENECLUSTER_SNAPSHOT"

// Config selects and addresses a sink. DSN is a file path for sqlite and a
// connection string for postgres.
type Config struct {
	Driver Driver `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ApplyEnv overlays <prefix>_DRIVER and <prefix>_DSN onto cfg.
func ApplyEnv(cfg Config, prefix string) Config {
	if prefix == "" {
		prefix = EnvPrefix
	}
	if v := strings.TrimSpace(os.Getenv(prefix + "_DRIVER")); v != "" {
		cfg.Driver = Driver(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv(prefix + "_DSN")); v != "" {
		cfg.DSN = v
	}
	return cfg
}

// OpenSink returns the configured sink, or nil for DriverNone / an empty driver.
func OpenSink(ctx context.Context, cfg Config) (catalog.Sink, error) {
	switch cfg.Driver {
	case "", DriverNone:
		return nil, nil
	case DriverMemory:
		return memory.NewSink(), nil
	case DriverSQLite:
		sink, err := sqlite.NewSink(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite sink: %w", err)
		}
		return sink, nil
	case DriverPostgres:
		sink, err := postgres.NewSink(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres sink: %w", err)
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown snapshot driver %q", cfg.Driver)
	}
}
