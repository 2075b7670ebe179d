// Package config loads the genecluster YAML configuration and applies
// GENECLUSTER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"genecluster/internal/annotation"
	"genecluster/internal/blob"
	"genecluster/internal/cluster"
	"genecluster/internal/core"
	"genecluster/internal/gene"
	"genecluster/internal/logging"
	"genecluster/internal/persistence"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "GENECLUSTER"

// Settings locate the cluster membership files.
type Settings struct {
	RawFilePath   string `yaml:"raw_file_path"`
	ClusterSuffix string `yaml:"cluster_suffix"`
}

// Query tunes lookups.
type Query struct {
	MaxMatchEntries int    `yaml:"max_match_entries"`
	StableIDPattern string `yaml:"stable_id_pattern"`
}

// HTTP configures the serve command.
type HTTP struct {
	Addr string `yaml:"addr"`
	// Metrics exposes /metrics and /debug/vars next to the API.
	Metrics bool `yaml:"metrics"`
}

// Config is the complete process configuration.
type Config struct {
	Species    []gene.Species     `yaml:"species"`
	Settings   Settings           `yaml:"settings"`
	Blob       blob.Config        `yaml:"blob"`
	Annotation annotation.Options `yaml:"annotation"`
	Query      Query              `yaml:"query"`
	Snapshot   persistence.Config `yaml:"snapshot"`
	Log        logging.Config     `yaml:"log"`
	HTTP       HTTP               `yaml:"http"`
}

// Default returns the built-in configuration: human and mouse, files under
// Annotation/AnnotationFiles relative to the working directory.
func Default() Config {
	return Config{
		Species: []gene.Species{
			{Name: "human", Latin: "Homo_sapiens", Reference: "hg38", EncodeReference: "GRCh38"},
			{Name: "mouse", Latin: "Mus_musculus", Reference: "mm10", EncodeReference: "mm10"},
		},
		Settings: Settings{
			RawFilePath:   "Annotation/AnnotationFiles",
			ClusterSuffix: cluster.DefaultSuffix,
		},
		Blob: blob.Config{Driver: blob.DriverFilesystem, Root: "."},
		Annotation: annotation.Options{
			Keys:        []annotation.KeyKind{annotation.KeyStableID},
			Priority:    gene.Priority{},
			MaxAge:      annotation.DefaultMaxAge,
			SourceURL:   annotation.DefaultSourceURL,
			Suffix:      annotation.DefaultSuffix,
			CachePrefix: "Annotation/AnnotationFiles/" + annotation.DefaultCachePrefix,
			XrefPrefix:  annotation.DefaultXrefPrefix,
		},
		Query: Query{
			MaxMatchEntries: core.DefaultMaxMatchEntries,
			StableIDPattern: core.DefaultStableIDPattern.String(),
		},
		Snapshot: persistence.Config{Driver: persistence.DriverNone},
		Log:      logging.Config{Level: "info", Format: logging.FormatText, Service: "genecluster"},
		HTTP:     HTTP{Addr: ":8080", Metrics: true},
	}
}

// Load reads path over the defaults (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg, err := ApplyEnv(cfg)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays GENECLUSTER_* variables onto cfg.
func ApplyEnv(cfg Config) (Config, error) {
	cfg.Blob = blob.ApplyEnv(cfg.Blob, blob.EnvPrefix)
	cfg.Snapshot = persistence.ApplyEnv(cfg.Snapshot, persistence.EnvPrefix)
	if v := os.Getenv(EnvPrefix + "_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvPrefix + "_LOG_FORMAT"); v != "" {
		cfg.Log.Format = logging.Format(strings.ToLower(v))
	}
	if v := os.Getenv(EnvPrefix + "_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv(EnvPrefix + "_RAW_FILE_PATH"); v != "" {
		cfg.Settings.RawFilePath = v
	}
	if v := os.Getenv(EnvPrefix + "_ANNOTATION_SOURCE_URL"); v != "" {
		cfg.Annotation.SourceURL = v
	}
	if v := os.Getenv(EnvPrefix + "_MAX_MATCH_ENTRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%s_MAX_MATCH_ENTRIES: %w", EnvPrefix, err)
		}
		cfg.Query.MaxMatchEntries = n
	}
	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	if len(c.Species) == 0 {
		errs = append(errs, errors.New("at least one species is required"))
	}
	seen := make(map[string]struct{}, len(c.Species))
	for i, sp := range c.Species {
		if sp.Name == "" || sp.Latin == "" {
			errs = append(errs, fmt.Errorf("species[%d]: name and latin are required", i))
			continue
		}
		if _, dup := seen[sp.Name]; dup {
			errs = append(errs, fmt.Errorf("species %q listed twice", sp.Name))
		}
		seen[sp.Name] = struct{}{}
	}
	if c.Query.MaxMatchEntries <= 0 {
		errs = append(errs, fmt.Errorf("query.max_match_entries must be positive, got %d", c.Query.MaxMatchEntries))
	}
	if _, err := c.StableIDPattern(); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// StableIDPattern compiles Query.StableIDPattern, falling back to the
// default when empty.
func (c Config) StableIDPattern() (*regexp.Regexp, error) {
	if c.Query.StableIDPattern == "" {
		return core.DefaultStableIDPattern, nil
	}
	re, err := regexp.Compile(c.Query.StableIDPattern)
	if err != nil {
		return nil, fmt.Errorf("query.stable_id_pattern: %w", err)
	}
	return re, nil
}

// MembershipSource returns the blob-backed membership source for store.
func (c Config) MembershipSource(store blob.Store) cluster.BlobSource {
	return cluster.BlobSource{Store: store, Prefix: c.Settings.RawFilePath, Suffix: c.Settings.ClusterSuffix}
}
