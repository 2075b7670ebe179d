// Package annotation loads per-species NCBI gene_info files into keyed gene
// tables, keeping a local or object-store cache of the downloads.
package annotation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"genecluster/internal/blob"
	"genecluster/internal/gene"
	"genecluster/internal/logging"
)

const (
	DefaultSourceURL   = "https://ftp.ncbi.nih.gov/gene/DATA/GENE_INFO/Mammalia/"
	DefaultSuffix      = ".gene_info.gz"
	DefaultCachePrefix = "gene"
	DefaultXrefPrefix  = "Ensembl"
	DefaultMaxAge      = 90 * 24 * time.Hour
)

const cacheContentType = "application/gzip"

// Clock supplies the current time for freshness checks.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options configure a Loader. Zero values fall back to the defaults above.
type Options struct {
	Keys            []KeyKind     `yaml:"keys"`
	CaseInsensitive bool          `yaml:"case_insensitive"`
	Priority        gene.Priority `yaml:"priority"`
	MaxAge          time.Duration `yaml:"max_age"`
	SourceURL       string        `yaml:"source_url"`
	Suffix          string        `yaml:"suffix"`
	CachePrefix     string        `yaml:"cache_prefix"`
	XrefPrefix      string        `yaml:"xref_prefix"`
}

func (o Options) withDefaults() Options {
	if len(o.Keys) == 0 {
		o.Keys = []KeyKind{KeyStableID}
	}
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultMaxAge
	}
	if o.SourceURL == "" {
		o.SourceURL = DefaultSourceURL
	}
	if o.Suffix == "" {
		o.Suffix = DefaultSuffix
	}
	if o.CachePrefix == "" {
		o.CachePrefix = DefaultCachePrefix
	}
	if o.XrefPrefix == "" {
		o.XrefPrefix = DefaultXrefPrefix
	}
	return o
}

// Loader produces annotation tables, refreshing the cache when it is
// missing, unreadable or older than MaxAge.
type Loader struct {
	opts    Options
	cache   blob.Store
	fetcher Fetcher
	clock   Clock
	logger  logging.Logger

	pending sync.WaitGroup
}

// LoaderOption customises a Loader.
type LoaderOption func(*Loader)

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f Fetcher) LoaderOption {
	return func(l *Loader) {
		if f != nil {
			l.fetcher = f
		}
	}
}

// WithClock overrides the clock used for cache age.
func WithClock(c Clock) LoaderOption {
	return func(l *Loader) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger logging.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logging.OrNoop(logger)
	}
}

// NewLoader builds a Loader. A nil cache disables caching entirely.
func NewLoader(cache blob.Store, opts Options, options ...LoaderOption) *Loader {
	l := &Loader{
		opts:    opts.withDefaults(),
		cache:   cache,
		fetcher: NewHTTPFetcher(),
		clock:   systemClock{},
		logger:  logging.Noop(),
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Options returns the effective options.
func (l *Loader) Options() Options { return l.opts }

// CacheKey is the blob key holding the cached download for species.
func (l *Loader) CacheKey(species gene.Species) string {
	return l.opts.CachePrefix + "/" + species.Latin + l.opts.Suffix
}

// SourceURL is the remote location of the annotation file for species.
func (l *Loader) SourceURL(species gene.Species) string {
	return l.opts.SourceURL + species.Latin + l.opts.Suffix
}

// Load returns the annotation table for species.
func (l *Loader) Load(ctx context.Context, species gene.Species) (*Table, error) {
	if species.Latin == "" {
		return nil, fmt.Errorf("species %q: latin name required", species.Name)
	}
	parseOpts := ParseOptions{
		Keys:            l.opts.Keys,
		CaseInsensitive: l.opts.CaseInsensitive,
		Priority:        l.opts.Priority,
		XrefPrefix:      l.opts.XrefPrefix,
	}

	if table, ok := l.loadCached(ctx, species, parseOpts); ok {
		return table, nil
	}

	url := l.SourceURL(species)
	l.logger.Info("fetching annotation", "species", species.Name, "url", url)
	body, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("species %s: %w", species.Name, err)
	}
	data, err := io.ReadAll(body)
	_ = body.Close()
	if err != nil {
		return nil, fmt.Errorf("species %s: read download: %w", species.Name, err)
	}
	table, stats, err := Parse(bytes.NewReader(data), parseOpts)
	if err != nil {
		return nil, fmt.Errorf("species %s: parse download: %w", species.Name, err)
	}
	l.logParsed(species, "download", stats)
	l.writeCache(ctx, species, data)
	return table, nil
}

// loadCached parses the cached file when it exists and is fresh. Any cache
// problem is logged and reported as a miss so the caller refetches.
func (l *Loader) loadCached(ctx context.Context, species gene.Species, opts ParseOptions) (*Table, bool) {
	if l.cache == nil {
		return nil, false
	}
	key := l.CacheKey(species)
	info, err := l.cache.Head(ctx, key)
	if err != nil {
		if !blob.IsNotFound(err) {
			l.logger.Warn("annotation cache unreadable", "species", species.Name, "key", key, "error", err)
		}
		return nil, false
	}
	age := l.clock.Now().Sub(info.LastModified)
	if age >= l.opts.MaxAge {
		l.logger.Info("annotation cache stale", "species", species.Name, "key", key, "age", age.String())
		return nil, false
	}
	_, rc, err := l.cache.Get(ctx, key)
	if err != nil {
		l.logger.Warn("annotation cache unreadable", "species", species.Name, "key", key, "error", err)
		return nil, false
	}
	defer func() { _ = rc.Close() }()
	table, stats, err := Parse(rc, opts)
	if err != nil {
		l.logger.Warn("annotation cache corrupt", "species", species.Name, "key", key, "error", err)
		return nil, false
	}
	l.logParsed(species, "cache", stats)
	return table, true
}

func (l *Loader) writeCache(ctx context.Context, species gene.Species, data []byte) {
	if l.cache == nil {
		return
	}
	key := l.CacheKey(species)
	ctx = context.WithoutCancel(ctx)
	l.pending.Add(1)
	go func() {
		defer l.pending.Done()
		_, err := l.cache.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
			ContentType: cacheContentType,
			Metadata:    map[string]string{"species": species.Name},
		})
		if err != nil {
			l.logger.Warn("annotation cache write failed", "species", species.Name, "key", key, "error", err)
			return
		}
		l.logger.Debug("annotation cache written", "species", species.Name, "key", key, "bytes", len(data))
	}()
}

// Wait blocks until background cache writes have finished.
func (l *Loader) Wait() { l.pending.Wait() }

func (l *Loader) logParsed(species gene.Species, from string, stats ParseStats) {
	l.logger.Debug("annotation parsed",
		"species", species.Name,
		"from", from,
		"lines", stats.Lines,
		"records", stats.Records,
		"skipped", stats.Skipped,
		"merged", stats.Merged,
	)
}

// ErrNoCache is returned by cache maintenance calls on a Loader without a cache.
var ErrNoCache = errors.New("annotation cache not configured")

// CachedFiles lists the cached annotation downloads.
func (l *Loader) CachedFiles(ctx context.Context) ([]blob.Info, error) {
	if l.cache == nil {
		return nil, ErrNoCache
	}
	return l.cache.List(ctx, l.opts.CachePrefix+"/")
}

// Purge removes the cached download for species. It reports whether a file
// was removed.
func (l *Loader) Purge(ctx context.Context, species gene.Species) (bool, error) {
	if l.cache == nil {
		return false, ErrNoCache
	}
	return l.cache.Delete(ctx, l.CacheKey(species))
}
