package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"genecluster/internal/annotation"
	"genecluster/internal/blob"
	"genecluster/internal/catalog"
	"genecluster/internal/config"
	"genecluster/internal/core"
	"genecluster/internal/gene"
	"genecluster/internal/logging"
	"genecluster/internal/persistence"
)

// app holds the wired dependencies of one command invocation.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    blob.Store
	loader   *annotation.Loader
	sink     catalog.Sink
	registry *prometheus.Registry
	expvar   *core.ExpvarMetricsRecorder
	tracer   core.Tracer
	service  *core.Service
}

func bootstrap(ctx context.Context, opts *rootOptions, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log, stderr)
	if err != nil {
		return nil, err
	}
	store, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		loader: annotation.NewLoader(store, cfg.Annotation, annotation.WithLogger(logger)),
	}
	if opts.trace {
		a.tracer = core.NewJSONTracer(stderr)
	}
	return a, nil
}

// startService opens the snapshot sink and builds the query service. The
// index build itself starts on the first query or an explicit Start.
func (a *app) startService(ctx context.Context) (*core.Service, error) {
	sink, err := persistence.OpenSink(ctx, a.cfg.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("open snapshot sink: %w", err)
	}
	pattern, err := a.cfg.StableIDPattern()
	if err != nil {
		return nil, err
	}
	a.sink = sink
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.expvar = core.NewExpvarMetricsRecorder("")

	opts := []core.Option{
		core.WithLogger(a.logger),
		core.WithMetricsRecorder(core.MultiMetricsRecorder{
			core.NewPrometheusMetricsRecorder(a.registry),
			a.expvar,
		}),
		core.WithStableIDPattern(pattern),
		core.WithMaxMatchEntries(a.cfg.Query.MaxMatchEntries),
		core.WithSnapshotSink(sink),
	}
	if a.tracer != nil {
		opts = append(opts, core.WithTracer(a.tracer))
	}
	a.service = core.NewService(a.cfg.Species, a.loader, a.cfg.MembershipSource(a.store), opts...)
	return a.service, nil
}

// species resolves configured species by name. No names selects all of them.
func (a *app) species(names []string) ([]gene.Species, error) {
	if len(names) == 0 {
		return a.cfg.Species, nil
	}
	out := make([]gene.Species, 0, len(names))
	for _, name := range names {
		sp, ok := findSpecies(a.cfg.Species, name)
		if !ok {
			return nil, fmt.Errorf("species %q is not configured", name)
		}
		out = append(out, sp)
	}
	return out, nil
}

func findSpecies(all []gene.Species, name string) (gene.Species, bool) {
	for _, sp := range all {
		if sp.Name == name || sp.Latin == name {
			return sp, true
		}
	}
	return gene.Species{}, false
}

// close drains background work and releases the sink.
func (a *app) close() {
	if a.service != nil {
		a.service.Wait()
	}
	a.loader.Wait()
	if c, ok := a.sink.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("snapshot sink close failed", "sink", a.sink.Name(), "error", err)
		}
	}
}
