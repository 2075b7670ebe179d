// Package core hosts the cluster query service: a one-shot build of the
// per-species annotation tables, the cluster store and the alias index,
// followed by read-only lookups.
package core

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"genecluster/internal/aliasindex"
	"genecluster/internal/annotation"
	"genecluster/internal/catalog"
	"genecluster/internal/cluster"
	"genecluster/internal/gene"
)

// DefaultMaxMatchEntries caps partial matches when callers pass no limit.
const DefaultMaxMatchEntries = 10

// DefaultStableIDPattern recognises Ensembl gene identifiers, with or
// without a version suffix.
var DefaultStableIDPattern = regexp.MustCompile(`^ENS[A-Z]*G\d+(\.\d+)?$`)

// AnnotationLoader produces the annotation table of one species.
// *annotation.Loader satisfies it.
type AnnotationLoader interface {
	Load(ctx context.Context, species gene.Species) (*annotation.Table, error)
}

// MembershipSource opens the cluster membership file of one species.
// cluster.BlobSource satisfies it.
type MembershipSource interface {
	Open(ctx context.Context, species gene.Species) (io.ReadCloser, error)
}

// Service builds the cluster index once and answers lookups against it.
type Service struct {
	species     []gene.Species
	annotations AnnotationLoader
	memberships MembershipSource

	logger    Logger
	clock     Clock
	metrics   MetricsRecorder
	tracer    Tracer
	idPattern *regexp.Regexp
	maxMatch  int
	sinks     []catalog.Sink

	once    sync.Once
	started atomic.Bool
	done    chan struct{}
	bg      sync.WaitGroup

	// Written by build before done is closed, read-only afterwards.
	buildID    string
	startedAt  time.Time
	finishedAt time.Time
	clusters   *cluster.Store
	index      *aliasindex.Index
	err        error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used for build timestamps.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder attaches a metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer attaches a tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithStableIDPattern replaces the pattern that routes queries to the
// stable id index.
func WithStableIDPattern(pattern *regexp.Regexp) Option {
	return func(s *Service) {
		if pattern != nil {
			s.idPattern = pattern
		}
	}
}

// WithMaxMatchEntries sets the partial match cap used when a query passes
// no positive limit.
func WithMaxMatchEntries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxMatch = n
		}
	}
}

// WithSnapshotSink adds a sink that receives the catalog snapshot after a
// successful build.
func WithSnapshotSink(sink catalog.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
}

// NewService constructs a service. Nothing is loaded until Start or the
// first query.
func NewService(species []gene.Species, annotations AnnotationLoader, memberships MembershipSource, opts ...Option) *Service {
	s := &Service{
		species:     append([]gene.Species(nil), species...),
		annotations: annotations,
		memberships: memberships,
		logger:      noopLogger{},
		clock:       systemClock{},
		metrics:     noopMetricsRecorder{},
		tracer:      noopTracer{},
		idPattern:   DefaultStableIDPattern,
		maxMatch:    DefaultMaxMatchEntries,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Species returns the configured species.
func (s *Service) Species() []gene.Species {
	return append([]gene.Species(nil), s.species...)
}

// Start begins the build in the background. Only the first call has an
// effect.
func (s *Service) Start() {
	s.once.Do(func() {
		s.started.Store(true)
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			s.build()
		}()
	})
}

// Ready starts the build if needed and waits for it. A failed build keeps
// returning the same *BuildError.
func (s *Service) Ready(ctx context.Context) error {
	s.Start()
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the build and the snapshot export have finished. It
// does not start the build.
func (s *Service) Wait() { s.bg.Wait() }

func (s *Service) build() {
	// The build outlives the caller that triggered it.
	ctx := context.Background()
	s.startedAt = s.clock.Now()
	s.buildID = catalog.NewBuildID()

	finished := false
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if finished {
			s.logger.Error("snapshot export panicked", "build_id", s.buildID, "panic", r)
			return
		}
		s.finishedAt = s.clock.Now()
		s.err = &BuildError{Stage: StageIndex, Err: fmt.Errorf("panic: %v", r)}
		s.logger.Error("cluster index build panicked", "build_id", s.buildID, "panic", r)
		close(s.done)
	}()

	err := s.run(ctx, opBuild, func(ctx context.Context) error {
		if err := s.validateSpecies(); err != nil {
			return err
		}
		store := cluster.NewStore()
		var g errgroup.Group
		for _, sp := range s.species {
			g.Go(func() error { return s.loadSpecies(ctx, store, sp) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
		s.clusters = store
		s.index = aliasindex.Build(store.Clusters())
		return nil
	}, "build_id", s.buildID, "species", len(s.species))

	s.finishedAt = s.clock.Now()
	s.err = err
	if err == nil {
		s.logger.Info("cluster index ready",
			"build_id", s.buildID,
			"clusters", s.clusters.Len(),
			"alias_keys", s.index.Len(),
			"stable_ids", s.index.StableIDLen(),
		)
	}
	close(s.done)
	finished = true

	if err == nil && len(s.sinks) > 0 {
		s.exportSnapshot(ctx)
	}
}

func (s *Service) validateSpecies() error {
	seen := make(map[string]struct{}, len(s.species))
	for _, sp := range s.species {
		if sp.Name == "" {
			return &BuildError{Stage: StageConfig, Err: fmt.Errorf("species name required")}
		}
		if _, dup := seen[sp.Name]; dup {
			return &BuildError{Species: sp.Name, Stage: StageConfig, Err: fmt.Errorf("duplicate species")}
		}
		seen[sp.Name] = struct{}{}
	}
	if s.annotations == nil || s.memberships == nil {
		return &BuildError{Stage: StageConfig, Err: fmt.Errorf("annotation loader and membership source required")}
	}
	return nil
}

// loadSpecies waits only for the species' own annotation table before
// reading its membership file. A panic in either source rejects the build.
func (s *Service) loadSpecies(ctx context.Context, store *cluster.Store, sp gene.Species) (err error) {
	stage := StageAnnotation
	defer func() {
		if r := recover(); r != nil {
			err = &BuildError{Species: sp.Name, Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	table, err := s.annotations.Load(ctx, sp)
	if err != nil {
		return &BuildError{Species: sp.Name, Stage: StageAnnotation, Err: err}
	}
	stage = StageMembership
	rc, err := s.memberships.Open(ctx, sp)
	if err != nil {
		return &BuildError{Species: sp.Name, Stage: StageMembership, Err: err}
	}
	if rc == nil {
		return &BuildError{Species: sp.Name, Stage: StageMembership, Err: fmt.Errorf("membership source returned no reader")}
	}
	defer func() { _ = rc.Close() }()
	stats, err := store.LoadSpecies(sp.Name, rc, table)
	if err != nil {
		return &BuildError{Species: sp.Name, Stage: StageMembership, Err: err}
	}
	s.logger.Info("species loaded",
		"species", sp.Name,
		"annotation_keys", table.Len(),
		"rows", stats.Rows,
		"skipped", stats.Skipped,
		"synthesized", stats.Synthesized,
		"new_clusters", stats.NewClusters,
	)
	return nil
}

func (s *Service) exportSnapshot(ctx context.Context) {
	names := make([]string, 0, len(s.species))
	for _, sp := range s.species {
		names = append(names, sp.Name)
	}
	snap := catalog.Build(s.buildID, s.finishedAt, names, s.clusters.Clusters(), s.index)
	for _, sink := range s.sinks {
		if err := sink.WriteSnapshot(ctx, snap); err != nil {
			s.logger.Error("snapshot export failed", "sink", sink.Name(), "build_id", snap.BuildID, "error", err)
			continue
		}
		s.logger.Info("snapshot exported",
			"sink", sink.Name(),
			"build_id", snap.BuildID,
			"members", len(snap.Members),
			"aliases", len(snap.Aliases),
		)
	}
}

// State is the lifecycle phase reported by Status.
type State string

const (
	StatePending  State = "pending"
	StateBuilding State = "building"
	StateReady    State = "ready"
	StateFailed   State = "failed"
)

// Status describes the build without waiting for it.
type Status struct {
	State      State     `json:"state"`
	BuildID    string    `json:"buildId,omitempty"`
	Species    []string  `json:"species"`
	Clusters   int       `json:"clusters"`
	AliasKeys  int       `json:"aliasKeys"`
	StableIDs  int       `json:"stableIds"`
	StartedAt  time.Time `json:"startedAt,omitzero"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
	Error      string    `json:"error,omitempty"`
}

// Status reports the current build state.
func (s *Service) Status() Status {
	st := Status{State: StatePending, Species: make([]string, 0, len(s.species))}
	for _, sp := range s.species {
		st.Species = append(st.Species, sp.Name)
	}
	if !s.started.Load() {
		return st
	}
	select {
	case <-s.done:
	default:
		st.State = StateBuilding
		return st
	}
	st.BuildID = s.buildID
	st.StartedAt = s.startedAt
	st.FinishedAt = s.finishedAt
	if s.err != nil {
		st.State = StateFailed
		st.Error = s.err.Error()
		return st
	}
	st.State = StateReady
	st.Clusters = s.clusters.Len()
	st.AliasKeys = s.index.Len()
	st.StableIDs = s.index.StableIDLen()
	return st
}
