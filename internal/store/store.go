// Package store holds the samples of one profiling session and derives call
// trees and memory views from them.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/JetBrains/intellij-plugins-sub025/internal/allocation"
	"github.com/JetBrains/intellij-plugins-sub025/internal/calltree"
	"github.com/JetBrains/intellij-plugins-sub025/internal/errorutil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
	"github.com/JetBrains/intellij-plugins-sub025/internal/grouping"
	"github.com/JetBrains/intellij-plugins-sub025/internal/metrics"
	"github.com/JetBrains/intellij-plugins-sub025/internal/rebuild"
	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
	"github.com/JetBrains/intellij-plugins-sub025/internal/scope"
	"github.com/JetBrains/intellij-plugins-sub025/internal/stream"
)

type State int

const (
	Idle State = iota
	Accumulating
)

func (s State) String() string {
	if s == Accumulating {
		return "accumulating"
	}
	return "idle"
}

type (
	Option func(*Store)

	// Stats summarizes what the store currently holds.
	Stats struct {
		SessionID             string `json:"session_id"`
		State                 string `json:"state"`
		PerformanceSamples    int    `json:"performance_samples"`
		PerformanceDurationNS uint64 `json:"performance_duration_ns"`
		LiveObjects           int    `json:"live_objects"`
		TotalAllocatedBytes   int64  `json:"total_allocated_bytes"`
		ReferenceEdges        int    `json:"reference_edges"`
	}

	// Store is the aggregate root of a profiling session. Every event is
	// applied atomically, readers never observe a half applied event.
	Store struct {
		logger     zerolog.Logger
		registerer prometheus.Registerer
		metrics    *collectors

		mu          sync.RWMutex
		sessionID   string
		state       State
		performance []sample.Performance
		graph       *allocation.Graph

		callTrees rebuild.Coordinator[*calltree.CallTree]
	}
)

// WithRegisterer registers the store collectors on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Store) {
		s.registerer = reg
	}
}

func New(logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		logger:    logger,
		sessionID: uuid.New().String(),
		graph:     allocation.NewGraph(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newCollectors(s.registerer)
	return s
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SessionID identifies the data currently held. It changes whenever
// performance data is cleared or restored.
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Ingest applies a single event. Malformed events are rejected with an error
// wrapping errorutil.ErrMalformedEvent and leave the store unchanged.
func (s *Store) Ingest(e sample.Event) error {
	if err := e.Validate(); err != nil {
		s.metrics.rejected.WithLabelValues(e.Kind.String()).Inc()
		return err
	}
	s.mu.Lock()
	s.apply(e)
	s.state = Accumulating
	s.updateGaugesLocked()
	s.mu.Unlock()
	s.metrics.ingested.WithLabelValues(e.Kind.String()).Inc()
	return nil
}

func (s *Store) apply(e sample.Event) {
	switch e.Kind {
	case sample.KindPerformance:
		s.performance = append(s.performance, *e.Performance)
	case sample.KindCreate:
		s.graph.OnCreate(*e.Create)
	case sample.KindDelete:
		if !s.graph.OnDelete(*e.Delete) {
			s.logger.Debug().Uint64("object_id", e.Delete.ID).Msg("delete of an untracked object")
		}
	case sample.KindReference:
		if !s.graph.OnReference(*e.Reference) {
			s.logger.Debug().
				Uint64("referrer_id", e.Reference.ReferrerID).
				Uint64("referent_id", e.Reference.ReferentID).
				Msg("reference from an untracked object")
		}
	}
}

func (s *Store) updateGaugesLocked() {
	s.metrics.performanceSamples.Set(float64(len(s.performance)))
	s.metrics.liveObjects.Set(float64(s.graph.LiveCount()))
	s.metrics.liveBytes.Set(float64(s.graph.TotalAllocatedBytes()))
}

// ClearPerformance drops every performance sample and supersedes call tree
// rebuilds in flight. Memory data is kept.
func (s *Store) ClearPerformance() {
	s.mu.Lock()
	s.performance = nil
	s.sessionID = uuid.New().String()
	s.updateGaugesLocked()
	s.mu.Unlock()
	s.callTrees.Invalidate()
}

// ClearMemory drops live objects and reference edges. Performance data is kept.
func (s *Store) ClearMemory() {
	s.mu.Lock()
	s.graph = allocation.NewGraph()
	s.updateGaugesLocked()
	s.mu.Unlock()
}

func (s *Store) performanceSnapshot() []sample.Performance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// samples are never mutated in place, capping the capacity is enough to
	// keep later appends out of the snapshot
	return s.performance[:len(s.performance):len(s.performance)]
}

// RebuildCallTree builds a call tree from the samples held when it starts.
// A newer rebuild, or clearing performance data, supersedes it: it then
// returns an error wrapping errorutil.ErrSuperseded and publishes nothing.
func (s *Store) RebuildCallTree(ctx context.Context, filter scope.Filter, opts ...calltree.Option) (*calltree.CallTree, error) {
	ct, err := s.callTrees.Run(ctx, func(ctx context.Context) (*calltree.CallTree, error) {
		samples := s.performanceSnapshot()
		timer := prometheus.NewTimer(s.metrics.rebuildDuration.WithLabelValues("call_tree"))
		defer timer.ObserveDuration()
		return calltree.Build(ctx, samples, append([]calltree.Option{calltree.WithScope(filter)}, opts...)...)
	})
	if errors.Is(err, errorutil.ErrSuperseded) {
		s.metrics.superseded.WithLabelValues("call_tree").Inc()
	}
	return ct, err
}

// CallTree returns the last call tree published by RebuildCallTree.
func (s *Store) CallTree() (*calltree.CallTree, bool) {
	return s.callTrees.Latest()
}

// RebuildMemorySnapshot groups live objects by class.
func (s *Store) RebuildMemorySnapshot(pageSize int) allocation.Snapshot {
	timer := prometheus.NewTimer(s.metrics.rebuildDuration.WithLabelValues("memory_snapshot"))
	defer timer.ObserveDuration()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Snapshot(pageSize)
}

// AllocationSites groups live objects by allocation frames.
func (s *Store) AllocationSites(direction grouping.Direction, filter scope.Filter) *grouping.Tree[sample.CreateObject, frame.Frame] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.AllocationSites(direction, filter)
}

func (s *Store) LiveObject(id uint64) (sample.CreateObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Live(id)
}

func (s *Store) BackReferencesOf(id uint64) []sample.CreateObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.BackReferencesOf(id)
}

// Retainers walks back references from id, returning at most limit objects.
// A limit <= 0 walks the whole reachable graph.
func (s *Store) Retainers(id uint64, limit int) []allocation.Retainer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Retainers(id).Collect(limit)
}

func (s *Store) TotalAllocatedBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.TotalAllocatedBytes()
}

func (s *Store) LivePerformanceSampleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.performance)
}

// FunctionMetrics returns self time statistics of the limit most expensive
// functions in scope.
func (s *Store) FunctionMetrics(filter scope.Filter, limit uint) []metrics.FunctionMetrics {
	samples := s.performanceSnapshot()
	ma := metrics.NewAggregator(limit, 1)
	ma.AddFunctions(metrics.FunctionsOf(samples, filter), s.SessionID())
	return ma.ToMetrics()
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		SessionID:             s.sessionID,
		State:                 s.state.String(),
		PerformanceSamples:    len(s.performance),
		PerformanceDurationNS: sample.TotalDuration(s.performance),
		LiveObjects:           s.graph.LiveCount(),
		TotalAllocatedBytes:   s.graph.TotalAllocatedBytes(),
		ReferenceEdges:        s.graph.EdgeCount(),
	}
}

// Consume ingests events from src until it ends. A normal end returns nil. A
// transport failure returns an error wrapping errorutil.ErrStreamFailed.
// Malformed events are logged and skipped. Data ingested so far stays
// queryable in every case.
func (s *Store) Consume(ctx context.Context, src stream.Source) error {
	for {
		e, err := src.Next(ctx)
		switch {
		case err == nil:
			if err := s.Ingest(e); err != nil {
				s.logger.Warn().Err(err).Str("kind", e.Kind.String()).Msg("event rejected")
			}
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, errorutil.ErrMalformedEvent):
			s.metrics.rejected.WithLabelValues(sample.KindUnknown.String()).Inc()
			s.logger.Warn().Err(err).Msg("event rejected")
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("store: %w: %w", errorutil.ErrStreamFailed, err)
		}
	}
}

// Events exports the session as a timestamp ordered event log. Replaying it
// with Restore rebuilds an equivalent store.
func (s *Store) Events() []sample.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	memory := s.graph.Events()
	events := make([]sample.Event, 0, len(s.performance)+len(memory))
	for _, p := range s.performance {
		events = append(events, sample.NewPerformance(p))
	}
	events = append(events, memory...)
	sortByTimestamp(events)
	return events
}

// Restore replaces the store content with events. Nothing is replaced if
// any event is malformed.
func (s *Store) Restore(events []sample.Event) error {
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("store: event %d: %w", i, err)
		}
	}
	s.mu.Lock()
	s.performance = nil
	s.graph = allocation.NewGraph()
	s.sessionID = uuid.New().String()
	for _, e := range events {
		s.apply(e)
	}
	if len(events) > 0 {
		s.state = Accumulating
	}
	s.updateGaugesLocked()
	s.mu.Unlock()
	s.callTrees.Invalidate()
	return nil
}
