// Package core is the application layer of spectrabench: it records catalog
// entries and experiment runs through a domain.PersistentStore and answers
// the queries the analysis side needs.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"spectrabench/internal/artifacts"
	"spectrabench/internal/infra/persistence/memory"
	"spectrabench/pkg/domain"
)

// Operation names reported to loggers, metrics and tracers.
const (
	OpRegisterNetwork      = "register_network"
	OpRegisterAlgorithm    = "register_algorithm"
	OpRegisterSystemConfig = "register_system_config"
	OpRecordExperiment     = "record_experiment"
	OpRecordVisualization  = "record_visualization"
	OpGetNetwork           = "get_network"
	OpListNetworks         = "list_networks"
	OpQueryNetworks        = "query_networks"
	OpQueryAlgorithms      = "query_algorithms"
	OpListSystemConfigs    = "list_system_configs"
	OpQueryExperiments     = "query_experiments"
	OpListVisualizations   = "list_visualizations"
	OpAlgorithmPerformance = "algorithm_performance"
	OpAuditExperiments     = "audit_experiments"
)

// ErrNoArtifactStore is returned by artifact-backed operations when the
// service was built without WithArtifacts.
var ErrNoArtifactStore = errors.New("core: no artifact store configured")

// Service exposes the append-only recording API and the read queries. It is
// safe for concurrent use when the underlying store is.
type Service struct {
	store     PersistentStore
	artifacts *artifacts.Recorder
	now       func() time.Time
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for created_at and run_datetime defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithArtifacts enables the artifact-backed recording helpers.
func WithArtifacts(r *artifacts.Recorder) Option {
	return func(s *Service) { s.artifacts = r }
}

// NewService constructs a service over store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		now:     time.Now,
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying persistent store.
func (s *Service) Store() PersistentStore { return s.store }

// Artifacts returns the configured artifact recorder, if any.
func (s *Service) Artifacts() *artifacts.Recorder { return s.artifacts }

// Close releases the underlying store.
func (s *Service) Close() error { return s.store.Close() }

func (s *Service) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return domain.NormalizeTime(s.now())
	}
	return t
}

// run wraps one operation with tracing, metrics and logging.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	err := fn(ctx)
	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "duration", elapsed, "error", err)
		return err
	}
	s.logger.Debug("operation completed", "operation", op, "duration", elapsed)
	return nil
}

// write runs insert inside a transaction and reports non-blocking findings.
func write[T any](ctx context.Context, s *Service, op string, insert func(Transaction) (T, error)) (T, Result, error) {
	var (
		out T
		res Result
	)
	err := s.run(ctx, op, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var ierr error
			out, ierr = insert(tx)
			return ierr
		})
		return err
	})
	for _, v := range res.Violations {
		s.logger.Warn("rule finding", "operation", op, "rule", v.Rule, "severity", v.Severity, "entity", v.Entity, "id", v.EntityID, "message", v.Message)
	}
	return out, res, err
}

func read[T any](ctx context.Context, s *Service, op string, query func(TransactionView) (T, error)) (T, error) {
	var out T
	err := s.run(ctx, op, func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			var err error
			out, err = query(v)
			return err
		})
	})
	return out, err
}

// RegisterNetwork appends a network to the catalog.
func (s *Service) RegisterNetwork(ctx context.Context, n Network) (Network, Result, error) {
	n.CreatedAt = s.stamp(n.CreatedAt)
	return write(ctx, s, OpRegisterNetwork, func(tx Transaction) (Network, error) { return tx.InsertNetwork(n) })
}

// RegisterAlgorithm appends an algorithm to the catalog.
func (s *Service) RegisterAlgorithm(ctx context.Context, a Algorithm) (Algorithm, Result, error) {
	a.CreatedAt = s.stamp(a.CreatedAt)
	return write(ctx, s, OpRegisterAlgorithm, func(tx Transaction) (Algorithm, error) { return tx.InsertAlgorithm(a) })
}

// RegisterSystemConfig appends a system configuration.
func (s *Service) RegisterSystemConfig(ctx context.Context, c SystemConfig) (SystemConfig, Result, error) {
	c.CreatedAt = s.stamp(c.CreatedAt)
	return write(ctx, s, OpRegisterSystemConfig, func(tx Transaction) (SystemConfig, error) { return tx.InsertSystemConfig(c) })
}

// RecordExperiment appends one benchmark run. Harness workers may call it
// concurrently; each call is its own transaction.
func (s *Service) RecordExperiment(ctx context.Context, e Experiment) (Experiment, Result, error) {
	e.RunDatetime = s.stamp(e.RunDatetime)
	return write(ctx, s, OpRecordExperiment, func(tx Transaction) (Experiment, error) { return tx.InsertExperiment(e) })
}

// RecordVisualization appends a visualization row as given.
func (s *Service) RecordVisualization(ctx context.Context, v Visualization) (Visualization, Result, error) {
	v.CreatedAt = s.stamp(v.CreatedAt)
	return write(ctx, s, OpRecordVisualization, func(tx Transaction) (Visualization, error) { return tx.InsertVisualization(v) })
}

// RecordVisualizationImage stores image through the artifact recorder
// (inline or external) and appends the row. An uploaded image is discarded
// when the row is rejected.
func (s *Service) RecordVisualizationImage(ctx context.Context, v Visualization, image []byte) (Visualization, Result, error) {
	if s.artifacts == nil {
		return Visualization{}, Result{}, ErrNoArtifactStore
	}
	prepared, err := s.artifacts.StoreVisualization(ctx, v, image)
	if err != nil {
		return Visualization{}, Result{}, err
	}
	out, res, err := s.RecordVisualization(ctx, prepared)
	if err != nil && prepared.ImagePath != nil {
		s.discard(ctx, *prepared.ImagePath)
	}
	return out, res, err
}

// RecordExperimentEigenvectors uploads vectors, points the run at them and
// appends it.
func (s *Service) RecordExperimentEigenvectors(ctx context.Context, e Experiment, vectors [][]float64) (Experiment, Result, error) {
	if s.artifacts == nil {
		return Experiment{}, Result{}, ErrNoArtifactStore
	}
	prepared, err := s.artifacts.StoreEigenvectors(ctx, e, vectors)
	if err != nil {
		return Experiment{}, Result{}, err
	}
	out, res, err := s.RecordExperiment(ctx, prepared)
	if err != nil {
		s.discard(ctx, *prepared.EigenvectorsPath)
	}
	return out, res, err
}

// RegisterNetworkEdgeList uploads the network's edge list and registers it
// with file_path set.
func (s *Service) RegisterNetworkEdgeList(ctx context.Context, n Network, edges io.Reader) (Network, Result, error) {
	if s.artifacts == nil {
		return Network{}, Result{}, ErrNoArtifactStore
	}
	prepared, err := s.artifacts.StoreEdgeList(ctx, n, edges)
	if err != nil {
		return Network{}, Result{}, err
	}
	out, res, err := s.RegisterNetwork(ctx, prepared)
	if err != nil {
		s.discard(ctx, *prepared.FilePath)
	}
	return out, res, err
}

func (s *Service) discard(ctx context.Context, key string) {
	if err := s.artifacts.Discard(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("orphaned artifact", "key", key, "error", err)
	}
}

// GetNetwork returns one network by id.
func (s *Service) GetNetwork(ctx context.Context, id int64) (Network, error) {
	return read(ctx, s, OpGetNetwork, func(v TransactionView) (Network, error) { return v.FindNetwork(id) })
}

// ListNetworks returns the whole network catalog ordered by id.
func (s *Service) ListNetworks(ctx context.Context) ([]Network, error) {
	return read(ctx, s, OpListNetworks, func(v TransactionView) ([]Network, error) {
		return v.ListNetworks(domain.NetworkFilter{})
	})
}

// QueryNetworks returns networks within the filter's size bounds.
func (s *Service) QueryNetworks(ctx context.Context, filter domain.NetworkFilter) ([]Network, error) {
	return read(ctx, s, OpQueryNetworks, func(v TransactionView) ([]Network, error) { return v.ListNetworks(filter) })
}

// QueryAlgorithms returns algorithms, optionally of one category.
func (s *Service) QueryAlgorithms(ctx context.Context, filter domain.AlgorithmFilter) ([]Algorithm, error) {
	return read(ctx, s, OpQueryAlgorithms, func(v TransactionView) ([]Algorithm, error) { return v.ListAlgorithms(filter) })
}

// ListSystemConfigs returns every recorded system configuration.
func (s *Service) ListSystemConfigs(ctx context.Context) ([]SystemConfig, error) {
	return read(ctx, s, OpListSystemConfigs, func(v TransactionView) ([]SystemConfig, error) { return v.ListSystemConfigs() })
}

// QueryExperiments returns runs matching filter ordered by id.
func (s *Service) QueryExperiments(ctx context.Context, filter domain.ExperimentFilter) ([]Experiment, error) {
	return read(ctx, s, OpQueryExperiments, func(v TransactionView) ([]Experiment, error) { return v.ListExperiments(filter) })
}

// ListVisualizations returns visualizations, optionally of one network.
func (s *Service) ListVisualizations(ctx context.Context, filter domain.VisualizationFilter) ([]Visualization, error) {
	return read(ctx, s, OpListVisualizations, func(v TransactionView) ([]Visualization, error) { return v.ListVisualizations(filter) })
}

// AlgorithmPerformance returns the aggregated per network and algorithm view.
func (s *Service) AlgorithmPerformance(ctx context.Context) ([]Performance, error) {
	return read(ctx, s, OpAlgorithmPerformance, func(v TransactionView) ([]Performance, error) { return v.AlgorithmPerformance() })
}

// AuditExperiments runs domain.AuditExperiment over the matching runs from
// one snapshot. Findings are returned in experiment id order.
func (s *Service) AuditExperiments(ctx context.Context, filter domain.ExperimentFilter) ([]Violation, error) {
	return read(ctx, s, OpAuditExperiments, func(v TransactionView) ([]Violation, error) {
		exps, err := v.ListExperiments(filter)
		if err != nil {
			return nil, err
		}
		algs := make(map[int64]Algorithm)
		var out []Violation
		for _, e := range exps {
			alg, ok := algs[e.AlgorithmID]
			if !ok {
				alg, err = v.FindAlgorithm(e.AlgorithmID)
				if err != nil {
					return nil, fmt.Errorf("experiment %d: %w", e.ID, err)
				}
				algs[e.AlgorithmID] = alg
			}
			out = append(out, domain.AuditExperiment(e, alg)...)
		}
		return out, nil
	})
}
