// Package memory provides an in-memory implementation of the benchmark
// persistence store used for tests and ephemeral environments.
package memory

import (
	"context"
	"sync"
	"time"

	"spectrabench/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Network aliases domain.Network for in-memory persistence operations.
	Network = domain.Network
	// Algorithm aliases domain.Algorithm.
	Algorithm = domain.Algorithm
	// SystemConfig aliases domain.SystemConfig.
	SystemConfig = domain.SystemConfig
	// Experiment aliases domain.Experiment.
	Experiment = domain.Experiment
	// Visualization aliases domain.Visualization.
	Visualization = domain.Visualization
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing an append-only unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// memoryState holds every table as an id-ordered slice. Rows are never
// modified after insertion, so a clone only needs fresh slice headers.
type memoryState struct {
	networks       []Network
	algorithms     []Algorithm
	systemConfigs  []SystemConfig
	experiments    []Experiment
	visualizations []Visualization
	nextID         map[domain.EntityType]int64
}

func newMemoryState() memoryState {
	return memoryState{nextID: make(map[domain.EntityType]int64)}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		networks:       s.networks[:len(s.networks):len(s.networks)],
		algorithms:     s.algorithms[:len(s.algorithms):len(s.algorithms)],
		systemConfigs:  s.systemConfigs[:len(s.systemConfigs):len(s.systemConfigs)],
		experiments:    s.experiments[:len(s.experiments):len(s.experiments)],
		visualizations: s.visualizations[:len(s.visualizations):len(s.visualizations)],
		nextID:         make(map[domain.EntityType]int64, len(s.nextID)),
	}
	for k, v := range s.nextID {
		out.nextID[k] = v
	}
	return out
}

// allocate hands out the next identifier for an entity. Counters live in the
// transactional copy, so identifiers of a rolled back transaction are reissued.
func (s *memoryState) allocate(entity domain.EntityType) int64 {
	s.nextID[entity]++
	return s.nextID[entity]
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneInt(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneNetwork(n Network) Network {
	n.SourceURL = cloneString(n.SourceURL)
	n.NetworkType = cloneString(n.NetworkType)
	n.Description = cloneString(n.Description)
	n.FilePath = cloneString(n.FilePath)
	n.GenerationParams = n.GenerationParams.Clone()
	return n
}

func cloneAlgorithm(a Algorithm) Algorithm {
	a.Version = cloneString(a.Version)
	a.MethodDetails = cloneString(a.MethodDetails)
	a.Description = cloneString(a.Description)
	a.Parameters = a.Parameters.Clone()
	return a
}

func cloneSystemConfig(c SystemConfig) SystemConfig {
	c.PythonVersion = cloneString(c.PythonVersion)
	c.NumpyVersion = cloneString(c.NumpyVersion)
	c.ScipyVersion = cloneString(c.ScipyVersion)
	c.NetworkxVersion = cloneString(c.NetworkxVersion)
	c.CPUInfo = cloneString(c.CPUInfo)
	c.MemoryGB = cloneFloat(c.MemoryGB)
	c.GPUInfo = cloneString(c.GPUInfo)
	c.ColabRuntimeType = cloneString(c.ColabRuntimeType)
	return c
}

func cloneExperiment(e Experiment) Experiment {
	e.RuntimeSeconds = cloneFloat(e.RuntimeSeconds)
	e.MemoryPeakMB = cloneFloat(e.MemoryPeakMB)
	e.CPUPercentAvg = cloneFloat(e.CPUPercentAvg)
	if e.Converged != nil {
		v := *e.Converged
		e.Converged = &v
	}
	e.Iterations = cloneInt(e.Iterations)
	e.ToleranceAchieved = cloneFloat(e.ToleranceAchieved)
	e.NumericalError = cloneFloat(e.NumericalError)
	if e.Eigenvalues != nil {
		e.Eigenvalues = append([]float64(nil), e.Eigenvalues...)
	}
	e.EigenvectorsPath = cloneString(e.EigenvectorsPath)
	e.SpectralGap = cloneFloat(e.SpectralGap)
	e.SpectralRadius = cloneFloat(e.SpectralRadius)
	e.AlgebraicConnectivity = cloneFloat(e.AlgebraicConnectivity)
	e.ErrorMessage = cloneString(e.ErrorMessage)
	e.ConditionNumber = cloneFloat(e.ConditionNumber)
	e.RankEstimate = cloneInt(e.RankEstimate)
	return e
}

func cloneVisualization(v Visualization) Visualization {
	if v.ImageBlob != nil {
		v.ImageBlob = append([]byte(nil), v.ImageBlob...)
	}
	v.ImagePath = cloneString(v.ImagePath)
	v.Width = cloneInt(v.Width)
	v.Height = cloneInt(v.Height)
	v.LayoutParams = v.LayoutParams.Clone()
	return v
}

// Store provides an in-memory transactional store for the benchmark schema.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	closed bool
}

// Option customizes a Store.
type Option func(*Store)

// WithNow overrides the clock used to fill created_at and default run_datetime.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Close marks the store closed; later transactions fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces committed state only when fn and every rule succeed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Result{}, errStoreClosed
	}

	tx := &transaction{now: domain.NormalizeTime(s.nowFn())}
	tx.working = s.state.clone()
	tx.transactionView = transactionView{state: &tx.working}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx.transactionView, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.working
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errStoreClosed
	}

	snapshot := s.state.clone()
	return fn(transactionView{state: &snapshot})
}
