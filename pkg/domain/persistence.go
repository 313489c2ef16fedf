package domain

import (
	"context"
	"time"
)

// TransactionView provides read-only access to the benchmark tables. Every
// persistence backend serves these lookups from a consistent snapshot.
type TransactionView interface {
	FindNetwork(id int64) (Network, error)
	FindAlgorithm(id int64) (Algorithm, error)
	FindSystemConfig(id int64) (SystemConfig, error)
	FindExperiment(id int64) (Experiment, error)
	FindVisualization(id int64) (Visualization, error)
	ListNetworks(filter NetworkFilter) ([]Network, error)
	ListAlgorithms(filter AlgorithmFilter) ([]Algorithm, error)
	ListSystemConfigs() ([]SystemConfig, error)
	ListExperiments(filter ExperimentFilter) ([]Experiment, error)
	ListVisualizations(filter VisualizationFilter) ([]Visualization, error)
	AlgorithmPerformance() ([]AlgorithmPerformance, error)
}

// Transaction exposes the append operations a persistence implementation must
// support within an atomic scope. There are deliberately no update or delete
// operations: catalogs and experiments are append-only history.
type Transaction interface {
	TransactionView
	InsertNetwork(Network) (Network, error)
	InsertAlgorithm(Algorithm) (Algorithm, error)
	InsertSystemConfig(SystemConfig) (SystemConfig, error)
	InsertExperiment(Experiment) (Experiment, error)
	InsertVisualization(Visualization) (Visualization, error)
}

// PersistentStore is the abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	Close() error
}

// NetworkFilter selects networks by size (served by the node/edge count index).
// Bounds are inclusive; nil means unbounded.
type NetworkFilter struct {
	MinNodes *int64
	MaxNodes *int64
	MinEdges *int64
	MaxEdges *int64
}

// Matches reports whether the network satisfies the filter.
func (f NetworkFilter) Matches(n Network) bool {
	if f.MinNodes != nil && n.NodeCount < *f.MinNodes {
		return false
	}
	if f.MaxNodes != nil && n.NodeCount > *f.MaxNodes {
		return false
	}
	if f.MinEdges != nil && n.EdgeCount < *f.MinEdges {
		return false
	}
	if f.MaxEdges != nil && n.EdgeCount > *f.MaxEdges {
		return false
	}
	return true
}

// AlgorithmFilter selects algorithms by category; empty matches all.
type AlgorithmFilter struct {
	Category string
}

// Matches reports whether the algorithm satisfies the filter.
func (f AlgorithmFilter) Matches(a Algorithm) bool {
	return f.Category == "" || a.Category == f.Category
}

// ExperimentFilter selects experiments by any foreign key and by a
// run_datetime window [RunFrom, RunTo). Bounds are compared at the stored
// microsecond precision.
type ExperimentFilter struct {
	NetworkID      *int64
	AlgorithmID    *int64
	SystemConfigID *int64
	RunFrom        *time.Time
	RunTo          *time.Time
	SuccessOnly    bool
}

// Matches reports whether the experiment satisfies the filter.
func (f ExperimentFilter) Matches(e Experiment) bool {
	if f.NetworkID != nil && e.NetworkID != *f.NetworkID {
		return false
	}
	if f.AlgorithmID != nil && e.AlgorithmID != *f.AlgorithmID {
		return false
	}
	if f.SystemConfigID != nil && e.SystemConfigID != *f.SystemConfigID {
		return false
	}
	if f.RunFrom != nil && e.RunDatetime.Before(NormalizeTime(*f.RunFrom)) {
		return false
	}
	if f.RunTo != nil && !e.RunDatetime.Before(NormalizeTime(*f.RunTo)) {
		return false
	}
	if f.SuccessOnly && !e.Success {
		return false
	}
	return true
}

// VisualizationFilter selects visualizations of one network; nil matches all.
type VisualizationFilter struct {
	NetworkID *int64
}

// Matches reports whether the visualization satisfies the filter.
func (f VisualizationFilter) Matches(v Visualization) bool {
	return f.NetworkID == nil || v.NetworkID == *f.NetworkID
}
