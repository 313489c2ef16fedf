package memory

import (
	"errors"
	"sort"

	"spectrabench/pkg/domain"
)

var errStoreClosed = errors.New("memory store closed")

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

// findByID binary searches an id-ordered table.
func findByID[T any](rows []T, id int64, key func(T) int64) (T, bool) {
	i := sort.Search(len(rows), func(i int) bool { return key(rows[i]) >= id })
	if i < len(rows) && key(rows[i]) == id {
		return rows[i], true
	}
	var zero T
	return zero, false
}

func networkID(n Network) int64             { return n.ID }
func algorithmID(a Algorithm) int64         { return a.ID }
func systemConfigID(c SystemConfig) int64   { return c.ID }
func experimentID(e Experiment) int64       { return e.ID }
func visualizationID(v Visualization) int64 { return v.ID }

// FindNetwork returns the network with the given id.
func (v transactionView) FindNetwork(id int64) (Network, error) {
	n, ok := findByID(v.state.networks, id, networkID)
	if !ok {
		return Network{}, domain.NotFoundError{Entity: domain.EntityNetwork, ID: id}
	}
	return cloneNetwork(n), nil
}

// FindAlgorithm returns the algorithm with the given id.
func (v transactionView) FindAlgorithm(id int64) (Algorithm, error) {
	a, ok := findByID(v.state.algorithms, id, algorithmID)
	if !ok {
		return Algorithm{}, domain.NotFoundError{Entity: domain.EntityAlgorithm, ID: id}
	}
	return cloneAlgorithm(a), nil
}

// FindSystemConfig returns the system configuration with the given id.
func (v transactionView) FindSystemConfig(id int64) (SystemConfig, error) {
	c, ok := findByID(v.state.systemConfigs, id, systemConfigID)
	if !ok {
		return SystemConfig{}, domain.NotFoundError{Entity: domain.EntitySystemConfig, ID: id}
	}
	return cloneSystemConfig(c), nil
}

// FindExperiment returns the experiment with the given id.
func (v transactionView) FindExperiment(id int64) (Experiment, error) {
	e, ok := findByID(v.state.experiments, id, experimentID)
	if !ok {
		return Experiment{}, domain.NotFoundError{Entity: domain.EntityExperiment, ID: id}
	}
	return cloneExperiment(e), nil
}

// FindVisualization returns the visualization with the given id.
func (v transactionView) FindVisualization(id int64) (Visualization, error) {
	viz, ok := findByID(v.state.visualizations, id, visualizationID)
	if !ok {
		return Visualization{}, domain.NotFoundError{Entity: domain.EntityVisualization, ID: id}
	}
	return cloneVisualization(viz), nil
}

// ListNetworks returns matching networks ordered by id.
func (v transactionView) ListNetworks(filter domain.NetworkFilter) ([]Network, error) {
	out := make([]Network, 0)
	for _, n := range v.state.networks {
		if filter.Matches(n) {
			out = append(out, cloneNetwork(n))
		}
	}
	return out, nil
}

// ListAlgorithms returns matching algorithms ordered by id.
func (v transactionView) ListAlgorithms(filter domain.AlgorithmFilter) ([]Algorithm, error) {
	out := make([]Algorithm, 0)
	for _, a := range v.state.algorithms {
		if filter.Matches(a) {
			out = append(out, cloneAlgorithm(a))
		}
	}
	return out, nil
}

// ListSystemConfigs returns every system configuration ordered by id.
func (v transactionView) ListSystemConfigs() ([]SystemConfig, error) {
	out := make([]SystemConfig, 0, len(v.state.systemConfigs))
	for _, c := range v.state.systemConfigs {
		out = append(out, cloneSystemConfig(c))
	}
	return out, nil
}

// ListExperiments returns matching experiments ordered by id.
func (v transactionView) ListExperiments(filter domain.ExperimentFilter) ([]Experiment, error) {
	out := make([]Experiment, 0)
	for _, e := range v.state.experiments {
		if filter.Matches(e) {
			out = append(out, cloneExperiment(e))
		}
	}
	return out, nil
}

// ListVisualizations returns matching visualizations ordered by id.
func (v transactionView) ListVisualizations(filter domain.VisualizationFilter) ([]Visualization, error) {
	out := make([]Visualization, 0)
	for _, viz := range v.state.visualizations {
		if filter.Matches(viz) {
			out = append(out, cloneVisualization(viz))
		}
	}
	return out, nil
}

// AlgorithmPerformance recomputes the summary view from the snapshot.
func (v transactionView) AlgorithmPerformance() ([]domain.AlgorithmPerformance, error) {
	return domain.ComputeAlgorithmPerformance(v.state.networks, v.state.algorithms, v.state.experiments), nil
}
