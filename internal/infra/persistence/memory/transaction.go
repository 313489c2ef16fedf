package memory

import (
	"time"

	"spectrabench/pkg/domain"
)

// transaction appends rows to a private copy of the store state.
type transaction struct {
	transactionView
	working memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(entity domain.EntityType, id int64, after any) {
	tx.changes = append(tx.changes, Change{Entity: entity, Action: domain.ActionCreate, EntityID: id, After: after})
}

func (tx *transaction) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return tx.now
	}
	return domain.NormalizeTime(t)
}

// InsertNetwork appends a network and assigns its identity.
func (tx *transaction) InsertNetwork(n Network) (Network, error) {
	if err := n.Validate(); err != nil {
		return Network{}, err
	}
	n = cloneNetwork(n)
	n.ID = tx.working.allocate(domain.EntityNetwork)
	n.CreatedAt = tx.stamp(n.CreatedAt)
	tx.working.networks = append(tx.working.networks, n)
	tx.recordChange(domain.EntityNetwork, n.ID, cloneNetwork(n))
	return cloneNetwork(n), nil
}

// InsertAlgorithm appends an algorithm and assigns its identity.
func (tx *transaction) InsertAlgorithm(a Algorithm) (Algorithm, error) {
	if err := a.Validate(); err != nil {
		return Algorithm{}, err
	}
	a = cloneAlgorithm(a)
	a.ID = tx.working.allocate(domain.EntityAlgorithm)
	a.CreatedAt = tx.stamp(a.CreatedAt)
	tx.working.algorithms = append(tx.working.algorithms, a)
	tx.recordChange(domain.EntityAlgorithm, a.ID, cloneAlgorithm(a))
	return cloneAlgorithm(a), nil
}

// InsertSystemConfig appends a system configuration and assigns its identity.
func (tx *transaction) InsertSystemConfig(c SystemConfig) (SystemConfig, error) {
	if err := c.Validate(); err != nil {
		return SystemConfig{}, err
	}
	c = cloneSystemConfig(c)
	c.ID = tx.working.allocate(domain.EntitySystemConfig)
	c.CreatedAt = tx.stamp(c.CreatedAt)
	tx.working.systemConfigs = append(tx.working.systemConfigs, c)
	tx.recordChange(domain.EntitySystemConfig, c.ID, cloneSystemConfig(c))
	return cloneSystemConfig(c), nil
}

// InsertExperiment appends an experiment after checking its three references.
func (tx *transaction) InsertExperiment(e Experiment) (Experiment, error) {
	if err := e.Validate(); err != nil {
		return Experiment{}, err
	}
	if _, ok := findByID(tx.working.networks, e.NetworkID, networkID); !ok {
		return Experiment{}, domain.NewForeignKeyViolation(domain.EntityExperiment, "network_id", e.NetworkID)
	}
	if _, ok := findByID(tx.working.algorithms, e.AlgorithmID, algorithmID); !ok {
		return Experiment{}, domain.NewForeignKeyViolation(domain.EntityExperiment, "algorithm_id", e.AlgorithmID)
	}
	if _, ok := findByID(tx.working.systemConfigs, e.SystemConfigID, systemConfigID); !ok {
		return Experiment{}, domain.NewForeignKeyViolation(domain.EntityExperiment, "system_config_id", e.SystemConfigID)
	}
	e = cloneExperiment(e)
	e.ID = tx.working.allocate(domain.EntityExperiment)
	e.RunDatetime = tx.stamp(e.RunDatetime)
	tx.working.experiments = append(tx.working.experiments, e)
	tx.recordChange(domain.EntityExperiment, e.ID, cloneExperiment(e))
	return cloneExperiment(e), nil
}

// InsertVisualization appends a visualization of an existing network.
func (tx *transaction) InsertVisualization(v Visualization) (Visualization, error) {
	v = v.WithDefaults()
	if err := v.Validate(); err != nil {
		return Visualization{}, err
	}
	if _, ok := findByID(tx.working.networks, v.NetworkID, networkID); !ok {
		return Visualization{}, domain.NewForeignKeyViolation(domain.EntityVisualization, "network_id", v.NetworkID)
	}
	v = cloneVisualization(v)
	v.ID = tx.working.allocate(domain.EntityVisualization)
	v.CreatedAt = tx.stamp(v.CreatedAt)
	tx.working.visualizations = append(tx.working.visualizations, v)
	tx.recordChange(domain.EntityVisualization, v.ID, cloneVisualization(v))
	return cloneVisualization(v), nil
}
