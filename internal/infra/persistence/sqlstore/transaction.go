package sqlstore

import (
	"fmt"
	"strings"
	"time"

	"spectrabench/pkg/domain"
)

// transaction appends rows inside one database transaction.
type transaction struct {
	view
	changes []domain.Change
	now     time.Time
}

func (tx *transaction) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return tx.now
	}
	return domain.NormalizeTime(t)
}

// insert runs INSERT ... RETURNING id for the given columns.
func (tx *transaction) insert(entity domain.EntityType, table string, columns []string, args []any) (int64, error) {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id", table, strings.Join(columns, ", "), marks)
	var id int64
	if err := tx.q.QueryRowContext(tx.ctx, tx.d.Rebind(query), args...).Scan(&id); err != nil {
		return 0, translate(tx.d, entity, err)
	}
	return id, nil
}

// requireRow reports a foreign key violation on field when table has no row id.
func (tx *transaction) requireRow(entity domain.EntityType, field, table string, id int64) error {
	ok, err := tx.exists(table, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewForeignKeyViolation(entity, field, id)
	}
	return nil
}

func (tx *transaction) record(entity domain.EntityType, id int64, after any) {
	tx.changes = append(tx.changes, domain.Change{Entity: entity, Action: domain.ActionCreate, EntityID: id, After: after})
}

// InsertNetwork appends a network and assigns its identity.
func (tx *transaction) InsertNetwork(n domain.Network) (domain.Network, error) {
	if err := n.Validate(); err != nil {
		return domain.Network{}, err
	}
	params, err := domain.MarshalDocument(n.GenerationParams)
	if err != nil {
		return domain.Network{}, err
	}
	n.CreatedAt = tx.stamp(n.CreatedAt)
	id, err := tx.insert(domain.EntityNetwork, "networks",
		[]string{"name", "source", "source_url", "network_type", "is_directed", "is_weighted",
			"node_count", "edge_count", "description", "generation_params", "created_at", "file_path"},
		[]any{n.Name, n.Source, arg(n.SourceURL), arg(n.NetworkType), n.IsDirected, n.IsWeighted,
			n.NodeCount, n.EdgeCount, arg(n.Description), jsonArg(params), tx.d.encodeTime(n.CreatedAt), arg(n.FilePath)})
	if err != nil {
		return domain.Network{}, err
	}
	n.ID = id
	tx.record(domain.EntityNetwork, id, n)
	return n, nil
}

// InsertAlgorithm appends an algorithm and assigns its identity.
func (tx *transaction) InsertAlgorithm(a domain.Algorithm) (domain.Algorithm, error) {
	if err := a.Validate(); err != nil {
		return domain.Algorithm{}, err
	}
	params, err := domain.MarshalDocument(a.Parameters)
	if err != nil {
		return domain.Algorithm{}, err
	}
	a.CreatedAt = tx.stamp(a.CreatedAt)
	id, err := tx.insert(domain.EntityAlgorithm, "algorithms",
		[]string{"name", "category", "implementation", "version", "method_details", "parameters", "description", "created_at"},
		[]any{a.Name, a.Category, a.Implementation, arg(a.Version), arg(a.MethodDetails), jsonArg(params),
			arg(a.Description), tx.d.encodeTime(a.CreatedAt)})
	if err != nil {
		return domain.Algorithm{}, err
	}
	a.ID = id
	tx.record(domain.EntityAlgorithm, id, a)
	return a, nil
}

// InsertSystemConfig appends a system configuration and assigns its identity.
func (tx *transaction) InsertSystemConfig(c domain.SystemConfig) (domain.SystemConfig, error) {
	if err := c.Validate(); err != nil {
		return domain.SystemConfig{}, err
	}
	c.CreatedAt = tx.stamp(c.CreatedAt)
	id, err := tx.insert(domain.EntitySystemConfig, "system_configs",
		[]string{"python_version", "numpy_version", "scipy_version", "networkx_version", "cpu_info",
			"memory_gb", "gpu_info", "colab_runtime_type", "created_at"},
		[]any{arg(c.PythonVersion), arg(c.NumpyVersion), arg(c.ScipyVersion), arg(c.NetworkxVersion), arg(c.CPUInfo),
			arg(c.MemoryGB), arg(c.GPUInfo), arg(c.ColabRuntimeType), tx.d.encodeTime(c.CreatedAt)})
	if err != nil {
		return domain.SystemConfig{}, err
	}
	c.ID = id
	tx.record(domain.EntitySystemConfig, id, c)
	return c, nil
}

// InsertExperiment appends an experiment after checking its three references.
func (tx *transaction) InsertExperiment(e domain.Experiment) (domain.Experiment, error) {
	if err := e.Validate(); err != nil {
		return domain.Experiment{}, err
	}
	if err := tx.requireRow(domain.EntityExperiment, "network_id", "networks", e.NetworkID); err != nil {
		return domain.Experiment{}, err
	}
	if err := tx.requireRow(domain.EntityExperiment, "algorithm_id", "algorithms", e.AlgorithmID); err != nil {
		return domain.Experiment{}, err
	}
	if err := tx.requireRow(domain.EntityExperiment, "system_config_id", "system_configs", e.SystemConfigID); err != nil {
		return domain.Experiment{}, err
	}
	values, err := domain.MarshalEigenvalues(e.Eigenvalues)
	if err != nil {
		return domain.Experiment{}, err
	}
	e.RunDatetime = tx.stamp(e.RunDatetime)
	id, err := tx.insert(domain.EntityExperiment, "experiments",
		[]string{"network_id", "algorithm_id", "system_config_id", "run_datetime",
			"runtime_seconds", "memory_peak_mb", "cpu_percent_avg", "converged", "iterations", "tolerance_achieved",
			"numerical_error", "eigenvalues", "eigenvectors_path", "spectral_gap", "spectral_radius",
			"algebraic_connectivity", "success", "error_message", "condition_number", "rank_estimate"},
		[]any{e.NetworkID, e.AlgorithmID, e.SystemConfigID, tx.d.encodeTime(e.RunDatetime),
			arg(e.RuntimeSeconds), arg(e.MemoryPeakMB), arg(e.CPUPercentAvg), arg(e.Converged), arg(e.Iterations), arg(e.ToleranceAchieved),
			arg(e.NumericalError), jsonArg(values), arg(e.EigenvectorsPath), arg(e.SpectralGap), arg(e.SpectralRadius),
			arg(e.AlgebraicConnectivity), e.Success, arg(e.ErrorMessage), arg(e.ConditionNumber), arg(e.RankEstimate)})
	if err != nil {
		return domain.Experiment{}, err
	}
	e.ID = id
	tx.record(domain.EntityExperiment, id, e)
	return e, nil
}

// InsertVisualization appends a visualization of an existing network.
func (tx *transaction) InsertVisualization(v domain.Visualization) (domain.Visualization, error) {
	v = v.WithDefaults()
	if err := v.Validate(); err != nil {
		return domain.Visualization{}, err
	}
	if err := tx.requireRow(domain.EntityVisualization, "network_id", "networks", v.NetworkID); err != nil {
		return domain.Visualization{}, err
	}
	params, err := domain.MarshalDocument(v.LayoutParams)
	if err != nil {
		return domain.Visualization{}, err
	}
	v.CreatedAt = tx.stamp(v.CreatedAt)
	id, err := tx.insert(domain.EntityVisualization, "visualizations",
		[]string{"network_id", "layout_algorithm", "image_format", "image_blob", "image_path",
			"width", "height", "layout_params", "created_at"},
		[]any{v.NetworkID, v.LayoutAlgorithm, v.ImageFormat, blobArg(v.ImageBlob), arg(v.ImagePath),
			arg(v.Width), arg(v.Height), jsonArg(params), tx.d.encodeTime(v.CreatedAt)})
	if err != nil {
		return domain.Visualization{}, err
	}
	v.ID = id
	tx.record(domain.EntityVisualization, id, v)
	return v, nil
}
