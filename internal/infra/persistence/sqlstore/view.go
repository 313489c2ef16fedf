package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"spectrabench/pkg/domain"
)

const (
	networkColumns = `id, name, source, source_url, network_type, is_directed, is_weighted,
node_count, edge_count, description, generation_params, created_at, file_path`
	algorithmColumns = `id, name, category, implementation, version, method_details,
parameters, description, created_at`
	systemConfigColumns = `id, python_version, numpy_version, scipy_version, networkx_version,
cpu_info, memory_gb, gpu_info, colab_runtime_type, created_at`
	experimentColumns = `id, network_id, algorithm_id, system_config_id, run_datetime,
runtime_seconds, memory_peak_mb, cpu_percent_avg, converged, iterations, tolerance_achieved,
numerical_error, eigenvalues, eigenvectors_path, spectral_gap, spectral_radius,
algebraic_connectivity, success, error_message, condition_number, rank_estimate`
	visualizationColumns = `id, network_id, layout_algorithm, image_format, image_blob,
image_path, width, height, layout_params, created_at`
	performanceColumns = `network_id, algorithm_id, network_name, node_count, edge_count,
algorithm_name, category, avg_runtime, runtime_std, avg_memory, run_count, success_rate`
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// view serves TransactionView reads from a single database transaction.
type view struct {
	ctx context.Context
	q   queryer
	d   Dialect
}

// where accumulates conditions and their arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func find[T any](v view, entity domain.EntityType, query string, id int64, scan func(rowScanner) (T, error)) (T, error) {
	item, err := scan(v.q.QueryRowContext(v.ctx, v.d.Rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, domain.NotFoundError{Entity: entity, ID: id}
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: find %s %d: %w", v.d.Name, entity, id, err)
	}
	return item, nil
}

func list[T any](v view, entity domain.EntityType, query string, args []any, scan func(rowScanner) (T, error)) ([]T, error) {
	rows, err := v.q.QueryContext(v.ctx, v.d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: list %s: %w", v.d.Name, entity, err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan %s: %w", v.d.Name, entity, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: list %s: %w", v.d.Name, entity, err)
	}
	return out, nil
}

func (v view) exists(table string, id int64) (bool, error) {
	var one int
	err := v.q.QueryRowContext(v.ctx, v.d.Rebind("SELECT 1 FROM "+table+" WHERE id = ?"), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: lookup %s %d: %w", v.d.Name, table, id, err)
	}
	return true, nil
}

func scanNetwork(r rowScanner) (domain.Network, error) {
	var (
		n                                      domain.Network
		sourceURL, networkType, desc, filePath sql.NullString
		isDirected, isWeighted                 sql.NullBool
		params                                 jsonValue
		created                                timeValue
	)
	if err := r.Scan(&n.ID, &n.Name, &n.Source, &sourceURL, &networkType, &isDirected, &isWeighted,
		&n.NodeCount, &n.EdgeCount, &desc, &params, &created, &filePath); err != nil {
		return domain.Network{}, err
	}
	doc, err := domain.UnmarshalDocument(params.Raw)
	if err != nil {
		return domain.Network{}, err
	}
	n.SourceURL = stringPtr(sourceURL)
	n.NetworkType = stringPtr(networkType)
	n.IsDirected = isDirected.Bool
	n.IsWeighted = isWeighted.Bool
	n.Description = stringPtr(desc)
	n.GenerationParams = doc
	n.CreatedAt = created.Time
	n.FilePath = stringPtr(filePath)
	return n, nil
}

func scanAlgorithm(r rowScanner) (domain.Algorithm, error) {
	var (
		a                     domain.Algorithm
		version, method, desc sql.NullString
		params                jsonValue
		created               timeValue
	)
	if err := r.Scan(&a.ID, &a.Name, &a.Category, &a.Implementation, &version, &method,
		&params, &desc, &created); err != nil {
		return domain.Algorithm{}, err
	}
	doc, err := domain.UnmarshalDocument(params.Raw)
	if err != nil {
		return domain.Algorithm{}, err
	}
	a.Version = stringPtr(version)
	a.MethodDetails = stringPtr(method)
	a.Parameters = doc
	a.Description = stringPtr(desc)
	a.CreatedAt = created.Time
	return a, nil
}

func scanSystemConfig(r rowScanner) (domain.SystemConfig, error) {
	var (
		c                                   domain.SystemConfig
		python, numpy, scipy, networkx, cpu sql.NullString
		gpu, runtime                        sql.NullString
		memory                              sql.NullFloat64
		created                             timeValue
	)
	if err := r.Scan(&c.ID, &python, &numpy, &scipy, &networkx, &cpu, &memory, &gpu, &runtime, &created); err != nil {
		return domain.SystemConfig{}, err
	}
	c.PythonVersion = stringPtr(python)
	c.NumpyVersion = stringPtr(numpy)
	c.ScipyVersion = stringPtr(scipy)
	c.NetworkxVersion = stringPtr(networkx)
	c.CPUInfo = stringPtr(cpu)
	c.MemoryGB = floatPtr(memory)
	c.GPUInfo = stringPtr(gpu)
	c.ColabRuntimeType = stringPtr(runtime)
	c.CreatedAt = created.Time
	return c, nil
}

func scanExperiment(r rowScanner) (domain.Experiment, error) {
	var (
		e                                       domain.Experiment
		runAt                                   timeValue
		runtime, memory, cpu, tolerance, numErr sql.NullFloat64
		gap, radius, connectivity, condition    sql.NullFloat64
		converged                               sql.NullBool
		iterations, rank                        sql.NullInt64
		eigenvalues                             jsonValue
		vectorsPath, errMsg                     sql.NullString
		success                                 sql.NullBool
	)
	if err := r.Scan(&e.ID, &e.NetworkID, &e.AlgorithmID, &e.SystemConfigID, &runAt,
		&runtime, &memory, &cpu, &converged, &iterations, &tolerance,
		&numErr, &eigenvalues, &vectorsPath, &gap, &radius,
		&connectivity, &success, &errMsg, &condition, &rank); err != nil {
		return domain.Experiment{}, err
	}
	values, err := domain.UnmarshalEigenvalues(eigenvalues.Raw)
	if err != nil {
		return domain.Experiment{}, err
	}
	e.RunDatetime = runAt.Time
	e.RuntimeSeconds = floatPtr(runtime)
	e.MemoryPeakMB = floatPtr(memory)
	e.CPUPercentAvg = floatPtr(cpu)
	e.Converged = boolPtr(converged)
	e.Iterations = intPtr(iterations)
	e.ToleranceAchieved = floatPtr(tolerance)
	e.NumericalError = floatPtr(numErr)
	e.Eigenvalues = values
	e.EigenvectorsPath = stringPtr(vectorsPath)
	e.SpectralGap = floatPtr(gap)
	e.SpectralRadius = floatPtr(radius)
	e.AlgebraicConnectivity = floatPtr(connectivity)
	e.Success = success.Bool
	e.ErrorMessage = stringPtr(errMsg)
	e.ConditionNumber = floatPtr(condition)
	e.RankEstimate = intPtr(rank)
	return e, nil
}

func scanVisualization(r rowScanner) (domain.Visualization, error) {
	var (
		v             domain.Visualization
		blob          []byte
		path          sql.NullString
		width, height sql.NullInt64
		params        jsonValue
		created       timeValue
	)
	if err := r.Scan(&v.ID, &v.NetworkID, &v.LayoutAlgorithm, &v.ImageFormat, &blob,
		&path, &width, &height, &params, &created); err != nil {
		return domain.Visualization{}, err
	}
	doc, err := domain.UnmarshalDocument(params.Raw)
	if err != nil {
		return domain.Visualization{}, err
	}
	if len(blob) > 0 {
		v.ImageBlob = blob
	}
	v.ImagePath = stringPtr(path)
	v.Width = intPtr(width)
	v.Height = intPtr(height)
	v.LayoutParams = doc
	v.CreatedAt = created.Time
	return v, nil
}

func scanPerformance(r rowScanner) (domain.AlgorithmPerformance, error) {
	var (
		p                          domain.AlgorithmPerformance
		avgRuntime, std, avgMemory sql.NullFloat64
		rate                       sql.NullFloat64
	)
	if err := r.Scan(&p.NetworkID, &p.AlgorithmID, &p.NetworkName, &p.NodeCount, &p.EdgeCount,
		&p.AlgorithmName, &p.Category, &avgRuntime, &std, &avgMemory, &p.RunCount, &rate); err != nil {
		return domain.AlgorithmPerformance{}, err
	}
	p.AvgRuntime = floatPtr(avgRuntime)
	p.RuntimeStd = floatPtr(std)
	p.AvgMemory = floatPtr(avgMemory)
	p.SuccessRate = rate.Float64
	return p, nil
}

// FindNetwork returns the network with the given id.
func (v view) FindNetwork(id int64) (domain.Network, error) {
	return find(v, domain.EntityNetwork, "SELECT "+networkColumns+" FROM networks WHERE id = ?", id, scanNetwork)
}

// FindAlgorithm returns the algorithm with the given id.
func (v view) FindAlgorithm(id int64) (domain.Algorithm, error) {
	return find(v, domain.EntityAlgorithm, "SELECT "+algorithmColumns+" FROM algorithms WHERE id = ?", id, scanAlgorithm)
}

// FindSystemConfig returns the system configuration with the given id.
func (v view) FindSystemConfig(id int64) (domain.SystemConfig, error) {
	return find(v, domain.EntitySystemConfig, "SELECT "+systemConfigColumns+" FROM system_configs WHERE id = ?", id, scanSystemConfig)
}

// FindExperiment returns the experiment with the given id.
func (v view) FindExperiment(id int64) (domain.Experiment, error) {
	return find(v, domain.EntityExperiment, "SELECT "+experimentColumns+" FROM experiments WHERE id = ?", id, scanExperiment)
}

// FindVisualization returns the visualization with the given id.
func (v view) FindVisualization(id int64) (domain.Visualization, error) {
	return find(v, domain.EntityVisualization, "SELECT "+visualizationColumns+" FROM visualizations WHERE id = ?", id, scanVisualization)
}

// ListNetworks filters on node and edge counts (idx_networks_size).
func (v view) ListNetworks(filter domain.NetworkFilter) ([]domain.Network, error) {
	var w where
	if filter.MinNodes != nil {
		w.add("node_count >= ?", *filter.MinNodes)
	}
	if filter.MaxNodes != nil {
		w.add("node_count <= ?", *filter.MaxNodes)
	}
	if filter.MinEdges != nil {
		w.add("edge_count >= ?", *filter.MinEdges)
	}
	if filter.MaxEdges != nil {
		w.add("edge_count <= ?", *filter.MaxEdges)
	}
	return list(v, domain.EntityNetwork, "SELECT "+networkColumns+" FROM networks"+w.String()+" ORDER BY id", w.args, scanNetwork)
}

// ListAlgorithms filters on category (idx_algorithms_category).
func (v view) ListAlgorithms(filter domain.AlgorithmFilter) ([]domain.Algorithm, error) {
	var w where
	if filter.Category != "" {
		w.add("category = ?", filter.Category)
	}
	return list(v, domain.EntityAlgorithm, "SELECT "+algorithmColumns+" FROM algorithms"+w.String()+" ORDER BY id", w.args, scanAlgorithm)
}

// ListSystemConfigs returns every system configuration ordered by id.
func (v view) ListSystemConfigs() ([]domain.SystemConfig, error) {
	return list(v, domain.EntitySystemConfig, "SELECT "+systemConfigColumns+" FROM system_configs ORDER BY id", nil, scanSystemConfig)
}

// ListExperiments filters on foreign keys and the run_datetime window.
func (v view) ListExperiments(filter domain.ExperimentFilter) ([]domain.Experiment, error) {
	var w where
	if filter.NetworkID != nil {
		w.add("network_id = ?", *filter.NetworkID)
	}
	if filter.AlgorithmID != nil {
		w.add("algorithm_id = ?", *filter.AlgorithmID)
	}
	if filter.SystemConfigID != nil {
		w.add("system_config_id = ?", *filter.SystemConfigID)
	}
	if filter.RunFrom != nil {
		w.add("run_datetime >= ?", v.d.encodeTime(domain.NormalizeTime(*filter.RunFrom)))
	}
	if filter.RunTo != nil {
		w.add("run_datetime < ?", v.d.encodeTime(domain.NormalizeTime(*filter.RunTo)))
	}
	if filter.SuccessOnly {
		w.add("success = ?", true)
	}
	return list(v, domain.EntityExperiment, "SELECT "+experimentColumns+" FROM experiments"+w.String()+" ORDER BY id", w.args, scanExperiment)
}

// ListVisualizations returns visualizations, optionally of one network.
func (v view) ListVisualizations(filter domain.VisualizationFilter) ([]domain.Visualization, error) {
	var w where
	if filter.NetworkID != nil {
		w.add("network_id = ?", *filter.NetworkID)
	}
	return list(v, domain.EntityVisualization, "SELECT "+visualizationColumns+" FROM visualizations"+w.String()+" ORDER BY id", w.args, scanVisualization)
}

// AlgorithmPerformance reads the algorithm_performance view.
func (v view) AlgorithmPerformance() ([]domain.AlgorithmPerformance, error) {
	return list(v, "algorithm_performance", "SELECT "+performanceColumns+" FROM algorithm_performance ORDER BY network_id, algorithm_id", nil, scanPerformance)
}
