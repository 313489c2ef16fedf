// Package domain defines the benchmark records, value types, and rule
// evaluation primitives used by spectrabench.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the benchmark schema.
type EntityType string

// Supported entity type identifiers used in Change records and error reporting.
const (
	// EntityNetwork identifies a network (graph instance) record.
	EntityNetwork EntityType = "network"
	// EntityAlgorithm identifies an algorithm implementation record.
	EntityAlgorithm EntityType = "algorithm"
	// EntitySystemConfig identifies a hardware/software environment record.
	EntitySystemConfig EntityType = "system_config"
	// EntityExperiment identifies a single benchmark run.
	EntityExperiment EntityType = "experiment"
	// EntityVisualization identifies a rendered layout artifact.
	EntityVisualization EntityType = "visualization"
)

// DefaultImageFormat is applied to visualizations that do not name a format.
const DefaultImageFormat = "PNG"

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Network is a catalog entry for a graph instance under study.
type Network struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Source           string    `json:"source"`
	SourceURL        *string   `json:"source_url,omitempty"`
	NetworkType      *string   `json:"network_type,omitempty"`
	IsDirected       bool      `json:"is_directed"`
	IsWeighted       bool      `json:"is_weighted"`
	NodeCount        int64     `json:"node_count"`
	EdgeCount        int64     `json:"edge_count"`
	Description      *string   `json:"description,omitempty"`
	GenerationParams Document  `json:"generation_params,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	FilePath         *string   `json:"file_path,omitempty"`
}

// Algorithm is a catalog entry for one spectral-computation implementation.
type Algorithm struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	Implementation string    `json:"implementation"`
	Version        *string   `json:"version,omitempty"`
	MethodDetails  *string   `json:"method_details,omitempty"`
	Parameters     Document  `json:"parameters,omitempty"`
	Description    *string   `json:"description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SystemConfig snapshots the environment an experiment ran in. Every
// descriptive field is optional.
type SystemConfig struct {
	ID               int64     `json:"id"`
	PythonVersion    *string   `json:"python_version,omitempty"`
	NumpyVersion     *string   `json:"numpy_version,omitempty"`
	ScipyVersion     *string   `json:"scipy_version,omitempty"`
	NetworkxVersion  *string   `json:"networkx_version,omitempty"`
	CPUInfo          *string   `json:"cpu_info,omitempty"`
	MemoryGB         *float64  `json:"memory_gb,omitempty"`
	GPUInfo          *string   `json:"gpu_info,omitempty"`
	ColabRuntimeType *string   `json:"colab_runtime_type,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Experiment is the central fact record: one benchmark run of an algorithm on
// a network in a given environment. Failed runs are recorded with Success set
// to false and the failure described in ErrorMessage.
type Experiment struct {
	ID             int64     `json:"id"`
	NetworkID      int64     `json:"network_id"`
	AlgorithmID    int64     `json:"algorithm_id"`
	SystemConfigID int64     `json:"system_config_id"`
	RunDatetime    time.Time `json:"run_datetime"`

	RuntimeSeconds *float64 `json:"runtime_seconds,omitempty"`
	MemoryPeakMB   *float64 `json:"memory_peak_mb,omitempty"`
	CPUPercentAvg  *float64 `json:"cpu_percent_avg,omitempty"`

	Converged         *bool    `json:"converged,omitempty"`
	Iterations        *int64   `json:"iterations,omitempty"`
	ToleranceAchieved *float64 `json:"tolerance_achieved,omitempty"`
	NumericalError    *float64 `json:"numerical_error,omitempty"`

	Eigenvalues           []float64 `json:"eigenvalues,omitempty"`
	EigenvectorsPath      *string   `json:"eigenvectors_path,omitempty"`
	SpectralGap           *float64  `json:"spectral_gap,omitempty"`
	SpectralRadius        *float64  `json:"spectral_radius,omitempty"`
	AlgebraicConnectivity *float64  `json:"algebraic_connectivity,omitempty"`

	Success      bool    `json:"success"`
	ErrorMessage *string `json:"error_message,omitempty"`

	ConditionNumber *float64 `json:"condition_number,omitempty"`
	RankEstimate    *int64   `json:"rank_estimate,omitempty"`
}

// Visualization is a rendered layout of a network. The image lives either
// inline in ImageBlob or externally at ImagePath.
type Visualization struct {
	ID              int64     `json:"id"`
	NetworkID       int64     `json:"network_id"`
	LayoutAlgorithm string    `json:"layout_algorithm"`
	ImageFormat     string    `json:"image_format"`
	ImageBlob       []byte    `json:"image_blob,omitempty"`
	ImagePath       *string   `json:"image_path,omitempty"`
	Width           *int64    `json:"width,omitempty"`
	Height          *int64    `json:"height,omitempty"`
	LayoutParams    Document  `json:"layout_params,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// AlgorithmPerformance is one row of the derived algorithm_performance view.
type AlgorithmPerformance struct {
	NetworkID     int64    `json:"network_id"`
	AlgorithmID   int64    `json:"algorithm_id"`
	NetworkName   string   `json:"network_name"`
	NodeCount     int64    `json:"node_count"`
	EdgeCount     int64    `json:"edge_count"`
	AlgorithmName string   `json:"algorithm_name"`
	Category      string   `json:"category"`
	AvgRuntime    *float64 `json:"avg_runtime"`
	RuntimeStd    *float64 `json:"runtime_std"`
	AvgMemory     *float64 `json:"avg_memory"`
	RunCount      int64    `json:"run_count"`
	SuccessRate   float64  `json:"success_rate"`
}

// Change describes a record appended during a transaction. Records are never
// updated or removed, so creation is the only action.
type Change struct {
	Entity   EntityType
	Action   Action
	EntityID int64
	After    any
}

// Action indicates the type of modification performed.
type Action string

// ActionCreate indicates an entity was appended.
const ActionCreate Action = "create"

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity"`
	EntityID int64      `json:"entity_id"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}

// Ptr returns a pointer to v; convenient for populating optional fields.
func Ptr[T any](v T) *T {
	return &v
}

// NormalizeTime converts t to UTC at microsecond precision, the finest
// resolution every backend can store.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
