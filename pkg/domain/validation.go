package domain

import (
	"math"
	"strings"
)

var requiredColumns = map[EntityType][]string{
	EntityNetwork:       {"name", "source", "is_directed", "is_weighted", "node_count", "edge_count"},
	EntityAlgorithm:     {"name", "category", "implementation"},
	EntitySystemConfig:  nil,
	EntityExperiment:    {"network_id", "algorithm_id", "system_config_id", "success"},
	EntityVisualization: {"network_id", "layout_algorithm"},
}

// CheckRequiredColumns reports the first non-nullable column of entity, in
// table order, for which present returns false. Columns with defaults (id,
// timestamps, image_format) are never required.
func CheckRequiredColumns(entity EntityType, present func(column string) bool) error {
	for _, col := range requiredColumns[entity] {
		if !present(col) {
			return violation(entity, col, ErrMissingRequiredField, "")
		}
	}
	return nil
}

// Validate checks the network against the networks table contract.
func (n Network) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return violation(EntityNetwork, "name", ErrMissingRequiredField, "")
	}
	if strings.TrimSpace(n.Source) == "" {
		return violation(EntityNetwork, "source", ErrMissingRequiredField, "")
	}
	if n.NodeCount < 0 {
		return violation(EntityNetwork, "node_count", ErrTypeMismatch, "must be non-negative")
	}
	if n.EdgeCount < 0 {
		return violation(EntityNetwork, "edge_count", ErrTypeMismatch, "must be non-negative")
	}
	if _, err := MarshalDocument(n.GenerationParams); err != nil {
		return violation(EntityNetwork, "generation_params", ErrTypeMismatch, err.Error())
	}
	return nil
}

// Validate checks the algorithm against the algorithms table contract.
func (a Algorithm) Validate() error {
	for _, f := range []struct {
		name  string
		value string
	}{{"name", a.Name}, {"category", a.Category}, {"implementation", a.Implementation}} {
		if strings.TrimSpace(f.value) == "" {
			return violation(EntityAlgorithm, f.name, ErrMissingRequiredField, "")
		}
	}
	if _, err := MarshalDocument(a.Parameters); err != nil {
		return violation(EntityAlgorithm, "parameters", ErrTypeMismatch, err.Error())
	}
	return nil
}

// Validate checks the system configuration. All fields are optional; only
// the memory size is range checked.
func (c SystemConfig) Validate() error {
	if c.MemoryGB != nil && (!finite(*c.MemoryGB) || *c.MemoryGB < 0) {
		return violation(EntitySystemConfig, "memory_gb", ErrTypeMismatch, "must be a non-negative number")
	}
	return nil
}

// Validate checks the experiment's own fields. Foreign-key existence is the
// store's responsibility.
//
// Successful runs may not carry an error message, and inline eigenvalues are
// mutually exclusive with an external eigenvector reference. Failed runs
// without a message are accepted here and surfaced by AuditExperiment.
func (e Experiment) Validate() error {
	refs := []struct {
		name string
		id   int64
	}{{"network_id", e.NetworkID}, {"algorithm_id", e.AlgorithmID}, {"system_config_id", e.SystemConfigID}}
	for _, ref := range refs {
		if ref.id == 0 {
			return violation(EntityExperiment, ref.name, ErrMissingRequiredField, "")
		}
	}
	reals := []struct {
		name  string
		value *float64
	}{
		{"runtime_seconds", e.RuntimeSeconds},
		{"memory_peak_mb", e.MemoryPeakMB},
		{"cpu_percent_avg", e.CPUPercentAvg},
		{"tolerance_achieved", e.ToleranceAchieved},
		{"numerical_error", e.NumericalError},
		{"spectral_gap", e.SpectralGap},
		{"spectral_radius", e.SpectralRadius},
		{"algebraic_connectivity", e.AlgebraicConnectivity},
		{"condition_number", e.ConditionNumber},
	}
	for _, r := range reals {
		if r.value != nil && !finite(*r.value) {
			return violation(EntityExperiment, r.name, ErrTypeMismatch, "must be finite")
		}
	}
	for _, r := range reals[:2] {
		if r.value != nil && *r.value < 0 {
			return violation(EntityExperiment, r.name, ErrTypeMismatch, "must be non-negative")
		}
	}
	if e.Iterations != nil && *e.Iterations < 0 {
		return violation(EntityExperiment, "iterations", ErrTypeMismatch, "must be non-negative")
	}
	if e.RankEstimate != nil && *e.RankEstimate < 0 {
		return violation(EntityExperiment, "rank_estimate", ErrTypeMismatch, "must be non-negative")
	}
	if _, err := MarshalEigenvalues(e.Eigenvalues); err != nil {
		return violation(EntityExperiment, "eigenvalues", ErrTypeMismatch, err.Error())
	}
	if len(e.Eigenvalues) > 0 && e.EigenvectorsPath != nil {
		return violation(EntityExperiment, "eigenvectors_path", ErrPolicyViolation, "eigenvalues and eigenvectors_path are mutually exclusive")
	}
	if e.Success && e.ErrorMessage != nil {
		return violation(EntityExperiment, "error_message", ErrPolicyViolation, "successful runs carry no error message")
	}
	return nil
}

// Validate checks the visualization. Both image fields may be absent while the
// artifact is not yet materialized, but never both present.
func (v Visualization) Validate() error {
	if v.NetworkID == 0 {
		return violation(EntityVisualization, "network_id", ErrMissingRequiredField, "")
	}
	if strings.TrimSpace(v.LayoutAlgorithm) == "" {
		return violation(EntityVisualization, "layout_algorithm", ErrMissingRequiredField, "")
	}
	if v.Width != nil && *v.Width < 0 {
		return violation(EntityVisualization, "width", ErrTypeMismatch, "must be non-negative")
	}
	if v.Height != nil && *v.Height < 0 {
		return violation(EntityVisualization, "height", ErrTypeMismatch, "must be non-negative")
	}
	if len(v.ImageBlob) > 0 && v.ImagePath != nil {
		return violation(EntityVisualization, "image_path", ErrPolicyViolation, "image_blob and image_path are mutually exclusive")
	}
	if _, err := MarshalDocument(v.LayoutParams); err != nil {
		return violation(EntityVisualization, "layout_params", ErrTypeMismatch, err.Error())
	}
	return nil
}

// WithDefaults fills image_format when the writer left it empty.
func (v Visualization) WithDefaults() Visualization {
	if strings.TrimSpace(v.ImageFormat) == "" {
		v.ImageFormat = DefaultImageFormat
	}
	return v
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
