package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Audit rule names reported in Violation.Rule.
const (
	RuleFailedWithoutMessage        = "failed_without_error_message"
	RuleSuccessMissingRuntime       = "success_missing_runtime"
	RuleSuccessMissingResults       = "success_missing_category_results"
	RuleIterativeMissingConvergence = "iterative_missing_convergence"
)

const experimentAuditRuleName = "experiment_audit"

// AuditExperiment applies harness-level checks that the schema itself does not
// enforce. Findings never block a commit; they flag rows that are legal to
// store but probably incomplete. The algorithm is used to decide which result
// fields a successful run of its category should populate.
func AuditExperiment(exp Experiment, alg Algorithm) []Violation {
	var out []Violation
	add := func(rule string, sev Severity, msg string) {
		out = append(out, Violation{Rule: rule, Severity: sev, Message: msg, Entity: EntityExperiment, EntityID: exp.ID})
	}
	if !exp.Success {
		if exp.ErrorMessage == nil || strings.TrimSpace(*exp.ErrorMessage) == "" {
			add(RuleFailedWithoutMessage, SeverityWarn, "failed run has no error_message")
		}
		return out
	}
	if exp.RuntimeSeconds == nil {
		add(RuleSuccessMissingRuntime, SeverityWarn, "successful run has no runtime_seconds")
	}
	if missing := missingCategoryResults(exp, alg.Category); len(missing) > 0 {
		add(RuleSuccessMissingResults, SeverityWarn,
			fmt.Sprintf("category %q expects %s", alg.Category, strings.Join(missing, ", ")))
	}
	if (exp.Iterations != nil || exp.ToleranceAchieved != nil) && exp.Converged == nil {
		add(RuleIterativeMissingConvergence, SeverityLog, "iterative run has no converged flag")
	}
	return out
}

// missingCategoryResults maps well-known algorithm families to the result
// columns they produce. Unknown categories only need some spectral output.
func missingCategoryResults(exp Experiment, category string) []string {
	cat := strings.ToLower(category)
	var missing []string
	matched := false
	if strings.Contains(cat, "gap") {
		matched = true
		if exp.SpectralGap == nil {
			missing = append(missing, "spectral_gap")
		}
	}
	if strings.Contains(cat, "radius") {
		matched = true
		if exp.SpectralRadius == nil {
			missing = append(missing, "spectral_radius")
		}
	}
	if strings.Contains(cat, "connectivity") || strings.Contains(cat, "fiedler") {
		matched = true
		if exp.AlgebraicConnectivity == nil {
			missing = append(missing, "algebraic_connectivity")
		}
	}
	if strings.Contains(cat, "eigen") {
		matched = true
		if len(exp.Eigenvalues) == 0 && exp.EigenvectorsPath == nil {
			missing = append(missing, "eigenvalues or eigenvectors_path")
		}
	}
	if !matched && !hasAnyResult(exp) {
		missing = append(missing, "any spectral result")
	}
	return missing
}

func hasAnyResult(exp Experiment) bool {
	return len(exp.Eigenvalues) > 0 || exp.EigenvectorsPath != nil || exp.SpectralGap != nil ||
		exp.SpectralRadius != nil || exp.AlgebraicConnectivity != nil ||
		exp.ConditionNumber != nil || exp.RankEstimate != nil
}

type experimentAuditRule struct{}

// ExperimentAuditRule runs AuditExperiment over every experiment appended in
// the transaction.
func ExperimentAuditRule() Rule { return experimentAuditRule{} }

func (experimentAuditRule) Name() string { return experimentAuditRuleName }

func (experimentAuditRule) Evaluate(_ context.Context, view TransactionView, changes []Change) (Result, error) {
	var res Result
	for _, change := range changes {
		if change.Entity != EntityExperiment {
			continue
		}
		exp, ok := change.After.(Experiment)
		if !ok {
			continue
		}
		alg, err := view.FindAlgorithm(exp.AlgorithmID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Result{}, err
		}
		res.Violations = append(res.Violations, AuditExperiment(exp, alg)...)
	}
	return res, nil
}
