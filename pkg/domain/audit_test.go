package domain

import (
	"context"
	"testing"
)

func rulesOf(vs []Violation) map[string]Severity {
	out := make(map[string]Severity, len(vs))
	for _, v := range vs {
		out[v.Rule] = v.Severity
	}
	return out
}

func TestAuditExperimentFlagsFailedRunWithoutMessage(t *testing.T) {
	exp := Experiment{ID: 9, Success: false}
	got := rulesOf(AuditExperiment(exp, Algorithm{Category: "spectral_gap"}))
	if got[RuleFailedWithoutMessage] != SeverityWarn {
		t.Fatalf("expected warning for failed run without message, got %v", got)
	}
	exp.ErrorMessage = Ptr("ARPACK did not converge")
	if vs := AuditExperiment(exp, Algorithm{}); len(vs) != 0 {
		t.Fatalf("expected no findings for documented failure, got %+v", vs)
	}
}

func TestAuditExperimentCategoryResults(t *testing.T) {
	cases := []struct {
		name     string
		category string
		exp      Experiment
		flagged  bool
	}{
		{"gap present", "spectral_gap", Experiment{SpectralGap: Ptr(0.3)}, false},
		{"gap missing", "spectral_gap", Experiment{SpectralRadius: Ptr(2.0)}, true},
		{"fiedler missing", "fiedler_vector", Experiment{}, true},
		{"connectivity present", "algebraic_connectivity", Experiment{AlgebraicConnectivity: Ptr(0.1)}, false},
		{"eigen via path", "full_eigendecomposition", Experiment{EigenvectorsPath: Ptr("k")}, false},
		{"eigen missing", "top_k_eigen", Experiment{SpectralGap: Ptr(1.0)}, true},
		{"unknown with result", "custom", Experiment{RankEstimate: Ptr(int64(3))}, false},
		{"unknown without result", "custom", Experiment{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exp := tc.exp
			exp.Success = true
			exp.RuntimeSeconds = Ptr(1.0)
			got := rulesOf(AuditExperiment(exp, Algorithm{Category: tc.category}))
			if _, ok := got[RuleSuccessMissingResults]; ok != tc.flagged {
				t.Fatalf("flagged=%v, want %v (%v)", ok, tc.flagged, got)
			}
		})
	}
}

func TestAuditExperimentRuntimeAndConvergence(t *testing.T) {
	exp := Experiment{Success: true, SpectralGap: Ptr(0.2), Iterations: Ptr(int64(40))}
	got := rulesOf(AuditExperiment(exp, Algorithm{Category: "spectral_gap"}))
	if got[RuleSuccessMissingRuntime] != SeverityWarn {
		t.Fatalf("expected missing runtime warning: %v", got)
	}
	if got[RuleIterativeMissingConvergence] != SeverityLog {
		t.Fatalf("expected convergence log finding: %v", got)
	}
}

type algorithmView struct {
	emptyView
	alg Algorithm
}

func (v algorithmView) FindAlgorithm(id int64) (Algorithm, error) {
	if id == v.alg.ID {
		return v.alg, nil
	}
	return v.emptyView.FindAlgorithm(id)
}

func TestExperimentAuditRuleEvaluatesAppendedExperiments(t *testing.T) {
	engine := NewDefaultRulesEngine()
	view := algorithmView{alg: Algorithm{ID: 3, Category: "spectral_gap"}}
	changes := []Change{
		{Entity: EntityNetwork, Action: ActionCreate, EntityID: 1, After: Network{ID: 1}},
		{Entity: EntityExperiment, Action: ActionCreate, EntityID: 5, After: Experiment{ID: 5, AlgorithmID: 3, Success: false}},
		{Entity: EntityExperiment, Action: ActionCreate, EntityID: 6, After: Experiment{ID: 6, AlgorithmID: 99, Success: true, RuntimeSeconds: Ptr(1.0), SpectralGap: Ptr(0.1)}},
	}
	res, err := engine.Evaluate(context.Background(), view, changes)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.HasBlocking() {
		t.Fatalf("audit findings must never block")
	}
	if len(res.Violations) != 1 || res.Violations[0].EntityID != 5 || res.Violations[0].Rule != RuleFailedWithoutMessage {
		t.Fatalf("unexpected violations %+v", res.Violations)
	}
}
