package domain

import (
	"context"
	"fmt"
	"testing"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var result Result
	result.Merge(Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}})
	if result.HasBlocking() {
		t.Fatalf("expected no blocking violations")
	}
	result.Merge(Result{Violations: []Violation{{Rule: "block", Severity: SeverityBlock}}})
	if !result.HasBlocking() {
		t.Fatalf("expected blocking violation")
	}
	err := RuleViolationError{Result: result}
	if err.Error() == "" {
		t.Fatalf("expected error string")
	}
}

func TestResultMergeEmptyInput(t *testing.T) {
	original := Result{Violations: []Violation{{Rule: "existing", Severity: SeverityWarn}}}
	original.Merge(Result{})
	if len(original.Violations) != 1 || original.Violations[0].Rule != "existing" {
		t.Fatalf("expected original violations to remain, got %+v", original.Violations)
	}
}

func TestRulesEngineEvaluate(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{"warn"})
	res, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("expected violation")
	}
	if got := len(engine.Rules()); got != 1 {
		t.Fatalf("expected 1 registered rule, got %d", got)
	}
}

func TestNilRulesEngineEvaluatesToEmptyResult(t *testing.T) {
	var engine *RulesEngine
	res, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if err != nil || len(res.Violations) != 0 {
		t.Fatalf("expected empty result, got %+v %v", res, err)
	}
}

type staticRule struct{ name string }

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(context.Context, TransactionView, []Change) (Result, error) {
	return Result{Violations: []Violation{{Rule: r.name, Severity: SeverityWarn}}}, nil
}

type emptyView struct{}

func (emptyView) FindNetwork(id int64) (Network, error) {
	return Network{}, NotFoundError{Entity: EntityNetwork, ID: id}
}
func (emptyView) FindAlgorithm(id int64) (Algorithm, error) {
	return Algorithm{}, NotFoundError{Entity: EntityAlgorithm, ID: id}
}
func (emptyView) FindSystemConfig(id int64) (SystemConfig, error) {
	return SystemConfig{}, NotFoundError{Entity: EntitySystemConfig, ID: id}
}
func (emptyView) FindExperiment(id int64) (Experiment, error) {
	return Experiment{}, NotFoundError{Entity: EntityExperiment, ID: id}
}
func (emptyView) FindVisualization(id int64) (Visualization, error) {
	return Visualization{}, NotFoundError{Entity: EntityVisualization, ID: id}
}
func (emptyView) ListNetworks(NetworkFilter) ([]Network, error)       { return nil, nil }
func (emptyView) ListAlgorithms(AlgorithmFilter) ([]Algorithm, error) { return nil, nil }
func (emptyView) ListSystemConfigs() ([]SystemConfig, error)          { return nil, nil }
func (emptyView) ListExperiments(ExperimentFilter) ([]Experiment, error) {
	return nil, nil
}
func (emptyView) ListVisualizations(VisualizationFilter) ([]Visualization, error) {
	return nil, nil
}
func (emptyView) AlgorithmPerformance() ([]AlgorithmPerformance, error) { return nil, nil }

func TestRulesEngineEvaluateError(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(errorRule{})
	if _, err := engine.Evaluate(context.Background(), emptyView{}, nil); err == nil {
		t.Fatalf("expected evaluation error")
	}
}

type errorRule struct{}

func (errorRule) Name() string { return "error" }

func (errorRule) Evaluate(context.Context, TransactionView, []Change) (Result, error) {
	return Result{}, fmt.Errorf("boom")
}
