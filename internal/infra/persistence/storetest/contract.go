// Package storetest holds the behavioural contract every domain.PersistentStore
// backend must satisfy. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"spectrabench/pkg/domain"
)

// Factory opens an empty store for one subtest. Implementations register
// cleanup on t; returning nil skips the subtest.
type Factory func(t *testing.T) domain.PersistentStore

// Run executes the contract suite against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(*testing.T, domain.PersistentStore)
	}{
		{"CatalogRoundTrip", testCatalogRoundTrip},
		{"RequiredFields", testRequiredFields},
		{"ExperimentForeignKeys", testExperimentForeignKeys},
		{"VisualizationDefaultsAndPolicy", testVisualization},
		{"FailedRunWithoutMessage", testFailedRunWithoutMessage},
		{"PerformanceView", testPerformanceView},
		{"PerformanceStdSmallSpread", testPerformanceStdSmallSpread},
		{"ExperimentFilters", testExperimentFilters},
		{"SubMicrosecondBounds", testSubMicrosecondBounds},
		{"CatalogFilters", testCatalogFilters},
		{"RollbackOnError", testRollback},
		{"ConcurrentInserts", testConcurrentInserts},
		{"NotFound", testNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := open(t)
			if store == nil {
				t.Skip("store unavailable")
			}
			tc.fn(t, store)
		})
	}
}

// Fixture ids created by Seed.
type Fixture struct {
	Network   domain.Network
	Algorithm domain.Algorithm
	System    domain.SystemConfig
}

// Seed inserts one network, algorithm and system configuration.
func Seed(t *testing.T, store domain.PersistentStore) Fixture {
	t.Helper()
	var fx Fixture
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		if fx.Network, err = tx.InsertNetwork(SampleNetwork("er-100")); err != nil {
			return err
		}
		if fx.Algorithm, err = tx.InsertAlgorithm(SampleAlgorithm("lanczos", "eigenvalues")); err != nil {
			return err
		}
		fx.System, err = tx.InsertSystemConfig(domain.SystemConfig{
			PythonVersion: domain.Ptr("3.11.4"),
			MemoryGB:      domain.Ptr(12.7),
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return fx
}

// SampleNetwork returns a valid synthetic network.
func SampleNetwork(name string) domain.Network {
	return domain.Network{
		Name:             name,
		Source:           "synthetic",
		NetworkType:      domain.Ptr("random"),
		NodeCount:        100,
		EdgeCount:        495,
		GenerationParams: domain.Document{"model": "erdos_renyi", "p": 0.1},
	}
}

// SampleAlgorithm returns a valid algorithm of the given category.
func SampleAlgorithm(name, category string) domain.Algorithm {
	return domain.Algorithm{
		Name:           name,
		Category:       category,
		Implementation: "scipy.sparse.linalg.eigsh",
		Version:        domain.Ptr("1.11"),
		Parameters:     domain.Document{"k": int64(6), "which": "LM"},
	}
}

// SuccessfulRun returns a converged experiment against fx.
func SuccessfulRun(fx Fixture, runtime float64) domain.Experiment {
	return domain.Experiment{
		NetworkID:      fx.Network.ID,
		AlgorithmID:    fx.Algorithm.ID,
		SystemConfigID: fx.System.ID,
		RuntimeSeconds: domain.Ptr(runtime),
		MemoryPeakMB:   domain.Ptr(64.0),
		Converged:      domain.Ptr(true),
		Iterations:     domain.Ptr(int64(30)),
		Eigenvalues:    []float64{12.5, 3.25, -1.5},
		SpectralGap:    domain.Ptr(9.25),
		Success:        true,
	}
}

func insertExperiment(t *testing.T, store domain.PersistentStore, e domain.Experiment) (domain.Experiment, domain.Result) {
	t.Helper()
	var out domain.Experiment
	res, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		out, err = tx.InsertExperiment(e)
		return err
	})
	if err != nil {
		t.Fatalf("insert experiment: %v", err)
	}
	return out, res
}

func listExperiments(t *testing.T, store domain.PersistentStore, filter domain.ExperimentFilter) []domain.Experiment {
	t.Helper()
	var out []domain.Experiment
	if err := store.View(context.Background(), func(v domain.TransactionView) error {
		var err error
		out, err = v.ListExperiments(filter)
		return err
	}); err != nil {
		t.Fatalf("list experiments: %v", err)
	}
	return out
}

func performance(t *testing.T, store domain.PersistentStore) []domain.AlgorithmPerformance {
	t.Helper()
	var out []domain.AlgorithmPerformance
	if err := store.View(context.Background(), func(v domain.TransactionView) error {
		var err error
		out, err = v.AlgorithmPerformance()
		return err
	}); err != nil {
		t.Fatalf("algorithm performance: %v", err)
	}
	return out
}

func ids(exps []domain.Experiment) []int64 {
	out := make([]int64, 0, len(exps))
	for _, e := range exps {
		out = append(out, e.ID)
	}
	return out
}

func testCatalogRoundTrip(t *testing.T, store domain.PersistentStore) {
	fx := Seed(t, store)
	if fx.Network.ID <= 0 || fx.Algorithm.ID <= 0 || fx.System.ID <= 0 {
		t.Fatalf("expected assigned ids, got %+v", fx)
	}
	if fx.Network.CreatedAt.IsZero() {
		t.Fatalf("expected created_at default")
	}
	exp, _ := insertExperiment(t, store, SuccessfulRun(fx, 1.5))

	err := store.View(context.Background(), func(v domain.TransactionView) error {
		n, err := v.FindNetwork(fx.Network.ID)
		if err != nil {
			return err
		}
		want := domain.Document{"model": "erdos_renyi", "p": 0.1}
		if !n.GenerationParams.Equal(want) {
			t.Fatalf("generation_params = %v, want %v", n.GenerationParams, want)
		}
		if n.NodeCount != 100 || n.EdgeCount != 495 || n.IsDirected || n.NetworkType == nil || *n.NetworkType != "random" {
			t.Fatalf("network fields not preserved: %+v", n)
		}
		if !n.CreatedAt.Equal(fx.Network.CreatedAt) {
			t.Fatalf("created_at = %v, want %v", n.CreatedAt, fx.Network.CreatedAt)
		}
		a, err := v.FindAlgorithm(fx.Algorithm.ID)
		if err != nil {
			return err
		}
		if a.Parameters["k"] != int64(6) || a.Parameters["which"] != "LM" {
			t.Fatalf("parameters not preserved: %#v", a.Parameters)
		}
		c, err := v.FindSystemConfig(fx.System.ID)
		if err != nil {
			return err
		}
		if c.MemoryGB == nil || *c.MemoryGB != 12.7 || c.GPUInfo != nil {
			t.Fatalf("system config not preserved: %+v", c)
		}
		got, err := v.FindExperiment(exp.ID)
		if err != nil {
			return err
		}
		if fmt.Sprint(got.Eigenvalues) != fmt.Sprint([]float64{12.5, 3.25, -1.5}) {
			t.Fatalf("eigenvalues = %v", got.Eigenvalues)
		}
		if got.Converged == nil || !*got.Converged || got.Iterations == nil || *got.Iterations != 30 {
			t.Fatalf("convergence fields not preserved: %+v", got)
		}
		if got.ErrorMessage != nil || got.EigenvectorsPath != nil || got.CPUPercentAvg != nil {
			t.Fatalf("absent fields should stay nil: %+v", got)
		}
		if !got.RunDatetime.Equal(exp.RunDatetime) || got.RunDatetime.IsZero() {
			t.Fatalf("run_datetime = %v, want %v", got.RunDatetime, exp.RunDatetime)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testRequiredFields(t *testing.T, store domain.PersistentStore) {
	cases := map[string]func(domain.Transaction) error{
		"network name": func(tx domain.Transaction) error {
			n := SampleNetwork("")
			_, err := tx.InsertNetwork(n)
			return err
		},
		"algorithm implementation": func(tx domain.Transaction) error {
			a := SampleAlgorithm("power", "spectral_radius")
			a.Implementation = " "
			_, err := tx.InsertAlgorithm(a)
			return err
		},
	}
	for name, fn := range cases {
		_, err := store.RunInTransaction(context.Background(), fn)
		if !errors.Is(err, domain.ErrMissingRequiredField) {
			t.Fatalf("%s: expected missing required field, got %v", name, err)
		}
	}
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		n := SampleNetwork("negative")
		n.EdgeCount = -1
		_, err := tx.InsertNetwork(n)
		return err
	})
	if !errors.Is(err, domain.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch for negative edge count, got %v", err)
	}
}

func testExperimentForeignKeys(t *testing.T, store domain.PersistentStore) {
	fx := Seed(t, store)
	cases := []struct {
		field  string
		mutate func(*domain.Experiment)
	}{
		{"network_id", func(e *domain.Experiment) { e.NetworkID = fx.Network.ID + 1000 }},
		{"algorithm_id", func(e *domain.Experiment) { e.AlgorithmID = fx.Algorithm.ID + 1000 }},
		{"system_config_id", func(e *domain.Experiment) { e.SystemConfigID = fx.System.ID + 1000 }},
		{"network_id", func(e *domain.Experiment) { e.NetworkID = -fx.Network.ID }},
		{"algorithm_id", func(e *domain.Experiment) { e.AlgorithmID = -1 }},
	}
	for _, tc := range cases {
		exp := SuccessfulRun(fx, 1)
		tc.mutate(&exp)
		_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			_, err := tx.InsertExperiment(exp)
			return err
		})
		if !errors.Is(err, domain.ErrForeignKeyViolation) {
			t.Fatalf("%s: expected foreign key violation, got %v", tc.field, err)
		}
		var cv *domain.ConstraintViolation
		if !errors.As(err, &cv) || cv.Field != tc.field {
			t.Fatalf("%s: expected violation on field, got %v", tc.field, err)
		}
	}
	if got := listExperiments(t, store, domain.ExperimentFilter{}); len(got) != 0 {
		t.Fatalf("rejected experiments must not persist, got %d", len(got))
	}
}

func testVisualization(t *testing.T, store domain.PersistentStore) {
	fx := Seed(t, store)
	var pending, inline domain.Visualization
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		pending, err = tx.InsertVisualization(domain.Visualization{NetworkID: fx.Network.ID, LayoutAlgorithm: "spring"})
		if err != nil {
			return err
		}
		inline, err = tx.InsertVisualization(domain.Visualization{
			NetworkID:       fx.Network.ID,
			LayoutAlgorithm: "spectral",
			ImageFormat:     "SVG",
			ImageBlob:       []byte("<svg/>"),
			Width:           domain.Ptr(int64(800)),
			LayoutParams:    domain.Document{"seed": int64(42)},
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert visualizations: %v", err)
	}
	if pending.ImageFormat != domain.DefaultImageFormat {
		t.Fatalf("image_format default = %q", pending.ImageFormat)
	}
	err = store.View(context.Background(), func(v domain.TransactionView) error {
		got, err := v.FindVisualization(inline.ID)
		if err != nil {
			return err
		}
		if string(got.ImageBlob) != "<svg/>" || got.ImagePath != nil || got.ImageFormat != "SVG" {
			t.Fatalf("inline visualization not preserved: %+v", got)
		}
		if got.LayoutParams["seed"] != int64(42) || got.Width == nil || *got.Width != 800 || got.Height != nil {
			t.Fatalf("visualization fields not preserved: %+v", got)
		}
		list, err := v.ListVisualizations(domain.VisualizationFilter{NetworkID: &fx.Network.ID})
		if err != nil {
			return err
		}
		if len(list) != 2 || list[0].ID != pending.ID {
			t.Fatalf("unexpected visualizations %+v", list)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.InsertVisualization(domain.Visualization{
			NetworkID:       fx.Network.ID,
			LayoutAlgorithm: "spring",
			ImageBlob:       []byte{1},
			ImagePath:       domain.Ptr("visualizations/1/a.png"),
		})
		return err
	})
	if !errors.Is(err, domain.ErrPolicyViolation) {
		t.Fatalf("expected policy violation, got %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.InsertVisualization(domain.Visualization{NetworkID: fx.Network.ID + 99, LayoutAlgorithm: "spring"})
		return err
	})
	if !errors.Is(err, domain.ErrForeignKeyViolation) {
		t.Fatalf("expected foreign key violation, got %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.InsertVisualization(domain.Visualization{NetworkID: -2, LayoutAlgorithm: "spring"})
		return err
	})
	if !errors.Is(err, domain.ErrForeignKeyViolation) {
		t.Fatalf("negative network_id: expected foreign key violation, got %v", err)
	}
}

func testFailedRunWithoutMessage(t *testing.T, store domain.PersistentStore) {
	fx := Seed(t, store)
	failed := domain.Experiment{
		NetworkID:      fx.Network.ID,
		AlgorithmID:    fx.Algorithm.ID,
		SystemConfigID: fx.System.ID,
		Success:        false,
	}
	exp, res := insertExperiment(t, store, failed)
	if exp.ID <= 0 {
		t.Fatalf("expected failed run to be stored")
	}
	found := false
	for _, v := range res.Violations {
		if v.Rule == domain.RuleFailedWithoutMessage && v.EntityID == exp.ID && v.Severity == domain.SeverityWarn {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected audit warning, got %+v", res.Violations)
	}

	withMsg := SuccessfulRun(fx, 1)
	withMsg.ErrorMessage = domain.Ptr("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.InsertExperiment(withMsg)
		return err
	})
	if !errors.Is(err, domain.ErrPolicyViolation) {
		t.Fatalf("expected policy violation for successful run with message, got %v", err)
	}
}

func testPerformanceView(t *testing.T, store domain.PersistentStore) {
	fx := Seed(t, store)
	for _, rt := range []float64{1, 2, 3} {
		insertExperiment(t, store, SuccessfulRun(fx, rt))
	}
	check := func(stage string) {
		t.Helper()
		rows := performance(t, store)
		if len(rows) != 1 {
			t.Fatalf("%s: expected one row, got %+v", stage, rows)
		}
		row := rows[0]
		if row.NetworkID != fx.Network.ID || row.AlgorithmID != fx.Algorithm.ID {
			t.Fatalf("%s: unexpected key %+v", stage, row)
		}
		if row.NetworkName != "er-100" || row.NodeCount != 100 || row.EdgeCount != 495 ||
			row.AlgorithmName != "lanczos" || row.Category != "eigenvalues" {
			t.Fatalf("%s: catalog columns wrong: %+v", stage, row)
		}
		if row.RunCount != 3 || row.AvgRuntime == nil || !approx(*row.AvgRuntime, 2) || !approx(row.SuccessRate, 1) {
			t.Fatalf("%s: aggregates wrong: %+v", stage, row)
		}
		if row.RuntimeStd == nil || !approx(*row.RuntimeStd, 1) {
			t.Fatalf("%s: runtime_std wrong: %v", stage, row.RuntimeStd)
		}
		if row.AvgMemory == nil || !approx(*row.AvgMemory, 64) {
			t.Fatalf("%s: avg_memory wrong: %v", stage, row.AvgMemory)
		}
	}
	check("three successes")

	insertExperiment(t, store, domain.Experiment{
		NetworkID:      fx.Network.ID,
		AlgorithmID:    fx.Algorithm.ID,
		SystemConfigID: fx.System.ID,
		RuntimeSeconds: domain.Ptr(50.0),
		ErrorMessage:   domain.Ptr("ARPACK error -1: no convergence"),
	})
	check("after failed run")

	notConverged := SuccessfulRun(fx, 2)
	notConverged.Converged = nil
	insertExperiment(t, store, notConverged)
	row := performance(t, store)[0]
	if row.RunCount != 4 || !approx(row.SuccessRate, 0.75) {
		t.Fatalf("null converged should count as not converged: %+v", row)
	}

	single := Seed(t, store)
	insertExperiment(t, store, SuccessfulRun(single, 4))
	rows := performance(t, store)
	if len(rows) != 2 || rows[1].NetworkID != single.Network.ID || rows[1].RuntimeStd != nil {
		t.Fatalf("single-run group should have nil std and sort after: %+v", rows)
	}
}

// Large runtimes with a tiny spread cancel in a one-pass variance.
func testPerformanceStdSmallSpread(t *testing.T, store domain.PersistentStore) {
	fx := Seed(t, store)
	for _, rt := range []float64{1000.000001, 1000.000002, 1000.000003} {
		insertExperiment(t, store, SuccessfulRun(fx, rt))
	}
	rows := performance(t, store)
	if len(rows) != 1 || rows[0].RuntimeStd == nil {
		t.Fatalf("expected one row with runtime_std, got %+v", rows)
	}
	if got := *rows[0].RuntimeStd; math.Abs(got-1e-6) > 1e-9 {
		t.Fatalf("runtime_std = %g, want 1e-6", got)
	}
}

func testSubMicrosecondBounds(t *testing.T, store domain.PersistentStore) {
	fx := Seed(t, store)
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	e := SuccessfulRun(fx, 1)
	e.RunDatetime = base.Add(700 * time.Nanosecond)
	stored, _ := insertExperiment(t, store, e)
	if !stored.RunDatetime.Equal(base) {
		t.Fatalf("run_datetime stored as %v, want %v", stored.RunDatetime, base)
	}

	from := base.Add(500 * time.Nanosecond)
	if got := listExperiments(t, store, domain.ExperimentFilter{RunFrom: &from}); len(got) != 1 {
		t.Fatalf("from %v: got %v, want the stored row", from, ids(got))
	}
	to := base.Add(900 * time.Nanosecond)
	if got := listExperiments(t, store, domain.ExperimentFilter{RunTo: &to}); len(got) != 0 {
		t.Fatalf("to %v: got %v, want nothing", to, ids(got))
	}
}

func testExperimentFilters(t *testing.T, store domain.PersistentStore) {
	fx := Seed(t, store)
	other := Seed(t, store)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var want []int64
	for i := 0; i < 6; i++ {
		target := fx
		if i%2 == 1 {
			target = other
		}
		e := SuccessfulRun(target, float64(i+1))
		e.RunDatetime = base.Add(time.Duration(i) * time.Hour)
		if i == 4 {
			e.Success = false
			e.ErrorMessage = domain.Ptr("timeout")
		}
		got, _ := insertExperiment(t, store, e)
		if i%2 == 0 && i >= 2 && i < 5 {
			want = append(want, got.ID)
		}
	}

	from := base.Add(2 * time.Hour)
	to := base.Add(5 * time.Hour)
	got := listExperiments(t, store, domain.ExperimentFilter{NetworkID: &fx.Network.ID, RunFrom: &from, RunTo: &to})
	if fmt.Sprint(ids(got)) != fmt.Sprint(want) {
		t.Fatalf("network+range filter = %v, want %v", ids(got), want)
	}
	for _, e := range got {
		if e.RunDatetime.Before(from) || !e.RunDatetime.Before(to) {
			t.Fatalf("run_datetime %v outside [%v, %v)", e.RunDatetime, from, to)
		}
	}

	exact := base.Add(2 * time.Hour)
	boundary := listExperiments(t, store, domain.ExperimentFilter{RunFrom: &exact, RunTo: &exact})
	if len(boundary) != 0 {
		t.Fatalf("empty window should match nothing, got %v", ids(boundary))
	}

	all := listExperiments(t, store, domain.ExperimentFilter{})
	if len(all) != 6 {
		t.Fatalf("expected 6 experiments, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("experiments not ordered by id: %v", ids(all))
		}
	}
	if got := listExperiments(t, store, domain.ExperimentFilter{SuccessOnly: true}); len(got) != 5 {
		t.Fatalf("success filter = %d rows", len(got))
	}
	if got := listExperiments(t, store, domain.ExperimentFilter{AlgorithmID: &other.Algorithm.ID}); len(got) != 3 {
		t.Fatalf("algorithm filter = %d rows", len(got))
	}
	if got := listExperiments(t, store, domain.ExperimentFilter{SystemConfigID: &fx.System.ID, NetworkID: &other.Network.ID}); len(got) != 0 {
		t.Fatalf("disjoint filter = %d rows", len(got))
	}
}

func testCatalogFilters(t *testing.T, store domain.PersistentStore) {
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for i, size := range []int64{10, 100, 1000} {
			n := SampleNetwork(fmt.Sprintf("n%d", i))
			n.NodeCount = size
			n.EdgeCount = size * 3
			if _, err := tx.InsertNetwork(n); err != nil {
				return err
			}
		}
		for _, cat := range []string{"eigenvalues", "spectral_gap", "eigenvalues"} {
			if _, err := tx.InsertAlgorithm(SampleAlgorithm("alg-"+cat, cat)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed catalogs: %v", err)
	}
	err = store.View(context.Background(), func(v domain.TransactionView) error {
		nets, err := v.ListNetworks(domain.NetworkFilter{MinNodes: domain.Ptr(int64(100)), MaxEdges: domain.Ptr(int64(300))})
		if err != nil {
			return err
		}
		if len(nets) != 1 || nets[0].NodeCount != 100 {
			t.Fatalf("size filter = %+v", nets)
		}
		algs, err := v.ListAlgorithms(domain.AlgorithmFilter{Category: "eigenvalues"})
		if err != nil {
			return err
		}
		if len(algs) != 2 || algs[0].ID >= algs[1].ID {
			t.Fatalf("category filter = %+v", algs)
		}
		all, err := v.ListAlgorithms(domain.AlgorithmFilter{})
		if err != nil {
			return err
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 algorithms, got %d", len(all))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testRollback(t *testing.T, store domain.PersistentStore) {
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.InsertNetwork(SampleNetwork("doomed")); err != nil {
			return err
		}
		nets, err := tx.ListNetworks(domain.NetworkFilter{})
		if err != nil {
			return err
		}
		if len(nets) != 1 {
			t.Fatalf("insert should be visible inside the transaction, got %d", len(nets))
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	err = store.View(context.Background(), func(v domain.TransactionView) error {
		nets, err := v.ListNetworks(domain.NetworkFilter{})
		if err != nil {
			return err
		}
		if len(nets) != 0 {
			t.Fatalf("rolled back network persisted: %+v", nets)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testConcurrentInserts(t *testing.T, store domain.PersistentStore) {
	fx := Seed(t, store)
	const workers = 8
	const perWorker = 5
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker*2)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
					_, err := tx.InsertExperiment(SuccessfulRun(fx, float64(w*perWorker+i+1)))
					return err
				})
				if err != nil {
					errs <- err
				}
				bad := SuccessfulRun(fx, 1)
				bad.NetworkID = fx.Network.ID + 500
				_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
					_, err := tx.InsertExperiment(bad)
					return err
				})
				if !errors.Is(err, domain.ErrForeignKeyViolation) {
					errs <- fmt.Errorf("dangling insert: expected foreign key violation, got %v", err)
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	all := listExperiments(t, store, domain.ExperimentFilter{})
	if len(all) != workers*perWorker {
		t.Fatalf("expected %d experiments, got %d", workers*perWorker, len(all))
	}
	seen := make(map[int64]bool, len(all))
	for _, e := range all {
		if seen[e.ID] {
			t.Fatalf("duplicate id %d", e.ID)
		}
		seen[e.ID] = true
		if e.NetworkID != fx.Network.ID {
			t.Fatalf("experiment %d references %d", e.ID, e.NetworkID)
		}
	}
}

func testNotFound(t *testing.T, store domain.PersistentStore) {
	err := store.View(context.Background(), func(v domain.TransactionView) error {
		if _, err := v.FindNetwork(404); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("network: expected not found, got %v", err)
		}
		if _, err := v.FindExperiment(404); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("experiment: expected not found, got %v", err)
		}
		if _, err := v.FindVisualization(404); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("visualization: expected not found, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func approx(got, want float64) bool {
	d := got - want
	return d < 1e-9 && d > -1e-9
}
