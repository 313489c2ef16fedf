package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func perfFixture() ([]Network, []Algorithm) {
	nets := []Network{
		{ID: 1, Name: "karate", NodeCount: 34, EdgeCount: 78},
		{ID: 2, Name: "er-1000", NodeCount: 1000, EdgeCount: 4950},
	}
	algs := []Algorithm{
		{ID: 10, Name: "Lanczos", Category: "spectral_gap"},
		{ID: 11, Name: "Dense", Category: "full_eigen"},
	}
	return nets, algs
}

func run(net, alg int64, runtime float64, converged bool) Experiment {
	return Experiment{NetworkID: net, AlgorithmID: alg, SystemConfigID: 1, Success: true,
		RuntimeSeconds: Ptr(runtime), MemoryPeakMB: Ptr(runtime * 10), Converged: Ptr(converged)}
}

func TestAlgorithmPerformanceThreeRuns(t *testing.T) {
	nets, algs := perfFixture()
	exps := []Experiment{run(1, 10, 1.0, true), run(1, 10, 2.0, true), run(1, 10, 3.0, true)}

	rows := ComputeAlgorithmPerformance(nets, algs, exps)
	require.Len(t, rows, 1)
	row := rows[0]
	require.Equal(t, int64(3), row.RunCount)
	require.NotNil(t, row.AvgRuntime)
	require.InDelta(t, 2.0, *row.AvgRuntime, 1e-12)
	require.NotNil(t, row.RuntimeStd)
	require.InDelta(t, 1.0, *row.RuntimeStd, 1e-12)
	require.InDelta(t, 20.0, *row.AvgMemory, 1e-12)
	require.Equal(t, 1.0, row.SuccessRate)
	require.Equal(t, "karate", row.NetworkName)
	require.Equal(t, int64(34), row.NodeCount)
	require.Equal(t, int64(78), row.EdgeCount)
	require.Equal(t, "Lanczos", row.AlgorithmName)
	require.Equal(t, "spectral_gap", row.Category)

	failed := Experiment{NetworkID: 1, AlgorithmID: 10, SystemConfigID: 1, Success: false,
		RuntimeSeconds: Ptr(100.0), ErrorMessage: Ptr("out of memory")}
	withFailure := ComputeAlgorithmPerformance(nets, algs, append(exps, failed))
	require.Len(t, withFailure, 1)
	require.Equal(t, row.RunCount, withFailure[0].RunCount)
	require.Equal(t, *row.AvgRuntime, *withFailure[0].AvgRuntime)
}

func TestAlgorithmPerformanceGroupingAndNulls(t *testing.T) {
	nets, algs := perfFixture()
	single := run(2, 11, 5.0, false)
	noRuntime := Experiment{NetworkID: 1, AlgorithmID: 11, SystemConfigID: 1, Success: true}
	exps := []Experiment{
		single,
		noRuntime,
		run(1, 10, 1.0, true),
		run(1, 10, 1.0, false),
		{NetworkID: 99, AlgorithmID: 10, Success: true},
	}

	rows := ComputeAlgorithmPerformance(nets, algs, exps)
	require.Len(t, rows, 3)

	require.Equal(t, int64(1), rows[0].NetworkID)
	require.Equal(t, int64(10), rows[0].AlgorithmID)
	require.Equal(t, 0.5, rows[0].SuccessRate)
	require.InDelta(t, 0.0, *rows[0].RuntimeStd, 1e-12)

	require.Equal(t, int64(11), rows[1].AlgorithmID)
	require.Nil(t, rows[1].AvgRuntime)
	require.Nil(t, rows[1].RuntimeStd)
	require.Nil(t, rows[1].AvgMemory)
	require.Equal(t, 0.0, rows[1].SuccessRate, "nil converged counts as not converged")

	require.Equal(t, int64(2), rows[2].NetworkID)
	require.NotNil(t, rows[2].AvgRuntime)
	require.Nil(t, rows[2].RuntimeStd, "sample std undefined for a single run")
}

func TestAlgorithmPerformanceSampleStd(t *testing.T) {
	nets, algs := perfFixture()
	var exps []Experiment
	for _, r := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		exps = append(exps, run(2, 10, r, true))
	}
	rows := ComputeAlgorithmPerformance(nets, algs, exps)
	require.Len(t, rows, 1)
	require.InDelta(t, math.Sqrt(32.0/7.0), *rows[0].RuntimeStd, 1e-12)
}

func TestAlgorithmPerformanceEmpty(t *testing.T) {
	nets, algs := perfFixture()
	require.Empty(t, ComputeAlgorithmPerformance(nets, algs, nil))
	require.Empty(t, ComputeAlgorithmPerformance(nets, algs, []Experiment{{NetworkID: 1, AlgorithmID: 10}}))
}
