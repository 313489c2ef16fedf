package domain

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

type performanceKey struct {
	network   int64
	algorithm int64
}

// ComputeAlgorithmPerformance derives the algorithm_performance view from
// in-memory records. Only successful experiments are considered; groups are
// keyed by (network, algorithm) and ordered by network id, then algorithm id.
//
// Null runtimes and memory readings are skipped by the averages, matching SQL
// AVG semantics. RuntimeStd is the sample standard deviation and is nil with
// fewer than two runtimes. A nil converged flag counts as not converged.
// Experiments whose network or algorithm is unknown are ignored, as an inner
// join would.
func ComputeAlgorithmPerformance(networks []Network, algorithms []Algorithm, experiments []Experiment) []AlgorithmPerformance {
	netByID := make(map[int64]Network, len(networks))
	for _, n := range networks {
		netByID[n.ID] = n
	}
	algByID := make(map[int64]Algorithm, len(algorithms))
	for _, a := range algorithms {
		algByID[a.ID] = a
	}

	type group struct {
		runtimes  []float64
		memories  []float64
		runs      int64
		converged int64
	}
	groups := make(map[performanceKey]*group)
	for _, e := range experiments {
		if !e.Success {
			continue
		}
		if _, ok := netByID[e.NetworkID]; !ok {
			continue
		}
		if _, ok := algByID[e.AlgorithmID]; !ok {
			continue
		}
		key := performanceKey{network: e.NetworkID, algorithm: e.AlgorithmID}
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
		}
		g.runs++
		if e.RuntimeSeconds != nil {
			g.runtimes = append(g.runtimes, *e.RuntimeSeconds)
		}
		if e.MemoryPeakMB != nil {
			g.memories = append(g.memories, *e.MemoryPeakMB)
		}
		if e.Converged != nil && *e.Converged {
			g.converged++
		}
	}

	keys := make([]performanceKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].network != keys[j].network {
			return keys[i].network < keys[j].network
		}
		return keys[i].algorithm < keys[j].algorithm
	})

	out := make([]AlgorithmPerformance, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		n := netByID[k.network]
		a := algByID[k.algorithm]
		row := AlgorithmPerformance{
			NetworkID:     n.ID,
			AlgorithmID:   a.ID,
			NetworkName:   n.Name,
			NodeCount:     n.NodeCount,
			EdgeCount:     n.EdgeCount,
			AlgorithmName: a.Name,
			Category:      a.Category,
			RunCount:      g.runs,
			SuccessRate:   float64(g.converged) / float64(g.runs),
		}
		if len(g.runtimes) > 0 {
			mean, std := stat.MeanStdDev(g.runtimes, nil)
			row.AvgRuntime = &mean
			if len(g.runtimes) > 1 {
				row.RuntimeStd = &std
			}
		}
		if len(g.memories) > 0 {
			mean := stat.Mean(g.memories, nil)
			row.AvgMemory = &mean
		}
		out = append(out, row)
	}
	return out
}
