package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"spectrabench/internal/core"
	"spectrabench/pkg/domain"
)

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Open the store, creating tables, the performance view and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, cfg, err := a.openService(cmd, false)
			if err != nil {
				return err
			}
			defer svc.Close()
			if a.jsonOut {
				return a.printJSON(map[string]string{"driver": string(cfg.Driver), "status": "ready"})
			}
			fmt.Fprintf(a.out, "%s store ready\n", cfg.Driver)
			return nil
		},
	}
}

var addKinds = []string{"network", "algorithm", "system", "experiment", "visualization"}

func (a *app) addCmd() *cobra.Command {
	var artifact string
	cmd := &cobra.Command{
		Use:   "add <" + strings.Join(addKinds, "|") + "> <file.json|->",
		Short: "Append one record read from JSON",
		Long: "Append one record read from a JSON file, or stdin when the file is '-'.\n" +
			"--artifact attaches a file through the artifact store: an edge list for a network,\n" +
			"an image for a visualization, or a JSON matrix of eigenvectors for an experiment.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(addKinds, args[0]) {
				return fmt.Errorf("unknown record kind %q (want one of %s)", args[0], strings.Join(addKinds, ", "))
			}
			raw, err := a.readInput(args[1])
			if err != nil {
				return err
			}
			var attachment []byte
			if artifact != "" {
				if attachment, err = os.ReadFile(artifact); err != nil {
					return fmt.Errorf("read artifact: %w", err)
				}
			}
			svc, _, err := a.openService(cmd, artifact != "")
			if err != nil {
				return err
			}
			defer svc.Close()
			rec, err := a.add(cmd, svc, args[0], raw, attachment)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(rec)
			}
			fmt.Fprintf(a.out, "%s %d\n", args[0], recordID(rec))
			return nil
		},
	}
	cmd.Flags().StringVar(&artifact, "artifact", "", "file to store through the artifact store")
	return cmd
}

func (a *app) readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(a.in)
	}
	return os.ReadFile(name)
}

// decodeStrict rejects unknown fields, then rejects records that omit (or
// null) a required column instead of letting it decode to its zero value.
func decodeStrict(raw []byte, entity domain.EntityType, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return domain.CheckRequiredColumns(entity, func(col string) bool {
		val, ok := fields[col]
		return ok && !bytes.Equal(bytes.TrimSpace(val), []byte("null"))
	})
}

func (a *app) add(cmd *cobra.Command, svc *core.Service, kind string, raw, attachment []byte) (any, error) {
	ctx := cmd.Context()
	switch kind {
	case "network":
		var n domain.Network
		if err := decodeStrict(raw, domain.EntityNetwork, &n); err != nil {
			return nil, err
		}
		if attachment != nil {
			out, _, err := svc.RegisterNetworkEdgeList(ctx, n, bytes.NewReader(attachment))
			return out, err
		}
		out, _, err := svc.RegisterNetwork(ctx, n)
		return out, err
	case "algorithm":
		var alg domain.Algorithm
		if err := decodeStrict(raw, domain.EntityAlgorithm, &alg); err != nil {
			return nil, err
		}
		out, _, err := svc.RegisterAlgorithm(ctx, alg)
		return out, err
	case "system":
		var c domain.SystemConfig
		if err := decodeStrict(raw, domain.EntitySystemConfig, &c); err != nil {
			return nil, err
		}
		out, _, err := svc.RegisterSystemConfig(ctx, c)
		return out, err
	case "experiment":
		var e domain.Experiment
		if err := decodeStrict(raw, domain.EntityExperiment, &e); err != nil {
			return nil, err
		}
		if attachment != nil {
			var vectors [][]float64
			if err := json.Unmarshal(attachment, &vectors); err != nil {
				return nil, fmt.Errorf("decode eigenvectors: %w", err)
			}
			out, _, err := svc.RecordExperimentEigenvectors(ctx, e, vectors)
			return out, err
		}
		out, _, err := svc.RecordExperiment(ctx, e)
		return out, err
	case "visualization":
		var v domain.Visualization
		if err := decodeStrict(raw, domain.EntityVisualization, &v); err != nil {
			return nil, err
		}
		if attachment != nil {
			out, _, err := svc.RecordVisualizationImage(ctx, v, attachment)
			return out, err
		}
		out, _, err := svc.RecordVisualization(ctx, v)
		return out, err
	default:
		return nil, fmt.Errorf("unknown record kind %q (want one of %s)", kind, strings.Join(addKinds, ", "))
	}
}

func recordID(rec any) int64 {
	switch r := rec.(type) {
	case domain.Network:
		return r.ID
	case domain.Algorithm:
		return r.ID
	case domain.SystemConfig:
		return r.ID
	case domain.Experiment:
		return r.ID
	case domain.Visualization:
		return r.ID
	}
	return 0
}

func (a *app) networksCmd() *cobra.Command {
	var minNodes, maxNodes, minEdges, maxEdges int64
	cmd := &cobra.Command{
		Use:   "networks",
		Short: "List networks, optionally bounded by node and edge counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter domain.NetworkFilter
			flags := cmd.Flags()
			if flags.Changed("min-nodes") {
				filter.MinNodes = &minNodes
			}
			if flags.Changed("max-nodes") {
				filter.MaxNodes = &maxNodes
			}
			if flags.Changed("min-edges") {
				filter.MinEdges = &minEdges
			}
			if flags.Changed("max-edges") {
				filter.MaxEdges = &maxEdges
			}
			svc, _, err := a.openService(cmd, false)
			if err != nil {
				return err
			}
			defer svc.Close()
			networks, err := svc.QueryNetworks(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(nonNil(networks))
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSOURCE\tNODES\tEDGES\tDIRECTED\tWEIGHTED")
			for _, n := range networks {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%t\t%t\n", n.ID, n.Name, n.Source, n.NodeCount, n.EdgeCount, n.IsDirected, n.IsWeighted)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int64Var(&minNodes, "min-nodes", 0, "minimum node count")
	cmd.Flags().Int64Var(&maxNodes, "max-nodes", 0, "maximum node count")
	cmd.Flags().Int64Var(&minEdges, "min-edges", 0, "minimum edge count")
	cmd.Flags().Int64Var(&maxEdges, "max-edges", 0, "maximum edge count")
	return cmd
}

type experimentFlags struct {
	network, algorithm, system int64
	from, to                   string
	successOnly                bool
}

func (f *experimentFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.network, "network", 0, "only runs on this network id")
	cmd.Flags().Int64Var(&f.algorithm, "algorithm", 0, "only runs of this algorithm id")
	cmd.Flags().Int64Var(&f.system, "system", 0, "only runs on this system config id")
	cmd.Flags().StringVar(&f.from, "from", "", "earliest run_datetime, RFC 3339 (inclusive)")
	cmd.Flags().StringVar(&f.to, "to", "", "latest run_datetime, RFC 3339 (exclusive)")
	cmd.Flags().BoolVar(&f.successOnly, "success-only", false, "only successful runs")
}

func (f *experimentFlags) filter(cmd *cobra.Command) (domain.ExperimentFilter, error) {
	filter := domain.ExperimentFilter{SuccessOnly: f.successOnly}
	flags := cmd.Flags()
	if flags.Changed("network") {
		filter.NetworkID = &f.network
	}
	if flags.Changed("algorithm") {
		filter.AlgorithmID = &f.algorithm
	}
	if flags.Changed("system") {
		filter.SystemConfigID = &f.system
	}
	for _, bound := range []struct {
		name string
		raw  string
		dst  **time.Time
	}{{"from", f.from, &filter.RunFrom}, {"to", f.to, &filter.RunTo}} {
		if bound.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, bound.raw)
		if err != nil {
			return filter, fmt.Errorf("--%s: %w", bound.name, err)
		}
		t = t.UTC()
		*bound.dst = &t
	}
	if filter.RunFrom != nil && filter.RunTo != nil && !filter.RunFrom.Before(*filter.RunTo) {
		return filter, errors.New("--from must be before --to")
	}
	return filter, nil
}

func (a *app) experimentsCmd() *cobra.Command {
	var f experimentFlags
	cmd := &cobra.Command{
		Use:   "experiments",
		Short: "List experiment runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := f.filter(cmd)
			if err != nil {
				return err
			}
			svc, _, err := a.openService(cmd, false)
			if err != nil {
				return err
			}
			defer svc.Close()
			exps, err := svc.QueryExperiments(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(nonNil(exps))
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNETWORK\tALGORITHM\tSYSTEM\tRUN\tSUCCESS\tRUNTIME_S\tCONVERGED")
			for _, e := range exps {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\t%t\t%s\t%s\n",
					e.ID, e.NetworkID, e.AlgorithmID, e.SystemConfigID,
					e.RunDatetime.Format(time.RFC3339), e.Success, optFloat(e.RuntimeSeconds), optBool(e.Converged))
			}
			return tw.Flush()
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) performanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "performance",
		Short: "Show the algorithm_performance view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := a.openService(cmd, false)
			if err != nil {
				return err
			}
			defer svc.Close()
			rows, err := svc.AlgorithmPerformance(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(nonNil(rows))
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NETWORK\tNODES\tEDGES\tALGORITHM\tCATEGORY\tRUNS\tAVG_RUNTIME\tRUNTIME_STD\tAVG_MEMORY\tSUCCESS_RATE")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%d\t%s\t%s\t%s\t%.3f\n",
					r.NetworkName, r.NodeCount, r.EdgeCount, r.AlgorithmName, r.Category, r.RunCount,
					optFloat(r.AvgRuntime), optFloat(r.RuntimeStd), optFloat(r.AvgMemory), r.SuccessRate)
			}
			return tw.Flush()
		},
	}
}

func (a *app) auditCmd() *cobra.Command {
	var f experimentFlags
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report experiment rows that are stored but look incomplete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := f.filter(cmd)
			if err != nil {
				return err
			}
			svc, _, err := a.openService(cmd, false)
			if err != nil {
				return err
			}
			defer svc.Close()
			findings, err := svc.AuditExperiments(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(nonNil(findings))
			}
			if len(findings) == 0 {
				fmt.Fprintln(a.out, "no findings")
				return nil
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "EXPERIMENT\tSEVERITY\tRULE\tMESSAGE")
			for _, v := range findings {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", v.EntityID, v.Severity, v.Rule, v.Message)
			}
			return tw.Flush()
		},
	}
	f.register(cmd)
	return cmd
}

func optFloat(f *float64) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'g', 6, 64)
}

func optBool(b *bool) string {
	if b == nil {
		return "-"
	}
	return strconv.FormatBool(*b)
}

// nonNil keeps empty listings encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
