package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spectrabench/internal/blob"
	"spectrabench/internal/core"
	"spectrabench/pkg/domain"
)

type cli struct {
	t    *testing.T
	args []string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv(core.EnvStorageDriver, "")
	t.Setenv(core.EnvInlineImageLimit, "")
	t.Setenv(blob.EnvDriver, string(blob.DriverMemory))
	path := filepath.Join(t.TempDir(), "bench.db")
	return &cli{t: t, args: []string{"--driver", "sqlite", "--sqlite-path", path}}
}

// in rebinds the CLI to a subtest so failures are reported there.
func (c *cli) in(t *testing.T) *cli { return &cli{t: t, args: c.args} }

func (c *cli) run(stdin string, args ...string) (string, string, error) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(append(append([]string{}, c.args...), args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func (c *cli) mustRun(stdin string, args ...string) string {
	c.t.Helper()
	out, errOut, err := c.run(stdin, args...)
	if err != nil {
		c.t.Fatalf("spectrabench %v: %v\nstderr: %s", args, err, errOut)
	}
	return out
}

func (c *cli) seed() {
	c.t.Helper()
	c.mustRun(`{"name":"karate","source":"zachary","is_directed":false,"is_weighted":false,"node_count":34,"edge_count":78}`, "add", "network", "-")
	c.mustRun(`{"name":"lanczos","category":"eigen","implementation":"scipy.sparse.linalg.eigsh"}`, "add", "algorithm", "-")
	c.mustRun(`{"cpu_info":"x86","memory_gb":12.5}`, "add", "system", "-")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestInit(t *testing.T) {
	c := newCLI(t)
	out := c.mustRun("", "init")
	if !strings.Contains(out, "sqlite store ready") {
		t.Fatalf("unexpected init output %q", out)
	}
	out = c.mustRun("", "--json", "init")
	var status map[string]string
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode init json: %v", err)
	}
	if status["driver"] != "sqlite" || status["status"] != "ready" {
		t.Fatalf("unexpected init json %v", status)
	}
}

func TestAddPrintsAssignedIDs(t *testing.T) {
	c := newCLI(t)
	if out := c.mustRun(`{"name":"a","source":"s","is_directed":false,"is_weighted":false,"node_count":1,"edge_count":0}`, "add", "network", "-"); out != "network 1\n" {
		t.Fatalf("unexpected output %q", out)
	}
	path := writeFile(t, "net.json", `{"name":"b","source":"s","is_directed":false,"is_weighted":false,"node_count":2,"edge_count":1}`)
	if out := c.mustRun("", "add", "network", path); out != "network 2\n" {
		t.Fatalf("unexpected output %q", out)
	}

	out := c.mustRun(`{"name":"c","source":"s","is_directed":false,"is_weighted":false,"node_count":3,"edge_count":2}`, "--json", "add", "network", "-")
	var n domain.Network
	if err := json.Unmarshal([]byte(out), &n); err != nil {
		t.Fatalf("decode network: %v", err)
	}
	if n.ID != 3 || n.Name != "c" || n.CreatedAt.IsZero() {
		t.Fatalf("unexpected network %+v", n)
	}
}

func TestAddRejectsBadInput(t *testing.T) {
	c := newCLI(t)
	cases := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{"unknown kind", `{}`, []string{"add", "graph", "-"}, "unknown record kind"},
		{"unknown field", `{"name":"a","source":"s","nodes":3}`, []string{"add", "network", "-"}, "unknown field"},
		{"missing required", `{"source":"s"}`, []string{"add", "network", "-"}, "network.name: missing required field"},
		{"missing size", `{"name":"x","source":"y","is_directed":true,"is_weighted":false}`, []string{"add", "network", "-"}, "network.node_count: missing required field"},
		{"missing success", `{"network_id":1,"algorithm_id":1,"system_config_id":1,"runtime_seconds":1.5}`, []string{"add", "experiment", "-"}, "experiment.success: missing required field"},
		{"null success", `{"network_id":1,"algorithm_id":1,"system_config_id":1,"success":null}`, []string{"add", "experiment", "-"}, "experiment.success: missing required field"},
		{"missing layout", `{"network_id":1}`, []string{"add", "visualization", "-"}, "visualization.layout_algorithm: missing required field"},
		{"not an object", `[1,2]`, []string{"add", "algorithm", "-"}, "decode record"},
		{"dangling reference", `{"network_id":9,"algorithm_id":9,"system_config_id":9,"success":true}`, []string{"add", "experiment", "-"}, "foreign key"},
		{"missing file", ``, []string{"add", "network", filepath.Join(t.TempDir(), "absent.json")}, "no such file"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := c.in(t).run(tc.stdin, tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
	if out := c.mustRun("", "--json", "networks"); strings.TrimSpace(out) != "[]" {
		t.Fatalf("rejected records were stored: %s", out)
	}
	if out := c.mustRun("", "--json", "experiments"); strings.TrimSpace(out) != "[]" {
		t.Fatalf("rejected records were stored: %s", out)
	}
}

func TestExperimentsFilters(t *testing.T) {
	c := newCLI(t)
	c.seed()
	c.mustRun(`{"name":"er","source":"generated","is_directed":false,"is_weighted":false,"node_count":100,"edge_count":400}`, "add", "network", "-")
	runs := []string{
		`{"network_id":1,"algorithm_id":1,"system_config_id":1,"run_datetime":"2024-01-01T10:00:00Z","success":true,"runtime_seconds":1.5,"converged":true}`,
		`{"network_id":1,"algorithm_id":1,"system_config_id":1,"run_datetime":"2024-01-02T10:00:00Z","success":false,"error_message":"ARPACK no convergence"}`,
		`{"network_id":2,"algorithm_id":1,"system_config_id":1,"run_datetime":"2024-01-03T10:00:00Z","success":true,"runtime_seconds":9}`,
	}
	for _, r := range runs {
		c.mustRun(r, "add", "experiment", "-")
	}

	decode := func(t *testing.T, out string) []domain.Experiment {
		t.Helper()
		var exps []domain.Experiment
		if err := json.Unmarshal([]byte(out), &exps); err != nil {
			t.Fatalf("decode experiments: %v\n%s", err, out)
		}
		return exps
	}
	ids := func(exps []domain.Experiment) []int64 {
		out := make([]int64, 0, len(exps))
		for _, e := range exps {
			out = append(out, e.ID)
		}
		return out
	}

	cases := []struct {
		name string
		args []string
		want []int64
	}{
		{"all", nil, []int64{1, 2, 3}},
		{"network", []string{"--network", "1"}, []int64{1, 2}},
		{"window", []string{"--from", "2024-01-02T00:00:00Z", "--to", "2024-01-03T10:00:00Z"}, []int64{2}},
		{"success only", []string{"--success-only"}, []int64{1, 3}},
		{"combined", []string{"--network", "2", "--algorithm", "1", "--system", "1"}, []int64{3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"--json", "experiments"}, tc.args...)
			got := ids(decode(t, c.in(t).mustRun("", args...)))
			if len(got) != len(tc.want) {
				t.Fatalf("want ids %v, got %v", tc.want, got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("want ids %v, got %v", tc.want, got)
				}
			}
		})
	}

	out := c.mustRun("", "experiments", "--network", "1")
	if !strings.Contains(out, "RUNTIME_S") || !strings.Contains(out, "1.5") {
		t.Fatalf("unexpected table output:\n%s", out)
	}

	if _, _, err := c.run("", "experiments", "--from", "yesterday"); err == nil || !strings.Contains(err.Error(), "--from") {
		t.Fatalf("expected --from parse error, got %v", err)
	}
	if _, _, err := c.run("", "experiments", "--from", "2024-02-01T00:00:00Z", "--to", "2024-01-01T00:00:00Z"); err == nil {
		t.Fatal("expected inverted window to be rejected")
	}
}

func TestNetworksSizeFilter(t *testing.T) {
	c := newCLI(t)
	c.seed()
	c.mustRun(`{"name":"big","source":"generated","is_directed":false,"is_weighted":false,"node_count":5000,"edge_count":20000}`, "add", "network", "-")

	out := c.mustRun("", "--json", "networks", "--min-nodes", "1000")
	var networks []domain.Network
	if err := json.Unmarshal([]byte(out), &networks); err != nil {
		t.Fatalf("decode networks: %v", err)
	}
	if len(networks) != 1 || networks[0].Name != "big" {
		t.Fatalf("unexpected networks %+v", networks)
	}

	out = c.mustRun("", "networks")
	if !strings.Contains(out, "karate") || !strings.Contains(out, "big") {
		t.Fatalf("unexpected table output:\n%s", out)
	}
}

func TestPerformance(t *testing.T) {
	c := newCLI(t)
	c.seed()
	for _, r := range []string{
		`{"network_id":1,"algorithm_id":1,"system_config_id":1,"success":true,"runtime_seconds":1,"memory_peak_mb":10,"converged":true,"eigenvalues":[0,1.2]}`,
		`{"network_id":1,"algorithm_id":1,"system_config_id":1,"success":true,"runtime_seconds":3,"memory_peak_mb":30,"converged":false,"eigenvalues":[0,1.2]}`,
		`{"network_id":1,"algorithm_id":1,"system_config_id":1,"success":false,"error_message":"oom"}`,
	} {
		c.mustRun(r, "add", "experiment", "-")
	}

	out := c.mustRun("", "--json", "performance")
	var rows []domain.AlgorithmPerformance
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode performance: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("want one row, got %+v", rows)
	}
	row := rows[0]
	if row.NetworkName != "karate" || row.AlgorithmName != "lanczos" || row.RunCount != 2 {
		t.Fatalf("unexpected row %+v", row)
	}
	if row.AvgRuntime == nil || *row.AvgRuntime != 2 || row.AvgMemory == nil || *row.AvgMemory != 20 {
		t.Fatalf("unexpected averages %+v", row)
	}
	if row.SuccessRate != 0.5 {
		t.Fatalf("want success rate 0.5, got %v", row.SuccessRate)
	}

	out = c.mustRun("", "performance")
	if !strings.Contains(out, "SUCCESS_RATE") || !strings.Contains(out, "0.500") {
		t.Fatalf("unexpected table output:\n%s", out)
	}
}

func TestAudit(t *testing.T) {
	c := newCLI(t)
	c.seed()
	if out := c.mustRun("", "audit"); out != "no findings\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if out := c.mustRun("", "--json", "audit"); strings.TrimSpace(out) != "[]" {
		t.Fatalf("unexpected json output %q", out)
	}
	c.mustRun(`{"network_id":1,"algorithm_id":1,"system_config_id":1,"success":false}`, "add", "experiment", "-")

	out := c.mustRun("", "--json", "audit")
	var findings []domain.Violation
	if err := json.Unmarshal([]byte(out), &findings); err != nil {
		t.Fatalf("decode findings: %v", err)
	}
	if len(findings) != 1 || findings[0].Rule != domain.RuleFailedWithoutMessage || findings[0].EntityID != 1 {
		t.Fatalf("unexpected findings %+v", findings)
	}
	if out := c.mustRun("", "audit"); !strings.Contains(out, domain.RuleFailedWithoutMessage) {
		t.Fatalf("unexpected table output:\n%s", out)
	}
}

func TestAddWithArtifacts(t *testing.T) {
	c := newCLI(t)
	c.seed()

	edges := writeFile(t, "edges.txt", "0 1\n1 2\n")
	out := c.mustRun(`{"name":"path","source":"generated","is_directed":false,"is_weighted":false,"node_count":3,"edge_count":2}`, "--json", "add", "network", "--artifact", edges, "-")
	var n domain.Network
	if err := json.Unmarshal([]byte(out), &n); err != nil {
		t.Fatalf("decode network: %v", err)
	}
	if n.FilePath == nil || !strings.HasPrefix(*n.FilePath, "edgelists/") {
		t.Fatalf("expected edge list key, got %+v", n.FilePath)
	}

	vectors := writeFile(t, "vectors.json", `[[1,0],[0,1]]`)
	out = c.mustRun(`{"network_id":1,"algorithm_id":1,"system_config_id":1,"success":true,"runtime_seconds":1,"eigenvalues":[1,2]}`,
		"--json", "add", "experiment", "--artifact", vectors, "-")
	var e domain.Experiment
	if err := json.Unmarshal([]byte(out), &e); err != nil {
		t.Fatalf("decode experiment: %v", err)
	}
	if e.EigenvectorsPath == nil || len(e.Eigenvalues) != 0 {
		t.Fatalf("expected eigenvalues moved to the artifact, got %+v", e)
	}

	image := writeFile(t, "layout.png", "\x89PNG tiny")
	out = c.mustRun(`{"network_id":1,"layout_algorithm":"spring"}`, "--json", "add", "visualization", "--artifact", image, "-")
	var v domain.Visualization
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode visualization: %v", err)
	}
	if string(v.ImageBlob) != "\x89PNG tiny" || v.ImagePath != nil || v.ImageFormat != domain.DefaultImageFormat {
		t.Fatalf("expected inline image, got %+v", v)
	}

	if _, _, err := c.run(`{"network_id":1,"algorithm_id":1,"system_config_id":1,"success":true}`, "add", "experiment", "--artifact", image, "-"); err == nil {
		t.Fatal("expected non-json eigenvector artifact to be rejected")
	}
}

func TestMainExitsOnError(t *testing.T) {
	t.Setenv(core.EnvStorageDriver, string(core.StorageMemory))
	oldArgs, oldExit := os.Args, exitFunc
	t.Cleanup(func() { os.Args, exitFunc = oldArgs, oldExit })

	code := -1
	exitFunc = func(c int) { code = c }
	os.Args = []string{"spectrabench", "add", "graph", "absent.json"}
	main()
	if code != 1 {
		t.Fatalf("want exit code 1, got %d", code)
	}
}

func TestMemoryDriverRejected(t *testing.T) {
	newCLI(t)
	flagged := &cli{t: t, args: []string{"--driver", "memory"}}
	if _, _, err := flagged.run(`{"name":"lanczos","category":"eigen","implementation":"eigsh"}`, "add", "algorithm", "-"); err == nil || !strings.Contains(err.Error(), "does not persist") {
		t.Fatalf("expected memory driver to be rejected, got %v", err)
	}

	t.Setenv(core.EnvStorageDriver, string(core.StorageMemory))
	fromEnv := &cli{t: t}
	if _, _, err := fromEnv.run("", "init"); err == nil || !strings.Contains(err.Error(), "does not persist") {
		t.Fatalf("expected memory driver from environment to be rejected, got %v", err)
	}
}
